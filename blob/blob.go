// Package blob validates and stores user uploads (product images and chat
// attachments) and hands back their public URL.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"teamup/metrics"
)

var (
	ErrTooLarge        = errors.New("file too large")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrEmpty           = errors.New("empty file")
)

type Kind int

const (
	KindImage Kind = iota
	KindAttachment
)

var imageTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

var attachmentTypes = append([]string{"application/pdf", "text/plain", "application/zip"}, imageTypes...)

func (k Kind) allowed() []string {
	if k == KindAttachment {
		return attachmentTypes
	}
	return imageTypes
}

// Backend persists bytes under key and returns a public URL.
type Backend interface {
	Put(ctx context.Context, key string, r io.Reader) (string, error)
}

type Object struct {
	URL         string `json:"url"`
	Key         string `json:"key"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

type Service struct {
	backend  Backend
	maxBytes int64
}

func NewService(backend Backend, maxBytes int64) *Service {
	return &Service{backend: backend, maxBytes: maxBytes}
}

// Upload reads at most the configured limit from r, checks the declared and
// sniffed content types against the allow-list for kind, then stores it.
func (s *Service) Upload(ctx context.Context, r io.Reader, filename, declared string, kind Kind) (*Object, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	if int64(len(data)) > s.maxBytes {
		return nil, ErrTooLarge
	}

	allowed := kind.allowed()
	if !declaredOK(declared, allowed) {
		return nil, fmt.Errorf("%w: declared %s", ErrUnsupportedType, declared)
	}
	detected := mimetype.Detect(data)
	sniffed := ""
	for _, t := range allowed {
		if detected.Is(t) {
			sniffed = t
			break
		}
	}
	if sniffed == "" {
		return nil, fmt.Errorf("%w: detected %s", ErrUnsupportedType, detected.String())
	}

	key := uuid.NewString()
	url, err := s.backend.Put(ctx, key, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}
	metrics.UploadBytesTotal.Add(float64(len(data)))

	return &Object{
		URL:         url,
		Key:         key,
		Name:        path.Base(strings.ReplaceAll(filename, "\\", "/")),
		ContentType: sniffed,
		Size:        int64(len(data)),
	}, nil
}

// declaredOK accepts an absent or generic declared type since browsers often
// omit it for drag-and-drop uploads.
func declaredOK(declared string, allowed []string) bool {
	if declared == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(declared)
	if err != nil {
		return false
	}
	if mediaType == "application/octet-stream" {
		return true
	}
	for _, t := range allowed {
		if mediaType == t {
			return true
		}
	}
	return false
}
