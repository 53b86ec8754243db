package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"teamup/blob"
	"teamup/logging"
)

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/form-data")
}

// formUpload stores the optional file in the named form field. It returns
// nil when the field is absent. On failure the response is already written.
func (h *Handler) formUpload(c *gin.Context, field string, kind blob.Kind) (*blob.Object, bool) {
	fh, err := c.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, true
	}
	if err != nil {
		validationError(c, "Malformed multipart body")
		return nil, false
	}
	if h.uploader == nil {
		respondError(c, http.StatusServiceUnavailable, CodeUploadsDisabled, "File uploads are not configured")
		return nil, false
	}

	f, err := fh.Open()
	if err != nil {
		validationError(c, "Could not read the uploaded file")
		return nil, false
	}
	defer f.Close()

	ctx, cancel := h.ctx(c)
	defer cancel()

	obj, err := h.uploader.Upload(ctx, f, fh.Filename, fh.Header.Get("Content-Type"), kind)
	if err != nil {
		failUpload(c, err)
		return nil, false
	}
	return obj, true
}

// orphaned records a blob that no document references after a failed write.
func orphaned(obj *blob.Object, err error) {
	if obj == nil {
		return
	}
	logging.Logger.WithError(err).
		WithField("url", obj.URL).
		WithField("key", obj.Key).
		Warn("uploaded blob left unreferenced")
}

// Upload stores an image and returns its public URL.
func (h *Handler) Upload(c *gin.Context) {
	if !isMultipart(c) {
		validationError(c, "Expected a multipart form with a file field")
		return
	}
	obj, ok := h.formUpload(c, "file", blob.KindImage)
	if !ok {
		return
	}
	if obj == nil {
		validationError(c, "No file provided")
		return
	}

	logging.Logger.WithField("userId", currentUserID(c)).WithField("size", obj.Size).Info("file uploaded")
	c.JSON(http.StatusCreated, gin.H{
		"message": "File uploaded",
		"url":     obj.URL,
		"file":    obj,
	})
}
