package identity

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmailExists        = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrWeakPassword       = errors.New("password too weak")
	ErrUnavailable        = errors.New("identity provider unavailable")
)

// ProviderError is an error body returned by the identity provider,
// {"error": {"code": 400, "message": "EMAIL_EXISTS"}}.
type ProviderError struct {
	Status  int    `json:"code"`
	Message string `json:"message"`
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("identity provider: %d %s", e.Status, e.Message)
}

// Unwrap maps well-known provider messages onto package sentinels so callers
// can use errors.Is. Messages may carry a suffix such as
// "WEAK_PASSWORD : Password should be at least 6 characters".
func (e *ProviderError) Unwrap() error {
	switch {
	case strings.HasPrefix(e.Message, "EMAIL_EXISTS"):
		return ErrEmailExists
	case strings.HasPrefix(e.Message, "EMAIL_NOT_FOUND"),
		strings.HasPrefix(e.Message, "INVALID_PASSWORD"),
		strings.HasPrefix(e.Message, "INVALID_LOGIN_CREDENTIALS"):
		return ErrInvalidCredentials
	case strings.HasPrefix(e.Message, "WEAK_PASSWORD"):
		return ErrWeakPassword
	}
	return nil
}

// clientSide reports whether the provider rejected the request itself,
// as opposed to failing to serve it.
func (e *ProviderError) clientSide() bool {
	return e.Status >= 400 && e.Status < 500
}

type errorBody struct {
	Error ProviderError `json:"error"`
}
