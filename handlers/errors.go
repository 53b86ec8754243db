package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"teamup/blob"
	"teamup/identity"
	"teamup/logging"
	"teamup/session"
	"teamup/store"
)

const (
	CodeValidationFailed   = "VALIDATION_FAILED"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeNotFound           = "NOT_FOUND"
	CodeConflict           = "CONFLICT"
	CodeEmailNotVerified   = "EMAIL_NOT_VERIFIED"
	CodeEmailExists        = "EMAIL_EXISTS"
	CodeInvalidCreds       = "INVALID_CREDENTIALS"
	CodeAlreadyReviewed    = "ALREADY_REVIEWED"
	CodeIdentityFailed     = "IDENTITY_PROVIDER_ERROR"
	CodeUploadFailed       = "UPLOAD_FAILED"
	CodeFileTooLarge       = "FILE_TOO_LARGE"
	CodeUnsupportedFile    = "UNSUPPORTED_FILE_TYPE"
	CodeUploadsDisabled    = "UPLOADS_DISABLED"
	CodePushDisabled       = "PUSH_DISABLED"
	CodeInternalError      = "INTERNAL_ERROR"
	CodeCreatorCannotLeave = "CREATOR_CANNOT_LEAVE"
)

func respondError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

func validationError(c *gin.Context, message string) {
	respondError(c, http.StatusBadRequest, CodeValidationFailed, message)
}

func forbidden(c *gin.Context, message string) {
	respondError(c, http.StatusForbidden, CodeForbidden, message)
}

// fail maps a domain error onto a response. Unknown errors are logged and
// reported as 500 without detail.
func fail(c *gin.Context, err error) {
	var pe *identity.ProviderError
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, session.ErrNotFound):
		respondError(c, http.StatusNotFound, CodeNotFound, "Resource not found")
	case errors.Is(err, store.ErrInvalidID):
		respondError(c, http.StatusBadRequest, CodeValidationFailed, "Invalid id")
	case errors.Is(err, store.ErrInvalidIndex):
		respondError(c, http.StatusBadRequest, CodeValidationFailed, "Index out of range")
	case errors.Is(err, store.ErrWrongItemType):
		respondError(c, http.StatusBadRequest, CodeValidationFailed, err.Error())
	case errors.Is(err, store.ErrConflict):
		respondError(c, http.StatusConflict, CodeConflict, "The document was modified concurrently, reload and retry")
	case errors.Is(err, store.ErrAlreadyReviewed):
		respondError(c, http.StatusConflict, CodeAlreadyReviewed, "You already reviewed this product")
	case errors.Is(err, store.ErrCreatorCannotLeave):
		respondError(c, http.StatusConflict, CodeCreatorCannotLeave, err.Error())
	case errors.Is(err, session.ErrPageForbidden):
		respondError(c, http.StatusForbidden, CodeForbidden, err.Error())
	case errors.Is(err, session.ErrUnknownPage):
		respondError(c, http.StatusBadRequest, CodeValidationFailed, err.Error())

	case errors.Is(err, identity.ErrEmailExists):
		respondError(c, http.StatusConflict, CodeEmailExists, "An account with this email already exists")
	case errors.Is(err, identity.ErrInvalidCredentials):
		respondError(c, http.StatusUnauthorized, CodeInvalidCreds, "Invalid email or password")
	case errors.Is(err, identity.ErrWeakPassword):
		respondError(c, http.StatusBadRequest, CodeValidationFailed, "Password should be at least 6 characters")
	case errors.As(err, &pe) && pe.Status >= 400 && pe.Status < 500:
		respondError(c, http.StatusBadRequest, CodeValidationFailed, pe.Message)
	case errors.As(err, &pe), errors.Is(err, identity.ErrUnavailable):
		logging.Logger.WithError(err).Warn("identity provider failure")
		respondError(c, http.StatusBadGateway, CodeIdentityFailed, "The identity provider is unavailable")

	case errors.Is(err, blob.ErrTooLarge):
		respondError(c, http.StatusRequestEntityTooLarge, CodeFileTooLarge, "File exceeds the upload limit")
	case errors.Is(err, blob.ErrUnsupportedType):
		respondError(c, http.StatusUnsupportedMediaType, CodeUnsupportedFile, err.Error())
	case errors.Is(err, blob.ErrEmpty):
		respondError(c, http.StatusBadRequest, CodeValidationFailed, "File is empty")

	default:
		logging.Logger.WithError(err).WithField("path", c.FullPath()).Error("request failed")
		_ = c.Error(err)
		respondError(c, http.StatusInternalServerError, CodeInternalError, "Internal server error")
	}
}

// failIdentity reports transport failures of the provider as 502.
func failIdentity(c *gin.Context, err error) {
	var pe *identity.ProviderError
	if errors.As(err, &pe) || errors.Is(err, identity.ErrUnavailable) {
		fail(c, err)
		return
	}
	logging.Logger.WithError(err).Warn("identity provider unreachable")
	respondError(c, http.StatusBadGateway, CodeIdentityFailed, "The identity provider is unavailable")
}

// failUpload reports storage backend failures as 502.
func failUpload(c *gin.Context, err error) {
	if errors.Is(err, blob.ErrTooLarge) || errors.Is(err, blob.ErrUnsupportedType) || errors.Is(err, blob.ErrEmpty) {
		fail(c, err)
		return
	}
	logging.Logger.WithError(err).Warn("upload failed")
	respondError(c, http.StatusBadGateway, CodeUploadFailed, "Failed to store the file")
}
