package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/modeldepot/depot/pkg/depot/apperrors"
)

// statusForKind maps the abstract error kinds from spec.md §7 to HTTP
// status codes for this thin transport layer.
func statusForKind(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindNotFound, apperrors.KindModelSourceNotFound:
		return http.StatusNotFound
	case apperrors.KindAlreadyRunning:
		return http.StatusConflict
	case apperrors.KindAuthRequired:
		return http.StatusUnauthorized
	case apperrors.KindForbidden:
		return http.StatusForbidden
	case apperrors.KindTransient:
		return http.StatusServiceUnavailable
	case apperrors.KindInsufficientDisk:
		return http.StatusInsufficientStorage
	case apperrors.KindInvalidIdentifier, apperrors.KindInvalidRequest:
		return http.StatusBadRequest
	case apperrors.KindModelLoadFailure, apperrors.KindGenerationFailure:
		return http.StatusInternalServerError
	case apperrors.KindAdapterUnavailable:
		return http.StatusNotImplemented
	case apperrors.KindCancelled:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as a JSON error body with the status implied
// by its apperrors.Kind, defaulting to 500 for unrecognized errors.
func writeError(c *gin.Context, err error) {
	kind, ok := apperrors.ErrorKind(err)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(statusForKind(kind), gin.H{"error": err.Error(), "kind": string(kind)})
}
