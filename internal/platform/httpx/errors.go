package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Short messages returned to clients. Nothing else from an error ever reaches
// the response body.
const (
	MsgUnauthorized       = "unauthorized"
	MsgForbidden          = "forbidden"
	MsgInvalidCredentials = "invalid credentials"
	MsgInternal           = "internal server error"
	MsgInvalidRequest     = "invalid request"
	MsgRateLimited        = "rate limit exceeded"
)

// StatusFor maps domain errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, shared.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, shared.ErrLastAdmin), errors.Is(err, shared.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrTooManyAttempts):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// RespondError writes the status and short message for err.
func RespondError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	switch status {
	case http.StatusInternalServerError:
		Error(w, status, MsgInternal)
	case http.StatusUnauthorized:
		Error(w, status, MsgInvalidCredentials)
	case http.StatusBadRequest:
		if errors.Is(err, shared.ErrLastAdmin) {
			Error(w, status, shared.ErrLastAdmin.Error())
			return
		}
		Error(w, status, MsgInvalidRequest)
	default:
		Error(w, status, sentinelMessage(err))
	}
}

func sentinelMessage(err error) string {
	for _, s := range []error{shared.ErrNotFound, shared.ErrDuplicate, shared.ErrTooManyAttempts} {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return MsgInternal
}
