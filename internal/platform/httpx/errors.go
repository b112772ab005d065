// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/batisseur/intranet/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807 with a stable code.
func RespondError(w http.ResponseWriter, err error) {
	var authErr *shared.AuthError
	switch {
	case errors.As(err, &authErr):
		respondAuthError(w, authErr)
	case errors.Is(err, shared.ErrInvalidID):
		Problem(w, http.StatusBadRequest, shared.CodeInvalidID, "Invalid ID", "")
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, shared.CodeNotFound, "Not Found", "")
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, shared.CodeValidationFailed, "Validation Failed", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, shared.CodeInternal, "Internal Error", "")
	}
}

func respondAuthError(w http.ResponseWriter, err *shared.AuthError) {
	switch err.Code {
	case shared.CodeUnauthenticated:
		Problem(w, http.StatusUnauthorized, err.Code, "Unauthorized", "")
	case shared.CodeAccountDisabled:
		Problem(w, http.StatusForbidden, err.Code, "Account Disabled", "")
	case shared.CodeForbidden:
		Problem(w, http.StatusForbidden, err.Code, "Forbidden", string(err.Reason))
	default:
		Problem(w, http.StatusInternalServerError, shared.CodeInternal, "Internal Error", "")
	}
}
