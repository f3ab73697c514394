// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors for the domain layer. Every service returns one of these
// (wrapped or bare) and the boundary maps it onto a response.
var (
	// ErrUnauthenticated covers missing, invalid, or expired credentials and
	// deactivated accounts. Callers must not be able to tell those apart.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrForbidden indicates a known identity with insufficient role or
	// permissions.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound covers both absent resources and resources outside the
	// caller's visibility scope.
	ErrNotFound = errors.New("resource not found")
	// ErrConflict indicates a failed state-transition precondition or a
	// duplicate identity.
	ErrConflict = errors.New("conflict")
	// ErrValidation indicates malformed input against the schema.
	ErrValidation = errors.New("validation failed")
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		// Deliberately generic: never reveal whether the account exists or
		// why the credential was rejected.
		Problem(w, http.StatusUnauthorized, "Unauthorized", "access denied")
	case errors.Is(err, ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
