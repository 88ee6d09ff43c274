package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/viralforge/storefront-identity/internal/domain"
)

func mapDomainError(err error) (int, string, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, "VALIDATION_ERROR", err.Error()
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized, "UNAUTHORIZED", "invalid or missing credentials"
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid email or password"
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden, "FORBIDDEN", "administrator role required"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "resource not found"
	case errors.Is(err, domain.ErrSelfDeletionForbidden):
		return http.StatusConflict, "SELF_DELETION_FORBIDDEN", "you cannot delete your own account"
	case errors.Is(err, domain.ErrSoleAdministrator):
		return http.StatusConflict, "SOLE_ADMINISTRATOR", "at least one administrator must remain"
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "CONFLICT", err.Error()
	case errors.Is(err, domain.ErrPartialDeletion):
		return http.StatusInternalServerError, "PARTIAL_DELETION_FAILURE", "identity deleted but profile cleanup failed; operators have been alerted"
	case errors.Is(err, domain.ErrNotImplemented):
		return http.StatusNotImplemented, "NOT_IMPLEMENTED", err.Error()
	case errors.Is(err, domain.ErrIdentityUnavailable):
		return http.StatusServiceUnavailable, "IDENTITY_UNAVAILABLE", "identity provider unavailable"
	case errors.Is(err, domain.ErrSessionUnresolved):
		return http.StatusServiceUnavailable, "SESSION_UNRESOLVED", "session could not be resolved"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT", "request timed out"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error"
	}
}
