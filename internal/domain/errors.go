package domain

import "errors"

var (
	// ErrNotFound is returned when the requested identity or profile does not exist.
	ErrNotFound = errors.New("resource not found")
	// ErrUnauthorized means the caller's session does not satisfy the required role.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUnauthenticated means the presented credential could not be verified.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrSelfDeletionForbidden guards against a caller deleting its own account.
	ErrSelfDeletionForbidden = errors.New("self deletion forbidden")
	// ErrSoleAdministrator is returned before any mutation that would leave zero administrators.
	ErrSoleAdministrator = errors.New("sole administrator violation")
	// ErrInconsistentAccount marks a signed-in identity with no profile.
	// The session resolver handles it with a corrective sign-out; callers never receive it.
	ErrInconsistentAccount = errors.New("inconsistent account")
	// ErrPartialDeletion means the identity is gone but its profile could not be removed.
	ErrPartialDeletion     = errors.New("partial deletion failure")
	ErrInvalidInput        = errors.New("invalid input")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrConflict            = errors.New("conflict")
	ErrIdentityUnavailable = errors.New("identity backend unavailable")
	ErrSessionUnresolved   = errors.New("session unresolved")
	ErrNotImplemented      = errors.New("not implemented")
)
