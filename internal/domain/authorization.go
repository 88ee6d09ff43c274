package domain

import (
	"fmt"
	"strings"
)

// Role is the requirement a privileged operation places on the caller's session.
type Role string

const (
	RoleAny           Role = "any"
	RoleAuthenticated Role = "authenticated"
	RoleAdministrator Role = "administrator"
)

func ParseRole(raw string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleAny:
		return RoleAny, nil
	case RoleAuthenticated:
		return RoleAuthenticated, nil
	case RoleAdministrator:
		return RoleAdministrator, nil
	default:
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, raw)
	}
}

// Authorize is the single authorization predicate for every privileged operation.
func Authorize(session SessionView, required Role) bool {
	switch required {
	case RoleAny:
		return true
	case RoleAuthenticated:
		return session.Lifecycle == LifecycleAuthenticated
	case RoleAdministrator:
		return session.Lifecycle == LifecycleAuthenticated && session.IsAdmin
	default:
		return false
	}
}

// EnsureAdministratorRetained rejects removing target from the administrator set
// when it is the last member. adminCount must be read in the same transaction
// as the write that follows.
func EnsureAdministratorRetained(target Profile, adminCount int64) error {
	if target.IsAdmin && adminCount <= 1 {
		return fmt.Errorf("%w: %s is the only administrator", ErrSoleAdministrator, target.ID)
	}
	return nil
}
