package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAuthorizeMatrix(t *testing.T) {
	t.Parallel()

	admin := SessionView{ID: "u1", IsAdmin: true, Lifecycle: LifecycleAuthenticated}
	member := SessionView{ID: "u2", Lifecycle: LifecycleAuthenticated}
	// An admin flag on a non-authenticated view must never grant anything.
	staleAdmin := SessionView{ID: "u1", IsAdmin: true, Lifecycle: LifecycleUnresolved}

	cases := []struct {
		name     string
		session  SessionView
		role     Role
		expected bool
	}{
		{"any/anonymous", AnonymousSession(), RoleAny, true},
		{"any/unresolved", UnresolvedSession(), RoleAny, true},
		{"authenticated/anonymous", AnonymousSession(), RoleAuthenticated, false},
		{"authenticated/unresolved", UnresolvedSession(), RoleAuthenticated, false},
		{"authenticated/failed", FailedSession("timeout"), RoleAuthenticated, false},
		{"authenticated/member", member, RoleAuthenticated, true},
		{"administrator/member", member, RoleAdministrator, false},
		{"administrator/admin", admin, RoleAdministrator, true},
		{"administrator/unresolved admin", staleAdmin, RoleAdministrator, false},
		{"unknown role", admin, Role("owner"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, Authorize(tc.session, tc.role))
		})
	}
}

func TestParseRole(t *testing.T) {
	t.Parallel()

	role, err := ParseRole(" Administrator ")
	require.NoError(t, err)
	require.Equal(t, RoleAdministrator, role)

	_, err = ParseRole("root")
	require.True(t, errors.Is(err, ErrInvalidInput))
}

func TestEnsureAdministratorRetained(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, EnsureAdministratorRetained(Profile{ID: "u1", IsAdmin: true}, 1), ErrSoleAdministrator)
	require.NoError(t, EnsureAdministratorRetained(Profile{ID: "u1", IsAdmin: true}, 2))
	require.NoError(t, EnsureAdministratorRetained(Profile{ID: "u2"}, 1))
	require.NoError(t, EnsureAdministratorRetained(Profile{ID: "u2"}, 0))
}
