package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/viralforge/storefront-identity/internal/domain"
	"github.com/viralforge/storefront-identity/internal/ports"
)

func TestDecodeSessionViewAcceptsAuthenticatedViews(t *testing.T) {
	view := domain.AuthenticatedSession(
		domain.Identity{SubjectID: "u1", Email: "u1@example.com"},
		domain.Profile{ID: "u1", Name: "Ada", IsAdmin: true},
	)
	raw, err := json.Marshal(view)
	require.NoError(t, err)

	decoded, err := decodeSessionView(raw)
	require.NoError(t, err)
	require.NotNil(t, decoded)
	require.Equal(t, view, *decoded)
}

func TestDecodeSessionViewTreatsJunkAsMiss(t *testing.T) {
	for _, raw := range []string{"not-json", `{"lifecycle":"resolved_anonymous"}`, `{"lifecycle":"resolved_authenticated"}`} {
		decoded, err := decodeSessionView([]byte(raw))
		require.NoError(t, err)
		require.Nil(t, decoded, raw)
	}
}

func TestDecodeChange(t *testing.T) {
	raw, err := json.Marshal(ports.IdentityChange{SubjectID: "u1", Kind: ports.IdentityChangeDeleted, At: time.Unix(10, 0).UTC()})
	require.NoError(t, err)

	change, err := decodeChange(string(raw))
	require.NoError(t, err)
	require.Equal(t, "u1", change.SubjectID)
	require.Equal(t, ports.IdentityChangeDeleted, change.Kind)

	_, err = decodeChange(`{"subject_id":"u1"}`)
	require.Error(t, err)
}

func TestKeysAreNamespaced(t *testing.T) {
	require.Equal(t, "identity:session:u1", sessionKey("u1"))
	require.Equal(t, "identity:changes:u1", changeChannel("u1"))
}

func TestSessionCacheRejectsAnonymousViews(t *testing.T) {
	c := NewRedisSessionViewCache(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}))
	err := c.Set(context.Background(), domain.AnonymousSession(), time.Minute)
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestConnectRejectsBadURL(t *testing.T) {
	_, err := Connect(context.Background(), "redis://:%zz@host")
	require.Error(t, err)
}
