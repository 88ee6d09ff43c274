package ports

import (
	"context"
	"time"

	"github.com/viralforge/storefront-identity/internal/domain"
)

type IdentityChangeKind string

const (
	IdentityChangeSignedOut      IdentityChangeKind = "signed_out"
	IdentityChangeDeleted        IdentityChangeKind = "deleted"
	IdentityChangeProfileUpdated IdentityChangeKind = "profile_updated"
)

// IdentityChange is pushed to live sessions of a subject. TokenID scopes a
// sign-out to one session; empty means every session of the subject.
type IdentityChange struct {
	SubjectID string             `json:"subject_id"`
	TokenID   string             `json:"token_id,omitempty"`
	Kind      IdentityChangeKind `json:"kind"`
	At        time.Time          `json:"at"`
}

type IdentityChangeBus interface {
	Publish(ctx context.Context, change IdentityChange) error
	// Subscribe returns changes for one subject until the returned stop func is called.
	Subscribe(ctx context.Context, subjectID string) (<-chan IdentityChange, func(), error)
}

type TokenRevocationStore interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// SessionViewCache stores authenticated views by subject id. Get returns nil on miss.
type SessionViewCache interface {
	Get(ctx context.Context, subjectID string) (*domain.SessionView, error)
	Set(ctx context.Context, view domain.SessionView, ttl time.Duration) error
	Invalidate(ctx context.Context, subjectID string) error
}
