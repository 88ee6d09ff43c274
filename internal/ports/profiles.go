package ports

import (
	"context"
	"time"

	"github.com/viralforge/storefront-identity/internal/domain"
)

// CreateProfileParams is the initial profile document written after identity creation.
type CreateProfileParams struct {
	ID        string
	Name      string
	Email     string
	IsAdmin   bool
	CreatedAt time.Time
}

// ProfileRepository is the profile store contract.
// Get and Delete report domain.ErrNotFound for absent documents.
type ProfileRepository interface {
	Create(ctx context.Context, params CreateProfileParams) (domain.Profile, error)
	GetByID(ctx context.Context, id string) (domain.Profile, error)
	Delete(ctx context.Context, id string) error
	CountAdmins(ctx context.Context) (int64, error)
	// WithinAdminTx runs fn in one server-side transaction. The administrator
	// count and any write made through tx commit or roll back together.
	WithinAdminTx(ctx context.Context, fn func(tx ProfileAdminTx) error) error
}

// ProfileAdminTx is the transactional view used for administrator-set changes.
type ProfileAdminTx interface {
	// LockAdministrators locks every administrator profile and returns how many there are.
	LockAdministrators(ctx context.Context) (int64, error)
	GetForUpdate(ctx context.Context, id string) (domain.Profile, error)
	SetAdmin(ctx context.Context, id string, isAdmin bool, updatedAt time.Time) (domain.Profile, error)
	Enqueue(ctx context.Context, event OutboxEvent) error
}
