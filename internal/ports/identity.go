package ports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/viralforge/storefront-identity/internal/domain"
)

// IdentityEvent is one notification from an identity client.
// A nil Identity means the session is signed out.
type IdentityEvent struct {
	Identity *domain.Identity
	Reason   string
}

// IdentityClient is the per-session view of the identity provider.
type IdentityClient interface {
	// Subscribe emits the current identity first and then every change, in order.
	// The channel is closed when ctx ends or the source stops.
	Subscribe(ctx context.Context) (<-chan IdentityEvent, error)
	SignOut(ctx context.Context) error
}

// IdentityProvider holds the provider operations this service is allowed to invoke.
type IdentityProvider interface {
	// DeleteIdentity returns domain.ErrNotFound when the subject is already gone.
	DeleteIdentity(ctx context.Context, subjectID string) error
}

// TokenVerifier turns a bearer credential into an identity or domain.ErrUnauthenticated.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (domain.Identity, error)
}

type SignUpParams struct {
	Email       string
	Password    string
	DisplayName string
}

type IssuedToken struct {
	Token     string
	ExpiresAt time.Time
	Identity  domain.Identity
}

// IdentityRegistrar is implemented only by providers this service hosts itself.
type IdentityRegistrar interface {
	SignUp(ctx context.Context, params SignUpParams) (domain.Identity, error)
	SignIn(ctx context.Context, email, password string) (IssuedToken, error)
}

// IdentityCredentials is the local provider's stored record.
type IdentityCredentials struct {
	Identity     domain.Identity
	PasswordHash string
	CreatedAt    time.Time
}

type IdentityRecordRepository interface {
	Create(ctx context.Context, record IdentityCredentials) error
	GetByEmail(ctx context.Context, email string) (IdentityCredentials, error)
	GetBySubject(ctx context.Context, subjectID string) (IdentityCredentials, error)
	Delete(ctx context.Context, subjectID string) error
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

type TokenClaims struct {
	SubjectID   string
	Email       string
	DisplayName string
	TokenID     string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

type TokenSigner interface {
	Sign(claims TokenClaims) (string, error)
	ParseAndValidate(raw string) (TokenClaims, error)
}

var errBackendNotConfigured = errors.New("identity backend not configured")

// IdentityBackend is the outcome of identity provider initialization: either
// Initialized with working components or FailedToInitialize with a reason.
// Callers must go through the accessors, which check the variant.
type IdentityBackend struct {
	ready     bool
	failure   error
	provider  IdentityProvider
	verifier  TokenVerifier
	registrar IdentityRegistrar
}

// InitializedBackend wraps working components. registrar may be nil when the
// provider is hosted elsewhere.
func InitializedBackend(provider IdentityProvider, verifier TokenVerifier, registrar IdentityRegistrar) IdentityBackend {
	return IdentityBackend{
		ready:     true,
		provider:  provider,
		verifier:  verifier,
		registrar: registrar,
	}
}

func FailedBackend(reason error) IdentityBackend {
	if reason == nil {
		reason = errBackendNotConfigured
	}
	return IdentityBackend{failure: reason}
}

func (b IdentityBackend) Ready() bool {
	return b.ready
}

// Failure returns the initialization error, or nil for an initialized backend.
func (b IdentityBackend) Failure() error {
	if b.ready {
		return nil
	}
	if b.failure == nil {
		return errBackendNotConfigured
	}
	return b.failure
}

func (b IdentityBackend) Provider() (IdentityProvider, error) {
	if err := b.check(); err != nil {
		return nil, err
	}
	return b.provider, nil
}

func (b IdentityBackend) Verifier() (TokenVerifier, error) {
	if err := b.check(); err != nil {
		return nil, err
	}
	return b.verifier, nil
}

func (b IdentityBackend) Registrar() (IdentityRegistrar, error) {
	if err := b.check(); err != nil {
		return nil, err
	}
	if b.registrar == nil {
		return nil, fmt.Errorf("%w: identity provider does not accept local registration", domain.ErrNotImplemented)
	}
	return b.registrar, nil
}

func (b IdentityBackend) check() error {
	if b.ready {
		return nil
	}
	return fmt.Errorf("%w: %v", domain.ErrIdentityUnavailable, b.Failure())
}
