package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/storefront-identity/internal/domain"
	"github.com/viralforge/storefront-identity/internal/ports"
)

// LocalProvider is the identity provider this service hosts itself: credentials
// in the identity store, bcrypt passwords and RS256 bearer tokens.
type LocalProvider struct {
	records  ports.IdentityRecordRepository
	hasher   ports.PasswordHasher
	signer   ports.TokenSigner
	tokenTTL time.Duration
	nowFn    func() time.Time
	logger   *slog.Logger
}

func NewLocalProvider(records ports.IdentityRecordRepository, hasher ports.PasswordHasher, signer ports.TokenSigner, tokenTTL time.Duration, logger *slog.Logger) *LocalProvider {
	if tokenTTL <= 0 {
		tokenTTL = 12 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalProvider{
		records:  records,
		hasher:   hasher,
		signer:   signer,
		tokenTTL: tokenTTL,
		nowFn:    func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
}

func (p *LocalProvider) SignUp(ctx context.Context, params ports.SignUpParams) (domain.Identity, error) {
	hash, err := p.hasher.Hash(params.Password)
	if err != nil {
		return domain.Identity{}, err
	}
	identity := domain.Identity{
		SubjectID:   uuid.NewString(),
		Email:       params.Email,
		DisplayName: params.DisplayName,
	}
	if err := p.records.Create(ctx, ports.IdentityCredentials{
		Identity:     identity,
		PasswordHash: hash,
		CreatedAt:    p.nowFn(),
	}); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return domain.Identity{}, fmt.Errorf("%w: email already registered", domain.ErrConflict)
		}
		return domain.Identity{}, fmt.Errorf("store identity: %w", err)
	}
	return identity, nil
}

func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (ports.IssuedToken, error) {
	record, err := p.records.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return ports.IssuedToken{}, domain.ErrInvalidCredentials
		}
		return ports.IssuedToken{}, err
	}
	if err := p.hasher.Compare(record.PasswordHash, password); err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			return ports.IssuedToken{}, domain.ErrInvalidCredentials
		}
		return ports.IssuedToken{}, err
	}

	now := p.nowFn()
	expiresAt := now.Add(p.tokenTTL)
	token, err := p.signer.Sign(ports.TokenClaims{
		SubjectID:   record.Identity.SubjectID,
		Email:       record.Identity.Email,
		DisplayName: record.Identity.DisplayName,
		TokenID:     uuid.NewString(),
		IssuedAt:    now,
		ExpiresAt:   expiresAt,
	})
	if err != nil {
		return ports.IssuedToken{}, fmt.Errorf("sign token: %w", err)
	}
	p.logger.InfoContext(ctx, "local sign-in succeeded",
		"module", "identity.local",
		"layer", "adapter",
		"operation", "sign_in",
		"outcome", "success",
		"subject_id", record.Identity.SubjectID,
	)
	return ports.IssuedToken{Token: token, ExpiresAt: expiresAt, Identity: record.Identity}, nil
}

// Verify accepts a token only while its subject still exists, so a deleted
// identity is signed out everywhere at its next request.
func (p *LocalProvider) Verify(ctx context.Context, rawToken string) (domain.Identity, error) {
	claims, err := p.signer.ParseAndValidate(rawToken)
	if err != nil {
		return domain.Identity{}, err
	}
	record, err := p.records.GetBySubject(ctx, claims.SubjectID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Identity{}, fmt.Errorf("%w: identity no longer exists", domain.ErrUnauthenticated)
		}
		return domain.Identity{}, err
	}
	return record.Identity, nil
}

func (p *LocalProvider) DeleteIdentity(ctx context.Context, subjectID string) error {
	return p.records.Delete(ctx, subjectID)
}
