package application

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/viralforge/storefront-identity/internal/domain"
	"github.com/viralforge/storefront-identity/internal/ports"
)

// tokenIdentityClient is the IdentityClient of one bearer-token session.
// It emits the verified identity first, then follows the subject's change
// feed: sign-out or deletion emits a nil identity, a profile update re-emits
// the identity so the resolver looks the profile up again.
type tokenIdentityClient struct {
	rawToken    string
	tokenID     string
	verified    *domain.Identity
	verifier    ports.TokenVerifier
	revocations ports.TokenRevocationStore
	changes     ports.IdentityChangeBus
	revokeTTL   time.Duration
	nowFn       func() time.Time
}

func (s *Service) newTokenIdentityClient(rawToken string, verified *domain.Identity) (*tokenIdentityClient, error) {
	verifier, err := s.identity.Verifier()
	if err != nil {
		return nil, err
	}
	return &tokenIdentityClient{
		rawToken:    rawToken,
		tokenID:     tokenFingerprint(rawToken),
		verified:    verified,
		verifier:    verifier,
		revocations: s.revocations,
		changes:     s.changes,
		revokeTTL:   s.cfg.RevocationTTL,
		nowFn:       s.nowFn,
	}, nil
}

func (c *tokenIdentityClient) Subscribe(ctx context.Context) (<-chan ports.IdentityEvent, error) {
	identity, err := c.identity(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan ports.IdentityEvent, 4)
	revoked, err := c.isRevoked(ctx)
	if err != nil {
		return nil, err
	}
	if revoked {
		out <- ports.IdentityEvent{Reason: "token_revoked"}
		close(out)
		return out, nil
	}

	var (
		feed <-chan ports.IdentityChange
		stop = func() {}
	)
	if c.changes != nil {
		feed, stop, err = c.changes.Subscribe(ctx, identity.SubjectID)
		if err != nil {
			return nil, fmt.Errorf("subscribe identity changes: %w", err)
		}
	}

	go func() {
		defer close(out)
		defer stop()
		if !sendIdentityEvent(ctx, out, ports.IdentityEvent{Identity: &identity, Reason: "initial"}) {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case change, ok := <-feed:
				if !ok {
					return
				}
				switch change.Kind {
				case ports.IdentityChangeSignedOut:
					if change.TokenID != "" && change.TokenID != c.tokenID {
						continue
					}
					sendIdentityEvent(ctx, out, ports.IdentityEvent{Reason: string(change.Kind)})
					return
				case ports.IdentityChangeDeleted:
					sendIdentityEvent(ctx, out, ports.IdentityEvent{Reason: string(change.Kind)})
					return
				case ports.IdentityChangeProfileUpdated:
					if !sendIdentityEvent(ctx, out, ports.IdentityEvent{Identity: &identity, Reason: string(change.Kind)}) {
						return
					}
				}
			}
		}
	}()
	return out, nil
}

// SignOut revokes this token and notifies every live session using it.
func (c *tokenIdentityClient) SignOut(ctx context.Context) error {
	identity, err := c.identity(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrUnauthenticated) {
			return nil
		}
		return err
	}
	if c.revocations != nil {
		if err := c.revocations.Revoke(ctx, c.tokenID, c.revokeTTL); err != nil {
			return fmt.Errorf("revoke token: %w", err)
		}
	}
	if c.changes != nil {
		if err := c.changes.Publish(ctx, ports.IdentityChange{
			SubjectID: identity.SubjectID,
			TokenID:   c.tokenID,
			Kind:      ports.IdentityChangeSignedOut,
			At:        c.nowFn(),
		}); err != nil {
			slog.Default().WarnContext(ctx, "failed to publish sign-out change",
				"module", "application.identity_client",
				"layer", "application",
				"operation", "sign_out",
				"outcome", "failure",
				"subject_id", identity.SubjectID,
				"error", err,
			)
		}
	}
	return nil
}

func (c *tokenIdentityClient) identity(ctx context.Context) (domain.Identity, error) {
	if c.verified != nil {
		return *c.verified, nil
	}
	identity, err := c.verifier.Verify(ctx, c.rawToken)
	if err != nil {
		return domain.Identity{}, err
	}
	c.verified = &identity
	return identity, nil
}

func (c *tokenIdentityClient) isRevoked(ctx context.Context) (bool, error) {
	if c.revocations == nil {
		return false, nil
	}
	revoked, err := c.revocations.IsRevoked(ctx, c.tokenID)
	if err != nil {
		return false, fmt.Errorf("check token revocation: %w", err)
	}
	return revoked, nil
}

func sendIdentityEvent(ctx context.Context, out chan<- ports.IdentityEvent, evt ports.IdentityEvent) bool {
	select {
	case out <- evt:
		return true
	case <-ctx.Done():
		return false
	}
}

// tokenFingerprint keys revocations without storing the raw credential.
func tokenFingerprint(rawToken string) string {
	sum := sha256.Sum256([]byte(rawToken))
	return hex.EncodeToString(sum[:])
}
