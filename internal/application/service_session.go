package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/viralforge/storefront-identity/internal/domain"
	"github.com/viralforge/storefront-identity/internal/ports"
)

// NewSessionResolver builds a resolver for client with the service's timeouts.
func (s *Service) NewSessionResolver(client ports.IdentityClient) *SessionResolver {
	return NewSessionResolver(client, s.profiles, s.resolverOptions())
}

// ResolveSession returns the settled view for a bearer token. An empty token is
// anonymous; a token that fails verification is ErrUnauthenticated.
func (s *Service) ResolveSession(ctx context.Context, rawToken string) (domain.SessionView, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return domain.AnonymousSession(), nil
	}
	verifier, err := s.identity.Verifier()
	if err != nil {
		return domain.SessionView{}, err
	}
	identity, err := verifier.Verify(ctx, rawToken)
	if err != nil {
		return domain.SessionView{}, err
	}

	if s.revocations != nil {
		revoked, revErr := s.revocations.IsRevoked(ctx, tokenFingerprint(rawToken))
		if revErr != nil {
			return domain.SessionView{}, fmt.Errorf("check token revocation: %w", revErr)
		}
		if revoked {
			return domain.AnonymousSession(), nil
		}
	}

	if cached := s.cachedSession(ctx, identity.SubjectID); cached != nil {
		return *cached, nil
	}

	client, err := s.newTokenIdentityClient(rawToken, &identity)
	if err != nil {
		return domain.SessionView{}, err
	}
	resolver := s.NewSessionResolver(client)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- resolver.Run(runCtx) }()

	view, err := resolver.AwaitSettled(runCtx)
	cancel()
	if rErr := <-runErr; rErr != nil && !errors.Is(rErr, context.Canceled) {
		err = rErr
	}
	if err != nil {
		return view, err
	}
	if view.Lifecycle == domain.LifecycleAuthenticated {
		s.cacheSession(ctx, view)
	}
	return view, nil
}

// WatchSession streams session views for a bearer token until ctx ends.
func (s *Service) WatchSession(ctx context.Context, rawToken string) (<-chan domain.SessionView, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return nil, fmt.Errorf("%w: missing bearer token", domain.ErrUnauthenticated)
	}
	client, err := s.newTokenIdentityClient(rawToken, nil)
	if err != nil {
		return nil, err
	}
	// Verify up front so a bad token fails the request instead of the stream.
	if _, err := client.identity(ctx); err != nil {
		return nil, err
	}

	resolver := s.NewSessionResolver(client)
	views, stop := resolver.Subscribe()
	go func() {
		defer stop()
		if err := resolver.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Default().WarnContext(ctx, "session watch ended",
				"module", "application.session",
				"layer", "application",
				"operation", "watch_session",
				"outcome", "failure",
				"error", err,
			)
		}
	}()
	return views, nil
}

// Logout revokes the token and signs out its live sessions.
func (s *Service) Logout(ctx context.Context, rawToken string) error {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return fmt.Errorf("%w: missing bearer token", domain.ErrUnauthenticated)
	}
	client, err := s.newTokenIdentityClient(rawToken, nil)
	if err != nil {
		return err
	}
	if _, err := client.identity(ctx); err != nil {
		return err
	}
	return client.SignOut(ctx)
}

func (s *Service) resolverOptions() ResolverOptions {
	return ResolverOptions{
		Timeout:      s.cfg.ResolveTimeout,
		RetryInitial: s.cfg.LookupRetryInitial,
		RetryMax:     s.cfg.LookupRetryMax,
	}
}
