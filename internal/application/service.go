package application

import (
	"time"

	"github.com/viralforge/storefront-identity/internal/ports"
)

type Service struct {
	cfg         Config
	profiles    ports.ProfileRepository
	outbox      ports.OutboxRepository
	identity    ports.IdentityBackend
	revocations ports.TokenRevocationStore
	sessions    ports.SessionViewCache
	changes     ports.IdentityChangeBus
	alerts      ports.OperatorAlerter
	nowFn       func() time.Time
}

type Dependencies struct {
	Config      Config
	Profiles    ports.ProfileRepository
	Outbox      ports.OutboxRepository
	Identity    ports.IdentityBackend
	Revocations ports.TokenRevocationStore
	Sessions    ports.SessionViewCache
	Changes     ports.IdentityChangeBus
	Alerts      ports.OperatorAlerter
	Now         func() time.Time
}

func NewService(deps Dependencies) *Service {
	cfg := deps.Config
	if cfg.ServiceName == "" {
		cfg.ServiceName = "storefront-identity"
	}
	if cfg.ResolveTimeout <= 0 {
		cfg.ResolveTimeout = 10 * time.Second
	}
	if cfg.LookupRetryInitial <= 0 {
		cfg.LookupRetryInitial = 100 * time.Millisecond
	}
	if cfg.LookupRetryMax < cfg.LookupRetryInitial {
		cfg.LookupRetryMax = 2 * time.Second
	}
	if cfg.CleanupRetryAttempts < 0 {
		cfg.CleanupRetryAttempts = 0
	}
	if cfg.CleanupRetryDelay <= 0 {
		cfg.CleanupRetryDelay = 200 * time.Millisecond
	}
	if cfg.RevocationTTL <= 0 {
		cfg.RevocationTTL = 24 * time.Hour
	}
	nowFn := deps.Now
	if nowFn == nil {
		nowFn = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		cfg:         cfg,
		profiles:    deps.Profiles,
		outbox:      deps.Outbox,
		identity:    deps.Identity,
		revocations: deps.Revocations,
		sessions:    deps.Sessions,
		changes:     deps.Changes,
		alerts:      deps.Alerts,
		nowFn:       nowFn,
	}
}

// IdentityStatus reports whether the identity backend initialized.
func (s *Service) IdentityStatus() IdentityStatus {
	if err := s.identity.Failure(); err != nil {
		return IdentityStatus{Ready: false, Reason: err.Error()}
	}
	return IdentityStatus{Ready: true}
}
