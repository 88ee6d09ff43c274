package application

import (
	"context"
	"errors"
	"testing"

	"github.com/viralforge/storefront-identity/internal/domain"
	"github.com/viralforge/storefront-identity/internal/ports"
)

func TestRegisterFirstUserBecomesAdministrator(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	first, err := f.service.Register(ctx, RegisterRequest{Email: "Owner@Example.com", Password: "SecurePass123!", DisplayName: "Owner"})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if !first.IsAdmin || first.Email != "owner@example.com" {
		t.Fatalf("unexpected first registration: %+v", first)
	}

	second, err := f.service.Register(ctx, RegisterRequest{Email: "shopper@example.com", Password: "SecurePass123!"})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if second.IsAdmin {
		t.Fatalf("second user must not be administrator")
	}
	if second.DisplayName != "shopper" {
		t.Fatalf("expected name derived from email, got %q", second.DisplayName)
	}

	login, err := f.service.Login(ctx, LoginRequest{Email: "shopper@example.com", Password: "SecurePass123!"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	view, err := f.service.ResolveSession(ctx, login.Token)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if view.ID != second.SubjectID || view.Lifecycle != domain.LifecycleAuthenticated {
		t.Fatalf("unexpected session: %+v", view)
	}

	types := f.eventTypes()
	if len(types) != 2 || types[0] != EventTypeIdentityRegistered {
		t.Fatalf("expected registration events, got %v", types)
	}
}

func TestRegisterBootstrapAdminEmail(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(c *Config) {
		c.FirstUserAdmin = false
		c.BootstrapAdminEmails = []string{"ops@example.com"}
	})
	ctx := context.Background()

	plain, err := f.service.Register(ctx, RegisterRequest{Email: "first@example.com", Password: "SecurePass123!"})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if plain.IsAdmin {
		t.Fatalf("first user must not be admin when disabled")
	}
	ops, err := f.service.Register(ctx, RegisterRequest{Email: "ops@example.com", Password: "SecurePass123!"})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if !ops.IsAdmin {
		t.Fatalf("bootstrap email should be administrator")
	}
}

func TestRegisterValidatesInput(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	cases := []RegisterRequest{
		{Email: "not-an-email", Password: "SecurePass123!"},
		{Email: "a@example.com", Password: "short"},
	}
	for _, req := range cases {
		if _, err := f.service.Register(context.Background(), req); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("request %+v: expected invalid input, got %v", req, err)
		}
	}
}

func TestRegisterRollsBackIdentityWhenProfileFails(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.profiles.createErr = errors.New("profile store unavailable")

	if _, err := f.service.Register(context.Background(), RegisterRequest{Email: "a@example.com", Password: "SecurePass123!"}); err == nil {
		t.Fatalf("expected register to fail")
	}
	if len(f.provider.deleted) != 1 {
		t.Fatalf("expected compensating identity delete, got %v", f.provider.deleted)
	}
	if len(f.alerts.Alerts()) != 0 {
		t.Fatalf("successful compensation should not alert")
	}
}

func TestRegisterAlertsWhenRollbackFails(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.profiles.createErr = errors.New("profile store unavailable")
	f.provider.deleteErr = errors.New("provider unavailable")

	if _, err := f.service.Register(context.Background(), RegisterRequest{Email: "a@example.com", Password: "SecurePass123!"}); err == nil {
		t.Fatalf("expected register to fail")
	}
	alerts := f.alerts.Alerts()
	if len(alerts) != 1 || alerts[0].Kind != ports.AlertKindOrphanIdentity {
		t.Fatalf("expected orphan identity alert, got %+v", alerts)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.service.Register(ctx, RegisterRequest{Email: "a@example.com", Password: "SecurePass123!"}); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if _, err := f.service.Login(ctx, LoginRequest{Email: "a@example.com", Password: "wrong-password"}); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestRegisterWithoutRegistrar(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	svc := NewService(Dependencies{
		Profiles: f.profiles,
		Identity: ports.InitializedBackend(f.provider, f.provider, nil),
	})
	if _, err := svc.Register(context.Background(), RegisterRequest{Email: "a@example.com", Password: "SecurePass123!"}); !errors.Is(err, domain.ErrNotImplemented) {
		t.Fatalf("expected not implemented, got %v", err)
	}
}
