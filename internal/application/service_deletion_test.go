package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/viralforge/storefront-identity/internal/domain"
	"github.com/viralforge/storefront-identity/internal/ports"
)

func TestDeleteUserRejectsSelfDeletion(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.seedUser("u1", true)
	f.seedUser("u2", true)

	for _, caller := range []domain.SessionView{adminSession("u1"), userSession("u1")} {
		if _, err := f.service.DeleteUser(ctx, caller, "u1"); !errors.Is(err, domain.ErrSelfDeletionForbidden) {
			t.Fatalf("expected self deletion forbidden, got %v", err)
		}
	}
	if !f.provider.has("u1") {
		t.Fatalf("self deletion must not touch the identity")
	}
	if _, err := f.profiles.GetByID(ctx, "u1"); err != nil {
		t.Fatalf("self deletion must not touch the profile: %v", err)
	}

	// Self deletion is refused before the target id is validated.
	if _, err := f.service.DeleteUser(ctx, userSession("a b"), " a b "); !errors.Is(err, domain.ErrSelfDeletionForbidden) {
		t.Fatalf("expected self deletion forbidden for malformed id, got %v", err)
	}
}

func TestDeleteUserRequiresAdministrator(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedUser("u1", false)
	f.seedUser("u2", false)

	if _, err := f.service.DeleteUser(context.Background(), userSession("u1"), "u2"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if !f.provider.has("u2") {
		t.Fatalf("unauthorized delete must not touch the identity")
	}
}

func TestDeleteUserRemovesIdentityThenProfile(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.seedUser("u1", true)
	f.seedUser("u2", false)

	changes, stop, err := f.changes.Subscribe(ctx, "u2")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer stop()

	receipt, err := f.service.DeleteUser(ctx, adminSession("u1"), "u2")
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if receipt.Outcome != domain.DeletionOutcomeDeleted || !receipt.IdentityDeleted || !receipt.ProfileDeleted {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}
	if f.provider.has("u2") {
		t.Fatalf("identity should be deleted")
	}
	if _, err := f.profiles.GetByID(ctx, "u2"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("profile should be deleted, got %v", err)
	}
	if types := f.eventTypes(); len(types) != 1 || types[0] != EventTypeIdentityDeleted {
		t.Fatalf("expected identity deleted event, got %v", types)
	}
	change := <-changes
	if change.Kind != ports.IdentityChangeDeleted {
		t.Fatalf("expected deleted change, got %+v", change)
	}
}

func TestDeleteUserPartialFailureThenRetry(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.seedUser("u1", true)
	f.seedUser("u2", false)

	// Initial attempt plus both cleanup retries fail.
	f.profiles.failDeletes(3)
	receipt, err := f.service.DeleteUser(ctx, adminSession("u1"), "u2")
	if !errors.Is(err, domain.ErrPartialDeletion) {
		t.Fatalf("expected partial deletion failure, got %v", err)
	}
	if !receipt.IdentityDeleted || receipt.ProfileDeleted {
		t.Fatalf("unexpected partial receipt: %+v", receipt)
	}
	if f.provider.has("u2") {
		t.Fatalf("identity should be gone after partial deletion")
	}
	if _, err := f.profiles.GetByID(ctx, "u2"); err != nil {
		t.Fatalf("profile should remain after partial deletion: %v", err)
	}
	alerts := f.alerts.Alerts()
	if len(alerts) != 1 || alerts[0].Kind != ports.AlertKindPartialDeletion || alerts[0].SubjectID != "u2" {
		t.Fatalf("expected one partial deletion alert, got %+v", alerts)
	}

	receipt, err = f.service.DeleteUser(ctx, adminSession("u1"), "u2")
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if receipt.Outcome != domain.DeletionOutcomeOrphanCleaned || receipt.IdentityDeleted || !receipt.ProfileDeleted {
		t.Fatalf("unexpected retry receipt: %+v", receipt)
	}

	receipt, err = f.service.DeleteUser(ctx, adminSession("u1"), "u2")
	if err != nil {
		t.Fatalf("second retry failed: %v", err)
	}
	if receipt.Outcome != domain.DeletionOutcomeAlreadyDeleted {
		t.Fatalf("expected already deleted, got %+v", receipt)
	}
}

func TestDeleteUserRecoversWithinCleanupRetries(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.seedUser("u1", true)
	f.seedUser("u2", false)

	f.profiles.failDeletes(2)
	receipt, err := f.service.DeleteUser(ctx, adminSession("u1"), "u2")
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if receipt.Outcome != domain.DeletionOutcomeDeleted || !receipt.ProfileDeleted {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}
	if len(f.alerts.Alerts()) != 0 {
		t.Fatalf("no alert expected when cleanup succeeds")
	}
}

func TestDeleteUserIdentityFailureLeavesProfile(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.seedUser("u1", true)
	f.seedUser("u2", false)
	f.provider.deleteErr = errors.New("provider unavailable")

	if _, err := f.service.DeleteUser(ctx, adminSession("u1"), "u2"); err == nil || errors.Is(err, domain.ErrPartialDeletion) {
		t.Fatalf("expected plain identity failure, got %v", err)
	}
	if _, err := f.profiles.GetByID(ctx, "u2"); err != nil {
		t.Fatalf("profile must remain when identity deletion fails: %v", err)
	}
}

func TestDeleteUserRefusesLastAdministrator(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	// u1's session still claims administrator, but the store says u2 is the only one.
	f.seedUser("u1", false)
	f.seedUser("u2", true)

	if _, err := f.service.DeleteUser(ctx, adminSession("u1"), "u2"); !errors.Is(err, domain.ErrSoleAdministrator) {
		t.Fatalf("expected sole administrator violation, got %v", err)
	}
	if !f.provider.has("u2") {
		t.Fatalf("identity must not be deleted when the check fails")
	}
}

func TestDeleteUserWithFailedIdentityBackend(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedUser("u1", true)
	f.seedUser("u2", false)
	svc := NewService(Dependencies{
		Profiles: f.profiles,
		Identity: ports.FailedBackend(errors.New("discovery failed")),
	})

	if _, err := svc.DeleteUser(context.Background(), adminSession("u1"), "u2"); !errors.Is(err, domain.ErrIdentityUnavailable) {
		t.Fatalf("expected identity unavailable, got %v", err)
	}
	if status := svc.IdentityStatus(); status.Ready || status.Reason == "" {
		t.Fatalf("expected not-ready status, got %+v", status)
	}
}

func TestDeleteUserRestoresAdministratorWhenIdentityDeleteFails(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.seedUser("u1", true)
	f.seedUser("u2", true)
	f.provider.deleteErr = errors.New("provider unavailable")

	if _, err := f.service.DeleteUser(ctx, adminSession("u1"), "u2"); err == nil {
		t.Fatalf("expected identity failure")
	}
	profile, err := f.profiles.GetByID(ctx, "u2")
	if err != nil {
		t.Fatalf("get profile failed: %v", err)
	}
	if !profile.IsAdmin {
		t.Fatalf("administrator flag must be restored after a failed identity delete")
	}
	if admins, _ := f.profiles.CountAdmins(ctx); admins != 2 {
		t.Fatalf("expected two administrators, got %d", admins)
	}
	if len(f.alerts.Alerts()) != 0 {
		t.Fatalf("no alert expected when the flag is restored")
	}
}

func TestDeleteUserConcurrentAdministratorsKeepOne(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.seedUser("a1", true)
	f.seedUser("a2", true)

	// Hold each identity delete until both callers arrive, or briefly when
	// only one gets that far.
	var (
		mu       sync.Mutex
		arrivals int
		release  = make(chan struct{})
	)
	f.provider.beforeDelete = func() {
		mu.Lock()
		arrivals++
		if arrivals == 2 {
			close(release)
		}
		mu.Unlock()
		select {
		case <-release:
		case <-time.After(200 * time.Millisecond):
		}
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	pairs := [][2]string{{"a1", "a2"}, {"a2", "a1"}}
	for i, pair := range pairs {
		wg.Add(1)
		go func(i int, actor, target string) {
			defer wg.Done()
			_, errs[i] = f.service.DeleteUser(ctx, adminSession(actor), target)
		}(i, pair[0], pair[1])
	}
	wg.Wait()

	succeeded, rejected := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrSoleAdministrator):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 || rejected != 1 {
		t.Fatalf("expected one deletion and one rejection, got %d/%d", succeeded, rejected)
	}
	admins, err := f.profiles.CountAdmins(ctx)
	if err != nil {
		t.Fatalf("count admins failed: %v", err)
	}
	if admins != 1 {
		t.Fatalf("expected exactly one administrator, got %d", admins)
	}
	if ids := f.profiles.IDs(); len(ids) != 1 {
		t.Fatalf("expected one remaining profile, got %v", ids)
	}
}
