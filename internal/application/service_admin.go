package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/viralforge/storefront-identity/internal/domain"
	"github.com/viralforge/storefront-identity/internal/ports"
)

// ToggleAdmin flips the administrator flag of targetID on behalf of caller.
// The administrator count and the write share one store transaction, so two
// concurrent demotions cannot both pass the sole-administrator check.
func (s *Service) ToggleAdmin(ctx context.Context, caller domain.SessionView, targetID string) (domain.Profile, error) {
	if !domain.Authorize(caller, domain.RoleAdministrator) {
		return domain.Profile{}, fmt.Errorf("%w: administrator role required", domain.ErrUnauthorized)
	}
	targetID, err := normalizeTargetID(targetID)
	if err != nil {
		return domain.Profile{}, err
	}

	now := s.nowFn()
	var updated domain.Profile
	err = s.profiles.WithinAdminTx(ctx, func(tx ports.ProfileAdminTx) error {
		admins, err := tx.LockAdministrators(ctx)
		if err != nil {
			return fmt.Errorf("count administrators: %w", err)
		}
		target, err := tx.GetForUpdate(ctx, targetID)
		if err != nil {
			return err
		}
		if err := domain.EnsureAdministratorRetained(target, admins); err != nil {
			return err
		}
		updated, err = tx.SetAdmin(ctx, targetID, !target.IsAdmin, now)
		if err != nil {
			return fmt.Errorf("set admin flag: %w", err)
		}
		event, err := newOutboxEvent(EventTypeAdminToggled, targetID, adminToggledData{
			SubjectID: targetID,
			IsAdmin:   updated.IsAdmin,
			ActorID:   caller.ID,
		}, now)
		if err != nil {
			return err
		}
		return tx.Enqueue(ctx, event)
	})
	if err != nil {
		return domain.Profile{}, err
	}

	s.notifySubject(ctx, targetID, ports.IdentityChangeProfileUpdated)
	slog.Default().InfoContext(ctx, "administrator flag toggled",
		"module", "application.admin",
		"layer", "application",
		"operation", "toggle_admin",
		"outcome", "success",
		"actor_id", caller.ID,
		"subject_id", targetID,
		"is_admin", updated.IsAdmin,
	)
	return updated, nil
}

// GetProfile returns a profile to an administrator or to its owner.
func (s *Service) GetProfile(ctx context.Context, caller domain.SessionView, targetID string) (domain.Profile, error) {
	targetID, err := normalizeTargetID(targetID)
	if err != nil {
		return domain.Profile{}, err
	}
	self := domain.Authorize(caller, domain.RoleAuthenticated) && caller.ID == targetID
	if !self && !domain.Authorize(caller, domain.RoleAdministrator) {
		return domain.Profile{}, fmt.Errorf("%w: administrator role required", domain.ErrUnauthorized)
	}
	return s.profiles.GetByID(ctx, targetID)
}
