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

// DeleteUser removes targetID from the identity provider and then from the
// profile store. The two systems share no transaction. Identity goes first: a
// profile without an identity is inert, the reverse would force every sign-in
// through corrective sign-out.
//
// A second call after full success returns DeletionOutcomeAlreadyDeleted. A
// call after a partial failure finishes the profile cleanup.
func (s *Service) DeleteUser(ctx context.Context, caller domain.SessionView, targetID string) (domain.DeletionReceipt, error) {
	if self := strings.TrimSpace(caller.ID); self != "" && self == strings.TrimSpace(targetID) {
		return domain.DeletionReceipt{}, domain.ErrSelfDeletionForbidden
	}
	targetID, err := normalizeTargetID(targetID)
	if err != nil {
		return domain.DeletionReceipt{}, err
	}
	if !domain.Authorize(caller, domain.RoleAdministrator) {
		return domain.DeletionReceipt{}, fmt.Errorf("%w: administrator role required", domain.ErrUnauthorized)
	}
	provider, err := s.identity.Provider()
	if err != nil {
		return domain.DeletionReceipt{}, err
	}

	guard, err := s.releaseDeletionTarget(ctx, targetID)
	if err != nil {
		return domain.DeletionReceipt{}, err
	}

	receipt := domain.DeletionReceipt{TargetID: targetID}
	switch err := provider.DeleteIdentity(ctx, targetID); {
	case err == nil:
		receipt.IdentityDeleted = true
	case errors.Is(err, domain.ErrNotFound):
		// Already gone, most likely a retried request; continue as cleanup.
	default:
		if guard.demoted {
			s.restoreAdministrator(ctx, targetID)
		}
		return domain.DeletionReceipt{}, fmt.Errorf("delete identity: %w", err)
	}

	if receipt.IdentityDeleted {
		s.enqueueBestEffort(ctx, EventTypeIdentityDeleted, targetID, identityDeletedData{SubjectID: targetID, ActorID: caller.ID})
		s.notifySubject(ctx, targetID, ports.IdentityChangeDeleted)
	}

	if guard.profileExists {
		deleted, err := s.deleteProfileWithCleanup(ctx, targetID)
		if err != nil {
			partial := fmt.Errorf("%w: identity %s removed but profile remains: %w", domain.ErrPartialDeletion, targetID, err)
			s.raiseAlert(ctx, ports.AlertKindPartialDeletion, targetID, partial)
			receipt.CompletedAt = s.nowFn()
			return receipt, partial
		}
		receipt.ProfileDeleted = deleted
	}

	receipt.CompletedAt = s.nowFn()
	switch {
	case receipt.IdentityDeleted:
		receipt.Outcome = domain.DeletionOutcomeDeleted
	case receipt.ProfileDeleted:
		receipt.Outcome = domain.DeletionOutcomeOrphanCleaned
	default:
		receipt.Outcome = domain.DeletionOutcomeAlreadyDeleted
	}
	slog.Default().InfoContext(ctx, "user deletion completed",
		"module", "application.deletion",
		"layer", "application",
		"operation", "delete_user",
		"outcome", "success",
		"actor_id", caller.ID,
		"subject_id", targetID,
		"deletion_outcome", string(receipt.Outcome),
	)
	return receipt, nil
}

type deletionGuard struct {
	profileExists bool
	demoted       bool
}

// releaseDeletionTarget applies the sole-administrator rule and, for an
// administrator target, drops the flag in the same locked transaction. A
// concurrent deletion of another administrator then counts one fewer.
func (s *Service) releaseDeletionTarget(ctx context.Context, targetID string) (deletionGuard, error) {
	guard := deletionGuard{profileExists: true}
	err := s.profiles.WithinAdminTx(ctx, func(tx ports.ProfileAdminTx) error {
		admins, err := tx.LockAdministrators(ctx)
		if err != nil {
			return fmt.Errorf("count administrators: %w", err)
		}
		target, err := tx.GetForUpdate(ctx, targetID)
		if errors.Is(err, domain.ErrNotFound) {
			guard.profileExists = false
			return nil
		}
		if err != nil {
			return err
		}
		if err := domain.EnsureAdministratorRetained(target, admins); err != nil {
			return err
		}
		if !target.IsAdmin {
			return nil
		}
		if _, err := tx.SetAdmin(ctx, targetID, false, s.nowFn()); err != nil {
			return fmt.Errorf("release administrator flag: %w", err)
		}
		guard.demoted = true
		return nil
	})
	if err != nil {
		return deletionGuard{}, err
	}
	return guard, nil
}

// restoreAdministrator gives the flag back after the identity provider refused
// the deletion.
func (s *Service) restoreAdministrator(ctx context.Context, targetID string) {
	ctx = context.WithoutCancel(ctx)
	err := s.profiles.WithinAdminTx(ctx, func(tx ports.ProfileAdminTx) error {
		_, err := tx.SetAdmin(ctx, targetID, true, s.nowFn())
		return err
	})
	if err == nil {
		return
	}
	s.raiseAlert(ctx, ports.AlertKindAdministratorRestore, targetID,
		fmt.Errorf("identity deletion failed and administrator flag could not be restored: %w", err))
}

// deleteProfileWithCleanup deletes the profile, retrying a bounded number of
// times. It returns false when the profile was already absent.
func (s *Service) deleteProfileWithCleanup(ctx context.Context, targetID string) (bool, error) {
	var lastErr error
	for attempt := 0; attempt <= s.cfg.CleanupRetryAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepContext(ctx, s.cfg.CleanupRetryDelay); err != nil {
				return false, errors.Join(lastErr, err)
			}
		}
		err := s.profiles.Delete(ctx, targetID)
		if err == nil {
			return true, nil
		}
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		lastErr = err
		slog.Default().WarnContext(ctx, "profile delete failed",
			"module", "application.deletion",
			"layer", "application",
			"operation", "delete_profile",
			"outcome", "failure",
			"subject_id", targetID,
			"attempt", attempt+1,
			"error", err,
		)
	}
	return false, lastErr
}
