package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/viralforge/storefront-identity/internal/domain"
)

const (
	// EventTypeIdentityRegistered is emitted after an identity and its profile exist.
	EventTypeIdentityRegistered = "identity.registered"
	// EventTypeIdentityDeleted is emitted once the provider no longer holds the identity.
	EventTypeIdentityDeleted = "identity.deleted"
	// EventTypeAdminToggled is written in the same transaction as the flag change.
	EventTypeAdminToggled = "profile.admin_toggled"
)

type identityRegisteredData struct {
	SubjectID   string `json:"subject_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

type identityDeletedData struct {
	SubjectID string `json:"subject_id"`
	ActorID   string `json:"actor_id,omitempty"`
}

type adminToggledData struct {
	SubjectID string `json:"subject_id"`
	IsAdmin   bool   `json:"is_admin"`
	ActorID   string `json:"actor_id"`
}

type identityRegisteredEvent struct {
	EventID string                 `json:"event_id"`
	Data    identityRegisteredData `json:"data"`
}

type identityDeletedEvent struct {
	EventID string              `json:"event_id"`
	Data    identityDeletedData `json:"data"`
}

// HandleIdentityDeleted removes a profile left behind by an identity deletion.
// Redelivery is harmless: an absent profile is success.
func (s *Service) HandleIdentityDeleted(ctx context.Context, payload []byte) error {
	var evt identityDeletedEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return fmt.Errorf("%w: invalid %s payload", domain.ErrInvalidInput, EventTypeIdentityDeleted)
	}
	subjectID, err := normalizeTargetID(evt.Data.SubjectID)
	if err != nil {
		return err
	}
	if err := s.profiles.Delete(ctx, subjectID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("delete orphaned profile: %w", err)
	}
	s.invalidateSession(ctx, subjectID)
	slog.Default().InfoContext(ctx, "orphaned profile removed",
		"module", "application.events",
		"layer", "application",
		"operation", "handle_identity_deleted",
		"outcome", "success",
		"event_id", evt.EventID,
		"subject_id", subjectID,
	)
	return nil
}

// HandleIdentityRegistered provisions the profile for an identity registered
// outside this service. An existing profile is left untouched.
func (s *Service) HandleIdentityRegistered(ctx context.Context, payload []byte) error {
	var evt identityRegisteredEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return fmt.Errorf("%w: invalid %s payload", domain.ErrInvalidInput, EventTypeIdentityRegistered)
	}
	subjectID, err := normalizeTargetID(evt.Data.SubjectID)
	if err != nil {
		return err
	}
	email, err := domain.NormalizeEmail(evt.Data.Email)
	if err != nil {
		return err
	}
	profile, created, err := s.provisionProfile(ctx, domain.Identity{
		SubjectID:   subjectID,
		Email:       email,
		DisplayName: evt.Data.DisplayName,
	})
	if err != nil {
		return err
	}
	if created {
		slog.Default().InfoContext(ctx, "profile provisioned from registration event",
			"module", "application.events",
			"layer", "application",
			"operation", "handle_identity_registered",
			"outcome", "success",
			"event_id", evt.EventID,
			"subject_id", profile.ID,
			"is_admin", profile.IsAdmin,
		)
	}
	return nil
}
