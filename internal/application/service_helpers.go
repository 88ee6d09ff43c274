package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/storefront-identity/internal/domain"
	"github.com/viralforge/storefront-identity/internal/ports"
)

type eventEnvelope struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
}

func newOutboxEvent(eventType, partitionKey string, data any, now time.Time) (ports.OutboxEvent, error) {
	eventID := uuid.New()
	payload, err := json.Marshal(eventEnvelope{
		EventID:    eventID.String(),
		EventType:  eventType,
		OccurredAt: now,
		Data:       data,
	})
	if err != nil {
		return ports.OutboxEvent{}, fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	return ports.OutboxEvent{
		EventID:      eventID,
		EventType:    eventType,
		PartitionKey: partitionKey,
		Payload:      payload,
		OccurredAt:   now,
	}, nil
}

// enqueueBestEffort writes an outbox event outside any transaction. Failures
// are logged; the caller's primary mutation has already happened.
func (s *Service) enqueueBestEffort(ctx context.Context, eventType, subjectID string, data any) {
	if s.outbox == nil {
		return
	}
	event, err := newOutboxEvent(eventType, subjectID, data, s.nowFn())
	if err == nil {
		err = s.outbox.Enqueue(ctx, event)
	}
	if err != nil {
		slog.Default().WarnContext(ctx, "failed to enqueue outbox event",
			"module", "application.events",
			"layer", "application",
			"operation", "enqueue_outbox",
			"outcome", "failure",
			"event_type", eventType,
			"subject_id", subjectID,
			"error", err,
		)
	}
}

// notifySubject drops the cached view and pushes a change to live sessions.
func (s *Service) notifySubject(ctx context.Context, subjectID string, kind ports.IdentityChangeKind) {
	s.invalidateSession(ctx, subjectID)
	if s.changes != nil {
		if err := s.changes.Publish(ctx, ports.IdentityChange{SubjectID: subjectID, Kind: kind, At: s.nowFn()}); err != nil {
			slog.Default().WarnContext(ctx, "failed to publish identity change",
				"module", "application.session",
				"layer", "application",
				"operation", "publish_identity_change",
				"outcome", "failure",
				"subject_id", subjectID,
				"change_kind", string(kind),
				"error", err,
			)
		}
	}
}

func (s *Service) invalidateSession(ctx context.Context, subjectID string) {
	if s.sessions != nil {
		if err := s.sessions.Invalidate(ctx, subjectID); err != nil {
			slog.Default().WarnContext(ctx, "failed to invalidate session cache",
				"module", "application.session",
				"layer", "application",
				"operation", "invalidate_session",
				"outcome", "failure",
				"subject_id", subjectID,
				"error", err,
			)
		}
	}
}

func (s *Service) cachedSession(ctx context.Context, subjectID string) *domain.SessionView {
	if s.sessions == nil || s.cfg.SessionCacheTTL <= 0 {
		return nil
	}
	view, err := s.sessions.Get(ctx, subjectID)
	if err != nil {
		slog.Default().WarnContext(ctx, "session cache unavailable",
			"module", "application.session",
			"layer", "application",
			"operation", "get_cached_session",
			"outcome", "failure",
			"error", err,
		)
		return nil
	}
	if view == nil || view.Lifecycle != domain.LifecycleAuthenticated {
		return nil
	}
	return view
}

func (s *Service) cacheSession(ctx context.Context, view domain.SessionView) {
	if s.sessions == nil || s.cfg.SessionCacheTTL <= 0 {
		return
	}
	if err := s.sessions.Set(ctx, view, s.cfg.SessionCacheTTL); err != nil {
		slog.Default().WarnContext(ctx, "failed to cache session view",
			"module", "application.session",
			"layer", "application",
			"operation", "cache_session",
			"outcome", "failure",
			"error", err,
		)
	}
}

func (s *Service) raiseAlert(ctx context.Context, kind, subjectID string, cause error) {
	alert := ports.OperatorAlert{
		AlertID:   uuid.NewString(),
		Kind:      kind,
		SubjectID: subjectID,
		Detail:    cause.Error(),
		RaisedAt:  s.nowFn(),
	}
	slog.Default().ErrorContext(ctx, "operator attention required",
		"module", "application.alerts",
		"layer", "application",
		"operation", "raise_alert",
		"outcome", "failure",
		"alert_id", alert.AlertID,
		"alert_kind", kind,
		"subject_id", subjectID,
		"error", cause,
	)
	if s.alerts == nil {
		return
	}
	if err := s.alerts.Raise(ctx, alert); err != nil {
		slog.Default().ErrorContext(ctx, "failed to deliver operator alert",
			"module", "application.alerts",
			"layer", "application",
			"operation", "raise_alert",
			"outcome", "failure",
			"alert_id", alert.AlertID,
			"alert_kind", kind,
			"subject_id", subjectID,
			"error", err,
		)
	}
}

func normalizeTargetID(raw string) (string, error) {
	id := strings.TrimSpace(raw)
	if err := domain.ValidateSubjectID(id); err != nil {
		return "", err
	}
	return id, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
