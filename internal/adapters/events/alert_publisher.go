package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/viralforge/storefront-identity/internal/ports"
)

const EventTypeOperatorAlert = "operator.alert"

type alertEnvelope struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       alertData `json:"data"`
}

type alertData struct {
	AlertID   string `json:"alert_id"`
	Kind      string `json:"kind"`
	SubjectID string `json:"subject_id"`
	Detail    string `json:"detail"`
}

// AlertPublisher sends operator alerts straight to the broker. Alerts are
// raised when the database is the thing that failed, so they skip the outbox.
type AlertPublisher struct {
	publisher ports.EventPublisher
}

func NewAlertPublisher(publisher ports.EventPublisher) *AlertPublisher {
	return &AlertPublisher{publisher: publisher}
}

func (p *AlertPublisher) Raise(ctx context.Context, alert ports.OperatorAlert) error {
	payload, err := json.Marshal(alertEnvelope{
		EventID:    alert.AlertID,
		EventType:  EventTypeOperatorAlert,
		OccurredAt: alert.RaisedAt,
		Data: alertData{
			AlertID:   alert.AlertID,
			Kind:      alert.Kind,
			SubjectID: alert.SubjectID,
			Detail:    alert.Detail,
		},
	})
	if err != nil {
		return fmt.Errorf("marshal operator alert: %w", err)
	}
	return p.publisher.Publish(ctx, EventTypeOperatorAlert, payload, alert.SubjectID)
}
