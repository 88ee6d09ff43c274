package memory

import (
	"context"
	"sync"

	"github.com/viralforge/storefront-identity/internal/ports"
)

// AlertLog records operator alerts instead of delivering them.
type AlertLog struct {
	mu     sync.Mutex
	alerts []ports.OperatorAlert
}

func NewAlertLog() *AlertLog {
	return &AlertLog{}
}

func (l *AlertLog) Raise(_ context.Context, alert ports.OperatorAlert) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.alerts = append(l.alerts, alert)
	return nil
}

func (l *AlertLog) Alerts() []ports.OperatorAlert {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ports.OperatorAlert(nil), l.alerts...)
}
