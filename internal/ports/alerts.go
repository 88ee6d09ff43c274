package ports

import (
	"context"
	"time"
)

const (
	AlertKindPartialDeletion      = "partial_deletion"
	AlertKindOrphanIdentity       = "orphan_identity"
	AlertKindAdministratorRestore = "administrator_restore"
	AlertKindEventHandlerFailure  = "event_handler_failure"
)

// OperatorAlert reports a data-integrity defect that needs a human.
type OperatorAlert struct {
	AlertID   string
	Kind      string
	SubjectID string
	Detail    string
	RaisedAt  time.Time
}

type OperatorAlerter interface {
	Raise(ctx context.Context, alert OperatorAlert) error
}
