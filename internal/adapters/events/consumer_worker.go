package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/storefront-identity/internal/domain"
	"github.com/viralforge/storefront-identity/internal/ports"
)

type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       string
	Payload   []byte
}

// Consumer hands out messages and records which ones are done. A message
// that is never committed is delivered again after a restart or rebalance.
type Consumer interface {
	Poll(ctx context.Context, max int) ([]Message, error)
	Commit(ctx context.Context, msgs ...Message) error
}

// HandlerFunc processes one message payload. Handlers must tolerate redelivery.
type HandlerFunc func(ctx context.Context, payload []byte) error

type NoopConsumer struct{}

func NewNoopConsumer() *NoopConsumer {
	return &NoopConsumer{}
}

func (NoopConsumer) Poll(context.Context, int) ([]Message, error) {
	return nil, nil
}

func (NoopConsumer) Commit(context.Context, ...Message) error {
	return nil
}

type ConsumerWorkerConfig struct {
	PollInterval time.Duration
	// Attempts bounds handler calls per message before it is escalated.
	Attempts   int
	RetryDelay time.Duration
	Alerts     ports.OperatorAlerter
}

// ConsumerWorker polls a consumer and dispatches messages by topic. A message
// is committed once its handler succeeds or once its failure has been handed
// to the operator alerter; until then it stays pending and is retried first.
type ConsumerWorker struct {
	logger     *slog.Logger
	consumer   Consumer
	handlers   map[string]HandlerFunc
	interval   time.Duration
	attempts   int
	retryDelay time.Duration
	alerts     ports.OperatorAlerter
	nowFn      func() time.Time

	pending []Message
}

// ConsumeResult summarizes one ProcessOnce pass.
type ConsumeResult struct {
	Handled   int
	Escalated int
	Skipped   int
	Pending   int
}

func NewConsumerWorker(logger *slog.Logger, consumer Consumer, handlers map[string]HandlerFunc, cfg ConsumerWorkerConfig) *ConsumerWorker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsumerWorker{
		logger:     logger,
		consumer:   consumer,
		handlers:   handlers,
		interval:   cfg.PollInterval,
		attempts:   cfg.Attempts,
		retryDelay: cfg.RetryDelay,
		alerts:     cfg.Alerts,
		nowFn:      func() time.Time { return time.Now().UTC() },
	}
}

// Topics lists the topics the worker has handlers for.
func (w *ConsumerWorker) Topics() []string {
	out := make([]string, 0, len(w.handlers))
	for topic := range w.handlers {
		out = append(out, topic)
	}
	return out
}

func (w *ConsumerWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.ProcessOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.ErrorContext(ctx, "consumer iteration failed",
				"module", "events.consumer_worker",
				"layer", "adapter",
				"operation", "process_once",
				"outcome", "failure",
				"pending", len(w.pending),
				"error", err,
			)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ProcessOnce finishes pending messages, or polls a new batch when none are
// pending, and commits every message it settled.
func (w *ConsumerWorker) ProcessOnce(ctx context.Context) (ConsumeResult, error) {
	batch := w.pending
	w.pending = nil
	if len(batch) == 0 {
		msgs, err := w.consumer.Poll(ctx, 50)
		if err != nil {
			return ConsumeResult{}, err
		}
		batch = msgs
	}

	var (
		res     ConsumeResult
		settled []Message
		stopErr error
	)
	for i, msg := range batch {
		handler, ok := w.handlers[msg.Topic]
		if !ok {
			w.logger.DebugContext(ctx, "ignoring message for unhandled topic",
				"module", "events.consumer_worker",
				"layer", "adapter",
				"operation", "dispatch",
				"outcome", "skipped",
				"topic", msg.Topic,
			)
			res.Skipped++
			settled = append(settled, msg)
			continue
		}
		err := w.handle(ctx, handler, msg)
		if err == nil {
			res.Handled++
			settled = append(settled, msg)
			continue
		}
		if ctx.Err() == nil {
			err = w.escalate(ctx, msg, err)
			if err == nil {
				res.Escalated++
				settled = append(settled, msg)
				continue
			}
		}
		// Keep this message and everything after it for the next pass.
		w.pending = batch[i:]
		stopErr = err
		break
	}
	res.Pending = len(w.pending)

	if len(settled) > 0 {
		if err := w.consumer.Commit(ctx, settled...); err != nil {
			return res, errors.Join(stopErr, fmt.Errorf("commit consumed messages: %w", err))
		}
	}
	return res, stopErr
}

func (w *ConsumerWorker) handle(ctx context.Context, handler HandlerFunc, msg Message) error {
	var err error
	for attempt := 1; attempt <= w.attempts; attempt++ {
		err = handler(ctx, msg.Payload)
		if err == nil {
			return nil
		}
		// A malformed payload fails the same way every time.
		if errors.Is(err, domain.ErrInvalidInput) || attempt == w.attempts {
			break
		}
		w.logger.WarnContext(ctx, "message handler failed; retrying",
			"module", "events.consumer_worker",
			"layer", "adapter",
			"operation", "dispatch",
			"outcome", "retry",
			"topic", msg.Topic,
			"key", msg.Key,
			"attempt", attempt,
			"error", err,
		)
		timer := time.NewTimer(w.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}
	return err
}

// escalate reports a message whose handler gave up. It returns nil once an
// operator has been told, after which the message may be committed.
func (w *ConsumerWorker) escalate(ctx context.Context, msg Message, cause error) error {
	alert := ports.OperatorAlert{
		AlertID:   uuid.NewString(),
		Kind:      ports.AlertKindEventHandlerFailure,
		SubjectID: msg.Key,
		Detail:    fmt.Sprintf("topic %s partition %d offset %d: %v", msg.Topic, msg.Partition, msg.Offset, cause),
		RaisedAt:  w.nowFn(),
	}
	w.logger.ErrorContext(ctx, "message handler gave up",
		"module", "events.consumer_worker",
		"layer", "adapter",
		"operation", "dispatch",
		"outcome", "failure",
		"topic", msg.Topic,
		"partition", msg.Partition,
		"offset", msg.Offset,
		"key", msg.Key,
		"alert_id", alert.AlertID,
		"error", cause,
	)
	if w.alerts == nil {
		return fmt.Errorf("no operator alerter for failed %s message: %w", msg.Topic, cause)
	}
	if err := w.alerts.Raise(ctx, alert); err != nil {
		return fmt.Errorf("raise handler failure alert: %w", errors.Join(cause, err))
	}
	return nil
}
