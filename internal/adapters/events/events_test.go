package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/viralforge/storefront-identity/internal/adapters/memory"
	"github.com/viralforge/storefront-identity/internal/domain"
	"github.com/viralforge/storefront-identity/internal/ports"
)

type recordingPublisher struct {
	mu       sync.Mutex
	fail     error
	messages []publishedMessage
}

type publishedMessage struct {
	eventType string
	payload   []byte
	key       string
}

func (p *recordingPublisher) Publish(_ context.Context, eventType string, payload []byte, partitionKey string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.messages = append(p.messages, publishedMessage{eventType: eventType, payload: payload, key: partitionKey})
	return nil
}

func enqueue(t *testing.T, outbox *memory.OutboxStore, eventType, key string, at time.Time) {
	t.Helper()
	require.NoError(t, outbox.Enqueue(context.Background(), ports.OutboxEvent{
		EventID:      uuid.New(),
		EventType:    eventType,
		PartitionKey: key,
		Payload:      []byte(`{}`),
		OccurredAt:   at,
	}))
}

func TestOutboxWorkerPublishesInOrder(t *testing.T) {
	outbox := memory.NewOutboxStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	enqueue(t, outbox, "identity.registered", "u1", base)
	enqueue(t, outbox, "identity.deleted", "u1", base.Add(time.Second))

	pub := &recordingPublisher{}
	w := NewOutboxWorker(nil, outbox, pub, time.Second, 10, time.Minute, 3)

	res, err := w.ProcessOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, BatchResult{Claimed: 2, Published: 2}, res)
	require.Len(t, pub.messages, 2)
	require.Equal(t, "identity.registered", pub.messages[0].eventType)
	require.Equal(t, "u1", pub.messages[0].key)

	res, err = w.ProcessOnce(context.Background())
	require.NoError(t, err)
	require.Zero(t, res.Claimed)
}

func TestOutboxWorkerDeadLettersAfterMaxRetries(t *testing.T) {
	outbox := memory.NewOutboxStore()
	enqueue(t, outbox, "identity.deleted", "u2", time.Now())

	pub := &recordingPublisher{fail: errors.New("broker down")}
	w := NewOutboxWorker(nil, outbox, pub, time.Second, 10, time.Minute, 2)

	res, err := w.ProcessOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.Failed)
	require.Zero(t, res.DeadLettered)

	res, err = w.ProcessOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.DeadLettered)

	records := outbox.Records()
	require.Len(t, records, 1)
	require.NotNil(t, records[0].DeadLetteredAt)
	require.Equal(t, 2, records[0].RetryCount)

	res, err = w.ProcessOnce(context.Background())
	require.NoError(t, err)
	require.Zero(t, res.Claimed)
}

type fakeConsumer struct {
	batches   [][]Message
	committed []Message
	commitErr error
}

func (c *fakeConsumer) Poll(context.Context, int) ([]Message, error) {
	if len(c.batches) == 0 {
		return nil, nil
	}
	next := c.batches[0]
	c.batches = c.batches[1:]
	return next, nil
}

func (c *fakeConsumer) Commit(_ context.Context, msgs ...Message) error {
	if c.commitErr != nil {
		return c.commitErr
	}
	c.committed = append(c.committed, msgs...)
	return nil
}

func (c *fakeConsumer) committedOffsets() []int64 {
	out := make([]int64, 0, len(c.committed))
	for _, msg := range c.committed {
		out = append(out, msg.Offset)
	}
	return out
}

type recordingAlerter struct {
	fail   error
	alerts []ports.OperatorAlert
}

func (a *recordingAlerter) Raise(_ context.Context, alert ports.OperatorAlert) error {
	if a.fail != nil {
		return a.fail
	}
	a.alerts = append(a.alerts, alert)
	return nil
}

func TestConsumerWorkerDispatchesByTopic(t *testing.T) {
	var deleted, registered []string
	handlers := map[string]HandlerFunc{
		"identity.deleted": func(_ context.Context, payload []byte) error {
			deleted = append(deleted, string(payload))
			return nil
		},
		"identity.registered": func(_ context.Context, payload []byte) error {
			registered = append(registered, string(payload))
			return nil
		},
	}
	consumer := &fakeConsumer{batches: [][]Message{{
		{Topic: "identity.deleted", Offset: 1, Payload: []byte("a")},
		{Topic: "identity.registered", Offset: 2, Payload: []byte("b")},
		{Topic: "unrelated", Offset: 3, Payload: []byte("c")},
	}}}
	w := NewConsumerWorker(nil, consumer, handlers, ConsumerWorkerConfig{PollInterval: time.Second})

	res, err := w.ProcessOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, ConsumeResult{Handled: 2, Skipped: 1}, res)
	require.Equal(t, []string{"a"}, deleted)
	require.Equal(t, []string{"b"}, registered)
	require.Equal(t, []int64{1, 2, 3}, consumer.committedOffsets())
	require.ElementsMatch(t, []string{"identity.deleted", "identity.registered"}, w.Topics())
}

func TestConsumerWorkerRetriesThenEscalatesFailedHandler(t *testing.T) {
	calls := 0
	handlers := map[string]HandlerFunc{
		"identity.deleted": func(context.Context, []byte) error {
			calls++
			return errors.New("profile store unavailable")
		},
	}
	consumer := &fakeConsumer{batches: [][]Message{{
		{Topic: "identity.deleted", Partition: 2, Offset: 7, Key: "u2", Payload: []byte(`{}`)},
	}}}
	alerts := &recordingAlerter{}
	w := NewConsumerWorker(nil, consumer, handlers, ConsumerWorkerConfig{
		PollInterval: time.Second,
		Attempts:     3,
		RetryDelay:   time.Millisecond,
		Alerts:       alerts,
	})

	res, err := w.ProcessOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, calls)
	require.Equal(t, 1, res.Escalated)
	require.Len(t, alerts.alerts, 1)
	require.Equal(t, ports.AlertKindEventHandlerFailure, alerts.alerts[0].Kind)
	require.Equal(t, "u2", alerts.alerts[0].SubjectID)
	require.Contains(t, alerts.alerts[0].Detail, "profile store unavailable")
	require.Equal(t, []int64{7}, consumer.committedOffsets())
}

func TestConsumerWorkerKeepsMessageWhenAlertFails(t *testing.T) {
	failing := true
	var handled []string
	handlers := map[string]HandlerFunc{
		"identity.deleted": func(_ context.Context, payload []byte) error {
			if failing && string(payload) == "b" {
				return errors.New("profile store unavailable")
			}
			handled = append(handled, string(payload))
			return nil
		},
	}
	consumer := &fakeConsumer{batches: [][]Message{{
		{Topic: "identity.deleted", Offset: 1, Payload: []byte("a")},
		{Topic: "identity.deleted", Offset: 2, Payload: []byte("b")},
		{Topic: "identity.deleted", Offset: 3, Payload: []byte("c")},
	}}}
	alerts := &recordingAlerter{fail: errors.New("broker down")}
	w := NewConsumerWorker(nil, consumer, handlers, ConsumerWorkerConfig{PollInterval: time.Second, Alerts: alerts})

	res, err := w.ProcessOnce(context.Background())
	require.Error(t, err)
	require.Equal(t, 1, res.Handled)
	require.Equal(t, 2, res.Pending)
	require.Equal(t, []int64{1}, consumer.committedOffsets())

	// The store recovers; the pending messages are finished before polling again.
	failing = false
	res, err = w.ProcessOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, ConsumeResult{Handled: 2}, res)
	require.Equal(t, []string{"a", "b", "c"}, handled)
	require.Equal(t, []int64{1, 2, 3}, consumer.committedOffsets())
}

func TestConsumerWorkerDoesNotRetryMalformedPayload(t *testing.T) {
	calls := 0
	handlers := map[string]HandlerFunc{
		"identity.deleted": func(context.Context, []byte) error {
			calls++
			return fmt.Errorf("%w: invalid payload", domain.ErrInvalidInput)
		},
	}
	consumer := &fakeConsumer{batches: [][]Message{{{Topic: "identity.deleted", Offset: 4, Payload: []byte("junk")}}}}
	alerts := &recordingAlerter{}
	w := NewConsumerWorker(nil, consumer, handlers, ConsumerWorkerConfig{Attempts: 5, RetryDelay: time.Millisecond, Alerts: alerts})

	res, err := w.ProcessOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, calls)
	require.Equal(t, 1, res.Escalated)
	require.Len(t, alerts.alerts, 1)
	require.Equal(t, []int64{4}, consumer.committedOffsets())
}

func TestAlertPublisherSendsEnvelope(t *testing.T) {
	pub := &recordingPublisher{}
	alerts := NewAlertPublisher(pub)
	raisedAt := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, alerts.Raise(context.Background(), ports.OperatorAlert{
		AlertID:   "a1",
		Kind:      ports.AlertKindPartialDeletion,
		SubjectID: "u2",
		Detail:    "profile remains",
		RaisedAt:  raisedAt,
	}))
	require.Len(t, pub.messages, 1)
	msg := pub.messages[0]
	require.Equal(t, EventTypeOperatorAlert, msg.eventType)
	require.Equal(t, "u2", msg.key)

	var env alertEnvelope
	require.NoError(t, json.Unmarshal(msg.payload, &env))
	require.Equal(t, "a1", env.EventID)
	require.Equal(t, ports.AlertKindPartialDeletion, env.Data.Kind)
	require.Equal(t, raisedAt, env.OccurredAt)
}

func TestKafkaPublisherTopicRouting(t *testing.T) {
	_, err := NewKafkaPublisher(nil, nil)
	require.Error(t, err)

	p, err := NewKafkaPublisher([]string{"localhost:9092"}, map[string]string{"identity.deleted": "storefront.identity.deleted"})
	require.NoError(t, err)
	defer p.Close()
	require.Equal(t, "storefront.identity.deleted", p.topicFor("identity.deleted"))
	require.Equal(t, "identity.registered", p.topicFor("identity.registered"))
}

func TestKafkaConsumerValidatesConfig(t *testing.T) {
	_, err := NewKafkaConsumer([]string{"localhost:9092"}, "", []string{"t"})
	require.Error(t, err)
	_, err = NewKafkaConsumer([]string{"localhost:9092"}, "g", nil)
	require.Error(t, err)
}
