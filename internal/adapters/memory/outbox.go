package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/storefront-identity/internal/domain"
	"github.com/viralforge/storefront-identity/internal/ports"
)

type outboxRow struct {
	record     ports.OutboxRecord
	claimToken string
	claimUntil time.Time
}

// OutboxStore implements the outbox claim contract in process.
type OutboxStore struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*outboxRow
}

func NewOutboxStore() *OutboxStore {
	return &OutboxStore{rows: make(map[uuid.UUID]*outboxRow)}
}

func (s *OutboxStore) Enqueue(_ context.Context, event ports.OutboxEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[event.EventID]; ok {
		return nil
	}
	s.rows[event.EventID] = &outboxRow{record: ports.OutboxRecord{
		OutboxID:     event.EventID,
		EventType:    event.EventType,
		PartitionKey: event.PartitionKey,
		Payload:      append([]byte(nil), event.Payload...),
		CreatedAt:    event.OccurredAt,
	}}
	return nil
}

func (s *OutboxStore) ClaimUnpublished(_ context.Context, limit int, claimToken string, claimUntil time.Time) ([]ports.OutboxRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	now := time.Now().UTC()
	candidates := make([]*outboxRow, 0, len(s.rows))
	for _, row := range s.rows {
		if row.record.PublishedAt != nil || row.record.DeadLetteredAt != nil {
			continue
		}
		if row.claimToken != "" && row.claimUntil.After(now) {
			continue
		}
		candidates = append(candidates, row)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].record.CreatedAt.Before(candidates[j].record.CreatedAt)
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]ports.OutboxRecord, 0, len(candidates))
	for _, row := range candidates {
		row.claimToken = claimToken
		row.claimUntil = claimUntil
		out = append(out, row.record)
	}
	return out, nil
}

func (s *OutboxStore) MarkPublished(_ context.Context, outboxID uuid.UUID, claimToken string, at time.Time) error {
	return s.update(outboxID, claimToken, func(r *ports.OutboxRecord) {
		r.PublishedAt = &at
	})
}

func (s *OutboxStore) MarkFailed(_ context.Context, outboxID uuid.UUID, claimToken, errMsg string, _ time.Time) error {
	return s.update(outboxID, claimToken, func(r *ports.OutboxRecord) {
		r.RetryCount++
		r.LastError = &errMsg
	})
}

func (s *OutboxStore) MarkDeadLettered(_ context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error {
	return s.update(outboxID, claimToken, func(r *ports.OutboxRecord) {
		r.RetryCount++
		r.LastError = &errMsg
		r.DeadLetteredAt = &at
	})
}

func (s *OutboxStore) update(outboxID uuid.UUID, claimToken string, apply func(*ports.OutboxRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[outboxID]
	if !ok || row.claimToken != claimToken {
		return domain.ErrNotFound
	}
	apply(&row.record)
	row.claimToken = ""
	row.claimUntil = time.Time{}
	return nil
}

// Records returns a snapshot of every row ordered by creation time.
func (s *OutboxStore) Records() []ports.OutboxRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ports.OutboxRecord, 0, len(s.rows))
	for _, row := range s.rows {
		out = append(out, row.record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
