package memory

import (
	"context"
	"sync"

	"github.com/viralforge/storefront-identity/internal/ports"
)

// ChangeBus fans identity changes out to in-process subscribers of a subject.
type ChangeBus struct {
	mu     sync.Mutex
	subs   map[string]map[*changeSub]struct{}
	buffer int
}

type changeSub struct {
	mu     sync.Mutex
	ch     chan ports.IdentityChange
	done   chan struct{}
	once   sync.Once
	closed bool
}

func NewChangeBus() *ChangeBus {
	return &ChangeBus{
		subs:   make(map[string]map[*changeSub]struct{}),
		buffer: 16,
	}
}

func (b *ChangeBus) Publish(ctx context.Context, change ports.IdentityChange) error {
	b.mu.Lock()
	targets := make([]*changeSub, 0, len(b.subs[change.SubjectID]))
	for sub := range b.subs[change.SubjectID] {
		targets = append(targets, sub)
	}
	b.mu.Unlock()

	for _, sub := range targets {
		if err := sub.deliver(ctx, change); err != nil {
			return err
		}
	}
	return nil
}

func (b *ChangeBus) Subscribe(ctx context.Context, subjectID string) (<-chan ports.IdentityChange, func(), error) {
	sub := &changeSub{
		ch:   make(chan ports.IdentityChange, b.buffer),
		done: make(chan struct{}),
	}
	b.mu.Lock()
	if b.subs[subjectID] == nil {
		b.subs[subjectID] = make(map[*changeSub]struct{})
	}
	b.subs[subjectID][sub] = struct{}{}
	b.mu.Unlock()

	stop := func() {
		sub.once.Do(func() {
			b.mu.Lock()
			delete(b.subs[subjectID], sub)
			if len(b.subs[subjectID]) == 0 {
				delete(b.subs, subjectID)
			}
			b.mu.Unlock()
			close(sub.done)
			sub.mu.Lock()
			sub.closed = true
			close(sub.ch)
			sub.mu.Unlock()
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			stop()
		case <-sub.done:
		}
	}()
	return sub.ch, stop, nil
}

// Subscribers reports how many live subscriptions exist for subjectID.
func (b *ChangeBus) Subscribers(subjectID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[subjectID])
}

func (s *changeSub) deliver(ctx context.Context, change ports.IdentityChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	select {
	case s.ch <- change:
		return nil
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
