package memory

import (
	"context"
	"sync"
	"time"

	"github.com/viralforge/storefront-identity/internal/domain"
)

type expiring[T any] struct {
	value     T
	expiresAt time.Time
}

func (e expiring[T]) live(now time.Time) bool {
	return e.expiresAt.IsZero() || now.Before(e.expiresAt)
}

// SessionCache is a TTL map of authenticated session views by subject.
type SessionCache struct {
	mu    sync.Mutex
	views map[string]expiring[domain.SessionView]
	now   func() time.Time
}

func NewSessionCache() *SessionCache {
	return &SessionCache{
		views: make(map[string]expiring[domain.SessionView]),
		now:   time.Now,
	}
}

func (c *SessionCache) Get(_ context.Context, subjectID string) (*domain.SessionView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.views[subjectID]
	if !ok {
		return nil, nil
	}
	if !entry.live(c.now()) {
		delete(c.views, subjectID)
		return nil, nil
	}
	view := entry.value
	return &view, nil
}

func (c *SessionCache) Set(_ context.Context, view domain.SessionView, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.now().Add(ttl)
	}
	c.views[view.ID] = expiring[domain.SessionView]{value: view, expiresAt: expiresAt}
	return nil
}

func (c *SessionCache) Invalidate(_ context.Context, subjectID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.views, subjectID)
	return nil
}

// RevocationStore remembers revoked token fingerprints until their TTL passes.
type RevocationStore struct {
	mu      sync.Mutex
	revoked map[string]expiring[struct{}]
	now     func() time.Time
}

func NewRevocationStore() *RevocationStore {
	return &RevocationStore{
		revoked: make(map[string]expiring[struct{}]),
		now:     time.Now,
	}
}

func (s *RevocationStore) Revoke(_ context.Context, tokenID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = s.now().Add(ttl)
	}
	s.revoked[tokenID] = expiring[struct{}]{expiresAt: expiresAt}
	return nil
}

func (s *RevocationStore) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.revoked[tokenID]
	if !ok {
		return false, nil
	}
	if !entry.live(s.now()) {
		delete(s.revoked, tokenID)
		return false, nil
	}
	return true, nil
}
