package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/viralforge/storefront-identity/internal/domain"
	"github.com/viralforge/storefront-identity/internal/ports"
)

// IdentityStore holds local-provider credentials.
type IdentityStore struct {
	mu        sync.RWMutex
	bySubject map[string]ports.IdentityCredentials
	byEmail   map[string]string
}

func NewIdentityStore() *IdentityStore {
	return &IdentityStore{
		bySubject: make(map[string]ports.IdentityCredentials),
		byEmail:   make(map[string]string),
	}
}

func (s *IdentityStore) Create(_ context.Context, record ports.IdentityCredentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[record.Identity.Email]; ok {
		return fmt.Errorf("%w: email already registered", domain.ErrConflict)
	}
	if _, ok := s.bySubject[record.Identity.SubjectID]; ok {
		return fmt.Errorf("%w: subject already exists", domain.ErrConflict)
	}
	s.bySubject[record.Identity.SubjectID] = record
	s.byEmail[record.Identity.Email] = record.Identity.SubjectID
	return nil
}

func (s *IdentityStore) GetByEmail(_ context.Context, email string) (ports.IdentityCredentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	subjectID, ok := s.byEmail[email]
	if !ok {
		return ports.IdentityCredentials{}, domain.ErrNotFound
	}
	return s.bySubject[subjectID], nil
}

func (s *IdentityStore) GetBySubject(_ context.Context, subjectID string) (ports.IdentityCredentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.bySubject[subjectID]
	if !ok {
		return ports.IdentityCredentials{}, domain.ErrNotFound
	}
	return record, nil
}

func (s *IdentityStore) Delete(_ context.Context, subjectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.bySubject[subjectID]
	if !ok {
		return domain.ErrNotFound
	}
	delete(s.bySubject, subjectID)
	delete(s.byEmail, record.Identity.Email)
	return nil
}
