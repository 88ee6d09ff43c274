package memory

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/viralforge/storefront-identity/internal/domain"
	"github.com/viralforge/storefront-identity/internal/ports"
)

// ProfileStore keeps profiles in process. WithinAdminTx holds the store lock
// for the whole callback and applies writes only when it returns nil.
type ProfileStore struct {
	mu       sync.Mutex
	profiles map[string]domain.Profile
	outbox   *OutboxStore
}

func NewProfileStore(outbox *OutboxStore) *ProfileStore {
	return &ProfileStore{
		profiles: make(map[string]domain.Profile),
		outbox:   outbox,
	}
}

func (s *ProfileStore) Create(_ context.Context, params ports.CreateProfileParams) (domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[params.ID]; ok {
		return domain.Profile{}, fmt.Errorf("%w: profile %s already exists", domain.ErrConflict, params.ID)
	}
	profile := domain.Profile{
		ID:        params.ID,
		Name:      params.Name,
		Email:     params.Email,
		IsAdmin:   params.IsAdmin,
		CreatedAt: params.CreatedAt,
		UpdatedAt: params.CreatedAt,
	}
	s.profiles[params.ID] = profile
	return profile, nil
}

func (s *ProfileStore) GetByID(_ context.Context, id string) (domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	profile, ok := s.profiles[id]
	if !ok {
		return domain.Profile{}, domain.ErrNotFound
	}
	return profile, nil
}

func (s *ProfileStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.profiles, id)
	return nil
}

func (s *ProfileStore) CountAdmins(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return countAdmins(s.profiles), nil
}

func (s *ProfileStore) WithinAdminTx(ctx context.Context, fn func(tx ports.ProfileAdminTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &profileTx{profiles: maps.Clone(s.profiles)}
	if err := fn(tx); err != nil {
		return err
	}
	if len(tx.events) > 0 && s.outbox == nil {
		return fmt.Errorf("profile store has no outbox")
	}
	s.profiles = tx.profiles
	for _, event := range tx.events {
		if err := s.outbox.Enqueue(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// Put stores profile as is. Used to seed fixtures.
func (s *ProfileStore) Put(profile domain.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profile.ID] = profile
}

// IDs returns every stored profile id in sorted order.
func (s *ProfileStore) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.profiles))
	for id := range s.profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type profileTx struct {
	profiles map[string]domain.Profile
	events   []ports.OutboxEvent
}

func (t *profileTx) LockAdministrators(_ context.Context) (int64, error) {
	return countAdmins(t.profiles), nil
}

func (t *profileTx) GetForUpdate(_ context.Context, id string) (domain.Profile, error) {
	profile, ok := t.profiles[id]
	if !ok {
		return domain.Profile{}, domain.ErrNotFound
	}
	return profile, nil
}

func (t *profileTx) SetAdmin(_ context.Context, id string, isAdmin bool, updatedAt time.Time) (domain.Profile, error) {
	profile, ok := t.profiles[id]
	if !ok {
		return domain.Profile{}, domain.ErrNotFound
	}
	profile.IsAdmin = isAdmin
	profile.UpdatedAt = updatedAt
	t.profiles[id] = profile
	return profile, nil
}

func (t *profileTx) Enqueue(_ context.Context, event ports.OutboxEvent) error {
	t.events = append(t.events, event)
	return nil
}

func countAdmins(profiles map[string]domain.Profile) int64 {
	var n int64
	for _, p := range profiles {
		if p.IsAdmin {
			n++
		}
	}
	return n
}
