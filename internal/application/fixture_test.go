package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/storefront-identity/internal/adapters/memory"
	"github.com/viralforge/storefront-identity/internal/domain"
	"github.com/viralforge/storefront-identity/internal/ports"
)

type fixture struct {
	service     *Service
	profiles    *faultyProfiles
	outbox      *memory.OutboxStore
	provider    *fakeProvider
	changes     *memory.ChangeBus
	sessions    *memory.SessionCache
	revocations *memory.RevocationStore
	alerts      *memory.AlertLog
}

func newFixture(t *testing.T, mutate ...func(*Config)) *fixture {
	t.Helper()
	outbox := memory.NewOutboxStore()
	f := &fixture{
		profiles:    &faultyProfiles{ProfileStore: memory.NewProfileStore(outbox)},
		outbox:      outbox,
		provider:    newFakeProvider(),
		changes:     memory.NewChangeBus(),
		sessions:    memory.NewSessionCache(),
		revocations: memory.NewRevocationStore(),
		alerts:      memory.NewAlertLog(),
	}
	cfg := Config{
		ResolveTimeout:       2 * time.Second,
		LookupRetryInitial:   time.Millisecond,
		LookupRetryMax:       5 * time.Millisecond,
		CleanupRetryAttempts: 2,
		CleanupRetryDelay:    time.Millisecond,
		SessionCacheTTL:      time.Minute,
		FirstUserAdmin:       true,
	}
	for _, fn := range mutate {
		fn(&cfg)
	}
	f.service = NewService(Dependencies{
		Config:      cfg,
		Profiles:    f.profiles,
		Outbox:      outbox,
		Identity:    ports.InitializedBackend(f.provider, f.provider, f.provider),
		Revocations: f.revocations,
		Sessions:    f.sessions,
		Changes:     f.changes,
		Alerts:      f.alerts,
	})
	return f
}

// seedUser creates a matching identity and profile and returns a bearer token for it.
func (f *fixture) seedUser(id string, isAdmin bool) string {
	f.provider.addIdentity(domain.Identity{SubjectID: id, Email: id + "@example.com", DisplayName: "User " + id})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f.profiles.Put(domain.Profile{
		ID:        id,
		Name:      "Profile " + id,
		Email:     id + "@example.com",
		IsAdmin:   isAdmin,
		CreatedAt: now,
		UpdatedAt: now,
	})
	return f.provider.issueToken(id)
}

func (f *fixture) eventTypes() []string {
	records := f.outbox.Records()
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.EventType)
	}
	return out
}

func adminSession(id string) domain.SessionView {
	return domain.SessionView{ID: id, Lifecycle: domain.LifecycleAuthenticated, IsAdmin: true}
}

func userSession(id string) domain.SessionView {
	return domain.SessionView{ID: id, Lifecycle: domain.LifecycleAuthenticated}
}

// faultyProfiles injects failures into the memory profile store.
type faultyProfiles struct {
	*memory.ProfileStore

	mu          sync.Mutex
	deleteFails int
	createErr   error
	deletes     int
}

func (p *faultyProfiles) failDeletes(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleteFails = n
}

func (p *faultyProfiles) Delete(ctx context.Context, id string) error {
	p.mu.Lock()
	p.deletes++
	if p.deleteFails > 0 {
		p.deleteFails--
		p.mu.Unlock()
		return errors.New("profile store unavailable")
	}
	p.mu.Unlock()
	return p.ProfileStore.Delete(ctx, id)
}

func (p *faultyProfiles) Create(ctx context.Context, params ports.CreateProfileParams) (domain.Profile, error) {
	p.mu.Lock()
	err := p.createErr
	p.mu.Unlock()
	if err != nil {
		return domain.Profile{}, err
	}
	return p.ProfileStore.Create(ctx, params)
}

// fakeProvider is an identity provider, verifier and registrar over maps.
type fakeProvider struct {
	mu         sync.Mutex
	identities map[string]domain.Identity
	passwords  map[string]string
	tokens     map[string]string
	deleteErr  error
	deleted    []string
	// beforeDelete runs outside the lock at the start of DeleteIdentity.
	beforeDelete func()
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		identities: make(map[string]domain.Identity),
		passwords:  make(map[string]string),
		tokens:     make(map[string]string),
	}
}

func (p *fakeProvider) addIdentity(identity domain.Identity) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.identities[identity.SubjectID] = identity
}

func (p *fakeProvider) issueToken(subjectID string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	token := "tok-" + subjectID + "-" + uuid.NewString()
	p.tokens[token] = subjectID
	return token
}

func (p *fakeProvider) has(subjectID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.identities[subjectID]
	return ok
}

func (p *fakeProvider) DeleteIdentity(_ context.Context, subjectID string) error {
	if p.beforeDelete != nil {
		p.beforeDelete()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.deleteErr != nil {
		return p.deleteErr
	}
	if _, ok := p.identities[subjectID]; !ok {
		return domain.ErrNotFound
	}
	delete(p.identities, subjectID)
	p.deleted = append(p.deleted, subjectID)
	return nil
}

func (p *fakeProvider) Verify(_ context.Context, rawToken string) (domain.Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	subjectID, ok := p.tokens[rawToken]
	if !ok {
		return domain.Identity{}, fmt.Errorf("%w: unknown token", domain.ErrUnauthenticated)
	}
	identity, ok := p.identities[subjectID]
	if !ok {
		return domain.Identity{}, fmt.Errorf("%w: identity deleted", domain.ErrUnauthenticated)
	}
	return identity, nil
}

func (p *fakeProvider) SignUp(_ context.Context, params ports.SignUpParams) (domain.Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, existing := range p.identities {
		if existing.Email == params.Email {
			return domain.Identity{}, fmt.Errorf("%w: email already registered", domain.ErrConflict)
		}
	}
	identity := domain.Identity{SubjectID: uuid.NewString(), Email: params.Email, DisplayName: params.DisplayName}
	p.identities[identity.SubjectID] = identity
	p.passwords[identity.SubjectID] = params.Password
	return identity, nil
}

func (p *fakeProvider) SignIn(_ context.Context, email, password string) (ports.IssuedToken, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, identity := range p.identities {
		if identity.Email == email && p.passwords[id] == password {
			token := "tok-" + id + "-" + uuid.NewString()
			p.tokens[token] = id
			return ports.IssuedToken{Token: token, ExpiresAt: time.Now().Add(time.Hour), Identity: identity}, nil
		}
	}
	return ports.IssuedToken{}, domain.ErrInvalidCredentials
}

// nextView reads from views until match returns true or the wait expires.
func nextView(t *testing.T, views <-chan domain.SessionView, match func(domain.SessionView) bool) domain.SessionView {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case view, ok := <-views:
			if !ok {
				t.Fatalf("view stream closed before expected view")
			}
			if match(view) {
				return view
			}
		case <-timeout:
			t.Fatalf("timed out waiting for session view")
		}
	}
}

func lifecycleIs(l domain.Lifecycle) func(domain.SessionView) bool {
	return func(v domain.SessionView) bool { return v.Lifecycle == l }
}
