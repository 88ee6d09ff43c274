package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/viralforge/storefront-identity/internal/domain"
	"github.com/viralforge/storefront-identity/internal/ports"
)

// ResolverOptions tunes a SessionResolver. Zero values fall back to defaults.
type ResolverOptions struct {
	Timeout      time.Duration
	RetryInitial time.Duration
	RetryMax     time.Duration
}

// SessionResolver turns the identity notifications of one client session into
// an ordered stream of SessionViews.
//
// Lifecycle: the view starts unresolved. Each identity event either resolves
// to anonymous immediately (no identity) or starts a profile lookup, during
// which the view is unresolved. A newer event cancels the lookup in flight and
// its late result is discarded. A lookup that outlives the timeout yields
// resolution_failed, which Retry or the next identity event recovers from.
type SessionResolver struct {
	client       ports.IdentityClient
	profiles     ports.ProfileRepository
	timeout      time.Duration
	retryInitial time.Duration
	retryMax     time.Duration
	retryCh      chan struct{}

	mu      sync.Mutex
	current domain.SessionView
	subs    map[uint64]*viewSubscription
	nextSub uint64
	closed  bool
}

type viewSubscription struct {
	ch   chan domain.SessionView
	done chan struct{}
	once sync.Once
}

type lookupOutcome int

const (
	lookupAbandoned lookupOutcome = iota
	lookupFound
	lookupMissing
)

type lookupResult struct {
	generation uint64
	identity   domain.Identity
	profile    domain.Profile
	outcome    lookupOutcome
}

func NewSessionResolver(client ports.IdentityClient, profiles ports.ProfileRepository, opts ResolverOptions) *SessionResolver {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RetryInitial <= 0 {
		opts.RetryInitial = 100 * time.Millisecond
	}
	if opts.RetryMax < opts.RetryInitial {
		opts.RetryMax = opts.RetryInitial
	}
	return &SessionResolver{
		client:       client,
		profiles:     profiles,
		timeout:      opts.Timeout,
		retryInitial: opts.RetryInitial,
		retryMax:     opts.RetryMax,
		retryCh:      make(chan struct{}, 1),
		current:      domain.UnresolvedSession(),
		subs:         make(map[uint64]*viewSubscription),
	}
}

// Current returns the most recently emitted view.
func (r *SessionResolver) Current() domain.SessionView {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Subscribe returns a channel primed with the current view that then receives
// every emission in order. Emissions block until delivered, so subscribers must
// keep reading until they call stop. The channel closes when Run returns.
func (r *SessionResolver) Subscribe() (<-chan domain.SessionView, func()) {
	sub := &viewSubscription{
		ch:   make(chan domain.SessionView, 8),
		done: make(chan struct{}),
	}

	r.mu.Lock()
	sub.ch <- r.current
	if r.closed {
		r.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	id := r.nextSub
	r.nextSub++
	r.subs[id] = sub
	r.mu.Unlock()

	stop := func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
		sub.once.Do(func() { close(sub.done) })
	}
	return sub.ch, stop
}

// AwaitSettled blocks until the view leaves the unresolved state.
func (r *SessionResolver) AwaitSettled(ctx context.Context) (domain.SessionView, error) {
	views, stop := r.Subscribe()
	defer stop()
	for {
		select {
		case <-ctx.Done():
			return r.Current(), ctx.Err()
		case view, ok := <-views:
			if !ok {
				current := r.Current()
				if current.Settled() {
					return current, nil
				}
				return current, fmt.Errorf("%w: resolver stopped", domain.ErrSessionUnresolved)
			}
			if view.Settled() {
				return view, nil
			}
		}
	}
}

// Retry asks Run to look up the active identity again after a failed resolution.
func (r *SessionResolver) Retry() {
	select {
	case r.retryCh <- struct{}{}:
	default:
	}
}

// Run consumes identity events until ctx ends or the client stops emitting.
func (r *SessionResolver) Run(ctx context.Context) error {
	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()
	defer r.closeSubscribers()

	events, err := r.client.Subscribe(runCtx)
	if err != nil {
		return err
	}

	results := make(chan lookupResult)
	var (
		generation   uint64
		active       *domain.Identity
		inFlight     bool
		cancelLookup context.CancelFunc = func() {}
		deadline     *time.Timer
		deadlineC    <-chan time.Time
	)
	stopLookup := func() {
		cancelLookup()
		cancelLookup = func() {}
		if deadline != nil {
			deadline.Stop()
		}
		deadlineC = nil
		inFlight = false
	}
	defer stopLookup()

	startLookup := func(identity domain.Identity) {
		stopLookup()
		generation++
		lookupCtx, cancel := context.WithCancel(runCtx)
		cancelLookup = cancel
		deadline = time.NewTimer(r.timeout)
		deadlineC = deadline.C
		inFlight = true
		r.publish(runCtx, domain.UnresolvedSession())
		go r.lookup(runCtx, lookupCtx, generation, identity, results)
	}

	for {
		select {
		case <-runCtx.Done():
			return ctx.Err()

		case evt, ok := <-events:
			if !ok {
				events = nil
				if !inFlight {
					return nil
				}
				continue
			}
			if evt.Identity == nil {
				stopLookup()
				generation++
				active = nil
				r.publish(runCtx, domain.AnonymousSession())
				continue
			}
			identity := *evt.Identity
			active = &identity
			startLookup(identity)

		case res := <-results:
			if res.generation != generation || res.outcome == lookupAbandoned {
				continue
			}
			stopLookup()
			switch res.outcome {
			case lookupFound:
				r.publish(runCtx, domain.AuthenticatedSession(res.identity, res.profile))
			case lookupMissing:
				active = nil
				r.signOutInconsistent(runCtx, res.identity)
				r.publish(runCtx, domain.AnonymousSession())
			}
			if events == nil {
				return nil
			}

		case <-deadlineC:
			stopLookup()
			// Bump so a late result from the abandoned lookup is ignored.
			generation++
			subject := ""
			if active != nil {
				subject = active.SubjectID
			}
			slog.Default().WarnContext(runCtx, "session resolution timed out",
				"module", "application.session_resolver",
				"layer", "application",
				"operation", "resolve_session",
				"outcome", "failure",
				"subject_id", subject,
				"timeout_ms", r.timeout.Milliseconds(),
			)
			r.publish(runCtx, domain.FailedSession("profile lookup timed out"))
			if events == nil {
				return nil
			}

		case <-r.retryCh:
			if active != nil && !inFlight && r.Current().Lifecycle == domain.LifecycleFailed {
				startLookup(*active)
			}
		}
	}
}

func (r *SessionResolver) lookup(runCtx, ctx context.Context, generation uint64, identity domain.Identity, out chan<- lookupResult) {
	profile, outcome := r.lookupProfile(ctx, identity)
	select {
	case out <- lookupResult{generation: generation, identity: identity, profile: profile, outcome: outcome}:
	case <-runCtx.Done():
	}
}

// lookupProfile retries store errors until ctx ends. Only ErrNotFound counts as
// a missing profile.
func (r *SessionResolver) lookupProfile(ctx context.Context, identity domain.Identity) (domain.Profile, lookupOutcome) {
	delay := r.retryInitial
	for attempt := 1; ; attempt++ {
		profile, err := r.profiles.GetByID(ctx, identity.SubjectID)
		switch {
		case err == nil:
			return profile, lookupFound
		case errors.Is(err, domain.ErrNotFound):
			return domain.Profile{}, lookupMissing
		case ctx.Err() != nil:
			return domain.Profile{}, lookupAbandoned
		}

		slog.Default().WarnContext(ctx, "profile lookup failed; retrying",
			"module", "application.session_resolver",
			"layer", "application",
			"operation", "lookup_profile",
			"outcome", "retry",
			"subject_id", identity.SubjectID,
			"attempt", attempt,
			"error", err,
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return domain.Profile{}, lookupAbandoned
		case <-timer.C:
		}
		delay *= 2
		if delay > r.retryMax {
			delay = r.retryMax
		}
	}
}

func (r *SessionResolver) signOutInconsistent(ctx context.Context, identity domain.Identity) {
	slog.Default().WarnContext(ctx, "signed-in identity has no profile; forcing sign-out",
		"module", "application.session_resolver",
		"layer", "application",
		"operation", "resolve_session",
		"outcome", "corrective_sign_out",
		"subject_id", identity.SubjectID,
		"error", domain.ErrInconsistentAccount,
	)
	if err := r.client.SignOut(ctx); err != nil {
		slog.Default().ErrorContext(ctx, "corrective sign-out failed",
			"module", "application.session_resolver",
			"layer", "application",
			"operation", "sign_out",
			"outcome", "failure",
			"subject_id", identity.SubjectID,
			"error", err,
		)
	}
}

func (r *SessionResolver) publish(ctx context.Context, view domain.SessionView) {
	r.mu.Lock()
	r.current = view
	targets := make([]*viewSubscription, 0, len(r.subs))
	for _, sub := range r.subs {
		targets = append(targets, sub)
	}
	r.mu.Unlock()

	for _, sub := range targets {
		select {
		case sub.ch <- view:
		case <-sub.done:
		case <-ctx.Done():
		}
	}
}

func (r *SessionResolver) closeSubscribers() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for id, sub := range r.subs {
		close(sub.ch)
		delete(r.subs, id)
	}
}
