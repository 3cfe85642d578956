package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	"gym-session/internal/domain"
	"gym-session/internal/infrastructure/events"

	"golang.org/x/sync/singleflight"
)

// AuthSession owns the application-wide AuthState. It bootstraps from the
// provider's session, follows provider events and loads the user profile once
// per sign-in.
type AuthSession struct {
	provider domain.SessionProvider
	tokens   domain.TokenCache
	profiles domain.ProfileFetcher
	logger   *slog.Logger

	mu      sync.RWMutex
	state   domain.AuthState
	fetched bool
	// epoch increments on sign-out; profile results from an older epoch are dropped.
	epoch uint64

	group       singleflight.Group
	listeners   *events.Broker[domain.AuthState]
	closed      atomic.Bool
	unsubscribe func()
}

// NewAuthSession creates a new AuthSession usecase in the initial unknown state.
func NewAuthSession(p domain.SessionProvider, tc domain.TokenCache, pf domain.ProfileFetcher, l *slog.Logger) *AuthSession {
	if l == nil {
		l = slog.Default()
	}
	return &AuthSession{
		provider:  p,
		tokens:    tc,
		profiles:  pf,
		logger:    l,
		state:     domain.InitialAuthState(),
		listeners: events.NewBroker[domain.AuthState](),
	}
}

// Start subscribes to provider events and settles the initial state: the
// existing session, else one refresh attempt, else unauthenticated.
// Later events keep ctx's values but not its cancellation; Close ends them.
func (a *AuthSession) Start(ctx context.Context) domain.AuthState {
	a.mu.Lock()
	if a.unsubscribe == nil && !a.closed.Load() {
		eventCtx := context.WithoutCancel(ctx)
		a.unsubscribe = a.provider.OnAuthStateChange(func(ev domain.AuthEvent) {
			a.HandleEvent(eventCtx, ev)
		})
	}
	epoch := a.epoch
	a.mu.Unlock()

	session, err := a.provider.GetSession(ctx)
	if err != nil {
		a.logger.WarnContext(ctx, "failed to read existing session", "error", err)
	}

	if !session.Valid() {
		session, err = a.provider.RefreshSession(ctx)
		if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
			a.logger.WarnContext(ctx, "session refresh during bootstrap failed", "error", err)
		}
	}

	if !session.Valid() {
		a.dispatch(epoch, action{kind: actionSignedOut})
		return a.State()
	}

	a.tokens.Update(session.AccessToken, session.ExpiresAt)
	a.loadProfile(ctx, epoch)
	return a.State()
}

// HandleEvent applies a provider auth event.
func (a *AuthSession) HandleEvent(ctx context.Context, ev domain.AuthEvent) {
	if a.closed.Load() {
		return
	}

	a.logger.DebugContext(ctx, "auth event", "event", ev.Kind.String())

	switch ev.Kind {
	case domain.EventSignedOut:
		a.tokens.Clear()
		a.mu.Lock()
		a.fetched = false
		a.epoch++
		epoch := a.epoch
		a.mu.Unlock()
		a.dispatch(epoch, action{kind: actionSignedOut})

	case domain.EventSignedIn:
		if !ev.Session.Valid() {
			return
		}
		a.tokens.Update(ev.Session.AccessToken, ev.Session.ExpiresAt)
		a.loadProfile(ctx, a.currentEpoch())

	case domain.EventTokenRefreshed:
		if ev.Session.Valid() {
			a.tokens.Update(ev.Session.AccessToken, ev.Session.ExpiresAt)
		}
	}
}

// RefreshUser refetches the profile and replaces only the user. Status and
// loading are left as they are.
func (a *AuthSession) RefreshUser(ctx context.Context) error {
	if a.closed.Load() {
		return nil
	}

	a.mu.Lock()
	a.fetched = false
	epoch := a.epoch
	a.mu.Unlock()

	profile, err := a.refetchProfile(ctx)
	if err != nil && !errors.Is(err, domain.ErrProfileNotFound) {
		return fmt.Errorf("refresh user: %w", err)
	}

	a.markFetched(epoch)
	a.dispatch(epoch, action{kind: actionUserRefreshed, user: profile})
	return nil
}

// State returns the current auth state.
func (a *AuthSession) State() domain.AuthState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// Subscribe registers fn for state changes.
func (a *AuthSession) Subscribe(fn func(domain.AuthState)) (unsubscribe func()) {
	return a.listeners.Subscribe(fn)
}

// Close unsubscribes from the provider and disables further state writes.
func (a *AuthSession) Close() {
	if !a.closed.CompareAndSwap(false, true) {
		return
	}

	a.mu.Lock()
	unsubscribe := a.unsubscribe
	a.unsubscribe = nil
	a.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// loadProfile fetches the profile unless it was already fetched for this
// sign-in. Overlapping callers of the same epoch wait for the one in-flight
// fetch; a fetch left over from before a sign-out is never joined.
func (a *AuthSession) loadProfile(ctx context.Context, epoch uint64) {
	_, _, _ = a.group.Do("profile-"+strconv.FormatUint(epoch, 10), func() (interface{}, error) {
		a.mu.RLock()
		fetched := a.fetched
		a.mu.RUnlock()
		if fetched {
			return nil, nil
		}

		a.dispatch(epoch, action{kind: actionProfileLoading})

		profile, err := a.profiles.FetchProfile(ctx)
		switch {
		case err == nil:
			a.markFetched(epoch)
		case errors.Is(err, domain.ErrProfileNotFound):
			a.logger.InfoContext(ctx, "signed in without a profile")
			a.markFetched(epoch)
		default:
			// fetched stays false so the next sign-in event retries.
			a.logger.ErrorContext(ctx, "failed to load profile", "error", err)
		}

		a.dispatch(epoch, action{kind: actionProfileLoaded, user: profile})
		return profile, err
	})
}

// refetchProfile is the RefreshUser fetch; concurrent refreshes share it.
func (a *AuthSession) refetchProfile(ctx context.Context) (*domain.Profile, error) {
	v, err, _ := a.group.Do("profile-refresh", func() (interface{}, error) {
		return a.profiles.FetchProfile(ctx)
	})
	profile, _ := v.(*domain.Profile)
	return profile, err
}

func (a *AuthSession) markFetched(epoch uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.epoch == epoch {
		a.fetched = true
	}
}

func (a *AuthSession) currentEpoch() uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.epoch
}

// dispatch applies act unless the session is closed or a sign-out happened
// since epoch was read, then notifies listeners of a changed state.
func (a *AuthSession) dispatch(epoch uint64, act action) {
	if a.closed.Load() {
		return
	}

	a.mu.Lock()
	if a.epoch != epoch {
		a.mu.Unlock()
		return
	}
	prev := a.state
	a.state = reduce(prev, act)
	next := a.state
	a.mu.Unlock()

	if next != prev {
		a.listeners.Publish(next)
	}
}
