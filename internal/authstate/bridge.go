package authstate

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/accountkit/account-backend/internal/identity"
	"github.com/accountkit/account-backend/internal/profile"
	"github.com/google/uuid"
)

// Resolver resolves a subject id to its profile projection.
type Resolver interface {
	Resolve(ctx context.Context, subjectID uuid.UUID) (*profile.AuthUser, error)
}

// Notifier surfaces user-facing auth outcomes (the original UI showed these
// as toasts).
type Notifier interface {
	Success(msg string)
	Error(msg string)
}

// Bridge states. The machine only ever moves forward:
// uninitialized -> initializing -> ready.
const (
	bridgeUninitialized int32 = iota
	bridgeInitializing
	bridgeReady
)

const defaultTimeout = 10 * time.Second

// Bridge reconciles the identity provider's event stream into the auth
// store. It is the store's only writer once started.
type Bridge struct {
	provider identity.Provider
	resolver Resolver
	store    *Store
	notifier Notifier
	timeout  time.Duration

	state   atomic.Int32
	settled atomic.Bool

	// resolveGen stamps profile resolutions; a resolution that finishes
	// after a newer one was requested is discarded so a stale response
	// cannot overwrite fresher state.
	resolveGen atomic.Uint64

	unsubOnce sync.Once
	unsub     identity.Unsubscribe
}

type BridgeOption func(*Bridge)

// WithTimeout bounds the initial session fetch and each event-driven profile
// resolution. On expiry the bridge settles unauthenticated instead of
// leaving the store loading forever.
func WithTimeout(d time.Duration) BridgeOption {
	return func(b *Bridge) { b.timeout = d }
}

func NewBridge(provider identity.Provider, resolver Resolver, store *Store, notifier Notifier, opts ...BridgeOption) *Bridge {
	b := &Bridge{
		provider: provider,
		resolver: resolver,
		store:    store,
		notifier: notifier,
		timeout:  defaultTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start runs the one-time initialization sequence: subscribe, fetch the
// current session, resolve the profile if a user is present, then mark the
// store initialized. Events arriving while initializing still update
// session/user but never re-run initialization.
func (b *Bridge) Start(ctx context.Context) error {
	if !b.state.CompareAndSwap(bridgeUninitialized, bridgeInitializing) {
		return errors.New("auth bridge already started")
	}

	b.store.SetLoading(true)

	// Subscribe before the initial fetch so no event is dropped in between.
	b.unsub = b.provider.Subscribe(b.handleEvent)

	ictx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	session, err := b.provider.GetSession(ictx)
	if err != nil {
		slog.Error("initial session fetch failed", "error", err)
		b.notifier.Error("Could not verify your session")
	} else {
		b.store.SetSession(session)
		if id := session.SubjectID(); id != uuid.Nil {
			if err := b.resolveUser(ictx, id); err != nil {
				slog.Error("initial profile resolution failed", "subject_id", id, "error", err)
			}
		}
	}

	b.store.SetLoading(false)
	b.store.SetInitialized(true)
	b.settled.Store(true)
	b.state.Store(bridgeReady)
	return nil
}

// Close tears the bridge down. Idempotent.
func (b *Bridge) Close() {
	b.unsubOnce.Do(func() {
		if b.unsub != nil {
			b.unsub()
		}
	})
}

func (b *Bridge) handleEvent(ev identity.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	switch ev.Type {
	case identity.EventInitialSession:
		b.store.SetSession(ev.Session)
		if id := ev.Session.SubjectID(); id != uuid.Nil {
			if err := b.resolveUser(ctx, id); err != nil {
				slog.Error("profile resolution failed", "subject_id", id, "error", err)
			}
		}

	case identity.EventSignedIn:
		b.store.SetLoading(true)
		b.store.SetSession(ev.Session)
		// A failed resolution does not block the sign-in: the session is
		// already recorded and the user stays signed in with no profile
		// until a later resolution succeeds.
		if err := b.resolveUser(ctx, ev.Session.SubjectID()); err != nil {
			slog.Error("profile resolution failed after sign in", "error", err)
			b.notifier.Error("Failed to load user profile")
		} else {
			b.notifier.Success("Successfully signed in!")
		}
		b.store.SetLoading(false)

	case identity.EventSignedOut:
		b.store.Logout()
		b.store.SetLoading(false)
		// Suppress the notification while the initial state settles.
		if b.settled.Load() {
			b.notifier.Success("Successfully signed out!")
		}

	case identity.EventTokenRefreshed:
		// The session was replaced; the resolved profile is still valid.
		b.store.SetSession(ev.Session)

	case identity.EventUserUpdated:
		if id := ev.Session.SubjectID(); id != uuid.Nil {
			b.store.SetSession(ev.Session)
			if err := b.resolveUser(ctx, id); err != nil {
				// Keep the existing user on failure.
				slog.Error("profile refresh failed after user update", "subject_id", id, "error", err)
			}
		}

	default:
		slog.Warn("unhandled auth event", "type", string(ev.Type))
	}
}

func (b *Bridge) resolveUser(ctx context.Context, subjectID uuid.UUID) error {
	if subjectID == uuid.Nil {
		return errors.New("no subject in session")
	}

	gen := b.resolveGen.Add(1)
	user, err := b.resolver.Resolve(ctx, subjectID)
	if err != nil {
		return err
	}
	if b.resolveGen.Load() != gen {
		// A newer resolution was requested while this one ran.
		return nil
	}
	b.store.SetUser(user)
	return nil
}
