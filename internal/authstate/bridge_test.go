package authstate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/accountkit/account-backend/internal/identity"
	"github.com/accountkit/account-backend/internal/models"
	"github.com/accountkit/account-backend/internal/profile"
	"github.com/accountkit/account-backend/internal/roles"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider emits events through a real broker so ordering matches the
// production path.
type fakeProvider struct {
	broker  *identity.Broker
	session *identity.Session
	err     error
}

func newFakeProvider(session *identity.Session) *fakeProvider {
	return &fakeProvider{broker: identity.NewBroker(), session: session}
}

func (p *fakeProvider) GetSession(ctx context.Context) (*identity.Session, error) {
	return p.session, p.err
}

func (p *fakeProvider) GetCurrentUser(ctx context.Context) (*models.Identity, error) {
	if p.session == nil {
		return nil, identity.ErrIdentityNotFound
	}
	return p.session.User, nil
}

func (p *fakeProvider) SignInWithPassword(ctx context.Context, email, password string) (*identity.Session, error) {
	return p.session, p.err
}

func (p *fakeProvider) SignUp(ctx context.Context, params identity.SignUpParams) (*identity.Session, error) {
	return p.session, p.err
}

func (p *fakeProvider) SignInWithOAuth(ctx context.Context, provider, redirectTo string) (string, error) {
	return "", errors.New("not supported")
}

func (p *fakeProvider) SignOut(ctx context.Context) error { return nil }

func (p *fakeProvider) Subscribe(h identity.Handler) identity.Unsubscribe {
	return p.broker.Subscribe(h)
}

func (p *fakeProvider) emit(t identity.EventType, s *identity.Session) {
	p.broker.Emit(identity.Event{Type: t, Session: s})
}

type fakeResolver struct {
	users map[uuid.UUID]*profile.AuthUser
	err   error
	calls int
	// hook runs before returning, letting tests interleave a newer
	// resolution while this one is "in flight".
	hook func(call int)
}

func (r *fakeResolver) Resolve(ctx context.Context, subjectID uuid.UUID) (*profile.AuthUser, error) {
	r.calls++
	if r.hook != nil {
		r.hook(r.calls)
	}
	if r.err != nil {
		return nil, r.err
	}
	u, ok := r.users[subjectID]
	if !ok {
		return nil, profile.ErrProfileFetch
	}
	return u, nil
}

type recordingNotifier struct {
	successes []string
	errors    []string
}

func (n *recordingNotifier) Success(msg string) { n.successes = append(n.successes, msg) }
func (n *recordingNotifier) Error(msg string)   { n.errors = append(n.errors, msg) }

func sessionFor(id uuid.UUID) *identity.Session {
	return &identity.Session{
		AccessToken:  "access-" + id.String(),
		RefreshToken: "refresh",
		TokenType:    "bearer",
		ExpiresAt:    time.Now().Add(15 * time.Minute),
		User:         &models.Identity{ID: id, Email: "u@example.com"},
	}
}

func TestBridgeStartWithExistingSession(t *testing.T) {
	id := uuid.New()
	user := &profile.AuthUser{ID: id, Email: "u@example.com", Role: roles.User}

	provider := newFakeProvider(sessionFor(id))
	resolver := &fakeResolver{users: map[uuid.UUID]*profile.AuthUser{id: user}}
	store := NewStore()
	notifier := &recordingNotifier{}

	b := NewBridge(provider, resolver, store, notifier)
	defer b.Close()

	require.NoError(t, b.Start(context.Background()))

	state := store.State()
	assert.True(t, state.IsInitialized)
	assert.False(t, state.IsLoading)
	require.NotNil(t, state.User)
	assert.Equal(t, id, state.User.ID)
	assert.NotNil(t, state.Session)
	assert.Empty(t, notifier.errors)
}

func TestBridgeStartSignedOut(t *testing.T) {
	provider := newFakeProvider(nil)
	store := NewStore()

	b := NewBridge(provider, &fakeResolver{}, store, &recordingNotifier{})
	defer b.Close()

	require.NoError(t, b.Start(context.Background()))

	state := store.State()
	assert.True(t, state.IsInitialized)
	assert.False(t, state.IsLoading)
	assert.Nil(t, state.User)
	assert.Nil(t, state.Session)
}

func TestBridgeStartSessionFetchFails(t *testing.T) {
	provider := newFakeProvider(nil)
	provider.err = errors.New("network down")
	store := NewStore()
	notifier := &recordingNotifier{}

	b := NewBridge(provider, &fakeResolver{}, store, notifier)
	defer b.Close()

	// Initialization still settles: the store must not stay loading forever.
	require.NoError(t, b.Start(context.Background()))

	state := store.State()
	assert.True(t, state.IsInitialized)
	assert.False(t, state.IsLoading)
	assert.Nil(t, state.User)
	require.Len(t, notifier.errors, 1)
	assert.Equal(t, "Could not verify your session", notifier.errors[0])
}

func TestBridgeStartTwiceFails(t *testing.T) {
	provider := newFakeProvider(nil)
	b := NewBridge(provider, &fakeResolver{}, NewStore(), &recordingNotifier{})
	defer b.Close()

	require.NoError(t, b.Start(context.Background()))
	assert.Error(t, b.Start(context.Background()))
}

func TestBridgeSignedInEvent(t *testing.T) {
	id := uuid.New()
	user := &profile.AuthUser{ID: id, Email: "u@example.com", Role: roles.User}

	provider := newFakeProvider(nil)
	resolver := &fakeResolver{users: map[uuid.UUID]*profile.AuthUser{id: user}}
	store := NewStore()
	notifier := &recordingNotifier{}

	b := NewBridge(provider, resolver, store, notifier)
	defer b.Close()
	require.NoError(t, b.Start(context.Background()))

	provider.emit(identity.EventSignedIn, sessionFor(id))

	state := store.State()
	require.NotNil(t, state.User)
	assert.Equal(t, id, state.User.ID)
	assert.False(t, state.IsLoading)
	require.Len(t, notifier.successes, 1)
	assert.Equal(t, "Successfully signed in!", notifier.successes[0])
}

func TestBridgeSignedInResolutionFailureKeepsSession(t *testing.T) {
	id := uuid.New()
	provider := newFakeProvider(nil)
	resolver := &fakeResolver{err: errors.New("db down")}
	store := NewStore()
	notifier := &recordingNotifier{}

	b := NewBridge(provider, resolver, store, notifier)
	defer b.Close()
	require.NoError(t, b.Start(context.Background()))

	provider.emit(identity.EventSignedIn, sessionFor(id))

	state := store.State()
	// Session survives; the user stays unresolved rather than the sign-in
	// being rolled back.
	assert.NotNil(t, state.Session)
	assert.Nil(t, state.User)
	assert.False(t, state.IsLoading)
	require.Len(t, notifier.errors, 1)
	assert.Equal(t, "Failed to load user profile", notifier.errors[0])
}

func TestBridgeSignedOutEvent(t *testing.T) {
	id := uuid.New()
	user := &profile.AuthUser{ID: id, Role: roles.User}

	provider := newFakeProvider(sessionFor(id))
	resolver := &fakeResolver{users: map[uuid.UUID]*profile.AuthUser{id: user}}
	store := NewStore()
	notifier := &recordingNotifier{}

	b := NewBridge(provider, resolver, store, notifier)
	defer b.Close()
	require.NoError(t, b.Start(context.Background()))

	provider.emit(identity.EventSignedOut, nil)

	state := store.State()
	assert.Nil(t, state.User)
	assert.Nil(t, state.Session)
	assert.True(t, state.IsInitialized)
	assert.Contains(t, notifier.successes, "Successfully signed out!")
}

func TestBridgeSignedOutBeforeSettleSuppressesNotification(t *testing.T) {
	provider := newFakeProvider(nil)
	store := NewStore()
	notifier := &recordingNotifier{}

	b := NewBridge(provider, &fakeResolver{}, store, notifier)
	defer b.Close()

	// Event delivered before Start settles the initial state.
	b.handleEvent(identity.Event{Type: identity.EventSignedOut})

	assert.Empty(t, notifier.successes)
	state := store.State()
	assert.Nil(t, state.User)
	assert.Nil(t, state.Session)
}

func TestBridgeTokenRefreshedKeepsUser(t *testing.T) {
	id := uuid.New()
	user := &profile.AuthUser{ID: id, Role: roles.User}

	provider := newFakeProvider(sessionFor(id))
	resolver := &fakeResolver{users: map[uuid.UUID]*profile.AuthUser{id: user}}
	store := NewStore()

	b := NewBridge(provider, resolver, store, &recordingNotifier{})
	defer b.Close()
	require.NoError(t, b.Start(context.Background()))
	callsAfterStart := resolver.calls

	fresh := sessionFor(id)
	fresh.AccessToken = "rotated"
	provider.emit(identity.EventTokenRefreshed, fresh)

	state := store.State()
	assert.Equal(t, "rotated", state.Session.AccessToken)
	// No re-resolution on refresh; the profile did not change.
	assert.Equal(t, callsAfterStart, resolver.calls)
	require.NotNil(t, state.User)
	assert.Equal(t, id, state.User.ID)
}

func TestBridgeUserUpdatedReResolves(t *testing.T) {
	id := uuid.New()
	provider := newFakeProvider(sessionFor(id))
	resolver := &fakeResolver{users: map[uuid.UUID]*profile.AuthUser{
		id: {ID: id, FirstName: "Ann", Role: roles.User},
	}}
	store := NewStore()

	b := NewBridge(provider, resolver, store, &recordingNotifier{})
	defer b.Close()
	require.NoError(t, b.Start(context.Background()))

	resolver.users[id] = &profile.AuthUser{ID: id, FirstName: "Anna", Role: roles.User}
	provider.emit(identity.EventUserUpdated, sessionFor(id))

	state := store.State()
	require.NotNil(t, state.User)
	assert.Equal(t, "Anna", state.User.FirstName)
}

func TestBridgeUserUpdatedFailurePreservesUser(t *testing.T) {
	id := uuid.New()
	provider := newFakeProvider(sessionFor(id))
	resolver := &fakeResolver{users: map[uuid.UUID]*profile.AuthUser{
		id: {ID: id, FirstName: "Ann", Role: roles.User},
	}}
	store := NewStore()

	b := NewBridge(provider, resolver, store, &recordingNotifier{})
	defer b.Close()
	require.NoError(t, b.Start(context.Background()))

	resolver.err = errors.New("db down")
	provider.emit(identity.EventUserUpdated, sessionFor(id))

	state := store.State()
	require.NotNil(t, state.User)
	assert.Equal(t, "Ann", state.User.FirstName)
}

func TestBridgeStaleResolutionDiscarded(t *testing.T) {
	id := uuid.New()
	provider := newFakeProvider(nil)
	store := NewStore()

	resolver := &fakeResolver{users: map[uuid.UUID]*profile.AuthUser{
		id: {ID: id, FirstName: "stale", Role: roles.User},
	}}

	b := NewBridge(provider, resolver, store, &recordingNotifier{})
	defer b.Close()
	require.NoError(t, b.Start(context.Background()))

	// While the first resolution runs, a newer one is requested; the first
	// must not overwrite the second's result.
	resolver.hook = func(call int) {
		if call == 1 {
			b.resolveGen.Add(1) // a newer resolution claimed the slot
		} else {
			resolver.users[id] = &profile.AuthUser{ID: id, FirstName: "fresh", Role: roles.User}
		}
	}

	require.NoError(t, b.resolveUser(context.Background(), id))
	assert.Nil(t, store.State().User, "stale resolution must be discarded")

	resolver.hook = nil
	resolver.users[id] = &profile.AuthUser{ID: id, FirstName: "fresh", Role: roles.User}
	require.NoError(t, b.resolveUser(context.Background(), id))
	assert.Equal(t, "fresh", store.State().User.FirstName)
}

// concurrentResolver is safe for use from multiple goroutines, unlike
// fakeResolver.
type concurrentResolver struct {
	mu    sync.Mutex
	users map[uuid.UUID]*profile.AuthUser
}

func (r *concurrentResolver) Resolve(ctx context.Context, subjectID uuid.UUID) (*profile.AuthUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[subjectID]
	if !ok {
		return nil, profile.ErrProfileFetch
	}
	cp := *u
	return &cp, nil
}

func TestBridgeConcurrentUserUpdatedEvents(t *testing.T) {
	id := uuid.New()
	want := &profile.AuthUser{ID: id, Email: "u@example.com", FirstName: "Ann", Role: roles.User}

	provider := newFakeProvider(sessionFor(id))
	resolver := &concurrentResolver{users: map[uuid.UUID]*profile.AuthUser{id: want}}
	store := NewStore()

	b := NewBridge(provider, resolver, store, &recordingNotifier{})
	defer b.Close()
	require.NoError(t, b.Start(context.Background()))

	// Two rapid updates from separate goroutines: whichever resolution wins,
	// the store must end up with a complete, valid snapshot.
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			provider.emit(identity.EventUserUpdated, sessionFor(id))
		}()
	}
	wg.Wait()

	state := store.State()
	require.NotNil(t, state.User)
	assert.Equal(t, *want, *state.User)
	assert.NotNil(t, state.Session)
	assert.True(t, state.IsInitialized)
}

func TestBridgeCloseIsIdempotent(t *testing.T) {
	provider := newFakeProvider(nil)
	b := NewBridge(provider, &fakeResolver{}, NewStore(), &recordingNotifier{})
	require.NoError(t, b.Start(context.Background()))

	b.Close()
	b.Close()

	// Events after Close are ignored.
	provider.emit(identity.EventSignedIn, sessionFor(uuid.New()))
	assert.Nil(t, b.store.State().User)
}
