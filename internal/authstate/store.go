package authstate

import (
	"sync"

	"github.com/accountkit/account-backend/internal/identity"
	"github.com/accountkit/account-backend/internal/profile"
	"github.com/accountkit/account-backend/internal/roles"
)

// State is a consistent snapshot of the auth store.
//
// Invariants (maintained by the bridge, not checked here):
//   - User is non-nil only while Session is non-nil; the reverse may briefly
//     not hold while a profile resolution is in flight.
//   - IsInitialized transitions false to true exactly once, after the first
//     session check settles.
type State struct {
	User          *profile.AuthUser
	Session       *identity.Session
	IsLoading     bool
	IsInitialized bool
}

// UserPatch is a shallow merge applied by UpdateUser. Nil fields are left
// untouched.
type UserPatch struct {
	Email     *string
	FirstName *string
	LastName  *string
	AvatarURL *string
	Role      *roles.Role
}

// Store holds the process-wide auth state: single writer (the bridge),
// many readers. The store trusts its callers and performs no validation.
type Store struct {
	mu    sync.RWMutex
	state State
}

func NewStore() *Store {
	// Loading starts true so readers see "checking session" rather than
	// "signed out" before the first session check settles.
	return &Store{state: State{IsLoading: true}}
}

// State returns a snapshot. The contained pointers are never mutated after
// publication; updates swap them wholesale.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Store) SetUser(u *profile.AuthUser) {
	s.mu.Lock()
	s.state.User = u
	s.mu.Unlock()
}

func (s *Store) SetSession(sess *identity.Session) {
	s.mu.Lock()
	s.state.Session = sess
	s.mu.Unlock()
}

func (s *Store) SetLoading(loading bool) {
	s.mu.Lock()
	s.state.IsLoading = loading
	s.mu.Unlock()
}

func (s *Store) SetInitialized(initialized bool) {
	s.mu.Lock()
	s.state.IsInitialized = initialized
	s.mu.Unlock()
}

// Logout clears user and session in one step.
func (s *Store) Logout() {
	s.mu.Lock()
	s.state.User = nil
	s.state.Session = nil
	s.mu.Unlock()
}

// UpdateUser shallow-merges the patch into the current user. No-op when no
// user is set. The merge is copy-on-write so published snapshots stay stable.
func (s *Store) UpdateUser(patch UserPatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.User == nil {
		return
	}
	u := *s.state.User
	if patch.Email != nil {
		u.Email = *patch.Email
	}
	if patch.FirstName != nil {
		u.FirstName = *patch.FirstName
	}
	if patch.LastName != nil {
		u.LastName = *patch.LastName
	}
	if patch.AvatarURL != nil {
		u.AvatarURL = *patch.AvatarURL
	}
	if patch.Role != nil {
		u.Role = *patch.Role
	}
	s.state.User = &u
}
