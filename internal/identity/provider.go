package identity

import (
	"context"
	"errors"
	"time"

	"github.com/accountkit/account-backend/internal/models"
	"github.com/google/uuid"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired refresh token")
	ErrIdentityNotFound   = errors.New("identity not found")
	ErrUnknownProvider    = errors.New("unknown OAuth provider")
)

// Session is the credential bundle proving an authenticated identity. The
// holder treats it as read-only; it is replaced wholesale on every auth event.
type Session struct {
	AccessToken  string           `json:"access_token"`
	RefreshToken string           `json:"refresh_token"`
	TokenType    string           `json:"token_type"`
	ExpiresAt    time.Time        `json:"expires_at"`
	User         *models.Identity `json:"user"`
}

// SubjectID returns the id of the authenticated identity, or uuid.Nil when
// the session carries no user.
func (s *Session) SubjectID() uuid.UUID {
	if s == nil || s.User == nil {
		return uuid.Nil
	}
	return s.User.ID
}

type SignUpParams struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Provider is the identity boundary the auth-state bridge depends on.
// client.Client implements it over HTTP against the endpoints Service backs.
type Provider interface {
	// GetSession returns the current session, or (nil, nil) when signed out.
	GetSession(ctx context.Context) (*Session, error)
	// GetCurrentUser returns the identity behind the current session,
	// including sign-up/OAuth metadata.
	GetCurrentUser(ctx context.Context) (*models.Identity, error)
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	SignUp(ctx context.Context, params SignUpParams) (*Session, error)
	// SignInWithOAuth returns the URL the user must visit to authorize.
	SignInWithOAuth(ctx context.Context, provider, redirectTo string) (string, error)
	SignOut(ctx context.Context) error
	Subscribe(h Handler) Unsubscribe
}
