package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/accountkit/account-backend/internal/dto"
	"github.com/accountkit/account-backend/internal/identity"
	"github.com/accountkit/account-backend/internal/models"
	"github.com/accountkit/account-backend/internal/profile"
	"github.com/accountkit/account-backend/internal/roles"
	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
)

// ErrMissingConfig is fatal at client startup.
var ErrMissingConfig = errors.New("missing required client configuration")

// Config carries the two required values for reaching the account service.
type Config struct {
	APIURL string `env:"ACCOUNT_API_URL"`
	APIKey string `env:"ACCOUNT_API_KEY"`
}

// LoadConfig parses client configuration from the environment and fails fast
// when either required value is absent.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.APIURL == "" {
		return nil, fmt.Errorf("%w: ACCOUNT_API_URL", ErrMissingConfig)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: ACCOUNT_API_KEY", ErrMissingConfig)
	}
	return cfg, nil
}

// Client talks to the account service over HTTP and implements the identity
// provider boundary the auth-state bridge consumes. Like the original
// provider library, it emits auth events locally from its own calls.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	broker     *identity.Broker

	mu      sync.Mutex
	session *identity.Session
}

var _ identity.Provider = (*Client)(nil)

func New(cfg *Config) *Client {
	return &Client{
		baseURL:    cfg.APIURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		broker:     identity.NewBroker(),
	}
}

func (c *Client) Subscribe(h identity.Handler) identity.Unsubscribe {
	return c.broker.Subscribe(h)
}

// RestoreSession installs a session persisted from a previous run (or parsed
// from an OAuth callback fragment) and announces it as the initial session.
func (c *Client) RestoreSession(session *identity.Session) {
	c.mu.Lock()
	c.session = session
	c.mu.Unlock()
	c.broker.Emit(identity.Event{Type: identity.EventInitialSession, Session: session})
}

// GetSession returns the current session, transparently refreshing an
// expired one. Returns (nil, nil) when signed out.
func (c *Client) GetSession(ctx context.Context) (*identity.Session, error) {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()

	if session == nil {
		return nil, nil
	}
	if time.Now().Before(session.ExpiresAt) {
		return session, nil
	}
	return c.RefreshSession(ctx)
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*identity.Session, error) {
	var resp dto.SessionResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/login", dto.LoginRequest{
		Email: email, Password: password,
	}, &resp, false)
	if err != nil {
		return nil, err
	}

	session, err := c.storeSession(&resp)
	if err != nil {
		return nil, err
	}
	c.broker.Emit(identity.Event{Type: identity.EventSignedIn, Session: session})
	return session, nil
}

func (c *Client) SignUp(ctx context.Context, params identity.SignUpParams) (*identity.Session, error) {
	var resp dto.SessionResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/register", dto.RegisterRequest{
		Email:     params.Email,
		Password:  params.Password,
		FirstName: params.FirstName,
		LastName:  params.LastName,
	}, &resp, false)
	if err != nil {
		return nil, err
	}

	session, err := c.storeSession(&resp)
	if err != nil {
		return nil, err
	}
	c.broker.Emit(identity.Event{Type: identity.EventSignedIn, Session: session})
	return session, nil
}

// SignInWithOAuth returns the provider authorization URL; the caller opens
// it in a browser and feeds the callback fragment back via RestoreSession.
func (c *Client) SignInWithOAuth(ctx context.Context, provider, redirectTo string) (string, error) {
	path := "/api/auth/oauth/" + url.PathEscape(provider)
	if redirectTo != "" {
		path += "?redirect_to=" + url.QueryEscape(redirectTo)
	}

	var resp dto.OAuthURLResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp, false); err != nil {
		return "", err
	}
	return resp.URL, nil
}

func (c *Client) RefreshSession(ctx context.Context) (*identity.Session, error) {
	c.mu.Lock()
	current := c.session
	c.mu.Unlock()
	if current == nil {
		return nil, errors.New("no session to refresh")
	}

	var resp dto.SessionResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/refresh", dto.RefreshRequest{
		RefreshToken: current.RefreshToken,
	}, &resp, false)
	if err != nil {
		return nil, err
	}

	session, err := c.storeSession(&resp)
	if err != nil {
		return nil, err
	}
	c.broker.Emit(identity.Event{Type: identity.EventTokenRefreshed, Session: session})
	return session, nil
}

func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	current := c.session
	c.mu.Unlock()
	if current == nil {
		return nil
	}

	err := c.do(ctx, http.MethodPost, "/api/auth/logout", dto.LogoutRequest{
		RefreshToken: current.RefreshToken,
	}, nil, true)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()
	c.broker.Emit(identity.Event{Type: identity.EventSignedOut})
	return nil
}

// GetCurrentUser fetches the caller's identity, metadata included.
func (c *Client) GetCurrentUser(ctx context.Context) (*models.Identity, error) {
	var ident models.Identity
	if err := c.do(ctx, http.MethodGet, "/api/auth/user", nil, &ident, true); err != nil {
		return nil, err
	}
	return &ident, nil
}

// Resolve satisfies the bridge's resolver: profile resolution (and lazy
// provisioning) happens server-side behind this endpoint.
func (c *Client) Resolve(ctx context.Context, subjectID uuid.UUID) (*profile.AuthUser, error) {
	var resp dto.UserResponse
	if err := c.do(ctx, http.MethodGet, "/api/auth/profile", nil, &resp, true); err != nil {
		return nil, fmt.Errorf("%w: %v", profile.ErrProfileFetch, err)
	}

	id, err := uuid.Parse(resp.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: bad profile id: %v", profile.ErrProfileFetch, err)
	}
	if id != subjectID {
		// The token and profile must agree on the subject; re-fetching is
		// the caller's job.
		return nil, fmt.Errorf("%w: profile subject mismatch", profile.ErrProfileFetch)
	}

	role, err := roles.Parse(resp.Role)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", profile.ErrProfileFetch, err)
	}

	return &profile.AuthUser{
		ID:        id,
		Email:     resp.Email,
		FirstName: resp.FirstName,
		LastName:  resp.LastName,
		AvatarURL: resp.AvatarURL,
		Role:      role,
	}, nil
}

func (c *Client) storeSession(resp *dto.SessionResponse) (*identity.Session, error) {
	subjectID, err := uuid.Parse(resp.User.ID)
	if err != nil {
		return nil, fmt.Errorf("bad user id in session response: %w", err)
	}

	session := &identity.Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    resp.TokenType,
		ExpiresAt:    resp.ExpiresAt,
		User:         &models.Identity{ID: subjectID, Email: resp.User.Email},
	}

	c.mu.Lock()
	c.session = session
	c.mu.Unlock()
	return session, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}, authed bool) error {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)
	if authed {
		c.mu.Lock()
		session := c.session
		c.mu.Unlock()
		if session == nil {
			return errors.New("not signed in")
		}
		req.Header.Set("Authorization", "Bearer "+session.AccessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr dto.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Message != "" {
			return errors.New(apiErr.Message)
		}
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
