package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/accountkit/account-backend/internal/dto"
	"github.com/accountkit/account-backend/internal/identity"
	"github.com/accountkit/account-backend/internal/models"
	"github.com/accountkit/account-backend/internal/profile"
	"github.com/accountkit/account-backend/internal/roles"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFailsFast(t *testing.T) {
	t.Setenv("ACCOUNT_API_URL", "")
	t.Setenv("ACCOUNT_API_KEY", "")

	_, err := LoadConfig()
	require.ErrorIs(t, err, ErrMissingConfig)
	assert.Contains(t, err.Error(), "ACCOUNT_API_URL")

	t.Setenv("ACCOUNT_API_URL", "http://localhost:8080")
	_, err = LoadConfig()
	require.ErrorIs(t, err, ErrMissingConfig)
	assert.Contains(t, err.Error(), "ACCOUNT_API_KEY")

	t.Setenv("ACCOUNT_API_KEY", "k")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", cfg.APIURL)
}

func sessionJSON(id uuid.UUID, access string) dto.SessionResponse {
	return dto.SessionResponse{
		AccessToken:  access,
		RefreshToken: "refresh-token",
		TokenType:    "bearer",
		ExpiresAt:    time.Now().Add(15 * time.Minute),
		User:         dto.UserResponse{ID: id.String(), Email: "a@example.com"},
	}
}

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(&Config{APIURL: srv.URL, APIKey: "test-key"})
}

func TestSignInStoresSessionAndEmits(t *testing.T) {
	id := uuid.New()
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/login", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-API-Key"))

		var req dto.LoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "a@example.com", req.Email)

		json.NewEncoder(w).Encode(sessionJSON(id, "access-token"))
	}))

	var events []identity.EventType
	c.Subscribe(func(ev identity.Event) { events = append(events, ev.Type) })

	session, err := c.SignInWithPassword(context.Background(), "a@example.com", "pw")
	require.NoError(t, err)

	assert.Equal(t, "access-token", session.AccessToken)
	assert.Equal(t, id, session.SubjectID())
	assert.Equal(t, []identity.EventType{identity.EventSignedIn}, events)

	got, err := c.GetSession(context.Background())
	require.NoError(t, err)
	assert.Same(t, session, got)
}

func TestGetSessionWhenSignedOut(t *testing.T) {
	c := New(&Config{APIURL: "http://unused", APIKey: "k"})
	session, err := c.GetSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestGetSessionRefreshesExpired(t *testing.T) {
	id := uuid.New()
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/refresh", r.URL.Path)
		var req dto.RefreshRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "old-refresh", req.RefreshToken)
		json.NewEncoder(w).Encode(sessionJSON(id, "rotated-access"))
	}))

	expired := &identity.Session{
		AccessToken:  "stale-access",
		RefreshToken: "old-refresh",
		ExpiresAt:    time.Now().Add(-time.Minute),
		User:         &models.Identity{ID: id},
	}
	c.mu.Lock()
	c.session = expired
	c.mu.Unlock()

	var events []identity.EventType
	c.Subscribe(func(ev identity.Event) { events = append(events, ev.Type) })

	session, err := c.GetSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "rotated-access", session.AccessToken)
	assert.Equal(t, []identity.EventType{identity.EventTokenRefreshed}, events)
}

func TestSignOutClearsSessionAndEmits(t *testing.T) {
	id := uuid.New()
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login":
			json.NewEncoder(w).Encode(sessionJSON(id, "access"))
		case "/api/auth/logout":
			assert.NotEmpty(t, r.Header.Get("Authorization"))
			w.WriteHeader(http.StatusOK)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	_, err := c.SignInWithPassword(context.Background(), "a@example.com", "pw")
	require.NoError(t, err)

	var events []identity.EventType
	c.Subscribe(func(ev identity.Event) { events = append(events, ev.Type) })

	require.NoError(t, c.SignOut(context.Background()))
	assert.Equal(t, []identity.EventType{identity.EventSignedOut}, events)

	session, err := c.GetSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, session)

	// Signing out while signed out is a no-op, not an error.
	require.NoError(t, c.SignOut(context.Background()))
}

func TestRestoreSessionEmitsInitialSession(t *testing.T) {
	c := New(&Config{APIURL: "http://unused", APIKey: "k"})

	var events []identity.EventType
	c.Subscribe(func(ev identity.Event) { events = append(events, ev.Type) })

	id := uuid.New()
	restored := &identity.Session{
		AccessToken: "persisted",
		ExpiresAt:   time.Now().Add(time.Hour),
		User:        &models.Identity{ID: id},
	}
	c.RestoreSession(restored)

	assert.Equal(t, []identity.EventType{identity.EventInitialSession}, events)
	session, err := c.GetSession(context.Background())
	require.NoError(t, err)
	assert.Same(t, restored, session)
}

func TestResolve(t *testing.T) {
	id := uuid.New()
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login":
			json.NewEncoder(w).Encode(sessionJSON(id, "access"))
		case "/api/auth/profile":
			assert.Equal(t, "Bearer access", r.Header.Get("Authorization"))
			json.NewEncoder(w).Encode(dto.UserResponse{
				ID:        id.String(),
				Email:     "a@example.com",
				FirstName: "Ann",
				LastName:  "Lee",
				Role:      "staff",
			})
		}
	}))

	_, err := c.SignInWithPassword(context.Background(), "a@example.com", "pw")
	require.NoError(t, err)

	user, err := c.Resolve(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, user.ID)
	assert.Equal(t, "Ann", user.FirstName)
	assert.Equal(t, roles.Staff, user.Role)
}

func TestResolveSubjectMismatch(t *testing.T) {
	id := uuid.New()
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login":
			json.NewEncoder(w).Encode(sessionJSON(id, "access"))
		case "/api/auth/profile":
			json.NewEncoder(w).Encode(dto.UserResponse{ID: uuid.NewString(), Role: "user"})
		}
	}))

	_, err := c.SignInWithPassword(context.Background(), "a@example.com", "pw")
	require.NoError(t, err)

	_, err = c.Resolve(context.Background(), id)
	assert.ErrorIs(t, err, profile.ErrProfileFetch)
}

func TestAPIErrorMessageSurfaces(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(dto.ErrorResponse{Error: true, Message: "invalid email or password"})
	}))

	_, err := c.SignInWithPassword(context.Background(), "a@example.com", "wrong")
	require.Error(t, err)
	assert.Equal(t, "invalid email or password", err.Error())
}
