package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/accountkit/account-backend/internal/config"
	"github.com/accountkit/account-backend/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"golang.org/x/crypto/bcrypt"
)

// Service is the server-side identity provider: credentials, JWT access
// tokens, rotated refresh tokens and the auth event stream.
type Service struct {
	db     *gorm.DB
	cfg    *config.Config
	broker *Broker
	oauth  *oauthExchanger
}

func NewService(db *gorm.DB, cfg *config.Config) *Service {
	return &Service{
		db:     db,
		cfg:    cfg,
		broker: NewBroker(),
		oauth:  newOAuthExchanger(cfg),
	}
}

// Subscribe attaches a handler to the service's auth event stream.
func (s *Service) Subscribe(h Handler) Unsubscribe {
	return s.broker.Subscribe(h)
}

func (s *Service) Register(ctx context.Context, params SignUpParams) (*Session, error) {
	if len(params.Email) == 0 || len(params.Password) < 8 {
		return nil, errors.New("email required and password must be at least 8 characters")
	}

	var existing models.Identity
	if err := s.db.WithContext(ctx).Where("email = ?", params.Email).First(&existing).Error; err == nil {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	ident := models.Identity{
		ID:           uuid.New(),
		Email:        params.Email,
		PasswordHash: string(hash),
		AuthProvider: "email",
		UserMetadata: datatypes.JSONMap{
			"first_name": params.FirstName,
			"last_name":  params.LastName,
		},
	}

	if err := s.db.WithContext(ctx).Create(&ident).Error; err != nil {
		return nil, fmt.Errorf("failed to create identity: %w", err)
	}

	session, err := s.issueSession(ctx, &ident)
	if err != nil {
		return nil, err
	}
	s.broker.Emit(Event{Type: EventSignedIn, Session: session})
	return session, nil
}

func (s *Service) SignIn(ctx context.Context, email, password string) (*Session, error) {
	var ident models.Identity
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&ident).Error; err != nil {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(ident.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	session, err := s.issueSession(ctx, &ident)
	if err != nil {
		return nil, err
	}
	s.broker.Emit(Event{Type: EventSignedIn, Session: session})
	return session, nil
}

// Refresh rotates the refresh token and mints a new access token. The old
// refresh token is revoked whether or not the rotation succeeds.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	tokenHash := hashToken(refreshToken)

	var stored models.RefreshToken
	if err := s.db.WithContext(ctx).Where("token_hash = ? AND revoked = false", tokenHash).First(&stored).Error; err != nil {
		return nil, ErrInvalidToken
	}

	s.db.WithContext(ctx).Model(&stored).Update("revoked", true)

	if time.Now().After(stored.ExpiresAt) {
		return nil, ErrInvalidToken
	}

	var ident models.Identity
	if err := s.db.WithContext(ctx).First(&ident, "id = ?", stored.IdentityID).Error; err != nil {
		return nil, fmt.Errorf("identity not found: %w", err)
	}

	session, err := s.issueSession(ctx, &ident)
	if err != nil {
		return nil, err
	}
	s.broker.Emit(Event{Type: EventTokenRefreshed, Session: session})
	return session, nil
}

func (s *Service) SignOut(ctx context.Context, refreshToken string) error {
	tokenHash := hashToken(refreshToken)
	err := s.db.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("token_hash = ?", tokenHash).
		Update("revoked", true).Error
	if err != nil {
		return err
	}
	s.broker.Emit(Event{Type: EventSignedOut})
	return nil
}

func (s *Service) IdentityByID(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	var ident models.Identity
	if err := s.db.WithContext(ctx).First(&ident, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrIdentityNotFound
		}
		return nil, err
	}
	return &ident, nil
}

// UpdateMetadata shallow-merges updates into the identity's metadata and
// emits a user_updated event so subscribed clients re-resolve their profile.
func (s *Service) UpdateMetadata(ctx context.Context, id uuid.UUID, updates map[string]interface{}) (*models.Identity, error) {
	ident, err := s.IdentityByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if ident.UserMetadata == nil {
		ident.UserMetadata = datatypes.JSONMap{}
	}
	for k, v := range updates {
		ident.UserMetadata[k] = v
	}

	if err := s.db.WithContext(ctx).Model(ident).Update("user_metadata", ident.UserMetadata).Error; err != nil {
		return nil, fmt.Errorf("failed to update metadata: %w", err)
	}

	session, err := s.issueSession(ctx, ident)
	if err != nil {
		return nil, err
	}
	s.broker.Emit(Event{Type: EventUserUpdated, Session: session})
	return ident, nil
}

// OAuthURL builds the authorization URL for the given OAuth provider with a
// signed state parameter.
func (s *Service) OAuthURL(provider, redirectTo string) (string, error) {
	return s.oauth.authURL(provider, redirectTo)
}

// HandleOAuthCallback exchanges the authorization code, then finds or creates
// the matching identity.
func (s *Service) HandleOAuthCallback(ctx context.Context, code, state string) (*Session, string, error) {
	provider, redirectTo, err := s.oauth.verifyState(state)
	if err != nil {
		return nil, "", err
	}

	info, err := s.oauth.exchange(ctx, provider, code)
	if err != nil {
		return nil, "", err
	}

	var ident models.Identity
	err = s.db.WithContext(ctx).Where("email = ?", info.Email).First(&ident).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", fmt.Errorf("identity lookup failed: %w", err)
		}
		ident = models.Identity{
			ID:           uuid.New(),
			Email:        info.Email,
			PasswordHash: "",
			AuthProvider: provider,
			UserMetadata: info.metadata(),
		}
		if err := s.db.WithContext(ctx).Create(&ident).Error; err != nil {
			return nil, "", fmt.Errorf("failed to create OAuth identity: %w", err)
		}
	} else if len(info.metadata()) > 0 {
		// Top up metadata from the OAuth profile without clobbering
		// fields the user set at sign-up.
		if ident.UserMetadata == nil {
			ident.UserMetadata = datatypes.JSONMap{}
		}
		for k, v := range info.metadata() {
			if _, exists := ident.UserMetadata[k]; !exists {
				ident.UserMetadata[k] = v
			}
		}
		s.db.WithContext(ctx).Model(&ident).Update("user_metadata", ident.UserMetadata)
	}

	session, err := s.issueSession(ctx, &ident)
	if err != nil {
		return nil, "", err
	}
	s.broker.Emit(Event{Type: EventSignedIn, Session: session})
	return session, redirectTo, nil
}

func (s *Service) issueSession(ctx context.Context, ident *models.Identity) (*Session, error) {
	expiresAt := time.Now().Add(s.cfg.JWTAccessExpiry)

	accessToken, err := s.generateAccessToken(ident, expiresAt)
	if err != nil {
		return nil, err
	}

	refreshToken, err := s.generateRefreshToken(ctx, ident)
	if err != nil {
		return nil, err
	}

	return &Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
		ExpiresAt:    expiresAt,
		User:         ident,
	}, nil
}

func (s *Service) generateAccessToken(ident *models.Identity, expiresAt time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sub":   ident.ID.String(),
		"email": ident.Email,
		"iat":   time.Now().Unix(),
		"exp":   expiresAt.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWTSecret))
}

func (s *Service) generateRefreshToken(ctx context.Context, ident *models.Identity) (string, error) {
	rawBytes := make([]byte, 32)
	if _, err := rand.Read(rawBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	rawToken := base64.URLEncoding.EncodeToString(rawBytes)

	record := models.RefreshToken{
		ID:         uuid.New(),
		IdentityID: ident.ID,
		TokenHash:  hashToken(rawToken),
		ExpiresAt:  time.Now().Add(s.cfg.JWTRefreshExpiry),
	}

	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return "", fmt.Errorf("failed to store refresh token: %w", err)
	}

	return rawToken, nil
}

func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return fmt.Sprintf("%x", h)
}
