package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/accountkit/account-backend/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"gorm.io/datatypes"
)

type oauthEndpoints struct {
	authURL     string
	tokenURL    string
	userInfoURL string
	scopes      string
}

var oauthProviders = map[string]oauthEndpoints{
	"google": {
		authURL:     "https://accounts.google.com/o/oauth2/v2/auth",
		tokenURL:    "https://oauth2.googleapis.com/token",
		userInfoURL: "https://openidconnect.googleapis.com/v1/userinfo",
		scopes:      "openid email profile",
	},
	"facebook": {
		authURL:     "https://www.facebook.com/v18.0/dialog/oauth",
		tokenURL:    "https://graph.facebook.com/v18.0/oauth/access_token",
		userInfoURL: "https://graph.facebook.com/me?fields=id,email,first_name,last_name,name,picture",
		scopes:      "email public_profile",
	},
}

// oauthUserInfo is the normalized profile returned by an OAuth provider.
type oauthUserInfo struct {
	Email      string `json:"email"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Name       string `json:"name"`
	Picture    string `json:"picture"`
}

func (i *oauthUserInfo) metadata() datatypes.JSONMap {
	m := datatypes.JSONMap{}
	set := func(key, val string) {
		if val != "" {
			m[key] = val
		}
	}
	set("given_name", i.GivenName)
	set("family_name", i.FamilyName)
	set("first_name", i.FirstName)
	set("last_name", i.LastName)
	set("full_name", i.Name)
	set("picture", i.Picture)
	return m
}

type oauthExchanger struct {
	cfg        *config.Config
	httpClient *http.Client
}

func newOAuthExchanger(cfg *config.Config) *oauthExchanger {
	return &oauthExchanger{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (e *oauthExchanger) credentials(provider string) (clientID, clientSecret string, err error) {
	switch provider {
	case "google":
		return e.cfg.GoogleClientID, e.cfg.GoogleClientSecret, nil
	case "facebook":
		return e.cfg.FacebookClientID, e.cfg.FacebookClientSecret, nil
	default:
		return "", "", fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
}

func (e *oauthExchanger) authURL(provider, redirectTo string) (string, error) {
	endpoints, ok := oauthProviders[provider]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}

	clientID, _, err := e.credentials(provider)
	if err != nil {
		return "", err
	}
	if clientID == "" {
		return "", fmt.Errorf("OAuth provider %s is not configured", provider)
	}

	state, err := e.signState(provider, redirectTo)
	if err != nil {
		return "", err
	}

	q := url.Values{}
	q.Set("client_id", clientID)
	q.Set("redirect_uri", e.cfg.OAuthRedirectURL)
	q.Set("response_type", "code")
	q.Set("scope", endpoints.scopes)
	q.Set("state", state)

	return endpoints.authURL + "?" + q.Encode(), nil
}

// signState binds provider and post-login redirect into a short-lived signed
// token so the callback cannot be forged or replayed indefinitely.
func (e *oauthExchanger) signState(provider, redirectTo string) (string, error) {
	claims := jwt.MapClaims{
		"provider":    provider,
		"redirect_to": redirectTo,
		"iat":         time.Now().Unix(),
		"exp":         time.Now().Add(10 * time.Minute).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(e.cfg.JWTSecret))
}

func (e *oauthExchanger) verifyState(state string) (provider, redirectTo string, err error) {
	token, err := jwt.Parse(state, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %s", t.Method.Alg())
		}
		return []byte(e.cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return "", "", fmt.Errorf("invalid OAuth state: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", fmt.Errorf("invalid OAuth state claims")
	}

	provider, _ = claims["provider"].(string)
	redirectTo, _ = claims["redirect_to"].(string)
	if _, ok := oauthProviders[provider]; !ok {
		return "", "", fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	return provider, redirectTo, nil
}

// exchange trades the authorization code for an access token and fetches the
// provider's user profile.
func (e *oauthExchanger) exchange(ctx context.Context, provider, code string) (*oauthUserInfo, error) {
	endpoints := oauthProviders[provider]
	clientID, clientSecret, err := e.credentials(provider)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("client_id", clientID)
	form.Set("client_secret", clientSecret)
	form.Set("redirect_uri", e.cfg.OAuthRedirectURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoints.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token")
	}

	return e.fetchUserInfo(ctx, endpoints.userInfoURL, tokenResp.AccessToken)
}

func (e *oauthExchanger) fetchUserInfo(ctx context.Context, infoURL, accessToken string) (*oauthUserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, infoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("userinfo fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo endpoint returned status %d", resp.StatusCode)
	}

	var info oauthUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode userinfo: %w", err)
	}
	if info.Email == "" {
		return nil, fmt.Errorf("OAuth provider did not return an email")
	}
	return &info, nil
}
