package handlers

import (
	"errors"
	"net/url"

	"github.com/accountkit/account-backend/internal/dto"
	"github.com/accountkit/account-backend/internal/identity"
	"github.com/accountkit/account-backend/internal/middleware"
	"github.com/accountkit/account-backend/internal/profile"
	"github.com/gofiber/fiber/v2"
)

type AuthHandler struct {
	identity *identity.Service
	resolver *profile.Resolver
}

func NewAuthHandler(identitySvc *identity.Service, resolver *profile.Resolver) *AuthHandler {
	return &AuthHandler{identity: identitySvc, resolver: resolver}
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid request body",
		})
	}

	session, err := h.identity.Register(c.Context(), identity.SignUpParams{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		if errors.Is(err, identity.ErrEmailTaken) {
			return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{
				Error: true, Message: err.Error(),
			})
		}
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: err.Error(),
		})
	}

	resp, err := h.sessionResponse(c, session)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid request body",
		})
	}

	session, err := h.identity.SignIn(c.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error: true, Message: err.Error(),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Internal server error",
		})
	}

	resp, err := h.sessionResponse(c, session)
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var req dto.RefreshRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid request body",
		})
	}

	session, err := h.identity.Refresh(c.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidToken) {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error: true, Message: err.Error(),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Internal server error",
		})
	}

	resp, err := h.sessionResponse(c, session)
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	var req dto.LogoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid request body",
		})
	}

	if err := h.identity.SignOut(c.Context(), req.RefreshToken); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to logout",
		})
	}

	return c.JSON(fiber.Map{"message": "Logged out successfully"})
}

// CurrentSession reports the verified session behind the bearer token. The
// service never stores access tokens, so the payload is derived from the
// token's claims plus the resolved profile.
func (h *AuthHandler) CurrentSession(c *fiber.Ctx) error {
	subjectID, err := middleware.SubjectID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}

	user, err := h.resolver.Resolve(c.Context(), subjectID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to load user profile",
		})
	}

	return c.JSON(dto.SessionResponse{
		TokenType: "bearer",
		ExpiresAt: middleware.TokenExpiry(c),
		User:      dto.FromAuthUser(user),
	})
}

// CurrentUser returns the provider-side identity of the caller, metadata
// included. Clients use it to seed profile provisioning.
func (h *AuthHandler) CurrentUser(c *fiber.Ctx) error {
	subjectID, err := middleware.SubjectID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}

	ident, err := h.identity.IdentityByID(c.Context(), subjectID)
	if err != nil {
		if errors.Is(err, identity.ErrIdentityNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
				Error: true, Message: "User not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Internal server error",
		})
	}

	return c.JSON(ident)
}

// Profile resolves (and lazily provisions) the caller's profile.
func (h *AuthHandler) Profile(c *fiber.Ctx) error {
	subjectID, err := middleware.SubjectID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}

	user, err := h.resolver.Resolve(c.Context(), subjectID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to load user profile",
		})
	}

	return c.JSON(dto.FromAuthUser(user))
}

// UpdateUser merges metadata changes into the caller's identity, which emits
// a user_updated event for subscribed bridges.
func (h *AuthHandler) UpdateUser(c *fiber.Ctx) error {
	subjectID, err := middleware.SubjectID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}

	var req dto.UpdateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid request body",
		})
	}

	updates := map[string]interface{}{}
	if req.FirstName != nil {
		updates["first_name"] = *req.FirstName
	}
	if req.LastName != nil {
		updates["last_name"] = *req.LastName
	}
	if req.AvatarURL != nil {
		updates["avatar_url"] = *req.AvatarURL
	}
	if len(updates) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "No fields to update",
		})
	}

	ident, err := h.identity.UpdateMetadata(c.Context(), subjectID, updates)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to update user",
		})
	}

	return c.JSON(ident)
}

// OAuthStart returns the provider authorization URL the client must visit.
func (h *AuthHandler) OAuthStart(c *fiber.Ctx) error {
	provider := c.Params("provider")
	redirectTo := c.Query("redirect_to", "/dashboard")

	authURL, err := h.identity.OAuthURL(provider, redirectTo)
	if err != nil {
		if errors.Is(err, identity.ErrUnknownProvider) {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Error: true, Message: err.Error(),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: err.Error(),
		})
	}

	return c.JSON(dto.OAuthURLResponse{Provider: provider, URL: authURL})
}

// OAuthCallback exchanges the authorization code and hands the session back
// to the browser in the redirect fragment, or as JSON when no redirect was
// requested.
func (h *AuthHandler) OAuthCallback(c *fiber.Ctx) error {
	code := c.Query("code")
	state := c.Query("state")
	if code == "" || state == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Missing code or state",
		})
	}

	session, redirectTo, err := h.identity.HandleOAuthCallback(c.Context(), code, state)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: err.Error(),
		})
	}

	if redirectTo != "" {
		fragment := url.Values{}
		fragment.Set("access_token", session.AccessToken)
		fragment.Set("refresh_token", session.RefreshToken)
		return c.Redirect(redirectTo+"#"+fragment.Encode(), fiber.StatusFound)
	}

	resp, err := h.sessionResponse(c, session)
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

// sessionResponse resolves the signed-in subject's profile so every session
// payload carries the application-side user, provisioning it on first login.
func (h *AuthHandler) sessionResponse(c *fiber.Ctx, session *identity.Session) (*dto.SessionResponse, error) {
	user, err := h.resolver.Resolve(c.Context(), session.SubjectID())
	if err != nil {
		return nil, c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to load user profile",
		})
	}

	return &dto.SessionResponse{
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		TokenType:    session.TokenType,
		ExpiresAt:    session.ExpiresAt,
		User:         dto.FromAuthUser(user),
	}, nil
}
