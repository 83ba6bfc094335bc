package handlers

import (
	"github.com/accountkit/account-backend/internal/dto"
	"github.com/accountkit/account-backend/internal/identity"
	"github.com/accountkit/account-backend/internal/middleware"
	"github.com/gofiber/fiber/v2"
)

type DashboardHandler struct {
	identity *identity.Service
}

func NewDashboardHandler(identitySvc *identity.Service) *DashboardHandler {
	return &DashboardHandler{identity: identitySvc}
}

// Show returns the dashboard payload: the resolved profile plus account
// details sourced from the identity record.
func (h *DashboardHandler) Show(c *fiber.Ctx) error {
	user, ok := middleware.AuthUser(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}

	ident, err := h.identity.IdentityByID(c.Context(), user.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to load account details",
		})
	}

	return c.JSON(dto.DashboardResponse{
		Profile: dto.FromAuthUser(user),
		Account: dto.AccountDetails{
			MemberSince:  ident.CreatedAt,
			LastUpdated:  ident.UpdatedAt,
			AuthProvider: ident.AuthProvider,
		},
		Links: map[string]string{
			"profile":   "/api/auth/profile",
			"dashboard": "/dashboard",
			"admin":     "/admin",
		},
	})
}
