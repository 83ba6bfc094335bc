package handlers

import (
	"errors"
	"log/slog"
	"strconv"

	"github.com/accountkit/account-backend/internal/admin"
	"github.com/accountkit/account-backend/internal/dto"
	"github.com/accountkit/account-backend/internal/middleware"
	"github.com/accountkit/account-backend/internal/models"
	"github.com/accountkit/account-backend/internal/roles"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type AdminHandler struct {
	admin *admin.Service
}

func NewAdminHandler(adminSvc *admin.Service) *AdminHandler {
	return &AdminHandler{admin: adminSvc}
}

func (h *AdminHandler) ListUsers(c *fiber.Ctx) error {
	search := c.Query("search", "")
	roleFilter := c.Query("role", "all")
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))

	if limit > 100 {
		limit = 100
	}

	users, total, err := h.admin.ListUsers(c.Context(), search, roleFilter, limit, offset)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to fetch users",
		})
	}

	out := make([]dto.AdminUser, 0, len(users))
	for i := range users {
		out = append(out, adminUserFrom(&users[i]))
	}

	return c.JSON(dto.UserListResponse{Users: out, Total: total})
}

func (h *AdminHandler) Stats(c *fiber.Ctx) error {
	total, admins, staff, regular, err := h.admin.Stats(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to fetch user stats",
		})
	}

	return c.JSON(dto.UserStatsResponse{
		TotalUsers:   total,
		AdminUsers:   admins,
		StaffUsers:   staff,
		RegularUsers: regular,
	})
}

func (h *AdminHandler) UpdateRole(c *fiber.Ctx) error {
	userID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid user ID",
		})
	}

	var req dto.UpdateRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid request body",
		})
	}

	role, err := roles.Parse(req.Role)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: err.Error(),
		})
	}

	user, err := h.admin.UpdateRole(c.Context(), userID, role)
	if err != nil {
		if errors.Is(err, admin.ErrUserNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
				Error: true, Message: "User not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to update role",
		})
	}

	if actor, ok := middleware.AuthUser(c); ok {
		slog.Info("user role updated",
			"subject_id", user.ID.String(),
			"action", "role_change",
			"new_role", user.Role,
			"actor_id", actor.ID.String(),
		)
	}

	return c.JSON(fiber.Map{
		"message": "User role updated to " + user.Role,
		"user":    adminUserFrom(user),
	})
}

func adminUserFrom(p *models.Profile) dto.AdminUser {
	return dto.AdminUser{
		ID:        p.ID.String(),
		Email:     p.Email,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Role:      p.Role,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}
