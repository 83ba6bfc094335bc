package middleware

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/accountkit/account-backend/internal/authstate"
	"github.com/accountkit/account-backend/internal/dto"
	"github.com/accountkit/account-backend/internal/identity"
	"github.com/accountkit/account-backend/internal/profile"
	"github.com/accountkit/account-backend/internal/roles"
	"github.com/gofiber/fiber/v2"
)

const authUserKey = "authUser"

// RequireRoles guards a route group with the auth-state decision function.
// The per-request state is built from the verified JWT and the resolved
// profile; a request is by definition past initialization, so only the
// authenticated/authorized outcomes can occur here.
func RequireRoles(resolver authstate.Resolver, required []roles.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		state := authstate.State{IsInitialized: true}

		if subjectID, err := SubjectID(c); err == nil {
			state.Session = &identity.Session{
				AccessToken: extractBearer(c),
				TokenType:   "bearer",
				ExpiresAt:   TokenExpiry(c),
			}
			user, err := resolver.Resolve(c.Context(), subjectID)
			if err != nil {
				slog.Error("profile resolution failed", "subject_id", subjectID, "error", err)
				return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
					Error: true, Message: "Failed to load user profile",
				})
			}
			state.User = user
		}

		switch decision := authstate.Decide(state, required); decision {
		case authstate.DecisionAuthorized:
			c.Locals(authUserKey, state.User)
			return c.Next()
		case authstate.DecisionUnauthenticated:
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error: true, Message: "Please sign in to access this page.",
			})
		case authstate.DecisionUnauthorized:
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error":          true,
				"message":        "You don't have permission to access this page.",
				"your_role":      state.User.Role.String(),
				"required_roles": roleStrings(required),
			})
		default:
			return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{
				Error: true, Message: fmt.Sprintf("auth state not ready: %s", decision),
			})
		}
	}
}

// AuthUser returns the profile resolved by RequireRoles for this request.
func AuthUser(c *fiber.Ctx) (*profile.AuthUser, bool) {
	u, ok := c.Locals(authUserKey).(*profile.AuthUser)
	return u, ok && u != nil
}

func extractBearer(c *fiber.Ctx) string {
	token, ok := strings.CutPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
	if !ok {
		return ""
	}
	return token
}

func roleStrings(rs []roles.Role) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.String()
	}
	return out
}
