package middleware

import (
	"errors"
	"time"

	"github.com/accountkit/account-backend/internal/config"
	"github.com/accountkit/account-backend/internal/dto"
	jwtware "github.com/gofiber/contrib/jwt"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func JWTProtected(cfg *config.Config) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey: jwtware.SigningKey{Key: []byte(cfg.JWTSecret)},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error:   true,
				Message: "Unauthorized: invalid or expired token",
			})
		},
	})
}

// SubjectID extracts the authenticated subject id from the verified JWT.
func SubjectID(c *fiber.Ctx) (uuid.UUID, error) {
	token, ok := c.Locals("user").(*jwt.Token)
	if !ok || token == nil {
		return uuid.Nil, errors.New("no token in context")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, errors.New("invalid claims")
	}
	sub, _ := claims["sub"].(string)
	return uuid.Parse(sub)
}

// TokenExpiry returns the exp claim of the verified JWT, or the zero time.
func TokenExpiry(c *fiber.Ctx) time.Time {
	token, ok := c.Locals("user").(*jwt.Token)
	if !ok || token == nil {
		return time.Time{}
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return time.Time{}
	}
	if exp, ok := claims["exp"].(float64); ok {
		return time.Unix(int64(exp), 0)
	}
	return time.Time{}
}
