package routes

import (
	"strings"
	"time"

	"github.com/accountkit/account-backend/internal/config"
	"github.com/accountkit/account-backend/internal/dto"
	"github.com/accountkit/account-backend/internal/handlers"
	"github.com/accountkit/account-backend/internal/middleware"
	"github.com/accountkit/account-backend/internal/profile"
	"github.com/accountkit/account-backend/internal/roles"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/golang-jwt/jwt/v5"
)

func Setup(
	app *fiber.App,
	cfg *config.Config,
	resolver *profile.Resolver,
	authHandler *handlers.AuthHandler,
	dashboardHandler *handlers.DashboardHandler,
	adminHandler *handlers.AdminHandler,
	healthHandler *handlers.HealthHandler,
) {
	api := app.Group("/api")

	// General API rate limiter: 60 req/min per IP
	api.Use(limiter.New(limiter.Config{
		Max:               60,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))

	api.Get("/health", healthHandler.Check)

	// Auth — public, with a stricter rate limit: 10 req/min per IP
	auth := api.Group("/auth")
	auth.Use(limiter.New(limiter.Config{
		Max:               10,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)
	auth.Post("/refresh", authHandler.Refresh)
	auth.Get("/oauth/:provider", authHandler.OAuthStart)

	// OAuth providers redirect here; outside /api so the callback URL
	// matches what the original front end registered.
	app.Get("/auth/callback", authHandler.OAuthCallback)

	// Protected account endpoints (JWT required)
	api.Post("/auth/logout", middleware.JWTProtected(cfg), authHandler.Logout)
	api.Get("/auth/session", middleware.JWTProtected(cfg), authHandler.CurrentSession)
	api.Get("/auth/user", middleware.JWTProtected(cfg), authHandler.CurrentUser)
	api.Put("/auth/user", middleware.JWTProtected(cfg), authHandler.UpdateUser)
	api.Get("/auth/profile", middleware.JWTProtected(cfg), authHandler.Profile)

	// Dashboard: any authenticated role
	api.Get("/dashboard",
		middleware.JWTProtected(cfg),
		middleware.RequireRoles(resolver, roles.UserRoles),
		dashboardHandler.Show)

	// Admin panel: admin or superadmin only
	admin := api.Group("/admin",
		middleware.JWTProtected(cfg),
		middleware.RequireRoles(resolver, roles.AdminRoles))
	admin.Get("/users", adminHandler.ListUsers)
	admin.Get("/stats", adminHandler.Stats)
	admin.Put("/users/:id/role", adminHandler.UpdateRole)

	// Page-level routes. The API is the real surface; these mirror the
	// original front end's route map so bare browser navigation lands
	// somewhere sensible.
	app.Get("/login", entryPage(cfg, "Sign in via POST /api/auth/login"))
	app.Get("/register", entryPage(cfg, "Create an account via POST /api/auth/register"))
	app.Get("/dashboard",
		middleware.JWTProtected(cfg),
		middleware.RequireRoles(resolver, roles.UserRoles),
		dashboardHandler.Show)
	app.Get("/admin",
		middleware.JWTProtected(cfg),
		middleware.RequireRoles(resolver, roles.AdminRoles),
		adminHandler.Stats)

	// Root and unknown paths redirect to the dashboard or login depending
	// on auth state.
	app.Use(func(c *fiber.Ctx) error {
		if strings.HasPrefix(c.Path(), "/api") {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
				Error: true, Message: "Not found",
			})
		}
		if hasValidToken(c, cfg) {
			return c.Redirect("/dashboard", fiber.StatusFound)
		}
		return c.Redirect("/login", fiber.StatusFound)
	})
}

// entryPage sends already-authenticated visitors to the dashboard, the way
// the original login/register pages did.
func entryPage(cfg *config.Config, hint string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if hasValidToken(c, cfg) {
			return c.Redirect("/dashboard", fiber.StatusFound)
		}
		return c.JSON(fiber.Map{"message": hint})
	}
}

func hasValidToken(c *fiber.Ctx, cfg *config.Config) bool {
	authHeader := c.Get(fiber.HeaderAuthorization)
	const prefix = "Bearer "
	if !strings.HasPrefix(authHeader, prefix) {
		return false
	}

	token, err := jwt.Parse(authHeader[len(prefix):], func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(cfg.JWTSecret), nil
	})
	return err == nil && token.Valid
}
