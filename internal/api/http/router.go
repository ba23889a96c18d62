package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/quickbites/identity-service/internal/api/http/handlers"
	"github.com/quickbites/identity-service/internal/auth"
	"github.com/quickbites/identity-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Metrics        *handlers.MetricsHandler
	Auth           *handlers.AuthHandler
	Profile        *handlers.ProfileHandler
	Admin          *handlers.AdminHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Metrics.Get)

	api := app.Group("/api")
	for _, role := range domain.Roles {
		group := api.Group("/" + role.Slug())
		group.Post("/register", cfg.Auth.Register(role))
		group.Post("/login", cfg.Auth.Login(role))
		group.Post("/verify-otp", cfg.Auth.VerifyCode(role))
		group.Post("/google-login", cfg.Auth.IdentityLogin(role))
		group.Post("/forgot-password", cfg.Auth.ForgotPassword(role))
		group.Post("/reset-password", cfg.Auth.ResetPassword(role))
		group.Post("/google-reset-password", cfg.Auth.IdentityResetPassword(role))
		group.Post("/verify-google-reset", cfg.Auth.VerifyIdentityReset(role))
	}

	// Guards are attached per route: a guarded Group would also match the
	// public /api/<role>/... routes sharing its prefix.
	signedIn := func(h fiber.Handler) []fiber.Handler {
		return []fiber.Handler{cfg.AuthMiddleware.Handle, auth.RequireAnyRole(), h}
	}
	adminOnly := func(h fiber.Handler) []fiber.Handler {
		return []fiber.Handler{cfg.AuthMiddleware.Handle, auth.RequireRole(domain.RoleAdmin), h}
	}

	api.Post("/logout", signedIn(cfg.Auth.Logout)...)
	api.Get("/me", signedIn(cfg.Profile.Get)...)
	api.Put("/me", signedIn(cfg.Profile.Update)...)
	api.Post("/me/password", signedIn(cfg.Auth.ChangePassword)...)
	api.Post("/me/photo-upload-url", signedIn(cfg.Profile.PhotoUploadURL)...)

	api.Get("/admin/users", adminOnly(cfg.Admin.List)...)
	api.Delete("/admin/users/:id", adminOnly(cfg.Admin.Delete)...)
}
