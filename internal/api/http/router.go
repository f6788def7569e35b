package http

import (
	nethttp "net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/medconcierge/intake-service/internal/api/http/handlers"
	"github.com/medconcierge/intake-service/internal/auth"
	"github.com/medconcierge/intake-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Admin          *handlers.AdminHandler
	Applications   *handlers.ApplicationsHandler
	Messages       *handlers.MessagesHandler
	AuthMiddleware *auth.AuthMiddleware
	// Metrics is mounted at MetricsPath when set.
	Metrics     nethttp.Handler
	MetricsPath string
}

// RegisterRoutes wires HTTP routes. Public routes are registered before the
// session-guarded groups that share their prefixes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		app.Get(path, adaptor.HTTPHandler(cfg.Metrics))
	}

	app.Get("/lookups", cfg.Applications.Lookups)
	app.Post("/applications", cfg.Applications.Submit)

	authGroup := app.Group("/auth")
	authGroup.Post("/sign-in", cfg.Auth.SignIn)
	authGroup.Post("/password/reset/request", cfg.Auth.RequestPasswordReset)
	authGroup.Post("/password/reset/confirm", cfg.Auth.ConfirmPasswordReset)
	authGroup.Post("/password/change", cfg.AuthMiddleware.Handle, cfg.Auth.ChangePassword)
	authGroup.Get("/me", cfg.AuthMiddleware.Handle, cfg.Auth.Me)

	admin := app.Group("/admin", cfg.AuthMiddleware.Handle, auth.RequireRole(domain.RoleAdmin))
	admin.Post("/staff", cfg.Admin.CreateStaff)
	admin.Get("/staff", cfg.Admin.ListStaff)

	apps := app.Group("/applications", cfg.AuthMiddleware.Handle)
	apps.Get("/", cfg.Applications.List)
	apps.Get("/unread-counts", cfg.Messages.UnreadCounts)
	apps.Get("/:id", cfg.Applications.Get)
	apps.Get("/:id/history", cfg.Applications.History)
	apps.Patch("/:id/status", cfg.Applications.UpdateStatus)
	apps.Get("/:id/messages", cfg.Messages.List)
	apps.Post("/:id/messages", cfg.Messages.Post)
	apps.Patch("/:id/messages/read", cfg.Messages.MarkRead)
}
