package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/erms-api/internal/config"
	"github.com/noah-isme/erms-api/internal/handler"
	"github.com/noah-isme/erms-api/internal/middleware"
	"github.com/noah-isme/erms-api/internal/models"
	"github.com/noah-isme/erms-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	AuthHandler          *handler.AuthHandler
	AdminUserHandler     *handler.AdminUserHandler
	AdminActivityHandler *handler.AdminActivityHandler
	ClassHandler         *handler.ClassHandler
	EnrollmentHandler    *handler.EnrollmentHandler
	MaterialHandler      *handler.MaterialHandler
	SubmissionHandler    *handler.SubmissionHandler
	GradeHandler         *handler.GradeHandler
	MessageHandler       *handler.MessageHandler
	DashboardHandler     *handler.DashboardHandler
	JWTMiddleware        fiber.Handler
	LoginLimiter         fiber.Handler
	HealthProbes         map[string]handler.HealthProbe
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes))

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	admins := middleware.RequireRole(models.RoleAdmin)
	staff := middleware.RequireRole(models.RoleTeacher, models.RoleAdmin)
	teachers := middleware.RequireRole(models.RoleTeacher)
	students := middleware.RequireRole(models.RoleStudent)

	if deps.AuthHandler != nil {
		// Group-level middleware would also guard the public routes.
		authGroup := api.Group("/auth")
		deps.AuthHandler.RegisterPublic(authGroup, deps.LoginLimiter)
		deps.AuthHandler.RegisterProtected(authGroup, jwtMiddleware)
	}

	admin := api.Group("/admin", jwtMiddleware, admins)
	if deps.AdminUserHandler != nil {
		deps.AdminUserHandler.Register(admin.Group("/users"))
	}
	if deps.AdminActivityHandler != nil {
		deps.AdminActivityHandler.Register(admin)
	}

	classes := api.Group("/classes", jwtMiddleware)
	if deps.ClassHandler != nil {
		deps.ClassHandler.Register(classes, staff)
	}
	if deps.EnrollmentHandler != nil {
		deps.EnrollmentHandler.RegisterClassRoutes(classes, staff)
		deps.EnrollmentHandler.Register(api.Group("/enrollments", jwtMiddleware), students, staff)
	}

	materials := api.Group("/materials", jwtMiddleware)
	if deps.MaterialHandler != nil {
		deps.MaterialHandler.RegisterClassRoutes(classes, staff)
		deps.MaterialHandler.Register(materials, staff)
	}
	if deps.SubmissionHandler != nil {
		deps.SubmissionHandler.RegisterMaterialRoutes(materials, students, staff)
		deps.SubmissionHandler.Register(api.Group("/submissions", jwtMiddleware), students, staff)
	}

	if deps.GradeHandler != nil {
		deps.GradeHandler.RegisterClassRoutes(classes, staff)
		deps.GradeHandler.Register(api.Group("/grades", jwtMiddleware), students)
	}

	if deps.MessageHandler != nil {
		deps.MessageHandler.Register(api.Group("/messages", jwtMiddleware))
	}

	if deps.DashboardHandler != nil {
		deps.DashboardHandler.Register(api.Group("/dashboard", jwtMiddleware), students, teachers)
	}
}
