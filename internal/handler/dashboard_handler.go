package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/erms-api/internal/service"
	"github.com/noah-isme/erms-api/internal/utils"
)

// DashboardHandler serves the student and teacher landing pages.
type DashboardHandler struct {
	service service.DashboardService
	logger  zerolog.Logger
}

// NewDashboardHandler constructs the dashboard handler.
func NewDashboardHandler(service service.DashboardService, logger zerolog.Logger) *DashboardHandler {
	return &DashboardHandler{
		service: service,
		logger:  logger.With().Str("component", "dashboard_handler").Logger(),
	}
}

// Register attaches the dashboard endpoints.
func (h *DashboardHandler) Register(router fiber.Router, students, teachers fiber.Handler) {
	router.Get("/student", students, h.student)
	router.Get("/teacher", teachers, h.teacher)
}

func (h *DashboardHandler) student(c *fiber.Ctx) error {
	dashboard, err := h.service.Student(requestContext(c), actorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	if dashboard.CacheHit {
		c.Set("X-Cache", "HIT")
	} else {
		c.Set("X-Cache", "MISS")
	}
	return utils.SendSuccess(c, "dashboard retrieved", dashboard)
}

func (h *DashboardHandler) teacher(c *fiber.Ctx) error {
	dashboard, err := h.service.Teacher(requestContext(c), actorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "dashboard retrieved", dashboard)
}
