package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/erms-api/internal/dto"
	"github.com/noah-isme/erms-api/internal/service"
	"github.com/noah-isme/erms-api/internal/utils"
)

// AdminActivityHandler exposes the audit log and the system summary.
type AdminActivityHandler struct {
	activity   service.ActivityService
	dashboards service.DashboardService
	logger     zerolog.Logger
}

// NewAdminActivityHandler constructs the handler.
func NewAdminActivityHandler(activity service.ActivityService, dashboards service.DashboardService, logger zerolog.Logger) *AdminActivityHandler {
	return &AdminActivityHandler{
		activity:   activity,
		dashboards: dashboards,
		logger:     logger.With().Str("component", "admin_activity_handler").Logger(),
	}
}

// Register attaches the admin reporting routes.
func (h *AdminActivityHandler) Register(router fiber.Router) {
	router.Get("/activity", h.list)
	router.Get("/summary", h.summary)
}

func (h *AdminActivityHandler) list(c *fiber.Ctx) error {
	page, pageSize, err := pagination(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	actorID, err := parseQueryUint(c, "actor_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid actor_id")
	}

	req := dto.ActivityListRequest{
		Page:       page,
		PageSize:   pageSize,
		ActorID:    actorID,
		Action:     c.Query("action"),
		EntityType: c.Query("entity_type"),
	}
	if raw := c.Query("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid since timestamp")
		}
		req.Since = &since
	}

	resp, err := h.activity.List(requestContext(c), req)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.OK(c, resp.Items, "activity retrieved", resp.Pagination)
}

func (h *AdminActivityHandler) summary(c *fiber.Ctx) error {
	summary, err := h.dashboards.AdminSummary(requestContext(c), actorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "summary retrieved", summary)
}
