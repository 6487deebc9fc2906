package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/erms-api/internal/dto"
	"github.com/noah-isme/erms-api/internal/service"
	"github.com/noah-isme/erms-api/internal/utils"
)

// EnrollmentHandler wires join requests, approvals and roster imports.
type EnrollmentHandler struct {
	service service.EnrollmentService
	logger  zerolog.Logger
}

// NewEnrollmentHandler constructs the enrollment handler.
func NewEnrollmentHandler(service service.EnrollmentService, logger zerolog.Logger) *EnrollmentHandler {
	return &EnrollmentHandler{
		service: service,
		logger:  logger.With().Str("component", "enrollment_handler").Logger(),
	}
}

// RegisterClassRoutes binds the routes nested under /classes/:id.
func (h *EnrollmentHandler) RegisterClassRoutes(classes fiber.Router, staff fiber.Handler) {
	classes.Get("/:id/enrollments", staff, h.listForClass)
	classes.Post("/:id/roster", staff, h.importRoster)
}

// Register binds the /enrollments routes.
func (h *EnrollmentHandler) Register(router fiber.Router, students, staff fiber.Handler) {
	router.Post("/join", students, h.join)
	router.Get("/mine", students, h.mine)
	router.Patch("/:id", staff, h.decide)
	router.Delete("/:id", staff, h.remove)
}

func (h *EnrollmentHandler) join(c *fiber.Ctx) error {
	var payload dto.JoinClassRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	enrollment, err := h.service.Join(requestContext(c), actorFromContext(c), payload)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "join request submitted", enrollment)
}

func (h *EnrollmentHandler) mine(c *fiber.Ctx) error {
	enrollments, err := h.service.ListMine(requestContext(c), actorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "enrollments retrieved", enrollments)
}

func (h *EnrollmentHandler) decide(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.DecideEnrollmentRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	enrollment, err := h.service.Decide(requestContext(c), actorFromContext(c), id, payload)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "enrollment updated", enrollment)
}

func (h *EnrollmentHandler) remove(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.Remove(requestContext(c), actorFromContext(c), id); err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "enrollment removed", nil)
}

func (h *EnrollmentHandler) listForClass(c *fiber.Ctx) error {
	classID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	page, pageSize, err := pagination(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	resp, err := h.service.ListForClass(requestContext(c), actorFromContext(c), classID, dto.EnrollmentListRequest{
		Status:   c.Query("status"),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.OK(c, resp.Items, "enrollments retrieved", resp.Pagination)
}

func (h *EnrollmentHandler) importRoster(c *fiber.Ctx) error {
	classID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	file, err := c.FormFile("file")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "file is required")
	}
	handle, err := file.Open()
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "unable to read upload")
	}
	defer handle.Close()

	resp, err := h.service.ImportRoster(requestContext(c), actorFromContext(c), classID, handle)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "roster imported", resp)
}
