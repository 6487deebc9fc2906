package handler

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/erms-api/internal/dto"
	"github.com/noah-isme/erms-api/internal/service"
	"github.com/noah-isme/erms-api/internal/utils"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// GradeHandler wires exam score entry, gradebooks and grade reports.
type GradeHandler struct {
	service service.GradeService
	logger  zerolog.Logger
}

// NewGradeHandler constructs the grade handler.
func NewGradeHandler(service service.GradeService, logger zerolog.Logger) *GradeHandler {
	return &GradeHandler{
		service: service,
		logger:  logger.With().Str("component", "grade_handler").Logger(),
	}
}

// RegisterClassRoutes binds the routes nested under /classes/:id.
func (h *GradeHandler) RegisterClassRoutes(classes fiber.Router, staff fiber.Handler) {
	classes.Get("/:id/exam-scores", staff, h.listScores)
	classes.Put("/:id/exam-scores", staff, h.recordScores)
	classes.Get("/:id/gradebook", staff, h.gradebook)
	classes.Get("/:id/gradebook.xlsx", staff, h.exportGradebook)
}

// Register binds the /grades routes.
func (h *GradeHandler) Register(router fiber.Router, students fiber.Handler) {
	router.Get("/mine", students, h.mine)
}

func (h *GradeHandler) listScores(c *fiber.Ctx) error {
	classID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	scores, err := h.service.ListForClass(requestContext(c), actorFromContext(c), classID)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "exam scores retrieved", scores)
}

func (h *GradeHandler) recordScores(c *fiber.Ctx) error {
	classID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.RecordExamScoresRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	scores, err := h.service.Record(requestContext(c), actorFromContext(c), classID, payload)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "exam scores recorded", scores)
}

func (h *GradeHandler) gradebook(c *fiber.Ctx) error {
	classID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	book, err := h.service.Gradebook(requestContext(c), actorFromContext(c), classID)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "gradebook retrieved", book)
}

func (h *GradeHandler) exportGradebook(c *fiber.Ctx) error {
	classID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	content, filename, err := h.service.ExportGradebook(requestContext(c), actorFromContext(c), classID)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	c.Set(fiber.HeaderContentType, xlsxContentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Status(fiber.StatusOK).Send(content)
}

func (h *GradeHandler) mine(c *fiber.Ctx) error {
	report, err := h.service.StudentGrades(requestContext(c), actorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "grades retrieved", report)
}
