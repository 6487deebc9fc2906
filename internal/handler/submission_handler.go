package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/erms-api/internal/dto"
	"github.com/noah-isme/erms-api/internal/service"
	"github.com/noah-isme/erms-api/internal/utils"
)

// SubmissionHandler manages quiz attempts, assignment uploads and grading.
type SubmissionHandler struct {
	service service.SubmissionService
	logger  zerolog.Logger
}

// NewSubmissionHandler builds a submission handler instance.
func NewSubmissionHandler(service service.SubmissionService, logger zerolog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		service: service,
		logger:  logger.With().Str("component", "submission_handler").Logger(),
	}
}

// RegisterMaterialRoutes binds the routes nested under /materials/:id.
func (h *SubmissionHandler) RegisterMaterialRoutes(materials fiber.Router, students, staff fiber.Handler) {
	materials.Get("/:id/submissions", staff, h.listForMaterial)
	materials.Post("/:id/submissions", students, h.submit)
}

// Register binds the /submissions routes.
func (h *SubmissionHandler) Register(router fiber.Router, students, staff fiber.Handler) {
	router.Get("/mine", students, h.mine)
	router.Get("/:id", h.get)
	router.Patch("/:id/grade", staff, h.grade)
}

// submit takes a multipart "file" for assignments and a JSON answer list for quizzes.
func (h *SubmissionHandler) submit(c *fiber.Ctx) error {
	materialID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var submission dto.SubmissionResponse
	if isMultipart(c) {
		file, err := c.FormFile("file")
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "file is required")
		}
		submission, err = h.service.SubmitAssignment(requestContext(c), actorFromContext(c), materialID, file)
		if err != nil {
			return respondError(c, h.logger, err)
		}
	} else {
		var payload dto.SubmitQuizRequest
		if err := c.BodyParser(&payload); err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
		}
		submission, err = h.service.SubmitQuiz(requestContext(c), actorFromContext(c), materialID, payload)
		if err != nil {
			return respondError(c, h.logger, err)
		}
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "submission received", submission)
}

func (h *SubmissionHandler) listForMaterial(c *fiber.Ctx) error {
	materialID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	page, pageSize, err := pagination(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	resp, err := h.service.ListForMaterial(requestContext(c), actorFromContext(c), materialID, page, pageSize)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.OK(c, resp.Items, "submissions retrieved", resp.Pagination)
}

func (h *SubmissionHandler) mine(c *fiber.Ctx) error {
	classID, err := parseQueryUint(c, "class_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid class_id")
	}

	submissions, err := h.service.ListMine(requestContext(c), actorFromContext(c), classID)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "submissions retrieved", submissions)
}

func (h *SubmissionHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	submission, err := h.service.Get(requestContext(c), actorFromContext(c), id)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "submission retrieved", submission)
}

func (h *SubmissionHandler) grade(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.GradeSubmissionRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	submission, err := h.service.Grade(requestContext(c), actorFromContext(c), id, payload)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "submission graded", submission)
}
