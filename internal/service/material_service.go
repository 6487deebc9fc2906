package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/erms-api/internal/dto"
	"github.com/noah-isme/erms-api/internal/models"
	"github.com/noah-isme/erms-api/internal/repository"
)

const defaultAssignmentMaxScore = 100

// MaterialService manages quizzes and assignments.
type MaterialService interface {
	Create(ctx context.Context, actor Actor, classID uint, req dto.CreateMaterialRequest, attachment *multipart.FileHeader) (dto.MaterialResponse, error)
	List(ctx context.Context, actor Actor, classID uint, page, pageSize int) (dto.MaterialListResponse, error)
	Get(ctx context.Context, actor Actor, id uint) (dto.MaterialResponse, error)
	Update(ctx context.Context, actor Actor, id uint, req dto.UpdateMaterialRequest) (dto.MaterialResponse, error)
	Delete(ctx context.Context, actor Actor, id uint) error
	Publish(ctx context.Context, actor Actor, id uint, req dto.PublishMaterialRequest) (dto.MaterialResponse, error)
}

type materialService struct {
	materials   repository.MaterialRepository
	enrollments repository.EnrollmentRepository
	access      classAccess
	storage     FileStorage
	validator   *validator.Validate
	activity    ActivityRecorder
	dashboards  DashboardInvalidator
	sanitizer   *bluemonday.Policy
	logger      zerolog.Logger
	maxUpload   int64
}

// NewMaterialService constructs the material service. storage may be nil when
// uploads are not configured.
func NewMaterialService(materials repository.MaterialRepository, classes repository.ClassRepository, enrollments repository.EnrollmentRepository, storage FileStorage, validate *validator.Validate, activity ActivityRecorder, dashboards DashboardInvalidator, logger zerolog.Logger) MaterialService {
	return &materialService{
		materials:   materials,
		enrollments: enrollments,
		access:      classAccess{classes: classes, enrollments: enrollments},
		storage:     storage,
		validator:   validate,
		activity:    activity,
		dashboards:  dashboards,
		sanitizer:   bluemonday.UGCPolicy(),
		logger:      logger.With().Str("component", "material_service").Logger(),
		maxUpload:   DefaultMaxUploadBytes,
	}
}

func (s *materialService) Create(ctx context.Context, actor Actor, classID uint, req dto.CreateMaterialRequest, attachment *multipart.FileHeader) (dto.MaterialResponse, error) {
	req.Kind = strings.ToLower(strings.TrimSpace(req.Kind))
	if err := s.validator.Struct(req); err != nil {
		return dto.MaterialResponse{}, err
	}

	class, err := s.access.manageable(ctx, actor, classID)
	if err != nil {
		return dto.MaterialResponse{}, err
	}

	material := models.Material{
		ClassID:     class.ID,
		AuthorID:    actor.ID,
		Kind:        req.Kind,
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(s.sanitizer.Sanitize(req.Description)),
		DueAt:       req.DueAt,
		Published:   req.Published,
	}

	if material.IsQuiz() {
		questions, err := buildQuestions(req.Questions)
		if err != nil {
			return dto.MaterialResponse{}, err
		}
		material.Questions = questions
		material.MaxScore = totalPoints(questions)
	} else {
		if len(req.Questions) > 0 {
			return dto.MaterialResponse{}, fmt.Errorf("%w: assignments do not take questions", ErrInvalidInput)
		}
		material.MaxScore = req.MaxScore
		if material.MaxScore <= 0 {
			material.MaxScore = defaultAssignmentMaxScore
		}
	}

	if attachment != nil {
		url, err := s.upload(ctx, class.ID, attachment)
		if err != nil {
			return dto.MaterialResponse{}, err
		}
		material.FileURL = url
	}

	if err := s.materials.Create(ctx, &material); err != nil {
		return dto.MaterialResponse{}, err
	}

	record(ctx, s.activity, s.logger, ActivityEntry{
		Actor:      actor,
		Action:     "material.created",
		EntityType: "material",
		EntityID:   uintPtr(material.ID),
		Metadata:   map[string]interface{}{"class_id": class.ID, "kind": material.Kind, "published": material.Published},
	})
	if material.Published {
		s.invalidateClass(ctx, class.ID)
	}

	return dto.NewMaterialResponse(material, true), nil
}

func (s *materialService) List(ctx context.Context, actor Actor, classID uint, page, pageSize int) (dto.MaterialListResponse, error) {
	class, err := s.access.visible(ctx, actor, classID)
	if err != nil {
		return dto.MaterialListResponse{}, err
	}
	staff := canManage(actor, class)

	materials, total, err := s.materials.List(ctx, repository.MaterialFilter{
		ClassID:       &class.ID,
		PublishedOnly: !staff,
		Page:          page,
		PageSize:      pageSize,
	})
	if err != nil {
		return dto.MaterialListResponse{}, err
	}

	items := make([]dto.MaterialResponse, 0, len(materials))
	for _, material := range materials {
		items = append(items, dto.NewMaterialResponse(material, staff))
	}
	return dto.MaterialListResponse{Items: items, Pagination: dto.NewPaginationMeta(page, pageSize, total)}, nil
}

func (s *materialService) Get(ctx context.Context, actor Actor, id uint) (dto.MaterialResponse, error) {
	material, staff, err := s.loadVisible(ctx, actor, id)
	if err != nil {
		return dto.MaterialResponse{}, err
	}
	return dto.NewMaterialResponse(material, staff), nil
}

func (s *materialService) Update(ctx context.Context, actor Actor, id uint, req dto.UpdateMaterialRequest) (dto.MaterialResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.MaterialResponse{}, err
	}

	material, err := s.loadManageable(ctx, actor, id)
	if err != nil {
		return dto.MaterialResponse{}, err
	}

	if req.Title != nil {
		material.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		material.Description = strings.TrimSpace(s.sanitizer.Sanitize(*req.Description))
	}
	if req.ClearDueAt {
		material.DueAt = nil
	} else if req.DueAt != nil {
		material.DueAt = req.DueAt
	}

	replaceQuestions := false
	if material.IsQuiz() {
		if req.MaxScore != nil {
			return dto.MaterialResponse{}, fmt.Errorf("%w: a quiz's max score is the sum of its question points", ErrInvalidInput)
		}
		if req.Questions != nil {
			questions, err := buildQuestions(*req.Questions)
			if err != nil {
				return dto.MaterialResponse{}, err
			}
			material.Questions = questions
			material.MaxScore = totalPoints(questions)
			replaceQuestions = true
		}
	} else {
		if req.Questions != nil {
			return dto.MaterialResponse{}, fmt.Errorf("%w: assignments do not take questions", ErrInvalidInput)
		}
		if req.MaxScore != nil {
			material.MaxScore = *req.MaxScore
		}
	}

	if replaceQuestions || (req.MaxScore != nil && !material.IsQuiz()) {
		submitted, err := s.materials.HasSubmissions(ctx, material.ID)
		if err != nil {
			return dto.MaterialResponse{}, err
		}
		if submitted {
			return dto.MaterialResponse{}, ErrMaterialHasSubmissions
		}
	}

	if err := s.materials.Update(ctx, &material, replaceQuestions); err != nil {
		return dto.MaterialResponse{}, err
	}

	record(ctx, s.activity, s.logger, ActivityEntry{
		Actor:      actor,
		Action:     "material.updated",
		EntityType: "material",
		EntityID:   uintPtr(material.ID),
		Metadata:   map[string]interface{}{"class_id": material.ClassID, "questions_replaced": replaceQuestions},
	})
	if material.Published {
		s.invalidateClass(ctx, material.ClassID)
	}
	return dto.NewMaterialResponse(material, true), nil
}

func (s *materialService) Delete(ctx context.Context, actor Actor, id uint) error {
	material, err := s.loadManageable(ctx, actor, id)
	if err != nil {
		return err
	}

	if err := s.materials.Delete(ctx, material.ID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrMaterialNotFound
		}
		return err
	}

	record(ctx, s.activity, s.logger, ActivityEntry{
		Actor:      actor,
		Action:     "material.deleted",
		EntityType: "material",
		EntityID:   uintPtr(material.ID),
		Metadata:   map[string]interface{}{"class_id": material.ClassID, "title": material.Title},
	})
	s.invalidateClass(ctx, material.ClassID)
	return nil
}

func (s *materialService) Publish(ctx context.Context, actor Actor, id uint, req dto.PublishMaterialRequest) (dto.MaterialResponse, error) {
	material, err := s.loadManageable(ctx, actor, id)
	if err != nil {
		return dto.MaterialResponse{}, err
	}

	material.Published = req.Published
	if err := s.materials.Update(ctx, &material, false); err != nil {
		return dto.MaterialResponse{}, err
	}

	action := "material.unpublished"
	if material.Published {
		action = "material.published"
	}
	record(ctx, s.activity, s.logger, ActivityEntry{
		Actor:      actor,
		Action:     action,
		EntityType: "material",
		EntityID:   uintPtr(material.ID),
		Metadata:   map[string]interface{}{"class_id": material.ClassID},
	})
	s.invalidateClass(ctx, material.ClassID)

	return dto.NewMaterialResponse(material, true), nil
}

func (s *materialService) load(ctx context.Context, id uint) (models.Material, error) {
	material, err := s.materials.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Material{}, ErrMaterialNotFound
		}
		return models.Material{}, err
	}
	return material, nil
}

func (s *materialService) loadManageable(ctx context.Context, actor Actor, id uint) (models.Material, error) {
	material, err := s.load(ctx, id)
	if err != nil {
		return models.Material{}, err
	}
	if !canManage(actor, material.Class) {
		return models.Material{}, ErrForbidden
	}
	return material, nil
}

// loadVisible returns the material and whether the actor sees it as staff.
// Unpublished materials are reported as missing to students.
func (s *materialService) loadVisible(ctx context.Context, actor Actor, id uint) (models.Material, bool, error) {
	material, err := s.load(ctx, id)
	if err != nil {
		return models.Material{}, false, err
	}
	if canManage(actor, material.Class) {
		return material, true, nil
	}
	if _, err := s.access.visible(ctx, actor, material.ClassID); err != nil {
		return models.Material{}, false, err
	}
	if !material.Published {
		return models.Material{}, false, ErrMaterialNotFound
	}
	return material, false, nil
}

func (s *materialService) upload(ctx context.Context, classID uint, file *multipart.FileHeader) (string, error) {
	if s.storage == nil {
		return "", ErrStorageUnavailable
	}
	inspected, err := inspectUpload(file, s.maxUpload, attachmentTypes)
	if err != nil {
		return "", err
	}
	return s.storage.Upload(ctx, fmt.Sprintf("classes/%d/materials", classID), inspected.name, bytes.NewReader(inspected.content))
}

func (s *materialService) invalidateClass(ctx context.Context, classID uint) {
	if s.dashboards == nil {
		return
	}
	invalidateStudents(ctx, s.dashboards, classStudentIDs(ctx, s.enrollments, s.logger, classID)...)
}

// buildQuestions validates quiz questions and assigns their positions.
func buildQuestions(inputs []dto.QuestionInput) ([]models.Question, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: a quiz needs at least one question", ErrInvalidInput)
	}

	questions := make([]models.Question, 0, len(inputs))
	for i, input := range inputs {
		kind := strings.ToLower(strings.TrimSpace(input.Kind))
		answer := strings.TrimSpace(input.CorrectAnswer)
		options := make([]string, 0, len(input.Options))
		for _, option := range input.Options {
			if trimmed := strings.TrimSpace(option); trimmed != "" {
				options = append(options, trimmed)
			}
		}

		switch kind {
		case models.QuestionKindMultipleChoice:
			if len(options) < 2 {
				return nil, fmt.Errorf("%w: question %d needs at least two options", ErrInvalidInput, i+1)
			}
			if !containsFold(options, answer) {
				return nil, fmt.Errorf("%w: question %d answer must be one of its options", ErrInvalidInput, i+1)
			}
		case models.QuestionKindTrueFalse:
			answer = strings.ToLower(answer)
			if answer != "true" && answer != "false" {
				return nil, fmt.Errorf("%w: question %d answer must be true or false", ErrInvalidInput, i+1)
			}
			options = []string{"true", "false"}
		case models.QuestionKindShortAnswer:
			options = nil
		default:
			return nil, fmt.Errorf("%w: question %d has unknown kind %q", ErrInvalidInput, i+1, input.Kind)
		}

		if input.Points <= 0 {
			return nil, fmt.Errorf("%w: question %d must be worth more than zero points", ErrInvalidInput, i+1)
		}

		questions = append(questions, models.Question{
			Position:      i + 1,
			Prompt:        strings.TrimSpace(input.Prompt),
			Kind:          kind,
			Options:       options,
			CorrectAnswer: answer,
			Points:        input.Points,
		})
	}
	return questions, nil
}

func totalPoints(questions []models.Question) float64 {
	var total float64
	for _, q := range questions {
		total += q.Points
	}
	return total
}

func containsFold(values []string, target string) bool {
	for _, v := range values {
		if strings.EqualFold(v, target) {
			return true
		}
	}
	return false
}
