package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/erms-api/internal/dto"
	"github.com/noah-isme/erms-api/internal/models"
	"github.com/noah-isme/erms-api/internal/repository"
)

// ClassService manages classes and their join codes.
type ClassService interface {
	Create(ctx context.Context, actor Actor, req dto.CreateClassRequest) (dto.ClassResponse, error)
	List(ctx context.Context, actor Actor, req dto.ClassListRequest) (dto.ClassListResponse, error)
	Get(ctx context.Context, actor Actor, id uint) (dto.ClassResponse, error)
	Update(ctx context.Context, actor Actor, id uint, req dto.UpdateClassRequest) (dto.ClassResponse, error)
	Delete(ctx context.Context, actor Actor, id uint) error
	RegenerateCode(ctx context.Context, actor Actor, id uint) (dto.ClassResponse, error)
}

type classService struct {
	classes    repository.ClassRepository
	users      repository.UserRepository
	access     classAccess
	validator  *validator.Validate
	activity   ActivityRecorder
	dashboards DashboardInvalidator
	logger     zerolog.Logger
	codes      CodeGenerator
}

// NewClassService constructs the class service. A nil generator uses crypto/rand.
func NewClassService(classes repository.ClassRepository, enrollments repository.EnrollmentRepository, users repository.UserRepository, validate *validator.Validate, activity ActivityRecorder, dashboards DashboardInvalidator, logger zerolog.Logger, codes CodeGenerator) ClassService {
	if codes == nil {
		codes = NewCodeGenerator(nil)
	}
	return &classService{
		classes:    classes,
		users:      users,
		access:     classAccess{classes: classes, enrollments: enrollments},
		validator:  validate,
		activity:   activity,
		dashboards: dashboards,
		logger:     logger.With().Str("component", "class_service").Logger(),
		codes:      codes,
	}
}

func (s *classService) Create(ctx context.Context, actor Actor, req dto.CreateClassRequest) (dto.ClassResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.ClassResponse{}, err
	}

	teacherID := actor.ID
	switch {
	case actor.IsAdmin():
		if req.TeacherID == 0 {
			return dto.ClassResponse{}, fmt.Errorf("%w: teacher_id is required", ErrInvalidInput)
		}
		teacher, err := s.users.GetByID(ctx, req.TeacherID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return dto.ClassResponse{}, fmt.Errorf("%w: teacher %d does not exist", ErrInvalidInput, req.TeacherID)
			}
			return dto.ClassResponse{}, err
		}
		if teacher.Role != models.RoleTeacher || !teacher.Active {
			return dto.ClassResponse{}, fmt.Errorf("%w: user %d is not an active teacher", ErrInvalidInput, req.TeacherID)
		}
		teacherID = teacher.ID
	case actor.IsTeacher():
	default:
		return dto.ClassResponse{}, ErrForbidden
	}

	code, err := s.uniqueCode(ctx)
	if err != nil {
		return dto.ClassResponse{}, err
	}

	class := models.Class{
		Name:       strings.TrimSpace(req.Name),
		Subject:    strings.TrimSpace(req.Subject),
		Section:    strings.TrimSpace(req.Section),
		SchoolYear: strings.TrimSpace(req.SchoolYear),
		Code:       code,
		TeacherID:  teacherID,
	}
	if err := s.classes.Create(ctx, &class); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return dto.ClassResponse{}, ErrCodeGeneration
		}
		return dto.ClassResponse{}, err
	}

	record(ctx, s.activity, s.logger, ActivityEntry{
		Actor:      actor,
		Action:     "class.created",
		EntityType: "class",
		EntityID:   uintPtr(class.ID),
		Metadata:   map[string]interface{}{"name": class.Name, "teacher_id": teacherID},
	})

	created, err := s.classes.GetByID(ctx, class.ID)
	if err != nil {
		return dto.ClassResponse{}, err
	}
	return dto.NewClassResponse(created, true), nil
}

func (s *classService) List(ctx context.Context, actor Actor, req dto.ClassListRequest) (dto.ClassListResponse, error) {
	filter := repository.ClassFilter{
		Search:          req.Search,
		IncludeArchived: req.IncludeArchived,
		Page:            req.Page,
		PageSize:        req.PageSize,
	}
	switch {
	case actor.IsAdmin():
	case actor.IsTeacher():
		filter.TeacherID = &actor.ID
	case actor.IsStudent():
		filter.StudentID = &actor.ID
	default:
		return dto.ClassListResponse{}, ErrForbidden
	}

	classes, total, err := s.classes.List(ctx, filter)
	if err != nil {
		return dto.ClassListResponse{}, err
	}

	items := make([]dto.ClassResponse, 0, len(classes))
	for _, class := range classes {
		items = append(items, dto.NewClassResponse(class, canManage(actor, class)))
	}
	return dto.ClassListResponse{Items: items, Pagination: dto.NewPaginationMeta(req.Page, req.PageSize, total)}, nil
}

func (s *classService) Get(ctx context.Context, actor Actor, id uint) (dto.ClassResponse, error) {
	class, err := s.access.visible(ctx, actor, id)
	if err != nil {
		return dto.ClassResponse{}, err
	}
	return dto.NewClassResponse(class, canManage(actor, class)), nil
}

func (s *classService) Update(ctx context.Context, actor Actor, id uint, req dto.UpdateClassRequest) (dto.ClassResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.ClassResponse{}, err
	}

	class, err := s.access.manageable(ctx, actor, id)
	if err != nil {
		return dto.ClassResponse{}, err
	}

	if req.Name != nil {
		class.Name = strings.TrimSpace(*req.Name)
	}
	if req.Subject != nil {
		class.Subject = strings.TrimSpace(*req.Subject)
	}
	if req.Section != nil {
		class.Section = strings.TrimSpace(*req.Section)
	}
	if req.SchoolYear != nil {
		class.SchoolYear = strings.TrimSpace(*req.SchoolYear)
	}
	if req.Archived != nil {
		class.Archived = *req.Archived
	}

	if err := s.classes.Update(ctx, &class); err != nil {
		return dto.ClassResponse{}, err
	}

	record(ctx, s.activity, s.logger, ActivityEntry{
		Actor:      actor,
		Action:     "class.updated",
		EntityType: "class",
		EntityID:   uintPtr(class.ID),
		Metadata:   map[string]interface{}{"archived": class.Archived},
	})
	invalidateStudents(ctx, s.dashboards, s.studentIDs(ctx, class.ID)...)
	return dto.NewClassResponse(class, true), nil
}

func (s *classService) Delete(ctx context.Context, actor Actor, id uint) error {
	class, err := s.access.manageable(ctx, actor, id)
	if err != nil {
		return err
	}

	students := s.studentIDs(ctx, class.ID)
	if err := s.classes.Delete(ctx, class.ID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrClassNotFound
		}
		return err
	}

	record(ctx, s.activity, s.logger, ActivityEntry{
		Actor:      actor,
		Action:     "class.deleted",
		EntityType: "class",
		EntityID:   uintPtr(class.ID),
		Metadata:   map[string]interface{}{"name": class.Name},
	})
	invalidateStudents(ctx, s.dashboards, students...)
	return nil
}

func (s *classService) studentIDs(ctx context.Context, classID uint) []uint {
	if s.dashboards == nil {
		return nil
	}
	return classStudentIDs(ctx, s.access.enrollments, s.logger, classID)
}

func (s *classService) RegenerateCode(ctx context.Context, actor Actor, id uint) (dto.ClassResponse, error) {
	class, err := s.access.manageable(ctx, actor, id)
	if err != nil {
		return dto.ClassResponse{}, err
	}

	code, err := s.uniqueCode(ctx)
	if err != nil {
		return dto.ClassResponse{}, err
	}
	class.Code = code
	if err := s.classes.Update(ctx, &class); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return dto.ClassResponse{}, ErrCodeGeneration
		}
		return dto.ClassResponse{}, err
	}

	record(ctx, s.activity, s.logger, ActivityEntry{
		Actor:      actor,
		Action:     "class.code_regenerated",
		EntityType: "class",
		EntityID:   uintPtr(class.ID),
	})
	return dto.NewClassResponse(class, true), nil
}

func (s *classService) uniqueCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := s.codes()
		if err != nil {
			return "", err
		}
		exists, err := s.classes.CodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
		s.logger.Debug().Int("attempt", attempt+1).Msg("class code collision")
	}
	return "", ErrCodeGeneration
}
