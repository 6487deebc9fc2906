package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/erms-api/internal/dto"
	"github.com/noah-isme/erms-api/internal/models"
	"github.com/noah-isme/erms-api/internal/repository"
	"github.com/noah-isme/erms-api/pkg/spreadsheet"
)

// EnrollmentService implements class-code joins, teacher decisions and roster imports.
type EnrollmentService interface {
	Join(ctx context.Context, actor Actor, req dto.JoinClassRequest) (dto.EnrollmentResponse, error)
	Decide(ctx context.Context, actor Actor, id uint, req dto.DecideEnrollmentRequest) (dto.EnrollmentResponse, error)
	ListForClass(ctx context.Context, actor Actor, classID uint, req dto.EnrollmentListRequest) (dto.EnrollmentListResponse, error)
	ListMine(ctx context.Context, actor Actor) ([]dto.EnrollmentResponse, error)
	Remove(ctx context.Context, actor Actor, id uint) error
	ImportRoster(ctx context.Context, actor Actor, classID uint, workbook io.Reader) (dto.RosterImportResponse, error)
}

type enrollmentService struct {
	enrollments repository.EnrollmentRepository
	classes     repository.ClassRepository
	users       repository.UserRepository
	access      classAccess
	validator   *validator.Validate
	activity    ActivityRecorder
	dashboards  DashboardInvalidator
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewEnrollmentService constructs the enrollment service.
func NewEnrollmentService(enrollments repository.EnrollmentRepository, classes repository.ClassRepository, users repository.UserRepository, validate *validator.Validate, activity ActivityRecorder, dashboards DashboardInvalidator, logger zerolog.Logger) EnrollmentService {
	return &enrollmentService{
		enrollments: enrollments,
		classes:     classes,
		users:       users,
		access:      classAccess{classes: classes, enrollments: enrollments},
		validator:   validate,
		activity:    activity,
		dashboards:  dashboards,
		logger:      logger.With().Str("component", "enrollment_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/erms-api/internal/service/enrollment"),
		now:         time.Now,
	}
}

func (s *enrollmentService) Join(ctx context.Context, actor Actor, req dto.JoinClassRequest) (dto.EnrollmentResponse, error) {
	if !actor.IsStudent() {
		return dto.EnrollmentResponse{}, ErrForbidden
	}
	req.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	if err := s.validator.Struct(req); err != nil {
		return dto.EnrollmentResponse{}, err
	}

	class, err := s.classes.GetByCode(ctx, req.Code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.EnrollmentResponse{}, ErrClassNotFound
		}
		return dto.EnrollmentResponse{}, err
	}
	if class.Archived {
		return dto.EnrollmentResponse{}, ErrClassArchived
	}

	existing, err := s.enrollments.GetByClassAndStudent(ctx, class.ID, actor.ID)
	switch {
	case err == nil:
		switch existing.Status {
		case models.EnrollmentStatusApproved:
			return dto.EnrollmentResponse{}, ErrAlreadyEnrolled
		case models.EnrollmentStatusPending:
			return dto.EnrollmentResponse{}, ErrEnrollmentPending
		}
		existing.Status = models.EnrollmentStatusPending
		existing.DecidedAt = nil
		existing.DecidedBy = nil
		if err := s.enrollments.Update(ctx, &existing); err != nil {
			return dto.EnrollmentResponse{}, err
		}
		existing.Class = class
		s.logger.Info().Uint("class_id", class.ID).Uint("student_id", actor.ID).Msg("denied enrollment re-requested")
		return dto.NewEnrollmentResponse(existing), nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return dto.EnrollmentResponse{}, err
	}

	enrollment := models.Enrollment{
		ClassID:   class.ID,
		StudentID: actor.ID,
		Status:    models.EnrollmentStatusPending,
	}
	if err := s.enrollments.Create(ctx, &enrollment); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// A concurrent join from the same student won the race.
			return dto.EnrollmentResponse{}, ErrEnrollmentPending
		}
		return dto.EnrollmentResponse{}, err
	}
	enrollment.Class = class
	return dto.NewEnrollmentResponse(enrollment), nil
}

func (s *enrollmentService) Decide(ctx context.Context, actor Actor, id uint, req dto.DecideEnrollmentRequest) (dto.EnrollmentResponse, error) {
	req.Decision = strings.ToLower(strings.TrimSpace(req.Decision))
	if err := s.validator.Struct(req); err != nil {
		return dto.EnrollmentResponse{}, err
	}

	enrollment, err := s.load(ctx, id)
	if err != nil {
		return dto.EnrollmentResponse{}, err
	}
	if !canManage(actor, enrollment.Class) {
		return dto.EnrollmentResponse{}, ErrForbidden
	}

	status := models.EnrollmentStatusDenied
	if req.Decision == "approve" {
		status = models.EnrollmentStatusApproved
	}
	previous := enrollment.Status

	now := s.now()
	enrollment.Status = status
	enrollment.DecidedAt = &now
	enrollment.DecidedBy = uintPtr(actor.ID)
	if err := s.enrollments.Update(ctx, &enrollment); err != nil {
		return dto.EnrollmentResponse{}, err
	}

	record(ctx, s.activity, s.logger, ActivityEntry{
		Actor:      actor,
		Action:     "enrollment." + status,
		EntityType: "enrollment",
		EntityID:   uintPtr(enrollment.ID),
		Metadata: map[string]interface{}{
			"class_id":        enrollment.ClassID,
			"student_id":      enrollment.StudentID,
			"previous_status": previous,
		},
	})
	invalidateStudents(ctx, s.dashboards, enrollment.StudentID)

	return dto.NewEnrollmentResponse(enrollment), nil
}

func (s *enrollmentService) ListForClass(ctx context.Context, actor Actor, classID uint, req dto.EnrollmentListRequest) (dto.EnrollmentListResponse, error) {
	req.Status = strings.ToLower(strings.TrimSpace(req.Status))
	if err := s.validator.Struct(req); err != nil {
		return dto.EnrollmentListResponse{}, err
	}
	if _, err := s.access.manageable(ctx, actor, classID); err != nil {
		return dto.EnrollmentListResponse{}, err
	}

	enrollments, total, err := s.enrollments.List(ctx, repository.EnrollmentFilter{
		ClassID:  &classID,
		Status:   req.Status,
		Page:     req.Page,
		PageSize: req.PageSize,
	})
	if err != nil {
		return dto.EnrollmentListResponse{}, err
	}

	items := make([]dto.EnrollmentResponse, 0, len(enrollments))
	for _, enrollment := range enrollments {
		items = append(items, dto.NewEnrollmentResponse(enrollment))
	}
	return dto.EnrollmentListResponse{Items: items, Pagination: dto.NewPaginationMeta(req.Page, req.PageSize, total)}, nil
}

func (s *enrollmentService) ListMine(ctx context.Context, actor Actor) ([]dto.EnrollmentResponse, error) {
	if !actor.IsStudent() {
		return nil, ErrForbidden
	}
	enrollments, _, err := s.enrollments.List(ctx, repository.EnrollmentFilter{StudentID: &actor.ID})
	if err != nil {
		return nil, err
	}
	items := make([]dto.EnrollmentResponse, 0, len(enrollments))
	for _, enrollment := range enrollments {
		items = append(items, dto.NewEnrollmentResponse(enrollment))
	}
	return items, nil
}

func (s *enrollmentService) Remove(ctx context.Context, actor Actor, id uint) error {
	enrollment, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !canManage(actor, enrollment.Class) {
		return ErrForbidden
	}

	if err := s.enrollments.Delete(ctx, enrollment.ID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrEnrollmentNotFound
		}
		return err
	}

	record(ctx, s.activity, s.logger, ActivityEntry{
		Actor:      actor,
		Action:     "enrollment.removed",
		EntityType: "enrollment",
		EntityID:   uintPtr(enrollment.ID),
		Metadata:   map[string]interface{}{"class_id": enrollment.ClassID, "student_id": enrollment.StudentID},
	})
	invalidateStudents(ctx, s.dashboards, enrollment.StudentID)
	return nil
}

func (s *enrollmentService) ImportRoster(ctx context.Context, actor Actor, classID uint, workbook io.Reader) (dto.RosterImportResponse, error) {
	ctx, span := s.tracer.Start(ctx, "enrollment.import_roster")
	span.SetAttributes(attribute.Int64("roster.class_id", int64(classID)))
	defer span.End()

	class, err := s.access.manageable(ctx, actor, classID)
	if err != nil {
		span.SetStatus(codes.Error, "access_denied")
		return dto.RosterImportResponse{}, err
	}
	if workbook == nil {
		return dto.RosterImportResponse{}, ErrFileRequired
	}

	rows, err := spreadsheet.ReadRoster(workbook)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid_workbook")
		return dto.RosterImportResponse{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	emails := make([]string, 0, len(rows))
	for _, row := range rows {
		emails = append(emails, row.Email)
	}
	users, err := s.users.GetByEmails(ctx, emails)
	if err != nil {
		span.RecordError(err)
		return dto.RosterImportResponse{}, err
	}
	byEmail := make(map[string]models.User, len(users))
	for _, user := range users {
		byEmail[user.Email] = user
	}

	result := dto.RosterImportResponse{Enrolled: []dto.EnrollmentResponse{}, Skipped: []dto.RosterSkip{}}
	seen := map[uint]bool{}
	now := s.now()
	for _, row := range rows {
		email := models.NormalizeEmail(row.Email)
		user, ok := byEmail[email]
		switch {
		case !ok:
			result.Skipped = append(result.Skipped, dto.RosterSkip{Row: row.Row, Email: email, Reason: "no account with this email"})
			continue
		case user.Role != models.RoleStudent:
			result.Skipped = append(result.Skipped, dto.RosterSkip{Row: row.Row, Email: email, Reason: "account is not a student"})
			continue
		case seen[user.ID]:
			result.Skipped = append(result.Skipped, dto.RosterSkip{Row: row.Row, Email: email, Reason: "duplicate row"})
			continue
		}
		seen[user.ID] = true

		enrollment, err := s.approve(ctx, actor, class, user, now)
		if err != nil {
			span.RecordError(err)
			return dto.RosterImportResponse{}, err
		}
		result.Enrolled = append(result.Enrolled, dto.NewEnrollmentResponse(enrollment))
	}

	span.SetAttributes(
		attribute.Int("roster.enrolled", len(result.Enrolled)),
		attribute.Int("roster.skipped", len(result.Skipped)),
	)
	record(ctx, s.activity, s.logger, ActivityEntry{
		Actor:      actor,
		Action:     "enrollment.roster_imported",
		EntityType: "class",
		EntityID:   uintPtr(class.ID),
		Metadata:   map[string]interface{}{"enrolled": len(result.Enrolled), "skipped": len(result.Skipped)},
	})
	invalidateStudents(ctx, s.dashboards, keys(seen)...)

	return result, nil
}

// approve creates or flips the student's enrollment to approved.
func (s *enrollmentService) approve(ctx context.Context, actor Actor, class models.Class, student models.User, now time.Time) (models.Enrollment, error) {
	enrollment, err := s.enrollments.GetByClassAndStudent(ctx, class.ID, student.ID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Enrollment{}, err
	}

	enrollment.ClassID = class.ID
	enrollment.StudentID = student.ID
	enrollment.Status = models.EnrollmentStatusApproved
	enrollment.DecidedAt = &now
	enrollment.DecidedBy = uintPtr(actor.ID)

	if enrollment.ID == 0 {
		err = s.enrollments.Create(ctx, &enrollment)
	} else {
		err = s.enrollments.Update(ctx, &enrollment)
	}
	if err != nil {
		return models.Enrollment{}, err
	}

	enrollment.Class = class
	enrollment.Student = student
	return enrollment, nil
}

func (s *enrollmentService) load(ctx context.Context, id uint) (models.Enrollment, error) {
	enrollment, err := s.enrollments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Enrollment{}, ErrEnrollmentNotFound
		}
		return models.Enrollment{}, err
	}
	return enrollment, nil
}

func keys(set map[uint]bool) []uint {
	out := make([]uint, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}
