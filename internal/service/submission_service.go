package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
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
	"github.com/noah-isme/erms-api/internal/observability"
	"github.com/noah-isme/erms-api/internal/repository"
)

// SubmissionService handles quiz attempts, assignment uploads and grading.
type SubmissionService interface {
	SubmitQuiz(ctx context.Context, actor Actor, materialID uint, req dto.SubmitQuizRequest) (dto.SubmissionResponse, error)
	SubmitAssignment(ctx context.Context, actor Actor, materialID uint, file *multipart.FileHeader) (dto.SubmissionResponse, error)
	Grade(ctx context.Context, actor Actor, submissionID uint, req dto.GradeSubmissionRequest) (dto.SubmissionResponse, error)
	ListForMaterial(ctx context.Context, actor Actor, materialID uint, page, pageSize int) (dto.SubmissionListResponse, error)
	ListMine(ctx context.Context, actor Actor, classID uint) ([]dto.SubmissionResponse, error)
	Get(ctx context.Context, actor Actor, id uint) (dto.SubmissionResponse, error)
}

type submissionService struct {
	submissions repository.SubmissionRepository
	materials   repository.MaterialRepository
	classes     repository.ClassRepository
	enrollments repository.EnrollmentRepository
	storage     FileStorage
	validator   *validator.Validate
	activity    ActivityRecorder
	dashboards  DashboardInvalidator
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
	maxUpload   int64
}

// NewSubmissionService constructs the submission service.
func NewSubmissionService(submissions repository.SubmissionRepository, materials repository.MaterialRepository, classes repository.ClassRepository, enrollments repository.EnrollmentRepository, storage FileStorage, validate *validator.Validate, activity ActivityRecorder, dashboards DashboardInvalidator, logger zerolog.Logger) SubmissionService {
	return &submissionService{
		submissions: submissions,
		materials:   materials,
		classes:     classes,
		enrollments: enrollments,
		storage:     storage,
		validator:   validate,
		activity:    activity,
		dashboards:  dashboards,
		logger:      logger.With().Str("component", "submission_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/erms-api/internal/service/submission"),
		now:         time.Now,
		maxUpload:   DefaultMaxUploadBytes,
	}
}

func (s *submissionService) SubmitQuiz(ctx context.Context, actor Actor, materialID uint, req dto.SubmitQuizRequest) (dto.SubmissionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "submission.quiz")
	span.SetAttributes(
		attribute.Int64("submission.material_id", int64(materialID)),
		attribute.Int64("submission.student_id", int64(actor.ID)),
	)
	defer span.End()

	if err := s.validator.Struct(req); err != nil {
		span.SetStatus(codes.Error, "validation_failed")
		return dto.SubmissionResponse{}, err
	}

	material, err := s.openMaterial(ctx, actor, materialID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "material_unavailable")
		return dto.SubmissionResponse{}, err
	}
	if !material.IsQuiz() {
		return dto.SubmissionResponse{}, ErrWrongMaterialKind
	}
	if material.IsPastDue(s.now()) {
		span.SetStatus(codes.Error, "past_due")
		return dto.SubmissionResponse{}, ErrPastDue
	}
	if err := s.ensureNotSubmitted(ctx, material.ID, actor.ID); err != nil {
		return dto.SubmissionResponse{}, err
	}

	score, answers := GradeQuiz(material.Questions, req.AnswerMap())
	now := s.now()
	submission := models.Submission{
		MaterialID: material.ID,
		StudentID:  actor.ID,
		Status:     models.SubmissionStatusGraded,
		Score:      &score,
		MaxScore:   material.MaxScore,
		GradedAt:   &now,
		Answers:    answers,
	}
	if err := s.submissions.Create(ctx, &submission); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return dto.SubmissionResponse{}, ErrAlreadySubmitted
		}
		span.RecordError(err)
		return dto.SubmissionResponse{}, err
	}

	observability.SubmissionsGraded().WithLabelValues("auto").Inc()
	span.SetAttributes(attribute.Float64("submission.score", score))
	invalidateStudents(ctx, s.dashboards, actor.ID)

	submission.Material = material
	return dto.NewSubmissionResponse(submission), nil
}

func (s *submissionService) SubmitAssignment(ctx context.Context, actor Actor, materialID uint, file *multipart.FileHeader) (dto.SubmissionResponse, error) {
	material, err := s.openMaterial(ctx, actor, materialID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}
	if material.IsQuiz() {
		return dto.SubmissionResponse{}, ErrWrongMaterialKind
	}
	if err := s.ensureNotSubmitted(ctx, material.ID, actor.ID); err != nil {
		return dto.SubmissionResponse{}, err
	}
	if s.storage == nil {
		return dto.SubmissionResponse{}, ErrStorageUnavailable
	}

	inspected, err := inspectUpload(file, s.maxUpload, submissionTypes)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	folder := fmt.Sprintf("classes/%d/materials/%d/submissions", material.ClassID, material.ID)
	name := fmt.Sprintf("student-%d-%s", actor.ID, inspected.name)
	url, err := s.storage.Upload(ctx, folder, name, bytes.NewReader(inspected.content))
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	submission := models.Submission{
		MaterialID: material.ID,
		StudentID:  actor.ID,
		Status:     models.SubmissionStatusSubmitted,
		FileURL:    url,
		MaxScore:   material.MaxScore,
		Late:       material.IsPastDue(s.now()),
	}
	if err := s.submissions.Create(ctx, &submission); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return dto.SubmissionResponse{}, ErrAlreadySubmitted
		}
		return dto.SubmissionResponse{}, err
	}

	s.logger.Info().
		Uint("submission_id", submission.ID).
		Uint("material_id", material.ID).
		Bool("late", submission.Late).
		Str("mime", inspected.mime).
		Msg("assignment submitted")
	invalidateStudents(ctx, s.dashboards, actor.ID)

	submission.Material = material
	return dto.NewSubmissionResponse(submission), nil
}

func (s *submissionService) Grade(ctx context.Context, actor Actor, submissionID uint, req dto.GradeSubmissionRequest) (dto.SubmissionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "submission.grade")
	span.SetAttributes(
		attribute.Int64("grading.submission_id", int64(submissionID)),
		attribute.Int64("grading.actor_id", int64(actor.ID)),
	)
	defer span.End()

	if err := s.validator.Struct(req); err != nil {
		span.SetStatus(codes.Error, "validation_failed")
		return dto.SubmissionResponse{}, err
	}

	submission, err := s.load(ctx, submissionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submission_lookup_failed")
		return dto.SubmissionResponse{}, err
	}

	class, err := s.classes.GetByID(ctx, submission.Material.ClassID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}
	if !canManage(actor, class) {
		span.SetStatus(codes.Error, "forbidden")
		return dto.SubmissionResponse{}, ErrForbidden
	}

	if submission.IsGraded() || submission.Material.IsQuiz() {
		span.SetStatus(codes.Error, "already_graded")
		return dto.SubmissionResponse{}, ErrAlreadyGraded
	}

	score := *req.Score
	if score < 0 || score > submission.MaxScore+1e-9 {
		span.SetStatus(codes.Error, "score_out_of_range")
		return dto.SubmissionResponse{}, fmt.Errorf("%w: score must be between 0 and %.2f", ErrInvalidInput, submission.MaxScore)
	}

	now := s.now()
	submission.Score = &score
	submission.Feedback = strings.TrimSpace(req.Feedback)
	submission.Status = models.SubmissionStatusGraded
	submission.GradedAt = &now
	submission.GradedBy = uintPtr(actor.ID)

	updated, err := s.submissions.MarkGraded(ctx, &submission)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submission_update_failed")
		return dto.SubmissionResponse{}, err
	}
	if !updated {
		span.SetStatus(codes.Error, "already_graded")
		return dto.SubmissionResponse{}, ErrAlreadyGraded
	}

	observability.SubmissionsGraded().WithLabelValues("manual").Inc()
	record(ctx, s.activity, s.logger, ActivityEntry{
		Actor:      actor,
		Action:     "submission.graded",
		EntityType: "submission",
		EntityID:   uintPtr(submission.ID),
		Metadata: map[string]interface{}{
			"material_id": submission.MaterialID,
			"student_id":  submission.StudentID,
			"score":       score,
		},
	})
	invalidateStudents(ctx, s.dashboards, submission.StudentID)

	span.SetAttributes(attribute.Float64("grading.score", score))
	return dto.NewSubmissionResponse(submission), nil
}

func (s *submissionService) ListForMaterial(ctx context.Context, actor Actor, materialID uint, page, pageSize int) (dto.SubmissionListResponse, error) {
	material, err := s.loadMaterial(ctx, materialID)
	if err != nil {
		return dto.SubmissionListResponse{}, err
	}
	if !canManage(actor, material.Class) {
		return dto.SubmissionListResponse{}, ErrForbidden
	}

	submissions, total, err := s.submissions.List(ctx, repository.SubmissionFilter{
		MaterialID: &material.ID,
		Page:       page,
		PageSize:   pageSize,
	})
	if err != nil {
		return dto.SubmissionListResponse{}, err
	}

	items := make([]dto.SubmissionResponse, 0, len(submissions))
	for _, submission := range submissions {
		items = append(items, dto.NewSubmissionResponse(submission))
	}
	return dto.SubmissionListResponse{Items: items, Pagination: dto.NewPaginationMeta(page, pageSize, total)}, nil
}

func (s *submissionService) ListMine(ctx context.Context, actor Actor, classID uint) ([]dto.SubmissionResponse, error) {
	if !actor.IsStudent() {
		return nil, ErrForbidden
	}
	filter := repository.SubmissionFilter{StudentID: &actor.ID}
	if classID > 0 {
		filter.ClassIDs = []uint{classID}
	}

	submissions, _, err := s.submissions.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	items := make([]dto.SubmissionResponse, 0, len(submissions))
	for _, submission := range submissions {
		items = append(items, dto.NewSubmissionResponse(submission))
	}
	return items, nil
}

func (s *submissionService) Get(ctx context.Context, actor Actor, id uint) (dto.SubmissionResponse, error) {
	submission, err := s.load(ctx, id)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	if actor.IsStudent() {
		if submission.StudentID != actor.ID {
			return dto.SubmissionResponse{}, ErrForbidden
		}
		return dto.NewSubmissionResponse(submission), nil
	}

	class, err := s.classes.GetByID(ctx, submission.Material.ClassID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}
	if !canManage(actor, class) {
		return dto.SubmissionResponse{}, ErrForbidden
	}
	return dto.NewSubmissionResponse(submission), nil
}

// openMaterial loads a published material the student may submit to.
func (s *submissionService) openMaterial(ctx context.Context, actor Actor, materialID uint) (models.Material, error) {
	if !actor.IsStudent() {
		return models.Material{}, ErrForbidden
	}
	material, err := s.loadMaterial(ctx, materialID)
	if err != nil {
		return models.Material{}, err
	}

	approved, err := s.enrollments.IsApproved(ctx, material.ClassID, actor.ID)
	if err != nil {
		return models.Material{}, err
	}
	if !approved {
		return models.Material{}, ErrNotEnrolled
	}
	if !material.Published {
		return models.Material{}, ErrMaterialNotFound
	}
	if material.Class.Archived {
		return models.Material{}, ErrClassArchived
	}
	return material, nil
}

func (s *submissionService) ensureNotSubmitted(ctx context.Context, materialID, studentID uint) error {
	_, err := s.submissions.GetByMaterialAndStudent(ctx, materialID, studentID)
	switch {
	case err == nil:
		return ErrAlreadySubmitted
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil
	default:
		return err
	}
}

func (s *submissionService) loadMaterial(ctx context.Context, id uint) (models.Material, error) {
	material, err := s.materials.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Material{}, ErrMaterialNotFound
		}
		return models.Material{}, err
	}
	return material, nil
}

func (s *submissionService) load(ctx context.Context, id uint) (models.Submission, error) {
	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Submission{}, ErrSubmissionNotFound
		}
		return models.Submission{}, err
	}
	return submission, nil
}
