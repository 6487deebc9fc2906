package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/erms-api/internal/dto"
	"github.com/noah-isme/erms-api/internal/models"
	"github.com/noah-isme/erms-api/internal/repository"
)

const recentItemsLimit = 5

// DashboardInvalidator drops cached dashboards after writes that change them.
type DashboardInvalidator interface {
	InvalidateStudents(ctx context.Context, studentIDs ...uint)
}

// DashboardService builds the per-role landing pages.
type DashboardService interface {
	DashboardInvalidator
	Student(ctx context.Context, actor Actor) (dto.StudentDashboardResponse, error)
	Teacher(ctx context.Context, actor Actor) (dto.TeacherDashboardResponse, error)
	AdminSummary(ctx context.Context, actor Actor) (dto.AdminSummaryResponse, error)
}

// DashboardRepositories groups the repositories the dashboards aggregate over.
type DashboardRepositories struct {
	Users       repository.UserRepository
	Classes     repository.ClassRepository
	Enrollments repository.EnrollmentRepository
	Materials   repository.MaterialRepository
	Submissions repository.SubmissionRepository
	Messages    repository.MessageRepository
}

type dashboardService struct {
	repos    DashboardRepositories
	cache    *redis.Client
	cacheTTL time.Duration
	logger   zerolog.Logger
	now      func() time.Time
}

// NewDashboardService builds the dashboard aggregator. A nil cache disables caching.
func NewDashboardService(repos DashboardRepositories, cache *redis.Client, ttl time.Duration, logger zerolog.Logger) DashboardService {
	return &dashboardService{
		repos:    repos,
		cache:    cache,
		cacheTTL: ttl,
		logger:   logger.With().Str("component", "dashboard_service").Logger(),
		now:      time.Now,
	}
}

func studentDashboardKey(studentID uint) string {
	return fmt.Sprintf("dashboard:student:%d", studentID)
}

func (s *dashboardService) InvalidateStudents(ctx context.Context, studentIDs ...uint) {
	if s.cache == nil || len(studentIDs) == 0 {
		return
	}
	keys := make([]string, 0, len(studentIDs))
	for _, id := range studentIDs {
		keys = append(keys, studentDashboardKey(id))
	}
	if err := s.cache.Del(ctx, keys...).Err(); err != nil {
		s.logger.Warn().Err(err).Int("keys", len(keys)).Msg("failed to invalidate dashboard cache")
	}
}

func invalidateStudents(ctx context.Context, invalidator DashboardInvalidator, studentIDs ...uint) {
	if invalidator == nil || len(studentIDs) == 0 {
		return
	}
	invalidator.InvalidateStudents(ctx, studentIDs...)
}

// classStudentIDs lists the approved students whose dashboards show the class.
func classStudentIDs(ctx context.Context, enrollments repository.EnrollmentRepository, logger zerolog.Logger, classID uint) []uint {
	students, err := enrollments.ApprovedStudents(ctx, classID)
	if err != nil {
		logger.Warn().Err(err).Uint("class_id", classID).Msg("failed to list students for dashboard invalidation")
		return nil
	}
	ids := make([]uint, 0, len(students))
	for _, student := range students {
		ids = append(ids, student.ID)
	}
	return ids
}

func (s *dashboardService) Student(ctx context.Context, actor Actor) (dto.StudentDashboardResponse, error) {
	if !actor.IsStudent() {
		return dto.StudentDashboardResponse{}, ErrForbidden
	}
	cacheKey := studentDashboardKey(actor.ID)

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			var response dto.StudentDashboardResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
				s.logger.Debug().Uint("student_id", actor.ID).Msg("dashboard cache hit")
				response.CacheHit = true
				return response, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("failed to read dashboard cache")
		}
	}

	response, err := s.buildStudent(ctx, actor.ID)
	if err != nil {
		return dto.StudentDashboardResponse{}, err
	}

	if s.cache != nil {
		payload, err := json.Marshal(response)
		if err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store dashboard cache")
			}
		}
	}

	return response, nil
}

func (s *dashboardService) buildStudent(ctx context.Context, studentID uint) (dto.StudentDashboardResponse, error) {
	now := s.now()

	classes, _, err := s.repos.Classes.List(ctx, repository.ClassFilter{StudentID: &studentID})
	if err != nil {
		return dto.StudentDashboardResponse{}, err
	}
	classIDs := make([]uint, 0, len(classes))
	classNames := make(map[uint]string, len(classes))
	classResponses := make([]dto.ClassResponse, 0, len(classes))
	for _, class := range classes {
		classIDs = append(classIDs, class.ID)
		classNames[class.ID] = class.Name
		classResponses = append(classResponses, dto.NewClassResponse(class, false))
	}

	materials, _, err := s.repos.Materials.List(ctx, repository.MaterialFilter{ClassIDs: classIDs, PublishedOnly: true})
	if err != nil {
		return dto.StudentDashboardResponse{}, err
	}

	submissions, _, err := s.repos.Submissions.List(ctx, repository.SubmissionFilter{StudentID: &studentID})
	if err != nil {
		return dto.StudentDashboardResponse{}, err
	}
	submitted := make(map[uint]struct{}, len(submissions))
	for _, submission := range submissions {
		submitted[submission.MaterialID] = struct{}{}
	}

	open := make([]dto.OpenMaterial, 0)
	for _, material := range materials {
		if _, done := submitted[material.ID]; done {
			continue
		}
		// Late assignments are still accepted, late quizzes are not.
		if material.IsQuiz() && material.IsPastDue(now) {
			continue
		}
		open = append(open, dto.OpenMaterial{
			ID:        material.ID,
			ClassID:   material.ClassID,
			ClassName: classNames[material.ClassID],
			Kind:      material.Kind,
			Title:     material.Title,
			DueAt:     material.DueAt,
		})
	}

	recent := make([]dto.SubmissionResponse, 0, recentItemsLimit)
	var total float64
	var graded int
	for _, submission := range submissions {
		if !submission.IsGraded() {
			continue
		}
		if pct := submission.Percentage(); pct != nil {
			total += *pct
			graded++
		}
		if len(recent) < recentItemsLimit {
			recent = append(recent, dto.NewSubmissionResponse(submission))
		}
	}

	var average *float64
	if graded > 0 {
		avg := roundTo(total/float64(graded), 2)
		average = &avg
	}

	return dto.StudentDashboardResponse{
		Classes:       classResponses,
		OpenMaterials: open,
		RecentGrades:  recent,
		AverageScore:  average,
		GeneratedAt:   now,
	}, nil
}

func (s *dashboardService) Teacher(ctx context.Context, actor Actor) (dto.TeacherDashboardResponse, error) {
	if !actor.IsTeacher() {
		return dto.TeacherDashboardResponse{}, ErrForbidden
	}

	classes, _, err := s.repos.Classes.List(ctx, repository.ClassFilter{TeacherID: &actor.ID})
	if err != nil {
		return dto.TeacherDashboardResponse{}, err
	}
	classIDs := make([]uint, 0, len(classes))
	classResponses := make([]dto.ClassResponse, 0, len(classes))
	for _, class := range classes {
		classIDs = append(classIDs, class.ID)
		classResponses = append(classResponses, dto.NewClassResponse(class, true))
	}

	pending, err := s.repos.Enrollments.Count(ctx, repository.EnrollmentFilter{
		ClassIDs: classIDs,
		Status:   models.EnrollmentStatusPending,
	})
	if err != nil {
		return dto.TeacherDashboardResponse{}, err
	}

	ungraded, err := s.repos.Submissions.Count(ctx, repository.SubmissionFilter{
		ClassIDs: classIDs,
		Status:   models.SubmissionStatusSubmitted,
	})
	if err != nil {
		return dto.TeacherDashboardResponse{}, err
	}

	latest, _, err := s.repos.Submissions.List(ctx, repository.SubmissionFilter{
		ClassIDs: classIDs,
		Page:     1,
		PageSize: recentItemsLimit,
	})
	if err != nil {
		return dto.TeacherDashboardResponse{}, err
	}
	recent := make([]dto.SubmissionResponse, 0, len(latest))
	for _, submission := range latest {
		recent = append(recent, dto.NewSubmissionResponse(submission))
	}

	return dto.TeacherDashboardResponse{
		Classes:             classResponses,
		PendingEnrollments:  pending,
		UngradedSubmissions: ungraded,
		RecentSubmissions:   recent,
	}, nil
}

func (s *dashboardService) AdminSummary(ctx context.Context, actor Actor) (dto.AdminSummaryResponse, error) {
	if !actor.IsAdmin() {
		return dto.AdminSummaryResponse{}, ErrForbidden
	}

	usersByRole, err := s.repos.Users.CountByRole(ctx)
	if err != nil {
		return dto.AdminSummaryResponse{}, err
	}

	classes, err := s.repos.Classes.Count(ctx)
	if err != nil {
		return dto.AdminSummaryResponse{}, err
	}

	enrollments := make(map[string]int64, 3)
	for _, status := range []string{models.EnrollmentStatusPending, models.EnrollmentStatusApproved, models.EnrollmentStatusDenied} {
		count, err := s.repos.Enrollments.Count(ctx, repository.EnrollmentFilter{Status: status})
		if err != nil {
			return dto.AdminSummaryResponse{}, err
		}
		enrollments[status] = count
	}

	materials, err := s.repos.Materials.Count(ctx, repository.MaterialFilter{})
	if err != nil {
		return dto.AdminSummaryResponse{}, err
	}
	submissions, err := s.repos.Submissions.Count(ctx, repository.SubmissionFilter{})
	if err != nil {
		return dto.AdminSummaryResponse{}, err
	}
	ungraded, err := s.repos.Submissions.Count(ctx, repository.SubmissionFilter{Status: models.SubmissionStatusSubmitted})
	if err != nil {
		return dto.AdminSummaryResponse{}, err
	}
	messages, err := s.repos.Messages.Count(ctx)
	if err != nil {
		return dto.AdminSummaryResponse{}, err
	}

	return dto.AdminSummaryResponse{
		UsersByRole:         usersByRole,
		Classes:             classes,
		EnrollmentsByStatus: enrollments,
		Materials:           materials,
		Submissions:         submissions,
		UngradedSubmissions: ungraded,
		Messages:            messages,
	}, nil
}
