package service

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/erms-api/internal/config"
	"github.com/noah-isme/erms-api/internal/dto"
	"github.com/noah-isme/erms-api/internal/models"
	"github.com/noah-isme/erms-api/internal/repository"
	"github.com/noah-isme/erms-api/pkg/spreadsheet"
)

// GradeService records exam scores and computes term grades.
type GradeService interface {
	Record(ctx context.Context, actor Actor, classID uint, req dto.RecordExamScoresRequest) ([]dto.ExamScoreResponse, error)
	ListForClass(ctx context.Context, actor Actor, classID uint) ([]dto.ExamScoreResponse, error)
	Gradebook(ctx context.Context, actor Actor, classID uint) (dto.GradebookResponse, error)
	ExportGradebook(ctx context.Context, actor Actor, classID uint) ([]byte, string, error)
	StudentGrades(ctx context.Context, actor Actor) ([]dto.StudentGradeResponse, error)
}

type gradeService struct {
	scores     repository.ExamScoreRepository
	access     classAccess
	validator  *validator.Validate
	activity   ActivityRecorder
	dashboards DashboardInvalidator
	logger     zerolog.Logger
	weights    config.GradeWeights
	passing    float64
}

// NewGradeService constructs the grade service with the configured weights and passing grade.
func NewGradeService(scores repository.ExamScoreRepository, classes repository.ClassRepository, enrollments repository.EnrollmentRepository, validate *validator.Validate, activity ActivityRecorder, dashboards DashboardInvalidator, logger zerolog.Logger, weights config.GradeWeights, passing float64) GradeService {
	return &gradeService{
		scores:     scores,
		access:     classAccess{classes: classes, enrollments: enrollments},
		validator:  validate,
		activity:   activity,
		dashboards: dashboards,
		logger:     logger.With().Str("component", "grade_service").Logger(),
		weights:    weights,
		passing:    passing,
	}
}

type examScoreKey struct {
	studentID uint
	term      string
}

func (s *gradeService) Record(ctx context.Context, actor Actor, classID uint, req dto.RecordExamScoresRequest) ([]dto.ExamScoreResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}

	class, err := s.access.manageable(ctx, actor, classID)
	if err != nil {
		return nil, err
	}

	approved := map[uint]bool{}
	seen := make(map[examScoreKey]bool, len(req.Entries))
	entries := make([]models.ExamScore, 0, len(req.Entries))
	for _, entry := range req.Entries {
		term := strings.ToLower(entry.Term)
		key := examScoreKey{studentID: entry.StudentID, term: term}
		if seen[key] {
			return nil, fmt.Errorf("%w: duplicate %s score for student %d", ErrInvalidInput, term, entry.StudentID)
		}
		seen[key] = true

		ok, checked := approved[entry.StudentID]
		if !checked {
			ok, err = s.access.enrollments.IsApproved(ctx, class.ID, entry.StudentID)
			if err != nil {
				return nil, err
			}
			approved[entry.StudentID] = ok
		}
		if !ok {
			return nil, fmt.Errorf("%w: student %d", ErrNotEnrolled, entry.StudentID)
		}
		entries = append(entries, models.ExamScore{
			ClassID:    class.ID,
			StudentID:  entry.StudentID,
			Term:       term,
			Score:      *entry.Score,
			RecordedBy: actor.ID,
		})
	}

	if err := s.scores.Upsert(ctx, entries); err != nil {
		return nil, err
	}

	record(ctx, s.activity, s.logger, ActivityEntry{
		Actor:      actor,
		Action:     "exam_scores.recorded",
		EntityType: "class",
		EntityID:   uintPtr(class.ID),
		Metadata:   map[string]interface{}{"entries": len(entries)},
	})
	invalidateStudents(ctx, s.dashboards, keys(approved)...)

	return s.ListForClass(ctx, actor, class.ID)
}

func (s *gradeService) ListForClass(ctx context.Context, actor Actor, classID uint) ([]dto.ExamScoreResponse, error) {
	if _, err := s.access.manageable(ctx, actor, classID); err != nil {
		return nil, err
	}
	scores, err := s.scores.ListByClass(ctx, classID)
	if err != nil {
		return nil, err
	}
	responses := make([]dto.ExamScoreResponse, 0, len(scores))
	for _, score := range scores {
		responses = append(responses, dto.NewExamScoreResponse(score))
	}
	return responses, nil
}

func (s *gradeService) Gradebook(ctx context.Context, actor Actor, classID uint) (dto.GradebookResponse, error) {
	class, err := s.access.manageable(ctx, actor, classID)
	if err != nil {
		return dto.GradebookResponse{}, err
	}

	students, err := s.access.enrollments.ApprovedStudents(ctx, class.ID)
	if err != nil {
		return dto.GradebookResponse{}, err
	}
	scores, err := s.scores.ListByClass(ctx, class.ID)
	if err != nil {
		return dto.GradebookResponse{}, err
	}

	byStudent := make(map[uint]map[string]float64, len(students))
	for _, score := range scores {
		if byStudent[score.StudentID] == nil {
			byStudent[score.StudentID] = map[string]float64{}
		}
		byStudent[score.StudentID][score.Term] = score.Score
	}

	rows := make([]dto.GradeRow, 0, len(students))
	for _, student := range students {
		terms := byStudent[student.ID]
		result := ComputeGrade(terms, s.weights, s.passing)
		rows = append(rows, dto.GradeRow{
			Student:    dto.NewUserSummary(student),
			Prelim:     termScore(terms, models.TermPrelim),
			Midterm:    termScore(terms, models.TermMidterm),
			Final:      termScore(terms, models.TermFinal),
			FinalGrade: result.FinalGrade,
			Remarks:    result.Remarks,
		})
	}

	return dto.GradebookResponse{
		ClassID:   class.ID,
		ClassName: class.Name,
		Weights: dto.GradeWeights{
			Prelim:  s.weights.Prelim,
			Midterm: s.weights.Midterm,
			Final:   s.weights.Final,
		},
		PassingGrade: s.passing,
		Rows:         rows,
	}, nil
}

func (s *gradeService) ExportGradebook(ctx context.Context, actor Actor, classID uint) ([]byte, string, error) {
	book, err := s.Gradebook(ctx, actor, classID)
	if err != nil {
		return nil, "", err
	}

	rows := make([]spreadsheet.GradebookRow, 0, len(book.Rows))
	for _, row := range book.Rows {
		rows = append(rows, spreadsheet.GradebookRow{
			StudentName:  row.Student.Name,
			StudentEmail: row.Student.Email,
			Prelim:       row.Prelim,
			Midterm:      row.Midterm,
			Final:        row.Final,
			FinalGrade:   row.FinalGrade,
			Remarks:      row.Remarks,
		})
	}

	var buf bytes.Buffer
	if err := spreadsheet.WriteGradebook(&buf, spreadsheet.Gradebook{Title: book.ClassName, Rows: rows}); err != nil {
		return nil, "", err
	}

	filename := fmt.Sprintf("gradebook-class-%d.xlsx", book.ClassID)
	s.logger.Info().Uint("class_id", book.ClassID).Int("rows", len(rows)).Msg("gradebook exported")
	return buf.Bytes(), filename, nil
}

func (s *gradeService) StudentGrades(ctx context.Context, actor Actor) ([]dto.StudentGradeResponse, error) {
	if !actor.IsStudent() {
		return nil, ErrForbidden
	}

	classes, _, err := s.access.classes.List(ctx, repository.ClassFilter{StudentID: &actor.ID, IncludeArchived: true})
	if err != nil {
		return nil, err
	}
	scores, err := s.scores.ListByStudent(ctx, actor.ID)
	if err != nil {
		return nil, err
	}

	byClass := map[uint]map[string]float64{}
	for _, score := range scores {
		if byClass[score.ClassID] == nil {
			byClass[score.ClassID] = map[string]float64{}
		}
		byClass[score.ClassID][score.Term] = score.Score
	}

	report := make([]dto.StudentGradeResponse, 0, len(classes))
	for _, class := range classes {
		terms := byClass[class.ID]
		result := ComputeGrade(terms, s.weights, s.passing)
		report = append(report, dto.StudentGradeResponse{
			ClassID:    class.ID,
			ClassName:  class.Name,
			Subject:    class.Subject,
			Prelim:     termScore(terms, models.TermPrelim),
			Midterm:    termScore(terms, models.TermMidterm),
			Final:      termScore(terms, models.TermFinal),
			FinalGrade: result.FinalGrade,
			Remarks:    result.Remarks,
		})
	}
	return report, nil
}

func termScore(terms map[string]float64, term string) *float64 {
	score, ok := terms[term]
	if !ok {
		return nil
	}
	return &score
}
