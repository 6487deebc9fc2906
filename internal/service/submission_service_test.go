package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/erms-api/internal/dto"
	"github.com/noah-isme/erms-api/internal/models"
	"github.com/noah-isme/erms-api/internal/repository"
)

type submissionFixture struct {
	materials   MaterialService
	submissions SubmissionService
	repos       testRepos
	storage     *stubStorage
	activity    *stubActivityRecorder
	dashboards  *stubInvalidator
	teacher     models.User
	student     models.User
	pending     models.User
	class       models.Class
	now         time.Time
}

func newSubmissionFixture(t *testing.T) submissionFixture {
	t.Helper()
	db := setupServiceDB(t)
	repos := newTestRepos(db)
	storage := &stubStorage{}
	activity := &stubActivityRecorder{}
	dashboards := &stubInvalidator{}
	teacher := createUser(t, db, "Teacher", models.RoleTeacher)
	student := createUser(t, db, "Student", models.RoleStudent)
	pending := createUser(t, db, "Pending", models.RoleStudent)
	class := createClass(t, db, teacher, "Science")
	enroll(t, db, class, student, models.EnrollmentStatusApproved)
	enroll(t, db, class, pending, models.EnrollmentStatusPending)

	now := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
	submissions := NewSubmissionService(repos.submissions, repos.materials, repos.classes, repos.enrollments, storage, testValidator(), activity, dashboards, testLogger())
	submissions.(*submissionService).now = func() time.Time { return now }

	return submissionFixture{
		materials:   NewMaterialService(repos.materials, repos.classes, repos.enrollments, nil, testValidator(), nil, nil, testLogger()),
		submissions: submissions,
		repos:       repos,
		storage:     storage,
		activity:    activity,
		dashboards:  dashboards,
		teacher:     teacher,
		student:     student,
		pending:     pending,
		class:       class,
		now:         now,
	}
}

func (fx submissionFixture) createMaterial(t *testing.T, req dto.CreateMaterialRequest) dto.MaterialResponse {
	t.Helper()
	material, err := fx.materials.Create(context.Background(), actorOf(fx.teacher), fx.class.ID, req, nil)
	require.NoError(t, err)
	return material
}

func TestSubmitQuizAutoGrades(t *testing.T) {
	fx := newSubmissionFixture(t)
	quiz := fx.createMaterial(t, sampleQuizRequest(true))
	ctx := context.Background()

	result, err := fx.submissions.SubmitQuiz(ctx, actorOf(fx.student), quiz.ID, dto.SubmitQuizRequest{
		Answers: []dto.QuizAnswerInput{
			{QuestionID: quiz.Questions[0].ID, Answer: "PARIS"},
			{QuestionID: quiz.Questions[1].ID, Answer: "false"},
			{QuestionID: quiz.Questions[2].ID, Answer: "  tokyo"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusGraded, result.Status)
	require.NotNil(t, result.Score)
	require.Equal(t, 5.0, *result.Score)
	require.Equal(t, 6.0, result.MaxScore)
	require.Nil(t, result.GradedBy)
	require.NotNil(t, result.GradedAt)
	require.Len(t, result.Answers, 3)
	require.False(t, result.Answers[1].Correct)
	require.Equal(t, []uint{fx.student.ID}, fx.dashboards.invalidated())

	_, err = fx.submissions.SubmitQuiz(ctx, actorOf(fx.student), quiz.ID, dto.SubmitQuizRequest{
		Answers: []dto.QuizAnswerInput{{QuestionID: quiz.Questions[0].ID, Answer: "Paris"}},
	})
	require.ErrorIs(t, err, ErrAlreadySubmitted)
}

func TestSubmitQuizRejections(t *testing.T) {
	fx := newSubmissionFixture(t)
	ctx := context.Background()
	answers := dto.SubmitQuizRequest{Answers: []dto.QuizAnswerInput{{QuestionID: 1, Answer: "x"}}}

	draft := fx.createMaterial(t, sampleQuizRequest(false))
	_, err := fx.submissions.SubmitQuiz(ctx, actorOf(fx.student), draft.ID, answers)
	require.ErrorIs(t, err, ErrMaterialNotFound)

	quiz := fx.createMaterial(t, sampleQuizRequest(true))
	_, err = fx.submissions.SubmitQuiz(ctx, actorOf(fx.pending), quiz.ID, answers)
	require.ErrorIs(t, err, ErrNotEnrolled)

	_, err = fx.submissions.SubmitQuiz(ctx, actorOf(fx.teacher), quiz.ID, answers)
	require.ErrorIs(t, err, ErrForbidden)

	pastDue := sampleQuizRequest(true)
	due := fx.now.Add(-time.Hour)
	pastDue.DueAt = &due
	late := fx.createMaterial(t, pastDue)
	_, err = fx.submissions.SubmitQuiz(ctx, actorOf(fx.student), late.ID, answers)
	require.ErrorIs(t, err, ErrPastDue)

	assignment := fx.createMaterial(t, dto.CreateMaterialRequest{Kind: "assignment", Title: "Report", Published: true})
	_, err = fx.submissions.SubmitQuiz(ctx, actorOf(fx.student), assignment.ID, answers)
	require.ErrorIs(t, err, ErrWrongMaterialKind)
}

func TestSubmitAssignmentAndGrade(t *testing.T) {
	fx := newSubmissionFixture(t)
	ctx := context.Background()
	due := fx.now.Add(-24 * time.Hour)
	assignment := fx.createMaterial(t, dto.CreateMaterialRequest{Kind: "assignment", Title: "Lab report", MaxScore: 50, Published: true, DueAt: &due})

	_, err := fx.submissions.SubmitAssignment(ctx, actorOf(fx.student), assignment.ID, fileHeader(t, "run.exe", exeContent))
	require.ErrorIs(t, err, ErrFileTypeNotAllowed)

	_, err = fx.submissions.SubmitAssignment(ctx, actorOf(fx.student), assignment.ID, nil)
	require.ErrorIs(t, err, ErrFileRequired)

	submitted, err := fx.submissions.SubmitAssignment(ctx, actorOf(fx.student), assignment.ID, fileHeader(t, "report.pdf", pdfContent))
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusSubmitted, submitted.Status)
	require.True(t, submitted.Late, "submissions after the deadline are accepted but flagged")
	require.Nil(t, submitted.Score)
	require.Contains(t, submitted.FileURL, "report.pdf")

	_, err = fx.submissions.SubmitAssignment(ctx, actorOf(fx.student), assignment.ID, fileHeader(t, "report.pdf", pdfContent))
	require.ErrorIs(t, err, ErrAlreadySubmitted)

	_, err = fx.submissions.Grade(ctx, actorOf(fx.teacher), submitted.ID, dto.GradeSubmissionRequest{Score: floatPtr(51)})
	require.ErrorIs(t, err, ErrInvalidInput)

	graded, err := fx.submissions.Grade(ctx, actorOf(fx.teacher), submitted.ID, dto.GradeSubmissionRequest{Score: floatPtr(45), Feedback: " Good work "})
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusGraded, graded.Status)
	require.Equal(t, 45.0, *graded.Score)
	require.Equal(t, "Good work", graded.Feedback)
	require.Equal(t, fx.teacher.ID, *graded.GradedBy)
	require.InDelta(t, 90.0, *graded.Percentage, 0.001)

	_, err = fx.submissions.Grade(ctx, actorOf(fx.teacher), submitted.ID, dto.GradeSubmissionRequest{Score: floatPtr(50)})
	require.ErrorIs(t, err, ErrAlreadyGraded)

	require.Equal(t, []string{"submission.graded"}, fx.activity.actions())
}

func TestGradeRejectsQuizzesAndStrangers(t *testing.T) {
	fx := newSubmissionFixture(t)
	ctx := context.Background()
	quiz := fx.createMaterial(t, sampleQuizRequest(true))

	attempt, err := fx.submissions.SubmitQuiz(ctx, actorOf(fx.student), quiz.ID, dto.SubmitQuizRequest{
		Answers: []dto.QuizAnswerInput{{QuestionID: quiz.Questions[0].ID, Answer: "Paris"}},
	})
	require.NoError(t, err)

	_, err = fx.submissions.Grade(ctx, actorOf(fx.student), attempt.ID, dto.GradeSubmissionRequest{Score: floatPtr(1)})
	require.ErrorIs(t, err, ErrForbidden)

	_, err = fx.submissions.Grade(ctx, actorOf(fx.teacher), attempt.ID, dto.GradeSubmissionRequest{Score: floatPtr(1)})
	require.ErrorIs(t, err, ErrAlreadyGraded)

	_, err = fx.submissions.Grade(ctx, actorOf(fx.teacher), 4242, dto.GradeSubmissionRequest{Score: floatPtr(1)})
	require.ErrorIs(t, err, ErrSubmissionNotFound)
}

func TestSubmissionListingsAndAccess(t *testing.T) {
	fx := newSubmissionFixture(t)
	ctx := context.Background()
	quiz := fx.createMaterial(t, sampleQuizRequest(true))

	attempt, err := fx.submissions.SubmitQuiz(ctx, actorOf(fx.student), quiz.ID, dto.SubmitQuizRequest{
		Answers: []dto.QuizAnswerInput{{QuestionID: quiz.Questions[2].ID, Answer: "Tokyo"}},
	})
	require.NoError(t, err)

	forMaterial, err := fx.submissions.ListForMaterial(ctx, actorOf(fx.teacher), quiz.ID, 1, 10)
	require.NoError(t, err)
	require.Len(t, forMaterial.Items, 1)
	require.NotNil(t, forMaterial.Items[0].Student)

	_, err = fx.submissions.ListForMaterial(ctx, actorOf(fx.student), quiz.ID, 1, 10)
	require.ErrorIs(t, err, ErrForbidden)

	mine, err := fx.submissions.ListMine(ctx, actorOf(fx.student), fx.class.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)

	own, err := fx.submissions.Get(ctx, actorOf(fx.student), attempt.ID)
	require.NoError(t, err)
	require.Equal(t, attempt.ID, own.ID)

	_, err = fx.submissions.Get(ctx, actorOf(fx.pending), attempt.ID)
	require.True(t, errors.Is(err, ErrForbidden))
}

func TestSubmitAssignmentWithoutStorage(t *testing.T) {
	fx := newSubmissionFixture(t)
	assignment := fx.createMaterial(t, dto.CreateMaterialRequest{Kind: "assignment", Title: "Poster", Published: true})

	svc := NewSubmissionService(fx.repos.submissions, fx.repos.materials, fx.repos.classes, fx.repos.enrollments, nil, testValidator(), nil, nil, testLogger())
	_, err := svc.SubmitAssignment(context.Background(), actorOf(fx.student), assignment.ID, fileHeader(t, "poster.png", pdfContent))
	require.ErrorIs(t, err, ErrStorageUnavailable)
}

// snapshotSubmissions serves every read from the first copy it loaded, so
// two graders see the same ungraded row.
type snapshotSubmissions struct {
	repository.SubmissionRepository
	mu       sync.Mutex
	snapshot map[uint]models.Submission
}

func (s *snapshotSubmissions) GetByID(ctx context.Context, id uint) (models.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cached, ok := s.snapshot[id]; ok {
		return cached, nil
	}
	loaded, err := s.SubmissionRepository.GetByID(ctx, id)
	if err != nil {
		return loaded, err
	}
	s.snapshot[id] = loaded
	return loaded, nil
}

func TestGradeWithStaleReadKeepsFirstScore(t *testing.T) {
	fx := newSubmissionFixture(t)
	ctx := context.Background()
	assignment := fx.createMaterial(t, dto.CreateMaterialRequest{Kind: "assignment", Title: "Essay", MaxScore: 100, Published: true})

	submitted, err := fx.submissions.SubmitAssignment(ctx, actorOf(fx.student), assignment.ID, fileHeader(t, "essay.pdf", pdfContent))
	require.NoError(t, err)

	stale := &snapshotSubmissions{SubmissionRepository: fx.repos.submissions, snapshot: map[uint]models.Submission{}}
	svc := NewSubmissionService(stale, fx.repos.materials, fx.repos.classes, fx.repos.enrollments, fx.storage, testValidator(), fx.activity, fx.dashboards, testLogger())

	_, err = svc.Grade(ctx, actorOf(fx.teacher), submitted.ID, dto.GradeSubmissionRequest{Score: floatPtr(40)})
	require.NoError(t, err)

	_, err = svc.Grade(ctx, actorOf(fx.teacher), submitted.ID, dto.GradeSubmissionRequest{Score: floatPtr(95)})
	require.ErrorIs(t, err, ErrAlreadyGraded)

	stored, err := fx.repos.submissions.GetByID(ctx, submitted.ID)
	require.NoError(t, err)
	require.Equal(t, 40.0, *stored.Score)
	require.Equal(t, []string{"submission.graded"}, fx.activity.actions())
}
