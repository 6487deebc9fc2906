package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/erms-api/internal/dto"
	"github.com/noah-isme/erms-api/internal/models"
)

type dashboardFixture struct {
	db          *gorm.DB
	redis       *miniredis.Miniredis
	dashboards  DashboardService
	materials   MaterialService
	submissions SubmissionService
	admin       models.User
	teacher     models.User
	student     models.User
	pending     models.User
	class       models.Class
}

func newDashboardFixture(t *testing.T) dashboardFixture {
	t.Helper()
	db := setupServiceDB(t)
	repos := newTestRepos(db)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	dashboards := NewDashboardService(DashboardRepositories{
		Users:       repos.users,
		Classes:     repos.classes,
		Enrollments: repos.enrollments,
		Materials:   repos.materials,
		Submissions: repos.submissions,
		Messages:    repos.messages,
	}, client, time.Minute, testLogger())

	teacher := createUser(t, db, "Teacher", models.RoleTeacher)
	student := createUser(t, db, "Student", models.RoleStudent)
	pending := createUser(t, db, "Pending", models.RoleStudent)
	class := createClass(t, db, teacher, "History")
	enroll(t, db, class, student, models.EnrollmentStatusApproved)
	enroll(t, db, class, pending, models.EnrollmentStatusPending)

	return dashboardFixture{
		db:          db,
		redis:       mr,
		dashboards:  dashboards,
		materials:   NewMaterialService(repos.materials, repos.classes, repos.enrollments, nil, testValidator(), nil, dashboards, testLogger()),
		submissions: NewSubmissionService(repos.submissions, repos.materials, repos.classes, repos.enrollments, &stubStorage{}, testValidator(), nil, dashboards, testLogger()),
		admin:       createUser(t, db, "Admin", models.RoleAdmin),
		teacher:     teacher,
		student:     student,
		pending:     pending,
		class:       class,
	}
}

func (fx dashboardFixture) seedMaterials(t *testing.T) (quiz, assignment dto.MaterialResponse) {
	t.Helper()
	ctx := context.Background()
	teacher := actorOf(fx.teacher)
	past := time.Now().Add(-time.Hour)

	openQuiz := sampleQuizRequest(true)
	openQuiz.Title = "Open quiz"
	quiz, err := fx.materials.Create(ctx, teacher, fx.class.ID, openQuiz, nil)
	require.NoError(t, err)

	closedQuiz := sampleQuizRequest(true)
	closedQuiz.Title = "Closed quiz"
	closedQuiz.DueAt = &past
	_, err = fx.materials.Create(ctx, teacher, fx.class.ID, closedQuiz, nil)
	require.NoError(t, err)

	draft := sampleQuizRequest(false)
	draft.Title = "Draft quiz"
	_, err = fx.materials.Create(ctx, teacher, fx.class.ID, draft, nil)
	require.NoError(t, err)

	assignment, err = fx.materials.Create(ctx, teacher, fx.class.ID, dto.CreateMaterialRequest{
		Kind: "assignment", Title: "Late essay", Published: true, DueAt: &past,
	}, nil)
	require.NoError(t, err)
	return quiz, assignment
}

func openTitles(resp dto.StudentDashboardResponse) []string {
	titles := make([]string, 0, len(resp.OpenMaterials))
	for _, material := range resp.OpenMaterials {
		titles = append(titles, material.Title)
	}
	return titles
}

func TestStudentDashboardCachesAndInvalidates(t *testing.T) {
	fx := newDashboardFixture(t)
	quiz, _ := fx.seedMaterials(t)
	ctx := context.Background()
	student := actorOf(fx.student)

	first, err := fx.dashboards.Student(ctx, student)
	require.NoError(t, err)
	require.False(t, first.CacheHit)
	require.Len(t, first.Classes, 1)
	require.ElementsMatch(t, []string{"Open quiz", "Late essay"}, openTitles(first))
	require.Nil(t, first.AverageScore)
	require.True(t, fx.redis.Exists(studentDashboardKey(fx.student.ID)))

	cached, err := fx.dashboards.Student(ctx, student)
	require.NoError(t, err)
	require.True(t, cached.CacheHit)
	require.ElementsMatch(t, openTitles(first), openTitles(cached))

	_, err = fx.submissions.SubmitQuiz(ctx, student, quiz.ID, dto.SubmitQuizRequest{
		Answers: []dto.QuizAnswerInput{
			{QuestionID: quiz.Questions[0].ID, Answer: "Paris"},
			{QuestionID: quiz.Questions[1].ID, Answer: "true"},
			{QuestionID: quiz.Questions[2].ID, Answer: "Tokyo"},
		},
	})
	require.NoError(t, err)
	require.False(t, fx.redis.Exists(studentDashboardKey(fx.student.ID)), "submitting drops the cached dashboard")

	fresh, err := fx.dashboards.Student(ctx, student)
	require.NoError(t, err)
	require.False(t, fresh.CacheHit)
	require.Equal(t, []string{"Late essay"}, openTitles(fresh))
	require.Len(t, fresh.RecentGrades, 1)
	require.NotNil(t, fresh.AverageScore)
	require.InDelta(t, 100.0, *fresh.AverageScore, 0.001)
}

func TestDashboardWithoutCache(t *testing.T) {
	fx := newDashboardFixture(t)
	repos := newTestRepos(fx.db)
	uncached := NewDashboardService(DashboardRepositories{
		Users:       repos.users,
		Classes:     repos.classes,
		Enrollments: repos.enrollments,
		Materials:   repos.materials,
		Submissions: repos.submissions,
		Messages:    repos.messages,
	}, nil, time.Minute, testLogger())

	for i := 0; i < 2; i++ {
		resp, err := uncached.Student(context.Background(), actorOf(fx.student))
		require.NoError(t, err)
		require.False(t, resp.CacheHit)
	}
	uncached.InvalidateStudents(context.Background(), fx.student.ID)
}

func TestTeacherDashboardCounts(t *testing.T) {
	fx := newDashboardFixture(t)
	_, assignment := fx.seedMaterials(t)
	ctx := context.Background()

	_, err := fx.submissions.SubmitAssignment(ctx, actorOf(fx.student), assignment.ID, fileHeader(t, "essay.pdf", pdfContent))
	require.NoError(t, err)

	resp, err := fx.dashboards.Teacher(ctx, actorOf(fx.teacher))
	require.NoError(t, err)
	require.Len(t, resp.Classes, 1)
	require.Equal(t, fx.class.Code, resp.Classes[0].Code)
	require.Equal(t, int64(1), resp.PendingEnrollments)
	require.Equal(t, int64(1), resp.UngradedSubmissions)
	require.Len(t, resp.RecentSubmissions, 1)

	_, err = fx.dashboards.Teacher(ctx, actorOf(fx.student))
	require.ErrorIs(t, err, ErrForbidden)
	_, err = fx.dashboards.Student(ctx, actorOf(fx.teacher))
	require.ErrorIs(t, err, ErrForbidden)
}

func TestAdminSummary(t *testing.T) {
	fx := newDashboardFixture(t)
	_, assignment := fx.seedMaterials(t)
	ctx := context.Background()

	archived := createClass(t, fx.db, fx.teacher, "Old class")
	require.NoError(t, fx.db.Model(&models.Class{}).Where("id = ?", archived.ID).Update("archived", true).Error)

	_, err := fx.submissions.SubmitAssignment(ctx, actorOf(fx.student), assignment.ID, fileHeader(t, "essay.pdf", pdfContent))
	require.NoError(t, err)

	summary, err := fx.dashboards.AdminSummary(ctx, actorOf(fx.admin))
	require.NoError(t, err)
	require.Equal(t, int64(1), summary.UsersByRole[models.RoleAdmin])
	require.Equal(t, int64(1), summary.UsersByRole[models.RoleTeacher])
	require.Equal(t, int64(2), summary.UsersByRole[models.RoleStudent])
	require.Equal(t, int64(1), summary.Classes, "archived classes are not counted")
	require.Equal(t, int64(1), summary.EnrollmentsByStatus[models.EnrollmentStatusPending])
	require.Equal(t, int64(1), summary.EnrollmentsByStatus[models.EnrollmentStatusApproved])
	require.Equal(t, int64(0), summary.EnrollmentsByStatus[models.EnrollmentStatusDenied])
	require.Equal(t, int64(4), summary.Materials)
	require.Equal(t, int64(1), summary.Submissions)
	require.Equal(t, int64(1), summary.UngradedSubmissions)
	require.Zero(t, summary.Messages)

	_, err = fx.dashboards.AdminSummary(ctx, actorOf(fx.teacher))
	require.ErrorIs(t, err, ErrForbidden)
}
