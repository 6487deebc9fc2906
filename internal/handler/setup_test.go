package handler_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/erms-api/internal/auth"
	"github.com/noah-isme/erms-api/internal/config"
	"github.com/noah-isme/erms-api/internal/database"
	"github.com/noah-isme/erms-api/internal/handler"
	"github.com/noah-isme/erms-api/internal/middleware"
	"github.com/noah-isme/erms-api/internal/models"
	"github.com/noah-isme/erms-api/internal/repository"
	"github.com/noah-isme/erms-api/internal/router"
	"github.com/noah-isme/erms-api/internal/service"
)

const testPassword = "correct-horse"

var testConfig = config.Config{
	AppName:      "ERMS Test",
	AppEnv:       "test",
	GradeWeights: config.GradeWeights{Prelim: 0.3, Midterm: 0.3, Final: 0.4},
	PassingGrade: 75,
}

type memoryStorage struct {
	mu      sync.Mutex
	uploads []string
}

func (m *memoryStorage) Upload(_ context.Context, subfolder, name string, reader io.Reader) (string, error) {
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	url := fmt.Sprintf("https://files.test/%s/%s", subfolder, name)
	m.uploads = append(m.uploads, url)
	return url, nil
}

type testAPI struct {
	app      *fiber.App
	db       *gorm.DB
	issuer   *auth.Issuer
	storage  *memoryStorage
	messages service.MessageService
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	logger := zerolog.Nop()
	validate := validator.New(validator.WithRequiredStructEnabled())
	issuer := auth.NewIssuer("access-secret", "refresh-secret", 15*time.Minute, time.Hour)
	storage := &memoryStorage{}

	users := repository.NewUserRepository(db)
	classes := repository.NewClassRepository(db)
	enrollments := repository.NewEnrollmentRepository(db)
	materials := repository.NewMaterialRepository(db)
	submissions := repository.NewSubmissionRepository(db)
	scores := repository.NewExamScoreRepository(db)
	messages := repository.NewMessageRepository(db)

	activity := service.NewActivityService(repository.NewActivityLogRepository(db), logger)
	dashboards := service.NewDashboardService(service.DashboardRepositories{
		Users:       users,
		Classes:     classes,
		Enrollments: enrollments,
		Materials:   materials,
		Submissions: submissions,
		Messages:    messages,
	}, nil, time.Minute, logger)
	messageService := service.NewMessageService(messages, users, service.MessageBroker{Channel: "erms"}, validate, logger)

	app := fiber.New()
	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, testConfig, router.Dependencies{
		AuthHandler:          handler.NewAuthHandler(service.NewAuthService(users, issuer, validate, logger, bcrypt.MinCost), logger),
		AdminUserHandler:     handler.NewAdminUserHandler(service.NewUserService(users, classes, validate, activity, logger, bcrypt.MinCost), logger),
		AdminActivityHandler: handler.NewAdminActivityHandler(activity, dashboards, logger),
		ClassHandler:         handler.NewClassHandler(service.NewClassService(classes, enrollments, users, validate, activity, dashboards, logger, service.NewCodeGenerator(rand.Reader)), logger),
		EnrollmentHandler:    handler.NewEnrollmentHandler(service.NewEnrollmentService(enrollments, classes, users, validate, activity, dashboards, logger), logger),
		MaterialHandler:      handler.NewMaterialHandler(service.NewMaterialService(materials, classes, enrollments, storage, validate, activity, dashboards, logger), logger),
		SubmissionHandler:    handler.NewSubmissionHandler(service.NewSubmissionService(submissions, materials, classes, enrollments, storage, validate, activity, dashboards, logger), logger),
		GradeHandler:         handler.NewGradeHandler(service.NewGradeService(scores, classes, enrollments, validate, activity, dashboards, logger, testConfig.GradeWeights, testConfig.PassingGrade), logger),
		MessageHandler:       handler.NewMessageHandler(messageService, logger),
		DashboardHandler:     handler.NewDashboardHandler(dashboards, logger),
		JWTMiddleware:        middleware.JWTProtected(issuer),
	})

	return &testAPI{app: app, db: db, issuer: issuer, storage: storage, messages: messageService}
}

func (a *testAPI) createUser(t *testing.T, name, role string) models.User {
	t.Helper()
	user := models.User{
		Name:   name,
		Email:  models.NormalizeEmail(fmt.Sprintf("%s-%s@school.test", role, uuid.NewString()[:8])),
		Role:   role,
		Active: true,
	}
	if role == models.RoleStudent {
		user.StudentProfile = &models.StudentProfile{StudentNumber: "S-" + uuid.NewString()[:8]}
	}
	require.NoError(t, user.SetPassword(testPassword, bcrypt.MinCost))
	require.NoError(t, a.db.Create(&user).Error)
	return user
}

func (a *testAPI) token(t *testing.T, user models.User) string {
	t.Helper()
	pair, err := a.issuer.Issue(user.ID, user.Role)
	require.NoError(t, err)
	return pair.AccessToken
}

// do sends body as JSON unless it is nil.
func (a *testAPI) do(t *testing.T, method, path, token string, body interface{}) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}

	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

type envelope[T any] struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Data    T                 `json:"data"`
	Meta    json.RawMessage   `json:"meta"`
	Details map[string]string `json:"details"`
}

func decodeResponse[T any](t *testing.T, resp *http.Response) envelope[T] {
	t.Helper()
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out envelope[T]
	require.NoError(t, json.Unmarshal(data, &out), string(data))
	return out
}

func requireStatus(t *testing.T, resp *http.Response, status int) {
	t.Helper()
	if resp.StatusCode == status {
		return
	}
	body, _ := io.ReadAll(resp.Body)
	require.Failf(t, "unexpected status", "want %d got %d: %s", status, resp.StatusCode, string(body))
}
