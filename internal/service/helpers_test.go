package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"strings"
	"sync"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/erms-api/internal/database"
	"github.com/noah-isme/erms-api/internal/dto"
	"github.com/noah-isme/erms-api/internal/models"
	"github.com/noah-isme/erms-api/internal/repository"
)

const testPassword = "correct-horse"

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

func setupServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

// testRepos bundles every repository over one database.
type testRepos struct {
	users       repository.UserRepository
	classes     repository.ClassRepository
	enrollments repository.EnrollmentRepository
	materials   repository.MaterialRepository
	submissions repository.SubmissionRepository
	scores      repository.ExamScoreRepository
	messages    repository.MessageRepository
	activity    repository.ActivityLogRepository
}

func newTestRepos(db *gorm.DB) testRepos {
	return testRepos{
		users:       repository.NewUserRepository(db),
		classes:     repository.NewClassRepository(db),
		enrollments: repository.NewEnrollmentRepository(db),
		materials:   repository.NewMaterialRepository(db),
		submissions: repository.NewSubmissionRepository(db),
		scores:      repository.NewExamScoreRepository(db),
		messages:    repository.NewMessageRepository(db),
		activity:    repository.NewActivityLogRepository(db),
	}
}

func createUser(t *testing.T, db *gorm.DB, name, role string) models.User {
	t.Helper()
	user := models.User{
		Name:   name,
		Email:  models.NormalizeEmail(fmt.Sprintf("%s-%s@school.test", role, uuid.NewString()[:8])),
		Role:   role,
		Active: true,
	}
	require.NoError(t, user.SetPassword(testPassword, bcrypt.MinCost))
	require.NoError(t, db.Create(&user).Error)
	return user
}

func createClass(t *testing.T, db *gorm.DB, teacher models.User, name string) models.Class {
	t.Helper()
	class := models.Class{
		Name:      name,
		Subject:   "General",
		Code:      strings.ToUpper(uuid.NewString()[:6]),
		TeacherID: teacher.ID,
	}
	require.NoError(t, db.Omit("Teacher").Create(&class).Error)
	return class
}

func enroll(t *testing.T, db *gorm.DB, class models.Class, student models.User, status string) models.Enrollment {
	t.Helper()
	enrollment := models.Enrollment{ClassID: class.ID, StudentID: student.ID, Status: status}
	require.NoError(t, db.Omit("Class", "Student").Create(&enrollment).Error)
	return enrollment
}

func actorOf(user models.User) Actor {
	return Actor{ID: user.ID, Role: user.Role}
}

func floatPtr(v float64) *float64 {
	return &v
}

type stubActivityRecorder struct {
	mu      sync.Mutex
	entries []ActivityEntry
}

func (s *stubActivityRecorder) Record(_ context.Context, entry ActivityEntry) (dto.ActivityResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return dto.ActivityResponse{Action: entry.Action, EntityType: entry.EntityType, EntityID: entry.EntityID}, nil
}

func (s *stubActivityRecorder) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.entries))
	for _, entry := range s.entries {
		out = append(out, entry.Action)
	}
	return out
}

type stubInvalidator struct {
	mu  sync.Mutex
	ids []uint
}

func (s *stubInvalidator) InvalidateStudents(_ context.Context, ids ...uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = append(s.ids, ids...)
}

func (s *stubInvalidator) invalidated() []uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint(nil), s.ids...)
}

type stubStorage struct {
	uploads []string
	err     error
}

func (s *stubStorage) Upload(_ context.Context, subfolder, name string, reader io.Reader) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if _, err := io.ReadAll(reader); err != nil {
		return "", err
	}
	path := subfolder + "/" + name
	s.uploads = append(s.uploads, path)
	return "https://files.test/" + path, nil
}

// fileHeader builds a multipart file header the way fiber hands one to handlers.
func fileHeader(t *testing.T, name string, content []byte) *multipart.FileHeader {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	form, err := multipart.NewReader(body, writer.Boundary()).ReadForm(int64(len(content)) + 1024)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })

	files := form.File["file"]
	require.Len(t, files, 1)
	return files[0]
}

var (
	pdfContent = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")
	exeContent = append([]byte("MZ"), bytes.Repeat([]byte{0x90}, 64)...)
)
