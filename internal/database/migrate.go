package database

import (
	"gorm.io/gorm"

	"github.com/noah-isme/erms-api/internal/models"
)

// Migrate creates or updates every table owned by the service.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.StudentProfile{},
		&models.TeacherProfile{},
		&models.Class{},
		&models.Enrollment{},
		&models.Material{},
		&models.Question{},
		&models.Submission{},
		&models.SubmissionAnswer{},
		&models.ExamScore{},
		&models.Message{},
		&models.ActivityLog{},
	)
}
