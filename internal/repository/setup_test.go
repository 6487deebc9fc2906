package repository

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/erms-api/internal/database"
	"github.com/noah-isme/erms-api/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func seedUser(t *testing.T, db *gorm.DB, name, role string) models.User {
	t.Helper()
	user := models.User{
		Name:         name,
		Email:        models.NormalizeEmail(uuid.NewString()[:8] + "@school.test"),
		PasswordHash: "x",
		Role:         role,
		Active:       true,
	}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func seedClass(t *testing.T, db *gorm.DB, teacherID uint, name, code string) models.Class {
	t.Helper()
	class := models.Class{Name: name, Code: code, TeacherID: teacherID}
	require.NoError(t, db.Omit("Teacher").Create(&class).Error)
	return class
}
