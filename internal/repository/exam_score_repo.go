package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/erms-api/internal/models"
)

// ExamScoreRepository persists term exam scores.
type ExamScoreRepository interface {
	Upsert(ctx context.Context, scores []models.ExamScore) error
	ListByClass(ctx context.Context, classID uint) ([]models.ExamScore, error)
	ListByStudent(ctx context.Context, studentID uint) ([]models.ExamScore, error)
}

type examScoreRepository struct {
	db *gorm.DB
}

// NewExamScoreRepository constructs the exam score repository.
func NewExamScoreRepository(db *gorm.DB) ExamScoreRepository {
	return &examScoreRepository{db: db}
}

// Upsert inserts scores or overwrites the existing score of the same class, student and term.
func (r *examScoreRepository) Upsert(ctx context.Context, scores []models.ExamScore) error {
	if len(scores) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "class_id"}, {Name: "student_id"}, {Name: "term"}},
		DoUpdates: clause.AssignmentColumns([]string{"score", "recorded_by", "updated_at"}),
	}).Create(&scores).Error
}

func (r *examScoreRepository) ListByClass(ctx context.Context, classID uint) ([]models.ExamScore, error) {
	var scores []models.ExamScore
	err := r.db.WithContext(ctx).Where("class_id = ?", classID).Order("student_id ASC").Find(&scores).Error
	return scores, err
}

func (r *examScoreRepository) ListByStudent(ctx context.Context, studentID uint) ([]models.ExamScore, error) {
	var scores []models.ExamScore
	err := r.db.WithContext(ctx).Where("student_id = ?", studentID).Order("class_id ASC").Find(&scores).Error
	return scores, err
}
