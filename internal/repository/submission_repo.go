package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/erms-api/internal/models"
)

// SubmissionFilter allows narrowing submission queries.
type SubmissionFilter struct {
	MaterialID *uint
	StudentID  *uint
	ClassIDs   []uint
	Status     string
	Page       int
	PageSize   int
}

// SubmissionRepository defines data operations for submissions.
type SubmissionRepository interface {
	Create(ctx context.Context, submission *models.Submission) error
	GetByID(ctx context.Context, id uint) (models.Submission, error)
	GetByMaterialAndStudent(ctx context.Context, materialID, studentID uint) (models.Submission, error)
	List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, int64, error)
	MarkGraded(ctx context.Context, submission *models.Submission) (bool, error)
	Count(ctx context.Context, filter SubmissionFilter) (int64, error)
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Omit("Material", "Student").Create(submission).Error
}

func (r *submissionRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Submission{}).
		Preload("Answers").
		Preload("Material").
		Preload("Student")
}

func (r *submissionRepository) GetByID(ctx context.Context, id uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.baseQuery(ctx).First(&submission, id).Error; err != nil {
		return models.Submission{}, err
	}
	return submission, nil
}

func (r *submissionRepository) GetByMaterialAndStudent(ctx context.Context, materialID, studentID uint) (models.Submission, error) {
	var submission models.Submission
	err := r.baseQuery(ctx).
		Where("material_id = ? AND student_id = ?", materialID, studentID).
		First(&submission).Error
	if err != nil {
		return models.Submission{}, err
	}
	return submission, nil
}

func (r *submissionRepository) filtered(ctx context.Context, filter SubmissionFilter) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&models.Submission{})
	if filter.MaterialID != nil {
		query = query.Where("submissions.material_id = ?", *filter.MaterialID)
	}
	if filter.StudentID != nil {
		query = query.Where("submissions.student_id = ?", *filter.StudentID)
	}
	if filter.ClassIDs != nil {
		if len(filter.ClassIDs) == 0 {
			query = query.Where("1 = 0")
		} else {
			query = query.Where(
				"submissions.material_id IN (?)",
				r.db.Model(&models.Material{}).Select("id").Where("class_id IN ?", filter.ClassIDs),
			)
		}
	}
	if filter.Status != "" {
		query = query.Where("submissions.status = ?", filter.Status)
	}
	return query
}

func (r *submissionRepository) List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, int64, error) {
	query := r.filtered(ctx, filter)

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var submissions []models.Submission
	err := paginate(query, filter.Page, filter.PageSize).
		Preload("Answers").
		Preload("Material").
		Preload("Student").
		Order("submissions.created_at DESC").Order("submissions.id DESC").
		Find(&submissions).Error
	if err != nil {
		return nil, 0, err
	}
	return submissions, total, nil
}

// MarkGraded stores the grade only while the row is still ungraded and
// reports whether it did.
func (r *submissionRepository) MarkGraded(ctx context.Context, submission *models.Submission) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Submission{}).
		Where("id = ? AND status = ?", submission.ID, models.SubmissionStatusSubmitted).
		Updates(map[string]interface{}{
			"status":     models.SubmissionStatusGraded,
			"score":      submission.Score,
			"feedback":   submission.Feedback,
			"graded_by":  submission.GradedBy,
			"graded_at":  submission.GradedAt,
			"updated_at": submission.GradedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *submissionRepository) Count(ctx context.Context, filter SubmissionFilter) (int64, error) {
	var count int64
	err := r.filtered(ctx, filter).Count(&count).Error
	return count, err
}
