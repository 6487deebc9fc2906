package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/erms-api/internal/models"
)

// ClassFilter narrows class listings to what the caller may see.
type ClassFilter struct {
	TeacherID       *uint
	StudentID       *uint
	Search          string
	IncludeArchived bool
	Page            int
	PageSize        int
}

// ClassRepository persists classes.
type ClassRepository interface {
	Create(ctx context.Context, class *models.Class) error
	GetByID(ctx context.Context, id uint) (models.Class, error)
	GetByCode(ctx context.Context, code string) (models.Class, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	List(ctx context.Context, filter ClassFilter) ([]models.Class, int64, error)
	ListIDsByTeacher(ctx context.Context, teacherID uint) ([]uint, error)
	Update(ctx context.Context, class *models.Class) error
	Delete(ctx context.Context, id uint) error
	CountByTeacher(ctx context.Context, teacherID uint) (int64, error)
	Count(ctx context.Context) (int64, error)
}

type classRepository struct {
	db *gorm.DB
}

// NewClassRepository constructs the class repository.
func NewClassRepository(db *gorm.DB) ClassRepository {
	return &classRepository{db: db}
}

func (r *classRepository) Create(ctx context.Context, class *models.Class) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(class).Error
}

func (r *classRepository) GetByID(ctx context.Context, id uint) (models.Class, error) {
	var class models.Class
	if err := r.db.WithContext(ctx).Preload("Teacher").First(&class, id).Error; err != nil {
		return models.Class{}, err
	}
	return class, nil
}

func (r *classRepository) GetByCode(ctx context.Context, code string) (models.Class, error) {
	var class models.Class
	err := r.db.WithContext(ctx).
		Preload("Teacher").
		Where("code = ?", strings.ToUpper(strings.TrimSpace(code))).
		First(&class).Error
	if err != nil {
		return models.Class{}, err
	}
	return class, nil
}

func (r *classRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Class{}).Where("code = ?", code).Count(&count).Error
	return count > 0, err
}

func (r *classRepository) List(ctx context.Context, filter ClassFilter) ([]models.Class, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Class{})

	if filter.TeacherID != nil {
		query = query.Where("classes.teacher_id = ?", *filter.TeacherID)
	}
	if filter.StudentID != nil {
		query = query.Where(
			"classes.id IN (?)",
			r.db.Model(&models.Enrollment{}).
				Select("class_id").
				Where("student_id = ? AND status = ?", *filter.StudentID, models.EnrollmentStatusApproved),
		)
	}
	if !filter.IncludeArchived {
		query = query.Where("classes.archived = ?", false)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(classes.name) LIKE ? OR LOWER(classes.subject) LIKE ?", like, like)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var classes []models.Class
	err := paginate(query, filter.Page, filter.PageSize).
		Preload("Teacher").
		Order("classes.name ASC").Order("classes.id ASC").
		Find(&classes).Error
	if err != nil {
		return nil, 0, err
	}
	return classes, total, nil
}

func (r *classRepository) ListIDsByTeacher(ctx context.Context, teacherID uint) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.Class{}).
		Where("teacher_id = ?", teacherID).
		Pluck("id", &ids).Error
	return ids, err
}

func (r *classRepository) Update(ctx context.Context, class *models.Class) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(class).Error
}

func (r *classRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		materialIDs := tx.Model(&models.Material{}).Select("id").Where("class_id = ?", id)
		submissionIDs := tx.Model(&models.Submission{}).Select("id").Where("material_id IN (?)", materialIDs)

		if err := tx.Where("submission_id IN (?)", submissionIDs).Delete(&models.SubmissionAnswer{}).Error; err != nil {
			return err
		}
		if err := tx.Where("material_id IN (?)", materialIDs).Delete(&models.Submission{}).Error; err != nil {
			return err
		}
		if err := tx.Where("material_id IN (?)", materialIDs).Delete(&models.Question{}).Error; err != nil {
			return err
		}
		if err := tx.Where("class_id = ?", id).Delete(&models.Material{}).Error; err != nil {
			return err
		}
		if err := tx.Where("class_id = ?", id).Delete(&models.ExamScore{}).Error; err != nil {
			return err
		}
		if err := tx.Where("class_id = ?", id).Delete(&models.Enrollment{}).Error; err != nil {
			return err
		}

		result := tx.Delete(&models.Class{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (r *classRepository) CountByTeacher(ctx context.Context, teacherID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Class{}).Where("teacher_id = ?", teacherID).Count(&count).Error
	return count, err
}

// Count returns the number of active (non-archived) classes.
func (r *classRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Class{}).Where("archived = ?", false).Count(&count).Error
	return count, err
}
