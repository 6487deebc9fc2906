package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/erms-api/internal/models"
)

// EnrollmentFilter narrows enrollment queries.
type EnrollmentFilter struct {
	ClassID   *uint
	ClassIDs  []uint
	StudentID *uint
	Status    string
	Page      int
	PageSize  int
}

// EnrollmentRepository persists class memberships.
type EnrollmentRepository interface {
	Create(ctx context.Context, enrollment *models.Enrollment) error
	GetByID(ctx context.Context, id uint) (models.Enrollment, error)
	GetByClassAndStudent(ctx context.Context, classID, studentID uint) (models.Enrollment, error)
	List(ctx context.Context, filter EnrollmentFilter) ([]models.Enrollment, int64, error)
	Update(ctx context.Context, enrollment *models.Enrollment) error
	Delete(ctx context.Context, id uint) error
	IsApproved(ctx context.Context, classID, studentID uint) (bool, error)
	ApprovedStudents(ctx context.Context, classID uint) ([]models.User, error)
	Count(ctx context.Context, filter EnrollmentFilter) (int64, error)
}

type enrollmentRepository struct {
	db *gorm.DB
}

// NewEnrollmentRepository constructs the enrollment repository.
func NewEnrollmentRepository(db *gorm.DB) EnrollmentRepository {
	return &enrollmentRepository{db: db}
}

func (r *enrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(enrollment).Error
}

func (r *enrollmentRepository) GetByID(ctx context.Context, id uint) (models.Enrollment, error) {
	var enrollment models.Enrollment
	err := r.db.WithContext(ctx).Preload("Class").Preload("Student").First(&enrollment, id).Error
	if err != nil {
		return models.Enrollment{}, err
	}
	return enrollment, nil
}

func (r *enrollmentRepository) GetByClassAndStudent(ctx context.Context, classID, studentID uint) (models.Enrollment, error) {
	var enrollment models.Enrollment
	err := r.db.WithContext(ctx).
		Preload("Class").
		Where("class_id = ? AND student_id = ?", classID, studentID).
		First(&enrollment).Error
	if err != nil {
		return models.Enrollment{}, err
	}
	return enrollment, nil
}

func (r *enrollmentRepository) filtered(ctx context.Context, filter EnrollmentFilter) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&models.Enrollment{})
	if filter.ClassID != nil {
		query = query.Where("class_id = ?", *filter.ClassID)
	}
	if filter.ClassIDs != nil {
		if len(filter.ClassIDs) == 0 {
			query = query.Where("1 = 0")
		} else {
			query = query.Where("class_id IN ?", filter.ClassIDs)
		}
	}
	if filter.StudentID != nil {
		query = query.Where("student_id = ?", *filter.StudentID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	return query
}

func (r *enrollmentRepository) List(ctx context.Context, filter EnrollmentFilter) ([]models.Enrollment, int64, error) {
	query := r.filtered(ctx, filter)

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var enrollments []models.Enrollment
	err := paginate(query, filter.Page, filter.PageSize).
		Preload("Class").
		Preload("Student").
		Order("created_at ASC").Order("id ASC").
		Find(&enrollments).Error
	if err != nil {
		return nil, 0, err
	}
	return enrollments, total, nil
}

func (r *enrollmentRepository) Update(ctx context.Context, enrollment *models.Enrollment) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(enrollment).Error
}

func (r *enrollmentRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&models.Enrollment{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *enrollmentRepository) IsApproved(ctx context.Context, classID, studentID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Enrollment{}).
		Where("class_id = ? AND student_id = ? AND status = ?", classID, studentID, models.EnrollmentStatusApproved).
		Count(&count).Error
	return count > 0, err
}

func (r *enrollmentRepository) ApprovedStudents(ctx context.Context, classID uint) ([]models.User, error) {
	var students []models.User
	err := r.db.WithContext(ctx).
		Preload("StudentProfile").
		Joins("JOIN enrollments ON enrollments.student_id = users.id").
		Where("enrollments.class_id = ? AND enrollments.status = ?", classID, models.EnrollmentStatusApproved).
		Order("users.name ASC").Order("users.id ASC").
		Find(&students).Error
	return students, err
}

func (r *enrollmentRepository) Count(ctx context.Context, filter EnrollmentFilter) (int64, error) {
	var count int64
	err := r.filtered(ctx, filter).Count(&count).Error
	return count, err
}
