package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/erms-api/internal/models"
)

// MaterialFilter narrows material listings.
type MaterialFilter struct {
	ClassID       *uint
	ClassIDs      []uint
	Kind          string
	PublishedOnly bool
	Page          int
	PageSize      int
}

// MaterialRepository persists quizzes, assignments and their questions.
type MaterialRepository interface {
	Create(ctx context.Context, material *models.Material) error
	GetByID(ctx context.Context, id uint) (models.Material, error)
	List(ctx context.Context, filter MaterialFilter) ([]models.Material, int64, error)
	Update(ctx context.Context, material *models.Material, replaceQuestions bool) error
	Delete(ctx context.Context, id uint) error
	HasSubmissions(ctx context.Context, id uint) (bool, error)
	Count(ctx context.Context, filter MaterialFilter) (int64, error)
}

type materialRepository struct {
	db *gorm.DB
}

// NewMaterialRepository constructs the material repository.
func NewMaterialRepository(db *gorm.DB) MaterialRepository {
	return &materialRepository{db: db}
}

func orderedQuestions(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC").Order("id ASC")
}

func (r *materialRepository) Create(ctx context.Context, material *models.Material) error {
	return r.db.WithContext(ctx).Omit("Class").Create(material).Error
}

func (r *materialRepository) GetByID(ctx context.Context, id uint) (models.Material, error) {
	var material models.Material
	err := r.db.WithContext(ctx).
		Preload("Questions", orderedQuestions).
		Preload("Class").
		First(&material, id).Error
	if err != nil {
		return models.Material{}, err
	}
	return material, nil
}

func (r *materialRepository) filtered(ctx context.Context, filter MaterialFilter) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&models.Material{})
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
	if filter.Kind != "" {
		query = query.Where("kind = ?", filter.Kind)
	}
	if filter.PublishedOnly {
		query = query.Where("published = ?", true)
	}
	return query
}

func (r *materialRepository) List(ctx context.Context, filter MaterialFilter) ([]models.Material, int64, error) {
	query := r.filtered(ctx, filter)

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var materials []models.Material
	err := paginate(query, filter.Page, filter.PageSize).
		Preload("Questions", orderedQuestions).
		Order("due_at IS NULL").Order("due_at ASC").Order("id ASC").
		Find(&materials).Error
	if err != nil {
		return nil, 0, err
	}
	return materials, total, nil
}

func (r *materialRepository) Update(ctx context.Context, material *models.Material, replaceQuestions bool) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Save(material).Error; err != nil {
			return err
		}
		if !replaceQuestions {
			return nil
		}

		if err := tx.Where("material_id = ?", material.ID).Delete(&models.Question{}).Error; err != nil {
			return err
		}
		if len(material.Questions) == 0 {
			return nil
		}
		for i := range material.Questions {
			material.Questions[i].ID = 0
			material.Questions[i].MaterialID = material.ID
		}
		return tx.Create(&material.Questions).Error
	})
}

func (r *materialRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		submissionIDs := tx.Model(&models.Submission{}).Select("id").Where("material_id = ?", id)
		if err := tx.Where("submission_id IN (?)", submissionIDs).Delete(&models.SubmissionAnswer{}).Error; err != nil {
			return err
		}
		if err := tx.Where("material_id = ?", id).Delete(&models.Submission{}).Error; err != nil {
			return err
		}
		if err := tx.Where("material_id = ?", id).Delete(&models.Question{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&models.Material{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (r *materialRepository) Count(ctx context.Context, filter MaterialFilter) (int64, error) {
	var count int64
	err := r.filtered(ctx, filter).Count(&count).Error
	return count, err
}

func (r *materialRepository) HasSubmissions(ctx context.Context, id uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Submission{}).Where("material_id = ?", id).Limit(1).Count(&count).Error
	return count > 0, err
}
