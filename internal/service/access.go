package service

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/noah-isme/erms-api/internal/models"
	"github.com/noah-isme/erms-api/internal/repository"
)

// classAccess centralises the class visibility rules shared by every class-scoped service.
type classAccess struct {
	classes     repository.ClassRepository
	enrollments repository.EnrollmentRepository
}

func (a classAccess) load(ctx context.Context, classID uint) (models.Class, error) {
	class, err := a.classes.GetByID(ctx, classID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Class{}, ErrClassNotFound
		}
		return models.Class{}, err
	}
	return class, nil
}

// manageable returns the class when the actor is its teacher or an admin.
func (a classAccess) manageable(ctx context.Context, actor Actor, classID uint) (models.Class, error) {
	class, err := a.load(ctx, classID)
	if err != nil {
		return models.Class{}, err
	}
	if !canManage(actor, class) {
		return models.Class{}, ErrForbidden
	}
	return class, nil
}

// visible returns the class when the actor may read it: admins always, teachers
// for their own classes, students with an approved enrollment.
func (a classAccess) visible(ctx context.Context, actor Actor, classID uint) (models.Class, error) {
	class, err := a.load(ctx, classID)
	if err != nil {
		return models.Class{}, err
	}
	if canManage(actor, class) {
		return class, nil
	}
	if actor.IsStudent() {
		approved, err := a.enrollments.IsApproved(ctx, class.ID, actor.ID)
		if err != nil {
			return models.Class{}, err
		}
		if approved {
			return class, nil
		}
	}
	return models.Class{}, ErrForbidden
}

func canManage(actor Actor, class models.Class) bool {
	if actor.IsAdmin() {
		return true
	}
	return actor.IsTeacher() && class.IsOwnedBy(actor.ID)
}
