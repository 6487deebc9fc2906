package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/noah-isme/erms-api/internal/dto"
	"github.com/noah-isme/erms-api/internal/models"
	"github.com/noah-isme/erms-api/internal/repository"
)

// UserService implements account administration.
type UserService interface {
	List(ctx context.Context, req dto.UserListRequest) (dto.UserListResponse, error)
	Get(ctx context.Context, id uint) (dto.UserResponse, error)
	Create(ctx context.Context, actor Actor, req dto.CreateUserRequest) (dto.UserResponse, error)
	Update(ctx context.Context, actor Actor, id uint, req dto.UpdateUserRequest) (dto.UserResponse, error)
	ResetPassword(ctx context.Context, actor Actor, id uint, req dto.ResetPasswordRequest) error
	Delete(ctx context.Context, actor Actor, id uint) error
}

type userService struct {
	users      repository.UserRepository
	classes    repository.ClassRepository
	validator  *validator.Validate
	activity   ActivityRecorder
	logger     zerolog.Logger
	bcryptCost int
}

// NewUserService constructs the admin user service.
func NewUserService(users repository.UserRepository, classes repository.ClassRepository, validate *validator.Validate, activity ActivityRecorder, logger zerolog.Logger, bcryptCost int) UserService {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &userService{
		users:      users,
		classes:    classes,
		validator:  validate,
		activity:   activity,
		logger:     logger.With().Str("component", "user_service").Logger(),
		bcryptCost: bcryptCost,
	}
}

func (s *userService) List(ctx context.Context, req dto.UserListRequest) (dto.UserListResponse, error) {
	role := strings.ToLower(strings.TrimSpace(req.Role))
	if role != "" && !models.IsValidRole(role) {
		return dto.UserListResponse{}, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, req.Role)
	}

	users, total, err := s.users.List(ctx, repository.UserFilter{
		Search:   req.Search,
		Role:     role,
		Active:   req.Active,
		Page:     req.Page,
		PageSize: req.PageSize,
	})
	if err != nil {
		return dto.UserListResponse{}, err
	}

	items := make([]dto.UserResponse, 0, len(users))
	for _, user := range users {
		items = append(items, dto.NewUserResponse(user))
	}
	return dto.UserListResponse{Items: items, Pagination: dto.NewPaginationMeta(req.Page, req.PageSize, total)}, nil
}

func (s *userService) Get(ctx context.Context, id uint) (dto.UserResponse, error) {
	user, err := s.load(ctx, id)
	if err != nil {
		return dto.UserResponse{}, err
	}
	return dto.NewUserResponse(user), nil
}

func (s *userService) Create(ctx context.Context, actor Actor, req dto.CreateUserRequest) (dto.UserResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.UserResponse{}, err
	}

	user, err := newAccount(req.Name, req.Email, req.Password, req.Role, req.Profile, s.bcryptCost)
	if err != nil {
		return dto.UserResponse{}, err
	}
	if err := s.users.Create(ctx, &user); err != nil {
		return dto.UserResponse{}, accountWriteError(ctx, s.users, user.Email, 0, err)
	}

	record(ctx, s.activity, s.logger, ActivityEntry{
		Actor:      actor,
		Action:     "user.created",
		EntityType: "user",
		EntityID:   uintPtr(user.ID),
		Metadata:   map[string]interface{}{"role": user.Role, "email": user.Email},
	})

	return dto.NewUserResponse(user), nil
}

func (s *userService) Update(ctx context.Context, actor Actor, id uint, req dto.UpdateUserRequest) (dto.UserResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.UserResponse{}, err
	}

	user, err := s.load(ctx, id)
	if err != nil {
		return dto.UserResponse{}, err
	}

	wasTeacher := user.Role == models.RoleTeacher && user.Active
	changed := map[string]interface{}{}
	if req.Name != nil {
		user.Name = strings.TrimSpace(*req.Name)
		changed["name"] = user.Name
	}
	if req.Email != nil {
		user.Email = models.NormalizeEmail(*req.Email)
		changed["email"] = user.Email
	}
	if req.Role != nil {
		role := strings.ToLower(strings.TrimSpace(*req.Role))
		if user.ID == actor.ID && role != models.RoleAdmin {
			return dto.UserResponse{}, fmt.Errorf("%w: administrators cannot demote themselves", ErrInvalidInput)
		}
		user.Role = role
		changed["role"] = role
	}
	if req.Active != nil {
		if user.ID == actor.ID && !*req.Active {
			return dto.UserResponse{}, fmt.Errorf("%w: administrators cannot deactivate themselves", ErrInvalidInput)
		}
		user.Active = *req.Active
		changed["active"] = user.Active
	}
	if wasTeacher && (user.Role != models.RoleTeacher || !user.Active) {
		if err := s.ensureNoClasses(ctx, user.ID); err != nil {
			return dto.UserResponse{}, err
		}
	}
	if req.Profile != nil {
		applyProfile(&user, *req.Profile)
		changed["profile"] = true
	} else if req.Role != nil {
		applyProfile(&user, dto.ProfileInput{})
	}

	if err := s.users.Update(ctx, &user); err != nil {
		return dto.UserResponse{}, accountWriteError(ctx, s.users, user.Email, user.ID, err)
	}

	record(ctx, s.activity, s.logger, ActivityEntry{
		Actor:      actor,
		Action:     "user.updated",
		EntityType: "user",
		EntityID:   uintPtr(user.ID),
		Metadata:   changed,
	})

	return dto.NewUserResponse(user), nil
}

func (s *userService) ResetPassword(ctx context.Context, actor Actor, id uint, req dto.ResetPasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return err
	}

	user, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := user.SetPassword(req.Password, s.bcryptCost); err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, user.ID, user.PasswordHash); err != nil {
		return err
	}

	record(ctx, s.activity, s.logger, ActivityEntry{
		Actor:      actor,
		Action:     "user.password_reset",
		EntityType: "user",
		EntityID:   uintPtr(user.ID),
	})
	return nil
}

func (s *userService) Delete(ctx context.Context, actor Actor, id uint) error {
	if id == actor.ID {
		return fmt.Errorf("%w: administrators cannot delete themselves", ErrInvalidInput)
	}

	user, err := s.load(ctx, id)
	if err != nil {
		return err
	}

	if user.Role == models.RoleTeacher {
		if err := s.ensureNoClasses(ctx, user.ID); err != nil {
			return err
		}
	}

	if err := s.users.Delete(ctx, user.ID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		if errors.Is(err, gorm.ErrForeignKeyViolated) {
			return ErrUserHasClasses
		}
		return err
	}

	record(ctx, s.activity, s.logger, ActivityEntry{
		Actor:      actor,
		Action:     "user.deleted",
		EntityType: "user",
		EntityID:   uintPtr(user.ID),
		Metadata:   map[string]interface{}{"role": user.Role},
	})
	return nil
}

func (s *userService) load(ctx context.Context, id uint) (models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, err
	}
	return user, nil
}

// ensureNoClasses guards changes that would leave a class without an active
// teacher.
func (s *userService) ensureNoClasses(ctx context.Context, teacherID uint) error {
	owned, err := s.classes.CountByTeacher(ctx, teacherID)
	if err != nil {
		return err
	}
	if owned > 0 {
		return ErrUserHasClasses
	}
	return nil
}
