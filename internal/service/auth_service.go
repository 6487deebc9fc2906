package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/noah-isme/erms-api/internal/auth"
	"github.com/noah-isme/erms-api/internal/dto"
	"github.com/noah-isme/erms-api/internal/models"
	"github.com/noah-isme/erms-api/internal/repository"
)

// TokenIssuer signs token pairs and validates refresh tokens.
type TokenIssuer interface {
	Issue(userID uint, role string) (auth.TokenPair, error)
	ParseRefresh(token string) (auth.Claims, error)
}

// AuthService handles self-service account flows.
type AuthService interface {
	Register(ctx context.Context, req dto.RegisterRequest) (dto.AuthResponse, error)
	Login(ctx context.Context, req dto.LoginRequest) (dto.AuthResponse, error)
	Refresh(ctx context.Context, req dto.RefreshRequest) (dto.AuthResponse, error)
	Me(ctx context.Context, userID uint) (dto.UserResponse, error)
	ChangePassword(ctx context.Context, userID uint, req dto.ChangePasswordRequest) error
}

type authService struct {
	users      repository.UserRepository
	tokens     TokenIssuer
	validator  *validator.Validate
	logger     zerolog.Logger
	bcryptCost int
	now        func() time.Time
}

// NewAuthService constructs the authentication service. A zero bcryptCost uses bcrypt.DefaultCost.
func NewAuthService(users repository.UserRepository, tokens TokenIssuer, validate *validator.Validate, logger zerolog.Logger, bcryptCost int) AuthService {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &authService{
		users:      users,
		tokens:     tokens,
		validator:  validate,
		logger:     logger.With().Str("component", "auth_service").Logger(),
		bcryptCost: bcryptCost,
		now:        time.Now,
	}
}

func (s *authService) Register(ctx context.Context, req dto.RegisterRequest) (dto.AuthResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.AuthResponse{}, err
	}

	user, err := newAccount(req.Name, req.Email, req.Password, req.Role, req.Profile, s.bcryptCost)
	if err != nil {
		return dto.AuthResponse{}, err
	}

	if err := s.users.Create(ctx, &user); err != nil {
		return dto.AuthResponse{}, accountWriteError(ctx, s.users, user.Email, 0, err)
	}

	s.logger.Info().Uint("user_id", user.ID).Str("role", user.Role).Msg("account registered")
	return s.issue(user)
}

func (s *authService) Login(ctx context.Context, req dto.LoginRequest) (dto.AuthResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.AuthResponse{}, err
	}

	user, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AuthResponse{}, ErrInvalidCredentials
		}
		return dto.AuthResponse{}, err
	}

	if !user.CheckPassword(req.Password) || !user.Active {
		s.logger.Debug().Uint("user_id", user.ID).Bool("active", user.Active).Msg("login rejected")
		return dto.AuthResponse{}, ErrInvalidCredentials
	}

	now := s.now()
	user.LastLoginAt = &now
	if err := s.users.Update(ctx, &user); err != nil {
		s.logger.Warn().Err(err).Uint("user_id", user.ID).Msg("failed to store last login")
	}

	return s.issue(user)
}

func (s *authService) Refresh(ctx context.Context, req dto.RefreshRequest) (dto.AuthResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.AuthResponse{}, err
	}

	claims, err := s.tokens.ParseRefresh(req.RefreshToken)
	if err != nil {
		return dto.AuthResponse{}, ErrInvalidCredentials
	}
	userID, err := claims.UserID()
	if err != nil {
		return dto.AuthResponse{}, ErrInvalidCredentials
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AuthResponse{}, ErrInvalidCredentials
		}
		return dto.AuthResponse{}, err
	}
	if !user.Active {
		return dto.AuthResponse{}, ErrInvalidCredentials
	}

	return s.issue(user)
}

func (s *authService) Me(ctx context.Context, userID uint) (dto.UserResponse, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.UserResponse{}, ErrUserNotFound
		}
		return dto.UserResponse{}, err
	}
	return dto.NewUserResponse(user), nil
}

func (s *authService) ChangePassword(ctx context.Context, userID uint, req dto.ChangePasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	if !user.CheckPassword(req.CurrentPassword) {
		return ErrInvalidCredentials
	}

	if err := user.SetPassword(req.NewPassword, s.bcryptCost); err != nil {
		return err
	}
	return s.users.UpdatePassword(ctx, user.ID, user.PasswordHash)
}

func (s *authService) issue(user models.User) (dto.AuthResponse, error) {
	pair, err := s.tokens.Issue(user.ID, user.Role)
	if err != nil {
		return dto.AuthResponse{}, err
	}
	return dto.AuthResponse{TokenPair: pair, User: dto.NewUserResponse(user)}, nil
}

// newAccount builds an active user with a hashed password and the profile row
// matching its role.
func newAccount(name, email, password, role string, profile dto.ProfileInput, cost int) (models.User, error) {
	role = strings.ToLower(strings.TrimSpace(role))
	if !models.IsValidRole(role) {
		return models.User{}, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}

	user := models.User{
		Name:   strings.TrimSpace(name),
		Email:  models.NormalizeEmail(email),
		Role:   role,
		Active: true,
	}
	if err := user.SetPassword(password, cost); err != nil {
		return models.User{}, err
	}
	applyProfile(&user, profile)
	return user, nil
}

func applyProfile(user *models.User, profile dto.ProfileInput) {
	switch user.Role {
	case models.RoleStudent:
		if user.StudentProfile == nil {
			user.StudentProfile = &models.StudentProfile{}
		}
		number := strings.TrimSpace(profile.StudentNumber)
		if number == "" && user.StudentProfile.StudentNumber == "" {
			// Student numbers are unique; fall back to a placeholder until the registrar assigns one.
			number = "TMP-" + uuid.NewString()
		}
		if number != "" {
			user.StudentProfile.StudentNumber = number
		}
		if profile.YearLevel > 0 {
			user.StudentProfile.YearLevel = profile.YearLevel
		}
		if p := strings.TrimSpace(profile.Program); p != "" {
			user.StudentProfile.Program = p
		}
	case models.RoleTeacher:
		if user.TeacherProfile == nil {
			user.TeacherProfile = &models.TeacherProfile{}
		}
		if n := strings.TrimSpace(profile.EmployeeNumber); n != "" {
			user.TeacherProfile.EmployeeNumber = n
		}
		if d := strings.TrimSpace(profile.Department); d != "" {
			user.TeacherProfile.Department = d
		}
	}
}

// accountWriteError maps unique violations on users and profiles to domain errors.
func accountWriteError(ctx context.Context, users repository.UserRepository, email string, selfID uint, err error) error {
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return err
	}
	if existing, lookupErr := users.GetByEmail(ctx, email); lookupErr == nil && existing.ID != selfID {
		return ErrEmailTaken
	}
	return ErrStudentNumberTaken
}
