package dto

import (
	"time"

	"github.com/noah-isme/erms-api/internal/models"
)

// ProfileInput carries the optional role-specific profile fields.
type ProfileInput struct {
	StudentNumber  string `json:"student_number" validate:"omitempty,max=64"`
	YearLevel      int    `json:"year_level" validate:"omitempty,min=1,max=12"`
	Program        string `json:"program" validate:"omitempty,max=128"`
	EmployeeNumber string `json:"employee_number" validate:"omitempty,max=64"`
	Department     string `json:"department" validate:"omitempty,max=128"`
}

// StudentProfileResponse is the public view of a student profile.
type StudentProfileResponse struct {
	StudentNumber string `json:"student_number"`
	YearLevel     int    `json:"year_level"`
	Program       string `json:"program"`
}

// TeacherProfileResponse is the public view of a teacher profile.
type TeacherProfileResponse struct {
	EmployeeNumber string `json:"employee_number"`
	Department     string `json:"department"`
}

// UserResponse serializes an account without its credentials.
type UserResponse struct {
	ID             uint                    `json:"id"`
	Name           string                  `json:"name"`
	Email          string                  `json:"email"`
	Role           string                  `json:"role"`
	Active         bool                    `json:"active"`
	LastLoginAt    *time.Time              `json:"last_login_at"`
	CreatedAt      time.Time               `json:"created_at"`
	UpdatedAt      time.Time               `json:"updated_at"`
	StudentProfile *StudentProfileResponse `json:"student_profile,omitempty"`
	TeacherProfile *TeacherProfileResponse `json:"teacher_profile,omitempty"`
}

// NewUserResponse converts a user model into its DTO.
func NewUserResponse(user models.User) UserResponse {
	resp := UserResponse{
		ID:          user.ID,
		Name:        user.Name,
		Email:       user.Email,
		Role:        user.Role,
		Active:      user.Active,
		LastLoginAt: user.LastLoginAt,
		CreatedAt:   user.CreatedAt,
		UpdatedAt:   user.UpdatedAt,
	}
	if user.StudentProfile != nil {
		resp.StudentProfile = &StudentProfileResponse{
			StudentNumber: user.StudentProfile.StudentNumber,
			YearLevel:     user.StudentProfile.YearLevel,
			Program:       user.StudentProfile.Program,
		}
	}
	if user.TeacherProfile != nil {
		resp.TeacherProfile = &TeacherProfileResponse{
			EmployeeNumber: user.TeacherProfile.EmployeeNumber,
			Department:     user.TeacherProfile.Department,
		}
	}
	return resp
}

// UserSummary is the compact user view embedded in other payloads.
type UserSummary struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role"`
}

// NewUserSummary builds the compact view of a user.
func NewUserSummary(user models.User) UserSummary {
	return UserSummary{ID: user.ID, Name: user.Name, Email: user.Email, Role: user.Role}
}

// UserListRequest defines filters for the admin user listing.
type UserListRequest struct {
	Page     int
	PageSize int
	Search   string
	Role     string
	Active   *bool
}

// UserListResponse wraps a paginated user listing.
type UserListResponse struct {
	Items      []UserResponse `json:"items"`
	Pagination PaginationMeta `json:"pagination"`
}

// CreateUserRequest is the admin payload for creating any kind of account.
type CreateUserRequest struct {
	Name     string       `json:"name" validate:"required,min=2,max=255"`
	Email    string       `json:"email" validate:"required,email"`
	Password string       `json:"password" validate:"required,min=8,max=72"`
	Role     string       `json:"role" validate:"required,oneof=admin teacher student"`
	Profile  ProfileInput `json:"profile"`
}

// UpdateUserRequest captures partial account updates.
type UpdateUserRequest struct {
	Name    *string       `json:"name" validate:"omitempty,min=2,max=255"`
	Email   *string       `json:"email" validate:"omitempty,email"`
	Role    *string       `json:"role" validate:"omitempty,oneof=admin teacher student"`
	Active  *bool         `json:"active"`
	Profile *ProfileInput `json:"profile"`
}

// ResetPasswordRequest sets a new password for an account.
type ResetPasswordRequest struct {
	Password string `json:"password" validate:"required,min=8,max=72"`
}
