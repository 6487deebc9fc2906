package dto

import (
	"time"

	"github.com/noah-isme/erms-api/internal/models"
)

// CreateClassRequest is the payload for opening a class.
type CreateClassRequest struct {
	Name       string `json:"name" validate:"required,min=2,max=255"`
	Subject    string `json:"subject" validate:"omitempty,max=255"`
	Section    string `json:"section" validate:"omitempty,max=64"`
	SchoolYear string `json:"school_year" validate:"omitempty,max=32"`
	TeacherID  uint   `json:"teacher_id"`
}

// UpdateClassRequest captures partial class updates.
type UpdateClassRequest struct {
	Name       *string `json:"name" validate:"omitempty,min=2,max=255"`
	Subject    *string `json:"subject" validate:"omitempty,max=255"`
	Section    *string `json:"section" validate:"omitempty,max=64"`
	SchoolYear *string `json:"school_year" validate:"omitempty,max=32"`
	Archived   *bool   `json:"archived"`
}

// ClassListRequest filters class listings.
type ClassListRequest struct {
	Page            int
	PageSize        int
	Search          string
	IncludeArchived bool
}

// ClassResponse serializes a class.
type ClassResponse struct {
	ID         uint         `json:"id"`
	Name       string       `json:"name"`
	Subject    string       `json:"subject"`
	Section    string       `json:"section"`
	SchoolYear string       `json:"school_year"`
	Code       string       `json:"code,omitempty"`
	Archived   bool         `json:"archived"`
	Teacher    *UserSummary `json:"teacher,omitempty"`
	TeacherID  uint         `json:"teacher_id"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// NewClassResponse converts a class model. The join code is only shown to staff.
func NewClassResponse(class models.Class, showCode bool) ClassResponse {
	resp := ClassResponse{
		ID:         class.ID,
		Name:       class.Name,
		Subject:    class.Subject,
		Section:    class.Section,
		SchoolYear: class.SchoolYear,
		Archived:   class.Archived,
		TeacherID:  class.TeacherID,
		CreatedAt:  class.CreatedAt,
		UpdatedAt:  class.UpdatedAt,
	}
	if showCode {
		resp.Code = class.Code
	}
	if class.Teacher.ID != 0 {
		teacher := NewUserSummary(class.Teacher)
		resp.Teacher = &teacher
	}
	return resp
}

// ClassListResponse wraps a paginated class listing.
type ClassListResponse struct {
	Items      []ClassResponse `json:"items"`
	Pagination PaginationMeta  `json:"pagination"`
}
