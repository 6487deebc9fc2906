package dto

import (
	"time"

	"github.com/noah-isme/erms-api/internal/models"
)

// JoinClassRequest carries the class code typed by a student.
type JoinClassRequest struct {
	Code string `json:"code" validate:"required,min=4,max=16"`
}

// DecideEnrollmentRequest approves or denies a join request.
type DecideEnrollmentRequest struct {
	Decision string `json:"decision" validate:"required,oneof=approve deny"`
}

// EnrollmentResponse serializes an enrollment.
type EnrollmentResponse struct {
	ID        uint         `json:"id"`
	ClassID   uint         `json:"class_id"`
	ClassName string       `json:"class_name,omitempty"`
	Student   *UserSummary `json:"student,omitempty"`
	StudentID uint         `json:"student_id"`
	Status    string       `json:"status"`
	DecidedBy *uint        `json:"decided_by"`
	DecidedAt *time.Time   `json:"decided_at"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// NewEnrollmentResponse converts an enrollment model.
func NewEnrollmentResponse(enrollment models.Enrollment) EnrollmentResponse {
	resp := EnrollmentResponse{
		ID:        enrollment.ID,
		ClassID:   enrollment.ClassID,
		ClassName: enrollment.Class.Name,
		StudentID: enrollment.StudentID,
		Status:    enrollment.Status,
		DecidedBy: enrollment.DecidedBy,
		DecidedAt: enrollment.DecidedAt,
		CreatedAt: enrollment.CreatedAt,
		UpdatedAt: enrollment.UpdatedAt,
	}
	if enrollment.Student.ID != 0 {
		student := NewUserSummary(enrollment.Student)
		resp.Student = &student
	}
	return resp
}

// EnrollmentListRequest filters class enrollment listings.
type EnrollmentListRequest struct {
	Status   string `validate:"omitempty,oneof=pending approved denied"`
	Page     int
	PageSize int
}

// EnrollmentListResponse wraps a paginated enrollment listing.
type EnrollmentListResponse struct {
	Items      []EnrollmentResponse `json:"items"`
	Pagination PaginationMeta       `json:"pagination"`
}

// RosterSkip explains why a roster row was not enrolled.
type RosterSkip struct {
	Row    int    `json:"row"`
	Email  string `json:"email"`
	Reason string `json:"reason"`
}

// RosterImportResponse summarises a spreadsheet roster import.
type RosterImportResponse struct {
	Enrolled []EnrollmentResponse `json:"enrolled"`
	Skipped  []RosterSkip         `json:"skipped"`
}
