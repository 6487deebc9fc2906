package models

import "time"

// Enrollment statuses.
const (
	EnrollmentStatusPending  = "pending"
	EnrollmentStatusApproved = "approved"
	EnrollmentStatusDenied   = "denied"
)

// Enrollment links a student to a class. A student has at most one row per class.
type Enrollment struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	ClassID   uint       `gorm:"not null;uniqueIndex:idx_enrollments_class_student" json:"class_id"`
	StudentID uint       `gorm:"not null;uniqueIndex:idx_enrollments_class_student;index" json:"student_id"`
	Status    string     `gorm:"size:16;index;not null" json:"status"`
	DecidedBy *uint      `json:"decided_by"`
	DecidedAt *time.Time `json:"decided_at"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	Class     Class      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	Student   User       `gorm:"foreignKey:StudentID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

// IsApproved reports whether the student currently belongs to the class.
func (e Enrollment) IsApproved() bool {
	return e.Status == EnrollmentStatusApproved
}
