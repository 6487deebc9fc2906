package models

import "time"

const (
	// SubmissionStatusSubmitted indicates the submission is waiting for a teacher.
	SubmissionStatusSubmitted = "submitted"
	// SubmissionStatusGraded indicates the submission has its final score.
	SubmissionStatusGraded = "graded"
)

// Submission is a student's single answer to a material.
type Submission struct {
	ID         uint               `gorm:"primaryKey" json:"id"`
	MaterialID uint               `gorm:"not null;uniqueIndex:idx_submissions_material_student" json:"material_id"`
	StudentID  uint               `gorm:"not null;uniqueIndex:idx_submissions_material_student;index" json:"student_id"`
	Status     string             `gorm:"size:16;index;not null" json:"status"`
	FileURL    string             `gorm:"size:512" json:"file_url"`
	Score      *float64           `json:"score"`
	MaxScore   float64            `gorm:"not null" json:"max_score"`
	Feedback   string             `gorm:"type:text" json:"feedback"`
	Late       bool               `gorm:"not null;default:false" json:"late"`
	GradedBy   *uint              `json:"graded_by"`
	GradedAt   *time.Time         `json:"graded_at"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
	Answers    []SubmissionAnswer `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"answers"`
	Material   Material           `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	Student    User               `gorm:"foreignKey:StudentID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

// IsGraded reports whether the submission has a final score.
func (s Submission) IsGraded() bool {
	return s.Status == SubmissionStatusGraded
}

// Percentage returns the score as a percentage of the maximum, or nil when ungraded.
func (s Submission) Percentage() *float64 {
	if s.Score == nil || s.MaxScore <= 0 {
		return nil
	}
	pct := *s.Score / s.MaxScore * 100
	return &pct
}

// SubmissionAnswer records one auto-graded quiz answer.
type SubmissionAnswer struct {
	ID            uint    `gorm:"primaryKey" json:"id"`
	SubmissionID  uint    `gorm:"index;not null" json:"submission_id"`
	QuestionID    uint    `gorm:"not null" json:"question_id"`
	Answer        string  `gorm:"type:text" json:"answer"`
	Correct       bool    `gorm:"not null" json:"correct"`
	PointsAwarded float64 `gorm:"not null" json:"points_awarded"`
}
