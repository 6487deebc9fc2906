package models

import "time"

// Exam terms, in the order they are taken.
const (
	TermPrelim  = "prelim"
	TermMidterm = "midterm"
	TermFinal   = "final"
)

// Terms lists every exam term in chronological order.
var Terms = []string{TermPrelim, TermMidterm, TermFinal}

// ExamScore is a student's percentage score for one exam term of a class.
type ExamScore struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ClassID    uint      `gorm:"not null;uniqueIndex:idx_exam_scores_class_student_term" json:"class_id"`
	StudentID  uint      `gorm:"not null;uniqueIndex:idx_exam_scores_class_student_term;index" json:"student_id"`
	Term       string    `gorm:"size:16;not null;uniqueIndex:idx_exam_scores_class_student_term" json:"term"`
	Score      float64   `gorm:"not null" json:"score"`
	RecordedBy uint      `gorm:"not null" json:"recorded_by"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
