package dto

import (
	"time"

	"github.com/noah-isme/erms-api/internal/models"
)

// ExamScoreInput is one term score to record.
type ExamScoreInput struct {
	StudentID uint     `json:"student_id" validate:"required"`
	Term      string   `json:"term" validate:"required,oneof=prelim midterm final"`
	Score     *float64 `json:"score" validate:"required,gte=0,lte=100"`
}

// RecordExamScoresRequest upserts a batch of term scores for a class.
type RecordExamScoresRequest struct {
	Entries []ExamScoreInput `json:"entries" validate:"required,min=1,max=1000,dive"`
}

// ExamScoreResponse serializes a term score.
type ExamScoreResponse struct {
	ID         uint      `json:"id"`
	ClassID    uint      `json:"class_id"`
	StudentID  uint      `json:"student_id"`
	Term       string    `json:"term"`
	Score      float64   `json:"score"`
	RecordedBy uint      `json:"recorded_by"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewExamScoreResponse converts an exam score model.
func NewExamScoreResponse(score models.ExamScore) ExamScoreResponse {
	return ExamScoreResponse{
		ID:         score.ID,
		ClassID:    score.ClassID,
		StudentID:  score.StudentID,
		Term:       score.Term,
		Score:      score.Score,
		RecordedBy: score.RecordedBy,
		UpdatedAt:  score.UpdatedAt,
	}
}

// GradeWeights echoes the weights used to compute final grades.
type GradeWeights struct {
	Prelim  float64 `json:"prelim"`
	Midterm float64 `json:"midterm"`
	Final   float64 `json:"final"`
}

// GradeRow is one student's term scores and computed grade.
type GradeRow struct {
	Student    UserSummary `json:"student"`
	Prelim     *float64    `json:"prelim"`
	Midterm    *float64    `json:"midterm"`
	Final      *float64    `json:"final"`
	FinalGrade *float64    `json:"final_grade"`
	Remarks    string      `json:"remarks"`
}

// GradebookResponse is the class-wide grade sheet.
type GradebookResponse struct {
	ClassID      uint         `json:"class_id"`
	ClassName    string       `json:"class_name"`
	Weights      GradeWeights `json:"weights"`
	PassingGrade float64      `json:"passing_grade"`
	Rows         []GradeRow   `json:"rows"`
}

// StudentGradeResponse is one class entry of a student's grade report.
type StudentGradeResponse struct {
	ClassID    uint     `json:"class_id"`
	ClassName  string   `json:"class_name"`
	Subject    string   `json:"subject"`
	Prelim     *float64 `json:"prelim"`
	Midterm    *float64 `json:"midterm"`
	Final      *float64 `json:"final"`
	FinalGrade *float64 `json:"final_grade"`
	Remarks    string   `json:"remarks"`
}
