package dto

import (
	"time"

	"github.com/noah-isme/erms-api/internal/models"
)

// QuizAnswerInput is one answer of a quiz attempt.
type QuizAnswerInput struct {
	QuestionID uint   `json:"question_id" validate:"required"`
	Answer     string `json:"answer" validate:"max=500"`
}

// SubmitQuizRequest carries a student's quiz answers.
type SubmitQuizRequest struct {
	Answers []QuizAnswerInput `json:"answers" validate:"required,min=1,max=200,dive"`
}

// AnswerMap indexes the answers by question. The last answer for a question wins.
func (r SubmitQuizRequest) AnswerMap() map[uint]string {
	answers := make(map[uint]string, len(r.Answers))
	for _, a := range r.Answers {
		answers[a.QuestionID] = a.Answer
	}
	return answers
}

// GradeSubmissionRequest is the manual grading payload.
type GradeSubmissionRequest struct {
	Score    *float64 `json:"score" validate:"required,gte=0"`
	Feedback string   `json:"feedback" validate:"omitempty,max=5000"`
}

// SubmissionAnswerResponse serializes one graded quiz answer.
type SubmissionAnswerResponse struct {
	QuestionID    uint    `json:"question_id"`
	Answer        string  `json:"answer"`
	Correct       bool    `json:"correct"`
	PointsAwarded float64 `json:"points_awarded"`
}

// SubmissionResponse serializes a submission.
type SubmissionResponse struct {
	ID            uint                       `json:"id"`
	MaterialID    uint                       `json:"material_id"`
	MaterialTitle string                     `json:"material_title,omitempty"`
	MaterialKind  string                     `json:"material_kind,omitempty"`
	StudentID     uint                       `json:"student_id"`
	Student       *UserSummary               `json:"student,omitempty"`
	Status        string                     `json:"status"`
	FileURL       string                     `json:"file_url,omitempty"`
	Score         *float64                   `json:"score"`
	MaxScore      float64                    `json:"max_score"`
	Percentage    *float64                   `json:"percentage"`
	Feedback      string                     `json:"feedback"`
	Late          bool                       `json:"late"`
	GradedBy      *uint                      `json:"graded_by"`
	GradedAt      *time.Time                 `json:"graded_at"`
	CreatedAt     time.Time                  `json:"created_at"`
	Answers       []SubmissionAnswerResponse `json:"answers,omitempty"`
}

// NewSubmissionResponse converts a submission model.
func NewSubmissionResponse(submission models.Submission) SubmissionResponse {
	resp := SubmissionResponse{
		ID:            submission.ID,
		MaterialID:    submission.MaterialID,
		MaterialTitle: submission.Material.Title,
		MaterialKind:  submission.Material.Kind,
		StudentID:     submission.StudentID,
		Status:        submission.Status,
		FileURL:       submission.FileURL,
		Score:         submission.Score,
		MaxScore:      submission.MaxScore,
		Percentage:    submission.Percentage(),
		Feedback:      submission.Feedback,
		Late:          submission.Late,
		GradedBy:      submission.GradedBy,
		GradedAt:      submission.GradedAt,
		CreatedAt:     submission.CreatedAt,
	}
	if submission.Student.ID != 0 {
		student := NewUserSummary(submission.Student)
		resp.Student = &student
	}
	for _, answer := range submission.Answers {
		resp.Answers = append(resp.Answers, SubmissionAnswerResponse{
			QuestionID:    answer.QuestionID,
			Answer:        answer.Answer,
			Correct:       answer.Correct,
			PointsAwarded: answer.PointsAwarded,
		})
	}
	return resp
}

// SubmissionListResponse wraps a paginated submission listing.
type SubmissionListResponse struct {
	Items      []SubmissionResponse `json:"items"`
	Pagination PaginationMeta       `json:"pagination"`
}
