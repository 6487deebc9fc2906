package dto

import (
	"time"

	"github.com/noah-isme/erms-api/internal/models"
)

// QuestionInput describes one quiz question.
type QuestionInput struct {
	Prompt        string   `json:"prompt" validate:"required,max=2000"`
	Kind          string   `json:"kind" validate:"required,oneof=multiple_choice true_false short_answer"`
	Options       []string `json:"options" validate:"omitempty,max=10,dive,required,max=500"`
	CorrectAnswer string   `json:"correct_answer" validate:"required,max=500"`
	Points        float64  `json:"points" validate:"gt=0,lte=100"`
}

// CreateMaterialRequest is the payload for posting a quiz or assignment.
type CreateMaterialRequest struct {
	Kind        string          `json:"kind" validate:"required,oneof=quiz assignment"`
	Title       string          `json:"title" validate:"required,min=2,max=255"`
	Description string          `json:"description" validate:"omitempty,max=10000"`
	DueAt       *time.Time      `json:"due_at"`
	MaxScore    float64         `json:"max_score" validate:"gte=0,lte=1000"`
	Published   bool            `json:"published"`
	Questions   []QuestionInput `json:"questions" validate:"omitempty,max=200,dive"`
}

// UpdateMaterialRequest captures partial material updates. Questions replace the
// whole question set when present.
type UpdateMaterialRequest struct {
	Title       *string          `json:"title" validate:"omitempty,min=2,max=255"`
	Description *string          `json:"description" validate:"omitempty,max=10000"`
	DueAt       *time.Time       `json:"due_at"`
	ClearDueAt  bool             `json:"clear_due_at"`
	MaxScore    *float64         `json:"max_score" validate:"omitempty,gt=0,lte=1000"`
	Questions   *[]QuestionInput `json:"questions" validate:"omitempty,max=200,dive"`
}

// PublishMaterialRequest toggles student visibility.
type PublishMaterialRequest struct {
	Published bool `json:"published"`
}

// QuestionResponse serializes a question. CorrectAnswer is omitted for students.
type QuestionResponse struct {
	ID            uint     `json:"id"`
	Position      int      `json:"position"`
	Prompt        string   `json:"prompt"`
	Kind          string   `json:"kind"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer,omitempty"`
	Points        float64  `json:"points"`
}

// MaterialResponse serializes a material.
type MaterialResponse struct {
	ID          uint               `json:"id"`
	ClassID     uint               `json:"class_id"`
	AuthorID    uint               `json:"author_id"`
	Kind        string             `json:"kind"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	DueAt       *time.Time         `json:"due_at"`
	FileURL     string             `json:"file_url,omitempty"`
	MaxScore    float64            `json:"max_score"`
	Published   bool               `json:"published"`
	Questions   []QuestionResponse `json:"questions,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// NewMaterialResponse converts a material. When revealAnswers is false the
// correct answers are stripped.
func NewMaterialResponse(material models.Material, revealAnswers bool) MaterialResponse {
	resp := MaterialResponse{
		ID:          material.ID,
		ClassID:     material.ClassID,
		AuthorID:    material.AuthorID,
		Kind:        material.Kind,
		Title:       material.Title,
		Description: material.Description,
		DueAt:       material.DueAt,
		FileURL:     material.FileURL,
		MaxScore:    material.MaxScore,
		Published:   material.Published,
		CreatedAt:   material.CreatedAt,
		UpdatedAt:   material.UpdatedAt,
	}
	for _, q := range material.Questions {
		question := QuestionResponse{
			ID:       q.ID,
			Position: q.Position,
			Prompt:   q.Prompt,
			Kind:     q.Kind,
			Options:  append([]string{}, q.Options...),
			Points:   q.Points,
		}
		if revealAnswers {
			question.CorrectAnswer = q.CorrectAnswer
		}
		resp.Questions = append(resp.Questions, question)
	}
	return resp
}

// MaterialListResponse wraps a paginated material listing.
type MaterialListResponse struct {
	Items      []MaterialResponse `json:"items"`
	Pagination PaginationMeta     `json:"pagination"`
}
