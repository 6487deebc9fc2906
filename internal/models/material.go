package models

import (
	"time"

	"gorm.io/datatypes"
)

// Material kinds.
const (
	MaterialKindQuiz       = "quiz"
	MaterialKindAssignment = "assignment"
)

// Question kinds.
const (
	QuestionKindMultipleChoice = "multiple_choice"
	QuestionKindTrueFalse      = "true_false"
	QuestionKindShortAnswer    = "short_answer"
)

// Material is a quiz or an assignment posted to a class.
type Material struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	ClassID     uint       `gorm:"index;not null" json:"class_id"`
	AuthorID    uint       `gorm:"not null" json:"author_id"`
	Kind        string     `gorm:"size:16;not null" json:"kind"`
	Title       string     `gorm:"size:255;not null" json:"title"`
	Description string     `gorm:"type:text" json:"description"`
	DueAt       *time.Time `json:"due_at"`
	FileURL     string     `gorm:"size:512" json:"file_url"`
	MaxScore    float64    `gorm:"not null" json:"max_score"`
	Published   bool       `gorm:"not null;default:false" json:"published"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Questions   []Question `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"questions"`
	Class       Class      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

// IsQuiz reports whether the material is auto-graded.
func (m Material) IsQuiz() bool {
	return m.Kind == MaterialKindQuiz
}

// IsPastDue returns true when the material has a deadline that already passed.
func (m Material) IsPastDue(reference time.Time) bool {
	return m.DueAt != nil && reference.After(*m.DueAt)
}

// Question is a single auto-graded item of a quiz.
type Question struct {
	ID            uint                        `gorm:"primaryKey" json:"id"`
	MaterialID    uint                        `gorm:"index;not null" json:"material_id"`
	Position      int                         `gorm:"not null" json:"position"`
	Prompt        string                      `gorm:"type:text;not null" json:"prompt"`
	Kind          string                      `gorm:"size:32;not null" json:"kind"`
	Options       datatypes.JSONSlice[string] `json:"options"`
	CorrectAnswer string                      `gorm:"type:text;not null" json:"correct_answer"`
	Points        float64                     `gorm:"not null" json:"points"`
}
