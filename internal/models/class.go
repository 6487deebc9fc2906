package models

import "time"

// Class is a teacher-owned section that students join with a class code.
type Class struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Name       string    `gorm:"size:255;not null" json:"name"`
	Subject    string    `gorm:"size:255" json:"subject"`
	Section    string    `gorm:"size:64" json:"section"`
	SchoolYear string    `gorm:"size:32" json:"school_year"`
	Code       string    `gorm:"size:16;uniqueIndex;not null" json:"code"`
	TeacherID  uint      `gorm:"index;not null" json:"teacher_id"`
	Archived   bool      `gorm:"not null;default:false" json:"archived"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	Teacher    User      `gorm:"foreignKey:TeacherID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`
}

// IsOwnedBy reports whether the given user teaches the class.
func (c Class) IsOwnedBy(userID uint) bool {
	return c.TeacherID != 0 && c.TeacherID == userID
}
