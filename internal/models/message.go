package models

import "time"

// Message is a direct message between two users.
type Message struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	SenderID    uint       `gorm:"index;not null" json:"sender_id"`
	RecipientID uint       `gorm:"index;not null" json:"recipient_id"`
	Content     string     `gorm:"type:text;not null" json:"content"`
	ReadAt      *time.Time `json:"read_at"`
	CreatedAt   time.Time  `gorm:"index" json:"created_at"`
}

// CounterpartOf returns the other participant of the message from userID's point of view.
func (m Message) CounterpartOf(userID uint) uint {
	if m.SenderID == userID {
		return m.RecipientID
	}
	return m.SenderID
}
