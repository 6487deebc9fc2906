package dto

import (
	"time"

	"github.com/noah-isme/erms-api/internal/models"
)

// SendMessageRequest is the payload for a direct message.
type SendMessageRequest struct {
	RecipientID uint   `json:"recipient_id" validate:"required"`
	Content     string `json:"content" validate:"required,max=2000"`
}

// ThreadRequest pages backwards through a conversation.
type ThreadRequest struct {
	Before time.Time
	Limit  int
}

// MessageResponse serializes a direct message.
type MessageResponse struct {
	ID          uint       `json:"id"`
	SenderID    uint       `json:"sender_id"`
	RecipientID uint       `json:"recipient_id"`
	Content     string     `json:"content"`
	ReadAt      *time.Time `json:"read_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

// NewMessageResponse converts a message model.
func NewMessageResponse(message models.Message) MessageResponse {
	return MessageResponse{
		ID:          message.ID,
		SenderID:    message.SenderID,
		RecipientID: message.RecipientID,
		Content:     message.Content,
		ReadAt:      message.ReadAt,
		CreatedAt:   message.CreatedAt,
	}
}

// ConversationResponse summarises the exchange with one counterpart.
type ConversationResponse struct {
	Counterpart UserSummary     `json:"counterpart"`
	LastMessage MessageResponse `json:"last_message"`
	Unread      int64           `json:"unread"`
}

// MessageEvent is pushed to websocket clients.
type MessageEvent struct {
	Type    string          `json:"type"`
	Message MessageResponse `json:"message"`
}

// ErrorEvent is pushed to a websocket client whose frame was rejected.
type ErrorEvent struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}
