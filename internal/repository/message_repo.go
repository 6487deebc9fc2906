package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/erms-api/internal/models"
)

// ConversationSummary is the aggregate of one user's exchange with a counterpart.
type ConversationSummary struct {
	CounterpartID uint
	LastMessageID uint
	Unread        int64
}

// MessageRepository persists direct messages for history and unread tracking.
type MessageRepository interface {
	Save(ctx context.Context, message *models.Message) error
	GetByID(ctx context.Context, id uint) (models.Message, error)
	GetByIDs(ctx context.Context, ids []uint) ([]models.Message, error)
	Thread(ctx context.Context, userID, counterpartID uint, before time.Time, limit int) ([]models.Message, error)
	Conversations(ctx context.Context, userID uint) ([]ConversationSummary, error)
	MarkRead(ctx context.Context, id uint, at time.Time) error
	MarkThreadRead(ctx context.Context, recipientID, senderID uint, at time.Time) (int64, error)
	CountUnread(ctx context.Context, recipientID uint) (int64, error)
	Count(ctx context.Context) (int64, error)
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository constructs a message repository backed by GORM.
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Save(ctx context.Context, message *models.Message) error {
	return r.db.WithContext(ctx).Create(message).Error
}

func (r *messageRepository) GetByID(ctx context.Context, id uint) (models.Message, error) {
	var message models.Message
	if err := r.db.WithContext(ctx).First(&message, id).Error; err != nil {
		return models.Message{}, err
	}
	return message, nil
}

func (r *messageRepository) GetByIDs(ctx context.Context, ids []uint) ([]models.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var messages []models.Message
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&messages).Error
	return messages, err
}

func (r *messageRepository) Thread(ctx context.Context, userID, counterpartID uint, before time.Time, limit int) ([]models.Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := r.db.WithContext(ctx).Where(
		"(sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)",
		userID, counterpartID, counterpartID, userID,
	)
	if !before.IsZero() {
		query = query.Where("created_at < ?", before)
	}

	var messages []models.Message
	if err := query.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, err
	}

	// Oldest first for clients.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (r *messageRepository) Conversations(ctx context.Context, userID uint) ([]ConversationSummary, error) {
	var rows []ConversationSummary
	err := r.db.WithContext(ctx).Model(&models.Message{}).
		Select(
			"CASE WHEN sender_id = ? THEN recipient_id ELSE sender_id END AS counterpart_id, "+
				"MAX(id) AS last_message_id, "+
				"SUM(CASE WHEN recipient_id = ? AND read_at IS NULL THEN 1 ELSE 0 END) AS unread",
			userID, userID,
		).
		Where("sender_id = ? OR recipient_id = ?", userID, userID).
		Group("counterpart_id").
		Order("last_message_id DESC").
		Scan(&rows).Error
	return rows, err
}

func (r *messageRepository) MarkRead(ctx context.Context, id uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ? AND read_at IS NULL", id).
		Update("read_at", at).Error
}

func (r *messageRepository) MarkThreadRead(ctx context.Context, recipientID, senderID uint, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("recipient_id = ? AND sender_id = ? AND read_at IS NULL", recipientID, senderID).
		Update("read_at", at)
	return result.RowsAffected, result.Error
}

func (r *messageRepository) CountUnread(ctx context.Context, recipientID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("recipient_id = ? AND read_at IS NULL", recipientID).
		Count(&count).Error
	return count, err
}

func (r *messageRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Message{}).Count(&count).Error
	return count, err
}
