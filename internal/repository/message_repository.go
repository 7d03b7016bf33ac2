package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chat-sync/internal/apperr"
	"chat-sync/internal/models"

	"gorm.io/gorm"
)

type MessageRepository interface {
	Create(ctx context.Context, msg *models.Message) error
	FindByID(ctx context.Context, id string) (*models.Message, error)
	// ListForUser returns every message the user sent or received, oldest first.
	ListForUser(ctx context.Context, userID string) ([]models.Message, error)
	// MarkSeen flags unseen messages from senderID to receiverID and returns how many changed.
	MarkSeen(ctx context.Context, receiverID, senderID string) (int64, error)
	Update(ctx context.Context, id string, fields map[string]interface{}) error
}

type messageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func withMessageParticipants(db *gorm.DB) *gorm.DB {
	return db.Preload("Sender").Preload("Receiver")
}

func (r *messageRepository) Create(ctx context.Context, msg *models.Message) error {
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

func (r *messageRepository) FindByID(ctx context.Context, id string) (*models.Message, error) {
	var msg models.Message
	if err := r.db.WithContext(ctx).Scopes(withMessageParticipants).Where("id = ?", id).First(&msg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("message %s not found", id)
		}
		return nil, fmt.Errorf("failed to find message: %w", err)
	}
	return &msg, nil
}

func (r *messageRepository) ListForUser(ctx context.Context, userID string) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.WithContext(ctx).
		Scopes(withMessageParticipants).
		Where("sender_id = ? OR receiver_id = ?", userID, userID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return msgs, nil
}

func (r *messageRepository) MarkSeen(ctx context.Context, receiverID, senderID string) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("receiver_id = ? AND sender_id = ? AND seen = ?", receiverID, senderID, false).
		Updates(map[string]interface{}{"seen": true, "updated_at": time.Now()})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to mark messages seen: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *messageRepository) Update(ctx context.Context, id string, fields map[string]interface{}) error {
	fields["updated_at"] = time.Now()
	res := r.db.WithContext(ctx).Model(&models.Message{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("failed to update message: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("message %s not found", id)
	}
	return nil
}
