package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chat-sync/internal/apperr"
	"chat-sync/internal/models"
	"chat-sync/internal/relation"

	"gorm.io/gorm"
)

type RelationshipRepository interface {
	// Create inserts a new edge unless one exists for the pair in either order.
	Create(ctx context.Context, rel *models.Relationship) error
	FindByID(ctx context.Context, id string) (*models.Relationship, error)
	FindByPair(ctx context.Context, a, b string) (*models.Relationship, error)
	ListForUser(ctx context.Context, userID string) ([]models.Relationship, error)
	// UpdateStatus moves id from one status to another, provided it is still in from.
	UpdateStatus(ctx context.Context, id string, from, to relation.Status, senderID string) error
	Delete(ctx context.Context, id string) error
	AreConnected(ctx context.Context, a, b string) (bool, error)
}

type relationshipRepository struct {
	db *gorm.DB
}

func NewRelationshipRepository(db *gorm.DB) RelationshipRepository {
	return &relationshipRepository{db: db}
}

func pairScope(a, b string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("(user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?)", a, b, b, a)
	}
}

func withParticipants(db *gorm.DB) *gorm.DB {
	return db.Preload("User").Preload("Friend").Preload("Sender")
}

func (r *relationshipRepository) Create(ctx context.Context, rel *models.Relationship) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Relationship
		err := tx.Scopes(pairScope(rel.UserID, rel.FriendID)).First(&existing).Error
		if err == nil {
			return apperr.Conflict(string(existing.Status), "relationship already exists")
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return tx.Create(rel).Error
	})
	if err == nil {
		return nil
	}

	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	// Lost the race against a concurrent request for the same pair.
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		status := ""
		if existing, findErr := r.FindByPair(ctx, rel.UserID, rel.FriendID); findErr == nil {
			status = string(existing.Status)
		}
		return apperr.Conflict(status, "relationship already exists")
	}
	return fmt.Errorf("failed to create relationship: %w", err)
}

func (r *relationshipRepository) FindByID(ctx context.Context, id string) (*models.Relationship, error) {
	var rel models.Relationship
	if err := r.db.WithContext(ctx).Scopes(withParticipants).Where("id = ?", id).First(&rel).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("relationship %s not found", id)
		}
		return nil, fmt.Errorf("failed to find relationship: %w", err)
	}
	return &rel, nil
}

func (r *relationshipRepository) FindByPair(ctx context.Context, a, b string) (*models.Relationship, error) {
	var rel models.Relationship
	if err := r.db.WithContext(ctx).Scopes(pairScope(a, b)).First(&rel).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("no relationship between %s and %s", a, b)
		}
		return nil, fmt.Errorf("failed to find relationship: %w", err)
	}
	return &rel, nil
}

func (r *relationshipRepository) ListForUser(ctx context.Context, userID string) ([]models.Relationship, error) {
	var rels []models.Relationship
	err := r.db.WithContext(ctx).
		Scopes(withParticipants).
		Where("user_id = ? OR friend_id = ?", userID, userID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rels).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list relationships: %w", err)
	}
	return rels, nil
}

func (r *relationshipRepository) UpdateStatus(ctx context.Context, id string, from, to relation.Status, senderID string) error {
	res := r.db.WithContext(ctx).
		Model(&models.Relationship{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":     to,
			"sender_id":  senderID,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update relationship: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		current := ""
		if rel, err := r.FindByID(ctx, id); err == nil {
			current = string(rel.Status)
		} else if errors.Is(err, apperr.ErrNotFound) {
			return err
		}
		return apperr.Conflict(current, "relationship changed concurrently")
	}
	return nil
}

func (r *relationshipRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Relationship{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete relationship: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("relationship %s not found", id)
	}
	return nil
}

func (r *relationshipRepository) AreConnected(ctx context.Context, a, b string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Relationship{}).
		Scopes(pairScope(a, b)).
		Where("status = ?", relation.StatusAccepted).
		Count(&count).Error
	return count > 0, err
}
