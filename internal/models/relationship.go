package models

import (
	"time"

	"chat-sync/internal/relation"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Relationship is a friend-graph edge between UserID and FriendID.
// SenderID is the participant who set the current status.
// PairKey is the order-independent pair identity and is unique.
type Relationship struct {
	ID        string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID    string          `gorm:"type:varchar(36);not null;index" json:"user_id"`
	FriendID  string          `gorm:"type:varchar(36);not null;index" json:"friend_id"`
	SenderID  string          `gorm:"type:varchar(36);not null" json:"sender_id"`
	Status    relation.Status `gorm:"type:varchar(16);not null;default:'pending'" json:"status"`
	PairKey   string          `gorm:"size:80;not null;uniqueIndex" json:"-"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`

	User   *User `gorm:"foreignKey:UserID;references:ID" json:"user,omitempty"`
	Friend *User `gorm:"foreignKey:FriendID;references:ID" json:"friend,omitempty"`
	Sender *User `gorm:"foreignKey:SenderID;references:ID" json:"sender,omitempty"`
}

func (r *Relationship) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.PairKey = relation.PairKey(r.UserID, r.FriendID)
	return nil
}

// CreateRelationshipRequest sends a friend request to FriendID.
type CreateRelationshipRequest struct {
	FriendID string `json:"friend_id"`
}

// UpdateRelationshipRequest moves an edge to Status.
type UpdateRelationshipRequest struct {
	Status string `json:"status"`
}
