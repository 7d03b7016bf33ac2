package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Message is a direct message. Seen only ever goes from false to true.
type Message struct {
	ID         string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	SenderID   string    `gorm:"type:varchar(36);not null;index:idx_messages_pair" json:"sender_id"`
	ReceiverID string    `gorm:"type:varchar(36);not null;index:idx_messages_pair;index" json:"receiver_id"`
	Content    string    `gorm:"type:text" json:"content"`
	MediaURL   *string   `gorm:"size:512" json:"media_url"`
	Seen       bool      `gorm:"not null;default:false" json:"seen"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	Sender   *User `gorm:"foreignKey:SenderID;references:ID" json:"sender,omitempty"`
	Receiver *User `gorm:"foreignKey:ReceiverID;references:ID" json:"receiver,omitempty"`
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// SendMessageRequest creates a message to ReceiverID.
type SendMessageRequest struct {
	Content    string  `json:"content"`
	ReceiverID string  `json:"receiver_id"`
	MediaURL   *string `json:"media_url"`
}

// MarkSeenRequest marks every unseen message from SenderID to the caller as seen.
type MarkSeenRequest struct {
	SenderID string `json:"sender_id"`
}

// MarkSeenResponse reports how many messages changed.
type MarkSeenResponse struct {
	Updated int64 `json:"updated"`
}

// MessageUpdate is a single-message patch. Only these three fields may change.
type MessageUpdate struct {
	Content  *string `json:"content,omitempty"`
	MediaURL *string `json:"media_url,omitempty"`
	Seen     *bool   `json:"seen,omitempty"`
}

// MessageUpdateFields lists the JSON keys accepted by a single-message patch.
var MessageUpdateFields = []string{"content", "media_url", "seen"}

// MediaUploadResponse returns the public URL of an uploaded attachment.
type MediaUploadResponse struct {
	URL string `json:"url"`
}
