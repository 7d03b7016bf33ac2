package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is a profile row. ExternalID joins it to the identity provider's subject.
type User struct {
	ID         string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	ExternalID string    `gorm:"size:191;not null;uniqueIndex" json:"external_id"`
	Username   string    `gorm:"size:100;not null;index" json:"username"`
	Email      string    `gorm:"size:191" json:"email"`
	AvatarURL  string    `gorm:"size:512" json:"avatar_url"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// EnsureProfileRequest creates the caller's profile if it does not exist yet.
type EnsureProfileRequest struct {
	Username  string `json:"username" binding:"required,max=100"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

// UpdateProfileRequest changes profile fields; nil fields are left untouched.
type UpdateProfileRequest struct {
	Username  *string `json:"username,omitempty"`
	Email     *string `json:"email,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}

// PresenceResponse lists the ids of online friends.
type PresenceResponse struct {
	Online []string `json:"online"`
}
