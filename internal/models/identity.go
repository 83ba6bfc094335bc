package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Identity is the provider-owned account record. It is the source of truth
// for credentials and sign-up metadata; application data lives in Profile.
type Identity struct {
	ID           uuid.UUID         `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Email        string            `gorm:"not null;size:255;uniqueIndex" json:"email"`
	PasswordHash string            `gorm:"not null" json:"-"`
	AuthProvider string            `gorm:"size:50;default:'email'" json:"-"`
	UserMetadata datatypes.JSONMap `gorm:"type:jsonb;default:'{}'" json:"user_metadata"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	DeletedAt    gorm.DeletedAt    `gorm:"index" json:"-"`
}

// MetadataString returns a string metadata field, or "" when absent.
func (i *Identity) MetadataString(key string) string {
	if i.UserMetadata == nil {
		return ""
	}
	if s, ok := i.UserMetadata[key].(string); ok {
		return s
	}
	return ""
}
