package models

import (
	"time"

	"github.com/google/uuid"
)

// Profile is the application-owned projection of an identity: display name,
// avatar and role. Its primary key is the identity's subject id, which is
// what makes lazy provisioning idempotent (insert conflicts mean "already
// created").
type Profile struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email     string    `gorm:"not null;size:255;index" json:"email"`
	FirstName string    `gorm:"size:100" json:"first_name"`
	LastName  string    `gorm:"size:100" json:"last_name"`
	AvatarURL string    `gorm:"size:512" json:"avatar_url"`
	Role      string    `gorm:"size:20;default:'user';index" json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
