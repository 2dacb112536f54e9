package models

import "time"

// RefreshToken holds the single live refresh-token record for a user.
// Only the SHA-256 digest of the secret is stored; issuing a new pair
// for the same user replaces this record (upsert, not append).
type RefreshToken struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	SecretDigest string    `gorm:"size:64;not null" json:"-"`
	ExpiresAt    time.Time `gorm:"index;not null" json:"expires_at"`
	Revoked      bool      `gorm:"default:false" json:"revoked"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (RefreshToken) TableName() string { return "refresh_tokens" }
