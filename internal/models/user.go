package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// User represents a registered chat user. UsernameLower carries the
// unique index so the database enforces case-insensitive uniqueness
// even when two registrations race past the application-level check.
type User struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	Username      string     `gorm:"size:100;not null" json:"username"`
	UsernameLower string     `gorm:"uniqueIndex;size:100;not null" json:"-"`
	PasswordHash  string     `gorm:"size:255;not null" json:"-"`
	Email         string     `gorm:"size:255" json:"email"`
	LastLogin     *time.Time `json:"last_login"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (User) TableName() string { return "users" }

// BeforeSave keeps the normalized column in sync with the username.
func (u *User) BeforeSave(*gorm.DB) error {
	u.UsernameLower = strings.ToLower(u.Username)
	return nil
}
