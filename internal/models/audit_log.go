package models

import "time"

// AuditLog records a security-relevant event (registration, login
// outcome, refresh denial, revocation). Detail carries the internal
// cause that is never surfaced to the client.
type AuditLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Event     string    `gorm:"size:50;index;not null" json:"event"`
	UserID    *uint     `gorm:"index" json:"user_id,omitempty"`
	Username  string    `gorm:"size:100" json:"username,omitempty"`
	ClientIP  string    `gorm:"size:64" json:"client_ip,omitempty"`
	Detail    string    `gorm:"size:500" json:"detail,omitempty"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }
