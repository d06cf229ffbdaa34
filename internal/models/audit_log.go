package models

import (
	"time"
)

// AuditLog represents a record of state-changing calls for compliance
type AuditLog struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	Actor       string    `gorm:"size:128;not null;index" json:"actor"` // "alice" or "app:billing"
	Action      string    `gorm:"not null" json:"action"`               // e.g., "allow_permission", "auth_grant"
	Resource    string    `gorm:"not null" json:"resource"`             // e.g., "permission:<id>", "action:<id>"
	DetailsJSON string    `gorm:"type:text" json:"details_json"`        // Additional context in JSON
	Timestamp   time.Time `gorm:"not null;index" json:"timestamp"`
}
