package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Action is a permission point registered by an application.
// ActionID is scoped to the owning application.
type Action struct {
	ID           uuid.UUID      `gorm:"type:text;primary_key" json:"id"`
	Application  string         `gorm:"size:64;not null;uniqueIndex:idx_action_app_action" json:"application"`
	ActionID     string         `gorm:"size:64;not null;uniqueIndex:idx_action_app_action" json:"action_id"`
	ActionName   string         `gorm:"size:128;not null" json:"action_name"`
	ResourceID   string         `gorm:"size:64" json:"resource_id"`
	ResourceName string         `gorm:"size:128" json:"resource_name"`
	Description  string         `gorm:"type:text" json:"description"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate hook to generate UUID
func (a *Action) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
