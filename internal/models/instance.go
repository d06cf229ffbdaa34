package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Instance is a concrete resource living under an (application, resource_id) scope.
// Every action sharing that scope can be granted on it.
type Instance struct {
	ID           uuid.UUID      `gorm:"type:text;primary_key" json:"id"`
	Application  string         `gorm:"size:64;not null;uniqueIndex:idx_instance_scope" json:"application"`
	ResourceID   string         `gorm:"size:64;not null;uniqueIndex:idx_instance_scope" json:"resource_id"`
	InstanceID   string         `gorm:"size:64;not null;uniqueIndex:idx_instance_scope" json:"instance_id"`
	InstanceName string         `gorm:"size:128;not null" json:"instance_name"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate hook to generate UUID
func (i *Instance) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
