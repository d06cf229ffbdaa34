package models

import (
	"time"

	"gorm.io/gorm"
)

// Application is a client system that owns actions and instances.
// It authenticates with its code and a secret.
type Application struct {
	Code       string         `gorm:"primaryKey;size:64" json:"app_code"`
	Name       string         `gorm:"size:128;not null" json:"app_name"`
	SecretHash string         `gorm:"not null" json:"-"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}
