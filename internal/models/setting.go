package models

import (
	"time"
)

// Setting stores installation-wide values as key-value pairs
type Setting struct {
	Name      string    `gorm:"primarykey;size:64;not null" json:"name"`
	Value     string    `gorm:"not null" json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Known setting keys
const (
	SettingInstallationID = "installation_id"
)
