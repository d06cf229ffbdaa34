package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PermissionStatus represents the approval state of a permission record
type PermissionStatus string

const (
	PermissionDealing PermissionStatus = "dealing"
	PermissionAllowed PermissionStatus = "allowed"
	PermissionDenied  PermissionStatus = "denied"
)

// UserPermission is the authoritative (user, action) grant or request.
// Instances holds Instance IDs and is ignored when AllInstances is set.
type UserPermission struct {
	ID           uuid.UUID                   `gorm:"type:text;primary_key" json:"id"`
	Username     string                      `gorm:"size:64;not null;uniqueIndex:idx_user_permission_user_action,priority:1;index:idx_user_permission_user_action_status,priority:1" json:"username"`
	ActionID     uuid.UUID                   `gorm:"type:text;not null;uniqueIndex:idx_user_permission_user_action,priority:2;index:idx_user_permission_user_action_status,priority:2" json:"action_id"`
	Instances    datatypes.JSONSlice[string] `json:"instances"`
	AllInstances bool                        `gorm:"not null" json:"all_instances"`
	Status       PermissionStatus            `gorm:"size:16;not null;index:idx_user_permission_user_action_status,priority:3" json:"status"`
	UpdateAt     time.Time                   `gorm:"autoUpdateTime;index" json:"update_at"`
}

// BeforeCreate hook to generate UUID
func (p *UserPermission) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Instances == nil {
		p.Instances = datatypes.JSONSlice[string]{}
	}
	return nil
}

// UserPermissionSnapshot mirrors every UserPermission that ever reached ALLOWED.
// Rows only grow and survive later denials; the check path reads nothing else.
type UserPermissionSnapshot struct {
	ID           uuid.UUID                   `gorm:"type:text;primary_key" json:"id"`
	Username     string                      `gorm:"size:64;not null;uniqueIndex:idx_permission_snapshot_user_action,priority:1;index:idx_permission_snapshot_user_action_status,priority:1" json:"username"`
	ActionID     uuid.UUID                   `gorm:"type:text;not null;uniqueIndex:idx_permission_snapshot_user_action,priority:2;index:idx_permission_snapshot_user_action_status,priority:2" json:"action_id"`
	Instances    datatypes.JSONSlice[string] `json:"instances"`
	AllInstances bool                        `gorm:"not null" json:"all_instances"`
	Status       PermissionStatus            `gorm:"size:16;not null;index:idx_permission_snapshot_user_action_status,priority:3" json:"status"`
	UpdateAt     time.Time                   `gorm:"autoUpdateTime;index" json:"update_at"`
}

// BeforeCreate hook to generate UUID
func (s *UserPermissionSnapshot) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Instances == nil {
		s.Instances = datatypes.JSONSlice[string]{}
	}
	return nil
}
