package service

import (
	"context"

	"github.com/keyward-dev/keyward/internal/models"
)

// ManagerChecker answers whether a user manages an application.
type ManagerChecker interface {
	IsManagerOf(appCode, username string) (bool, error)
}

// AllowAll is a ManagerChecker for trusted operator tooling such as the CLI.
type AllowAll struct{}

func (AllowAll) IsManagerOf(string, string) (bool, error) { return true, nil }

// SnapshotInvalidator drops cached check state for users whose snapshot rows changed.
type SnapshotInvalidator interface {
	Invalidate(ctx context.Context, usernames ...string) error
}

// RegisterActionRequest holds parameters for registering an action.
type RegisterActionRequest struct {
	Application  string
	ActionID     string
	ActionName   string
	ResourceID   string
	ResourceName string
	Description  string
}

// UpdateActionRequest holds optional action fields; nil leaves a field unchanged.
type UpdateActionRequest struct {
	ActionName   *string
	ResourceID   *string
	ResourceName *string
	Description  *string
}

// InstanceInput is one row of a bulk instance registration.
// Rows with ID update that instance; rows without upsert by InstanceID.
type InstanceInput struct {
	ID           string
	InstanceID   string
	InstanceName string
}

// ApplyRequest holds parameters for applying for a permission.
type ApplyRequest struct {
	ActionID     string
	Instances    []string
	AllInstances bool
}

// UpdatePermissionRequest holds optional fields; nil leaves a field unchanged.
type UpdatePermissionRequest struct {
	Instances    *[]string
	AllInstances *bool
}

// AuthGrantRequest holds parameters for an application-issued grant.
type AuthGrantRequest struct {
	Username     string
	ActionID     string
	Instances    []string
	AllInstances bool
}

// PermissionView is a permission record with its action and resolved instances.
type PermissionView struct {
	models.UserPermission
	Action          *models.Action    `json:"action_detail,omitempty"`
	InstanceDetails []models.Instance `json:"instance_details"`
}

// CreateApplicationRequest holds parameters for registering an application.
type CreateApplicationRequest struct {
	Code     string
	Name     string
	Secret   string
	Managers []string
}

// ApplicationView is an application with its explicit managers.
type ApplicationView struct {
	models.Application
	Managers []string `json:"managers"`
}
