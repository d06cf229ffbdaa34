package handlers

import (
	"github.com/keyward-dev/keyward/internal/check"
	"github.com/keyward-dev/keyward/internal/models"
)

// --- Request/Response types ---

type RegisterActionRequest struct {
	Application  string `json:"application" binding:"required,ident"`
	ActionID     string `json:"action_id" binding:"required,ident"`
	ActionName   string `json:"action_name" binding:"required,max=128"`
	ResourceID   string `json:"resource_id" binding:"omitempty,ident"`
	ResourceName string `json:"resource_name" binding:"max=128"`
	Description  string `json:"description"`
}

type UpdateActionRequest struct {
	ActionName   *string `json:"action_name" binding:"omitempty,max=128"`
	ResourceID   *string `json:"resource_id"`
	ResourceName *string `json:"resource_name" binding:"omitempty,max=128"`
	Description  *string `json:"description"`
}

type InstanceRow struct {
	ID           string `json:"id" binding:"omitempty,uuid"`
	InstanceID   string `json:"instance_id" binding:"required,ident"`
	InstanceName string `json:"instance_name" binding:"required,max=128"`
}

type RegisterInstancesRequest struct {
	ActionID  string        `json:"action_id" binding:"required"`
	Instances []InstanceRow `json:"instances" binding:"required,min=1,dive"`
}

type UpdateInstanceRequest struct {
	InstanceName string `json:"instance_name" binding:"required,max=128"`
}

type InstanceSummary struct {
	ID           string `json:"id"`
	InstanceID   string `json:"instance_id"`
	InstanceName string `json:"instance_name"`
}

type ApplyRequest struct {
	ActionID     string   `json:"action_id" binding:"required"`
	Instances    []string `json:"instances"`
	AllInstances bool     `json:"all_instances"`
}

type UpdatePermissionRequest struct {
	Instances    *[]string `json:"instances"`
	AllInstances *bool     `json:"all_instances"`
}

type DecisionRequest struct {
	Decision string `json:"decision" binding:"required,oneof=allowed denied"`
}

type CheckRequest struct {
	Items []check.Item `json:"items" binding:"required,dive"`
}

type AppCheckRequest struct {
	Username string       `json:"username" binding:"required"`
	Items    []check.Item `json:"items" binding:"required,dive"`
}

type GrantRequest struct {
	Username     string   `json:"username" binding:"required"`
	ActionID     string   `json:"action_id" binding:"required"`
	Instances    []string `json:"instances"`
	AllInstances bool     `json:"all_instances"`
}

type CreateUserRequest struct {
	Username string `json:"username" binding:"required,ident"`
	Password string `json:"password" binding:"required,min=8"`
	IsAdmin  bool   `json:"is_admin"`
}

type CreateApplicationRequest struct {
	Code     string   `json:"app_code" binding:"required,ident"`
	Name     string   `json:"app_name" binding:"required,max=128"`
	Secret   string   `json:"secret" binding:"required,min=8"`
	Managers []string `json:"managers"`
}

type ManagerRequest struct {
	Username string `json:"username" binding:"required"`
}

type UserWithAdminStatus struct {
	models.User
	IsAdmin bool `json:"is_admin"`
}

// Page shapes for the API docs.

type ActionPage struct {
	Total    int64           `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
	Results  []models.Action `json:"results"`
}

type InstancePage struct {
	Total    int64             `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
	Results  []models.Instance `json:"results"`
}

type PermissionPage struct {
	Total    int64                   `json:"total"`
	Page     int                     `json:"page"`
	PageSize int                     `json:"page_size"`
	Results  []models.UserPermission `json:"results"`
}

type AuditLogPage struct {
	Total    int64             `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
	Results  []models.AuditLog `json:"results"`
}
