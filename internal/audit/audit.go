package audit

import (
	"encoding/json"
	"time"

	"github.com/keyward-dev/keyward/internal/models"
	"gorm.io/gorm"
)

// LogAction records an audit log entry. Pass a transaction handle to make the
// entry commit or roll back together with the change it describes.
func LogAction(db *gorm.DB, actor, action, resource string, details interface{}) error {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		detailsJSON = []byte("{}")
	}

	log := models.AuditLog{
		Actor:       actor,
		Action:      action,
		Resource:    resource,
		DetailsJSON: string(detailsJSON),
		Timestamp:   time.Now(),
	}

	return db.Create(&log).Error
}

// AppActor formats an application principal for the actor column.
func AppActor(appCode string) string {
	return "app:" + appCode
}

// Audit actions constants
const (
	ActionCreateUser        = "create_user"
	ActionCreateApplication = "create_application"
	ActionAddManager        = "add_manager"
	ActionRemoveManager     = "remove_manager"
	ActionRegisterAction    = "register_action"
	ActionUpdateAction      = "update_action"
	ActionDeleteAction      = "delete_action"
	ActionRegisterInstances = "register_instances"
	ActionUpdateInstance    = "update_instance"
	ActionDeleteInstance    = "delete_instance"
	ActionApplyPermission   = "apply_permission"
	ActionUpdatePermission  = "update_permission"
	ActionAllowPermission   = "allow_permission"
	ActionDenyPermission    = "deny_permission"
	ActionAuthGrant         = "auth_grant"
	ActionDeletePermission  = "delete_permission"
	ActionLogin             = "login"
	ActionLoginFailed       = "login_failed"
)
