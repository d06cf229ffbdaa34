package rbac

import (
	_ "embed"
	"fmt"
	"log/slog"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelConf string

var enforcer *casbin.Enforcer

const (
	appObjectPrefix = "app:"
	actManage       = "manage"
)

// InitEnforcer initializes the Casbin enforcer
func InitEnforcer(db *gorm.DB, logger *slog.Logger) error {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return fmt.Errorf("failed to create casbin adapter: %w", err)
	}

	// Load model from embedded string
	m, err := model.NewModelFromString(modelConf)
	if err != nil {
		return fmt.Errorf("failed to parse casbin model: %w", err)
	}

	e, err := casbin.NewEnforcer(m, adapter)
	if err != nil {
		return fmt.Errorf("failed to create casbin enforcer: %w", err)
	}

	// Load policies from database
	if err := e.LoadPolicy(); err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}

	enforcer = e
	logger.Info("RBAC enforcer initialized")
	return nil
}

// GetEnforcer returns the global enforcer instance
func GetEnforcer() *casbin.Enforcer {
	return enforcer
}

func appObject(appCode string) string {
	return appObjectPrefix + appCode
}

// IsAdmin checks if user has admin privileges
func IsAdmin(username string) (bool, error) {
	return enforcer.Enforce(username, "admin", "admin")
}

// MakeAdmin grants admin privileges to a user
func MakeAdmin(username string) error {
	_, err := enforcer.AddPolicy(username, "admin", "admin")
	return err
}

// RevokeAdmin removes admin privileges from a user
func RevokeAdmin(username string) error {
	_, err := enforcer.RemovePolicy(username, "admin", "admin")
	return err
}

// IsManagerOf reports whether username manages the application.
// Admins manage every application.
func IsManagerOf(appCode, username string) (bool, error) {
	if username == "" || appCode == "" {
		return false, nil
	}
	isAdmin, err := IsAdmin(username)
	if err != nil {
		return false, err
	}
	if isAdmin {
		return true, nil
	}
	return enforcer.Enforce(username, appObject(appCode), actManage)
}

// GrantManager makes username a manager of the application
func GrantManager(appCode, username string) error {
	_, err := enforcer.AddPolicy(username, appObject(appCode), actManage)
	return err
}

// RevokeManager removes username from the application's managers
func RevokeManager(appCode, username string) error {
	_, err := enforcer.RemovePolicy(username, appObject(appCode), actManage)
	return err
}

// GetManagers returns the usernames explicitly managing the application
func GetManagers(appCode string) ([]string, error) {
	policies, err := enforcer.GetFilteredPolicy(1, appObject(appCode), actManage)
	if err != nil {
		return nil, err
	}

	managers := make([]string, 0, len(policies))
	for _, policy := range policies {
		if len(policy) >= 1 {
			managers = append(managers, policy[0])
		}
	}
	return managers, nil
}

// GetManagedApplications returns the application codes a user explicitly manages
func GetManagedApplications(username string) ([]string, error) {
	policies, err := enforcer.GetFilteredPolicy(0, username)
	if err != nil {
		return nil, err
	}

	apps := make([]string, 0)
	for _, policy := range policies {
		if len(policy) >= 3 && policy[2] == actManage && strings.HasPrefix(policy[1], appObjectPrefix) {
			apps = append(apps, strings.TrimPrefix(policy[1], appObjectPrefix))
		}
	}
	return apps, nil
}

// Managers adapts the package-level predicate to service.ManagerChecker.
type Managers struct{}

// IsManagerOf implements service.ManagerChecker.
func (Managers) IsManagerOf(appCode, username string) (bool, error) {
	return IsManagerOf(appCode, username)
}
