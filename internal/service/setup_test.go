package service

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/keyward-dev/keyward/internal/models"
	"github.com/keyward-dev/keyward/internal/rbac"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type recordingInvalidator struct {
	mu        sync.Mutex
	usernames []string
}

func (r *recordingInvalidator) Invalidate(_ context.Context, usernames ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.usernames = append(r.usernames, usernames...)
	return nil
}

func (r *recordingInvalidator) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.usernames...)
}

type testEnv struct {
	db          *gorm.DB
	catalog     *CatalogService
	permissions *PermissionService
	apps        *ApplicationService
	users       *UserService
	invalidator *recordingInvalidator
}

// setup opens a fresh database, migrates it, initializes RBAC and creates
// the billing application managed by carol.
func setup(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Application{},
		&models.Action{},
		&models.Instance{},
		&models.UserPermission{},
		&models.UserPermissionSnapshot{},
		&models.AuditLog{},
	))

	// RBAC enforcer is global, initialize per test
	require.NoError(t, rbac.InitEnforcer(db, slog.Default()))

	inv := &recordingInvalidator{}
	env := &testEnv{
		db:          db,
		catalog:     NewCatalogService(db, rbac.Managers{}, inv),
		permissions: NewPermissionService(db, rbac.Managers{}, inv),
		apps:        NewApplicationService(db),
		users:       NewUserService(db),
		invalidator: inv,
	}

	ctx := context.Background()
	for _, name := range []string{"alice", "bob", "carol"} {
		_, err := env.users.Create(ctx, "root", name, "password123", false)
		require.NoError(t, err)
	}
	_, err = env.apps.Create(ctx, "root", CreateApplicationRequest{
		Code:     "billing",
		Name:     "Billing",
		Secret:   "billing-secret",
		Managers: []string{"carol"},
	})
	require.NoError(t, err)
	return env
}

// invoiceAction registers billing/view_invoice on resource invoice with two instances.
func (e *testEnv) invoiceAction(t *testing.T) (*models.Action, []models.Instance) {
	t.Helper()
	ctx := context.Background()

	action, err := e.catalog.RegisterAction(ctx, "carol", RegisterActionRequest{
		Application:  "billing",
		ActionID:     "view_invoice",
		ActionName:   "View invoice",
		ResourceID:   "invoice",
		ResourceName: "Invoice",
	})
	require.NoError(t, err)

	instances, err := e.catalog.RegisterInstances(ctx, "billing", action.ID.String(), []InstanceInput{
		{InstanceID: "invoice-42", InstanceName: "Invoice 42"},
		{InstanceID: "invoice-99", InstanceName: "Invoice 99"},
	})
	require.NoError(t, err)
	require.Len(t, instances, 2)
	return action, instances
}
