package catalogfile

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/keyward-dev/keyward/internal/models"
	"github.com/keyward-dev/keyward/internal/rbac"
	"github.com/keyward-dev/keyward/internal/service"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const yamlCatalog = `application: billing
actions:
  - action_id: view_invoice
    action_name: View invoice
    resource_id: invoice
    resource_name: Invoice
    instances:
      - instance_id: invoice-42
        instance_name: Invoice 42
      - instance_id: invoice-99
  - action_id: export
    action_name: Export ledger
`

const tomlCatalog = `application = "billing"

[[actions]]
action_id = "view_invoice"
action_name = "View invoice"
resource_id = "invoice"

[[actions.instances]]
instance_id = "invoice-42"
instance_name = "Invoice 42"
`

func TestParse_YAML(t *testing.T) {
	f, err := Parse("billing.yaml", []byte(yamlCatalog))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if f.Application != "billing" {
		t.Errorf("Application = %q, want billing", f.Application)
	}
	if len(f.Actions) != 2 {
		t.Fatalf("len(Actions) = %d, want 2", len(f.Actions))
	}
	if got := len(f.Actions[0].Instances); got != 2 {
		t.Errorf("len(Instances) = %d, want 2", got)
	}
}

func TestParse_TOML(t *testing.T) {
	f, err := Parse("billing.toml", []byte(tomlCatalog))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(f.Actions) != 1 || f.Actions[0].Instances[0].InstanceID != "invoice-42" {
		t.Errorf("unexpected catalog: %+v", f)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		want    string
	}{
		{"unsupported", "billing.json", "{}", "unsupported"},
		{"bad yaml", "billing.yaml", "application: [", "decode"},
		{"missing application", "billing.yaml", "actions: []", "invalid application"},
		{"duplicate action", "billing.yaml", "application: billing\nactions:\n  - {action_id: a, action_name: A}\n  - {action_id: a, action_name: B}\n", "duplicate"},
		{"instances without resource", "billing.yaml", "application: billing\nactions:\n  - action_id: a\n    action_name: A\n    instances: [{instance_id: x}]\n", "resource_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.file, []byte(tt.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) || !strings.Contains(err.Error(), tt.file) {
				t.Errorf("error %q should mention %q and %q", err, tt.want, tt.file)
			}
		})
	}
}

func TestGlob_Recursive(t *testing.T) {
	dir := t.TempDir()
	for _, rel := range []string{"a.yaml", "nested/b.toml", "nested/deeper/c.yaml", "notes.txt"} {
		path := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(""), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	paths, err := Glob(filepath.Join(dir, "**", "*.yaml"), filepath.Join(dir, "**", "*.toml"), filepath.Join(dir, "a.yaml"))
	if err != nil {
		t.Fatalf("Glob() error = %v", err)
	}
	if len(paths) != 3 {
		t.Fatalf("Glob() = %v, want 3 files", paths)
	}
}

func setupCatalog(t *testing.T) (*gorm.DB, *service.CatalogService) {
	t.Helper()
	ctx := context.Background()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "catalog.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.Application{}, &models.Action{}, &models.Instance{},
		&models.UserPermission{}, &models.UserPermissionSnapshot{}, &models.AuditLog{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := rbac.InitEnforcer(db, slog.Default()); err != nil {
		t.Fatalf("init rbac: %v", err)
	}
	if _, err := service.NewApplicationService(db).Create(ctx, "root", service.CreateApplicationRequest{
		Code: "billing", Name: "Billing", Secret: "billing-secret",
	}); err != nil {
		t.Fatalf("create application: %v", err)
	}
	return db, service.NewCatalogService(db, service.AllowAll{}, nil)
}

func TestImport_Idempotent(t *testing.T) {
	db, catalog := setupCatalog(t)
	ctx := context.Background()

	f, err := Parse("billing.yaml", []byte(yamlCatalog))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	summary, err := Import(ctx, catalog, "root", f)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if summary.Created != 2 || summary.Updated != 0 || summary.Instances != 2 {
		t.Errorf("first import summary = %+v", summary)
	}

	f.Actions[0].ActionName = "Read invoice"
	summary, err = Import(ctx, catalog, "root", f)
	if err != nil {
		t.Fatalf("second Import() error = %v", err)
	}
	if summary.Created != 0 || summary.Updated != 2 {
		t.Errorf("second import summary = %+v", summary)
	}

	action, err := catalog.FindAction(ctx, "billing", "view_invoice")
	if err != nil {
		t.Fatalf("FindAction() error = %v", err)
	}
	if action.ActionName != "Read invoice" {
		t.Errorf("ActionName = %q, want Read invoice", action.ActionName)
	}

	var count int64
	db.Model(&models.Instance{}).Count(&count)
	if count != 2 {
		t.Errorf("instances = %d, want 2", count)
	}

	var unnamed models.Instance
	if err := db.Where("instance_id = ?", "invoice-99").First(&unnamed).Error; err != nil {
		t.Fatalf("load instance: %v", err)
	}
	if unnamed.InstanceName != "invoice-99" {
		t.Errorf("InstanceName = %q, want instance_id fallback", unnamed.InstanceName)
	}
}
