package rbac

import (
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupEnforcer(t *testing.T) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "rbac.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := InitEnforcer(db, slog.Default()); err != nil {
		t.Fatalf("init rbac: %v", err)
	}
}

func TestIsManagerOf_GrantAndRevoke(t *testing.T) {
	setupEnforcer(t)

	ok, err := IsManagerOf("billing", "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("alice should not manage billing before grant")
	}

	if err := GrantManager("billing", "alice"); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if ok, _ := IsManagerOf("billing", "alice"); !ok {
		t.Error("alice should manage billing after grant")
	}
	if ok, _ := IsManagerOf("crm", "alice"); ok {
		t.Error("grant on billing must not leak to crm")
	}

	if err := RevokeManager("billing", "alice"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if ok, _ := IsManagerOf("billing", "alice"); ok {
		t.Error("alice should not manage billing after revoke")
	}
}

func TestIsManagerOf_AdminManagesEverything(t *testing.T) {
	setupEnforcer(t)

	if err := MakeAdmin("root"); err != nil {
		t.Fatalf("make admin: %v", err)
	}
	if ok, _ := IsManagerOf("anything", "root"); !ok {
		t.Error("admin should manage every application")
	}
	if ok, _ := IsManagerOf("", "root"); ok {
		t.Error("empty application code must never match")
	}
}

func TestGetManagers(t *testing.T) {
	setupEnforcer(t)

	GrantManager("billing", "alice")
	GrantManager("billing", "bob")
	GrantManager("crm", "carol")

	managers, err := GetManagers("billing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(managers) != 2 {
		t.Fatalf("expected 2 managers, got %v", managers)
	}

	apps, err := GetManagedApplications("carol")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(apps) != 1 || apps[0] != "crm" {
		t.Errorf("expected [crm], got %v", apps)
	}
}
