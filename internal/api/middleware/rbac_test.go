package middleware

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/keyward-dev/keyward/internal/auth"
	"github.com/keyward-dev/keyward/internal/models"
	"github.com/keyward-dev/keyward/internal/rbac"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupRBAC(t *testing.T) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "mw.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := rbac.InitEnforcer(db, slog.Default()); err != nil {
		t.Fatalf("init rbac: %v", err)
	}
}

func serve(principal *auth.Principal, guard gin.HandlerFunc) int {
	router := gin.New()
	router.GET("/", func(c *gin.Context) {
		if principal != nil {
			c.Set(auth.PrincipalContextKey, principal)
		}
		c.Next()
	}, guard, func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	return w.Code
}

func TestPrincipalGuards(t *testing.T) {
	gin.SetMode(gin.TestMode)
	setupRBAC(t)
	if err := rbac.MakeAdmin("root"); err != nil {
		t.Fatalf("make admin: %v", err)
	}

	alice := &auth.Principal{Kind: auth.PrincipalUser, User: &models.User{Username: "alice"}}
	root := &auth.Principal{Kind: auth.PrincipalUser, User: &models.User{Username: "root"}}
	billing := &auth.Principal{Kind: auth.PrincipalApplication, Application: &models.Application{Code: "billing"}}

	tests := []struct {
		name      string
		principal *auth.Principal
		guard     gin.HandlerFunc
		want      int
	}{
		{"user route anonymous", nil, RequireUser(), http.StatusUnauthorized},
		{"user route user", alice, RequireUser(), http.StatusOK},
		{"user route app", billing, RequireUser(), http.StatusForbidden},
		{"app route app", billing, RequireApplication(), http.StatusOK},
		{"app route user", alice, RequireApplication(), http.StatusForbidden},
		{"admin route admin", root, RequireAdmin(), http.StatusOK},
		{"admin route user", alice, RequireAdmin(), http.StatusForbidden},
		{"admin route app", billing, RequireAdmin(), http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := serve(tt.principal, tt.guard); got != tt.want {
				t.Errorf("status = %d, want %d", got, tt.want)
			}
		})
	}
}
