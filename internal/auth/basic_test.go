package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/keyward-dev/keyward/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupAuthDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "auth.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.Application{}, &models.AuditLog{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func createUser(t *testing.T, db *gorm.DB, username, password string) *models.User {
	t.Helper()
	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	user := &models.User{Username: username, PasswordHash: hash}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func createApp(t *testing.T, db *gorm.DB, code, secret string) {
	t.Helper()
	hash, err := HashSecret(secret)
	if err != nil {
		t.Fatalf("hash secret: %v", err)
	}
	if err := db.Create(&models.Application{Code: code, Name: code, SecretHash: hash}).Error; err != nil {
		t.Fatalf("create app: %v", err)
	}
}

// whoami echoes the resolved principal.
func whoami(c *gin.Context) {
	p, err := PrincipalFromContext(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"kind": p.Kind, "actor": p.Actor()})
}

func newTestRouter(a *BasicAuthenticator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/whoami", a.Middleware(), whoami)
	return r
}

func TestLogin(t *testing.T) {
	db := setupAuthDB(t)
	createUser(t, db, "alice", "wonderland")
	a := NewBasicAuthenticator(db, "test-secret", time.Hour)

	resp, err := a.Login("alice", "wonderland")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Token == "" || resp.User.Username != "alice" {
		t.Errorf("unexpected login response: %+v", resp)
	}

	if _, err := a.Login("alice", "wrong"); err != ErrInvalidCredentials {
		t.Errorf("expected ErrInvalidCredentials for bad password, got %v", err)
	}
	if _, err := a.Login("nobody", "x"); err != ErrInvalidCredentials {
		t.Errorf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}

	var count int64
	db.Model(&models.AuditLog{}).Count(&count)
	if count != 2 {
		t.Errorf("expected login and login_failed audit rows, got %d", count)
	}
}

func TestMiddleware_BearerToken(t *testing.T) {
	db := setupAuthDB(t)
	user := createUser(t, db, "alice", "wonderland")
	a := NewBasicAuthenticator(db, "test-secret", time.Hour)
	token, err := a.GenerateToken(user)
	if err != nil {
		t.Fatalf("token: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	newTestRouter(a).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var body map[string]string
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["kind"] != string(PrincipalUser) || body["actor"] != "alice" {
		t.Errorf("unexpected principal: %v", body)
	}
}

func TestMiddleware_RejectsForeignToken(t *testing.T) {
	db := setupAuthDB(t)
	user := createUser(t, db, "alice", "wonderland")
	other := NewBasicAuthenticator(db, "other-secret", time.Hour)
	token, _ := other.GenerateToken(user)

	a := NewBasicAuthenticator(db, "test-secret", time.Hour)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	newTestRouter(a).ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestMiddleware_ApplicationHeaders(t *testing.T) {
	db := setupAuthDB(t)
	createApp(t, db, "billing", "billing-secret")
	a := NewBasicAuthenticator(db, "test-secret", time.Hour)
	router := newTestRouter(a)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(AppCodeHeader, "billing")
	req.Header.Set(AppSecretHeader, "billing-secret")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var body map[string]string
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["kind"] != string(PrincipalApplication) || body["actor"] != "app:billing" {
		t.Errorf("unexpected principal: %v", body)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(AppCodeHeader, "billing")
	req.Header.Set(AppSecretHeader, "wrong")
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for wrong secret, got %d", w.Code)
	}
}

func TestMiddleware_MissingCredentials(t *testing.T) {
	db := setupAuthDB(t)
	a := NewBasicAuthenticator(db, "test-secret", time.Hour)

	w := httptest.NewRecorder()
	newTestRouter(a).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}
