package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/keyward-dev/keyward/internal/auth"
	"github.com/keyward-dev/keyward/internal/cache"
	"github.com/keyward-dev/keyward/internal/config"
	"github.com/keyward-dev/keyward/internal/db"
	"github.com/keyward-dev/keyward/internal/rbac"
	"github.com/keyward-dev/keyward/internal/service"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testServer struct {
	t      *testing.T
	router *gin.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	database, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "api.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.Migrate(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := rbac.InitEnforcer(database, slog.Default()); err != nil {
		t.Fatalf("init rbac: %v", err)
	}
	if _, err := db.EnsureInstallationID(database); err != nil {
		t.Fatalf("installation id: %v", err)
	}

	ctx := context.Background()
	users := service.NewUserService(database)
	if _, err := users.Create(ctx, "bootstrap", "root", "rootpassword", true); err != nil {
		t.Fatalf("create admin: %v", err)
	}

	cfg := &config.Config{
		Server:  config.ServerConfig{Mode: "development"},
		Auth:    config.AuthConfig{JWTSecret: "test-secret", TokenTTLHours: 1},
		Cache:   config.CacheConfig{Type: "memory"},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
	c, err := cache.New(cfg.Cache, "test")
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	return &testServer{t: t, router: NewRouter(cfg, database, c)}
}

// do sends a JSON request; headers are alternating name/value pairs.
func (s *testServer) do(method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			s.t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) expect(w *httptest.ResponseRecorder, status int, out interface{}) {
	s.t.Helper()
	if w.Code != status {
		s.t.Fatalf("status = %d, want %d; body: %s", w.Code, status, w.Body.String())
	}
	if out != nil {
		if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
			s.t.Fatalf("decode response: %v", err)
		}
	}
}

func (s *testServer) login(username, password string) []string {
	s.t.Helper()
	var resp auth.LoginResponse
	s.expect(s.do(http.MethodPost, "/api/v1/auth/login", map[string]string{"username": username, "password": password}), http.StatusOK, &resp)
	return []string{"Authorization", "Bearer " + resp.Token}
}

func TestPublicEndpoints(t *testing.T) {
	s := newTestServer(t)

	s.expect(s.do(http.MethodGet, "/api/v1/health", nil), http.StatusOK, nil)
	s.expect(s.do(http.MethodGet, "/api/v1/version", nil), http.StatusOK, nil)
	var info struct {
		Cache string `json:"cache"`
	}
	s.expect(s.do(http.MethodGet, "/api/v1/info", nil), http.StatusOK, &info)
	if info.Cache != "memory" {
		t.Errorf("expected memory cache in info, got %q", info.Cache)
	}
	s.expect(s.do(http.MethodGet, "/metrics", nil), http.StatusOK, nil)
	s.expect(s.do(http.MethodGet, "/api/v1/actions?application_id=x", nil), http.StatusUnauthorized, nil)
}

func TestApplyApproveCheckFlow(t *testing.T) {
	s := newTestServer(t)
	root := s.login("root", "rootpassword")
	appCreds := []string{auth.AppCodeHeader, "billing", auth.AppSecretHeader, "billing-secret"}

	for _, name := range []string{"alice", "carol"} {
		s.expect(s.do(http.MethodPost, "/api/v1/admin/users", map[string]interface{}{"username": name, "password": "password123"}, root...), http.StatusCreated, nil)
	}
	s.expect(s.do(http.MethodPost, "/api/v1/admin/applications", map[string]interface{}{
		"app_code": "billing", "app_name": "Billing", "secret": "billing-secret", "managers": []string{"carol"},
	}, root...), http.StatusCreated, nil)

	alice := s.login("alice", "password123")
	carol := s.login("carol", "password123")

	// Non-managers cannot register actions.
	actionBody := map[string]interface{}{
		"application": "billing", "action_id": "view_invoice", "action_name": "View invoice", "resource_id": "invoice",
	}
	s.expect(s.do(http.MethodPost, "/api/v1/actions", actionBody, alice...), http.StatusForbidden, nil)

	var action struct {
		ID string `json:"id"`
	}
	s.expect(s.do(http.MethodPost, "/api/v1/actions", actionBody, carol...), http.StatusCreated, &action)
	s.expect(s.do(http.MethodPost, "/api/v1/actions", actionBody, carol...), http.StatusConflict, nil)

	// Users cannot call application routes.
	s.expect(s.do(http.MethodPost, "/api/v1/app/instances/bulk", map[string]interface{}{}, alice...), http.StatusForbidden, nil)

	var instances []struct {
		ID         string `json:"id"`
		InstanceID string `json:"instance_id"`
	}
	s.expect(s.do(http.MethodPost, "/api/v1/app/instances/bulk", map[string]interface{}{
		"action_id": action.ID,
		"instances": []map[string]string{
			{"instance_id": "invoice-42", "instance_name": "Invoice 42"},
			{"instance_id": "invoice-99", "instance_name": "Invoice 99"},
		},
	}, appCreds...), http.StatusOK, &instances)
	if len(instances) != 2 {
		t.Fatalf("instances = %d, want 2", len(instances))
	}
	i42, i99 := instances[0].ID, instances[1].ID

	s.expect(s.do(http.MethodPost, "/api/v1/app/instances/bulk", map[string]interface{}{
		"action_id": action.ID,
		"instances": []map[string]string{{"instance_id": "bad id!", "instance_name": "x"}},
	}, appCreds...), http.StatusBadRequest, nil)

	var permission struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	s.expect(s.do(http.MethodPost, "/api/v1/permissions", map[string]interface{}{
		"action_id": action.ID, "instances": []string{i42},
	}, alice...), http.StatusCreated, &permission)
	if permission.Status != "dealing" {
		t.Errorf("status = %q, want dealing", permission.Status)
	}

	decision := "/api/v1/manage/permissions/" + permission.ID + "/decision"
	s.expect(s.do(http.MethodPost, decision, map[string]string{"decision": "allowed"}, alice...), http.StatusForbidden, nil)
	s.expect(s.do(http.MethodPost, decision, map[string]string{"decision": "maybe"}, carol...), http.StatusBadRequest, nil)
	s.expect(s.do(http.MethodPost, decision, map[string]string{"decision": "allowed"}, carol...), http.StatusNoContent, nil)
	s.expect(s.do(http.MethodPost, decision, map[string]string{"decision": "allowed"}, carol...), http.StatusConflict, nil)

	var results []struct {
		ActionID       string   `json:"action_id"`
		IsAllowed      bool     `json:"is_allowed"`
		ApplyInstances []string `json:"apply_instances"`
	}
	s.expect(s.do(http.MethodPost, "/api/v1/app/check", map[string]interface{}{
		"username": "alice",
		"items": []map[string]interface{}{
			{"action_id": action.ID, "instances": []string{i42, i99}},
			{"action_id": "not-a-uuid", "instances": []string{i42}},
		},
	}, appCreds...), http.StatusOK, &results)
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].IsAllowed || len(results[0].ApplyInstances) != 1 || results[0].ApplyInstances[0] != i99 {
		t.Errorf("unexpected first result: %+v", results[0])
	}
	if results[1].IsAllowed {
		t.Errorf("malformed action id should not be allowed")
	}

	// Grant the rest through the application and re-check as alice.
	s.expect(s.do(http.MethodPost, "/api/v1/app/grants", map[string]interface{}{
		"username": "alice", "action_id": action.ID, "instances": []string{i99},
	}, appCreds...), http.StatusOK, nil)
	s.expect(s.do(http.MethodPost, "/api/v1/permissions/check", map[string]interface{}{
		"items": []map[string]interface{}{{"action_id": action.ID, "instances": []string{i42, i99}}},
	}, alice...), http.StatusOK, &results)
	if !results[0].IsAllowed {
		t.Errorf("expected alice to be allowed after grant: %+v", results[0])
	}

	var mine struct {
		Total   int64 `json:"total"`
		Results []struct {
			Status          string                   `json:"status"`
			InstanceDetails []map[string]interface{} `json:"instance_details"`
		} `json:"results"`
	}
	s.expect(s.do(http.MethodGet, "/api/v1/permissions?application_id=billing", nil, alice...), http.StatusOK, &mine)
	if mine.Total != 1 || len(mine.Results[0].InstanceDetails) != 2 {
		t.Errorf("unexpected ListMine response: %+v", mine)
	}

	s.expect(s.do(http.MethodGet, "/api/v1/admin/audit-logs?page_size=5", nil, alice...), http.StatusForbidden, nil)
	s.expect(s.do(http.MethodGet, "/api/v1/admin/audit-logs?page=0", nil, root...), http.StatusBadRequest, nil)
	s.expect(s.do(http.MethodGet, "/api/v1/admin/audit-logs?page_size=5", nil, root...), http.StatusOK, nil)
}

func TestAppCredentialsRejected(t *testing.T) {
	s := newTestServer(t)
	s.expect(s.do(http.MethodPost, "/api/v1/app/check", map[string]interface{}{"username": "x", "items": []interface{}{}},
		auth.AppCodeHeader, "billing", auth.AppSecretHeader, "wrong"), http.StatusUnauthorized, nil)
}
