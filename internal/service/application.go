package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/keyward-dev/keyward/internal/audit"
	"github.com/keyward-dev/keyward/internal/auth"
	"github.com/keyward-dev/keyward/internal/models"
	"github.com/keyward-dev/keyward/internal/rbac"
	"gorm.io/gorm"
)

// ApplicationService registers client applications and their managers.
type ApplicationService struct {
	db *gorm.DB
}

// NewApplicationService creates a new ApplicationService.
func NewApplicationService(db *gorm.DB) *ApplicationService {
	return &ApplicationService{db: db}
}

func (s *ApplicationService) requireUsers(db *gorm.DB, usernames []string) error {
	for _, username := range usernames {
		if err := db.Where("username = ?", username).First(&models.User{}).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("user %s: %w", username, ErrNotFound)
			}
			return fmt.Errorf("load user: %w", err)
		}
	}
	return nil
}

// Create registers an application and grants manager rights to the given users.
func (s *ApplicationService) Create(ctx context.Context, actor string, req CreateApplicationRequest) (*ApplicationView, error) {
	if !IsIdentifier(req.Code) {
		return nil, &ValidationError{Message: "app_code must be a valid identifier"}
	}
	if req.Name == "" {
		return nil, &ValidationError{Message: "app_name is required"}
	}
	if len(req.Secret) < 8 {
		return nil, &ValidationError{Message: "secret must be at least 8 characters"}
	}

	db := s.db.WithContext(ctx)
	if err := s.requireUsers(db, req.Managers); err != nil {
		return nil, err
	}

	hash, err := auth.HashSecret(req.Secret)
	if err != nil {
		return nil, err
	}

	app := models.Application{Code: req.Code, Name: req.Name, SecretHash: hash}
	err = db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Unscoped().Model(&models.Application{}).Where("code = ?", req.Code).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return &ConflictError{Message: fmt.Sprintf("application %s already exists", req.Code)}
		}
		if err := tx.Create(&app).Error; err != nil {
			return err
		}
		return audit.LogAction(tx, actor, audit.ActionCreateApplication, "application:"+app.Code, map[string]interface{}{
			"app_name": app.Name,
			"managers": req.Managers,
		})
	})
	if err != nil {
		return nil, wrapTx("create application", err)
	}

	for _, username := range req.Managers {
		if err := rbac.GrantManager(app.Code, username); err != nil {
			return nil, fmt.Errorf("grant manager %s: %w", username, err)
		}
	}

	slog.Info("Application created", "app_code", app.Code, "managers", len(req.Managers))
	return s.view(app)
}

func (s *ApplicationService) view(app models.Application) (*ApplicationView, error) {
	managers, err := rbac.GetManagers(app.Code)
	if err != nil {
		return nil, fmt.Errorf("load managers: %w", err)
	}
	return &ApplicationView{Application: app, Managers: managers}, nil
}

// Get returns an application with its managers.
func (s *ApplicationService) Get(ctx context.Context, code string) (*ApplicationView, error) {
	var app models.Application
	if err := s.db.WithContext(ctx).Where("code = ?", code).First(&app).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load application: %w", err)
	}
	return s.view(app)
}

// List returns every application ordered by code.
func (s *ApplicationService) List(ctx context.Context) ([]ApplicationView, error) {
	var apps []models.Application
	if err := s.db.WithContext(ctx).Order("code ASC").Find(&apps).Error; err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}

	views := make([]ApplicationView, 0, len(apps))
	for _, app := range apps {
		v, err := s.view(app)
		if err != nil {
			return nil, err
		}
		views = append(views, *v)
	}
	return views, nil
}

// AddManager grants manager rights on an application to an existing user.
func (s *ApplicationService) AddManager(ctx context.Context, actor, code, username string) error {
	if _, err := s.Get(ctx, code); err != nil {
		return err
	}
	db := s.db.WithContext(ctx)
	if err := s.requireUsers(db, []string{username}); err != nil {
		return err
	}
	if err := rbac.GrantManager(code, username); err != nil {
		return fmt.Errorf("grant manager: %w", err)
	}
	if err := audit.LogAction(db, actor, audit.ActionAddManager, "application:"+code, map[string]interface{}{
		"username": username,
	}); err != nil {
		slog.Warn("Failed to write audit log", "action", audit.ActionAddManager, "error", err)
	}
	return nil
}

// RemoveManager revokes manager rights on an application.
func (s *ApplicationService) RemoveManager(ctx context.Context, actor, code, username string) error {
	if _, err := s.Get(ctx, code); err != nil {
		return err
	}
	db := s.db.WithContext(ctx)
	if err := s.requireUsers(db, []string{username}); err != nil {
		return err
	}
	if err := rbac.RevokeManager(code, username); err != nil {
		return fmt.Errorf("revoke manager: %w", err)
	}
	if err := audit.LogAction(db, actor, audit.ActionRemoveManager, "application:"+code, map[string]interface{}{
		"username": username,
	}); err != nil {
		slog.Warn("Failed to write audit log", "action", audit.ActionRemoveManager, "error", err)
	}
	return nil
}

// Authenticate verifies an application's credentials.
func (s *ApplicationService) Authenticate(ctx context.Context, code, secret string) (*models.Application, error) {
	return auth.AuthenticateApplication(s.db.WithContext(ctx), code, secret)
}
