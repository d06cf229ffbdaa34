package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/keyward-dev/keyward/internal/audit"
	"github.com/keyward-dev/keyward/internal/auth"
	"github.com/keyward-dev/keyward/internal/models"
	"github.com/keyward-dev/keyward/internal/rbac"
	"gorm.io/gorm"
)

// UserService manages local user accounts.
type UserService struct {
	db *gorm.DB
}

// NewUserService creates a new UserService.
func NewUserService(db *gorm.DB) *UserService {
	return &UserService{db: db}
}

// Create adds a user, optionally with the admin role.
func (s *UserService) Create(ctx context.Context, actor, username, password string, admin bool) (*models.User, error) {
	if !IsIdentifier(username) {
		return nil, &ValidationError{Message: "username must be a valid identifier"}
	}
	if len(password) < 8 {
		return nil, &ValidationError{Message: "password must be at least 8 characters"}
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := models.User{Username: username, PasswordHash: hash}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Unscoped().Model(&models.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return &ConflictError{Message: fmt.Sprintf("user %s already exists", username)}
		}
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		return audit.LogAction(tx, actor, audit.ActionCreateUser, "user:"+user.Username, map[string]interface{}{
			"admin": admin,
		})
	})
	if err != nil {
		return nil, wrapTx("create user", err)
	}

	if admin {
		if err := rbac.MakeAdmin(user.Username); err != nil {
			return nil, fmt.Errorf("grant admin role: %w", err)
		}
	}

	slog.Info("User created", "username", user.Username, "admin", admin)
	return &user, nil
}

// List returns every user ordered by username.
func (s *UserService) List(ctx context.Context) ([]models.User, error) {
	users := make([]models.User, 0)
	if err := s.db.WithContext(ctx).Order("username ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}
