package auth

import (
	"errors"
	"fmt"

	"github.com/alexedwards/argon2id"
	"github.com/keyward-dev/keyward/internal/models"
	"gorm.io/gorm"
)

// HashSecret hashes an application secret with argon2id
func HashSecret(secret string) (string, error) {
	hash, err := argon2id.CreateHash(secret, argon2id.DefaultParams)
	if err != nil {
		return "", fmt.Errorf("failed to hash secret: %w", err)
	}
	return hash, nil
}

// VerifySecret checks an application secret against its argon2id hash
func VerifySecret(hash, secret string) bool {
	match, err := argon2id.ComparePasswordAndHash(secret, hash)
	return err == nil && match
}

// AuthenticateApplication loads a live application and verifies its secret.
func AuthenticateApplication(db *gorm.DB, code, secret string) (*models.Application, error) {
	if code == "" || secret == "" {
		return nil, ErrInvalidCredentials
	}

	var app models.Application
	if err := db.Where("code = ?", code).First(&app).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if !VerifySecret(app.SecretHash, secret) {
		return nil, ErrInvalidCredentials
	}
	return &app, nil
}
