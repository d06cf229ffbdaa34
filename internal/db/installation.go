package db

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/keyward-dev/keyward/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EnsureInstallationID returns the installation ID, generating and storing
// one on first start. Replicas sharing a database share the ID.
func EnsureInstallationID(db *gorm.DB) (string, error) {
	id, err := GetInstallationID(db)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}

	setting := models.Setting{
		Name:  models.SettingInstallationID,
		Value: uuid.New().String(),
	}
	// Another replica may win the race; keep whichever row landed first.
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&setting).Error; err != nil {
		return "", fmt.Errorf("failed to store installation ID: %w", err)
	}

	id, err = GetInstallationID(db)
	if err != nil {
		return "", err
	}
	slog.Info("Installation ID initialized", "installation_id", id)
	return id, nil
}

// GetInstallationID reads the stored installation ID. It returns an error
// wrapping gorm.ErrRecordNotFound before EnsureInstallationID has run.
func GetInstallationID(db *gorm.DB) (string, error) {
	var setting models.Setting
	err := db.Where("name = ?", models.SettingInstallationID).First(&setting).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("installation ID not initialized: %w", err)
		}
		return "", fmt.Errorf("failed to query settings: %w", err)
	}
	return setting.Value, nil
}
