package handlers

import (
	"net/http"
	"runtime"

	"github.com/gin-gonic/gin"
	"github.com/keyward-dev/keyward/internal/db"
	"gorm.io/gorm"
)

// InfoHandler reports how this installation is deployed.
type InfoHandler struct {
	db        *gorm.DB
	driver    string
	cacheType string
}

// NewInfoHandler creates an InfoHandler. driver and cacheType are echoed as
// configured; an empty cacheType reports "none".
func NewInfoHandler(database *gorm.DB, driver, cacheType string) *InfoHandler {
	if cacheType == "" {
		cacheType = "none"
	}
	return &InfoHandler{db: database, driver: driver, cacheType: cacheType}
}

// InfoResponse describes the installation. Cache is the snapshot cache
// backing permission checks: none, memory or valkey.
type InfoResponse struct {
	InstallationID string `json:"installation_id"`
	Version        string `json:"version"`
	Database       string `json:"database"`
	Cache          string `json:"cache"`
	Platform       string `json:"platform"`
}

// GetInfo godoc
// @Summary Installation information
// @Description Returns the installation ID, storage backends and build platform
// @Tags health
// @Produce json
// @Success 200 {object} InfoResponse
// @Failure 500 {object} ErrorResponse
// @Router /info [get]
func (h *InfoHandler) GetInfo(c *gin.Context) {
	installationID, err := db.GetInstallationID(h.db)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "installation is not initialized"})
		return
	}

	c.JSON(http.StatusOK, InfoResponse{
		InstallationID: installationID,
		Version:        Version,
		Database:       h.driver,
		Cache:          h.cacheType,
		Platform:       runtime.GOOS + "/" + runtime.GOARCH,
	})
}
