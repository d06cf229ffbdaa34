package handlers

import (
	"net/http"
	"runtime"

	"github.com/gin-gonic/gin"
)

// Version is set via ldflags at build time
var Version = "dev"

// APIVersion is the path segment every REST route is mounted under.
const APIVersion = "v1"

// VersionResponse identifies the running build.
type VersionResponse struct {
	Version    string `json:"version"`
	APIVersion string `json:"api_version"`
	GoVersion  string `json:"go_version"`
}

// GetVersion godoc
// @Summary Server version
// @Tags health
// @Produce json
// @Success 200 {object} VersionResponse
// @Router /version [get]
func GetVersion(c *gin.Context) {
	c.JSON(http.StatusOK, VersionResponse{
		Version:    Version,
		APIVersion: APIVersion,
		GoVersion:  runtime.Version(),
	})
}
