package handlers

import (
	"log/slog"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/keyward-dev/keyward/internal/auth"
	"github.com/keyward-dev/keyward/internal/models"
	"github.com/keyward-dev/keyward/internal/rbac"
)

// CurrentUserResponse is the caller together with the roles that decide what
// they may do: installation admin and the applications they manage.
type CurrentUserResponse struct {
	*models.User
	IsAdmin             bool     `json:"is_admin"`
	ManagedApplications []string `json:"managed_applications"`
}

// GetCurrentUser godoc
// @Summary Current user
// @Tags auth
// @Security BearerAuth
// @Produce json
// @Success 200 {object} CurrentUserResponse
// @Failure 401 {object} ErrorResponse
// @Router /auth/me [get]
func GetCurrentUser(authenticator auth.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := authenticator.GetPrincipal(c)
		if err != nil || principal.User == nil {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
			return
		}

		username := principal.User.Username
		isAdmin, err := rbac.IsAdmin(username)
		if err != nil {
			slog.Error("Failed to resolve admin role", "username", username, "error", err)
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
			return
		}
		managed, err := rbac.GetManagedApplications(username)
		if err != nil {
			slog.Error("Failed to resolve managed applications", "username", username, "error", err)
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
			return
		}
		sort.Strings(managed)

		c.JSON(http.StatusOK, CurrentUserResponse{
			User:                principal.User,
			IsAdmin:             isAdmin,
			ManagedApplications: managed,
		})
	}
}
