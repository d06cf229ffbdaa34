package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/keyward-dev/keyward/internal/check"
	"github.com/keyward-dev/keyward/internal/service"
)

// AppHandler serves endpoints called by applications on behalf of users.
type AppHandler struct {
	permissions *service.PermissionService
	engine      *check.Engine
}

func NewAppHandler(permissions *service.PermissionService, engine *check.Engine) *AppHandler {
	return &AppHandler{permissions: permissions, engine: engine}
}

// Check godoc
// @Summary Check a user's permissions (application credentials)
// @Tags app
// @Security AppCode
// @Security AppSecret
// @Accept json
// @Produce json
// @Param body body AppCheckRequest true "User and items to check"
// @Success 200 {array} check.Result
// @Failure 400 {object} ErrorResponse
// @Router /app/check [post]
func (h *AppHandler) Check(c *gin.Context) {
	var req AppCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	results, err := h.engine.Check(c.Request.Context(), "app", req.Username, req.Items)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

// Grant godoc
// @Summary Grant one of the application's actions to a user (application credentials)
// @Tags app
// @Security AppCode
// @Security AppSecret
// @Accept json
// @Produce json
// @Param body body GrantRequest true "Grant"
// @Success 200 {object} models.UserPermission
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /app/grants [post]
func (h *AppHandler) Grant(c *gin.Context) {
	var req GrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	p, err := h.permissions.AuthGrant(c.Request.Context(), getAppCode(c), service.AuthGrantRequest{
		Username:     req.Username,
		ActionID:     req.ActionID,
		Instances:    req.Instances,
		AllInstances: req.AllInstances,
	})
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
