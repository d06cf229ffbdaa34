package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/keyward-dev/keyward/internal/rbac"
	"github.com/keyward-dev/keyward/internal/service"
)

type AdminHandler struct {
	apps  *service.ApplicationService
	users *service.UserService
	audit *service.AuditService
}

func NewAdminHandler(apps *service.ApplicationService, users *service.UserService, audit *service.AuditService) *AdminHandler {
	return &AdminHandler{apps: apps, users: users, audit: audit}
}

// ListUsers godoc
// @Summary List all users (admin only)
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Success 200 {array} UserWithAdminStatus
// @Router /admin/users [get]
func (h *AdminHandler) ListUsers(c *gin.Context) {
	users, err := h.users.List(c.Request.Context())
	if err != nil {
		handleServiceError(c, err)
		return
	}

	out := make([]UserWithAdminStatus, len(users))
	for i, user := range users {
		isAdmin, err := rbac.IsAdmin(user.Username)
		if err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to check admin status"})
			return
		}
		out[i] = UserWithAdminStatus{User: user, IsAdmin: isAdmin}
	}
	c.JSON(http.StatusOK, out)
}

// CreateUser godoc
// @Summary Create a new user (admin only)
// @Tags admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param user body CreateUserRequest true "User details"
// @Success 201 {object} models.User
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /admin/users [post]
func (h *AdminHandler) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	user, err := h.users.Create(c.Request.Context(), getUsername(c), req.Username, req.Password, req.IsAdmin)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

// CreateApplication godoc
// @Summary Register an application (admin only)
// @Tags admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param application body CreateApplicationRequest true "Application details"
// @Success 201 {object} service.ApplicationView
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /admin/applications [post]
func (h *AdminHandler) CreateApplication(c *gin.Context) {
	var req CreateApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	app, err := h.apps.Create(c.Request.Context(), getUsername(c), service.CreateApplicationRequest{
		Code:     req.Code,
		Name:     req.Name,
		Secret:   req.Secret,
		Managers: req.Managers,
	})
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, app)
}

// ListApplications godoc
// @Summary List applications with their managers (admin only)
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Success 200 {array} service.ApplicationView
// @Router /admin/applications [get]
func (h *AdminHandler) ListApplications(c *gin.Context) {
	apps, err := h.apps.List(c.Request.Context())
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, apps)
}

// AddManager godoc
// @Summary Make a user a manager of an application (admin only)
// @Tags admin
// @Security BearerAuth
// @Accept json
// @Param code path string true "Application code"
// @Param body body ManagerRequest true "Manager"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Router /admin/applications/{code}/managers [post]
func (h *AdminHandler) AddManager(c *gin.Context) {
	var req ManagerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	if err := h.apps.AddManager(c.Request.Context(), getUsername(c), c.Param("code"), req.Username); err != nil {
		handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RemoveManager godoc
// @Summary Revoke a user's manager rights on an application (admin only)
// @Tags admin
// @Security BearerAuth
// @Param code path string true "Application code"
// @Param username path string true "Username"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Router /admin/applications/{code}/managers/{username} [delete]
func (h *AdminHandler) RemoveManager(c *gin.Context) {
	if err := h.apps.RemoveManager(c.Request.Context(), getUsername(c), c.Param("code"), c.Param("username")); err != nil {
		handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListAuditLogs godoc
// @Summary List audit logs
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Param actor query string false "Filter by actor"
// @Param action query string false "Filter by action"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size (max 100)"
// @Success 200 {object} AuditLogPage
// @Router /admin/audit-logs [get]
func (h *AdminHandler) ListAuditLogs(c *gin.Context) {
	page, ok := parsePage(c)
	if !ok {
		return
	}

	logs, err := h.audit.List(c.Request.Context(), c.Query("actor"), c.Query("action"), page)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, logs)
}
