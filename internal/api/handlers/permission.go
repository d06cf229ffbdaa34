package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/keyward-dev/keyward/internal/check"
	"github.com/keyward-dev/keyward/internal/models"
	"github.com/keyward-dev/keyward/internal/service"
)

type PermissionHandler struct {
	svc    *service.PermissionService
	engine *check.Engine
}

func NewPermissionHandler(svc *service.PermissionService, engine *check.Engine) *PermissionHandler {
	return &PermissionHandler{svc: svc, engine: engine}
}

// ListMine godoc
// @Summary List the caller's permission records for an application
// @Tags permissions
// @Security BearerAuth
// @Produce json
// @Param application_id query string true "Application code"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size (max 100)"
// @Success 200 {object} PermissionPage
// @Failure 400 {object} ErrorResponse
// @Router /permissions [get]
func (h *PermissionHandler) ListMine(c *gin.Context) {
	application := c.Query("application_id")
	if application == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "application_id is required"})
		return
	}
	page, ok := parsePage(c)
	if !ok {
		return
	}

	result, err := h.svc.ListMine(c.Request.Context(), getUsername(c), application, page)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Apply godoc
// @Summary Apply for a permission
// @Description Unknown instance ids are dropped. Re-applying overwrites the pending request.
// @Tags permissions
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param body body ApplyRequest true "Requested permission"
// @Success 201 {object} models.UserPermission
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /permissions [post]
func (h *PermissionHandler) Apply(c *gin.Context) {
	var req ApplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	p, err := h.svc.Apply(c.Request.Context(), getUsername(c), service.ApplyRequest{
		ActionID:     req.ActionID,
		Instances:    req.Instances,
		AllInstances: req.AllInstances,
	})
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// Update godoc
// @Summary Change a permission request and resubmit it
// @Tags permissions
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Permission ID"
// @Param body body UpdatePermissionRequest true "Fields to change"
// @Success 200 {object} models.UserPermission
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /permissions/{id} [patch]
func (h *PermissionHandler) Update(c *gin.Context) {
	var req UpdatePermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	p, err := h.svc.Update(c.Request.Context(), getUsername(c), c.Param("id"), service.UpdatePermissionRequest{
		Instances:    req.Instances,
		AllInstances: req.AllInstances,
	})
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// Delete godoc
// @Summary Withdraw a permission record
// @Tags permissions
// @Security BearerAuth
// @Param id path string true "Permission ID"
// @Success 204
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /permissions/{id} [delete]
func (h *PermissionHandler) Delete(c *gin.Context) {
	if err := h.svc.SelfDelete(c.Request.Context(), getUsername(c), c.Param("id")); err != nil {
		handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Check godoc
// @Summary Check the caller's permissions
// @Tags permissions
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param body body CheckRequest true "Items to check"
// @Success 200 {array} check.Result
// @Failure 400 {object} ErrorResponse
// @Router /permissions/check [post]
func (h *PermissionHandler) Check(c *gin.Context) {
	var req CheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	results, err := h.engine.Check(c.Request.Context(), "self", getUsername(c), req.Items)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

// ListForManager godoc
// @Summary List permission records of a managed application
// @Description Pending requests come first.
// @Tags manage
// @Security BearerAuth
// @Produce json
// @Param application_id query string true "Application code"
// @Param status query string false "dealing or allowed"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size (max 100)"
// @Success 200 {object} PermissionPage
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /manage/permissions [get]
func (h *PermissionHandler) ListForManager(c *gin.Context) {
	application := c.Query("application_id")
	if application == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "application_id is required"})
		return
	}
	page, ok := parsePage(c)
	if !ok {
		return
	}

	result, err := h.svc.ListForManager(c.Request.Context(), getUsername(c), application, models.PermissionStatus(c.Query("status")), page)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Decide godoc
// @Summary Allow or deny a pending permission request
// @Tags manage
// @Security BearerAuth
// @Accept json
// @Param id path string true "Permission ID"
// @Param body body DecisionRequest true "Decision"
// @Success 204
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /manage/permissions/{id}/decision [post]
func (h *PermissionHandler) Decide(c *gin.Context) {
	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	if err := h.svc.Decide(c.Request.Context(), getUsername(c), c.Param("id"), models.PermissionStatus(req.Decision)); err != nil {
		handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
