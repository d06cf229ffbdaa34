package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/keyward-dev/keyward/internal/service"
)

type ActionHandler struct {
	svc *service.CatalogService
}

func NewActionHandler(svc *service.CatalogService) *ActionHandler {
	return &ActionHandler{svc: svc}
}

// ListActions godoc
// @Summary List an application's actions
// @Tags actions
// @Security BearerAuth
// @Produce json
// @Param application_id query string true "Application code"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size (max 100)"
// @Success 200 {object} ActionPage
// @Failure 400 {object} ErrorResponse
// @Router /actions [get]
func (h *ActionHandler) ListActions(c *gin.Context) {
	application := c.Query("application_id")
	if application == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "application_id is required"})
		return
	}
	page, ok := parsePage(c)
	if !ok {
		return
	}

	result, err := h.svc.ListActions(c.Request.Context(), application, page)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListAllActions godoc
// @Summary List every action of an application
// @Tags actions
// @Security BearerAuth
// @Produce json
// @Param application_id query string true "Application code"
// @Success 200 {array} models.Action
// @Failure 400 {object} ErrorResponse
// @Router /actions/all [get]
func (h *ActionHandler) ListAllActions(c *gin.Context) {
	application := c.Query("application_id")
	if application == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "application_id is required"})
		return
	}

	actions, err := h.svc.ListAllActions(c.Request.Context(), application)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, actions)
}

// GetAction godoc
// @Summary Get an action by ID
// @Tags actions
// @Security BearerAuth
// @Produce json
// @Param id path string true "Action ID"
// @Success 200 {object} models.Action
// @Failure 404 {object} ErrorResponse
// @Router /actions/{id} [get]
func (h *ActionHandler) GetAction(c *gin.Context) {
	action, err := h.svc.GetAction(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, action)
}

// RegisterAction godoc
// @Summary Register an action (application managers only)
// @Tags actions
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param action body RegisterActionRequest true "Action details"
// @Success 201 {object} models.Action
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /actions [post]
func (h *ActionHandler) RegisterAction(c *gin.Context) {
	var req RegisterActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	action, err := h.svc.RegisterAction(c.Request.Context(), getUsername(c), service.RegisterActionRequest{
		Application:  req.Application,
		ActionID:     req.ActionID,
		ActionName:   req.ActionName,
		ResourceID:   req.ResourceID,
		ResourceName: req.ResourceName,
		Description:  req.Description,
	})
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, action)
}

// UpdateAction godoc
// @Summary Update an action (application managers only)
// @Tags actions
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Action ID"
// @Param action body UpdateActionRequest true "Fields to change"
// @Success 200 {object} models.Action
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /actions/{id} [patch]
func (h *ActionHandler) UpdateAction(c *gin.Context) {
	var req UpdateActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	action, err := h.svc.UpdateAction(c.Request.Context(), getUsername(c), c.Param("id"), service.UpdateActionRequest{
		ActionName:   req.ActionName,
		ResourceID:   req.ResourceID,
		ResourceName: req.ResourceName,
		Description:  req.Description,
	})
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, action)
}

// DeleteAction godoc
// @Summary Delete an action and every permission on it (application managers only)
// @Tags actions
// @Security BearerAuth
// @Param id path string true "Action ID"
// @Success 204
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /actions/{id} [delete]
func (h *ActionHandler) DeleteAction(c *gin.Context) {
	if err := h.svc.DeleteAction(c.Request.Context(), getUsername(c), c.Param("id")); err != nil {
		handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
