package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/keyward-dev/keyward/internal/service"
)

type InstanceHandler struct {
	svc *service.CatalogService
}

func NewInstanceHandler(svc *service.CatalogService) *InstanceHandler {
	return &InstanceHandler{svc: svc}
}

// ListInstances godoc
// @Summary List the instances an action can be granted on
// @Tags instances
// @Security BearerAuth
// @Produce json
// @Param action_id query string true "Action ID"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size (max 100)"
// @Success 200 {object} InstancePage
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /instances [get]
func (h *InstanceHandler) ListInstances(c *gin.Context) {
	page, ok := parsePage(c)
	if !ok {
		return
	}
	result, err := h.svc.ListInstances(c.Request.Context(), c.Query("action_id"), page)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListAllInstances godoc
// @Summary List every instance an action can be granted on
// @Tags instances
// @Security BearerAuth
// @Produce json
// @Param action_id query string true "Action ID"
// @Success 200 {array} InstanceSummary
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /instances/all [get]
func (h *InstanceHandler) ListAllInstances(c *gin.Context) {
	instances, err := h.svc.ListAllInstances(c.Request.Context(), c.Query("action_id"))
	if err != nil {
		handleServiceError(c, err)
		return
	}

	out := make([]InstanceSummary, 0, len(instances))
	for _, inst := range instances {
		out = append(out, InstanceSummary{ID: inst.ID.String(), InstanceID: inst.InstanceID, InstanceName: inst.InstanceName})
	}
	c.JSON(http.StatusOK, out)
}

// RegisterInstances godoc
// @Summary Bulk upsert instances under an action (application credentials)
// @Tags app
// @Security AppCode
// @Security AppSecret
// @Accept json
// @Produce json
// @Param body body RegisterInstancesRequest true "Instances"
// @Success 200 {array} models.Instance
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /app/instances/bulk [post]
func (h *InstanceHandler) RegisterInstances(c *gin.Context) {
	var req RegisterInstancesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	rows := make([]service.InstanceInput, 0, len(req.Instances))
	for _, r := range req.Instances {
		rows = append(rows, service.InstanceInput{ID: r.ID, InstanceID: r.InstanceID, InstanceName: r.InstanceName})
	}

	instances, err := h.svc.RegisterInstances(c.Request.Context(), getAppCode(c), req.ActionID, rows)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, instances)
}

// UpdateInstance godoc
// @Summary Rename an instance (application credentials)
// @Tags app
// @Security AppCode
// @Security AppSecret
// @Accept json
// @Produce json
// @Param id path string true "Instance ID"
// @Param body body UpdateInstanceRequest true "New name"
// @Success 200 {object} models.Instance
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /app/instances/{id} [patch]
func (h *InstanceHandler) UpdateInstance(c *gin.Context) {
	var req UpdateInstanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	inst, err := h.svc.UpdateInstance(c.Request.Context(), getAppCode(c), c.Param("id"), req.InstanceName)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, inst)
}

// DeleteInstance godoc
// @Summary Delete an instance (application credentials)
// @Tags app
// @Security AppCode
// @Security AppSecret
// @Param id path string true "Instance ID"
// @Success 204
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /app/instances/{id} [delete]
func (h *InstanceHandler) DeleteInstance(c *gin.Context) {
	if err := h.svc.DeleteInstance(c.Request.Context(), getAppCode(c), c.Param("id")); err != nil {
		handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
