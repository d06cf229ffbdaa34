package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/keyward-dev/keyward/internal/auth"
	"github.com/keyward-dev/keyward/internal/service"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthCheck godoc
// @Summary Health check
// @Tags system
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// RegisterValidators adds the "ident" tag to gin's validator engine.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("gin validator engine is not go-playground/validator")
	}
	return v.RegisterValidation("ident", func(fl validator.FieldLevel) bool {
		return service.IsIdentifier(fl.Field().String())
	})
}

// handleServiceError maps service-layer errors to HTTP status codes.
func handleServiceError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Not found"})
		return
	}
	var validationErr *service.ValidationError
	if errors.As(err, &validationErr) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: validationErr.Message})
		return
	}
	var conflictErr *service.ConflictError
	if errors.As(err, &conflictErr) {
		c.JSON(http.StatusConflict, ErrorResponse{Error: conflictErr.Message})
		return
	}
	var deniedErr *service.PermissionDeniedError
	if errors.As(err, &deniedErr) {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: deniedErr.Message})
		return
	}
	var stateErr *service.InvalidStateError
	if errors.As(err, &stateErr) {
		c.JSON(http.StatusConflict, ErrorResponse{Error: stateErr.Message})
		return
	}
	slog.Error("unhandled service error", "error", err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"})
}

// parsePage reads the page and page_size query parameters.
func parsePage(c *gin.Context) (service.PageRequest, bool) {
	var req service.PageRequest
	for name, dst := range map[string]*int{"page": &req.Page, "page_size": &req.PageSize} {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: name + " must be a positive integer"})
			return req, false
		}
		*dst = n
	}
	return req, true
}

// currentPrincipal returns the caller resolved by the auth middleware.
func currentPrincipal(c *gin.Context) *auth.Principal {
	principal, err := auth.PrincipalFromContext(c)
	if err != nil {
		return &auth.Principal{}
	}
	return principal
}

func getUsername(c *gin.Context) string {
	return currentPrincipal(c).Username()
}

func getAppCode(c *gin.Context) string {
	return currentPrincipal(c).AppCode()
}
