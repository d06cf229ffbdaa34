package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/keyward-dev/keyward/internal/auth"
	"github.com/keyward-dev/keyward/internal/metrics"
)

// Login godoc
// @Summary User login
// @Description Exchanges a username and password for a bearer token. Applications authenticate per request with X-App-Code and X-App-Secret instead.
// @Tags auth
// @Accept json
// @Produce json
// @Param credentials body auth.LoginRequest true "Login credentials"
// @Success 200 {object} auth.LoginResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /auth/login [post]
func Login(authenticator auth.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req auth.LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			metrics.Logins.WithLabelValues("malformed").Inc()
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "username and password are required"})
			return
		}

		resp, err := authenticator.Login(req.Username, req.Password)
		switch {
		case err == nil:
			metrics.Logins.WithLabelValues("success").Inc()
			c.JSON(http.StatusOK, resp)
		case errors.Is(err, auth.ErrInvalidCredentials):
			metrics.Logins.WithLabelValues("rejected").Inc()
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials"})
		default:
			metrics.Logins.WithLabelValues("error").Inc()
			slog.Error("Login failed", "username", req.Username, "error", err)
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		}
	}
}
