package auth

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/keyward-dev/keyward/internal/models"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
)

const (
	// UserContextKey is the key used to store the authenticated user in Gin context
	UserContextKey = "user"
	// PrincipalContextKey is the key used to store the resolved Principal in Gin context
	PrincipalContextKey = "principal"

	// AppCodeHeader and AppSecretHeader carry application credentials.
	AppCodeHeader   = "X-App-Code"
	AppSecretHeader = "X-App-Secret"
)

// PrincipalKind distinguishes human users from calling applications.
type PrincipalKind string

const (
	PrincipalUser        PrincipalKind = "user"
	PrincipalApplication PrincipalKind = "application"
)

// Principal is the authenticated caller of a request.
// Exactly one of User and Application is set, matching Kind.
type Principal struct {
	Kind        PrincipalKind
	User        *models.User
	Application *models.Application
}

// Username returns the user's name, or "" for application principals.
func (p *Principal) Username() string {
	if p == nil || p.User == nil {
		return ""
	}
	return p.User.Username
}

// AppCode returns the application code, or "" for user principals.
func (p *Principal) AppCode() string {
	if p == nil || p.Application == nil {
		return ""
	}
	return p.Application.Code
}

// Actor formats the principal for audit records.
func (p *Principal) Actor() string {
	if p.Kind == PrincipalApplication {
		return "app:" + p.AppCode()
	}
	return p.Username()
}

// LoginRequest represents a login request
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse represents a login response
type LoginResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// Authenticator is an interface for authentication providers
type Authenticator interface {
	// Login authenticates a user and returns a JWT token
	Login(username, password string) (*LoginResponse, error)

	// Middleware returns a Gin middleware resolving the request's Principal
	Middleware() gin.HandlerFunc

	// GetPrincipal extracts the resolved Principal from the Gin context
	GetPrincipal(c *gin.Context) (*Principal, error)
}

// PrincipalFromContext returns the Principal stored by an authenticator middleware.
func PrincipalFromContext(c *gin.Context) (*Principal, error) {
	value, exists := c.Get(PrincipalContextKey)
	if !exists {
		return nil, ErrUnauthorized
	}

	principal, ok := value.(*Principal)
	if !ok {
		return nil, errors.New("invalid principal in context")
	}
	return principal, nil
}
