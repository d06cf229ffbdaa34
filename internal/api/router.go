package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/keyward-dev/keyward/internal/api/handlers"
	"github.com/keyward-dev/keyward/internal/api/middleware"
	"github.com/keyward-dev/keyward/internal/auth"
	"github.com/keyward-dev/keyward/internal/cache"
	"github.com/keyward-dev/keyward/internal/check"
	"github.com/keyward-dev/keyward/internal/config"
	"github.com/keyward-dev/keyward/internal/rbac"
	"github.com/keyward-dev/keyward/internal/service"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"
)

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, db *gorm.DB, snapshotCache cache.Cache) *gin.Engine {
	// Set Gin mode
	if cfg.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := handlers.RegisterValidators(); err != nil {
		slog.Error("Failed to register request validators", "error", err)
	}

	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(loggingMiddleware())
	router.Use(corsMiddleware())

	authenticator := auth.NewBasicAuthenticator(db, cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenTTLHours)*time.Hour)

	// Services
	managers := rbac.Managers{}
	catalogSvc := service.NewCatalogService(db, managers, snapshotCache)
	permissionSvc := service.NewPermissionService(db, managers, snapshotCache)
	engine := check.NewEngine(db, snapshotCache)

	// Handlers
	actionHandler := handlers.NewActionHandler(catalogSvc)
	instanceHandler := handlers.NewInstanceHandler(catalogSvc)
	permissionHandler := handlers.NewPermissionHandler(permissionSvc, engine)
	appHandler := handlers.NewAppHandler(permissionSvc, engine)
	adminHandler := handlers.NewAdminHandler(service.NewApplicationService(db), service.NewUserService(db), service.NewAuditService(db))
	infoHandler := handlers.NewInfoHandler(db, cfg.Database.Driver, cfg.Cache.Type)

	// Public routes
	public := router.Group("/api/v1")
	{
		public.GET("/health", handlers.HealthCheck)
		public.GET("/version", handlers.GetVersion)
		public.GET("/info", infoHandler.GetInfo)
		public.POST("/auth/login", handlers.Login(authenticator))
	}

	// Protected routes (require authentication)
	protected := router.Group("/api/v1")
	protected.Use(authenticator.Middleware())

	// User routes
	user := protected.Group("")
	user.Use(middleware.RequireUser())
	{
		user.GET("/auth/me", handlers.GetCurrentUser(authenticator))

		user.GET("/actions", actionHandler.ListActions)
		user.GET("/actions/all", actionHandler.ListAllActions)
		user.GET("/actions/:id", actionHandler.GetAction)
		user.POST("/actions", actionHandler.RegisterAction)
		user.PATCH("/actions/:id", actionHandler.UpdateAction)
		user.DELETE("/actions/:id", actionHandler.DeleteAction)

		user.GET("/instances", instanceHandler.ListInstances)
		user.GET("/instances/all", instanceHandler.ListAllInstances)

		user.GET("/permissions", permissionHandler.ListMine)
		user.POST("/permissions", permissionHandler.Apply)
		user.POST("/permissions/check", permissionHandler.Check)
		user.PATCH("/permissions/:id", permissionHandler.Update)
		user.DELETE("/permissions/:id", permissionHandler.Delete)

		user.GET("/manage/permissions", permissionHandler.ListForManager)
		user.POST("/manage/permissions/:id/decision", permissionHandler.Decide)
	}

	// Application routes
	app := protected.Group("/app")
	app.Use(middleware.RequireApplication())
	{
		app.POST("/instances/bulk", instanceHandler.RegisterInstances)
		app.PATCH("/instances/:id", instanceHandler.UpdateInstance)
		app.DELETE("/instances/:id", instanceHandler.DeleteInstance)
		app.POST("/check", appHandler.Check)
		app.POST("/grants", appHandler.Grant)
	}

	// Admin routes
	admin := protected.Group("/admin")
	admin.Use(middleware.RequireAdmin())
	{
		admin.GET("/users", adminHandler.ListUsers)
		admin.POST("/users", adminHandler.CreateUser)
		admin.GET("/applications", adminHandler.ListApplications)
		admin.POST("/applications", adminHandler.CreateApplication)
		admin.POST("/applications/:code/managers", adminHandler.AddManager)
		admin.DELETE("/applications/:code/managers/:username", adminHandler.RemoveManager)
		admin.GET("/audit-logs", adminHandler.ListAuditLogs)
	}

	if cfg.Metrics.Enabled {
		router.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	// Swagger documentation
	router.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	slog.Info("API router initialized", "mode", cfg.Server.Mode, "cache", cfg.Cache.Type)
	return router
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		slog.Info("HTTP request",
			"method", method,
			"path", path,
			"status", status,
			"latency", latency.String(),
			"ip", c.ClientIP(),
		)
	}
}

// corsMiddleware adds CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-App-Code, X-App-Secret")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
