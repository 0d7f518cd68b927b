// Package api wires together all HTTP routes for the plugin marketplace.
//
// Route grouping philosophy:
//   - Discovery routes (/marketplace.json, /plugins, plugin detail, downloads)
//     are intentionally unauthenticated so installer clients can resolve and
//     fetch plugins without credentials.
//   - Mutating routes (upload, mine, visibility changes) always require the
//     author API token.
package api

import (
	"database/sql"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/plugin-marketplace/plugin-marketplace/internal/api/plugins"
	"github.com/plugin-marketplace/plugin-marketplace/internal/config"
	"github.com/plugin-marketplace/plugin-marketplace/internal/db/repositories"
	"github.com/plugin-marketplace/plugin-marketplace/internal/marketplace"
	"github.com/plugin-marketplace/plugin-marketplace/internal/middleware"
	"github.com/plugin-marketplace/plugin-marketplace/internal/services"
	"github.com/plugin-marketplace/plugin-marketplace/internal/storage"

	// Import storage backends to register them
	_ "github.com/plugin-marketplace/plugin-marketplace/internal/storage/local"
)

// BackgroundServices holds resources that must be stopped during graceful
// shutdown. The caller (cmd/server) calls Shutdown() when the process receives
// a termination signal.
type BackgroundServices struct {
	rateLimiters []*middleware.RateLimiter
}

// Shutdown stops all background goroutines. It should be called after the HTTP
// server has been shut down so that in-flight requests are drained first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, db *sql.DB) (*gin.Engine, *BackgroundServices) {
	router := gin.New()

	// Initialize storage backend
	store, err := storage.NewStorage(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage backend: %v", err)
	}
	slog.Info("initialized storage backend", "backend", cfg.Storage.DefaultBackend)

	// Initialize repositories and services
	userRepo := repositories.NewUserRepository(sqlx.NewDb(db, "sqlite3"))
	pluginRepo := repositories.NewPluginRepository(db)
	indexBuilder := marketplace.NewBuilder(pluginRepo, store, cfg)
	publisher := services.NewPublisher(pluginRepo, store, indexBuilder)

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.LoggerMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))

	// System endpoints
	router.GET("/health", healthCheckHandler(db))
	router.GET("/ready", readinessHandler(db, store))
	router.GET("/version", versionHandler())

	// Release index for installer clients
	router.GET("/"+cfg.Registry.IndexFilename, plugins.IndexHandler(store, indexBuilder, cfg))

	// Public discovery routes
	router.GET("/plugins", plugins.ListHandler(pluginRepo))
	router.GET("/plugins/:author/:plugin", plugins.DetailHandler(pluginRepo, cfg))
	router.GET("/plugins/:author/:plugin/download/:version", plugins.DownloadHandler(pluginRepo, store))

	// Authenticated author routes
	uploadLimiter := middleware.NewRateLimiter(middleware.UploadRateLimitConfig())
	authed := router.Group("/plugins")
	authed.Use(middleware.TokenAuthMiddleware(userRepo, cfg.Auth.TokenHeader))
	{
		authed.POST("/upload",
			middleware.RateLimitMiddleware(uploadLimiter),
			plugins.UploadHandler(publisher, cfg))
		authed.GET("/mine", plugins.MineHandler(pluginRepo))
		authed.POST("/:author/:plugin/unpublish", plugins.UnpublishHandler(pluginRepo, publisher))
		authed.POST("/:author/:plugin/republish", plugins.RepublishHandler(pluginRepo, publisher))
	}

	bg := &BackgroundServices{
		rateLimiters: []*middleware.RateLimiter{uploadLimiter},
	}

	return router, bg
}

// @Summary      Health check
// @Description  Returns the health status of the service, including database connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy, error: database connection failed"
// @Router       /health [get]
// healthCheckHandler returns the health status of the service
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      Readiness check
// @Description  Returns whether the service is ready to accept traffic. Checks database and storage backend.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "ready: true, checks, time"
// @Failure      503  {object}  map[string]interface{}  "ready: false, checks, error"
// @Router       /ready [get]
// readinessHandler returns the readiness status of the service.
// Unlike the liveness probe (/health), this also checks the storage backend so
// that a readiness gate fails when uploads/downloads would error.
func readinessHandler(db *sql.DB, store storage.Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		if err := db.Ping(); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		// Probe with a known-absent sentinel path. Exists() exercises the
		// backend without creating any state.
		if _, err := store.Exists(c.Request.Context(), ".readiness-probe"); err != nil {
			checks["storage"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "storage backend not ready",
			})
			return
		}
		checks["storage"] = "healthy"

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      API version
// @Description  Returns the current API version.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "version, api_version"
// @Router       /version [get]
// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     "0.1.0",
			"api_version": "v1",
		})
	}
}
