// Package api wires together all HTTP routes for the inventory backend.
//
// Route grouping philosophy:
//   - /health, /ready, and /version are unauthenticated so load balancers and
//     orchestrators can probe them without credentials.
//   - /api/auth/login is unauthenticated but carries the strictest rate limits,
//     per client IP at the route level and per target account inside the
//     handler.
//   - Everything else under /api requires a valid JWT. The audit trail is
//     readable by AUDITOR and ADMIN; reverts are ADMIN only; inventory is open
//     to every authenticated role.
package api

import (
	"database/sql"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	adminapi "github.com/medtrack/inventory-backend/internal/api/admin"
	auditapi "github.com/medtrack/inventory-backend/internal/api/audit"
	authapi "github.com/medtrack/inventory-backend/internal/api/auth"
	inventoryapi "github.com/medtrack/inventory-backend/internal/api/inventory"
	auditcore "github.com/medtrack/inventory-backend/internal/audit"
	"github.com/medtrack/inventory-backend/internal/config"
	"github.com/medtrack/inventory-backend/internal/crypto"
	"github.com/medtrack/inventory-backend/internal/db/models"
	"github.com/medtrack/inventory-backend/internal/db/repositories"
	"github.com/medtrack/inventory-backend/internal/middleware"
)

// BackgroundServices holds goroutine-owning resources that must be stopped
// during graceful shutdown. The caller (cmd/server) calls Shutdown after the
// HTTP server has drained in-flight requests.
type BackgroundServices struct {
	limiters    []middleware.Limiter
	redisClient *redis.Client
}

// Shutdown stops all limiter goroutines and closes the Redis connection if one
// was opened.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	for _, l := range bg.limiters {
		l.Stop()
	}
	if bg.redisClient != nil {
		if err := bg.redisClient.Close(); err != nil {
			slog.Warn("failed to close redis client", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// newLimiter builds a limiter for one profile on the configured backend.
func newLimiter(cfg *config.Config, bg *BackgroundServices, profile middleware.RateLimitProfile) middleware.Limiter {
	var limiter middleware.Limiter
	if cfg.RateLimit.Backend == "redis" {
		if bg.redisClient == nil {
			bg.redisClient = redis.NewClient(&redis.Options{
				Addr:     cfg.RateLimit.RedisAddr,
				Password: cfg.RateLimit.RedisPassword,
			})
		}
		limiter = middleware.NewRedisLimiter(profile, bg.redisClient)
	} else {
		limiter = middleware.NewSlidingWindowLimiter(profile)
	}
	bg.limiters = append(bg.limiters, limiter)
	return limiter
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, db *sql.DB) (*gin.Engine, *BackgroundServices) {
	router := gin.New()
	bg := &BackgroundServices{}

	// Repositories. Users ride on sqlx for struct scanning; the audit and
	// inventory repositories build dynamic filter queries and stay on
	// database/sql directly.
	sqlxDB := sqlx.NewDb(db, "postgres")
	userRepo := repositories.NewUserRepository(sqlxDB)
	auditRepo := repositories.NewAuditRepository(db)
	itemRepo := repositories.NewInventoryRepository(db)

	// Audit subsystem.
	recorder := auditcore.NewRecorder(auditRepo, cfg.Audit.WriteTimeout)
	engine := auditcore.NewEngine(auditRepo, itemRepo)

	var cipher *crypto.ExportCipher
	if passphrase := cfg.Security.EncryptionPassphrase(); passphrase != "" {
		var err error
		cipher, err = crypto.DeriveExportCipher(passphrase, []byte(cfg.Security.EncryptionSalt), cfg.Security.PBKDF2Iters)
		if err != nil {
			log.Fatalf("Failed to initialize export cipher: %v", err)
		}
		slog.Info("encrypted exports enabled")
	} else {
		slog.Info("ENCRYPTION_KEY not set, encrypted exports disabled")
	}
	exporter := auditcore.NewExporter(auditRepo, recorder, cipher, cfg.Audit.ExportMaxRows)

	// Rate limiters. The API limiter covers every /api route; the login
	// limiters are stacked on top for the credential-guessing surface.
	apiLimiter := newLimiter(cfg, bg, middleware.APILimitProfile(cfg.RateLimit.APIRequestsPerMinute))
	loginLimiter := newLimiter(cfg, bg, middleware.LoginLimitProfile(cfg.RateLimit.LoginMaxAttempts, cfg.RateLimit.LoginWindow))
	emailLimiter := newLimiter(cfg, bg, middleware.EmailLimitProfile(cfg.RateLimit.EmailMaxAttempts, cfg.RateLimit.EmailWindow))

	// Handlers.
	auditHandlers := auditapi.NewHandlers(auditRepo, exporter, engine)
	authHandlers := authapi.NewHandlers(userRepo, recorder, emailLimiter, cfg.Auth.TokenExpiry)
	itemHandlers := inventoryapi.NewHandlers(itemRepo, recorder)
	adminHandlers := adminapi.NewHandlers(userRepo)

	// Global middleware. Order matters: recovery outermost so panics anywhere
	// below still produce a clean 500, then request identity, metrics and
	// logging, then the security headers every response carries.
	router.Use(middleware.RecoveryMiddleware())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))

	// Probes.
	router.GET("/health", healthCheckHandler(db))
	router.GET("/ready", readinessHandler(db))
	router.GET("/version", versionHandler())

	// Login: unauthenticated, double rate limited (per IP here, per account in
	// the handler).
	login := router.Group("/api/auth")
	login.Use(middleware.RateLimitMiddleware(loginLimiter, middleware.IPKey))
	{
		login.POST("/login", authHandlers.LoginHandler())
	}

	// Authenticated API surface.
	apiGroup := router.Group("/api")
	apiGroup.Use(middleware.RateLimitMiddleware(apiLimiter, middleware.SessionOrIPKey))
	apiGroup.Use(middleware.AuthMiddleware(userRepo))
	{
		apiGroup.POST("/auth/logout", authHandlers.LogoutHandler())

		audit := apiGroup.Group("/audit")
		audit.Use(middleware.RequireRole(models.RoleAuditor, models.RoleAdmin))
		{
			audit.GET("/logs", auditHandlers.ListLogsHandler())
			audit.GET("/details/:id", auditHandlers.GetDetailsHandler())
			audit.GET("/stats", auditHandlers.GetStatsHandler())
			audit.POST("/export", auditHandlers.ExportHandler())
			audit.POST("/revert",
				middleware.RequireRole(models.RoleAdmin),
				auditHandlers.RevertHandler())
		}

		items := apiGroup.Group("/inventory/items")
		{
			items.GET("", itemHandlers.ListItemsHandler())
			items.GET("/:id", itemHandlers.GetItemHandler())
			items.POST("", itemHandlers.CreateItemHandler())
			items.PUT("/:id", itemHandlers.UpdateItemHandler())
			items.DELETE("/:id", itemHandlers.DeleteItemHandler())
		}

		apiGroup.GET("/users",
			middleware.RequireRole(models.RoleAuditor, models.RoleAdmin),
			adminHandlers.ListUsersHandler())
	}

	return router, bg
}

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

func readinessHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		if err := db.PingContext(c.Request.Context()); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
		})
	}
}

func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     Version,
			"api_version": "v1",
		})
	}
}

// Version is the release version reported by /version and the version command.
const Version = "0.1.0"
