// Package api wires together all HTTP routes for the DPC admin panel.
//
// Route grouping:
//   - /health, /ready and /version are unauthenticated probes.
//   - /internal/auth handles staff single sign-on and is rate limited more strictly.
//   - Every other /internal route requires a staff session and is audited.
package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/dpc-platform/dpc-admin/internal/api/admin"
	"github.com/dpc-platform/dpc-admin/internal/audit"
	"github.com/dpc-platform/dpc-admin/internal/auth/oidc"
	"github.com/dpc-platform/dpc-admin/internal/config"
	"github.com/dpc-platform/dpc-admin/internal/db/repositories"
	"github.com/dpc-platform/dpc-admin/internal/events"
	"github.com/dpc-platform/dpc-admin/internal/export"
	"github.com/dpc-platform/dpc-admin/internal/jobs"
	"github.com/dpc-platform/dpc-admin/internal/middleware"
	"github.com/dpc-platform/dpc-admin/internal/services"
	"github.com/dpc-platform/dpc-admin/internal/storage"
	"github.com/dpc-platform/dpc-admin/internal/telemetry"

	// Import storage backends to register them
	_ "github.com/dpc-platform/dpc-admin/internal/storage/azure"
	_ "github.com/dpc-platform/dpc-admin/internal/storage/gcs"
	_ "github.com/dpc-platform/dpc-admin/internal/storage/local"
	_ "github.com/dpc-platform/dpc-admin/internal/storage/s3"
)

// Version is reported by /version. cmd/server overrides it at build time.
var Version = "dev"

// Login attempts get a tighter budget than panel traffic.
const (
	authRequestsPerMinute = 20
	authBurst             = 5
)

// readinessProbePath is looked up in the archive store by /ready; a missing object
// still proves the store is reachable.
const readinessProbePath = ".readiness-probe"

// BackgroundServices holds references to background jobs and resources that must
// be stopped during graceful shutdown. The caller (cmd/server) is responsible for
// calling Shutdown() when the process receives a termination signal.
type BackgroundServices struct {
	exportJob    *jobs.UserExportJob
	rateLimiters []middleware.Limiter
	publisher    events.Publisher
	shipper      audit.Shipper
	directory    *services.UserDirectory
	cancel       context.CancelFunc
}

// Reload applies the hot-reloadable settings of next
func (bg *BackgroundServices) Reload(next *config.Config) {
	telemetry.SetLevel(next.Logging.Level)
	if bg.directory != nil {
		bg.directory.SetPerPage(next.Directory.PerPage)
	}
}

// Shutdown stops all background goroutines. It should be called after the HTTP
// server has been shut down so that in-flight requests are drained first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.cancel != nil {
		bg.cancel()
	}
	if bg.exportJob != nil {
		bg.exportJob.Stop()
	}
	for _, rl := range bg.rateLimiters {
		if err := rl.Close(); err != nil {
			slog.Warn("failed to close rate limiter", "backend", rl.Backend(), "error", err)
		}
	}
	if bg.publisher != nil {
		if err := bg.publisher.Close(); err != nil {
			slog.Warn("failed to close event publisher", "error", err)
		}
	}
	if bg.shipper != nil {
		if err := bg.shipper.Close(); err != nil {
			slog.Warn("failed to close audit shippers", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// NewArchiver builds the export archiver and its store from cfg.Exports. It returns
// nil when archiving is disabled.
func NewArchiver(cfg *config.Config) (*export.Archiver, storage.Storage, error) {
	if !cfg.Exports.ArchiveEnabled {
		return nil, nil, nil
	}

	store, err := storage.NewStorage(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize storage backend: %w", err)
	}

	var signer *export.Signer
	if cfg.Exports.SigningKeyFile != "" {
		signer, err = export.LoadSigner(cfg.Exports.SigningKeyFile, cfg.Exports.SigningKeyPassphrase)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load export signing key: %w", err)
		}
		slog.Info("export signing enabled", "key_id", signer.KeyID())
	}

	slog.Info("initialized export storage backend", "backend", cfg.Storage.DefaultBackend)
	return export.NewArchiver(store, cfg.Exports.Prefix, signer), store, nil
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, db *sql.DB) (*gin.Engine, *BackgroundServices, error) {
	router := gin.New()
	bgCtx, cancel := context.WithCancel(context.Background())
	bg := &BackgroundServices{cancel: cancel}

	fail := func(err error) (*gin.Engine, *BackgroundServices, error) {
		bg.Shutdown()
		return nil, nil, err
	}

	archiver, store, err := NewArchiver(cfg)
	if err != nil {
		return fail(err)
	}

	publisher, err := events.New(&cfg.Events)
	if err != nil {
		return fail(fmt.Errorf("failed to initialize event publisher: %w", err))
	}
	bg.publisher = publisher

	// Initialize repositories
	sqlxDB := sqlx.NewDb(db, "postgres")
	orgRepo := repositories.NewOrganizationRepository(db)
	auditRepo := repositories.NewAuditRepository(db)
	registrationRepo := repositories.NewRegisteredOrganizationRepository(sqlxDB)
	userRepo := repositories.NewUserRepository(sqlxDB)
	staffRepo := repositories.NewInternalUserRepository(sqlxDB)

	// Initialize workflows
	workflow := services.NewRegistrationWorkflow(orgRepo, registrationRepo, cfg, publisher)
	directory := services.NewUserDirectory(userRepo, orgRepo, cfg.Directory.PerPage, archiver)
	bg.directory = directory

	if archiver != nil {
		bg.exportJob = jobs.NewUserExportJob(userRepo, archiver, &cfg.Exports)
		go bg.exportJob.Start(bgCtx)
	}

	var shipper audit.Shipper
	if cfg.Audit.Enabled {
		ms, err := audit.NewMultiShipper(cfg.Audit.Shippers)
		if err != nil {
			return fail(fmt.Errorf("failed to initialize audit shippers: %w", err))
		}
		if ms.Len() > 0 {
			shipper = ms
			bg.shipper = ms
		}
	}

	var provider admin.Authenticator
	if cfg.Auth.OIDC.Enabled {
		p, err := oidc.NewOIDCProvider(bgCtx, &cfg.Auth.OIDC)
		if err != nil {
			// The panel still starts so probes succeed; login answers 503.
			slog.Error("failed to initialize OIDC provider", "issuer", cfg.Auth.OIDC.IssuerURL, "error", err)
		} else {
			provider = p
		}
	}

	var authLimiter, internalLimiter middleware.Limiter
	if cfg.Security.RateLimiting.Enabled {
		if internalLimiter, err = middleware.NewLimiter(cfg.Security.RateLimiting, 0, 0); err != nil {
			return fail(err)
		}
		bg.rateLimiters = append(bg.rateLimiters, internalLimiter)
		if authLimiter, err = middleware.NewLimiter(cfg.Security.RateLimiting, authRequestsPerMinute, authBurst); err != nil {
			return fail(err)
		}
		bg.rateLimiters = append(bg.rateLimiters, authLimiter)
	}

	cookies := admin.Cookies{Secure: cfg.Auth.JWT.CookieSecure}
	authHandlers := admin.NewAuthHandlers(provider, staffRepo, cfg.Auth.JWT.SessionTTL, cookies)
	orgHandlers := admin.NewOrganizationHandlers(orgRepo, registrationRepo, directory.PerPage, cookies)
	registrationHandlers := admin.NewRegistrationHandlers(workflow, cookies)
	userHandlers := admin.NewUserHandlers(directory, cookies)
	auditLogHandlers := admin.NewAuditLogHandlers(auditRepo)

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.LoggerMiddleware("/health", "/ready"))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.PanelSecurityHeadersConfig(cfg.Security)))
	router.Use(middleware.CORSMiddleware(cfg.Security.CORS))

	router.GET("/health", healthCheckHandler(db))
	router.GET("/ready", readinessHandler(db, store))
	router.GET("/version", versionHandler())

	var auditMW gin.HandlerFunc
	if cfg.Audit.Enabled {
		auditMW = middleware.AuditMiddleware(auditRepo, shipper, &cfg.Audit)
	}
	use := func(g *gin.RouterGroup, limiter middleware.Limiter, scope string, extra ...gin.HandlerFunc) {
		if limiter != nil {
			g.Use(middleware.RateLimitMiddleware(limiter, scope))
		}
		g.Use(extra...)
		if auditMW != nil {
			g.Use(auditMW)
		}
	}

	authGroup := router.Group("/internal/auth")
	use(authGroup, authLimiter, middleware.ScopeAuth)
	{
		authGroup.GET("/login", authHandlers.LoginHandler())
		authGroup.GET("/callback", authHandlers.CallbackHandler())
		authGroup.POST("/logout", authHandlers.LogoutHandler())
	}

	internal := router.Group("/internal")
	use(internal, internalLimiter, middleware.ScopeInternal, middleware.AuthMiddleware(staffRepo))
	{
		orgs := internal.Group("/organizations")
		{
			orgs.GET("", orgHandlers.ListHandler())
			orgs.GET("/:id", orgHandlers.ShowHandler())

			registrations := orgs.Group("/:id/registered_organizations")
			registrations.GET("/new", registrationHandlers.NewHandler())
			registrations.POST("", registrationHandlers.CreateHandler())
			registrations.GET("/:ro_id/edit", registrationHandlers.EditHandler())
			registrations.PUT("/:ro_id", registrationHandlers.UpdateHandler())
			registrations.PATCH("/:ro_id", registrationHandlers.UpdateHandler())
			registrations.DELETE("/:ro_id", registrationHandlers.DestroyHandler())
		}

		users := internal.Group("/users")
		{
			users.GET("", userHandlers.IndexHandler())
			users.GET("/download", userHandlers.DownloadHandler())
			users.GET("/:id", userHandlers.ShowHandler())
			users.GET("/:id/edit", userHandlers.EditHandler())
			users.PUT("/:id", userHandlers.UpdateHandler())
			users.PATCH("/:id", userHandlers.UpdateHandler())
		}

		internal.GET("/audit_logs", auditLogHandlers.ListHandler())
	}

	return router, bg, nil
}

func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
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

// readinessHandler probes the database and, when exports are archived, the store.
func readinessHandler(db *sql.DB, store storage.Storage) gin.HandlerFunc {
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

		if store != nil {
			rc, err := store.Download(c.Request.Context(), readinessProbePath)
			if err == nil {
				rc.Close()
			}
			if err != nil && !errors.Is(err, storage.ErrNotFound) {
				checks["storage"] = "unhealthy"
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"ready":  false,
					"checks": checks,
					"error":  "storage backend not ready",
				})
				return
			}
			checks["storage"] = "healthy"
		}

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version": Version,
			"service": "dpc-admin",
		})
	}
}
