package api

import (
	"log"
	"net/http"
	"time"

	"github.com/TheGojiOG/athena/internal/api/handlers"
	"github.com/TheGojiOG/athena/internal/api/middleware"
	"github.com/TheGojiOG/athena/internal/auth"
	"github.com/TheGojiOG/athena/internal/config"
	"github.com/TheGojiOG/athena/internal/logging"
	"github.com/TheGojiOG/athena/internal/server"
	"github.com/TheGojiOG/athena/internal/store"
	"github.com/TheGojiOG/athena/internal/websocket"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the HTTP router. The returned func
// blocks until dispatched operations finish or the shutdown timeout passes.
func SetupRouter(
	cfg *config.Config,
	st *store.ServerStore,
	lifecycle *server.LifecycleManager,
	activity *logging.ActivityLogger,
	hub *websocket.Hub,
) (*gin.Engine, func()) {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// keep typed-nil loggers out of the interfaces below
	var recorder middleware.ActivityRecorder
	var activityLog handlers.ActivityLog
	if activity != nil {
		recorder = activity
		activityLog = activity
	}

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS(cfg.Security.CORS))
	router.Use(middleware.RateLimit(cfg.Security.RateLimit.Enabled, cfg.Security.RateLimit.RequestsPerMinute))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.ContentSecurityPolicy(cfg.Logging.Level == "debug"))

	var jwtManager *auth.JWTManager
	if cfg.Auth.Enabled {
		jwtManager = auth.NewJWTManager(cfg.Auth.JWTSecret, parseDuration(cfg.Auth.TokenDuration, 720*time.Hour))
	}

	serverHandler := handlers.NewServerHandler(st, lifecycle, activityLog, cfg.Steam)
	modpackHandler := handlers.NewModpackHandler(st)
	logHandler := handlers.NewLogHandler(st, lifecycle.Paths())
	consoleHandler := handlers.NewConsoleHandler(st, hub, cfg.Security.CORS.AllowedOrigins)

	read := middleware.RequireScope(auth.ScopeRead)
	operate := middleware.RequireScope(auth.ScopeOperate)

	protected := router.Group("/api/v1")
	protected.Use(middleware.Auth(jwtManager, cfg.Auth.Enabled))
	protected.Use(middleware.Audit(recorder))
	{
		servers := protected.Group("/servers")
		{
			servers.GET("", read, serverHandler.ListServers)
			servers.POST("", operate, serverHandler.CreateServer)
			servers.GET("/:id", read, serverHandler.GetServer)
			servers.PATCH("/:id", operate, serverHandler.UpdateServer)
			servers.DELETE("/:id", operate, serverHandler.DeleteServer)
			servers.POST("/:id/upgrade", operate, serverHandler.UpgradeServer)
			servers.POST("/:id/start", operate, serverHandler.StartServer)
			servers.GET("/:id/logs/:kind", read, logHandler.GetLogTail)
			servers.GET("/:id/activity", read, serverHandler.GetServerActivity)
		}

		modpacks := protected.Group("/modpacks")
		{
			modpacks.GET("", read, modpackHandler.ListModpacks)
			modpacks.POST("", operate, modpackHandler.CreateModpack)
		}

		protected.GET("/ws/servers/:id/console", read, consoleHandler.HandleConsoleWebSocket)
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	shutdownTimeout := parseDuration(cfg.Server.ShutdownTimeout, 30*time.Second)
	shutdown := func() {
		log.Println("Waiting for running server operations to complete...")
		if lifecycle.WaitTimeout(shutdownTimeout) {
			log.Println("Server operations completed")
		} else {
			log.Printf("Gave up waiting for server operations after %s", shutdownTimeout)
		}
	}

	return router, shutdown
}

// parseDuration returns fallback for empty or malformed values.
func parseDuration(duration string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(duration)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
