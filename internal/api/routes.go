package api

import (
	"github.com/gin-gonic/gin"

	"github.com/backstead/backstead/internal/api/handlers"
	"github.com/backstead/backstead/internal/api/middleware"
	"github.com/backstead/backstead/internal/auth"
	"github.com/backstead/backstead/internal/config"
	"github.com/backstead/backstead/internal/crypto"
	"github.com/backstead/backstead/internal/healthcheck"
	"github.com/backstead/backstead/internal/queue"
	"github.com/backstead/backstead/internal/remote"
	"github.com/backstead/backstead/internal/scheduler"
	"github.com/backstead/backstead/internal/store"
	"github.com/backstead/backstead/internal/websocket"
)

// Deps carries everything the HTTP layer needs. The router holds no state
// of its own; every handler works against these.
type Deps struct {
	Config    *config.Config
	Stores    *store.Stores
	Creds     *crypto.Manager
	Dialer    remote.Dialer
	Queue     queue.Queue
	Scheduler *scheduler.Scheduler
	Checker   *healthcheck.Checker
	Hub       *websocket.Hub
	JWT       *auth.JWTManager
}

// SetupRouter configures the HTTP router.
func SetupRouter(deps Deps) *gin.Engine {
	if deps.Config.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS(deps.Config.Security.CORS))

	authHandler := handlers.NewAuthHandler(deps.Stores.Users, deps.JWT, deps.Config.Auth.BcryptCost)
	serverHandler := handlers.NewServerHandler(deps.Stores.Servers, deps.Creds, deps.Dialer)
	scanHandler := handlers.NewScanHandler(deps.Stores.Servers, deps.Stores.Scans, deps.Queue)
	backupHandler := handlers.NewBackupHandler(deps.Stores.Servers, deps.Stores.Scans, deps.Stores.Backups, deps.Queue)
	restoreHandler := handlers.NewRestoreHandler(deps.Stores.Backups, deps.Stores.Restores, deps.Queue)
	scheduleHandler := handlers.NewScheduleHandler(deps.Stores.Servers, deps.Stores.Schedules, deps.Scheduler)
	healthHandler := handlers.NewHealthHandler(deps.Stores.Servers, deps.Checker)
	wsHandler := handlers.NewWSHandler(deps.Hub)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	public := router.Group("/api/v1")
	{
		public.GET("/auth/setup-status", authHandler.SetupStatus)
		public.POST("/auth/setup", authHandler.Setup)
		public.POST("/auth/login", authHandler.Login)
	}

	protected := router.Group("/api/v1")
	protected.Use(middleware.Auth(deps.JWT))
	{
		protected.GET("/auth/me", authHandler.Me)

		servers := protected.Group("/servers")
		{
			servers.GET("", serverHandler.ListServers)
			servers.POST("", serverHandler.CreateServer)
			servers.GET(":id", serverHandler.GetServer)
			servers.PUT(":id", serverHandler.UpdateServer)
			servers.DELETE(":id", serverHandler.DeleteServer)
			servers.POST(":id/test-connection", serverHandler.TestConnection)
			servers.POST(":id/healthcheck", healthHandler.CheckServer)

			servers.POST(":id/scans", scanHandler.TriggerScan)
			servers.GET(":id/scans", scanHandler.ListScans)
			servers.GET(":id/scans/latest", scanHandler.LatestScan)

			servers.POST(":id/backups", backupHandler.TriggerBackup)
			servers.GET(":id/backups", backupHandler.ListBackups)

			servers.GET(":id/restores", restoreHandler.ListRestores)

			servers.POST(":id/schedules", scheduleHandler.CreateSchedule)
			servers.GET(":id/schedules", scheduleHandler.ListSchedules)
		}

		protected.GET("/scans/:scanId", scanHandler.GetScan)

		protected.GET("/backups/:backupId", backupHandler.GetBackup)
		protected.POST("/backups/:backupId/restore", restoreHandler.TriggerRestore)

		protected.GET("/restores/:restoreId", restoreHandler.GetRestore)
		protected.GET("/restores/:restoreId/audit", restoreHandler.GetAuditTrail)

		protected.GET("/schedules/:scheduleId", scheduleHandler.GetSchedule)
		protected.PUT("/schedules/:scheduleId", scheduleHandler.UpdateSchedule)
		protected.DELETE("/schedules/:scheduleId", scheduleHandler.DeleteSchedule)

		protected.GET("/ws/events", wsHandler.HandleEvents)
	}

	return router
}
