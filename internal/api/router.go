package api

import (
	"github.com/gin-gonic/gin"
	"github.com/jamesjordanmarketing/train-data-sub008/internal/api/handler"
	"github.com/jamesjordanmarketing/train-data-sub008/internal/api/middleware"
	"github.com/jamesjordanmarketing/train-data-sub008/internal/config"
	"github.com/jamesjordanmarketing/train-data-sub008/internal/logger"
	"github.com/jamesjordanmarketing/train-data-sub008/internal/service"
)

// SetupRouter configures the Gin router with all routes
func SetupRouter(
	batchService *service.BatchService,
	backupService *service.BackupService,
	detector *service.RecoveryDetector,
	executor *service.RecoveryExecutor,
	log *logger.Logger,
	cfg *config.ServerConfig,
) *gin.Engine {
	// Set Gin mode
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:  cfg.CORS.AllowedOrigins,
		AllowAllOrigins: cfg.CORS.AllowAllOrigins,
	}))

	// Create handlers
	healthHandler := handler.NewHealthHandler("traingen")
	batchHandler := handler.NewBatchHandler(batchService)
	backupHandler := handler.NewBackupHandler(backupService)
	recoveryHandler := handler.NewRecoveryHandler(detector, executor)

	// Health check
	r.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Batch jobs
		v1.POST("/batch-jobs", batchHandler.StartBatch)
		v1.GET("/batch-jobs/:id", batchHandler.GetJob)
		v1.POST("/batch-jobs/:id/cancel", batchHandler.CancelJob)
		v1.POST("/batch-jobs/:id/resume", batchHandler.ResumeJob)

		// Backups
		v1.POST("/backups", backupHandler.CreateBackup)

		// Recovery
		v1.GET("/recovery/items", recoveryHandler.ListItems)
		v1.POST("/recovery/execute", recoveryHandler.Execute)
	}

	return r
}
