package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jamesjordanmarketing/train-data-sub008/internal/api"
	"github.com/jamesjordanmarketing/train-data-sub008/internal/config"
	"github.com/jamesjordanmarketing/train-data-sub008/internal/generation"
	"github.com/jamesjordanmarketing/train-data-sub008/internal/logger"
	"github.com/jamesjordanmarketing/train-data-sub008/internal/quality"
	"github.com/jamesjordanmarketing/train-data-sub008/internal/repository"
	"github.com/jamesjordanmarketing/train-data-sub008/internal/service"
	"github.com/jamesjordanmarketing/train-data-sub008/internal/storage"
)

func main() {
	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	appLogger := logger.NewDefault()
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	// Initialize repositories
	jobRepo := repository.NewBatchJobRepository(db)
	checkpointRepo := repository.NewCheckpointRepository(db)
	conversationRepo := repository.NewConversationRepository(db)
	templateRepo := repository.NewTemplateRepository(db)
	draftRepo := repository.NewDraftRepository(db)
	backupRepo := repository.NewBackupRepository(db)

	// Initialize object storage for backup archives
	objectStorage, err := storage.NewStorage(&cfg.Storage)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize storage")
	}

	// Initialize generation client
	generator, err := generation.NewClient(&cfg.Generation)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize generation client")
	}

	// Initialize services
	scorer := quality.NewScorer(cfg.Quality.AutoFlagThreshold)
	batchService := service.NewBatchService(
		jobRepo, checkpointRepo, conversationRepo, templateRepo,
		generator, scorer, &cfg.Batch,
	)
	backupService := service.NewBackupService(backupRepo, conversationRepo, objectStorage)
	detector := service.NewRecoveryDetector(
		draftRepo, checkpointRepo, backupRepo, conversationRepo, &cfg.Recovery,
	)
	executor := service.NewRecoveryExecutor(
		draftRepo, checkpointRepo, backupRepo, conversationRepo, objectStorage,
	)

	// Setup router
	router := api.SetupRouter(batchService, backupService, detector, executor, appLogger, &cfg.Server)

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// Graceful shutdown with timeout; running jobs drain their in-flight
	// items and leave checkpoints behind for resume.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}
	if err := batchService.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Warn("Batch jobs did not drain before timeout")
	}

	appLogger.Info("Server exited")
}
