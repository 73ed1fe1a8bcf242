package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jamesjordanmarketing/train-data-sub008/internal/config"
	"github.com/jamesjordanmarketing/train-data-sub008/internal/domain"
	"github.com/jamesjordanmarketing/train-data-sub008/internal/generation"
	"github.com/jamesjordanmarketing/train-data-sub008/internal/logger"
	"github.com/jamesjordanmarketing/train-data-sub008/internal/quality"
	"github.com/jamesjordanmarketing/train-data-sub008/internal/repository"
	"github.com/jamesjordanmarketing/train-data-sub008/internal/service"
)

// itemFile is the JSON document accepted via -file: a list of topics with
// optional templates and parameters.
type itemFile struct {
	Items []struct {
		Topic      string                 `json:"topic"`
		TemplateID string                 `json:"template_id"`
		Parameters map[string]interface{} `json:"parameters"`
	} `json:"items"`
}

func main() {
	// Initialize logger first (with defaults)
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "json",
		ServiceName: "traingen-batch",
	})
	logger.SetDefaultLogger(appLogger)

	// Parse command line flags
	name := flag.String("name", "", "Batch job name")
	tier := flag.String("tier", "template", "Generation tier (template, scenario, edge_case)")
	file := flag.String("file", "", "Path to JSON file with generation items")
	resumeJob := flag.String("resume", "", "Resume an interrupted job by id instead of submitting")
	scan := flag.Bool("scan", false, "Scan for recoverable work and print it instead of submitting")
	concurrency := flag.Int("concurrency", 0, "Worker count (0 uses the configured default)")
	mode := flag.String("mode", "", "Error handling mode (continue, stop)")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	jobRepo := repository.NewBatchJobRepository(db)
	checkpointRepo := repository.NewCheckpointRepository(db)
	conversationRepo := repository.NewConversationRepository(db)
	templateRepo := repository.NewTemplateRepository(db)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *scan {
		draftRepo := repository.NewDraftRepository(db)
		backupRepo := repository.NewBackupRepository(db)
		detector := service.NewRecoveryDetector(
			draftRepo, checkpointRepo, backupRepo, conversationRepo, &cfg.Recovery,
		)
		items, err := detector.DetectRecoverableData(ctx)
		if err != nil {
			appLogger.WithError(err).Warn("Some recovery sources failed to scan")
		}
		out, err := json.MarshalIndent(items, "", "  ")
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to encode recoverable items")
		}
		fmt.Println(string(out))
		return
	}

	generator, err := generation.NewClient(&cfg.Generation)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize generation client")
	}

	scorer := quality.NewScorer(cfg.Quality.AutoFlagThreshold)
	batchService := service.NewBatchService(
		jobRepo, checkpointRepo, conversationRepo, templateRepo,
		generator, scorer, &cfg.Batch,
	)

	var job *domain.BatchJob
	if *resumeJob != "" {
		appLogger.WithField(logger.FieldJobID, *resumeJob).Info("Resuming batch job")
		job, err = batchService.Resume(ctx, *resumeJob)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to resume job")
		}
	} else {
		if *file == "" {
			appLogger.Fatal("Either -file or -resume is required")
		}
		req, err := loadRequest(*file, *name, *tier, *concurrency, *mode)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to read item file")
		}

		appLogger.WithFields(logger.Fields{
			"items": len(req.Items),
			"tier":  *tier,
		}).Info("Submitting batch job")
		job, err = batchService.StartBatch(ctx, req)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to start batch")
		}
	}

	appLogger.WithField(logger.FieldJobID, job.ID).Info("Waiting for job to finish")
	if err := batchService.Shutdown(ctx); err != nil {
		// Interrupted: cancel between items, let in-flight work drain, and
		// leave the checkpoint behind for a later -resume.
		appLogger.Info("Interrupt received, cancelling job")
		_ = batchService.Cancel(job.ID, "interrupted by operator")
		drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := batchService.Shutdown(drainCtx); err != nil {
			appLogger.WithError(err).Fatal("Job did not drain after interrupt")
		}
	}

	final, progress, err := batchService.JobStatus(context.Background(), job.ID)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to read final job status")
	}
	appLogger.WithFields(logger.Fields{
		logger.FieldJobID:  final.ID,
		logger.FieldStatus: string(final.Status),
		"succeeded":        final.SuccessfulItems,
		"failed":           final.FailedItems,
		"progress":         progress.ProgressPercentage,
	}).Info("Batch job finished")

	if final.Status != domain.BatchJobStatusCompleted {
		os.Exit(1)
	}
}

func loadRequest(path, name, tier string, concurrency int, mode string) (*service.StartBatchRequest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc itemFile
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}

	items := make([]service.BatchItemSpec, len(doc.Items))
	for i, it := range doc.Items {
		items[i] = service.BatchItemSpec{
			Topic:      it.Topic,
			TemplateID: it.TemplateID,
			Parameters: it.Parameters,
		}
	}
	return &service.StartBatchRequest{
		Name:          name,
		Tier:          domain.TierType(tier),
		Items:         items,
		Concurrency:   concurrency,
		ErrorHandling: domain.ErrorHandlingMode(mode),
	}, nil
}
