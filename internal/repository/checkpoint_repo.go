package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jamesjordanmarketing/train-data-sub008/internal/domain"
	"gorm.io/gorm"
)

// ErrCheckpointExists is returned when Create is called for a job that
// already has a checkpoint. It guards against double-starting a job.
var ErrCheckpointExists = errors.New("checkpoint already exists for job")

// ErrCheckpointNotFound is returned when no checkpoint exists for a job.
var ErrCheckpointNotFound = errors.New("checkpoint not found")

// CheckpointRepository is the durable progress ledger for batch jobs.
// Item id sets are append-only and disjoint; recording an id twice is a
// no-op so retried or duplicate deliveries cannot corrupt progress.
type CheckpointRepository struct {
	db *gorm.DB
}

// NewCheckpointRepository creates a new CheckpointRepository.
func NewCheckpointRepository(db *gorm.DB) *CheckpointRepository {
	return &CheckpointRepository{db: db}
}

// Create inserts an empty checkpoint for a job. Fails with
// ErrCheckpointExists if one is already present.
func (r *CheckpointRepository) Create(ctx context.Context, jobID string, totalItems int) (*domain.Checkpoint, error) {
	if totalItems <= 0 {
		return nil, fmt.Errorf("checkpoint for job %s: totalItems must be positive, got %d", jobID, totalItems)
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Checkpoint{}).
		Where("job_id = ?", jobID).
		Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, fmt.Errorf("job %s: %w", jobID, ErrCheckpointExists)
	}

	cp := &domain.Checkpoint{
		ID:               uuid.New().String(),
		JobID:            jobID,
		TotalItems:       totalItems,
		CompletedItemIDs: domain.StringArray{},
		FailedItemIDs:    domain.StringArray{},
		LastCheckpointAt: time.Now(),
	}
	if err := r.db.WithContext(ctx).Create(cp).Error; err != nil {
		return nil, err
	}
	return cp, nil
}

// Get retrieves the checkpoint for a job.
func (r *CheckpointRepository) Get(ctx context.Context, jobID string) (*domain.Checkpoint, error) {
	var cp domain.Checkpoint
	if err := r.db.WithContext(ctx).First(&cp, "job_id = ?", jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("job %s: %w", jobID, ErrCheckpointNotFound)
		}
		return nil, err
	}
	return &cp, nil
}

// RecordItemResult appends an item id to the completed or failed set.
// The write is transactional and idempotent: an id already present in
// either set leaves the checkpoint unchanged, so the sets stay disjoint
// and only ever grow. The caller must not report the item's outcome
// downstream until this returns.
func (r *CheckpointRepository) RecordItemResult(ctx context.Context, jobID, itemID string, succeeded bool) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cp domain.Checkpoint
		if err := tx.First(&cp, "job_id = ?", jobID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("job %s: %w", jobID, ErrCheckpointNotFound)
			}
			return err
		}

		if cp.Recorded(itemID) {
			return nil
		}

		if succeeded {
			cp.CompletedItemIDs = append(cp.CompletedItemIDs, itemID)
		} else {
			cp.FailedItemIDs = append(cp.FailedItemIDs, itemID)
		}

		recorded := len(cp.CompletedItemIDs) + len(cp.FailedItemIDs)
		cp.ProgressPercentage = progressPercent(recorded, cp.TotalItems)
		cp.LastCheckpointAt = time.Now()

		return tx.Save(&cp).Error
	})
}

// GetProgress summarizes checkpoint state for a job.
func (r *CheckpointRepository) GetProgress(ctx context.Context, jobID string) (*domain.BatchProgress, error) {
	cp, err := r.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	completed := len(cp.CompletedItemIDs)
	failed := len(cp.FailedItemIDs)
	return &domain.BatchProgress{
		TotalItems:         cp.TotalItems,
		CompletedItems:     completed,
		FailedItems:        failed,
		PendingItems:       cp.TotalItems - completed - failed,
		ProgressPercentage: cp.ProgressPercentage,
	}, nil
}

// ListIncomplete returns every checkpoint below 100% progress, most
// recently updated first. This is the resume/recovery entry point.
func (r *CheckpointRepository) ListIncomplete(ctx context.Context) ([]domain.Checkpoint, error) {
	var cps []domain.Checkpoint
	if err := r.db.WithContext(ctx).
		Where("progress_percentage < ?", 100).
		Order("updated_at DESC").
		Find(&cps).Error; err != nil {
		return nil, err
	}
	return cps, nil
}

// Cleanup deletes the checkpoint for a job. Called only after the job
// controller confirms terminal success or an operator abandons recovery.
func (r *CheckpointRepository) Cleanup(ctx context.Context, jobID string) error {
	return r.db.WithContext(ctx).Delete(&domain.Checkpoint{}, "job_id = ?", jobID).Error
}

// progressPercent rounds recorded/total to a whole percentage.
func progressPercent(recorded, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(recorded) / float64(total) * 100))
}
