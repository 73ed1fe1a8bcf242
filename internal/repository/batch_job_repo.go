package repository

import (
	"context"
	"time"

	"github.com/jamesjordanmarketing/train-data-sub008/internal/domain"
	"gorm.io/gorm"
)

// BatchJobRepository handles batch job and batch item data operations.
type BatchJobRepository struct {
	db *gorm.DB
}

// NewBatchJobRepository creates a new BatchJobRepository.
func NewBatchJobRepository(db *gorm.DB) *BatchJobRepository {
	return &BatchJobRepository{db: db}
}

// CreateJob inserts a new batch job together with its items.
func (r *BatchJobRepository) CreateJob(ctx context.Context, job *domain.BatchJob, items []domain.BatchItem) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(job).Error; err != nil {
			return err
		}
		if len(items) > 0 {
			if err := tx.Create(&items).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// GetJob retrieves a batch job by its ID.
func (r *BatchJobRepository) GetJob(ctx context.Context, jobID string) (*domain.BatchJob, error) {
	var job domain.BatchJob
	if err := r.db.WithContext(ctx).First(&job, "id = ?", jobID).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// UpdateJob persists the full job record.
func (r *BatchJobRepository) UpdateJob(ctx context.Context, job *domain.BatchJob) error {
	return r.db.WithContext(ctx).Save(job).Error
}

// UpdateJobStatus sets only the job status.
func (r *BatchJobRepository) UpdateJobStatus(ctx context.Context, jobID string, status domain.BatchJobStatus) error {
	return r.db.WithContext(ctx).Model(&domain.BatchJob{}).
		Where("id = ?", jobID).
		Update("status", status).Error
}

// ListItems returns a job's items ordered by position.
func (r *BatchJobRepository) ListItems(ctx context.Context, jobID string) ([]domain.BatchItem, error) {
	var items []domain.BatchItem
	if err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("position").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// ClaimItem transitions an item from pending to processing. The
// conditional update is the claim step: it succeeds for exactly one
// caller, so no two workers can process the same item.
func (r *BatchJobRepository) ClaimItem(ctx context.Context, itemID string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.BatchItem{}).
		Where("id = ? AND status = ?", itemID, domain.BatchItemStatusPending).
		Updates(map[string]interface{}{
			"status":     domain.BatchItemStatusProcessing,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// FinishItem records an item's terminal status together with its
// produced conversation id or error message.
func (r *BatchJobRepository) FinishItem(ctx context.Context, itemID string, status domain.BatchItemStatus, conversationID, itemErr string) error {
	return r.db.WithContext(ctx).Model(&domain.BatchItem{}).
		Where("id = ?", itemID).
		Updates(map[string]interface{}{
			"status":          status,
			"conversation_id": conversationID,
			"error":           itemErr,
			"updated_at":      time.Now(),
		}).Error
}

// ResetProcessingItems returns any item stuck in processing back to
// pending. Called on resume: items that were in flight during a crash
// have no checkpoint record and must be re-executed.
func (r *BatchJobRepository) ResetProcessingItems(ctx context.Context, jobID string) error {
	return r.db.WithContext(ctx).Model(&domain.BatchItem{}).
		Where("job_id = ? AND status = ?", jobID, domain.BatchItemStatusProcessing).
		Updates(map[string]interface{}{
			"status":     domain.BatchItemStatusPending,
			"updated_at": time.Now(),
		}).Error
}
