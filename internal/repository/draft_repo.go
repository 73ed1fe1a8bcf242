package repository

import (
	"context"
	"time"

	"github.com/jamesjordanmarketing/train-data-sub008/internal/domain"
	"gorm.io/gorm"
)

// DraftRepository handles auto-saved draft data operations.
type DraftRepository struct {
	db *gorm.DB
}

// NewDraftRepository creates a new DraftRepository.
func NewDraftRepository(db *gorm.DB) *DraftRepository {
	return &DraftRepository{db: db}
}

// GetByID retrieves a draft by its ID.
func (r *DraftRepository) GetByID(ctx context.Context, id string) (*domain.Draft, error) {
	var d domain.Draft
	if err := r.db.WithContext(ctx).First(&d, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

// Save upserts a draft record.
func (r *DraftRepository) Save(ctx context.Context, d *domain.Draft) error {
	return r.db.WithContext(ctx).Save(d).Error
}

// ListUnexpired returns drafts whose TTL has not elapsed at the given
// time, newest save first.
func (r *DraftRepository) ListUnexpired(ctx context.Context, now time.Time) ([]domain.Draft, error) {
	var drafts []domain.Draft
	if err := r.db.WithContext(ctx).
		Where("expires_at > ?", now).
		Order("saved_at DESC").
		Find(&drafts).Error; err != nil {
		return nil, err
	}
	return drafts, nil
}

// Delete removes a draft record.
func (r *DraftRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&domain.Draft{}, "id = ?", id).Error
}

// DeleteExpired removes all drafts past their TTL. Returns the number of
// rows removed.
func (r *DraftRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Delete(&domain.Draft{}, "expires_at <= ?", now)
	return res.RowsAffected, res.Error
}
