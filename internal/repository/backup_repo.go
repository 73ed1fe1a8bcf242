package repository

import (
	"context"
	"time"

	"github.com/jamesjordanmarketing/train-data-sub008/internal/domain"
	"gorm.io/gorm"
)

// BackupRepository handles backup export metadata operations. The archive
// contents themselves live in object storage; this table only tracks keys
// and expiry.
type BackupRepository struct {
	db *gorm.DB
}

// NewBackupRepository creates a new BackupRepository.
func NewBackupRepository(db *gorm.DB) *BackupRepository {
	return &BackupRepository{db: db}
}

// GetByID retrieves a backup record by its ID.
func (r *BackupRepository) GetByID(ctx context.Context, id string) (*domain.Backup, error) {
	var b domain.Backup
	if err := r.db.WithContext(ctx).First(&b, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

// Create inserts a new backup record.
func (r *BackupRepository) Create(ctx context.Context, b *domain.Backup) error {
	return r.db.WithContext(ctx).Create(b).Error
}

// ListExpiringAfter returns backups still restorable at the given time,
// newest first. Expired backups are excluded even if their rows remain.
func (r *BackupRepository) ListExpiringAfter(ctx context.Context, now time.Time) ([]domain.Backup, error) {
	var backups []domain.Backup
	if err := r.db.WithContext(ctx).
		Where("expires_at > ?", now).
		Order("created_at DESC").
		Find(&backups).Error; err != nil {
		return nil, err
	}
	return backups, nil
}

// Delete removes a backup record.
func (r *BackupRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&domain.Backup{}, "id = ?", id).Error
}
