package repository

import (
	"context"

	"github.com/jamesjordanmarketing/train-data-sub008/internal/domain"
	"gorm.io/gorm"
)

// TemplateRepository handles generation template data operations.
type TemplateRepository struct {
	db *gorm.DB
}

// NewTemplateRepository creates a new TemplateRepository.
func NewTemplateRepository(db *gorm.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// GetByID retrieves a template by its ID.
func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*domain.Template, error) {
	var tpl domain.Template
	if err := r.db.WithContext(ctx).First(&tpl, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &tpl, nil
}

// ListByTier retrieves templates for a tier.
func (r *TemplateRepository) ListByTier(ctx context.Context, tier domain.TierType) ([]domain.Template, error) {
	var tpls []domain.Template
	if err := r.db.WithContext(ctx).
		Where("tier = ?", tier).
		Order("name").
		Find(&tpls).Error; err != nil {
		return nil, err
	}
	return tpls, nil
}

// Create inserts a new template record.
func (r *TemplateRepository) Create(ctx context.Context, tpl *domain.Template) error {
	return r.db.WithContext(ctx).Create(tpl).Error
}
