package repository

import (
	"context"

	"github.com/jamesjordanmarketing/train-data-sub008/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ConversationRepository handles conversation data operations.
type ConversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository creates a new ConversationRepository.
func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// Create inserts a new conversation record.
func (r *ConversationRepository) Create(ctx context.Context, conv *domain.Conversation) error {
	return r.db.WithContext(ctx).Create(conv).Error
}

// Upsert creates or updates a conversation record keyed by id. Used by
// backup restore, where restored records may collide with live ones.
func (r *ConversationRepository) Upsert(ctx context.Context, conv *domain.Conversation) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(conv).Error
}

// Update updates an existing conversation record.
func (r *ConversationRepository) Update(ctx context.Context, conv *domain.Conversation) error {
	return r.db.WithContext(ctx).Save(conv).Error
}

// GetByID retrieves a conversation by its ID.
func (r *ConversationRepository) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	var conv domain.Conversation
	if err := r.db.WithContext(ctx).First(&conv, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &conv, nil
}

// Exists checks whether a finalized conversation with the given id exists.
// Used by recovery detection to tag conflicting drafts.
func (r *ConversationRepository) Exists(ctx context.Context, id string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Conversation{}).
		Where("id = ?", id).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListByStatus retrieves conversations by status with pagination.
func (r *ConversationRepository) ListByStatus(ctx context.Context, status domain.ConversationStatus, limit, offset int) ([]domain.Conversation, error) {
	var convs []domain.Conversation
	if err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&convs).Error; err != nil {
		return nil, err
	}
	return convs, nil
}

// Delete removes a conversation record.
func (r *ConversationRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&domain.Conversation{}, "id = ?", id).Error
}
