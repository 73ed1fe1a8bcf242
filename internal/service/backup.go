package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jamesjordanmarketing/train-data-sub008/internal/domain"
	"github.com/jamesjordanmarketing/train-data-sub008/internal/logger"
	"github.com/jamesjordanmarketing/train-data-sub008/internal/repository"
	"github.com/jamesjordanmarketing/train-data-sub008/internal/storage"
)

// DefaultBackupTTL bounds how long a backup stays restorable.
const DefaultBackupTTL = 30 * 24 * time.Hour

// BackupService snapshots conversations into object storage before
// destructive operations. The archive is a single JSON document; the
// database row only tracks its key and expiry.
type BackupService struct {
	backups       *repository.BackupRepository
	conversations *repository.ConversationRepository
	store         storage.ObjectStorage
	ttl           time.Duration
}

// NewBackupService creates a BackupService with the default TTL.
func NewBackupService(
	backups *repository.BackupRepository,
	conversations *repository.ConversationRepository,
	store storage.ObjectStorage,
) *BackupService {
	return &BackupService{
		backups:       backups,
		conversations: conversations,
		store:         store,
		ttl:           DefaultBackupTTL,
	}
}

// CreateBackup archives the given conversations and records the backup.
// The archive upload commits before the metadata row, so a recorded
// backup always has a downloadable archive behind it.
func (s *BackupService) CreateBackup(ctx context.Context, reason string, conversationIDs []string) (*domain.Backup, error) {
	ctx = logger.SetComponent(ctx, "backup")

	if len(conversationIDs) == 0 {
		return nil, fmt.Errorf("backup requires at least one conversation id")
	}

	backupID := uuid.New().String()
	archive := domain.BackupArchive{
		BackupID:  backupID,
		CreatedAt: time.Now().UTC(),
	}
	for _, id := range conversationIDs {
		conv, err := s.conversations.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load conversation %s: %w", id, err)
		}
		archive.Conversations = append(archive.Conversations, *conv)
	}

	payload, err := json.Marshal(archive)
	if err != nil {
		return nil, fmt.Errorf("encode backup archive: %w", err)
	}

	key := fmt.Sprintf("backups/%s/%s.json", archive.CreatedAt.Format("2006/01/02"), backupID)
	if err := s.store.Upload(ctx, key, bytes.NewReader(payload), int64(len(payload)), "application/json"); err != nil {
		return nil, fmt.Errorf("upload backup archive: %w", err)
	}

	backup := &domain.Backup{
		ID:              backupID,
		Reason:          reason,
		ConversationIDs: conversationIDs,
		FilePath:        key,
		CreatedAt:       archive.CreatedAt,
		ExpiresAt:       archive.CreatedAt.Add(s.ttl),
	}
	if err := s.backups.Create(ctx, backup); err != nil {
		return nil, fmt.Errorf("record backup: %w", err)
	}

	logger.CtxInfo(ctx, "backup %s created: %d conversation(s), key %s", backupID, len(conversationIDs), key)
	return backup, nil
}
