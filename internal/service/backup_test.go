package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jamesjordanmarketing/train-data-sub008/internal/domain"
	"github.com/jamesjordanmarketing/train-data-sub008/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackupService_CreateBackup(t *testing.T) {
	db := newTestDB(t)
	backups := repository.NewBackupRepository(db)
	convs := repository.NewConversationRepository(db)
	store := newFakeStore()
	svc := NewBackupService(backups, convs, store)
	ctx := context.Background()

	require.NoError(t, convs.Create(ctx, &domain.Conversation{
		ID:     "c1",
		Title:  "first",
		Tier:   domain.TierTemplate,
		Status: domain.ConversationStatusApproved,
	}))
	require.NoError(t, convs.Create(ctx, &domain.Conversation{
		ID:     "c2",
		Title:  "second",
		Tier:   domain.TierScenario,
		Status: domain.ConversationStatusPendingReview,
	}))

	backup, err := svc.CreateBackup(ctx, "bulk delete", []string{"c1", "c2"})
	require.NoError(t, err)
	assert.Equal(t, "bulk delete", backup.Reason)
	assert.Equal(t, domain.StringArray{"c1", "c2"}, backup.ConversationIDs)
	assert.True(t, backup.ExpiresAt.After(time.Now().Add(29*24*time.Hour)))

	// The archive behind the row is complete and decodable.
	raw, ok := store.objects[backup.FilePath]
	require.True(t, ok)
	var archive domain.BackupArchive
	require.NoError(t, json.Unmarshal(raw, &archive))
	assert.Equal(t, backup.ID, archive.BackupID)
	require.Len(t, archive.Conversations, 2)
	assert.Equal(t, "first", archive.Conversations[0].Title)

	// The backup is immediately visible to recovery detection.
	visible, err := backups.ListExpiringAfter(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, backup.ID, visible[0].ID)
}

func TestBackupService_CreateBackupValidation(t *testing.T) {
	db := newTestDB(t)
	backups := repository.NewBackupRepository(db)
	convs := repository.NewConversationRepository(db)
	svc := NewBackupService(backups, convs, newFakeStore())
	ctx := context.Background()

	_, err := svc.CreateBackup(ctx, "empty", nil)
	assert.Error(t, err)

	// A missing conversation aborts the backup before anything is written.
	_, err = svc.CreateBackup(ctx, "missing", []string{"ghost"})
	require.Error(t, err)
	rows, err := backups.ListExpiringAfter(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, rows)
}
