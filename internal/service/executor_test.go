package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/jamesjordanmarketing/train-data-sub008/internal/domain"
	"github.com/jamesjordanmarketing/train-data-sub008/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakeStore is a map-backed ObjectStorage for tests.
type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][]byte)}
}

func (f *fakeStore) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	return nil
}

func (f *fakeStore) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s does not exist", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeStore) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

func (f *fakeStore) Exists(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok, nil
}

type executorFixture struct {
	db       *gorm.DB
	executor *RecoveryExecutor
	drafts   *repository.DraftRepository
	cps      *repository.CheckpointRepository
	convs    *repository.ConversationRepository
	store    *fakeStore
}

func newExecutorFixture(t *testing.T) *executorFixture {
	t.Helper()
	db := newTestDB(t)

	drafts := repository.NewDraftRepository(db)
	cps := repository.NewCheckpointRepository(db)
	backups := repository.NewBackupRepository(db)
	convs := repository.NewConversationRepository(db)
	store := newFakeStore()

	return &executorFixture{
		db:       db,
		executor: NewRecoveryExecutor(drafts, cps, backups, convs, store),
		drafts:   drafts,
		cps:      cps,
		convs:    convs,
		store:    store,
	}
}

func draftItem(draftID string) domain.RecoverableItem {
	return domain.RecoverableItem{
		ID:       "draft-" + draftID,
		Type:     domain.RecoverableTypeDraft,
		SourceID: draftID,
		Status:   domain.RecoveryStatusPending,
		Data:     domain.DraftRecoveryData{DraftID: draftID},
	}
}

func TestRecoveryExecutor_SkippedItemsAreCountedNotExecuted(t *testing.T) {
	fx := newExecutorFixture(t)
	ctx := context.Background()

	require.NoError(t, fx.drafts.Save(ctx, &domain.Draft{
		ID:        "d1",
		Topic:     "keep me",
		SavedAt:   time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	item := draftItem("d1")
	item.Status = domain.RecoveryStatusSkipped

	summary, err := fx.executor.RecoverItems(ctx, []domain.RecoverableItem{item})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalItems)
	assert.Equal(t, 1, summary.SkippedCount)
	assert.Equal(t, 0, summary.SuccessCount)
	assert.Equal(t, 0, summary.FailedCount)
	require.Len(t, summary.Results, 1)
	assert.True(t, summary.Results[0].Success)
	assert.Equal(t, "Skipped by user", summary.Results[0].Error)

	// The skipped draft was not touched.
	draft, err := fx.drafts.GetByID(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "keep me", draft.Topic)
}

func TestRecoveryExecutor_RecoversDraft(t *testing.T) {
	fx := newExecutorFixture(t)
	ctx := context.Background()

	require.NoError(t, fx.drafts.Save(ctx, &domain.Draft{
		ID:        "d1",
		Topic:     "accepted",
		SavedAt:   time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	summary, err := fx.executor.RecoverItems(ctx, []domain.RecoverableItem{draftItem("d1")})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.SuccessCount)

	_, err = fx.drafts.GetByID(ctx, "d1")
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestRecoveryExecutor_RecoversBatchCheckpoint(t *testing.T) {
	fx := newExecutorFixture(t)
	ctx := context.Background()

	_, err := fx.cps.Create(ctx, "job-1", 4)
	require.NoError(t, err)

	summary, err := fx.executor.RecoverItems(ctx, []domain.RecoverableItem{{
		ID:       "batch-job-1",
		Type:     domain.RecoverableTypeBatch,
		SourceID: "job-1",
		Status:   domain.RecoveryStatusPending,
		Data:     domain.BatchRecoveryData{JobID: "job-1"},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.SuccessCount)

	_, err = fx.cps.Get(ctx, "job-1")
	assert.True(t, errors.Is(err, repository.ErrCheckpointNotFound))
}

func TestRecoveryExecutor_RestoresBackupOverLiveRecords(t *testing.T) {
	fx := newExecutorFixture(t)
	ctx := context.Background()

	// A live record that the archive will overwrite, plus one the archive
	// reintroduces from scratch.
	require.NoError(t, fx.convs.Create(ctx, &domain.Conversation{
		ID:     "c1",
		Title:  "edited after backup",
		Tier:   domain.TierTemplate,
		Status: domain.ConversationStatusApproved,
	}))

	archive := domain.BackupArchive{
		BackupID:  "b1",
		CreatedAt: time.Now().UTC(),
		Conversations: []domain.Conversation{
			{ID: "c1", Title: "original title", Tier: domain.TierTemplate, Status: domain.ConversationStatusApproved},
			{ID: "c2", Title: "deleted one", Tier: domain.TierScenario, Status: domain.ConversationStatusPendingReview},
		},
	}
	raw, err := json.Marshal(archive)
	require.NoError(t, err)
	fx.store.objects["backups/b1.json"] = raw

	summary, err := fx.executor.RecoverItems(ctx, []domain.RecoverableItem{{
		ID:       "backup-b1",
		Type:     domain.RecoverableTypeBackup,
		SourceID: "b1",
		Status:   domain.RecoveryStatusPending,
		Data:     domain.BackupRecoveryData{BackupID: "b1", FilePath: "backups/b1.json"},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.SuccessCount)

	restored, err := fx.convs.GetByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "original title", restored.Title)

	reintroduced, err := fx.convs.GetByID(ctx, "c2")
	require.NoError(t, err)
	assert.Equal(t, "deleted one", reintroduced.Title)
}

func TestRecoveryExecutor_FailureDoesNotStopSession(t *testing.T) {
	fx := newExecutorFixture(t)
	ctx := context.Background()

	require.NoError(t, fx.drafts.Save(ctx, &domain.Draft{
		ID:        "d-after",
		Topic:     "still processed",
		SavedAt:   time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	items := []domain.RecoverableItem{
		{
			ID:       "backup-missing",
			Type:     domain.RecoverableTypeBackup,
			SourceID: "b-missing",
			Status:   domain.RecoveryStatusPending,
			Data:     domain.BackupRecoveryData{BackupID: "b-missing", FilePath: "backups/missing.json"},
		},
		draftItem("d-after"),
	}

	summary, err := fx.executor.RecoverItems(ctx, items)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalItems)
	assert.Equal(t, 1, summary.SuccessCount)
	assert.Equal(t, 1, summary.FailedCount)
	assert.Equal(t, 0, summary.SkippedCount)

	// Results preserve input order and carry the failure message.
	require.Len(t, summary.Results, 2)
	assert.Equal(t, "backup-missing", summary.Results[0].ItemID)
	assert.False(t, summary.Results[0].Success)
	assert.Contains(t, summary.Results[0].Error, "backups/missing.json")
	assert.Equal(t, "draft-d-after", summary.Results[1].ItemID)
	assert.True(t, summary.Results[1].Success)

	// The input items are annotated in place.
	assert.Equal(t, domain.RecoveryStatusFailed, items[0].Status)
	assert.NotEmpty(t, items[0].Error)
	assert.Equal(t, domain.RecoveryStatusRecovered, items[1].Status)
}

func TestRecoveryExecutor_UnknownPayloadFailsItem(t *testing.T) {
	fx := newExecutorFixture(t)

	summary, err := fx.executor.RecoverItems(context.Background(), []domain.RecoverableItem{{
		ID:     "mystery",
		Status: domain.RecoveryStatusPending,
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.FailedCount)
	assert.Contains(t, summary.Results[0].Error, "unknown recovery payload")
}

func TestRecoveryExecutor_CountersAlwaysSumToTotal(t *testing.T) {
	fx := newExecutorFixture(t)
	ctx := context.Background()

	require.NoError(t, fx.drafts.Save(ctx, &domain.Draft{
		ID:        "d-ok",
		SavedAt:   time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	skipped := draftItem("d-skip")
	skipped.Status = domain.RecoveryStatusSkipped
	items := []domain.RecoverableItem{
		draftItem("d-ok"),
		skipped,
		{
			ID:       "batch-gone",
			Type:     domain.RecoverableTypeBatch,
			Status:   domain.RecoveryStatusPending,
			Data:     domain.BatchRecoveryData{JobID: "gone"},
		},
	}

	summary, err := fx.executor.RecoverItems(ctx, items)
	require.NoError(t, err)
	assert.Equal(t, summary.TotalItems,
		summary.SuccessCount+summary.FailedCount+summary.SkippedCount)
	assert.False(t, summary.Timestamp.IsZero())
}
