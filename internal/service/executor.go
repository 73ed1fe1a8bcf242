package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jamesjordanmarketing/train-data-sub008/internal/domain"
	"github.com/jamesjordanmarketing/train-data-sub008/internal/logger"
	"github.com/jamesjordanmarketing/train-data-sub008/internal/repository"
	"github.com/jamesjordanmarketing/train-data-sub008/internal/storage"
)

// Compile-time check that every payload variant has a dispatch arm in
// recoverItem. Adding a variant without extending the switch keeps this
// list from compiling.
var _ = []domain.RecoveryPayload{
	domain.DraftRecoveryData{},
	domain.BatchRecoveryData{},
	domain.BackupRecoveryData{},
}

// RecoveryExecutor applies the recovery action for each item type. Every
// item is fully isolated: one failure never stops the rest of the session.
type RecoveryExecutor struct {
	drafts        *repository.DraftRepository
	checkpoints   *repository.CheckpointRepository
	backups       *repository.BackupRepository
	conversations *repository.ConversationRepository
	store         storage.ObjectStorage
}

// NewRecoveryExecutor creates a RecoveryExecutor.
func NewRecoveryExecutor(
	drafts *repository.DraftRepository,
	checkpoints *repository.CheckpointRepository,
	backups *repository.BackupRepository,
	conversations *repository.ConversationRepository,
	store storage.ObjectStorage,
) *RecoveryExecutor {
	return &RecoveryExecutor{
		drafts:        drafts,
		checkpoints:   checkpoints,
		backups:       backups,
		conversations: conversations,
		store:         store,
	}
}

// RecoverItems processes items in order. Items already marked skipped are
// counted but never executed; all others dispatch on their payload type.
// Results preserve the input order, and the three counters always sum to
// the number of submitted items.
func (e *RecoveryExecutor) RecoverItems(ctx context.Context, items []domain.RecoverableItem) (*domain.RecoverySummary, error) {
	ctx = logger.SetComponent(ctx, "recovery-executor")
	logger.CtxInfo(ctx, "starting recovery session: %d item(s)", len(items))

	summary := &domain.RecoverySummary{
		TotalItems: len(items),
		Results:    make([]domain.RecoveryResult, 0, len(items)),
	}

	for i := range items {
		item := &items[i]

		if item.Status == domain.RecoveryStatusSkipped {
			summary.SkippedCount++
			summary.Results = append(summary.Results, domain.RecoveryResult{
				ItemID:  item.ID,
				Success: true,
				Error:   "Skipped by user",
			})
			continue
		}

		result := e.recoverItem(ctx, item)
		summary.Results = append(summary.Results, result)

		if result.Success {
			item.Status = domain.RecoveryStatusRecovered
			summary.SuccessCount++
		} else {
			item.Status = domain.RecoveryStatusFailed
			item.Error = result.Error
			summary.FailedCount++
		}
	}

	summary.Timestamp = time.Now().UTC()
	logger.CtxInfo(ctx, "recovery session finished: %d recovered, %d failed, %d skipped",
		summary.SuccessCount, summary.FailedCount, summary.SkippedCount)
	return summary, nil
}

// recoverItem dispatches one item by payload type. Any error is folded
// into the result so the caller's loop never aborts.
func (e *RecoveryExecutor) recoverItem(ctx context.Context, item *domain.RecoverableItem) domain.RecoveryResult {
	ctx = logger.WithField(ctx, logger.FieldRecoveryType, string(item.Type))

	var err error
	switch data := item.Data.(type) {
	case domain.DraftRecoveryData:
		err = e.recoverDraft(ctx, &data)
	case domain.BatchRecoveryData:
		err = e.recoverBatch(ctx, &data)
	case domain.BackupRecoveryData:
		err = e.recoverBackup(ctx, &data)
	default:
		err = fmt.Errorf("unknown recovery payload %T", item.Data)
	}

	if err != nil {
		logger.CtxWarn(ctx, "recovery failed for %s: %v", item.ID, err)
		return domain.RecoveryResult{ItemID: item.ID, Success: false, Error: err.Error()}
	}
	return domain.RecoveryResult{ItemID: item.ID, Success: true}
}

// recoverDraft removes the draft after the operator accepted it. The
// draft content itself was already surfaced through the detection payload.
func (e *RecoveryExecutor) recoverDraft(ctx context.Context, data *domain.DraftRecoveryData) error {
	if err := e.drafts.Delete(ctx, data.DraftID); err != nil {
		return fmt.Errorf("delete draft %s: %w", data.DraftID, err)
	}
	logger.CtxInfo(ctx, "draft %s recovered", data.DraftID)
	return nil
}

// recoverBatch clears the abandoned checkpoint. Resuming the job instead
// goes through the batch controller's explicit resume path.
func (e *RecoveryExecutor) recoverBatch(ctx context.Context, data *domain.BatchRecoveryData) error {
	if err := e.checkpoints.Cleanup(ctx, data.JobID); err != nil {
		return fmt.Errorf("cleanup checkpoint for job %s: %w", data.JobID, err)
	}
	logger.CtxInfo(ctx, "checkpoint for job %s cleared", data.JobID)
	return nil
}

// recoverBackup downloads the archive from object storage and restores
// every conversation it holds, upserting over any live records.
func (e *RecoveryExecutor) recoverBackup(ctx context.Context, data *domain.BackupRecoveryData) error {
	body, err := e.store.Download(ctx, data.FilePath)
	if err != nil {
		return fmt.Errorf("download backup archive %s: %w", data.FilePath, err)
	}
	defer body.Close()

	var archive domain.BackupArchive
	if err := json.NewDecoder(body).Decode(&archive); err != nil {
		return fmt.Errorf("decode backup archive %s: %w", data.FilePath, err)
	}

	for i := range archive.Conversations {
		conv := &archive.Conversations[i]
		if err := e.conversations.Upsert(ctx, conv); err != nil {
			return fmt.Errorf("restore conversation %s: %w", conv.ID, err)
		}
	}

	logger.CtxInfo(ctx, "backup %s restored: %d conversation(s)", data.BackupID, len(archive.Conversations))
	return nil
}
