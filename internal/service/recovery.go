package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jamesjordanmarketing/train-data-sub008/internal/config"
	"github.com/jamesjordanmarketing/train-data-sub008/internal/domain"
	"github.com/jamesjordanmarketing/train-data-sub008/internal/logger"
	"github.com/jamesjordanmarketing/train-data-sub008/internal/repository"
)

// Work normalization denominators per source: a draft with 10 turns, a
// backup with 50 conversations, or a checkpoint at 100% each count as a
// full unit of recoverable work.
const (
	draftWorkDenominator  = 10.0
	backupWorkDenominator = 50.0
)

// RecoveryDetector scans the three abandoned-work sources and ranks what
// it finds. Detection is read-only: it never mutates drafts, checkpoints,
// or backups.
type RecoveryDetector struct {
	drafts        *repository.DraftRepository
	checkpoints   *repository.CheckpointRepository
	backups       *repository.BackupRepository
	conversations *repository.ConversationRepository
	cfg           *config.RecoveryConfig
}

// NewRecoveryDetector creates a RecoveryDetector.
func NewRecoveryDetector(
	drafts *repository.DraftRepository,
	checkpoints *repository.CheckpointRepository,
	backups *repository.BackupRepository,
	conversations *repository.ConversationRepository,
	cfg *config.RecoveryConfig,
) *RecoveryDetector {
	return &RecoveryDetector{
		drafts:        drafts,
		checkpoints:   checkpoints,
		backups:       backups,
		conversations: conversations,
		cfg:           cfg,
	}
}

// DetectRecoverableData scans drafts, incomplete checkpoints, and
// unexpired backups in parallel. A failing source contributes an error to
// the aggregate without discarding the other sources' items; the returned
// items are always usable. Items are sorted by priority descending, with
// recency then work amount breaking ties.
func (d *RecoveryDetector) DetectRecoverableData(ctx context.Context) ([]domain.RecoverableItem, error) {
	ctx = logger.SetComponent(ctx, "recovery-detector")
	now := time.Now()

	var (
		mu       sync.Mutex
		items    []domain.RecoverableItem
		scanErrs *multierror.Error
	)

	scan := func(name string, fn func() ([]domain.RecoverableItem, error)) func() {
		return func() {
			found, err := fn()
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				scanErrs = multierror.Append(scanErrs, fmt.Errorf("%s scan: %w", name, err))
				return
			}
			items = append(items, found...)
		}
	}

	var wg sync.WaitGroup
	for _, f := range []func(){
		scan("draft", func() ([]domain.RecoverableItem, error) { return d.detectDrafts(ctx, now) }),
		scan("batch", func() ([]domain.RecoverableItem, error) { return d.detectIncompleteBatches(ctx, now) }),
		scan("backup", func() ([]domain.RecoverableItem, error) { return d.detectAvailableBackups(ctx, now) }),
	} {
		wg.Add(1)
		go func(fn func()) {
			defer wg.Done()
			fn()
		}(f)
	}
	wg.Wait()

	d.sortByPriority(items)

	logger.CtxInfo(ctx, "recovery detection finished: %d item(s) found", len(items))
	return items, scanErrs.ErrorOrNil()
}

// detectDrafts surfaces unexpired drafts. A draft whose conversation id
// already exists as a finalized record is tagged with the conflict; the
// resolution is left to the operator.
func (d *RecoveryDetector) detectDrafts(ctx context.Context, now time.Time) ([]domain.RecoverableItem, error) {
	drafts, err := d.drafts.ListUnexpired(ctx, now)
	if err != nil {
		return nil, err
	}

	items := make([]domain.RecoverableItem, 0, len(drafts))
	for _, draft := range drafts {
		turnCount := len(draft.Turns)
		work := math.Min(1, float64(turnCount)/draftWorkDenominator)

		conflictsWith := ""
		if draft.ConversationID != "" {
			exists, err := d.conversations.Exists(ctx, draft.ConversationID)
			if err != nil {
				return nil, err
			}
			if exists {
				conflictsWith = draft.ConversationID
			}
		}

		topic := draft.Topic
		if topic == "" {
			topic = "Untitled conversation"
		}

		items = append(items, domain.RecoverableItem{
			ID:          "draft-" + draft.ID,
			Type:        domain.RecoverableTypeDraft,
			SourceID:    draft.ID,
			Timestamp:   draft.SavedAt,
			Description: fmt.Sprintf("Draft: %q (%d turns)", topic, turnCount),
			Priority:    d.priority(now, draft.SavedAt, work),
			WorkAmount:  float64(turnCount),
			Status:      domain.RecoveryStatusPending,
			Data: domain.DraftRecoveryData{
				DraftID:        draft.ID,
				ConversationID: draft.ConversationID,
				Topic:          topic,
				Turns:          turnCount,
				LastSaved:      draft.SavedAt,
				ConflictsWith:  conflictsWith,
			},
		})
	}
	return items, nil
}

// detectIncompleteBatches surfaces checkpoints below 100% progress.
func (d *RecoveryDetector) detectIncompleteBatches(ctx context.Context, now time.Time) ([]domain.RecoverableItem, error) {
	checkpoints, err := d.checkpoints.ListIncomplete(ctx)
	if err != nil {
		return nil, err
	}

	items := make([]domain.RecoverableItem, 0, len(checkpoints))
	for _, cp := range checkpoints {
		completed := len(cp.CompletedItemIDs)
		failed := len(cp.FailedItemIDs)
		work := float64(cp.ProgressPercentage) / 100

		items = append(items, domain.RecoverableItem{
			ID:          "batch-" + cp.JobID,
			Type:        domain.RecoverableTypeBatch,
			SourceID:    cp.JobID,
			Timestamp:   cp.LastCheckpointAt,
			Description: fmt.Sprintf("Batch job: %d%% complete (%d done, %d failed)", cp.ProgressPercentage, completed, failed),
			Priority:    d.priority(now, cp.LastCheckpointAt, work),
			WorkAmount:  float64(completed + failed),
			Status:      domain.RecoveryStatusPending,
			Data: domain.BatchRecoveryData{
				JobID:              cp.JobID,
				TotalItems:         cp.TotalItems,
				CompletedItems:     completed,
				FailedItems:        failed,
				ProgressPercentage: cp.ProgressPercentage,
				LastCheckpoint:     cp.LastCheckpointAt,
			},
		})
	}
	return items, nil
}

// detectAvailableBackups surfaces backups whose expiry is still in the
// future. Expired backups are invisible here even if their rows remain.
func (d *RecoveryDetector) detectAvailableBackups(ctx context.Context, now time.Time) ([]domain.RecoverableItem, error) {
	backups, err := d.backups.ListExpiringAfter(ctx, now)
	if err != nil {
		return nil, err
	}

	items := make([]domain.RecoverableItem, 0, len(backups))
	for _, backup := range backups {
		count := len(backup.ConversationIDs)
		work := math.Min(1, float64(count)/backupWorkDenominator)

		items = append(items, domain.RecoverableItem{
			ID:          "backup-" + backup.ID,
			Type:        domain.RecoverableTypeBackup,
			SourceID:    backup.ID,
			Timestamp:   backup.CreatedAt,
			Description: fmt.Sprintf("Backup: %d conversations (%s)", count, backup.Reason),
			Priority:    d.priority(now, backup.CreatedAt, work),
			WorkAmount:  float64(count),
			Status:      domain.RecoveryStatusPending,
			Data: domain.BackupRecoveryData{
				BackupID:          backup.ID,
				ConversationCount: count,
				Reason:            backup.Reason,
				FilePath:          backup.FilePath,
				ExpiresAt:         backup.ExpiresAt,
			},
		})
	}
	return items, nil
}

// priority blends recency and work amount into a 0-100 score. Items from
// the last hour score full recency, decaying by 10 points per hour of
// age; the work factor is the normalized work scaled to 0-100.
func (d *RecoveryDetector) priority(now, timestamp time.Time, work float64) int {
	ageHours := now.Sub(timestamp).Hours()
	recency := math.Max(0, math.Min(100, 100-ageHours*10))
	workFactor := work * 100
	return int(math.Round(recency*d.cfg.RecencyWeight + workFactor*d.cfg.WorkWeight))
}

// sortByPriority orders items by priority descending. Equal priorities
// fall back to recency, then the raw work quantity, so the ordering is
// total and deterministic even when the priority's normalized work
// factor saturates at its cap.
func (d *RecoveryDetector) sortByPriority(items []domain.RecoverableItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Priority != items[j].Priority {
			return items[i].Priority > items[j].Priority
		}
		if !items[i].Timestamp.Equal(items[j].Timestamp) {
			return items[i].Timestamp.After(items[j].Timestamp)
		}
		return items[i].WorkAmount > items[j].WorkAmount
	})
}
