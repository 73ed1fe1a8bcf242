package domain

import "time"

// RecoverableItemType discriminates the kinds of abandoned work the
// recovery detector can surface.
type RecoverableItemType string

const (
	RecoverableTypeDraft  RecoverableItemType = "DRAFT_CONVERSATION"
	RecoverableTypeBatch  RecoverableItemType = "INCOMPLETE_BATCH"
	RecoverableTypeBackup RecoverableItemType = "AVAILABLE_BACKUP"
)

// RecoveryStatus tracks a recoverable item through one recovery session.
type RecoveryStatus string

const (
	RecoveryStatusPending   RecoveryStatus = "pending"
	RecoveryStatusSkipped   RecoveryStatus = "skipped"
	RecoveryStatusRecovered RecoveryStatus = "recovered"
	RecoveryStatusFailed    RecoveryStatus = "failed"
)

// RecoveryPayload is the sealed payload union for recoverable items. The
// unexported marker keeps the set of variants closed to this package, so
// the executor's type switch together with its compile-time variant list
// stays in lockstep with the types defined here.
type RecoveryPayload interface {
	recoveryPayload()
}

// DraftRecoveryData describes an abandoned draft conversation.
// ConflictsWith is set when the draft's conversation id already exists as
// a finalized record; resolution is left to the operator.
type DraftRecoveryData struct {
	DraftID        string    `json:"draft_id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Topic          string    `json:"topic"`
	Turns          int       `json:"turns"`
	LastSaved      time.Time `json:"last_saved"`
	ConflictsWith  string    `json:"conflicts_with,omitempty"`
}

func (DraftRecoveryData) recoveryPayload() {}

// BatchRecoveryData describes an incomplete batch checkpoint.
type BatchRecoveryData struct {
	JobID              string    `json:"job_id"`
	TotalItems         int       `json:"total_items"`
	CompletedItems     int       `json:"completed_items"`
	FailedItems        int       `json:"failed_items"`
	ProgressPercentage int       `json:"progress_percentage"`
	LastCheckpoint     time.Time `json:"last_checkpoint"`
}

func (BatchRecoveryData) recoveryPayload() {}

// BackupRecoveryData describes a restorable, unexpired backup.
type BackupRecoveryData struct {
	BackupID          string    `json:"backup_id"`
	ConversationCount int       `json:"conversation_count"`
	Reason            string    `json:"reason"`
	FilePath          string    `json:"file_path"`
	ExpiresAt         time.Time `json:"expires_at"`
}

func (BackupRecoveryData) recoveryPayload() {}

// RecoverableItem is one unit of abandoned work surfaced by a detection
// pass. Items live only for the duration of a recovery session and are
// never persisted.
type RecoverableItem struct {
	ID          string              `json:"id"`
	Type        RecoverableItemType `json:"type"`
	SourceID    string              `json:"source_id"`
	Timestamp   time.Time           `json:"timestamp"`
	Description string              `json:"description"`
	Priority    int                 `json:"priority"`
	// WorkAmount is the raw quantity of recoverable work (draft turns,
	// recorded batch items, archived conversations), kept for
	// deterministic ordering when priorities tie. The priority factor
	// normalizes and caps work, so only the raw quantity can still
	// separate two large items.
	WorkAmount float64        `json:"-"`
	Status     RecoveryStatus `json:"status"`
	Data       RecoveryPayload `json:"data"`
	Error      string         `json:"error,omitempty"`
}

// RecoveryResult is the per-item outcome of a recovery attempt.
type RecoveryResult struct {
	ItemID  string `json:"item_id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// RecoverySummary aggregates a recovery session. Results preserve the
// input item order; successCount + failedCount + skippedCount equals the
// number of items submitted.
type RecoverySummary struct {
	TotalItems   int              `json:"total_items"`
	SuccessCount int              `json:"success_count"`
	FailedCount  int              `json:"failed_count"`
	SkippedCount int              `json:"skipped_count"`
	Results      []RecoveryResult `json:"results"`
	Timestamp    time.Time        `json:"timestamp"`
}
