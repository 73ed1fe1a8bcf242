package domain

import "time"

// Checkpoint is the durable progress ledger for one batch job. The item id
// sets are append-only and disjoint: an id recorded as completed is never
// recorded as failed and vice versa. The row is deleted only on cleanup.
type Checkpoint struct {
	ID               string      `gorm:"type:text;primaryKey" json:"id"`
	JobID            string      `gorm:"type:text;not null;uniqueIndex:idx_checkpoints_job" json:"job_id"`
	TotalItems       int         `gorm:"not null" json:"total_items"`
	CompletedItemIDs StringArray `gorm:"type:text" json:"completed_item_ids"`
	FailedItemIDs    StringArray `gorm:"type:text" json:"failed_item_ids"`
	// ProgressPercentage is derived from the id sets and totalItems,
	// persisted so listIncomplete can filter without deserializing them.
	ProgressPercentage int       `gorm:"default:0" json:"progress_percentage"`
	LastCheckpointAt   time.Time `json:"last_checkpoint_at"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// TableName returns the database table name for Checkpoint.
func (Checkpoint) TableName() string {
	return "batch_checkpoints"
}

// Recorded reports whether the item id is already present in either set.
func (c *Checkpoint) Recorded(itemID string) bool {
	return c.CompletedItemIDs.Contains(itemID) || c.FailedItemIDs.Contains(itemID)
}

// BatchProgress summarizes checkpoint state for status reporting.
type BatchProgress struct {
	TotalItems         int `json:"total_items"`
	CompletedItems     int `json:"completed_items"`
	FailedItems        int `json:"failed_items"`
	PendingItems       int `json:"pending_items"`
	ProgressPercentage int `json:"progress_percentage"`
}
