package domain

import "time"

// BatchJobStatus represents the status of a batch generation job.
type BatchJobStatus string

const (
	BatchJobStatusQueued     BatchJobStatus = "queued"
	BatchJobStatusProcessing BatchJobStatus = "processing"
	BatchJobStatusCompleted  BatchJobStatus = "completed"
	BatchJobStatusFailed     BatchJobStatus = "failed"
)

// Terminal reports whether the job has reached a terminal status.
func (s BatchJobStatus) Terminal() bool {
	return s == BatchJobStatusCompleted || s == BatchJobStatusFailed
}

// ErrorHandlingMode controls how a job reacts to terminal item failures.
// In continue mode failed items accumulate and the job still completes;
// in stop mode the first terminal failure halts dispatch and fails the job.
type ErrorHandlingMode string

const (
	ErrorHandlingContinue ErrorHandlingMode = "continue"
	ErrorHandlingStop     ErrorHandlingMode = "stop"
)

// BatchJob represents a batch generation job and its progress counters.
// Counters are a cache of checkpoint state: completedItems is always
// successfulItems + failedItems and never exceeds totalItems. On restart
// they are rebuilt from the checkpoint, never the other way around.
type BatchJob struct {
	ID              string            `gorm:"type:text;primaryKey" json:"id"`
	Name            string            `gorm:"type:text" json:"name"`
	Status          BatchJobStatus    `gorm:"type:text;index:idx_batch_jobs_status;default:queued" json:"status"`
	TotalItems      int               `gorm:"default:0" json:"total_items"`
	CompletedItems  int               `gorm:"default:0" json:"completed_items"`
	FailedItems     int               `gorm:"default:0" json:"failed_items"`
	SuccessfulItems int               `gorm:"default:0" json:"successful_items"`
	Concurrency     int               `gorm:"default:3" json:"concurrency"`
	ErrorHandling   ErrorHandlingMode `gorm:"type:text;default:continue" json:"error_handling"`
	FailureReason   string            `gorm:"type:text" json:"failure_reason,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	StartedAt       *time.Time        `json:"started_at,omitempty"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty"`
}

// TableName returns the database table name for BatchJob.
func (BatchJob) TableName() string {
	return "batch_jobs"
}

// BatchItemStatus represents the per-item lifecycle within a job.
type BatchItemStatus string

const (
	BatchItemStatusPending    BatchItemStatus = "pending"
	BatchItemStatusProcessing BatchItemStatus = "processing"
	BatchItemStatusSucceeded  BatchItemStatus = "succeeded"
	BatchItemStatusFailed     BatchItemStatus = "failed"
)

// BatchItem is one generation request within a job. Position is the
// stable resume cursor; an item is owned exclusively by its job.
type BatchItem struct {
	ID             string          `gorm:"type:text;primaryKey" json:"id"`
	JobID          string          `gorm:"type:text;not null;index:idx_batch_items_job,unique" json:"job_id"`
	Position       int             `gorm:"not null;index:idx_batch_items_job,unique" json:"position"`
	Topic          string          `gorm:"type:text" json:"topic"`
	Tier           TierType        `gorm:"type:text" json:"tier"`
	TemplateID     string          `gorm:"type:text" json:"template_id,omitempty"`
	Parameters     JSONMap         `gorm:"type:text" json:"parameters"`
	Status         BatchItemStatus `gorm:"type:text;default:pending" json:"status"`
	ConversationID string          `gorm:"type:text" json:"conversation_id,omitempty"`
	Error          string          `gorm:"type:text" json:"error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// TableName returns the database table name for BatchItem.
func (BatchItem) TableName() string {
	return "batch_items"
}
