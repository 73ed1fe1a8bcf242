package domain

import "time"

// Backup is a time-limited snapshot of conversations created before a
// destructive operation. FilePath is the object-storage key of the JSON
// archive holding the snapshotted conversation records.
type Backup struct {
	ID              string      `gorm:"type:text;primaryKey" json:"id"`
	Reason          string      `gorm:"type:text" json:"reason"`
	ConversationIDs StringArray `gorm:"type:text" json:"conversation_ids"`
	FilePath        string      `gorm:"type:text;not null" json:"file_path"`
	CreatedAt       time.Time   `json:"created_at"`
	ExpiresAt       time.Time   `gorm:"index:idx_backups_expires" json:"expires_at"`
}

// TableName returns the database table name for Backup.
func (Backup) TableName() string {
	return "backup_exports"
}

// BackupArchive is the JSON document stored at a backup's FilePath.
type BackupArchive struct {
	BackupID      string         `json:"backup_id"`
	CreatedAt     time.Time      `json:"created_at"`
	Conversations []Conversation `json:"conversations"`
}
