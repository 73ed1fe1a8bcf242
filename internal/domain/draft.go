package domain

import "time"

// Draft is an auto-saved, not-yet-finalized conversation. Drafts expire
// after a TTL and expired drafts are ignored by recovery detection.
type Draft struct {
	ID             string    `gorm:"type:text;primaryKey" json:"id"`
	ConversationID string    `gorm:"type:text;index:idx_drafts_conversation" json:"conversation_id"`
	Topic          string    `gorm:"type:text" json:"topic"`
	Turns          TurnList  `gorm:"type:text" json:"turns"`
	Version        int       `gorm:"default:1" json:"version"`
	SavedAt        time.Time `json:"saved_at"`
	ExpiresAt      time.Time `gorm:"index:idx_drafts_expires" json:"expires_at"`
}

// TableName returns the database table name for Draft.
func (Draft) TableName() string {
	return "drafts"
}

// Expired reports whether the draft's TTL has elapsed at the given time.
func (d *Draft) Expired(now time.Time) bool {
	return d.ExpiresAt.Before(now)
}
