package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// TierType identifies which generation tier a conversation belongs to.
// Each tier carries its own quality thresholds.
type TierType string

const (
	TierTemplate TierType = "template"
	TierScenario TierType = "scenario"
	TierEdgeCase TierType = "edge_case"
)

// ConversationStatus represents the review lifecycle of a generated conversation.
type ConversationStatus string

const (
	ConversationStatusGenerated     ConversationStatus = "generated"
	ConversationStatusPendingReview ConversationStatus = "pending_review"
	ConversationStatusNeedsRevision ConversationStatus = "needs_revision"
	ConversationStatusApproved      ConversationStatus = "approved"
)

// TurnRole is the speaker of a single conversation turn.
type TurnRole string

const (
	RoleUser      TurnRole = "user"
	RoleAssistant TurnRole = "assistant"
)

// Turn is a single message within a conversation.
type Turn struct {
	Role    TurnRole `json:"role"`
	Content string   `json:"content"`
}

// TurnList stores conversation turns as a JSON column.
type TurnList []Turn

// Value implements the driver.Valuer interface for database serialization.
func (t TurnList) Value() (driver.Value, error) {
	if t == nil {
		return "[]", nil
	}
	b, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (t *TurnList) Scan(value interface{}) error {
	if value == nil {
		*t = TurnList{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan TurnList")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, t)
}

// Conversation represents a generated training conversation and its review state.
// The quality score snapshot taken at generation time is stored alongside the
// record and is authoritative for historical review.
type Conversation struct {
	ID         string             `gorm:"type:text;primaryKey" json:"id"`
	Title      string             `gorm:"type:text" json:"title"`
	Tier       TierType           `gorm:"type:text;index:idx_conversations_tier" json:"tier"`
	Status     ConversationStatus `gorm:"type:text;index:idx_conversations_status;default:generated" json:"status"`
	Turns      TurnList           `gorm:"type:text" json:"turns"`
	TotalTurns int                `json:"total_turns"`
	TotalChars int                `json:"total_chars"`
	Parameters JSONMap            `gorm:"type:text" json:"parameters"`
	Quality    *QualityScore      `gorm:"type:text" json:"quality,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string {
	return "conversations"
}

// Template holds the prompt skeleton and parameter defaults used to
// generate conversations for a tier.
type Template struct {
	ID        string    `gorm:"type:text;primaryKey" json:"id"`
	Name      string    `gorm:"type:text;not null" json:"name"`
	Tier      TierType  `gorm:"type:text;index:idx_templates_tier" json:"tier"`
	Prompt    string    `gorm:"type:text" json:"prompt"`
	Defaults  JSONMap   `gorm:"type:text" json:"defaults"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Template.
func (Template) TableName() string {
	return "templates"
}
