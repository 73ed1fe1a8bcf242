package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// ComponentStatus is the three-state outcome of a range-based quality component.
type ComponentStatus string

const (
	StatusOptimal    ComponentStatus = "optimal"
	StatusAcceptable ComponentStatus = "acceptable"
	StatusPoor       ComponentStatus = "poor"
)

// StructureStatus is the outcome of the structure component.
type StructureStatus string

const (
	StructureValid     StructureStatus = "valid"
	StructureHasIssues StructureStatus = "has_issues"
)

// ConfidenceLevel buckets the confidence component score.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// FactorImpact marks a confidence factor as helping or hurting the score.
type FactorImpact string

const (
	ImpactPositive FactorImpact = "positive"
	ImpactNegative FactorImpact = "negative"
)

// ConfidenceFactor is one named signal feeding the confidence component.
type ConfidenceFactor struct {
	Name        string       `json:"name"`
	Impact      FactorImpact `json:"impact"`
	Description string       `json:"description"`
}

// TurnCountScore evaluates the conversation's turn count against tier targets.
type TurnCountScore struct {
	Score   float64         `json:"score"`
	Weight  float64         `json:"weight"`
	Actual  int             `json:"actual"`
	Target  string          `json:"target"`
	Status  ComponentStatus `json:"status"`
	Message string          `json:"message"`
}

// LengthScore evaluates total and per-turn character length.
type LengthScore struct {
	Score         float64         `json:"score"`
	Weight        float64         `json:"weight"`
	TotalLength   int             `json:"total_length"`
	AvgTurnLength int             `json:"avg_turn_length"`
	Target        string          `json:"target"`
	Status        ComponentStatus `json:"status"`
	Message       string          `json:"message"`
}

// StructureScore validates structural invariants of the conversation.
type StructureScore struct {
	Score   float64         `json:"score"`
	Weight  float64         `json:"weight"`
	Valid   bool            `json:"valid"`
	Issues  []string        `json:"issues"`
	Status  StructureStatus `json:"status"`
	Message string          `json:"message"`
}

// ConfidenceScore aggregates coherence signals into a confidence level.
type ConfidenceScore struct {
	Score   float64            `json:"score"`
	Weight  float64            `json:"weight"`
	Level   ConfidenceLevel    `json:"level"`
	Factors []ConfidenceFactor `json:"factors"`
	Message string             `json:"message"`
}

// QualityBreakdown is the per-component detail behind an overall score.
type QualityBreakdown struct {
	TurnCount  TurnCountScore  `json:"turn_count"`
	Length     LengthScore     `json:"length"`
	Structure  StructureScore  `json:"structure"`
	Confidence ConfidenceScore `json:"confidence"`
}

// QualityScore is an immutable snapshot of a conversation's quality
// evaluation. AutoFlagged is the only field the batch controller reads to
// decide between pending_review and needs_revision.
type QualityScore struct {
	Overall         float64          `json:"overall"`
	Breakdown       QualityBreakdown `json:"breakdown"`
	Recommendations []string         `json:"recommendations"`
	AutoFlagged     bool             `json:"auto_flagged"`
	CalculatedAt    time.Time        `json:"calculated_at"`
}

// Value implements the driver.Valuer interface so the snapshot can be
// embedded in the conversation row as a JSON column.
func (q QualityScore) Value() (driver.Value, error) {
	b, err := json.Marshal(q)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (q *QualityScore) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan QualityScore")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, q)
}
