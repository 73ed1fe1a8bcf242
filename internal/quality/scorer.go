package quality

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jamesjordanmarketing/train-data-sub008/internal/domain"
)

// ErrNoTurns is returned when a conversation has no turns to score.
// Malformed input is an error, never a zero score.
var ErrNoTurns = errors.New("conversation has no turns")

// Component weights (must sum to 1.0)
const (
	weightTurnCount  = 0.30
	weightLength     = 0.25
	weightStructure  = 0.30
	weightConfidence = 0.15
)

// DefaultAutoFlagThreshold marks conversations below this overall score
// for revision instead of review.
const DefaultAutoFlagThreshold = 6.0

type scoreRange struct {
	min, max float64
}

type tierThresholds struct {
	turnCountOptimal    scoreRange
	turnCountAcceptable scoreRange
	avgLenOptimal       scoreRange
	avgLenAcceptable    scoreRange
	minTotalLength      int
}

// Tier-specific thresholds
var tierConfig = map[domain.TierType]tierThresholds{
	domain.TierTemplate: {
		turnCountOptimal:    scoreRange{8, 16},
		turnCountAcceptable: scoreRange{6, 20},
		avgLenOptimal:       scoreRange{100, 400},
		avgLenAcceptable:    scoreRange{50, 600},
		minTotalLength:      1000,
	},
	domain.TierScenario: {
		turnCountOptimal:    scoreRange{10, 20},
		turnCountAcceptable: scoreRange{8, 24},
		avgLenOptimal:       scoreRange{150, 500},
		avgLenAcceptable:    scoreRange{80, 700},
		minTotalLength:      1500,
	},
	domain.TierEdgeCase: {
		turnCountOptimal:    scoreRange{6, 12},
		turnCountAcceptable: scoreRange{4, 16},
		avgLenOptimal:       scoreRange{120, 450},
		avgLenAcceptable:    scoreRange{60, 650},
		minTotalLength:      800,
	},
}

// Scorer evaluates conversation quality. It holds no mutable state: the
// same conversation always produces the same breakdown and overall score.
type Scorer struct {
	autoFlagThreshold float64
}

// NewScorer creates a Scorer with the given auto-flag threshold. A
// non-positive threshold falls back to the default.
func NewScorer(autoFlagThreshold float64) *Scorer {
	if autoFlagThreshold <= 0 {
		autoFlagThreshold = DefaultAutoFlagThreshold
	}
	return &Scorer{autoFlagThreshold: autoFlagThreshold}
}

// Score evaluates a conversation and returns its quality snapshot.
func (s *Scorer) Score(conv *domain.Conversation) (*domain.QualityScore, error) {
	if conv == nil {
		return nil, fmt.Errorf("score conversation: %w", errors.New("conversation is nil"))
	}
	if len(conv.Turns) == 0 {
		return nil, fmt.Errorf("score conversation %s: %w", conv.ID, ErrNoTurns)
	}

	cfg, ok := tierConfig[conv.Tier]
	if !ok {
		return nil, fmt.Errorf("score conversation %s: unknown tier %q", conv.ID, conv.Tier)
	}

	breakdown := domain.QualityBreakdown{
		TurnCount:  evaluateTurnCount(conv.Turns, cfg),
		Length:     evaluateLength(conv.Turns, cfg),
		Structure:  evaluateStructure(conv.Turns),
		Confidence: evaluateConfidence(conv.Turns),
	}

	overall := breakdown.TurnCount.Score*weightTurnCount +
		breakdown.Length.Score*weightLength +
		breakdown.Structure.Score*weightStructure +
		breakdown.Confidence.Score*weightConfidence
	overall = clamp(overall, 0, 10)

	score := &domain.QualityScore{
		Overall:      round1(overall),
		Breakdown:    breakdown,
		AutoFlagged:  overall < s.autoFlagThreshold,
		CalculatedAt: time.Now().UTC(),
	}
	score.Recommendations = buildRecommendations(score)
	return score, nil
}

// evaluateTurnCount scores the turn count against tier target ranges.
// Within optimal scores 10; within acceptable degrades linearly from 7
// down to 5 as the count moves away from the optimal band.
func evaluateTurnCount(turns domain.TurnList, cfg tierThresholds) domain.TurnCountScore {
	actual := len(turns)
	opt, acc := cfg.turnCountOptimal, cfg.turnCountAcceptable
	n := float64(actual)

	var score float64
	var status domain.ComponentStatus
	var message string

	switch {
	case n >= opt.min && n <= opt.max:
		score = 10
		status = domain.StatusOptimal
		message = "Turn count is within optimal range"
	case n >= acc.min && n <= acc.max:
		score = graduated(n, opt, acc)
		status = domain.StatusAcceptable
		if n < opt.min {
			message = "Turn count is slightly below optimal"
		} else {
			message = "Turn count is slightly above optimal"
		}
	case n < acc.min:
		score = 3
		status = domain.StatusPoor
		message = "Turn count is too low - conversation may be too brief"
	default:
		score = 4
		status = domain.StatusPoor
		message = "Turn count is too high - conversation may be too lengthy"
	}

	return domain.TurnCountScore{
		Score:   round1(score),
		Weight:  weightTurnCount,
		Actual:  actual,
		Target:  rangeTarget(opt, acc),
		Status:  status,
		Message: message,
	}
}

// evaluateLength scores total and average per-turn character length.
// A conversation below the tier's minimum total length is poor regardless
// of its average turn length.
func evaluateLength(turns domain.TurnList, cfg tierThresholds) domain.LengthScore {
	total := 0
	for _, t := range turns {
		total += len(t.Content)
	}
	avg := float64(total) / float64(len(turns))
	opt, acc := cfg.avgLenOptimal, cfg.avgLenAcceptable

	var score float64
	var status domain.ComponentStatus
	var message string

	switch {
	case total < cfg.minTotalLength:
		score = 3
		status = domain.StatusPoor
		message = "Overall conversation length is too short"
	case avg >= opt.min && avg <= opt.max:
		score = 10
		status = domain.StatusOptimal
		message = "Turn length is within optimal range"
	case avg >= acc.min && avg <= acc.max:
		score = graduated(avg, opt, acc)
		status = domain.StatusAcceptable
		if avg < opt.min {
			message = "Turn length is slightly below optimal"
		} else {
			message = "Turn length is slightly above optimal"
		}
	case avg < acc.min:
		score = 3
		status = domain.StatusPoor
		message = "Turn length is too short - responses lack detail"
	default:
		score = 4
		status = domain.StatusPoor
		message = "Turn length is too long - responses may be overly verbose"
	}

	return domain.LengthScore{
		Score:         round1(score),
		Weight:        weightLength,
		TotalLength:   total,
		AvgTurnLength: int(math.Round(avg)),
		Target:        fmt.Sprintf("%.0f-%.0f chars/turn (optimal)", opt.min, opt.max),
		Status:        status,
		Message:       message,
	}
}

// evaluateStructure validates structural invariants and degrades the
// score proportionally to the issues found.
func evaluateStructure(turns domain.TurnList) domain.StructureScore {
	issues := []string{}
	score := 10.0

	if turns[0].Role != domain.RoleUser {
		issues = append(issues, "Conversation does not start with user message")
		score -= 2
	}

	// Only the first alternation break is reported
	var lastRole domain.TurnRole
	for i, turn := range turns {
		if lastRole == turn.Role {
			issues = append(issues, fmt.Sprintf("Improper role alternation at turn %d", i+1))
			score -= 1.5
			break
		}
		lastRole = turn.Role
	}

	emptyTurns := 0
	veryShortTurns := 0
	for _, turn := range turns {
		trimmed := strings.TrimSpace(turn.Content)
		if trimmed == "" {
			emptyTurns++
		} else if len(trimmed) < 10 {
			veryShortTurns++
		}
	}
	if emptyTurns > 0 {
		issues = append(issues, fmt.Sprintf("%d empty turn(s) found", emptyTurns))
		score -= float64(emptyTurns) * 2
	}
	if veryShortTurns > 0 {
		issues = append(issues, fmt.Sprintf("%d very short turn(s) (< 10 chars)", veryShortTurns))
		score -= float64(veryShortTurns) * 0.5
	}

	userTurns := 0
	for _, turn := range turns {
		if turn.Role == domain.RoleUser {
			userTurns++
		}
	}
	assistantTurns := len(turns) - userTurns
	if abs(userTurns-assistantTurns) > 1 {
		issues = append(issues, fmt.Sprintf("Imbalanced turn distribution (%d user, %d assistant)", userTurns, assistantTurns))
		score -= 1
	}

	score = math.Max(0, score)
	status := domain.StructureValid
	message := "Conversation structure is valid"
	if len(issues) > 0 {
		status = domain.StructureHasIssues
		message = fmt.Sprintf("%d structural issue(s) found", len(issues))
	}

	return domain.StructureScore{
		Score:   round1(score),
		Weight:  weightStructure,
		Valid:   len(issues) == 0,
		Issues:  issues,
		Status:  status,
		Message: message,
	}
}

// evaluateConfidence aggregates coherence signals. The score starts at
// medium (7) and each factor moves it by its signed impact.
func evaluateConfidence(turns domain.TurnList) domain.ConfidenceScore {
	factors := []domain.ConfidenceFactor{}
	score := 7.0

	// Response variation: unique 50-char prefixes over total turns
	prefixes := make(map[string]struct{}, len(turns))
	for _, t := range turns {
		p := strings.ToLower(t.Content)
		if len(p) > 50 {
			p = p[:50]
		}
		prefixes[p] = struct{}{}
	}
	repetitionRate := float64(len(prefixes)) / float64(len(turns))
	if repetitionRate > 0.9 {
		score += 1.5
		factors = append(factors, domain.ConfidenceFactor{
			Name:        "High Response Variation",
			Impact:      domain.ImpactPositive,
			Description: "Responses show good variety and uniqueness",
		})
	} else if repetitionRate < 0.6 {
		score -= 2
		factors = append(factors, domain.ConfidenceFactor{
			Name:        "Low Response Variation",
			Impact:      domain.ImpactNegative,
			Description: "Responses appear repetitive",
		})
	}

	// Length consistency via coefficient of variation
	avg := 0.0
	for _, t := range turns {
		avg += float64(len(t.Content))
	}
	avg /= float64(len(turns))
	variance := 0.0
	for _, t := range turns {
		d := float64(len(t.Content)) - avg
		variance += d * d
	}
	variance /= float64(len(turns))
	if avg > 0 {
		cv := math.Sqrt(variance) / avg
		if cv < 0.5 {
			score += 1
			factors = append(factors, domain.ConfidenceFactor{
				Name:        "Consistent Turn Lengths",
				Impact:      domain.ImpactPositive,
				Description: "Turn lengths are consistent throughout",
			})
		} else if cv > 1.5 {
			score -= 1
			factors = append(factors, domain.ConfidenceFactor{
				Name:        "Inconsistent Turn Lengths",
				Impact:      domain.ImpactNegative,
				Description: "Turn lengths vary significantly",
			})
		}
	}

	// Question flow
	questions := 0
	for _, t := range turns {
		if strings.Contains(t.Content, "?") {
			questions++
		}
	}
	questionRate := float64(questions) / float64(len(turns))
	if questionRate >= 0.2 && questionRate <= 0.5 {
		score += 1
		factors = append(factors, domain.ConfidenceFactor{
			Name:        "Natural Question Flow",
			Impact:      domain.ImpactPositive,
			Description: "Good balance of questions and statements",
		})
	} else if questionRate > 0.7 {
		score -= 0.5
		factors = append(factors, domain.ConfidenceFactor{
			Name:        "Too Many Questions",
			Impact:      domain.ImpactNegative,
			Description: "Excessive questions may indicate lack of depth",
		})
	}

	// Complete ending: a substantive final assistant turn
	last := turns[len(turns)-1]
	if last.Role == domain.RoleAssistant && len(last.Content) > 50 {
		score += 0.5
		factors = append(factors, domain.ConfidenceFactor{
			Name:        "Complete Ending",
			Impact:      domain.ImpactPositive,
			Description: "Conversation has a proper concluding response",
		})
	}

	score = clamp(score, 0, 10)
	level := domain.ConfidenceLow
	switch {
	case score >= 8:
		level = domain.ConfidenceHigh
	case score >= 5:
		level = domain.ConfidenceMedium
	}

	return domain.ConfidenceScore{
		Score:   round1(score),
		Weight:  weightConfidence,
		Level:   level,
		Factors: factors,
		Message: fmt.Sprintf("Confidence level is %s based on %d indicators", level, len(factors)),
	}
}

// graduated maps a value in the acceptable-but-not-optimal band onto 7
// down to 5 as it approaches the acceptable edge.
func graduated(actual float64, opt, acc scoreRange) float64 {
	if actual < opt.min {
		distance := opt.min - actual
		maxDistance := opt.min - acc.min
		if maxDistance <= 0 {
			return 7
		}
		return 7 - (distance/maxDistance)*2
	}
	distance := actual - opt.max
	maxDistance := acc.max - opt.max
	if maxDistance <= 0 {
		return 7
	}
	return 7 - (distance/maxDistance)*2
}

func rangeTarget(opt, acc scoreRange) string {
	return fmt.Sprintf("%.0f-%.0f (optimal), %.0f-%.0f (acceptable)", opt.min, opt.max, acc.min, acc.max)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
