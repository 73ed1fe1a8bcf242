package quality

import (
	"fmt"
	"strings"

	"github.com/jamesjordanmarketing/train-data-sub008/internal/domain"
)

// buildRecommendations produces actionable review guidance from a scored
// breakdown. Components are reported in fixed order: structure first
// (always critical), then confidence, length, and turn count.
func buildRecommendations(score *domain.QualityScore) []string {
	recs := []string{}
	b := score.Breakdown

	if score.Overall < 6 {
		recs = append(recs, "Critical: this conversation requires revision before use in training data")
	} else if score.Overall < 8 {
		recs = append(recs, "Consider reviewing and improving this conversation for better training quality")
	}

	recs = append(recs, structureRecommendations(b.Structure)...)
	recs = append(recs, confidenceRecommendations(b.Confidence)...)
	recs = append(recs, lengthRecommendations(b.Length)...)
	recs = append(recs, turnCountRecommendations(b.TurnCount)...)

	if score.Overall >= 7 && score.Overall < 9 {
		recs = append(recs, "Small improvements in conversation flow could push this to excellent quality")
	}

	return recs
}

func structureRecommendations(s domain.StructureScore) []string {
	if s.Valid {
		return nil
	}

	recs := []string{fmt.Sprintf("Structure: %d structural problem(s) detected", len(s.Issues))}
	for _, issue := range s.Issues {
		suggestion := structureSuggestion(issue)
		if suggestion != "" {
			recs = append(recs, fmt.Sprintf("%s: %s", issue, suggestion))
		} else {
			recs = append(recs, issue)
		}
	}
	return recs
}

func structureSuggestion(issue string) string {
	switch {
	case strings.Contains(issue, "does not start with user"):
		return "ensure the conversation begins with a user message"
	case strings.Contains(issue, "alternation"):
		return "fix role alternation so user and assistant take turns"
	case strings.Contains(issue, "empty turn"):
		return "remove or populate empty turns with content"
	case strings.Contains(issue, "very short turn"):
		return "expand very short turns to provide meaningful content"
	case strings.Contains(issue, "Imbalanced"):
		return "balance the number of user and assistant turns"
	}
	return ""
}

func confidenceRecommendations(c domain.ConfidenceScore) []string {
	if c.Level == domain.ConfidenceHigh {
		return nil
	}
	if c.Level == domain.ConfidenceMedium && c.Score >= 7 {
		return nil
	}

	recs := []string{}
	if c.Level == domain.ConfidenceLow {
		recs = append(recs, "Confidence: low confidence detected, this conversation may have quality issues")
	} else {
		recs = append(recs, "Confidence: medium confidence, consider these improvements")
	}
	for _, f := range c.Factors {
		if f.Impact == domain.ImpactNegative {
			recs = append(recs, fmt.Sprintf("%s: %s", f.Name, f.Description))
		}
	}
	return recs
}

func lengthRecommendations(l domain.LengthScore) []string {
	if l.Score >= 7 {
		return nil
	}

	if l.Status == domain.StatusPoor {
		switch {
		case l.AvgTurnLength < 50:
			return []string{fmt.Sprintf(
				"Turn length: average turn length is %d characters, which is too short. Responses should provide more detail. Aim for %s.",
				l.AvgTurnLength, l.Target)}
		case l.AvgTurnLength > 600:
			return []string{fmt.Sprintf(
				"Turn length: average turn length is %d characters, which is too long. Make responses more concise. Target %s.",
				l.AvgTurnLength, l.Target)}
		default:
			return []string{fmt.Sprintf(
				"Turn length: overall conversation length (%d chars) is insufficient. Develop topics more thoroughly.",
				l.TotalLength)}
		}
	}
	return []string{fmt.Sprintf("Turn length: %s. Target %s.", l.Message, l.Target)}
}

func turnCountRecommendations(t domain.TurnCountScore) []string {
	if t.Score >= 7 {
		return nil
	}

	if t.Status == domain.StatusPoor {
		if t.Score == 3 {
			return []string{fmt.Sprintf(
				"Turn count: conversation has only %d turns. Aim for %s. Consider adding follow-up questions or expanding topics.",
				t.Actual, t.Target)}
		}
		return []string{fmt.Sprintf(
			"Turn count: conversation has %d turns, which is excessive. Target %s by removing redundant exchanges.",
			t.Actual, t.Target)}
	}
	return []string{fmt.Sprintf("Turn count: %s. Target %s.", t.Message, t.Target)}
}
