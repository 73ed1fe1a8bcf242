package quality

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jamesjordanmarketing/train-data-sub008/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeTurns builds an alternating conversation starting with a user turn.
// Each turn's content is padded to the requested length.
func makeTurns(count, length int) domain.TurnList {
	turns := make(domain.TurnList, count)
	for i := 0; i < count; i++ {
		role := domain.RoleUser
		if i%2 == 1 {
			role = domain.RoleAssistant
		}
		content := fmt.Sprintf("Turn %d content. ", i)
		for len(content) < length {
			content += fmt.Sprintf("More detail for turn %d. ", i)
		}
		turns[i] = domain.Turn{Role: role, Content: content[:length]}
	}
	return turns
}

func testConversation(tier domain.TierType, turns domain.TurnList) *domain.Conversation {
	return &domain.Conversation{
		ID:         "conv-1",
		Tier:       tier,
		Turns:      turns,
		TotalTurns: len(turns),
	}
}

func TestScorer_OptimalConversation(t *testing.T) {
	scorer := NewScorer(0)
	conv := testConversation(domain.TierTemplate, makeTurns(12, 200))

	score, err := scorer.Score(conv)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusOptimal, score.Breakdown.TurnCount.Status)
	assert.Equal(t, float64(10), score.Breakdown.TurnCount.Score)
	assert.Equal(t, domain.StatusOptimal, score.Breakdown.Length.Status)
	assert.True(t, score.Breakdown.Structure.Valid)
	assert.Equal(t, domain.StructureValid, score.Breakdown.Structure.Status)
	assert.False(t, score.AutoFlagged)
	assert.GreaterOrEqual(t, score.Overall, 8.0)
}

func TestScorer_Deterministic(t *testing.T) {
	scorer := NewScorer(0)
	conv := testConversation(domain.TierScenario, makeTurns(14, 300))

	first, err := scorer.Score(conv)
	require.NoError(t, err)
	second, err := scorer.Score(conv)
	require.NoError(t, err)

	assert.Equal(t, first.Overall, second.Overall)
	assert.Equal(t, first.Breakdown, second.Breakdown)
	assert.Equal(t, first.Recommendations, second.Recommendations)
}

func TestScorer_SingleTurnIsPoorAndFlagged(t *testing.T) {
	scorer := NewScorer(0)
	// One assistant turn: poor turn count and one structural issue (does
	// not start with user; a 0-vs-1 split is not imbalanced).
	conv := testConversation(domain.TierTemplate, domain.TurnList{
		{Role: domain.RoleAssistant, Content: "Hello there, how can I help you today with your account questions?"},
	})

	score, err := scorer.Score(conv)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusPoor, score.Breakdown.TurnCount.Status)
	assert.Equal(t, 3.0, score.Breakdown.TurnCount.Score)
	assert.Equal(t, domain.StructureHasIssues, score.Breakdown.Structure.Status)
	assert.False(t, score.Breakdown.Structure.Valid)
	assert.Len(t, score.Breakdown.Structure.Issues, 1)
	assert.True(t, score.AutoFlagged)
	assert.Less(t, score.Overall, 6.0)
}

func TestScorer_SingleShortTurnHasTwoIssues(t *testing.T) {
	scorer := NewScorer(0)
	// A lone, very short assistant turn: does not start with user AND is
	// under the 10-char minimum, so two structural issues fire at once.
	conv := testConversation(domain.TierTemplate, domain.TurnList{
		{Role: domain.RoleAssistant, Content: "ok."},
	})

	score, err := scorer.Score(conv)
	require.NoError(t, err)

	s := score.Breakdown.Structure
	assert.Equal(t, domain.StructureHasIssues, s.Status)
	assert.False(t, s.Valid)
	require.Len(t, s.Issues, 2)
	assert.Contains(t, s.Issues[0], "does not start with user")
	assert.Contains(t, s.Issues[1], "very short turn")
	assert.Equal(t, domain.StatusPoor, score.Breakdown.TurnCount.Status)
	assert.True(t, score.AutoFlagged)
	assert.Less(t, score.Overall, 6.0)
}

func TestScorer_StructuralIssuesDetected(t *testing.T) {
	scorer := NewScorer(0)
	turns := domain.TurnList{
		{Role: domain.RoleAssistant, Content: strings.Repeat("a quick response here. ", 10)},
		{Role: domain.RoleAssistant, Content: strings.Repeat("another quick response. ", 10)},
		{Role: domain.RoleUser, Content: ""},
	}
	conv := testConversation(domain.TierEdgeCase, turns)

	score, err := scorer.Score(conv)
	require.NoError(t, err)

	s := score.Breakdown.Structure
	assert.False(t, s.Valid)
	assert.Contains(t, s.Issues[0], "does not start with user")
	assert.Contains(t, s.Issues[1], "alternation")
	assert.Contains(t, s.Issues[2], "empty turn")
}

func TestScorer_NilAndEmptyInput(t *testing.T) {
	scorer := NewScorer(0)

	_, err := scorer.Score(nil)
	assert.Error(t, err)

	_, err = scorer.Score(testConversation(domain.TierTemplate, domain.TurnList{}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoTurns))
}

func TestScorer_UnknownTier(t *testing.T) {
	scorer := NewScorer(0)
	conv := testConversation(domain.TierType("bogus"), makeTurns(10, 200))

	_, err := scorer.Score(conv)
	assert.Error(t, err)
}

func TestScorer_AcceptableRangeGraduated(t *testing.T) {
	scorer := NewScorer(0)
	// 7 turns for template tier: acceptable (6-20) but below optimal (8-16).
	conv := testConversation(domain.TierTemplate, makeTurns(7, 200))

	score, err := scorer.Score(conv)
	require.NoError(t, err)

	tc := score.Breakdown.TurnCount
	assert.Equal(t, domain.StatusAcceptable, tc.Status)
	assert.Greater(t, tc.Score, 5.0)
	assert.Less(t, tc.Score, 10.0)
}

func TestScorer_AutoFlagThreshold(t *testing.T) {
	// A high threshold flags even a decent conversation.
	strict := NewScorer(9.9)
	conv := testConversation(domain.TierTemplate, makeTurns(12, 200))

	score, err := strict.Score(conv)
	require.NoError(t, err)
	assert.True(t, score.AutoFlagged)
}

func TestRecommendations_OrderedBySeverity(t *testing.T) {
	scorer := NewScorer(0)
	// Broken structure and short turns: structure guidance must come
	// before length and turn count guidance.
	turns := domain.TurnList{
		{Role: domain.RoleAssistant, Content: "short one"},
		{Role: domain.RoleAssistant, Content: "short two"},
	}
	conv := testConversation(domain.TierTemplate, turns)

	score, err := scorer.Score(conv)
	require.NoError(t, err)
	require.NotEmpty(t, score.Recommendations)

	structureIdx, lengthIdx, turnCountIdx := -1, -1, -1
	for i, rec := range score.Recommendations {
		switch {
		case strings.HasPrefix(rec, "Structure:") && structureIdx == -1:
			structureIdx = i
		case strings.HasPrefix(rec, "Turn length:") && lengthIdx == -1:
			lengthIdx = i
		case strings.HasPrefix(rec, "Turn count:") && turnCountIdx == -1:
			turnCountIdx = i
		}
	}

	require.NotEqual(t, -1, structureIdx)
	require.NotEqual(t, -1, lengthIdx)
	require.NotEqual(t, -1, turnCountIdx)
	assert.Less(t, structureIdx, lengthIdx)
	assert.Less(t, lengthIdx, turnCountIdx)
}
