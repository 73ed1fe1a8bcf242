package generation

import (
	"testing"

	"github.com/jamesjordanmarketing/train-data-sub008/internal/config"
	"github.com/jamesjordanmarketing/train-data-sub008/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_RequiresCredentials(t *testing.T) {
	_, err := NewClient(&config.GenerationConfig{Model: "gpt-4o-mini"})
	require.Error(t, err)
	assert.Equal(t, KindConfiguration, Classify(err))

	_, err = NewClient(&config.GenerationConfig{APIKey: "sk-test"})
	require.Error(t, err)
	assert.Equal(t, KindConfiguration, Classify(err))

	client, err := NewClient(&config.GenerationConfig{APIKey: "sk-test", Model: "gpt-4o-mini"})
	require.NoError(t, err)
	assert.Equal(t, "https://api.openai.com/v1/chat/completions", client.endpoint)
}

func TestParseTurns(t *testing.T) {
	turns, err := parseTurns(`{"turns": [
		{"role": "user", "content": "How do refunds work?"},
		{"role": "assistant", "content": "Refunds are issued within 5 days."}
	]}`)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, domain.RoleUser, turns[0].Role)
	assert.Equal(t, domain.RoleAssistant, turns[1].Role)
}

func TestParseTurns_StripsMarkdownFences(t *testing.T) {
	turns, err := parseTurns("```json\n{\"turns\": [{\"role\": \"user\", \"content\": \"hi\"}]}\n```")
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "hi", turns[0].Content)
}

func TestParseTurns_RejectsMalformedOutput(t *testing.T) {
	_, err := parseTurns("not json at all")
	require.Error(t, err)
	assert.Equal(t, KindTerminal, Classify(err))

	_, err = parseTurns(`{"turns": []}`)
	assert.Error(t, err)

	_, err = parseTurns(`{"turns": [{"role": "narrator", "content": "x"}]}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown role")
}

func TestBuildUserPrompt(t *testing.T) {
	prompt := buildUserPrompt(&Request{
		Topic: "billing disputes",
		Tier:  domain.TierScenario,
		Template: &domain.Template{
			ID:     "tpl-1",
			Prompt: "Act as a support agent for a SaaS product.",
		},
		Parameters: map[string]interface{}{"persona": "frustrated customer"},
	})

	assert.Contains(t, prompt, "Act as a support agent")
	assert.Contains(t, prompt, "Topic: billing disputes")
	assert.Contains(t, prompt, "Tier: scenario")
	assert.Contains(t, prompt, "persona: frustrated customer")
}
