package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/jamesjordanmarketing/train-data-sub008/internal/config"
	"github.com/jamesjordanmarketing/train-data-sub008/internal/domain"
)

// Request describes one conversation to generate.
type Request struct {
	Topic      string
	Tier       domain.TierType
	Template   *domain.Template
	Parameters map[string]interface{}
}

// Generator produces training conversation turns. Implemented by Client;
// batch tests substitute fakes.
type Generator interface {
	GenerateConversation(ctx context.Context, req *Request) ([]domain.Turn, error)
}

// Client calls an OpenAI-compatible chat completions endpoint and parses
// the reply into conversation turns.
type Client struct {
	http      *resty.Client
	model     string
	endpoint  string
	maxTokens int
}

// NewClient creates a generation client. Fails with a ConfigurationError
// when the API key is missing, since every request would be rejected.
func NewClient(cfg *config.GenerationConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, NewConfigurationError("generation API key is not set")
	}
	if cfg.Model == "" {
		return nil, NewConfigurationError("generation model is not set")
	}

	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	client.SetTimeout(timeout)

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	return &Client{
		http:      client,
		model:     cfg.Model,
		endpoint:  baseURL + "/chat/completions",
		maxTokens: maxTokens,
	}, nil
}

// OpenAI-compatible Chat Completion API request/response structures
type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// generatedDoc is the JSON document the model is instructed to return.
type generatedDoc struct {
	Turns []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"turns"`
}

const systemPrompt = `You generate synthetic training conversations between a user and an assistant.
Return only a JSON object of the form {"turns": [{"role": "user"|"assistant", "content": "..."}, ...]}.
The conversation must start with a user turn and strictly alternate roles.`

// GenerateConversation produces the turns for one batch item.
func (c *Client) GenerateConversation(ctx context.Context, req *Request) ([]domain.Turn, error) {
	userPrompt := buildUserPrompt(req)

	body := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		MaxTokens:      c.maxTokens,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}

	var resp chatResponse
	httpResp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&resp).
		Post(c.endpoint)

	if err != nil {
		return nil, fmt.Errorf("failed to call generation API: %w", err)
	}

	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		msg := string(httpResp.Body())
		if resp.Error != nil {
			msg = resp.Error.Message
		}
		return nil, &APIError{StatusCode: httpResp.StatusCode(), Message: msg}
	}

	if resp.Error != nil {
		return nil, &APIError{StatusCode: httpResp.StatusCode(), Message: resp.Error.Message}
	}

	if len(resp.Choices) == 0 {
		return nil, &APIError{StatusCode: httpResp.StatusCode(), Message: "no choices in response"}
	}

	return parseTurns(resp.Choices[0].Message.Content)
}

// buildUserPrompt assembles the instruction for one item, preferring the
// item's template when one is attached.
func buildUserPrompt(req *Request) string {
	var b strings.Builder
	if req.Template != nil && req.Template.Prompt != "" {
		b.WriteString(req.Template.Prompt)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "Topic: %s\n", req.Topic)
	fmt.Fprintf(&b, "Tier: %s\n", req.Tier)
	for k, v := range req.Parameters {
		fmt.Fprintf(&b, "%s: %v\n", k, v)
	}
	return b.String()
}

// parseTurns decodes the model reply. Malformed output is a terminal
// failure for the item, not a retryable one: the same prompt tends to
// produce the same malformation.
func parseTurns(content string) ([]domain.Turn, error) {
	// Strip markdown fences some models wrap JSON in
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var doc generatedDoc
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		return nil, fmt.Errorf("malformed generation output: %w", err)
	}
	if len(doc.Turns) == 0 {
		return nil, fmt.Errorf("generation output contains no turns")
	}

	turns := make([]domain.Turn, 0, len(doc.Turns))
	for i, t := range doc.Turns {
		role := domain.TurnRole(t.Role)
		if role != domain.RoleUser && role != domain.RoleAssistant {
			return nil, fmt.Errorf("generation output turn %d has unknown role %q", i, t.Role)
		}
		turns = append(turns, domain.Turn{Role: role, Content: t.Content})
	}
	return turns, nil
}
