package oracle

import (
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/caresync/caresync/internal/model"
)

// OpenAIClient implements Client against the OpenAI Chat Completions API.
type OpenAIClient struct {
	client *openai.Client
	cfg    model.OracleConfig
}

// NewOpenAIClient creates the oracle client. A missing API key is a
// ConfigError: callers must surface it distinctly, and no network call is
// ever attempted for an unconfigured client.
func NewOpenAIClient(cfg model.OracleConfig) (*OpenAIClient, error) {
	// Keys pasted into .env files often carry stray quotes.
	cfg.APIKey = strings.Trim(strings.TrimSpace(cfg.APIKey), `"'`)
	if cfg.APIKey == "" {
		return nil, &ConfigError{Reason: "OPENAI_API_KEY not set"}
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientConfig),
		cfg:    cfg,
	}, nil
}

// Judge sends the rendered prompt for one patient and returns the raw
// alert-candidate list. Exactly one request per patient.
func (c *OpenAIClient) Judge(ctx context.Context, patientID string, notes []model.Note) ([]model.Alert, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	req := openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: BuildPrompt(patientID, notes)},
		},
		Temperature: 0.3,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}
	if c.cfg.MaxTokens > 0 {
		req.MaxTokens = c.cfg.MaxTokens
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &TransportError{Err: errors.New("empty response from oracle")}
	}

	return parseCandidates(resp.Choices[0].Message.Content)
}
