package inference

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
)

// OpenAIBackend runs inference through any OpenAI-compatible chat
// completions endpoint. This covers the OpenAI API itself and local
// servers exposing the same surface, such as Ollama's /v1 endpoint.
type OpenAIBackend struct {
	name   string
	client *openai.Client
}

// OpenAIOptions configures an OpenAI-compatible backend.
type OpenAIOptions struct {
	Name    string // Backend identifier used in diagnostics
	APIKey  string // May be a placeholder for local servers
	BaseURL string // Empty means the default OpenAI endpoint
}

// NewOpenAIBackend creates a backend for an OpenAI-compatible endpoint.
func NewOpenAIBackend(opts OpenAIOptions) (*OpenAIBackend, error) {
	if opts.Name == "" {
		return nil, fmt.Errorf("backend name cannot be empty")
	}

	clientOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}
	client := openai.NewClient(clientOpts...)

	return &OpenAIBackend{name: opts.Name, client: &client}, nil
}

// Name implements Backend.
func (b *OpenAIBackend) Name() string {
	return b.name
}

// Infer implements Backend via a single-turn chat completion.
func (b *OpenAIBackend) Infer(ctx context.Context, prompt string, cfg ModelConfig) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: cfg.Model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	}
	if cfg.Temperature > 0 {
		params.Temperature = param.NewOpt(cfg.Temperature)
	}
	if cfg.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(cfg.MaxTokens))
	}

	resp, err := b.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", wrapErr(b.name, err)
	}

	if len(resp.Choices) == 0 {
		return "", wrapErr(b.name, fmt.Errorf("no choices in response"))
	}

	content := resp.Choices[0].Message.Content
	if content == "" {
		return "", wrapErr(b.name, fmt.Errorf("empty completion content"))
	}

	return content, nil
}
