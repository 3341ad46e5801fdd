package generator

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"medchat-backend/internal/dialogue"
)

// OpenAIOptions configures the OpenAI-compatible generator.
type OpenAIOptions struct {
	APIKey string
	// BaseURL points at any OpenAI-compatible server, e.g. LM Studio.
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	// HTTPClient carries gateway auth when set.
	HTTPClient *http.Client
}

// OpenAI generates replies through the chat completions API.
type OpenAI struct {
	client  *openai.Client
	model   string
	prompts *PromptSpec
	style   Style
}

// NewOpenAI builds a generator for opts. The prompt file's style applies where
// opts leaves temperature or token limit unset.
func NewOpenAI(opts OpenAIOptions, prompts *PromptSpec) *OpenAI {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")
	}
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}
	return &OpenAI{
		client:  openai.NewClientWithConfig(cfg),
		model:   opts.Model,
		prompts: prompts,
		style:   mergeStyle(prompts.Style, opts.Temperature, opts.MaxTokens),
	}
}

// Generate asks the chat completions endpoint for one reply.
func (g *OpenAI) Generate(ctx context.Context, topic, intent string, c dialogue.Context) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: g.style.Temperature,
		MaxTokens:   g.style.MaxTokens,
		TopP:        g.style.TopP,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: g.prompts.SystemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: g.prompts.Render(topic, intent, c)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", dialogue.ErrMalformedReply)
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("%w: empty content", dialogue.ErrMalformedReply)
	}
	return text, nil
}

func (g *OpenAI) Close() error { return nil }

// mergeStyle lets explicit configuration win over the prompt file's style block.
func mergeStyle(s Style, temperature float32, maxTokens int) Style {
	if temperature > 0 {
		s.Temperature = temperature
	}
	if maxTokens > 0 {
		s.MaxTokens = maxTokens
	}
	return s
}
