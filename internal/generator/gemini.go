package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"medchat-backend/internal/dialogue"
)

// GeminiOptions configures the Gemini generator.
type GeminiOptions struct {
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
}

// Gemini generates replies through the Google generative AI API.
type Gemini struct {
	client  *genai.Client
	model   string
	prompts *PromptSpec
	style   Style
}

// NewGemini opens a client for opts.Model. Close releases it.
func NewGemini(ctx context.Context, opts GeminiOptions, prompts *PromptSpec) (*Gemini, error) {
	if opts.APIKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	model := opts.Model
	if model == "" {
		model = "gemini-1.5-flash"
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(opts.APIKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Gemini{
		client:  client,
		model:   model,
		prompts: prompts,
		style:   mergeStyle(prompts.Style, opts.Temperature, opts.MaxTokens),
	}, nil
}

func (g *Gemini) Generate(ctx context.Context, topic, intent string, c dialogue.Context) (string, error) {
	model := g.client.GenerativeModel(g.model)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(g.prompts.SystemPrompt())}}
	model.SetTemperature(g.style.Temperature)
	if g.style.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(g.style.MaxTokens))
	}
	if g.style.TopP > 0 {
		model.SetTopP(g.style.TopP)
	}

	res, err := model.GenerateContent(ctx, genai.Text(g.prompts.Render(topic, intent, c)))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return geminiText(res)
}

// Close closes the underlying client.
func (g *Gemini) Close() error {
	return g.client.Close()
}

// geminiText joins the text parts of the first candidate.
func geminiText(res *genai.GenerateContentResponse) (string, error) {
	if res == nil || len(res.Candidates) == 0 || res.Candidates[0].Content == nil {
		return "", fmt.Errorf("%w: no candidates", dialogue.ErrMalformedReply)
	}
	var b strings.Builder
	for _, part := range res.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", fmt.Errorf("%w: no text parts", dialogue.ErrMalformedReply)
	}
	return out, nil
}
