package generator

import (
	"context"
	"fmt"

	"medchat-backend/internal/config"
	"medchat-backend/internal/dialogue"
)

// Provider is a response generator that may hold network resources.
type Provider interface {
	dialogue.Generator
	Close() error
}

// New picks the generator named by cfg.LLMProvider.
func New(ctx context.Context, cfg config.Config, prompts *PromptSpec) (Provider, error) {
	switch cfg.LLMProvider {
	case config.ProviderOpenAI, "":
		opts := OpenAIOptions{
			APIKey:      cfg.OpenAIAPIKey,
			BaseURL:     cfg.OpenAIBaseURL,
			Model:       cfg.OpenAIModel,
			Temperature: cfg.LLMTemperature,
			MaxTokens:   cfg.LLMMaxTokens,
		}
		if cfg.OAuthEnabled() {
			opts.HTTPClient = OAuthHTTPClient(ctx, OAuthOptions{
				TokenURL:     cfg.OAuthTokenURL,
				ClientID:     cfg.OAuthClientID,
				ClientSecret: cfg.OAuthClientSecret,
				Scopes:       cfg.OAuthScopes,
			}, nil)
		}
		return NewOpenAI(opts, prompts), nil
	case config.ProviderGemini:
		return NewGemini(ctx, GeminiOptions{
			APIKey:      cfg.GeminiAPIKey,
			Model:       cfg.GeminiModel,
			Temperature: cfg.LLMTemperature,
			MaxTokens:   cfg.LLMMaxTokens,
		}, prompts)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.LLMProvider)
	}
}
