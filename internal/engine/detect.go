package engine

import (
	"context"
	"fmt"
	"time"
)

const (
	ProviderGemini     = "gemini"
	ProviderOpenRouter = "openrouter"
)

// DetectConfig holds parameters for provider selection.
type DetectConfig struct {
	Provider string

	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string

	OpenRouterAPIKey  string
	OpenRouterModel   string
	OpenRouterBaseURL string

	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// New returns the engine for cfg.Provider. An empty provider selects Gemini
// when its key is set and OpenRouter otherwise.
func New(ctx context.Context, cfg DetectConfig) (Engine, error) {
	provider := cfg.Provider
	if provider == "" {
		provider = ProviderGemini
		if cfg.GeminiAPIKey == "" && cfg.OpenRouterAPIKey != "" {
			provider = ProviderOpenRouter
		}
	}

	opts := Options{MaxTokens: cfg.MaxTokens, Temperature: cfg.Temperature, Timeout: cfg.Timeout}
	switch provider {
	case ProviderGemini:
		opts.Model = cfg.GeminiModel
		return NewGeminiEngine(ctx, cfg.GeminiAPIKey, cfg.GeminiBaseURL, opts)
	case ProviderOpenRouter:
		opts.Model = cfg.OpenRouterModel
		return NewOpenRouterEngine(cfg.OpenRouterAPIKey, cfg.OpenRouterBaseURL, opts)
	default:
		return nil, fmt.Errorf("unknown engine provider %q", provider)
	}
}
