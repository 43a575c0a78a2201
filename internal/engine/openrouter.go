package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/kalambet/outreach/internal/proxy"
)

// OpenRouterEngine adapts the internal/proxy.Client to the Engine interface.
type OpenRouterEngine struct {
	client *proxy.Client
	opts   Options
}

// NewOpenRouterEngine creates an engine backed by OpenRouter. baseURL is
// empty outside tests.
func NewOpenRouterEngine(apiKey, baseURL string, opts Options) (*OpenRouterEngine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openrouter api key is not set")
	}
	var c *proxy.Client
	if baseURL != "" {
		c = proxy.NewClientWithBaseURL(apiKey, baseURL)
	} else {
		c = proxy.NewClient(apiKey)
	}
	c.SetTimeout(opts.timeout())
	return &OpenRouterEngine{client: c, opts: opts}, nil
}

func (e *OpenRouterEngine) Name() string { return "openrouter" }

func (e *OpenRouterEngine) Generate(ctx context.Context, prompt string, _ map[string]any) (Response, error) {
	temp := e.opts.Temperature
	resp, err := e.client.Complete(ctx, proxy.ChatRequest{
		Model:       e.opts.Model,
		Messages:    []proxy.Message{{Role: "user", Content: prompt}},
		MaxTokens:   e.opts.MaxTokens,
		Temperature: &temp,
	})
	if err != nil {
		return Response{}, fmt.Errorf("openrouter generate: %w", err)
	}

	text := resp.Content()
	if strings.TrimSpace(text) == "" {
		return Response{}, fmt.Errorf("openrouter generate: empty response")
	}

	model := resp.Model
	if model == "" {
		model = e.opts.Model
	}
	return Response{Content: text, Model: model, TokensUsed: resp.Usage.TotalTokens}, nil
}

func (e *OpenRouterEngine) IsRunning(ctx context.Context) bool {
	_, err := e.client.ListModels(ctx)
	return err == nil
}
