// Package engine abstracts the hosted generative text service. Consumers such
// as content generation and reply classification use the Engine interface
// instead of depending on a concrete provider client.
package engine

import (
	"context"
	"time"
)

// Engine generates text from a prompt.
type Engine interface {
	// Generate sends prompt to the model and returns the completion. meta is
	// request context for logging; providers do not forward it.
	Generate(ctx context.Context, prompt string, meta map[string]any) (Response, error)

	// Name identifies the provider, e.g. "gemini".
	Name() string

	// IsRunning reports whether the provider is reachable with the configured
	// credentials.
	IsRunning(ctx context.Context) bool
}

// Response is a completed generation.
type Response struct {
	Content    string `json:"content"`
	Model      string `json:"model"`
	TokensUsed int    `json:"tokens_used"`
}

// Options are the sampling settings shared by every provider.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

func (o Options) timeout() time.Duration {
	if o.Timeout <= 0 {
		return 60 * time.Second
	}
	return o.Timeout
}
