package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

const (
	geminiAttempts = 3
	geminiBackoff  = 500 * time.Millisecond
)

// GeminiEngine generates text with the Gemini API.
type GeminiEngine struct {
	client  *genai.Client
	opts    Options
	backoff time.Duration
}

// NewGeminiEngine creates a Gemini-backed engine. baseURL overrides the API
// endpoint and is empty outside tests.
func NewGeminiEngine(ctx context.Context, apiKey, baseURL string, opts Options) (*GeminiEngine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is not set")
	}
	cc := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: opts.timeout()},
	}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: strings.TrimRight(baseURL, "/") + "/"}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return &GeminiEngine{client: client, opts: opts, backoff: geminiBackoff}, nil
}

func (e *GeminiEngine) Name() string { return "gemini" }

func (e *GeminiEngine) Generate(ctx context.Context, prompt string, _ map[string]any) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.timeout())
	defer cancel()

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(e.opts.Temperature)),
	}
	if e.opts.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(e.opts.MaxTokens)
	}

	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	resp, err := e.generateWithRetry(ctx, contents, cfg)
	if err != nil {
		return Response{}, fmt.Errorf("gemini generate: %w", err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return Response{}, fmt.Errorf("gemini generate: empty response")
	}

	out := Response{Content: text, Model: e.opts.Model}
	if resp.UsageMetadata != nil {
		out.TokensUsed = int(resp.UsageMetadata.TotalTokenCount)
	}
	return out, nil
}

// generateWithRetry retries rate limiting and gateway errors with exponential
// backoff.
func (e *GeminiEngine) generateWithRetry(ctx context.Context, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	var lastErr error
	for attempt := range geminiAttempts {
		resp, err := e.client.Models.GenerateContent(ctx, e.opts.Model, contents, cfg)
		if err == nil {
			return resp, nil
		}
		if !transientGeminiError(err) {
			return nil, err
		}
		lastErr = err
		if attempt == geminiAttempts-1 {
			break
		}

		t := time.NewTimer(e.backoff << attempt)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	return nil, fmt.Errorf("giving up after %d attempts: %w", geminiAttempts, lastErr)
}

func transientGeminiError(err error) bool {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Code {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func (e *GeminiEngine) IsRunning(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, e.opts.timeout())
	defer cancel()
	_, err := e.client.Models.Get(ctx, e.opts.Model, nil)
	return err == nil
}
