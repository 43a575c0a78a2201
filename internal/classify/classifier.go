// Package classify turns inbound reply text into sentiment, intent, urgency
// and engagement signals.
package classify

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/kalambet/outreach/internal/engine"
	"github.com/kalambet/outreach/internal/parser"
	"github.com/kalambet/outreach/internal/prompts"
)

const defaultTimeout = 30 * time.Second

// Completer is the generation path used for classification.
// *generation.Engine implements it.
type Completer interface {
	Complete(ctx context.Context, prompt string, meta map[string]any) (engine.Response, error)
}

// Analysis is the classification of one reply.
type Analysis struct {
	Category              string   `json:"category"`
	Intent                string   `json:"intent"`
	Confidence            float64  `json:"confidence"`
	Sentiment             string   `json:"sentiment"`
	KeyPoints             []string `json:"key_points"`
	Urgency               string   `json:"urgency"`
	UrgencyScore          int      `json:"urgency_score"`
	EngagementScore       float64  `json:"engagement_score"`
	RecommendedNextAction string   `json:"recommended_next_action"`
	Reasoning             string   `json:"reasoning"`
	Fallback              bool     `json:"fallback,omitempty"`
}

// Classifier analyzes replies with the generative model and falls back to a
// keyword heuristic.
type Classifier struct {
	completer Completer
	timeout   time.Duration
}

// New creates a Classifier.
func New(c Completer) *Classifier {
	return &Classifier{completer: c, timeout: defaultTimeout}
}

// AnalyzeResponse classifies text, which may be HTML. It always returns a
// usable Analysis: generation or parse failures use the keyword fallback.
func (c *Classifier) AnalyzeResponse(ctx context.Context, text string) Analysis {
	body := PlainText(text)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.completer.Complete(ctx, prompts.Classification(body), map[string]any{"purpose": "classification"})
	if err != nil {
		slog.Warn("reply classification failed, using keyword fallback", "error", err)
		return Fallback(body)
	}

	var raw map[string]any
	if err := parser.DecodeObject(out.Content, &raw); err != nil {
		slog.Warn("unparseable classification response, using keyword fallback", "error", err)
		return Fallback(body)
	}
	return fromModel(raw)
}

func fromModel(raw map[string]any) Analysis {
	category := normalizeCategory(str(raw, "classification"))
	intent := strings.ToLower(str(raw, "intent"))
	if intent == "" {
		intent = strings.ToLower(category)
	}

	a := Analysis{
		Category:              category,
		Intent:                intent,
		Confidence:            clamp01(num(raw, "confidence_score") / 100),
		Sentiment:             normalizeSentiment(str(raw, "sentiment")),
		KeyPoints:             list(raw, "key_points"),
		RecommendedNextAction: str(raw, "recommended_next_action"),
		Reasoning:             str(raw, "reasoning"),
	}
	if a.RecommendedNextAction == "" {
		a.RecommendedNextAction = "manual_review"
	}
	a.UrgencyScore = UrgencyScore(a.Sentiment, a.Intent, a.KeyPoints)
	a.Urgency = UrgencyLabel(a.UrgencyScore)
	a.EngagementScore = EngagementScore(a.Sentiment, a.Intent, a.Confidence)
	return a
}

func normalizeCategory(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "_")
	for _, c := range prompts.Categories {
		if s == c {
			return c
		}
	}
	return "NEUTRAL"
}

func normalizeSentiment(s string) string {
	switch s = strings.ToLower(strings.TrimSpace(s)); s {
	case "positive", "negative":
		return s
	default:
		return "neutral"
	}
}

var urgencyKeywords = []string{"urgent", "asap", "immediate", "critical", "emergency"}

// UrgencyScore sums the urgency signals: sentiment, intent and every key
// point that mentions an urgency keyword.
func UrgencyScore(sentiment, intent string, keyPoints []string) int {
	score := 0
	switch sentiment {
	case "positive":
		score += 2
	case "negative":
		score++
	}
	switch intent {
	case "interested":
		score += 3
	case "needs_more_info":
		score += 2
	}
	for _, kp := range keyPoints {
		lkp := strings.ToLower(kp)
		for _, kw := range urgencyKeywords {
			if strings.Contains(lkp, kw) {
				score += 2
				break
			}
		}
	}
	return score
}

// UrgencyLabel maps an urgency score to high, medium or low.
func UrgencyLabel(score int) string {
	switch {
	case score >= 5:
		return "high"
	case score >= 3:
		return "medium"
	default:
		return "low"
	}
}

// EngagementScore estimates reply engagement in [0,1].
func EngagementScore(sentiment, intent string, confidence float64) float64 {
	score := 0.0
	switch sentiment {
	case "positive":
		score += 0.4
	case "neutral":
		score += 0.2
	case "negative":
		score += 0.1
	}
	switch intent {
	case "interested":
		score += 0.4
	case "needs_more_info":
		score += 0.3
	}
	score += confidence * 0.2
	return clamp01(score)
}

func str(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func num(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(v, "%")), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func list(m map[string]any, key string) []string {
	out := []string{}
	switch v := m[key].(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	case string:
		if s := strings.TrimSpace(v); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func clamp01(v float64) float64 {
	if v != v || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
