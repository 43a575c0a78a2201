package classify

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kalambet/outreach/internal/engine"
)

type fakeCompleter struct {
	content string
	err     error
	prompt  string
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string, _ map[string]any) (engine.Response, error) {
	f.prompt = prompt
	if f.err != nil {
		return engine.Response{}, f.err
	}
	return engine.Response{Content: f.content}, nil
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestAnalyzeResponse_Interested(t *testing.T) {
	fc := &fakeCompleter{content: "```json\n" + `{
		"classification": "INTERESTED",
		"confidence_score": 90,
		"sentiment": "positive",
		"key_points": ["wants a demo ASAP", "budget approved"],
		"urgency_level": "low",
		"recommended_next_action": "send calendar link",
		"reasoning": "explicit request for a demo"
	}` + "\n```"}
	c := New(fc)

	got := c.AnalyzeResponse(context.Background(), "Yes, let's do a demo asap.")

	if got.Category != "INTERESTED" || got.Intent != "interested" || got.Sentiment != "positive" {
		t.Errorf("labels = %s/%s/%s", got.Category, got.Intent, got.Sentiment)
	}
	if !approx(got.Confidence, 0.9) {
		t.Errorf("Confidence = %v, want 0.9", got.Confidence)
	}
	// 2 (positive) + 3 (interested) + 2 (asap key point)
	if got.UrgencyScore != 7 || got.Urgency != "high" {
		t.Errorf("urgency = %d/%s, want 7/high (derived, not the model's label)", got.UrgencyScore, got.Urgency)
	}
	// 0.4 + 0.4 + 0.9*0.2 = 0.98
	if !approx(got.EngagementScore, 0.98) {
		t.Errorf("EngagementScore = %v, want 0.98", got.EngagementScore)
	}
	if got.RecommendedNextAction != "send calendar link" || got.Fallback {
		t.Errorf("got = %+v", got)
	}
	if !strings.Contains(fc.prompt, "Yes, let's do a demo asap.") {
		t.Error("prompt does not embed reply text")
	}
}

func TestAnalyzeResponse_Defaults(t *testing.T) {
	c := New(&fakeCompleter{content: `{"classification": "needs more info", "confidence_score": "60"}`})
	got := c.AnalyzeResponse(context.Background(), "What does it cost?")

	if got.Category != "NEEDS_MORE_INFO" || got.Intent != "needs_more_info" {
		t.Errorf("Category/Intent = %s/%s", got.Category, got.Intent)
	}
	if got.Sentiment != "neutral" || got.RecommendedNextAction != "manual_review" {
		t.Errorf("defaults not applied: %+v", got)
	}
	if got.KeyPoints == nil {
		t.Error("KeyPoints is nil")
	}
	// 0 (neutral) + 2 (needs_more_info)
	if got.Urgency != "low" || got.UrgencyScore != 2 {
		t.Errorf("urgency = %d/%s", got.UrgencyScore, got.Urgency)
	}
	// 0.2 + 0.3 + 0.6*0.2
	if !approx(got.EngagementScore, 0.62) {
		t.Errorf("EngagementScore = %v, want 0.62", got.EngagementScore)
	}
}

func TestAnalyzeResponse_UnknownCategory(t *testing.T) {
	c := New(&fakeCompleter{content: `{"classification": "MAYBE", "sentiment": "Positive"}`})
	got := c.AnalyzeResponse(context.Background(), "hmm")
	if got.Category != "NEUTRAL" || got.Sentiment != "positive" {
		t.Errorf("Category/Sentiment = %s/%s", got.Category, got.Sentiment)
	}
}

func TestAnalyzeResponse_FallbackOnError(t *testing.T) {
	for name, fc := range map[string]*fakeCompleter{
		"generation error": {err: errors.New("quota")},
		"bad json":         {content: "not valid json{"},
	} {
		t.Run(name, func(t *testing.T) {
			got := New(fc).AnalyzeResponse(context.Background(), "Yes, this looks great!")
			want := Fallback("Yes, this looks great!")
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("fallback mismatch (-want +got):\n%s", diff)
			}
			if !got.Fallback || got.Sentiment != "positive" {
				t.Errorf("got = %+v", got)
			}
		})
	}
}

func TestFallback(t *testing.T) {
	tests := []struct {
		text      string
		sentiment string
		intent    string
	}{
		{"Yes, I'd love to chat. Sounds great.", "positive", "interested"},
		{"Unfortunately we're not interested.", "negative", "not_interested"},
		{"No thanks", "negative", "not_interested"},
		{"Who are you?", "neutral", "needs_more_info"},
		{"I know this is good", "positive", "interested"},
		{"Good idea but unfortunately no budget", "negative", "not_interested"},
	}
	for _, tt := range tests {
		got := Fallback(tt.text)
		if got.Sentiment != tt.sentiment || got.Intent != tt.intent {
			t.Errorf("Fallback(%q) = %s/%s, want %s/%s", tt.text, got.Sentiment, got.Intent, tt.sentiment, tt.intent)
		}
		if got.Confidence != 0.3 || got.Urgency != "low" || got.EngagementScore != 0.5 {
			t.Errorf("Fallback(%q) fixed values = %v/%s/%v", tt.text, got.Confidence, got.Urgency, got.EngagementScore)
		}
	}
}

func TestUrgencyLabel(t *testing.T) {
	tests := []struct {
		score int
		want  string
	}{
		{0, "low"}, {2, "low"}, {3, "medium"}, {4, "medium"}, {5, "high"}, {9, "high"},
	}
	for _, tt := range tests {
		if got := UrgencyLabel(tt.score); got != tt.want {
			t.Errorf("UrgencyLabel(%d) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestEngagementScoreClamped(t *testing.T) {
	if got := EngagementScore("positive", "interested", 5); got != 1 {
		t.Errorf("EngagementScore = %v, want 1", got)
	}
	if got := EngagementScore("negative", "not_interested", 0); !approx(got, 0.1) {
		t.Errorf("EngagementScore = %v, want 0.1", got)
	}
}
