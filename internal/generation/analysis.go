package generation

import (
	"context"
	"fmt"
	"strings"

	"github.com/kalambet/outreach/internal/parser"
	"github.com/kalambet/outreach/internal/prompts"
)

const fallbackScore = 50

// JobAnalysis is the model's assessment of a contact's buying role. Scores
// are on a 0-100 scale.
type JobAnalysis struct {
	SeniorityLevel               string   `json:"seniority_level"`
	SeniorityScore               float64  `json:"seniority_score"`
	DecisionAuthority            string   `json:"decision_authority"`
	DecisionAuthorityScore       float64  `json:"decision_authority_score"`
	LikelyPainPoints             []string `json:"likely_pain_points"`
	IndustryContext              string   `json:"industry_context"`
	PersonalizationOpportunities []string `json:"personalization_opportunities"`
	InfluenceLevel               string   `json:"influence_level"`
	OverallScore                 float64  `json:"overall_score"`
	Reasoning                    string   `json:"reasoning"`
	Fallback                     bool     `json:"fallback,omitempty"`
}

// FallbackJobAnalysis is returned when the role cannot be analyzed.
func FallbackJobAnalysis() JobAnalysis {
	return JobAnalysis{
		SeniorityLevel:               "Unknown",
		SeniorityScore:               fallbackScore,
		DecisionAuthority:            "Unknown",
		DecisionAuthorityScore:       fallbackScore,
		LikelyPainPoints:             []string{},
		IndustryContext:              "Unknown",
		PersonalizationOpportunities: []string{},
		InfluenceLevel:               "Unknown",
		OverallScore:                 fallbackScore,
		Reasoning:                    "Analysis unavailable",
		Fallback:                     true,
	}
}

// Authority returns the decision authority score scaled to [0,1].
func (a JobAnalysis) Authority() float64 {
	return clamp100(a.DecisionAuthorityScore) / 100
}

// Summary renders the analysis for embedding in an email prompt.
func (a JobAnalysis) Summary() string {
	if a.Fallback {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Seniority: %s (%.0f/100)\n", a.SeniorityLevel, a.SeniorityScore)
	fmt.Fprintf(&sb, "Decision authority: %s (%.0f/100)\n", a.DecisionAuthority, a.DecisionAuthorityScore)
	if a.InfluenceLevel != "" {
		fmt.Fprintf(&sb, "Influence: %s\n", a.InfluenceLevel)
	}
	if len(a.LikelyPainPoints) > 0 {
		fmt.Fprintf(&sb, "Likely pain points: %s\n", strings.Join(a.LikelyPainPoints, ", "))
	}
	if len(a.PersonalizationOpportunities) > 0 {
		fmt.Fprintf(&sb, "Personalization opportunities: %s\n", strings.Join(a.PersonalizationOpportunities, ", "))
	}
	if a.IndustryContext != "" {
		fmt.Fprintf(&sb, "Industry context: %s", a.IndustryContext)
	}
	return strings.TrimSpace(sb.String())
}

// TryAnalyzeJobTitle asks the model for a role analysis. Successful analyses
// are cached for the request cache TTL.
func (e *Engine) TryAnalyzeJobTitle(ctx context.Context, title, company string) (JobAnalysis, error) {
	key := analysisKey(title, company)
	if a, ok := e.analyses.get(key); ok {
		return a, nil
	}

	v, err, _ := e.group.Do("analysis:"+key, func() (any, error) {
		if a, ok := e.analyses.get(key); ok {
			return a, nil
		}
		out, err := e.Complete(ctx, prompts.JobTitle(title, company), map[string]any{"job_title": title})
		if err != nil {
			return nil, err
		}
		var a JobAnalysis
		if err := parser.DecodeObject(out.Content, &a); err != nil {
			return nil, fmt.Errorf("parsing job title analysis: %w", err)
		}
		a.normalize()
		e.analyses.set(key, a)
		return a, nil
	})
	if err != nil {
		return JobAnalysis{}, fmt.Errorf("analyzing job title %q: %w", title, err)
	}
	return v.(JobAnalysis), nil
}

// AnalyzeJobTitle is TryAnalyzeJobTitle with failures replaced by
// FallbackJobAnalysis.
func (e *Engine) AnalyzeJobTitle(ctx context.Context, title, company string) JobAnalysis {
	a, err := e.TryAnalyzeJobTitle(ctx, title, company)
	if err != nil {
		e.logger.Warn("job title analysis failed", "title", title, "error", err)
		return FallbackJobAnalysis()
	}
	return a
}

func (a *JobAnalysis) normalize() {
	a.SeniorityScore = clamp100(a.SeniorityScore)
	a.DecisionAuthorityScore = clamp100(a.DecisionAuthorityScore)
	a.OverallScore = clamp100(a.OverallScore)
	if a.LikelyPainPoints == nil {
		a.LikelyPainPoints = []string{}
	}
	if a.PersonalizationOpportunities == nil {
		a.PersonalizationOpportunities = []string{}
	}
}

func clamp100(v float64) float64 {
	if v != v || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
