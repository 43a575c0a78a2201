// Package scoring blends the ML lead score with a model-assisted analysis of
// the contact's role into a final score and Hot/Warm/Cold classification.
package scoring

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/outreach/internal/generation"
	"github.com/kalambet/outreach/internal/lead"
	"github.com/kalambet/outreach/internal/scoremodel"
)

const (
	hotThreshold  = 0.8
	warmThreshold = 0.6

	defaultConcurrency = 4
)

// Analyzer produces a role analysis. *generation.Engine implements it.
type Analyzer interface {
	TryAnalyzeJobTitle(ctx context.Context, title, company string) (generation.JobAnalysis, error)
}

// Weights are the blend parameters. CompanyRelevance stands in for a company
// research signal that does not exist yet.
type Weights struct {
	ML               float64
	AI               float64
	Authority        float64
	Relevance        float64
	Base             float64
	CompanyRelevance float64
}

// DefaultWeights returns the production blend.
func DefaultWeights() Weights {
	return Weights{
		ML:               0.6,
		AI:               0.4,
		Authority:        0.4,
		Relevance:        0.3,
		Base:             0.3,
		CompanyRelevance: 0.7,
	}
}

// Classification is the label derived from a final score.
type Classification struct {
	Label    string
	Priority string
}

// Classify maps a final score to its classification. Thresholds are
// inclusive: 0.8 is Hot and 0.6 is Warm.
func Classify(score float64) Classification {
	switch {
	case score >= hotThreshold:
		return Classification{Label: "Hot", Priority: "immediate follow-up"}
	case score >= warmThreshold:
		return Classification{Label: "Warm", Priority: "standard sequence"}
	default:
		return Classification{Label: "Cold", Priority: "nurturing campaign"}
	}
}

// Scorer computes blended lead scores.
type Scorer struct {
	model    *scoremodel.Adapter
	analyzer Analyzer
	weights  Weights
	logger   *slog.Logger
}

// New creates a Scorer. analyzer may be nil, in which case every score is the
// ML stage result.
func New(model *scoremodel.Adapter, analyzer Analyzer, w Weights) *Scorer {
	return &Scorer{model: model, analyzer: analyzer, weights: w, logger: slog.Default()}
}

// ScoreLead scores l. It never fails: when the role analysis cannot be
// obtained the ML stage result is returned as is.
func (s *Scorer) ScoreLead(ctx context.Context, l lead.Lead) lead.LeadScore {
	ml := s.model.ScoreLead(l)
	if s.analyzer == nil {
		return ml
	}

	blended, err := s.blend(ctx, l, ml)
	if err != nil {
		s.logger.Warn("ai scoring stage failed, using ml score", "lead", l.ID, "error", err)
		return ml
	}
	return blended
}

func (s *Scorer) blend(ctx context.Context, l lead.Lead, ml lead.LeadScore) (ls lead.LeadScore, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in ai stage: %v", r)
		}
	}()

	analysis, err := s.analyzer.TryAnalyzeJobTitle(ctx, l.JobTitle, l.Company)
	if err != nil {
		return lead.LeadScore{}, err
	}

	w := s.weights
	authority := analysis.Authority()
	aiScore := lead.ClampScore(w.Authority*authority + w.Relevance*w.CompanyRelevance + w.Base)
	final := lead.ClampScore(w.ML*ml.Score + w.AI*aiScore)
	class := Classify(final)

	factors := make(map[string]float64, len(ml.Factors)+4)
	for k, v := range ml.Factors {
		factors[k] = v
	}
	factors["decision_authority"] = authority
	factors["company_relevance"] = w.CompanyRelevance
	factors["ai_score"] = aiScore
	factors["final_score"] = final

	recs := []string{
		"Classification: " + class.Label,
		"Priority: " + class.Priority,
	}
	recs = append(recs, aiRecommendations(analysis)...)
	recs = append(recs, ml.Recommendations...)

	return lead.LeadScore{
		LeadID:          l.ID,
		Score:           final,
		Classification:  class.Label,
		Factors:         factors,
		Confidence:      ml.Confidence,
		Recommendations: recs,
	}, nil
}

func aiRecommendations(a generation.JobAnalysis) []string {
	var recs []string
	switch auth := a.Authority(); {
	case auth >= 0.7:
		recs = append(recs, "High decision authority: lead with business outcomes")
	case auth < 0.4:
		recs = append(recs, "Limited decision authority: ask for an introduction to the budget owner")
	}
	for i, opp := range a.PersonalizationOpportunities {
		if i == 2 {
			break
		}
		recs = append(recs, "Personalize around: "+opp)
	}
	return recs
}

// ScoreBatch scores leads concurrently and returns results in input order.
func (s *Scorer) ScoreBatch(ctx context.Context, leads []lead.Lead) []lead.LeadScore {
	results := make([]lead.LeadScore, len(leads))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(defaultConcurrency)
	for i, l := range leads {
		g.Go(func() error {
			results[i] = s.ScoreLead(gCtx, l)
			return nil
		})
	}
	_ = g.Wait()
	return results
}
