// Package scoremodel wraps an optional trained lead classifier and falls
// back to a deterministic heuristic when none is available.
package scoremodel

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/kalambet/outreach/internal/features"
	"github.com/kalambet/outreach/internal/lead"
)

// Source records which path produced a score.
type Source string

const (
	SourceModel     Source = "model"
	SourceHeuristic Source = "heuristic"
)

// heuristicTitleKeywords is the title list used by the fallback rule.
var heuristicTitleKeywords = []string{"ceo", "cto", "cfo", "vp", "director", "manager"}

// Recommendation templates.
const (
	RecLowPriority     = "Low priority lead - consider nurturing campaign"
	RecLowAwareness    = "Focus on building awareness before sales pitch"
	RecMediumPriority  = "Medium priority - standard outreach sequence"
	RecMediumMonitor   = "Monitor engagement and adjust approach"
	RecHighPriority    = "High priority lead - immediate follow-up recommended"
	RecHighDemo        = "Consider personalized demo or meeting request"
	RecTargetSeniority = "Target higher-level decision makers in organization"
	RecResearchPain    = "Research company to identify potential pain points"
	RecPersonalize     = "Improve email personalization and timing"
	RecScoringError    = "Unable to score lead due to error"
)

// gapThreshold marks a feature as weak enough to recommend a fix.
const gapThreshold = 0.3

// Adapter produces ML-stage lead scores.
type Adapter struct {
	classifier Classifier
	scaler     Scaler
	logger     *slog.Logger
}

// New creates an Adapter. Either argument may be nil; without a classifier
// every score comes from the heuristic.
func New(classifier Classifier, scaler Scaler) *Adapter {
	return &Adapter{classifier: classifier, scaler: scaler, logger: slog.Default()}
}

// Load builds an Adapter from the model file at path. A missing or
// unreadable model yields a heuristic-only Adapter.
func Load(path string) *Adapter {
	clf, scaler, err := LoadFile(path)
	if err != nil {
		if !errors.Is(err, ErrNoModel) {
			slog.Warn("lead scoring model unavailable, using heuristic", "path", path, "error", err)
		}
		return New(nil, nil)
	}
	slog.Info("loaded lead scoring model", "path", path)
	return New(clf, scaler)
}

// HasModel reports whether a fitted classifier is present.
func (a *Adapter) HasModel() bool {
	return a.classifier != nil
}

// Score returns a probability-like score in [0,1] for v. in supplies the raw
// fields the heuristic fallback inspects.
func (a *Adapter) Score(v features.Vector, in features.Input) (float64, Source) {
	if a.classifier != nil {
		p, err := a.predict(v)
		if err == nil {
			return lead.ClampScore(p), SourceModel
		}
		a.logger.Warn("model scoring failed, using heuristic", "error", err)
	}
	return Heuristic(in), SourceHeuristic
}

func (a *Adapter) predict(v features.Vector) (p float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("classifier panicked")
		}
	}()
	x := v.Slice()
	if a.scaler != nil {
		if x, err = a.scaler.Transform(x); err != nil {
			return 0, err
		}
	}
	proba, err := a.classifier.PredictProba(x)
	if err != nil {
		return 0, err
	}
	switch len(proba) {
	case 0:
		return 0, errors.New("classifier returned no probabilities")
	case 1:
		return proba[0], nil
	default:
		return proba[1], nil
	}
}

// Heuristic scores a lead without a model: base 0.5, +0.2 for a
// decision-maker title, +0.1 for any pain points, +0.1 for a company
// description longer than 50 characters, capped at 1.
func Heuristic(in features.Input) float64 {
	score := 0.5
	title := strings.ToLower(in.JobTitle)
	for _, kw := range heuristicTitleKeywords {
		if strings.Contains(title, kw) {
			score += 0.2
			break
		}
	}
	if len(in.PainPoints) > 0 {
		score += 0.1
	}
	if len(in.CompanyDescription) > 50 {
		score += 0.1
	}
	if score > 1 {
		score = 1
	}
	return score
}

// Confidence estimates how much signal the vector carries.
func Confidence(v features.Vector) float64 {
	c := float64(v.NonZero()) / float64(features.Size)
	if v[features.JobTitle] > 0.5 {
		c += 0.1
	}
	if v[features.PainPoints] > 0.5 {
		c += 0.1
	}
	return lead.ClampScore(c)
}

// Recommendations returns the guidance list for a score and its features.
func Recommendations(score float64, v features.Vector) []string {
	var recs []string
	switch {
	case score < 0.3:
		recs = append(recs, RecLowPriority, RecLowAwareness)
	case score < 0.7:
		recs = append(recs, RecMediumPriority, RecMediumMonitor)
	default:
		recs = append(recs, RecHighPriority, RecHighDemo)
	}
	if v[features.JobTitle] < gapThreshold {
		recs = append(recs, RecTargetSeniority)
	}
	if v[features.PainPoints] < gapThreshold {
		recs = append(recs, RecResearchPain)
	}
	if v[features.Engagement] < gapThreshold {
		recs = append(recs, RecPersonalize)
	}
	return recs
}

// InputFor builds the extractor input for l.
func InputFor(l lead.Lead) features.Input {
	return features.Input{
		JobTitle:           l.JobTitle,
		CompanyDescription: l.CompanyDescription,
		PainPoints:         l.PainPoints,
		Engagement:         l.Engagement,
	}
}

// ScoreLead runs the full ML stage for l: features, score, confidence and
// recommendations. It never fails; an unexpected panic yields the neutral
// error score.
func (a *Adapter) ScoreLead(l lead.Lead) (ls lead.LeadScore) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("lead scoring failed", "lead", l.ID, "error", r)
			ls = ErrorScore(l.ID)
		}
	}()

	in := InputFor(l)
	v := features.Extract(in)
	score, src := a.Score(v, in)

	factors := v.Map()
	factors["ml_score"] = score
	if src == SourceModel {
		factors["model"] = 1
	}

	return lead.LeadScore{
		LeadID:          l.ID,
		Score:           score,
		Factors:         factors,
		Confidence:      Confidence(v),
		Recommendations: Recommendations(score, v),
	}
}

// ErrorScore is the neutral result used when scoring cannot complete.
func ErrorScore(leadID string) lead.LeadScore {
	return lead.LeadScore{
		LeadID:          leadID,
		Score:           0.5,
		Factors:         map[string]float64{},
		Confidence:      0,
		Recommendations: []string{RecScoringError},
	}
}
