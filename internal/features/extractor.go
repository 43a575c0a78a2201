// Package features turns lead records into fixed-length numeric vectors.
package features

import (
	"log/slog"
	"math"
	"strings"
)

// Size is the number of dimensions in a Vector.
const Size = 6

// Vector slot indices.
const (
	CompanySize = iota
	JobTitle
	Industry
	PainPoints
	Engagement
	ResponseRate
)

// Names maps slot indices to stable factor names.
var Names = [Size]string{
	"company_size_score",
	"job_title_score",
	"industry_score",
	"pain_points_score",
	"engagement_score",
	"response_rate_score",
}

// Vector is a fixed-order feature vector with every slot in [0,1].
type Vector [Size]float64

// Slice returns the vector as a slice, for scalers and classifiers.
func (v Vector) Slice() []float64 {
	out := make([]float64, Size)
	copy(out, v[:])
	return out
}

// Map returns the vector keyed by factor name.
func (v Vector) Map() map[string]float64 {
	m := make(map[string]float64, Size)
	for i, name := range Names {
		m[name] = v[i]
	}
	return m
}

// NonZero counts slots with a non-zero value.
func (v Vector) NonZero() int {
	n := 0
	for _, x := range v {
		if x != 0 {
			n++
		}
	}
	return n
}

// Input holds the lead fields the extractor reads.
type Input struct {
	JobTitle           string
	CompanyDescription string
	PainPoints         []string
	// Engagement is an externally supplied engagement measure; only the
	// "engagement_score" key is read.
	Engagement map[string]float64
}

// DecisionMakerKeywords are matched as lowercase substrings of a job title.
var DecisionMakerKeywords = []string{"ceo", "cto", "cfo", "vp", "director", "manager", "head"}

type industryGroup struct {
	name     string
	keywords []string
}

// industryGroups are checked in order; the first match wins.
var industryGroups = []industryGroup{
	{"tech", []string{"software", "technology", "saas", "startup", "digital"}},
	{"finance", []string{"banking", "financial", "insurance", "investment"}},
	{"healthcare", []string{"health", "medical", "pharmaceutical", "hospital"}},
	{"retail", []string{"ecommerce", "retail", "consumer", "shopping"}},
}

// responseRateDefault is used until response history is modeled.
const responseRateDefault = 0.5

// Extract computes the feature vector for in. It never panics; any failure
// yields the zero vector.
func Extract(in Input) (v Vector) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("feature extraction failed", "error", r)
			v = Vector{}
		}
	}()

	v[CompanySize] = clamp(float64(len(in.CompanyDescription)) / 100)
	v[JobTitle] = float64(CountDecisionMakerKeywords(in.JobTitle)) / float64(len(DecisionMakerKeywords))
	if _, ok := MatchIndustry(in.CompanyDescription); ok {
		v[Industry] = 1
	}
	v[PainPoints] = clamp(float64(len(in.PainPoints)) / 5)
	v[Engagement] = clamp(in.Engagement["engagement_score"])
	v[ResponseRate] = responseRateDefault
	return v
}

// CountDecisionMakerKeywords counts how many decision-maker keywords occur
// in title, case-insensitively.
func CountDecisionMakerKeywords(title string) int {
	t := strings.ToLower(title)
	n := 0
	for _, kw := range DecisionMakerKeywords {
		if strings.Contains(t, kw) {
			n++
		}
	}
	return n
}

// MatchIndustry returns the first industry group whose keywords appear in
// description.
func MatchIndustry(description string) (string, bool) {
	d := strings.ToLower(description)
	if d == "" {
		return "", false
	}
	for _, g := range industryGroups {
		for _, kw := range g.keywords {
			if strings.Contains(d, kw) {
				return g.name, true
			}
		}
	}
	return "", false
}

func clamp(x float64) float64 {
	if math.IsNaN(x) || x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
