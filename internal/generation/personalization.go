package generation

import (
	"sort"
	"strings"

	"github.com/kalambet/outreach/internal/lead"
	"github.com/kalambet/outreach/internal/prompts"
)

const unknown = "unknown"

// CompanyResearch is the company section of a personalization bundle. No
// external research source is wired, so size and industry stay "unknown".
type CompanyResearch struct {
	Size       string            `json:"size"`
	Industry   string            `json:"industry"`
	RecentNews []string          `json:"recent_news"`
	KeyMetrics map[string]string `json:"key_metrics"`
}

// PersonalizationData is the local research used to tailor an email.
type PersonalizationData struct {
	Company         CompanyResearch     `json:"company_research"`
	Industries      []string            `json:"industries"`
	Trends          []string            `json:"trends"`
	PainCategories  map[string][]string `json:"pain_point_categories"`
	PrimaryCategory string              `json:"primary_category"`
	Score           float64             `json:"personalization_score"`
}

type keywordGroup struct {
	name     string
	keywords []string
}

var industryKeywords = []keywordGroup{
	{"technology", []string{"software", "saas", "tech", "digital", "platform"}},
	{"finance", []string{"banking", "financial", "insurance", "investment"}},
	{"healthcare", []string{"health", "medical", "pharmaceutical", "hospital"}},
	{"retail", []string{"ecommerce", "retail", "consumer", "shopping"}},
}

var painKeywords = []keywordGroup{
	{"efficiency", []string{"slow", "manual", "time-consuming", "inefficient"}},
	{"cost", []string{"expensive", "costly", "budget"}},
	{"technology", []string{"outdated", "integration", "compatibility", "technical"}},
	{"scalability", []string{"growth", "scale", "capacity", "performance"}},
}

var defaultTrends = []string{"Digital transformation", "Remote work adoption", "AI integration"}

// Research builds the personalization bundle for l from the lead record
// alone. It performs no I/O.
func Research(l lead.Lead) PersonalizationData {
	d := PersonalizationData{
		Company: CompanyResearch{
			Size:       unknown,
			Industry:   unknown,
			RecentNews: []string{},
			KeyMetrics: map[string]string{},
		},
		Industries:     detectIndustries(l.CompanyDescription),
		Trends:         []string{},
		PainCategories: categorizePainPoints(l.PainPoints),
	}
	if strings.TrimSpace(l.CompanyDescription) != "" {
		d.Trends = append(d.Trends, defaultTrends...)
	}
	d.PrimaryCategory = primaryCategory(d.PainCategories)
	d.Score = personalizationScore(d)
	return d
}

func detectIndustries(description string) []string {
	desc := strings.ToLower(description)
	out := []string{}
	for _, g := range industryKeywords {
		for _, kw := range g.keywords {
			if strings.Contains(desc, kw) {
				out = append(out, g.name)
				break
			}
		}
	}
	return out
}

func categorizePainPoints(points []string) map[string][]string {
	out := map[string][]string{}
	for _, p := range points {
		lp := strings.ToLower(p)
		matched := false
		for _, g := range painKeywords {
			for _, kw := range g.keywords {
				if strings.Contains(lp, kw) {
					out[g.name] = append(out[g.name], p)
					matched = true
					break
				}
			}
		}
		if !matched {
			out["other"] = append(out["other"], p)
		}
	}
	return out
}

// primaryCategory returns the category with the most pain points. Ties go to
// the alphabetically first name.
func primaryCategory(cats map[string][]string) string {
	best, n := unknown, 0
	for _, name := range sortedKeys(cats) {
		if len(cats[name]) > n {
			best, n = name, len(cats[name])
		}
	}
	return best
}

func personalizationScore(d PersonalizationData) float64 {
	score := 0.5
	signals := []bool{
		d.Company.Size != unknown,
		d.Company.Industry != unknown,
		len(d.Industries) > 0,
		len(d.Trends) > 0,
		len(d.PainCategories) > 0,
		d.PrimaryCategory != unknown,
	}
	for _, ok := range signals {
		if ok {
			score += 0.1
		}
	}
	return lead.ClampScore(score)
}

func (d PersonalizationData) prompt() *prompts.Personalization {
	return &prompts.Personalization{
		CompanySize:     d.Company.Size,
		Industries:      d.Industries,
		Trends:          d.Trends,
		PainCategories:  sortedKeys(d.PainCategories),
		PrimaryCategory: d.PrimaryCategory,
		Score:           d.Score,
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
