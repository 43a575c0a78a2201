package prompts

import (
	"strings"
	"testing"

	"github.com/kalambet/outreach/internal/lead"
	"github.com/kalambet/outreach/internal/sequence"
)

func testLead() lead.Lead {
	return lead.Lead{
		Name:               "Jane Doe",
		JobTitle:           "VP of Sales",
		Company:            "Acme",
		CompanyDescription: "A fast-growing SaaS startup",
		PainPoints:         []string{"slow manual process", "scaling issues"},
	}
}

func assertContains(t *testing.T, prompt string, parts ...string) {
	t.Helper()
	for _, p := range parts {
		if !strings.Contains(prompt, p) {
			t.Errorf("prompt missing %q", p)
		}
	}
}

func TestColdEmailEmbedsLeadAndContract(t *testing.T) {
	got := ColdEmail(ColdEmailInput{
		Lead:        testLead(),
		JobAnalysis: "Senior decision maker",
		Settings: lead.CampaignSettings{
			ValueProposition: "Automate reporting",
			SchedulingLink:   "https://calendly.com/me/30min",
			Approach:         "friendly",
		},
	})

	assertContains(t, got,
		"Jane Doe", "VP of Sales", "Acme", "slow manual process, scaling issues",
		"Senior decision maker", "Automate reporting", "https://calendly.com/me/30min", "friendly",
		"at most 60 characters", "at most 150 words", "call to action",
		`"subject_line"`, `"email_body"`, `"personalization_score"`, `"pain_points_addressed"`, `"calendly_integration"`,
	)
}

func TestColdEmailDefaults(t *testing.T) {
	l := testLead()
	l.PainPoints = nil
	got := ColdEmail(ColdEmailInput{Lead: l})
	assertContains(t, got, defaultApproach, defaultSchedulingTxt, "none listed")
	if strings.Contains(got, "[Personalization context]") {
		t.Error("personalization section rendered without data")
	}
}

func TestColdEmailPersonalizationAndContext(t *testing.T) {
	got := ColdEmail(ColdEmailInput{
		Lead: testLead(),
		Personalization: &Personalization{
			CompanySize:     "unknown",
			Industries:      []string{"technology"},
			Trends:          []string{"AI integration"},
			PainCategories:  []string{"efficiency", "scalability"},
			PrimaryCategory: "efficiency",
			Score:           0.8,
		},
		Context: map[string]string{"zeta": "last", "alpha": "first"},
	})
	assertContains(t, got, "Industry: technology", "AI integration", "Primary pain point category: efficiency", "Personalization score: 0.80")

	a := strings.Index(got, "- alpha: first")
	z := strings.Index(got, "- zeta: last")
	if a == -1 || z == -1 || a > z {
		t.Errorf("context not rendered in sorted order (alpha=%d, zeta=%d)", a, z)
	}
}

func TestColdEmailDeterministic(t *testing.T) {
	in := ColdEmailInput{Lead: testLead(), Context: map[string]string{"b": "2", "a": "1", "c": "3"}}
	first := ColdEmail(in)
	for i := 0; i < 10; i++ {
		if ColdEmail(in) != first {
			t.Fatal("ColdEmail output differs between calls")
		}
	}
}

func TestClassificationListsAllCategories(t *testing.T) {
	got := Classification("  Sounds great, let's talk next week.  ")
	for _, c := range Categories {
		if !strings.Contains(got, "- "+c+"\n") {
			t.Errorf("category %s not listed", c)
		}
	}
	assertContains(t, got, "Sounds great, let's talk next week.", `"confidence_score": number from 0 to 100`, `"recommended_next_action"`, `"reasoning"`)
	if len(Categories) != 6 {
		t.Errorf("len(Categories) = %d, want 6", len(Categories))
	}
}

func TestFollowUpStrategyByStep(t *testing.T) {
	tests := []struct {
		step sequence.Step
		want string
	}{
		{1, "Strategy: value reinforcement\nGoal: address concerns\nTone: professional"},
		{5, "Strategy: last chance\nGoal: final attempt\nTone: direct"},
		{9, "Strategy: standard\nGoal: maintain engagement\nTone: professional"},
	}
	for _, tt := range tests {
		got := FollowUp(FollowUpInput{Lead: testLead(), Step: tt.step})
		if !strings.Contains(got, tt.want) {
			t.Errorf("FollowUp step %d missing strategy block %q", tt.step, tt.want)
		}
		assertContains(t, got, "at most 100 words", `"value_proposition"`, `"next_action"`, `"urgency_level"`)
	}
}

func TestFollowUpPreviousContext(t *testing.T) {
	got := FollowUp(FollowUpInput{
		Lead:     testLead(),
		Step:     2,
		Previous: map[string]string{"previous_subject": "Cutting manual reporting"},
		Settings: lead.CampaignSettings{SchedulingLink: "https://cal.example/x"},
	})
	assertContains(t, got, "previous_subject: Cutting manual reporting", "https://cal.example/x")
}

func TestJobTitle(t *testing.T) {
	got := JobTitle("Chief Technology Officer", "")
	assertContains(t, got, "Chief Technology Officer", "Company: Unknown",
		`"seniority_level"`, `"seniority_score"`, `"decision_authority"`, `"decision_authority_score"`,
		`"likely_pain_points"`, `"industry_context"`, `"personalization_opportunities"`,
		`"influence_level"`, `"overall_score"`, `"reasoning"`)
}
