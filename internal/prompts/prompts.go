// Package prompts builds the text prompts sent to the generative model. Each
// prompt ends with the JSON object the response parser expects.
package prompts

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kalambet/outreach/internal/lead"
	"github.com/kalambet/outreach/internal/sequence"
)

// Categories are the reply classification labels, in prompt order.
var Categories = []string{
	"INTERESTED",
	"NOT_INTERESTED",
	"NEUTRAL",
	"OUT_OF_OFFICE",
	"NEEDS_MORE_INFO",
	"OBJECTION",
}

const (
	maxSubjectChars      = 60
	maxColdEmailWords    = 150
	maxFollowUpWords     = 100
	defaultApproach      = "professional but conversational"
	defaultSchedulingTxt = "(no scheduling link provided)"
)

const coldEmailFormat = `Respond with ONLY a single JSON object, no prose and no markdown, with exactly these fields:
{
  "subject_line": "string, at most 60 characters",
  "email_body": "string, at most 150 words, plain text with \n line breaks",
  "personalization_score": number between 0 and 1,
  "pain_points_addressed": ["string", ...],
  "calendly_integration": "string describing how the scheduling link was included"
}`

const classificationFormat = `Respond with ONLY a single JSON object, no prose and no markdown, with exactly these fields:
{
  "classification": "one of the categories above",
  "confidence_score": number from 0 to 100,
  "sentiment": "positive" | "neutral" | "negative",
  "key_points": ["string", ...],
  "urgency_level": "low" | "medium" | "high",
  "recommended_next_action": "string",
  "reasoning": "string"
}`

const followUpFormat = `Respond with ONLY a single JSON object, no prose and no markdown, with exactly these fields:
{
  "email_body": "string, at most 100 words",
  "subject_line": "string, at most 60 characters",
  "urgency_level": "low" | "medium" | "high",
  "value_proposition": "string",
  "next_action": "string"
}`

const jobTitleFormat = `Respond with ONLY a single JSON object, no prose and no markdown, with exactly these fields:
{
  "seniority_level": "string such as Entry, Mid, Senior, Executive",
  "seniority_score": number from 0 to 100,
  "decision_authority": "string such as Low, Medium, High",
  "decision_authority_score": number from 0 to 100,
  "likely_pain_points": ["string", ...],
  "industry_context": "string",
  "personalization_opportunities": ["string", ...],
  "influence_level": "string",
  "overall_score": number from 0 to 100,
  "reasoning": "string"
}`

// Personalization is the research summary embedded in email prompts.
type Personalization struct {
	CompanySize     string
	Industries      []string
	Trends          []string
	PainCategories  []string
	PrimaryCategory string
	Score           float64
}

// ColdEmailInput is everything a cold-email prompt embeds.
type ColdEmailInput struct {
	Lead            lead.Lead
	JobAnalysis     string
	Settings        lead.CampaignSettings
	Personalization *Personalization
	Context         map[string]string
}

// ColdEmail builds the first-contact email prompt.
func ColdEmail(in ColdEmailInput) string {
	var sb strings.Builder
	l := in.Lead

	sb.WriteString("You are an expert B2B sales copywriter. Write a personalized cold email.\n\n")
	sb.WriteString("[Lead]\n")
	fmt.Fprintf(&sb, "Name: %s\n", l.Name)
	fmt.Fprintf(&sb, "Job title: %s\n", l.JobTitle)
	fmt.Fprintf(&sb, "Company: %s\n", l.Company)
	if l.CompanyDescription != "" {
		fmt.Fprintf(&sb, "Company description: %s\n", l.CompanyDescription)
	}
	fmt.Fprintf(&sb, "Pain points: %s\n", joinOr(l.PainPoints, "none listed"))

	if in.JobAnalysis != "" {
		fmt.Fprintf(&sb, "\n[Role analysis]\n%s\n", in.JobAnalysis)
	}

	s := in.Settings
	sb.WriteString("\n[Sender]\n")
	fmt.Fprintf(&sb, "Value proposition: %s\n", orDefault(s.ValueProposition, "(not provided, infer from pain points)"))
	fmt.Fprintf(&sb, "Scheduling link: %s\n", orDefault(s.SchedulingLink, defaultSchedulingTxt))
	fmt.Fprintf(&sb, "Approach: %s\n", orDefault(s.Approach, defaultApproach))
	if s.FromName != "" {
		fmt.Fprintf(&sb, "Sign as: %s\n", s.FromName)
	}

	if p := in.Personalization; p != nil {
		writePersonalization(&sb, p)
	}
	writeContext(&sb, in.Context)

	sb.WriteString("\n[Requirements]\n")
	fmt.Fprintf(&sb, "- Subject line of at most %d characters.\n", maxSubjectChars)
	fmt.Fprintf(&sb, "- Body of at most %d words.\n", maxColdEmailWords)
	sb.WriteString("- Reference the lead's role and at least one pain point specifically.\n")
	sb.WriteString("- Work the scheduling link into the text naturally, if one is provided.\n")
	sb.WriteString("- End with a clear, low-friction call to action.\n")
	sb.WriteString("- No generic templates or placeholder text.\n\n")
	sb.WriteString(coldEmailFormat)
	return sb.String()
}

func writePersonalization(sb *strings.Builder, p *Personalization) {
	sb.WriteString("\n[Personalization context]\n")
	fmt.Fprintf(sb, "Company size: %s\n", orDefault(p.CompanySize, "Unknown"))
	fmt.Fprintf(sb, "Industry: %s\n", joinOr(p.Industries, "Unknown"))
	if len(p.Trends) > 0 {
		fmt.Fprintf(sb, "Industry trends: %s\n", strings.Join(p.Trends, ", "))
	}
	if len(p.PainCategories) > 0 {
		fmt.Fprintf(sb, "Pain point categories: %s\n", strings.Join(p.PainCategories, ", "))
	}
	fmt.Fprintf(sb, "Primary pain point category: %s\n", orDefault(p.PrimaryCategory, "Unknown"))
	fmt.Fprintf(sb, "Personalization score: %.2f\n", p.Score)
	sb.WriteString("Use the industry trends and pain point categories to make the email specific to this lead.\n")
}

// writeContext appends extra key/value context in sorted key order so the
// prompt text is stable for identical input.
func writeContext(sb *strings.Builder, ctx map[string]string) {
	if len(ctx) == 0 {
		return
	}
	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	sb.WriteString("\n[Additional context]\n")
	for _, k := range keys {
		fmt.Fprintf(sb, "- %s: %s\n", k, ctx[k])
	}
}

// Classification builds the reply classification prompt.
func Classification(replyText string) string {
	var sb strings.Builder
	sb.WriteString("You analyze replies to sales outreach emails. Classify the reply below into exactly one category:\n")
	for _, c := range Categories {
		fmt.Fprintf(&sb, "- %s\n", c)
	}
	sb.WriteString("\n[Reply]\n")
	sb.WriteString(strings.TrimSpace(replyText))
	sb.WriteString("\n\n")
	sb.WriteString(classificationFormat)
	return sb.String()
}

// FollowUpInput is everything a follow-up prompt embeds.
type FollowUpInput struct {
	Lead     lead.Lead
	Step     sequence.Step
	Previous map[string]string
	Settings lead.CampaignSettings
}

// FollowUp builds the follow-up prompt for a sequence step. Steps without a
// dedicated strategy use the standard one.
func FollowUp(in FollowUpInput) string {
	st := sequence.StrategyFor(in.Step)
	var sb strings.Builder
	l := in.Lead

	fmt.Fprintf(&sb, "Write follow-up email number %d to %s (%s at %s).\n\n", in.Step, l.Name, l.JobTitle, l.Company)
	sb.WriteString("[Strategy]\n")
	fmt.Fprintf(&sb, "Strategy: %s\nGoal: %s\nTone: %s\n", st.Name, st.Goal, st.Tone)

	if len(in.Previous) > 0 {
		writeContext(&sb, in.Previous)
	}
	if in.Settings.ValueProposition != "" {
		fmt.Fprintf(&sb, "\nValue proposition: %s\n", in.Settings.ValueProposition)
	}
	if in.Settings.SchedulingLink != "" {
		fmt.Fprintf(&sb, "Scheduling link: %s\n", in.Settings.SchedulingLink)
	}

	sb.WriteString("\n[Requirements]\n")
	fmt.Fprintf(&sb, "- Body of at most %d words.\n", maxFollowUpWords)
	sb.WriteString("- Reference the previous message without repeating it.\n")
	sb.WriteString("- Add one new piece of value.\n")
	sb.WriteString("- Close with a gentle next step.\n\n")
	sb.WriteString(followUpFormat)
	return sb.String()
}

// JobTitle builds the role analysis prompt used by lead scoring.
func JobTitle(title, company string) string {
	var sb strings.Builder
	sb.WriteString("You are a B2B sales analyst. Assess the buying role of this contact.\n\n")
	fmt.Fprintf(&sb, "Job title: %s\n", title)
	fmt.Fprintf(&sb, "Company: %s\n\n", orDefault(company, "Unknown"))
	sb.WriteString("Evaluate seniority, decision-making authority, likely pain points, industry context, personalization opportunities and influence on purchasing.\n\n")
	sb.WriteString(jobTitleFormat)
	return sb.String()
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func joinOr(items []string, def string) string {
	if len(items) == 0 {
		return def
	}
	return strings.Join(items, ", ")
}
