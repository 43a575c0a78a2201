package parser

import (
	"fmt"
	"log/slog"
)

const (
	// DefaultSubject is used when no subject line could be extracted.
	DefaultSubject = "No subject generated"
	// ErrorSubject marks a result produced after an internal parse failure.
	ErrorSubject = "Error parsing subject"

	bodyKey = "email_body"
)

// EmailArtifact is a parsed cold-email generation result.
type EmailArtifact struct {
	SubjectLine          string   `json:"subject_line"`
	EmailBody            string   `json:"email_body"`
	PersonalizationScore float64  `json:"personalization_score"`
	PainPointsAddressed  []string `json:"pain_points_addressed"`
	CalendlyIntegration  string   `json:"calendly_integration"`
	Format               Format   `json:"format"`
	ParseError           string   `json:"parse_error,omitempty"`
}

var emailKeys = map[string]bool{
	"subject_line":          true,
	"email_body":            true,
	"personalization_score": true,
	"pain_points_addressed": true,
	"calendly_integration":  true,
}

// ParseEmail parses cold-email model output. It never fails: unusable input
// becomes a raw_text result and an internal error becomes an error result
// carrying the original text as body.
func ParseEmail(raw string) (a EmailArtifact) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("email parse failed", "error", r)
			a = errorArtifact(raw, fmt.Errorf("%v", r))
		}
	}()

	f, format := parseTiered(raw, emailKeys, []string{"subject_line", "email_body"})
	return EmailArtifact{
		SubjectLine:          f.str("subject_line", DefaultSubject),
		EmailBody:            Unescape(f.str("email_body", "")),
		PersonalizationScore: f.num("personalization_score", 0),
		PainPointsAddressed:  f.list("pain_points_addressed"),
		CalendlyIntegration:  f.str("calendly_integration", ""),
		Format:               format,
	}
}

func errorArtifact(raw string, err error) EmailArtifact {
	body := raw
	if body == "" {
		body = "Error: No content available"
	}
	return EmailArtifact{
		SubjectLine:         ErrorSubject,
		EmailBody:           body,
		PainPointsAddressed: []string{},
		Format:              FormatError,
		ParseError:          err.Error(),
	}
}

// FollowUpArtifact is a parsed follow-up generation result.
type FollowUpArtifact struct {
	EmailBody        string `json:"email_body"`
	SubjectLine      string `json:"subject_line"`
	UrgencyLevel     string `json:"urgency_level"`
	ValueProposition string `json:"value_proposition"`
	NextAction       string `json:"next_action"`
	Format           Format `json:"format"`
	ParseError       string `json:"parse_error,omitempty"`
}

var followUpKeys = map[string]bool{
	"email_body":        true,
	"subject_line":      true,
	"urgency_level":     true,
	"value_proposition": true,
	"next_action":       true,
}

// ParseFollowUp parses follow-up model output with the same degrade rules
// as ParseEmail.
func ParseFollowUp(raw string) (a FollowUpArtifact) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("follow-up parse failed", "error", r)
			a = FollowUpArtifact{
				EmailBody:   raw,
				SubjectLine: ErrorSubject,
				Format:      FormatError,
				ParseError:  fmt.Sprintf("%v", r),
			}
		}
	}()

	f, format := parseTiered(raw, followUpKeys, []string{"subject_line", "email_body"})
	return FollowUpArtifact{
		EmailBody:        Unescape(f.str("email_body", "")),
		SubjectLine:      f.str("subject_line", DefaultSubject),
		UrgencyLevel:     f.str("urgency_level", "low"),
		ValueProposition: f.str("value_proposition", ""),
		NextAction:       f.str("next_action", ""),
		Format:           format,
	}
}
