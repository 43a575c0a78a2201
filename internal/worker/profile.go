package worker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/kalambet/outreach/internal/research"
	"github.com/kalambet/outreach/internal/storage"
)

// CompanyProfileJob extracts a company profile document into a lead's
// company description.
const CompanyProfileJob = "company_profile"

// CompanyProfilePayload is the payload of a CompanyProfileJob. Exactly one
// of URL and Content (base64) is set.
type CompanyProfilePayload struct {
	LeadID      string `json:"lead_id"`
	URL         string `json:"url,omitempty"`
	Content     string `json:"content,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

// ProfileExtractor handles CompanyProfileJob.
type ProfileExtractor struct {
	store      LeadStore
	scorer     Scorer
	httpClient *http.Client
	logger     *slog.Logger
}

func NewProfileExtractor(store LeadStore, scorer Scorer, httpClient *http.Client) *ProfileExtractor {
	return &ProfileExtractor{store: store, scorer: scorer, httpClient: httpClient, logger: slog.Default()}
}

// Handle implements Handler for CompanyProfileJob.
func (pe *ProfileExtractor) Handle(ctx context.Context, job *storage.Job) error {
	var p CompanyProfilePayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &p); err != nil {
		return Permanent(fmt.Errorf("parsing payload: %w", err))
	}
	if p.LeadID == "" {
		return Permanent(errors.New("payload requires lead_id"))
	}

	l, err := pe.store.GetLead(p.LeadID)
	if errors.Is(err, storage.ErrNotFound) {
		return Permanent(fmt.Errorf("lead %s: %w", p.LeadID, err))
	}
	if err != nil {
		return fmt.Errorf("loading lead %s: %w", p.LeadID, err)
	}

	doc, err := pe.document(ctx, p)
	if err != nil {
		return err
	}
	text, err := research.Text(doc)
	if err != nil {
		return fmt.Errorf("extracting %s: %w", doc.Source, err)
	}

	l.CompanyDescription = research.Summarize(text, research.MaxDescriptionChars)
	if pe.scorer != nil {
		l.SetScore(pe.scorer.ScoreLead(ctx, l).Score)
	}
	if err := pe.store.UpdateLead(l); err != nil {
		return fmt.Errorf("updating lead %s: %w", l.ID, err)
	}
	pe.logger.Info("company profile extracted", "lead", l.ID, "source", doc.Source, "chars", len(l.CompanyDescription))
	return nil
}

func (pe *ProfileExtractor) document(ctx context.Context, p CompanyProfilePayload) (research.Document, error) {
	switch {
	case p.URL != "":
		return research.Fetch(ctx, pe.httpClient, p.URL)
	case p.Content != "":
		data, err := base64.StdEncoding.DecodeString(p.Content)
		if err != nil {
			return research.Document{}, fmt.Errorf("decoding content: %w", err)
		}
		return research.Document{ContentType: p.ContentType, Data: data, Source: "upload"}, nil
	}
	return research.Document{}, errors.New("payload requires url or content")
}
