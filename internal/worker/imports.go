package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kalambet/outreach/internal/google"
	"github.com/kalambet/outreach/internal/lead"
	"github.com/kalambet/outreach/internal/storage"
)

// SheetImportJob imports leads from a Google spreadsheet.
const SheetImportJob = "sheet_import"

// SheetImportPayload is the payload of a SheetImportJob.
type SheetImportPayload struct {
	OwnerID       string `json:"owner_id"`
	SpreadsheetID string `json:"spreadsheet_id"`
	Range         string `json:"range,omitempty"`
}

// LeadStore is the lead persistence used by import and profile jobs.
type LeadStore interface {
	CreateLead(l lead.Lead) (lead.Lead, error)
	GetLead(id string) (lead.Lead, error)
	FindLeadByEmail(ownerID, email string) (lead.Lead, error)
	UpdateLead(l lead.Lead) error
}

// LeadSource reads lead rows from a spreadsheet.
type LeadSource interface {
	ExtractLeads(ctx context.Context, spreadsheetID, rng, ownerID string) ([]lead.Lead, error)
}

// Scorer scores leads. It never fails.
type Scorer interface {
	ScoreLead(ctx context.Context, l lead.Lead) lead.LeadScore
	ScoreBatch(ctx context.Context, leads []lead.Lead) []lead.LeadScore
}

// ImportResult counts what an import did.
type ImportResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
}

// Importer upserts spreadsheet leads by email for their owner. New and
// changed leads are scored when a Scorer is set.
type Importer struct {
	store  LeadStore
	source LeadSource
	scorer Scorer
	logger *slog.Logger
}

func NewImporter(store LeadStore, source LeadSource, scorer Scorer) *Importer {
	return &Importer{store: store, source: source, scorer: scorer, logger: slog.Default()}
}

// Handle implements Handler for SheetImportJob.
func (im *Importer) Handle(ctx context.Context, job *storage.Job) error {
	var p SheetImportPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &p); err != nil {
		return Permanent(fmt.Errorf("parsing payload: %w", err))
	}
	if p.OwnerID == "" || p.SpreadsheetID == "" {
		return Permanent(errors.New("payload requires owner_id and spreadsheet_id"))
	}
	res, err := im.Import(ctx, p)
	if errors.Is(err, google.ErrNoToken) {
		return Permanent(err)
	}
	if err != nil {
		return err
	}
	im.logger.Info("sheet import finished", "spreadsheet", p.SpreadsheetID, "owner", p.OwnerID,
		"created", res.Created, "updated", res.Updated, "failed", res.Failed)
	return nil
}

// Import reads the sheet and upserts every valid row. Rows are merged with
// any existing lead first, then scored as one batch, then written.
func (im *Importer) Import(ctx context.Context, p SheetImportPayload) (ImportResult, error) {
	var res ImportResult
	rows, err := im.source.ExtractLeads(ctx, p.SpreadsheetID, p.Range, p.OwnerID)
	if err != nil {
		return res, fmt.Errorf("extracting leads: %w", err)
	}

	var (
		pending []lead.Lead
		isNew   []bool
	)
	for _, in := range rows {
		l, created, err := im.resolve(in)
		if err != nil {
			im.logger.Warn("importing lead failed", "email", in.Email, "error", err)
			res.Failed++
			continue
		}
		pending = append(pending, l)
		isNew = append(isNew, created)
	}

	if im.scorer != nil && len(pending) > 0 {
		for i, sc := range im.scorer.ScoreBatch(ctx, pending) {
			pending[i].SetScore(sc.Score)
		}
	}

	for i, l := range pending {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if isNew[i] {
			_, err = im.store.CreateLead(l)
		} else {
			err = im.store.UpdateLead(l)
		}
		switch {
		case err != nil:
			im.logger.Warn("importing lead failed", "email", l.Email, "error", err)
			res.Failed++
		case isNew[i]:
			res.Created++
		default:
			res.Updated++
		}
	}
	return res, nil
}

// resolve returns the row merged into the owner's existing lead with that
// email, or the row itself when there is none.
func (im *Importer) resolve(in lead.Lead) (l lead.Lead, created bool, err error) {
	existing, err := im.store.FindLeadByEmail(in.OwnerID, in.Email)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return in, true, nil
	case err != nil:
		return lead.Lead{}, false, err
	}
	return mergeLead(existing, in), false, nil
}

// mergeLead overwrites existing contact fields with non-empty imported ones.
// Status, campaign and engagement are left alone.
func mergeLead(existing, in lead.Lead) lead.Lead {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&existing.Name, in.Name)
	set(&existing.Company, in.Company)
	set(&existing.JobTitle, in.JobTitle)
	set(&existing.Phone, in.Phone)
	set(&existing.LinkedIn, in.LinkedIn)
	set(&existing.CompanyDescription, in.CompanyDescription)
	if len(in.PainPoints) > 0 {
		existing.PainPoints = in.PainPoints
	}
	return existing
}
