package google

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/kalambet/outreach/internal/lead"
)

// DefaultRange covers the eight lead columns of the first sheet.
const DefaultRange = "A:H"

// NewSheetsService creates a Sheets client using httpClient. A non-empty
// endpoint overrides the API base URL.
func NewSheetsService(ctx context.Context, httpClient *http.Client, endpoint string) (*sheets.Service, error) {
	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating sheets service: %w", err)
	}
	return svc, nil
}

// SheetsExtractor reads lead rows from a spreadsheet.
type SheetsExtractor struct {
	svc    *sheets.Service
	logger *slog.Logger
}

func NewSheetsExtractor(svc *sheets.Service) *SheetsExtractor {
	return &SheetsExtractor{svc: svc, logger: slog.Default()}
}

// Rows returns the cell values in rng as strings.
func (e *SheetsExtractor) Rows(ctx context.Context, spreadsheetID, rng string) ([][]string, error) {
	if rng == "" {
		rng = DefaultRange
	}
	resp, err := e.svc.Spreadsheets.Values.Get(spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("reading %s!%s: %w", spreadsheetID, rng, err)
	}
	rows := make([][]string, 0, len(resp.Values))
	for _, r := range resp.Values {
		row := make([]string, len(r))
		for i, v := range r {
			row[i] = strings.TrimSpace(fmt.Sprint(v))
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ExtractLeads reads rng and maps its rows to leads owned by ownerID.
func (e *SheetsExtractor) ExtractLeads(ctx context.Context, spreadsheetID, rng, ownerID string) ([]lead.Lead, error) {
	rows, err := e.Rows(ctx, spreadsheetID, rng)
	if err != nil {
		return nil, err
	}
	return RowsToLeads(rows, ownerID, e.logger), nil
}

// RowsToLeads maps rows by column position: name, email, company, job
// title, phone, linkedin, description, pain points (comma separated). A
// header row is skipped. Rows missing a mandatory field are dropped with a
// warning.
func RowsToLeads(rows [][]string, ownerID string, logger *slog.Logger) []lead.Lead {
	if logger == nil {
		logger = slog.Default()
	}
	var out []lead.Lead
	for i, row := range rows {
		if i == 0 && isHeader(row) {
			continue
		}
		col := func(n int) string {
			if n < len(row) {
				return strings.TrimSpace(row[n])
			}
			return ""
		}
		l := lead.Lead{
			OwnerID:            ownerID,
			Name:               col(0),
			Email:              strings.ToLower(col(1)),
			Company:            col(2),
			JobTitle:           col(3),
			Phone:              col(4),
			LinkedIn:           col(5),
			CompanyDescription: col(6),
			PainPoints:         splitPainPoints(col(7)),
			Status:             lead.StatusNew,
		}
		if missing := l.MissingRequired(); len(missing) > 0 {
			logger.Warn("skipping sheet row", "row", i+1, "missing", missing)
			continue
		}
		out = append(out, l)
	}
	return out
}

func isHeader(row []string) bool {
	return len(row) > 1 && strings.EqualFold(strings.TrimSpace(row[1]), "email")
}

func splitPainPoints(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
