package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/outreach/internal/lead"
)

// --- Campaigns ---

// CreateCampaign inserts c and returns it with ID, status and timestamps set.
func (s *Store) CreateCampaign(c lead.Campaign) (lead.Campaign, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Status == "" {
		c.Status = lead.CampaignDraft
	}
	now := time.Now().UTC().Truncate(time.Second)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	settings, err := json.Marshal(c.Settings)
	if err != nil {
		return lead.Campaign{}, fmt.Errorf("encoding campaign settings: %w", err)
	}
	_, err = s.db.Exec(`INSERT INTO campaigns (id, owner_id, name, status, settings, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.OwnerID, c.Name, string(c.Status), string(settings), formatTime(c.CreatedAt), formatTime(c.UpdatedAt))
	if err != nil {
		return lead.Campaign{}, fmt.Errorf("inserting campaign: %w", err)
	}
	return c, nil
}

// GetCampaign returns the campaign with id.
func (s *Store) GetCampaign(id string) (lead.Campaign, error) {
	var c lead.Campaign
	var status, settings, createdAt, updatedAt string
	err := s.db.QueryRow(`SELECT id, owner_id, name, status, settings, created_at, updated_at FROM campaigns WHERE id = ?`, id).
		Scan(&c.ID, &c.OwnerID, &c.Name, &status, &settings, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return lead.Campaign{}, ErrNotFound
	}
	if err != nil {
		return lead.Campaign{}, err
	}
	c.Status = lead.CampaignStatus(status)
	if err := json.Unmarshal([]byte(settings), &c.Settings); err != nil {
		return lead.Campaign{}, fmt.Errorf("decoding campaign settings: %w", err)
	}
	if c.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return lead.Campaign{}, err
	}
	if c.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return lead.Campaign{}, err
	}
	return c, nil
}

// UpdateCampaignStatus sets the status of campaign id.
func (s *Store) UpdateCampaignStatus(id string, status lead.CampaignStatus) error {
	res, err := s.db.Exec(`UPDATE campaigns SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), formatTime(time.Now()), id)
	if err != nil {
		return err
	}
	return rowsAffectedOrNotFound(res)
}

// --- Emails ---

// CreateEmail appends an audit record and returns it with ID and SentAt set.
func (s *Store) CreateEmail(e lead.EmailRecord) (lead.EmailRecord, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.SentAt.IsZero() {
		e.SentAt = time.Now().UTC().Truncate(time.Second)
	}
	if e.Status == "" {
		e.Status = "sent"
	}
	_, err := s.db.Exec(`INSERT INTO emails (id, lead_id, campaign_id, owner_id, type, subject, body, status, message_id, step, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.LeadID, e.CampaignID, e.OwnerID, string(e.Type), e.Subject, e.Body, e.Status, e.MessageID, e.Step, formatTime(e.SentAt))
	if err != nil {
		return lead.EmailRecord{}, fmt.Errorf("inserting email for lead %s: %w", e.LeadID, err)
	}
	return e, nil
}

// ListEmailsForLead returns the lead's audit trail, oldest first.
func (s *Store) ListEmailsForLead(leadID string) ([]lead.EmailRecord, error) {
	rows, err := s.db.Query(`SELECT id, lead_id, campaign_id, owner_id, type, subject, body, status, message_id, step, sent_at
		FROM emails WHERE lead_id = ? ORDER BY sent_at ASC, rowid ASC`, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []lead.EmailRecord
	for rows.Next() {
		var e lead.EmailRecord
		var typ, sentAt string
		if err := rows.Scan(&e.ID, &e.LeadID, &e.CampaignID, &e.OwnerID, &typ, &e.Subject, &e.Body, &e.Status, &e.MessageID, &e.Step, &sentAt); err != nil {
			return nil, err
		}
		e.Type = lead.EmailType(typ)
		if e.SentAt, err = parseTime("sent_at", sentAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- Campaign jobs ---

const campaignJobColumns = `id, campaign_id, user_id, status, created_at, started_at, completed_at, total, processed, emails_sent, error`

// SaveCampaignJob inserts or replaces the stored copy of j.
func (s *Store) SaveCampaignJob(j lead.CampaignJob) error {
	_, err := s.db.Exec(`INSERT INTO campaign_jobs (`+campaignJobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status = excluded.status, started_at = excluded.started_at,
			completed_at = excluded.completed_at, total = excluded.total, processed = excluded.processed,
			emails_sent = excluded.emails_sent, error = excluded.error`,
		j.ID, j.CampaignID, j.UserID, string(j.Status), formatTime(j.CreatedAt), nullTime(j.StartedAt), nullTime(j.CompletedAt),
		j.Total, j.Processed, j.EmailsSent, j.Error)
	if err != nil {
		return fmt.Errorf("saving campaign job %s: %w", j.ID, err)
	}
	return nil
}

// GetCampaignJob returns the stored copy of job id.
func (s *Store) GetCampaignJob(id string) (lead.CampaignJob, error) {
	j, err := scanCampaignJob(s.db.QueryRow(`SELECT `+campaignJobColumns+` FROM campaign_jobs WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return lead.CampaignJob{}, ErrNotFound
	}
	return j, err
}

// ListCampaignJobs returns stored jobs in any of statuses, oldest first.
func (s *Store) ListCampaignJobs(statuses ...lead.JobStatus) ([]lead.CampaignJob, error) {
	query := `SELECT ` + campaignJobColumns + ` FROM campaign_jobs`
	var args []any
	if len(statuses) > 0 {
		query += ` WHERE status IN (?` + strings.Repeat(",?", len(statuses)-1) + `)`
		for _, st := range statuses {
			args = append(args, string(st))
		}
	}
	query += ` ORDER BY created_at ASC, rowid ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []lead.CampaignJob
	for rows.Next() {
		j, err := scanCampaignJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func scanCampaignJob(r rowScanner) (lead.CampaignJob, error) {
	var j lead.CampaignJob
	var status, createdAt string
	var startedAt, completedAt sql.NullString
	if err := r.Scan(&j.ID, &j.CampaignID, &j.UserID, &status, &createdAt, &startedAt, &completedAt,
		&j.Total, &j.Processed, &j.EmailsSent, &j.Error); err != nil {
		return lead.CampaignJob{}, err
	}
	j.Status = lead.JobStatus(status)

	var err error
	if j.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return lead.CampaignJob{}, err
	}
	if j.StartedAt, err = parseNullTime("started_at", startedAt); err != nil {
		return lead.CampaignJob{}, err
	}
	if j.CompletedAt, err = parseNullTime("completed_at", completedAt); err != nil {
		return lead.CampaignJob{}, err
	}
	return j, nil
}
