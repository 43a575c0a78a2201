package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/outreach/internal/lead"
)

const leadColumns = `id, owner_id, name, email, company, job_title, phone, linkedin, company_description,
	pain_points, status, score, campaign_id, engagement, created_at, last_contacted`

// CreateLead inserts l. Missing ID, status and creation time are filled in
// and the stored lead is returned.
func (s *Store) CreateLead(l lead.Lead) (lead.Lead, error) {
	if missing := l.MissingRequired(); len(missing) > 0 {
		return lead.Lead{}, fmt.Errorf("lead is missing required fields %v", missing)
	}
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	if l.Status == "" {
		l.Status = lead.StatusNew
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC().Truncate(time.Second)
	}
	l.Score = lead.ClampScore(l.Score)

	pain, engagement, err := encodeLeadJSON(l)
	if err != nil {
		return lead.Lead{}, err
	}
	_, err = s.db.Exec(`INSERT INTO leads (`+leadColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.OwnerID, l.Name, l.Email, l.Company, l.JobTitle, l.Phone, l.LinkedIn, l.CompanyDescription,
		pain, string(l.Status), l.Score, l.CampaignID, engagement, formatTime(l.CreatedAt), nullTime(l.LastContacted),
	)
	if err != nil {
		return lead.Lead{}, fmt.Errorf("inserting lead %s: %w", l.Email, err)
	}
	return l, nil
}

// GetLead returns the lead with id.
func (s *Store) GetLead(id string) (lead.Lead, error) {
	l, err := scanLead(s.db.QueryRow(`SELECT `+leadColumns+` FROM leads WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return lead.Lead{}, ErrNotFound
	}
	return l, err
}

// FindLeadByEmail returns the owner's lead with email.
func (s *Store) FindLeadByEmail(ownerID, email string) (lead.Lead, error) {
	l, err := scanLead(s.db.QueryRow(`SELECT `+leadColumns+` FROM leads WHERE owner_id = ? AND email = ?`, ownerID, email))
	if err == sql.ErrNoRows {
		return lead.Lead{}, ErrNotFound
	}
	return l, err
}

// UpdateLead overwrites every mutable column of l.
func (s *Store) UpdateLead(l lead.Lead) error {
	pain, engagement, err := encodeLeadJSON(l)
	if err != nil {
		return err
	}
	res, err := s.db.Exec(`UPDATE leads SET name = ?, email = ?, company = ?, job_title = ?, phone = ?, linkedin = ?,
		company_description = ?, pain_points = ?, status = ?, score = ?, campaign_id = ?, engagement = ?, last_contacted = ?
		WHERE id = ?`,
		l.Name, l.Email, l.Company, l.JobTitle, l.Phone, l.LinkedIn, l.CompanyDescription,
		pain, string(l.Status), lead.ClampScore(l.Score), l.CampaignID, engagement, nullTime(l.LastContacted), l.ID,
	)
	if err != nil {
		return fmt.Errorf("updating lead %s: %w", l.ID, err)
	}
	return rowsAffectedOrNotFound(res)
}

// ListLeads returns leads matching f, oldest first.
func (s *Store) ListLeads(f LeadFilter) ([]lead.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE 1 = 1`
	var args []any
	if f.OwnerID != "" {
		query += ` AND owner_id = ?`
		args = append(args, f.OwnerID)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	if f.CampaignID != "" {
		query += ` AND campaign_id = ?`
		args = append(args, f.CampaignID)
	}
	query += ` ORDER BY created_at ASC, rowid ASC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing leads: %w", err)
	}
	defer rows.Close()

	var out []lead.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func encodeLeadJSON(l lead.Lead) (pain, engagement string, err error) {
	pp := l.PainPoints
	if pp == nil {
		pp = []string{}
	}
	pb, err := json.Marshal(pp)
	if err != nil {
		return "", "", fmt.Errorf("encoding pain points: %w", err)
	}
	eng := l.Engagement
	if eng == nil {
		eng = map[string]float64{}
	}
	eb, err := json.Marshal(eng)
	if err != nil {
		return "", "", fmt.Errorf("encoding engagement: %w", err)
	}
	return string(pb), string(eb), nil
}

func scanLead(r rowScanner) (lead.Lead, error) {
	var l lead.Lead
	var status, pain, engagement, createdAt string
	var lastContacted sql.NullString
	if err := r.Scan(&l.ID, &l.OwnerID, &l.Name, &l.Email, &l.Company, &l.JobTitle, &l.Phone, &l.LinkedIn,
		&l.CompanyDescription, &pain, &status, &l.Score, &l.CampaignID, &engagement, &createdAt, &lastContacted); err != nil {
		return lead.Lead{}, err
	}
	l.Status = lead.Status(status)
	if err := json.Unmarshal([]byte(pain), &l.PainPoints); err != nil {
		return lead.Lead{}, fmt.Errorf("decoding pain points for lead %s: %w", l.ID, err)
	}
	if err := json.Unmarshal([]byte(engagement), &l.Engagement); err != nil {
		return lead.Lead{}, fmt.Errorf("decoding engagement for lead %s: %w", l.ID, err)
	}

	var err error
	if l.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return lead.Lead{}, err
	}
	if l.LastContacted, err = parseNullTime("last_contacted", lastContacted); err != nil {
		return lead.Lead{}, err
	}
	return l, nil
}
