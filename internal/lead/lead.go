package lead

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTransition is returned when a lead status change would move the
// lead backwards or out of a terminal state.
var ErrInvalidTransition = errors.New("invalid status transition")

// Status is the lifecycle position of a lead.
type Status string

const (
	StatusNew       Status = "new"
	StatusContacted Status = "contacted"
	StatusResponded Status = "responded"
	StatusQualified Status = "qualified"
	StatusBooked    Status = "booked"
	StatusLost      Status = "lost"
)

// rank orders the forward path. Lost is handled separately.
var rank = map[Status]int{
	StatusNew:       0,
	StatusContacted: 1,
	StatusResponded: 2,
	StatusQualified: 3,
	StatusBooked:    4,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	if s == StatusLost {
		return true
	}
	_, ok := rank[s]
	return ok
}

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusLost || s == StatusBooked
}

// CanTransition reports whether a lead in status s may move to status to.
// Movement is forward-only; lost is reachable from any non-terminal status.
// Re-applying the current status is a no-op and allowed.
func (s Status) CanTransition(to Status) bool {
	if !s.Valid() || !to.Valid() {
		return false
	}
	if s == to {
		return true
	}
	if s.Terminal() {
		return false
	}
	if to == StatusLost {
		return true
	}
	return rank[to] > rank[s]
}

// Lead is a prospective contact being pursued for outreach.
type Lead struct {
	ID                 string             `json:"id"`
	OwnerID            string             `json:"owner_id"`
	Name               string             `json:"name"`
	Email              string             `json:"email"`
	Company            string             `json:"company"`
	JobTitle           string             `json:"job_title"`
	Phone              string             `json:"phone,omitempty"`
	LinkedIn           string             `json:"linkedin,omitempty"`
	CompanyDescription string             `json:"company_description,omitempty"`
	PainPoints         []string           `json:"pain_points"`
	Status             Status             `json:"status"`
	Score              float64            `json:"score"`
	CampaignID         string             `json:"campaign_id,omitempty"`
	Engagement         map[string]float64 `json:"engagement,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	LastContacted      time.Time          `json:"last_contacted,omitzero"`
}

// Advance moves the lead to status to, or returns ErrInvalidTransition.
func (l *Lead) Advance(to Status) error {
	if l.Status == "" {
		l.Status = StatusNew
	}
	if !l.Status.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, l.Status, to)
	}
	l.Status = to
	return nil
}

// SetScore stores a score clamped to [0,1].
func (l *Lead) SetScore(score float64) {
	l.Score = ClampScore(score)
}

// MissingRequired returns the names of mandatory fields that are empty.
func (l Lead) MissingRequired() []string {
	var missing []string
	if l.Name == "" {
		missing = append(missing, "name")
	}
	if l.Email == "" {
		missing = append(missing, "email")
	}
	if l.Company == "" {
		missing = append(missing, "company")
	}
	if l.JobTitle == "" {
		missing = append(missing, "job_title")
	}
	return missing
}

// ClampScore limits v to [0,1]. NaN maps to 0.
func ClampScore(v float64) float64 {
	if v != v || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// LeadScore is the result of one scoring call.
type LeadScore struct {
	LeadID          string             `json:"lead_id"`
	Score           float64            `json:"score"`
	Classification  string             `json:"classification,omitempty"`
	Factors         map[string]float64 `json:"factors"`
	Confidence      float64            `json:"confidence"`
	Recommendations []string           `json:"recommendations"`
}
