package lead

import "time"

// CampaignStatus is the lifecycle state of a campaign definition.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignActive    CampaignStatus = "active"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
	CampaignArchived  CampaignStatus = "archived"
)

// Campaign groups outreach to a set of leads owned by one user.
type Campaign struct {
	ID        string           `json:"id"`
	OwnerID   string           `json:"owner_id"`
	Name      string           `json:"name"`
	Status    CampaignStatus   `json:"status"`
	Settings  CampaignSettings `json:"settings"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// CampaignSettings carries per-campaign overrides for generated content.
// Empty fields fall back to the sender profile.
type CampaignSettings struct {
	ValueProposition string `json:"value_proposition,omitempty" yaml:"value_proposition"`
	SchedulingLink   string `json:"scheduling_link,omitempty" yaml:"scheduling_link"`
	Approach         string `json:"approach,omitempty" yaml:"approach"`
	FromName         string `json:"from_name,omitempty" yaml:"from_name"`
}

// Merge returns s with empty fields filled from fallback.
func (s CampaignSettings) Merge(fallback CampaignSettings) CampaignSettings {
	if s.ValueProposition == "" {
		s.ValueProposition = fallback.ValueProposition
	}
	if s.SchedulingLink == "" {
		s.SchedulingLink = fallback.SchedulingLink
	}
	if s.Approach == "" {
		s.Approach = fallback.Approach
	}
	if s.FromName == "" {
		s.FromName = fallback.FromName
	}
	return s
}

// EmailType tags an outbound or inbound email.
type EmailType string

const (
	EmailCold     EmailType = "cold_email"
	EmailFollowUp EmailType = "follow_up"
	EmailResponse EmailType = "response"
)

// EmailRecord is the audit trail entry for a sent or received email.
type EmailRecord struct {
	ID         string    `json:"id"`
	LeadID     string    `json:"lead_id"`
	CampaignID string    `json:"campaign_id,omitempty"`
	OwnerID    string    `json:"owner_id"`
	Type       EmailType `json:"type"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	Status     string    `json:"status"`
	MessageID  string    `json:"message_id,omitempty"`
	Step       int       `json:"step,omitempty"`
	SentAt     time.Time `json:"sent_at"`
}

// JobStatus is the state of a campaign job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobPaused    JobStatus = "paused"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether the job can no longer change state.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// CampaignJob is one orchestration run of a campaign.
type CampaignJob struct {
	ID          string    `json:"id"`
	CampaignID  string    `json:"campaign_id"`
	UserID      string    `json:"user_id"`
	Status      JobStatus `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	StartedAt   time.Time `json:"started_at,omitzero"`
	CompletedAt time.Time `json:"completed_at,omitzero"`
	Total       int       `json:"total"`
	Processed   int       `json:"processed"`
	EmailsSent  int       `json:"emails_sent"`
	Error       string    `json:"error,omitempty"`
}
