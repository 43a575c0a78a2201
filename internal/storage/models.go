package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Job is a persistent background job.
type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // one of the Job* status constants
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}

// LeadFilter selects leads for ListLeads. Empty fields match everything.
type LeadFilter struct {
	OwnerID    string
	Status     string
	CampaignID string
	Limit      int
}
