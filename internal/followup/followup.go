// Package followup turns the sequence timing tables into persistent queue
// jobs and sends each follow-up when its job comes due.
package followup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/outreach/internal/generation"
	"github.com/kalambet/outreach/internal/lead"
	"github.com/kalambet/outreach/internal/mail"
	"github.com/kalambet/outreach/internal/parser"
	"github.com/kalambet/outreach/internal/sequence"
	"github.com/kalambet/outreach/internal/storage"
	"github.com/kalambet/outreach/internal/worker"
)

// JobType is the queue job type handled by Scheduler.Handle.
const JobType = "followup"

// Payload is the JSON body of a follow-up job.
type Payload struct {
	LeadID     string `json:"lead_id"`
	CampaignID string `json:"campaign_id"`
	Step       int    `json:"step"`
}

// Store is the persistence the scheduler needs.
type Store interface {
	EnqueueJob(job storage.Job) error
	GetLead(id string) (lead.Lead, error)
	UpdateLead(l lead.Lead) error
	GetCampaign(id string) (lead.Campaign, error)
	CreateEmail(e lead.EmailRecord) (lead.EmailRecord, error)
	ListEmailsForLead(leadID string) ([]lead.EmailRecord, error)
}

// Generator writes the follow-up for a sequence step.
type Generator interface {
	GenerateFollowUp(ctx context.Context, l lead.Lead, step sequence.Step, previous map[string]string, settings lead.CampaignSettings) (parser.FollowUpArtifact, error)
}

// Scheduler plans and dispatches follow-up sequences.
type Scheduler struct {
	store        Store
	gen          Generator
	sender       mail.Sender
	maxFollowUps int
	defaults     func() lead.CampaignSettings
	openHour     int
	closeHour    int
	logger       *slog.Logger
	now          func() time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithDefaultSettings supplies sender settings that fill empty campaign
// settings fields.
func WithDefaultSettings(fn func() lead.CampaignSettings) Option {
	return func(s *Scheduler) { s.defaults = fn }
}

// WithBusinessHours moves due times outside [start, end) forward to the next
// start hour. Invalid ranges leave due times unchanged.
func WithBusinessHours(start, end int) Option {
	return func(s *Scheduler) {
		if start >= 0 && end <= 24 && start < end {
			s.openHour, s.closeHour = start, end
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// NewScheduler creates a Scheduler that plans up to maxFollowUps follow-ups
// per lead.
func NewScheduler(store Store, gen Generator, sender mail.Sender, maxFollowUps int, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:        store,
		gen:          gen,
		sender:       sender,
		maxFollowUps: maxFollowUps,
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Plan enqueues one follow-up job per step, due at sentAt plus the
// cumulative step delay.
func (s *Scheduler) Plan(l lead.Lead, campaignID string, sentAt time.Time) error {
	for _, p := range sequence.Plan(sentAt, s.maxFollowUps) {
		payload, err := json.Marshal(Payload{LeadID: l.ID, CampaignID: campaignID, Step: int(p.Step)})
		if err != nil {
			return fmt.Errorf("encoding follow-up payload: %w", err)
		}
		if err := s.store.EnqueueJob(storage.Job{
			ID:          uuid.New().String(),
			Type:        JobType,
			PayloadJSON: string(payload),
			RunAfter:    s.withinHours(p.Due),
		}); err != nil {
			return fmt.Errorf("enqueueing follow-up step %d for lead %s: %w", p.Step, l.ID, err)
		}
	}
	return nil
}

func (s *Scheduler) withinHours(t time.Time) time.Time {
	if s.closeHour == 0 {
		return t
	}
	h := t.Hour()
	if h >= s.openHour && h < s.closeHour {
		return t
	}
	day := time.Date(t.Year(), t.Month(), t.Day(), s.openHour, 0, 0, 0, t.Location())
	if h >= s.closeHour {
		day = day.AddDate(0, 0, 1)
	}
	return day
}

// Handle sends the follow-up described by job. Leads that have replied,
// closed or moved to another campaign are skipped, as are steps already
// sent. When the daily generation or send quota is used up the step is
// re-enqueued for the next day's opening. Any other error leaves the job to
// the queue's retry policy.
func (s *Scheduler) Handle(ctx context.Context, job *storage.Job) error {
	var p Payload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &p); err != nil {
		return worker.Permanent(fmt.Errorf("parsing payload: %w", err))
	}

	l, err := s.store.GetLead(p.LeadID)
	if errors.Is(err, storage.ErrNotFound) {
		return worker.Permanent(fmt.Errorf("lead %s: %w", p.LeadID, err))
	}
	if err != nil {
		return fmt.Errorf("loading lead %s: %w", p.LeadID, err)
	}
	if reason := skipReason(l, p.CampaignID); reason != "" {
		s.logger.Info("follow-up skipped", "lead", l.Email, "step", p.Step, "reason", reason)
		return nil
	}

	history, err := s.store.ListEmailsForLead(l.ID)
	if err != nil {
		return fmt.Errorf("loading email history: %w", err)
	}
	var last *lead.EmailRecord
	for i := range history {
		e := &history[i]
		if e.Type == lead.EmailFollowUp && e.Step == p.Step {
			s.logger.Info("follow-up already sent", "lead", l.Email, "step", p.Step)
			return nil
		}
		if e.Type != lead.EmailResponse {
			last = e
		}
	}

	settings := s.settings(p.CampaignID)
	art, err := s.gen.GenerateFollowUp(ctx, l, sequence.Step(p.Step), s.previous(last), settings)
	if quotaExceeded(err) {
		return s.postpone(job, p, err)
	}
	if err != nil {
		return fmt.Errorf("generating follow-up: %w", err)
	}

	subject := art.SubjectLine
	if subject == "" || subject == parser.DefaultSubject {
		subject = "Following up"
		if last != nil && last.Subject != "" {
			subject = "Re: " + last.Subject
		}
	}

	receipt, err := s.sender.Send(ctx, mail.Message{To: l.Email, Subject: subject, Body: art.EmailBody, FromName: settings.FromName})
	if quotaExceeded(err) {
		return s.postpone(job, p, err)
	}
	if err != nil {
		return fmt.Errorf("sending follow-up: %w", err)
	}
	sentAt := receipt.SentAt
	if sentAt.IsZero() {
		sentAt = s.now().UTC()
	}

	if _, err := s.store.CreateEmail(lead.EmailRecord{
		LeadID:     l.ID,
		CampaignID: p.CampaignID,
		OwnerID:    l.OwnerID,
		Type:       lead.EmailFollowUp,
		Subject:    subject,
		Body:       art.EmailBody,
		Status:     "sent",
		MessageID:  receipt.MessageID,
		Step:       p.Step,
		SentAt:     sentAt,
	}); err != nil {
		s.logger.Warn("recording follow-up", "lead", l.Email, "error", err)
	}

	l.LastContacted = sentAt
	if err := s.store.UpdateLead(l); err != nil {
		s.logger.Warn("updating lead after follow-up", "lead", l.Email, "error", err)
	}
	s.logger.Info("follow-up sent", "lead", l.Email, "step", p.Step, "strategy", sequence.StrategyFor(sequence.Step(p.Step)).Name)
	return nil
}

func quotaExceeded(err error) bool {
	return errors.Is(err, generation.ErrDailyQuotaExceeded) || errors.Is(err, mail.ErrDailyLimit)
}

// postpone re-enqueues the step as a fresh job at the next day's opening so
// quota exhaustion does not consume the job's attempts.
func (s *Scheduler) postpone(job *storage.Job, p Payload, cause error) error {
	now := s.now()
	next := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
	runAfter := s.withinHours(next)
	if err := s.store.EnqueueJob(storage.Job{
		ID:          uuid.New().String(),
		Type:        JobType,
		PayloadJSON: job.PayloadJSON,
		MaxAttempts: job.MaxAttempts,
		RunAfter:    runAfter,
	}); err != nil {
		return fmt.Errorf("postponing follow-up step %d for lead %s: %w", p.Step, p.LeadID, err)
	}
	s.logger.Info("follow-up postponed", "lead", p.LeadID, "step", p.Step, "run_after", runAfter, "reason", cause)
	return nil
}

func skipReason(l lead.Lead, campaignID string) string {
	switch l.Status {
	case lead.StatusResponded, lead.StatusQualified, lead.StatusBooked, lead.StatusLost:
		return "status " + string(l.Status)
	}
	if campaignID != "" && l.CampaignID != "" && l.CampaignID != campaignID {
		return "moved to campaign " + l.CampaignID
	}
	return ""
}

func (s *Scheduler) settings(campaignID string) lead.CampaignSettings {
	var settings lead.CampaignSettings
	if campaignID != "" {
		c, err := s.store.GetCampaign(campaignID)
		if err != nil {
			s.logger.Warn("loading campaign for follow-up", "campaign", campaignID, "error", err)
		} else {
			settings = c.Settings
		}
	}
	if s.defaults != nil {
		settings = settings.Merge(s.defaults())
	}
	return settings
}

func (s *Scheduler) previous(last *lead.EmailRecord) map[string]string {
	if last == nil {
		return nil
	}
	days := int(s.now().Sub(last.SentAt).Hours() / 24)
	return map[string]string{
		"previous_subject":        last.Subject,
		"previous_body":           last.Body,
		"days_since_last_contact": fmt.Sprintf("%d", days),
	}
}
