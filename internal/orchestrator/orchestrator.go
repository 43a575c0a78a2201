// Package orchestrator runs campaign jobs: it schedules them under a
// concurrency cap, walks each campaign's leads in paced batches, generates and
// sends cold emails, and fails jobs that outlive their wall-clock budget.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/outreach/internal/generation"
	"github.com/kalambet/outreach/internal/lead"
	"github.com/kalambet/outreach/internal/mail"
	"github.com/kalambet/outreach/internal/storage"
)

var (
	// ErrJobNotFound is returned for an unknown job ID.
	ErrJobNotFound = errors.New("campaign job not found")
	// ErrInvalidTransition is returned when a job cannot move to the
	// requested state.
	ErrInvalidTransition = errors.New("invalid job state transition")

	errPauseRequested = errors.New("pause requested")
)

// Store is the persistence the orchestrator reads leads from and mirrors job
// state into.
type Store interface {
	GetCampaign(id string) (lead.Campaign, error)
	UpdateCampaignStatus(id string, status lead.CampaignStatus) error
	ListLeads(f storage.LeadFilter) ([]lead.Lead, error)
	UpdateLead(l lead.Lead) error
	CreateEmail(e lead.EmailRecord) (lead.EmailRecord, error)
	SaveCampaignJob(j lead.CampaignJob) error
	ListCampaignJobs(statuses ...lead.JobStatus) ([]lead.CampaignJob, error)
}

// Generator produces the cold email for a lead.
type Generator interface {
	GenerateColdEmail(ctx context.Context, l lead.Lead, settings lead.CampaignSettings, extra map[string]string) (generation.GeneratedEmail, error)
}

// FollowUpPlanner schedules the follow-up sequence after a first send.
type FollowUpPlanner interface {
	Plan(l lead.Lead, campaignID string, sentAt time.Time) error
}

// Config controls pacing, eligibility and limits.
type Config struct {
	BatchSize       int
	BatchInterval   time.Duration
	MaxConcurrent   int
	FollowUpDelay   time.Duration
	ScoreThreshold  float64
	MaxLeads        int
	JobTimeout      time.Duration
	MonitorInterval time.Duration
	RequeueBackoff  time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:       50,
		BatchInterval:   15 * time.Minute,
		MaxConcurrent:   10,
		FollowUpDelay:   48 * time.Hour,
		ScoreThreshold:  0.7,
		MaxLeads:        1000,
		JobTimeout:      24 * time.Hour,
		MonitorInterval: 5 * time.Minute,
		RequeueBackoff:  5 * time.Second,
	}
}

func (c *Config) fill() {
	d := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = d.MaxConcurrent
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = d.JobTimeout
	}
	if c.MonitorInterval <= 0 {
		c.MonitorInterval = d.MonitorInterval
	}
	if c.RequeueBackoff <= 0 {
		c.RequeueBackoff = d.RequeueBackoff
	}
}

// Eligible reports whether l may be contacted by campaign campaignID at now.
// When it may not, reason says why.
func (c Config) Eligible(l lead.Lead, campaignID string, now time.Time) (ok bool, reason string) {
	if l.CampaignID != "" && l.CampaignID != campaignID {
		return false, "assigned to campaign " + l.CampaignID
	}
	if !l.LastContacted.IsZero() && now.Sub(l.LastContacted) < c.FollowUpDelay {
		return false, "contacted recently"
	}
	if l.Score < c.ScoreThreshold {
		return false, fmt.Sprintf("score %.2f below threshold %.2f", l.Score, c.ScoreThreshold)
	}
	switch l.Status {
	case lead.StatusResponded, lead.StatusQualified, lead.StatusBooked, lead.StatusLost:
		return false, "status " + string(l.Status)
	}
	return true, ""
}

// Orchestrator owns the state of every campaign job it knows about. The
// campaign_jobs table is a write-through copy of that state.
type Orchestrator struct {
	store    Store
	gen      Generator
	sender   mail.Sender
	planner  FollowUpPlanner
	defaults func() lead.CampaignSettings
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	jobs    map[string]*tracked
	queue   []string
	running int
	wake    chan struct{}
	tasks   sync.WaitGroup
}

type tracked struct {
	job    lead.CampaignJob
	pause  bool
	cancel context.CancelFunc
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPlanner schedules follow-ups after each successful first send.
func WithPlanner(p FollowUpPlanner) Option {
	return func(o *Orchestrator) { o.planner = p }
}

// WithDefaultSettings supplies sender settings that fill empty campaign
// settings fields.
func WithDefaultSettings(fn func() lead.CampaignSettings) Option {
	return func(o *Orchestrator) { o.defaults = fn }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an Orchestrator. Call Run to start processing.
func New(store Store, gen Generator, sender mail.Sender, cfg Config, opts ...Option) *Orchestrator {
	cfg.fill()
	o := &Orchestrator{
		store:  store,
		gen:    gen,
		sender: sender,
		cfg:    cfg,
		logger: slog.Default(),
		now:    time.Now,
		jobs:   make(map[string]*tracked),
		wake:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// StartCampaign creates a pending job for the campaign and queues it.
// An empty userID means the campaign owner.
func (o *Orchestrator) StartCampaign(campaignID, userID string) (lead.CampaignJob, error) {
	c, err := o.store.GetCampaign(campaignID)
	if err != nil {
		return lead.CampaignJob{}, fmt.Errorf("loading campaign %s: %w", campaignID, err)
	}
	if userID == "" {
		userID = c.OwnerID
	}

	job := lead.CampaignJob{
		ID:         uuid.New().String(),
		CampaignID: campaignID,
		UserID:     userID,
		Status:     lead.JobPending,
		CreatedAt:  o.now().UTC(),
	}

	// The job is tracked before it is saved so a concurrent start for the
	// same campaign sees it.
	o.mu.Lock()
	for _, t := range o.jobs {
		if t.job.CampaignID == campaignID && !t.job.Status.Terminal() {
			o.mu.Unlock()
			return lead.CampaignJob{}, fmt.Errorf("%w: campaign %s already has job %s (%s)", ErrInvalidTransition, campaignID, t.job.ID, t.job.Status)
		}
	}
	o.jobs[job.ID] = &tracked{job: job}
	o.mu.Unlock()

	if err := o.store.SaveCampaignJob(job); err != nil {
		o.mu.Lock()
		delete(o.jobs, job.ID)
		o.mu.Unlock()
		return lead.CampaignJob{}, fmt.Errorf("creating job: %w", err)
	}

	o.mu.Lock()
	o.queue = append(o.queue, job.ID)
	o.mu.Unlock()
	o.nudge()

	if err := o.store.UpdateCampaignStatus(campaignID, lead.CampaignActive); err != nil {
		o.logger.Warn("updating campaign status", "campaign", campaignID, "error", err)
	}
	o.logger.Info("campaign job queued", "job", job.ID, "campaign", campaignID)
	return job, nil
}

// Status returns a snapshot of the job.
func (o *Orchestrator) Status(id string) (lead.CampaignJob, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	t, ok := o.jobs[id]
	if !ok {
		return lead.CampaignJob{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return t.job, nil
}

// Jobs returns snapshots of every known job, oldest first.
func (o *Orchestrator) Jobs() []lead.CampaignJob {
	o.mu.Lock()
	out := make([]lead.CampaignJob, 0, len(o.jobs))
	for _, t := range o.jobs {
		out = append(out, t.job)
	}
	o.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Pause stops a job. A pending job pauses at once; a running job pauses at
// its next batch boundary and is reported as running until then.
func (o *Orchestrator) Pause(id string) (lead.CampaignJob, error) {
	o.mu.Lock()
	t, ok := o.jobs[id]
	if !ok {
		o.mu.Unlock()
		return lead.CampaignJob{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	switch t.job.Status {
	case lead.JobPending:
		t.job.Status = lead.JobPaused
	case lead.JobRunning:
		t.pause = true
	default:
		st := t.job.Status
		o.mu.Unlock()
		return lead.CampaignJob{}, fmt.Errorf("%w: cannot pause %s job", ErrInvalidTransition, st)
	}
	snap := t.job
	o.mu.Unlock()

	if snap.Status == lead.JobPaused {
		o.persist(snap)
		o.setCampaignStatus(snap.CampaignID, lead.CampaignPaused)
	}
	return snap, nil
}

// Resume re-queues a paused job, or cancels a pause still waiting for a
// batch boundary.
func (o *Orchestrator) Resume(id string) (lead.CampaignJob, error) {
	o.mu.Lock()
	t, ok := o.jobs[id]
	if !ok {
		o.mu.Unlock()
		return lead.CampaignJob{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	switch {
	case t.job.Status == lead.JobPaused:
		t.job.Status = lead.JobPending
		t.job.Error = ""
		t.pause = false
		o.queue = append(o.queue, id)
	case t.job.Status == lead.JobRunning && t.pause:
		t.pause = false
	default:
		st := t.job.Status
		o.mu.Unlock()
		return lead.CampaignJob{}, fmt.Errorf("%w: cannot resume %s job", ErrInvalidTransition, st)
	}
	snap := t.job
	o.mu.Unlock()

	if snap.Status == lead.JobPending {
		o.persist(snap)
		o.setCampaignStatus(snap.CampaignID, lead.CampaignActive)
		o.nudge()
	}
	return snap, nil
}

// Restore loads unfinished jobs from the store. Jobs that were running when
// the process stopped are queued again.
func (o *Orchestrator) Restore() (int, error) {
	stored, err := o.store.ListCampaignJobs(lead.JobPending, lead.JobRunning, lead.JobPaused)
	if err != nil {
		return 0, fmt.Errorf("listing unfinished jobs: %w", err)
	}

	var restored []lead.CampaignJob
	o.mu.Lock()
	for _, j := range stored {
		if _, ok := o.jobs[j.ID]; ok {
			continue
		}
		if j.Status == lead.JobRunning {
			j.Status = lead.JobPending
		}
		o.jobs[j.ID] = &tracked{job: j}
		if j.Status == lead.JobPending {
			o.queue = append(o.queue, j.ID)
		}
		restored = append(restored, j)
	}
	o.mu.Unlock()

	for _, j := range restored {
		o.persist(j)
	}
	if len(restored) > 0 {
		o.nudge()
	}
	return len(restored), nil
}

// Run schedules queued jobs and monitors running ones until ctx is
// cancelled. It returns after every job task has exited.
func (o *Orchestrator) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		o.monitor(ctx)
	}()

	o.schedule(ctx)
	wg.Wait()
	o.tasks.Wait()
}

func (o *Orchestrator) schedule(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		id, ok := o.dequeue()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-o.wake:
			}
			continue
		}

		if !o.tryStart(ctx, id) {
			select {
			case <-ctx.Done():
				return
			case <-time.After(o.cfg.RequeueBackoff):
			}
		}
	}
}

func (o *Orchestrator) dequeue() (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for len(o.queue) > 0 {
		id := o.queue[0]
		o.queue = o.queue[1:]
		if t, ok := o.jobs[id]; ok && t.job.Status == lead.JobPending {
			return id, true
		}
	}
	return "", false
}

// tryStart launches the job unless the concurrency cap is reached, in which
// case the job goes back to the head of the queue.
func (o *Orchestrator) tryStart(ctx context.Context, id string) bool {
	o.mu.Lock()
	t := o.jobs[id]
	if o.running >= o.cfg.MaxConcurrent {
		o.queue = append([]string{id}, o.queue...)
		o.mu.Unlock()
		return false
	}
	jctx, cancel := context.WithCancel(ctx)
	o.running++
	t.cancel = cancel
	t.pause = false
	t.job.Status = lead.JobRunning
	t.job.StartedAt = o.now().UTC()
	t.job.CompletedAt = time.Time{}
	t.job.Error = ""
	t.job.Processed = 0
	snap := t.job
	o.tasks.Add(1)
	o.mu.Unlock()

	o.persist(snap)
	o.logger.Info("campaign job started", "job", id, "campaign", snap.CampaignID)
	go o.execute(jctx, cancel, id)
	return true
}

func (o *Orchestrator) nudge() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

func (o *Orchestrator) monitor(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.MonitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.CheckTimeouts()
		}
	}
}

// CheckTimeouts fails every running job that has exceeded the job timeout and
// returns their IDs.
func (o *Orchestrator) CheckTimeouts() []string {
	now := o.now().UTC()
	msg := "Job timed out after " + formatBudget(o.cfg.JobTimeout)

	var expired []lead.CampaignJob
	o.mu.Lock()
	for id, t := range o.jobs {
		if t.job.Status != lead.JobRunning || now.Sub(t.job.StartedAt) <= o.cfg.JobTimeout {
			continue
		}
		t.job.Status = lead.JobFailed
		t.job.Error = msg
		t.job.CompletedAt = now
		if t.cancel != nil {
			t.cancel()
		}
		expired = append(expired, t.job)
		o.logger.Error("campaign job timed out", "job", id, "started_at", t.job.StartedAt)
	}
	o.mu.Unlock()

	ids := make([]string, 0, len(expired))
	for _, j := range expired {
		o.persist(j)
		ids = append(ids, j.ID)
	}
	return ids
}

func formatBudget(d time.Duration) string {
	if d >= time.Hour && d%time.Hour == 0 {
		return fmt.Sprintf("%d hours", int(d/time.Hour))
	}
	return d.String()
}

func (o *Orchestrator) execute(ctx context.Context, cancel context.CancelFunc, id string) {
	defer o.tasks.Done()
	defer cancel()

	err := o.process(ctx, id)

	o.mu.Lock()
	o.running--
	t := o.jobs[id]
	t.cancel = nil
	if t.job.Status != lead.JobRunning {
		// The monitor already settled this job.
		o.mu.Unlock()
		o.nudge()
		return
	}

	now := o.now().UTC()
	var campaignStatus lead.CampaignStatus
	switch {
	case err == nil:
		t.job.Status = lead.JobCompleted
		t.job.CompletedAt = now
		campaignStatus = lead.CampaignCompleted
	case errors.Is(err, errPauseRequested):
		t.job.Status = lead.JobPaused
		campaignStatus = lead.CampaignPaused
	case isQuota(err):
		t.job.Status = lead.JobPaused
		t.job.Error = err.Error()
		campaignStatus = lead.CampaignPaused
	case ctx.Err() != nil:
		// Shutting down: leave the job for Restore.
		t.job.Status = lead.JobPending
	default:
		t.job.Status = lead.JobFailed
		t.job.Error = err.Error()
		t.job.CompletedAt = now
	}
	t.pause = false
	snap := t.job
	o.mu.Unlock()
	o.nudge()

	o.persist(snap)
	if campaignStatus != "" {
		o.setCampaignStatus(snap.CampaignID, campaignStatus)
	}

	switch snap.Status {
	case lead.JobFailed:
		o.logger.Error("campaign job failed", "job", id, "error", snap.Error)
	case lead.JobPaused:
		o.logger.Info("campaign job paused", "job", id, "reason", snap.Error)
	default:
		o.logger.Info("campaign job finished", "job", id, "status", snap.Status,
			"processed", snap.Processed, "emails_sent", snap.EmailsSent)
	}
}

func isQuota(err error) bool {
	return errors.Is(err, generation.ErrDailyQuotaExceeded) || errors.Is(err, mail.ErrDailyLimit)
}

func (o *Orchestrator) persist(j lead.CampaignJob) {
	if err := o.store.SaveCampaignJob(j); err != nil {
		o.logger.Warn("mirroring job state", "job", j.ID, "error", err)
	}
}

func (o *Orchestrator) setCampaignStatus(id string, st lead.CampaignStatus) {
	if err := o.store.UpdateCampaignStatus(id, st); err != nil {
		o.logger.Warn("updating campaign status", "campaign", id, "status", st, "error", err)
	}
}

func (o *Orchestrator) update(id string, fn func(j *lead.CampaignJob)) lead.CampaignJob {
	o.mu.Lock()
	defer o.mu.Unlock()
	t := o.jobs[id]
	fn(&t.job)
	return t.job
}
