package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/kalambet/outreach/internal/generation"
	"github.com/kalambet/outreach/internal/lead"
	"github.com/kalambet/outreach/internal/mail"
	"github.com/kalambet/outreach/internal/parser"
	"github.com/kalambet/outreach/internal/storage"
)

func TestMain(m *testing.M) {
	// The Google API transport starts the opencensus view worker at init.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

type fakeGen struct {
	calls atomic.Int32
	fn    func(ctx context.Context, l lead.Lead, s lead.CampaignSettings) (generation.GeneratedEmail, error)
}

func (f *fakeGen) GenerateColdEmail(ctx context.Context, l lead.Lead, s lead.CampaignSettings, _ map[string]string) (generation.GeneratedEmail, error) {
	f.calls.Add(1)
	if f.fn != nil {
		return f.fn(ctx, l, s)
	}
	return okEmail(l), nil
}

func okEmail(l lead.Lead) generation.GeneratedEmail {
	return generation.GeneratedEmail{Email: parser.EmailArtifact{SubjectLine: "Hi " + l.Name, EmailBody: "Hello " + l.Name}}
}

type fakeSender struct {
	mu   sync.Mutex
	sent []mail.Message
	fail func(mail.Message) error
}

func (f *fakeSender) Send(_ context.Context, msg mail.Message) (mail.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		if err := f.fail(msg); err != nil {
			return mail.Receipt{}, err
		}
	}
	f.sent = append(f.sent, msg)
	return mail.Receipt{MessageID: "msg-" + msg.To, SentAt: time.Now().UTC()}, nil
}

func (f *fakeSender) recipients() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.sent {
		out = append(out, m.To)
	}
	return out
}

type fakePlanner struct {
	mu    sync.Mutex
	leads []string
}

func (f *fakePlanner) Plan(l lead.Lead, _ string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leads = append(f.leads, l.Email)
	return nil
}

func testConfig() Config {
	return Config{
		BatchSize:       10,
		MaxConcurrent:   2,
		FollowUpDelay:   48 * time.Hour,
		ScoreThreshold:  0.7,
		MaxLeads:        100,
		JobTimeout:      24 * time.Hour,
		MonitorInterval: time.Hour,
		RequeueBackoff:  5 * time.Millisecond,
	}
}

func openStore(t *testing.T) *storage.Store {
	t.Helper()
	st, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func newCampaign(t *testing.T, st *storage.Store, owner string) lead.Campaign {
	t.Helper()
	c, err := st.CreateCampaign(lead.Campaign{OwnerID: owner, Name: "Q3 outreach"})
	if err != nil {
		t.Fatalf("CreateCampaign: %v", err)
	}
	return c
}

func addLead(t *testing.T, st *storage.Store, owner, email string, mod func(*lead.Lead)) lead.Lead {
	t.Helper()
	l := lead.Lead{OwnerID: owner, Name: strings.Split(email, "@")[0], Email: email, Company: "Acme", JobTitle: "CTO", Score: 0.9}
	if mod != nil {
		mod(&l)
	}
	l, err := st.CreateLead(l)
	if err != nil {
		t.Fatalf("CreateLead: %v", err)
	}
	return l
}

func run(t *testing.T, o *Orchestrator) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		o.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func waitStatus(t *testing.T, o *Orchestrator, id string, want lead.JobStatus) lead.CampaignJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		j, err := o.Status(id)
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if j.Status == want {
			return j
		}
		time.Sleep(5 * time.Millisecond)
	}
	j, _ := o.Status(id)
	t.Fatalf("job %s status = %s, want %s (error %q)", id, j.Status, want, j.Error)
	return j
}

func TestEligible(t *testing.T) {
	cfg := testConfig()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	base := lead.Lead{Status: lead.StatusNew, Score: 0.8}

	tests := []struct {
		name string
		mod  func(*lead.Lead)
		want bool
	}{
		{"fresh lead", func(*lead.Lead) {}, true},
		{"same campaign", func(l *lead.Lead) { l.CampaignID = "c1" }, true},
		{"other campaign", func(l *lead.Lead) { l.CampaignID = "c2" }, false},
		{"contacted an hour ago", func(l *lead.Lead) { l.LastContacted = now.Add(-time.Hour) }, false},
		{"contacted three days ago", func(l *lead.Lead) { l.LastContacted = now.Add(-72 * time.Hour) }, true},
		{"score below threshold", func(l *lead.Lead) { l.Score = 0.69 }, false},
		{"score at threshold", func(l *lead.Lead) { l.Score = 0.7 }, true},
		{"already responded", func(l *lead.Lead) { l.Status = lead.StatusResponded }, false},
		{"lost", func(l *lead.Lead) { l.Status = lead.StatusLost }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := base
			tt.mod(&l)
			ok, reason := cfg.Eligible(l, "c1", now)
			if ok != tt.want {
				t.Errorf("Eligible = %v (%q), want %v", ok, reason, tt.want)
			}
			if !ok && reason == "" {
				t.Error("ineligible lead has no reason")
			}
		})
	}
}

func TestCampaignSkipsRecentlyContactedLead(t *testing.T) {
	st := openStore(t)
	c := newCampaign(t, st, "u1")
	l1 := addLead(t, st, "u1", "one@acme.test", nil)
	addLead(t, st, "u1", "two@acme.test", func(l *lead.Lead) { l.LastContacted = time.Now().Add(-time.Hour) })
	addLead(t, st, "u1", "three@acme.test", nil)

	gen := &fakeGen{}
	var gotFrom atomic.Value
	gen.fn = func(_ context.Context, l lead.Lead, s lead.CampaignSettings) (generation.GeneratedEmail, error) {
		gotFrom.Store(s.FromName)
		return okEmail(l), nil
	}
	sender := &fakeSender{}
	planner := &fakePlanner{}
	o := New(st, gen, sender, testConfig(),
		WithPlanner(planner),
		WithDefaultSettings(func() lead.CampaignSettings { return lead.CampaignSettings{FromName: "Ana"} }))

	job, err := o.StartCampaign(c.ID, "")
	if err != nil {
		t.Fatalf("StartCampaign: %v", err)
	}
	if job.UserID != "u1" {
		t.Errorf("UserID = %q, want campaign owner u1", job.UserID)
	}
	run(t, o)

	done := waitStatus(t, o, job.ID, lead.JobCompleted)
	if done.EmailsSent != 2 || done.Processed != 3 || done.Total != 3 {
		t.Errorf("counters = sent %d processed %d total %d, want 2/3/3", done.EmailsSent, done.Processed, done.Total)
	}
	if done.CompletedAt.IsZero() {
		t.Error("CompletedAt not set")
	}

	got := sender.recipients()
	if len(got) != 2 || got[0] != "one@acme.test" || got[1] != "three@acme.test" {
		t.Errorf("recipients = %v, want [one three] in order", got)
	}
	if from, _ := gotFrom.Load().(string); from != "Ana" {
		t.Errorf("settings FromName = %q, want default Ana", from)
	}
	if len(planner.leads) != 2 {
		t.Errorf("planned follow-ups for %v, want 2 leads", planner.leads)
	}

	updated, err := st.GetLead(l1.ID)
	if err != nil {
		t.Fatalf("GetLead: %v", err)
	}
	if updated.Status != lead.StatusContacted || updated.CampaignID != c.ID || updated.LastContacted.IsZero() {
		t.Errorf("lead after send = %+v", updated)
	}
	emails, err := st.ListEmailsForLead(l1.ID)
	if err != nil {
		t.Fatalf("ListEmailsForLead: %v", err)
	}
	if len(emails) != 1 || emails[0].Type != lead.EmailCold || emails[0].MessageID != "msg-one@acme.test" {
		t.Errorf("emails = %+v", emails)
	}

	mirror, err := st.GetCampaignJob(job.ID)
	if err != nil {
		t.Fatalf("GetCampaignJob: %v", err)
	}
	if mirror.Status != lead.JobCompleted || mirror.EmailsSent != 2 {
		t.Errorf("mirror = %+v", mirror)
	}
	camp, _ := st.GetCampaign(c.ID)
	if camp.Status != lead.CampaignCompleted {
		t.Errorf("campaign status = %s, want completed", camp.Status)
	}
}

func TestLeadFailuresDoNotAbortBatch(t *testing.T) {
	st := openStore(t)
	c := newCampaign(t, st, "u1")
	bad := addLead(t, st, "u1", "bad@acme.test", nil)
	addLead(t, st, "u1", "bounce@acme.test", nil)
	addLead(t, st, "u1", "good@acme.test", nil)

	gen := &fakeGen{fn: func(_ context.Context, l lead.Lead, _ lead.CampaignSettings) (generation.GeneratedEmail, error) {
		if l.Email == "bad@acme.test" {
			return generation.GeneratedEmail{}, errors.New("model unavailable")
		}
		return okEmail(l), nil
	}}
	sender := &fakeSender{fail: func(m mail.Message) error {
		if m.To == "bounce@acme.test" {
			return errors.New("mailbox rejected message")
		}
		return nil
	}}
	o := New(st, gen, sender, testConfig())
	job, err := o.StartCampaign(c.ID, "u1")
	if err != nil {
		t.Fatalf("StartCampaign: %v", err)
	}
	run(t, o)

	done := waitStatus(t, o, job.ID, lead.JobCompleted)
	if done.EmailsSent != 1 || done.Processed != 3 {
		t.Errorf("sent %d processed %d, want 1/3", done.EmailsSent, done.Processed)
	}
	l, _ := st.GetLead(bad.ID)
	if l.Status != lead.StatusNew {
		t.Errorf("failed lead status = %s, want new", l.Status)
	}
}

func TestQuotaExhaustionPausesJob(t *testing.T) {
	st := openStore(t)
	c := newCampaign(t, st, "u1")
	addLead(t, st, "u1", "a@acme.test", nil)
	addLead(t, st, "u1", "b@acme.test", nil)

	var exhausted atomic.Bool
	exhausted.Store(true)
	gen := &fakeGen{fn: func(_ context.Context, l lead.Lead, _ lead.CampaignSettings) (generation.GeneratedEmail, error) {
		if exhausted.Load() {
			return generation.GeneratedEmail{}, generation.ErrDailyQuotaExceeded
		}
		return okEmail(l), nil
	}}
	sender := &fakeSender{}
	o := New(st, gen, sender, testConfig())
	job, err := o.StartCampaign(c.ID, "")
	if err != nil {
		t.Fatalf("StartCampaign: %v", err)
	}
	run(t, o)

	paused := waitStatus(t, o, job.ID, lead.JobPaused)
	if !strings.Contains(paused.Error, "quota") {
		t.Errorf("Error = %q, want quota message", paused.Error)
	}
	if paused.Processed != 0 || paused.EmailsSent != 0 {
		t.Errorf("paused job counted %d processed, %d sent; want 0 for a lead stopped by quota", paused.Processed, paused.EmailsSent)
	}
	if gen.calls.Load() != 1 {
		t.Errorf("generator calls = %d, want 1", gen.calls.Load())
	}
	if camp, _ := st.GetCampaign(c.ID); camp.Status != lead.CampaignPaused {
		t.Errorf("campaign status = %s, want paused", camp.Status)
	}

	exhausted.Store(false)
	if _, err := o.Resume(job.ID); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	done := waitStatus(t, o, job.ID, lead.JobCompleted)
	if done.EmailsSent != 2 || done.Error != "" {
		t.Errorf("after resume = %+v", done)
	}
}

func TestPauseTakesEffectAtBatchBoundary(t *testing.T) {
	st := openStore(t)
	c := newCampaign(t, st, "u1")
	for _, e := range []string{"a@acme.test", "b@acme.test", "c@acme.test"} {
		addLead(t, st, "u1", e, nil)
	}

	cfg := testConfig()
	cfg.BatchSize = 1
	sender := &fakeSender{}
	gen := &fakeGen{}
	o := New(st, gen, sender, cfg)

	job, err := o.StartCampaign(c.ID, "")
	if err != nil {
		t.Fatalf("StartCampaign: %v", err)
	}
	var once sync.Once
	gen.fn = func(_ context.Context, l lead.Lead, _ lead.CampaignSettings) (generation.GeneratedEmail, error) {
		once.Do(func() {
			snap, err := o.Pause(job.ID)
			if err != nil {
				t.Errorf("Pause: %v", err)
			}
			if snap.Status != lead.JobRunning {
				t.Errorf("Pause snapshot status = %s, want running until the batch ends", snap.Status)
			}
		})
		return okEmail(l), nil
	}
	run(t, o)

	paused := waitStatus(t, o, job.ID, lead.JobPaused)
	if paused.EmailsSent != 1 || paused.Processed != 1 {
		t.Errorf("paused at sent %d processed %d, want 1/1", paused.EmailsSent, paused.Processed)
	}

	if _, err := o.Resume(job.ID); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	done := waitStatus(t, o, job.ID, lead.JobCompleted)
	if done.EmailsSent != 3 {
		t.Errorf("EmailsSent = %d, want 3", done.EmailsSent)
	}
	if got := sender.recipients(); len(got) != 3 {
		t.Errorf("recipients = %v, want each lead once", got)
	}
}

func TestPausedJobIsNotProcessed(t *testing.T) {
	st := openStore(t)
	c := newCampaign(t, st, "u1")
	addLead(t, st, "u1", "a@acme.test", nil)

	gen := &fakeGen{}
	o := New(st, gen, &fakeSender{}, testConfig())
	job, err := o.StartCampaign(c.ID, "")
	if err != nil {
		t.Fatalf("StartCampaign: %v", err)
	}
	snap, err := o.Pause(job.ID)
	if err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if snap.Status != lead.JobPaused {
		t.Fatalf("status = %s, want paused", snap.Status)
	}

	run(t, o)
	time.Sleep(50 * time.Millisecond)
	if gen.calls.Load() != 0 {
		t.Fatalf("paused job generated %d emails", gen.calls.Load())
	}

	if _, err := o.Resume(job.ID); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	waitStatus(t, o, job.ID, lead.JobCompleted)
}

func TestTimedOutJobIsFailed(t *testing.T) {
	st := openStore(t)
	c := newCampaign(t, st, "u1")
	addLead(t, st, "u1", "a@acme.test", nil)

	var mu sync.Mutex
	now := time.Now()
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	entered := make(chan struct{})
	gen := &fakeGen{fn: func(ctx context.Context, _ lead.Lead, _ lead.CampaignSettings) (generation.GeneratedEmail, error) {
		close(entered)
		<-ctx.Done()
		return generation.GeneratedEmail{}, ctx.Err()
	}}
	o := New(st, gen, &fakeSender{}, testConfig(), WithClock(clock))
	job, err := o.StartCampaign(c.ID, "")
	if err != nil {
		t.Fatalf("StartCampaign: %v", err)
	}
	run(t, o)
	<-entered

	if ids := o.CheckTimeouts(); len(ids) != 0 {
		t.Fatalf("CheckTimeouts before budget = %v", ids)
	}

	mu.Lock()
	now = now.Add(25 * time.Hour)
	mu.Unlock()

	ids := o.CheckTimeouts()
	if len(ids) != 1 || ids[0] != job.ID {
		t.Fatalf("CheckTimeouts = %v, want [%s]", ids, job.ID)
	}
	failed, _ := o.Status(job.ID)
	if failed.Status != lead.JobFailed || failed.Error != "Job timed out after 24 hours" || failed.CompletedAt.IsZero() {
		t.Errorf("after timeout = %+v", failed)
	}

	// The cancelled task must not overwrite the failure.
	time.Sleep(20 * time.Millisecond)
	if j, _ := o.Status(job.ID); j.Status != lead.JobFailed {
		t.Errorf("status = %s, want failed", j.Status)
	}
	mirror, err := st.GetCampaignJob(job.ID)
	if err != nil {
		t.Fatalf("GetCampaignJob: %v", err)
	}
	if mirror.Status != lead.JobFailed {
		t.Errorf("mirror status = %s, want failed", mirror.Status)
	}
}

func TestConcurrencyCap(t *testing.T) {
	st := openStore(t)
	first := newCampaign(t, st, "u1")
	second := newCampaign(t, st, "u2")
	addLead(t, st, "u1", "a@acme.test", nil)
	addLead(t, st, "u2", "b@acme.test", nil)

	release := make(chan struct{})
	entered := make(chan struct{}, 2)
	gen := &fakeGen{fn: func(ctx context.Context, l lead.Lead, _ lead.CampaignSettings) (generation.GeneratedEmail, error) {
		entered <- struct{}{}
		if l.OwnerID == "u1" {
			select {
			case <-release:
			case <-ctx.Done():
				return generation.GeneratedEmail{}, ctx.Err()
			}
		}
		return okEmail(l), nil
	}}
	cfg := testConfig()
	cfg.MaxConcurrent = 1
	o := New(st, gen, &fakeSender{}, cfg)

	j1, err := o.StartCampaign(first.ID, "")
	if err != nil {
		t.Fatalf("StartCampaign: %v", err)
	}
	run(t, o)
	<-entered

	j2, err := o.StartCampaign(second.ID, "")
	if err != nil {
		t.Fatalf("StartCampaign: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	if s, _ := o.Status(j2.ID); s.Status != lead.JobPending {
		t.Errorf("second job status = %s while at cap, want pending", s.Status)
	}

	close(release)
	waitStatus(t, o, j1.ID, lead.JobCompleted)
	waitStatus(t, o, j2.ID, lead.JobCompleted)
}

func TestPanicFailsJob(t *testing.T) {
	st := openStore(t)
	c := newCampaign(t, st, "u1")
	addLead(t, st, "u1", "a@acme.test", nil)

	gen := &fakeGen{fn: func(context.Context, lead.Lead, lead.CampaignSettings) (generation.GeneratedEmail, error) {
		panic("template exploded")
	}}
	o := New(st, gen, &fakeSender{}, testConfig())
	job, err := o.StartCampaign(c.ID, "")
	if err != nil {
		t.Fatalf("StartCampaign: %v", err)
	}
	run(t, o)

	failed := waitStatus(t, o, job.ID, lead.JobFailed)
	if !strings.Contains(failed.Error, "template exploded") {
		t.Errorf("Error = %q", failed.Error)
	}
}

func TestRestoreRequeuesInterruptedJobs(t *testing.T) {
	st := openStore(t)
	c := newCampaign(t, st, "u1")
	addLead(t, st, "u1", "a@acme.test", nil)

	interrupted := lead.CampaignJob{ID: "job-1", CampaignID: c.ID, UserID: "u1", Status: lead.JobRunning, CreatedAt: time.Now().UTC(), StartedAt: time.Now().UTC()}
	if err := st.SaveCampaignJob(interrupted); err != nil {
		t.Fatalf("SaveCampaignJob: %v", err)
	}
	if err := st.SaveCampaignJob(lead.CampaignJob{ID: "job-2", CampaignID: c.ID, UserID: "u1", Status: lead.JobCompleted, CreatedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("SaveCampaignJob: %v", err)
	}

	sender := &fakeSender{}
	o := New(st, &fakeGen{}, sender, testConfig())
	n, err := o.Restore()
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if n != 1 {
		t.Fatalf("restored %d jobs, want 1", n)
	}
	if j, _ := o.Status("job-1"); j.Status != lead.JobPending {
		t.Errorf("restored status = %s, want pending", j.Status)
	}

	run(t, o)
	waitStatus(t, o, "job-1", lead.JobCompleted)
	if len(sender.recipients()) != 1 {
		t.Errorf("recipients = %v", sender.recipients())
	}
}

func TestTransitionErrors(t *testing.T) {
	st := openStore(t)
	c := newCampaign(t, st, "u1")
	o := New(st, &fakeGen{}, &fakeSender{}, testConfig())

	if _, err := o.StartCampaign("missing", ""); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("StartCampaign(missing) err = %v, want ErrNotFound", err)
	}
	if _, err := o.Status("nope"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Status err = %v, want ErrJobNotFound", err)
	}
	if _, err := o.Pause("nope"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Pause err = %v, want ErrJobNotFound", err)
	}

	job, err := o.StartCampaign(c.ID, "")
	if err != nil {
		t.Fatalf("StartCampaign: %v", err)
	}
	if _, err := o.StartCampaign(c.ID, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second StartCampaign err = %v, want ErrInvalidTransition", err)
	}
	if _, err := o.Resume(job.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Resume(pending) err = %v, want ErrInvalidTransition", err)
	}

	run(t, o)
	waitStatus(t, o, job.ID, lead.JobCompleted)
	if _, err := o.Pause(job.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Pause(completed) err = %v, want ErrInvalidTransition", err)
	}
	if jobs := o.Jobs(); len(jobs) != 1 {
		t.Errorf("Jobs() = %d entries, want 1", len(jobs))
	}
}

// slowStore delays job saves and can fail them.
type slowStore struct {
	*storage.Store
	delay   time.Duration
	saveErr error
}

func (s *slowStore) SaveCampaignJob(j lead.CampaignJob) error {
	time.Sleep(s.delay)
	if s.saveErr != nil {
		return s.saveErr
	}
	return s.Store.SaveCampaignJob(j)
}

func TestConcurrentStartsCreateOneJob(t *testing.T) {
	st := openStore(t)
	c := newCampaign(t, st, "u1")
	o := New(&slowStore{Store: st, delay: 50 * time.Millisecond}, &fakeGen{}, &fakeSender{}, testConfig())

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = o.StartCampaign(c.ID, "")
		}()
	}
	wg.Wait()

	var ok, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrInvalidTransition):
			rejected++
		default:
			t.Errorf("StartCampaign: %v", err)
		}
	}
	if ok != 1 || rejected != 1 {
		t.Errorf("errors = %v, want one start and one rejection", errs)
	}
	if jobs := o.Jobs(); len(jobs) != 1 {
		t.Errorf("Jobs() = %d entries, want 1", len(jobs))
	}
}

func TestStartCampaignSaveFailure(t *testing.T) {
	st := openStore(t)
	c := newCampaign(t, st, "u1")
	store := &slowStore{Store: st, saveErr: errors.New("disk full")}
	o := New(store, &fakeGen{}, &fakeSender{}, testConfig())

	if _, err := o.StartCampaign(c.ID, ""); err == nil {
		t.Fatal("StartCampaign succeeded despite save error")
	}
	if jobs := o.Jobs(); len(jobs) != 0 {
		t.Errorf("Jobs() = %+v, want none after failed save", jobs)
	}

	store.saveErr = nil
	if _, err := o.StartCampaign(c.ID, ""); err != nil {
		t.Errorf("StartCampaign after failed save: %v", err)
	}
}
