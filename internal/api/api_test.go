package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/kalambet/outreach/internal/calendly"
	"github.com/kalambet/outreach/internal/classify"
	"github.com/kalambet/outreach/internal/generation"
	"github.com/kalambet/outreach/internal/lead"
	"github.com/kalambet/outreach/internal/orchestrator"
	"github.com/kalambet/outreach/internal/parser"
	"github.com/kalambet/outreach/internal/profile"
	"github.com/kalambet/outreach/internal/storage"
	"github.com/kalambet/outreach/internal/worker"
)

const testToken = "test-token-12345"

// --- fakes ---

type fakeScorer struct{ score float64 }

func (f fakeScorer) ScoreLead(_ context.Context, l lead.Lead) lead.LeadScore {
	return lead.LeadScore{
		LeadID:         l.ID,
		Score:          f.score,
		Classification: "hot",
		Factors:        map[string]float64{"authority": 1},
		Confidence:     0.8,
	}
}

type fakeGenerator struct {
	mu       sync.Mutex
	err      error
	settings lead.CampaignSettings
	calls    int
	resets   int
}

func (f *fakeGenerator) GenerateColdEmail(_ context.Context, l lead.Lead, settings lead.CampaignSettings, _ map[string]string) (generation.GeneratedEmail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settings = settings
	if f.err != nil {
		return generation.GeneratedEmail{}, f.err
	}
	f.calls++
	return generation.GeneratedEmail{Email: parser.EmailArtifact{
		SubjectLine: "Hi " + l.Name,
		EmailBody:   "Body for " + l.Company,
	}}, nil
}

func (f *fakeGenerator) AnalyzeJobTitle(_ context.Context, title, company string) generation.JobAnalysis {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return generation.FallbackJobAnalysis()
	}
	return generation.JobAnalysis{
		SeniorityLevel:         "Executive",
		DecisionAuthority:      "High",
		DecisionAuthorityScore: 90,
		IndustryContext:        company,
		Reasoning:              title + " owns the budget",
	}
}

func (f *fakeGenerator) ResetDailyCounter() {
	f.mu.Lock()
	f.resets++
	f.calls = 0
	f.mu.Unlock()
}

func (f *fakeGenerator) Usage() generation.Usage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return generation.Usage{CallsToday: f.calls, DailyCap: 1000}
}

type fakeClassifier struct{ category string }

func (f fakeClassifier) AnalyzeResponse(_ context.Context, text string) classify.Analysis {
	return classify.Analysis{
		Category:        f.category,
		Intent:          strings.ToLower(f.category),
		Sentiment:       "positive",
		Confidence:      0.9,
		EngagementScore: 0.75,
		KeyPoints:       []string{text},
	}
}

// fakeCampaigns mimics the orchestrator's job bookkeeping.
type fakeCampaigns struct {
	mu    sync.Mutex
	store *storage.Store
	jobs  map[string]lead.CampaignJob
	n     int
}

func newFakeCampaigns(store *storage.Store) *fakeCampaigns {
	return &fakeCampaigns{store: store, jobs: map[string]lead.CampaignJob{}}
}

func (f *fakeCampaigns) StartCampaign(campaignID, userID string) (lead.CampaignJob, error) {
	c, err := f.store.GetCampaign(campaignID)
	if err != nil {
		return lead.CampaignJob{}, fmt.Errorf("loading campaign %s: %w", campaignID, err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, j := range f.jobs {
		if j.CampaignID == campaignID && !j.Status.Terminal() {
			return lead.CampaignJob{}, fmt.Errorf("%w: already running", orchestrator.ErrInvalidTransition)
		}
	}
	if userID == "" {
		userID = c.OwnerID
	}
	f.n++
	j := lead.CampaignJob{ID: fmt.Sprintf("job-%d", f.n), CampaignID: campaignID, UserID: userID, Status: lead.JobPending}
	f.jobs[j.ID] = j
	return j, nil
}

func (f *fakeCampaigns) Status(id string) (lead.CampaignJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return lead.CampaignJob{}, fmt.Errorf("%w: %s", orchestrator.ErrJobNotFound, id)
	}
	return j, nil
}

func (f *fakeCampaigns) Jobs() []lead.CampaignJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []lead.CampaignJob
	for _, j := range f.jobs {
		out = append(out, j)
	}
	return out
}

func (f *fakeCampaigns) move(id string, from, to lead.JobStatus) (lead.CampaignJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return lead.CampaignJob{}, fmt.Errorf("%w: %s", orchestrator.ErrJobNotFound, id)
	}
	if j.Status != from {
		return lead.CampaignJob{}, fmt.Errorf("%w: job is %s", orchestrator.ErrInvalidTransition, j.Status)
	}
	j.Status = to
	f.jobs[id] = j
	return j, nil
}

func (f *fakeCampaigns) Pause(id string) (lead.CampaignJob, error) {
	return f.move(id, lead.JobPending, lead.JobPaused)
}

func (f *fakeCampaigns) Resume(id string) (lead.CampaignJob, error) {
	return f.move(id, lead.JobPaused, lead.JobPending)
}

type fakeScheduling struct {
	configured bool
	gotType    string
	gotStart   time.Time
}

func (f *fakeScheduling) Configured() bool { return f.configured }

func (f *fakeScheduling) AvailableTimes(_ context.Context, eventTypeURL string, start, _ time.Time) ([]calendly.Slot, error) {
	f.gotType = eventTypeURL
	f.gotStart = start
	return []calendly.Slot{{Status: "available", InviteesRemaining: 1, SchedulingURL: "https://calendly.com/x"}}, nil
}

// --- helpers ---

type testEnv struct {
	handler   http.Handler
	store     *storage.Store
	gen       *fakeGenerator
	campaigns *fakeCampaigns
	sched     *fakeScheduling
	profile   *profile.Manager
}

func setup(t *testing.T, mutate ...func(*Deps)) *testEnv {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	env := &testEnv{
		store:     store,
		gen:       &fakeGenerator{},
		campaigns: newFakeCampaigns(store),
		sched:     &fakeScheduling{configured: true},
		profile:   profile.NewManager(store),
	}
	deps := Deps{
		Store:      store,
		Profile:    env.profile,
		Scorer:     fakeScorer{score: 0.82},
		Generator:  env.gen,
		Classifier: fakeClassifier{category: "INTERESTED"},
		Campaigns:  env.campaigns,
		Scheduling: env.sched,
		Health: map[string]HealthCheck{
			"storage": func(ctx context.Context) error { return store.Ping(ctx) },
			"gmail":   nil,
		},
		Token:   testToken,
		OwnerID: "owner-1",
	}
	for _, m := range mutate {
		m(&deps)
	}
	env.handler = NewHandler(deps)
	return env
}

func authReq(method, url, body, token string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func (e *testEnv) do(t *testing.T, method, url, body string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, authReq(method, url, body, testToken))
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response %q: %v", rr.Body.String(), err)
	}
	return v
}

func (e *testEnv) createLead(t *testing.T, email string) lead.Lead {
	t.Helper()
	body := fmt.Sprintf(`{"name":"Jane Doe","email":%q,"company":"Acme","job_title":"VP of Sales","pain_points":["manual reporting"]}`, email)
	rr := e.do(t, http.MethodPost, "/leads", body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create lead: status = %d; body = %s", rr.Code, rr.Body.String())
	}
	return decode[lead.Lead](t, rr)
}

func errorType(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decoding error envelope: %v", err)
	}
	return body.Error.Type
}

// --- tests ---

func TestAuth(t *testing.T) {
	env := setup(t)

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong", "nope", http.StatusUnauthorized},
		{"valid", testToken, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			env.handler.ServeHTTP(rr, authReq(http.MethodGet, "/leads", "", tt.token))
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
			if tt.want == http.StatusUnauthorized && errorType(t, rr) != "authentication_error" {
				t.Error("missing authentication_error envelope")
			}
		})
	}
}

func TestHealth(t *testing.T) {
	env := setup(t, func(d *Deps) {
		d.Health["calendly"] = func(context.Context) error { return errors.New("401 unauthorized") }
	})

	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	got := decode[healthResponse](t, rr)
	want := healthResponse{
		Status: "degraded",
		Integrations: map[string]integrationStatus{
			"storage":  {Status: "ok"},
			"gmail":    {Status: "not_configured"},
			"calendly": {Status: "error", Error: "401 unauthorized"},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("health mismatch (-want +got):\n%s", diff)
	}
}

func TestHealth_StorageDown(t *testing.T) {
	env := setup(t, func(d *Deps) {
		d.Health["storage"] = func(context.Context) error { return errors.New("database is closed") }
	})
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rr.Code)
	}
}

func TestCreateAndGetLead(t *testing.T) {
	env := setup(t)
	created := env.createLead(t, "Jane@Acme.com")

	if created.ID == "" || created.OwnerID != "owner-1" || created.Status != lead.StatusNew {
		t.Errorf("created = %+v", created)
	}
	if created.Email != "jane@acme.com" {
		t.Errorf("Email = %q, want lowercased", created.Email)
	}
	if created.Score != 0.82 {
		t.Errorf("Score = %v, want 0.82 from scorer", created.Score)
	}

	rr := env.do(t, http.MethodGet, "/leads/"+created.ID, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get: status = %d", rr.Code)
	}
	got := decode[lead.Lead](t, rr)
	if got.ID != created.ID || got.Company != "Acme" {
		t.Errorf("got = %+v", got)
	}

	rr = env.do(t, http.MethodGet, "/leads/missing", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("missing lead: status = %d, want 404", rr.Code)
	}
}

func TestCreateLead_Validation(t *testing.T) {
	env := setup(t)
	env.createLead(t, "jane@acme.com")

	tests := []struct {
		name string
		body string
		want int
	}{
		{"missing fields", `{"name":"Jane","email":"x@y.com"}`, http.StatusBadRequest},
		{"bad json", `{"name":`, http.StatusBadRequest},
		{"bad status", `{"name":"A","email":"a@b.com","company":"C","job_title":"CTO","status":"warm"}`, http.StatusBadRequest},
		{"duplicate", `{"name":"Jane","email":"JANE@acme.com","company":"Acme","job_title":"CTO"}`, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/leads", tt.body)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d; body = %s", rr.Code, tt.want, rr.Body.String())
			}
		})
	}
}

func TestListLeads(t *testing.T) {
	env := setup(t)
	a := env.createLead(t, "a@acme.com")
	env.createLead(t, "b@acme.com")
	env.do(t, http.MethodPatch, "/leads/"+a.ID+"/status", `{"status":"contacted"}`)

	rr := env.do(t, http.MethodGet, "/leads", "")
	if got := decode[[]lead.Lead](t, rr); len(got) != 2 {
		t.Errorf("all leads = %d, want 2", len(got))
	}

	rr = env.do(t, http.MethodGet, "/leads?status=contacted", "")
	got := decode[[]lead.Lead](t, rr)
	if len(got) != 1 || got[0].ID != a.ID {
		t.Errorf("contacted leads = %+v", got)
	}

	rr = env.do(t, http.MethodGet, "/leads?status=bogus", "")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bogus status: %d, want 400", rr.Code)
	}
}

func TestListLeads_EmptyIsArray(t *testing.T) {
	env := setup(t)
	rr := env.do(t, http.MethodGet, "/leads", "")
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Errorf("body = %q, want []", rr.Body.String())
	}
}

func TestLeadStatus(t *testing.T) {
	env := setup(t)
	l := env.createLead(t, "jane@acme.com")

	rr := env.do(t, http.MethodPatch, "/leads/"+l.ID+"/status", `{"status":"contacted"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("forward move: status = %d; %s", rr.Code, rr.Body.String())
	}
	if got := decode[lead.Lead](t, rr); got.Status != lead.StatusContacted {
		t.Errorf("Status = %s", got.Status)
	}

	rr = env.do(t, http.MethodPatch, "/leads/"+l.ID+"/status", `{"status":"new"}`)
	if rr.Code != http.StatusConflict {
		t.Errorf("backward move: status = %d, want 409", rr.Code)
	}

	rr = env.do(t, http.MethodPatch, "/leads/"+l.ID+"/status", `{"status":"warm"}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("unknown status: %d, want 400", rr.Code)
	}

	stored, _ := env.store.GetLead(l.ID)
	if stored.Status != lead.StatusContacted {
		t.Errorf("stored status = %s, want contacted", stored.Status)
	}
}

func TestScoreLead(t *testing.T) {
	env := setup(t, func(d *Deps) { d.Scorer = fakeScorer{score: 0.4} })
	l := env.createLead(t, "jane@acme.com")

	rr := env.do(t, http.MethodPost, "/leads/"+l.ID+"/score", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	score := decode[lead.LeadScore](t, rr)
	if score.Score != 0.4 || score.Classification != "hot" {
		t.Errorf("score = %+v", score)
	}
	stored, _ := env.store.GetLead(l.ID)
	if stored.Score != 0.4 {
		t.Errorf("stored score = %v, want 0.4", stored.Score)
	}
}

func TestColdEmail_MergesSettings(t *testing.T) {
	env := setup(t)
	env.profile.SetField("offer.value_proposition", "Automate reporting")
	env.profile.SetField("outreach.approach", "friendly")
	env.profile.SetField("sender.name", "Sam")
	l := env.createLead(t, "jane@acme.com")

	rr := env.do(t, http.MethodPost, "/leads/"+l.ID+"/emails/cold", `{"settings":{"approach":"direct"}}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; %s", rr.Code, rr.Body.String())
	}
	got := decode[generation.GeneratedEmail](t, rr)
	if got.Email.SubjectLine != "Hi Jane Doe" {
		t.Errorf("SubjectLine = %q", got.Email.SubjectLine)
	}

	want := lead.CampaignSettings{ValueProposition: "Automate reporting", Approach: "direct", FromName: "Sam"}
	if diff := cmp.Diff(want, env.gen.settings); diff != "" {
		t.Errorf("settings mismatch (-want +got):\n%s", diff)
	}
}

func TestColdEmail_NoBody(t *testing.T) {
	env := setup(t)
	l := env.createLead(t, "jane@acme.com")
	rr := env.do(t, http.MethodPost, "/leads/"+l.ID+"/emails/cold", "")
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d; %s", rr.Code, rr.Body.String())
	}
}

func TestColdEmail_CampaignSettings(t *testing.T) {
	env := setup(t)
	env.profile.SetField("offer.value_proposition", "Profile value")
	c, err := env.store.CreateCampaign(lead.Campaign{Name: "Q1", Settings: lead.CampaignSettings{ValueProposition: "Campaign value"}})
	if err != nil {
		t.Fatal(err)
	}
	l := env.createLead(t, "jane@acme.com")

	env.do(t, http.MethodPost, "/leads/"+l.ID+"/emails/cold", fmt.Sprintf(`{"campaign_id":%q}`, c.ID))
	if env.gen.settings.ValueProposition != "Campaign value" {
		t.Errorf("ValueProposition = %q, want campaign value", env.gen.settings.ValueProposition)
	}
}

func TestColdEmail_Errors(t *testing.T) {
	env := setup(t)
	l := env.createLead(t, "jane@acme.com")

	env.gen.err = fmt.Errorf("personalizing: %w", generation.ErrDailyQuotaExceeded)
	rr := env.do(t, http.MethodPost, "/leads/"+l.ID+"/emails/cold", "{}")
	if rr.Code != http.StatusTooManyRequests || errorType(t, rr) != "rate_limit_error" {
		t.Errorf("quota: status = %d", rr.Code)
	}

	env.gen.err = errors.New("upstream 500")
	rr = env.do(t, http.MethodPost, "/leads/"+l.ID+"/emails/cold", "{}")
	if rr.Code != http.StatusBadGateway {
		t.Errorf("upstream: status = %d, want 502", rr.Code)
	}

	rr = env.do(t, http.MethodPost, "/leads/"+l.ID+"/emails/cold", `{"campaign_id":"nope"}`)
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown campaign: status = %d, want 404", rr.Code)
	}
}

func TestCompanyProfile_Enqueues(t *testing.T) {
	env := setup(t)
	l := env.createLead(t, "jane@acme.com")

	rr := env.do(t, http.MethodPost, "/leads/"+l.ID+"/company-profile", `{"url":"https://acme.example/about"}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d; %s", rr.Code, rr.Body.String())
	}
	resp := decode[map[string]string](t, rr)

	job, err := env.store.GetJob(resp["job_id"])
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Type != worker.CompanyProfileJob {
		t.Errorf("Type = %q", job.Type)
	}
	var p worker.CompanyProfilePayload
	json.Unmarshal([]byte(job.PayloadJSON), &p)
	if p.LeadID != l.ID || p.URL != "https://acme.example/about" {
		t.Errorf("payload = %+v", p)
	}
}

func TestCompanyProfile_Validation(t *testing.T) {
	env := setup(t)
	l := env.createLead(t, "jane@acme.com")

	rr := env.do(t, http.MethodPost, "/leads/"+l.ID+"/company-profile", `{"url":"https://x","content":"aGk="}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("both set: %d, want 400", rr.Code)
	}
	rr = env.do(t, http.MethodPost, "/leads/"+l.ID+"/company-profile", `{}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("neither set: %d, want 400", rr.Code)
	}
	rr = env.do(t, http.MethodPost, "/leads/missing/company-profile", `{"url":"https://x"}`)
	if rr.Code != http.StatusNotFound {
		t.Errorf("missing lead: %d, want 404", rr.Code)
	}
}

func TestSheetImport(t *testing.T) {
	env := setup(t)

	rr := env.do(t, http.MethodPost, "/imports/sheets", `{"spreadsheet_id":"sheet-1"}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d; %s", rr.Code, rr.Body.String())
	}
	jobs, err := env.store.ListJobs(worker.SheetImportJob, "pending")
	if err != nil || len(jobs) != 1 {
		t.Fatalf("ListJobs = %v, %v", jobs, err)
	}
	var p worker.SheetImportPayload
	json.Unmarshal([]byte(jobs[0].PayloadJSON), &p)
	if diff := cmp.Diff(worker.SheetImportPayload{OwnerID: "owner-1", SpreadsheetID: "sheet-1"}, p); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}

	rr = env.do(t, http.MethodPost, "/imports/sheets", `{}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("missing id: %d, want 400", rr.Code)
	}
}

func TestClassify_Standalone(t *testing.T) {
	env := setup(t)
	rr := env.do(t, http.MethodPost, "/responses/classify", `{"text":"<p>Sounds great, let's talk</p>"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; %s", rr.Code, rr.Body.String())
	}
	a := decode[classify.Analysis](t, rr)
	if a.Category != "INTERESTED" {
		t.Errorf("Category = %q", a.Category)
	}
	if len(a.KeyPoints) != 1 || strings.Contains(a.KeyPoints[0], "<p>") {
		t.Errorf("classifier saw %q, want plain text", a.KeyPoints)
	}

	rr = env.do(t, http.MethodPost, "/responses/classify", `{"text":"   "}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("empty text: %d, want 400", rr.Code)
	}
}

func TestJobTitleAnalysis(t *testing.T) {
	env := setup(t)
	rr := env.do(t, http.MethodPost, "/analysis/job-title", `{"job_title":" CTO ","company":"Acme"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; %s", rr.Code, rr.Body.String())
	}
	a := decode[generation.JobAnalysis](t, rr)
	if a.DecisionAuthority != "High" || a.IndustryContext != "Acme" || a.Reasoning != "CTO owns the budget" {
		t.Errorf("analysis = %+v", a)
	}

	env.gen.err = generation.ErrDailyQuotaExceeded
	rr = env.do(t, http.MethodPost, "/analysis/job-title", `{"job_title":"CTO"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want fallback with 200", rr.Code)
	}
	if a := decode[generation.JobAnalysis](t, rr); !a.Fallback || a.SeniorityLevel != "Unknown" {
		t.Errorf("analysis = %+v, want fallback", a)
	}

	rr = env.do(t, http.MethodPost, "/analysis/job-title", `{"company":"Acme"}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("missing title: %d, want 400", rr.Code)
	}
}

func TestClassify_RecordsResponse(t *testing.T) {
	tests := []struct {
		category string
		want     lead.Status
	}{
		{"INTERESTED", lead.StatusResponded},
		{"NOT_INTERESTED", lead.StatusLost},
	}
	for _, tt := range tests {
		t.Run(tt.category, func(t *testing.T) {
			env := setup(t, func(d *Deps) { d.Classifier = fakeClassifier{category: tt.category} })
			l := env.createLead(t, "jane@acme.com")
			env.do(t, http.MethodPatch, "/leads/"+l.ID+"/status", `{"status":"contacted"}`)

			body := fmt.Sprintf(`{"text":"reply text","lead_id":%q,"subject":"Re: hello"}`, l.ID)
			rr := env.do(t, http.MethodPost, "/responses/classify", body)
			if rr.Code != http.StatusOK {
				t.Fatalf("status = %d; %s", rr.Code, rr.Body.String())
			}

			stored, _ := env.store.GetLead(l.ID)
			if stored.Status != tt.want {
				t.Errorf("Status = %s, want %s", stored.Status, tt.want)
			}
			if stored.Engagement["engagement_score"] != 0.75 {
				t.Errorf("Engagement = %v", stored.Engagement)
			}
			emails, _ := env.store.ListEmailsForLead(l.ID)
			if len(emails) != 1 || emails[0].Type != lead.EmailResponse || emails[0].Subject != "Re: hello" {
				t.Errorf("emails = %+v", emails)
			}
		})
	}
}

func TestClassify_UnknownLead(t *testing.T) {
	env := setup(t)
	rr := env.do(t, http.MethodPost, "/responses/classify", `{"text":"hi","lead_id":"missing"}`)
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

func TestCampaignLifecycle(t *testing.T) {
	env := setup(t)

	rr := env.do(t, http.MethodPost, "/campaigns", `{"name":"Q1 outreach","settings":{"approach":"friendly"}}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: status = %d; %s", rr.Code, rr.Body.String())
	}
	c := decode[lead.Campaign](t, rr)
	if c.Status != lead.CampaignDraft || c.OwnerID != "owner-1" || c.Settings.Approach != "friendly" {
		t.Errorf("campaign = %+v", c)
	}

	rr = env.do(t, http.MethodGet, "/campaigns/"+c.ID, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get: status = %d", rr.Code)
	}

	rr = env.do(t, http.MethodPost, "/campaigns/"+c.ID+"/start", "")
	if rr.Code != http.StatusAccepted {
		t.Fatalf("start: status = %d; %s", rr.Code, rr.Body.String())
	}
	job := decode[lead.CampaignJob](t, rr)
	if job.UserID != "owner-1" || job.Status != lead.JobPending {
		t.Errorf("job = %+v", job)
	}

	rr = env.do(t, http.MethodPost, "/campaigns/"+c.ID+"/start", "")
	if rr.Code != http.StatusConflict {
		t.Errorf("second start: %d, want 409", rr.Code)
	}

	rr = env.do(t, http.MethodPost, "/jobs/"+job.ID+"/pause", "")
	if got := decode[lead.CampaignJob](t, rr); got.Status != lead.JobPaused {
		t.Errorf("after pause = %s", got.Status)
	}
	rr = env.do(t, http.MethodPost, "/jobs/"+job.ID+"/pause", "")
	if rr.Code != http.StatusConflict {
		t.Errorf("double pause: %d, want 409", rr.Code)
	}
	rr = env.do(t, http.MethodPost, "/jobs/"+job.ID+"/resume", "")
	if got := decode[lead.CampaignJob](t, rr); got.Status != lead.JobPending {
		t.Errorf("after resume = %s", got.Status)
	}

	rr = env.do(t, http.MethodGet, "/jobs/"+job.ID, "")
	if rr.Code != http.StatusOK {
		t.Errorf("get job: %d", rr.Code)
	}
	rr = env.do(t, http.MethodGet, "/jobs", "")
	if got := decode[[]lead.CampaignJob](t, rr); len(got) != 1 {
		t.Errorf("jobs = %d, want 1", len(got))
	}
}

func TestCampaign_NotFound(t *testing.T) {
	env := setup(t)
	for _, tc := range []struct{ method, url string }{
		{http.MethodGet, "/campaigns/nope"},
		{http.MethodPost, "/campaigns/nope/start"},
		{http.MethodGet, "/jobs/nope"},
		{http.MethodPost, "/jobs/nope/pause"},
		{http.MethodPost, "/jobs/nope/resume"},
	} {
		rr := env.do(t, tc.method, tc.url, "")
		if rr.Code != http.StatusNotFound {
			t.Errorf("%s %s: status = %d, want 404", tc.method, tc.url, rr.Code)
		}
	}

	rr := env.do(t, http.MethodPost, "/campaigns", `{"name":" "}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("blank name: %d, want 400", rr.Code)
	}
}

func TestGetJob_FallsBackToStore(t *testing.T) {
	env := setup(t)
	done := lead.CampaignJob{
		ID:         "job-old",
		CampaignID: "c-1",
		UserID:     "owner-1",
		Status:     lead.JobCompleted,
		CreatedAt:  time.Now().UTC().Truncate(time.Second),
		Total:      3,
		Processed:  3,
		EmailsSent: 2,
	}
	if err := env.store.SaveCampaignJob(done); err != nil {
		t.Fatal(err)
	}

	rr := env.do(t, http.MethodGet, "/jobs/job-old", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; %s", rr.Code, rr.Body.String())
	}
	got := decode[lead.CampaignJob](t, rr)
	if got.Status != lead.JobCompleted || got.EmailsSent != 2 {
		t.Errorf("job = %+v", got)
	}
}

func TestProfile_PatchAndGet(t *testing.T) {
	env := setup(t)

	rr := env.do(t, http.MethodPatch, "/profile", `{"sender.name":"Sam","offer.products":["Reports","Alerts"]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("patch: status = %d; %s", rr.Code, rr.Body.String())
	}

	rr = env.do(t, http.MethodGet, "/profile", "")
	p := decode[profile.Profile](t, rr)
	if p.Sender.Name != "Sam" {
		t.Errorf("Sender.Name = %q", p.Sender.Name)
	}
	if diff := cmp.Diff([]string{"Reports", "Alerts"}, p.Offer.Products); diff != "" {
		t.Errorf("products mismatch (-want +got):\n%s", diff)
	}

	rr = env.do(t, http.MethodPatch, "/profile", `{"sender.shoe_size":"42"}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("unknown key: %d, want 400", rr.Code)
	}
}

func TestAvailability(t *testing.T) {
	env := setup(t)

	rr := env.do(t, http.MethodGet, "/scheduling/availability?event_type=https://api.calendly.com/event_types/E1&start=2026-03-02T09:00:00Z", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; %s", rr.Code, rr.Body.String())
	}
	slots := decode[[]calendly.Slot](t, rr)
	if len(slots) != 1 || slots[0].Status != "available" {
		t.Errorf("slots = %+v", slots)
	}
	if env.sched.gotType != "https://api.calendly.com/event_types/E1" {
		t.Errorf("event type = %q", env.sched.gotType)
	}
	if want := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC); !env.sched.gotStart.Equal(want) {
		t.Errorf("start = %v, want %v", env.sched.gotStart, want)
	}

	rr = env.do(t, http.MethodGet, "/scheduling/availability", "")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("missing event_type: %d, want 400", rr.Code)
	}
	rr = env.do(t, http.MethodGet, "/scheduling/availability?event_type=x&end=tomorrow", "")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad end: %d, want 400", rr.Code)
	}
}

func TestAvailability_NotConfigured(t *testing.T) {
	env := setup(t, func(d *Deps) { d.Scheduling = nil })
	rr := env.do(t, http.MethodGet, "/scheduling/availability?event_type=x", "")
	if rr.Code != http.StatusServiceUnavailable || errorType(t, rr) != "not_configured" {
		t.Errorf("status = %d, want 503 not_configured", rr.Code)
	}
}

func TestQuotaReset(t *testing.T) {
	env := setup(t)
	l := env.createLead(t, "jane@acme.com")
	env.do(t, http.MethodPost, "/leads/"+l.ID+"/emails/cold", "{}")

	rr := env.do(t, http.MethodGet, "/admin/quota", "")
	if u := decode[generation.Usage](t, rr); u.CallsToday != 1 || u.DailyCap != 1000 {
		t.Errorf("usage = %+v", u)
	}

	rr = env.do(t, http.MethodPost, "/admin/quota/reset", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if u := decode[generation.Usage](t, rr); u.CallsToday != 0 {
		t.Errorf("CallsToday after reset = %d", u.CallsToday)
	}
	if env.gen.resets != 1 {
		t.Errorf("resets = %d, want 1", env.gen.resets)
	}
}
