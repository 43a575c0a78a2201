// Package generation drives prompt construction, the generative engine and
// response parsing to produce outreach content. It owns the request and
// personalization caches, call spacing and the daily call cap.
package generation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/kalambet/outreach/internal/engine"
	"github.com/kalambet/outreach/internal/lead"
	"github.com/kalambet/outreach/internal/parser"
	"github.com/kalambet/outreach/internal/prompts"
	"github.com/kalambet/outreach/internal/sequence"
)

// ErrDailyQuotaExceeded is returned when the daily call cap has been reached.
// Callers should pause and retry after the counter is reset.
var ErrDailyQuotaExceeded = errors.New("daily generation quota exceeded")

// Config controls caching and rate limiting.
type Config struct {
	DailyCap                int
	MinInterval             time.Duration
	RequestCacheTTL         time.Duration
	PersonalizationCacheTTL time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		DailyCap:                1000,
		MinInterval:             time.Second,
		RequestCacheTTL:         30 * time.Minute,
		PersonalizationCacheTTL: time.Hour,
	}
}

// AIResponse is a successful generation together with the research used to
// build its prompt.
type AIResponse struct {
	Content         string              `json:"content"`
	Model           string              `json:"model"`
	TokensUsed      int                 `json:"tokens_used"`
	Personalization PersonalizationData `json:"personalization"`
	GeneratedAt     time.Time           `json:"generated_at"`
}

// Request identifies one personalized email generation.
type Request struct {
	Lead        lead.Lead
	Type        lead.EmailType
	Settings    lead.CampaignSettings
	Step        sequence.Step
	JobAnalysis string
	Context     map[string]string
}

// Usage reports the daily counter.
type Usage struct {
	CallsToday     int `json:"calls_today"`
	DailyCap       int `json:"daily_cap"`
	CachedRequests int `json:"cached_requests"`
}

// Engine is the content generation engine. It is safe for concurrent use.
type Engine struct {
	gen    engine.Engine
	cfg    Config
	logger *slog.Logger

	requests        *ttlCache[AIResponse]
	analyses        *ttlCache[JobAnalysis]
	personalization *ttlCache[PersonalizationData]
	group           singleflight.Group
	limiter         *rate.Limiter

	mu         sync.Mutex
	callsToday int
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now for cache expiry.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.requests.now = now
		e.analyses.now = now
		e.personalization.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an Engine over gen.
func New(gen engine.Engine, cfg Config, opts ...Option) *Engine {
	limit := rate.Inf
	if cfg.MinInterval > 0 {
		limit = rate.Every(cfg.MinInterval)
	}
	e := &Engine{
		gen:             gen,
		cfg:             cfg,
		logger:          slog.Default(),
		requests:        newTTLCache[AIResponse](cfg.RequestCacheTTL, time.Now),
		analyses:        newTTLCache[JobAnalysis](cfg.RequestCacheTTL, time.Now),
		personalization: newTTLCache[PersonalizationData](cfg.PersonalizationCacheTTL, time.Now),
		limiter:         rate.NewLimiter(limit, 1),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Provider returns the name of the underlying generative engine.
func (e *Engine) Provider() string { return e.gen.Name() }

// IsRunning reports whether the underlying engine is reachable.
func (e *Engine) IsRunning(ctx context.Context) bool { return e.gen.IsRunning(ctx) }

// Complete runs prompt through the rate limiter and daily cap without
// caching.
func (e *Engine) Complete(ctx context.Context, prompt string, meta map[string]any) (engine.Response, error) {
	if err := e.reserve(); err != nil {
		return engine.Response{}, err
	}
	if err := e.limiter.Wait(ctx); err != nil {
		e.release()
		return engine.Response{}, fmt.Errorf("waiting for rate limiter: %w", err)
	}
	return e.gen.Generate(ctx, prompt, meta)
}

// reserve takes one call from the daily budget, or fails fast when the cap
// is reached.
func (e *Engine) reserve() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cfg.DailyCap > 0 && e.callsToday >= e.cfg.DailyCap {
		return fmt.Errorf("%w: %d of %d calls used", ErrDailyQuotaExceeded, e.callsToday, e.cfg.DailyCap)
	}
	e.callsToday++
	return nil
}

// release returns a reserved call that was never made.
func (e *Engine) release() {
	e.mu.Lock()
	if e.callsToday > 0 {
		e.callsToday--
	}
	e.mu.Unlock()
}

// ResetDailyCounter zeroes the daily call counter. It is an administrative
// action; nothing calls it on a timer.
func (e *Engine) ResetDailyCounter() {
	e.mu.Lock()
	e.callsToday = 0
	e.mu.Unlock()
	e.logger.Info("daily generation counter reset")
}

// Usage returns the current counter state.
func (e *Engine) Usage() Usage {
	e.mu.Lock()
	calls := e.callsToday
	e.mu.Unlock()
	return Usage{CallsToday: calls, DailyCap: e.cfg.DailyCap, CachedRequests: e.requests.len()}
}

// Personalization returns the cached research bundle for l, or computes a
// fresh one without caching it.
func (e *Engine) Personalization(l lead.Lead) PersonalizationData {
	if d, ok := e.personalization.get(l.Email); ok {
		return d
	}
	return Research(l)
}

// PersonalizeEmail generates email content for req. Identical requests
// within the request cache TTL are served from cache without a generative
// call. Concurrent identical requests share one call. Failures are never
// cached.
func (e *Engine) PersonalizeEmail(ctx context.Context, req Request) (AIResponse, error) {
	key := requestKey(req)
	if resp, ok := e.requests.get(key); ok {
		e.logger.Debug("request cache hit", "lead", req.Lead.Email, "type", req.Type)
		return resp, nil
	}

	v, err, _ := e.group.Do(key, func() (any, error) {
		if resp, ok := e.requests.get(key); ok {
			return resp, nil
		}

		pd := e.Personalization(req.Lead)
		prompt := e.buildPrompt(req, pd)
		meta := map[string]any{"lead": req.Lead.Email, "email_type": string(req.Type)}

		out, err := e.Complete(ctx, prompt, meta)
		if err != nil {
			return nil, err
		}

		resp := AIResponse{
			Content:         out.Content,
			Model:           out.Model,
			TokensUsed:      out.TokensUsed,
			Personalization: pd,
			GeneratedAt:     time.Now().UTC(),
		}
		e.personalization.set(req.Lead.Email, pd)
		e.requests.set(key, resp)
		return resp, nil
	})
	if err != nil {
		return AIResponse{}, fmt.Errorf("personalizing %s for %s: %w", req.Type, req.Lead.Email, err)
	}
	return v.(AIResponse), nil
}

func (e *Engine) buildPrompt(req Request, pd PersonalizationData) string {
	if req.Type == lead.EmailFollowUp {
		return prompts.FollowUp(prompts.FollowUpInput{
			Lead:     req.Lead,
			Step:     req.Step,
			Previous: req.Context,
			Settings: req.Settings,
		})
	}
	return prompts.ColdEmail(prompts.ColdEmailInput{
		Lead:            req.Lead,
		JobAnalysis:     req.JobAnalysis,
		Settings:        req.Settings,
		Personalization: pd.prompt(),
		Context:         req.Context,
	})
}

// GeneratedEmail is a parsed cold email plus the generation that produced it.
type GeneratedEmail struct {
	Email    parser.EmailArtifact `json:"email"`
	Analysis JobAnalysis          `json:"job_analysis"`
	Response AIResponse           `json:"response"`
}

// GenerateColdEmail analyzes the lead's role, generates a cold email and
// parses it. Role analysis failures degrade to the fallback analysis; only
// the email generation itself can fail.
func (e *Engine) GenerateColdEmail(ctx context.Context, l lead.Lead, settings lead.CampaignSettings, extra map[string]string) (GeneratedEmail, error) {
	analysis, err := e.TryAnalyzeJobTitle(ctx, l.JobTitle, l.Company)
	if errors.Is(err, ErrDailyQuotaExceeded) {
		return GeneratedEmail{}, err
	}
	if err != nil {
		e.logger.Warn("job title analysis failed, using fallback", "lead", l.Email, "error", err)
		analysis = FallbackJobAnalysis()
	}

	resp, err := e.PersonalizeEmail(ctx, Request{
		Lead:        l,
		Type:        lead.EmailCold,
		Settings:    settings,
		JobAnalysis: analysis.Summary(),
		Context:     extra,
	})
	if err != nil {
		return GeneratedEmail{}, err
	}
	return GeneratedEmail{Email: parser.ParseEmail(resp.Content), Analysis: analysis, Response: resp}, nil
}

// GenerateFollowUp generates and parses the follow-up for step.
func (e *Engine) GenerateFollowUp(ctx context.Context, l lead.Lead, step sequence.Step, previous map[string]string, settings lead.CampaignSettings) (parser.FollowUpArtifact, error) {
	resp, err := e.PersonalizeEmail(ctx, Request{
		Lead:     l,
		Type:     lead.EmailFollowUp,
		Settings: settings,
		Step:     step,
		Context:  previous,
	})
	if err != nil {
		return parser.FollowUpArtifact{}, err
	}
	return parser.ParseFollowUp(resp.Content), nil
}

type kv struct {
	K string `json:"k"`
	V string `json:"v"`
}

// requestKey hashes a canonical serialization of the request identity.
// Context entries are sorted so map iteration order cannot change the key.
func requestKey(req Request) string {
	ctx := make([]kv, 0, len(req.Context))
	for k, v := range req.Context {
		ctx = append(ctx, kv{k, v})
	}
	sort.Slice(ctx, func(i, j int) bool { return ctx[i].K < ctx[j].K })

	canonical := struct {
		LeadID      string                `json:"lead_id"`
		Email       string                `json:"email"`
		Name        string                `json:"name"`
		Company     string                `json:"company"`
		JobTitle    string                `json:"job_title"`
		Type        lead.EmailType        `json:"type"`
		Step        int                   `json:"step"`
		Settings    lead.CampaignSettings `json:"settings"`
		JobAnalysis string                `json:"job_analysis"`
		Context     []kv                  `json:"context"`
	}{
		LeadID:      req.Lead.ID,
		Email:       req.Lead.Email,
		Name:        req.Lead.Name,
		Company:     req.Lead.Company,
		JobTitle:    req.Lead.JobTitle,
		Type:        req.Type,
		Step:        int(req.Step),
		Settings:    req.Settings,
		JobAnalysis: req.JobAnalysis,
		Context:     ctx,
	}
	b, _ := json.Marshal(canonical)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func analysisKey(title, company string) string {
	return strconv.Quote(title) + "|" + strconv.Quote(company)
}
