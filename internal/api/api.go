// Package api serves the outreach HTTP API and the MCP tool server.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/outreach/internal/calendly"
	"github.com/kalambet/outreach/internal/classify"
	"github.com/kalambet/outreach/internal/generation"
	"github.com/kalambet/outreach/internal/lead"
	"github.com/kalambet/outreach/internal/profile"
	"github.com/kalambet/outreach/internal/storage"
)

const (
	maxRequestBodySize = 1 << 20  // 1MB
	maxUploadBodySize  = 10 << 20 // 10MB, base64 company profiles
	defaultListLimit   = 100
	defaultMaxResults  = 1000
)

// Scorer scores a single lead.
type Scorer interface {
	ScoreLead(ctx context.Context, l lead.Lead) lead.LeadScore
}

// Generator produces email content and role analyses and owns the daily
// generation quota.
type Generator interface {
	GenerateColdEmail(ctx context.Context, l lead.Lead, settings lead.CampaignSettings, extra map[string]string) (generation.GeneratedEmail, error)
	AnalyzeJobTitle(ctx context.Context, title, company string) generation.JobAnalysis
	ResetDailyCounter()
	Usage() generation.Usage
}

// Classifier analyzes reply text.
type Classifier interface {
	AnalyzeResponse(ctx context.Context, text string) classify.Analysis
}

// Campaigns runs campaign jobs.
type Campaigns interface {
	StartCampaign(campaignID, userID string) (lead.CampaignJob, error)
	Status(id string) (lead.CampaignJob, error)
	Jobs() []lead.CampaignJob
	Pause(id string) (lead.CampaignJob, error)
	Resume(id string) (lead.CampaignJob, error)
}

// Scheduling queries booking availability.
type Scheduling interface {
	Configured() bool
	AvailableTimes(ctx context.Context, eventTypeURL string, start, end time.Time) ([]calendly.Slot, error)
}

// HealthCheck probes one integration. A nil check reports the integration
// as not configured.
type HealthCheck func(ctx context.Context) error

type Deps struct {
	Store      *storage.Store
	Profile    *profile.Manager
	Scorer     Scorer
	Generator  Generator
	Classifier Classifier
	Campaigns  Campaigns
	Scheduling Scheduling // optional
	Health     map[string]HealthCheck
	Token      string
	OwnerID    string // default owner for created leads, campaigns and imports
	MaxResults int    // cap on list sizes; 0 means 1000
}

// NewHandler returns the full HTTP API. /health is unauthenticated; every
// other route requires the bearer token.
func NewHandler(deps Deps) http.Handler {
	if deps.MaxResults <= 0 {
		deps.MaxResults = defaultMaxResults
	}

	r := chi.NewRouter()
	r.Get("/health", handleHealth(deps))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/leads", handleCreateLead(deps))
		r.Get("/leads", handleListLeads(deps))
		r.Get("/leads/{id}", handleGetLead(deps))
		r.Patch("/leads/{id}/status", handleLeadStatus(deps))
		r.Post("/leads/{id}/score", handleScoreLead(deps))
		r.Post("/leads/{id}/emails/cold", handleColdEmail(deps))
		r.Post("/leads/{id}/company-profile", handleCompanyProfile(deps))

		r.Post("/imports/sheets", handleSheetImport(deps))
		r.Post("/responses/classify", handleClassify(deps))
		r.Post("/analysis/job-title", handleJobTitleAnalysis(deps))

		r.Post("/campaigns", handleCreateCampaign(deps))
		r.Get("/campaigns/{id}", handleGetCampaign(deps))
		r.Post("/campaigns/{id}/start", handleStartCampaign(deps))

		r.Get("/jobs", handleListJobs(deps))
		r.Get("/jobs/{id}", handleGetJob(deps))
		r.Post("/jobs/{id}/pause", handlePauseJob(deps))
		r.Post("/jobs/{id}/resume", handleResumeJob(deps))

		r.Get("/profile", handleGetProfile(deps))
		r.Patch("/profile", handlePatchProfile(deps))

		r.Get("/scheduling/availability", handleAvailability(deps))

		r.Get("/admin/quota", handleQuota(deps))
		r.Post("/admin/quota/reset", handleQuotaReset(deps))
	})

	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

// decodeBody reads a JSON body of at most limit bytes into v, writing a 400
// and returning false on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

// decodeOptionalBody is decodeBody for endpoints whose body may be empty.
func decodeOptionalBody(w http.ResponseWriter, r *http.Request, limit int64, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func (d Deps) owner(requested string) string {
	if requested != "" {
		return requested
	}
	return d.OwnerID
}
