package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kalambet/outreach/internal/classify"
	"github.com/kalambet/outreach/internal/generation"
	"github.com/kalambet/outreach/internal/lead"
	"github.com/kalambet/outreach/internal/storage"
	"github.com/kalambet/outreach/internal/worker"
)

func handleCreateLead(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var l lead.Lead
		if !decodeBody(w, r, maxRequestBodySize, &l) {
			return
		}
		l.Email = strings.ToLower(strings.TrimSpace(l.Email))
		if missing := l.MissingRequired(); len(missing) > 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "missing required fields: %s", strings.Join(missing, ", "))
			return
		}
		l.ID = ""
		l.OwnerID = deps.owner(l.OwnerID)
		if l.Status != "" && !l.Status.Valid() {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown status %q", l.Status)
			return
		}

		if _, err := deps.Store.FindLeadByEmail(l.OwnerID, l.Email); err == nil {
			httpError(w, http.StatusConflict, "conflict_error", "lead with email %s already exists", l.Email)
			return
		} else if !errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to look up lead: %v", err)
			return
		}

		if deps.Scorer != nil {
			l.SetScore(deps.Scorer.ScoreLead(r.Context(), l).Score)
		}
		created, err := deps.Store.CreateLead(l)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create lead: %v", err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func handleListLeads(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		status := q.Get("status")
		if status != "" && !lead.Status(status).Valid() {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown status %q", status)
			return
		}
		leads, err := deps.Store.ListLeads(storage.LeadFilter{
			OwnerID:    deps.owner(q.Get("owner_id")),
			Status:     status,
			CampaignID: q.Get("campaign_id"),
			Limit:      parseIntParam(r, "limit", defaultListLimit, deps.MaxResults),
		})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list leads: %v", err)
			return
		}
		if leads == nil {
			leads = []lead.Lead{}
		}
		writeJSON(w, http.StatusOK, leads)
	}
}

// loadLead fetches the {id} lead, writing a 404 or 500 and returning false
// on failure.
func loadLead(w http.ResponseWriter, r *http.Request, deps Deps) (lead.Lead, bool) {
	id := chi.URLParam(r, "id")
	l, err := deps.Store.GetLead(id)
	if errors.Is(err, storage.ErrNotFound) {
		httpError(w, http.StatusNotFound, "not_found", "lead not found")
		return lead.Lead{}, false
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to get lead: %v", err)
		return lead.Lead{}, false
	}
	return l, true
}

func handleGetLead(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		l, ok := loadLead(w, r, deps)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, l)
	}
}

func handleLeadStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Status lead.Status `json:"status"`
		}
		if !decodeBody(w, r, maxRequestBodySize, &req) {
			return
		}
		if !req.Status.Valid() {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown status %q", req.Status)
			return
		}
		l, ok := loadLead(w, r, deps)
		if !ok {
			return
		}
		if err := l.Advance(req.Status); err != nil {
			httpError(w, http.StatusConflict, "conflict_error", "%v", err)
			return
		}
		if err := deps.Store.UpdateLead(l); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to update lead: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, l)
	}
}

func handleScoreLead(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		l, ok := loadLead(w, r, deps)
		if !ok {
			return
		}
		score := deps.Scorer.ScoreLead(r.Context(), l)
		l.SetScore(score.Score)
		if err := deps.Store.UpdateLead(l); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to store score: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, score)
	}
}

type coldEmailRequest struct {
	CampaignID string                `json:"campaign_id"`
	Settings   lead.CampaignSettings `json:"settings"`
	Context    map[string]string     `json:"context"`
}

func handleColdEmail(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req coldEmailRequest
		if !decodeOptionalBody(w, r, maxRequestBodySize, &req) {
			return
		}
		l, ok := loadLead(w, r, deps)
		if !ok {
			return
		}

		settings := req.Settings
		if req.CampaignID != "" {
			c, err := deps.Store.GetCampaign(req.CampaignID)
			if errors.Is(err, storage.ErrNotFound) {
				httpError(w, http.StatusNotFound, "not_found", "campaign not found")
				return
			}
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to get campaign: %v", err)
				return
			}
			settings = settings.Merge(c.Settings)
		}
		if deps.Profile != nil {
			settings = settings.Merge(deps.Profile.CampaignSettings())
		}

		out, err := deps.Generator.GenerateColdEmail(r.Context(), l, settings, req.Context)
		if errors.Is(err, generation.ErrDailyQuotaExceeded) {
			httpError(w, http.StatusTooManyRequests, "rate_limit_error", "%v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "generation failed: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

type companyProfileRequest struct {
	URL         string `json:"url"`
	Content     string `json:"content"`
	ContentType string `json:"content_type"`
}

func handleCompanyProfile(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req companyProfileRequest
		if !decodeBody(w, r, maxUploadBodySize, &req) {
			return
		}
		if (req.URL == "") == (req.Content == "") {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "exactly one of url or content is required")
			return
		}
		l, ok := loadLead(w, r, deps)
		if !ok {
			return
		}
		enqueue(w, deps, worker.CompanyProfileJob, worker.CompanyProfilePayload{
			LeadID:      l.ID,
			URL:         req.URL,
			Content:     req.Content,
			ContentType: req.ContentType,
		})
	}
}

func handleSheetImport(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req worker.SheetImportPayload
		if !decodeBody(w, r, maxRequestBodySize, &req) {
			return
		}
		if req.SpreadsheetID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "spreadsheet_id is required")
			return
		}
		req.OwnerID = deps.owner(req.OwnerID)
		enqueue(w, deps, worker.SheetImportJob, req)
	}
}

// enqueue stores a background job and answers 202 with its ID.
func enqueue(w http.ResponseWriter, deps Deps, jobType string, payload any) {
	b, err := json.Marshal(payload)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to create job payload: %v", err)
		return
	}
	job := storage.Job{
		ID:          uuid.New().String(),
		Type:        jobType,
		PayloadJSON: string(b),
	}
	if err := deps.Store.EnqueueJob(job); err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to enqueue job: %v", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.ID,
		"status": "queued",
	})
}

type classifyRequest struct {
	Text       string `json:"text"`
	LeadID     string `json:"lead_id"`
	CampaignID string `json:"campaign_id"`
	Subject    string `json:"subject"`
}

type jobTitleRequest struct {
	JobTitle string `json:"job_title"`
	Company  string `json:"company"`
}

// handleJobTitleAnalysis returns the model's read of a role. Generation
// failures yield the fallback analysis, never an error.
func handleJobTitleAnalysis(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req jobTitleRequest
		if !decodeBody(w, r, maxRequestBodySize, &req) {
			return
		}
		title := strings.TrimSpace(req.JobTitle)
		if title == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "job_title is required")
			return
		}
		writeJSON(w, http.StatusOK, deps.Generator.AnalyzeJobTitle(r.Context(), title, strings.TrimSpace(req.Company)))
	}
}

func handleClassify(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req classifyRequest
		if !decodeBody(w, r, maxRequestBodySize, &req) {
			return
		}
		text := classify.PlainText(req.Text)
		if text == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "text is required")
			return
		}

		a := deps.Classifier.AnalyzeResponse(r.Context(), text)
		if req.LeadID != "" {
			if err := recordResponse(deps, req, text, a); err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					httpError(w, http.StatusNotFound, "not_found", "lead not found")
					return
				}
				httpError(w, http.StatusInternalServerError, "api_error", "failed to record response: %v", err)
				return
			}
		}
		writeJSON(w, http.StatusOK, a)
	}
}

// recordResponse stores the reply in the lead's email history, records its
// engagement and moves the lead forward. Not-interested replies close the
// lead as lost.
func recordResponse(deps Deps, req classifyRequest, text string, a classify.Analysis) error {
	l, err := deps.Store.GetLead(req.LeadID)
	if err != nil {
		return err
	}
	if _, err := deps.Store.CreateEmail(lead.EmailRecord{
		LeadID:     l.ID,
		CampaignID: req.CampaignID,
		OwnerID:    l.OwnerID,
		Type:       lead.EmailResponse,
		Subject:    req.Subject,
		Body:       text,
		Status:     strings.ToLower(a.Category),
		SentAt:     time.Now().UTC(),
	}); err != nil {
		return err
	}

	if l.Engagement == nil {
		l.Engagement = map[string]float64{}
	}
	l.Engagement["engagement_score"] = a.EngagementScore

	next := lead.StatusResponded
	if a.Category == "NOT_INTERESTED" {
		next = lead.StatusLost
	}
	if l.Status.CanTransition(next) {
		l.Status = next
	}
	return deps.Store.UpdateLead(l)
}
