package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/outreach/internal/lead"
	"github.com/kalambet/outreach/internal/orchestrator"
	"github.com/kalambet/outreach/internal/storage"
)

type createCampaignRequest struct {
	Name     string                `json:"name"`
	OwnerID  string                `json:"owner_id"`
	Settings lead.CampaignSettings `json:"settings"`
}

func handleCreateCampaign(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createCampaignRequest
		if !decodeBody(w, r, maxRequestBodySize, &req) {
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "name is required")
			return
		}
		c, err := deps.Store.CreateCampaign(lead.Campaign{
			OwnerID:  deps.owner(req.OwnerID),
			Name:     req.Name,
			Settings: req.Settings,
		})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create campaign: %v", err)
			return
		}
		writeJSON(w, http.StatusCreated, c)
	}
}

func handleGetCampaign(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := deps.Store.GetCampaign(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "campaign not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get campaign: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}

func handleStartCampaign(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UserID string `json:"user_id"`
		}
		if !decodeOptionalBody(w, r, maxRequestBodySize, &req) {
			return
		}
		job, err := deps.Campaigns.StartCampaign(chi.URLParam(r, "id"), req.UserID)
		if err != nil {
			jobError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, job)
	}
}

func handleListJobs(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Campaigns.Jobs())
	}
}

// handleGetJob serves live state from the orchestrator and falls back to the
// persisted mirror for jobs it no longer tracks.
func handleGetJob(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		job, err := deps.Campaigns.Status(id)
		if errors.Is(err, orchestrator.ErrJobNotFound) {
			job, err = deps.Store.GetCampaignJob(id)
		}
		if err != nil {
			jobError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}

func handlePauseJob(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := deps.Campaigns.Pause(chi.URLParam(r, "id"))
		if err != nil {
			jobError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}

func handleResumeJob(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := deps.Campaigns.Resume(chi.URLParam(r, "id"))
		if err != nil {
			jobError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}

func jobError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orchestrator.ErrJobNotFound), errors.Is(err, storage.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found", "%v", err)
	case errors.Is(err, orchestrator.ErrInvalidTransition):
		httpError(w, http.StatusConflict, "conflict_error", "%v", err)
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}
