package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

const healthTimeout = 5 * time.Second

type integrationStatus struct {
	Status string `json:"status"` // "ok", "error" or "not_configured"
	Error  string `json:"error,omitempty"`
}

type healthResponse struct {
	Status       string                       `json:"status"` // "ok" or "degraded"
	Integrations map[string]integrationStatus `json:"integrations"`
}

// handleHealth runs every integration check concurrently. The endpoint
// answers 200 while storage is reachable and 503 otherwise; other failing
// integrations only mark the service degraded.
func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		names := make([]string, 0, len(deps.Health))
		for name := range deps.Health {
			names = append(names, name)
		}
		sort.Strings(names)

		results := make([]integrationStatus, len(names))
		var g errgroup.Group
		for i, name := range names {
			check := deps.Health[name]
			g.Go(func() error {
				if check == nil {
					results[i] = integrationStatus{Status: "not_configured"}
					return nil
				}
				if err := check(ctx); err != nil {
					results[i] = integrationStatus{Status: "error", Error: err.Error()}
					return nil
				}
				results[i] = integrationStatus{Status: "ok"}
				return nil
			})
		}
		g.Wait()

		resp := healthResponse{Status: "ok", Integrations: make(map[string]integrationStatus, len(names))}
		code := http.StatusOK
		for i, name := range names {
			resp.Integrations[name] = results[i]
			if results[i].Status != "error" {
				continue
			}
			resp.Status = "degraded"
			if name == "storage" {
				code = http.StatusServiceUnavailable
			}
		}
		writeJSON(w, code, resp)
	}
}

func handleGetProfile(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := deps.Profile.GetProfile()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get profile: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func handlePatchProfile(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var fields map[string]any
		if !decodeBody(w, r, maxRequestBodySize, &fields) {
			return
		}
		if err := deps.Profile.SetFields(fields); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "failed to update profile: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
	}
}

func handleAvailability(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Scheduling == nil || !deps.Scheduling.Configured() {
			httpError(w, http.StatusServiceUnavailable, "not_configured", "scheduling service is not configured")
			return
		}
		q := r.URL.Query()
		eventType := q.Get("event_type")
		if eventType == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "event_type is required")
			return
		}
		var start, end time.Time
		for _, p := range []struct {
			name string
			dst  *time.Time
		}{{"start", &start}, {"end", &end}} {
			v := q.Get(p.name)
			if v == "" {
				continue
			}
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid %s: %v", p.name, err)
				return
			}
			*p.dst = t
		}

		slots, err := deps.Scheduling.AvailableTimes(r.Context(), eventType, start, end)
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "availability query failed: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, slots)
	}
}

func handleQuota(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Generator.Usage())
	}
}

func handleQuotaReset(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Generator.ResetDailyCounter()
		writeJSON(w, http.StatusOK, deps.Generator.Usage())
	}
}
