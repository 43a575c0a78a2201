// Package calendly is a client for the Calendly scheduling API.
package calendly

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://api.calendly.com"
	defaultTimeout = 30 * time.Second
	defaultWindow  = 7 * 24 * time.Hour
	callsPerMinute = 100
)

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("calendly api key not configured")

// Slot is one bookable start time.
type Slot struct {
	Status            string    `json:"status"`
	InviteesRemaining int       `json:"invitees_remaining"`
	StartTime         time.Time `json:"start_time"`
	SchedulingURL     string    `json:"scheduling_url"`
}

// SchedulingLink is a single-use booking page.
type SchedulingLink struct {
	BookingURL string `json:"booking_url"`
	Owner      string `json:"owner"`
	OwnerType  string `json:"owner_type"`
}

// User is the account the API key belongs to.
type User struct {
	URI           string `json:"uri"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	SchedulingURL string `json:"scheduling_url"`
	Timezone      string `json:"timezone"`
}

// Client talks to the Calendly API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	now        func() time.Time
}

// NewClient creates a client. An empty baseURL uses DefaultBaseURL.
func NewClient(apiKey, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		limiter:    rate.NewLimiter(rate.Every(time.Minute/callsPerMinute), 10),
		now:        time.Now,
	}
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool {
	return c != nil && c.apiKey != ""
}

// AvailableTimes lists open slots of an event type between start and end. A
// zero start means now and a zero end means seven days after start.
func (c *Client) AvailableTimes(ctx context.Context, eventTypeURL string, start, end time.Time) ([]Slot, error) {
	if start.IsZero() {
		start = c.now()
	}
	if end.IsZero() {
		end = start.Add(defaultWindow)
	}
	q := url.Values{}
	q.Set("event_type", eventTypeURL)
	q.Set("start_time", start.UTC().Format(time.RFC3339))
	q.Set("end_time", end.UTC().Format(time.RFC3339))

	var out struct {
		Collection []Slot `json:"collection"`
	}
	if err := c.do(ctx, http.MethodGet, "/event_type_available_times?"+q.Encode(), nil, http.StatusOK, &out); err != nil {
		return nil, fmt.Errorf("listing available times: %w", err)
	}
	if out.Collection == nil {
		return []Slot{}, nil
	}
	return out.Collection, nil
}

// CreateSchedulingLink creates a booking link for an event type that accepts
// maxEventCount bookings.
func (c *Client) CreateSchedulingLink(ctx context.Context, eventTypeURL string, maxEventCount int) (*SchedulingLink, error) {
	if maxEventCount <= 0 {
		maxEventCount = 1
	}
	body := map[string]any{
		"max_event_count": maxEventCount,
		"owner":           eventTypeURL,
		"owner_type":      "EventType",
	}
	var out struct {
		Resource SchedulingLink `json:"resource"`
	}
	if err := c.do(ctx, http.MethodPost, "/scheduling_links", body, http.StatusCreated, &out); err != nil {
		return nil, fmt.Errorf("creating scheduling link: %w", err)
	}
	return &out.Resource, nil
}

// CurrentUser returns the account behind the API key.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	var out struct {
		Resource User `json:"resource"`
	}
	if err := c.do(ctx, http.MethodGet, "/users/me", nil, http.StatusOK, &out); err != nil {
		return nil, fmt.Errorf("reading current user: %w", err)
	}
	return &out.Resource, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, wantStatus int, out any) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
