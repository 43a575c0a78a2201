package profile

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/kalambet/outreach/internal/lead"
)

// ProfileStore persists profile keys. Implemented by storage.Store.
type ProfileStore interface {
	LoadProfile() (map[string]string, error)
	SaveProfile(values map[string]string) error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Keys lists every profile key. List keys hold JSON arrays.
var Keys = []string{
	"sender.name",
	"sender.title",
	"sender.company",
	"sender.email",
	"offer.value_proposition",
	"offer.products",
	"offer.case_studies",
	"outreach.approach",
	"outreach.scheduling_link",
	"outreach.signature",
	"targets.industries",
	"targets.titles",
}

var listKeys = map[string]bool{
	"offer.products":     true,
	"offer.case_studies": true,
	"targets.industries": true,
	"targets.titles":     true,
}

// IsListKey reports whether key holds a list of strings.
func IsListKey(key string) bool {
	return listKeys[key]
}

// ValidKey reports whether key is a known profile key.
func ValidKey(key string) bool {
	return slices.Contains(Keys, key)
}

// Manager provides cached, structured access to the sender profile stored in SQLite.
type Manager struct {
	store ProfileStore
	clock Clock
	ttl   time.Duration

	mu       sync.RWMutex
	cached   *Profile
	cachedAt time.Time
}

// NewManager creates a Manager with a 60-second cache TTL.
func NewManager(store ProfileStore) *Manager {
	return NewManagerWithClock(store, realClock{}, 60*time.Second)
}

// NewManagerWithClock creates a Manager with a custom clock (for testing).
func NewManagerWithClock(store ProfileStore, clock Clock, ttl time.Duration) *Manager {
	return &Manager{
		store: store,
		clock: clock,
		ttl:   ttl,
	}
}

// GetProfile reads all profile keys from storage (or cache) and assembles
// a structured Profile. Returns a zero-value Profile on empty store.
func (m *Manager) GetProfile() (Profile, error) {
	m.mu.RLock()
	if m.cached != nil && m.clock.Now().Before(m.cachedAt.Add(m.ttl)) {
		p := deepCopyProfile(m.cached)
		m.mu.RUnlock()
		return p, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock.
	if m.cached != nil && m.clock.Now().Before(m.cachedAt.Add(m.ttl)) {
		return deepCopyProfile(m.cached), nil
	}

	keys, err := m.store.LoadProfile()
	if err != nil {
		return Profile{}, fmt.Errorf("loading profile keys: %w", err)
	}

	p := buildProfile(keys)
	m.cached = &p
	m.cachedAt = m.clock.Now()
	return deepCopyProfile(&p), nil
}

// SetField persists a single profile key. See SetFields.
func (m *Manager) SetField(key string, value any) error {
	return m.SetFields(map[string]any{key: value})
}

// SetFields validates every field, then persists them together and
// invalidates the cache. Nothing is written if any field is invalid. Values
// for list keys may be a []string, a decoded JSON array, a JSON array string
// or a comma-separated string. An empty string clears a key.
func (m *Manager) SetFields(fields map[string]any) error {
	encoded := make(map[string]string, len(fields))
	for key, value := range fields {
		if !ValidKey(key) {
			return fmt.Errorf("unknown profile key %q", key)
		}
		str, err := encodeValue(key, value)
		if err != nil {
			return err
		}
		encoded[key] = str
	}
	if len(encoded) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.SaveProfile(encoded); err != nil {
		return fmt.Errorf("saving profile: %w", err)
	}
	m.cached = nil
	return nil
}

func encodeValue(key string, value any) (string, error) {
	s, isString := value.(string)
	if !listKeys[key] {
		if isString {
			return s, nil
		}
		return "", fmt.Errorf("profile key %q takes a string", key)
	}

	var items []string
	switch v := value.(type) {
	case []string:
		items = v
	case []any:
		for _, item := range v {
			str, ok := item.(string)
			if !ok {
				return "", fmt.Errorf("profile key %q takes a list of strings", key)
			}
			items = append(items, str)
		}
	case string:
		if strings.HasPrefix(strings.TrimSpace(v), "[") {
			if err := json.Unmarshal([]byte(v), &items); err != nil {
				return "", fmt.Errorf("parsing list for key %q: %w", key, err)
			}
			break
		}
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				items = append(items, part)
			}
		}
	default:
		return "", fmt.Errorf("profile key %q takes a list", key)
	}
	if items == nil {
		items = []string{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("marshalling value for key %q: %w", key, err)
	}
	return string(b), nil
}

// CampaignSettings returns the profile's defaults for campaign settings.
// A store failure yields empty settings.
func (m *Manager) CampaignSettings() lead.CampaignSettings {
	p, err := m.GetProfile()
	if err != nil {
		slog.Warn("loading sender profile", "error", err)
		return lead.CampaignSettings{}
	}
	return lead.CampaignSettings{
		ValueProposition: p.Offer.ValueProposition,
		SchedulingLink:   p.Outreach.SchedulingLink,
		Approach:         p.Outreach.Approach,
		FromName:         p.Sender.Name,
	}
}

// GetSummary returns a compact description of the sender for prompt context.
func (m *Manager) GetSummary() (string, error) {
	p, err := m.GetProfile()
	if err != nil {
		return "", fmt.Errorf("getting profile for summary: %w", err)
	}
	return summarize(p), nil
}

// maxSummaryChars caps the summary to roughly 250 tokens.
const maxSummaryChars = 1000

func summarize(p Profile) string {
	var parts []string

	if p.Sender.Name != "" {
		who := p.Sender.Name
		if p.Sender.Title != "" {
			who += ", " + p.Sender.Title
		}
		if p.Sender.Company != "" {
			who += " at " + p.Sender.Company
		}
		parts = append(parts, fmt.Sprintf("Sender: %s.", who))
	}
	if p.Offer.ValueProposition != "" {
		parts = append(parts, fmt.Sprintf("Offer: %s.", strings.TrimSuffix(p.Offer.ValueProposition, ".")))
	}
	if len(p.Offer.Products) > 0 {
		parts = append(parts, fmt.Sprintf("Products: %s.", strings.Join(p.Offer.Products, ", ")))
	}
	if len(p.Offer.CaseStudies) > 0 {
		parts = append(parts, fmt.Sprintf("Proof points: %s.", strings.Join(p.Offer.CaseStudies, "; ")))
	}
	if len(p.Targets.Industries) > 0 {
		parts = append(parts, fmt.Sprintf("Sells to: %s.", strings.Join(p.Targets.Industries, ", ")))
	}

	if len(parts) == 0 {
		return "Sender profile: not yet configured."
	}

	summary := strings.Join(parts, " ")
	if len(summary) > maxSummaryChars {
		// Ensure we don't split a multi-byte UTF-8 character.
		end := maxSummaryChars
		for end > 0 && !utf8.RuneStart(summary[end]) {
			end--
		}
		if idx := strings.LastIndex(summary[:end], " "); idx > 0 {
			summary = summary[:idx]
		} else {
			summary = summary[:end]
		}
	}
	return summary
}

func deepCopyProfile(p *Profile) Profile {
	if p == nil {
		return Profile{}
	}
	cp := *p
	cp.Offer.Products = slices.Clone(p.Offer.Products)
	cp.Offer.CaseStudies = slices.Clone(p.Offer.CaseStudies)
	cp.Targets.Industries = slices.Clone(p.Targets.Industries)
	cp.Targets.Titles = slices.Clone(p.Targets.Titles)
	return cp
}

// buildProfile assembles a Profile from flat dot-notation keys.
func buildProfile(keys map[string]string) Profile {
	var p Profile

	p.Sender.Name = keys["sender.name"]
	p.Sender.Title = keys["sender.title"]
	p.Sender.Company = keys["sender.company"]
	p.Sender.Email = keys["sender.email"]
	p.Offer.ValueProposition = keys["offer.value_proposition"]
	p.Outreach.Approach = keys["outreach.approach"]
	p.Outreach.SchedulingLink = keys["outreach.scheduling_link"]
	p.Outreach.Signature = keys["outreach.signature"]

	unmarshalProfileKey(keys, "offer.products", &p.Offer.Products)
	unmarshalProfileKey(keys, "offer.case_studies", &p.Offer.CaseStudies)
	unmarshalProfileKey(keys, "targets.industries", &p.Targets.Industries)
	unmarshalProfileKey(keys, "targets.titles", &p.Targets.Titles)

	return p
}

// flatten is the inverse of buildProfile. Empty fields are omitted.
// Fields returns the non-empty fields of p keyed by their dotted profile key.
func (p Profile) Fields() map[string]any {
	out := map[string]any{}
	put := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	putList := func(k string, v []string) {
		if len(v) > 0 {
			out[k] = v
		}
	}
	put("sender.name", p.Sender.Name)
	put("sender.title", p.Sender.Title)
	put("sender.company", p.Sender.Company)
	put("sender.email", p.Sender.Email)
	put("offer.value_proposition", p.Offer.ValueProposition)
	putList("offer.products", p.Offer.Products)
	putList("offer.case_studies", p.Offer.CaseStudies)
	put("outreach.approach", p.Outreach.Approach)
	put("outreach.scheduling_link", p.Outreach.SchedulingLink)
	put("outreach.signature", p.Outreach.Signature)
	putList("targets.industries", p.Targets.Industries)
	putList("targets.titles", p.Targets.Titles)
	return out
}

// unmarshalProfileKey unmarshals a JSON value from keys into target, logging
// a warning if the value is present but malformed.
func unmarshalProfileKey(keys map[string]string, key string, target any) {
	v, ok := keys[key]
	if !ok {
		return
	}
	if err := json.Unmarshal([]byte(v), target); err != nil {
		slog.Warn("malformed profile key, skipping", "key", key, "error", err)
	}
}
