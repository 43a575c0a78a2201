package lead

import (
	"errors"
	"math"
	"testing"
)

func TestStatusCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusNew, StatusContacted, true},
		{StatusNew, StatusBooked, true},
		{StatusContacted, StatusResponded, true},
		{StatusResponded, StatusContacted, false},
		{StatusQualified, StatusNew, false},
		{StatusContacted, StatusLost, true},
		{StatusQualified, StatusLost, true},
		{StatusLost, StatusNew, false},
		{StatusLost, StatusContacted, false},
		{StatusBooked, StatusLost, false},
		{StatusBooked, StatusBooked, true},
		{StatusNew, Status("archived"), false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestAdvance(t *testing.T) {
	l := Lead{}
	if err := l.Advance(StatusContacted); err != nil {
		t.Fatalf("Advance from empty status: %v", err)
	}
	if l.Status != StatusContacted {
		t.Errorf("Status = %q, want %q", l.Status, StatusContacted)
	}

	err := l.Advance(StatusNew)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Advance backwards error = %v, want ErrInvalidTransition", err)
	}
	if l.Status != StatusContacted {
		t.Errorf("Status changed on failed transition: %q", l.Status)
	}
}

func TestClampScore(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{-0.5, 0},
		{0, 0},
		{0.42, 0.42},
		{1, 1},
		{3, 1},
		{math.NaN(), 0},
	}
	for _, tt := range tests {
		if got := ClampScore(tt.in); got != tt.want {
			t.Errorf("ClampScore(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestMissingRequired(t *testing.T) {
	l := Lead{Name: "Ada", Company: "Analytical"}
	got := l.MissingRequired()
	if len(got) != 2 || got[0] != "email" || got[1] != "job_title" {
		t.Errorf("MissingRequired = %v, want [email job_title]", got)
	}
}

func TestSettingsMerge(t *testing.T) {
	s := CampaignSettings{Approach: "direct"}
	got := s.Merge(CampaignSettings{ValueProposition: "save time", Approach: "warm"})
	if got.ValueProposition != "save time" {
		t.Errorf("ValueProposition = %q, want fallback", got.ValueProposition)
	}
	if got.Approach != "direct" {
		t.Errorf("Approach = %q, want override kept", got.Approach)
	}
}
