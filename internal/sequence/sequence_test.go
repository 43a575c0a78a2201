package sequence

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestStrategyFor(t *testing.T) {
	tests := []struct {
		step Step
		want Strategy
	}{
		{1, Strategy{"value reinforcement", "address concerns", "professional"}},
		{5, Strategy{"last chance", "final attempt", "direct"}},
		{0, Default},
		{6, Default},
		{-3, Default},
	}
	for _, tt := range tests {
		if got := StrategyFor(tt.step); got != tt.want {
			t.Errorf("StrategyFor(%d) = %+v, want %+v", tt.step, got, tt.want)
		}
	}
}

func TestEveryStepHasStrategy(t *testing.T) {
	for s := Step(1); s <= MaxStep; s++ {
		st := StrategyFor(s)
		if st.Name == "" || st.Goal == "" || st.Tone == "" || st == Default {
			t.Errorf("step %d has incomplete strategy %+v", s, st)
		}
	}
}

func TestDelays(t *testing.T) {
	tests := []struct {
		max  int
		want []time.Duration
	}{
		{0, nil},
		{1, []time.Duration{48 * time.Hour}},
		{3, []time.Duration{48 * time.Hour, 72 * time.Hour, 168 * time.Hour}},
		{4, []time.Duration{48 * time.Hour, 72 * time.Hour, 168 * time.Hour, 168 * time.Hour}},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, Delays(tt.max)); diff != "" {
			t.Errorf("Delays(%d) mismatch (-want +got):\n%s", tt.max, diff)
		}
	}
}

func TestPlanCumulative(t *testing.T) {
	sent := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	got := Plan(sent, 3)
	if len(got) != 3 {
		t.Fatalf("len(Plan) = %d, want 3", len(got))
	}
	wantDue := []time.Time{
		sent.Add(48 * time.Hour),
		sent.Add(120 * time.Hour),
		sent.Add(288 * time.Hour),
	}
	for i, p := range got {
		if p.Step != Step(i+1) {
			t.Errorf("plan[%d].Step = %d, want %d", i, p.Step, i+1)
		}
		if !p.Due.Equal(wantDue[i]) {
			t.Errorf("plan[%d].Due = %v, want %v", i, p.Due, wantDue[i])
		}
	}

	if diff := cmp.Diff(got, Plan(sent, 3)); diff != "" {
		t.Errorf("Plan is not deterministic:\n%s", diff)
	}
}
