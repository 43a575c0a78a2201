// Package sequence holds the follow-up strategy and timing tables. Every
// function is a pure decision over (step, configuration).
package sequence

import "time"

// Step is a 1-based follow-up position in a sequence.
type Step int

const (
	StepValueReinforcement Step = iota + 1
	StepSocialProof
	StepNewAngle
	StepUrgency
	StepLastChance

	// MaxStep is the highest step with a dedicated strategy.
	MaxStep = StepLastChance
)

// Strategy describes how a follow-up at a given step should read.
type Strategy struct {
	Name string
	Goal string
	Tone string
}

// strategies is indexed by Step; slot 0 is the generic fallback.
var strategies = [MaxStep + 1]Strategy{
	{Name: "standard", Goal: "maintain engagement", Tone: "professional"},
	StepValueReinforcement: {Name: "value reinforcement", Goal: "address concerns", Tone: "professional"},
	StepSocialProof:        {Name: "social proof", Goal: "build credibility", Tone: "friendly"},
	StepNewAngle:           {Name: "new angle", Goal: "spark curiosity", Tone: "consultative"},
	StepUrgency:            {Name: "timely reminder", Goal: "create momentum", Tone: "concise"},
	StepLastChance:         {Name: "last chance", Goal: "final attempt", Tone: "direct"},
}

// Default is the strategy used for out-of-range steps.
var Default = strategies[0]

// StrategyFor returns the strategy for step, or Default when step is outside
// 1..MaxStep.
func StrategyFor(step Step) Strategy {
	if step < 1 || step > MaxStep {
		return Default
	}
	return strategies[step]
}

// DefaultDelays are the waits before each follow-up, measured from the
// previous send.
var DefaultDelays = []time.Duration{48 * time.Hour, 72 * time.Hour, 168 * time.Hour}

// Delays returns the per-step waits for up to maxFollowUps follow-ups. Steps
// beyond the table reuse its last entry.
func Delays(maxFollowUps int) []time.Duration {
	if maxFollowUps <= 0 {
		return nil
	}
	out := make([]time.Duration, maxFollowUps)
	for i := range out {
		if i < len(DefaultDelays) {
			out[i] = DefaultDelays[i]
		} else {
			out[i] = DefaultDelays[len(DefaultDelays)-1]
		}
	}
	return out
}

// Planned is one scheduled follow-up.
type Planned struct {
	Step     Step
	Strategy Strategy
	Due      time.Time
}

// Plan lays out follow-ups after an initial send at sentAt. Each due time is
// cumulative from the initial send.
func Plan(sentAt time.Time, maxFollowUps int) []Planned {
	delays := Delays(maxFollowUps)
	out := make([]Planned, 0, len(delays))
	due := sentAt
	for i, d := range delays {
		due = due.Add(d)
		step := Step(i + 1)
		out = append(out, Planned{Step: step, Strategy: StrategyFor(step), Due: due})
	}
	return out
}
