// Package moment detects narratively significant score-differential
// transitions and merges them to a sport budget.
//
// Moments are the atomic narrative unit: every event belongs to exactly one
// moment, and the set of moments partitions the full index range. Detection
// walks the lead ladder — the discretized |margin| tier per event — and
// proposes a boundary wherever the tier, the leading side, or the game
// structure shifts.
package moment

import (
	"github.com/courtline/courtline/internal/game"
)

// Type classifies what a moment means for the story.
type Type string

const (
	// TypeOpener starts a period.
	TypeOpener Type = "opener"
	// TypeLeadBuild extends the leading side's tier.
	TypeLeadBuild Type = "lead-build"
	// TypeCut shrinks the margin tier for the trailing side.
	TypeCut Type = "cut"
	// TypeTie levels the score.
	TypeTie Type = "tie"
	// TypeFlip changes which side leads.
	TypeFlip Type = "flip"
	// TypeClosingControl is a small margin sustained late by one side.
	TypeClosingControl Type = "closing-control"
	// TypeHighImpact is an externally flagged event, independent of score.
	TypeHighImpact Type = "high-impact"
	// TypeNeutral carries no ladder transition of its own.
	TypeNeutral Type = "neutral"
)

// Trigger kinds recorded on moment reasons.
const (
	TriggerPeriodOpen = "period-open"
	TriggerTierUp     = "tier-up"
	TriggerTierDown   = "tier-down"
	TriggerTie        = "tie"
	TriggerFlip       = "flip"
	TriggerFlag       = "flag"
	TriggerClosing    = "closing"
	TriggerMerge      = "merge"
)

// Reason explains why a moment exists.
type Reason struct {
	// Trigger is the kind of transition that opened the moment.
	Trigger string `json:"trigger"`
	// ControlSide is the side gaining control in the transition.
	ControlSide game.Side `json:"control_side"`
	// Delta is a compact narrative-delta label, e.g. "home extends 1>3".
	Delta string `json:"delta"`
}

// Moment is one contiguous event range with a narrative classification.
// Moments are immutable values; merge decisions are recorded as Traces, not
// as mutations of prior moments.
type Moment struct {
	Ordinal    int    `json:"ordinal"`
	Type       Type   `json:"type"`
	StartIndex int    `json:"start_index"`
	EndIndex   int    `json:"end_index"`
	// Swing is the absolute margin movement across the span. Merged moments
	// accumulate the swings of the spans they absorb.
	Swing  int    `json:"swing"`
	Reason Reason `json:"reason"`
}

// EventCount returns how many events the moment spans.
func (m Moment) EventCount() int {
	return m.EndIndex - m.StartIndex + 1
}

// Trace is one append-only audit record from moment generation. Traces are
// keyed by run elsewhere; the builder only emits them in order.
type Trace struct {
	// Action is "candidate" for raw detections and "merge" for budget merges.
	Action string `json:"action"`
	// Type is the moment type involved.
	Type Type `json:"type"`
	// StartIndex is the surviving moment's start.
	StartIndex int `json:"start_index"`
	// AbsorbedStart is the absorbed moment's start for merges, -1 otherwise.
	AbsorbedStart int `json:"absorbed_start"`
	// Weight is the moment weight, or the combined weight for merges.
	Weight int `json:"weight"`
}
