// Package signal derives per-event narrative signals from the ordered event
// prefix.
//
// Derivation is a pure function: the signals for event i depend only on
// events[0..i] and the sport profile. No I/O, no clocks, no randomness.
package signal

import (
	"fmt"

	"github.com/courtline/courtline/internal/game"
)

// Tier boundaries over the absolute score margin.
const (
	tierOneMax   = 4
	tierTwoMax   = 9
	tierThreeMax = 14
)

// Signals is the derived view of one event.
type Signals struct {
	Index int
	// ScoreDelta is the total points scored on this event.
	ScoreDelta int
	// ScoringSide is who scored, or none for non-scoring events.
	ScoringSide game.Side
	// Margin is home minus away after the event.
	Margin int
	// LeadTier buckets |margin|: 0, 1-4, 5-9, 10-14, 15+.
	LeadTier int
	// Leader is the side ahead after the event.
	Leader game.Side
	// SecondsRemaining is the countdown clock within the period.
	SecondsRemaining int
	// Clutch marks final-period or overtime events inside the clutch window
	// with the margin under the sport's threshold.
	Clutch bool
	// Kind is the structural classification of the event.
	Kind game.Kind
}

// LeadTierOf buckets an absolute margin into a discrete tier.
func LeadTierOf(margin int) int {
	if margin < 0 {
		margin = -margin
	}
	switch {
	case margin == 0:
		return 0
	case margin <= tierOneMax:
		return 1
	case margin <= tierTwoMax:
		return 2
	case margin <= tierThreeMax:
		return 3
	default:
		return 4
	}
}

// Derive computes signals for every event. Events must already satisfy
// game.ValidateSequence.
func Derive(events []game.Event, profile game.Profile) ([]Signals, error) {
	derived := make([]Signals, 0, len(events))
	for i, evt := range events {
		remaining, err := game.ParseClock(evt.Clock)
		if err != nil {
			return nil, fmt.Errorf("derive signals for event %d: %w", i, err)
		}

		sig := Signals{
			Index:            evt.Index,
			Margin:           evt.Margin(),
			LeadTier:         LeadTierOf(evt.Margin()),
			Leader:           evt.Leader(),
			SecondsRemaining: remaining,
			Kind:             game.DetectKind(evt.Description),
		}

		if i > 0 {
			prev := events[i-1]
			homeDelta := evt.HomeScore - prev.HomeScore
			awayDelta := evt.AwayScore - prev.AwayScore
			sig.ScoreDelta = homeDelta + awayDelta
			switch {
			case homeDelta > 0:
				sig.ScoringSide = game.SideHome
			case awayDelta > 0:
				sig.ScoringSide = game.SideAway
			default:
				sig.ScoringSide = game.SideNone
			}
		} else {
			sig.ScoreDelta = evt.HomeScore + evt.AwayScore
			switch {
			case evt.HomeScore > 0:
				sig.ScoringSide = game.SideHome
			case evt.AwayScore > 0:
				sig.ScoringSide = game.SideAway
			default:
				sig.ScoringSide = game.SideNone
			}
		}

		margin := sig.Margin
		if margin < 0 {
			margin = -margin
		}
		sig.Clutch = evt.Period >= profile.FinalPeriod &&
			remaining <= profile.ClutchSeconds &&
			margin <= profile.ClutchMargin

		derived = append(derived, sig)
	}
	return derived, nil
}
