package moment

import (
	"fmt"
	"strconv"

	"github.com/courtline/courtline/internal/game"
	"github.com/courtline/courtline/internal/narrative/signal"
)

// closingControlStreak is how many consecutive clutch events one side must
// hold the lead before a closing-control moment fires.
const closingControlStreak = 5

// Build detects raw candidate moments and merges them down to the sport
// budget. It returns the surviving moments plus the full audit trace of
// candidates and merge decisions.
func Build(events []game.Event, signals []signal.Signals, profile game.Profile) ([]Moment, []Trace, error) {
	if len(events) != len(signals) {
		return nil, nil, fmt.Errorf("events and signals length mismatch: %d != %d", len(events), len(signals))
	}
	if len(events) == 0 {
		return nil, nil, nil
	}

	candidates := detect(events, signals)
	traces := make([]Trace, 0, len(candidates))
	for _, c := range candidates {
		traces = append(traces, Trace{
			Action:        "candidate",
			Type:          c.Type,
			StartIndex:    c.StartIndex,
			AbsorbedStart: -1,
			Weight:        weight(c),
		})
	}

	merged, mergeTraces := mergeToBudget(candidates, profile.MomentBudget)
	traces = append(traces, mergeTraces...)

	for i := range merged {
		merged[i].Ordinal = i
	}
	return merged, traces, nil
}

// detect proposes one moment per ladder or structural transition. The first
// event always opens a moment, so the result is a complete partition.
func detect(events []game.Event, signals []signal.Signals) []Moment {
	type boundary struct {
		index  int
		kind   Type
		reason Reason
	}
	var boundaries []boundary

	leaderStreak := 0
	closingFired := false

	for i, evt := range events {
		sig := signals[i]

		if sig.Clutch && sig.Leader != game.SideNone {
			if i > 0 && signals[i-1].Leader == sig.Leader && signals[i-1].Clutch {
				leaderStreak++
			} else {
				leaderStreak = 1
			}
		} else {
			leaderStreak = 0
		}

		switch {
		case i == 0 || evt.Period != events[i-1].Period:
			boundaries = append(boundaries, boundary{
				index: i,
				kind:  TypeOpener,
				reason: Reason{
					Trigger:     TriggerPeriodOpen,
					ControlSide: game.SideNone,
					Delta:       "period " + strconv.Itoa(evt.Period) + " begins",
				},
			})
		case evt.HighImpact:
			boundaries = append(boundaries, boundary{
				index: i,
				kind:  TypeHighImpact,
				reason: Reason{
					Trigger:     TriggerFlag,
					ControlSide: sig.Leader,
					Delta:       "flagged: " + evt.Description,
				},
			})
		case flipped(signals[i-1], sig):
			boundaries = append(boundaries, boundary{
				index: i,
				kind:  TypeFlip,
				reason: Reason{
					Trigger:     TriggerFlip,
					ControlSide: sig.Leader,
					Delta:       string(sig.Leader) + " takes the lead",
				},
			})
		case sig.Margin == 0 && signals[i-1].Margin != 0:
			boundaries = append(boundaries, boundary{
				index: i,
				kind:  TypeTie,
				reason: Reason{
					Trigger:     TriggerTie,
					ControlSide: game.SideNone,
					Delta:       "game tied",
				},
			})
		case sig.LeadTier > signals[i-1].LeadTier:
			boundaries = append(boundaries, boundary{
				index: i,
				kind:  TypeLeadBuild,
				reason: Reason{
					Trigger:     TriggerTierUp,
					ControlSide: sig.Leader,
					Delta:       tierDelta(sig.Leader, signals[i-1].LeadTier, sig.LeadTier, "extends"),
				},
			})
		case sig.LeadTier < signals[i-1].LeadTier:
			boundaries = append(boundaries, boundary{
				index: i,
				kind:  TypeCut,
				reason: Reason{
					Trigger:     TriggerTierDown,
					ControlSide: trailing(sig.Leader),
					Delta:       tierDelta(trailing(sig.Leader), signals[i-1].LeadTier, sig.LeadTier, "cuts"),
				},
			})
		case !closingFired && leaderStreak >= closingControlStreak:
			closingFired = true
			boundaries = append(boundaries, boundary{
				index: i,
				kind:  TypeClosingControl,
				reason: Reason{
					Trigger:     TriggerClosing,
					ControlSide: sig.Leader,
					Delta:       string(sig.Leader) + " controls the close",
				},
			})
		}
	}

	moments := make([]Moment, 0, len(boundaries))
	lastIndex := len(events) - 1
	for n, b := range boundaries {
		end := lastIndex
		if n+1 < len(boundaries) {
			end = boundaries[n+1].index - 1
		}
		moments = append(moments, Moment{
			Type:       b.kind,
			StartIndex: b.index,
			EndIndex:   end,
			Swing:      spanSwing(signals, b.index, end),
			Reason:     b.reason,
		})
	}
	return moments
}

// spanSwing measures absolute margin movement from just before the span to
// its last event.
func spanSwing(signals []signal.Signals, start, end int) int {
	before := 0
	if start > 0 {
		before = signals[start-1].Margin
	}
	swing := signals[end].Margin - before
	if swing < 0 {
		swing = -swing
	}
	return swing
}

func flipped(prev, cur signal.Signals) bool {
	if prev.Leader == game.SideNone || cur.Leader == game.SideNone {
		return false
	}
	return prev.Leader != cur.Leader
}

func trailing(leader game.Side) game.Side {
	switch leader {
	case game.SideHome:
		return game.SideAway
	case game.SideAway:
		return game.SideHome
	default:
		return game.SideNone
	}
}

func tierDelta(side game.Side, fromTier, toTier int, verb string) string {
	return string(side) + " " + verb + " " + strconv.Itoa(fromTier) + ">" + strconv.Itoa(toTier)
}
