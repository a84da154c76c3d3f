// Package chapter partitions an event sequence into contiguous structural
// scenes.
//
// Chapters are a complete partition: no gaps, no overlaps, first chapter
// starts at index zero, last chapter ends at the final index. Every chapter
// records why its opening boundary exists.
package chapter

import (
	"sort"

	"github.com/courtline/courtline/internal/game"
	"github.com/courtline/courtline/internal/narrative/signal"
)

// Reason is a code naming why a chapter boundary was opened.
type Reason string

const (
	// ReasonPeriodStart marks the first event of a period.
	ReasonPeriodStart Reason = "period-start"
	// ReasonOvertimeStart marks the first event past regulation.
	ReasonOvertimeStart Reason = "overtime-start"
	// ReasonTimeout marks a charged or official timeout.
	ReasonTimeout Reason = "timeout"
	// ReasonReview marks an official review or challenge.
	ReasonReview Reason = "review"
	// ReasonCrunchTime marks the first clutch event under the margin
	// threshold.
	ReasonCrunchTime Reason = "crunch-time"
	// ReasonRunStart marks the beginning of an unanswered scoring run.
	ReasonRunStart Reason = "run-start"
	// ReasonRunEndResponse marks the opponent score that ends a run.
	ReasonRunEndResponse Reason = "run-end-response"
	// ReasonFinal marks the final event of the game. Its boundary is always
	// absorbed into the preceding chapter.
	ReasonFinal Reason = "final"
)

// Chapter is one contiguous, gap-free event range.
type Chapter struct {
	Ordinal    int      `json:"ordinal"`
	StartIndex int      `json:"start_index"`
	EndIndex   int      `json:"end_index"`
	Reasons    []Reason `json:"reasons"`
}

// Build partitions events into chapters. Events must already satisfy
// game.ValidateSequence; signals must align one-to-one with events.
func Build(events []game.Event, signals []signal.Signals, profile game.Profile) []Chapter {
	if len(events) == 0 {
		return nil
	}

	boundaries := map[int][]Reason{
		0: {ReasonPeriodStart},
	}
	addReason := func(index int, reason Reason) {
		for _, existing := range boundaries[index] {
			if existing == reason {
				return
			}
		}
		boundaries[index] = append(boundaries[index], reason)
	}

	crunchSeen := false
	run := runTracker{profile: profile}

	for i, evt := range events {
		sig := signals[i]

		if i > 0 && evt.Period != events[i-1].Period {
			addReason(i, ReasonPeriodStart)
			if evt.Period > profile.FinalPeriod {
				addReason(i, ReasonOvertimeStart)
			}
		}
		switch sig.Kind {
		case game.KindTimeout:
			addReason(i, ReasonTimeout)
		case game.KindReview:
			addReason(i, ReasonReview)
		}
		if !crunchSeen && sig.Clutch {
			crunchSeen = true
			addReason(i, ReasonCrunchTime)
		}

		if startIdx, ok := run.observeRunStart(i, sig); ok {
			addReason(startIdx, ReasonRunStart)
		}
		if run.observeRunEnd(sig) {
			addReason(i, ReasonRunEndResponse)
		}
	}

	lastIndex := len(events) - 1
	addReason(lastIndex, ReasonFinal)

	// A boundary coincident with the last event is absorbed into the
	// preceding chapter, carrying its reasons along. No trailing zero-length
	// chapter can exist.
	if reasons, ok := boundaries[lastIndex]; ok && lastIndex > 0 {
		delete(boundaries, lastIndex)
		prev := previousBoundary(boundaries, lastIndex)
		for _, reason := range reasons {
			addReason(prev, reason)
		}
	}

	indices := make([]int, 0, len(boundaries))
	for index := range boundaries {
		indices = append(indices, index)
	}
	sort.Ints(indices)

	chapters := make([]Chapter, 0, len(indices))
	for n, start := range indices {
		end := lastIndex
		if n+1 < len(indices) {
			end = indices[n+1] - 1
		}
		chapters = append(chapters, Chapter{
			Ordinal:    n,
			StartIndex: start,
			EndIndex:   end,
			Reasons:    boundaries[start],
		})
	}
	return chapters
}

func previousBoundary(boundaries map[int][]Reason, before int) int {
	best := 0
	for index := range boundaries {
		if index < before && index > best {
			best = index
		}
	}
	return best
}

// runTracker detects unanswered scoring runs within a rolling event window.
type runTracker struct {
	profile game.Profile

	activeSide game.Side
	// scores holds recent scoring events as (index, side, points).
	scores []scoredEvent
}

type scoredEvent struct {
	index  int
	side   game.Side
	points int
}

// observeRunStart records a scoring event and reports the index where a run
// began when one side's unanswered total crosses the threshold. A run fires
// once; it must end before another can start.
func (r *runTracker) observeRunStart(i int, sig signal.Signals) (int, bool) {
	if sig.ScoreDelta <= 0 || sig.ScoringSide == game.SideNone {
		return 0, false
	}
	r.scores = append(r.scores, scoredEvent{index: i, side: sig.ScoringSide, points: sig.ScoreDelta})

	if r.activeSide != "" {
		return 0, false
	}

	// Walk back over this side's unanswered scores inside the window.
	total := 0
	start := i
	for j := len(r.scores) - 1; j >= 0; j-- {
		entry := r.scores[j]
		if i-entry.index >= r.profile.RunWindow {
			break
		}
		if entry.side != sig.ScoringSide {
			break
		}
		total += entry.points
		start = entry.index
	}
	if total >= r.profile.RunPoints {
		r.activeSide = sig.ScoringSide
		return start, true
	}
	return 0, false
}

// observeRunEnd reports whether this event is the opponent response that
// closes an active run.
func (r *runTracker) observeRunEnd(sig signal.Signals) bool {
	if r.activeSide == "" {
		return false
	}
	if sig.ScoreDelta <= 0 || sig.ScoringSide == game.SideNone {
		return false
	}
	if sig.ScoringSide == r.activeSide {
		return false
	}
	r.activeSide = ""
	return true
}

// Contiguous reports whether chapters exactly partition [0, lastIndex].
func Contiguous(chapters []Chapter, lastIndex int) bool {
	if len(chapters) == 0 {
		return lastIndex < 0
	}
	if chapters[0].StartIndex != 0 {
		return false
	}
	for i := 1; i < len(chapters); i++ {
		if chapters[i].StartIndex != chapters[i-1].EndIndex+1 {
			return false
		}
	}
	return chapters[len(chapters)-1].EndIndex == lastIndex
}
