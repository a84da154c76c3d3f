// Package validate enforces the structural invariants of a finished
// segmentation: complete partitions, monotonic ordering, narrated subsets,
// and reproducible story state. It runs once after moment generation and
// again after rendering; any failure halts the run before publication.
package validate

import (
	"bytes"
	"strconv"

	"github.com/courtline/courtline/internal/game"
	"github.com/courtline/courtline/internal/narrative/block"
	"github.com/courtline/courtline/internal/narrative/chapter"
	"github.com/courtline/courtline/internal/narrative/moment"
	"github.com/courtline/courtline/internal/narrative/story"
	"github.com/courtline/courtline/internal/platform/errors"
)

// Moments checks that the moments form a complete partition of the event
// range, in order, within the sport budget.
func Moments(events []game.Event, moments []moment.Moment, profile game.Profile) error {
	if len(moments) > profile.MomentBudget {
		return errors.WithMetadata(errors.CodeMomentBudgetExceeded, "moment count exceeds sport budget", map[string]string{
			"count":  strconv.Itoa(len(moments)),
			"budget": strconv.Itoa(profile.MomentBudget),
		})
	}
	spans := make([]span, 0, len(moments))
	for _, m := range moments {
		spans = append(spans, span{start: m.StartIndex, end: m.EndIndex})
	}
	return partition(spans, len(events))
}

// Chapters checks chapter contiguity: first chapter starts at 0, each chapter
// begins right after its predecessor ends, last chapter ends at the final
// event.
func Chapters(events []game.Event, chapters []chapter.Chapter) error {
	spans := make([]span, 0, len(chapters))
	for _, ch := range chapters {
		spans = append(spans, span{start: ch.StartIndex, end: ch.EndIndex})
	}
	if err := partition(spans, len(events)); err != nil {
		return errors.Wrap(errors.CodeChapterNotContiguous, "chapters do not partition the event range", err)
	}
	return nil
}

// Blocks checks block count bounds, chronological ordering, and the narrated
// subset rule: whenever a block carries narrative text, its key event set
// must be a non-empty subset of the block's event range.
func Blocks(events []game.Event, blocks []block.Block, moments []moment.Moment) error {
	if len(blocks) > block.MaxBlocks {
		return errors.WithMetadata(errors.CodeBlockCountOutOfRange, "too many blocks", map[string]string{
			"count": strconv.Itoa(len(blocks)),
			"max":   strconv.Itoa(block.MaxBlocks),
		})
	}
	// Fewer than MinBlocks is tolerated only when the moment count itself is
	// below the floor; a short game cannot be stretched into four blocks.
	if len(blocks) < block.MinBlocks && len(moments) >= block.MinBlocks {
		return errors.WithMetadata(errors.CodeBlockCountOutOfRange, "too few blocks", map[string]string{
			"count": strconv.Itoa(len(blocks)),
			"min":   strconv.Itoa(block.MinBlocks),
		})
	}

	spans := make([]span, 0, len(blocks))
	for i, b := range blocks {
		spans = append(spans, span{start: b.StartIndex, end: b.EndIndex})
		if err := orderedOrdinals(b.MomentOrdinals); err != nil {
			return errors.WithMetadata(errors.CodeBlockOrderRegressed, "block moment ordinals regress", map[string]string{
				"block": strconv.Itoa(i),
			})
		}
		if i > 0 && clockOrderRegressed(events, blocks[i-1], b) {
			return errors.WithMetadata(errors.CodeBlockOrderRegressed, "block start regresses in game time", map[string]string{
				"block": strconv.Itoa(i),
			})
		}
		if err := narratedSubset(b); err != nil {
			return err
		}
	}
	if err := partition(spans, len(events)); err != nil {
		return err
	}
	return nil
}

// StoryStates recomputes the state for every block from scratch and compares
// it byte-for-byte against the persisted encodings.
func StoryStates(events []game.Event, blocks []block.Block, persisted [][]byte) error {
	if len(persisted) != len(blocks) {
		return errors.WithMetadata(errors.CodeStoryStateDiverged, "persisted state count mismatch", map[string]string{
			"blocks":    strconv.Itoa(len(blocks)),
			"persisted": strconv.Itoa(len(persisted)),
		})
	}
	for k := range blocks {
		fresh, err := story.Build(events, blocks, k).Canonical()
		if err != nil {
			return errors.Wrap(errors.CodeStoryStateDiverged, "recompute story state", err)
		}
		if !bytes.Equal(fresh, persisted[k]) {
			return errors.WithMetadata(errors.CodeStoryStateDiverged, "story state not reproducible", map[string]string{
				"block": strconv.Itoa(k),
			})
		}
	}
	return nil
}

type span struct {
	start, end int
}

// partition verifies that spans cover [0, total) contiguously with no gaps,
// overlaps, or regressions.
func partition(spans []span, total int) error {
	if total == 0 && len(spans) == 0 {
		return nil
	}
	if len(spans) == 0 {
		return errors.New(errors.CodePartitionGap, "no spans cover the event range")
	}
	if spans[0].start != 0 {
		return errors.WithMetadata(errors.CodePartitionGap, "first span does not start at zero", map[string]string{
			"start": strconv.Itoa(spans[0].start),
		})
	}
	for i, s := range spans {
		if s.end < s.start {
			return errors.WithMetadata(errors.CodePartitionOverlap, "span ends before it starts", map[string]string{
				"span": strconv.Itoa(i),
			})
		}
		if i == 0 {
			continue
		}
		prev := spans[i-1]
		switch {
		case s.start == prev.end+1:
		case s.start <= prev.end:
			return errors.WithMetadata(errors.CodePartitionOverlap, "spans overlap", map[string]string{
				"span":       strconv.Itoa(i),
				"start":      strconv.Itoa(s.start),
				"prior_end":  strconv.Itoa(prev.end),
				"prior_span": strconv.Itoa(i - 1),
			})
		default:
			return errors.WithMetadata(errors.CodePartitionGap, "gap between spans", map[string]string{
				"span":      strconv.Itoa(i),
				"start":     strconv.Itoa(s.start),
				"prior_end": strconv.Itoa(prev.end),
			})
		}
	}
	if last := spans[len(spans)-1].end; last != total-1 {
		return errors.WithMetadata(errors.CodePartitionGap, "last span does not reach the final event", map[string]string{
			"end":  strconv.Itoa(last),
			"want": strconv.Itoa(total - 1),
		})
	}
	return nil
}

func orderedOrdinals(ordinals []int) error {
	for i := 1; i < len(ordinals); i++ {
		if ordinals[i] <= ordinals[i-1] {
			return errors.New(errors.CodeBlockOrderRegressed, "ordinals not strictly increasing")
		}
	}
	return nil
}

// clockOrderRegressed reports whether the later block starts earlier in game
// time than the prior block ended: an earlier period, or a later point on the
// same period's countdown clock.
func clockOrderRegressed(events []game.Event, prev, cur block.Block) bool {
	prevEvt := events[prev.EndIndex]
	curEvt := events[cur.StartIndex]
	if curEvt.Period < prevEvt.Period {
		return true
	}
	if curEvt.Period > prevEvt.Period {
		return false
	}
	prevClock, err := game.ParseClock(prevEvt.Clock)
	if err != nil {
		return false
	}
	curClock, err := game.ParseClock(curEvt.Clock)
	if err != nil {
		return false
	}
	return curClock > prevClock
}

// narratedSubset enforces the key-event rule for rendered blocks.
func narratedSubset(b block.Block) error {
	if b.Narrative == nil {
		return nil
	}
	if len(b.KeyEventIDs) == 0 {
		return errors.WithMetadata(errors.CodeNarratedSetInvalid, "rendered block has no narrated events", map[string]string{
			"block": strconv.Itoa(b.Ordinal),
		})
	}
	for _, id := range b.KeyEventIDs {
		if id < b.StartIndex || id > b.EndIndex {
			return errors.WithMetadata(errors.CodeNarratedSetInvalid, "narrated event outside block range", map[string]string{
				"block": strconv.Itoa(b.Ordinal),
				"event": strconv.Itoa(id),
			})
		}
	}
	return nil
}
