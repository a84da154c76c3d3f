// Package block clusters moments into a handful of semantic blocks sized for
// rendering.
package block

import (
	"sort"

	"github.com/courtline/courtline/internal/game"
	"github.com/courtline/courtline/internal/narrative/moment"
)

// Role is the semantic slot a block plays in the story arc.
type Role string

const (
	// RoleSetup opens the story.
	RoleSetup Role = "setup"
	// RoleMomentumShift covers sustained swings and flagged turning points.
	RoleMomentumShift Role = "momentum-shift"
	// RoleResponse covers play that answers a prior shift.
	RoleResponse Role = "response"
	// RoleDecisionPoint covers lead changes that decide the game's direction.
	RoleDecisionPoint Role = "decision-point"
	// RoleResolution closes the story.
	RoleResolution Role = "resolution"
)

// Target block count bounds.
const (
	MinBlocks = 4
	MaxBlocks = 7
)

// keyEventDelta is the scoring delta at or above which an event is always
// part of the explicitly narrated subset.
const keyEventDelta = 3

// Score is a home/away score snapshot.
type Score struct {
	Home int `json:"home"`
	Away int `json:"away"`
}

// PlayerLine is one player's stat delta within a block.
type PlayerLine struct {
	PlayerRef int64 `json:"player_ref"`
	Points    int   `json:"points"`
}

// Block is a chronological grouping of moments with an assigned role.
type Block struct {
	Ordinal        int           `json:"ordinal"`
	MomentOrdinals []int         `json:"moment_ordinals"`
	MomentTypes    []moment.Type `json:"moment_types"`
	StartIndex     int           `json:"start_index"`
	EndIndex       int           `json:"end_index"`
	Role           Role          `json:"role"`
	ScoreBefore    Score         `json:"score_before"`
	ScoreAfter     Score         `json:"score_after"`
	KeyEventIDs    []int         `json:"key_event_ids"`
	BoxScore       []PlayerLine  `json:"box_score"`
	Narrative      *string       `json:"narrative"`
}

// EventCount returns how many events the block spans.
func (b Block) EventCount() int {
	return b.EndIndex - b.StartIndex + 1
}

// ContainsType reports whether any grouped moment has the given type.
func (b Block) ContainsType(t moment.Type) bool {
	for _, mt := range b.MomentTypes {
		if mt == t {
			return true
		}
	}
	return false
}

// Group clusters moments into blocks, assigns roles, and computes per-block
// snapshots. Starts with one block per moment and merges adjacent blocks,
// honoring hard splits, until the count fits MaxBlocks.
func Group(events []game.Event, moments []moment.Moment) []Block {
	if len(moments) == 0 {
		return nil
	}

	blocks := make([]Block, 0, len(moments))
	for _, m := range moments {
		blocks = append(blocks, Block{
			MomentOrdinals: []int{m.Ordinal},
			MomentTypes:    []moment.Type{m.Type},
			StartIndex:     m.StartIndex,
			EndIndex:       m.EndIndex,
		})
	}

	for len(blocks) > MaxBlocks {
		best := bestMergeIndex(events, blocks)
		blocks[best] = mergeBlocks(blocks[best], blocks[best+1])
		blocks = append(blocks[:best+1], blocks[best+2:]...)
	}

	for i := range blocks {
		blocks[i].Ordinal = i
		blocks[i].Role = assignRole(blocks[i], i, len(blocks))
		blocks[i].ScoreBefore = scoreBefore(events, blocks[i].StartIndex)
		blocks[i].ScoreAfter = scoreAt(events, blocks[i].EndIndex)
		blocks[i].KeyEventIDs = keyEvents(events, moments, blocks[i])
		blocks[i].BoxScore = boxScoreDelta(events, blocks[i].StartIndex, blocks[i].EndIndex)
	}
	return blocks
}

// bestMergeIndex picks the adjacent pair to merge: the allowed pair with the
// fewest combined events, leftmost on ties. When every remaining pair sits on
// a hard split, the overall smallest pair merges anyway so the cap holds.
func bestMergeIndex(events []game.Event, blocks []Block) int {
	bestAllowed, bestAllowedSize := -1, 0
	bestAny, bestAnySize := -1, 0
	for i := 0; i+1 < len(blocks); i++ {
		size := blocks[i].EventCount() + blocks[i+1].EventCount()
		if bestAny == -1 || size < bestAnySize {
			bestAny = i
			bestAnySize = size
		}
		if hardSplit(events, blocks[i], blocks[i+1]) {
			continue
		}
		if bestAllowed == -1 || size < bestAllowedSize {
			bestAllowed = i
			bestAllowedSize = size
		}
	}
	if bestAllowed >= 0 {
		return bestAllowed
	}
	return bestAny
}

// hardSplit reports whether a boundary between two adjacent blocks must be
// preserved: a period boundary past the first period, or a right block led
// by a flip or high-impact moment.
func hardSplit(events []game.Event, left, right Block) bool {
	leadType := right.MomentTypes[0]
	if leadType == moment.TypeFlip || leadType == moment.TypeHighImpact {
		return true
	}
	leftPeriod := events[left.EndIndex].Period
	rightPeriod := events[right.StartIndex].Period
	return rightPeriod != leftPeriod && rightPeriod > 1
}

func mergeBlocks(left, right Block) Block {
	return Block{
		MomentOrdinals: append(append([]int{}, left.MomentOrdinals...), right.MomentOrdinals...),
		MomentTypes:    append(append([]moment.Type{}, left.MomentTypes...), right.MomentTypes...),
		StartIndex:     left.StartIndex,
		EndIndex:       right.EndIndex,
	}
}

// assignRole applies the fixed role table: first block is setup, last is
// resolution, flips mark decision points, closing control and flagged events
// mark momentum shifts, everything else responds.
func assignRole(b Block, position, total int) Role {
	switch {
	case position == 0:
		return RoleSetup
	case position == total-1:
		return RoleResolution
	case b.ContainsType(moment.TypeFlip):
		return RoleDecisionPoint
	case b.ContainsType(moment.TypeClosingControl), b.ContainsType(moment.TypeHighImpact):
		return RoleMomentumShift
	default:
		return RoleResponse
	}
}

func scoreBefore(events []game.Event, startIndex int) Score {
	if startIndex == 0 {
		return Score{}
	}
	return scoreAt(events, startIndex-1)
}

func scoreAt(events []game.Event, index int) Score {
	return Score{Home: events[index].HomeScore, Away: events[index].AwayScore}
}

// keyEvents selects the explicitly narrated subset: moment openers and big
// scoring plays inside the block's range. Never empty — the closing event
// stands in when nothing else qualifies.
func keyEvents(events []game.Event, moments []moment.Moment, b Block) []int {
	selected := map[int]struct{}{}
	for _, ordinal := range b.MomentOrdinals {
		for _, m := range moments {
			if m.Ordinal == ordinal {
				selected[m.StartIndex] = struct{}{}
			}
		}
	}
	for i := b.StartIndex; i <= b.EndIndex; i++ {
		if i == 0 {
			continue
		}
		delta := (events[i].HomeScore + events[i].AwayScore) - (events[i-1].HomeScore + events[i-1].AwayScore)
		if delta >= keyEventDelta {
			selected[i] = struct{}{}
		}
	}
	if len(selected) == 0 {
		selected[b.EndIndex] = struct{}{}
	}

	ids := make([]int, 0, len(selected))
	for id := range selected {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// boxScoreDelta diffs cumulative per-player scoring snapshots at block start
// and end, returning the top contributors.
func boxScoreDelta(events []game.Event, startIndex, endIndex int) []PlayerLine {
	const topContributors = 3

	before := CumulativePoints(events, startIndex-1)
	after := CumulativePoints(events, endIndex)

	lines := make([]PlayerLine, 0, len(after))
	for ref, points := range after {
		delta := points - before[ref]
		if delta > 0 {
			lines = append(lines, PlayerLine{PlayerRef: ref, Points: delta})
		}
	}
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].Points != lines[j].Points {
			return lines[i].Points > lines[j].Points
		}
		return lines[i].PlayerRef < lines[j].PlayerRef
	})
	if len(lines) > topContributors {
		lines = lines[:topContributors]
	}
	return lines
}

// CumulativePoints attributes each scoring delta up to and including index to
// the event's player reference.
func CumulativePoints(events []game.Event, through int) map[int64]int {
	totals := map[int64]int{}
	for i := 0; i <= through && i < len(events); i++ {
		if events[i].PlayerRef == nil {
			continue
		}
		prevTotal := 0
		if i > 0 {
			prevTotal = events[i-1].HomeScore + events[i-1].AwayScore
		}
		delta := events[i].HomeScore + events[i].AwayScore - prevTotal
		if delta > 0 {
			totals[*events[i].PlayerRef] += delta
		}
	}
	return totals
}
