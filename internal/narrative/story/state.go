// Package story computes the running story state handed to each block's
// rendering step. The state for block k is a pure function of blocks
// [0..k-1]; nothing at or after k ever leaks into it.
package story

import (
	"encoding/json"
	"sort"
	"strconv"

	"github.com/courtline/courtline/internal/game"
	"github.com/courtline/courtline/internal/narrative/block"
	"github.com/courtline/courtline/internal/narrative/moment"
)

// Momentum hints describe which way the game was trending at the end of the
// prior block.
const (
	MomentumHomeRising = "home-rising"
	MomentumAwayRising = "away-rising"
	MomentumLevel      = "level"
)

// Theme tags accumulated from prior blocks.
const (
	ThemeLeadChanges  = "lead-changes"
	ThemeComeback     = "comeback"
	ThemeClosingPush  = "closing-push"
	ThemeVolatileGame = "volatile-game"
)

// State is the deterministic aggregate of everything that happened before
// the block being rendered.
type State struct {
	BlocksRendered int            `json:"blocks_rendered"`
	Score          block.Score    `json:"score"`
	PlayerPoints   map[string]int `json:"player_points"`
	Momentum       string         `json:"momentum"`
	Themes         []string       `json:"themes"`
}

// Build computes the state visible to block k from blocks [0..k-1]. Blocks
// at index k or later never influence the result.
func Build(events []game.Event, blocks []block.Block, k int) State {
	state := State{
		BlocksRendered: 0,
		PlayerPoints:   map[string]int{},
		Momentum:       MomentumLevel,
		Themes:         []string{},
	}
	if k <= 0 || len(blocks) == 0 {
		return state
	}
	if k > len(blocks) {
		k = len(blocks)
	}
	prior := blocks[:k]
	last := prior[len(prior)-1]

	state.BlocksRendered = len(prior)
	state.Score = last.ScoreAfter
	for ref, points := range block.CumulativePoints(events, last.EndIndex) {
		state.PlayerPoints[strconv.FormatInt(ref, 10)] = points
	}
	state.Momentum = momentumOf(last)
	state.Themes = themesOf(prior)
	return state
}

// Canonical serializes the state with stable key ordering so that repeated
// builds over the same prior blocks are byte-identical.
func (s State) Canonical() ([]byte, error) {
	return json.Marshal(s)
}

// momentumOf reads the trend off the most recent block's score movement.
func momentumOf(last block.Block) string {
	homeGain := last.ScoreAfter.Home - last.ScoreBefore.Home
	awayGain := last.ScoreAfter.Away - last.ScoreBefore.Away
	switch {
	case homeGain > awayGain:
		return MomentumHomeRising
	case awayGain > homeGain:
		return MomentumAwayRising
	default:
		return MomentumLevel
	}
}

// themesOf tags recurring narrative threads across the prior blocks. Tags
// come out sorted so the canonical encoding never depends on scan order.
func themesOf(prior []block.Block) []string {
	set := map[string]struct{}{}
	flips := 0
	for _, b := range prior {
		if b.ContainsType(moment.TypeFlip) {
			flips++
			set[ThemeLeadChanges] = struct{}{}
		}
		if b.ContainsType(moment.TypeCut) {
			set[ThemeComeback] = struct{}{}
		}
		if b.ContainsType(moment.TypeClosingControl) {
			set[ThemeClosingPush] = struct{}{}
		}
	}
	if flips >= 3 {
		set[ThemeVolatileGame] = struct{}{}
	}

	themes := make([]string, 0, len(set))
	for theme := range set {
		themes = append(themes, theme)
	}
	sort.Strings(themes)
	return themes
}
