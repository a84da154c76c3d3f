// Package drama scores chapters by how much tension they carry: margin
// movement weighted up when it happens under clutch conditions.
package drama

import (
	"github.com/courtline/courtline/internal/game"
	"github.com/courtline/courtline/internal/narrative/chapter"
	"github.com/courtline/courtline/internal/narrative/signal"
)

// Scoring weights. Integer arithmetic keeps chapter ranking reproducible.
const (
	swingWeight       = 3
	clutchEventWeight = 5
	flipWeight        = 8
)

// ChapterScore is the drama rating for one chapter.
type ChapterScore struct {
	Ordinal int `json:"ordinal"`
	Score   int `json:"score"`
	Swing   int `json:"swing"`
	Clutch  int `json:"clutch_events"`
	Flips   int `json:"lead_flips"`
}

// HasScoring reports whether any event moved the score. Games without any
// scoring carry no drama signal and the analysis step does not apply.
func HasScoring(signals []signal.Signals) bool {
	for _, sig := range signals {
		if sig.ScoreDelta > 0 {
			return true
		}
	}
	return false
}

// Analyze rates every chapter. Swing is the total absolute margin movement
// inside the chapter; clutch events and lead flips push the score up further.
func Analyze(chapters []chapter.Chapter, signals []signal.Signals) []ChapterScore {
	scores := make([]ChapterScore, 0, len(chapters))
	for _, ch := range chapters {
		cs := ChapterScore{Ordinal: ch.Ordinal}
		for i := ch.StartIndex; i <= ch.EndIndex && i < len(signals); i++ {
			sig := signals[i]
			if i > 0 {
				move := sig.Margin - signals[i-1].Margin
				if move < 0 {
					move = -move
				}
				cs.Swing += move
				if leadFlipped(signals[i-1].Leader, sig.Leader) {
					cs.Flips++
				}
			}
			if sig.Clutch {
				cs.Clutch++
			}
		}
		cs.Score = cs.Swing*swingWeight + cs.Clutch*clutchEventWeight + cs.Flips*flipWeight
		scores = append(scores, cs)
	}
	return scores
}

func leadFlipped(prev, cur game.Side) bool {
	if prev == game.SideNone || cur == game.SideNone {
		return false
	}
	return prev != cur
}
