// Package seed generates deterministic sample play-by-play streams for
// local development and demos.
package seed

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"

	"github.com/courtline/courtline/internal/game"
)

// NewSeed generates a high-entropy seed using crypto/rand. Callers that want
// reproducible streams pass their own seed instead.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

// Roster sizes per side; player refs are 100-offset so the two teams never
// collide.
const (
	playersPerTeam       = 8
	homePlayerBase int64 = 100
	awayPlayerBase int64 = 200

	homeTeamRef int64 = 1
	awayTeamRef int64 = 2
)

func ref(v int64) *int64 {
	return &v
}

// Generate builds a complete regulation game for the profile. The same seed
// always yields the same stream, so repeated runs over a generated game
// exercise the republish-noop path.
func Generate(profile game.Profile, seed int64) []game.Event {
	rng := rand.New(rand.NewSource(seed))

	var events []game.Event
	index := 0
	home, away := 0, 0

	for period := 1; period <= profile.FinalPeriod; period++ {
		remaining := profile.PeriodSeconds

		events = append(events, game.Event{
			Period:      period,
			Index:       index,
			Clock:       clockString(remaining),
			Description: periodOpener(period),
			HomeScore:   home,
			AwayScore:   away,
		})
		index++

		for remaining > 0 {
			remaining -= 15 + rng.Intn(25)
			if remaining < 0 {
				remaining = 0
			}

			evt := game.Event{
				Period:    period,
				Index:     index,
				Clock:     clockString(remaining),
				HomeScore: home,
				AwayScore: away,
			}
			homeBall := rng.Intn(2) == 0
			if homeBall {
				evt.TeamRef = ref(homeTeamRef)
				evt.PlayerRef = ref(homePlayerBase + int64(rng.Intn(playersPerTeam)))
			} else {
				evt.TeamRef = ref(awayTeamRef)
				evt.PlayerRef = ref(awayPlayerBase + int64(rng.Intn(playersPerTeam)))
			}

			points, description, highImpact := nextPlay(rng, remaining, period, profile)
			evt.Description = description
			evt.HighImpact = highImpact
			if points > 0 {
				if homeBall {
					home += points
				} else {
					away += points
				}
				evt.HomeScore = home
				evt.AwayScore = away
			}

			events = append(events, evt)
			index++
		}
	}
	return events
}

// nextPlay picks one play. Scoring plays dominate so the derived signals have
// lead changes and runs to work with; late close games lean on timeouts.
func nextPlay(rng *rand.Rand, remaining, period int, profile game.Profile) (points int, description string, highImpact bool) {
	roll := rng.Intn(100)
	switch {
	case roll < 35:
		descriptions := []string{"driving layup", "pull-up jumper", "turnaround fade", "putback"}
		return 2, descriptions[rng.Intn(len(descriptions))], false
	case roll < 43:
		return 2, "alley-oop dunk", true
	case roll < 58:
		descriptions := []string{"corner three", "three pointer from the wing", "step-back three"}
		return 3, descriptions[rng.Intn(len(descriptions))], roll < 46
	case roll < 66:
		if rng.Intn(2) == 0 {
			return 1, "free throw 1 of 2", false
		}
		return 2, "free throws 2 of 2", false
	case roll < 72:
		if period >= profile.FinalPeriod && remaining <= profile.ClutchSeconds {
			return 0, "full timeout", false
		}
		return 0, "shot clock turnover", false
	case roll < 80:
		return 0, "defensive rebound", false
	case roll < 88:
		return 0, "steal and outlet", rng.Intn(4) == 0
	case roll < 94:
		return 0, "blocked shot", rng.Intn(3) == 0
	default:
		return 0, "personal foul", false
	}
}

func periodOpener(period int) string {
	if period == 1 {
		return "tip-off"
	}
	return fmt.Sprintf("start of period %d", period)
}

func clockString(remaining int) string {
	return fmt.Sprintf("%d:%02d", remaining/60, remaining%60)
}
