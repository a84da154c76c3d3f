// Package game defines the play-by-play input records the pipeline consumes.
//
// Events arrive from the upstream normalization collaborator already
// deduplicated and identity-resolved. They are created once at ingestion and
// never mutated; every derived structure is a pure function of the ordered
// event sequence.
package game

import (
	"strconv"
	"strings"

	"github.com/courtline/courtline/internal/platform/errors"
)

// Side identifies which team an event or a score margin favors.
type Side string

const (
	// SideHome is the home team.
	SideHome Side = "home"
	// SideAway is the away team.
	SideAway Side = "away"
	// SideNone means neither side (tied margin, neutral event).
	SideNone Side = "none"
)

// Kind classifies structural events the chapterizer reacts to. It is derived
// during normalization from the event description.
type Kind string

const (
	// KindPlay is a regular gameplay event.
	KindPlay Kind = "play"
	// KindTimeout is a charged or official timeout.
	KindTimeout Kind = "timeout"
	// KindReview is an official review or coach's challenge.
	KindReview Kind = "review"
)

// Event is one immutable play-by-play record.
//
// Period and Index give the total order: index is unique and monotonic per
// game, and periods never interleave. HomeScore and AwayScore are running
// totals after the event. HighImpact is an optional upstream flag for events
// that are narratively significant independent of score.
type Event struct {
	Period      int    `json:"period"`
	Index       int    `json:"index"`
	Clock       string `json:"clock"`
	Description string `json:"description"`
	TeamRef     *int64 `json:"team_ref"`
	PlayerRef   *int64 `json:"player_ref"`
	HomeScore   int    `json:"home_score"`
	AwayScore   int    `json:"away_score"`
	HighImpact  bool   `json:"high_impact,omitempty"`
}

// Margin returns the home-minus-away score after the event.
func (e Event) Margin() int {
	return e.HomeScore - e.AwayScore
}

// Leader returns the side ahead after the event.
func (e Event) Leader() Side {
	margin := e.Margin()
	switch {
	case margin > 0:
		return SideHome
	case margin < 0:
		return SideAway
	default:
		return SideNone
	}
}

// DetectKind classifies an event from its description.
func DetectKind(description string) Kind {
	lowered := strings.ToLower(description)
	switch {
	case strings.Contains(lowered, "timeout"):
		return KindTimeout
	case strings.Contains(lowered, "review"), strings.Contains(lowered, "challenge"):
		return KindReview
	default:
		return KindPlay
	}
}

// ValidateSequence checks the input contract for an ordered event stream:
// indices contiguous from zero, periods non-decreasing, running scores
// non-negative and non-decreasing, clocks parseable.
func ValidateSequence(events []Event) error {
	if len(events) == 0 {
		return errors.New(errors.CodeEventSequenceEmpty, "event sequence is empty")
	}

	for i, evt := range events {
		if evt.Index != i {
			code := errors.CodeEventIndexGap
			if i > 0 && evt.Index == events[i-1].Index {
				code = errors.CodeEventIndexDuplicate
			}
			return errors.WithMetadata(code,
				"event index "+strconv.Itoa(i)+" is missing or out of order",
				map[string]string{
					"expected_index": strconv.Itoa(i),
					"actual_index":   strconv.Itoa(evt.Index),
				})
		}
		if evt.Period < 1 {
			return errors.New(errors.CodeEventOrderRegressed,
				"event "+strconv.Itoa(i)+" has period below 1")
		}
		if evt.HomeScore < 0 || evt.AwayScore < 0 {
			return errors.New(errors.CodeEventScoreNegative,
				"event "+strconv.Itoa(i)+" has a negative running score")
		}
		if _, err := ParseClock(evt.Clock); err != nil {
			return errors.Wrap(errors.CodeEventClockMalformed,
				"event "+strconv.Itoa(i)+" has a malformed clock", err)
		}
		if i == 0 {
			continue
		}
		prev := events[i-1]
		if evt.Period < prev.Period {
			return errors.New(errors.CodeEventOrderRegressed,
				"event "+strconv.Itoa(i)+" regresses to an earlier period")
		}
		if evt.HomeScore < prev.HomeScore || evt.AwayScore < prev.AwayScore {
			return errors.New(errors.CodeEventScoreNegative,
				"event "+strconv.Itoa(i)+" decreases a running score")
		}
	}
	return nil
}

// ParseClock parses a "MM:SS" countdown clock into seconds remaining in the
// period.
func ParseClock(clock string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(clock), ":", 2)
	if len(parts) != 2 {
		return 0, errors.New(errors.CodeEventClockMalformed, "clock must be MM:SS, got "+strconv.Quote(clock))
	}
	minutes, err := strconv.Atoi(parts[0])
	if err != nil || minutes < 0 {
		return 0, errors.New(errors.CodeEventClockMalformed, "clock minutes malformed in "+strconv.Quote(clock))
	}
	seconds, err := strconv.Atoi(parts[1])
	if err != nil || seconds < 0 || seconds > 59 {
		return 0, errors.New(errors.CodeEventClockMalformed, "clock seconds malformed in "+strconv.Quote(clock))
	}
	return minutes*60 + seconds, nil
}
