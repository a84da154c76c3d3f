package game

import (
	"strings"

	"github.com/courtline/courtline/internal/platform/errors"
)

// Sport identifies a supported sport.
type Sport string

const (
	// SportBasketball is the only sport registered today.
	SportBasketball Sport = "basketball"
)

// Profile carries the sport-specific tuning the segmentation algorithms use.
type Profile struct {
	// MomentBudget caps how many moments survive merging.
	MomentBudget int
	// FinalPeriod is the last scheduled period; later periods are overtime.
	FinalPeriod int
	// PeriodSeconds is the length of a regulation period.
	PeriodSeconds int
	// OvertimeSeconds is the length of an overtime period.
	OvertimeSeconds int
	// ClutchSeconds is the clock threshold for the clutch flag.
	ClutchSeconds int
	// ClutchMargin is the score margin threshold for crunch time.
	ClutchMargin int
	// RunPoints is the unanswered-point total that marks a run.
	RunPoints int
	// RunWindow is the rolling event window runs are detected within.
	RunWindow int
}

var profiles = map[Sport]Profile{
	SportBasketball: {
		MomentBudget:    30,
		FinalPeriod:     4,
		PeriodSeconds:   12 * 60,
		OvertimeSeconds: 5 * 60,
		ClutchSeconds:   5 * 60,
		ClutchMargin:    8,
		RunPoints:       8,
		RunWindow:       12,
	},
}

// ProfileFor resolves the tuning profile for a sport.
func ProfileFor(sport Sport) (Profile, error) {
	profile, ok := profiles[Sport(strings.ToLower(strings.TrimSpace(string(sport))))]
	if !ok {
		return Profile{}, errors.WithMetadata(errors.CodeSportUnknown,
			"no profile registered for sport",
			map[string]string{"sport": string(sport)})
	}
	return profile, nil
}
