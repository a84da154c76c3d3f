package render

import (
	"context"
	"fmt"
	"strings"

	"github.com/courtline/courtline/internal/narrative/block"
	"github.com/courtline/courtline/internal/narrative/story"
)

type staticGenerator struct{}

// NewStaticGenerator builds an offline generator that composes a plain
// factual sentence from the block's structural fields. Used when no
// generation endpoint is configured, and in tests.
func NewStaticGenerator() Generator {
	return staticGenerator{}
}

func (staticGenerator) Generate(_ context.Context, req Request) (Response, error) {
	return Response{Narrative: describe(req.Block, req.State)}, nil
}

func describe(b block.Block, state story.State) string {
	var sb strings.Builder
	sb.WriteString(roleLede(b.Role))
	fmt.Fprintf(&sb, " the score moved from %d-%d to %d-%d across %d plays",
		b.ScoreBefore.Home, b.ScoreBefore.Away,
		b.ScoreAfter.Home, b.ScoreAfter.Away,
		b.EventCount())
	if len(b.BoxScore) > 0 {
		fmt.Fprintf(&sb, ", led by player %d with %d points in the stretch",
			b.BoxScore[0].PlayerRef, b.BoxScore[0].Points)
	}
	sb.WriteString(".")
	if state.Momentum == story.MomentumHomeRising {
		sb.WriteString(" The home side carried the momentum in.")
	} else if state.Momentum == story.MomentumAwayRising {
		sb.WriteString(" The visitors carried the momentum in.")
	}
	return sb.String()
}

func roleLede(role block.Role) string {
	switch role {
	case block.RoleSetup:
		return "To open the game,"
	case block.RoleMomentumShift:
		return "The game turned as"
	case block.RoleDecisionPoint:
		return "At the decisive stretch,"
	case block.RoleResolution:
		return "To close it out,"
	default:
		return "In response,"
	}
}
