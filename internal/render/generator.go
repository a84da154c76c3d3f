// Package render turns finalized blocks into narrative text by calling an
// external text-generation capability, one block at a time, in order.
package render

import (
	"context"

	"github.com/courtline/courtline/internal/narrative/block"
	"github.com/courtline/courtline/internal/narrative/story"
)

// Request carries one block's structural fields plus the story state built
// from strictly prior blocks. The block's Narrative field is always nil on
// the way in.
type Request struct {
	GameID string      `json:"game_id"`
	Block  block.Block `json:"block"`
	State  story.State `json:"story_state"`
}

// Response is the generated narrative for one block.
type Response struct {
	Narrative string `json:"narrative"`
}

// Generator is the swappable text-generation capability.
type Generator interface {
	Generate(ctx context.Context, req Request) (Response, error)
}
