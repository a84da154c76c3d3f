package render

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/courtline/courtline/internal/game"
	"github.com/courtline/courtline/internal/narrative/block"
	"github.com/courtline/courtline/internal/narrative/story"
	"github.com/courtline/courtline/internal/platform/errors"
	"github.com/courtline/courtline/internal/platform/metrics"
	"github.com/courtline/courtline/internal/platform/timeouts"
)

// Retry policy for a single block's generation call.
const (
	maxAttempts     = 3
	initialInterval = 500 * time.Millisecond
)

// Issue records one non-fatal render failure. The run continues; the block
// keeps a null narrative.
type Issue struct {
	BlockOrdinal int    `json:"block_ordinal"`
	Code         string `json:"code"`
	Detail       string `json:"detail"`
}

// Result is the outcome of rendering every block.
type Result struct {
	Blocks []block.Block
	// States holds the canonical story-state encoding used for each block,
	// in block order, for later byte-identity validation.
	States [][]byte
	Issues []Issue
}

// Renderer walks blocks strictly in order and asks the generator for text.
// Single-threaded: block k is only rendered after block k-1 resolved, and
// only ever sees state built from blocks [0..k-1].
type Renderer struct {
	generator Generator
	metrics   *metrics.Manager
}

// NewRenderer builds a renderer around a generation capability.
func NewRenderer(generator Generator, m *metrics.Manager) *Renderer {
	return &Renderer{generator: generator, metrics: m}
}

// Render produces narrative text for each block. Transient generation
// failures retry with exponential backoff; a block that still fails keeps a
// null narrative and the failure is logged as an issue, never as a run
// error.
func (r *Renderer) Render(ctx context.Context, gameID string, events []game.Event, blocks []block.Block) (Result, error) {
	out := Result{
		Blocks: make([]block.Block, len(blocks)),
		States: make([][]byte, len(blocks)),
	}
	copy(out.Blocks, blocks)

	for k := range out.Blocks {
		if err := ctx.Err(); err != nil {
			return Result{}, errors.Wrap(errors.CodeRunCanceled, "render loop interrupted", err)
		}

		state := story.Build(events, out.Blocks, k)
		encoded, err := state.Canonical()
		if err != nil {
			return Result{}, errors.Wrap(errors.CodePersistence, "encode story state", err)
		}
		out.States[k] = encoded

		structural := out.Blocks[k]
		structural.Narrative = nil
		text, err := r.renderBlock(ctx, Request{GameID: gameID, Block: structural, State: state})
		if err != nil {
			if errors.CodeOf(err) == errors.CodeRunCanceled {
				return Result{}, err
			}
			if ctx.Err() != nil {
				return Result{}, errors.Wrap(errors.CodeRunCanceled, "render loop interrupted", ctx.Err())
			}
			code := errors.CodeOf(err)
			log.Printf("render: game %s block %d degraded to null narrative: %v", gameID, k, err)
			out.Issues = append(out.Issues, Issue{
				BlockOrdinal: k,
				Code:         string(code),
				Detail:       err.Error(),
			})
			continue
		}
		out.Blocks[k].Narrative = &text
	}
	return out, nil
}

// renderBlock performs one generation call with per-call timeout and bounded
// retry.
func (r *Renderer) renderBlock(ctx context.Context, req Request) (string, error) {
	operation := func() (string, error) {
		r.metrics.RenderAttempt()

		callCtx, cancel := context.WithTimeout(ctx, timeouts.RenderCall)
		defer cancel()

		res, err := r.generator.Generate(callCtx, req)
		if err != nil {
			if ctx.Err() != nil {
				return "", backoff.Permanent(errors.Wrap(errors.CodeRunCanceled, "generation canceled", ctx.Err()))
			}
			return "", errors.Wrap(errors.CodeRenderTransient, "generation call failed", err)
		}
		text := strings.TrimSpace(res.Narrative)
		if text == "" {
			return "", errors.New(errors.CodeRenderEmpty, "generation returned empty narrative")
		}
		return text, nil
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = initialInterval

	text, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(maxAttempts),
	)
	if err != nil {
		r.metrics.RenderFailure()
		return "", err
	}
	return text, nil
}
