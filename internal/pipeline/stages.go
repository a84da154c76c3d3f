package pipeline

import (
	"context"
	"fmt"

	"github.com/courtline/courtline/internal/game"
	"github.com/courtline/courtline/internal/narrative/block"
	"github.com/courtline/courtline/internal/narrative/chapter"
	"github.com/courtline/courtline/internal/narrative/drama"
	"github.com/courtline/courtline/internal/narrative/moment"
	"github.com/courtline/courtline/internal/narrative/signal"
	"github.com/courtline/courtline/internal/narrative/validate"
	"github.com/courtline/courtline/internal/publish"
	"github.com/courtline/courtline/internal/render"
	"github.com/courtline/courtline/internal/storage"
)

// Stage names, in fixed execution order.
const (
	StageNormalize       = "normalize"
	StageGenerateMoments = "generate-moments"
	StageValidateMoments = "validate-moments"
	StageAnalyzeDrama    = "analyze-drama"
	StageGroupBlocks     = "group-blocks"
	StageRenderBlocks    = "render-blocks"
	StageValidateBlocks  = "validate-blocks"
	StageFinalize        = "finalize"
)

// StageNames lists every stage in declared order.
func StageNames() []string {
	return []string{
		StageNormalize,
		StageGenerateMoments,
		StageValidateMoments,
		StageAnalyzeDrama,
		StageGroupBlocks,
		StageRenderBlocks,
		StageValidateBlocks,
		StageFinalize,
	}
}

// runState is the typed carrier threaded through the stage list. Each stage
// reads the fields earlier stages produced and writes its own; the field set
// is closed, so a stage reaching for data that does not exist yet is a
// compile error rather than a runtime blob lookup.
type runState struct {
	run     storage.Run
	profile game.Profile

	events   []game.Event
	signals  []signal.Signals
	chapters []chapter.Chapter
	moments  []moment.Moment
	traces   []moment.Trace
	drama    []drama.ChapterScore
	blocks   []block.Block
	states   [][]byte
	issues   []render.Issue

	outcome publish.Outcome
}

// stageDef binds a stage name to its behavior. skip, when set, is consulted
// before execution; a true result records the stage as skipped without
// halting the run.
type stageDef struct {
	name string
	skip func(st *runState) (bool, string)
	run  func(ctx context.Context, st *runState) (string, error)
}

func (o *Orchestrator) stages() []stageDef {
	return []stageDef{
		{name: StageNormalize, run: o.stageNormalize},
		{name: StageGenerateMoments, run: o.stageGenerateMoments},
		{name: StageValidateMoments, run: o.stageValidateMoments},
		{name: StageAnalyzeDrama, skip: skipWithoutScoring, run: o.stageAnalyzeDrama},
		{name: StageGroupBlocks, run: o.stageGroupBlocks},
		{name: StageRenderBlocks, run: o.stageRenderBlocks},
		{name: StageValidateBlocks, run: o.stageValidateBlocks},
		{name: StageFinalize, run: o.stageFinalize},
	}
}

func (o *Orchestrator) stageNormalize(_ context.Context, st *runState) (string, error) {
	profile, err := game.ProfileFor(game.Sport(st.run.Sport))
	if err != nil {
		return "", err
	}
	st.profile = profile
	if err := game.ValidateSequence(st.events); err != nil {
		return "", err
	}
	return fmt.Sprintf("%d events validated", len(st.events)), nil
}

func (o *Orchestrator) stageGenerateMoments(ctx context.Context, st *runState) (string, error) {
	signals, err := signal.Derive(st.events, st.profile)
	if err != nil {
		return "", err
	}
	st.signals = signals
	st.chapters = chapter.Build(st.events, signals, st.profile)

	moments, traces, err := moment.Build(st.events, signals, st.profile)
	if err != nil {
		return "", err
	}
	st.moments = moments
	st.traces = traces

	if err := o.traces.AppendTraces(ctx, traceRecords(st.run.ID, traces)); err != nil {
		return "", err
	}
	return fmt.Sprintf("%d chapters, %d moments, %d trace entries", len(st.chapters), len(st.moments), len(traces)), nil
}

func (o *Orchestrator) stageValidateMoments(_ context.Context, st *runState) (string, error) {
	if err := validate.Chapters(st.events, st.chapters); err != nil {
		return "", err
	}
	if err := validate.Moments(st.events, st.moments, st.profile); err != nil {
		return "", err
	}
	return "partition and budget invariants hold", nil
}

func skipWithoutScoring(st *runState) (bool, string) {
	if !drama.HasScoring(st.signals) {
		return true, "no scoring events"
	}
	return false, ""
}

func (o *Orchestrator) stageAnalyzeDrama(_ context.Context, st *runState) (string, error) {
	st.drama = drama.Analyze(st.chapters, st.signals)
	return fmt.Sprintf("%d chapters scored", len(st.drama)), nil
}

func (o *Orchestrator) stageGroupBlocks(_ context.Context, st *runState) (string, error) {
	st.blocks = block.Group(st.events, st.moments)
	return fmt.Sprintf("%d blocks", len(st.blocks)), nil
}

func (o *Orchestrator) stageRenderBlocks(ctx context.Context, st *runState) (string, error) {
	result, err := o.renderer.Render(ctx, st.run.GameID, st.events, st.blocks)
	if err != nil {
		return "", err
	}
	st.blocks = result.Blocks
	st.states = result.States
	st.issues = result.Issues

	rendered := 0
	for _, b := range st.blocks {
		if b.Narrative != nil {
			rendered++
		}
	}
	return fmt.Sprintf("%d/%d blocks rendered, %d issues", rendered, len(st.blocks), len(st.issues)), nil
}

func (o *Orchestrator) stageValidateBlocks(_ context.Context, st *runState) (string, error) {
	if err := validate.Blocks(st.events, st.blocks, st.moments); err != nil {
		return "", err
	}
	if err := validate.StoryStates(st.events, st.blocks, st.states); err != nil {
		return "", err
	}
	return "block and story-state invariants hold", nil
}

func (o *Orchestrator) stageFinalize(ctx context.Context, st *runState) (string, error) {
	payload := publish.BuildPayload(
		st.run.GameID,
		st.run.Sport,
		st.chapters,
		st.moments,
		st.blocks,
		st.drama,
		st.issues,
	)
	outcome, err := o.publisher.Publish(ctx, st.run.ID, payload)
	if err != nil {
		return "", err
	}
	st.outcome = outcome
	if outcome.Noop {
		return fmt.Sprintf("payload unchanged at version %d", outcome.Version), nil
	}
	return fmt.Sprintf("version %d published", outcome.Version), nil
}

func traceRecords(runID string, traces []moment.Trace) []storage.Trace {
	records := make([]storage.Trace, 0, len(traces))
	for i, tr := range traces {
		records = append(records, storage.Trace{
			RunID:         runID,
			Sequence:      i,
			Action:        tr.Action,
			MomentType:    string(tr.Type),
			StartIndex:    tr.StartIndex,
			AbsorbedStart: tr.AbsorbedStart,
			Weight:        tr.Weight,
		})
	}
	return records
}
