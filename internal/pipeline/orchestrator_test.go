package pipeline

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/courtline/courtline/internal/game"
	"github.com/courtline/courtline/internal/platform/errors"
	"github.com/courtline/courtline/internal/platform/metrics"
	"github.com/courtline/courtline/internal/publish"
	"github.com/courtline/courtline/internal/render"
	"github.com/courtline/courtline/internal/storage"
	"github.com/courtline/courtline/internal/storage/sqlite"
)

func newOrchestrator(t *testing.T, generator render.Generator) (*Orchestrator, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "pipeline.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	m := metrics.New()
	o := New(Config{
		Runs:      store,
		Stages:    store,
		Traces:    store,
		Renderer:  render.NewRenderer(generator, m),
		Publisher: publish.New(store, m),
		Metrics:   m,
	})
	return o, store
}

// scoredEvents is the five-event opening: 0-0, 2-0, 2-2, 2-2 (timeout), 5-2.
func scoredEvents() []game.Event {
	return []game.Event{
		{Period: 1, Index: 0, Clock: "12:00", Description: "tip-off"},
		{Period: 1, Index: 1, Clock: "11:30", Description: "layup", HomeScore: 2},
		{Period: 1, Index: 2, Clock: "11:00", Description: "jumper", HomeScore: 2, AwayScore: 2},
		{Period: 1, Index: 3, Clock: "10:40", Description: "full timeout", HomeScore: 2, AwayScore: 2},
		{Period: 1, Index: 4, Clock: "10:20", Description: "three pointer", HomeScore: 5, AwayScore: 2},
	}
}

func TestTriggerRunsToCompletion(t *testing.T) {
	o, store := newOrchestrator(t, render.NewStaticGenerator())
	ctx := context.Background()

	run, err := o.Trigger(ctx, "game-1", "basketball", scoredEvents())
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if run.Status != storage.RunStatusCompleted {
		t.Fatalf("status = %q (%s), want completed", run.Status, run.ErrorDetail)
	}
	if run.ArtifactID == "" {
		t.Fatal("completed run has no artifact id")
	}

	stages, err := store.ListStages(ctx, run.ID)
	if err != nil {
		t.Fatalf("list stages: %v", err)
	}
	if len(stages) != len(StageNames()) {
		t.Fatalf("stages = %d, want %d", len(stages), len(StageNames()))
	}
	for i, stage := range stages {
		if stage.Name != StageNames()[i] {
			t.Fatalf("stage %d = %q, want %q", i, stage.Name, StageNames()[i])
		}
		if stage.Status != storage.StageStatusSuccess {
			t.Fatalf("stage %s status = %q, want success", stage.Name, stage.Status)
		}
	}

	active, err := store.GetActiveVersion(ctx, "game-1")
	if err != nil {
		t.Fatalf("get active version: %v", err)
	}
	if active.ID != run.ArtifactID || active.Version != 1 {
		t.Fatalf("active version = %+v, want version 1 matching artifact", active)
	}

	var payload publish.Payload
	if err := json.Unmarshal(active.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	// Tie at event 2, lead build at event 4.
	foundTie, foundLeadBuild := false, false
	for _, m := range payload.Moments {
		if m.Type == "tie" && m.StartIndex == 2 {
			foundTie = true
		}
		if m.Type == "lead-build" && m.StartIndex == 4 {
			foundLeadBuild = true
		}
	}
	if !foundTie || !foundLeadBuild {
		t.Fatalf("moments = %+v, want tie at 2 and lead-build at 4", payload.Moments)
	}
	// The timeout opens a chapter boundary.
	boundaryAtTimeout := false
	for _, ch := range payload.Timeline.Chapters {
		if ch.StartIndex == 3 {
			boundaryAtTimeout = true
		}
	}
	if !boundaryAtTimeout {
		t.Fatalf("chapters = %+v, want a boundary at the timeout event", payload.Timeline.Chapters)
	}

	traces, err := store.ListTraces(ctx, run.ID)
	if err != nil {
		t.Fatalf("list traces: %v", err)
	}
	if len(traces) == 0 {
		t.Fatal("no moment traces persisted")
	}
}

func TestRetriggerUnchangedStreamIsIdempotent(t *testing.T) {
	o, store := newOrchestrator(t, render.NewStaticGenerator())
	ctx := context.Background()

	first, err := o.Trigger(ctx, "game-1", "basketball", scoredEvents())
	if err != nil {
		t.Fatalf("first trigger: %v", err)
	}
	second, err := o.Trigger(ctx, "game-1", "basketball", scoredEvents())
	if err != nil {
		t.Fatalf("second trigger: %v", err)
	}
	if second.Status != storage.RunStatusCompleted {
		t.Fatalf("second run status = %q (%s), want completed", second.Status, second.ErrorDetail)
	}
	if second.ArtifactID != first.ArtifactID {
		t.Fatalf("artifact = %q, want %q from first run", second.ArtifactID, first.ArtifactID)
	}

	versions, err := store.ListVersions(ctx, "game-1")
	if err != nil {
		t.Fatalf("list versions: %v", err)
	}
	if len(versions) != 1 {
		t.Fatalf("versions = %d, want 1 after idempotent retrigger", len(versions))
	}

	runs, err := store.ListRuns(ctx, "game-1")
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs = %d, want both runs preserved", len(runs))
	}
}

type failingBlockGenerator struct {
	failOrdinal int
}

func (g failingBlockGenerator) Generate(_ context.Context, req render.Request) (render.Response, error) {
	if req.Block.Ordinal == g.failOrdinal {
		return render.Response{}, fmt.Errorf("upstream timeout")
	}
	return render.Response{Narrative: fmt.Sprintf("narrative for block %d", req.Block.Ordinal)}, nil
}

func TestRenderFailureIsNonFatal(t *testing.T) {
	o, store := newOrchestrator(t, failingBlockGenerator{failOrdinal: 1})
	ctx := context.Background()

	run, err := o.Trigger(ctx, "game-1", "basketball", scoredEvents())
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if run.Status != storage.RunStatusCompleted {
		t.Fatalf("status = %q (%s), want completed despite render failure", run.Status, run.ErrorDetail)
	}

	active, err := store.GetActiveVersion(ctx, "game-1")
	if err != nil {
		t.Fatalf("get active version: %v", err)
	}
	var payload publish.Payload
	if err := json.Unmarshal(active.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Timeline.Blocks[1].Narrative != nil {
		t.Fatal("failed block narrative should be null")
	}
	for _, i := range []int{0, 2} {
		if payload.Timeline.Blocks[i].Narrative == nil {
			t.Fatalf("block %d narrative is null, want text", i)
		}
	}
	if len(payload.Summary.RenderIssues) != 1 {
		t.Fatalf("render issues = %d, want 1", len(payload.Summary.RenderIssues))
	}
}

func TestIndexGapFailsNormalize(t *testing.T) {
	o, store := newOrchestrator(t, render.NewStaticGenerator())
	ctx := context.Background()

	events := []game.Event{
		{Period: 1, Index: 0, Clock: "12:00", Description: "tip-off"},
		{Period: 1, Index: 1, Clock: "11:30", Description: "layup", HomeScore: 2},
		{Period: 1, Index: 3, Clock: "11:00", Description: "jumper", HomeScore: 4},
	}
	run, err := o.Trigger(ctx, "game-1", "basketball", events)
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if run.Status != storage.RunStatusFailed {
		t.Fatalf("status = %q, want failed", run.Status)
	}
	if !strings.Contains(run.ErrorDetail, "index 2") {
		t.Fatalf("error detail = %q, want the missing index named", run.ErrorDetail)
	}

	stages, err := store.ListStages(ctx, run.ID)
	if err != nil {
		t.Fatalf("list stages: %v", err)
	}
	if len(stages) != 1 || stages[0].Name != StageNormalize {
		t.Fatalf("stages = %+v, want only the failed normalize stage", stages)
	}
	if stages[0].Status != storage.StageStatusFailed {
		t.Fatalf("normalize status = %q, want failed", stages[0].Status)
	}

	if _, err := store.GetActiveVersion(ctx, "game-1"); !stderrors.Is(err, storage.ErrNotFound) {
		t.Fatalf("active version = %v, want ErrNotFound", err)
	}
	traces, err := store.ListTraces(ctx, run.ID)
	if err != nil {
		t.Fatalf("list traces: %v", err)
	}
	if len(traces) != 0 {
		t.Fatalf("traces = %d, want none persisted", len(traces))
	}
}

func TestDramaSkippedWithoutScoring(t *testing.T) {
	o, store := newOrchestrator(t, render.NewStaticGenerator())
	ctx := context.Background()

	events := []game.Event{
		{Period: 1, Index: 0, Clock: "12:00", Description: "tip-off"},
		{Period: 1, Index: 1, Clock: "11:30", Description: "missed jumper"},
		{Period: 1, Index: 2, Clock: "11:00", Description: "defensive rebound"},
	}
	run, err := o.Trigger(ctx, "game-1", "basketball", events)
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if run.Status != storage.RunStatusCompleted {
		t.Fatalf("status = %q (%s), want completed", run.Status, run.ErrorDetail)
	}

	stages, err := store.ListStages(ctx, run.ID)
	if err != nil {
		t.Fatalf("list stages: %v", err)
	}
	var dramaStatus string
	for _, stage := range stages {
		if stage.Name == StageAnalyzeDrama {
			dramaStatus = stage.Status
		}
	}
	if dramaStatus != storage.StageStatusSkipped {
		t.Fatalf("analyze-drama status = %q, want skipped", dramaStatus)
	}
}

type blockingGenerator struct {
	started chan struct{}
	release chan struct{}
}

func (g *blockingGenerator) Generate(ctx context.Context, req render.Request) (render.Response, error) {
	if req.Block.Ordinal == 0 {
		select {
		case g.started <- struct{}{}:
		default:
		}
		select {
		case <-g.release:
		case <-ctx.Done():
			return render.Response{}, ctx.Err()
		}
	}
	return render.Response{Narrative: "text"}, nil
}

func TestSecondTriggerRejectedWhileInFlight(t *testing.T) {
	gen := &blockingGenerator{started: make(chan struct{}, 1), release: make(chan struct{})}
	o, _ := newOrchestrator(t, gen)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := o.Trigger(ctx, "game-1", "basketball", scoredEvents())
		done <- err
	}()

	select {
	case <-gen.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first run never reached the render stage")
	}

	_, err := o.Trigger(ctx, "game-1", "basketball", scoredEvents())
	if errors.CodeOf(err) != errors.CodeRunInFlight {
		t.Fatalf("second trigger code = %v, want run in flight", errors.CodeOf(err))
	}

	close(gen.release)
	if err := <-done; err != nil {
		t.Fatalf("first trigger: %v", err)
	}
}

func TestCancelBetweenStages(t *testing.T) {
	gen := &blockingGenerator{started: make(chan struct{}, 1), release: make(chan struct{})}
	o, store := newOrchestrator(t, gen)
	ctx := context.Background()

	type result struct {
		run storage.Run
		err error
	}
	done := make(chan result, 1)
	go func() {
		run, err := o.Trigger(ctx, "game-1", "basketball", scoredEvents())
		done <- result{run: run, err: err}
	}()

	select {
	case <-gen.started:
	case <-time.After(5 * time.Second):
		t.Fatal("run never reached the render stage")
	}

	inFlight, err := store.GetInFlightRun(ctx, "game-1")
	if err != nil {
		t.Fatalf("get in-flight run: %v", err)
	}
	if err := o.Cancel(ctx, inFlight.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	close(gen.release)

	res := <-done
	if res.err != nil {
		t.Fatalf("trigger: %v", res.err)
	}
	if res.run.Status != storage.RunStatusCanceled {
		t.Fatalf("status = %q, want canceled", res.run.Status)
	}

	// Stage outputs written before the cancel stay readable.
	stages, err := store.ListStages(ctx, res.run.ID)
	if err != nil {
		t.Fatalf("list stages: %v", err)
	}
	if len(stages) == 0 {
		t.Fatal("expected persisted stages from before the cancel")
	}
	if _, err := store.GetActiveVersion(ctx, "game-1"); !stderrors.Is(err, storage.ErrNotFound) {
		t.Fatalf("active version = %v, want nothing published", err)
	}

	if err := o.Cancel(ctx, res.run.ID); errors.CodeOf(err) != errors.CodeRunTerminal {
		t.Fatalf("cancel terminal run code = %v, want run terminal", errors.CodeOf(err))
	}
	if err := o.Cancel(ctx, "missing"); errors.CodeOf(err) != errors.CodeRunNotFound {
		t.Fatalf("cancel missing run code = %v, want run not found", errors.CodeOf(err))
	}
}

type slowGenerator struct{}

func (slowGenerator) Generate(ctx context.Context, _ render.Request) (render.Response, error) {
	select {
	case <-ctx.Done():
		return render.Response{}, ctx.Err()
	case <-time.After(2 * time.Second):
		return render.Response{Narrative: "text"}, nil
	}
}

func TestStageTimeoutFailsRun(t *testing.T) {
	o, store := newOrchestrator(t, slowGenerator{})
	o.stageTimeout = 100 * time.Millisecond
	ctx := context.Background()

	run, err := o.Trigger(ctx, "game-1", "basketball", scoredEvents())
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if run.Status != storage.RunStatusFailed {
		t.Fatalf("status = %q, want failed", run.Status)
	}

	stages, err := store.ListStages(ctx, run.ID)
	if err != nil {
		t.Fatalf("list stages: %v", err)
	}
	var renderStage storage.Stage
	for _, stage := range stages {
		if stage.Name == StageRenderBlocks {
			renderStage = stage
		}
	}
	if renderStage.Status != storage.StageStatusFailed {
		t.Fatalf("render stage status = %q, want failed", renderStage.Status)
	}
}

func TestTriggerRequiresGameID(t *testing.T) {
	o, _ := newOrchestrator(t, render.NewStaticGenerator())
	if _, err := o.Trigger(context.Background(), "  ", "basketball", scoredEvents()); errors.CodeOf(err) != errors.CodeGameIDEmpty {
		t.Fatalf("code = %v, want game id empty", errors.CodeOf(err))
	}
}
