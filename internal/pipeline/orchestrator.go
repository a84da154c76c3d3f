// Package pipeline runs the narrative construction stages as an ordered
// state machine with per-run and per-stage persistence.
package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"
	"log"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/courtline/courtline/internal/game"
	"github.com/courtline/courtline/internal/platform/errors"
	"github.com/courtline/courtline/internal/platform/id"
	"github.com/courtline/courtline/internal/platform/metrics"
	"github.com/courtline/courtline/internal/platform/timeouts"
	"github.com/courtline/courtline/internal/publish"
	"github.com/courtline/courtline/internal/render"
	"github.com/courtline/courtline/internal/storage"
)

// Orchestrator executes pipeline runs. Stages run strictly in declared
// order within a single worker context; concurrency across games is bounded
// only by the per-game guard.
type Orchestrator struct {
	runs       storage.RunStore
	stageStore storage.StageStore
	traces     storage.TraceStore
	renderer   *render.Renderer
	publisher  *publish.Publisher
	metrics    *metrics.Manager
	guard      *Guard
	tracer     trace.Tracer

	// stageTimeout is variable for tests; production uses timeouts.Stage.
	stageTimeout time.Duration
}

// Config wires the orchestrator's collaborators.
type Config struct {
	Runs      storage.RunStore
	Stages    storage.StageStore
	Traces    storage.TraceStore
	Renderer  *render.Renderer
	Publisher *publish.Publisher
	Metrics   *metrics.Manager
}

// New builds an orchestrator.
func New(cfg Config) *Orchestrator {
	return &Orchestrator{
		runs:         cfg.Runs,
		stageStore:   cfg.Stages,
		traces:       cfg.Traces,
		renderer:     cfg.Renderer,
		publisher:    cfg.Publisher,
		metrics:      cfg.Metrics,
		guard:        NewGuard(),
		tracer:       otel.Tracer("courtline/pipeline"),
		stageTimeout: timeouts.Stage,
	}
}

// Trigger starts a new run for a game over the supplied event stream and
// executes it to a terminal state. At most one in-flight run per game is
// permitted; a second trigger is rejected, not queued. The returned run is
// the terminal record.
func (o *Orchestrator) Trigger(ctx context.Context, gameID, sport string, events []game.Event) (storage.Run, error) {
	gameID = strings.TrimSpace(gameID)
	if gameID == "" {
		return storage.Run{}, errors.New(errors.CodeGameIDEmpty, "game id is required")
	}

	if !o.guard.Acquire(gameID) {
		o.metrics.RunRejected()
		return storage.Run{}, errors.WithMetadata(errors.CodeRunInFlight, "a run is already in flight for this game", map[string]string{
			"game_id": gameID,
		})
	}
	defer o.guard.Release(gameID)

	// The guard covers this process; the store check covers runs left behind
	// by a crashed worker.
	if inFlight, err := o.runs.GetInFlightRun(ctx, gameID); err == nil {
		o.metrics.RunRejected()
		return storage.Run{}, errors.WithMetadata(errors.CodeRunInFlight, "a run is already in flight for this game", map[string]string{
			"game_id": gameID,
			"run_id":  inFlight.ID,
		})
	} else if !stderrors.Is(err, storage.ErrNotFound) {
		return storage.Run{}, errors.Wrap(errors.CodePersistence, "check in-flight run", err)
	}

	runID, err := id.NewID()
	if err != nil {
		return storage.Run{}, errors.Wrap(errors.CodePersistence, "generate run id", err)
	}
	run := storage.Run{
		ID:     runID,
		GameID: gameID,
		Sport:  sport,
		Status: storage.RunStatusPending,
	}
	if err := o.runs.CreateRun(ctx, run); err != nil {
		return storage.Run{}, errors.Wrap(errors.CodePersistence, "create run", err)
	}
	o.metrics.RunStarted()
	log.Printf("pipeline: run %s started for game %s (%d events)", runID, gameID, len(events))

	return o.execute(ctx, run, events)
}

// execute walks the stage list to a terminal run status. Failures are
// recorded on the failing stage and the run; they are never returned as Go
// errors to the caller, who inspects the run record instead.
func (o *Orchestrator) execute(ctx context.Context, run storage.Run, events []game.Event) (storage.Run, error) {
	st := &runState{run: run, events: events}

	ctx, span := o.tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(
			attribute.String("run.id", run.ID),
			attribute.String("game.id", run.GameID),
		))
	defer span.End()

	if err := o.runs.UpdateRunStatus(ctx, run.ID, storage.RunStatusRunning, "", ""); err != nil {
		return storage.Run{}, errors.Wrap(errors.CodePersistence, "mark run running", err)
	}

	for sequence, def := range o.stages() {
		canceled, err := o.cancelRequested(ctx, run.ID)
		if err != nil {
			return storage.Run{}, err
		}
		if canceled {
			log.Printf("pipeline: run %s canceled before stage %s", run.ID, def.name)
			return o.finishRun(ctx, st, storage.RunStatusCanceled, "canceled by operator")
		}

		if def.skip != nil {
			if skip, reason := def.skip(st); skip {
				if err := o.recordSkipped(ctx, run.ID, def.name, sequence, reason); err != nil {
					return storage.Run{}, err
				}
				log.Printf("pipeline: run %s stage %s skipped: %s", run.ID, def.name, reason)
				continue
			}
		}

		summary, stageErr := o.runStage(ctx, st, def, sequence)
		if stageErr != nil {
			log.Printf("pipeline: run %s stage %s failed: %v", run.ID, def.name, stageErr)
			return o.finishRun(ctx, st, storage.RunStatusFailed, stageErr.Error())
		}
		log.Printf("pipeline: run %s stage %s: %s", run.ID, def.name, summary)
	}

	return o.finishRun(ctx, st, storage.RunStatusCompleted, "")
}

// runStage executes one stage with persistence, telemetry, and a stage-level
// timeout.
func (o *Orchestrator) runStage(ctx context.Context, st *runState, def stageDef, sequence int) (string, error) {
	startedAt := time.Now().UTC()
	if err := o.stageStore.CreateStage(ctx, storage.Stage{
		RunID:     st.run.ID,
		Name:      def.name,
		Sequence:  sequence,
		Status:    storage.StageStatusRunning,
		StartedAt: startedAt,
	}); err != nil {
		return "", errors.Wrap(errors.CodePersistence, "create stage record", err)
	}

	stageCtx, cancel := context.WithTimeout(ctx, o.stageTimeout)
	defer cancel()

	spanCtx, span := o.tracer.Start(stageCtx, "pipeline."+def.name,
		trace.WithAttributes(
			attribute.String("run.id", st.run.ID),
			attribute.String("game.id", st.run.GameID),
		))
	summary, err := def.run(spanCtx, st)
	span.End()

	elapsed := time.Since(startedAt)
	o.metrics.ObserveStage(def.name, elapsed.Seconds(), err != nil)

	if err != nil && stageCtx.Err() != nil && ctx.Err() == nil {
		err = errors.Wrap(errors.CodeStageTimeout, fmt.Sprintf("stage %s exceeded %s", def.name, o.stageTimeout), err)
	}

	record := storage.Stage{
		RunID:         st.run.ID,
		Name:          def.name,
		Sequence:      sequence,
		Status:        storage.StageStatusSuccess,
		OutputSummary: summary,
		StartedAt:     startedAt,
		FinishedAt:    time.Now().UTC(),
		Logs:          stageLogs(st, def.name, summary, err),
	}
	if err != nil {
		record.Status = storage.StageStatusFailed
		record.OutputSummary = ""
		record.ErrorDetail = err.Error()
	}
	if finishErr := o.stageStore.FinishStage(ctx, record); finishErr != nil {
		return "", errors.Wrap(errors.CodePersistence, "finish stage record", finishErr)
	}
	return summary, err
}

func (o *Orchestrator) recordSkipped(ctx context.Context, runID, name string, sequence int, reason string) error {
	now := time.Now().UTC()
	if err := o.stageStore.CreateStage(ctx, storage.Stage{
		RunID:     runID,
		Name:      name,
		Sequence:  sequence,
		Status:    storage.StageStatusRunning,
		StartedAt: now,
	}); err != nil {
		return errors.Wrap(errors.CodePersistence, "create stage record", err)
	}
	if err := o.stageStore.FinishStage(ctx, storage.Stage{
		RunID:         runID,
		Name:          name,
		Sequence:      sequence,
		Status:        storage.StageStatusSkipped,
		OutputSummary: reason,
		StartedAt:     now,
		FinishedAt:    now,
		Logs:          []string{"skipped: " + reason},
	}); err != nil {
		return errors.Wrap(errors.CodePersistence, "finish stage record", err)
	}
	return nil
}

func (o *Orchestrator) cancelRequested(ctx context.Context, runID string) (bool, error) {
	current, err := o.runs.GetRun(ctx, runID)
	if err != nil {
		return false, errors.Wrap(errors.CodePersistence, "read run for cancel check", err)
	}
	return current.CancelRequested, nil
}

func (o *Orchestrator) finishRun(ctx context.Context, st *runState, status, errorDetail string) (storage.Run, error) {
	artifactID := ""
	if status == storage.RunStatusCompleted {
		artifactID = st.outcome.VersionID
		o.metrics.RunCompleted()
	} else {
		o.metrics.RunFailed()
	}
	if err := o.runs.UpdateRunStatus(ctx, st.run.ID, status, errorDetail, artifactID); err != nil {
		return storage.Run{}, errors.Wrap(errors.CodePersistence, "finish run", err)
	}
	final, err := o.runs.GetRun(ctx, st.run.ID)
	if err != nil {
		return storage.Run{}, errors.Wrap(errors.CodePersistence, "read finished run", err)
	}
	log.Printf("pipeline: run %s finished with status %s", st.run.ID, status)
	return final, nil
}

// Cancel flags an in-flight run so execution halts before the next stage.
// Already-written stage outputs stay untouched for inspection.
func (o *Orchestrator) Cancel(ctx context.Context, runID string) error {
	err := o.runs.RequestRunCancel(ctx, runID)
	if stderrors.Is(err, storage.ErrNotFound) {
		// Either the run does not exist or it is already terminal.
		if _, getErr := o.runs.GetRun(ctx, runID); getErr == nil {
			return errors.New(errors.CodeRunTerminal, "run already reached a terminal status")
		}
		return errors.New(errors.CodeRunNotFound, "run not found")
	}
	if err != nil {
		return errors.Wrap(errors.CodePersistence, "request cancel", err)
	}
	return nil
}

func stageLogs(st *runState, name, summary string, err error) []string {
	logs := []string{fmt.Sprintf("stage %s started for game %s", name, st.run.GameID)}
	if err != nil {
		logs = append(logs, "error: "+err.Error())
		return logs
	}
	if summary != "" {
		logs = append(logs, summary)
	}
	if name == StageRenderBlocks {
		for _, issue := range st.issues {
			logs = append(logs, fmt.Sprintf("block %d degraded: %s", issue.BlockOrdinal, issue.Detail))
		}
	}
	return logs
}
