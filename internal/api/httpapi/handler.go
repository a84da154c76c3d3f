// Package httpapi exposes the thin request/response surface used to trigger
// and inspect pipeline runs and to fetch published artifacts.
package httpapi

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/courtline/courtline/internal/game"
	"github.com/courtline/courtline/internal/pipeline"
	"github.com/courtline/courtline/internal/platform/errors"
	"github.com/courtline/courtline/internal/platform/metrics"
	"github.com/courtline/courtline/internal/storage"
)

// Pinger reports backing-store reachability for the liveness endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// API serves the pipeline control surface.
type API struct {
	orchestrator *pipeline.Orchestrator
	runs         storage.RunStore
	stages       storage.StageStore
	versions     storage.VersionStore
	metrics      *metrics.Manager
	health       Pinger
}

// Config wires the API's collaborators.
type Config struct {
	Orchestrator *pipeline.Orchestrator
	Runs         storage.RunStore
	Stages       storage.StageStore
	Versions     storage.VersionStore
	Metrics      *metrics.Manager
	Health       Pinger
}

// New builds the API.
func New(cfg Config) *API {
	return &API{
		orchestrator: cfg.Orchestrator,
		runs:         cfg.Runs,
		stages:       cfg.Stages,
		versions:     cfg.Versions,
		metrics:      cfg.Metrics,
		health:       cfg.Health,
	}
}

// Routes returns the HTTP mux with every route registered.
func (a *API) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/games/{game_id}/runs", a.handleTriggerRun)
	mux.HandleFunc("GET /v1/games/{game_id}/runs", a.handleListRuns)
	mux.HandleFunc("GET /v1/games/{game_id}/artifact", a.handleGetArtifact)
	mux.HandleFunc("GET /v1/games/{game_id}/versions", a.handleListVersions)
	mux.HandleFunc("GET /v1/runs/{run_id}", a.handleInspectRun)
	mux.HandleFunc("POST /v1/runs/{run_id}/cancel", a.handleCancelRun)
	mux.HandleFunc("GET /healthz", a.handleHealthz)
	if a.metrics != nil && a.metrics.Registry() != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(a.metrics.Registry(), promhttp.HandlerOpts{}))
	}
	return mux
}

type triggerRunRequest struct {
	Sport  string       `json:"sport"`
	Events []game.Event `json:"events"`
}

type runResponse struct {
	RunID           string `json:"run_id"`
	GameID          string `json:"game_id"`
	Status          string `json:"status"`
	StagesCompleted int    `json:"stages_completed"`
	ArtifactID      string `json:"artifact_id,omitempty"`
	ErrorDetail     string `json:"error_detail,omitempty"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

type stageResponse struct {
	Name          string   `json:"name"`
	Status        string   `json:"status"`
	OutputSummary string   `json:"output_summary,omitempty"`
	ErrorDetail   string   `json:"error_detail,omitempty"`
	Logs          []string `json:"logs"`
	StartedAt     string   `json:"started_at"`
	FinishedAt    string   `json:"finished_at,omitempty"`
}

type inspectRunResponse struct {
	runResponse
	Stages []stageResponse `json:"stages"`
}

type versionResponse struct {
	ID        string          `json:"id"`
	Version   int             `json:"version"`
	Hash      string          `json:"hash"`
	IsActive  bool            `json:"is_active"`
	RunID     string          `json:"run_id"`
	Diff      json.RawMessage `json:"diff,omitempty"`
	CreatedAt string          `json:"created_at"`
}

func (a *API) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	gameID := strings.TrimSpace(r.PathValue("game_id"))

	var req triggerRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_body", "request body is not valid JSON")
		return
	}

	run, err := a.orchestrator.Trigger(r.Context(), gameID, req.Sport, req.Events)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.runToResponse(r, run))
}

func (a *API) handleInspectRun(w http.ResponseWriter, r *http.Request) {
	runID := strings.TrimSpace(r.PathValue("run_id"))

	run, err := a.runs.GetRun(r.Context(), runID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			writeJSONError(w, http.StatusNotFound, string(errors.CodeRunNotFound), "run not found")
			return
		}
		writeDomainError(w, err)
		return
	}
	stages, err := a.stages.ListStages(r.Context(), runID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := inspectRunResponse{runResponse: runToResponse(run, stages)}
	for _, stage := range stages {
		resp.Stages = append(resp.Stages, stageToResponse(stage))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	runID := strings.TrimSpace(r.PathValue("run_id"))
	if err := a.orchestrator.Cancel(r.Context(), runID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"run_id": runID, "cancel": "requested"})
}

func (a *API) handleListRuns(w http.ResponseWriter, r *http.Request) {
	gameID := strings.TrimSpace(r.PathValue("game_id"))

	runs, err := a.runs.ListRuns(r.Context(), gameID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	resp := make([]runResponse, 0, len(runs))
	for _, run := range runs {
		resp = append(resp, a.runToResponse(r, run))
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": resp})
}

func (a *API) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	gameID := strings.TrimSpace(r.PathValue("game_id"))

	active, err := a.versions.GetActiveVersion(r.Context(), gameID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			writeJSONError(w, http.StatusNotFound, string(errors.CodeNotFound), "no published artifact for this game")
			return
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"artifact_id": active.ID,
		"game_id":     active.GameID,
		"version":     active.Version,
		"hash":        active.Hash,
		"run_id":      active.RunID,
		"created_at":  active.CreatedAt.Format(time.RFC3339),
		"payload":     json.RawMessage(active.Payload),
	})
}

func (a *API) handleListVersions(w http.ResponseWriter, r *http.Request) {
	gameID := strings.TrimSpace(r.PathValue("game_id"))

	versions, err := a.versions.ListVersions(r.Context(), gameID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	resp := make([]versionResponse, 0, len(versions))
	for _, v := range versions {
		resp = append(resp, versionResponse{
			ID:        v.ID,
			Version:   v.Version,
			Hash:      v.Hash,
			IsActive:  v.IsActive,
			RunID:     v.RunID,
			Diff:      json.RawMessage(v.Diff),
			CreatedAt: v.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": resp})
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if a.health != nil {
		if err := a.health.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "degraded",
				"detail": err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// runToResponse loads stage progress for a single-run response.
func (a *API) runToResponse(r *http.Request, run storage.Run) runResponse {
	stages, err := a.stages.ListStages(r.Context(), run.ID)
	if err != nil {
		log.Printf("httpapi: list stages for run %s: %v", run.ID, err)
	}
	return runToResponse(run, stages)
}

func runToResponse(run storage.Run, stages []storage.Stage) runResponse {
	completed := 0
	for _, stage := range stages {
		if stage.Status == storage.StageStatusSuccess || stage.Status == storage.StageStatusSkipped {
			completed++
		}
	}
	return runResponse{
		RunID:           run.ID,
		GameID:          run.GameID,
		Status:          run.Status,
		StagesCompleted: completed,
		ArtifactID:      run.ArtifactID,
		ErrorDetail:     run.ErrorDetail,
		CreatedAt:       run.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       run.UpdatedAt.Format(time.RFC3339),
	}
}

func stageToResponse(stage storage.Stage) stageResponse {
	resp := stageResponse{
		Name:          stage.Name,
		Status:        stage.Status,
		OutputSummary: stage.OutputSummary,
		ErrorDetail:   stage.ErrorDetail,
		Logs:          stage.Logs,
		StartedAt:     stage.StartedAt.Format(time.RFC3339),
	}
	if !stage.FinishedAt.IsZero() {
		resp.FinishedAt = stage.FinishedAt.Format(time.RFC3339)
	}
	return resp
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeDomainError(w http.ResponseWriter, err error) {
	code := errors.CodeOf(err)
	writeJSONError(w, code.HTTPStatus(), string(code), err.Error())
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	_ = encoder.Encode(payload)
}
