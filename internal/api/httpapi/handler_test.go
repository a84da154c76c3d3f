package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/courtline/courtline/internal/game"
	"github.com/courtline/courtline/internal/pipeline"
	"github.com/courtline/courtline/internal/platform/metrics"
	"github.com/courtline/courtline/internal/publish"
	"github.com/courtline/courtline/internal/render"
	"github.com/courtline/courtline/internal/storage"
	"github.com/courtline/courtline/internal/storage/sqlite"
)

func newAPI(t *testing.T) *API {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	m := metrics.New()
	orchestrator := pipeline.New(pipeline.Config{
		Runs:      store,
		Stages:    store,
		Traces:    store,
		Renderer:  render.NewRenderer(render.NewStaticGenerator(), m),
		Publisher: publish.New(store, m),
		Metrics:   m,
	})
	return New(Config{
		Orchestrator: orchestrator,
		Runs:         store,
		Stages:       store,
		Versions:     store,
		Metrics:      m,
		Health:       store,
	})
}

func triggerBody(t *testing.T, events []game.Event) *bytes.Reader {
	t.Helper()
	body, err := json.Marshal(map[string]any{"sport": "basketball", "events": events})
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return bytes.NewReader(body)
}

func sampleEvents() []game.Event {
	return []game.Event{
		{Period: 1, Index: 0, Clock: "12:00", Description: "tip-off"},
		{Period: 1, Index: 1, Clock: "11:30", Description: "layup", HomeScore: 2},
		{Period: 1, Index: 2, Clock: "11:00", Description: "jumper", HomeScore: 2, AwayScore: 2},
		{Period: 1, Index: 3, Clock: "10:40", Description: "full timeout", HomeScore: 2, AwayScore: 2},
		{Period: 1, Index: 4, Clock: "10:20", Description: "three pointer", HomeScore: 5, AwayScore: 2},
	}
}

func doRequest(t *testing.T, mux *http.ServeMux, method, target string, body *bytes.Reader) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, body)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, into any) {
	t.Helper()
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type = %q, want application/json", ct)
	}
	if err := json.NewDecoder(rec.Body).Decode(into); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestTriggerRunEndpoint(t *testing.T) {
	api := newAPI(t)
	mux := api.Routes()

	rec := doRequest(t, mux, http.MethodPost, "/v1/games/game-1/runs", triggerBody(t, sampleEvents()))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp runResponse
	decodeJSON(t, rec, &resp)
	if resp.Status != storage.RunStatusCompleted {
		t.Fatalf("run status = %q (%s), want completed", resp.Status, resp.ErrorDetail)
	}
	if resp.GameID != "game-1" || resp.RunID == "" {
		t.Fatalf("run = %+v, want game-1 with a run id", resp)
	}
	if resp.ArtifactID == "" {
		t.Fatal("completed run has no artifact id")
	}
	if resp.StagesCompleted != len(pipeline.StageNames()) {
		t.Fatalf("stages completed = %d, want %d", resp.StagesCompleted, len(pipeline.StageNames()))
	}
}

func TestTriggerRunRejectsBadBody(t *testing.T) {
	api := newAPI(t)
	mux := api.Routes()

	rec := doRequest(t, mux, http.MethodPost, "/v1/games/game-1/runs", bytes.NewReader([]byte("{not json")))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var resp errorResponse
	decodeJSON(t, rec, &resp)
	if resp.Error != "invalid_body" {
		t.Fatalf("error = %q, want invalid_body", resp.Error)
	}
}

func TestTriggerRunReportsFailedRun(t *testing.T) {
	api := newAPI(t)
	mux := api.Routes()

	// Index 2 is missing, so the normalize stage fails; the run record still
	// comes back with a 200 because the trigger itself succeeded.
	events := []game.Event{
		{Period: 1, Index: 0, Clock: "12:00", Description: "tip-off"},
		{Period: 1, Index: 1, Clock: "11:30", Description: "layup", HomeScore: 2},
		{Period: 1, Index: 3, Clock: "10:40", Description: "jumper", HomeScore: 2, AwayScore: 2},
	}
	rec := doRequest(t, mux, http.MethodPost, "/v1/games/game-1/runs", triggerBody(t, events))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp runResponse
	decodeJSON(t, rec, &resp)
	if resp.Status != storage.RunStatusFailed {
		t.Fatalf("run status = %q, want failed", resp.Status)
	}
	if resp.ErrorDetail == "" {
		t.Fatal("failed run has no error detail")
	}
}

func TestTriggerRunRequiresGameID(t *testing.T) {
	api := newAPI(t)
	mux := api.Routes()

	rec := doRequest(t, mux, http.MethodPost, "/v1/games/%20/runs", triggerBody(t, sampleEvents()))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var resp errorResponse
	decodeJSON(t, rec, &resp)
	if resp.Error != "GAME_ID_EMPTY" {
		t.Fatalf("error = %q, want GAME_ID_EMPTY", resp.Error)
	}
}

func TestInspectRunEndpoint(t *testing.T) {
	api := newAPI(t)
	mux := api.Routes()

	rec := doRequest(t, mux, http.MethodPost, "/v1/games/game-1/runs", triggerBody(t, sampleEvents()))
	var triggered runResponse
	decodeJSON(t, rec, &triggered)

	rec = doRequest(t, mux, http.MethodGet, "/v1/runs/"+triggered.RunID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp inspectRunResponse
	decodeJSON(t, rec, &resp)
	if resp.RunID != triggered.RunID {
		t.Fatalf("run id = %q, want %q", resp.RunID, triggered.RunID)
	}
	if len(resp.Stages) != len(pipeline.StageNames()) {
		t.Fatalf("stages = %d, want %d", len(resp.Stages), len(pipeline.StageNames()))
	}
	for i, stage := range resp.Stages {
		if stage.Name != pipeline.StageNames()[i] {
			t.Fatalf("stage %d = %q, want %q", i, stage.Name, pipeline.StageNames()[i])
		}
		if stage.Status != storage.StageStatusSuccess {
			t.Fatalf("stage %s status = %q, want success", stage.Name, stage.Status)
		}
		if stage.FinishedAt == "" {
			t.Fatalf("stage %s has no finish time", stage.Name)
		}
	}
}

func TestInspectRunNotFound(t *testing.T) {
	api := newAPI(t)
	mux := api.Routes()

	rec := doRequest(t, mux, http.MethodGet, "/v1/runs/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var resp errorResponse
	decodeJSON(t, rec, &resp)
	if resp.Error != "RUN_NOT_FOUND" {
		t.Fatalf("error = %q, want RUN_NOT_FOUND", resp.Error)
	}
}

func TestCancelTerminalRunConflicts(t *testing.T) {
	api := newAPI(t)
	mux := api.Routes()

	rec := doRequest(t, mux, http.MethodPost, "/v1/games/game-1/runs", triggerBody(t, sampleEvents()))
	var triggered runResponse
	decodeJSON(t, rec, &triggered)

	rec = doRequest(t, mux, http.MethodPost, "/v1/runs/"+triggered.RunID+"/cancel", bytes.NewReader(nil))
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	var resp errorResponse
	decodeJSON(t, rec, &resp)
	if resp.Error != "RUN_TERMINAL" {
		t.Fatalf("error = %q, want RUN_TERMINAL", resp.Error)
	}

	rec = doRequest(t, mux, http.MethodPost, "/v1/runs/missing/cancel", bytes.NewReader(nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestListRunsEndpoint(t *testing.T) {
	api := newAPI(t)
	mux := api.Routes()

	doRequest(t, mux, http.MethodPost, "/v1/games/game-1/runs", triggerBody(t, sampleEvents()))
	doRequest(t, mux, http.MethodPost, "/v1/games/game-1/runs", triggerBody(t, sampleEvents()))

	rec := doRequest(t, mux, http.MethodGet, "/v1/games/game-1/runs", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Runs []runResponse `json:"runs"`
	}
	decodeJSON(t, rec, &resp)
	if len(resp.Runs) != 2 {
		t.Fatalf("runs = %d, want 2", len(resp.Runs))
	}
	for _, run := range resp.Runs {
		if run.Status != storage.RunStatusCompleted {
			t.Fatalf("run %s status = %q, want completed", run.RunID, run.Status)
		}
	}
}

func TestArtifactEndpoint(t *testing.T) {
	api := newAPI(t)
	mux := api.Routes()

	rec := doRequest(t, mux, http.MethodGet, "/v1/games/game-1/artifact", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status before publish = %d, want 404", rec.Code)
	}

	rec = doRequest(t, mux, http.MethodPost, "/v1/games/game-1/runs", triggerBody(t, sampleEvents()))
	var triggered runResponse
	decodeJSON(t, rec, &triggered)

	rec = doRequest(t, mux, http.MethodGet, "/v1/games/game-1/artifact", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		ArtifactID string          `json:"artifact_id"`
		Version    int             `json:"version"`
		Hash       string          `json:"hash"`
		RunID      string          `json:"run_id"`
		Payload    publish.Payload `json:"payload"`
	}
	decodeJSON(t, rec, &resp)
	if resp.ArtifactID != triggered.ArtifactID || resp.Version != 1 {
		t.Fatalf("artifact = %+v, want version 1 matching run artifact %q", resp, triggered.ArtifactID)
	}
	if resp.RunID != triggered.RunID {
		t.Fatalf("artifact run id = %q, want %q", resp.RunID, triggered.RunID)
	}
	if resp.Payload.GameID != "game-1" || len(resp.Payload.Timeline.Blocks) == 0 {
		t.Fatalf("payload = %+v, want game-1 with blocks", resp.Payload)
	}
}

func TestListVersionsEndpoint(t *testing.T) {
	api := newAPI(t)
	mux := api.Routes()

	doRequest(t, mux, http.MethodPost, "/v1/games/game-1/runs", triggerBody(t, sampleEvents()))

	// A changed stream produces a second version.
	events := append(sampleEvents(), game.Event{
		Period: 1, Index: 5, Clock: "10:00", Description: "free throw", HomeScore: 6, AwayScore: 2,
	})
	doRequest(t, mux, http.MethodPost, "/v1/games/game-1/runs", triggerBody(t, events))

	rec := doRequest(t, mux, http.MethodGet, "/v1/games/game-1/versions", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Versions []versionResponse `json:"versions"`
	}
	decodeJSON(t, rec, &resp)
	if len(resp.Versions) != 2 {
		t.Fatalf("versions = %d, want 2", len(resp.Versions))
	}
	if resp.Versions[0].Version != 2 || !resp.Versions[0].IsActive {
		t.Fatalf("latest = %+v, want active version 2", resp.Versions[0])
	}
	if resp.Versions[1].Version != 1 || resp.Versions[1].IsActive {
		t.Fatalf("prior = %+v, want retired version 1", resp.Versions[1])
	}
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return stderrors.New("store closed") }

func TestHealthzEndpoint(t *testing.T) {
	api := newAPI(t)
	mux := api.Routes()

	rec := doRequest(t, mux, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	api.health = failingPinger{}
	rec = doRequest(t, mux, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	api := newAPI(t)
	mux := api.Routes()

	doRequest(t, mux, http.MethodPost, "/v1/games/game-1/runs", triggerBody(t, sampleEvents()))

	rec := doRequest(t, mux, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("courtline_pipeline_runs_started_total")) {
		t.Fatal("metrics body missing run counters")
	}
}
