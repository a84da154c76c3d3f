// Package storage defines persistence contracts for pipeline runs, stages,
// payload versions, and moment-merge traces.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists indicates a uniqueness-constrained record already exists.
	ErrAlreadyExists = errors.New("record already exists")
	// ErrVersionConflict indicates the active-version pointer moved under a
	// concurrent writer; the transaction was rolled back.
	ErrVersionConflict = errors.New("active version conflict")
)

// Run statuses. A run is terminal once completed, failed, or canceled.
const (
	RunStatusPending   = "pending"
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
	RunStatusCanceled  = "canceled"
)

// Stage statuses.
const (
	StageStatusRunning = "running"
	StageStatusSuccess = "success"
	StageStatusFailed  = "failed"
	StageStatusSkipped = "skipped"
)

// RunTerminal reports whether a run status admits no further transitions.
func RunTerminal(status string) bool {
	switch status {
	case RunStatusCompleted, RunStatusFailed, RunStatusCanceled:
		return true
	}
	return false
}

// Run stores one pipeline run for a game.
type Run struct {
	ID              string
	GameID          string
	Sport           string
	Status          string
	CancelRequested bool
	ErrorDetail     string
	ArtifactID      string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Stage stores one stage execution within a run.
type Stage struct {
	RunID         string
	Name          string
	Sequence      int
	Status        string
	OutputSummary string
	ErrorDetail   string
	Logs          []string
	StartedAt     time.Time
	FinishedAt    time.Time
}

// Version stores one immutable payload version for a game.
type Version struct {
	ID        string
	GameID    string
	RunID     string
	Version   int
	Hash      string
	Payload   []byte
	Diff      []byte
	IsActive  bool
	CreatedAt time.Time
}

// Trace stores one moment-builder audit entry: a detected candidate or a
// merge decision. Append-only, keyed by run.
type Trace struct {
	RunID         string
	Sequence      int
	Action        string
	MomentType    string
	StartIndex    int
	AbsorbedStart int
	Weight        int
	CreatedAt     time.Time
}

// RunStore persists pipeline runs.
type RunStore interface {
	CreateRun(ctx context.Context, run Run) error
	GetRun(ctx context.Context, id string) (Run, error)
	// GetInFlightRun returns the pending or running run for a game, or
	// ErrNotFound when every run is terminal.
	GetInFlightRun(ctx context.Context, gameID string) (Run, error)
	UpdateRunStatus(ctx context.Context, id, status, errorDetail, artifactID string) error
	RequestRunCancel(ctx context.Context, id string) error
	ListRuns(ctx context.Context, gameID string) ([]Run, error)
}

// StageStore persists per-run stage records.
type StageStore interface {
	CreateStage(ctx context.Context, stage Stage) error
	FinishStage(ctx context.Context, stage Stage) error
	ListStages(ctx context.Context, runID string) ([]Stage, error)
}

// VersionStore persists payload versions with a single active version per
// game.
type VersionStore interface {
	GetActiveVersion(ctx context.Context, gameID string) (Version, error)
	// PublishVersion inserts a new active version and retires the prior
	// active one in a single transaction. priorVersion is the version number
	// the caller observed as active (0 when none); a mismatch returns
	// ErrVersionConflict.
	PublishVersion(ctx context.Context, version Version, priorVersion int) error
	ListVersions(ctx context.Context, gameID string) ([]Version, error)
}

// TraceStore persists the append-only moment audit log.
type TraceStore interface {
	AppendTraces(ctx context.Context, traces []Trace) error
	ListTraces(ctx context.Context, runID string) ([]Trace, error)
}
