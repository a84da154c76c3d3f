package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/courtline/courtline/internal/storage"
)

// CreateRun inserts one pipeline run record.
func (s *Store) CreateRun(ctx context.Context, run storage.Run) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	id := strings.TrimSpace(run.ID)
	gameID := strings.TrimSpace(run.GameID)
	if id == "" {
		return fmt.Errorf("run id is required")
	}
	if gameID == "" {
		return fmt.Errorf("game id is required")
	}
	createdAt := run.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	updatedAt := run.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}
	status := run.Status
	if status == "" {
		status = storage.RunStatusPending
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO pipeline_runs (
		   id, game_id, sport, status, cancel_requested,
		   error_detail, artifact_id, created_at, updated_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		gameID,
		run.Sport,
		status,
		boolToInt(run.CancelRequested),
		run.ErrorDetail,
		run.ArtifactID,
		toMillis(createdAt),
		toMillis(updatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// GetRun returns one run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (storage.Run, error) {
	if err := ctx.Err(); err != nil {
		return storage.Run{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Run{}, fmt.Errorf("storage is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return storage.Run{}, fmt.Errorf("run id is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, game_id, sport, status, cancel_requested,
		        error_detail, artifact_id, created_at, updated_at
		   FROM pipeline_runs
		  WHERE id = ?`,
		id,
	)
	return scanRun(row)
}

// GetInFlightRun returns the pending or running run for a game.
func (s *Store) GetInFlightRun(ctx context.Context, gameID string) (storage.Run, error) {
	if err := ctx.Err(); err != nil {
		return storage.Run{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Run{}, fmt.Errorf("storage is not configured")
	}
	gameID = strings.TrimSpace(gameID)
	if gameID == "" {
		return storage.Run{}, fmt.Errorf("game id is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, game_id, sport, status, cancel_requested,
		        error_detail, artifact_id, created_at, updated_at
		   FROM pipeline_runs
		  WHERE game_id = ? AND status IN (?, ?)
		  ORDER BY created_at DESC
		  LIMIT 1`,
		gameID,
		storage.RunStatusPending,
		storage.RunStatusRunning,
	)
	return scanRun(row)
}

// UpdateRunStatus moves a run to a new status, recording error detail and
// the produced artifact when present.
func (s *Store) UpdateRunStatus(ctx context.Context, id, status, errorDetail, artifactID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("run id is required")
	}
	if status == "" {
		return fmt.Errorf("status is required")
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE pipeline_runs
		    SET status = ?, error_detail = ?, artifact_id = ?, updated_at = ?
		  WHERE id = ?`,
		status,
		errorDetail,
		artifactID,
		toMillis(time.Now().UTC()),
		id,
	)
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// RequestRunCancel flags a non-terminal run for cancellation. The orchestrator
// observes the flag between stages.
func (s *Store) RequestRunCancel(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("run id is required")
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE pipeline_runs
		    SET cancel_requested = 1, updated_at = ?
		  WHERE id = ? AND status IN (?, ?)`,
		toMillis(time.Now().UTC()),
		id,
		storage.RunStatusPending,
		storage.RunStatusRunning,
	)
	if err != nil {
		return fmt.Errorf("request run cancel: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("request run cancel: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListRuns returns every run for a game, newest first.
func (s *Store) ListRuns(ctx context.Context, gameID string) ([]storage.Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	gameID = strings.TrimSpace(gameID)
	if gameID == "" {
		return nil, fmt.Errorf("game id is required")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, game_id, sport, status, cancel_requested,
		        error_detail, artifact_id, created_at, updated_at
		   FROM pipeline_runs
		  WHERE game_id = ?
		  ORDER BY created_at DESC, id DESC`,
		gameID,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []storage.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (storage.Run, error) {
	var run storage.Run
	var cancelRequested int
	var createdAt int64
	var updatedAt int64
	err := row.Scan(
		&run.ID,
		&run.GameID,
		&run.Sport,
		&run.Status,
		&cancelRequested,
		&run.ErrorDetail,
		&run.ArtifactID,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Run{}, storage.ErrNotFound
		}
		return storage.Run{}, err
	}
	run.CancelRequested = cancelRequested != 0
	run.CreatedAt = fromMillis(createdAt)
	run.UpdatedAt = fromMillis(updatedAt)
	return run, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
