package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/courtline/courtline/internal/storage"
)

// CreateStage inserts a stage record when the stage begins executing.
func (s *Store) CreateStage(ctx context.Context, stage storage.Stage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	runID := strings.TrimSpace(stage.RunID)
	name := strings.TrimSpace(stage.Name)
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	if name == "" {
		return fmt.Errorf("stage name is required")
	}
	startedAt := stage.StartedAt.UTC()
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	status := stage.Status
	if status == "" {
		status = storage.StageStatusRunning
	}
	logs, err := encodeLogs(stage.Logs)
	if err != nil {
		return fmt.Errorf("create stage: %w", err)
	}

	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO pipeline_stages (
		   run_id, name, sequence, status,
		   output_summary, error_detail, logs, started_at, finished_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID,
		name,
		stage.Sequence,
		status,
		stage.OutputSummary,
		stage.ErrorDetail,
		logs,
		toMillis(startedAt),
		finishedMillis(stage.FinishedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("create stage: %w", err)
	}
	return nil
}

// FinishStage records a stage's terminal status, summary, error detail, and
// logs.
func (s *Store) FinishStage(ctx context.Context, stage storage.Stage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	runID := strings.TrimSpace(stage.RunID)
	name := strings.TrimSpace(stage.Name)
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	if name == "" {
		return fmt.Errorf("stage name is required")
	}
	finishedAt := stage.FinishedAt.UTC()
	if finishedAt.IsZero() {
		finishedAt = time.Now().UTC()
	}
	logs, err := encodeLogs(stage.Logs)
	if err != nil {
		return fmt.Errorf("finish stage: %w", err)
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE pipeline_stages
		    SET status = ?, output_summary = ?, error_detail = ?, logs = ?, finished_at = ?
		  WHERE run_id = ? AND name = ?`,
		stage.Status,
		stage.OutputSummary,
		stage.ErrorDetail,
		logs,
		toMillis(finishedAt),
		runID,
		name,
	)
	if err != nil {
		return fmt.Errorf("finish stage: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish stage: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListStages returns every stage for a run in execution order.
func (s *Store) ListStages(ctx context.Context, runID string) ([]storage.Stage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return nil, fmt.Errorf("run id is required")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT run_id, name, sequence, status,
		        output_summary, error_detail, logs, started_at, finished_at
		   FROM pipeline_stages
		  WHERE run_id = ?
		  ORDER BY sequence ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list stages: %w", err)
	}
	defer rows.Close()

	var stages []storage.Stage
	for rows.Next() {
		var stage storage.Stage
		var logs string
		var startedAt int64
		var finishedAt int64
		if err := rows.Scan(
			&stage.RunID,
			&stage.Name,
			&stage.Sequence,
			&stage.Status,
			&stage.OutputSummary,
			&stage.ErrorDetail,
			&logs,
			&startedAt,
			&finishedAt,
		); err != nil {
			return nil, fmt.Errorf("list stages: %w", err)
		}
		if err := json.Unmarshal([]byte(logs), &stage.Logs); err != nil {
			return nil, fmt.Errorf("list stages: decode logs: %w", err)
		}
		stage.StartedAt = fromMillis(startedAt)
		if finishedAt > 0 {
			stage.FinishedAt = fromMillis(finishedAt)
		}
		stages = append(stages, stage)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list stages: %w", err)
	}
	return stages, nil
}

func encodeLogs(logs []string) (string, error) {
	if logs == nil {
		logs = []string{}
	}
	encoded, err := json.Marshal(logs)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

func finishedMillis(value time.Time) int64 {
	if value.IsZero() {
		return 0
	}
	return toMillis(value)
}
