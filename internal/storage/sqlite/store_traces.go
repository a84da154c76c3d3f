package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/courtline/courtline/internal/storage"
)

// AppendTraces inserts moment audit entries. The log is append-only; entries
// are never updated or deleted.
func (s *Store) AppendTraces(ctx context.Context, traces []storage.Trace) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if len(traces) == 0 {
		return nil
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append traces: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, trace := range traces {
		runID := strings.TrimSpace(trace.RunID)
		if runID == "" {
			return fmt.Errorf("trace run id is required")
		}
		createdAt := trace.CreatedAt.UTC()
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		_, err := tx.ExecContext(
			ctx,
			`INSERT INTO moment_traces (
			   run_id, sequence, action, moment_type,
			   start_index, absorbed_start, weight, created_at
			 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			runID,
			trace.Sequence,
			trace.Action,
			trace.MomentType,
			trace.StartIndex,
			trace.AbsorbedStart,
			trace.Weight,
			toMillis(createdAt),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return storage.ErrAlreadyExists
			}
			return fmt.Errorf("append traces: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append traces: commit: %w", err)
	}
	return nil
}

// ListTraces returns a run's audit entries in append order.
func (s *Store) ListTraces(ctx context.Context, runID string) ([]storage.Trace, error) {
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
		`SELECT run_id, sequence, action, moment_type,
		        start_index, absorbed_start, weight, created_at
		   FROM moment_traces
		  WHERE run_id = ?
		  ORDER BY sequence ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list traces: %w", err)
	}
	defer rows.Close()

	var traces []storage.Trace
	for rows.Next() {
		var trace storage.Trace
		var createdAt int64
		if err := rows.Scan(
			&trace.RunID,
			&trace.Sequence,
			&trace.Action,
			&trace.MomentType,
			&trace.StartIndex,
			&trace.AbsorbedStart,
			&trace.Weight,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("list traces: %w", err)
		}
		trace.CreatedAt = fromMillis(createdAt)
		traces = append(traces, trace)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list traces: %w", err)
	}
	return traces, nil
}
