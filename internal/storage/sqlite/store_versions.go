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

// GetActiveVersion returns the active payload version for a game.
func (s *Store) GetActiveVersion(ctx context.Context, gameID string) (storage.Version, error) {
	if err := ctx.Err(); err != nil {
		return storage.Version{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Version{}, fmt.Errorf("storage is not configured")
	}
	gameID = strings.TrimSpace(gameID)
	if gameID == "" {
		return storage.Version{}, fmt.Errorf("game id is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, game_id, run_id, version, hash, payload, diff, is_active, created_at
		   FROM payload_versions
		  WHERE game_id = ? AND is_active = 1`,
		gameID,
	)
	return scanVersion(row)
}

// PublishVersion inserts a new active version and retires the prior active
// one atomically. The prior version number acts as a compare-and-swap guard:
// if the active pointer moved since the caller read it, nothing is written
// and ErrVersionConflict comes back.
func (s *Store) PublishVersion(ctx context.Context, version storage.Version, priorVersion int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	id := strings.TrimSpace(version.ID)
	gameID := strings.TrimSpace(version.GameID)
	if id == "" {
		return fmt.Errorf("version id is required")
	}
	if gameID == "" {
		return fmt.Errorf("game id is required")
	}
	if version.Version != priorVersion+1 {
		return fmt.Errorf("version number %d does not follow prior %d", version.Version, priorVersion)
	}
	if version.Hash == "" {
		return fmt.Errorf("hash is required")
	}
	createdAt := version.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("publish version: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if priorVersion > 0 {
		result, err := tx.ExecContext(
			ctx,
			`UPDATE payload_versions
			    SET is_active = 0
			  WHERE game_id = ? AND is_active = 1 AND version = ?`,
			gameID,
			priorVersion,
		)
		if err != nil {
			return fmt.Errorf("publish version: retire active: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("publish version: retire active: %w", err)
		}
		if affected == 0 {
			return storage.ErrVersionConflict
		}
	} else {
		// No prior version expected: any existing active row means the
		// caller's view is stale.
		var existing int
		err := tx.QueryRowContext(
			ctx,
			`SELECT COUNT(*) FROM payload_versions WHERE game_id = ? AND is_active = 1`,
			gameID,
		).Scan(&existing)
		if err != nil {
			return fmt.Errorf("publish version: check active: %w", err)
		}
		if existing > 0 {
			return storage.ErrVersionConflict
		}
	}

	_, err = tx.ExecContext(
		ctx,
		`INSERT INTO payload_versions (
		   id, game_id, run_id, version, hash, payload, diff, is_active, created_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?)`,
		id,
		gameID,
		version.RunID,
		version.Version,
		version.Hash,
		version.Payload,
		version.Diff,
		toMillis(createdAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrVersionConflict
		}
		return fmt.Errorf("publish version: insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("publish version: commit: %w", err)
	}
	return nil
}

// ListVersions returns every version for a game, newest first.
func (s *Store) ListVersions(ctx context.Context, gameID string) ([]storage.Version, error) {
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
		`SELECT id, game_id, run_id, version, hash, payload, diff, is_active, created_at
		   FROM payload_versions
		  WHERE game_id = ?
		  ORDER BY version DESC`,
		gameID,
	)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var versions []storage.Version
	for rows.Next() {
		version, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("list versions: %w", err)
		}
		versions = append(versions, version)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	return versions, nil
}

func scanVersion(row rowScanner) (storage.Version, error) {
	var version storage.Version
	var isActive int
	var createdAt int64
	err := row.Scan(
		&version.ID,
		&version.GameID,
		&version.RunID,
		&version.Version,
		&version.Hash,
		&version.Payload,
		&version.Diff,
		&isActive,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Version{}, storage.ErrNotFound
		}
		return storage.Version{}, err
	}
	version.IsActive = isActive != 0
	version.CreatedAt = fromMillis(createdAt)
	return version, nil
}
