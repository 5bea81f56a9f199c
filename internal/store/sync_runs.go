package store

import (
	"context"
	"fmt"
	"time"
)

// SyncStatus is the outcome of one external source sync.
type SyncStatus string

const (
	SyncSuccess SyncStatus = "success"
	SyncFailed  SyncStatus = "failed"
)

// SyncRun represents a row in the append-only bot_sync_runs table.
type SyncRun struct {
	ID            int64
	SourceName    string
	SourceVersion string
	AddedCount    int
	UpdatedCount  int
	TotalCount    int
	Status        SyncStatus
	ErrorMessage  string
	SyncedAt      time.Time
}

// RecordSyncRun appends one sync run to the log.
func (s *Store) RecordSyncRun(ctx context.Context, run SyncRun) (*SyncRun, error) {
	var r SyncRun
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO bot_sync_runs (source_name, source_version, added_count, updated_count,
		                           total_count, status, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, source_name, source_version, added_count, updated_count,
		          total_count, status, error_message, synced_at`,
		run.SourceName, run.SourceVersion, run.AddedCount, run.UpdatedCount,
		run.TotalCount, string(run.Status), run.ErrorMessage,
	).Scan(&r.ID, &r.SourceName, &r.SourceVersion, &r.AddedCount, &r.UpdatedCount,
		&r.TotalCount, &r.Status, &r.ErrorMessage, &r.SyncedAt)
	if err != nil {
		return nil, fmt.Errorf("RecordSyncRun: %w", err)
	}
	return &r, nil
}

// ListSyncRuns returns the most recent runs, optionally for one source.
func (s *Store) ListSyncRuns(ctx context.Context, source string, limit int) ([]SyncRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_name, source_version, added_count, updated_count,
		       total_count, status, error_message, synced_at
		FROM bot_sync_runs
		WHERE ($1 = '' OR source_name = $1)
		ORDER BY synced_at DESC, id DESC
		LIMIT $2`, source, limit)
	if err != nil {
		return nil, fmt.Errorf("ListSyncRuns: %w", err)
	}
	defer rows.Close()

	var runs []SyncRun
	for rows.Next() {
		var r SyncRun
		if err := rows.Scan(&r.ID, &r.SourceName, &r.SourceVersion, &r.AddedCount,
			&r.UpdatedCount, &r.TotalCount, &r.Status, &r.ErrorMessage, &r.SyncedAt); err != nil {
			return nil, fmt.Errorf("ListSyncRuns: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
