package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"estatesync/internal/models"
)

// GetSyncState returns the current-state row for a sync type. A type that
// has never synced gets a fresh idle state.
func (db *DB) GetSyncState(ctx context.Context, syncType string) (*models.SyncState, error) {
	query := `SELECT sync_type, status, last_sync_at, last_successful_sync_at,
                     total_records, synced_records, failed_records, error_message
              FROM sync_state WHERE sync_type = ?`

	var state models.SyncState
	err := db.db.QueryRowContext(ctx, query, syncType).Scan(
		&state.SyncType, &state.Status, &state.LastSyncAt, &state.LastSuccessfulSyncAt,
		&state.TotalRecords, &state.SyncedRecords, &state.FailedRecords, &state.ErrorMessage,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.SyncState{SyncType: syncType, Status: models.SyncIdle}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync state for %s: %w", syncType, err)
	}
	return &state, nil
}

// SaveSyncState overwrites the single current-truth row for the sync type.
func (db *DB) SaveSyncState(ctx context.Context, state *models.SyncState) error {
	query := `INSERT INTO sync_state (sync_type, status, last_sync_at, last_successful_sync_at,
                                      total_records, synced_records, failed_records, error_message)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(sync_type) DO UPDATE SET
                  status = excluded.status,
                  last_sync_at = excluded.last_sync_at,
                  last_successful_sync_at = excluded.last_successful_sync_at,
                  total_records = excluded.total_records,
                  synced_records = excluded.synced_records,
                  failed_records = excluded.failed_records,
                  error_message = excluded.error_message`

	_, err := db.db.ExecContext(ctx, query,
		state.SyncType, state.Status, state.LastSyncAt, state.LastSuccessfulSyncAt,
		state.TotalRecords, state.SyncedRecords, state.FailedRecords, state.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to save sync state for %s: %w", state.SyncType, err)
	}
	return nil
}

// CreateHistoryEntry opens a new append-only history row and fills its id.
func (db *DB) CreateHistoryEntry(ctx context.Context, entry *models.SyncHistoryEntry) error {
	query := `INSERT INTO sync_history (sync_type, started_at, status, total_records, synced_records, failed_records)
              VALUES (?, ?, ?, ?, ?, ?)`
	result, err := db.db.ExecContext(ctx, query,
		entry.SyncType, entry.StartedAt, entry.Status,
		entry.TotalRecords, entry.SyncedRecords, entry.FailedRecords,
	)
	if err != nil {
		return fmt.Errorf("failed to create history entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	entry.ID = id
	return nil
}

// UpdateHistoryProgress refreshes counters of the open history entry.
func (db *DB) UpdateHistoryProgress(ctx context.Context, id int64, synced, failed int) error {
	query := `UPDATE sync_history SET synced_records = ?, failed_records = ? WHERE id = ?`
	if _, err := db.db.ExecContext(ctx, query, synced, failed, id); err != nil {
		return fmt.Errorf("failed to update history progress: %w", err)
	}
	return nil
}

// CloseHistoryEntry writes the final outcome of a run. The row is never
// mutated afterwards.
func (db *DB) CloseHistoryEntry(ctx context.Context, entry *models.SyncHistoryEntry) error {
	query := `UPDATE sync_history SET completed_at = ?, status = ?, total_records = ?,
                     synced_records = ?, failed_records = ?, duration_ms = ?, error_message = ?
              WHERE id = ?`
	_, err := db.db.ExecContext(ctx, query,
		entry.CompletedAt, entry.Status, entry.TotalRecords,
		entry.SyncedRecords, entry.FailedRecords, entry.DurationMs, entry.ErrorMessage,
		entry.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to close history entry %d: %w", entry.ID, err)
	}
	return nil
}

func (db *DB) GetHistoryEntry(ctx context.Context, id int64) (*models.SyncHistoryEntry, error) {
	query := `SELECT id, sync_type, started_at, completed_at, status, total_records,
                     synced_records, failed_records, duration_ms, error_message
              FROM sync_history WHERE id = ?`

	var entry models.SyncHistoryEntry
	err := db.db.QueryRowContext(ctx, query, id).Scan(
		&entry.ID, &entry.SyncType, &entry.StartedAt, &entry.CompletedAt, &entry.Status,
		&entry.TotalRecords, &entry.SyncedRecords, &entry.FailedRecords,
		&entry.DurationMs, &entry.ErrorMessage,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get history entry %d: %w", id, err)
	}
	return &entry, nil
}

// ListHistory returns the most recent runs for a sync type, newest first.
func (db *DB) ListHistory(ctx context.Context, syncType string, limit int) ([]models.SyncHistoryEntry, error) {
	query := `SELECT id, sync_type, started_at, completed_at, status, total_records,
                     synced_records, failed_records, duration_ms, error_message
              FROM sync_history WHERE sync_type = ? ORDER BY started_at DESC LIMIT ?`

	rows, err := db.db.QueryContext(ctx, query, syncType, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var entries []models.SyncHistoryEntry
	for rows.Next() {
		var entry models.SyncHistoryEntry
		err := rows.Scan(
			&entry.ID, &entry.SyncType, &entry.StartedAt, &entry.CompletedAt, &entry.Status,
			&entry.TotalRecords, &entry.SyncedRecords, &entry.FailedRecords,
			&entry.DurationMs, &entry.ErrorMessage,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// CreateSyncError appends a structured error linked to a history entry.
func (db *DB) CreateSyncError(ctx context.Context, syncErr *models.SyncError) error {
	query := `INSERT INTO sync_errors (history_id, record_id, error_type, message, stack_trace, retry_count)
              VALUES (?, ?, ?, ?, ?, ?)`
	result, err := db.db.ExecContext(ctx, query,
		syncErr.HistoryID, syncErr.RecordID, syncErr.ErrorType,
		syncErr.Message, syncErr.StackTrace, syncErr.RetryCount,
	)
	if err != nil {
		return fmt.Errorf("failed to create sync error: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	syncErr.ID = id
	return nil
}

// ResolveSyncError flips the resolved flag; the only mutation sync_errors
// rows ever see.
func (db *DB) ResolveSyncError(ctx context.Context, id int64, at time.Time) error {
	query := `UPDATE sync_errors SET resolved = 1, resolved_at = ? WHERE id = ?`
	if _, err := db.db.ExecContext(ctx, query, at, id); err != nil {
		return fmt.Errorf("failed to resolve sync error %d: %w", id, err)
	}
	return nil
}

// CountUnresolvedErrors counts open errors across all runs of a sync type.
func (db *DB) CountUnresolvedErrors(ctx context.Context, syncType string) (int, error) {
	query := `SELECT COUNT(*) FROM sync_errors e
              JOIN sync_history h ON h.id = e.history_id
              WHERE h.sync_type = ? AND e.resolved = 0`

	var count int
	if err := db.db.QueryRowContext(ctx, query, syncType).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unresolved errors: %w", err)
	}
	return count, nil
}

// CleanupOldHistory deletes closed history entries past the retention
// window, together with their linked errors.
func (db *DB) CleanupOldHistory(ctx context.Context, olderThanDays int) (int64, error) {
	if olderThanDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)

	_, err := db.db.ExecContext(ctx,
		`DELETE FROM sync_errors WHERE history_id IN
             (SELECT id FROM sync_history WHERE completed_at IS NOT NULL AND completed_at < ?)`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old sync errors: %w", err)
	}

	result, err := db.db.ExecContext(ctx,
		`DELETE FROM sync_history WHERE completed_at IS NOT NULL AND completed_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old history: %w", err)
	}
	return result.RowsAffected()
}
