package database

import (
	"context"
	"fmt"
	"time"

	"estatesync/internal/models"
)

// CreatePendingChange persists a change whose immediate retries were
// exhausted, for a later asynchronous drain.
func (db *DB) CreatePendingChange(ctx context.Context, change *models.PendingChange) error {
	if change.Status == "" {
		change.Status = models.ChangePending
	}
	if change.AttemptedAt.IsZero() {
		change.AttemptedAt = time.Now()
	}

	query := `INSERT INTO pending_changes (natural_key, field_name, old_value, new_value,
                                           attempted_at, retry_count, last_error, status)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := db.db.ExecContext(ctx, query,
		change.NaturalKey, change.FieldName, change.OldValue, change.NewValue,
		change.AttemptedAt, change.RetryCount, change.LastError, change.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to create pending change: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	change.ID = id
	return nil
}

// GetPendingChanges returns pending changes oldest-first. Rows already
// completed or permanently failed are never returned.
func (db *DB) GetPendingChanges(ctx context.Context, limit int) ([]models.PendingChange, error) {
	query := `SELECT id, natural_key, field_name, old_value, new_value,
                     attempted_at, retry_count, last_error, status
              FROM pending_changes WHERE status = 'pending'
              ORDER BY attempted_at ASC, id ASC LIMIT ?`

	rows, err := db.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending changes: %w", err)
	}
	defer rows.Close()

	var changes []models.PendingChange
	for rows.Next() {
		var c models.PendingChange
		err := rows.Scan(
			&c.ID, &c.NaturalKey, &c.FieldName, &c.OldValue, &c.NewValue,
			&c.AttemptedAt, &c.RetryCount, &c.LastError, &c.Status,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending change: %w", err)
		}
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

// UpdateChangeStatus transitions a change. Re-entering pending increments
// the retry counter; terminal transitions stamp processed_at.
func (db *DB) UpdateChangeStatus(ctx context.Context, id int64, status models.ChangeStatus, errMsg string) error {
	var query string
	var args []any
	now := time.Now()

	var lastError any
	if errMsg != "" {
		lastError = errMsg
	}

	switch status {
	case models.ChangePending:
		query = `UPDATE pending_changes SET status = ?, last_error = ?, retry_count = retry_count + 1 WHERE id = ?`
		args = []any{status, lastError, id}
	case models.ChangeCompleted, models.ChangeFailed:
		query = `UPDATE pending_changes SET status = ?, last_error = ?, processed_at = ? WHERE id = ?`
		args = []any{status, lastError, now, id}
	default:
		query = `UPDATE pending_changes SET status = ?, last_error = ? WHERE id = ?`
		args = []any{status, lastError, id}
	}

	if _, err := db.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update pending change %d: %w", id, err)
	}
	return nil
}

// ResetChangeToPending returns an in-flight change to the pending pool
// without touching its retry counter. Used when a drain is interrupted
// rather than the change itself failing.
func (db *DB) ResetChangeToPending(ctx context.Context, id int64) error {
	query := `UPDATE pending_changes SET status = ? WHERE id = ? AND status = ?`
	if _, err := db.db.ExecContext(ctx, query, models.ChangePending, id, models.ChangeProcessing); err != nil {
		return fmt.Errorf("failed to reset pending change %d: %w", id, err)
	}
	return nil
}

// CountPendingChanges reports the current queue depth.
func (db *DB) CountPendingChanges(ctx context.Context) (int, error) {
	var count int
	err := db.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_changes WHERE status = 'pending'`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending changes: %w", err)
	}
	return count, nil
}

// CleanupOldChanges deletes completed and failed rows past the retention
// window.
func (db *DB) CleanupOldChanges(ctx context.Context, olderThanDays int) (int64, error) {
	if olderThanDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)

	result, err := db.db.ExecContext(ctx,
		`DELETE FROM pending_changes WHERE status IN ('completed', 'failed') AND processed_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old changes: %w", err)
	}
	return result.RowsAffected()
}
