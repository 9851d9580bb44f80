package domain

import (
	"context"
	"time"

	"estatesync/internal/models"
)

// RowSource hands the pipeline an ordered header row plus data rows. The
// core never reads spreadsheets itself.
type RowSource interface {
	Fetch(ctx context.Context) (headers []string, rows [][]any, err error)
}

// RecordStore is the relational store's upsert-by-natural-key surface.
// Repeated application of the same record must be idempotent.
type RecordStore interface {
	UpsertRecord(ctx context.Context, record models.Record) error
	UpsertRecords(ctx context.Context, records []models.Record) error
}

// ChangeStore persists pending changes for a later asynchronous drain.
type ChangeStore interface {
	CreatePendingChange(ctx context.Context, change *models.PendingChange) error
	GetPendingChanges(ctx context.Context, limit int) ([]models.PendingChange, error)
	UpdateChangeStatus(ctx context.Context, id int64, status models.ChangeStatus, errMsg string) error
	ResetChangeToPending(ctx context.Context, id int64) error
	CountPendingChanges(ctx context.Context) (int, error)
	CleanupOldChanges(ctx context.Context, olderThanDays int) (int64, error)
}

// StateStore persists sync state, history and structured errors.
type StateStore interface {
	GetSyncState(ctx context.Context, syncType string) (*models.SyncState, error)
	SaveSyncState(ctx context.Context, state *models.SyncState) error
	CreateHistoryEntry(ctx context.Context, entry *models.SyncHistoryEntry) error
	UpdateHistoryProgress(ctx context.Context, id int64, synced, failed int) error
	CloseHistoryEntry(ctx context.Context, entry *models.SyncHistoryEntry) error
	GetHistoryEntry(ctx context.Context, id int64) (*models.SyncHistoryEntry, error)
	ListHistory(ctx context.Context, syncType string, limit int) ([]models.SyncHistoryEntry, error)
	CreateSyncError(ctx context.Context, syncErr *models.SyncError) error
	ResolveSyncError(ctx context.Context, id int64, at time.Time) error
	CountUnresolvedErrors(ctx context.Context, syncType string) (int, error)
	CleanupOldHistory(ctx context.Context, olderThanDays int) (int64, error)
}

// Publisher fans out sync lifecycle events to in-process subscribers.
type Publisher interface {
	PublishJSON(eventType string, payload any) error
}
