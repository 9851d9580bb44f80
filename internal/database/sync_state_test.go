package database

import (
	"context"
	"testing"
	"time"

	"estatesync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncStateDefaultsToIdle(t *testing.T) {
	db := setupTestDB(t)

	state, err := db.GetSyncState(context.Background(), "listings")
	require.NoError(t, err)
	assert.Equal(t, models.SyncIdle, state.Status)
	assert.Equal(t, "listings", state.SyncType)
	assert.Nil(t, state.LastSyncAt)
}

func TestSyncStateRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	now := time.Now()
	errMsg := "store unavailable"
	state := &models.SyncState{
		SyncType:      "listings",
		Status:        models.SyncFailed,
		LastSyncAt:    &now,
		TotalRecords:  25,
		SyncedRecords: 20,
		FailedRecords: 5,
		ErrorMessage:  &errMsg,
	}
	require.NoError(t, db.SaveSyncState(ctx, state))

	got, err := db.GetSyncState(ctx, "listings")
	require.NoError(t, err)
	assert.Equal(t, models.SyncFailed, got.Status)
	assert.Equal(t, 25, got.TotalRecords)
	assert.Equal(t, 5, got.FailedRecords)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "store unavailable", *got.ErrorMessage)

	// Saving again overwrites the same row.
	state.Status = models.SyncIdle
	state.ErrorMessage = nil
	require.NoError(t, db.SaveSyncState(ctx, state))

	got, err = db.GetSyncState(ctx, "listings")
	require.NoError(t, err)
	assert.Equal(t, models.SyncIdle, got.Status)
	assert.Nil(t, got.ErrorMessage)
}

func TestHistoryLifecycle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	entry := &models.SyncHistoryEntry{
		SyncType:     "listings",
		StartedAt:    time.Now().Add(-2 * time.Second),
		Status:       models.RunRunning,
		TotalRecords: 30,
	}
	require.NoError(t, db.CreateHistoryEntry(ctx, entry))
	require.NotZero(t, entry.ID)

	require.NoError(t, db.UpdateHistoryProgress(ctx, entry.ID, 10, 1))

	got, err := db.GetHistoryEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.SyncedRecords)
	assert.Equal(t, 1, got.FailedRecords)
	assert.Nil(t, got.CompletedAt)

	completed := time.Now()
	entry.CompletedAt = &completed
	entry.Status = models.RunPartial
	entry.SyncedRecords = 28
	entry.FailedRecords = 2
	entry.DurationMs = 2000
	require.NoError(t, db.CloseHistoryEntry(ctx, entry))

	got, err = db.GetHistoryEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunPartial, got.Status)
	assert.Equal(t, int64(2000), got.DurationMs)
	require.NotNil(t, got.CompletedAt)
}

func TestListHistoryNewestFirst(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		entry := &models.SyncHistoryEntry{
			SyncType:  "listings",
			StartedAt: time.Now().Add(time.Duration(i) * time.Minute),
			Status:    models.RunCompleted,
		}
		require.NoError(t, db.CreateHistoryEntry(ctx, entry))
	}

	entries, err := db.ListHistory(ctx, "listings", 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].StartedAt.After(entries[1].StartedAt))
}

func TestSyncErrors(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	entry := &models.SyncHistoryEntry{SyncType: "listings", StartedAt: time.Now(), Status: models.RunRunning}
	require.NoError(t, db.CreateHistoryEntry(ctx, entry))

	syncErr := &models.SyncError{
		HistoryID:  entry.ID,
		RecordID:   "B-9",
		ErrorType:  "network",
		Message:    "connection reset",
		RetryCount: 3,
	}
	require.NoError(t, db.CreateSyncError(ctx, syncErr))

	count, err := db.CountUnresolvedErrors(ctx, "listings")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, db.ResolveSyncError(ctx, syncErr.ID, time.Now()))

	count, err = db.CountUnresolvedErrors(ctx, "listings")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestCleanupOldHistory(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	entry := &models.SyncHistoryEntry{SyncType: "listings", StartedAt: time.Now(), Status: models.RunRunning}
	require.NoError(t, db.CreateHistoryEntry(ctx, entry))
	require.NoError(t, db.CreateSyncError(ctx, &models.SyncError{HistoryID: entry.ID, ErrorType: "unknown", Message: "x"}))

	// Backdate completion past the retention window.
	old := time.Now().AddDate(0, 0, -10)
	_, err := db.ExecContext(ctx, `UPDATE sync_history SET completed_at = ? WHERE id = ?`, old, entry.ID)
	require.NoError(t, err)

	deleted, err := db.CleanupOldHistory(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	count, err := db.CountUnresolvedErrors(ctx, "listings")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
