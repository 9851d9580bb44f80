package database

import (
	"context"
	"testing"
	"time"

	"estatesync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingChangeLifecycle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	change := &models.PendingChange{
		NaturalKey: "B-100",
		FieldName:  "record",
		NewValue:   `{"listing_no":"B-100"}`,
	}
	require.NoError(t, db.CreatePendingChange(ctx, change))
	require.NotZero(t, change.ID)
	assert.Equal(t, models.ChangePending, change.Status)

	pending, err := db.GetPendingChanges(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "B-100", pending[0].NaturalKey)

	// processing -> back to pending increments the retry counter
	require.NoError(t, db.UpdateChangeStatus(ctx, change.ID, models.ChangeProcessing, ""))
	require.NoError(t, db.UpdateChangeStatus(ctx, change.ID, models.ChangePending, "timeout"))

	pending, err = db.GetPendingChanges(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].RetryCount)
	require.NotNil(t, pending[0].LastError)
	assert.Equal(t, "timeout", *pending[0].LastError)

	// terminal states leave the pending set
	require.NoError(t, db.UpdateChangeStatus(ctx, change.ID, models.ChangeCompleted, ""))
	pending, err = db.GetPendingChanges(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestPendingChangesOldestFirst(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	newer := &models.PendingChange{NaturalKey: "B-2", FieldName: "record", AttemptedAt: time.Now()}
	older := &models.PendingChange{NaturalKey: "B-1", FieldName: "record", AttemptedAt: time.Now().Add(-time.Hour)}
	require.NoError(t, db.CreatePendingChange(ctx, newer))
	require.NoError(t, db.CreatePendingChange(ctx, older))

	pending, err := db.GetPendingChanges(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "B-1", pending[0].NaturalKey)
	assert.Equal(t, "B-2", pending[1].NaturalKey)
}

func TestPendingChangesLimit(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, db.CreatePendingChange(ctx, &models.PendingChange{NaturalKey: "B-x", FieldName: "record"}))
	}

	pending, err := db.GetPendingChanges(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, pending, 3)

	count, err := db.CountPendingChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestFailedChangesExcluded(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	change := &models.PendingChange{NaturalKey: "B-1", FieldName: "record"}
	require.NoError(t, db.CreatePendingChange(ctx, change))
	require.NoError(t, db.UpdateChangeStatus(ctx, change.ID, models.ChangeFailed, "exhausted"))

	pending, err := db.GetPendingChanges(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	count, err := db.CountPendingChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestCleanupOldChanges(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	keep := &models.PendingChange{NaturalKey: "B-keep", FieldName: "record"}
	drop := &models.PendingChange{NaturalKey: "B-drop", FieldName: "record"}
	require.NoError(t, db.CreatePendingChange(ctx, keep))
	require.NoError(t, db.CreatePendingChange(ctx, drop))

	require.NoError(t, db.UpdateChangeStatus(ctx, drop.ID, models.ChangeCompleted, ""))
	old := time.Now().AddDate(0, 0, -40)
	_, err := db.ExecContext(ctx, `UPDATE pending_changes SET processed_at = ? WHERE id = ?`, old, drop.ID)
	require.NoError(t, err)

	deleted, err := db.CleanupOldChanges(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	// Still-pending rows survive cleanup regardless of age.
	count, err := db.CountPendingChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
