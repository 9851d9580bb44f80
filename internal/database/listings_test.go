package database

import (
	"context"
	"testing"

	"estatesync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertRecordIdempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	record := models.Record{
		models.KeyField: "B-1001",
		"property_name": "サンライズマンション202",
		"sale_price":    float64(32000000),
	}

	require.NoError(t, db.UpsertRecord(ctx, record))
	require.NoError(t, db.UpsertRecord(ctx, record))

	count, err := db.CountListings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := db.GetListing(ctx, "B-1001")
	require.NoError(t, err)
	assert.Equal(t, "サンライズマンション202", got.Text("property_name"))
	price, ok := got.Number("sale_price")
	require.True(t, ok)
	assert.Equal(t, float64(32000000), price)
}

func TestUpsertRecordOverwritesFields(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.UpsertRecord(ctx, models.Record{models.KeyField: "B-2", "status": "査定中"}))
	require.NoError(t, db.UpsertRecord(ctx, models.Record{models.KeyField: "B-2", "status": "媒介契約済"}))

	got, err := db.GetListing(ctx, "B-2")
	require.NoError(t, err)
	assert.Equal(t, "媒介契約済", got.Text("status"))
}

func TestUpsertRecordMissingKey(t *testing.T) {
	db := setupTestDB(t)

	err := db.UpsertRecord(context.Background(), models.Record{"property_name": "キーなし"})
	assert.ErrorIs(t, err, ErrMissingNaturalKey)
}

func TestUpsertRecordsBatch(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	records := []models.Record{
		{models.KeyField: "B-10", "status": "a"},
		{models.KeyField: "B-11", "status": "b"},
		{models.KeyField: "B-12", "status": "c"},
	}
	require.NoError(t, db.UpsertRecords(ctx, records))

	count, err := db.CountListings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestUpsertRecordsBatchFailsAsWhole(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	records := []models.Record{
		{models.KeyField: "B-20", "status": "a"},
		{"status": "no key"},
	}
	err := db.UpsertRecords(ctx, records)
	require.ErrorIs(t, err, ErrMissingNaturalKey)

	// Transaction rolled back: nothing from the batch was applied.
	count, err := db.CountListings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestGetListingNotFound(t *testing.T) {
	db := setupTestDB(t)

	got, err := db.GetListing(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}
