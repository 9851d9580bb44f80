package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"estatesync/internal/models"
)

// ErrMissingNaturalKey is returned for records without a listing number.
// Such records can never be upserted and must not be retried.
var ErrMissingNaturalKey = errors.New("record has no natural key")

// UpsertRecord inserts or updates one listing keyed by its listing number.
func (db *DB) UpsertRecord(ctx context.Context, record models.Record) error {
	key := record.NaturalKey()
	if key == "" {
		return ErrMissingNaturalKey
	}

	fields, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode record %s: %w", key, err)
	}

	query := `INSERT INTO listings (listing_no, fields, updated_at) VALUES (?, ?, ?)
              ON CONFLICT(listing_no) DO UPDATE SET fields = excluded.fields, updated_at = excluded.updated_at`
	if _, err := db.db.ExecContext(ctx, query, key, string(fields), time.Now()); err != nil {
		return fmt.Errorf("failed to upsert record %s: %w", key, err)
	}
	return nil
}

// UpsertRecords applies a batch of listings in one transaction. The batch
// fails as a whole; callers fall back to per-record upserts.
func (db *DB) UpsertRecords(ctx context.Context, records []models.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO listings (listing_no, fields, updated_at) VALUES (?, ?, ?)
              ON CONFLICT(listing_no) DO UPDATE SET fields = excluded.fields, updated_at = excluded.updated_at`
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, record := range records {
		key := record.NaturalKey()
		if key == "" {
			return fmt.Errorf("batch upsert: %w", ErrMissingNaturalKey)
		}
		fields, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to encode record %s: %w", key, err)
		}
		if _, err := stmt.ExecContext(ctx, key, string(fields), now); err != nil {
			return fmt.Errorf("failed to upsert record %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch upsert: %w", err)
	}
	return nil
}

// GetListing loads one listing by its natural key.
func (db *DB) GetListing(ctx context.Context, naturalKey string) (models.Record, error) {
	var fields string
	query := `SELECT fields FROM listings WHERE listing_no = ?`
	err := db.db.QueryRowContext(ctx, query, naturalKey).Scan(&fields)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get listing %s: %w", naturalKey, err)
	}

	var record models.Record
	if err := json.Unmarshal([]byte(fields), &record); err != nil {
		return nil, fmt.Errorf("failed to decode listing %s: %w", naturalKey, err)
	}
	return record, nil
}

// CountListings returns the number of stored listings.
func (db *DB) CountListings(ctx context.Context) (int, error) {
	var count int
	err := db.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM listings`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count listings: %w", err)
	}
	return count, nil
}
