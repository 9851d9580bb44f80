package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"estatesync/internal/domain"
	"estatesync/internal/models"
	"estatesync/internal/retry"

	"github.com/rs/zerolog"
)

// ErrSyncAlreadyRunning is returned when a run is started for a sync type
// that is already running or paused.
var ErrSyncAlreadyRunning = errors.New("sync is already running")

// StateManager tracks the lifecycle of sync runs: one current-state row
// per sync type, an append-only history, and structured errors. It assumes
// a single active synchronizer instance; there is no cross-process lock.
type StateManager struct {
	store  domain.StateStore
	logger *zerolog.Logger
}

func NewStateManager(store domain.StateStore, logger *zerolog.Logger) *StateManager {
	return &StateManager{store: store, logger: logger}
}

// StartSync transitions the sync type to running, opens a history entry
// and returns its id.
func (m *StateManager) StartSync(ctx context.Context, syncType string, totalRecords int) (int64, error) {
	state, err := m.store.GetSyncState(ctx, syncType)
	if err != nil {
		return 0, err
	}
	if state.Status == models.SyncRunning || state.Status == models.SyncPaused {
		return 0, fmt.Errorf("%w: %s is %s", ErrSyncAlreadyRunning, syncType, state.Status)
	}

	now := time.Now()
	entry := &models.SyncHistoryEntry{
		SyncType:     syncType,
		StartedAt:    now,
		Status:       models.RunRunning,
		TotalRecords: totalRecords,
	}
	if err := m.store.CreateHistoryEntry(ctx, entry); err != nil {
		return 0, err
	}

	state.Status = models.SyncRunning
	state.LastSyncAt = &now
	state.TotalRecords = totalRecords
	state.SyncedRecords = 0
	state.FailedRecords = 0
	state.ErrorMessage = nil
	if err := m.store.SaveSyncState(ctx, state); err != nil {
		return 0, err
	}

	m.logger.Info().Str("sync_type", syncType).Int64("history_id", entry.ID).Int("total", totalRecords).Msg("sync started")
	return entry.ID, nil
}

// UpdateProgress refreshes counters on both the current-state row and the
// open history entry. Called periodically during a run, not per record.
func (m *StateManager) UpdateProgress(ctx context.Context, syncType string, historyID int64, synced, failed int) error {
	state, err := m.store.GetSyncState(ctx, syncType)
	if err != nil {
		return err
	}
	state.SyncedRecords = synced
	state.FailedRecords = failed
	if err := m.store.SaveSyncState(ctx, state); err != nil {
		return err
	}

	return m.store.UpdateHistoryProgress(ctx, historyID, synced, failed)
}

// CompleteSync closes the history entry with the run's outcome and flips
// the current state back to idle, or to failed when nothing succeeded.
func (m *StateManager) CompleteSync(ctx context.Context, syncType string, historyID int64, outcome *models.BatchOutcome) error {
	entry, err := m.store.GetHistoryEntry(ctx, historyID)
	if err != nil {
		return err
	}

	now := time.Now()
	entry.CompletedAt = &now
	entry.Status = outcome.Status
	entry.TotalRecords = outcome.Stats.Total
	entry.SyncedRecords = outcome.Stats.Success
	entry.FailedRecords = outcome.Stats.Failed
	entry.DurationMs = now.Sub(entry.StartedAt).Milliseconds()
	if outcome.Stats.Failed > 0 {
		msg := fmt.Sprintf("%d of %d records failed", outcome.Stats.Failed, outcome.Stats.Total)
		entry.ErrorMessage = &msg
	}
	if err := m.store.CloseHistoryEntry(ctx, entry); err != nil {
		return err
	}

	state, err := m.store.GetSyncState(ctx, syncType)
	if err != nil {
		return err
	}
	state.LastSyncAt = &now
	state.TotalRecords = outcome.Stats.Total
	state.SyncedRecords = outcome.Stats.Success
	state.FailedRecords = outcome.Stats.Failed
	state.ErrorMessage = entry.ErrorMessage
	if outcome.Status == models.RunFailed {
		state.Status = models.SyncFailed
	} else {
		state.Status = models.SyncIdle
	}
	if outcome.Status == models.RunCompleted {
		state.LastSuccessfulSyncAt = &now
	}
	if err := m.store.SaveSyncState(ctx, state); err != nil {
		return err
	}

	m.logger.Info().
		Str("sync_type", syncType).
		Int64("history_id", historyID).
		Str("status", string(outcome.Status)).
		Int64("duration_ms", entry.DurationMs).
		Msg("sync completed")
	return nil
}

// LogError appends a structured error to the run.
func (m *StateManager) LogError(ctx context.Context, historyID int64, recordID string, cause error, retryCount int) error {
	syncErr := &models.SyncError{
		HistoryID:  historyID,
		RecordID:   recordID,
		ErrorType:  string(retry.Classify(cause)),
		Message:    cause.Error(),
		StackTrace: fmt.Sprintf("%+v", cause),
		RetryCount: retryCount,
	}
	return m.store.CreateSyncError(ctx, syncErr)
}

// ResolveError marks a structured error as handled.
func (m *StateManager) ResolveError(ctx context.Context, id int64) error {
	return m.store.ResolveSyncError(ctx, id, time.Now())
}

// IsSyncRunning is a plain status check; callers use it to avoid starting
// overlapping runs of the same type. It is read-then-act, safe only under
// the single-instance assumption.
func (m *StateManager) IsSyncRunning(ctx context.Context, syncType string) (bool, error) {
	state, err := m.store.GetSyncState(ctx, syncType)
	if err != nil {
		return false, err
	}
	return state.Status == models.SyncRunning, nil
}

// Pause suspends a sync type from any state.
func (m *StateManager) Pause(ctx context.Context, syncType string) error {
	state, err := m.store.GetSyncState(ctx, syncType)
	if err != nil {
		return err
	}
	state.Status = models.SyncPaused
	if err := m.store.SaveSyncState(ctx, state); err != nil {
		return err
	}
	m.logger.Info().Str("sync_type", syncType).Msg("sync paused")
	return nil
}

// Resume returns a paused sync type to idle. Other states are untouched.
func (m *StateManager) Resume(ctx context.Context, syncType string) error {
	state, err := m.store.GetSyncState(ctx, syncType)
	if err != nil {
		return err
	}
	if state.Status != models.SyncPaused {
		return nil
	}
	state.Status = models.SyncIdle
	if err := m.store.SaveSyncState(ctx, state); err != nil {
		return err
	}
	m.logger.Info().Str("sync_type", syncType).Msg("sync resumed")
	return nil
}

// Health summarizes the sync type for status reporting.
type Health struct {
	State            *models.SyncState `json:"state"`
	UnresolvedErrors int               `json:"unresolved_errors"`
	LastSuccessAge   *time.Duration    `json:"last_success_age,omitempty"`
}

func (m *StateManager) Health(ctx context.Context, syncType string) (*Health, error) {
	state, err := m.store.GetSyncState(ctx, syncType)
	if err != nil {
		return nil, err
	}

	unresolved, err := m.store.CountUnresolvedErrors(ctx, syncType)
	if err != nil {
		return nil, err
	}

	health := &Health{State: state, UnresolvedErrors: unresolved}
	if state.LastSuccessfulSyncAt != nil {
		age := time.Since(*state.LastSuccessfulSyncAt)
		health.LastSuccessAge = &age
	}
	return health, nil
}

// History exposes recent runs for status reporting.
func (m *StateManager) History(ctx context.Context, syncType string, limit int) ([]models.SyncHistoryEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	return m.store.ListHistory(ctx, syncType, limit)
}
