package models

import "time"

// SyncStatus is the current-state status of a sync type.
type SyncStatus string

const (
	SyncIdle    SyncStatus = "idle"
	SyncRunning SyncStatus = "running"
	SyncFailed  SyncStatus = "failed"
	SyncPaused  SyncStatus = "paused"
)

// RunStatus describes the outcome of one batch run or history entry.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunPartial   RunStatus = "partial"
	RunFailed    RunStatus = "failed"
)

// ChangeStatus is the lifecycle of a queued pending change.
type ChangeStatus string

const (
	ChangePending    ChangeStatus = "pending"
	ChangeProcessing ChangeStatus = "processing"
	ChangeCompleted  ChangeStatus = "completed"
	ChangeFailed     ChangeStatus = "failed"
)

// SyncState is the single current-truth row per sync type. It is
// overwritten during a run, never appended.
type SyncState struct {
	SyncType             string     `json:"sync_type"`
	Status               SyncStatus `json:"status"`
	LastSyncAt           *time.Time `json:"last_sync_at"`
	LastSuccessfulSyncAt *time.Time `json:"last_successful_sync_at"`
	TotalRecords         int        `json:"total_records"`
	SyncedRecords        int        `json:"synced_records"`
	FailedRecords        int        `json:"failed_records"`
	ErrorMessage         *string    `json:"error_message"`
}

// SyncHistoryEntry is one append-only record of a sync run. Created at
// start, closed at completion, never mutated after close.
type SyncHistoryEntry struct {
	ID            int64      `json:"id"`
	SyncType      string     `json:"sync_type"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at"`
	Status        RunStatus  `json:"status"`
	TotalRecords  int        `json:"total_records"`
	SyncedRecords int        `json:"synced_records"`
	FailedRecords int        `json:"failed_records"`
	DurationMs    int64      `json:"duration_ms"`
	ErrorMessage  *string    `json:"error_message"`
}

// SyncError is a structured error linked to a history entry. Only the
// resolved flag is ever mutated after creation.
type SyncError struct {
	ID         int64      `json:"id"`
	HistoryID  int64      `json:"history_id"`
	RecordID   string     `json:"record_id"`
	ErrorType  string     `json:"error_type"`
	Message    string     `json:"message"`
	StackTrace string     `json:"stack_trace"`
	RetryCount int        `json:"retry_count"`
	Resolved   bool       `json:"resolved"`
	ResolvedAt *time.Time `json:"resolved_at"`
}

// PendingChange is a durable mutation that exhausted its immediate retries
// and waits for an asynchronous queue drain.
type PendingChange struct {
	ID          int64        `json:"id"`
	NaturalKey  string       `json:"natural_key"`
	FieldName   string       `json:"field_name"`
	OldValue    string       `json:"old_value"`
	NewValue    string       `json:"new_value"`
	AttemptedAt time.Time    `json:"attempted_at"`
	RetryCount  int          `json:"retry_count"`
	LastError   *string      `json:"last_error"`
	Status      ChangeStatus `json:"status"`
}

// BatchStats are the aggregate counters of one batch run.
// Success+Failed always equals Total once the run has drained.
type BatchStats struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

// ItemError reports one record that could not be upserted.
type ItemError struct {
	NaturalKey string    `json:"natural_key"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
}

// BatchOutcome is the immutable result of one ProcessBatch call.
type BatchOutcome struct {
	SyncID      string      `json:"sync_id"`
	StartedAt   time.Time   `json:"started_at"`
	CompletedAt time.Time   `json:"completed_at"`
	Stats       BatchStats  `json:"stats"`
	Errors      []ItemError `json:"errors"`
	Status      RunStatus   `json:"status"`
}
