package retry

import (
	"context"
	"errors"

	"estatesync/internal/domain"
	"estatesync/internal/metrics"
	"estatesync/internal/models"

	"github.com/rs/zerolog"
)

// ErrQueueFull is returned when the pending-change backlog hits its cap.
// Overflow policy is reject-new: the change is reported, not silently
// dropped.
var ErrQueueFull = errors.New("pending change queue is full")

// Queue is the durable side of the retry handler: changes that exhausted
// their immediate retries land here for a later asynchronous drain.
type Queue struct {
	store      domain.ChangeStore
	maxDepth   int
	maxRetries int
	logger     *zerolog.Logger
}

func NewQueue(store domain.ChangeStore, maxDepth, maxRetries int, logger *zerolog.Logger) *Queue {
	if maxDepth <= 0 {
		maxDepth = models.DefaultMaxQueueDepth
	}
	if maxRetries <= 0 {
		maxRetries = models.DefaultMaxRetries
	}
	return &Queue{store: store, maxDepth: maxDepth, maxRetries: maxRetries, logger: logger}
}

// QueueFailedChange persists a change with status pending, enforcing the
// depth cap.
func (q *Queue) QueueFailedChange(ctx context.Context, change *models.PendingChange) error {
	depth, err := q.store.CountPendingChanges(ctx)
	if err != nil {
		return err
	}
	if depth >= q.maxDepth {
		q.logger.Warn().Int("depth", depth).Str("natural_key", change.NaturalKey).Msg("pending queue full, rejecting change")
		return ErrQueueFull
	}

	change.Status = models.ChangePending
	if err := q.store.CreatePendingChange(ctx, change); err != nil {
		return err
	}

	metrics.IncQueuedChange()
	metrics.SetQueueDepth(depth + 1)
	q.logger.Info().
		Str("natural_key", change.NaturalKey).
		Str("field", change.FieldName).
		Msg("change queued for async retry")
	return nil
}

// GetPendingChanges returns up to limit queued changes, oldest first.
func (q *Queue) GetPendingChanges(ctx context.Context, limit int) ([]models.PendingChange, error) {
	return q.store.GetPendingChanges(ctx, limit)
}

// ProcessQueue drains all currently pending changes once. Each change is
// marked processing before the processor runs, then completed on success.
// A change that fails with its retry budget spent, or with an error no
// retry could fix, becomes failed permanently and is returned to the
// caller; otherwise it goes back to pending for a future drain.
func (q *Queue) ProcessQueue(ctx context.Context, processor func(context.Context, models.PendingChange) error) (completed int, failed []models.PendingChange, err error) {
	changes, err := q.store.GetPendingChanges(ctx, q.maxDepth)
	if err != nil {
		return 0, nil, err
	}

	// Status writes must land even when the drain context is cancelled
	// mid-flight, otherwise a change can get stuck in "processing".
	writeCtx := context.WithoutCancel(ctx)

	for _, change := range changes {
		if err := ctx.Err(); err != nil {
			return completed, failed, err
		}

		if err := q.store.UpdateChangeStatus(writeCtx, change.ID, models.ChangeProcessing, ""); err != nil {
			q.logger.Error().Err(err).Int64("change_id", change.ID).Msg("failed to mark change processing")
			continue
		}

		procErr := processor(ctx, change)
		switch {
		case procErr == nil:
			if err := q.store.UpdateChangeStatus(writeCtx, change.ID, models.ChangeCompleted, ""); err != nil {
				q.logger.Error().Err(err).Int64("change_id", change.ID).Msg("failed to mark change completed")
			}
			completed++
		case errors.Is(procErr, context.Canceled) || errors.Is(procErr, context.DeadlineExceeded) || ctx.Err() != nil:
			// An interrupted drain is not a failure of the change itself:
			// put it back untouched so the next drain picks it up.
			if err := q.store.ResetChangeToPending(writeCtx, change.ID); err != nil {
				q.logger.Error().Err(err).Int64("change_id", change.ID).Msg("failed to reset interrupted change")
			}
			return completed, failed, procErr
		case change.RetryCount >= q.maxRetries || !IsRetryable(procErr):
			if err := q.store.UpdateChangeStatus(writeCtx, change.ID, models.ChangeFailed, procErr.Error()); err != nil {
				q.logger.Error().Err(err).Int64("change_id", change.ID).Msg("failed to mark change failed")
			}
			q.logger.Warn().
				Int64("change_id", change.ID).
				Str("natural_key", change.NaturalKey).
				Int("retry_count", change.RetryCount).
				Msg("change permanently failed")
			failed = append(failed, change)
		default:
			if err := q.store.UpdateChangeStatus(writeCtx, change.ID, models.ChangePending, procErr.Error()); err != nil {
				q.logger.Error().Err(err).Int64("change_id", change.ID).Msg("failed to requeue change")
			}
		}
	}

	if depth, err := q.store.CountPendingChanges(ctx); err == nil {
		metrics.SetQueueDepth(depth)
	}
	return completed, failed, nil
}

// CleanupOldChanges deletes terminal rows past the retention window.
func (q *Queue) CleanupOldChanges(ctx context.Context, olderThanDays int) (int64, error) {
	return q.store.CleanupOldChanges(ctx, olderThanDays)
}

// MaxRetries exposes the queue's retry budget.
func (q *Queue) MaxRetries() int {
	return q.maxRetries
}
