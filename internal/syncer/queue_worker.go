package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"estatesync/internal/domain"
	"estatesync/internal/models"
	"estatesync/internal/retry"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// QueueWorker drains the pending-change queue in the background. A redis
// wake key lets producers interrupt the poll sleep immediately after
// enqueueing; without redis the worker falls back to plain polling.
type QueueWorker struct {
	queue        *retry.Queue
	store        domain.RecordStore
	retrier      *retry.Retrier
	redis        *redis.Client
	wakeKey      string
	deadLetter   string
	pollInterval time.Duration
	drainLimit   int
	logger       *zerolog.Logger
}

func NewQueueWorker(queue *retry.Queue, store domain.RecordStore, retrier *retry.Retrier, redisClient *redis.Client, pollInterval time.Duration, logger *zerolog.Logger) *QueueWorker {
	if pollInterval <= 0 {
		pollInterval = time.Duration(models.DefaultQueuePollSeconds) * time.Second
	}
	return &QueueWorker{
		queue:        queue,
		store:        store,
		retrier:      retrier,
		redis:        redisClient,
		wakeKey:      models.QueueWakeKey,
		deadLetter:   models.DeadLetterKey,
		pollInterval: pollInterval,
		drainLimit:   100,
		logger:       logger,
	}
}

// Notify wakes the worker so newly queued changes are picked up without
// waiting out the poll interval. Errors are logged, not returned: the
// poll loop is the fallback.
func (w *QueueWorker) Notify(ctx context.Context) {
	if w.redis == nil {
		return
	}
	if err := w.redis.LPush(ctx, w.wakeKey, time.Now().UnixNano()).Err(); err != nil {
		w.logger.Warn().Err(err).Msg("queue worker wake push failed")
	}
}

// Start runs the drain loop until ctx is done.
func (w *QueueWorker) Start(ctx context.Context) {
	w.logger.Info().Dur("poll_interval", w.pollInterval).Msg("queue worker started")
	defer w.logger.Info().Msg("queue worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		completed, deadLettered, err := w.DrainOnce(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error().Err(err).Msg("queue drain failed")
		}
		if completed > 0 || deadLettered > 0 {
			w.logger.Info().Int("completed", completed).Int("dead_lettered", deadLettered).Msg("queue drained")
			continue
		}

		w.waitForWake(ctx)
	}
}

// DrainOnce processes currently pending changes and dead-letters the ones
// that used up their retry budget.
func (w *QueueWorker) DrainOnce(ctx context.Context) (completed, deadLettered int, err error) {
	completed, failed, err := w.queue.ProcessQueue(ctx, w.applyChange)
	if err != nil {
		return completed, 0, err
	}
	for i := range failed {
		w.pushDeadLetter(ctx, &failed[i])
	}
	return completed, len(failed), nil
}

// applyChange replays a queued record change against the store. The whole
// record rides in NewValue as JSON.
func (w *QueueWorker) applyChange(ctx context.Context, change models.PendingChange) error {
	if change.FieldName != models.ChangeFieldRecord {
		return fmt.Errorf("unsupported change field %q", change.FieldName)
	}
	if change.NewValue == "" {
		return errors.New("queued change has no payload")
	}

	var record models.Record
	if err := json.Unmarshal([]byte(change.NewValue), &record); err != nil {
		return fmt.Errorf("decode queued record %s: %w", change.NaturalKey, err)
	}

	result := w.retrier.Do(ctx, func(ctx context.Context) error {
		return w.store.UpsertRecord(ctx, record)
	}, nil)
	return result.Err
}

// waitForWake blocks on the redis wake key, or sleeps the poll interval
// when redis is unavailable.
func (w *QueueWorker) waitForWake(ctx context.Context) {
	if w.redis == nil {
		select {
		case <-ctx.Done():
		case <-time.After(w.pollInterval):
		}
		return
	}

	_, err := w.redis.BRPop(ctx, w.pollInterval, w.wakeKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		w.logger.Warn().Err(err).Msg("queue worker wake wait failed")
		select {
		case <-ctx.Done():
		case <-time.After(w.pollInterval):
		}
	}
}

func (w *QueueWorker) pushDeadLetter(ctx context.Context, change *models.PendingChange) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(change)
	if err != nil {
		w.logger.Error().Err(err).Int64("change_id", change.ID).Msg("encode dead letter")
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetter, data).Err(); err != nil {
		w.logger.Error().Err(err).Int64("change_id", change.ID).Msg("push dead letter")
	}
}
