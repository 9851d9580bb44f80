package syncer

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"estatesync/internal/domain"
	"estatesync/internal/events"
	"estatesync/internal/metrics"
	"estatesync/internal/models"
	"estatesync/internal/retry"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ProcessorConfig tunes chunking, concurrency and the outbound call rate.
type ProcessorConfig struct {
	BatchSize   int
	Concurrency int
	RateLimit   float64 // store calls per second
	RateBurst   int
}

// BatchProcessor pushes record batches through a bounded worker pool with
// a shared rate limiter in front of every store call. Construct one per
// process and close it on shutdown; it must not be used after Close.
type BatchProcessor struct {
	store   domain.RecordStore
	retrier *retry.Retrier
	queue   *retry.Queue
	bus     domain.Publisher
	limiter *rate.Limiter
	cfg     ProcessorConfig
	logger  *zerolog.Logger

	tasks     chan func()
	workers   sync.WaitGroup
	closeOnce sync.Once
}

// NewBatchProcessor starts the worker pool. queue may be nil when no
// durable escalation is wanted, and bus may be nil when nobody listens
// for queued-change events.
func NewBatchProcessor(store domain.RecordStore, retrier *retry.Retrier, queue *retry.Queue, bus domain.Publisher, cfg ProcessorConfig, logger *zerolog.Logger) *BatchProcessor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = models.DefaultBatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = models.DefaultConcurrency
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = models.DefaultRateLimit
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 1
	}

	p := &BatchProcessor{
		store:   store,
		retrier: retrier,
		queue:   queue,
		bus:     bus,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		cfg:     cfg,
		logger:  logger,
		tasks:   make(chan func(), cfg.Concurrency*2),
	}

	for i := 0; i < cfg.Concurrency; i++ {
		p.workers.Add(1)
		go func() {
			defer p.workers.Done()
			for task := range p.tasks {
				task()
			}
		}()
	}

	return p
}

// Close drains the worker pool. In-flight ProcessBatch calls must have
// returned before Close.
func (p *BatchProcessor) Close() {
	p.closeOnce.Do(func() {
		close(p.tasks)
		p.workers.Wait()
	})
}

// ProcessBatch splits records into chunks, bulk-upserts each chunk and
// falls back to per-record upserts when a bulk call fails. It returns only
// after every scheduled task has finished, so the outcome counters reflect
// the whole record set. onProgress, when non-nil, is called after each
// chunk with the running success and failure counts; counts across calls
// never decrease.
func (p *BatchProcessor) ProcessBatch(ctx context.Context, records []models.Record, syncID string, onProgress func(success, failed int)) *models.BatchOutcome {
	outcome := &models.BatchOutcome{
		SyncID:    syncID,
		StartedAt: time.Now(),
		Stats:     models.BatchStats{Total: len(records)},
	}

	if len(records) == 0 {
		outcome.Status = models.RunCompleted
		outcome.CompletedAt = time.Now()
		return outcome
	}

	agg := &aggregator{}
	var pending sync.WaitGroup

	for start := 0; start < len(records); start += p.cfg.BatchSize {
		end := start + p.cfg.BatchSize
		if end > len(records) {
			end = len(records)
		}
		chunk := records[start:end]

		pending.Add(1)
		task := func() {
			defer pending.Done()
			p.processChunk(ctx, chunk, agg)
			agg.report(onProgress)
		}

		if err := p.submit(ctx, task); err != nil {
			pending.Done()
			for _, record := range chunk {
				agg.addFailure(record.NaturalKey(), err.Error())
			}
			agg.report(onProgress)
		}
	}

	pending.Wait()

	success, failed, errors := agg.snapshot()
	outcome.Stats.Success = success
	outcome.Stats.Failed = failed
	outcome.Errors = errors
	outcome.CompletedAt = time.Now()

	switch {
	case failed == 0:
		outcome.Status = models.RunCompleted
	case success == 0:
		outcome.Status = models.RunFailed
	default:
		outcome.Status = models.RunPartial
	}

	metrics.AddRecords("success", success)
	metrics.AddRecords("failed", failed)

	p.logger.Info().
		Str("sync_id", syncID).
		Int("total", outcome.Stats.Total).
		Int("success", success).
		Int("failed", failed).
		Str("status", string(outcome.Status)).
		Msg("batch processed")

	return outcome
}

// submit hands a task to the pool, giving up when ctx is cancelled first.
func (p *BatchProcessor) submit(ctx context.Context, task func()) error {
	select {
	case p.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *BatchProcessor) processChunk(ctx context.Context, chunk []models.Record, agg *aggregator) {
	if err := p.limiter.Wait(ctx); err != nil {
		for _, record := range chunk {
			agg.addFailure(record.NaturalKey(), err.Error())
		}
		return
	}

	err := p.store.UpsertRecords(ctx, chunk)
	if err == nil {
		agg.addSuccess(len(chunk))
		return
	}
	p.logger.Debug().Err(err).Int("chunk_size", len(chunk)).Msg("bulk upsert failed, retrying records individually")

	// A failing chunk does not fail wholesale: every record gets its own
	// attempt and only the stragglers are reported.
	for _, record := range chunk {
		p.processRecord(ctx, record, agg)
	}
}

func (p *BatchProcessor) processRecord(ctx context.Context, record models.Record, agg *aggregator) {
	key := record.NaturalKey()
	if key == "" {
		agg.addFailure("", "record has no natural key")
		return
	}

	result := p.retrier.Do(ctx, func(ctx context.Context) error {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
		return p.store.UpsertRecord(ctx, record)
	}, nil)

	for i := 1; i < result.Attempts; i++ {
		metrics.IncRetryAttempt()
	}

	if result.Success() {
		agg.addSuccess(1)
		return
	}

	agg.addFailure(key, result.Err.Error())

	// Retryable failures escalate to the durable queue; anything else is
	// already recorded in the outcome and retrying would not help.
	if p.queue == nil || !retry.IsRetryable(result.Err) {
		return
	}

	payload, err := json.Marshal(record)
	if err != nil {
		p.logger.Error().Err(err).Str("natural_key", key).Msg("failed to encode record for queue")
		return
	}

	errMsg := result.Err.Error()
	change := &models.PendingChange{
		NaturalKey:  key,
		FieldName:   models.ChangeFieldRecord,
		NewValue:    string(payload),
		AttemptedAt: time.Now(),
		LastError:   &errMsg,
	}
	if err := p.queue.QueueFailedChange(ctx, change); err != nil {
		p.logger.Error().Err(err).Str("natural_key", key).Msg("failed to queue change")
		return
	}

	if p.bus != nil {
		if err := p.bus.PublishJSON(events.EventChangeQueued, events.SyncEventPayload{NaturalKey: key, Error: errMsg}); err != nil {
			p.logger.Warn().Err(err).Str("natural_key", key).Msg("failed to publish change_queued event")
		}
	}
}

// aggregator collects counters from concurrent chunk tasks. All writes go
// through the mutex; nothing else shares state across workers.
type aggregator struct {
	mu      sync.Mutex
	success int
	failed  int
	errors  []models.ItemError
}

func (a *aggregator) addSuccess(n int) {
	a.mu.Lock()
	a.success += n
	a.mu.Unlock()
}

func (a *aggregator) addFailure(naturalKey, message string) {
	a.mu.Lock()
	a.failed++
	a.errors = append(a.errors, models.ItemError{
		NaturalKey: naturalKey,
		Message:    message,
		Timestamp:  time.Now(),
	})
	a.mu.Unlock()
}

// report invokes fn under the lock, so callers see the running counts in
// nondecreasing order even with concurrent chunk tasks.
func (a *aggregator) report(fn func(success, failed int)) {
	if fn == nil {
		return
	}
	a.mu.Lock()
	fn(a.success, a.failed)
	a.mu.Unlock()
}

func (a *aggregator) snapshot() (success, failed int, errors []models.ItemError) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.success, a.failed, a.errors
}
