package service

import (
	"context"
	"fmt"
	"time"

	"estatesync/internal/domain"
	"estatesync/internal/events"
	"estatesync/internal/mapper"
	"estatesync/internal/metrics"
	"estatesync/internal/models"
	"estatesync/internal/syncer"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SyncService drives one full synchronization pass: fetch rows, map them
// to records, push them through the batch processor and record the run.
type SyncService struct {
	source    domain.RowSource
	processor *syncer.BatchProcessor
	state     *syncer.StateManager
	worker    *syncer.QueueWorker
	bus       domain.Publisher
	syncType  string
	logger    *zerolog.Logger
}

func NewSyncService(source domain.RowSource, processor *syncer.BatchProcessor, state *syncer.StateManager, worker *syncer.QueueWorker, bus domain.Publisher, syncType string, logger *zerolog.Logger) *SyncService {
	return &SyncService{
		source:    source,
		processor: processor,
		state:     state,
		worker:    worker,
		bus:       bus,
		syncType:  syncType,
		logger:    logger,
	}
}

// Run executes one synchronization pass and returns its outcome. A run
// that cannot start (source failure, another run in flight) returns an
// error and leaves no history entry behind.
func (s *SyncService) Run(ctx context.Context) (*models.BatchOutcome, error) {
	headers, rows, err := s.source.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch source rows: %w", err)
	}

	records := make([]models.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, mapper.MapToRecord(headers, row))
	}

	historyID, err := s.state.StartSync(ctx, s.syncType, len(records))
	if err != nil {
		return nil, err
	}

	syncID := uuid.NewString()
	s.publish(events.EventSyncStarted, events.SyncEventPayload{
		SyncID:       syncID,
		SyncType:     s.syncType,
		TotalRecords: len(records),
		StartedAt:    time.Now(),
	})

	started := time.Now()
	outcome := s.processor.ProcessBatch(ctx, records, syncID, func(success, failed int) {
		if err := s.state.UpdateProgress(ctx, s.syncType, historyID, success, failed); err != nil {
			s.logger.Warn().Err(err).Int64("history_id", historyID).Msg("failed to update sync progress")
		}
	})
	metrics.ObserveBatchDuration(s.syncType, time.Since(started).Seconds())

	for _, itemErr := range outcome.Errors {
		if err := s.state.LogError(ctx, historyID, itemErr.NaturalKey, fmt.Errorf("%s", itemErr.Message), 0); err != nil {
			s.logger.Error().Err(err).Str("natural_key", itemErr.NaturalKey).Msg("failed to log sync error")
		}
		s.publish(events.EventRecordFailed, events.SyncEventPayload{
			SyncID:     syncID,
			SyncType:   s.syncType,
			NaturalKey: itemErr.NaturalKey,
			Error:      itemErr.Message,
		})
	}

	if err := s.state.CompleteSync(ctx, s.syncType, historyID, outcome); err != nil {
		return outcome, fmt.Errorf("failed to close sync run: %w", err)
	}

	metrics.IncSyncRun(s.syncType, string(outcome.Status))

	eventType := events.EventSyncCompleted
	if outcome.Status == models.RunFailed {
		eventType = events.EventSyncFailed
	}
	s.publish(eventType, events.SyncEventPayload{
		SyncID:        syncID,
		SyncType:      s.syncType,
		Status:        string(outcome.Status),
		TotalRecords:  outcome.Stats.Total,
		SyncedRecords: outcome.Stats.Success,
		FailedRecords: outcome.Stats.Failed,
		DurationMs:    outcome.CompletedAt.Sub(outcome.StartedAt).Milliseconds(),
		StartedAt:     outcome.StartedAt,
	})

	// Escalated records are in the durable queue now; wake the drain loop
	// instead of waiting for its next poll.
	if outcome.Stats.Failed > 0 && s.worker != nil {
		s.worker.Notify(ctx)
	}

	return outcome, nil
}

// RunPeriodic repeats Run on the given interval until ctx is done. A run
// refused because another is in flight is logged and skipped.
func (s *SyncService) RunPeriodic(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Run(ctx); err != nil {
				s.logger.Error().Err(err).Str("sync_type", s.syncType).Msg("scheduled sync failed")
			}
		}
	}
}

func (s *SyncService) publish(eventType string, payload events.SyncEventPayload) {
	if s.bus == nil {
		return
	}
	if err := s.bus.PublishJSON(eventType, payload); err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Msg("failed to publish event")
	}
}
