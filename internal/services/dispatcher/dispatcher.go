// Package dispatcher drives the schedule tick loop: it finds due schedules,
// claims them so no schedule ever has two firings in flight, fans each
// firing out into capped batches of worker contexts, and finalizes the
// execution record when the last context finishes.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/tapwire/tapwire/internal/common"
	"github.com/tapwire/tapwire/internal/interfaces"
	"github.com/tapwire/tapwire/internal/models"
	"github.com/tapwire/tapwire/internal/services/clock"
)

// Service implements the DispatcherService interface
type Service struct {
	config  *common.Config
	storage interfaces.StorageManager
	workers interfaces.WorkerContextService
	logger  arbor.ILogger

	claims *claimRegistry

	// globalSem caps worker contexts across all schedules; nil means
	// unlimited.
	globalSem *semaphore.Weighted

	// nowFn is replaceable in tests
	nowFn func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewService creates a new dispatcher service
func NewService(config *common.Config, storage interfaces.StorageManager, workers interfaces.WorkerContextService, logger arbor.ILogger) *Service {
	s := &Service{
		config:  config,
		storage: storage,
		workers: workers,
		logger:  logger,
		claims:  newClaimRegistry(),
		nowFn:   time.Now,
	}
	if n := config.Dispatcher.MaxGlobalContexts; n > 0 {
		s.globalSem = semaphore.NewWeighted(int64(n))
	}
	return s
}

// Start reconciles abandoned firings, seeds missing next-run times, and
// begins the tick loop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("dispatcher already running")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	if err := s.reconcileAbandoned(loopCtx); err != nil {
		s.logger.Warn().Err(err).Msg("Startup reconciliation incomplete")
	}
	s.seedNextRuns(loopCtx)

	s.wg.Add(1)
	common.SafeGo(s.logger, "dispatcher-tick-loop", func() {
		defer s.wg.Done()
		s.loop(loopCtx)
	})

	s.logger.Info().
		Dur("tick_interval", s.config.Dispatcher.TickInterval.Std()).
		Int("batch_size", s.config.Dispatcher.BatchSize).
		Int("max_global_contexts", s.config.Dispatcher.MaxGlobalContexts).
		Msg("Dispatcher started")
	return nil
}

// Stop halts the tick loop and waits for in-flight firings to finish
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()

	s.logger.Info().Msg("Dispatcher stopped")
	return nil
}

// IsRunning reports whether the tick loop is active
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// TriggerSchedule fires a schedule immediately. It is subject to the same
// claim rules as a timer tick: a schedule with a firing in flight refuses
// the trigger.
func (s *Service) TriggerSchedule(ctx context.Context, scheduleID string) error {
	schedule, err := s.storage.ScheduleStorage().GetSchedule(ctx, scheduleID)
	if err != nil {
		return err
	}
	if !schedule.Enabled {
		return fmt.Errorf("schedule %s is disabled", scheduleID)
	}
	if !s.claims.claim(schedule.ID) {
		return fmt.Errorf("schedule %s already has a firing in flight", scheduleID)
	}

	s.wg.Add(1)
	common.SafeGo(s.logger, "manual-firing-"+schedule.ID, func() {
		defer s.wg.Done()
		defer s.claims.release(schedule.ID)
		s.fire(ctx, schedule)
	})
	return nil
}

func (s *Service) loop(ctx context.Context) {
	ticker := time.NewTicker(s.config.Dispatcher.TickInterval.Std())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick polls enabled schedules and spawns a firing for each due one that
// is not already claimed. It also surfaces worker contexts that stopped
// heartbeating, so a quiet sandbox shows up in the logs before its hard
// timeout fires.
func (s *Service) tick(ctx context.Context) {
	s.reportStalled()

	schedules, err := s.storage.ScheduleStorage().ListEnabledSchedules(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list enabled schedules")
		return
	}

	now := s.nowFn()
	for _, schedule := range schedules {
		if schedule.NextRun.IsZero() {
			s.seedNextRun(ctx, schedule, now)
			continue
		}
		if !clock.IsDue(schedule, now) {
			continue
		}
		if !s.claims.claim(schedule.ID) {
			s.logger.Debug().
				Str("schedule_id", schedule.ID).
				Msg("Skipping due schedule with firing in flight")
			continue
		}

		sched := schedule
		s.wg.Add(1)
		common.SafeGo(s.logger, "firing-"+sched.ID, func() {
			defer s.wg.Done()
			defer s.claims.release(sched.ID)
			s.fire(ctx, sched)
		})
	}
}

// reportStalled logs every live worker context past its inactivity window
func (s *Service) reportStalled() {
	for _, wc := range s.workers.StalledContexts(s.nowFn()) {
		s.logger.Warn().
			Str("sandbox_id", wc.SandboxID).
			Str("schedule_id", wc.ScheduleID).
			Str("status", string(wc.Status)).
			Dur("since_heartbeat", s.nowFn().Sub(wc.LastHeartbeat)).
			Msg("Worker context stalled")
	}
}

// fire runs one complete firing: execution record, batched worker
// contexts, aggregation, finalization, and rescheduling.
func (s *Service) fire(ctx context.Context, schedule *models.Schedule) {
	startTime := s.nowFn()
	record := &models.ExecutionRecord{
		ScheduleID: schedule.ID,
		TargetID:   schedule.TargetID,
		StartTime:  startTime,
	}
	if _, err := s.storage.ExecutionStorage().CreateExecutionRecord(ctx, record); err != nil {
		s.logger.Error().Err(err).Str("schedule_id", schedule.ID).Msg("Failed to create execution record")
		return
	}

	s.logger.Info().
		Str("schedule_id", schedule.ID).
		Str("execution_id", record.ID).
		Int("quantity", schedule.Quantity).
		Msg("Firing schedule")
	record.AppendLog(fmt.Sprintf("firing started, quantity=%d", schedule.Quantity))

	target, err := s.storage.TargetStorage().GetTarget(ctx, schedule.TargetID)
	if err != nil {
		record.AppendLog("target lookup failed: " + err.Error())
		s.finalize(ctx, record, nil, fmt.Errorf("target lookup failed: %w", err))
		s.reschedule(ctx, schedule, startTime)
		return
	}

	results := s.runBatches(ctx, schedule, target, record)
	s.finalize(ctx, record, results, nil)
	s.reschedule(ctx, schedule, startTime)
}

// runBatches spawns the schedule's worker contexts in batches of at most
// the configured batch size. Batches run strictly in order: a batch starts
// only after the previous one fully finished and the inter-batch delay
// elapsed. Context failures are collected, never propagated, so one bad
// sandbox cannot cancel its batch mates.
func (s *Service) runBatches(ctx context.Context, schedule *models.Schedule, target *models.Target, record *models.ExecutionRecord) []interfaces.ContextResult {
	quantity := schedule.Quantity
	if quantity < 1 {
		quantity = 1
	}
	batchSize := s.config.Dispatcher.BatchSize
	if batchSize < 1 {
		batchSize = 1
	}

	pacer := rate.NewLimiter(rate.Every(s.config.Dispatcher.BatchDelay.Std()), 1)

	var resultsMu sync.Mutex
	results := make([]interfaces.ContextResult, 0, quantity)

	for start := 0; start < quantity; start += batchSize {
		if ctx.Err() != nil {
			record.AppendLog("firing cancelled before all batches ran")
			break
		}
		if s.config.Dispatcher.BatchDelay.Std() > 0 {
			if err := pacer.Wait(ctx); err != nil {
				break
			}
		}

		end := start + batchSize
		if end > quantity {
			end = quantity
		}
		record.AppendLog(fmt.Sprintf("starting batch of %d contexts", end-start))

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			g.Go(func() error {
				if s.globalSem != nil {
					if err := s.globalSem.Acquire(gctx, 1); err != nil {
						return nil
					}
					defer s.globalSem.Release(1)
				}

				result := s.workers.RunContext(gctx, schedule, target)

				resultsMu.Lock()
				results = append(results, result)
				line := fmt.Sprintf("context %s finished status=%s exchanges=%d", result.SandboxID, result.Status, result.Exchanges)
				if result.Err != nil {
					line += " error=" + result.Err.Error()
				}
				record.AppendLog(line)
				resultsMu.Unlock()
				return nil
			})
		}
		g.Wait()
	}

	return results
}

// finalize closes out the execution record. A firing counts as successful
// when at least one context completed or at least one exchange was
// captured; a timed-out context that still captured data is a partial
// success, not a failure.
func (s *Service) finalize(ctx context.Context, record *models.ExecutionRecord, results []interfaces.ContextResult, fatal error) {
	totalExchanges := 0
	for _, result := range results {
		record.ContextsSpawned++
		switch result.Status {
		case models.ContextStatusCompleted:
			record.ContextsSucceeded++
		case models.ContextStatusTimedOut:
			record.ContextsTimedOut++
		default:
			record.ContextsFailed++
		}
		totalExchanges += result.Exchanges
	}

	record.Success = fatal == nil && (record.ContextsSucceeded > 0 || totalExchanges > 0)
	if fatal != nil {
		record.ErrorMessage = fatal.Error()
	} else if !record.Success {
		record.ErrorMessage = "no context succeeded and no exchanges were captured"
	}

	if totalExchanges > 0 {
		record.Payload = s.aggregatePayload(ctx, record)
	}

	end := s.nowFn()
	record.EndTime = &end
	record.AppendLog(fmt.Sprintf("firing finished, success=%t exchanges=%d", record.Success, totalExchanges))

	if err := s.storage.ExecutionStorage().UpdateExecutionRecord(ctx, record); err != nil {
		s.logger.Error().Err(err).Str("execution_id", record.ID).Msg("Failed to finalize execution record")
		return
	}

	s.logger.Info().
		Str("schedule_id", record.ScheduleID).
		Str("execution_id", record.ID).
		Bool("success", record.Success).
		Int("contexts_spawned", record.ContextsSpawned).
		Int("contexts_succeeded", record.ContextsSucceeded).
		Int("contexts_timed_out", record.ContextsTimedOut).
		Int("exchanges", totalExchanges).
		Msg("Firing finalized")
}

// aggregatePayload collects the extraction results captured during this
// firing into one JSON array for the execution record.
func (s *Service) aggregatePayload(ctx context.Context, record *models.ExecutionRecord) json.RawMessage {
	exchanges, err := s.storage.ExchangeStorage().ListCapturedExchanges(ctx, record.ScheduleID)
	if err != nil {
		s.logger.Warn().Err(err).Str("schedule_id", record.ScheduleID).Msg("Failed to aggregate extraction payload")
		return nil
	}

	extracted := make([]json.RawMessage, 0)
	for _, exchange := range exchanges {
		if exchange.Extracted == nil || exchange.CapturedAt.Before(record.StartTime) {
			continue
		}
		extracted = append(extracted, exchange.Extracted)
	}
	if len(extracted) == 0 {
		return nil
	}

	payload, err := json.Marshal(extracted)
	if err != nil {
		return nil
	}
	return payload
}

// reschedule computes the next run after a firing. Once-schedules disable
// instead; a schedule whose configuration no longer parses is disabled so
// it cannot refire every tick.
func (s *Service) reschedule(ctx context.Context, schedule *models.Schedule, firedAt time.Time) {
	if schedule.Kind == models.ScheduleKindOnce {
		if err := s.storage.ScheduleStorage().DisableSchedule(ctx, schedule.ID); err != nil {
			s.logger.Error().Err(err).Str("schedule_id", schedule.ID).Msg("Failed to disable once schedule")
		}
		return
	}

	next, err := clock.ComputeNextRun(schedule, s.nowFn())
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("schedule_id", schedule.ID).
			Msg("Schedule no longer computes a next run, disabling")
		if err := s.storage.ScheduleStorage().DisableSchedule(ctx, schedule.ID); err != nil {
			s.logger.Error().Err(err).Str("schedule_id", schedule.ID).Msg("Failed to disable schedule")
		}
		return
	}

	if err := s.storage.ScheduleStorage().UpdateScheduleNextRun(ctx, schedule.ID, next, firedAt); err != nil {
		s.logger.Error().Err(err).Str("schedule_id", schedule.ID).Msg("Failed to update schedule next run")
	}
}

// seedNextRuns computes an initial next-run for enabled schedules that
// never had one, so freshly created schedules start firing without a
// manual trigger.
func (s *Service) seedNextRuns(ctx context.Context) {
	schedules, err := s.storage.ScheduleStorage().ListEnabledSchedules(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to list schedules for next-run seeding")
		return
	}

	now := s.nowFn()
	for _, schedule := range schedules {
		if !schedule.NextRun.IsZero() {
			continue
		}
		s.seedNextRun(ctx, schedule, now)
	}
}

func (s *Service) seedNextRun(ctx context.Context, schedule *models.Schedule, now time.Time) {
	next, err := clock.ComputeNextRun(schedule, now)
	if err != nil {
		s.logger.Warn().Err(err).Str("schedule_id", schedule.ID).Msg("Cannot compute next run, skipping schedule")
		return
	}
	if err := s.storage.ScheduleStorage().UpdateScheduleNextRun(ctx, schedule.ID, next, time.Time{}); err != nil {
		s.logger.Error().Err(err).Str("schedule_id", schedule.ID).Msg("Failed to seed schedule next run")
		return
	}
	schedule.NextRun = next
}

// reconcileAbandoned finalizes execution records left running by a crash.
// Their worker contexts are gone, so the firing is marked failed; any
// exchanges persisted before the crash are still in storage.
func (s *Service) reconcileAbandoned(ctx context.Context) error {
	records, err := s.storage.ExecutionStorage().ListRunningExecutionRecords(ctx)
	if err != nil {
		return fmt.Errorf("failed to list running execution records: %w", err)
	}

	now := s.nowFn()
	for _, record := range records {
		record.EndTime = &now
		record.Success = false
		record.ErrorMessage = "firing abandoned by restart"
		record.AppendLog("finalized during startup reconciliation")
		if err := s.storage.ExecutionStorage().UpdateExecutionRecord(ctx, record); err != nil {
			s.logger.Error().Err(err).Str("execution_id", record.ID).Msg("Failed to reconcile abandoned execution record")
		}
	}

	if len(records) > 0 {
		s.logger.Warn().Int("count", len(records)).Msg("Finalized execution records abandoned by a previous run")
	}
	return nil
}
