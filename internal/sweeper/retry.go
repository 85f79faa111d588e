package sweeper

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/lumenart/curator/internal/adapter"
	"github.com/lumenart/curator/internal/domain"
	"github.com/lumenart/curator/internal/importer"
	"github.com/lumenart/curator/internal/logger"
	"github.com/lumenart/curator/internal/tracker"
)

// RetrySweeperConfig holds configuration for the retry sweeper
type RetrySweeperConfig struct {
	Interval    time.Duration // Time to sleep between sweep cycles
	MaxAttempts int           // Records at or over this attempt count are left alone
	BatchSize   int           // Records to re-import per cycle
}

// retrySweeper re-runs failed, retryable imports on a fixed cycle. Terminal
// failure classes and successes are never picked up; only explicit operator
// action can resurrect those.
type retrySweeper struct {
	config    *RetrySweeperConfig
	tracker   tracker.Tracker
	importer  importer.Importer
	clock     adapter.Clock
	running   atomic.Bool
	stopChan  chan struct{}
	stoppedCh chan struct{}
}

// NewRetrySweeper creates a new retry sweeper
func NewRetrySweeper(
	config *RetrySweeperConfig,
	tr tracker.Tracker,
	imp importer.Importer,
	clock adapter.Clock,
) Sweeper {
	return &retrySweeper{
		config:    config,
		tracker:   tr,
		importer:  imp,
		clock:     clock,
		stopChan:  make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Name returns the sweeper's name
func (s *retrySweeper) Name() string {
	return "retry-sweeper"
}

// Start begins the continuous sweep loop
func (s *retrySweeper) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("retry sweeper already running")
	}
	defer close(s.stoppedCh)

	logger.InfoCtx(ctx, "Starting retry sweeper",
		zap.Duration("interval", s.config.Interval),
		zap.Int("max_attempts", s.config.MaxAttempts),
		zap.Int("batch_size", s.config.BatchSize),
	)

	for {
		select {
		case <-ctx.Done():
			logger.InfoCtx(ctx, "Retry sweeper stopping due to context cancellation", zap.Error(ctx.Err()))
			return nil
		case <-s.stopChan:
			logger.InfoCtx(ctx, "Retry sweeper stop requested")
			return nil
		default:
			if err := s.RunSweepCycle(ctx); err != nil {
				if !errors.Is(err, context.Canceled) {
					logger.ErrorCtx(ctx, err)
				}
			}
			if !s.sleep(ctx, s.config.Interval) {
				return nil
			}
		}
	}
}

// Stop gracefully stops the sweeper
func (s *retrySweeper) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil // Already stopped
	}

	logger.InfoCtx(ctx, "Stopping retry sweeper")
	close(s.stopChan)

	select {
	case <-s.stoppedCh:
		logger.InfoCtx(ctx, "Retry sweeper stopped gracefully")
		return nil
	case <-ctx.Done():
		logger.WarnCtx(ctx, "Retry sweeper stop interrupted by context timeout")
		return ctx.Err()
	}
}

// RunSweepCycle re-imports one batch of retryable failures
func (s *retrySweeper) RunSweepCycle(ctx context.Context) error {
	startTime := s.clock.Now()

	records, err := s.tracker.ListRetryable(ctx, s.config.MaxAttempts, s.config.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to list retryable imports: %w", err)
	}
	if len(records) == 0 {
		logger.DebugCtx(ctx, "No retryable imports, nothing to sweep")
		return nil
	}

	logger.InfoCtx(ctx, "Found retryable imports", zap.Int("count", len(records)))

	refs := make([]domain.SourceRef, 0, len(records))
	for _, record := range records {
		if _, err := s.tracker.MarkForRetry(ctx, record.ID); err != nil {
			logger.ErrorCtx(ctx, err, zap.Int64("record_id", record.ID))
			continue
		}
		refs = append(refs, record.SourceRef())
	}
	if len(refs) == 0 {
		return nil
	}

	result, err := s.importer.ImportBatch(ctx, refs)
	if err != nil {
		return fmt.Errorf("retry batch failed: %w", err)
	}

	logger.InfoCtx(ctx, "Sweep cycle completed",
		zap.Duration("duration", s.clock.Since(startTime)),
		zap.String("batch_id", result.BatchID),
		zap.Int("succeeded", len(result.Succeeded)),
		zap.Int("failed", len(result.Failed)),
	)

	return nil
}

// sleep sleeps for the given duration but can be interrupted by context
// cancellation or a stop request. Returns false when interrupted.
func (s *retrySweeper) sleep(ctx context.Context, duration time.Duration) bool {
	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	case <-s.stopChan:
		return false
	}
}
