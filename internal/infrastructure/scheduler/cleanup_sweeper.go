// Package scheduler runs background maintenance jobs.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// StalePurger deletes challenges that can no longer be used.
type StalePurger interface {
	PurgeStale(ctx context.Context) (expired, verified int64, err error)
}

// CleanupSweeperConfig holds configuration for the cleanup sweeper
type CleanupSweeperConfig struct {
	// Enabled determines if the sweeper is active
	Enabled bool

	// InitialDelay is the wait before the first sweep after Start
	InitialDelay time.Duration

	// Interval is the time between sweeps
	Interval time.Duration

	// Timeout bounds a single sweep
	Timeout time.Duration
}

// DefaultCleanupSweeperConfig returns default configuration
func DefaultCleanupSweeperConfig() CleanupSweeperConfig {
	return CleanupSweeperConfig{
		Enabled:      true,
		InitialDelay: time.Minute,
		Interval:     10 * time.Minute,
		Timeout:      time.Minute,
	}
}

// SweepResult is the outcome of one sweep.
type SweepResult struct {
	Expired  int64
	Verified int64
	Duration time.Duration
}

// CleanupSweeper periodically removes expired and long-verified challenges.
type CleanupSweeper struct {
	purger StalePurger
	logger *zap.Logger
	config CleanupSweeperConfig

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	sweeping  atomic.Bool
}

// NewCleanupSweeper creates a new cleanup sweeper
func NewCleanupSweeper(purger StalePurger, logger *zap.Logger, config CleanupSweeperConfig) *CleanupSweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CleanupSweeper{
		purger: purger,
		logger: logger,
		config: config,
	}
}

func (c CleanupSweeperConfig) validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive", ErrInvalidConfig)
	}
	if c.InitialDelay < 0 || c.Timeout < 0 {
		return fmt.Errorf("%w: delays must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Start launches the sweep loop. It returns immediately; a disabled sweeper
// does nothing.
func (s *CleanupSweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	if !s.config.Enabled {
		s.mu.Unlock()
		s.logger.Info("Cleanup sweeper is disabled")
		return nil
	}
	if err := s.config.validate(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.isRunning = true

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	go s.loop(ctx)

	s.logger.Info("Cleanup sweeper started",
		zap.Duration("initial_delay", s.config.InitialDelay),
		zap.Duration("interval", s.config.Interval),
	)
	return nil
}

// Stop cancels the loop and waits for an in-flight sweep, or for ctx.
func (s *CleanupSweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Cleanup sweeper stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Cleanup sweeper stop timed out")
		return ctx.Err()
	}
}

// IsRunning reports whether the loop is active.
func (s *CleanupSweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

func (s *CleanupSweeper) loop(ctx context.Context) {
	defer s.wg.Done()

	timer := time.NewTimer(s.config.InitialDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Cleanup loop stopping")
			return
		case <-timer.C:
			if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("Cleanup sweep failed", zap.Error(err))
			}
			timer.Reset(s.config.Interval)
		}
	}
}

// RunOnce performs a single sweep. Overlapping calls get ErrSweepInProgress.
func (s *CleanupSweeper) RunOnce(ctx context.Context) (SweepResult, error) {
	if !s.sweeping.CompareAndSwap(false, true) {
		return SweepResult{}, ErrSweepInProgress
	}
	defer s.sweeping.Store(false)

	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	expired, verified, err := s.purger.PurgeStale(ctx)
	result := SweepResult{Expired: expired, Verified: verified, Duration: time.Since(start)}
	if err != nil {
		return result, fmt.Errorf("purge stale challenges: %w", err)
	}

	if expired > 0 || verified > 0 {
		s.logger.Info("Cleanup sweep removed challenges",
			zap.Int64("expired", expired),
			zap.Int64("verified", verified),
			zap.Duration("duration", result.Duration),
		)
	} else {
		s.logger.Debug("Cleanup sweep found nothing to remove")
	}
	return result, nil
}
