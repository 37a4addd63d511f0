package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakePurger struct {
	calls    atomic.Int32
	expired  int64
	verified int64
	err      error
	block    chan struct{}
	once     sync.Once
	entered  chan struct{}
}

func (f *fakePurger) PurgeStale(ctx context.Context) (int64, int64, error) {
	f.calls.Add(1)
	if f.entered != nil {
		f.once.Do(func() { close(f.entered) })
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return 0, 0, ctx.Err()
		}
	}
	return f.expired, f.verified, f.err
}

func fastConfig() CleanupSweeperConfig {
	return CleanupSweeperConfig{
		Enabled:      true,
		InitialDelay: time.Millisecond,
		Interval:     5 * time.Millisecond,
		Timeout:      time.Second,
	}
}

func TestCleanupSweeper_RunOnce(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	p := &fakePurger{expired: 3, verified: 2}
	s := NewCleanupSweeper(p, zap.New(core), fastConfig())

	res, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Expired)
	assert.Equal(t, int64(2), res.Verified)

	entries := logs.FilterMessage("Cleanup sweep removed challenges").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(3), entries[0].ContextMap()["expired"])
}

func TestCleanupSweeper_RunOnceError(t *testing.T) {
	p := &fakePurger{err: errors.New("db gone")}
	s := NewCleanupSweeper(p, nil, fastConfig())

	_, err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db gone")
}

func TestCleanupSweeper_RunOnceRejectsOverlap(t *testing.T) {
	p := &fakePurger{block: make(chan struct{}), entered: make(chan struct{})}
	s := NewCleanupSweeper(p, nil, fastConfig())

	done := make(chan error, 1)
	go func() {
		_, err := s.RunOnce(context.Background())
		done <- err
	}()
	<-p.entered

	_, err := s.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrSweepInProgress)

	close(p.block)
	require.NoError(t, <-done)
}

func TestCleanupSweeper_StartRunsPeriodically(t *testing.T) {
	p := &fakePurger{}
	s := NewCleanupSweeper(p, nil, fastConfig())

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())
	require.NoError(t, s.Start(context.Background()))

	assert.Eventually(t, func() bool { return p.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.False(t, s.IsRunning())

	calls := p.calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, p.calls.Load())
}

func TestCleanupSweeper_ErrorsDoNotStopLoop(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	p := &fakePurger{err: errors.New("db gone")}
	s := NewCleanupSweeper(p, zap.New(core), fastConfig())

	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return p.calls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop(context.Background()))
	assert.GreaterOrEqual(t, logs.FilterMessage("Cleanup sweep failed").Len(), 1)
}

func TestCleanupSweeper_StopCancelsInFlightSweep(t *testing.T) {
	p := &fakePurger{block: make(chan struct{}), entered: make(chan struct{})}
	s := NewCleanupSweeper(p, nil, fastConfig())

	require.NoError(t, s.Start(context.Background()))
	<-p.entered

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}

func TestCleanupSweeper_DisabledAndInvalid(t *testing.T) {
	p := &fakePurger{}
	cfg := fastConfig()
	cfg.Enabled = false
	s := NewCleanupSweeper(p, nil, cfg)
	require.NoError(t, s.Start(context.Background()))
	assert.False(t, s.IsRunning())
	require.NoError(t, s.Stop(context.Background()))

	cfg = fastConfig()
	cfg.Interval = 0
	s = NewCleanupSweeper(p, nil, cfg)
	assert.ErrorIs(t, s.Start(context.Background()), ErrInvalidConfig)
	assert.False(t, s.IsRunning())
}

func TestDefaultCleanupSweeperConfig(t *testing.T) {
	cfg := DefaultCleanupSweeperConfig()
	assert.Equal(t, time.Minute, cfg.InitialDelay)
	assert.Equal(t, 10*time.Minute, cfg.Interval)
	assert.NoError(t, cfg.validate())
}
