package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/semaphore"
)

// TickFunc is one unit of scheduled work.
type TickFunc func(ctx context.Context)

// Scheduler runs a TickFunc on a fixed interval.
//
// Ticks are single-flight: when a tick is still running as the next one fires,
// the new one is skipped, not queued. Tick duration does not shift the cadence.
// On shutdown the in-flight tick may finish within the grace period; past it
// the tick is abandoned and its context cancelled.
type Scheduler struct {
	log      *slog.Logger
	clock    clockwork.Clock
	interval time.Duration
	grace    time.Duration
	tick     TickFunc
	metrics  *Metrics

	sem *semaphore.Weighted
	wg  sync.WaitGroup

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewScheduler builds a Scheduler. interval must be > 0 and grace >= 0.
func NewScheduler(log *slog.Logger, clock clockwork.Clock, interval, grace time.Duration, tick TickFunc, metrics *Metrics) (*Scheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("%w: scheduler interval must be > 0, got %s", ErrConfig, interval)
	}
	if grace < 0 {
		return nil, fmt.Errorf("%w: scheduler grace must be >= 0, got %s", ErrConfig, grace)
	}
	if tick == nil {
		return nil, fmt.Errorf("%w: scheduler tick is required", ErrConfig)
	}
	if log == nil {
		log = slog.Default()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{
		log:      log,
		clock:    clock,
		interval: interval,
		grace:    grace,
		tick:     tick,
		metrics:  metrics,
		sem:      semaphore.NewWeighted(1),
	}, nil
}

// Run blocks until ctx is cancelled, then drains. It returns an error wrapping
// ErrShutdownGrace when the in-flight tick had to be abandoned.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("scheduler.start", "interval", s.interval, "grace", s.grace)

	for {
		select {
		case <-ctx.Done():
			return s.drain()
		case <-ticker.Chan():
			s.fire(ctx)
		}
	}
}

func (s *Scheduler) fire(ctx context.Context) {
	if !s.sem.TryAcquire(1) {
		s.metrics.tickSkipped()
		s.log.Warn("scheduler.tick.skip", "reason", "previous tick still running")
		return
	}

	// The tick outlives ctx on purpose: shutdown waits for it up to the grace period.
	tickCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.sem.Release(1)
		defer cancel()
		s.runTick(tickCtx)
	}()
}

func (s *Scheduler) runTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("scheduler.tick.panic", "panic", fmt.Sprint(r))
		}
	}()
	s.tick(ctx)
}

func (s *Scheduler) drain() error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("scheduler.stopped")
		return nil
	case <-s.clock.After(s.grace):
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	s.log.Warn("scheduler.tick.abandoned", "grace", s.grace)
	return fmt.Errorf("%w (%s)", ErrShutdownGrace, s.grace)
}
