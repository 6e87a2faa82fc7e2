// Package scheduler drives the analytics refresh loop. A single goroutine
// serializes refresh cycles: while one is in flight, newly arrived triggers
// are suppressed rather than queued, since they would recompute the same
// window.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// RefreshFunc performs one full refresh cycle: fetch window, aggregate,
// compute metrics, render. Errors are logged and the prior view retained.
type RefreshFunc func(ctx context.Context) error

type Scheduler struct {
	refresh  RefreshFunc
	interval time.Duration
	logger   zerolog.Logger

	refreshing atomic.Bool
	trigger    chan struct{}
	started    atomic.Bool
	cancel     context.CancelFunc
	done       chan struct{}
	mu         sync.Mutex

	refreshesTotal  prometheus.Counter
	suppressedTotal prometheus.Counter
	failuresTotal   prometheus.Counter
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithCounters wires Prometheus counters for completed, suppressed, and
// failed cycles. Any counter may be nil.
func WithCounters(total, suppressed, failures prometheus.Counter) Option {
	return func(s *Scheduler) {
		s.refreshesTotal = total
		s.suppressedTotal = suppressed
		s.failuresTotal = failures
	}
}

func New(refresh RefreshFunc, interval time.Duration, logger zerolog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		refresh:  refresh,
		interval: interval,
		logger:   logger,
		trigger:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the refresh loop and runs an immediate first cycle.
// Calling Start again on a running scheduler is a no-op: there is never
// more than one active ticker per session.
func (s *Scheduler) Start(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}

	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.run(ctx)
}

// Stop cancels the refresh loop and waits for it to exit.
func (s *Scheduler) Stop() {
	if !s.started.CompareAndSwap(true, false) {
		return
	}
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
}

// Trigger requests a refresh cycle. If one is already in flight, or one is
// already pending, the request is dropped: two triggers within the same
// tick produce exactly one cycle.
func (s *Scheduler) Trigger() {
	if s.refreshing.Load() {
		s.suppressed()
		return
	}
	select {
	case s.trigger <- struct{}{}:
	default:
		s.suppressed()
	}
}

// Refreshing reports whether a cycle is currently executing.
func (s *Scheduler) Refreshing() bool {
	return s.refreshing.Load()
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// First cycle on session start.
	s.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runCycle(ctx)
		case <-s.trigger:
			s.runCycle(ctx)
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	if !s.refreshing.CompareAndSwap(false, true) {
		s.suppressed()
		return
	}
	defer s.refreshing.Store(false)

	start := time.Now()
	if err := s.refresh(ctx); err != nil {
		if s.failuresTotal != nil {
			s.failuresTotal.Inc()
		}
		s.logger.Error().Err(err).Msg("refresh cycle failed; prior view retained")
		return
	}

	if s.refreshesTotal != nil {
		s.refreshesTotal.Inc()
	}
	s.logger.Debug().Dur("elapsed", time.Since(start)).Msg("refresh cycle complete")
}

func (s *Scheduler) suppressed() {
	if s.suppressedTotal != nil {
		s.suppressedTotal.Inc()
	}
}
