package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/LeventeLantos/message-scheduler/internal/metrics"
)

// Scheduler runs tickFn on a fixed interval. At most one pass runs at a time,
// whether it was started by the ticker, TriggerNow or RunOnce.
type Scheduler struct {
	interval time.Duration
	tickFn   func(context.Context)
	log      zerolog.Logger
	metrics  *metrics.Metrics

	running atomic.Bool
	passMu  sync.Mutex
	// rerun is set by TriggerNow while a pass holds passMu; the holder runs
	// one follow-up pass before returning.
	rerun atomic.Bool

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	triggers sync.WaitGroup
}

func New(interval time.Duration, tickFn func(context.Context), log zerolog.Logger) (*Scheduler, error) {
	if interval <= 0 {
		return nil, errors.New("interval must be > 0")
	}
	if tickFn == nil {
		return nil, errors.New("tickFn must not be nil")
	}
	return &Scheduler{
		interval: interval,
		tickFn:   tickFn,
		log:      log.With().Str("component", "scheduler").Logger(),
		done:     make(chan struct{}),
	}, nil
}

func (s *Scheduler) WithMetrics(m *metrics.Metrics) *Scheduler {
	s.metrics = m
	return s
}

func (s *Scheduler) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.ctx = ctx
	s.cancel = cancel
	s.done = make(chan struct{})
	s.rerun.Store(false)
	s.running.Store(true)

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.log.Info().Str("interval", s.interval.String()).Msg("scheduler started")

		s.safeTick(ctx)

		for {
			select {
			case <-ctx.Done():
				s.log.Info().Msg("scheduler stopping")
				return
			case <-ticker.C:
				s.safeTick(ctx)
			}
		}
	}()

	return true
}

// Stop cancels the loop and waits for any in-flight pass to return.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return false
	}

	s.cancel()
	<-s.done
	s.triggers.Wait()
	s.rerun.Store(false)
	s.running.Store(false)

	s.log.Info().Msg("scheduler stopped")
	return true
}

func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

// TriggerNow starts a pass in the background without waiting for the next
// tick. When a pass is already in flight a single follow-up pass is queued
// behind it instead. It reports false only when the scheduler is stopped.
func (s *Scheduler) TriggerNow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return false
	}
	if !s.passMu.TryLock() {
		s.rerun.Store(true)
		s.log.Debug().Msg("pass in flight, follow-up queued")
		// The holder may have released passMu before seeing the flag.
		if !s.passMu.TryLock() {
			return true
		}
		s.rerun.Store(false)
	}

	ctx := s.ctx
	s.triggers.Add(1)
	go func() {
		defer s.triggers.Done()
		s.runHeld(ctx)
	}()
	return true
}

// RunOnce runs a pass synchronously, even while the loop is stopped.
func (s *Scheduler) RunOnce(ctx context.Context) bool {
	return s.safeTick(ctx)
}

func (s *Scheduler) safeTick(ctx context.Context) bool {
	if !s.passMu.TryLock() {
		s.skipped()
		return false
	}
	s.runHeld(ctx)
	return true
}

// runHeld runs a pass with passMu held, then any follow-ups queued by
// TriggerNow meanwhile, and releases passMu.
func (s *Scheduler) runHeld(ctx context.Context) {
	for {
		s.pass(ctx)
		if ctx.Err() == nil && s.rerun.CompareAndSwap(true, false) {
			continue
		}
		s.passMu.Unlock()

		// A trigger that lost the race against Unlock left the flag set.
		if ctx.Err() != nil || !s.rerun.Load() || !s.passMu.TryLock() {
			return
		}
		if !s.rerun.CompareAndSwap(true, false) {
			s.passMu.Unlock()
			return
		}
	}
}

func (s *Scheduler) pass(ctx context.Context) {
	log := s.log.With().Str("pass_id", uuid.NewString()).Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("scheduler tick panic recovered")
		}
	}()

	start := time.Now()
	s.tickFn(log.WithContext(ctx))
	elapsed := time.Since(start)

	if s.metrics != nil {
		s.metrics.Passes.Inc()
		s.metrics.PassDuration.Observe(elapsed.Seconds())
	}
	log.Info().Int64("duration_ms", elapsed.Milliseconds()).Msg("scheduler tick completed")
}

func (s *Scheduler) skipped() {
	s.log.Debug().Msg("pass already in flight, trigger skipped")
	if s.metrics != nil {
		s.metrics.PassSkipped.Inc()
	}
}
