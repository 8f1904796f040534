// Package scheduler drives the agent through alternating active bursts
// and idle periods, so simulated activity arrives in believable waves
// rather than at a constant rate.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

// Trigger is the engine-facing contract: one full prompt-and-resolve
// cycle per call.
type Trigger interface {
	Trigger(ctx context.Context) error
}

// Config bounds the activity envelope.
type Config struct {
	// MinActive and MaxActive bound the randomized active window.
	MinActive time.Duration
	MaxActive time.Duration
	// MinIdle and MaxIdle bound the randomized idle sleep.
	MinIdle time.Duration
	MaxIdle time.Duration
	// MinBurst and MaxBurst bound triggers per active window.
	MinBurst int
	MaxBurst int
	// MeanDelay is the mean of the exponentially distributed pause
	// between triggers inside a burst.
	MeanDelay time.Duration
}

// Scheduler runs the Idle/Active loop in a background goroutine.
type Scheduler struct {
	logger *slog.Logger
	engine Trigger
	cfg    Config

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}
}

// New creates a scheduler for the given engine.
func New(engine Trigger, cfg Config, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		logger: logger.With("component", "scheduler"),
		engine: engine,
		cfg:    cfg,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start launches the background loop. Calling Start twice is an error.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	s.running = true

	go s.run(ctx)
	s.logger.Info("scheduler started",
		"min_active", s.cfg.MinActive,
		"max_active", s.cfg.MaxActive,
		"min_idle", s.cfg.MinIdle,
		"max_idle", s.cfg.MaxIdle,
	)
	return nil
}

// Stop signals the loop and waits up to timeout for it to exit. The
// stop signal is observed inside every sleep and before every trigger,
// so the wait is bounded by one trigger plus one sleep interval.
func (s *Scheduler) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	select {
	case <-s.done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("scheduler did not stop within %s", timeout)
	}
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	for {
		window := randDuration(s.cfg.MinActive, s.cfg.MaxActive)
		deadline := time.Now().Add(window)
		burst := s.cfg.MinBurst
		if s.cfg.MaxBurst > s.cfg.MinBurst {
			burst += rand.Intn(s.cfg.MaxBurst - s.cfg.MinBurst + 1)
		}

		s.logger.Info("entering active period", "window", window, "burst", burst)

		for i := 0; i < burst; i++ {
			if s.stopped(ctx) {
				return
			}
			if time.Now().After(deadline) {
				s.logger.Debug("active window exhausted", "completed", i, "planned", burst)
				break
			}

			if err := s.engine.Trigger(ctx); err != nil {
				// Trigger failures are logged and absorbed; only the
				// stop signal ends the loop.
				s.logger.Error("trigger failed", "error", err)
			}

			delay := s.interTriggerDelay(deadline)
			if !s.sleep(ctx, delay) {
				return
			}
		}

		idle := randDuration(s.cfg.MinIdle, s.cfg.MaxIdle)
		s.logger.Info("entering idle period", "duration", idle)
		if !s.sleep(ctx, idle) {
			return
		}
	}
}

// interTriggerDelay draws from an exponential distribution with the
// configured mean, capped so the burst stays inside its active window.
func (s *Scheduler) interTriggerDelay(deadline time.Time) time.Duration {
	d := time.Duration(rand.ExpFloat64() * float64(s.cfg.MeanDelay))
	if remaining := time.Until(deadline); d > remaining {
		d = remaining
	}
	if d < 0 {
		d = 0
	}
	return d
}

// sleep waits for d, returning false when stopped or cancelled.
func (s *Scheduler) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return !s.stopped(ctx)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-s.stopCh:
		return false
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (s *Scheduler) stopped(ctx context.Context) bool {
	select {
	case <-s.stopCh:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func randDuration(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}
