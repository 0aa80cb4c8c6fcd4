package poller

import (
	"context"
	"sync"
	"time"

	"github.com/liftgate-io/liftgate/internal/infrastructure/config"
	"github.com/liftgate-io/liftgate/internal/infrastructure/logging"
)

// RefreshFunc performs one device refresh and reports success.
type RefreshFunc func(ctx context.Context) bool

// Scheduler owns the poll timer and the burst countdown.
//
// State machine: count runs from 0 (burst just entered) up to maxCount
// (fully idle). Each tick increments it while below maxCount and schedules
// the next tick at the burst interval; at maxCount the idle interval
// applies. ResetBurst drops count back to 0. A failed refresh forces
// count to maxCount-1, one step from idle, so the next tick comes quickly
// without a full burst window.
type Scheduler struct {
	refresh RefreshFunc
	logger  *logging.Logger

	idleInterval  time.Duration
	burstInterval time.Duration
	maxCount      int

	mu      sync.Mutex
	count   int
	timer   *time.Timer
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
}

// NewScheduler creates a scheduler from the polling configuration.
// maxCount is the burst duration divided by the burst interval.
func NewScheduler(cfg config.PollingConfig, refresh RefreshFunc, logger *logging.Logger) *Scheduler {
	burst := cfg.BurstInterval()
	maxCount := int(cfg.BurstDuration() / burst)
	if maxCount < 1 {
		maxCount = 1
	}
	return &Scheduler{
		refresh:       refresh,
		logger:        logger.With("component", "poller"),
		idleInterval:  cfg.IdleInterval(),
		burstInterval: burst,
		maxCount:      maxCount,
		count:         maxCount,
	}
}

// Start begins polling with an immediate first tick and returns. Polling
// stops when ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.scheduleLocked(0)
	s.mu.Unlock()

	s.logger.Info("polling started",
		"idle_interval", s.idleInterval,
		"burst_interval", s.burstInterval,
		"burst_ticks", s.maxCount)
}

// Stop cancels polling and any pending timer.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.started = false
	s.cancel()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.logger.Info("polling stopped")
}

// ResetBurst enters burst mode: the countdown restarts at zero and the
// next tick is rescheduled at the burst interval. Called whenever a
// command is issued or a state change is observed.
func (s *Scheduler) ResetBurst() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count = 0
	if s.started {
		s.scheduleLocked(s.burstInterval)
	}
	s.logger.Debug("burst polling engaged")
}

// Poll reschedules the next tick after the given delay, superseding the
// pending timer. A scheduling hook for consumers that know a refresh will
// be worthwhile at a specific moment.
func (s *Scheduler) Poll(delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		s.scheduleLocked(delay)
	}
}

// tick runs one refresh and reschedules.
func (s *Scheduler) tick() {
	s.mu.Lock()
	if !s.started || s.ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	ctx := s.ctx
	s.mu.Unlock()

	ok := s.refresh(ctx)
	if !ok {
		s.logger.Warn("device refresh failed, keeping fast cadence")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.scheduleLocked(s.advanceLocked(ok))
}

// advanceLocked moves the countdown one step and returns the delay before
// the next tick. Callers hold s.mu.
func (s *Scheduler) advanceLocked(ok bool) time.Duration {
	if !ok {
		// One step from idle: retry soon, but do not hold a full burst.
		s.count = s.maxCount - 1
	}
	if s.count < s.maxCount {
		s.count++
		return s.burstInterval
	}
	return s.idleInterval
}

// scheduleLocked arms the tick timer, cancelling any pending one first.
// Callers hold s.mu.
func (s *Scheduler) scheduleLocked(delay time.Duration) {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(delay, s.tick)
}
