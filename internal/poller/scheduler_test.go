package poller

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/liftgate-io/liftgate/internal/infrastructure/config"
	"github.com/liftgate-io/liftgate/internal/infrastructure/logging"
)

func testConfig() config.PollingConfig {
	return config.PollingConfig{
		RefreshInterval:       12,
		ActiveRefreshInterval: 3,
		ActiveRefreshDuration: 300,
	}
}

func TestNewSchedulerDerivesMaxCount(t *testing.T) {
	s := NewScheduler(testConfig(), func(context.Context) bool { return true }, logging.Default())

	if s.maxCount != 100 {
		t.Errorf("maxCount = %d, want burst duration / burst interval = 100", s.maxCount)
	}
	if s.count != s.maxCount {
		t.Errorf("initial count = %d, want maxCount (idle posture)", s.count)
	}
	if s.idleInterval != 12*time.Second || s.burstInterval != 3*time.Second {
		t.Errorf("intervals = %v/%v, want 12s/3s", s.idleInterval, s.burstInterval)
	}
}

func TestAdvanceCadence(t *testing.T) {
	s := NewScheduler(testConfig(), func(context.Context) bool { return true }, logging.Default())
	s.maxCount = 3
	s.count = 0 // as after ResetBurst

	// Burst ticks until the countdown reaches maxCount, then idle.
	wantDelays := []time.Duration{
		s.burstInterval, // count 0 -> 1
		s.burstInterval, // count 1 -> 2
		s.burstInterval, // count 2 -> 3
		s.idleInterval,  // fully idle
		s.idleInterval,
	}
	for i, want := range wantDelays {
		s.mu.Lock()
		got := s.advanceLocked(true)
		s.mu.Unlock()
		if got != want {
			t.Fatalf("tick %d delay = %v, want %v (count now %d)", i, got, want, s.count)
		}
	}
}

func TestAdvanceFailureKeepsFastCadence(t *testing.T) {
	s := NewScheduler(testConfig(), func(context.Context) bool { return false }, logging.Default())
	s.maxCount = 3
	s.count = 3 // fully idle

	s.mu.Lock()
	got := s.advanceLocked(false)
	s.mu.Unlock()
	if got != s.burstInterval {
		t.Errorf("delay after failure = %v, want burst interval", got)
	}
	if s.count != s.maxCount {
		t.Errorf("count after failed tick = %d, want back at maxCount", s.count)
	}

	// The next successful tick is idle again: exactly one fast retry.
	s.mu.Lock()
	got = s.advanceLocked(true)
	s.mu.Unlock()
	if got != s.idleInterval {
		t.Errorf("delay after recovery = %v, want idle interval", got)
	}
}

func TestStartTicksImmediately(t *testing.T) {
	var refreshes atomic.Int32
	s := NewScheduler(testConfig(), func(context.Context) bool {
		refreshes.Add(1)
		return true
	}, logging.Default())
	s.idleInterval = time.Hour // only the immediate tick can fire
	s.burstInterval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	deadline := time.After(2 * time.Second)
	for refreshes.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("no refresh within 2s of Start")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestResetBurstReschedules(t *testing.T) {
	var refreshes atomic.Int32
	s := NewScheduler(testConfig(), func(context.Context) bool {
		refreshes.Add(1)
		return true
	}, logging.Default())
	s.idleInterval = time.Hour
	s.burstInterval = 20 * time.Millisecond
	s.maxCount = 2

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	// Wait out the immediate tick, which lands us on the idle interval.
	deadline := time.After(2 * time.Second)
	for refreshes.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("no initial refresh")
		case <-time.After(10 * time.Millisecond):
		}
	}
	before := refreshes.Load()

	// ResetBurst supersedes the hour-long idle timer with burst ticks.
	s.ResetBurst()
	deadline = time.After(2 * time.Second)
	for refreshes.Load() == before {
		select {
		case <-deadline:
			t.Fatal("no burst tick after ResetBurst")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestResetBurstBeforeStart(t *testing.T) {
	s := NewScheduler(testConfig(), func(context.Context) bool { return true }, logging.Default())

	// Must not panic without a running timer.
	s.ResetBurst()
	if s.count != 0 {
		t.Errorf("count = %d, want 0 after ResetBurst", s.count)
	}
}

func TestPollOverridesPendingTimer(t *testing.T) {
	var refreshes atomic.Int32
	s := NewScheduler(testConfig(), func(context.Context) bool {
		refreshes.Add(1)
		return true
	}, logging.Default())
	s.idleInterval = time.Hour
	s.burstInterval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	deadline := time.After(2 * time.Second)
	for refreshes.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("no initial refresh")
		case <-time.After(10 * time.Millisecond):
		}
	}

	s.Poll(10 * time.Millisecond)
	deadline = time.After(2 * time.Second)
	for refreshes.Load() < 2 {
		select {
		case <-deadline:
			t.Fatal("Poll override did not trigger a tick")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestStopPreventsFurtherTicks(t *testing.T) {
	var refreshes atomic.Int32
	s := NewScheduler(testConfig(), func(context.Context) bool {
		refreshes.Add(1)
		return true
	}, logging.Default())
	s.idleInterval = 20 * time.Millisecond
	s.burstInterval = 20 * time.Millisecond

	s.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	s.Stop()

	settled := refreshes.Load()
	time.Sleep(100 * time.Millisecond)
	if refreshes.Load() != settled {
		t.Error("ticks continued after Stop")
	}
}
