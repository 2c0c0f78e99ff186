package countdown

import (
	"fmt"
	"sync"
	"time"

	"racetimer"
)

// Countdown states. Exactly one of the anchor instant (running) or the
// remaining snapshot (paused) is meaningful at a time; ready and completed
// use neither.
const (
	StateReady     = "ready"
	StateRunning   = "running"
	StatePaused    = "paused"
	StateCompleted = "completed"
)

// Broadcaster receives periodic countdown updates. Emit must not block.
type Broadcaster interface {
	Emit(event string, data any)
}

const (
	// DefaultDuration is the countdown length when none is configured: five
	// minutes per heat.
	DefaultDuration = 300

	defaultTick = 500 * time.Millisecond
)

// Timer is one heat's countdown: a ready/running/paused/completed state
// machine with a background tick loop that emits periodic updates while
// running. All field access is serialized under the timer's own lock; the
// tick loop and external calls contend on that same lock.
type Timer struct {
	mu          sync.Mutex
	heatID      int64
	duration    int // configured length, seconds
	state       string
	startedAt   time.Time // anchor, valid while running
	remaining   int       // snapshot, valid while paused
	loopActive  bool
	tick        time.Duration
	broadcaster Broadcaster
}

func newTimer(heatID int64, duration int, broadcaster Broadcaster) *Timer {
	if duration <= 0 {
		duration = DefaultDuration
	}
	return &Timer{
		heatID:      heatID,
		duration:    duration,
		state:       StateReady,
		tick:        defaultTick,
		broadcaster: broadcaster,
	}
}

// Start begins a fresh countdown from ready, or resumes from paused with the
// anchor shifted back so elapsed time continues where it left off. Starting
// while running or completed is a no-op. After the call exactly one tick
// loop is active for a running timer.
func (t *Timer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case StateReady:
		t.startedAt = time.Now()
		t.state = StateRunning
	case StatePaused:
		elapsed := time.Duration(t.duration-t.remaining) * time.Second
		t.startedAt = time.Now().Add(-elapsed)
		t.state = StateRunning
	}

	if t.state == StateRunning && !t.loopActive {
		t.loopActive = true
		go t.run()
	}
}

// Pause freezes a running countdown, snapshotting the remaining seconds.
// No-op in any other state.
func (t *Timer) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateRunning {
		return
	}
	t.remaining = t.remainingLocked()
	t.state = StatePaused
}

// Reset returns the timer to ready from any state. A positive newDuration
// replaces the configured duration for future starts; zero keeps it.
func (t *Timer) Reset(newDuration int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if newDuration > 0 {
		t.duration = newDuration
	}
	t.startedAt = time.Time{}
	t.remaining = 0
	t.state = StateReady
}

// Status computes the current snapshot. While running the remaining time is
// recomputed from the anchor, and reaching zero transitions the timer to
// completed even when the tick loop is not observing it.
func (t *Timer) Status() racetimer.CountdownStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.statusLocked()
}

func (t *Timer) statusLocked() racetimer.CountdownStatus {
	var remaining int
	switch t.state {
	case StateRunning:
		remaining = t.remainingLocked()
		if remaining <= 0 {
			t.state = StateCompleted
			remaining = 0
		}
	case StatePaused:
		remaining = t.remaining
	case StateReady:
		remaining = t.duration
	case StateCompleted:
		remaining = 0
	}
	return racetimer.CountdownStatus{
		HeatID:    t.heatID,
		State:     t.state,
		Remaining: remaining,
		Duration:  t.duration,
		Formatted: formatClock(remaining),
	}
}

// remainingLocked derives remaining seconds from the fixed anchor, never an
// incremental accumulator, so repeated reads are monotonically non-increasing.
func (t *Timer) remainingLocked() int {
	remaining := t.duration - int(time.Since(t.startedAt).Seconds())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// run emits countdown updates every tick while the timer is running. It exits
// when the countdown completes or the state is moved off running externally;
// Start spawns a fresh loop on resume if this one has already exited.
func (t *Timer) run() {
	ticker := time.NewTicker(t.tick)
	defer ticker.Stop()

	for range ticker.C {
		t.mu.Lock()
		if t.state != StateRunning {
			t.loopActive = false
			t.mu.Unlock()
			return
		}
		if t.remainingLocked() <= 0 {
			t.state = StateCompleted
			t.loopActive = false
			t.mu.Unlock()
			return
		}
		status := t.statusLocked()
		t.mu.Unlock()

		if t.broadcaster != nil {
			t.broadcaster.Emit("countdown_update", status)
		}
	}
}

// formatClock renders seconds as M:SS for scoreboard display.
func formatClock(seconds int) string {
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
