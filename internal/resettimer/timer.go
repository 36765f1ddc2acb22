// Package resettimer provides a cancellable delayed action with at most one
// pending fire at a time.
package resettimer

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
)

// DefaultDelay is how long a recognised play stays on the table.
const DefaultDelay = 5 * time.Second

// clockTag labels the timer for quartz traps in tests.
const clockTag = "reset"

// Executor runs a fire callback. The session passes its mailbox so the action
// runs on the loop goroutine.
type Executor func(func())

// Timer schedules Action after Delay. Arm replaces any pending schedule.
type Timer struct {
	clock  quartz.Clock
	delay  time.Duration
	action func()
	exec   Executor
	logger *log.Logger

	mu      sync.Mutex
	pending *quartz.Timer
	gen     uint64
	fired   int
}

// New creates a timer. A nil exec runs the action on the clock's goroutine.
func New(clock quartz.Clock, delay time.Duration, action func(), exec Executor, logger *log.Logger) *Timer {
	if exec == nil {
		exec = func(fn func()) { fn() }
	}
	return &Timer{
		clock:  clock,
		delay:  delay,
		action: action,
		exec:   exec,
		logger: logger.WithPrefix("reset-timer"),
	}
}

// Arm cancels any pending action and schedules a new one.
func (t *Timer) Arm() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()
	t.gen++
	gen := t.gen
	t.pending = t.clock.AfterFunc(t.delay, func() {
		t.exec(func() { t.fire(gen) })
	}, clockTag)
	t.logger.Debug("Reset timer armed", "delay", t.delay)
}

// Cancel drops the pending action, if any. It is safe to call at any time.
func (t *Timer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopLocked() {
		t.logger.Debug("Reset timer cancelled")
	}
}

// Pending reports whether an action is scheduled.
func (t *Timer) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending != nil
}

// Fired returns how many times the action has run.
func (t *Timer) Fired() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fired
}

func (t *Timer) stopLocked() bool {
	// Bumping the generation also voids a callback already queued on the
	// executor.
	t.gen++
	if t.pending == nil {
		return false
	}
	t.pending.Stop()
	t.pending = nil
	return true
}

func (t *Timer) fire(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || t.pending == nil {
		t.mu.Unlock()
		return
	}
	t.pending = nil
	t.fired++
	t.mu.Unlock()

	t.logger.Debug("Reset timer fired")
	t.action()
}
