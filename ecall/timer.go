package ecall

import (
	"time"
)

// Clock is the time source of the service.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a one-shot timer created by a Clock.
type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// redialTimer is a restartable one-shot timer. It must only be used while holding the service lock.
// A callback that was already on its way when the timer got stopped or re-armed is discarded by
// comparing the generation.
type redialTimer struct {
	clock      Clock
	timer      Timer
	generation uint64
}

func newRedialTimer(clock Clock) *redialTimer {
	return &redialTimer{clock: clock}
}

// Start arms the timer. The callback receives the generation it was armed with.
func (t *redialTimer) Start(d time.Duration, fire func(generation uint64)) {
	t.Stop()
	generation := t.generation
	t.timer = t.clock.AfterFunc(d, func() {
		fire(generation)
	})
}

// Stop is idempotent.
func (t *redialTimer) Stop() {
	t.generation++
	if t.timer == nil {
		return
	}
	t.timer.Stop()
	t.timer = nil
}

// Fired claims the expiry of the given generation. It reports false if the timer was stopped or
// re-armed in the meantime.
func (t *redialTimer) Fired(generation uint64) bool {
	if t.timer == nil || generation != t.generation {
		return false
	}
	t.timer = nil
	return true
}

// Running reports whether the timer is armed.
func (t *redialTimer) Running() bool {
	return t.timer != nil
}
