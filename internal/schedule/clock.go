// Package schedule provides a cancellable clock/timer abstraction so the
// debounce and poll timers in the sync layer can be driven by a virtual
// clock in tests instead of ambient time.
package schedule

import "time"

// Timer is a pending callback that can be stopped before it fires.
type Timer interface {
	// Stop cancels the timer. It reports whether the timer was still
	// pending; a timer that already fired returns false.
	Stop() bool
}

// Clock tells time and schedules callbacks.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

type realClock struct{}

type realTimer struct{ t *time.Timer }

func (r realTimer) Stop() bool { return r.t.Stop() }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, fn func()) Timer {
	return realTimer{t: time.AfterFunc(d, fn)}
}

// Real returns a Clock backed by the runtime clock.
func Real() Clock { return realClock{} }
