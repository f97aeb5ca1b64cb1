// Package timer provides a single-slot countdown whose expiry is tagged with the
// unit of work it was armed for.
package timer

import (
	"sync"
	"time"
)

// Clock abstracts time so timers can be driven manually in tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Stopper
}

type Stopper interface {
	Stop() bool
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Stopper { return time.AfterFunc(d, f) }

// System is the wall clock.
var System Clock = systemClock{}

// Timer holds at most one armed countdown. On expiry it calls fire with the tag
// it was armed with, unless it was cancelled or re-armed in the meantime.
type Timer[T comparable] struct {
	clock Clock
	fire  func(T)

	mu    sync.Mutex
	armed bool
	gen   uint64
	tag   T
	stop  Stopper
}

func New[T comparable](clock Clock, fire func(T)) *Timer[T] {
	if clock == nil {
		clock = System
	}

	return &Timer[T]{clock: clock, fire: fire}
}

// Arm starts a countdown of d for tag, replacing any armed countdown.
func (t *Timer[T]) Arm(tag T, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cancelLocked()

	t.gen++
	gen := t.gen
	t.armed = true
	t.tag = tag
	t.stop = t.clock.AfterFunc(d, func() { t.expire(gen) })
}

// Cancel disarms the timer. It reports whether a countdown was armed.
func (t *Timer[T]) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.cancelLocked()
}

// Armed returns the tag of the armed countdown.
func (t *Timer[T]) Armed() (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.tag, t.armed
}

func (t *Timer[T]) cancelLocked() bool {
	if !t.armed {
		return false
	}

	t.armed = false
	t.stop.Stop()

	var zero T
	t.tag = zero
	return true
}

func (t *Timer[T]) expire(gen uint64) {
	t.mu.Lock()
	if !t.armed || t.gen != gen {
		t.mu.Unlock()
		return
	}
	tag := t.tag
	t.armed = false
	t.mu.Unlock()

	t.fire(tag)
}
