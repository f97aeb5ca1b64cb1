package timer

import (
	"sort"
	"sync"
	"time"
)

// ManualClock is a Clock that only moves when Advance is called.
type ManualClock struct {
	mu      sync.Mutex
	now     time.Time
	seq     uint64
	pending []*manualTimer
}

func NewManualClock(now time.Time) *ManualClock {
	return &ManualClock{now: now}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *ManualClock) AfterFunc(d time.Duration, f func()) Stopper {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	mt := &manualTimer{c: c, at: c.now.Add(d), seq: c.seq, f: f}
	c.pending = append(c.pending, mt)
	return mt
}

// Advance moves the clock forward and runs, in deadline order, every function that became due.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)

	var due, rest []*manualTimer
	for _, mt := range c.pending {
		if !mt.at.After(c.now) {
			due = append(due, mt)
		} else {
			rest = append(rest, mt)
		}
	}
	c.pending = rest
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool {
		if !due[i].at.Equal(due[j].at) {
			return due[i].at.Before(due[j].at)
		}
		return due[i].seq < due[j].seq
	})

	for _, mt := range due {
		mt.f()
	}
}

// Pending returns the number of functions waiting to run.
func (c *ManualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.pending)
}

type manualTimer struct {
	c   *ManualClock
	at  time.Time
	seq uint64
	f   func()
}

func (mt *manualTimer) Stop() bool {
	mt.c.mu.Lock()
	defer mt.c.mu.Unlock()

	for i, p := range mt.c.pending {
		if p == mt {
			mt.c.pending = append(mt.c.pending[:i], mt.c.pending[i+1:]...)
			return true
		}
	}
	return false
}
