package timer_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/livequiz/internal/timer"
)

func TestTimer_FiresWithTag(t *testing.T) {
	c := timer.NewManualClock(time.Unix(0, 0))

	var fired []int
	tm := timer.New(c, func(tag int) { fired = append(fired, tag) })

	tm.Arm(0, 10*time.Second)
	c.Advance(9 * time.Second)
	assert.Empty(t, fired)

	c.Advance(time.Second)
	assert.Equal(t, []int{0}, fired)

	_, armed := tm.Armed()
	assert.False(t, armed)
}

func TestTimer_CancelPreventsExpiry(t *testing.T) {
	c := timer.NewManualClock(time.Unix(0, 0))

	var fired []int
	tm := timer.New(c, func(tag int) { fired = append(fired, tag) })

	tm.Arm(0, 10*time.Second)
	require.True(t, tm.Cancel())
	require.False(t, tm.Cancel())

	c.Advance(time.Minute)
	assert.Empty(t, fired)
	assert.Zero(t, c.Pending())
}

func TestTimer_RearmReplacesTag(t *testing.T) {
	c := timer.NewManualClock(time.Unix(0, 0))

	var fired []int
	tm := timer.New(c, func(tag int) { fired = append(fired, tag) })

	tm.Arm(0, 10*time.Second)
	c.Advance(3 * time.Second)
	tm.Arm(1, 10*time.Second)

	c.Advance(7 * time.Second)
	assert.Empty(t, fired, "the countdown of question 0 was replaced")

	tag, armed := tm.Armed()
	assert.True(t, armed)
	assert.Equal(t, 1, tag)

	c.Advance(3 * time.Second)
	assert.Equal(t, []int{1}, fired)
}

func TestTimer_StaleExpiryIsIgnored(t *testing.T) {
	// A wall clock timer whose Stop loses the race still calls back; the
	// generation check must drop it.
	c := &racyClock{}

	var fired []string
	tm := timer.New(c, func(tag string) { fired = append(fired, tag) })

	tm.Arm("q0", time.Second)
	tm.Arm("q1", time.Second)

	c.fireAll()
	assert.Equal(t, []string{"q1"}, fired)
}

func TestTimer_SystemClock(t *testing.T) {
	var (
		wg  sync.WaitGroup
		got string
	)
	wg.Add(1)
	tm := timer.New(nil, func(tag string) {
		got = tag
		wg.Done()
	})

	tm.Arm("q0", 10*time.Millisecond)
	wg.Wait()

	assert.Equal(t, "q0", got)
}

type racyClock struct {
	fs []func()
}

func (c *racyClock) Now() time.Time { return time.Unix(0, 0) }

func (c *racyClock) AfterFunc(_ time.Duration, f func()) timer.Stopper {
	c.fs = append(c.fs, f)
	return lostRace{}
}

func (c *racyClock) fireAll() {
	for _, f := range c.fs {
		f()
	}
}

type lostRace struct{}

func (lostRace) Stop() bool { return false }
