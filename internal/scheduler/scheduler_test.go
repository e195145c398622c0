package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 9, 1, 18, 0, 0, 0, time.UTC)

func TestAfter_FiresOnceAtDeadline(t *testing.T) {
	clock := NewManualClock(epoch)
	s := New(clock)

	var firedAt []time.Time
	s.After(90*time.Second, func() { firedAt = append(firedAt, clock.Now()) })

	clock.Advance(89 * time.Second)
	require.Empty(t, firedAt)

	clock.Advance(time.Second)
	require.Len(t, firedAt, 1)
	assert.Equal(t, epoch.Add(90*time.Second), firedAt[0])

	clock.Advance(time.Hour)
	assert.Len(t, firedAt, 1)
	assert.Equal(t, 0, s.Len())
}

func TestAfter_CancelPreventsFire(t *testing.T) {
	clock := NewManualClock(epoch)
	s := New(clock)

	fired := false
	task := s.After(time.Second, func() { fired = true })
	require.True(t, task.Cancel())
	require.False(t, task.Cancel())

	clock.Advance(time.Minute)
	assert.False(t, fired)
	assert.Equal(t, 0, clock.Pending())
}

func TestEvery_FiresEachInterval(t *testing.T) {
	clock := NewManualClock(epoch)
	s := New(clock)

	var ticks []time.Time
	task := s.Every(time.Second, func() { ticks = append(ticks, clock.Now()) })

	clock.Advance(10 * time.Second)
	require.Len(t, ticks, 10)
	for i, at := range ticks {
		assert.Equal(t, epoch.Add(time.Duration(i+1)*time.Second), at)
	}

	task.Cancel()
	clock.Advance(10 * time.Second)
	assert.Len(t, ticks, 10)
}

func TestEvery_DeadlinesDoNotDrift(t *testing.T) {
	clock := NewManualClock(epoch)
	s := New(clock)

	var ticks []time.Time
	s.Every(time.Second, func() {
		ticks = append(ticks, clock.Now())
	})

	// Advance in uneven steps; ticks must still land on whole seconds.
	clock.Advance(1500 * time.Millisecond)
	clock.Advance(700 * time.Millisecond)
	clock.Advance(800 * time.Millisecond)

	require.Len(t, ticks, 3)
	assert.Equal(t, epoch.Add(3*time.Second), ticks[2])
}

func TestStop_CancelsEverything(t *testing.T) {
	clock := NewManualClock(epoch)
	s := New(clock)

	count := 0
	s.Every(time.Second, func() { count++ })
	s.After(time.Second, func() { count++ })
	s.Stop()

	late := s.After(time.Second, func() { count++ })
	assert.True(t, late.Cancelled())

	clock.Advance(time.Minute)
	assert.Zero(t, count)
}

func TestRealClock_AfterFires(t *testing.T) {
	s := New(nil)
	done := make(chan struct{})
	s.After(5*time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for real-clock task")
	}
}
