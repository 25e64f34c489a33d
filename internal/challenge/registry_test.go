package challenge

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_ScheduleFires(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	fired := make(chan struct{})
	r.Schedule("k", 10*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}

	// The timer removed itself before running its function.
	assert.Zero(t, r.Len())
}

func TestRegistry_CancelPreventsFiring(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	var fired atomic.Bool
	r.Schedule("k", 20*time.Millisecond, func() { fired.Store(true) })

	require.True(t, r.Cancel("k"))
	assert.False(t, r.Cancel("k"), "second cancel should find nothing")

	time.Sleep(50 * time.Millisecond)
	assert.False(t, fired.Load())
}

func TestRegistry_ScheduleReplacesExisting(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	var first, second atomic.Bool
	r.Schedule("k", 20*time.Millisecond, func() { first.Store(true) })
	r.Schedule("k", 20*time.Millisecond, func() { second.Store(true) })

	time.Sleep(60 * time.Millisecond)
	assert.False(t, first.Load(), "replaced timer must not fire")
	assert.True(t, second.Load())
}

func TestRegistry_Drain(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	var fired atomic.Int32
	for _, key := range []string{"a", "b", "c"} {
		r.Schedule(key, 20*time.Millisecond, func() { fired.Add(1) })
	}
	require.Equal(t, 3, r.Len())

	r.Drain()
	assert.Zero(t, r.Len())

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, fired.Load())
}
