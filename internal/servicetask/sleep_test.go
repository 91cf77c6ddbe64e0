package servicetask

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSleep(t *testing.T) {
	t.Run("elapsed", func(t *testing.T) {
		start := time.Now()
		err := sleep(t.Context(), t.Context(), 20*time.Millisecond)
		require.NoError(t, err)
		require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	})

	t.Run("woken", func(t *testing.T) {
		wake, cancel := context.WithCancel(t.Context())
		time.AfterFunc(10*time.Millisecond, cancel)
		start := time.Now()
		err := sleep(t.Context(), wake, time.Hour)
		require.ErrorIs(t, err, errDelayInterrupted)
		require.Less(t, time.Since(start), time.Second)
	})

	t.Run("already woken", func(t *testing.T) {
		wake, cancel := context.WithCancel(t.Context())
		cancel()
		require.ErrorIs(t, sleep(t.Context(), wake, time.Hour), errDelayInterrupted)
	})

	t.Run("cancelled", func(t *testing.T) {
		run, cancel := context.WithCancel(t.Context())
		time.AfterFunc(10*time.Millisecond, cancel)
		err := sleep(run, t.Context(), time.Hour)
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("cancel wins over wake", func(t *testing.T) {
		run, cancelRun := context.WithCancel(t.Context())
		wake, cancelWake := context.WithCancel(t.Context())
		cancelRun()
		cancelWake()
		require.ErrorIs(t, sleep(run, wake, time.Hour), context.Canceled)
	})
}

func TestWakeSignalReset(t *testing.T) {
	e := &Executor{}
	first := e.delaySignal()
	require.Same(t, first, e.delaySignal())

	// Unconsumed signals survive a reset.
	e.resetDelay()
	require.Same(t, first, e.delaySignal())

	e.wake()
	require.Error(t, first.Err())
	e.resetDelay()
	second := e.delaySignal()
	require.NotSame(t, first, second)
	require.NoError(t, second.Err())
}
