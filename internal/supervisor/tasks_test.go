package supervisor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNotifyStatusTickDoesNotOverReleaseSemaphore(t *testing.T) {
	tasks := NewTasks()

	require.NotPanics(t, func() {
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				tasks.NotifyStatusTick()
			}()
		}
		wg.Wait()
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, tasks.StatusWakeSem.Acquire(ctx, 1), "exactly one release must be outstanding")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel2()
	require.Error(t, tasks.StatusWakeSem.Acquire(ctx2, 1), "a second acquire must time out, no extra release occurred")
}

func TestClearStatusWakeAllowsNextNotify(t *testing.T) {
	tasks := NewTasks()

	tasks.NotifyStatusTick()
	require.NoError(t, tasks.StatusWakeSem.Acquire(context.Background(), 1))
	tasks.ClearStatusWake()

	tasks.NotifyStatusTick()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, tasks.StatusWakeSem.Acquire(ctx, 1), "a tick after clearing the wake must release again")
}
