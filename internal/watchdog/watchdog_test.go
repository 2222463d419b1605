package watchdog

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeSpawner struct {
	mu      sync.Mutex
	running bool
	spawns  int32
}

func (s *fakeSpawner) ReconnectTaskRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
func (s *fakeSpawner) SpawnReconnectTask() {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
	atomic.AddInt32(&s.spawns, 1)
}

type fakeReinit struct{ calls int32 }

func (r *fakeReinit) FullReinit(ctx context.Context) { atomic.AddInt32(&r.calls, 1) }

func TestRunReconnectWatchdogRespawnsWhenMissing(t *testing.T) {
	spawner := &fakeSpawner{}
	disconnected := true
	w := New(spawner, &fakeReinit{}, func() bool { return disconnected })

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	w.RunReconnectWatchdog(ctx, 20*time.Millisecond)

	require.GreaterOrEqual(t, atomic.LoadInt32(&spawner.spawns), int32(1))
}

func TestRunReconnectWatchdogSkipsWhenConnected(t *testing.T) {
	spawner := &fakeSpawner{}
	w := New(spawner, &fakeReinit{}, func() bool { return false })

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	w.RunReconnectWatchdog(ctx, 10*time.Millisecond)

	require.Equal(t, int32(0), atomic.LoadInt32(&spawner.spawns))
}

func TestOnDisconnectTriggersReinitAtThreshold(t *testing.T) {
	reinit := &fakeReinit{}
	w := New(&fakeSpawner{}, reinit, func() bool { return true })

	ctx := context.Background()
	for i := 0; i < consecutiveDisconnectThreshold-1; i++ {
		w.OnDisconnect(ctx)
	}
	require.Equal(t, int32(0), atomic.LoadInt32(&reinit.calls), "reinit must not fire before the threshold")

	w.OnDisconnect(ctx)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&reinit.calls) == 1 }, time.Second, 5*time.Millisecond)
}

func TestOnConnectResetsStreak(t *testing.T) {
	reinit := &fakeReinit{}
	w := New(&fakeSpawner{}, reinit, func() bool { return true })

	ctx := context.Background()
	for i := 0; i < consecutiveDisconnectThreshold-1; i++ {
		w.OnDisconnect(ctx)
	}
	w.OnConnect()
	w.OnDisconnect(ctx)

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, int32(0), atomic.LoadInt32(&reinit.calls), "a connect between disconnects must reset the streak")
}
