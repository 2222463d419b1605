package viewtracker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeEmitter struct {
	mu     sync.Mutex
	events []Event
}

func (e *fakeEmitter) Emit(ctx context.Context, ev Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
	return nil
}

func (e *fakeEmitter) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.events)
}

func TestEmitsAtFirstThenEverySubsequent(t *testing.T) {
	emitter := &fakeEmitter{}
	intent := &IntentFlag{}
	tr := New(emitter, intent, "player-1", "/vault", 10*time.Millisecond, 50*time.Millisecond, 100*time.Millisecond)
	tr.Swap(1, "/vault/a/b/c/x.jpg", "promoted", "promoted", "created")

	ctx, cancel := context.WithTimeout(context.Background(), 400*time.Millisecond)
	defer cancel()
	go tr.Run(ctx)

	require.Eventually(t, func() bool { return emitter.count() >= 2 }, 300*time.Millisecond, 5*time.Millisecond)
}

func TestRedundantSwapDoesNotResetTimer(t *testing.T) {
	intent := &IntentFlag{}
	tr := New(&fakeEmitter{}, intent, "player-1", "/vault", 10*time.Millisecond, 50*time.Millisecond, 100*time.Millisecond)
	tr.Swap(1, "/vault/x.jpg", "promoted", "promoted", "created")
	tr.mu.Lock()
	tr.elapsed = 30 * time.Millisecond
	tr.mu.Unlock()

	tr.Swap(1, "/vault/x.jpg", "promoted", "promoted", "created")

	tr.mu.Lock()
	elapsed := tr.elapsed
	tr.mu.Unlock()
	require.Equal(t, 30*time.Millisecond, elapsed, "an identical postID+filepath signal must not reset the dwell timer")
}

func TestNonVaultPathIsNotEmitted(t *testing.T) {
	emitter := &fakeEmitter{}
	intent := &IntentFlag{}
	tr := New(emitter, intent, "player-1", "/vault", 10*time.Millisecond, 20*time.Millisecond, 100*time.Millisecond)
	tr.Swap(1, "/local/storage/x.jpg", "promoted", "promoted", "created")

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	tr.Run(ctx)

	require.Equal(t, 0, emitter.count(), "assets outside the vault must not be reported")
}

func TestIntentFlagSetAndClearedOnSwap(t *testing.T) {
	intent := &IntentFlag{}
	intent.Set()
	tr := New(&fakeEmitter{}, intent, "player-1", "/vault", 10*time.Millisecond, 50*time.Millisecond, 100*time.Millisecond)
	tr.Swap(1, "/vault/x.jpg", "promoted", "promoted", "created")

	tr.mu.Lock()
	got := tr.intentual
	tr.mu.Unlock()
	require.Equal(t, IntentArtwork, got)
	require.False(t, intent.TakeAndClear(), "the flag must be consumed by the swap, not left set")
}
