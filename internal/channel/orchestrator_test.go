package channel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"

	"github.com/makapix/agent-core/internal/collaborators"
)

type fakeHandle struct {
	mu        sync.Mutex
	id        string
	available int
	loaded    bool
	destroyed bool
}

func (h *fakeHandle) ChannelID() string   { return h.id }
func (h *fakeHandle) DisplayName() string { return h.id }
func (h *fakeHandle) Load(ctx context.Context) (LoadResult, error) {
	h.mu.Lock()
	h.loaded = true
	h.mu.Unlock()
	return LoadSuccess, nil
}
func (h *fakeHandle) Unload(ctx context.Context) error { return nil }
func (h *fakeHandle) StartPlayback(ctx context.Context, ordering Ordering) error { return nil }
func (h *fakeHandle) Next(ctx context.Context) (Post, error)    { return Post{}, nil }
func (h *fakeHandle) Prev(ctx context.Context) (Post, error)    { return Post{}, nil }
func (h *fakeHandle) Current(ctx context.Context) (Post, error) { return Post{}, nil }
func (h *fakeHandle) RequestRefresh(ctx context.Context) error  { return nil }
func (h *fakeHandle) RequestReshuffle(ctx context.Context) error { return nil }
func (h *fakeHandle) Stats() (int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return 100, h.available
}
func (h *fakeHandle) Destroy(ctx context.Context) error {
	h.mu.Lock()
	h.destroyed = true
	h.mu.Unlock()
	return nil
}
func (h *fakeHandle) setAvailable(n int) {
	h.mu.Lock()
	h.available = n
	h.mu.Unlock()
}

type fakeFactory struct {
	mu      sync.Mutex
	created map[string]*fakeHandle
	creates int
}

func newFakeFactory() *fakeFactory { return &fakeFactory{created: make(map[string]*fakeHandle)} }

func (f *fakeFactory) Create(kind, identifier, displayName string) (Handle, error) {
	id := targetID(kind, identifier)
	h := &fakeHandle{id: id, available: 1}
	f.mu.Lock()
	f.created[id] = h
	f.creates++
	f.mu.Unlock()
	return h, nil
}

type fakePlayback struct{ swaps int }

func (p *fakePlayback) SwitchToChannel(ctx context.Context, handle any) error { return nil }
func (p *fakePlayback) ClearChannel(ctx context.Context) error               { return nil }
func (p *fakePlayback) RequestSwap(ctx context.Context) error                { p.swaps++; return nil }
func (p *fakePlayback) IsAnimationReady(ctx context.Context) bool            { return false }

type fakeUI struct{ messages []collaborators.ChannelMessage }

func (u *fakeUI) ShowChannelMessage(msg collaborators.ChannelMessage, detail string) {
	u.messages = append(u.messages, msg)
}
func (u *fakeUI) HideChannelMessage() {}

type fakeDownloads struct{ ensureCalls int }

func (d *fakeDownloads) EnsureDownloadsAhead(ctx context.Context, channelID string, n int) error {
	d.ensureCalls++
	return nil
}
func (d *fakeDownloads) CancelChannel(channelID string)    {}
func (d *fakeDownloads) IsBusy(channelID string) bool      { return false }

func newTestOrchestrator() (*Orchestrator, *fakeFactory) {
	factory := newFakeFactory()
	sem := semaphore.NewWeighted(1)
	sem.TryAcquire(1) // held, as supervisor.NewTasks hands it over
	o := New(factory, factory, &fakePlayback{}, &fakeUI{}, &fakeDownloads{}, nil, nil, sem, OrderingOriginal)
	return o, factory
}

func TestSwitchAdoptsTargetChannel(t *testing.T) {
	o, _ := newTestOrchestrator()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go o.Run(ctx)
	o.RequestSwitch("promoted", "", "Promoted")

	require.Eventually(t, func() bool {
		return o.CurrentChannelID() == "promoted"
	}, time.Second, 10*time.Millisecond)
}

func TestDuplicateRequestCollapses(t *testing.T) {
	o, factory := newTestOrchestrator()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go o.Run(ctx)
	o.RequestSwitch("promoted", "", "Promoted")
	o.RequestSwitch("promoted", "", "Promoted")

	require.Eventually(t, func() bool {
		return o.CurrentChannelID() == "promoted"
	}, time.Second, 10*time.Millisecond)

	factory.mu.Lock()
	creates := factory.creates
	factory.mu.Unlock()
	require.Equal(t, 1, creates, "a duplicate request for the same target must not create a second handle")
}

func TestSwitchStormDoesNotOverReleaseSemaphore(t *testing.T) {
	o, _ := newTestOrchestrator()

	require.NotPanics(t, func() {
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				o.RequestSwitch("promoted", "", "Promoted")
			}(i)
		}
		wg.Wait()
	}, "a storm of not-loading requests must not release the wake semaphore past its held weight of 1")

	require.NoError(t, o.wakeSem.Acquire(context.Background(), 1), "exactly one release must be outstanding")
}

func TestLaterRequestEventuallyWins(t *testing.T) {
	o, _ := newTestOrchestrator()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go o.Run(ctx)
	o.RequestSwitch("promoted", "", "Promoted")
	o.RequestSwitch("all", "", "All")

	require.Eventually(t, func() bool {
		return o.CurrentChannelID() == "all"
	}, 2*time.Second, 10*time.Millisecond)
}
