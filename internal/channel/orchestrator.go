package channel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/makapix/agent-core/internal/collaborators"
	"github.com/makapix/agent-core/internal/corelog"
	"github.com/makapix/agent-core/internal/corerrors"
)

const (
	artworkSentinelChannelID = "artwork"
	prefetchFirstN           = 16
	firstAssetPollInterval   = 500 * time.Millisecond
	firstAssetUIRefresh      = 2 * time.Second
	firstAssetWait           = 60 * time.Second
	errorMessageHold         = 5 * time.Second
)

// Orchestrator is the Channel Orchestrator (C6). Exactly one switch runs
// at a time (spec §3 invariant); preemption is cooperative via
// channel_load_abort.
type Orchestrator struct {
	factory         Factory
	playback        collaborators.PlaybackEngine
	ui              collaborators.UI
	downloads       collaborators.DownloadManager
	linkProbe       collaborators.LinkProbe
	appState        collaborators.AppState
	localFallback   Factory
	globalOrdering  Ordering

	wakeSem *semaphore.Weighted
	pending pendingSlot

	mu                sync.Mutex
	currentChannelID  string
	loadingChannelID  string
	channelLoading    bool
	wakeQueued        bool
	previousChannelID string
	previousReq       pendingRequest
	abortGeneration   int
	adopted           Handle
}

// New constructs an Orchestrator. wakeSem is the binary semaphore named in
// spec §4.6; the Supervisor owns its lifetime (tasks.go), the Orchestrator
// only signals and waits on it.
func New(factory, localFallback Factory, playback collaborators.PlaybackEngine, ui collaborators.UI, downloads collaborators.DownloadManager, linkProbe collaborators.LinkProbe, appState collaborators.AppState, wakeSem *semaphore.Weighted, globalOrdering Ordering) *Orchestrator {
	return &Orchestrator{
		factory: factory, localFallback: localFallback, playback: playback, ui: ui,
		downloads: downloads, linkProbe: linkProbe, appState: appState,
		wakeSem: wakeSem, globalOrdering: globalOrdering,
	}
}

// CurrentChannelID returns the adopted channel id, or empty.
func (o *Orchestrator) CurrentChannelID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.currentChannelID
}

func targetID(kind, identifier string) string {
	if identifier == "" {
		return kind
	}
	return fmt.Sprintf("%s:%s", kind, identifier)
}

// RequestSwitch implements spec §4.6's request_channel_switch: collapse a
// duplicate in-flight request to success, otherwise write the pending slot
// and either wake the idle switch task or set the abort flag to preempt
// the running one.
func (o *Orchestrator) RequestSwitch(kind, identifier, displayName string) {
	target := targetID(kind, identifier)

	o.mu.Lock()
	alreadyLoadingSame := o.channelLoading && o.loadingChannelID == target
	loading := o.channelLoading
	shouldWake := false
	if !loading && !o.wakeQueued {
		o.wakeQueued = true
		shouldWake = true
	}
	o.mu.Unlock()

	if alreadyLoadingSame {
		return
	}

	o.pending.write(pendingRequest{kind: kind, identifier: identifier, displayName: displayName, has: true})

	if loading {
		o.mu.Lock()
		o.abortGeneration++
		o.mu.Unlock()
	} else if shouldWake {
		// wakeQueued tracks whether a release is outstanding so a second
		// not-loading request can't release past the semaphore's held
		// weight of 1 before Run drains the first wake (spec §8 "switch
		// storm" must settle, not panic).
		o.wakeSem.Release(1)
	}
}

// Run is the switch task loop of spec §4.6: block on the semaphore, drain
// the pending slot, execute the switch, and, whatever the outcome
// (including preemption, invalid_state), service a request that arrived
// meanwhile before blocking on the semaphore again.
func (o *Orchestrator) Run(ctx context.Context) {
	log := corelog.For("channel")
	for {
		if err := o.wakeSem.Acquire(ctx, 1); err != nil {
			return
		}
		o.mu.Lock()
		o.wakeQueued = false
		o.mu.Unlock()

		req, had := o.pending.drain()
		if !had {
			continue
		}

		for {
			err := o.executeSwitch(ctx, req)
			if err != nil && !corerrors.Is(err, corerrors.ErrInvalidState) {
				log.Errorw("channel switch failed", "error", err)
			}
			// A request made while this switch was loading only set the
			// abort flag, without a wake; it is picked up here.
			next, has := o.pending.drain()
			if !has {
				break
			}
			req = next
		}
	}
}

// executeSwitch runs the switch procedure of spec §4.6 steps 1-13.
func (o *Orchestrator) executeSwitch(ctx context.Context, req pendingRequest) error {
	log := corelog.For("channel")
	target := targetID(req.kind, req.identifier)

	o.mu.Lock()
	if o.currentChannelID == target {
		o.mu.Unlock()
		return o.restartPlaybackNoRefresh(ctx)
	}
	prevID := o.currentChannelID
	o.previousChannelID = prevID
	// previousReq names the request that produced the adopted channel; it
	// is dropped when the current channel is something else (the artwork
	// sentinel, local storage, or none).
	if targetID(o.previousReq.kind, o.previousReq.identifier) != prevID {
		o.previousReq = pendingRequest{}
	}
	o.channelLoading = true
	o.loadingChannelID = target
	myGeneration := o.abortGeneration
	o.mu.Unlock()

	if prevID != "" && prevID != target {
		o.downloads.CancelChannel(prevID)
	}

	if err := o.releaseAdopted(ctx); err != nil {
		log.Warnw("failed to release previously adopted handle", "error", err)
	}

	handle, err := o.factory.Create(req.kind, req.identifier, req.displayName)
	if err != nil {
		o.finishLoading()
		return corerrors.Wrap(err, "creating channel handle")
	}

	o.mu.Lock()
	o.currentChannelID = target
	o.mu.Unlock()

	// LoadEmptyIndex is an acceptable outcome (spec §4.6 step 7); only a
	// genuine error falls back here.
	if _, err := handle.Load(ctx); err != nil {
		o.ui.ShowChannelMessage(collaborators.MessageError, err.Error())
		handle.Destroy(ctx)
		o.finishLoading()
		return o.fallback(ctx, req)
	}

	indexSize, available := handle.Stats()
	if available == 0 {
		if err := o.waitForFirstAsset(ctx, handle, indexSize, myGeneration); err != nil {
			o.finishLoading()
			if corerrors.Is(err, corerrors.ErrInvalidState) {
				return err
			}
			return o.fallback(ctx, req)
		}
	}

	if err := handle.StartPlayback(ctx, o.globalOrdering); err != nil {
		log.Warnw("start playback failed", "error", err)
	}

	o.mu.Lock()
	o.adopted = handle
	o.mu.Unlock()

	if err := o.playback.SwitchToChannel(ctx, handle); err != nil {
		log.Warnw("playback adoption failed", "error", err)
	}
	o.playback.RequestSwap(ctx)

	if o.appState != nil {
		if err := o.appState.SetLastChannel(target); err != nil {
			log.Warnw("failed to persist last channel", "error", err)
		}
	}

	o.ui.HideChannelMessage()
	o.mu.Lock()
	o.previousReq = req
	o.mu.Unlock()
	o.finishLoading()
	return nil
}

func (o *Orchestrator) finishLoading() {
	o.mu.Lock()
	o.channelLoading = false
	o.loadingChannelID = ""
	o.mu.Unlock()
}

func (o *Orchestrator) restartPlaybackNoRefresh(ctx context.Context) error {
	o.mu.Lock()
	h := o.adopted
	o.mu.Unlock()
	if h == nil {
		return nil
	}
	return h.StartPlayback(ctx, o.globalOrdering)
}

func (o *Orchestrator) releaseAdopted(ctx context.Context) error {
	o.mu.Lock()
	prev := o.adopted
	o.adopted = nil
	o.mu.Unlock()
	if prev == nil {
		return nil
	}
	if err := o.playback.ClearChannel(ctx); err != nil {
		return err
	}
	return prev.Destroy(ctx)
}

// waitForFirstAsset implements spec §4.6 step 9: poll every 500ms up to
// 60s, refreshing the UI every 2s, checking abort/pending every poll.
func (o *Orchestrator) waitForFirstAsset(ctx context.Context, handle Handle, indexSize int, myGeneration int) error {
	msg := collaborators.MessageLoading
	if indexSize > 0 {
		msg = collaborators.MessageDownloading
	}
	showUI := false
	if o.linkProbe != nil {
		if _, err := o.linkProbe.GetLocalIP(); err == nil {
			showUI = true
			o.ui.ShowChannelMessage(msg, "")
		}
	}

	o.downloads.EnsureDownloadsAhead(ctx, handle.ChannelID(), prefetchFirstN)

	deadline := time.Now().Add(firstAssetWait)
	lastUIRefresh := time.Now()
	ticker := time.NewTicker(firstAssetPollInterval)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if o.playback.IsAnimationReady(ctx) {
			return nil
		}
		if _, available := handle.Stats(); available > 0 {
			return nil
		}

		o.mu.Lock()
		aborted := o.abortGeneration != myGeneration
		o.mu.Unlock()
		if aborted || o.pending.hasRequest() {
			o.playback.ClearChannel(ctx)
			handle.Destroy(ctx)
			o.mu.Lock()
			o.currentChannelID = ""
			o.mu.Unlock()
			return corerrors.ErrInvalidState
		}

		if time.Since(lastUIRefresh) >= firstAssetUIRefresh {
			if showUI {
				elapsed := firstAssetWait - time.Until(deadline)
				o.ui.ShowChannelMessage(msg, fmt.Sprintf("%ds", int(elapsed.Seconds())))
			}
			o.downloads.EnsureDownloadsAhead(ctx, handle.ChannelID(), prefetchFirstN)
			lastUIRefresh = time.Now()
		}
	}

	o.ui.ShowChannelMessage(collaborators.MessageError, "timed out waiting for first asset")
	select {
	case <-time.After(errorMessageHold):
	case <-ctx.Done():
	}
	handle.Destroy(ctx)
	o.mu.Lock()
	o.currentChannelID = ""
	o.mu.Unlock()
	return corerrors.ErrTimeout
}

// fallback implements the priority order of spec §4.6 step 9e: pending
// request, then previous channel, then local storage (terminal, does not
// re-enter the loop).
func (o *Orchestrator) fallback(ctx context.Context, failedReq pendingRequest) error {
	if o.pending.hasRequest() {
		return corerrors.ErrInvalidState
	}

	o.mu.Lock()
	prevID := o.previousChannelID
	prevReq := o.previousReq
	o.mu.Unlock()
	if prevID != "" && prevID != targetID(failedReq.kind, failedReq.identifier) && prevReq.has {
		o.pending.write(prevReq)
		return corerrors.ErrInvalidState
	}

	return o.fallbackToLocalStorage(ctx)
}

func (o *Orchestrator) fallbackToLocalStorage(ctx context.Context) error {
	if o.localFallback == nil {
		return corerrors.New("no local-storage fallback configured")
	}
	handle, err := o.localFallback.Create(string(KindRemote), "sdcard", "Local Storage")
	if err != nil {
		return corerrors.Wrap(err, "creating local-storage fallback handle")
	}
	if _, err := handle.Load(ctx); err != nil {
		return corerrors.Wrap(err, "loading local-storage fallback handle")
	}
	if err := handle.StartPlayback(ctx, o.globalOrdering); err != nil {
		corelog.For("channel").Warnw("local fallback start playback failed", "error", err)
	}
	o.mu.Lock()
	o.adopted = handle
	o.currentChannelID = "sdcard"
	o.mu.Unlock()
	o.playback.SwitchToChannel(ctx, handle)
	o.playback.RequestSwap(ctx)
	o.ui.HideChannelMessage()
	return nil
}
