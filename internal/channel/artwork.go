package channel

import (
	"context"
	"sync"

	"github.com/makapix/agent-core/internal/collaborators"
	"github.com/makapix/agent-core/internal/corelog"
	"github.com/makapix/agent-core/internal/viewtracker"
)

// DownloadProgress reports incremental download progress for a
// show-single-artwork task.
type DownloadProgress func(bytesDone, bytesTotal int64)

// ArtworkDownloader is the narrow capability show-single-artwork needs; a
// separate interface from the channel Factory since a single artwork is
// not index-backed.
type ArtworkDownloader interface {
	Download(ctx context.Context, sourceURL, vaultPath string, progress DownloadProgress) error
}

// ShowArtwork implements spec §4.6's distinct cooperative "show this
// artwork now" mode: cancel any in-flight show-artwork task, download the
// file, then submit a direct swap with the intentional flag set. It marks
// current_channel_id as the sentinel "artwork" so a subsequent normal
// channel switch is not mistaken for a no-op.
type ShowArtwork struct {
	downloader ArtworkDownloader
	playback   collaborators.PlaybackEngine
	intent     *viewtracker.IntentFlag

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewShowArtwork constructs the show-single-artwork coordinator.
func NewShowArtwork(downloader ArtworkDownloader, playback collaborators.PlaybackEngine, intent *viewtracker.IntentFlag) *ShowArtwork {
	return &ShowArtwork{downloader: downloader, playback: playback, intent: intent}
}

// Show cancels any in-flight show-artwork task and starts a new one.
func (sa *ShowArtwork) Show(ctx context.Context, o *Orchestrator, sourceURL, vaultPath string, progress DownloadProgress) {
	sa.mu.Lock()
	if sa.cancel != nil {
		sa.cancel()
	}
	taskCtx, cancel := context.WithCancel(ctx)
	sa.cancel = cancel
	sa.mu.Unlock()

	go sa.run(taskCtx, o, sourceURL, vaultPath, progress)
}

func (sa *ShowArtwork) run(ctx context.Context, o *Orchestrator, sourceURL, vaultPath string, progress DownloadProgress) {
	log := corelog.For("channel.artwork")

	if err := sa.downloader.Download(ctx, sourceURL, vaultPath, progress); err != nil {
		if ctx.Err() != nil {
			return // superseded by a newer show-artwork call
		}
		log.Warnw("show-artwork download failed", "source_url", sourceURL, "error", err)
		return
	}

	o.mu.Lock()
	o.currentChannelID = artworkSentinelChannelID
	o.mu.Unlock()

	if sa.intent != nil {
		sa.intent.Set()
	}
	if err := sa.playback.RequestSwap(ctx); err != nil {
		log.Warnw("show-artwork swap request failed", "error", err)
	}
}
