// Package refcollab provides log-only reference implementations of the
// collaborator interfaces declared in internal/collaborators and the
// internal/channel.Factory, for the CLI binary to run against when no
// firmware-side display/decoder stack is wired in. Grounded on
// ats/ix/progress.go's CLIEmitter/JSONEmitter split: a pretty-printed
// terminal stand-in alongside the structured one real deployments use.
package refcollab

import (
	"context"

	"github.com/pterm/pterm"

	"github.com/makapix/agent-core/internal/channel"
	"github.com/makapix/agent-core/internal/collaborators"
)

// Playback logs every call instead of driving a real framebuffer.
type Playback struct{}

func (Playback) SwitchToChannel(ctx context.Context, handle any) error {
	pterm.Info.Printfln("playback: switch to channel (handle adopted)")
	return nil
}
func (Playback) ClearChannel(ctx context.Context) error {
	pterm.Info.Println("playback: channel cleared")
	return nil
}
func (Playback) RequestSwap(ctx context.Context) error {
	pterm.Info.Println("playback: swap requested")
	return nil
}
func (Playback) IsAnimationReady(ctx context.Context) bool { return false }

// UI prints channel messages instead of rendering them.
type UI struct{}

func (UI) ShowChannelMessage(msg collaborators.ChannelMessage, detail string) {
	pterm.Warning.Printfln("ui: channel message %d: %s", msg, detail)
}
func (UI) HideChannelMessage() { pterm.Info.Println("ui: channel message cleared") }

// Downloads is a no-op: it starts no download and never reports busy.
type Downloads struct{}

func (Downloads) EnsureDownloadsAhead(ctx context.Context, channelID string, n int) error { return nil }
func (Downloads) CancelChannel(channelID string)                                         {}
func (Downloads) IsBusy(channelID string) bool                                           { return false }

// LinkProbe reports no local IP; real deployments wire the platform
// network stack here.
type LinkProbe struct{}

func (LinkProbe) GetLocalIP() (string, error) { return "", nil }

// AppState discards the last-selected channel; real deployments persist
// it alongside other UI preferences.
type AppState struct{}

func (AppState) SetLastChannel(channelID string) error { return nil }

// PlayScheduler logs refresh completions instead of waking a real
// play-scheduler task.
type PlayScheduler struct{}

func (PlayScheduler) NotifyChannelRefreshed(channelID string) {
	pterm.Info.Printfln("refresh: channel %s ready", channelID)
}

// SharedBus reports never locked; real deployments wire in the mutex OTA
// and other subsystems hold during their own exclusive windows.
type SharedBus struct{}

func (SharedBus) IsLocked() bool    { return false }
func (SharedBus) GetHolder() string { return "" }

// emptyHandle is a Channel Handle with an always-empty index, standing in
// for the real artwork-decoder-backed handle until one is wired.
type emptyHandle struct {
	id          string
	displayName string
}

func (h *emptyHandle) ChannelID() string   { return h.id }
func (h *emptyHandle) DisplayName() string { return h.displayName }
func (h *emptyHandle) Load(ctx context.Context) (channel.LoadResult, error) {
	return channel.LoadEmptyIndex, nil
}
func (h *emptyHandle) Unload(ctx context.Context) error { return nil }
func (h *emptyHandle) StartPlayback(ctx context.Context, ordering channel.Ordering) error {
	return nil
}
func (h *emptyHandle) Next(ctx context.Context) (channel.Post, error)    { return channel.Post{}, nil }
func (h *emptyHandle) Prev(ctx context.Context) (channel.Post, error)    { return channel.Post{}, nil }
func (h *emptyHandle) Current(ctx context.Context) (channel.Post, error) { return channel.Post{}, nil }
func (h *emptyHandle) RequestRefresh(ctx context.Context) error          { return nil }
func (h *emptyHandle) RequestReshuffle(ctx context.Context) error        { return nil }
func (h *emptyHandle) Stats() (int, int)                                { return 0, 0 }
func (h *emptyHandle) Destroy(ctx context.Context) error                 { return nil }

// Factory creates empty-index handles; a real deployment substitutes a
// factory backed by the downloaded channel index and vault.
type Factory struct{}

func (Factory) Create(kind, identifier, displayName string) (channel.Handle, error) {
	return &emptyHandle{id: identifier, displayName: displayName}, nil
}
