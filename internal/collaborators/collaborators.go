// Package collaborators declares the narrow interfaces the core depends on
// but does not implement, per spec §6.5: playback engine, UI, render
// surface, download manager, link-layer probe, and shared-bus mutex. Real
// implementations live outside this module (firmware-side); tests supply
// fakes.
package collaborators

import "context"

// ChannelMessage mirrors the render-surface message kinds named in spec
// §6.5.
type ChannelMessage int

const (
	MessageNone ChannelMessage = iota
	MessageLoading
	MessageDownloading
	MessageError
	MessageEmpty
)

// PlaybackEngine is the display-side consumer of adopted channel handles.
type PlaybackEngine interface {
	// SwitchToChannel adopts handle as the currently displayed channel.
	SwitchToChannel(ctx context.Context, handle any) error
	ClearChannel(ctx context.Context) error
	RequestSwap(ctx context.Context) error
	IsAnimationReady(ctx context.Context) bool
}

// UI shows/hides a channel-load status message.
type UI interface {
	ShowChannelMessage(msg ChannelMessage, detail string)
	HideChannelMessage()
}

// RenderSurface is the lower-level message sink UI delegates to.
type RenderSurface interface {
	SetChannelMessage(msg ChannelMessage)
}

// DownloadManager ensures local assets exist ahead of playback.
type DownloadManager interface {
	EnsureDownloadsAhead(ctx context.Context, channelID string, n int) error
	CancelChannel(channelID string)
	IsBusy(channelID string) bool
}

// LinkProbe reports connectivity/link-layer state.
type LinkProbe interface {
	GetLocalIP() (string, error)
}

// SharedBus is an external mutex (e.g. held during OTA) the status
// publisher must respect by skipping publication while locked.
type SharedBus interface {
	IsLocked() bool
	GetHolder() string
}

// AppState persists the last-selected channel across restarts (spec §4.6
// step 12, "application state layer").
type AppState interface {
	SetLastChannel(channelID string) error
}
