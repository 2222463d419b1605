// Package channel implements the Channel Orchestrator (C6): serialized
// channel switching with preemption, prefetch-to-first-asset, fallback,
// and playback-engine adoption handoff. Grounded on sync/peer.go's
// phase-by-phase reconciliation-to-completion-or-abort shape for the
// switch procedure, and pulse/async/worker.go's context-checked loop for
// the first-asset poll.
package channel

import "context"

// Kind distinguishes the two Channel Handle variants of spec §3.
type Kind string

const (
	KindRemote    Kind = "remote"
	KindTransient Kind = "transient"
)

// Ordering mirrors the ordering modes named in spec §3.
type Ordering string

const (
	OrderingOriginal Ordering = "ORIGINAL"
	OrderingCreated  Ordering = "CREATED"
	OrderingRandom   Ordering = "RANDOM"
)

// PostKind tags the Channel Post union of spec §3.
type PostKind string

const (
	PostArtwork  PostKind = "ARTWORK"
	PostPlaylist PostKind = "PLAYLIST"
)

// Artwork is one artwork post.
type Artwork struct {
	PostID     int
	StorageKey string
	SourceURL  string
	VaultPath  string
	Kind       string // WEBP | GIF | PNG | JPEG
	Owner      string
	Width      int
	Height     int
	FrameCount int
	Transparent bool
	DwellSeconds int
}

// Post is the tagged union of spec §3: either a single Artwork or an
// ordered Playlist of Artworks.
type Post struct {
	PostKind PostKind
	Artwork  Artwork
	Playlist []Artwork
}

// LoadResult is the outcome of Handle.Load (spec §4.6 step 7).
type LoadResult int

const (
	LoadSuccess LoadResult = iota
	LoadEmptyIndex
	LoadError
)

// Handle is the common capability set every Channel Handle exposes (spec
// §3, Design Notes "avoid casting void pointers" — here an interface
// rather than a tagged variant, since Go has no ambient void*).
type Handle interface {
	ChannelID() string
	DisplayName() string
	Load(ctx context.Context) (LoadResult, error)
	Unload(ctx context.Context) error
	StartPlayback(ctx context.Context, ordering Ordering) error
	Next(ctx context.Context) (Post, error)
	Prev(ctx context.Context) (Post, error)
	Current(ctx context.Context) (Post, error)
	RequestRefresh(ctx context.Context) error
	RequestReshuffle(ctx context.Context) error
	// Stats reports (index size, locally available count).
	Stats() (indexSize int, availableCount int)
	Destroy(ctx context.Context) error
}

// Factory creates a new Handle for (kind, identifier).
type Factory interface {
	Create(kind string, identifier string, displayName string) (Handle, error)
}
