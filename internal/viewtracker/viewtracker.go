// Package viewtracker implements the View Tracker (C8): periodic timed
// telemetry emission for the currently displayed asset, grounded on
// pulse/schedule/ticker.go's 1s-tick loop.
package viewtracker

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/makapix/agent-core/internal/corelog"
)

// Intent distinguishes a view caused by an explicit show-artwork command
// from one produced by normal channel playback (Glossary: "Intentional
// view").
type Intent string

const (
	IntentArtwork Intent = "artwork"
	IntentChannel Intent = "channel"
)

// Event is one emitted view-telemetry event (spec §4.8).
type Event struct {
	PostID           int
	Intent           Intent
	PlayOrder        string
	ChannelName      string
	Identifier       string
	PlayerKey        string
	AckRequested     bool
}

// Emitter publishes a view Event (the session manager's PublishView).
type Emitter interface {
	Emit(ctx context.Context, ev Event) error
}

// IntentFlag is the atomic read-and-clear view-intent flag agent.Core
// owns; ShowArtwork sets it before requesting a swap so the tracker can
// tell an intentional view from ordinary playback (spec §4.8, §4.6).
type IntentFlag struct {
	v atomic.Bool
}

// Set marks the next swap as intentional.
func (f *IntentFlag) Set() { f.v.Store(true) }

// TakeAndClear reads and clears the flag atomically.
func (f *IntentFlag) TakeAndClear() bool { return f.v.Swap(false) }

// Tracker emits view telemetry on a cadence tied to asset dwell time.
type Tracker struct {
	emitter   Emitter
	intent    *IntentFlag
	playerKey string
	playOrder string
	vaultRoot string

	tickInterval  time.Duration
	firstAt       time.Duration
	subsequentAt  time.Duration

	mu         sync.Mutex
	postID     int
	filepath   string
	active     bool
	elapsed    time.Duration
	intentual  Intent
	identifier string
	channel    string
}

// New constructs a Tracker. vaultRoot is used to test whether a swapped
// asset path is vault-backed (spec §4.8: local-storage assets are not
// reported).
func New(emitter Emitter, intent *IntentFlag, playerKey, vaultRoot string, tickInterval, firstAt, subsequentAt time.Duration) *Tracker {
	return &Tracker{
		emitter: emitter, intent: intent, playerKey: playerKey, vaultRoot: vaultRoot,
		tickInterval: tickInterval, firstAt: firstAt, subsequentAt: subsequentAt,
	}
}

// SetPlayerKey updates the player_key stamped on emitted events, once it
// becomes known at the end of provisioning.
func (t *Tracker) SetPlayerKey(playerKey string) {
	t.mu.Lock()
	t.playerKey = playerKey
	t.mu.Unlock()
}

// Swap signals the tracker of a displayed-asset change. Redundant signals
// (same postID+filepath already being tracked) are ignored without
// resetting the timer.
func (t *Tracker) Swap(postID int, filepath, channelName, identifier string, playOrder string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active && t.postID == postID && t.filepath == filepath {
		return
	}

	t.postID = postID
	t.filepath = filepath
	t.channel = channelName
	t.identifier = identifier
	t.playOrder = playOrder
	t.elapsed = 0
	t.active = true

	if t.intent.TakeAndClear() {
		t.intentual = IntentArtwork
	} else {
		t.intentual = IntentChannel
	}
}

// isVaultBacked reports whether path falls under the vault prefix.
func (t *Tracker) isVaultBacked(path string) bool {
	return t.vaultRoot != "" && strings.HasPrefix(path, t.vaultRoot)
}

// Run ticks at tickInterval, emitting a view event at firstAt and every
// subsequentAt thereafter while the same asset remains tracked.
func (t *Tracker) Run(ctx context.Context) {
	log := corelog.For("viewtracker")
	ticker := time.NewTicker(t.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.tick(ctx, log)
		}
	}
}

func (t *Tracker) tick(ctx context.Context, log interface {
	Warnw(string, ...any)
}) {
	t.mu.Lock()
	if !t.active {
		t.mu.Unlock()
		return
	}
	t.elapsed += t.tickInterval
	elapsed := t.elapsed
	postID, path, channelName, identifier, playOrder, intent := t.postID, t.filepath, t.channel, t.identifier, t.playOrder, t.intentual
	playerKey := t.playerKey
	t.mu.Unlock()

	if !t.shouldEmit(elapsed) {
		return
	}
	if !t.isVaultBacked(path) {
		return
	}

	ev := Event{
		PostID: postID, Intent: intent, PlayOrder: playOrder,
		ChannelName: channelName, Identifier: identifier,
		PlayerKey: playerKey, AckRequested: true,
	}
	if err := t.emitter.Emit(ctx, ev); err != nil {
		log.Warnw("view event emission failed", "error", err)
	}
}

func (t *Tracker) shouldEmit(elapsed time.Duration) bool {
	if elapsed == t.firstAt {
		return true
	}
	if elapsed < t.firstAt {
		return false
	}
	offset := elapsed - t.firstAt
	return offset%t.subsequentAt == 0
}
