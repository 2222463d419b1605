// Package refresh implements the Refresh Coordinator (C7): background
// channel-index refresh without switching the active channel, grounded on
// pulse/schedule/ticker.go's register-before-run / completion-callback /
// signal-a-listener cycle.
package refresh

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/makapix/agent-core/internal/channel"
	"github.com/makapix/agent-core/internal/corelog"
)

const transientRingSize = 8 // spec §3: Refresh Registration Table, "small bounded set (<=8)"

// PlayScheduler is the external collaborator signalled on refresh
// completion (spec §4.7).
type PlayScheduler interface {
	NotifyChannelRefreshed(channelID string)
}

// Coordinator owns two persistent handles (all, promoted) and a bounded
// LRU ring of transient user/hashtag refresh handles.
type Coordinator struct {
	factory   channel.Factory
	scheduler PlayScheduler

	mu         sync.Mutex
	completion map[string]bool // channel_id -> completed

	persistent map[string]channel.Handle // "all", "promoted"
	transient  *lru.Cache               // channel_id -> channel.Handle
}

// New constructs a Coordinator. factory creates channel handles the same
// way the Channel Orchestrator's factory does.
func New(factory channel.Factory, scheduler PlayScheduler) (*Coordinator, error) {
	c := &Coordinator{
		factory:    factory,
		scheduler:  scheduler,
		completion: make(map[string]bool),
		persistent: make(map[string]channel.Handle),
	}

	ring, err := lru.NewWithEvict(transientRingSize, c.onTransientEvicted)
	if err != nil {
		return nil, err
	}
	c.transient = ring
	return c, nil
}

func (c *Coordinator) onTransientEvicted(key, value any) {
	log := corelog.For("refresh")
	if h, ok := value.(channel.Handle); ok {
		log.Infow("evicting oldest transient refresh handle", "channel_id", key)
		h.Destroy(context.Background())
	}
}

// RequestRefresh registers channelID in the completion table
// (completed=false), invokes Load on its handle (creating one if this is a
// persistent channel not yet tracked, or reusing/creating a transient
// handle via the bounded ring), and additionally sends request_refresh if
// the handle was already loaded.
func (c *Coordinator) RequestRefresh(ctx context.Context, kind, channelID, displayName string, persistent bool) error {
	log := corelog.For("refresh")

	c.mu.Lock()
	c.completion[channelID] = false
	c.mu.Unlock()

	handle, alreadyLoaded, err := c.handleFor(kind, channelID, displayName, persistent)
	if err != nil {
		return err
	}

	if alreadyLoaded {
		if err := handle.RequestRefresh(ctx); err != nil {
			log.Warnw("request_refresh failed on already-loaded handle", "channel_id", channelID, "error", err)
		}
	}

	go c.runLoad(ctx, channelID, handle)
	return nil
}

func (c *Coordinator) handleFor(kind, channelID, displayName string, persistent bool) (channel.Handle, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if persistent {
		if h, ok := c.persistent[channelID]; ok {
			return h, true, nil
		}
		h, err := c.factory.Create(kind, channelID, displayName)
		if err != nil {
			return nil, false, err
		}
		c.persistent[channelID] = h
		return h, false, nil
	}

	if v, ok := c.transient.Get(channelID); ok {
		return v.(channel.Handle), true, nil
	}
	h, err := c.factory.Create(kind, channelID, displayName)
	if err != nil {
		return nil, false, err
	}
	c.transient.Add(channelID, h)
	return h, false, nil
}

func (c *Coordinator) runLoad(ctx context.Context, channelID string, handle channel.Handle) {
	log := corelog.For("refresh")
	if _, err := handle.Load(ctx); err != nil {
		log.Warnw("refresh load failed", "channel_id", channelID, "error", err)
		return
	}

	c.mu.Lock()
	c.completion[channelID] = true
	c.mu.Unlock()

	if c.scheduler != nil {
		c.scheduler.NotifyChannelRefreshed(channelID)
	}
}

// CheckAndClear observes and clears completion for channelID (spec §4.7).
func (c *Coordinator) CheckAndClear(channelID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	completed := c.completion[channelID]
	if completed {
		delete(c.completion, channelID)
	}
	return completed
}
