// Package correlator implements the Request/Response Correlator (C4):
// overlays RPC semantics on the pub/sub transport owned by the session
// manager, using correlation IDs and a pending-entry map guarded by one
// mutex, grounded on pulse/async's pending-job-map-with-mutex shape and
// sync/peer.go's publish-then-wait discipline.
package correlator

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/makapix/agent-core/internal/corelog"
	"github.com/makapix/agent-core/internal/corerrors"
)

// Publisher is the subset of the Session contract the correlator needs.
// Keeping it as an interface here (rather than importing session
// directly) avoids the cyclic reference the Design Notes call out:
// correlator depends on a narrow capability, not on the session package.
type Publisher interface {
	IsConnected() bool
	IsReady() bool
	PublishRequest(correlationID string, payload []byte) error
}

type pendingEntry struct {
	done      chan struct{}
	closeOnce sync.Once
	response  []byte
}

// Correlator is the process-wide correlation-ID-to-pending-entry map.
type Correlator struct {
	session Publisher

	mu        sync.Mutex
	playerKey string
	pending   map[string]*pendingEntry
}

// New constructs a Correlator bound to a session and player key. playerKey
// may be empty at construction time (the correlator is wired before
// provisioning resolves an identity); SetPlayerKey updates it once one is
// known.
func New(session Publisher, playerKey string) *Correlator {
	return &Correlator{session: session, playerKey: playerKey, pending: make(map[string]*pendingEntry)}
}

// SetPlayerKey updates the player_key attached to every subsequent request,
// mirroring Tracker.SetPlayerKey: the correlator is constructed before an
// identity is known and updated once one is loaded or (re)provisioned.
func (c *Correlator) SetPlayerKey(playerKey string) {
	c.mu.Lock()
	c.playerKey = playerKey
	c.mu.Unlock()
}

// PublishAndWait implements the algorithm of spec §4.4: reject if not
// connected, wait up to readinessTimeout for readiness, attach
// correlation_id and player_key, then up to attempts publishes with
// doubling backoff, each waiting up to perAttemptTimeout for a response.
func (c *Correlator) PublishAndWait(ctx context.Context, request map[string]any, readinessTimeout, perAttemptTimeout time.Duration, attempts int) (map[string]any, error) {
	log := corelog.For("correlator")

	if !c.session.IsConnected() {
		return nil, corerrors.ErrNotConnected
	}

	if !c.session.IsReady() {
		if !c.waitReady(ctx, readinessTimeout) {
			return nil, corerrors.ErrNotReady
		}
	}

	correlationID := newCorrelationID()
	if request == nil {
		request = map[string]any{}
	}
	c.mu.Lock()
	playerKey := c.playerKey
	c.mu.Unlock()
	request["correlation_id"] = correlationID
	request["player_key"] = playerKey

	payload, err := json.Marshal(request)
	if err != nil {
		return nil, corerrors.Wrap(err, "encoding request")
	}

	entry := &pendingEntry{done: make(chan struct{})}
	c.mu.Lock()
	c.pending[correlationID] = entry
	c.mu.Unlock()
	defer c.remove(correlationID)

	backoff := time.Second
	for attempt := 0; attempt < attempts; attempt++ {
		if err := c.session.PublishRequest(correlationID, payload); err != nil {
			if corerrors.Is(err, corerrors.ErrNotConnected) {
				return nil, corerrors.ErrNotConnected
			}
			log.Warnw("publish attempt failed", "correlation_id", correlationID, "attempt", attempt, "error", err)
		} else {
			select {
			case <-entry.done:
				var resp map[string]any
				if err := json.Unmarshal(entry.response, &resp); err != nil {
					return nil, corerrors.Mark(corerrors.Wrap(err, "parsing response"), corerrors.ErrInvalidResp)
				}
				return resp, nil
			case <-time.After(perAttemptTimeout):
				log.Warnw("attempt timed out waiting for response", "correlation_id", correlationID, "attempt", attempt)
			case <-ctx.Done():
				return nil, corerrors.Wrap(ctx.Err(), "publish-and-wait cancelled")
			}
		}

		if !c.session.IsConnected() {
			return nil, corerrors.ErrNotConnected
		}

		if attempt < attempts-1 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, corerrors.Wrap(ctx.Err(), "publish-and-wait cancelled")
			}
			backoff = min(backoff*2, 60*time.Second)
		}
	}

	return nil, corerrors.ErrTimeout
}

// HandleResponse is the inbound response handler of spec §4.4: called by
// the session manager for every message on the response-prefix topic.
// Unknown correlation IDs are discarded with a warning; this is idempotent
// with respect to a missing entry (spec §5). QoS 1 means the broker may
// redeliver the same response, so a second delivery for an ID whose entry
// is still pending must not close an already-closed done channel.
func (c *Correlator) HandleResponse(payload []byte) {
	log := corelog.For("correlator")

	var envelope struct {
		CorrelationID string `json:"correlation_id"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		log.Warnw("discarding unparseable response", "error", err)
		return
	}

	c.mu.Lock()
	entry, ok := c.pending[envelope.CorrelationID]
	c.mu.Unlock()
	if !ok {
		log.Warnw("discarding response with unknown correlation id", "correlation_id", envelope.CorrelationID)
		return
	}

	entry.closeOnce.Do(func() {
		entry.response = payload
		close(entry.done)
	})
}

func (c *Correlator) remove(correlationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, correlationID)
}

// PendingCount reports the number of in-flight requests; used by tests
// verifying the round-trip invariant in spec §8.
func (c *Correlator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Correlator) waitReady(ctx context.Context, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for time.Now().Before(deadline) {
		if c.session.IsReady() {
			return true
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return false
		}
	}
	return c.session.IsReady()
}

// newCorrelationID produces a 32-character hex correlation ID: a UUIDv4
// (a 128-bit value, 122 bits of it random; the other 6 are the fixed
// version and variant bits) with its formatting hyphens stripped.
func newCorrelationID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}
