package correlator

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakePublisher is a hand-rolled fake transport, the same style this
// codebase uses for sync/peer_test.go's fake Conn.
type fakePublisher struct {
	mu        sync.Mutex
	connected bool
	ready     bool
	published []publishedRequest
	onPublish func(correlationID string, payload []byte)
}

type publishedRequest struct {
	correlationID string
	payload       []byte
}

func (f *fakePublisher) IsConnected() bool { f.mu.Lock(); defer f.mu.Unlock(); return f.connected }
func (f *fakePublisher) IsReady() bool     { f.mu.Lock(); defer f.mu.Unlock(); return f.ready }

func (f *fakePublisher) PublishRequest(correlationID string, payload []byte) error {
	f.mu.Lock()
	f.published = append(f.published, publishedRequest{correlationID, payload})
	cb := f.onPublish
	f.mu.Unlock()
	if cb != nil {
		cb(correlationID, payload)
	}
	return nil
}

func TestPublishAndWaitSuccess(t *testing.T) {
	pub := &fakePublisher{connected: true, ready: true}
	c := New(pub, "player-1")

	pub.onPublish = func(correlationID string, payload []byte) {
		go func() {
			resp, _ := json.Marshal(map[string]any{"correlation_id": correlationID, "success": true, "value": 42})
			c.HandleResponse(resp)
		}()
	}

	resp, err := c.PublishAndWait(context.Background(), map[string]any{"op": "ping"}, time.Second, time.Second, 3)
	require.NoError(t, err)
	require.Equal(t, true, resp["success"])
	require.Equal(t, float64(42), resp["value"])
	require.Equal(t, 0, c.PendingCount(), "pending entry must be removed after a completed round-trip")
}

func TestSetPlayerKeyAppliesToSubsequentRequests(t *testing.T) {
	pub := &fakePublisher{connected: true, ready: true}
	c := New(pub, "")

	var captured map[string]any
	pub.onPublish = func(correlationID string, payload []byte) {
		json.Unmarshal(payload, &captured)
		go func() {
			resp, _ := json.Marshal(map[string]any{"correlation_id": correlationID, "success": true})
			c.HandleResponse(resp)
		}()
	}

	c.SetPlayerKey("player-2")
	_, err := c.PublishAndWait(context.Background(), map[string]any{}, time.Second, time.Second, 1)
	require.NoError(t, err)
	require.Equal(t, "player-2", captured["player_key"])
}

func TestPublishAndWaitNotConnected(t *testing.T) {
	pub := &fakePublisher{connected: false}
	c := New(pub, "player-1")

	_, err := c.PublishAndWait(context.Background(), map[string]any{}, time.Second, time.Second, 3)
	require.Error(t, err)
}

func TestPublishAndWaitTimeoutThenSuccessOnRetry(t *testing.T) {
	pub := &fakePublisher{connected: true, ready: true}
	c := New(pub, "player-1")

	var attempt int
	pub.onPublish = func(correlationID string, payload []byte) {
		attempt++
		if attempt < 2 {
			return // simulate no response for the first attempt
		}
		go func() {
			resp, _ := json.Marshal(map[string]any{"correlation_id": correlationID, "success": true})
			c.HandleResponse(resp)
		}()
	}

	resp, err := c.PublishAndWait(context.Background(), map[string]any{}, time.Second, 50*time.Millisecond, 3)
	require.NoError(t, err)
	require.Equal(t, true, resp["success"])
	require.GreaterOrEqual(t, attempt, 2)
}

func TestHandleResponseUnknownCorrelationIDIsDiscarded(t *testing.T) {
	pub := &fakePublisher{connected: true, ready: true}
	c := New(pub, "player-1")

	resp, _ := json.Marshal(map[string]any{"correlation_id": "does-not-exist"})
	require.NotPanics(t, func() { c.HandleResponse(resp) })
}

func TestHandleResponseDuplicateDeliveryDoesNotPanic(t *testing.T) {
	pub := &fakePublisher{connected: true, ready: true}
	c := New(pub, "player-1")

	var resp []byte
	pub.onPublish = func(correlationID string, payload []byte) {
		resp, _ = json.Marshal(map[string]any{"correlation_id": correlationID, "success": true})
	}

	_, err := c.PublishAndWait(context.Background(), map[string]any{}, time.Second, 50*time.Millisecond, 1)
	require.Error(t, err, "no response delivered yet, first attempt must time out")

	// A redelivery (QoS 1) of the same correlation ID after the entry has
	// already been removed must not panic.
	require.NotPanics(t, func() { c.HandleResponse(resp) })
}

func TestHandleResponseRedeliveryBeforeRemovalDoesNotPanic(t *testing.T) {
	pub := &fakePublisher{connected: true, ready: true}
	c := New(pub, "player-1")

	pub.onPublish = func(correlationID string, payload []byte) {
		resp, _ := json.Marshal(map[string]any{"correlation_id": correlationID, "success": true})
		// Deliver the same response twice before the waiter has a chance
		// to drain the pending entry.
		c.HandleResponse(resp)
		c.HandleResponse(resp)
	}

	resp, err := c.PublishAndWait(context.Background(), map[string]any{}, time.Second, time.Second, 1)
	require.NoError(t, err)
	require.Equal(t, true, resp["success"])
}

func TestPendingEntryPresentDuringWait(t *testing.T) {
	pub := &fakePublisher{connected: true, ready: true}
	c := New(pub, "player-1")

	released := make(chan struct{})
	pub.onPublish = func(correlationID string, payload []byte) {
		require.Equal(t, 1, c.PendingCount())
		close(released)
		go func() {
			<-time.After(20 * time.Millisecond)
			resp, _ := json.Marshal(map[string]any{"correlation_id": correlationID, "success": true})
			c.HandleResponse(resp)
		}()
	}

	_, err := c.PublishAndWait(context.Background(), map[string]any{}, time.Second, time.Second, 1)
	require.NoError(t, err)
	<-released
	require.Equal(t, 0, c.PendingCount())
}
