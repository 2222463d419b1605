package agent

import (
	"context"
	"time"

	"github.com/makapix/agent-core/internal/corelog"
)

// statusPayload is the status heartbeat body defined by SPEC_FULL §12: a
// small, versionless JSON struct, mirroring the teacher's
// broadcastUsageUpdate shape.
type statusPayload struct {
	PlayerKey        string `json:"player_key"`
	State            string `json:"state"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
	CurrentChannelID string `json:"current_channel_id"`
}

// runStatusTimer is the status timer of spec §4.5: it only notifies the
// status-publisher task, it never publishes itself ("the status timer and
// the status-publisher task are decoupled via a counting notification;
// status publication never happens from a timer callback").
func (c *Core) runStatusTimer(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tasks.NotifyStatusTick()
		}
	}
}

// runStatusPublisher is the status-publisher task of spec §4.5: block on
// the wake notification, then publish while connected and the shared bus
// (if any) is not locked by another subsystem (spec §4.3a).
func (c *Core) runStatusPublisher(ctx context.Context) {
	log := corelog.For("agent.status")
	for {
		if err := c.tasks.StatusWakeSem.Acquire(ctx, 1); err != nil {
			return
		}
		c.tasks.ClearStatusWake()

		if !c.session.IsConnected() {
			continue
		}
		if c.sharedBus != nil && c.sharedBus.IsLocked() {
			continue
		}

		payload := statusPayload{
			PlayerKey:        c.session.PlayerKey(),
			State:            string(c.supervisor.State()),
			UptimeSeconds:    int64(time.Since(c.startedAt).Seconds()),
			CurrentChannelID: c.orchestrator.CurrentChannelID(),
		}
		if err := c.session.PublishStatus(payload); err != nil {
			log.Warnw("status publish failed", "error", err)
		}
	}
}
