package session

import (
	"context"
	"net"
	"time"

	"github.com/makapix/agent-core/internal/corelog"
)

// LinkHealthProbe periodically resolves a known hostname after the first
// successful connect; on resolution failure it forcibly disconnects to
// trigger the reconnect loop (spec §4.3). Skip is consulted on every tick
// so provisioning/captive-portal windows can suppress the probe.
func (s *Session) LinkHealthProbe(ctx context.Context, interval time.Duration, probeHost string, skip func() bool) {
	log := corelog.For("session.linkhealth")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	resolver := net.DefaultResolver

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if skip != nil && skip() {
				continue
			}
			if !s.IsConnected() {
				continue
			}
			lookupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			_, err := resolver.LookupHost(lookupCtx, probeHost)
			cancel()
			if err != nil {
				log.Warnw("link-health probe failed, forcing disconnect", "host", probeHost, "error", err)
				s.Disconnect()
			}
		}
	}
}
