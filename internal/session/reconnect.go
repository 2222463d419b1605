package session

import (
	"context"
	"net"
	"time"

	"github.com/makapix/agent-core/internal/corelog"
	"github.com/makapix/agent-core/internal/store"
)

// IdentityLoader supplies what the reconnect loop needs from the Credential
// Store without importing it as a concrete dependency of every caller.
type IdentityLoader interface {
	HasPlayerKey() bool
	HasCerts() bool
	GetIdentity() (store.Identity, error)
	GetCerts() (store.Certs, error)
}

// authFailureThreshold is the "≥3 consecutive auth failures" point at
// which spec §4.3 requires the reconnect loop to give up and signal
// REGISTRATION_INVALID rather than keep retrying.
const authFailureThreshold = 3

// ReconnectLoop runs the reconnect procedure of spec §4.3: doubling
// backoff from minBackoff to maxBackoff, reset on success, exiting once
// IsConnected() becomes true (observed via the connection callback), the
// auth-failure counter reaches authFailureThreshold, or the context is
// cancelled. hasLinkAddress reports whether a link-layer address is
// currently available; when it is not, the loop silently skips an attempt
// rather than failing. onAuthExceeded, if non-nil, is invoked once before
// the loop exits on the auth-failure path.
func (s *Session) ReconnectLoop(ctx context.Context, loader IdentityLoader, minBackoff, maxBackoff time.Duration, hasLinkAddress func() bool, onAuthExceeded func()) {
	log := corelog.For("session.reconnect")
	d := minBackoff

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if s.IsConnected() {
			return
		}

		if s.AuthFailureCount() >= authFailureThreshold {
			log.Warnw("auth failure threshold reached, exiting reconnect loop", "count", s.AuthFailureCount())
			if onAuthExceeded != nil {
				onAuthExceeded()
			}
			return
		}

		if hasLinkAddress != nil && !hasLinkAddress() {
			if !sleepOrDone(ctx, d) {
				return
			}
			continue
		}

		if !loader.HasPlayerKey() || !loader.HasCerts() {
			log.Infow("no identity or certs, exiting reconnect loop")
			return
		}

		id, err := loader.GetIdentity()
		if err != nil {
			log.Warnw("failed to load identity during reconnect", "error", err)
			if !sleepOrDone(ctx, d) {
				return
			}
			continue
		}
		certs, err := loader.GetCerts()
		if err != nil {
			log.Warnw("failed to load certs during reconnect", "error", err)
			if !sleepOrDone(ctx, d) {
				return
			}
			continue
		}

		s.Deinit()
		if err := s.Init(id.PlayerKey, id.Host, id.Port, certs.CA, certs.Cert, certs.Key); err != nil {
			log.Errorw("reinit failed during reconnect", "error", err)
			if !sleepOrDone(ctx, d) {
				return
			}
			d = min(d*2, maxBackoff)
			continue
		}

		if err := s.Connect(); err != nil {
			log.Warnw("connect attempt failed", "error", err, "backoff", d)
			if !sleepOrDone(ctx, d) {
				return
			}
			d = min(d*2, maxBackoff)
			continue
		}

		// Success is observed asynchronously via the connection callback;
		// give the client a moment to settle before re-checking.
		if !sleepOrDone(ctx, 200*time.Millisecond) {
			return
		}
		if s.IsConnected() {
			return
		}
		d = minBackoff
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// HasLinkAddress is the default link-layer probe: true if any non-loopback
// interface currently has an address. Collaborators may supply their own.
func HasLinkAddress() bool {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return false
	}
	for _, a := range addrs {
		if ipNet, ok := a.(*net.IPNet); ok && !ipNet.IP.IsLoopback() {
			return true
		}
	}
	return false
}
