package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/makapix/agent-core/internal/store"
)

type fakeLoader struct {
	hasKey, hasCerts bool
}

func (f fakeLoader) HasPlayerKey() bool               { return f.hasKey }
func (f fakeLoader) HasCerts() bool                   { return f.hasCerts }
func (f fakeLoader) GetIdentity() (store.Identity, error) { return store.Identity{}, nil }
func (f fakeLoader) GetCerts() (store.Certs, error)       { return store.Certs{}, nil }

func TestReconnectLoopExitsImmediatelyWithNoIdentity(t *testing.T) {
	s := &Session{}
	done := make(chan struct{})
	go func() {
		s.ReconnectLoop(context.Background(), fakeLoader{}, time.Millisecond, 10*time.Millisecond, func() bool { return true }, nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reconnect loop did not exit promptly with no identity present")
	}
}

func TestReconnectLoopExitsOnAuthFailureThreshold(t *testing.T) {
	s := &Session{}
	s.authFails.Store(authFailureThreshold)

	var exceeded bool
	done := make(chan struct{})
	go func() {
		s.ReconnectLoop(context.Background(), fakeLoader{hasKey: true, hasCerts: true}, time.Millisecond, 10*time.Millisecond, func() bool { return true }, func() { exceeded = true })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reconnect loop did not exit on auth failure threshold")
	}
	require.True(t, exceeded)
}

func TestReconnectLoopSkipsAttemptsWithNoLinkAddress(t *testing.T) {
	s := &Session{}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	s.ReconnectLoop(ctx, fakeLoader{hasKey: true, hasCerts: true}, time.Millisecond, 10*time.Millisecond, func() bool { return false }, nil)
	require.False(t, s.IsConnected())
}
