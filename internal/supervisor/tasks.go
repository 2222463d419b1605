package supervisor

import (
	"sync"

	"golang.org/x/sync/semaphore"
)

// Tasks tracks the four long-lived task slots the Supervisor owns exactly
// once each (spec §4.5): status publisher, channel switcher, credential
// poller, reconnect. ChannelSwitchSem is the counting semaphore (C6) that
// wakes the channel-switcher task; it lives here because the Supervisor is
// the task's owner even though the Channel Orchestrator drives it.
type Tasks struct {
	ChannelSwitchSem *semaphore.Weighted
	StatusWakeSem    *semaphore.Weighted

	mu               sync.Mutex
	reconnectRunning bool
	pollerRunning    bool
	statusWakeQueued bool
}

// NewTasks constructs the task-tracking state with a binary channel-switch
// semaphore (spec §4.6: "a binary semaphore that wakes the orchestrator")
// and a matching binary wake for the status-publisher task (spec §4.5:
// "the status timer and the status-publisher task are decoupled via a
// counting notification"). Both start held, so a waiting task blocks until
// the first Release.
func NewTasks() *Tasks {
	t := &Tasks{ChannelSwitchSem: semaphore.NewWeighted(1), StatusWakeSem: semaphore.NewWeighted(1)}
	t.ChannelSwitchSem.TryAcquire(1)
	t.StatusWakeSem.TryAcquire(1)
	return t
}

// NotifyStatusTick wakes the status-publisher task at most once per
// undrained notification; a ticker firing again before the task catches up
// must not release past the semaphore's held weight of 1.
func (t *Tasks) NotifyStatusTick() {
	t.mu.Lock()
	queued := t.statusWakeQueued
	if !queued {
		t.statusWakeQueued = true
	}
	t.mu.Unlock()
	if !queued {
		t.StatusWakeSem.Release(1)
	}
}

// ClearStatusWake marks the pending wake as drained; called by the
// status-publisher task right after it acquires the wake notification.
func (t *Tasks) ClearStatusWake() {
	t.mu.Lock()
	t.statusWakeQueued = false
	t.mu.Unlock()
}

// ReconnectTaskRunning reports whether a reconnect task is currently
// believed to be running (agent.Core delegates its
// watchdog.ReconnectSpawner method to this).
func (t *Tasks) ReconnectTaskRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reconnectRunning
}

// MarkReconnectStarted/MarkReconnectStopped bracket the reconnect task's
// lifetime so the watchdog can tell a missing task from a running one.
func (t *Tasks) MarkReconnectStarted() {
	t.mu.Lock()
	t.reconnectRunning = true
	t.mu.Unlock()
}

func (t *Tasks) MarkReconnectStopped() {
	t.mu.Lock()
	t.reconnectRunning = false
	t.mu.Unlock()
}

// PollerRunning/MarkPollerStarted/MarkPollerStopped bracket the credential
// poller, created during SHOW_CODE and exited on any state change away
// from it (spec §4.5).
func (t *Tasks) PollerRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pollerRunning
}

func (t *Tasks) MarkPollerStarted() {
	t.mu.Lock()
	t.pollerRunning = true
	t.mu.Unlock()
}

func (t *Tasks) MarkPollerStopped() {
	t.mu.Lock()
	t.pollerRunning = false
	t.mu.Unlock()
}
