// Package watchdog implements the three concerns of C9: the reconnect-task
// watchdog (re-spawning a lost reconnect task), the consecutive-disconnect
// counter that schedules a full driver-level reinit, and resource-pressure
// sampling alongside that decision.
//
// Grounded on pulse/async/worker.go's gradualRecovery discipline: never do
// the heavy recovery action from the hot callback path, always hand it to
// a dedicated task.
package watchdog

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/atomic"

	"github.com/makapix/agent-core/internal/corelog"
)

const consecutiveDisconnectThreshold = 10

// ReconnectSpawner is satisfied by whatever owns spawning the reconnect
// task (agent.Core); RunReconnectWatchdog does not spawn while
// ReconnectTaskRunning reports true, matching the "idempotent reconnect"
// law in spec §8.
type ReconnectSpawner interface {
	ReconnectTaskRunning() bool
	SpawnReconnectTask()
}

// ReinitTrigger is satisfied by whatever can perform a full driver-level
// reinit (agent.Core, which re-inits and reconnects the session from the
// stored credentials).
type ReinitTrigger interface {
	FullReinit(ctx context.Context)
}

// Watchdog owns the periodic re-spawn check and the disconnect-streak
// counter.
type Watchdog struct {
	spawner ReconnectSpawner
	reinit  ReinitTrigger

	disconnectStreak atomic.Int32
	isDisconnected   func() bool
}

// New constructs a Watchdog. isDisconnected reports whether the
// Supervisor is currently in DISCONNECTED.
func New(spawner ReconnectSpawner, reinit ReinitTrigger, isDisconnected func() bool) *Watchdog {
	return &Watchdog{spawner: spawner, reinit: reinit, isDisconnected: isDisconnected}
}

// RunReconnectWatchdog re-spawns the reconnect task whenever the
// Supervisor is DISCONNECTED and no reconnect task exists, recovering
// from a dropped task handle (spec §4.3 "Watchdog").
func (w *Watchdog) RunReconnectWatchdog(ctx context.Context, interval time.Duration) {
	log := corelog.For("watchdog.reconnect")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !w.isDisconnected() {
				continue
			}
			if w.spawner.ReconnectTaskRunning() {
				continue
			}
			log.Warnw("reconnect task missing while disconnected, respawning")
			w.spawner.SpawnReconnectTask()
		}
	}
}

// OnDisconnect records one disconnect event. Once the streak reaches
// consecutiveDisconnectThreshold a full reinit is scheduled onto its own
// task and the streak resets, never running the reinit from this call's
// own goroutine.
func (w *Watchdog) OnDisconnect(ctx context.Context) {
	n := w.disconnectStreak.Inc()
	if n < consecutiveDisconnectThreshold {
		return
	}
	w.disconnectStreak.Store(0)
	go w.runReinit(ctx)
}

// OnConnect resets the disconnect streak on any successful connection.
func (w *Watchdog) OnConnect() {
	w.disconnectStreak.Store(0)
}

func (w *Watchdog) runReinit(ctx context.Context) {
	log := corelog.For("watchdog.reinit")
	if v, err := mem.VirtualMemory(); err == nil {
		log.Warnw("scheduling full reinit after consecutive disconnects",
			"threshold", consecutiveDisconnectThreshold,
			"mem_used_percent", v.UsedPercent,
			"mem_available", v.Available,
		)
	} else {
		log.Warnw("scheduling full reinit after consecutive disconnects", "threshold", consecutiveDisconnectThreshold)
	}
	w.reinit.FullReinit(ctx)
}
