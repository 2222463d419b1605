// Package agent wires the nine components (C1-C9) into the single "Core"
// value the Design Notes call for: a top-level runtime owning state,
// with components holding non-owning references, mutated only through the
// typed APIs each component already exposes.
package agent

import (
	"context"
	"sync"
	"time"

	"github.com/makapix/agent-core/internal/channel"
	"github.com/makapix/agent-core/internal/collaborators"
	"github.com/makapix/agent-core/internal/config"
	"github.com/makapix/agent-core/internal/corelog"
	"github.com/makapix/agent-core/internal/correlator"
	"github.com/makapix/agent-core/internal/eventbus"
	"github.com/makapix/agent-core/internal/provisioning"
	"github.com/makapix/agent-core/internal/refresh"
	"github.com/makapix/agent-core/internal/session"
	"github.com/makapix/agent-core/internal/store"
	"github.com/makapix/agent-core/internal/supervisor"
	"github.com/makapix/agent-core/internal/viewtracker"
	"github.com/makapix/agent-core/internal/watchdog"
)

// Core owns every component's wiring. It is the single value constructed
// at process startup; every task below is spawned from Start and receives
// only the narrow reference it needs.
type Core struct {
	cfg *config.Config
	bus *eventbus.Bus

	store        *store.Store
	provisioning *provisioning.Client
	session      *session.Session
	correlator   *correlator.Correlator
	supervisor   *supervisor.Supervisor
	tasks        *supervisor.Tasks
	orchestrator *channel.Orchestrator
	refresh      *refresh.Coordinator
	watchdog     *watchdog.Watchdog
	tracker      *viewtracker.Tracker
	intentFlag   *viewtracker.IntentFlag

	sharedBus     collaborators.SharedBus
	startedAt     time.Time
	linkProbeOnce sync.Once
}

// Collaborators bundles the narrow external interfaces named in spec
// §6.5, supplied by the firmware-side caller.
type Collaborators struct {
	Playback      collaborators.PlaybackEngine
	UI            collaborators.UI
	Downloads     collaborators.DownloadManager
	LinkProbe     collaborators.LinkProbe
	AppState      collaborators.AppState
	SharedBus     collaborators.SharedBus
	Factory       channel.Factory
	LocalFallback channel.Factory
	PlayScheduler refresh.PlayScheduler
}

// New constructs a Core from configuration and collaborators, wiring the
// event bus, credential store, and the components whose lifetime starts
// at process launch rather than on first connect.
func New(cfg *config.Config, collab Collaborators) (*Core, error) {
	bus := eventbus.New()

	st, err := store.Open(cfg.KVPath, cfg.VaultRoot+"/certs")
	if err != nil {
		return nil, err
	}

	sup := supervisor.New(bus)
	tasks := supervisor.NewTasks()
	intentFlag := &viewtracker.IntentFlag{}

	c := &Core{
		cfg: cfg, bus: bus, store: st,
		supervisor: sup, tasks: tasks, intentFlag: intentFlag,
		sharedBus: collab.SharedBus, startedAt: time.Now(),
	}

	var corr *correlator.Correlator
	sess := session.New(cfg.TopicPrefix, c.onConnectionEdge, func(payload []byte) {
		if corr != nil {
			corr.HandleResponse(payload)
		}
	}, nil)
	corr = correlator.New(sess, "")

	orch := channel.New(
		collab.Factory, collab.LocalFallback, collab.Playback, collab.UI,
		collab.Downloads, collab.LinkProbe, collab.AppState,
		tasks.ChannelSwitchSem, channel.OrderingOriginal,
	)

	refreshCoord, err := refresh.New(collab.Factory, collab.PlayScheduler)
	if err != nil {
		return nil, err
	}

	tracker := viewtracker.New(
		sessionViewEmitter{sess}, intentFlag, "", cfg.VaultRoot,
		time.Duration(cfg.ViewTickSeconds)*time.Second,
		time.Duration(cfg.ViewFirstSeconds)*time.Second,
		time.Duration(cfg.ViewSubsequentSeconds)*time.Second,
	)

	c.session = sess
	c.correlator = corr
	c.orchestrator = orch
	c.refresh = refreshCoord
	c.tracker = tracker
	c.provisioning = provisioning.New(cfg.ProvisioningURL, cfg.DeviceModel, cfg.FirmwareVersion, nil)
	c.watchdog = watchdog.New(c, c, func() bool { return sup.State() == supervisor.StateDisconnected })

	return c, nil
}

// sessionViewEmitter adapts *session.Session to viewtracker.Emitter.
type sessionViewEmitter struct{ s *session.Session }

func (e sessionViewEmitter) Emit(ctx context.Context, ev viewtracker.Event) error {
	return e.s.PublishView(ev)
}

// onConnectionEdge is the session's ConnectionCallback: it drives the
// Supervisor's CONNECTED/DISCONNECTED edges and the watchdog's disconnect
// streak (spec §4.3, §4.9).
func (c *Core) onConnectionEdge(connected bool) {
	log := corelog.For("agent")
	if connected {
		if err := c.supervisor.ConnectedEdge(); err != nil {
			log.Warnw("connected edge rejected", "error", err)
		}
		c.watchdog.OnConnect()
		c.linkProbeOnce.Do(func() {
			go c.session.LinkHealthProbe(
				context.Background(),
				time.Duration(c.cfg.LinkProbeInterval)*time.Second,
				c.cfg.BrokerHostDefault,
				c.provisioningInProgress,
			)
		})
		return
	}
	if err := c.supervisor.DisconnectedEdge(); err != nil {
		log.Warnw("disconnected edge rejected", "error", err)
	}
	ctx := context.Background()
	c.watchdog.OnDisconnect(ctx)
	if !c.tasks.ReconnectTaskRunning() {
		c.SpawnReconnectTask()
	}
}

// onAuthFailuresExceeded drives DISCONNECTED/CONNECTING ->
// REGISTRATION_INVALID once the session's reconnect loop gives up after
// repeated TLS auth rejections (spec §4.3's quarantine path).
func (c *Core) onAuthFailuresExceeded() {
	log := corelog.For("agent")
	if err := c.supervisor.AuthFailuresExceeded(); err != nil {
		log.Warnw("auth-failures-exceeded transition rejected", "error", err)
	}
}

// provisioningInProgress suppresses the link-health probe during the
// provisioning/captive-portal window, when a transient resolution failure
// is expected and must not force a disconnect.
func (c *Core) provisioningInProgress() bool {
	switch c.supervisor.State() {
	case supervisor.StateProvisioning, supervisor.StateShowCode:
		return true
	default:
		return false
	}
}

// ReconnectTaskRunning and SpawnReconnectTask satisfy
// watchdog.ReconnectSpawner.
func (c *Core) ReconnectTaskRunning() bool { return c.tasks.ReconnectTaskRunning() }

func (c *Core) SpawnReconnectTask() {
	ctx := context.Background()
	c.tasks.MarkReconnectStarted()
	go func() {
		defer c.tasks.MarkReconnectStopped()
		c.session.ReconnectLoop(
			ctx, c.store,
			time.Duration(c.cfg.ReconnectMinBackoff)*time.Second,
			time.Duration(c.cfg.ReconnectMaxBackoff)*time.Second,
			session.HasLinkAddress,
			c.onAuthFailuresExceeded,
		)
	}()
}

// FullReinit satisfies watchdog.ReinitTrigger: the consecutive-disconnect
// recovery path (spec §4.9).
func (c *Core) FullReinit(ctx context.Context) {
	log := corelog.For("agent")
	id, err := c.store.GetIdentity()
	if err != nil {
		log.Warnw("full reinit skipped, no identity", "error", err)
		return
	}
	certs, err := c.store.GetCerts()
	if err != nil {
		log.Warnw("full reinit skipped, no certs", "error", err)
		return
	}
	c.session.Deinit()
	if err := c.session.Init(id.PlayerKey, id.Host, id.Port, certs.CA, certs.Cert, certs.Key); err != nil {
		log.Errorw("full reinit init failed", "error", err)
		return
	}
	c.tracker.SetPlayerKey(id.PlayerKey)
	c.correlator.SetPlayerKey(id.PlayerKey)
	if err := c.session.Connect(); err != nil {
		log.Warnw("full reinit connect failed", "error", err)
	}
}

// Start launches the agent's long-lived tasks: the status publisher (timer
// and publish task, decoupled per spec §4.5), the channel switcher, the
// view tracker ticker, and the reconnect watchdog. Provisioning and the
// initial connect are driven by the caller through Reconcile and
// StartProvisioning, since they require collaborator-visible UI (showing the registration
// code) that Core does not own.
func (c *Core) Start(ctx context.Context) {
	go c.runStatusTimer(ctx, time.Duration(c.cfg.StatusInterval)*time.Second)
	go c.runStatusPublisher(ctx)
	go c.orchestrator.Run(ctx)
	go c.tracker.Run(ctx)
	go c.watchdog.RunReconnectWatchdog(ctx, time.Duration(c.cfg.WatchdogInterval)*time.Second)
}

// Supervisor exposes the lifecycle supervisor; the CLI's run subcommand
// reads its state.
func (c *Core) Supervisor() *supervisor.Supervisor { return c.supervisor }

// Store exposes the credential store. The CLI's status and reset
// subcommands open the store themselves and do not use this accessor.
func (c *Core) Store() *store.Store { return c.store }

// Provisioning exposes the provisioning client for the top-level
// provisioning driver.
func (c *Core) Provisioning() *provisioning.Client { return c.provisioning }

// Session exposes the session for the top-level provisioning driver,
// which calls Init/Connect once Phase B completes.
func (c *Core) Session() *session.Session { return c.session }

// Correlator exposes the request/response correlator for collaborator- or
// command-driven RPC calls (spec §4.4's publish_and_wait).
func (c *Core) Correlator() *correlator.Correlator { return c.correlator }

// Orchestrator exposes the channel orchestrator for collaborator-facing
// switch requests.
func (c *Core) Orchestrator() *channel.Orchestrator { return c.orchestrator }

// Refresh exposes the refresh coordinator for collaborator-facing
// background refresh requests.
func (c *Core) Refresh() *refresh.Coordinator { return c.refresh }

// Tracker exposes the view tracker so collaborators can signal asset
// swaps (spec §4.8).
func (c *Core) Tracker() *viewtracker.Tracker { return c.tracker }
