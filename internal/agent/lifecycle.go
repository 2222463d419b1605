package agent

import (
	"context"
	"time"

	"github.com/makapix/agent-core/internal/corelog"
	"github.com/makapix/agent-core/internal/corerrors"
	"github.com/makapix/agent-core/internal/provisioning"
)

// Reconcile runs the startup decision of spec §4.5's initial IDLE state:
// identity+certs present -> connect_if_registered; identity present
// without certs -> the narrow IncompleteRegistration resolution (DESIGN.md
// Open Question 1); otherwise IDLE awaits an explicit StartProvisioning.
func (c *Core) Reconcile(ctx context.Context) error {
	log := corelog.For("agent")

	if c.store.HasPlayerKey() && c.store.HasCerts() {
		if err := c.supervisor.ConnectIfRegistered(); err != nil {
			return err
		}
		return c.connectFromStore(ctx)
	}

	if c.store.HasPlayerKey() && !c.store.HasCerts() {
		log.Warnw("identity present without certs at startup, entering incomplete-registration")
		return c.supervisor.EnterIncompleteRegistration()
	}

	return nil
}

func (c *Core) connectFromStore(ctx context.Context) error {
	id, err := c.store.GetIdentity()
	if err != nil {
		return corerrors.Wrap(err, "loading identity for connect")
	}
	certs, err := c.store.GetCerts()
	if err != nil {
		return corerrors.Wrap(err, "loading certs for connect")
	}
	if err := c.session.Init(id.PlayerKey, id.Host, id.Port, certs.CA, certs.Cert, certs.Key); err != nil {
		return corerrors.Wrap(err, "initializing session")
	}
	c.tracker.SetPlayerKey(id.PlayerKey)
	c.correlator.SetPlayerKey(id.PlayerKey)
	return c.session.Connect()
}

// StartProvisioning runs the full two-phase enrollment flow of spec §4.1,
// §4.2, driving the Supervisor through PROVISIONING -> SHOW_CODE ->
// CONNECTING -> (connected-cb) CONNECTED. showCode is called once the
// registration code is available for the collaborator to display; it is
// the caller's responsibility to render it and to stop once the
// Supervisor leaves SHOW_CODE.
func (c *Core) StartProvisioning(ctx context.Context, showCode func(code string, expiresAt time.Time)) error {
	log := corelog.For("agent")

	if err := c.supervisor.StartProvisioning(); err != nil {
		return err
	}
	c.session.Disconnect()

	result, err := c.provisioning.IssueCode(ctx)
	if err != nil {
		log.Warnw("phase-A failed", "error", err)
		if perr := c.supervisor.PhaseAFail(); perr != nil {
			log.Warnw("phase-A-fail transition rejected", "error", perr)
		}
		return err
	}

	if err := c.supervisor.PhaseAOk(result.RegistrationCode, result.ExpiresAt.Unix()); err != nil {
		return err
	}
	if showCode != nil {
		showCode(result.RegistrationCode, result.ExpiresAt)
	}

	c.tasks.MarkPollerStarted()
	defer c.tasks.MarkPollerStopped()

	interval := time.Duration(c.cfg.PollInterval) * time.Second
	creds, err := c.provisioning.PollCredentials(ctx, result.PlayerKey, interval, c.cfg.PollCap, c.supervisor.CancelRequested)
	if err != nil {
		if corerrors.Is(err, corerrors.ErrInvalidState) {
			log.Infow("provisioning cancelled during phase-B poll")
			return err
		}
		log.Warnw("phase-B polling failed", "error", err)
		if cerr := c.supervisor.CodeExpired(); cerr != nil {
			log.Warnw("code-expiry transition rejected", "error", cerr)
		}
		return err
	}

	if err := provisioning.InstallCredentials(c.store, result.PlayerKey, creds, c.cfg.BrokerHostDefault, uint16(c.cfg.BrokerPortDefault)); err != nil {
		log.Errorw("installing credentials failed", "error", err)
		return err
	}

	if err := c.supervisor.PhaseBOk(); err != nil {
		return err
	}

	if err := c.connectFromStore(ctx); err != nil {
		log.Warnw("connect after phase-B failed, reconnect loop will retry", "error", err)
	}
	return nil
}
