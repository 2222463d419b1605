package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/makapix/agent-core/internal/agent"
	"github.com/makapix/agent-core/internal/config"
	"github.com/makapix/agent-core/internal/corelog"
	"github.com/makapix/agent-core/internal/refcollab"
	"github.com/makapix/agent-core/internal/supervisor"
)

// ConfigPath is set by main to the bound --config flag value.
var ConfigPath *string

var RunCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the agent",
	Long: `Start the agent: reconcile startup state against the credential
store, provision if unregistered, then connect and run the channel
switcher, view tracker, and reconnect watchdog until interrupted.`,
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	log := corelog.For("cmd.run")

	cfg, err := config.Load(*ConfigPath)
	if err != nil {
		return err
	}

	core, err := agent.New(cfg, agent.Collaborators{
		Playback:      refcollab.Playback{},
		UI:            refcollab.UI{},
		Downloads:     refcollab.Downloads{},
		LinkProbe:     refcollab.LinkProbe{},
		AppState:      refcollab.AppState{},
		SharedBus:     refcollab.SharedBus{},
		Factory:       refcollab.Factory{},
		LocalFallback: refcollab.Factory{},
		PlayScheduler: refcollab.PlayScheduler{},
	})
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := core.Reconcile(ctx); err != nil {
		log.Warnw("startup reconciliation rejected", "error", err)
	}

	if core.Supervisor().State() == supervisor.StateIdle {
		if err := core.StartProvisioning(ctx, showRegistrationCode); err != nil {
			log.Errorw("provisioning failed", "error", err)
		}
	}

	core.Start(ctx)

	log.Infow("agent running", "state", core.Supervisor().State())
	<-ctx.Done()
	log.Infow("shutting down")
	return nil
}

func showRegistrationCode(code string, expiresAt time.Time) {
	pterm.DefaultBigText.WithLetters(pterm.NewLettersFromStringWithStyle(code, pterm.NewStyle(pterm.FgCyan))).Render()
	pterm.Info.Printfln("enter this code to link your frame — expires at %s", expiresAt.Format(time.Kitchen))
}
