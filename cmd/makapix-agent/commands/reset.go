package commands

import (
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/makapix/agent-core/internal/config"
	"github.com/makapix/agent-core/internal/store"
)

var ResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Erase identity, certs, and drop a reset marker",
	Long: `Erase the stored enrollment identity and mTLS material, returning the
device to an unregistered state, and drop the reset marker file. The run
command does not watch the marker, so an agent instance that is already
running does not react to it.`,
	RunE: runReset,
}

func runReset(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(*ConfigPath)
	if err != nil {
		return err
	}

	s, err := store.Open(cfg.KVPath, cfg.VaultRoot+"/certs")
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Clear(); err != nil {
		return err
	}

	if cfg.ResetMarker != "" {
		if f, err := os.Create(cfg.ResetMarker); err == nil {
			f.Close()
		}
	}

	pterm.Success.Println("identity and certificates erased")
	return nil
}
