package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/makapix/agent-core/internal/config"
	"github.com/makapix/agent-core/internal/store"
)

var StatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show identity and registration state",
	Long:  "Show whether the device is registered, and its stored broker address, without starting the agent.",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(*ConfigPath)
	if err != nil {
		return err
	}

	s, err := store.Open(cfg.KVPath, cfg.VaultRoot+"/certs")
	if err != nil {
		return err
	}
	defer s.Close()

	hasKey := s.HasPlayerKey()
	hasCerts := s.HasCerts()

	registered := "no"
	if hasKey && hasCerts {
		registered = "yes"
	} else if hasKey {
		registered = "incomplete (identity without certs)"
	}

	rows := [][]string{
		{"registered", registered},
	}
	if hasKey {
		id, err := s.GetIdentity()
		if err == nil {
			rows = append(rows,
				[]string{"player_key", id.PlayerKey},
				[]string{"broker", id.Host},
			)
		}
	}

	table := pterm.DefaultTable.WithHasHeader(false).WithData(rows)
	return table.Render()
}
