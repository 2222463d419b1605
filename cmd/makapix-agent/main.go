package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/makapix/agent-core/cmd/makapix-agent/commands"
	"github.com/makapix/agent-core/internal/corelog"
)

var (
	configPath string
	jsonLogs   bool
)

var rootCmd = &cobra.Command{
	Use:   "makapix-agent",
	Short: "Makapix picture-frame control-plane agent",
	Long: `makapix-agent — the networked control plane for a Makapix picture
frame: device provisioning, mTLS broker session, channel switching, and
view telemetry.

Examples:
  makapix-agent run              # start the agent
  makapix-agent status           # show registration state and identity
  makapix-agent reset            # erase identity and certs, drop a reset marker`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := corelog.Initialize(jsonLogs); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a TOML config file")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "emit structured JSON logs instead of human-readable output")

	commands.ConfigPath = &configPath
	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.StatusCmd)
	rootCmd.AddCommand(commands.ResetCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
