// Package commands implements the fightbot CLI commands using cobra.
package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root CLI command with all subcommands registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fightbot",
		Short: "FightBot - WhatsApp group automation bot",
		Long: `FightBot is a WhatsApp automation bot with per-group broadcast and
group-rename loops, driven by chat commands from the owner and subadmins.

Examples:
  fightbot serve
  fightbot serve --config ./config.yaml
  fightbot console
  fightbot config init`,
		Version: version,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newConsoleCmd(),
		newConfigCmd(),
		newHealthCmd(),
	)

	// Global flags.
	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the configuration file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	return rootCmd
}
