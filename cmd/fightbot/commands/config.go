package commands

import (
	"fmt"
	"os"

	"github.com/aryanwp/fightbot/pkg/fightbot/bot"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// newConfigCmd creates the `fightbot config` command group.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage bot configuration",
		Long: `Manage the FightBot configuration.

Examples:
  fightbot config init
  fightbot config show
  fightbot config set-token`,
	}

	cmd.AddCommand(
		newConfigInitCmd(),
		newConfigShowCmd(),
		newConfigSetTokenCmd(),
	)

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config.yaml",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("output")
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists, refusing to overwrite", path)
			}

			if err := bot.SaveConfigToFile(bot.DefaultConfig(), path); err != nil {
				return err
			}
			fmt.Printf("Configuration written to %s\n", path)
			fmt.Println("Set 'owner' to your phone number before starting the bot.")
			return nil
		},
	}

	cmd.Flags().StringP("output", "o", "config.yaml", "output path")
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}

			// Never print the real token.
			if cfg.Web.AuthToken != "" {
				cfg.Web.AuthToken = "***"
			}

			out, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}
}

func newConfigSetTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-token <token>",
		Short: "Store the web auth token in the OS keyring",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if !bot.KeyringAvailable() {
				return fmt.Errorf("OS keyring is not available, set FIGHTBOT_WEB_TOKEN instead")
			}
			if err := bot.StoreWebToken(args[0]); err != nil {
				return fmt.Errorf("storing token: %w", err)
			}
			fmt.Println("Web token stored in the OS keyring.")
			return nil
		},
	}
}
