// Package commands implements the relaybot CLI using cobra.
package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCmd builds the root command with every subcommand registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "relaybot",
		Short: "relaybot - Telegram restricted content relay",
		Long: `relaybot copies messages and files from Telegram chats that forbid
forwarding, using each user's own logged-in account, and downloads
YouTube videos on request.

Examples:
  relaybot setup
  relaybot serve --config ./relaybot.yaml
  relaybot premium add 123456789 30 days
  relaybot login --user 123456789`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newLoginCmd(),
		newPremiumCmd(),
		newConfigCmd(),
		newSetupCmd(),
		newFetchCmd(),
		newHealthCmd(),
		newVersionCmd(version),
	)

	// Global flags.
	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the configuration file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logs")

	return rootCmd
}
