package main

import (
	"github.com/spf13/cobra"

	"github.com/talgya/offscreen/internal/config"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the worldsim CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worldsim",
		Short: "worldsim - off-screen NPC simulation",
		Long: `worldsim keeps NPCs living while nobody is watching: they travel a
node graph, eat, rest, work, gossip and fight on a discrete event clock.`,
		SilenceUsage: true,
	}

	// Global flag for config file path
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	config.BindFlags(cmd.PersistentFlags())

	// Add subcommands
	cmd.AddCommand(NewRunCmd())
	cmd.AddCommand(NewAdvanceCmd())
	cmd.AddCommand(NewValidateCmd())
	cmd.AddCommand(NewGenerateCmd())

	return cmd
}

// loadConfig layers the config file and the flags the user set.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	return config.Load(configFile, cmd.Flags())
}
