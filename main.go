package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/arbornotes/arbor/cmd"
	"github.com/arbornotes/arbor/cmd/config"
)

var deps *config.Deps

func main() {
	cobra.OnInitialize(config.InitConfig)

	rootCmd := &cobra.Command{
		Use:   "arbor",
		Short: "An offline-first client for hierarchical notes",
		Long: `Arbor is an offline-first client for a hierarchical note server.

Reads race the local cache against the network and serve whichever
answers usefully first; writes apply locally and queue for replay when
the server is unreachable.`,
		SilenceUsage: true,
	}
	config.AddGlobalFlags(rootCmd)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// Runs once before any subcommand.
		var err error
		deps, err = config.InitDeps()
		return err
	}
	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		if deps != nil {
			deps.Engine.WaitBackground()
			deps.Close()
		}
	}

	rootCmd.AddCommand(cmd.NewListCmd(&deps))
	rootCmd.AddCommand(cmd.NewShowCmd(&deps))
	rootCmd.AddCommand(cmd.NewSaveCmd(&deps))
	rootCmd.AddCommand(cmd.NewNewCmd(&deps))
	rootCmd.AddCommand(cmd.NewRmCmd(&deps))
	rootCmd.AddCommand(cmd.NewMoveCmd(&deps))
	rootCmd.AddCommand(cmd.NewIndentCmd(&deps))
	rootCmd.AddCommand(cmd.NewOutdentCmd(&deps))
	rootCmd.AddCommand(cmd.NewMoveTreeCmd(&deps))
	rootCmd.AddCommand(cmd.NewSearchCmd(&deps))
	rootCmd.AddCommand(cmd.NewStatusCmd(&deps))
	rootCmd.AddCommand(cmd.NewPushCmd(&deps))
	rootCmd.AddCommand(cmd.NewExportCmd(&deps))
	rootCmd.AddCommand(cmd.NewVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
