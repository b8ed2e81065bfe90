package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSyncCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Discover extension manifests and sync them to the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, flags)
		},
	}
}

func runSync(cmd *cobra.Command, flags *rootFlags) error {
	app, err := newAppContext(flags)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	slugs, err := app.registry.Discover(cmd.Context())
	if err != nil {
		return err
	}

	if len(slugs) == 0 {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "No manifests found under %s\n", app.cfg.PluginRoot)
		return nil
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Synced %d extension(s):\n", len(slugs))
	for _, slug := range slugs {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", slug)
	}
	return nil
}
