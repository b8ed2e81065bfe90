package main

import (
	"github.com/spf13/cobra"
)

func newRunCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run <command> [args...]",
		Short: "Run a command exposed by an extension",
		Long:  "Run a named command registered by an extension, for example 'extensiond run housekeeping:report'. Active extensions are bootstrapped first so their commands are available.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtensionCommand(cmd, flags, args[0], args[1:])
		},
	}
}

func runExtensionCommand(cmd *cobra.Command, flags *rootFlags, name string, args []string) error {
	app, err := newAppContext(flags)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	ctx := cmd.Context()
	if _, err := app.registry.Discover(ctx); err != nil {
		return err
	}
	if err := app.registry.Bootstrap(ctx); err != nil {
		return err
	}
	return app.registry.RunCommand(ctx, name, args)
}
