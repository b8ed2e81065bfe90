package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newEnableCmd(flags *rootFlags) *cobra.Command {
	var tenant string

	cmd := &cobra.Command{
		Use:   "enable <slug>",
		Short: "Enable an extension for a tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnable(cmd, flags, args[0], tenant)
		},
	}

	cmd.Flags().StringVar(&tenant, "tenant", "", "Tenant to enable the extension for")
	_ = cmd.MarkFlagRequired("tenant")

	return cmd
}

func runEnable(cmd *cobra.Command, flags *rootFlags, slug, tenant string) error {
	app, err := newAppContext(flags)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	if err := app.registry.Activate(cmd.Context(), slug, tenant); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Enabled %s for tenant %s\n", slug, tenant)
	return nil
}
