package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDisableCmd(flags *rootFlags) *cobra.Command {
	var tenant string

	cmd := &cobra.Command{
		Use:   "disable <slug>",
		Short: "Disable an extension for a tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDisable(cmd, flags, args[0], tenant)
		},
	}

	cmd.Flags().StringVar(&tenant, "tenant", "", "Tenant to disable the extension for")
	_ = cmd.MarkFlagRequired("tenant")

	return cmd
}

func runDisable(cmd *cobra.Command, flags *rootFlags, slug, tenant string) error {
	app, err := newAppContext(flags)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	if err := app.registry.Deactivate(cmd.Context(), slug, tenant); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Disabled %s for tenant %s\n", slug, tenant)
	return nil
}
