package main

import (
	"github.com/spf13/cobra"
)

type rootFlags struct {
	verbose bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "extensiond",
		Short:         "extensiond manages the LodgeKit extension runtime",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(newSyncCmd(flags))
	cmd.AddCommand(newListCmd(flags))
	cmd.AddCommand(newEnableCmd(flags))
	cmd.AddCommand(newDisableCmd(flags))
	cmd.AddCommand(newRunCmd(flags))

	return cmd
}
