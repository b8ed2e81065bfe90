package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lodgekit/extensions/internal/store"
)

type listOptions struct {
	jsonOutput bool
	tenant     string
}

func newListCmd(flags *rootFlags) *cobra.Command {
	opts := &listOptions{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered extensions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, flags, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output in JSON format")
	cmd.Flags().StringVar(&opts.tenant, "tenant", "", "Show per-tenant enablement for this tenant")

	return cmd
}

type extensionView struct {
	Slug    string `json:"slug"`
	Name    string `json:"name"`
	Version string `json:"version"`
	Status  string `json:"status"`
	Enabled *bool  `json:"enabled,omitempty"`
}

func runList(cmd *cobra.Command, flags *rootFlags, opts *listOptions) error {
	app, err := newAppContext(flags)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	records, err := app.registry.List(cmd.Context())
	if err != nil {
		return err
	}

	views := make([]extensionView, 0, len(records))
	for _, rec := range records {
		v := extensionView{
			Slug:    rec.Slug,
			Name:    rec.DisplayName,
			Version: rec.Version,
			Status:  rec.Status,
		}
		if opts.tenant != "" {
			enabled, err := app.settings.IsEnabled(cmd.Context(), rec.Slug, opts.tenant)
			if err != nil {
				return err
			}
			v.Enabled = &enabled
		}
		views = append(views, v)
	}

	if opts.jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	}
	return renderExtensionTable(cmd, views, opts.tenant)
}

func renderExtensionTable(cmd *cobra.Command, views []extensionView, tenant string) error {
	if len(views) == 0 {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No extensions registered. Run 'extensiond sync' first.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	if tenant != "" {
		_, _ = fmt.Fprintf(w, "SLUG\tNAME\tVERSION\tSTATUS\tENABLED (%s)\n", tenant)
	} else {
		_, _ = fmt.Fprintln(w, "SLUG\tNAME\tVERSION\tSTATUS")
	}

	for _, v := range views {
		status := v.Status
		if status == "" {
			status = store.StatusInstalled
		}
		if v.Enabled != nil {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n", v.Slug, v.Name, v.Version, status, *v.Enabled)
		} else {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", v.Slug, v.Name, v.Version, status)
		}
	}
	return w.Flush()
}
