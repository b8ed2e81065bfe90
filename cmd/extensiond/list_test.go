package main

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferedCmd() (*cobra.Command, *bytes.Buffer) {
	cmd := &cobra.Command{}
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	return cmd, out
}

func TestRenderExtensionTableEmpty(t *testing.T) {
	cmd, out := newBufferedCmd()

	require.NoError(t, renderExtensionTable(cmd, nil, ""))
	assert.Contains(t, out.String(), "No extensions registered")
}

func TestRenderExtensionTable(t *testing.T) {
	cmd, out := newBufferedCmd()

	views := []extensionView{
		{Slug: "housekeeping", Name: "Housekeeping", Version: "1.2.0", Status: "active"},
		{Slug: "minibar", Name: "Minibar Billing", Version: "0.3.1"},
	}
	require.NoError(t, renderExtensionTable(cmd, views, ""))

	got := out.String()
	assert.Contains(t, got, "SLUG")
	assert.Contains(t, got, "housekeeping")
	assert.Contains(t, got, "1.2.0")
	// A row without a persisted status renders as freshly installed.
	assert.Contains(t, got, "installed")
	assert.NotContains(t, got, "ENABLED")
}

func TestRenderExtensionTableWithTenantColumn(t *testing.T) {
	cmd, out := newBufferedCmd()

	enabled := true
	views := []extensionView{
		{Slug: "housekeeping", Name: "Housekeeping", Version: "1.2.0", Status: "active", Enabled: &enabled},
	}
	require.NoError(t, renderExtensionTable(cmd, views, "org-1"))

	got := out.String()
	assert.Contains(t, got, "ENABLED (org-1)")
	assert.Contains(t, got, "true")
}
