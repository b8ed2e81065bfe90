package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lodgekit/extensions/internal/audit"
	"github.com/lodgekit/extensions/internal/capability"
	"github.com/lodgekit/extensions/internal/events"
	"github.com/lodgekit/extensions/internal/hooks"
	"github.com/lodgekit/extensions/internal/manifest"
	"github.com/lodgekit/extensions/internal/settings"
	"github.com/lodgekit/extensions/internal/store"
	exterrors "github.com/lodgekit/extensions/pkg/errors"
)

type fixture struct {
	root     string
	registry *Registry
	store    *store.Store
	settings *settings.Service
	sink     *audit.MemorySink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	caps := capability.Load(map[string][]string{
		"payments.charge": {"org_admin"},
	})
	svc := settings.NewService(st, nil)
	root := t.TempDir()

	f := &fixture{
		root:     root,
		store:    st,
		settings: svc,
		sink:     &audit.MemorySink{},
	}
	f.registry = New(Config{
		Root:      root,
		Validator: manifest.NewValidator(caps),
		Store:     st,
		Settings:  svc,
		Audit:     f.sink,
	})
	return f
}

func (f *fixture) writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	full := filepath.Join(f.root, dir)
	require.NoError(t, os.MkdirAll(full, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(full, ManifestFileName), []byte(content), 0o644))
}

func (f *fixture) registerBootstrap(t *testing.T, slug string, fn Bootstrap) {
	t.Helper()
	if fn == nil {
		fn = func(ctx context.Context, ec *Context, h *hooks.Registry) error { return nil }
	}
	require.NoError(t, f.registry.Bootstraps().Register(slug, manifest.DefaultEntryPoint, fn))
}

const stripeManifest = `{
	"slug": "billing/stripe",
	"name": "stripe",
	"display_name": "Stripe Billing",
	"version": "1.0.0",
	"permissions": ["payments.charge"],
	"hooks": {"routes": {"api": ["POST /charge"]}}
}`

func TestDiscoverUpsertsValidManifests(t *testing.T) {
	f := newFixture(t)
	f.writeManifest(t, "stripe", stripeManifest)
	f.registerBootstrap(t, "billing/stripe", nil)

	slugs, err := f.registry.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"billing/stripe"}, slugs)

	rec, err := f.store.GetExtension(context.Background(), "billing/stripe")
	require.NoError(t, err)
	assert.Equal(t, "Stripe Billing", rec.DisplayName)
	assert.Equal(t, store.StatusInstalled, rec.Status)
	assert.NotEmpty(t, rec.ManifestChecksum)

	m, ok := f.registry.Manifest("billing/stripe")
	require.True(t, ok)
	assert.Len(t, m.Hooks.Routes, 1)
}

func TestDiscoverAbortsBatchOnSingleInvalidManifest(t *testing.T) {
	f := newFixture(t)
	f.writeManifest(t, "a-good", `{"slug":"good","name":"g","display_name":"G","version":"1.0.0"}`)
	f.writeManifest(t, "b-bad", `{"slug":"BAD SLUG","name":"b","display_name":"B","version":"nope"}`)
	f.registerBootstrap(t, "good", nil)

	_, err := f.registry.Discover(context.Background())
	require.Error(t, err)

	var verr *exterrors.ManifestError
	require.ErrorAs(t, err, &verr)

	// All-or-nothing: the valid manifest must not have been written either.
	records, err := f.store.ListExtensions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestDiscoverRequiresRegisteredBootstrap(t *testing.T) {
	f := newFixture(t)
	f.writeManifest(t, "stripe", stripeManifest)

	_, err := f.registry.Discover(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no bootstrap registered")
}

func TestDiscoverRejectsDuplicateSlugs(t *testing.T) {
	f := newFixture(t)
	f.writeManifest(t, "one", `{"slug":"dup","name":"a","display_name":"A","version":"1.0.0"}`)
	f.writeManifest(t, "two", `{"slug":"dup","name":"b","display_name":"B","version":"1.0.0"}`)
	f.registerBootstrap(t, "dup", nil)

	_, err := f.registry.Discover(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate slug")
}

func TestRediscoverIsIdempotentAndPreservesStatus(t *testing.T) {
	f := newFixture(t)
	f.writeManifest(t, "stripe", stripeManifest)
	f.registerBootstrap(t, "billing/stripe", nil)
	ctx := context.Background()

	_, err := f.registry.Discover(ctx)
	require.NoError(t, err)
	require.NoError(t, f.registry.SetStatus(ctx, "billing/stripe", store.StatusActive))

	before, err := f.store.GetExtension(ctx, "billing/stripe")
	require.NoError(t, err)

	// Manifest contents change on disk; re-sync picks up the new version
	// and checksum but leaves operator-owned fields alone.
	f.writeManifest(t, "stripe", `{
		"slug": "billing/stripe",
		"name": "stripe",
		"display_name": "Stripe Billing",
		"version": "1.1.0",
		"permissions": ["payments.charge"]
	}`)
	_, err = f.registry.Discover(ctx)
	require.NoError(t, err)

	after, err := f.store.GetExtension(ctx, "billing/stripe")
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", after.Version)
	assert.NotEqual(t, before.ManifestChecksum, after.ManifestChecksum)
	assert.Equal(t, store.StatusActive, after.Status)
}

func TestActivateDeactivatePerTenant(t *testing.T) {
	f := newFixture(t)
	f.writeManifest(t, "stripe", stripeManifest)
	f.registerBootstrap(t, "billing/stripe", nil)
	ctx := context.Background()

	_, err := f.registry.Discover(ctx)
	require.NoError(t, err)

	require.NoError(t, f.registry.Activate(ctx, "billing/stripe", "org-1"))

	enabled, err := f.settings.IsEnabled(ctx, "billing/stripe", "org-1")
	require.NoError(t, err)
	assert.True(t, enabled)

	// Globally installed, enabled for org-1, still disabled for org-2.
	enabled, err = f.settings.IsEnabled(ctx, "billing/stripe", "org-2")
	require.NoError(t, err)
	assert.False(t, enabled)

	require.NoError(t, f.registry.Deactivate(ctx, "billing/stripe", "org-1"))
	enabled, err = f.settings.IsEnabled(ctx, "billing/stripe", "org-1")
	require.NoError(t, err)
	assert.False(t, enabled)

	kinds := make([]audit.Kind, 0)
	for _, e := range f.sink.Events() {
		kinds = append(kinds, e.Kind)
	}
	assert.Contains(t, kinds, audit.KindExtensionActivated)
	assert.Contains(t, kinds, audit.KindExtensionDisabled)
}

func TestActivateUnknownExtensionFails(t *testing.T) {
	f := newFixture(t)
	err := f.registry.Activate(context.Background(), "ghost", "org-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestBootstrapRunsActiveExtensionsOnly(t *testing.T) {
	f := newFixture(t)
	f.writeManifest(t, "stripe", stripeManifest)
	f.writeManifest(t, "rooms", `{"slug":"rooms","name":"rooms","display_name":"Rooms","version":"1.0.0"}`)
	ctx := context.Background()

	var ran []string
	f.registerBootstrap(t, "billing/stripe", func(ctx context.Context, ec *Context, h *hooks.Registry) error {
		ran = append(ran, ec.Slug)
		h.OnEvent("booking.created", events.ListenerFunc(func(ctx context.Context, e events.Envelope) error {
			return nil
		}), 10)
		h.Route(manifest.Route{Surface: "api", Method: "POST", Path: "/charge"}, hooks.RouteHandlerFunc(
			func(ctx context.Context, req hooks.Request) (any, error) { return nil, nil }))
		return nil
	})
	f.registerBootstrap(t, "rooms", func(ctx context.Context, ec *Context, h *hooks.Registry) error {
		ran = append(ran, ec.Slug)
		return nil
	})

	_, err := f.registry.Discover(ctx)
	require.NoError(t, err)
	require.NoError(t, f.registry.SetStatus(ctx, "billing/stripe", store.StatusActive))

	require.NoError(t, f.registry.Bootstrap(ctx))
	assert.Equal(t, []string{"billing/stripe"}, ran, "inactive extensions must not bootstrap")

	assert.Equal(t, 1, f.registry.Bus().ListenerCount("booking.created"))
	assert.Len(t, f.registry.Routes().For("billing/stripe", "org-1"), 1)
}

func TestBootstrapContextCarriesSettingsHandle(t *testing.T) {
	f := newFixture(t)
	f.writeManifest(t, "rooms", `{"slug":"rooms","name":"rooms","display_name":"Rooms","version":"1.0.0"}`)
	ctx := context.Background()

	f.registerBootstrap(t, "rooms", func(ctx context.Context, ec *Context, h *hooks.Registry) error {
		return ec.Settings.Set(ctx, ec.Slug, "", "default_rate", "100", false)
	})

	_, err := f.registry.Discover(ctx)
	require.NoError(t, err)
	require.NoError(t, f.registry.SetStatus(ctx, "rooms", store.StatusActive))
	require.NoError(t, f.registry.Bootstrap(ctx))

	value, ok, err := f.settings.Get(ctx, "rooms", "", "default_rate")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "100", value)
}
