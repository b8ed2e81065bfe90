package housekeeping

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lodgekit/extensions/internal/events"
	"github.com/lodgekit/extensions/internal/hooks"
	"github.com/lodgekit/extensions/internal/logger"
	"github.com/lodgekit/extensions/internal/registry"
	"github.com/lodgekit/extensions/internal/settings"
	"github.com/lodgekit/extensions/internal/store"
)

type env struct {
	bus      *events.Dispatcher
	routes   *hooks.Routes
	commands *hooks.Commands
	settings *settings.Service
}

func bootstrapEnv(t *testing.T) *env {
	t.Helper()

	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	e := &env{
		bus:      events.NewDispatcher(),
		routes:   hooks.NewRoutes(),
		commands: hooks.NewCommands(),
		settings: settings.NewService(st, nil),
	}

	ec := &registry.Context{
		Slug:     Slug,
		Settings: e.settings,
		Logger:   logger.Nop(),
		Config:   map[string]string{},
	}
	facade := hooks.NewRegistry(Slug, "", e.bus, e.routes, e.commands)
	require.NoError(t, bootstrap(context.Background(), ec, facade))
	return e
}

func TestCheckoutMarksRoomDirty(t *testing.T) {
	e := bootstrapEnv(t)
	ctx := context.Background()

	err := e.bus.Dispatch(ctx, "booking.checked_out",
		map[string]any{"room": "204"},
		map[string]any{"tenant": "org-1"})
	require.NoError(t, err)

	value, ok, err := e.settings.Get(ctx, Slug, "org-1", "pending.204")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "dirty", value)
}

func TestDoneRouteMarksRoomClean(t *testing.T) {
	e := bootstrapEnv(t)
	ctx := context.Background()

	routes := e.routes.For(Slug, "org-1")
	require.Len(t, routes, 2)

	var done hooks.RegisteredRoute
	for _, r := range routes {
		if r.Method == "POST" {
			done = r
		}
	}
	require.NotNil(t, done.Handler)

	_, err := done.Handler.Serve(ctx, hooks.Request{
		Tenant: "org-1",
		Params: map[string]string{"room": "204"},
	})
	require.NoError(t, err)

	value, ok, err := e.settings.Get(ctx, Slug, "org-1", "pending.204")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "clean", value)
}

func TestReportCommandRegistered(t *testing.T) {
	e := bootstrapEnv(t)
	assert.NoError(t, e.commands.Run(context.Background(), "housekeeping:report", nil))
}
