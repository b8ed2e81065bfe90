package hooks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lodgekit/extensions/internal/events"
	"github.com/lodgekit/extensions/internal/manifest"
)

func noopHandler() RouteHandler {
	return RouteHandlerFunc(func(ctx context.Context, req Request) (any, error) {
		return nil, nil
	})
}

func TestRegistryAttachesIdentityToListeners(t *testing.T) {
	bus := events.NewDispatcher()
	reg := NewRegistry("billing/stripe", "org-1", bus, NewRoutes(), NewCommands())

	var fired bool
	reg.OnEvent("booking.created", events.ListenerFunc(func(ctx context.Context, e events.Envelope) error {
		fired = true
		return nil
	}), 0)

	require.NoError(t, bus.Dispatch(context.Background(), "booking.created", nil, nil))
	assert.True(t, fired)

	// Removal by the owning identity clears the listener, proving the
	// identity was attached by the facade.
	assert.Equal(t, 1, bus.RemoveListeners("billing/stripe", "org-1"))
}

func TestRoutesForMergesGlobalAndTenantScoped(t *testing.T) {
	routes := NewRoutes()
	globalReg := NewRegistry("rooms", "", events.NewDispatcher(), routes, NewCommands())
	tenantReg := NewRegistry("rooms", "org-1", events.NewDispatcher(), routes, NewCommands())

	globalReg.Route(manifest.Route{Surface: "api", Method: "GET", Path: "/rooms"}, noopHandler())
	tenantReg.Route(manifest.Route{Surface: "api", Method: "POST", Path: "/rooms"}, noopHandler())

	forOrg1 := routes.For("rooms", "org-1")
	assert.Len(t, forOrg1, 2)

	forOrg2 := routes.For("rooms", "org-2")
	require.Len(t, forOrg2, 1)
	assert.Equal(t, "GET", forOrg2[0].Method)
}

func TestRoutesRemoveTenantScoped(t *testing.T) {
	routes := NewRoutes()
	globalReg := NewRegistry("rooms", "", events.NewDispatcher(), routes, NewCommands())
	tenantReg := NewRegistry("rooms", "org-1", events.NewDispatcher(), routes, NewCommands())

	globalReg.Route(manifest.Route{Surface: "api", Method: "GET", Path: "/rooms"}, noopHandler())
	tenantReg.Route(manifest.Route{Surface: "api", Method: "POST", Path: "/rooms"}, noopHandler())

	routes.Remove("rooms", "org-1")
	assert.Len(t, routes.For("rooms", "org-1"), 1, "global route must survive")

	routes.Remove("rooms", "")
	assert.Empty(t, routes.For("rooms", "org-1"))
}

func TestCommandsRejectDuplicates(t *testing.T) {
	commands := NewCommands()
	regA := NewRegistry("ext-a", "", events.NewDispatcher(), NewRoutes(), commands)
	regB := NewRegistry("ext-b", "", events.NewDispatcher(), NewRoutes(), commands)

	handler := CommandHandlerFunc(func(ctx context.Context, args []string) error { return nil })
	require.NoError(t, regA.Command("reconcile", handler))

	err := regB.Command("reconcile", handler)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ext-a")
}

func TestCommandsRun(t *testing.T) {
	commands := NewCommands()
	reg := NewRegistry("ext-a", "", events.NewDispatcher(), NewRoutes(), commands)

	var got []string
	require.NoError(t, reg.Command("reconcile", CommandHandlerFunc(func(ctx context.Context, args []string) error {
		got = args
		return nil
	})))

	require.NoError(t, commands.Run(context.Background(), "reconcile", []string{"--dry-run"}))
	assert.Equal(t, []string{"--dry-run"}, got)

	assert.Error(t, commands.Run(context.Background(), "missing", nil))
}
