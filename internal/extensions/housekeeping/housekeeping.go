// Package housekeeping is a built-in extension that tracks cleaning tasks
// per room. It doubles as the reference for how extension modules hook into
// the runtime: one Register call at composition time, everything else
// through the bootstrap facade.
package housekeeping

import (
	"context"

	"github.com/lodgekit/extensions/internal/events"
	"github.com/lodgekit/extensions/internal/hooks"
	"github.com/lodgekit/extensions/internal/manifest"
	"github.com/lodgekit/extensions/internal/registry"
)

// Slug identifies this extension; the on-disk manifest must declare it.
const Slug = "housekeeping"

// Register binds the extension's bootstrap to the host table.
func Register(b *registry.Bootstraps) error {
	return b.Register(Slug, manifest.DefaultEntryPoint, bootstrap)
}

func bootstrap(ctx context.Context, ec *registry.Context, h *hooks.Registry) error {
	h.OnEvent("booking.checked_out", events.ListenerFunc(func(ctx context.Context, e events.Envelope) error {
		payload, _ := e.Payload.(map[string]any)
		room, _ := payload["room"].(string)
		if room == "" {
			return nil
		}
		return ec.Settings.Set(ctx, Slug, tenantOf(e), "pending."+room, "dirty", false)
	}), 0)

	h.Route(manifest.Route{
		Surface: manifest.SurfaceAdmin,
		Method:  "GET",
		Path:    "/housekeeping/pending",
	}, hooks.RouteHandlerFunc(func(ctx context.Context, req hooks.Request) (any, error) {
		status, err := ec.Settings.Status(ctx, Slug, req.Tenant)
		if err != nil {
			return nil, err
		}
		return status.Settings, nil
	}))

	h.Route(manifest.Route{
		Surface: manifest.SurfaceAdmin,
		Method:  "POST",
		Path:    "/housekeeping/rooms/{room}/done",
	}, hooks.RouteHandlerFunc(func(ctx context.Context, req hooks.Request) (any, error) {
		return nil, ec.Settings.Set(ctx, Slug, req.Tenant, "pending."+req.Params["room"], "clean", false)
	}))

	return h.Command("housekeeping:report", hooks.CommandHandlerFunc(func(ctx context.Context, args []string) error {
		ec.Logger.Info("housekeeping report requested")
		return nil
	}))
}

func tenantOf(e events.Envelope) string {
	tenant, _ := e.Metadata["tenant"].(string)
	return tenant
}
