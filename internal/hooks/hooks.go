package hooks

import (
	"context"
	"fmt"
	"sync"

	"github.com/lodgekit/extensions/internal/events"
	"github.com/lodgekit/extensions/internal/manifest"
)

// Request is the typed envelope a route handler receives.
type Request struct {
	Surface string
	Method  string
	Path    string
	Params  map[string]string
	Tenant  string
	Actor   string
	Body    any
}

// RouteHandler serves one registered route. The returned value drives the
// response body: nil for none, a map or struct for JSON, a string written
// verbatim.
type RouteHandler interface {
	Serve(ctx context.Context, req Request) (any, error)
}

// RouteHandlerFunc adapts a function to the RouteHandler interface.
type RouteHandlerFunc func(ctx context.Context, req Request) (any, error)

// Serve calls the wrapped function.
func (f RouteHandlerFunc) Serve(ctx context.Context, req Request) (any, error) {
	return f(ctx, req)
}

// CommandHandler runs one extension-declared command.
type CommandHandler interface {
	Run(ctx context.Context, args []string) error
}

// CommandHandlerFunc adapts a function to the CommandHandler interface.
type CommandHandlerFunc func(ctx context.Context, args []string) error

// Run calls the wrapped function.
func (f CommandHandlerFunc) Run(ctx context.Context, args []string) error {
	return f(ctx, args)
}

// RegisteredRoute couples a normalized route declaration with its handler
// and owning identity.
type RegisteredRoute struct {
	manifest.Route
	Slug    string
	Tenant  string
	Handler RouteHandler
}

// Routes is the in-memory route accumulator the route dispatcher queries
// per extension and tenant at request time. Process-local; rebuilt at
// bootstrap.
type Routes struct {
	mu     sync.RWMutex
	routes map[string][]RegisteredRoute // keyed by extension slug
}

// NewRoutes returns an empty accumulator.
func NewRoutes() *Routes {
	return &Routes{routes: make(map[string][]RegisteredRoute)}
}

func (r *Routes) add(route RegisteredRoute) {
	r.mu.Lock()
	r.routes[route.Slug] = append(r.routes[route.Slug], route)
	r.mu.Unlock()
}

// For returns the routes an extension exposes to a tenant: routes scoped to
// that tenant plus global (unscoped) ones, in registration order.
func (r *Routes) For(slug, tenant string) []RegisteredRoute {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []RegisteredRoute
	for _, route := range r.routes[slug] {
		if route.Tenant == "" || route.Tenant == tenant {
			out = append(out, route)
		}
	}
	return out
}

// Remove drops routes owned by the extension, tenant-scoped the same way as
// the event bus: an empty tenant removes everything for the slug.
func (r *Routes) Remove(slug, tenant string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if tenant == "" {
		delete(r.routes, slug)
		return
	}
	kept := r.routes[slug][:0]
	for _, route := range r.routes[slug] {
		if route.Tenant == tenant {
			continue
		}
		kept = append(kept, route)
	}
	r.routes[slug] = kept
}

// commandEntry is one named command with its owning identity.
type commandEntry struct {
	slug    string
	tenant  string
	handler CommandHandler
}

// Commands is the process-local command table.
type Commands struct {
	mu    sync.RWMutex
	table map[string]commandEntry
}

// NewCommands returns an empty command table.
func NewCommands() *Commands {
	return &Commands{table: make(map[string]commandEntry)}
}

func (c *Commands) add(name string, entry commandEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.table[name]; ok {
		return fmt.Errorf("command %q already registered by extension %q", name, existing.slug)
	}
	c.table[name] = entry
	return nil
}

// Run executes a named command.
func (c *Commands) Run(ctx context.Context, name string, args []string) error {
	c.mu.RLock()
	entry, ok := c.table[name]
	c.mu.RUnlock()

	if !ok {
		return fmt.Errorf("unknown command %q", name)
	}
	return entry.handler.Run(ctx, args)
}

// Names returns the registered command names.
func (c *Commands) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.table))
	for name := range c.table {
		names = append(names, name)
	}
	return names
}

// Registry is the per-extension-instance facade handed to bootstrap code.
// Every registration carries the owning (extension, tenant) identity
// automatically, so plugin code cannot register hooks on behalf of another
// extension.
type Registry struct {
	slug     string
	tenant   string
	bus      *events.Dispatcher
	routes   *Routes
	commands *Commands
}

// NewRegistry builds a facade bound to one extension instance.
func NewRegistry(slug, tenant string, bus *events.Dispatcher, routes *Routes, commands *Commands) *Registry {
	return &Registry{slug: slug, tenant: tenant, bus: bus, routes: routes, commands: commands}
}

// OnEvent subscribes a listener to a named event with the extension's
// identity attached. Returns the registration id.
func (h *Registry) OnEvent(event string, listener events.Listener, priority int) string {
	return h.bus.Listen(event, listener, h.slug, h.tenant, priority)
}

// Command registers a named command owned by the extension.
func (h *Registry) Command(name string, handler CommandHandler) error {
	return h.commands.add(name, commandEntry{slug: h.slug, tenant: h.tenant, handler: handler})
}

// Route registers a handler for a normalized route declaration.
func (h *Registry) Route(route manifest.Route, handler RouteHandler) {
	h.routes.add(RegisteredRoute{
		Route:   route,
		Slug:    h.slug,
		Tenant:  h.tenant,
		Handler: handler,
	})
}
