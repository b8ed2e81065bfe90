package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/lodgekit/extensions/internal/audit"
	"github.com/lodgekit/extensions/internal/hooks"
	"github.com/lodgekit/extensions/internal/manifest"
	exterrors "github.com/lodgekit/extensions/pkg/errors"
)

var (
	// ErrNoRoute is returned when no registered route matches the request.
	ErrNoRoute = errors.New("no route matched")
	// ErrTenantRequired is returned for tenant-facing surfaces called
	// without a tenant id.
	ErrTenantRequired = errors.New("tenant is required")
	// ErrExtensionDisabled is returned when the extension is not enabled
	// for the requesting tenant.
	ErrExtensionDisabled = errors.New("extension disabled for tenant")
	// ErrInvalidCSRFToken is returned when a mutating request fails the
	// CSRF check.
	ErrInvalidCSRFToken = errors.New("invalid csrf token")
)

// tenantSurfaces are the surfaces that always act on behalf of a tenant.
var tenantSurfaces = map[string]struct{}{
	manifest.SurfacePublic:  {},
	manifest.SurfaceAPI:     {},
	manifest.SurfaceWebhook: {},
}

var mutatingMethods = map[string]struct{}{
	"POST": {}, "PUT": {}, "PATCH": {}, "DELETE": {},
}

// EnablementChecker answers whether an extension is enabled for a tenant.
// Satisfied by settings.Service.
type EnablementChecker interface {
	IsEnabled(ctx context.Context, extension, tenant string) (bool, error)
}

// Authorizer gates a route behind its declared capability. Satisfied by
// capability.Authorizer.
type Authorizer interface {
	Authorize(ctx context.Context, capability string) error
}

// CSRFValidator checks a request token. Issued and validated by the host;
// the dispatcher only decides when a check is required.
type CSRFValidator interface {
	Validate(ctx context.Context, token string) error
}

// Options carries the per-request inputs that are not part of the route
// identity.
type Options struct {
	Tenant    string
	Actor     string
	CSRFToken string
	Body      any
}

// Result is the rendered outcome of a dispatched route.
type Result struct {
	Body string
}

// Dispatcher resolves inbound (surface, method, path) requests to
// registered extension routes and enforces tenant enablement, capability
// and CSRF policy before the handler runs.
type Dispatcher struct {
	routes     *hooks.Routes
	enablement EnablementChecker
	authorizer Authorizer
	csrf       CSRFValidator
	sink       audit.Sink
}

// NewDispatcher wires a route dispatcher. The audit sink may be nil; the
// CSRF validator may be nil only if no mutating admin/public routes exist.
func NewDispatcher(routes *hooks.Routes, enablement EnablementChecker, authorizer Authorizer, csrf CSRFValidator, sink audit.Sink) *Dispatcher {
	return &Dispatcher{
		routes:     routes,
		enablement: enablement,
		authorizer: authorizer,
		csrf:       csrf,
		sink:       sink,
	}
}

// Dispatch resolves and invokes exactly one route. For tenant-facing
// surfaces the extension must be enabled for the tenant before any route
// matching happens. Authorization denials surface as the authorizer's
// fixed forbidden error; the handler never runs after a denial.
func (d *Dispatcher) Dispatch(ctx context.Context, surface, slug, method, path string, opts Options) (Result, error) {
	if _, ok := manifest.Surfaces[surface]; !ok {
		return Result{}, exterrors.NewRuntimeError("dispatch", slug, fmt.Sprintf("unknown surface %q", surface), nil)
	}

	if _, tenantFacing := tenantSurfaces[surface]; tenantFacing {
		if opts.Tenant == "" {
			return Result{}, fmt.Errorf("dispatch %s %s %s: %w", surface, method, path, ErrTenantRequired)
		}
		enabled, err := d.enablement.IsEnabled(ctx, slug, opts.Tenant)
		if err != nil {
			return Result{}, err
		}
		if !enabled {
			return Result{}, fmt.Errorf("dispatch %s for tenant %s: %w", slug, opts.Tenant, ErrExtensionDisabled)
		}
	}

	route, params, err := d.resolve(surface, slug, method, path, opts.Tenant)
	if err != nil {
		return Result{}, err
	}

	if d.csrfRequired(surface, method, route.Metadata) {
		if d.csrf == nil {
			return Result{}, fmt.Errorf("dispatch %s %s %s: csrf validator not configured: %w",
				surface, method, path, ErrInvalidCSRFToken)
		}
		if err := d.csrf.Validate(ctx, opts.CSRFToken); err != nil {
			return Result{}, fmt.Errorf("dispatch %s %s %s: %w", surface, method, path, ErrInvalidCSRFToken)
		}
	}

	if err := d.authorizer.Authorize(ctx, route.Capability); err != nil {
		return Result{}, err
	}

	if d.sink != nil {
		d.sink.Record(audit.Event{
			Kind:      audit.KindRouteDispatch,
			Extension: slug,
			Surface:   surface,
			Method:    method,
			Path:      path,
			Tenant:    opts.Tenant,
			Actor:     opts.Actor,
		})
	}

	value, err := route.Handler.Serve(ctx, hooks.Request{
		Surface: surface,
		Method:  method,
		Path:    path,
		Params:  params,
		Tenant:  opts.Tenant,
		Actor:   opts.Actor,
		Body:    opts.Body,
	})
	if err != nil {
		return Result{}, err
	}

	body, err := renderBody(value)
	if err != nil {
		return Result{}, err
	}
	return Result{Body: body}, nil
}

// resolve finds exactly one matching route for the request.
func (d *Dispatcher) resolve(surface, slug, method, path, tenant string) (hooks.RegisteredRoute, map[string]string, error) {
	var (
		matched hooks.RegisteredRoute
		params  map[string]string
		count   int
	)

	for _, route := range d.routes.For(slug, tenant) {
		if route.Surface != surface || route.Method != method {
			continue
		}
		p, ok := MatchPath(route.Path, path)
		if !ok {
			continue
		}
		count++
		if count == 1 {
			matched = route
			params = p
		}
	}

	switch count {
	case 0:
		return hooks.RegisteredRoute{}, nil, fmt.Errorf("%s %s %s for extension %s: %w",
			surface, method, path, slug, ErrNoRoute)
	case 1:
		return matched, params, nil
	default:
		return hooks.RegisteredRoute{}, nil, exterrors.NewRuntimeError("dispatch", slug,
			fmt.Sprintf("%d routes match %s %s %s", count, surface, method, path), nil)
	}
}

// csrfRequired applies the per-surface CSRF policy: mutating methods only;
// admin and public always; api only when route metadata opts in; webhook
// never (signature auth lives elsewhere).
func (d *Dispatcher) csrfRequired(surface, method string, metadata map[string]any) bool {
	if _, mutating := mutatingMethods[method]; !mutating {
		return false
	}
	switch surface {
	case manifest.SurfaceAdmin, manifest.SurfacePublic:
		return true
	case manifest.SurfaceAPI:
		optIn, _ := metadata["csrf"].(bool)
		return optIn
	default:
		return false
	}
}

// renderBody applies the handler return contract: nil yields nothing, a
// string is written verbatim, maps and structs are JSON-serialized, and
// anything else yields an empty body.
func renderBody(value any) (string, error) {
	if value == nil {
		return "", nil
	}
	if s, ok := value.(string); ok {
		return s, nil
	}

	kind := reflect.Indirect(reflect.ValueOf(value)).Kind()
	if kind != reflect.Map && kind != reflect.Struct && kind != reflect.Slice {
		return "", nil
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return "", exterrors.NewRuntimeError("dispatch", "", "serialize handler result", err)
	}
	return string(encoded), nil
}
