package manifest

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultEntryPoint is the bootstrap key assumed when a manifest omits
// entry_point. It resolves against the host's bootstrap table, not the
// filesystem.
const DefaultEntryPoint = "bootstrap"

// SignatureStatusUnknown marks manifests shipped without a signature block.
// Unsigned extensions are accepted but flagged; trust policy is decided
// elsewhere.
const SignatureStatusUnknown = "unknown"

// Surfaces a route may be registered on.
const (
	SurfaceAdmin   = "admin"
	SurfacePublic  = "public"
	SurfaceAPI     = "api"
	SurfaceWebhook = "webhook"
)

// Surfaces is the fixed set of request-context categories.
var Surfaces = map[string]struct{}{
	SurfaceAdmin:   {},
	SurfacePublic:  {},
	SurfaceAPI:     {},
	SurfaceWebhook: {},
}

// Methods is the fixed set of HTTP methods a route may declare.
var Methods = map[string]struct{}{
	"GET": {}, "POST": {}, "PUT": {}, "PATCH": {}, "DELETE": {},
}

// PanelComponents is the fixed set of UI panel component kinds.
var PanelComponents = map[string]struct{}{
	"form": {}, "toggle": {}, "custom-view": {},
}

// Signature records who vouched for a manifest and with what outcome.
type Signature struct {
	Vendor *string `json:"vendor"`
	Status string  `json:"status"`
}

// Route is the normalized object form of a declared route. Compact
// "METHOD /path" strings normalize into this shape.
type Route struct {
	Surface    string         `json:"surface"`
	Method     string         `json:"method"`
	Path       string         `json:"path"`
	Capability string         `json:"capability,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Panel describes a UI contribution declared by an extension. Rendering is
// out of scope here; the runtime only normalizes and stores the declaration.
type Panel struct {
	PanelKey    string   `json:"id"`
	Title       string   `json:"title"`
	Component   string   `json:"component"`
	SchemaPath  string   `json:"schema_path,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	VisibleTo   []string `json:"visible_to"`
	OrgToggle   bool     `json:"org_toggle,omitempty"`
	SortOrder   int      `json:"sort_order,omitempty"`
}

// Hooks groups every integration point a manifest declares.
type Hooks struct {
	Events   []string  `json:"events,omitempty"`
	Commands []string  `json:"commands,omitempty"`
	Routes   RouteList `json:"routes,omitempty"`
	UIPanels []Panel   `json:"ui_panels,omitempty"`
}

// Manifest is the normalized, schema-checked form of an extension
// descriptor. Re-validating a marshaled Manifest is a fixed point.
type Manifest struct {
	Slug                string    `json:"slug" validate:"required,ext_slug"`
	Name                string    `json:"name" validate:"required"`
	DisplayName         string    `json:"display_name" validate:"required"`
	Version             string    `json:"version" validate:"required,semver"`
	Description         string    `json:"description,omitempty"`
	Author              string    `json:"author,omitempty"`
	HomepageURL         string    `json:"homepage_url,omitempty" validate:"omitempty,url"`
	EntryPoint          string    `json:"entry_point"`
	Permissions         []string  `json:"permissions"`
	Hooks               Hooks     `json:"hooks"`
	RequiresCoreVersion string    `json:"requires_core_version,omitempty" validate:"omitempty,semver"`
	Signature           Signature `json:"signature"`
}

// RouteList accepts two wire shapes for hooks.routes: a map of surface name
// to entries, or a flat list of already-normalized route objects. Each entry
// may be a compact "METHOD /path" string or an explicit object. Marshaling
// always emits the flat normalized list.
type RouteList []Route

// UnmarshalJSON decodes either wire shape into a flat list. Surface names
// and entry shapes are checked later by the validator; parsing only rejects
// input that has no usable structure at all.
func (rl *RouteList) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*rl = nil
		return nil
	}

	if strings.HasPrefix(trimmed, "[") {
		var routes []routeEntry
		if err := json.Unmarshal(data, &routes); err != nil {
			return err
		}
		out := make([]Route, 0, len(routes))
		for _, entry := range routes {
			out = append(out, entry.route)
		}
		*rl = out
		return nil
	}

	var bySurface map[string][]routeEntry
	if err := json.Unmarshal(data, &bySurface); err != nil {
		return fmt.Errorf("routes must be a list or a surface map: %w", err)
	}

	out := make([]Route, 0)
	// Deterministic surface order keeps normalization stable.
	for _, surface := range []string{SurfaceAdmin, SurfacePublic, SurfaceAPI, SurfaceWebhook} {
		for _, entry := range bySurface[surface] {
			route := entry.route
			route.Surface = surface
			out = append(out, route)
		}
	}
	for surface, entries := range bySurface {
		if _, known := Surfaces[surface]; known {
			continue
		}
		for _, entry := range entries {
			route := entry.route
			route.Surface = surface
			out = append(out, route)
		}
	}
	*rl = out
	return nil
}

// routeEntry is one declared route in either compact or object form.
type routeEntry struct {
	route Route
}

func (e *routeEntry) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))

	if strings.HasPrefix(trimmed, `"`) {
		var compact string
		if err := json.Unmarshal(data, &compact); err != nil {
			return err
		}
		method, path, _ := strings.Cut(strings.TrimSpace(compact), " ")
		e.route = Route{
			Method: strings.ToUpper(strings.TrimSpace(method)),
			Path:   strings.TrimSpace(path),
		}
		return nil
	}

	var route Route
	if err := json.Unmarshal(data, &route); err != nil {
		return fmt.Errorf("route entry must be a string or an object: %w", err)
	}
	route.Method = strings.ToUpper(route.Method)
	e.route = route
	return nil
}
