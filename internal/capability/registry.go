package capability

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// RoleMasterAdmin is granted every capability whose role list is missing or
// unusable. The platform always has at least one master admin.
const RoleMasterAdmin = "master_admin"

// KnownRoles is the fixed set of actor roles the platform recognises.
var KnownRoles = map[string]struct{}{
	"master_admin": {},
	"org_admin":    {},
	"staff":        {},
	"member":       {},
}

// Registry is a static map of capability name to the roles allowed to
// exercise it. It is loaded once from configuration and never mutated at
// request time.
type Registry struct {
	capabilities map[string][]string
}

// configFile mirrors the on-disk YAML shape.
type configFile struct {
	Capabilities map[string][]string `yaml:"capabilities"`
}

// Load builds a Registry from a capability→roles map. A capability declared
// with no roles, or with a role list containing only unknown names, defaults
// to master_admin only. A declared empty list is kept as-is: that capability
// is open to any authenticated actor.
func Load(capabilities map[string][]string) *Registry {
	reg := &Registry{capabilities: make(map[string][]string, len(capabilities))}

	for name, roles := range capabilities {
		if roles == nil {
			reg.capabilities[name] = []string{RoleMasterAdmin}
			continue
		}

		valid := make([]string, 0, len(roles))
		for _, role := range roles {
			if _, ok := KnownRoles[role]; ok {
				valid = append(valid, role)
			}
		}
		if len(roles) > 0 && len(valid) == 0 {
			// Every listed role was unknown; fall back to the safest set.
			valid = []string{RoleMasterAdmin}
		}
		sort.Strings(valid)
		reg.capabilities[name] = valid
	}

	return reg
}

// LoadFile reads capability configuration from a YAML file.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read capability config: %w", err)
	}

	var file configFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse capability config %s: %w", path, err)
	}

	return Load(file.Capabilities), nil
}

// Has reports whether a capability is declared.
func (r *Registry) Has(name string) bool {
	if r == nil {
		return false
	}
	_, ok := r.capabilities[name]
	return ok
}

// Roles returns the role set for a capability and whether it exists. The
// returned slice must not be mutated.
func (r *Registry) Roles(name string) ([]string, bool) {
	if r == nil {
		return nil, false
	}
	roles, ok := r.capabilities[name]
	return roles, ok
}

// Names returns all declared capability names in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.capabilities))
	for name := range r.capabilities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
