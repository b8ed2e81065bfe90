package main

import (
	"github.com/lodgekit/extensions/internal/extensions/housekeeping"
	"github.com/lodgekit/extensions/internal/registry"
)

// registerExtensions wires every extension module compiled into this host
// binary. A manifest's entry_point resolves against this table at discovery
// time, so a descriptor without a matching registration fails the sync.
func registerExtensions(b *registry.Bootstraps) error {
	return housekeeping.Register(b)
}
