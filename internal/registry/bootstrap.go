package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/lodgekit/extensions/internal/hooks"
	"github.com/lodgekit/extensions/internal/logger"
	"github.com/lodgekit/extensions/internal/settings"
)

// Context is what an extension gets handed when its bootstrap runs. It is
// the extension's only view of the host: scoped settings access, a scoped
// logger, and the static config block from its manifest row.
type Context struct {
	ExtensionID string
	Slug        string
	Tenant      string
	Settings    *settings.Service
	Logger      *logger.Logger
	Config      map[string]string
}

// Bootstrap is an extension's entry routine. It registers listeners, routes
// and commands through the facade and must be safe to run more than once
// against fresh hook tables.
type Bootstrap func(ctx context.Context, ec *Context, h *hooks.Registry) error

// Bootstraps maps slug plus entry-point name to a bootstrap routine. The
// entry point named in a manifest is a lookup key into this table, not a
// file path; code gets here at composition time, never by loading from disk.
type Bootstraps struct {
	mu    sync.RWMutex
	table map[string]Bootstrap
}

// NewBootstraps returns an empty bootstrap table.
func NewBootstraps() *Bootstraps {
	return &Bootstraps{table: make(map[string]Bootstrap)}
}

func bootstrapKey(slug, entryPoint string) string {
	return slug + "#" + entryPoint
}

// Register adds a bootstrap for a slug and entry point. Registering the
// same pair twice is a wiring bug and fails loudly.
func (b *Bootstraps) Register(slug, entryPoint string, fn Bootstrap) error {
	if fn == nil {
		return fmt.Errorf("register bootstrap %s#%s: nil bootstrap", slug, entryPoint)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	key := bootstrapKey(slug, entryPoint)
	if _, exists := b.table[key]; exists {
		return fmt.Errorf("register bootstrap %s: already registered", key)
	}
	b.table[key] = fn
	return nil
}

// Lookup returns the bootstrap registered for a slug and entry point.
func (b *Bootstraps) Lookup(slug, entryPoint string) (Bootstrap, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	fn, ok := b.table[bootstrapKey(slug, entryPoint)]
	return fn, ok
}

// Slugs lists the distinct slugs with at least one registered bootstrap,
// sorted for stable output.
func (b *Bootstraps) Slugs() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	seen := make(map[string]struct{})
	for key := range b.table {
		for i := 0; i < len(key); i++ {
			if key[i] == '#' {
				seen[key[:i]] = struct{}{}
				break
			}
		}
	}
	slugs := make([]string, 0, len(seen))
	for slug := range seen {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	return slugs
}
