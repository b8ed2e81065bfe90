package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/lodgekit/extensions/internal/audit"
	"github.com/lodgekit/extensions/internal/events"
	"github.com/lodgekit/extensions/internal/hooks"
	"github.com/lodgekit/extensions/internal/logger"
	"github.com/lodgekit/extensions/internal/manifest"
	"github.com/lodgekit/extensions/internal/settings"
	"github.com/lodgekit/extensions/internal/store"
	exterrors "github.com/lodgekit/extensions/pkg/errors"
)

// ManifestFileName is the descriptor filename Discover looks for.
const ManifestFileName = "extension.json"

// Registry discovers manifests, validates them, and keeps the persisted
// extension metadata in sync. It owns the process-local hook state and the
// bootstrap table.
type Registry struct {
	root       string
	validator  *manifest.Validator
	store      *store.Store
	settings   *settings.Service
	bootstraps *Bootstraps
	bus        *events.Dispatcher
	routes     *hooks.Routes
	commands   *hooks.Commands
	log        *logger.Logger
	sink       audit.Sink

	manifests map[string]*manifest.Manifest
}

// Config carries the collaborators a Registry needs.
type Config struct {
	Root       string
	Validator  *manifest.Validator
	Store      *store.Store
	Settings   *settings.Service
	Bootstraps *Bootstraps
	Bus        *events.Dispatcher
	Routes     *hooks.Routes
	Commands   *hooks.Commands
	Logger     *logger.Logger
	Audit      audit.Sink
}

// New builds a Registry. Nil hook state defaults to fresh empty tables.
func New(cfg Config) *Registry {
	if cfg.Bootstraps == nil {
		cfg.Bootstraps = NewBootstraps()
	}
	if cfg.Bus == nil {
		cfg.Bus = events.NewDispatcher()
	}
	if cfg.Routes == nil {
		cfg.Routes = hooks.NewRoutes()
	}
	if cfg.Commands == nil {
		cfg.Commands = hooks.NewCommands()
	}

	return &Registry{
		root:       cfg.Root,
		validator:  cfg.Validator,
		store:      cfg.Store,
		settings:   cfg.Settings,
		bootstraps: cfg.Bootstraps,
		bus:        cfg.Bus,
		routes:     cfg.Routes,
		commands:   cfg.Commands,
		log:        cfg.Logger,
		sink:       cfg.Audit,
		manifests:  make(map[string]*manifest.Manifest),
	}
}

// Bus exposes the event dispatcher shared with bootstrap code.
func (r *Registry) Bus() *events.Dispatcher { return r.bus }

// Routes exposes the route accumulator the route dispatcher queries.
func (r *Registry) Routes() *hooks.Routes { return r.routes }

// Commands exposes the command table.
func (r *Registry) Commands() *hooks.Commands { return r.commands }

// Bootstraps exposes the bootstrap table for composition-time registration.
func (r *Registry) Bootstraps() *Bootstraps { return r.bootstraps }

// Manifest returns the validated manifest for a discovered slug.
func (r *Registry) Manifest(slug string) (*manifest.Manifest, bool) {
	m, ok := r.manifests[slug]
	return m, ok
}

type discovered struct {
	manifest *manifest.Manifest
	path     string
	checksum string
}

// Discover walks the plugin root for extension.json descriptors, validates
// every one, then upserts them all. Validation is all-or-nothing: a single
// invalid manifest aborts the whole batch before anything is written, so a
// sync never partially applies.
func (r *Registry) Discover(ctx context.Context) ([]string, error) {
	var batch []discovered
	seen := make(map[string]string)

	err := filepath.WalkDir(r.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() != ManifestFileName {
			return nil
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read manifest %s: %w", path, err)
		}

		m, verr := r.validator.Validate(raw, path)
		if verr != nil {
			return verr
		}

		if prev, dup := seen[m.Slug]; dup {
			return exterrors.NewManifestError(path, nil).
				Add("slug", fmt.Sprintf("duplicate slug %q, already declared by %s", m.Slug, prev))
		}
		seen[m.Slug] = path

		if _, ok := r.bootstraps.Lookup(m.Slug, m.EntryPoint); !ok {
			return exterrors.NewManifestError(path, nil).
				Add("entry_point", fmt.Sprintf("no bootstrap registered for %q entry point %q", m.Slug, m.EntryPoint))
		}

		sum := sha256.Sum256(raw)
		batch = append(batch, discovered{
			manifest: m,
			path:     path,
			checksum: hex.EncodeToString(sum[:]),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover extensions in %s: %w", r.root, err)
	}

	slugs := make([]string, 0, len(batch))
	for _, d := range batch {
		if err := r.upsert(ctx, d); err != nil {
			return nil, err
		}
		r.manifests[d.manifest.Slug] = d.manifest
		slugs = append(slugs, d.manifest.Slug)
		r.log.WithExtension(d.manifest.Slug, "").Debug("manifest synced")
	}

	if r.sink != nil {
		r.sink.Record(audit.Event{
			Kind:   audit.KindManifestSync,
			Detail: fmt.Sprintf("synced %d manifests", len(slugs)),
		})
	}
	return slugs, nil
}

func (r *Registry) upsert(ctx context.Context, d discovered) error {
	m := d.manifest

	vendor := ""
	if m.Signature.Vendor != nil {
		vendor = *m.Signature.Vendor
	}

	return r.store.UpsertExtension(ctx, store.ExtensionRecord{
		Slug:                m.Slug,
		Name:                m.Name,
		DisplayName:         m.DisplayName,
		Version:             m.Version,
		EntryPoint:          m.EntryPoint,
		ManifestPath:        d.path,
		ManifestChecksum:    d.checksum,
		SignatureStatus:     m.Signature.Status,
		SignatureVendor:     vendor,
		RequiresCoreVersion: m.RequiresCoreVersion,
	})
}

// Bootstrap runs the registered bootstrap routine of every extension whose
// persisted status is active, handing each one a facade that stamps its
// identity onto all hook registrations. Hook state is process-lifetime
// only, so this rebuilds listener and route tables from scratch on every
// call.
func (r *Registry) Bootstrap(ctx context.Context) error {
	records, err := r.store.ListExtensions(ctx)
	if err != nil {
		return err
	}

	for _, rec := range records {
		if rec.Status != store.StatusActive {
			continue
		}

		fn, ok := r.bootstraps.Lookup(rec.Slug, rec.EntryPoint)
		if !ok {
			return exterrors.NewRuntimeError("bootstrap", rec.Slug,
				fmt.Sprintf("no bootstrap registered for entry point %q", rec.EntryPoint), nil)
		}

		ec := &Context{
			ExtensionID: strconv.FormatInt(rec.ID, 10),
			Slug:        rec.Slug,
			Settings:    r.settings,
			Logger:      r.log.WithExtension(rec.Slug, ""),
			Config:      map[string]string{},
		}
		facade := hooks.NewRegistry(rec.Slug, "", r.bus, r.routes, r.commands)

		if err := fn(ctx, ec, facade); err != nil {
			return exterrors.NewRuntimeError("bootstrap", rec.Slug, "bootstrap failed", err)
		}
		r.log.WithExtension(rec.Slug, "").Info("extension bootstrapped")
	}
	return nil
}

// SetStatus updates the global lifecycle status of an extension.
func (r *Registry) SetStatus(ctx context.Context, slug, status string) error {
	return r.store.SetExtensionStatus(ctx, slug, status)
}

// Activate enables an extension for one tenant. The extension must exist
// globally; per-tenant enablement is a settings flag, so an extension can
// be installed everywhere yet enabled only for some tenants.
func (r *Registry) Activate(ctx context.Context, slug, tenant string) error {
	return r.setEnabled(ctx, slug, tenant, true)
}

// Deactivate disables an extension for one tenant. Listeners and routes
// already registered stay in place; enablement is enforced again at
// dispatch time.
func (r *Registry) Deactivate(ctx context.Context, slug, tenant string) error {
	return r.setEnabled(ctx, slug, tenant, false)
}

func (r *Registry) setEnabled(ctx context.Context, slug, tenant string, enabled bool) error {
	if _, err := r.store.GetExtension(ctx, slug); err != nil {
		return err
	}
	if err := r.settings.SetEnabled(ctx, slug, tenant, enabled); err != nil {
		return err
	}

	if r.sink != nil {
		kind := audit.KindExtensionActivated
		if !enabled {
			kind = audit.KindExtensionDisabled
		}
		r.sink.Record(audit.Event{Kind: kind, Extension: slug, Tenant: tenant})
	}
	return nil
}

// List returns every persisted extension row.
func (r *Registry) List(ctx context.Context) ([]store.ExtensionRecord, error) {
	return r.store.ListExtensions(ctx)
}

// RunCommand executes an extension-registered command by name.
func (r *Registry) RunCommand(ctx context.Context, name string, args []string) error {
	return r.commands.Run(ctx, name, args)
}
