package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/lodgekit/extensions/internal/audit"
	"github.com/lodgekit/extensions/internal/capability"
	"github.com/lodgekit/extensions/internal/config"
	"github.com/lodgekit/extensions/internal/logger"
	"github.com/lodgekit/extensions/internal/manifest"
	"github.com/lodgekit/extensions/internal/registry"
	"github.com/lodgekit/extensions/internal/settings"
	"github.com/lodgekit/extensions/internal/store"
)

// appContext is the composition root shared by every subcommand.
type appContext struct {
	cfg      config.Config
	log      *logger.Logger
	store    *store.Store
	settings *settings.Service
	registry *registry.Registry
}

func newAppContext(flags *rootFlags) (*appContext, error) {
	cfg, err := config.Parse()
	if err != nil {
		return nil, err
	}

	level := cfg.LogLevel
	if flags.verbose {
		level = "debug"
	}
	log, err := logger.New(logger.Options{Level: level, HumanReadable: cfg.HumanLogs})
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	caps, err := capability.LoadFile(cfg.CapabilityFile)
	if errors.Is(err, fs.ErrNotExist) {
		log.Warn("capability file not found, all capabilities resolve to master_admin")
		caps = capability.Load(nil)
	} else if err != nil {
		_ = st.Close()
		return nil, err
	}

	var sealer *settings.Sealer
	if key, err := cfg.SettingsKeyBytes(); err != nil {
		_ = st.Close()
		return nil, err
	} else if key != nil {
		sealer, err = settings.NewSealer(key)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
	}

	svc := settings.NewService(st, sealer)
	reg := registry.New(registry.Config{
		Root:      cfg.PluginRoot,
		Validator: manifest.NewValidator(caps),
		Store:     st,
		Settings:  svc,
		Logger:    log,
		Audit:     audit.NewLogSink(log),
	})

	if err := registerExtensions(reg.Bootstraps()); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("register built-in extensions: %w", err)
	}

	return &appContext{
		cfg:      cfg,
		log:      log,
		store:    st,
		settings: svc,
		registry: reg,
	}, nil
}

func (a *appContext) Close() error {
	if a == nil {
		return nil
	}
	return a.store.Close()
}
