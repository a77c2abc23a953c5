// Copyright (C) 2026 AeoPulse (oss@aeopulse.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package insights assembles the dashboard core: configuration, the
// two-tier report cache, the Google authorization manager, the typed API
// clients, the cached report service, and the webhook dispatcher.
//
// Host applications construct one Core per process and inject the pieces
// they own: the popup launcher (a browser window or embedded webview) and
// the project persistence collaborator.
package insights

import (
	"fmt"

	"github.com/aeopulse/aeopulse/pkg/logging"
	"github.com/aeopulse/aeopulse/services/insights/auth"
	"github.com/aeopulse/aeopulse/services/insights/cache"
	"github.com/aeopulse/aeopulse/services/insights/config"
	"github.com/aeopulse/aeopulse/services/insights/ga4"
	"github.com/aeopulse/aeopulse/services/insights/gsc"
	"github.com/aeopulse/aeopulse/services/insights/project"
	"github.com/aeopulse/aeopulse/services/insights/reports"
	"github.com/aeopulse/aeopulse/services/insights/storage/badgerstore"
	"github.com/aeopulse/aeopulse/services/insights/webhook"
)

// Core wires the insights components together for one process.
//
// Thread Safety: Core and all its exposed components are safe for
// concurrent use.
type Core struct {
	Config   config.Config
	Auth     *auth.Manager
	Search   *gsc.Client
	Traffic  *ga4.Client
	Reports  *reports.Service
	Webhooks *webhook.Dispatcher

	logger *logging.Logger
	kv     *badgerstore.KV
}

// CoreOption configures Core assembly.
type CoreOption func(*coreOptions)

type coreOptions struct {
	logger *logging.Logger
}

// WithCoreLogger overrides the logger built from the configuration.
func WithCoreLogger(l *logging.Logger) CoreOption {
	return func(o *coreOptions) {
		o.logger = l
	}
}

// New assembles a Core from configuration.
//
// Description:
//
//	With a cache directory configured, a BadgerDB store is opened there and
//	backs both the durable cache tier and persisted grants; without one the
//	cache is memory-only and grants live in process memory. The Google
//	client ID may be absent: everything except Connect works, and Connect
//	fails with config.ErrNotConfigured.
//
// Inputs:
//
//	cfg - Environment configuration, normally from config.Load.
//	projects - Project persistence collaborator for webhook status writes.
//	launcher - Host-supplied authorization popup opener.
//
// Outputs:
//
//	*Core - The assembled core. Caller must Close it on shutdown.
//	error - Non-nil when the durable store cannot be opened.
func New(cfg config.Config, projects project.Store, launcher auth.Launcher, opts ...CoreOption) (*Core, error) {
	var o coreOptions
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = logging.New(logging.Config{
			LogDir:  cfg.LogDir,
			Service: "insights",
			JSON:    true,
		})
	}

	core := &Core{Config: cfg, logger: logger}

	var durable cache.DurableStore
	var grants auth.GrantStore
	if cfg.CacheDir != "" {
		kv, err := badgerstore.Open(badgerstore.DefaultConfig(cfg.CacheDir))
		if err != nil {
			return nil, fmt.Errorf("open durable store: %w", err)
		}
		core.kv = kv
		durable = kv
		grants = badgerstore.NewGrantStore(kv)
	} else {
		grants = auth.NewMemoryGrantStore()
	}

	cacheOpts := []cache.Option{cache.WithLogger(logger.Slog())}
	if cfg.MaxCacheEntries > 0 {
		cacheOpts = append(cacheOpts, cache.WithMaxDurableEntries(cfg.MaxCacheEntries))
	}
	store := cache.New(reports.DefaultNamespace, durable, cacheOpts...)

	core.Auth = auth.NewManager(cfg, grants, launcher, auth.NewGoogleProvider(),
		auth.WithManagerLogger(logger.Slog()))
	core.Search = gsc.NewClient()
	core.Traffic = ga4.NewClient()
	core.Reports = reports.NewService(store, core.Search, core.Traffic, core.Auth,
		reports.WithLogger(logger.Slog()))
	core.Webhooks = webhook.NewDispatcher(projects,
		webhook.WithLogger(logger.Slog()))

	return core, nil
}

// Close drains background work and releases the durable store.
func (c *Core) Close() error {
	c.Reports.Wait()
	c.Webhooks.Wait()

	var err error
	if c.kv != nil {
		err = c.kv.Close()
	}
	if cerr := c.logger.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
