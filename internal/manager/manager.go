// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package manager resolves, acquires and persists plugin installations and
// feeds the resulting bundles to the registry.
package manager

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sigil-dev/plugctl/internal/catalog"
	"github.com/sigil-dev/plugctl/internal/loader"
	"github.com/sigil-dev/plugctl/internal/pack"
	"github.com/sigil-dev/plugctl/internal/registry"
	"github.com/sigil-dev/plugctl/internal/source"
	"github.com/sigil-dev/plugctl/internal/status"
	plugerr "github.com/sigil-dev/plugctl/pkg/errors"
	"github.com/sigil-dev/plugctl/pkg/plugin"
	"github.com/spf13/afero"
)

// SourceFile is the sidecar recording where a store-resident plugin came from.
const SourceFile = ".source.json"

// ClientFactory builds a catalog client for a registry URL.
type ClientFactory func(registryURL string) catalog.Client

// Config wires a Manager to its collaborators. Registry, Loader and Status
// are required.
type Config struct {
	// StoreDir is the plugin store root; each store-resident plugin lives
	// in StoreDir/<id>.
	StoreDir string
	Fs       afero.Fs
	Registry *registry.Registry
	Loader   loader.BundleLoader
	Status   status.Store
	// Catalog is the default catalog client.
	Catalog catalog.Client
	// Clients builds clients for per-call registry URLs.
	Clients ClientFactory
	Logger  *slog.Logger
	Now     func() time.Time
}

// Manager orchestrates discovery, installation and packaging.
//
// Manager performs no locking, like the Registry it drives. Two concurrent
// installs of the same id write to the same store directory; callers must
// serialize mutating calls.
type Manager struct {
	storeDir string
	fs       afero.Fs
	registry *registry.Registry
	loader   loader.BundleLoader
	status   status.Store
	catalog  catalog.Client
	clients  ClientFactory
	cache    map[string]catalog.Client
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Manager.
func New(cfg Config) (*Manager, error) {
	if cfg.Registry == nil || cfg.Loader == nil || cfg.Status == nil {
		return nil, plugerr.New(plugerr.CodeManagerConfigInvalid, "manager requires a registry, a loader and a status store")
	}
	if cfg.StoreDir == "" {
		return nil, plugerr.New(plugerr.CodeManagerConfigInvalid, "manager requires a store directory")
	}
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	storeDir, err := filepath.Abs(cfg.StoreDir)
	if err != nil {
		return nil, plugerr.Wrap(err, plugerr.CodeManagerConfigInvalid, "resolving store directory", plugerr.FieldPath(cfg.StoreDir))
	}

	return &Manager{
		storeDir: storeDir,
		fs:       cfg.Fs,
		registry: cfg.Registry,
		loader:   cfg.Loader,
		status:   cfg.Status,
		catalog:  cfg.Catalog,
		clients:  cfg.Clients,
		cache:    make(map[string]catalog.Client),
		logger:   cfg.Logger,
		now:      cfg.Now,
	}, nil
}

// Registry returns the registry the manager feeds.
func (m *Manager) Registry() *registry.Registry {
	return m.registry
}

// StoreDir returns the absolute plugin store root.
func (m *Manager) StoreDir() string {
	return m.storeDir
}

// ParseSource classifies a user-supplied source string.
func (m *Manager) ParseSource(raw string) source.Locator {
	return source.Parse(raw)
}

// Checksum returns the integrity checksum of a file set. It is not
// cryptographically secure.
func (m *Manager) Checksum(files map[string][]byte) string {
	return pack.Checksum(files)
}

// Records returns every installation record sorted by id.
func (m *Manager) Records(ctx context.Context) ([]*status.Record, error) {
	return m.status.List(ctx)
}

// Record returns the installation record for id.
func (m *Manager) Record(ctx context.Context, id string) (*status.Record, error) {
	return m.status.Get(ctx, id)
}

// Enable enables id in the registry and persists the flag.
func (m *Manager) Enable(ctx context.Context, id string) error {
	if err := m.registry.Enable(id); err != nil {
		return err
	}
	return m.persistEnabled(ctx, id, true)
}

// Disable disables id in the registry and persists the flag.
func (m *Manager) Disable(ctx context.Context, id string) error {
	if err := m.registry.Disable(id); err != nil {
		return err
	}
	return m.persistEnabled(ctx, id, false)
}

func (m *Manager) persistEnabled(ctx context.Context, id string, enabled bool) error {
	rec, err := m.status.Get(ctx, id)
	if plugerr.IsNotFound(err) {
		rec = m.adoptRecord(id)
	} else if err != nil {
		return err
	}
	rec.Enabled = enabled
	if err := m.status.Put(ctx, rec); err != nil {
		return err
	}
	m.logger.Info("plugin state persisted", "plugin", id, "enabled", enabled)
	return nil
}

// adoptRecord builds a record for a registered plugin that has none, such as
// a directory copied into the store by hand.
func (m *Manager) adoptRecord(id string) *status.Record {
	b, err := m.registry.Get(id)
	if err != nil {
		return &status.Record{ID: id, Installed: true}
	}
	return m.recordFor(b)
}

func (m *Manager) recordFor(b *plugin.Bundle) *status.Record {
	rec := &status.Record{ID: b.ID(), Installed: true, Version: b.Descriptor.Version}
	if b.Dir != "" {
		rec.Source = m.readSidecar(b.Dir)
		if rec.Source.IsZero() {
			rec.Source = source.Locator{Type: source.TypeLocal, Path: b.Dir}
		}
	}
	return rec
}

// clientFor returns the catalog client for registryURL, or the default
// client when it is empty.
func (m *Manager) clientFor(registryURL string) (catalog.Client, error) {
	if registryURL == "" {
		if m.catalog == nil {
			return nil, plugerr.New(plugerr.CodeManagerConfigInvalid, "no catalog client configured")
		}
		return m.catalog, nil
	}
	if c, ok := m.cache[registryURL]; ok {
		return c, nil
	}
	if m.clients == nil {
		return nil, plugerr.New(plugerr.CodeManagerConfigInvalid,
			fmt.Sprintf("cannot reach registry %s: no client factory configured", registryURL))
	}
	c := m.clients(registryURL)
	m.cache[registryURL] = c
	return c, nil
}

// pluginDir returns the store directory for id.
func (m *Manager) pluginDir(id string) string {
	return filepath.Join(m.storeDir, id)
}

// storeResident reports whether dir is a direct child of the store root.
func (m *Manager) storeResident(dir string) bool {
	return dir != "" && filepath.Dir(filepath.Clean(dir)) == m.storeDir
}

// expandPath resolves "~/" and relative paths.
func expandPath(p string) (string, error) {
	if rest, ok := strings.CutPrefix(p, "~/"); ok {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		p = filepath.Join(home, rest)
	}
	return filepath.Abs(p)
}
