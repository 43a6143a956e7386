// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package manager

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sigil-dev/plugctl/internal/pack"
	"github.com/sigil-dev/plugctl/internal/source"
	"github.com/sigil-dev/plugctl/internal/status"
	plugerr "github.com/sigil-dev/plugctl/pkg/errors"
	"github.com/sigil-dev/plugctl/pkg/plugin"
	"github.com/spf13/afero"
)

// InstallOptions tunes a single installation.
type InstallOptions struct {
	// Force reinstalls even when the plugin is already installed.
	Force bool
	// Version pins an npm version; it overrides a version in the source.
	Version string
	// RegistryURL selects a catalog other than the default.
	RegistryURL string
}

// Install acquires the plugin named by raw and registers it. It never
// returns an error: failures are captured in the returned record's Error so
// batch installs can carry on with the remaining sources.
func (m *Manager) Install(ctx context.Context, raw string, opts InstallOptions) *status.Record {
	installID := uuid.NewString()
	loc := m.ParseSource(raw)
	log := m.logger.With("install_id", installID, "source", loc.String())
	log.Info("installing plugin", "type", loc.Type)

	rec, err := m.install(ctx, loc, opts, installID, log)
	if err != nil {
		log.Warn("plugin install failed", "error", err, "code", plugerr.CodeOf(err))
		failed := &status.Record{ID: guessID(loc), Source: loc, Error: err.Error()}
		if id, ok := plugerr.FieldsOf(err)["plugin"].(string); ok && id != "" {
			failed.ID = id
		}
		return failed
	}
	log.Info("plugin installed", "plugin", rec.ID, "version", rec.Version)
	return rec
}

func (m *Manager) install(ctx context.Context, loc source.Locator, opts InstallOptions, installID string, log *slog.Logger) (*status.Record, error) {
	switch loc.Type {
	case source.TypeNPM:
		return m.installNPM(ctx, loc, opts, installID, log)
	case source.TypeLocal:
		return m.installLocal(ctx, loc, opts, installID)
	case source.TypeGit, source.TypeURL:
		return nil, plugerr.New(plugerr.CodeManagerSourceNotImplemented,
			fmt.Sprintf("installing from %s sources is not implemented", loc.Type),
			plugerr.FieldSource(loc.String()))
	default:
		return nil, plugerr.New(plugerr.CodeManagerSourceUnsupported,
			fmt.Sprintf("unsupported source type %q", loc.Type), plugerr.FieldSource(loc.String()))
	}
}

func (m *Manager) installNPM(ctx context.Context, loc source.Locator, opts InstallOptions, installID string, log *slog.Logger) (*status.Record, error) {
	version := loc.Version
	if opts.Version != "" {
		version = opts.Version
	}

	// A pinned version that is already installed needs no catalog lookup.
	if version != "" && !opts.Force {
		rec, err := m.status.Get(ctx, guessID(loc))
		if err == nil && rec.Installed && rec.Version == version &&
			rec.Source.Type == source.TypeNPM && path.Base(rec.Source.Package) == path.Base(loc.Package) {
			log.Debug("pinned version already installed", "plugin", rec.ID, "version", version)
			return rec, nil
		}
	}

	client, err := m.clientFor(opts.RegistryURL)
	if err != nil {
		return nil, err
	}

	info, err := client.GetPlugin(ctx, loc.Package, version)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, plugerr.New(plugerr.CodeManagerInstallNotFound,
			fmt.Sprintf("plugin %q not found in catalog", loc.String()),
			plugerr.FieldSource(loc.String()), plugerr.FieldVersion(version))
	}

	id := path.Base(info.ID)
	if prior, done, err := m.checkInstalled(ctx, id, info.Version, opts.Force); done || err != nil {
		return prior, err
	}

	pkg, err := client.Download(ctx, loc.Package, info.Version)
	if err != nil {
		return nil, err
	}
	if pkg.Descriptor.ID != id {
		return nil, plugerr.New(plugerr.CodeCatalogResponseInvalid,
			fmt.Sprintf("catalog package %s carries plugin id %q", info.Name, pkg.Descriptor.ID),
			plugerr.FieldPlugin(id))
	}
	log.Debug("package downloaded", "plugin", id, "version", info.Version, "checksum", pkg.Manifest.Checksum)

	resolved := source.Locator{Type: source.TypeNPM, Package: loc.Package, Version: info.Version}
	return m.installPackage(ctx, pkg, resolved, installID)
}

func (m *Manager) installLocal(ctx context.Context, loc source.Locator, opts InstallOptions, installID string) (*status.Record, error) {
	p, err := expandPath(loc.Path)
	if err != nil {
		return nil, plugerr.Wrap(err, plugerr.CodeManagerStoreReadFailure, "resolving "+loc.Path, plugerr.FieldPath(loc.Path))
	}
	resolved := source.Locator{Type: source.TypeLocal, Path: p}

	if isArchive(p) {
		raw, err := afero.ReadFile(m.fs, p)
		if err != nil {
			return nil, plugerr.Wrap(err, plugerr.CodeManagerStoreReadFailure, "reading archive", plugerr.FieldPath(p))
		}
		files, err := pack.DecodeTarball(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		delete(files, "package.json")
		pkg, err := pack.FromFiles(files)
		if err != nil {
			return nil, err
		}
		if prior, done, err := m.checkInstalled(ctx, pkg.Descriptor.ID, pkg.Descriptor.Version, opts.Force); done || err != nil {
			return prior, err
		}
		return m.installPackage(ctx, pkg, resolved, installID)
	}

	b, err := m.loader.Load(ctx, p)
	if err != nil {
		return nil, err
	}
	id := b.ID()
	if prior, done, err := m.checkInstalled(ctx, id, b.Descriptor.Version, opts.Force); done || err != nil {
		return prior, err
	}
	if err := m.register(b); err != nil {
		return nil, err
	}
	return m.persistInstalled(ctx, b, resolved)
}

// checkInstalled applies the reinstall policy. done reports that the prior
// record already satisfies the request and should be returned unchanged.
func (m *Manager) checkInstalled(ctx context.Context, id, version string, force bool) (prior *status.Record, done bool, err error) {
	rec, err := m.status.Get(ctx, id)
	if plugerr.IsNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if !rec.Installed || force {
		return nil, false, nil
	}
	if rec.Version == version {
		return rec, true, nil
	}
	return nil, false, plugerr.New(plugerr.CodeManagerInstallAlreadyInstalled,
		fmt.Sprintf("plugin %q is installed at %s; use force to install %s", id, rec.Version, version),
		plugerr.FieldPlugin(id), plugerr.FieldVersion(version))
}

// installPackage writes pkg into the store, registers it and persists a
// record. An existing installation is moved aside and restored if the new
// bundle cannot be loaded or registered.
func (m *Manager) installPackage(ctx context.Context, pkg *pack.Package, loc source.Locator, installID string) (*status.Record, error) {
	id := pkg.Descriptor.ID
	if !plugin.ValidID(id) {
		return nil, plugerr.New(plugerr.CodePluginDescriptorInvalid,
			fmt.Sprintf("package carries invalid plugin id %q", id), plugerr.FieldPlugin(id))
	}

	dir := m.pluginDir(id)
	staging := filepath.Join(m.storeDir, ".staging-"+installID)
	if err := m.writeFiles(staging, pkg.Files, loc); err != nil {
		_ = m.fs.RemoveAll(staging)
		return nil, err
	}

	backup := ""
	if exists, _ := afero.DirExists(m.fs, dir); exists {
		backup = filepath.Join(m.storeDir, ".backup-"+installID)
		if err := m.fs.Rename(dir, backup); err != nil {
			_ = m.fs.RemoveAll(staging)
			return nil, plugerr.Wrap(err, plugerr.CodeManagerStoreWriteFailure, "moving previous installation aside", plugerr.FieldPath(dir))
		}
	}
	restore := func() {
		_ = m.fs.RemoveAll(dir)
		if backup != "" {
			_ = m.fs.Rename(backup, dir)
		}
	}

	if err := m.fs.Rename(staging, dir); err != nil {
		_ = m.fs.RemoveAll(staging)
		restore()
		return nil, plugerr.Wrap(err, plugerr.CodeManagerStoreWriteFailure, "moving package into store", plugerr.FieldPath(dir))
	}

	b, err := m.loader.Load(ctx, dir)
	if err == nil {
		err = m.register(b)
	}
	if err != nil {
		restore()
		return nil, err
	}
	if backup != "" {
		_ = m.fs.RemoveAll(backup)
	}

	return m.persistInstalled(ctx, b, loc)
}

// register adds b to the registry, or replaces the bundle already registered
// under its id.
func (m *Manager) register(b *plugin.Bundle) error {
	if m.registry.Has(b.ID()) {
		return m.registry.Replace(b)
	}
	return m.registry.Register(b)
}

func (m *Manager) persistInstalled(ctx context.Context, b *plugin.Bundle, loc source.Locator) (*status.Record, error) {
	rec := &status.Record{
		ID:          b.ID(),
		Installed:   true,
		Enabled:     m.registry.IsEnabled(b.ID()),
		Version:     b.Descriptor.Version,
		Source:      loc,
		InstalledAt: m.now().UTC(),
	}
	if err := m.status.Put(ctx, rec); err != nil {
		return nil, plugerr.Wrap(err, plugerr.CodeManagerStoreWriteFailure, "persisting installation record", plugerr.FieldPlugin(rec.ID))
	}
	return rec, nil
}

// writeFiles writes a file set and the source sidecar into dir.
func (m *Manager) writeFiles(dir string, files map[string][]byte, loc source.Locator) error {
	if err := m.fs.MkdirAll(dir, 0o755); err != nil {
		return plugerr.Wrap(err, plugerr.CodeManagerStoreWriteFailure, "creating plugin directory", plugerr.FieldPath(dir))
	}

	for _, rel := range pack.Paths(files) {
		cleaned := path.Clean(rel)
		if path.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, "../") || cleaned == SourceFile {
			return plugerr.New(plugerr.CodeManagerStoreWriteFailure,
				fmt.Sprintf("refusing to write package file %q", rel), plugerr.FieldPath(rel))
		}
		target := filepath.Join(dir, filepath.FromSlash(cleaned))
		if err := m.fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return plugerr.Wrap(err, plugerr.CodeManagerStoreWriteFailure, "creating directory", plugerr.FieldPath(target))
		}
		if err := afero.WriteFile(m.fs, target, files[rel], 0o644); err != nil {
			return plugerr.Wrap(err, plugerr.CodeManagerStoreWriteFailure, "writing file", plugerr.FieldPath(target))
		}
	}

	sidecar, err := json.MarshalIndent(loc, "", "  ")
	if err != nil {
		return plugerr.Wrap(err, plugerr.CodeManagerStoreWriteFailure, "encoding source sidecar")
	}
	if err := afero.WriteFile(m.fs, filepath.Join(dir, SourceFile), sidecar, 0o644); err != nil {
		return plugerr.Wrap(err, plugerr.CodeManagerStoreWriteFailure, "writing source sidecar", plugerr.FieldPath(dir))
	}
	return nil
}

// readSidecar returns the recorded source of a store directory, or the zero
// locator when there is none.
func (m *Manager) readSidecar(dir string) source.Locator {
	raw, err := afero.ReadFile(m.fs, filepath.Join(dir, SourceFile))
	if err != nil {
		if !os.IsNotExist(err) {
			m.logger.Debug("source sidecar unreadable", "path", dir, "error", err)
		}
		return source.Locator{}
	}
	var loc source.Locator
	if err := json.Unmarshal(raw, &loc); err != nil {
		m.logger.Debug("source sidecar invalid", "path", dir, "error", err)
		return source.Locator{}
	}
	return loc
}

// Uninstall unregisters id, removes its store directory and deletes its
// record. It reports false, and logs the reason, when any step fails; a
// plugin other plugins still depend on is never removed.
func (m *Manager) Uninstall(ctx context.Context, id string) bool {
	b, regErr := m.registry.Get(id)
	_, recErr := m.status.Get(ctx, id)
	if regErr != nil && recErr != nil {
		m.logger.Warn("uninstall of unknown plugin", "plugin", id)
		return false
	}

	if regErr == nil {
		if dependents := m.registry.Dependents(id); len(dependents) > 0 {
			m.logger.Warn("plugin uninstall refused", "plugin", id, "dependents", dependents)
			return false
		}
	}

	dir := m.pluginDir(id)
	if b != nil && b.Dir != "" {
		dir = b.Dir
	}
	if m.storeResident(dir) {
		if err := m.fs.RemoveAll(dir); err != nil {
			m.logger.Warn("removing plugin directory failed", "plugin", id, "path", dir, "error", err)
			return false
		}
	}

	if regErr == nil {
		if err := m.registry.Unregister(id); err != nil {
			m.logger.Warn("plugin uninstall refused", "plugin", id, "error", err)
			return false
		}
	}

	if err := m.status.Delete(ctx, id); err != nil && !plugerr.IsNotFound(err) {
		m.logger.Warn("deleting installation record failed", "plugin", id, "error", err)
		return false
	}

	m.logger.Info("plugin uninstalled", "plugin", id)
	return true
}

// guessID derives a plausible plugin id for a failed install's record.
func guessID(loc source.Locator) string {
	switch loc.Type {
	case source.TypeNPM:
		return path.Base(loc.Package)
	case source.TypeLocal:
		return filepath.Base(loc.Path)
	default:
		return strings.TrimSuffix(path.Base(loc.URL), ".git")
	}
}
