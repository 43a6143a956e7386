// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package manager

import (
	"context"
	"os"
	"slices"
	"strings"

	"github.com/sigil-dev/plugctl/internal/source"
	"github.com/sigil-dev/plugctl/internal/status"
	plugerr "github.com/sigil-dev/plugctl/pkg/errors"
	"github.com/sigil-dev/plugctl/pkg/plugin"
	"github.com/spf13/afero"
)

// Discover loads every plugin in the store, plus local plugins recorded as
// installed from outside it, and registers them in dependency order.
// Directories that do not hold a loadable bundle are skipped with a warning.
// Plugins whose record says enabled are then re-enabled.
//
// The returned error reports only failures to read the store or the status
// store; per-plugin failures are logged and kept in each record's Error.
func (m *Manager) Discover(ctx context.Context) error {
	records, err := m.status.List(ctx)
	if err != nil {
		return err
	}
	byID := make(map[string]*status.Record, len(records))
	for _, rec := range records {
		byID[rec.ID] = rec
	}

	dirs, err := m.candidateDirs(records)
	if err != nil {
		return err
	}

	found := make(map[string]*plugin.Bundle)
	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			return err
		}
		b, err := m.loader.Load(ctx, dir)
		if err != nil {
			m.logger.Warn("skipping plugin directory", "path", dir, "error", err, "code", plugerr.CodeOf(err))
			continue
		}
		id := b.ID()
		if m.registry.Has(id) {
			m.logger.Debug("plugin already registered", "plugin", id, "path", dir)
			continue
		}
		if prev, dup := found[id]; dup {
			m.logger.Warn("duplicate plugin id in store", "plugin", id, "path", dir, "kept", prev.Dir)
			continue
		}
		found[id] = b
	}

	failed := settle(sortedKeys(found), func(id string) error {
		return m.registry.Register(found[id])
	})

	for _, id := range sortedKeys(found) {
		rec := byID[id]
		if rec == nil {
			rec = m.recordFor(found[id])
		}
		rec.Error = ""
		if err := failed[id]; err != nil {
			m.logger.Warn("plugin registration failed", "plugin", id, "error", err, "code", plugerr.CodeOf(err))
			rec.Error = err.Error()
		}
		if rec.Version == "" {
			rec.Version = found[id].Descriptor.Version
		}
		byID[id] = rec
		if err := m.status.Put(ctx, rec); err != nil {
			return err
		}
	}

	m.restoreEnabled(ctx, byID)
	m.logger.Info("plugin discovery complete", "discovered", len(found), "failed", len(failed))
	return nil
}

// candidateDirs lists the store's plugin directories followed by the
// directories of local installs that live outside the store.
func (m *Manager) candidateDirs(records []*status.Record) ([]string, error) {
	if err := m.fs.MkdirAll(m.storeDir, 0o755); err != nil {
		return nil, plugerr.Wrap(err, plugerr.CodeManagerStoreReadFailure, "creating plugin store", plugerr.FieldPath(m.storeDir))
	}
	entries, err := afero.ReadDir(m.fs, m.storeDir)
	if err != nil {
		return nil, plugerr.Wrap(err, plugerr.CodeManagerStoreReadFailure, "reading plugin store", plugerr.FieldPath(m.storeDir))
	}

	var dirs []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		dirs = append(dirs, m.pluginDir(e.Name()))
	}

	for _, rec := range records {
		if !rec.Installed || rec.Source.Type != source.TypeLocal {
			continue
		}
		p := rec.Source.Path
		if p == "" || isArchive(p) || m.storeResident(p) {
			continue
		}
		if _, err := m.fs.Stat(p); err != nil {
			if os.IsNotExist(err) {
				m.logger.Warn("local plugin directory is gone", "plugin", rec.ID, "path", p)
			}
			continue
		}
		dirs = append(dirs, p)
	}
	return dirs, nil
}

// restoreEnabled brings the registry's enabled set in line with the
// persisted records. Enables are applied dependencies first and disables
// dependents first.
func (m *Manager) restoreEnabled(ctx context.Context, records map[string]*status.Record) {
	var enable, disable []string
	for _, id := range sortedKeys(records) {
		rec := records[id]
		if !m.registry.Has(id) {
			continue
		}
		switch {
		case rec.Enabled && !m.registry.IsEnabled(id):
			enable = append(enable, id)
		case !rec.Enabled && m.registry.IsEnabled(id):
			disable = append(disable, id)
		}
	}

	for id, err := range settle(disable, m.registry.Disable) {
		m.logger.Warn("could not restore disabled state", "plugin", id, "error", err)
	}
	for id, err := range settle(enable, m.registry.Enable) {
		m.logger.Warn("could not restore enabled state", "plugin", id, "error", err)
		rec := records[id]
		rec.Error = err.Error()
		if err := m.status.Put(ctx, rec); err != nil {
			m.logger.Warn("persisting installation record failed", "plugin", id, "error", err)
		}
	}
}

// settle applies fn to every id, retrying failures in further passes for as
// long as some pass makes progress. Operations that depend on one another
// thereby succeed in any input order. It returns the last error of each id
// that never succeeded.
func settle(ids []string, fn func(id string) error) map[string]error {
	pending := ids
	failed := make(map[string]error)
	for len(pending) > 0 {
		var next []string
		clear(failed)
		for _, id := range pending {
			if err := fn(id); err != nil {
				failed[id] = err
				next = append(next, id)
			}
		}
		if len(next) == len(pending) {
			break
		}
		pending = next
	}
	return failed
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func isArchive(p string) bool {
	return strings.HasSuffix(p, ".tgz") || strings.HasSuffix(p, ".tar.gz")
}
