// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package manager

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"
	"github.com/sigil-dev/plugctl/internal/source"
	"github.com/sigil-dev/plugctl/internal/status"
	plugerr "github.com/sigil-dev/plugctl/pkg/errors"
)

// UpdateInfo describes a plugin with a newer version in the catalog.
type UpdateInfo struct {
	ID      string `json:"id"`
	Current string `json:"current"`
	Latest  string `json:"latest"`
}

// Update reinstalls id at the newest catalog version, or at opts.Version
// when set. Only npm-sourced plugins can be updated. When the catalog holds
// nothing newer the current record is returned unchanged. The plugin keeps
// its enabled state across the update.
func (m *Manager) Update(ctx context.Context, id string, opts InstallOptions) (*status.Record, error) {
	rec, err := m.status.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Source.Type != source.TypeNPM {
		return rec, plugerr.New(plugerr.CodeManagerUpdateUnsupported,
			fmt.Sprintf("plugin %q was installed from a %s source and cannot be updated", id, rec.Source.Type),
			plugerr.FieldPlugin(id), plugerr.FieldSource(rec.Source.String()))
	}

	client, err := m.clientFor(opts.RegistryURL)
	if err != nil {
		return rec, err
	}
	info, err := client.GetPlugin(ctx, rec.Source.Package, opts.Version)
	if err != nil {
		return rec, err
	}
	if info == nil {
		return rec, plugerr.New(plugerr.CodeManagerInstallNotFound,
			fmt.Sprintf("plugin %q not found in catalog", rec.Source.Package),
			plugerr.FieldPlugin(id), plugerr.FieldVersion(opts.Version))
	}

	newer, err := isNewer(info.Version, rec.Version)
	if err != nil {
		return rec, err
	}
	if !newer {
		m.logger.Info("plugin is up to date", "plugin", id, "version", rec.Version)
		return rec, nil
	}

	installID := uuid.NewString()
	log := m.logger.With("install_id", installID, "plugin", id)
	log.Info("updating plugin", "from", rec.Version, "to", info.Version)

	loc := source.Locator{Type: source.TypeNPM, Package: rec.Source.Package}
	updated, err := m.installNPM(ctx, loc, InstallOptions{
		Force:       true,
		Version:     info.Version,
		RegistryURL: opts.RegistryURL,
	}, installID, log)
	if err != nil {
		return rec, err
	}

	if rec.Enabled && !updated.Enabled {
		if err := m.Enable(ctx, id); err != nil {
			log.Warn("could not re-enable updated plugin", "error", err)
			return updated, err
		}
		updated.Enabled = true
	}
	return updated, nil
}

// CheckUpdates reports every npm-sourced plugin with a newer catalog
// version. Plugins whose lookup fails are left out and their errors joined
// into the returned error.
func (m *Manager) CheckUpdates(ctx context.Context) ([]UpdateInfo, error) {
	records, err := m.status.List(ctx)
	if err != nil {
		return nil, err
	}

	var (
		updates []UpdateInfo
		errs    []error
	)
	for _, rec := range records {
		if !rec.Installed || rec.Source.Type != source.TypeNPM {
			continue
		}
		client, err := m.clientFor("")
		if err != nil {
			return nil, err
		}
		info, err := client.GetPlugin(ctx, rec.Source.Package, "")
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if info == nil {
			continue
		}
		newer, err := isNewer(info.Version, rec.Version)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if newer {
			updates = append(updates, UpdateInfo{ID: rec.ID, Current: rec.Version, Latest: info.Version})
		}
	}
	return updates, errors.Join(errs...)
}

// isNewer reports whether latest is a higher semantic version than current.
// An unparseable current version is always considered outdated.
func isNewer(latest, current string) (bool, error) {
	lv, err := semver.NewVersion(latest)
	if err != nil {
		return false, plugerr.Wrap(err, plugerr.CodeCatalogResponseInvalid,
			fmt.Sprintf("catalog version %q is not a semantic version", latest), plugerr.FieldVersion(latest))
	}
	cv, err := semver.NewVersion(current)
	if err != nil {
		return true, nil
	}
	return lv.GreaterThan(cv), nil
}
