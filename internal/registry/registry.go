// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	plugerr "github.com/sigil-dev/plugctl/pkg/errors"
	"github.com/sigil-dev/plugctl/pkg/plugin"
)

// Registry holds the known plugin bundles and the enabled subset.
//
// Registry performs no locking. A process is expected to have a single
// writer; callers that mutate it from several goroutines must serialize
// those calls themselves.
type Registry struct {
	logger  *slog.Logger
	bundles map[string]*plugin.Bundle
	enabled map[string]bool
}

// New creates an empty Registry. A nil logger uses slog.Default().
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:  logger,
		bundles: make(map[string]*plugin.Bundle),
		enabled: make(map[string]bool),
	}
}

// Register adds a bundle. Every dependency must already be registered; a
// bundle whose descriptor is enabled joins the enabled set immediately.
func (r *Registry) Register(b *plugin.Bundle) error {
	if b == nil {
		return plugerr.New(plugerr.CodePluginDescriptorInvalid, "bundle is nil")
	}
	if err := b.Descriptor.Validate(); err != nil {
		return plugerr.Wrap(err, plugerr.CodePluginDescriptorInvalid, "registering plugin",
			plugerr.FieldPlugin(b.Descriptor.ID))
	}

	id := b.ID()
	if _, exists := r.bundles[id]; exists {
		return plugerr.New(plugerr.CodeRegistryDuplicateID,
			fmt.Sprintf("plugin %q is already registered", id), plugerr.FieldPlugin(id))
	}
	if err := r.checkResolved(b); err != nil {
		return err
	}

	r.bundles[id] = b
	if b.Descriptor.Enabled {
		r.enabled[id] = true
	}
	r.logger.Info("plugin registered", "plugin", id, "version", b.Descriptor.Version, "enabled", r.enabled[id])
	return nil
}

// Replace swaps the bundle registered under the same id, for example after
// a reinstall at a different version. Enabled state is preserved; if the
// plugin is enabled, every dependency of the new bundle must be enabled too.
func (r *Registry) Replace(b *plugin.Bundle) error {
	if b == nil {
		return plugerr.New(plugerr.CodePluginDescriptorInvalid, "bundle is nil")
	}
	if err := b.Descriptor.Validate(); err != nil {
		return plugerr.Wrap(err, plugerr.CodePluginDescriptorInvalid, "replacing plugin",
			plugerr.FieldPlugin(b.Descriptor.ID))
	}

	id := b.ID()
	if _, exists := r.bundles[id]; !exists {
		return notFound(id)
	}
	if err := r.checkResolved(b); err != nil {
		return err
	}
	if r.enabled[id] {
		if err := r.checkDependenciesEnabled(id, b.Descriptor.Dependencies); err != nil {
			return err
		}
	}

	r.bundles[id] = b
	r.logger.Info("plugin replaced", "plugin", id, "version", b.Descriptor.Version)
	return nil
}

// Unregister removes a plugin. It fails while any registered plugin, enabled
// or not, lists id as a dependency.
func (r *Registry) Unregister(id string) error {
	if _, exists := r.bundles[id]; !exists {
		return notFound(id)
	}

	if dependents := r.Dependents(id); len(dependents) > 0 {
		return plugerr.New(plugerr.CodeRegistryDependentsExist,
			fmt.Sprintf("plugin %q is required by %s", id, strings.Join(dependents, ", ")),
			plugerr.FieldPlugin(id), plugerr.Field("dependents", dependents))
	}

	delete(r.bundles, id)
	delete(r.enabled, id)
	r.logger.Info("plugin unregistered", "plugin", id)
	return nil
}

// Enable adds a plugin to the enabled set. Every declared dependency must
// already be enabled.
func (r *Registry) Enable(id string) error {
	b, exists := r.bundles[id]
	if !exists {
		return notFound(id)
	}
	if err := r.checkDependenciesEnabled(id, b.Descriptor.Dependencies); err != nil {
		return err
	}

	if !r.enabled[id] {
		r.enabled[id] = true
		r.logger.Info("plugin enabled", "plugin", id)
	}
	return nil
}

// Disable removes a plugin from the enabled set. It fails while any enabled
// plugin depends on id.
func (r *Registry) Disable(id string) error {
	if _, exists := r.bundles[id]; !exists {
		return notFound(id)
	}

	var enabledDependents []string
	for _, dep := range r.Dependents(id) {
		if r.enabled[dep] {
			enabledDependents = append(enabledDependents, dep)
		}
	}
	if len(enabledDependents) > 0 {
		return plugerr.New(plugerr.CodeRegistryEnabledDependentsExist,
			fmt.Sprintf("plugin %q is required by enabled plugins %s", id, strings.Join(enabledDependents, ", ")),
			plugerr.FieldPlugin(id), plugerr.Field("dependents", enabledDependents))
	}

	if r.enabled[id] {
		delete(r.enabled, id)
		r.logger.Info("plugin disabled", "plugin", id)
	}
	return nil
}

// Get returns the bundle registered under id.
func (r *Registry) Get(id string) (*plugin.Bundle, error) {
	b, ok := r.bundles[id]
	if !ok {
		return nil, notFound(id)
	}
	return b, nil
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.bundles[id]
	return ok
}

// IsEnabled reports whether id is registered and enabled.
func (r *Registry) IsEnabled(id string) bool {
	return r.enabled[id]
}

// List returns all registered bundles sorted by id.
func (r *Registry) List() []*plugin.Bundle {
	list := make([]*plugin.Bundle, 0, len(r.bundles))
	for _, b := range r.bundles {
		list = append(list, b)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID() < list[j].ID() })
	return list
}

// Enabled returns the ids of enabled plugins sorted by id.
func (r *Registry) Enabled() []string {
	ids := make([]string, 0, len(r.enabled))
	for id := range r.enabled {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Dependents returns the ids of registered plugins that declare id as a
// dependency, sorted.
func (r *Registry) Dependents(id string) []string {
	var out []string
	for other, b := range r.bundles {
		if b.Descriptor.DependsOn(id) {
			out = append(out, other)
		}
	}
	sort.Strings(out)
	return out
}

func (r *Registry) checkResolved(b *plugin.Bundle) error {
	for _, dep := range b.Descriptor.Dependencies {
		if _, ok := r.bundles[dep]; !ok {
			return plugerr.New(plugerr.CodeRegistryUnresolvedDependency,
				fmt.Sprintf("plugin %q depends on unregistered plugin %q", b.ID(), dep),
				plugerr.FieldPlugin(b.ID()), plugerr.Field("dependency", dep))
		}
	}
	return nil
}

func (r *Registry) checkDependenciesEnabled(id string, deps []string) error {
	for _, dep := range deps {
		if !r.enabled[dep] {
			return plugerr.New(plugerr.CodeRegistryDependencyNotEnabled,
				fmt.Sprintf("plugin %q requires %q to be enabled first", id, dep),
				plugerr.FieldPlugin(id), plugerr.Field("dependency", dep))
		}
	}
	return nil
}

func notFound(id string) error {
	return plugerr.New(plugerr.CodeRegistryNotFound, fmt.Sprintf("plugin %q not found", id), plugerr.FieldPlugin(id))
}
