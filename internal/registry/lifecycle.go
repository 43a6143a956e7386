// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package registry

import (
	"context"
	"errors"

	plugerr "github.com/sigil-dev/plugctl/pkg/errors"
	"github.com/sigil-dev/plugctl/pkg/plugin"
)

// InitializePlugins runs the Init hook of every enabled plugin in dependency
// order. The first failure stops the pass; plugins already initialized are
// left as they are.
func (r *Registry) InitializePlugins(ctx context.Context, host *plugin.HostContext) error {
	order, err := r.Order()
	if err != nil {
		return err
	}

	for _, id := range order {
		if err := ctx.Err(); err != nil {
			return plugerr.Wrapf(err, plugerr.CodeRegistryInitFailure, "initializing plugin %q", id)
		}

		b := r.bundles[id]
		if b.Init == nil {
			continue
		}
		if err := b.Init(ctx, host); err != nil {
			r.logger.Error("plugin initialization failed", "plugin", id, "error", err)
			return plugerr.Wrap(err, plugerr.CodeRegistryInitFailure, "initializing plugin "+id,
				plugerr.FieldPlugin(id))
		}
		r.logger.Debug("plugin initialized", "plugin", id)
	}

	return nil
}

// DestroyPlugins runs the Destroy hook of every enabled plugin in reverse
// dependency order. Failures are logged and collected; every plugin gets its
// Destroy call regardless of earlier failures.
func (r *Registry) DestroyPlugins(ctx context.Context, host *plugin.HostContext) error {
	order, err := r.Order()
	if err != nil {
		return err
	}

	var errs []error
	for i := len(order) - 1; i >= 0; i-- {
		id := order[i]
		b := r.bundles[id]
		if b.Destroy == nil {
			continue
		}
		if err := b.Destroy(ctx, host); err != nil {
			r.logger.Warn("plugin teardown failed", "plugin", id, "error", err)
			errs = append(errs, plugerr.Wrap(err, plugerr.CodeRegistryDestroyFailure, "destroying plugin "+id,
				plugerr.FieldPlugin(id)))
			continue
		}
		r.logger.Debug("plugin destroyed", "plugin", id)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
