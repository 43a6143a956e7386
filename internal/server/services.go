// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"

	"github.com/sigil-dev/plugctl/internal/catalog"
	"github.com/sigil-dev/plugctl/internal/manager"
	"github.com/sigil-dev/plugctl/internal/registry"
	"github.com/sigil-dev/plugctl/internal/status"
	plugerr "github.com/sigil-dev/plugctl/pkg/errors"
)

// PluginService is the plugin management surface the API drives.
// *manager.Manager implements it.
type PluginService interface {
	Registry() *registry.Registry
	Records(ctx context.Context) ([]*status.Record, error)
	Record(ctx context.Context, id string) (*status.Record, error)
	Install(ctx context.Context, raw string, opts manager.InstallOptions) *status.Record
	Uninstall(ctx context.Context, id string) bool
	Enable(ctx context.Context, id string) error
	Disable(ctx context.Context, id string) error
}

// Services holds dependencies injected into route handlers.
type Services struct {
	plugins PluginService
	catalog catalog.Client // optional; nil disables catalog search
}

// NewServices validates and bundles the handler dependencies.
func NewServices(plugins PluginService, cat catalog.Client) (*Services, error) {
	if plugins == nil {
		return nil, plugerr.New(plugerr.CodeServerConfigInvalid, "plugin service is required")
	}
	return &Services{plugins: plugins, catalog: cat}, nil
}
