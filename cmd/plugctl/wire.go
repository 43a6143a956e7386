// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/sigil-dev/plugctl/internal/catalog"
	"github.com/sigil-dev/plugctl/internal/config"
	"github.com/sigil-dev/plugctl/internal/loader"
	"github.com/sigil-dev/plugctl/internal/manager"
	"github.com/sigil-dev/plugctl/internal/registry"
	"github.com/sigil-dev/plugctl/internal/secrets"
	"github.com/sigil-dev/plugctl/internal/server"
	"github.com/sigil-dev/plugctl/internal/status"
	_ "github.com/sigil-dev/plugctl/internal/status/sqlite" // register sqlite backend
	plugerr "github.com/sigil-dev/plugctl/pkg/errors"
	"github.com/sigil-dev/plugctl/pkg/plugin"
	"github.com/spf13/afero"
)

// sqliteStatusName is the default sqlite status database inside the store.
const sqliteStatusName = ".plugins-status.db"

// builtinFactories holds the code-backed factories compiled into this
// binary. bundle.yaml entries name them in their factory field.
var builtinFactories = loader.Factories{}

// tokenStoreFactory creates the keyring-backed token store. It is a
// package-level variable so tests can point it at a different service.
var tokenStoreFactory = func() *secrets.TokenStore {
	return secrets.NewTokenStore(secrets.DefaultService)
}

// App holds all wired subsystems for one command invocation.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Manager *manager.Manager
	Catalog *catalog.NPMClient
	Tokens  *secrets.TokenStore

	status status.Store
}

// WireApp creates the status store, loader, catalog client and manager and
// runs discovery so the registry reflects the store.
func WireApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	fs := afero.NewOsFs()
	if err := fs.MkdirAll(cfg.Store.Dir, 0o755); err != nil {
		return nil, plugerr.Errorf(plugerr.CodeCLISetupFailure, "creating plugin store: %w", err)
	}

	st, err := status.Open(status.Config{
		Backend: cfg.Store.StatusBackend,
		Path:    statusPath(cfg.Store),
		Fs:      fs,
	})
	if err != nil {
		return nil, plugerr.Errorf(plugerr.CodeCLISetupFailure, "opening status store: %w", err)
	}

	cat := newCatalogClient(cfg.Registry, cfg.Registry.URL, logger)
	mgr, err := manager.New(manager.Config{
		StoreDir: cfg.Store.Dir,
		Fs:       fs,
		Registry: registry.New(logger),
		Loader:   loader.NewFSLoader(fs, builtinFactories, logger),
		Status:   st,
		Catalog:  cat,
		Clients: func(registryURL string) catalog.Client {
			return newCatalogClient(cfg.Registry, registryURL, logger)
		},
		Logger: logger,
	})
	if err != nil {
		_ = st.Close()
		return nil, plugerr.Errorf(plugerr.CodeCLISetupFailure, "creating plugin manager: %w", err)
	}

	if err := mgr.Discover(ctx); err != nil {
		_ = st.Close()
		return nil, plugerr.Errorf(plugerr.CodeCLISetupFailure, "discovering plugins: %w", err)
	}

	return &App{
		Config:  cfg,
		Logger:  logger,
		Manager: mgr,
		Catalog: cat,
		Tokens:  tokenStoreFactory(),
		status:  st,
	}, nil
}

// NewServer builds the admin HTTP server over the app's manager.
func (a *App) NewServer() (*server.Server, error) {
	svc, err := server.NewServices(a.Manager, a.Catalog)
	if err != nil {
		return nil, err
	}
	return server.New(server.Config{
		ListenAddr:  a.Config.Server.Listen,
		CORSOrigins: a.Config.Server.CORSOrigins,
		Version:     version,
		Logger:      a.Logger,
	}, svc)
}

// Host builds the context handed to plugin lifecycle hooks.
func (a *App) Host() *plugin.HostContext {
	return &plugin.HostContext{
		Env: map[string]string{
			"PLUGCTL_STORE_DIR":     a.Config.Store.Dir,
			"PLUGCTL_REGISTRY_URL":  a.Config.Registry.URL,
			"PLUGCTL_SERVER_LISTEN": a.Config.Server.Listen,
		},
		Resources: map[string]any{
			"registry": a.Manager.Registry(),
			"catalog":  a.Catalog,
		},
		Logger: a.Logger,
	}
}

// PublishToken resolves the token for registryURL: the configured
// registry.token first, then the keyring entry saved by login.
func (a *App) PublishToken(registryURL string) (string, error) {
	return a.Tokens.ResolveToken(registryURL, a.Config.Registry.Token)
}

// Close releases the status store.
func (a *App) Close() error {
	return a.status.Close()
}

func newCatalogClient(rc config.RegistryConfig, baseURL string, logger *slog.Logger) *catalog.NPMClient {
	return catalog.NewNPMClient(baseURL,
		catalog.WithTimeout(rc.Timeout),
		catalog.WithScope(rc.Scope),
		catalog.WithKeyword(rc.Keyword),
		catalog.WithLogger(logger),
	)
}

func statusPath(sc config.StoreConfig) string {
	if sc.StatusPath != "" {
		return sc.StatusPath
	}
	if sc.StatusBackend == "sqlite" {
		return filepath.Join(sc.Dir, sqliteStatusName)
	}
	return filepath.Join(sc.Dir, status.DocumentName)
}
