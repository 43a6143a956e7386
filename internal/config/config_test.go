// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package config_test

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sigil-dev/plugctl/internal/config"
	plugerr "github.com/sigil-dev/plugctl/pkg/errors"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate keeps Load("") from finding config files on the host.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return home
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "plugctl.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestLoad_DefaultValues(t *testing.T) {
	home := isolate(t)

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".plugctl", "plugins"), cfg.Store.Dir)
	assert.Equal(t, "json", cfg.Store.StatusBackend)
	assert.Equal(t, "https://registry.npmjs.org", cfg.Registry.URL)
	assert.Equal(t, "@plugctl", cfg.Registry.Scope)
	assert.Equal(t, "plugctl-plugin", cfg.Registry.Keyword)
	assert.Equal(t, 30*time.Second, cfg.Registry.Timeout)
	assert.Equal(t, "127.0.0.1:18790", cfg.Server.Listen)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Empty(t, cfg.File)
}

func TestLoad_FromFile(t *testing.T) {
	isolate(t)
	p := writeConfig(t, `
store:
  dir: /srv/plugins
  status_backend: sqlite
registry:
  url: http://localhost:4873
  timeout: 5s
server:
  cors_origins: ["http://localhost:3000"]
`)

	cfg, err := config.Load(p)
	require.NoError(t, err)
	assert.Equal(t, "/srv/plugins", cfg.Store.Dir)
	assert.Equal(t, "sqlite", cfg.Store.StatusBackend)
	assert.Equal(t, "http://localhost:4873", cfg.Registry.URL)
	assert.Equal(t, 5*time.Second, cfg.Registry.Timeout)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.CORSOrigins)
	assert.Equal(t, p, cfg.File)
}

func TestLoad_SearchesWorkingDirectory(t *testing.T) {
	isolate(t)
	require.NoError(t, os.WriteFile("plugctl.yaml", []byte("logging:\n  level: debug\n"), 0o600))

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.NotEmpty(t, cfg.File)
}

func TestLoad_EnvOverride(t *testing.T) {
	isolate(t)
	t.Setenv("PLUGCTL_STORE_DIR", "/env/plugins")
	t.Setenv("PLUGCTL_REGISTRY_TIMEOUT", "2s")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "/env/plugins", cfg.Store.Dir)
	assert.Equal(t, 2*time.Second, cfg.Registry.Timeout)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	isolate(t)
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, plugerr.HasCode(err, plugerr.CodeConfigLoadReadFailure))
}

func TestLoad_ValidationCalledAtLoadTime(t *testing.T) {
	isolate(t)
	p := writeConfig(t, "store:\n  status_backend: postgres\n")

	_, err := config.Load(p)
	require.Error(t, err)
	assert.True(t, plugerr.HasCode(err, plugerr.CodeConfigValidateInvalidValue))
	assert.Contains(t, err.Error(), "store.status_backend")
}

func validConfig() *config.Config {
	return &config.Config{
		Store:    config.StoreConfig{Dir: "/srv/plugins", StatusBackend: "json"},
		Registry: config.RegistryConfig{URL: "https://registry.npmjs.org", Scope: "@plugctl", Timeout: time.Second},
		Server:   config.ServerConfig{Listen: "127.0.0.1:18790"},
		Logging:  config.LoggingConfig{Level: "info", Format: "text"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *config.Config)
		wantKey string
	}{
		{"empty store dir", func(c *config.Config) { c.Store.Dir = " " }, "store.dir"},
		{"unknown backend", func(c *config.Config) { c.Store.StatusBackend = "redis" }, "store.status_backend"},
		{"relative registry url", func(c *config.Config) { c.Registry.URL = "registry.npmjs.org" }, "registry.url"},
		{"ftp registry url", func(c *config.Config) { c.Registry.URL = "ftp://example.com" }, "registry.url"},
		{"scope without at", func(c *config.Config) { c.Registry.Scope = "plugctl" }, "registry.scope"},
		{"zero timeout", func(c *config.Config) { c.Registry.Timeout = 0 }, "registry.timeout"},
		{"empty listen", func(c *config.Config) { c.Server.Listen = "" }, "server.listen"},
		{"listen without port", func(c *config.Config) { c.Server.Listen = "localhost" }, "server.listen"},
		{"listen port out of range", func(c *config.Config) { c.Server.Listen = ":70000" }, "server.listen"},
		{"bad level", func(c *config.Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			errs := c.Validate()
			require.Len(t, errs, 1)
			assert.Contains(t, errs[0].Error(), tt.wantKey)
		})
	}

	assert.Empty(t, validConfig().Validate())
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	c := &config.Config{}
	errs := c.Validate()
	assert.GreaterOrEqual(t, len(errs), 5)
}

func TestSetupEnv(t *testing.T) {
	t.Setenv("PLUGCTL_SERVER_LISTEN", ":9000")
	v := viper.New()
	config.SetDefaults(v)
	config.SetupEnv(v)
	assert.Equal(t, ":9000", v.GetString("server.listen"))
}

func TestLoggingConfig_NewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := config.LoggingConfig{Level: "warn", Format: "json"}.NewLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "plugin", "blog")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"plugin":"blog"`)
}

func TestBootstrapConfig(t *testing.T) {
	p := filepath.Join(t.TempDir(), "nested", "plugctl.yaml")
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	require.True(t, config.BootstrapConfig(logger, p))
	raw, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfigYAML, raw)

	info, err := os.Stat(p)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	assert.False(t, config.BootstrapConfig(logger, p), "existing files are left alone")

	cfg, err := config.Load(p)
	require.NoError(t, err, "the bootstrapped config loads")
	assert.Equal(t, "json", cfg.Store.StatusBackend)
	assert.True(t, strings.HasPrefix(cfg.Registry.URL, "https://"))
}
