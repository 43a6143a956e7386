// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points HOME and the plugin store at temp directories so commands
// never touch the real user configuration. It returns the store directory.
func isolate(t *testing.T) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	store := filepath.Join(t.TempDir(), "store")
	t.Setenv("PLUGCTL_STORE_DIR", store)
	t.Setenv("PLUGCTL_REGISTRY_URL", "http://127.0.0.1:1")
	return store
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return runWithInput(t, "", args...)
}

func runWithInput(t *testing.T, input string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(input))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

func descriptorJSON(id, version string, deps ...string) []byte {
	d := map[string]any{"id": id, "name": strings.ToUpper(id[:1]) + id[1:], "version": version, "type": "feature"}
	if len(deps) > 0 {
		d["dependencies"] = deps
	}
	raw, _ := json.Marshal(d)
	return raw
}

func pluginFiles(id, version string, deps ...string) map[string][]byte {
	return map[string][]byte{
		"plugin.json":     descriptorJSON(id, version, deps...),
		"bundle.yaml":     []byte("routes:\n  - path: /" + id + "\n    component: Index\n"),
		"routes/index.js": []byte("export default function Index() {}"),
	}
}

// writePlugin lays out a plugin source directory and returns its path.
func writePlugin(t *testing.T, id, version string, deps ...string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), id)
	for name, content := range pluginFiles(id, version, deps...) {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, content, 0o644))
	}
	return dir
}

func TestRootCommand_Help(t *testing.T) {
	isolate(t)
	out, err := run(t, "--help")
	require.NoError(t, err)
	for _, sub := range []string{"install", "uninstall", "update", "outdated", "list", "enable", "disable", "search", "package", "publish", "login", "serve", "doctor", "version"} {
		assert.Contains(t, out, sub)
	}
}

func TestRootCommand_GlobalFlags(t *testing.T) {
	isolate(t)
	out, err := run(t, "--verbose", "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "--config")
	assert.Contains(t, out, "--store-dir")
	assert.Contains(t, out, "--registry")
	assert.Contains(t, out, "--verbose")
}

func TestVersionCommand(t *testing.T) {
	isolate(t)
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "plugctl dev")
}

func TestRootCommand_MissingConfigFile(t *testing.T) {
	isolate(t)
	_, err := run(t, "list", "--config", "/nonexistent/plugctl.yaml")
	assert.Error(t, err)
}

func TestRootCommand_InvalidRegistryFlag(t *testing.T) {
	isolate(t)
	_, err := run(t, "list", "--registry", "not a url")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registry.url")
}

func TestRootCommand_BootstrapsDefaultConfig(t *testing.T) {
	isolate(t)
	_, err := run(t, "version")
	require.NoError(t, err)

	home, _ := os.UserHomeDir()
	info, err := os.Stat(filepath.Join(home, ".config", "plugctl", "plugctl.yaml"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestRootCommand_StoreDirFlag(t *testing.T) {
	isolate(t)
	store := filepath.Join(t.TempDir(), "elsewhere")

	_, err := run(t, "install", "--store-dir", store, writePlugin(t, "core", "1.0.0"))
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(store, ".plugins-status.json"))
}

func TestRootCommand_SQLiteStatusBackend(t *testing.T) {
	store := isolate(t)
	t.Setenv("PLUGCTL_STORE_STATUS_BACKEND", "sqlite")

	_, err := run(t, "install", writePlugin(t, "core", "1.0.0"))
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(store, sqliteStatusName))

	out, err := run(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "core")
}
