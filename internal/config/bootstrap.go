// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package config

import (
	_ "embed"
	"log/slog"
	"os"
	"path/filepath"

	plugerr "github.com/sigil-dev/plugctl/pkg/errors"
)

//go:embed plugctl.yaml.default
var DefaultConfigYAML []byte

// DefaultConfigPath returns ~/.config/plugctl/plugctl.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", plugerr.Errorf(plugerr.CodeConfigLoadReadFailure, "resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "plugctl", "plugctl.yaml"), nil
}

// BootstrapConfig writes the default commented config to path unless a file
// already exists there. It returns whether a file was written. Failures are
// logged at debug and reported as false.
func BootstrapConfig(logger *slog.Logger, path string) bool {
	if _, err := os.Stat(path); err == nil {
		return false
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		logger.Debug("skipping config bootstrap: cannot create directory", "path", dir, "error", err)
		return false
	}
	if err := os.WriteFile(path, DefaultConfigYAML, 0o600); err != nil {
		logger.Debug("skipping config bootstrap: cannot write config", "path", path, "error", err)
		return false
	}

	logger.Info("created default config", "path", path)
	return true
}
