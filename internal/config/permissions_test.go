// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

//go:build !windows

package config_test

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/sigil-dev/plugctl/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func TestWarnInsecurePermissions(t *testing.T) {
	tests := []struct {
		name       string
		perm       os.FileMode
		expectWarn bool
	}{
		{"secure 0600", 0o600, false},
		{"secure 0400", 0o400, false},
		{"group readable 0640", 0o640, true},
		{"other readable 0604", 0o604, true},
		{"world readable 0644", 0o644, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := filepath.Join(t.TempDir(), "plugctl.yaml")
			require.NoError(t, os.WriteFile(p, []byte("store:\n  dir: /srv\n"), 0o600))
			require.NoError(t, os.Chmod(p, tt.perm))

			logger, buf := captureLogger()
			config.WarnInsecurePermissions(logger, p)

			if tt.expectWarn {
				assert.Contains(t, buf.String(), "insecure permissions")
				assert.Contains(t, buf.String(), p)
				assert.Contains(t, buf.String(), "0600")
			} else {
				assert.NotContains(t, buf.String(), "insecure permissions")
			}
		})
	}
}

func TestWarnInsecurePermissions_EmptyPath(t *testing.T) {
	logger, buf := captureLogger()
	config.WarnInsecurePermissions(logger, "")
	assert.Empty(t, buf.String())
}

func TestWarnInsecurePermissions_MissingFile(t *testing.T) {
	logger, buf := captureLogger()
	config.WarnInsecurePermissions(logger, "/nonexistent/path/plugctl.yaml")
	assert.Contains(t, buf.String(), "could not stat")
	assert.NotContains(t, buf.String(), "insecure permissions")
}
