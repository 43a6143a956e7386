// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"strings"

	"github.com/sigil-dev/plugctl/internal/config"
	"github.com/sigil-dev/plugctl/internal/status"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
)

func newDoctorCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostics",
		Long:  "Check the config file, plugin store, status backend, registry reachability, a running server and disk space.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, c.cfg)
		},
	}
}

func runDoctor(cmd *cobra.Command, cfg *config.Config) error {
	w := cmd.OutOrStdout()
	ctx := cmd.Context()

	checks := []struct {
		name string
		fn   func() string
	}{
		{"Binary", checkBinary},
		{"Platform", checkPlatform},
		{"Config", func() string { return checkConfig(cfg) }},
		{"Store", func() string { return checkStore(cfg.Store.Dir) }},
		{"Status", func() string { return checkStatus(ctx, cfg.Store) }},
		{"Registry", func() string { return checkRegistry(ctx, cfg.Registry.URL) }},
		{"Server", func() string { return checkServer(cfg.Server.Listen) }},
		{"Disk Space", func() string { return checkDiskSpace(cfg.Store.Dir) }},
	}

	for _, c := range checks {
		if _, err := fmt.Fprintf(w, "%-20s %s\n", c.name+":", c.fn()); err != nil {
			return err
		}
	}

	return nil
}

func checkBinary() string {
	return fmt.Sprintf("plugctl %s (%s/%s)", version, runtime.GOOS, runtime.GOARCH)
}

func checkPlatform() string {
	return fmt.Sprintf("%s/%s, Go %s", runtime.GOOS, runtime.GOARCH, runtime.Version())
}

func checkConfig(cfg *config.Config) string {
	if cfg.File != "" {
		return fmt.Sprintf("loaded from %s", cfg.File)
	}
	return "using defaults (no config file found)"
}

func checkStore(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("no plugin store at %s", dir)
		}
		return fmt.Sprintf("error reading store: %s", err)
	}

	count := 0
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			count++
		}
	}
	if count == 0 {
		return fmt.Sprintf("empty store at %s", dir)
	}
	return fmt.Sprintf("%d plugin director(ies) in %s", count, dir)
}

func checkStatus(ctx context.Context, sc config.StoreConfig) string {
	path := statusPath(sc)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Sprintf("%s backend, no records yet (%s)", sc.StatusBackend, path)
	}
	st, err := status.Open(status.Config{Backend: sc.StatusBackend, Path: path, Fs: afero.NewOsFs()})
	if err != nil {
		return fmt.Sprintf("error: %s", err)
	}
	defer func() { _ = st.Close() }()

	records, err := st.List(ctx)
	if err != nil {
		return fmt.Sprintf("error: %s", err)
	}
	failed := 0
	for _, rec := range records {
		if rec.Error != "" {
			failed++
		}
	}
	msg := fmt.Sprintf("%s backend, %d record(s)", sc.StatusBackend, len(records))
	if failed > 0 {
		msg += fmt.Sprintf(", %d with errors", failed)
	}
	return msg
}

func checkRegistry(ctx context.Context, registryURL string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(registryURL, "/")+"/-/ping", nil)
	if err != nil {
		return fmt.Sprintf("error: %s", err)
	}
	resp, err := defaultHTTPClient.Do(req)
	if err != nil {
		return fmt.Sprintf("unreachable at %s: %s", registryURL, err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Sprintf("%s returned %s", registryURL, resp.Status)
	}
	return fmt.Sprintf("reachable at %s", registryURL)
}

func checkServer(addr string) string {
	var body struct {
		Status string `json:"status"`
	}
	if err := newServerClient(addr).getJSON("/health", &body); err != nil {
		if errors.Is(err, errServerNotRunning) {
			return fmt.Sprintf("not running at %s (run 'plugctl serve')", addr)
		}
		return fmt.Sprintf("error: %s", err)
	}
	return fmt.Sprintf("%s at %s", body.Status, addr)
}

func checkDiskSpace(dir string) string {
	path := dir
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// The store may not exist yet.
		path, _ = os.UserHomeDir()
	}

	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return fmt.Sprintf("unable to check: %s", err)
	}

	availBytes := stat.Bavail * uint64(stat.Bsize)
	return formatBytes(availBytes) + " available"
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(b uint64) string {
	const (
		gb = 1024 * 1024 * 1024
		mb = 1024 * 1024
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(mb))
	default:
		return fmt.Sprintf("%d bytes", b)
	}
}
