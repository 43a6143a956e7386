// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sigil-dev/plugctl/internal/manager"
	"github.com/sigil-dev/plugctl/internal/registry"
	"github.com/sigil-dev/plugctl/internal/server"
	"github.com/sigil-dev/plugctl/internal/status"
	plugerr "github.com/sigil-dev/plugctl/pkg/errors"
)

func main() {
	spec, err := generateSpec()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	outPath := "api/openapi/spec.json"
	if len(os.Args) > 1 {
		outPath = os.Args[1]
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error creating output dir: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(outPath, spec, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "error writing spec: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("OpenAPI spec written to %s\n", outPath)
}

// generateSpec builds a server over an empty plugin service and extracts the
// OpenAPI document huma derives from the route types.
func generateSpec() ([]byte, error) {
	svc, err := server.NewServices(stubPlugins{}, nil)
	if err != nil {
		return nil, plugerr.Wrap(err, plugerr.CodeCLISetupFailure, "creating services")
	}

	srv, err := server.New(server.Config{
		ListenAddr: "127.0.0.1:0",
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, svc)
	if err != nil {
		return nil, plugerr.Errorf(plugerr.CodeCLISetupFailure, "creating server: %w", err)
	}

	return json.MarshalIndent(srv.API().OpenAPI(), "", "  ")
}

// stubPlugins is an empty plugin service. Spec generation never invokes it.
type stubPlugins struct{}

func (stubPlugins) Registry() *registry.Registry {
	return registry.New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func (stubPlugins) Records(context.Context) ([]*status.Record, error) { return nil, nil }

func (stubPlugins) Record(_ context.Context, id string) (*status.Record, error) {
	return nil, plugerr.New(plugerr.CodeStatusNotFound, "no record for "+id)
}

func (stubPlugins) Install(context.Context, string, manager.InstallOptions) *status.Record {
	return nil
}

func (stubPlugins) Uninstall(context.Context, string) bool { return false }
func (stubPlugins) Enable(context.Context, string) error   { return nil }
func (stubPlugins) Disable(context.Context, string) error  { return nil }
