// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	plugerr "github.com/sigil-dev/plugctl/pkg/errors"
	"github.com/spf13/cobra"
)

// destroyTimeout bounds the plugin teardown pass after the server stops.
const destroyTimeout = 10 * time.Second

func newServeCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the plugin admin HTTP API",
		Long:  "Discover installed plugins and serve the admin API and the enabled plugins' endpoints until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
				c.cfg.Server.Listen = listen
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := c.wire(ctx)
			if err != nil {
				return err
			}
			srv, err := app.NewServer()
			if err != nil {
				return err
			}

			host := app.Host()
			if err := app.Manager.Registry().InitializePlugins(ctx, host); err != nil {
				return plugerr.Errorf(plugerr.CodeCLISetupFailure, "initializing plugins: %w", err)
			}
			defer func() {
				teardown, cancel := context.WithTimeout(context.WithoutCancel(ctx), destroyTimeout)
				defer cancel()
				if err := app.Manager.Registry().DestroyPlugins(teardown, host); err != nil {
					app.Logger.Warn("plugin teardown finished with errors", "error", err)
				}
			}()

			app.Logger.Info("serving plugin API", "listen", app.Config.Server.Listen, "store", app.Config.Store.Dir)
			return srv.Start(ctx)
		},
	}

	cmd.Flags().String("listen", "", "override listen address (host:port)")

	return cmd
}
