// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of a running plugctl server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			addr, _ := cmd.Flags().GetString("address")
			if addr == "" {
				addr = c.cfg.Server.Listen
			}
			client := newServerClient(addr)

			var health struct {
				Status string `json:"status"`
			}
			if err := client.getJSON("/health", &health); err != nil {
				return err
			}
			var list struct {
				Plugins []struct {
					Enabled bool `json:"enabled"`
				} `json:"plugins"`
			}
			if err := client.getJSON("/api/v1/plugins", &list); err != nil {
				return err
			}
			enabled := 0
			for _, p := range list.Plugins {
				if p.Enabled {
					enabled++
				}
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Server %s at %s: %d plugins, %d enabled\n",
				health.Status, addr, len(list.Plugins), enabled)
			return err
		},
	}

	cmd.Flags().String("address", "", "server address (default: server.listen)")

	return cmd
}
