// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"bufio"
	"fmt"
	"strings"

	plugerr "github.com/sigil-dev/plugctl/pkg/errors"
	"github.com/spf13/cobra"
)

func newLoginCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Save a publish token for the registry in the OS keyring",
		Long: `Save a publish token for the configured registry (or --registry) in the OS
keyring. The token is read from --token or, when absent, from the first line of stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if list, _ := cmd.Flags().GetBool("list"); list {
				return listRegistries(cmd)
			}

			token, _ := cmd.Flags().GetString("token")
			if token == "" {
				sc := bufio.NewScanner(cmd.InOrStdin())
				if sc.Scan() {
					token = strings.TrimSpace(sc.Text())
				}
				if err := sc.Err(); err != nil {
					return plugerr.Errorf(plugerr.CodeCLIInputInvalid, "reading token: %w", err)
				}
			}

			registryURL := c.cfg.Registry.URL
			if err := tokenStoreFactory().Save(registryURL, token); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Logged in to %s\n", registryURL)
			return err
		},
	}

	cmd.Flags().String("token", "", "publish token")
	cmd.Flags().Bool("list", false, "list registries with a saved token")

	return cmd
}

func newLogoutCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the saved publish token for the registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			registryURL := c.cfg.Registry.URL
			if err := tokenStoreFactory().Remove(registryURL); err != nil {
				if plugerr.HasCode(err, plugerr.CodeSecretNotFound) {
					return plugerr.Errorf(plugerr.CodeSecretNotFound, "not logged in to %s", registryURL)
				}
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Logged out of %s\n", registryURL)
			return err
		},
	}
}

func listRegistries(cmd *cobra.Command) error {
	regs, err := tokenStoreFactory().Registries()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(regs) == 0 {
		_, err := fmt.Fprintln(out, "No saved tokens.")
		return err
	}
	for _, r := range regs {
		if _, err := fmt.Fprintln(out, r); err != nil {
			return err
		}
	}
	return nil
}
