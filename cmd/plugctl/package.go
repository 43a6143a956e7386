// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"

	"github.com/sigil-dev/plugctl/internal/manager"
	plugerr "github.com/sigil-dev/plugctl/pkg/errors"
	"github.com/spf13/cobra"
)

func newPackageCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "package [path]",
		Short: "Build a distributable plugin archive",
		Long: `Collect plugin.json, bundle.yaml and the routes, api, components and database
directories of the plugin at path (default ".") into a gzipped tarball.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := c.wire(cmd.Context())
			if err != nil {
				return err
			}
			dir := pathArg(args)
			outPath, _ := cmd.Flags().GetString("out")

			pkg, err := app.Manager.Package(cmd.Context(), dir)
			if err != nil {
				return err
			}
			written, err := app.Manager.WriteArchive(pkg, outPath)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Packaged %s@%s (%d files, checksum %s) → %s\n",
				pkg.Descriptor.ID, pkg.Descriptor.Version, len(pkg.Files), pkg.Manifest.Checksum, written)
			return err
		},
	}

	cmd.Flags().StringP("out", "o", "", "archive path or directory (default: ./<id>-<version>.tgz)")

	return cmd
}

func newPublishCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish [path]",
		Short: "Package a plugin and publish it to the catalog",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := c.wire(cmd.Context())
			if err != nil {
				return err
			}
			token, _ := cmd.Flags().GetString("token")
			if token == "" {
				if token, err = app.PublishToken(app.Config.Registry.URL); err != nil {
					return err
				}
			}
			if token == "" {
				return plugerr.New(plugerr.CodeCLIInputInvalid,
					fmt.Sprintf("no publish token for %s: run 'plugctl login' or set registry.token", app.Config.Registry.URL))
			}

			pkg, err := app.Manager.Publish(cmd.Context(), pathArg(args), manager.PublishOptions{Token: token})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Published %s@%s to %s\n",
				pkg.Descriptor.ID, pkg.Descriptor.Version, app.Config.Registry.URL)
			return err
		},
	}

	cmd.Flags().String("token", "", "publish token (default: registry.token or the token saved by login)")

	return cmd
}

func pathArg(args []string) string {
	if len(args) == 0 {
		return "."
	}
	return args[0]
}
