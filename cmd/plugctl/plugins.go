// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"strings"

	"github.com/sigil-dev/plugctl/internal/manager"
	plugerr "github.com/sigil-dev/plugctl/pkg/errors"
	"github.com/spf13/cobra"
)

func newInstallCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install <source>...",
		Short: "Install plugins",
		Long: `Install plugins from npm names (blog, @scope/name@1.2.0), local directories
or local .tgz archives. Every source is attempted even when an earlier one fails.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := c.wire(cmd.Context())
			if err != nil {
				return err
			}
			force, _ := cmd.Flags().GetBool("force")
			pin, _ := cmd.Flags().GetString("version")
			enable, _ := cmd.Flags().GetBool("enable")
			if pin != "" && len(args) > 1 {
				return plugerr.New(plugerr.CodeCLIInputInvalid, "--version applies to a single source")
			}

			out := cmd.OutOrStdout()
			failed := 0
			for _, raw := range args {
				rec := app.Manager.Install(cmd.Context(), raw, manager.InstallOptions{Force: force, Version: pin})
				if rec.Error != "" {
					failed++
					_, _ = fmt.Fprintf(out, "%s %s: %s\n", errorStyle.Render("✗"), raw, rec.Error)
					continue
				}
				_, _ = fmt.Fprintf(out, "%s %s@%s\n", successStyle.Render("✓"), rec.ID, rec.Version)
				if enable {
					if err := app.Manager.Enable(cmd.Context(), rec.ID); err != nil {
						failed++
						_, _ = fmt.Fprintf(out, "  %s\n", errorStyle.Render("not enabled: "+err.Error()))
					}
				}
			}
			if failed > 0 {
				return plugerr.Errorf(plugerr.CodeCLIRequestFailure, "%d of %d installs failed", failed, len(args))
			}
			return nil
		},
	}

	cmd.Flags().BoolP("force", "f", false, "reinstall even when already installed")
	cmd.Flags().String("version", "", "npm version to install")
	cmd.Flags().Bool("enable", false, "enable each plugin after installing it")

	return cmd
}

func newUninstallCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:     "uninstall <id>",
		Aliases: []string{"remove"},
		Short:   "Uninstall a plugin",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := c.wire(cmd.Context())
			if err != nil {
				return err
			}
			id := args[0]
			if dependents := app.Manager.Registry().Dependents(id); len(dependents) > 0 {
				return plugerr.New(plugerr.CodeRegistryDependentsExist,
					fmt.Sprintf("plugin %q is required by %s", id, strings.Join(dependents, ", ")),
					plugerr.FieldPlugin(id))
			}
			if !app.Manager.Uninstall(cmd.Context(), id) {
				return plugerr.New(plugerr.CodeCLIRequestFailure,
					fmt.Sprintf("could not uninstall %q (not installed, or its files could not be removed)", id),
					plugerr.FieldPlugin(id))
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Uninstalled %s\n", id)
			return err
		},
	}
}

func newUpdateCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update an npm-installed plugin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := c.wire(cmd.Context())
			if err != nil {
				return err
			}
			pin, _ := cmd.Flags().GetString("version")

			before, err := app.Manager.Record(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			previous := before.Version

			rec, err := app.Manager.Update(cmd.Context(), args[0], manager.InstallOptions{Version: pin})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if rec.Version == previous {
				_, err = fmt.Fprintf(out, "%s is up to date (%s)\n", rec.ID, rec.Version)
				return err
			}
			_, err = fmt.Fprintf(out, "Updated %s %s → %s\n", rec.ID, previous, rec.Version)
			return err
		},
	}

	cmd.Flags().String("version", "", "update to this version instead of the latest")

	return cmd
}

func newOutdatedCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "outdated",
		Short: "List plugins with newer catalog versions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := c.wire(cmd.Context())
			if err != nil {
				return err
			}
			updates, checkErr := app.Manager.CheckUpdates(cmd.Context())

			out := cmd.OutOrStdout()
			if len(updates) == 0 {
				_, _ = fmt.Fprintln(out, "All plugins are up to date.")
			} else {
				rows := make([][]string, 0, len(updates))
				for _, u := range updates {
					rows = append(rows, []string{u.ID, u.Current, u.Latest})
				}
				_, _ = fmt.Fprintln(out, renderTable([]string{"PLUGIN", "CURRENT", "LATEST"}, rows))
			}
			if checkErr != nil {
				return plugerr.Errorf(plugerr.CodeCLIRequestFailure, "checking updates: %w", checkErr)
			}
			return nil
		},
	}
}

func newEnableCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "enable <id>...",
		Short: "Enable plugins",
		Long:  "Enable plugins. Dependencies must be enabled first; ids are processed in the order given.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := c.wire(cmd.Context())
			if err != nil {
				return err
			}
			for _, id := range args {
				if err := app.Manager.Enable(cmd.Context(), id); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Enabled %s\n", id)
			}
			return nil
		},
	}
}

func newDisableCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "disable <id>...",
		Short: "Disable plugins",
		Long:  "Disable plugins. Enabled dependents must be disabled first; ids are processed in the order given.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := c.wire(cmd.Context())
			if err != nil {
				return err
			}
			for _, id := range args {
				if err := app.Manager.Disable(cmd.Context(), id); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Disabled %s\n", id)
			}
			return nil
		},
	}
}

func newInfoCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "info <id>",
		Short: "Show a plugin's descriptor, state and contributions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := c.wire(cmd.Context())
			if err != nil {
				return err
			}
			id := args[0]
			reg := app.Manager.Registry()

			rec, recErr := app.Manager.Record(cmd.Context(), id)
			b, bundleErr := reg.Get(id)
			if recErr != nil && bundleErr != nil {
				return bundleErr
			}

			var lines [][2]string
			add := func(k, v string) {
				if v != "" {
					lines = append(lines, [2]string{k, v})
				}
			}
			add("ID", id)
			if b != nil {
				d := b.Descriptor
				add("Name", d.Name)
				add("Version", d.Version)
				add("Type", string(d.Type))
				add("Author", d.Author)
				add("Description", d.Description)
				add("Dependencies", strings.Join(d.Dependencies, ", "))
				add("Dependents", strings.Join(reg.Dependents(id), ", "))
				add("Directory", b.Dir)
				add("Routes", fmt.Sprint(len(b.Routes)))
				add("API endpoints", fmt.Sprint(len(b.API)))
				add("Components", fmt.Sprint(len(b.Components)))
			}
			add("Registered", fmt.Sprint(b != nil))
			add("Enabled", fmt.Sprint(reg.IsEnabled(id)))
			if rec != nil {
				add("Installed", fmt.Sprint(rec.Installed))
				if !rec.Source.IsZero() {
					add("Source", rec.Source.String())
				}
				if !rec.InstalledAt.IsZero() {
					add("Installed at", rec.InstalledAt.Format("2006-01-02 15:04:05 MST"))
				}
				add("Error", rec.Error)
			}

			out := cmd.OutOrStdout()
			for _, l := range lines {
				if _, err := fmt.Fprintf(out, "%s %s\n", labelStyle.Render(fmt.Sprintf("%-14s", l[0]+":")), l[1]); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
