// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sigil-dev/plugctl/internal/config"
	plugerr "github.com/sigil-dev/plugctl/pkg/errors"
	"github.com/spf13/cobra"
)

// cli carries state resolved once per invocation and shared by subcommands.
type cli struct {
	cfg    *config.Config
	logger *slog.Logger
	app    *App
}

// NewRootCmd creates the root plugctl command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "plugctl",
		Short:         "Dependency-aware plugin manager",
		Long:          "plugctl installs, enables and publishes plugins, keeping every enabled plugin's dependencies enabled first.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd)
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			return c.close()
		},
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().String("store-dir", "", "plugin store directory")
	root.PersistentFlags().String("registry", "", "catalog registry URL")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newInstallCmd(c),
		newUninstallCmd(c),
		newUpdateCmd(c),
		newOutdatedCmd(c),
		newListCmd(c),
		newInfoCmd(c),
		newEnableCmd(c),
		newDisableCmd(c),
		newSearchCmd(c),
		newPackageCmd(c),
		newPublishCmd(c),
		newLoginCmd(c),
		newLogoutCmd(c),
		newServeCmd(c),
		newStatusCmd(c),
		newDoctorCmd(c),
		newVersionCmd(),
	)

	return root
}

// setup resolves configuration in flag > env > file > defaults order and
// installs the logger. With no config file anywhere a commented default is
// bootstrapped to ~/.config/plugctl.
func (c *cli) setup(cmd *cobra.Command) error {
	flags := cmd.Root().PersistentFlags()
	cfgPath, _ := flags.GetString("config")

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	logger := cfg.Logging.NewLogger(cmd.ErrOrStderr())
	if cfgPath == "" && cfg.File == "" {
		if path, err := config.DefaultConfigPath(); err == nil && config.BootstrapConfig(logger, path) {
			if cfg, err = config.Load(path); err != nil {
				return err
			}
		}
	}

	if dir, _ := flags.GetString("store-dir"); dir != "" {
		cfg.Store.Dir = dir
	}
	if reg, _ := flags.GetString("registry"); reg != "" {
		cfg.Registry.URL = reg
	}
	if verbose, _ := flags.GetBool("verbose"); verbose {
		cfg.Logging.Level = "debug"
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return plugerr.Errorf(plugerr.CodeCLIInputInvalid, "invalid flags: %w", errors.Join(errs...))
	}

	c.cfg = cfg
	c.logger = cfg.Logging.NewLogger(cmd.ErrOrStderr())
	slog.SetDefault(c.logger)
	if cfg.File != "" {
		config.WarnInsecurePermissions(c.logger, cfg.File)
	}
	return nil
}

// wire builds the application on first use. Commands that never touch the
// store, such as version, skip it entirely.
func (c *cli) wire(ctx context.Context) (*App, error) {
	if c.app != nil {
		return c.app, nil
	}
	app, err := WireApp(ctx, c.cfg, c.logger)
	if err != nil {
		return nil, err
	}
	c.app = app
	return app, nil
}

func (c *cli) close() error {
	if c.app == nil {
		return nil
	}
	err := c.app.Close()
	c.app = nil
	return err
}
