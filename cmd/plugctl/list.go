// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/sigil-dev/plugctl/internal/status"
	"github.com/sigil-dev/plugctl/pkg/plugin"
	"github.com/spf13/cobra"
)

// listEntry is one row of plugctl list, merged from the status store and
// the registry.
type listEntry struct {
	ID           string   `json:"id"`
	Version      string   `json:"version,omitempty"`
	Type         string   `json:"type,omitempty"`
	Installed    bool     `json:"installed"`
	Registered   bool     `json:"registered"`
	Enabled      bool     `json:"enabled"`
	Dependencies []string `json:"dependencies,omitempty"`
	Source       string   `json:"source,omitempty"`
	Error        string   `json:"error,omitempty"`
}

func newListCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List installed plugins",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := c.wire(cmd.Context())
			if err != nil {
				return err
			}
			records, err := app.Manager.Records(cmd.Context())
			if err != nil {
				return err
			}
			entries := mergeEntries(app.Manager.Registry().List(), records, app.Manager.Registry().IsEnabled)
			if enabledOnly, _ := cmd.Flags().GetBool("enabled"); enabledOnly {
				entries = slices.DeleteFunc(entries, func(e listEntry) bool { return !e.Enabled })
			}

			out := cmd.OutOrStdout()
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}
			if len(entries) == 0 {
				_, err := fmt.Fprintln(out, "No plugins installed")
				return err
			}

			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{
					e.ID, e.Version, e.Type,
					stateLabel(e.Enabled, e.Registered, e.Error),
					strings.Join(e.Dependencies, ", "),
				})
			}
			_, err = fmt.Fprintln(out, renderTable([]string{"PLUGIN", "VERSION", "TYPE", "STATE", "DEPENDS ON"}, rows))
			return err
		},
	}

	cmd.Flags().Bool("enabled", false, "only list enabled plugins")
	cmd.Flags().Bool("json", false, "print JSON instead of a table")

	return cmd
}

// mergeEntries joins registered bundles with status records by id, sorted.
func mergeEntries(bundles []*plugin.Bundle, records []*status.Record, isEnabled func(string) bool) []listEntry {
	byID := make(map[string]*listEntry)
	for _, b := range bundles {
		d := b.Descriptor
		byID[d.ID] = &listEntry{
			ID: d.ID, Version: d.Version, Type: string(d.Type), Dependencies: d.Dependencies,
			Registered: true, Enabled: isEnabled(d.ID),
		}
	}
	for _, rec := range records {
		e, ok := byID[rec.ID]
		if !ok {
			e = &listEntry{ID: rec.ID, Version: rec.Version}
			byID[rec.ID] = e
		}
		e.Installed = rec.Installed
		e.Error = rec.Error
		if !rec.Source.IsZero() {
			e.Source = rec.Source.String()
		}
	}

	entries := make([]listEntry, 0, len(byID))
	for _, e := range byID {
		entries = append(entries, *e)
	}
	slices.SortFunc(entries, func(a, b listEntry) int { return strings.Compare(a.ID, b.ID) })
	return entries
}
