// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sigil-dev/plugctl/internal/catalog"
	"github.com/spf13/cobra"
)

func newSearchCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search the plugin catalog",
		Long:  "Search the catalog. Without a query every package carrying the plugin keyword is listed.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := c.wire(cmd.Context())
			if err != nil {
				return err
			}
			q := catalog.Query{}
			if len(args) == 1 {
				q.Text = args[0]
			}
			q.Keywords, _ = cmd.Flags().GetStringSlice("keyword")
			q.Limit, _ = cmd.Flags().GetInt("limit")
			q.Offset, _ = cmd.Flags().GetInt("offset")

			results := app.Catalog.Search(cmd.Context(), q)

			out := cmd.OutOrStdout()
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}
			if len(results) == 0 {
				_, err := fmt.Fprintln(out, "No plugins found.")
				return err
			}
			rows := make([][]string, 0, len(results))
			for _, r := range results {
				rows = append(rows, []string{r.ID, r.Version, r.Author, truncate(r.Description, 48), strings.Join(r.Keywords, ", ")})
			}
			_, err = fmt.Fprintln(out, renderTable([]string{"PLUGIN", "VERSION", "AUTHOR", "DESCRIPTION", "KEYWORDS"}, rows))
			return err
		},
	}

	cmd.Flags().StringSlice("keyword", nil, "only show results carrying this keyword (repeatable)")
	cmd.Flags().Int("limit", 20, "maximum number of results")
	cmd.Flags().Int("offset", 0, "number of results to skip")
	cmd.Flags().Bool("json", false, "print JSON instead of a table")

	return cmd
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
