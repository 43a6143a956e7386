// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package registry

import (
	"sort"

	"github.com/sigil-dev/plugctl/pkg/plugin"
)

// RouteContribution is a page route together with the plugin providing it.
type RouteContribution struct {
	Plugin string `json:"plugin"`
	plugin.Route
}

// EndpointContribution is an API endpoint together with the plugin providing it.
type EndpointContribution struct {
	Plugin string `json:"plugin"`
	plugin.Endpoint
}

// SchemaContribution is a schema fragment together with the plugin providing it.
type SchemaContribution struct {
	Plugin     string   `json:"plugin"`
	Statements []string `json:"statements"`
}

// ComponentContribution is a named UI component together with the plugin providing it.
type ComponentContribution struct {
	Plugin string `json:"plugin"`
	Name   string `json:"name"`
	Asset  string `json:"asset"`
}

// Contributions is everything the enabled plugins expose to the host.
type Contributions struct {
	Routes     []RouteContribution     `json:"routes"`
	API        []EndpointContribution  `json:"api"`
	Schema     []SchemaContribution    `json:"schema"`
	Components []ComponentContribution `json:"components"`
}

// Contributions collects the capability blocks of the enabled plugins in
// initialization order, so schema fragments apply after those they build on.
func (r *Registry) Contributions() (*Contributions, error) {
	order, err := r.Order()
	if err != nil {
		return nil, err
	}

	c := &Contributions{
		Routes:     []RouteContribution{},
		API:        []EndpointContribution{},
		Schema:     []SchemaContribution{},
		Components: []ComponentContribution{},
	}
	for _, id := range order {
		b := r.bundles[id]
		for _, route := range b.Routes {
			c.Routes = append(c.Routes, RouteContribution{Plugin: id, Route: route})
		}
		for _, ep := range b.API {
			c.API = append(c.API, EndpointContribution{Plugin: id, Endpoint: ep})
		}
		if b.Schema != nil && len(b.Schema.Statements) > 0 {
			c.Schema = append(c.Schema, SchemaContribution{Plugin: id, Statements: b.Schema.Statements})
		}

		names := make([]string, 0, len(b.Components))
		for name := range b.Components {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			c.Components = append(c.Components, ComponentContribution{Plugin: id, Name: name, Asset: b.Components[name]})
		}
	}

	return c, nil
}
