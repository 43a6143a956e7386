// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/sigil-dev/plugctl/internal/catalog"
	"github.com/sigil-dev/plugctl/internal/manager"
	"github.com/sigil-dev/plugctl/internal/status"
	plugerr "github.com/sigil-dev/plugctl/pkg/errors"
	"github.com/sigil-dev/plugctl/pkg/plugin"
)

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-plugins",
		Method:      http.MethodGet,
		Path:        "/api/v1/plugins",
		Summary:     "List installed and registered plugins",
		Tags:        []string{"plugins"},
	}, s.handleListPlugins)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-plugin",
		Method:      http.MethodGet,
		Path:        "/api/v1/plugins/{id}",
		Summary:     "Get plugin details",
		Tags:        []string{"plugins"},
	}, s.handleGetPlugin)

	huma.Register(s.api, huma.Operation{
		OperationID:   "install-plugin",
		Method:        http.MethodPost,
		Path:          "/api/v1/plugins",
		Summary:       "Install a plugin from a source",
		Tags:          []string{"plugins"},
		DefaultStatus: http.StatusCreated,
	}, s.handleInstallPlugin)

	huma.Register(s.api, huma.Operation{
		OperationID: "uninstall-plugin",
		Method:      http.MethodDelete,
		Path:        "/api/v1/plugins/{id}",
		Summary:     "Uninstall a plugin",
		Tags:        []string{"plugins"},
	}, s.handleUninstallPlugin)

	huma.Register(s.api, huma.Operation{
		OperationID: "enable-plugin",
		Method:      http.MethodPost,
		Path:        "/api/v1/plugins/{id}/enable",
		Summary:     "Enable a plugin",
		Tags:        []string{"plugins"},
	}, s.handleEnablePlugin)

	huma.Register(s.api, huma.Operation{
		OperationID: "disable-plugin",
		Method:      http.MethodPost,
		Path:        "/api/v1/plugins/{id}/disable",
		Summary:     "Disable a plugin",
		Tags:        []string{"plugins"},
	}, s.handleDisablePlugin)

	huma.Register(s.api, huma.Operation{
		OperationID: "search-catalog",
		Method:      http.MethodGet,
		Path:        "/api/v1/catalog/search",
		Summary:     "Search the plugin catalog",
		Tags:        []string{"catalog"},
	}, s.handleSearchCatalog)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-contributions",
		Method:      http.MethodGet,
		Path:        "/api/v1/contributions",
		Summary:     "Routes, endpoints, schema and components of enabled plugins",
		Tags:        []string{"plugins"},
	}, s.handleContributions)
}

// PluginSummary merges a plugin's installation record with its registry
// state. A plugin may have either or both.
type PluginSummary struct {
	ID           string   `json:"id"`
	Name         string   `json:"name,omitempty"`
	Version      string   `json:"version,omitempty"`
	Type         string   `json:"type,omitempty"`
	Installed    bool     `json:"installed"`
	Registered   bool     `json:"registered"`
	Enabled      bool     `json:"enabled"`
	Source       string   `json:"source,omitempty"`
	Error        string   `json:"error,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
}

// EndpointSummary describes a contributed API endpoint and where it is served.
type EndpointSummary struct {
	Plugin string `json:"plugin,omitempty"`
	Method string `json:"method"`
	Path   string `json:"path"`
	URL    string `json:"url"`
}

// PluginDetail is the full view of one plugin.
type PluginDetail struct {
	PluginSummary
	Description string            `json:"description,omitempty"`
	Author      string            `json:"author,omitempty"`
	InstalledAt time.Time         `json:"installedAt,omitzero"`
	Dependents  []string          `json:"dependents"`
	Routes      []plugin.Route    `json:"routes"`
	API         []EndpointSummary `json:"api"`
	Components  map[string]string `json:"components,omitempty"`
	Schema      []string          `json:"schema,omitempty"`
}

// ContributionsBody aggregates what the enabled plugins expose.
type ContributionsBody struct {
	Routes     []RouteSummary     `json:"routes"`
	API        []EndpointSummary  `json:"api"`
	Schema     []SchemaSummary    `json:"schema"`
	Components []ComponentSummary `json:"components"`
}

type RouteSummary struct {
	Plugin    string `json:"plugin"`
	Path      string `json:"path"`
	Component string `json:"component"`
}

type SchemaSummary struct {
	Plugin     string   `json:"plugin"`
	Statements []string `json:"statements"`
}

type ComponentSummary struct {
	Plugin string `json:"plugin"`
	Name   string `json:"name"`
	Asset  string `json:"asset"`
}

type listPluginsOutput struct {
	Body struct {
		Plugins []PluginSummary `json:"plugins"`
	}
}

type pluginIDInput struct {
	ID string `path:"id" doc:"Plugin id"`
}

type getPluginOutput struct {
	Body PluginDetail
}

type installPluginInput struct {
	Body struct {
		Source   string `json:"source" minLength:"1" doc:"npm name, @scope/name[@version], git URL, tarball URL or local path"`
		Force    bool   `json:"force,omitempty" doc:"Reinstall even when already installed"`
		Version  string `json:"version,omitempty" doc:"npm version to install"`
		Registry string `json:"registry,omitempty" doc:"Catalog registry URL"`
	}
}

type installPluginOutput struct {
	Body *status.Record
}

type stateOutput struct {
	Body struct {
		ID      string `json:"id"`
		Enabled bool   `json:"enabled"`
	}
}

type uninstallOutput struct {
	Body struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
}

type searchInput struct {
	Query    string   `query:"q" doc:"Free text query"`
	Keywords []string `query:"keyword" doc:"Keywords every result must carry"`
	Limit    int      `query:"limit" minimum:"0" maximum:"250" doc:"Maximum results"`
	Offset   int      `query:"offset" minimum:"0" doc:"Results to skip"`
}

type searchOutput struct {
	Body struct {
		Results []catalog.PluginInfo `json:"results"`
	}
}

type contributionsOutput struct {
	Body ContributionsBody
}

func (s *Server) handleListPlugins(ctx context.Context, _ *struct{}) (*listPluginsOutput, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records, err := s.svc.plugins.Records(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("listing plugins", err)
	}
	seen := make(map[string]bool, len(records))
	var plugins []PluginSummary
	for _, rec := range records {
		seen[rec.ID] = true
		plugins = append(plugins, s.summary(rec.ID, rec))
	}
	for _, b := range s.svc.plugins.Registry().List() {
		if !seen[b.ID()] {
			plugins = append(plugins, s.summary(b.ID(), nil))
		}
	}
	slices.SortFunc(plugins, func(a, b PluginSummary) int { return strings.Compare(a.ID, b.ID) })

	out := &listPluginsOutput{}
	out.Body.Plugins = plugins
	if out.Body.Plugins == nil {
		out.Body.Plugins = []PluginSummary{}
	}
	return out, nil
}

func (s *Server) handleGetPlugin(ctx context.Context, input *pluginIDInput) (*getPluginOutput, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := s.svc.plugins.Record(ctx, input.ID)
	if err != nil && !plugerr.IsNotFound(err) {
		return nil, huma.Error500InternalServerError("reading plugin record", err)
	}
	reg := s.svc.plugins.Registry()
	if rec == nil && !reg.Has(input.ID) {
		return nil, huma.Error404NotFound(fmt.Sprintf("plugin %q not found", input.ID))
	}

	detail := PluginDetail{
		PluginSummary: s.summary(input.ID, rec),
		Dependents:    reg.Dependents(input.ID),
		Routes:        []plugin.Route{},
		API:           []EndpointSummary{},
	}
	if detail.Dependents == nil {
		detail.Dependents = []string{}
	}
	if rec != nil {
		detail.InstalledAt = rec.InstalledAt
	}
	if b, err := reg.Get(input.ID); err == nil {
		detail.Description = b.Descriptor.Description
		detail.Author = b.Descriptor.Author
		detail.Routes = append(detail.Routes, b.Routes...)
		for _, ep := range b.API {
			detail.API = append(detail.API, endpointSummary("", b.ID(), ep))
		}
		detail.Components = b.Components
		if b.Schema != nil {
			detail.Schema = b.Schema.Statements
		}
	}
	return &getPluginOutput{Body: detail}, nil
}

func (s *Server) handleInstallPlugin(ctx context.Context, input *installPluginInput) (*installPluginOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.svc.plugins.Install(ctx, input.Body.Source, manager.InstallOptions{
		Force:       input.Body.Force,
		Version:     input.Body.Version,
		RegistryURL: input.Body.Registry,
	})
	if rec.Error != "" {
		return nil, huma.Error422UnprocessableEntity(rec.Error)
	}
	return &installPluginOutput{Body: rec}, nil
}

func (s *Server) handleUninstallPlugin(ctx context.Context, input *pluginIDInput) (*uninstallOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg := s.svc.plugins.Registry()
	if _, err := s.svc.plugins.Record(ctx, input.ID); err != nil && !reg.Has(input.ID) {
		return nil, huma.Error404NotFound(fmt.Sprintf("plugin %q not found", input.ID))
	}
	if dependents := reg.Dependents(input.ID); len(dependents) > 0 {
		return nil, huma.Error409Conflict(fmt.Sprintf("plugin %q is required by %s", input.ID, strings.Join(dependents, ", ")))
	}
	if !s.svc.plugins.Uninstall(ctx, input.ID) {
		return nil, huma.Error500InternalServerError(fmt.Sprintf("uninstalling plugin %q failed", input.ID))
	}

	out := &uninstallOutput{}
	out.Body.ID = input.ID
	out.Body.Status = "uninstalled"
	return out, nil
}

func (s *Server) handleEnablePlugin(ctx context.Context, input *pluginIDInput) (*stateOutput, error) {
	return s.setEnabled(ctx, input.ID, true)
}

func (s *Server) handleDisablePlugin(ctx context.Context, input *pluginIDInput) (*stateOutput, error) {
	return s.setEnabled(ctx, input.ID, false)
}

func (s *Server) setEnabled(ctx context.Context, id string, enabled bool) (*stateOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	op := s.svc.plugins.Disable
	if enabled {
		op = s.svc.plugins.Enable
	}
	if err := op(ctx, id); err != nil {
		return nil, toHumaError(err)
	}

	out := &stateOutput{}
	out.Body.ID = id
	out.Body.Enabled = enabled
	return out, nil
}

func (s *Server) handleSearchCatalog(ctx context.Context, input *searchInput) (*searchOutput, error) {
	if s.svc.catalog == nil {
		return nil, huma.Error503ServiceUnavailable("no catalog configured")
	}
	results := s.svc.catalog.Search(ctx, catalog.Query{
		Text:     input.Query,
		Keywords: input.Keywords,
		Limit:    input.Limit,
		Offset:   input.Offset,
	})
	out := &searchOutput{}
	out.Body.Results = results
	if out.Body.Results == nil {
		out.Body.Results = []catalog.PluginInfo{}
	}
	return out, nil
}

func (s *Server) handleContributions(_ context.Context, _ *struct{}) (*contributionsOutput, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, err := s.svc.plugins.Registry().Contributions()
	if err != nil {
		return nil, toHumaError(err)
	}

	body := ContributionsBody{
		Routes:     make([]RouteSummary, 0, len(c.Routes)),
		API:        make([]EndpointSummary, 0, len(c.API)),
		Schema:     make([]SchemaSummary, 0, len(c.Schema)),
		Components: make([]ComponentSummary, 0, len(c.Components)),
	}
	for _, r := range c.Routes {
		body.Routes = append(body.Routes, RouteSummary{Plugin: r.Plugin, Path: r.Path, Component: r.Component})
	}
	for _, ep := range c.API {
		body.API = append(body.API, endpointSummary(ep.Plugin, ep.Plugin, ep.Endpoint))
	}
	for _, sc := range c.Schema {
		body.Schema = append(body.Schema, SchemaSummary{Plugin: sc.Plugin, Statements: sc.Statements})
	}
	for _, comp := range c.Components {
		body.Components = append(body.Components, ComponentSummary{Plugin: comp.Plugin, Name: comp.Name, Asset: comp.Asset})
	}
	return &contributionsOutput{Body: body}, nil
}

// summary must be called with mu held.
func (s *Server) summary(id string, rec *status.Record) PluginSummary {
	reg := s.svc.plugins.Registry()
	sum := PluginSummary{ID: id, Registered: reg.Has(id), Enabled: reg.IsEnabled(id)}
	if rec != nil {
		sum.Installed = rec.Installed
		sum.Version = rec.Version
		sum.Error = rec.Error
		if !rec.Source.IsZero() {
			sum.Source = rec.Source.String()
		}
	}
	if b, err := reg.Get(id); err == nil {
		sum.Name = b.Descriptor.Name
		sum.Version = b.Descriptor.Version
		sum.Type = string(b.Descriptor.Type)
		sum.Dependencies = b.Descriptor.Dependencies
	}
	return sum
}

func endpointSummary(owner, id string, ep plugin.Endpoint) EndpointSummary {
	return EndpointSummary{Plugin: owner, Method: ep.Method, Path: ep.Path, URL: PluginAPIPrefix + id + ep.Path}
}

// toHumaError maps a coded error onto the matching HTTP status.
func toHumaError(err error) error {
	return huma.NewError(plugerr.HTTPStatus(err), err.Error())
}
