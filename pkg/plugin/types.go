// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package plugin provides public types for plugin authors.
// These types define the plugin descriptor, the capability blocks a bundle
// contributes to the host, and the lifecycle hook signatures.
package plugin

import (
	"context"
	"log/slog"
	"net/http"
)

// Type identifies the category of plugin.
type Type string

const (
	TypeFeature   Type = "feature"
	TypeComponent Type = "component"
	TypeAPI       Type = "api"
	TypeTheme     Type = "theme"
	TypeUtility   Type = "utility"
)

// Descriptor is the identity, metadata and dependency record of a plugin.
// This is loaded from plugin.json in the plugin directory.
type Descriptor struct {
	ID           string   `json:"id" yaml:"id"`
	Name         string   `json:"name" yaml:"name"`
	Version      string   `json:"version" yaml:"version"`
	Author       string   `json:"author" yaml:"author"`
	Description  string   `json:"description" yaml:"description"`
	Type         Type     `json:"type" yaml:"type"`
	Enabled      bool     `json:"enabled" yaml:"enabled"`
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
}

// DependsOn reports whether id is one of the descriptor's declared dependencies.
func (d Descriptor) DependsOn(id string) bool {
	for _, dep := range d.Dependencies {
		if dep == id {
			return true
		}
	}
	return false
}

// Route is a page route contributed by a plugin.
type Route struct {
	Path      string `json:"path" yaml:"path"`
	Component string `json:"component" yaml:"component"`
}

// Endpoint is an API handler contributed by a plugin. Paths are relative to
// the plugin's mount point.
type Endpoint struct {
	Method  string       `json:"method" yaml:"method"`
	Path    string       `json:"path" yaml:"path"`
	Handler http.Handler `json:"-" yaml:"-"`
}

// Schema is a database schema fragment, applied by the host in plugin
// initialization order.
type Schema struct {
	Statements []string `json:"statements" yaml:"statements"`
}

// HostContext carries whatever resources the host chooses to hand to plugin
// lifecycle hooks. The registry passes it through unmodified.
type HostContext struct {
	Env       map[string]string
	Resources map[string]any
	Logger    *slog.Logger
}

// Resource returns a named host resource.
func (h *HostContext) Resource(name string) (any, bool) {
	if h == nil || h.Resources == nil {
		return nil, false
	}
	v, ok := h.Resources[name]
	return v, ok
}

// Hook is a lifecycle callback run during initialization or teardown.
type Hook func(ctx context.Context, host *HostContext) error

// Bundle is a descriptor plus the optional capability blocks and lifecycle
// hooks a plugin contributes.
type Bundle struct {
	Descriptor Descriptor
	Routes     []Route
	API        []Endpoint
	Schema     *Schema
	Components map[string]string
	Init       Hook
	Destroy    Hook

	// Dir is the directory the bundle was loaded from. Empty for bundles
	// supplied by a static loader.
	Dir string
}

// ID is shorthand for b.Descriptor.ID.
func (b *Bundle) ID() string {
	return b.Descriptor.ID
}

// Factory constructs the code-backed part of a bundle (hooks and API
// handlers) for a descriptor read from disk. Hosts register factories by
// name; a bundle's entry file names the factory it requires.
type Factory func(d Descriptor) (*Bundle, error)
