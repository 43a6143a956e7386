// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package catalog adapts a remote package catalog to plugin vocabulary.
// The default client speaks the npm registry HTTP API.
package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/sigil-dev/plugctl/internal/pack"
)

const (
	DefaultRegistryURL = "https://registry.npmjs.org"
	DefaultScope       = "@plugctl"
	DefaultKeyword     = "plugctl-plugin"
	DefaultTimeout     = 30 * time.Second
	defaultSearchSize  = 20
)

// PluginInfo is catalog metadata for one plugin version. It is never persisted.
type PluginInfo struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Version     string    `json:"version"`
	Author      string    `json:"author,omitempty"`
	Keywords    []string  `json:"keywords,omitempty"`
	Checksum    string    `json:"checksum,omitempty"`
	Integrity   string    `json:"integrity,omitempty"`
	DownloadURL string    `json:"downloadUrl,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt,omitzero"`
}

// Query narrows a catalog search.
type Query struct {
	Text     string
	Keywords []string
	Limit    int
	Offset   int
}

// Auth carries publish credentials.
type Auth struct {
	Token string
}

// Client is a remote plugin catalog.
type Client interface {
	// Search returns matching plugins. Failures degrade to an empty result.
	Search(ctx context.Context, q Query) []PluginInfo
	// GetPlugin returns metadata for id at version, or the latest version
	// when version is empty. A plugin or version the catalog does not know
	// yields (nil, nil).
	GetPlugin(ctx context.Context, id, version string) (*PluginInfo, error)
	// Download fetches and verifies the package archive for id at version.
	Download(ctx context.Context, id, version string) (*pack.Package, error)
	// Publish uploads pkg.
	Publish(ctx context.Context, pkg *pack.Package, auth Auth) error
}

// Naming maps plugin ids to catalog package names under a scope.
type Naming struct {
	Scope string
}

// PackageName returns the catalog package name for id. Names that already
// carry a scope are returned unchanged.
func (n Naming) PackageName(id string) string {
	if strings.HasPrefix(id, "@") || n.Scope == "" {
		return id
	}
	return n.Scope + "/" + id
}

// PluginID strips the naming scope from a package name.
func (n Naming) PluginID(name string) string {
	if n.Scope == "" {
		return name
	}
	return strings.TrimPrefix(name, n.Scope+"/")
}

// InScope reports whether name belongs to the naming scope.
func (n Naming) InScope(name string) bool {
	return n.Scope != "" && strings.HasPrefix(name, n.Scope+"/")
}
