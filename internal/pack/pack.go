// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package pack defines the distributable form of a plugin bundle.
package pack

import (
	"encoding/json"
	"fmt"
	"sort"

	plugerr "github.com/sigil-dev/plugctl/pkg/errors"
	"github.com/sigil-dev/plugctl/pkg/plugin"
)

const (
	// DescriptorFile is the bundle descriptor, required in every package.
	DescriptorFile = "plugin.json"
	// EntryFile declares the bundle's factory and capability blocks.
	EntryFile = "bundle.yaml"
)

// Manifest summarizes a package's content.
type Manifest struct {
	Name     string   `json:"name"`
	Version  string   `json:"version"`
	Files    []string `json:"files"`
	Checksum string   `json:"checksum"`
}

// Package is a plugin bundle in transit: its descriptor, its files keyed by
// slash-separated relative path, and a manifest.
type Package struct {
	Descriptor plugin.Descriptor `json:"descriptor"`
	Files      map[string][]byte `json:"-"`
	Manifest   Manifest          `json:"manifest"`
}

// FromFiles builds a Package from a file set. The set must contain a
// parseable DescriptorFile.
func FromFiles(files map[string][]byte) (*Package, error) {
	raw, ok := files[DescriptorFile]
	if !ok {
		return nil, plugerr.New(plugerr.CodeManagerPackageMissingDescriptor,
			"package has no "+DescriptorFile)
	}

	var d plugin.Descriptor
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, plugerr.Wrap(err, plugerr.CodePluginDescriptorInvalid, "parsing "+DescriptorFile)
	}

	return &Package{
		Descriptor: d,
		Files:      files,
		Manifest: Manifest{
			Name:     d.ID,
			Version:  d.Version,
			Files:    Paths(files),
			Checksum: Checksum(files),
		},
	}, nil
}

// Paths returns the file paths of a set in sorted order.
func Paths(files map[string][]byte) []string {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Checksum folds every "path:content" pair, in path order, through a 32-bit
// polynomial rolling hash and renders it as 8 hex characters.
//
// The result is independent of map iteration order and changes with any
// path or content. It detects accidental corruption only; it is not
// collision resistant and must not be used to authenticate a package.
func Checksum(files map[string][]byte) string {
	var h uint32
	for _, p := range Paths(files) {
		h = fold(h, []byte(p))
		h = fold(h, []byte{':'})
		h = fold(h, files[p])
	}
	return fmt.Sprintf("%08x", h)
}

func fold(h uint32, b []byte) uint32 {
	for _, c := range b {
		h = h*31 + uint32(c)
	}
	return h
}
