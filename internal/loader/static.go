// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package loader

import (
	"context"
	"fmt"
	"path/filepath"

	plugerr "github.com/sigil-dev/plugctl/pkg/errors"
	"github.com/sigil-dev/plugctl/pkg/plugin"
)

// Factories maps the factory names bundle entries may reference to the
// constructors compiled into the host.
type Factories map[string]plugin.Factory

// Register adds a factory. Registering the same name twice is a programming
// error and panics.
func (f Factories) Register(name string, factory plugin.Factory) {
	if _, exists := f[name]; exists {
		panic(fmt.Sprintf("loader: factory %q registered twice", name))
	}
	f[name] = factory
}

// Names returns the registered factory names.
func (f Factories) Names() []string {
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	return names
}

// StaticLoader serves bundles compiled into the host. A directory resolves
// to the bundle whose id equals its base name.
type StaticLoader struct {
	bundles map[string]*plugin.Bundle
}

// NewStaticLoader creates a loader over a fixed bundle set.
func NewStaticLoader(bundles ...*plugin.Bundle) *StaticLoader {
	m := make(map[string]*plugin.Bundle, len(bundles))
	for _, b := range bundles {
		m[b.ID()] = b
	}
	return &StaticLoader{bundles: m}
}

// Load implements BundleLoader.
func (s *StaticLoader) Load(_ context.Context, dir string) (*plugin.Bundle, error) {
	id := filepath.Base(dir)
	b, ok := s.bundles[id]
	if !ok {
		return nil, plugerr.New(plugerr.CodeLoaderDescriptorNotFound,
			fmt.Sprintf("no built-in plugin %q", id), plugerr.FieldPlugin(id))
	}
	return b, nil
}
