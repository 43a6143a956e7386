// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package registry_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/sigil-dev/plugctl/internal/registry"
	plugerr "github.com/sigil-dev/plugctl/pkg/errors"
	"github.com/sigil-dev/plugctl/pkg/plugin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func newRegistry() *registry.Registry {
	return registry.New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func bundle(id string, deps ...string) *plugin.Bundle {
	return &plugin.Bundle{
		Descriptor: plugin.Descriptor{
			ID:           id,
			Name:         id,
			Version:      "1.0.0",
			Type:         plugin.TypeFeature,
			Dependencies: deps,
		},
	}
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := newRegistry()
	b := bundle("core")
	require.NoError(t, r.Register(b))

	got, err := r.Get("core")
	require.NoError(t, err)
	assert.Same(t, b, got)
	assert.True(t, r.Has("core"))
	assert.False(t, r.IsEnabled("core"))
}

func TestRegistry_RegisterEnabledDescriptorJoinsEnabledSet(t *testing.T) {
	r := newRegistry()
	b := bundle("core")
	b.Descriptor.Enabled = true
	require.NoError(t, r.Register(b))
	assert.True(t, r.IsEnabled("core"))
	assert.Equal(t, []string{"core"}, r.Enabled())
}

func TestRegistry_RegisterErrors(t *testing.T) {
	tests := []struct {
		name    string
		setup   []*plugin.Bundle
		bundle  *plugin.Bundle
		code    plugerr.Code
		message string
	}{
		{
			name:    "duplicate id",
			setup:   []*plugin.Bundle{bundle("core")},
			bundle:  bundle("core"),
			code:    plugerr.CodeRegistryDuplicateID,
			message: "already registered",
		},
		{
			name:    "unregistered dependency",
			bundle:  bundle("blog", "core"),
			code:    plugerr.CodeRegistryUnresolvedDependency,
			message: `depends on unregistered plugin "core"`,
		},
		{
			name:    "invalid descriptor",
			bundle:  &plugin.Bundle{Descriptor: plugin.Descriptor{ID: "x", Name: "x", Version: "nope", Type: plugin.TypeFeature}},
			code:    plugerr.CodePluginDescriptorInvalid,
			message: "valid semver",
		},
		{
			name:   "nil bundle",
			bundle: nil,
			code:   plugerr.CodePluginDescriptorInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRegistry()
			for _, b := range tt.setup {
				require.NoError(t, r.Register(b))
			}
			err := r.Register(tt.bundle)
			require.Error(t, err)
			assert.Equal(t, tt.code, plugerr.CodeOf(err))
			if tt.message != "" {
				assert.Contains(t, err.Error(), tt.message)
			}
		})
	}
}

func TestRegistry_UnregisterGuardsDependents(t *testing.T) {
	r := newRegistry()
	require.NoError(t, r.Register(bundle("core")))
	require.NoError(t, r.Register(bundle("blog", "core")))

	// blog is disabled, but still registered: core stays pinned.
	err := r.Unregister("core")
	require.Error(t, err)
	assert.True(t, plugerr.HasCode(err, plugerr.CodeRegistryDependentsExist))
	assert.Equal(t, []string{"blog", "core"}, ids(r.List()))

	require.NoError(t, r.Unregister("blog"))
	require.NoError(t, r.Unregister("core"))
	assert.Empty(t, r.List())

	err = r.Unregister("core")
	assert.True(t, plugerr.HasCode(err, plugerr.CodeRegistryNotFound))
}

func TestRegistry_UnregisterEnabledPluginLeavesEnabledSet(t *testing.T) {
	r := newRegistry()
	require.NoError(t, r.Register(bundle("core")))
	require.NoError(t, r.Enable("core"))
	require.NoError(t, r.Unregister("core"))
	assert.False(t, r.IsEnabled("core"))
	assert.Empty(t, r.Enabled())
}

// The concrete core/blog scenario.
func TestRegistry_EnableDisableScenario(t *testing.T) {
	r := newRegistry()
	require.NoError(t, r.Register(bundle("core")))
	require.NoError(t, r.Register(bundle("blog", "core")))

	err := r.Enable("blog")
	require.Error(t, err)
	assert.True(t, plugerr.HasCode(err, plugerr.CodeRegistryDependencyNotEnabled))

	require.NoError(t, r.Enable("core"))
	require.NoError(t, r.Enable("blog"))

	err = r.Disable("core")
	require.Error(t, err)
	assert.True(t, plugerr.HasCode(err, plugerr.CodeRegistryEnabledDependentsExist))

	require.NoError(t, r.Disable("blog"))
	require.NoError(t, r.Disable("core"))
	assert.Empty(t, r.Enabled())
}

func TestRegistry_EnableDisableUnknown(t *testing.T) {
	r := newRegistry()
	assert.True(t, plugerr.IsNotFound(r.Enable("ghost")))
	assert.True(t, plugerr.IsNotFound(r.Disable("ghost")))
	_, err := r.Get("ghost")
	assert.True(t, plugerr.IsNotFound(err))
}

func TestRegistry_EnableChainDepthFour(t *testing.T) {
	r := newRegistry()
	chain := []string{"a", "b", "c", "d"}
	for i, id := range chain {
		if i == 0 {
			require.NoError(t, r.Register(bundle(id)))
			continue
		}
		require.NoError(t, r.Register(bundle(id, chain[i-1])))
	}

	// Only the root can be enabled first; each link unlocks the next.
	for i := len(chain) - 1; i > 0; i-- {
		assert.True(t, plugerr.HasCode(r.Enable(chain[i]), plugerr.CodeRegistryDependencyNotEnabled), chain[i])
	}
	for _, id := range chain {
		require.NoError(t, r.Enable(id))
	}
	assert.Equal(t, chain, r.Enabled())
}

func TestRegistry_DependentsSorted(t *testing.T) {
	r := newRegistry()
	require.NoError(t, r.Register(bundle("core")))
	require.NoError(t, r.Register(bundle("zeta", "core")))
	require.NoError(t, r.Register(bundle("alpha", "core")))
	assert.Equal(t, []string{"alpha", "zeta"}, r.Dependents("core"))
	assert.Empty(t, r.Dependents("alpha"))
}

func TestRegistry_Replace(t *testing.T) {
	r := newRegistry()
	require.NoError(t, r.Register(bundle("core")))
	require.NoError(t, r.Register(bundle("auth")))
	require.NoError(t, r.Register(bundle("blog", "core")))
	require.NoError(t, r.Enable("core"))
	require.NoError(t, r.Enable("blog"))

	t.Run("unknown id", func(t *testing.T) {
		assert.True(t, plugerr.IsNotFound(r.Replace(bundle("ghost"))))
	})

	t.Run("enabled plugin requires enabled dependencies", func(t *testing.T) {
		err := r.Replace(bundle("blog", "core", "auth"))
		assert.True(t, plugerr.HasCode(err, plugerr.CodeRegistryDependencyNotEnabled))
	})

	t.Run("unresolved dependency", func(t *testing.T) {
		err := r.Replace(bundle("blog", "comments"))
		assert.True(t, plugerr.HasCode(err, plugerr.CodeRegistryUnresolvedDependency))
	})

	t.Run("keeps enabled state", func(t *testing.T) {
		next := bundle("blog", "core")
		next.Descriptor.Version = "2.0.0"
		require.NoError(t, r.Replace(next))
		got, err := r.Get("blog")
		require.NoError(t, err)
		assert.Equal(t, "2.0.0", got.Descriptor.Version)
		assert.True(t, r.IsEnabled("blog"))
	})
}

func TestRegistry_LifecycleOrder(t *testing.T) {
	r := newRegistry()
	var calls []string
	record := func(prefix, id string) plugin.Hook {
		return func(_ context.Context, _ *plugin.HostContext) error {
			calls = append(calls, prefix+":"+id)
			return nil
		}
	}

	// A depends on B, B depends on C.
	for _, spec := range [][]string{{"c"}, {"b", "c"}, {"a", "b"}} {
		b := bundle(spec[0], spec[1:]...)
		b.Init = record("init", spec[0])
		b.Destroy = record("destroy", spec[0])
		require.NoError(t, r.Register(b))
	}
	require.NoError(t, r.Enable("c"))
	require.NoError(t, r.Enable("b"))
	require.NoError(t, r.Enable("a"))

	require.NoError(t, r.InitializePlugins(context.Background(), &plugin.HostContext{}))
	assert.Equal(t, []string{"init:c", "init:b", "init:a"}, calls)

	calls = nil
	require.NoError(t, r.DestroyPlugins(context.Background(), &plugin.HostContext{}))
	assert.Equal(t, []string{"destroy:a", "destroy:b", "destroy:c"}, calls)
}

func TestRegistry_InitializePassesHostContextThrough(t *testing.T) {
	r := newRegistry()
	host := &plugin.HostContext{Env: map[string]string{"MODE": "test"}}

	var seen *plugin.HostContext
	b := bundle("core")
	b.Descriptor.Enabled = true
	b.Init = func(_ context.Context, h *plugin.HostContext) error {
		seen = h
		return nil
	}
	require.NoError(t, r.Register(b))
	require.NoError(t, r.InitializePlugins(context.Background(), host))
	assert.Same(t, host, seen)
}

func TestRegistry_InitializeFailFast(t *testing.T) {
	r := newRegistry()
	var calls []string

	core := bundle("core")
	core.Init = func(context.Context, *plugin.HostContext) error {
		calls = append(calls, "core")
		return errors.New("database unreachable")
	}
	blog := bundle("blog", "core")
	blog.Init = func(context.Context, *plugin.HostContext) error {
		calls = append(calls, "blog")
		return nil
	}
	require.NoError(t, r.Register(core))
	require.NoError(t, r.Register(blog))
	require.NoError(t, r.Enable("core"))
	require.NoError(t, r.Enable("blog"))

	err := r.InitializePlugins(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, plugerr.CodeRegistryInitFailure, plugerr.CodeOf(err))
	assert.Contains(t, err.Error(), "database unreachable")
	assert.Equal(t, []string{"core"}, calls)
}

func TestRegistry_DestroyBestEffort(t *testing.T) {
	r := newRegistry()
	var calls []string

	core := bundle("core")
	core.Destroy = func(context.Context, *plugin.HostContext) error {
		calls = append(calls, "core")
		return nil
	}
	blog := bundle("blog", "core")
	blog.Destroy = func(context.Context, *plugin.HostContext) error {
		calls = append(calls, "blog")
		return errors.New("flush failed")
	}
	require.NoError(t, r.Register(core))
	require.NoError(t, r.Register(blog))
	require.NoError(t, r.Enable("core"))
	require.NoError(t, r.Enable("blog"))

	err := r.DestroyPlugins(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flush failed")
	assert.Equal(t, []string{"blog", "core"}, calls)
}

func TestRegistry_CycleRejectedBeforeHooks(t *testing.T) {
	r := newRegistry()
	hooked := false
	hook := func(context.Context, *plugin.HostContext) error {
		hooked = true
		return nil
	}

	b := bundle("b")
	b.Init, b.Destroy = hook, hook
	a := bundle("a", "b")
	a.Init, a.Destroy = hook, hook
	require.NoError(t, r.Register(b))
	require.NoError(t, r.Register(a))
	require.NoError(t, r.Enable("b"))
	require.NoError(t, r.Enable("a"))

	// A depends on B; B is reinstalled depending on A.
	cyclic := bundle("b", "a")
	cyclic.Init, cyclic.Destroy = hook, hook
	require.NoError(t, r.Replace(cyclic))

	err := r.InitializePlugins(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, plugerr.HasCode(err, plugerr.CodeRegistryCircularDependency))
	assert.Contains(t, err.Error(), "circular dependency")

	err = r.DestroyPlugins(context.Background(), nil)
	assert.True(t, plugerr.HasCode(err, plugerr.CodeRegistryCircularDependency))

	_, err = r.Contributions()
	assert.True(t, plugerr.HasCode(err, plugerr.CodeRegistryCircularDependency))
	assert.False(t, hooked)
}

func TestRegistry_OrderSkipsDisabledDependencies(t *testing.T) {
	r := newRegistry()
	require.NoError(t, r.Register(bundle("core")))
	blog := bundle("blog", "core")
	blog.Descriptor.Enabled = true
	require.NoError(t, r.Register(blog))

	order, err := r.Order()
	require.NoError(t, err)
	assert.Equal(t, []string{"blog"}, order)
}

func TestRegistry_OrderDiamond(t *testing.T) {
	r := newRegistry()
	require.NoError(t, r.Register(bundle("base")))
	require.NoError(t, r.Register(bundle("left", "base")))
	require.NoError(t, r.Register(bundle("right", "base")))
	require.NoError(t, r.Register(bundle("top", "right", "left")))
	for _, id := range []string{"base", "left", "right", "top"} {
		require.NoError(t, r.Enable(id))
	}

	order, err := r.Order()
	require.NoError(t, err)
	assert.Equal(t, []string{"base", "left", "right", "top"}, order)
}

func TestRegistry_Contributions(t *testing.T) {
	r := newRegistry()
	core := bundle("core")
	core.Schema = &plugin.Schema{Statements: []string{"CREATE TABLE users (id TEXT)"}}
	core.Components = map[string]string{"Nav": "components/nav.js", "Footer": "components/footer.js"}
	blog := bundle("blog", "core")
	blog.Routes = []plugin.Route{{Path: "/blog", Component: "BlogIndex"}}
	blog.API = []plugin.Endpoint{{Method: "GET", Path: "/posts"}}
	blog.Schema = &plugin.Schema{Statements: []string{"CREATE TABLE posts (id TEXT)"}}
	hidden := bundle("hidden")
	hidden.Routes = []plugin.Route{{Path: "/hidden"}}

	require.NoError(t, r.Register(core))
	require.NoError(t, r.Register(blog))
	require.NoError(t, r.Register(hidden))
	require.NoError(t, r.Enable("core"))
	require.NoError(t, r.Enable("blog"))

	c, err := r.Contributions()
	require.NoError(t, err)
	require.Len(t, c.Routes, 1)
	assert.Equal(t, "blog", c.Routes[0].Plugin)
	assert.Equal(t, "/blog", c.Routes[0].Path)
	require.Len(t, c.API, 1)
	assert.Equal(t, "/posts", c.API[0].Path)
	require.Len(t, c.Schema, 2)
	assert.Equal(t, "core", c.Schema[0].Plugin)
	assert.Equal(t, "blog", c.Schema[1].Plugin)
	require.Len(t, c.Components, 2)
	assert.Equal(t, "Footer", c.Components[0].Name)
}

// ---------------------------------------------------------------------------
// Properties
// ---------------------------------------------------------------------------

func TestRegistry_PropertyRegisterThenLookup(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 20).Draw(t, "n")
		r := newRegistry()
		registered := make(map[string]*plugin.Bundle, n)
		for i := 0; i < n; i++ {
			id := fmt.Sprintf("p%d", i)
			b := bundle(id)
			b.Descriptor.Version = fmt.Sprintf("1.%d.0", rapid.IntRange(0, 50).Draw(t, "minor"))
			require.NoError(t, r.Register(b))
			registered[id] = b
		}
		for id, want := range registered {
			got, err := r.Get(id)
			require.NoError(t, err)
			assert.Same(t, want, got)
		}
		assert.Len(t, r.List(), n)
	})
}

func TestRegistry_PropertyForwardReferencesRejected(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(2, 8).Draw(t, "n")
		// p(i) depends on p(i-1); registration order is a random permutation.
		perm := rapid.Permutation(indexes(n)).Draw(t, "order")

		r := newRegistry()
		for _, i := range perm {
			var b *plugin.Bundle
			if i == 0 {
				b = bundle("p0")
			} else {
				b = bundle(fmt.Sprintf("p%d", i), fmt.Sprintf("p%d", i-1))
			}

			err := r.Register(b)
			depReady := i == 0 || r.Has(fmt.Sprintf("p%d", i-1))
			if depReady {
				assert.NoError(t, err)
			} else {
				assert.True(t, plugerr.HasCode(err, plugerr.CodeRegistryUnresolvedDependency))
			}
		}
	})
}

func TestRegistry_PropertyInitOrderRespectsDependencies(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 12).Draw(t, "n")
		r := newRegistry()
		for i := 0; i < n; i++ {
			id := fmt.Sprintf("p%02d", i)
			var deps []string
			for j := 0; j < i; j++ {
				if rapid.Bool().Draw(t, "edge") {
					deps = append(deps, fmt.Sprintf("p%02d", j))
				}
			}
			require.NoError(t, r.Register(bundle(id, deps...)))
			require.NoError(t, r.Enable(id))
		}

		order, err := r.Order()
		require.NoError(t, err)
		require.Len(t, order, n)

		pos := make(map[string]int, n)
		for i, id := range order {
			pos[id] = i
		}
		for _, b := range r.List() {
			for _, dep := range b.Descriptor.Dependencies {
				assert.Less(t, pos[dep], pos[b.ID()])
			}
		}
	})
}

func indexes(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func ids(bundles []*plugin.Bundle) []string {
	out := make([]string, 0, len(bundles))
	for _, b := range bundles {
		out = append(out, b.ID())
	}
	return out
}
