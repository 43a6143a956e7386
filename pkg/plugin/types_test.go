// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package plugin_test

import (
	"testing"

	"github.com/sigil-dev/plugctl/pkg/plugin"
	"github.com/stretchr/testify/assert"
)

func TestTypeValues(t *testing.T) {
	assert.Equal(t, plugin.Type("feature"), plugin.TypeFeature)
	assert.Equal(t, plugin.Type("component"), plugin.TypeComponent)
	assert.Equal(t, plugin.Type("api"), plugin.TypeAPI)
	assert.Equal(t, plugin.Type("theme"), plugin.TypeTheme)
	assert.Equal(t, plugin.Type("utility"), plugin.TypeUtility)
}

func TestDescriptorDependsOn(t *testing.T) {
	d := plugin.Descriptor{ID: "blog", Dependencies: []string{"core", "auth"}}
	assert.True(t, d.DependsOn("core"))
	assert.True(t, d.DependsOn("auth"))
	assert.False(t, d.DependsOn("blog"))
}

func TestHostContextResource(t *testing.T) {
	var nilHost *plugin.HostContext
	_, ok := nilHost.Resource("db")
	assert.False(t, ok)

	host := &plugin.HostContext{Resources: map[string]any{"db": 42}}
	v, ok := host.Resource("db")
	assert.True(t, ok)
	assert.Equal(t, 42, v)
}

func TestBundleID(t *testing.T) {
	b := &plugin.Bundle{Descriptor: plugin.Descriptor{ID: "core"}}
	assert.Equal(t, "core", b.ID())
}
