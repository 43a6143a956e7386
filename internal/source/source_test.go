// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package source_test

import (
	"testing"

	"github.com/sigil-dev/plugctl/internal/source"
	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestParse(t *testing.T) {
	tests := []struct {
		raw  string
		want source.Locator
	}{
		{"@scope/name", source.Locator{Type: source.TypeNPM, Package: "@scope/name"}},
		{"plain-name", source.Locator{Type: source.TypeNPM, Package: "plain-name"}},
		{"plain-name@1.2.3", source.Locator{Type: source.TypeNPM, Package: "plain-name", Version: "1.2.3"}},
		{"@plugctl/blog@2.0.0", source.Locator{Type: source.TypeNPM, Package: "@plugctl/blog", Version: "2.0.0"}},
		{"  padded  ", source.Locator{Type: source.TypeNPM, Package: "padded"}},
		{"https://github.com/u/r.git", source.Locator{Type: source.TypeGit, URL: "https://github.com/u/r.git"}},
		{"git+https://example.com/u/r", source.Locator{Type: source.TypeGit, URL: "https://example.com/u/r"}},
		{"github:user/repo", source.Locator{Type: source.TypeGit, URL: "github:user/repo"}},
		{"https://gitlab.com/group/project", source.Locator{Type: source.TypeGit, URL: "https://gitlab.com/group/project"}},
		{"https://host/file.tgz", source.Locator{Type: source.TypeURL, URL: "https://host/file.tgz"}},
		{"http://host/plugin.tar.gz", source.Locator{Type: source.TypeURL, URL: "http://host/plugin.tar.gz"}},
		{"./x", source.Locator{Type: source.TypeLocal, Path: "./x"}},
		{"/x", source.Locator{Type: source.TypeLocal, Path: "/x"}},
		{"~/plugins/blog", source.Locator{Type: source.TypeLocal, Path: "~/plugins/blog"}},
		{"Weird Name", source.Locator{Type: source.TypeNPM, Package: "Weird Name"}},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, source.Parse(tt.raw))
		})
	}
}

func TestParse_ScopedNameIsNeverLocal(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		scope := rapid.StringMatching(`[a-z0-9][a-z0-9-]{0,10}`).Draw(t, "scope")
		name := rapid.StringMatching(`[a-z0-9][a-z0-9-._]{0,20}`).Draw(t, "name")

		loc := source.Parse("@" + scope + "/" + name)
		assert.Equal(t, source.TypeNPM, loc.Type)
		assert.Equal(t, "@"+scope+"/"+name, loc.Package)
	})
}

func TestParse_Deterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		raw := rapid.String().Draw(t, "raw")
		assert.Equal(t, source.Parse(raw), source.Parse(raw))
	})
}

func TestLocator_StringRoundTrip(t *testing.T) {
	for _, raw := range []string{
		"@scope/name",
		"name@1.0.0",
		"https://github.com/u/r.git",
		"git+ssh://example.com/u/r",
		"https://host/file.tgz",
		"./local/dir",
	} {
		t.Run(raw, func(t *testing.T) {
			loc := source.Parse(raw)
			assert.Equal(t, loc, source.Parse(loc.String()))
		})
	}
}

func TestLocator_IsZero(t *testing.T) {
	assert.True(t, source.Locator{}.IsZero())
	assert.False(t, source.Parse("x").IsZero())
}
