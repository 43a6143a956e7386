// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package source classifies user-supplied installation sources.
package source

import (
	"fmt"
	"regexp"
	"strings"
)

// Type is the kind of origin an installation request names.
type Type string

const (
	TypeNPM   Type = "npm"
	TypeGit   Type = "git"
	TypeURL   Type = "url"
	TypeLocal Type = "local"
)

// Locator is the classified origin of an installation request. Exactly the
// fields relevant to Type are set.
type Locator struct {
	Type    Type   `json:"type"`
	Package string `json:"package,omitempty"`
	Version string `json:"version,omitempty"`
	URL     string `json:"url,omitempty"`
	Path    string `json:"path,omitempty"`
}

var npmName = regexp.MustCompile(`^(@[a-z0-9-~][a-z0-9-._~]*/)?[a-z0-9-~][a-z0-9-._~]*$`)

var gitHosts = []string{"github.com", "gitlab.com", "bitbucket.org", "github:"}

// Parse classifies raw by the first matching rule:
//
//  1. an npm package name, optionally suffixed with @version
//  2. a git+ prefix, a known git host, or a .git suffix
//  3. an http:// or https:// URL
//  4. a path starting with ./, / or ~/
//  5. anything else is treated as an npm name
//
// Package names are tested first so "@scope/name" is never read as a path.
func Parse(raw string) Locator {
	s := strings.TrimSpace(raw)

	if name, version, ok := splitNPM(s); ok {
		return Locator{Type: TypeNPM, Package: name, Version: version}
	}

	if strings.HasPrefix(s, "git+") || strings.HasSuffix(s, ".git") || hasGitHost(s) {
		return Locator{Type: TypeGit, URL: strings.TrimPrefix(s, "git+")}
	}

	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		return Locator{Type: TypeURL, URL: s}
	}

	if strings.HasPrefix(s, "./") || strings.HasPrefix(s, "/") || strings.HasPrefix(s, "~/") {
		return Locator{Type: TypeLocal, Path: s}
	}

	return Locator{Type: TypeNPM, Package: s}
}

// splitNPM accepts "name", "@scope/name" and either with an "@version" suffix.
func splitNPM(s string) (name, version string, ok bool) {
	if npmName.MatchString(s) {
		return s, "", true
	}

	at := strings.LastIndex(s, "@")
	if at <= 0 {
		return "", "", false
	}
	name, version = s[:at], s[at+1:]
	if version == "" || strings.ContainsAny(version, "/: ") || !npmName.MatchString(name) {
		return "", "", false
	}
	return name, version, true
}

func hasGitHost(s string) bool {
	for _, host := range gitHosts {
		if strings.Contains(s, host) {
			return true
		}
	}
	return false
}

// String renders the locator back into a form Parse classifies the same way.
func (l Locator) String() string {
	switch l.Type {
	case TypeNPM:
		if l.Version != "" {
			return l.Package + "@" + l.Version
		}
		return l.Package
	case TypeGit:
		if strings.HasSuffix(l.URL, ".git") || hasGitHost(l.URL) {
			return l.URL
		}
		return "git+" + l.URL
	case TypeURL:
		return l.URL
	case TypeLocal:
		return l.Path
	default:
		return fmt.Sprintf("%s:%s", l.Type, l.Package)
	}
}

// IsZero reports whether the locator was never set.
func (l Locator) IsZero() bool {
	return l == Locator{}
}
