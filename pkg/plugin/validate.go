// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package plugin

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// idRe matches plugin ids: a lowercase slug usable as a directory name and
// as the unscoped part of a catalog package name.
var idRe = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

// validTypes enumerates recognized plugin types.
var validTypes = map[Type]bool{
	TypeFeature:   true,
	TypeComponent: true,
	TypeAPI:       true,
	TypeTheme:     true,
	TypeUtility:   true,
}

// ValidID reports whether id is a well-formed plugin id.
func ValidID(id string) bool {
	return len(id) <= 214 && idRe.MatchString(id)
}

// Validate checks that the Descriptor is well-formed. It returns an error
// describing the first validation failure encountered, or nil if the
// descriptor is valid.
func (d *Descriptor) Validate() error {
	if err := d.validateID(); err != nil {
		return err
	}
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("descriptor validation: name must not be empty")
	}
	if err := d.validateVersion(); err != nil {
		return err
	}
	if !validTypes[d.Type] {
		return fmt.Errorf("descriptor validation: type must be one of [feature, component, api, theme, utility], got %q", d.Type)
	}
	return d.validateDependencies()
}

func (d *Descriptor) validateID() error {
	if d.ID == "" {
		return fmt.Errorf("descriptor validation: id must not be empty")
	}
	if !ValidID(d.ID) {
		return fmt.Errorf("descriptor validation: id %q must be a lowercase slug", d.ID)
	}
	return nil
}

func (d *Descriptor) validateVersion() error {
	if d.Version == "" {
		return fmt.Errorf("descriptor validation: version must not be empty")
	}
	if _, err := semver.StrictNewVersion(d.Version); err != nil {
		return fmt.Errorf("descriptor validation: version must be valid semver (MAJOR.MINOR.PATCH), got %q", d.Version)
	}
	return nil
}

func (d *Descriptor) validateDependencies() error {
	seen := make(map[string]bool, len(d.Dependencies))
	for i, dep := range d.Dependencies {
		if !ValidID(dep) {
			return fmt.Errorf("descriptor validation: dependencies[%d]: %q is not a valid plugin id", i, dep)
		}
		if dep == d.ID {
			return fmt.Errorf("descriptor validation: dependencies[%d]: plugin cannot depend on itself", i)
		}
		if seen[dep] {
			return fmt.Errorf("descriptor validation: dependencies[%d]: duplicate dependency %q", i, dep)
		}
		seen[dep] = true
	}
	return nil
}
