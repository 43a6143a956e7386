// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package manager

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sigil-dev/plugctl/internal/catalog"
	"github.com/sigil-dev/plugctl/internal/pack"
	plugerr "github.com/sigil-dev/plugctl/pkg/errors"
	"github.com/spf13/afero"
)

// PackageDirs are the bundle directories included in a package.
var PackageDirs = []string{"routes", "api", "components", "database"}

// PublishOptions selects the catalog and credentials for Publish.
type PublishOptions struct {
	RegistryURL string
	Token       string
}

// Package collects the plugin at dir into a distributable package: the
// descriptor, the entry file when present and every file under PackageDirs.
// Hidden files are left out.
func (m *Manager) Package(ctx context.Context, dir string) (*pack.Package, error) {
	root, err := expandPath(dir)
	if err != nil {
		return nil, plugerr.Wrap(err, plugerr.CodeManagerStoreReadFailure, "resolving "+dir, plugerr.FieldPath(dir))
	}

	files := make(map[string][]byte)
	descriptor, err := afero.ReadFile(m.fs, filepath.Join(root, pack.DescriptorFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, plugerr.New(plugerr.CodeManagerPackageMissingDescriptor,
				fmt.Sprintf("%s has no %s", root, pack.DescriptorFile), plugerr.FieldPath(root))
		}
		return nil, plugerr.Wrap(err, plugerr.CodeManagerStoreReadFailure, "reading descriptor", plugerr.FieldPath(root))
	}
	files[pack.DescriptorFile] = descriptor

	entry, err := afero.ReadFile(m.fs, filepath.Join(root, pack.EntryFile))
	switch {
	case err == nil:
		files[pack.EntryFile] = entry
	case !os.IsNotExist(err):
		return nil, plugerr.Wrap(err, plugerr.CodeManagerStoreReadFailure, "reading entry file", plugerr.FieldPath(root))
	}

	for _, sub := range PackageDirs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := m.collect(root, sub, files); err != nil {
			return nil, err
		}
	}

	pkg, err := pack.FromFiles(files)
	if err != nil {
		return nil, err
	}
	if err := pkg.Descriptor.Validate(); err != nil {
		return nil, plugerr.Wrap(err, plugerr.CodePluginDescriptorInvalid, "validating "+pack.DescriptorFile, plugerr.FieldPath(root))
	}
	m.logger.Info("plugin packaged", "plugin", pkg.Descriptor.ID, "version", pkg.Descriptor.Version,
		"files", len(pkg.Files), "checksum", pkg.Manifest.Checksum)
	return pkg, nil
}

func (m *Manager) collect(root, sub string, files map[string][]byte) error {
	base := filepath.Join(root, sub)
	if ok, _ := afero.DirExists(m.fs, base); !ok {
		return nil
	}
	return afero.Walk(m.fs, base, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return plugerr.Wrap(err, plugerr.CodeManagerStoreReadFailure, "walking plugin directory", plugerr.FieldPath(p))
		}
		if strings.HasPrefix(info.Name(), ".") {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return plugerr.Wrap(err, plugerr.CodeManagerStoreReadFailure, "resolving package path", plugerr.FieldPath(p))
		}
		content, err := afero.ReadFile(m.fs, p)
		if err != nil {
			return plugerr.Wrap(err, plugerr.CodeManagerStoreReadFailure, "reading plugin file", plugerr.FieldPath(p))
		}
		files[filepath.ToSlash(rel)] = content
		return nil
	})
}

// ArchiveName is the conventional file name of a package archive.
func ArchiveName(pkg *pack.Package) string {
	return fmt.Sprintf("%s-%s.tgz", pkg.Descriptor.ID, pkg.Descriptor.Version)
}

// WriteArchive writes pkg as a gzipped tarball. When out is empty or an
// existing directory the archive is named by ArchiveName. It returns the
// path written.
func (m *Manager) WriteArchive(pkg *pack.Package, out string) (string, error) {
	if out == "" {
		out = "."
	}
	if ok, _ := afero.DirExists(m.fs, out); ok {
		out = filepath.Join(out, ArchiveName(pkg))
	}

	archive, err := pack.EncodeTarball(pkg.Files)
	if err != nil {
		return "", err
	}
	if err := afero.WriteFile(m.fs, out, archive, 0o644); err != nil {
		return "", plugerr.Wrap(err, plugerr.CodeManagerStoreWriteFailure, "writing package archive", plugerr.FieldPath(out))
	}
	return out, nil
}

// Publish packages the plugin at dir and publishes it to the catalog.
func (m *Manager) Publish(ctx context.Context, dir string, opts PublishOptions) (*pack.Package, error) {
	pkg, err := m.Package(ctx, dir)
	if err != nil {
		return nil, err
	}
	client, err := m.clientFor(opts.RegistryURL)
	if err != nil {
		return pkg, err
	}
	if err := client.Publish(ctx, pkg, catalog.Auth{Token: opts.Token}); err != nil {
		return pkg, err
	}
	return pkg, nil
}
