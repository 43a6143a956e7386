// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package loader turns plugin directories into registrable bundles.
package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sigil-dev/plugctl/internal/pack"
	plugerr "github.com/sigil-dev/plugctl/pkg/errors"
	"github.com/sigil-dev/plugctl/pkg/plugin"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// BundleLoader loads the plugin bundle stored in a directory.
type BundleLoader interface {
	Load(ctx context.Context, dir string) (*plugin.Bundle, error)
}

// Entry is the parsed bundle.yaml of a plugin directory.
type Entry struct {
	Factory    string            `yaml:"factory"`
	Routes     []plugin.Route    `yaml:"routes"`
	API        []EntryEndpoint   `yaml:"api"`
	Components map[string]string `yaml:"components"`
	Database   []string          `yaml:"database"`
}

// EntryEndpoint is a static API response: the file content is served at
// Path for Method.
type EntryEndpoint struct {
	Method string `yaml:"method"`
	Path   string `yaml:"path"`
	File   string `yaml:"file"`
}

// FSLoader reads plugin.json and bundle.yaml through an afero filesystem.
// Both documents are validated against embedded JSON schemas; anything that
// does not validate is rejected. A factory named by the entry must be known.
type FSLoader struct {
	fs        afero.Fs
	factories Factories
	logger    *slog.Logger
}

// NewFSLoader creates a filesystem loader. A nil fs uses the OS filesystem.
func NewFSLoader(fs afero.Fs, factories Factories, logger *slog.Logger) *FSLoader {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if factories == nil {
		factories = Factories{}
	}
	return &FSLoader{fs: fs, factories: factories, logger: logger}
}

// Load implements BundleLoader.
func (l *FSLoader) Load(_ context.Context, dir string) (*plugin.Bundle, error) {
	descriptor, err := l.ReadDescriptor(dir)
	if err != nil {
		return nil, err
	}
	entry, err := l.readEntry(dir)
	if err != nil {
		return nil, err
	}

	b := &plugin.Bundle{}
	if entry.Factory != "" {
		factory, ok := l.factories[entry.Factory]
		if !ok {
			return nil, plugerr.New(plugerr.CodeLoaderFactoryNotFound,
				fmt.Sprintf("plugin %q requires unknown factory %q", descriptor.ID, entry.Factory),
				plugerr.FieldPlugin(descriptor.ID), plugerr.Field("factory", entry.Factory))
		}
		built, err := factory(*descriptor)
		if err != nil {
			return nil, plugerr.Wrap(err, plugerr.CodeLoaderBundleInvalid, "running factory "+entry.Factory,
				plugerr.FieldPlugin(descriptor.ID))
		}
		if built != nil {
			b = built
		}
	}

	b.Descriptor = *descriptor
	b.Dir = dir
	if err := l.applyEntry(b, entry); err != nil {
		return nil, err
	}

	l.logger.Debug("bundle loaded", "plugin", descriptor.ID, "path", dir, "factory", entry.Factory)
	return b, nil
}

// ReadDescriptor reads and validates the plugin.json in dir.
func (l *FSLoader) ReadDescriptor(dir string) (*plugin.Descriptor, error) {
	p := filepath.Join(dir, pack.DescriptorFile)
	raw, err := afero.ReadFile(l.fs, p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, plugerr.New(plugerr.CodeLoaderDescriptorNotFound,
				"no "+pack.DescriptorFile+" in "+dir, plugerr.FieldPath(dir))
		}
		return nil, plugerr.Wrap(err, plugerr.CodeManagerStoreReadFailure, "reading descriptor", plugerr.FieldPath(p))
	}

	descSchema, _, err := schemas()
	if err != nil {
		return nil, plugerr.Wrap(err, plugerr.CodeLoaderBundleInvalid, "loading descriptor schema")
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, plugerr.Wrap(err, plugerr.CodePluginDescriptorInvalid, "parsing "+p, plugerr.FieldPath(p))
	}
	issues, err := validate(descSchema, doc)
	if err != nil {
		return nil, plugerr.Wrap(err, plugerr.CodePluginDescriptorInvalid, "validating "+p, plugerr.FieldPath(p))
	}
	if len(issues) > 0 {
		return nil, plugerr.New(plugerr.CodePluginDescriptorInvalid,
			fmt.Sprintf("%s: %s", p, joinIssues(issues)), plugerr.FieldPath(p))
	}

	var d plugin.Descriptor
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, plugerr.Wrap(err, plugerr.CodePluginDescriptorInvalid, "parsing "+p, plugerr.FieldPath(p))
	}
	if err := d.Validate(); err != nil {
		return nil, plugerr.Wrap(err, plugerr.CodePluginDescriptorInvalid, p, plugerr.FieldPath(p))
	}
	return &d, nil
}

func (l *FSLoader) readEntry(dir string) (*Entry, error) {
	p := filepath.Join(dir, pack.EntryFile)
	raw, err := afero.ReadFile(l.fs, p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, plugerr.New(plugerr.CodeLoaderEntryNotFound,
				"no "+pack.EntryFile+" in "+dir, plugerr.FieldPath(dir))
		}
		return nil, plugerr.Wrap(err, plugerr.CodeManagerStoreReadFailure, "reading entry", plugerr.FieldPath(p))
	}
	return ParseEntry(raw)
}

// ParseEntry validates and decodes bundle.yaml content. An empty document
// is a valid data-only entry.
func ParseEntry(raw []byte) (*Entry, error) {
	_, schema, err := schemas()
	if err != nil {
		return nil, plugerr.Wrap(err, plugerr.CodeLoaderBundleInvalid, "loading entry schema")
	}

	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, plugerr.Wrap(err, plugerr.CodeLoaderBundleInvalid, "parsing "+pack.EntryFile)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	issues, err := validate(schema, doc)
	if err != nil {
		return nil, plugerr.Wrap(err, plugerr.CodeLoaderBundleInvalid, "validating "+pack.EntryFile)
	}
	if len(issues) > 0 {
		return nil, plugerr.New(plugerr.CodeLoaderBundleInvalid,
			fmt.Sprintf("%s: %s", pack.EntryFile, joinIssues(issues)))
	}

	var entry Entry
	if err := yaml.Unmarshal(raw, &entry); err != nil {
		return nil, plugerr.Wrap(err, plugerr.CodeLoaderBundleInvalid, "decoding "+pack.EntryFile)
	}
	return &entry, nil
}

// applyEntry appends the entry's declarative capabilities to b.
func (l *FSLoader) applyEntry(b *plugin.Bundle, entry *Entry) error {
	b.Routes = append(b.Routes, entry.Routes...)

	if len(entry.Components) > 0 && b.Components == nil {
		b.Components = make(map[string]string, len(entry.Components))
	}
	for name, asset := range entry.Components {
		b.Components[name] = asset
	}

	for _, ep := range entry.API {
		content, err := l.readBundleFile(b, ep.File)
		if err != nil {
			return err
		}
		b.API = append(b.API, plugin.Endpoint{
			Method:  ep.Method,
			Path:    ep.Path,
			Handler: staticHandler(ep.File, content),
		})
	}

	if len(entry.Database) > 0 {
		if b.Schema == nil {
			b.Schema = &plugin.Schema{}
		}
		files := append([]string(nil), entry.Database...)
		sort.Strings(files)
		for _, f := range files {
			content, err := l.readBundleFile(b, f)
			if err != nil {
				return err
			}
			b.Schema.Statements = append(b.Schema.Statements, string(content))
		}
	}
	return nil
}

func (l *FSLoader) readBundleFile(b *plugin.Bundle, rel string) ([]byte, error) {
	cleaned := path.Clean(rel)
	if path.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return nil, plugerr.New(plugerr.CodeLoaderBundleInvalid,
			fmt.Sprintf("plugin %q references %q outside its directory", b.ID(), rel), plugerr.FieldPlugin(b.ID()))
	}
	p := filepath.Join(b.Dir, filepath.FromSlash(cleaned))
	content, err := afero.ReadFile(l.fs, p)
	if err != nil {
		return nil, plugerr.Wrap(err, plugerr.CodeLoaderBundleInvalid,
			fmt.Sprintf("plugin %q references missing file %q", b.ID(), rel), plugerr.FieldPlugin(b.ID()), plugerr.FieldPath(p))
	}
	return content, nil
}

func staticHandler(name string, content []byte) http.Handler {
	contentType := mime.TypeByExtension(path.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write(content)
	})
}
