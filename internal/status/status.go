// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package status persists one installation record per plugin id.
package status

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sigil-dev/plugctl/internal/source"
	plugerr "github.com/sigil-dev/plugctl/pkg/errors"
	"github.com/spf13/afero"
)

// Record is the persisted installation state of one plugin.
type Record struct {
	ID          string         `json:"id"`
	Installed   bool           `json:"installed"`
	Enabled     bool           `json:"enabled"`
	Version     string         `json:"version,omitempty"`
	Source      source.Locator `json:"source"`
	InstalledAt time.Time      `json:"installedAt,omitzero"`
	Error       string         `json:"error,omitempty"`
}

// Clone returns an independent copy of r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// Store reads and writes installation records. Implementations persist
// every mutation before returning.
type Store interface {
	Get(ctx context.Context, id string) (*Record, error)
	List(ctx context.Context) ([]*Record, error)
	Put(ctx context.Context, rec *Record) error
	Delete(ctx context.Context, id string) error
	Close() error
}

// Config selects and locates a status backend.
type Config struct {
	Backend string
	Path    string
	// Fs is used by file-backed backends. Nil means the OS filesystem.
	Fs afero.Fs
}

// Factory opens a Store for a backend.
type Factory func(cfg Config) (Store, error)

var (
	factories   = map[string]Factory{}
	factoriesMu sync.RWMutex
)

// RegisterBackend registers a named backend. Backend packages call this from
// init(). This function is goroutine-safe.
func RegisterBackend(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

// Backends returns the registered backend names, sorted.
func Backends() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open creates the store for cfg.Backend, defaulting to "json".
func Open(cfg Config) (Store, error) {
	backend := cfg.Backend
	if backend == "" {
		backend = "json"
	}

	factoriesMu.RLock()
	f, ok := factories[backend]
	factoriesMu.RUnlock()
	if !ok {
		return nil, plugerr.New(plugerr.CodeStatusReadFailure,
			fmt.Sprintf("unsupported status backend: %q", backend), plugerr.Field("backend", backend))
	}
	return f(cfg)
}

func notFound(id string) error {
	return plugerr.New(plugerr.CodeStatusNotFound,
		fmt.Sprintf("no installation record for %q", id), plugerr.FieldPlugin(id))
}

func sortRecords(records []*Record) {
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
}
