// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package status

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	plugerr "github.com/sigil-dev/plugctl/pkg/errors"
	"github.com/spf13/afero"
)

// DocumentName is the default status document file name inside the store.
const DocumentName = ".plugins-status.json"

func init() {
	RegisterBackend("json", func(cfg Config) (Store, error) {
		return NewJSONStore(cfg.Fs, cfg.Path)
	})
}

// Compile-time interface check.
var _ Store = (*JSONStore)(nil)

// JSONStore keeps all records in one JSON document mapping id to record.
// The document is read once at construction and rewritten in full after
// every mutation.
type JSONStore struct {
	mu      sync.RWMutex
	fs      afero.Fs
	path    string
	records map[string]*Record
}

// NewJSONStore opens the document at path. A missing document is an empty
// store; a document that does not parse is an error.
func NewJSONStore(fs afero.Fs, path string) (*JSONStore, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	s := &JSONStore{fs: fs, path: path, records: make(map[string]*Record)}

	raw, err := afero.ReadFile(fs, path)
	switch {
	case os.IsNotExist(err):
		return s, nil
	case err != nil:
		return nil, plugerr.Wrap(err, plugerr.CodeStatusReadFailure, "reading status document", plugerr.FieldPath(path))
	}

	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &s.records); err != nil {
			return nil, plugerr.Wrap(err, plugerr.CodeStatusReadFailure, "parsing status document", plugerr.FieldPath(path))
		}
	}
	for id, rec := range s.records {
		if rec == nil {
			delete(s.records, id)
			continue
		}
		rec.ID = id
	}
	return s, nil
}

// Path returns the document location.
func (s *JSONStore) Path() string {
	return s.path
}

func (s *JSONStore) Get(_ context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, notFound(id)
	}
	return rec.Clone(), nil
}

func (s *JSONStore) List(_ context.Context) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.Clone())
	}
	sortRecords(out)
	return out, nil
}

func (s *JSONStore) Put(_ context.Context, rec *Record) error {
	if rec == nil || rec.ID == "" {
		return plugerr.New(plugerr.CodeStatusWriteFailure, "record id must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had := s.records[rec.ID]
	s.records[rec.ID] = rec.Clone()
	if err := s.flush(); err != nil {
		if had {
			s.records[rec.ID] = prev
		} else {
			delete(s.records, rec.ID)
		}
		return err
	}
	return nil
}

func (s *JSONStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.records[id]
	if !ok {
		return notFound(id)
	}
	delete(s.records, id)
	if err := s.flush(); err != nil {
		s.records[id] = prev
		return err
	}
	return nil
}

func (s *JSONStore) Close() error {
	return nil
}

// flush writes the document to a temporary sibling and renames it over the
// original. Caller holds s.mu.
func (s *JSONStore) flush() error {
	raw, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return plugerr.Wrap(err, plugerr.CodeStatusWriteFailure, "encoding status document")
	}

	dir := filepath.Dir(s.path)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return plugerr.Wrap(err, plugerr.CodeStatusWriteFailure, "creating status directory", plugerr.FieldPath(dir))
	}

	tmp, err := afero.TempFile(s.fs, dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return plugerr.Wrap(err, plugerr.CodeStatusWriteFailure, "creating temp status document", plugerr.FieldPath(dir))
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(raw, '\n')); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpName)
		return plugerr.Wrap(err, plugerr.CodeStatusWriteFailure, "writing status document", plugerr.FieldPath(tmpName))
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return plugerr.Wrap(err, plugerr.CodeStatusWriteFailure, "closing status document", plugerr.FieldPath(tmpName))
	}
	if err := s.fs.Rename(tmpName, s.path); err != nil {
		_ = s.fs.Remove(tmpName)
		return plugerr.Wrap(err, plugerr.CodeStatusWriteFailure, "replacing status document", plugerr.FieldPath(s.path))
	}
	return nil
}
