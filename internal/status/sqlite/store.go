// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package sqlite provides a SQLite-backed status.Store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sigil-dev/plugctl/internal/source"
	"github.com/sigil-dev/plugctl/internal/status"
	plugerr "github.com/sigil-dev/plugctl/pkg/errors"
)

func init() {
	status.RegisterBackend("sqlite", func(cfg status.Config) (status.Store, error) {
		return NewStore(cfg.Path)
	})
}

// Compile-time interface check.
var _ status.Store = (*Store)(nil)

// Store implements status.Store with one row per plugin.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) a SQLite database at dbPath and initialises
// the installations table.
func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, plugerr.Wrap(err, plugerr.CodeStatusWriteFailure, "creating status directory", plugerr.FieldPath(dbPath))
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, plugerr.Wrap(err, plugerr.CodeStatusReadFailure, "opening sqlite db", plugerr.FieldPath(dbPath))
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, plugerr.Wrap(err, plugerr.CodeStatusReadFailure, "pinging sqlite db", plugerr.FieldPath(dbPath))
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, plugerr.Wrap(err, plugerr.CodeStatusWriteFailure, "migrating sqlite db", plugerr.FieldPath(dbPath))
	}

	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS installations (
	id           TEXT PRIMARY KEY,
	installed    INTEGER NOT NULL DEFAULT 0,
	enabled      INTEGER NOT NULL DEFAULT 0,
	version      TEXT NOT NULL DEFAULT '',
	source       TEXT NOT NULL DEFAULT '{}',
	installed_at TEXT NOT NULL DEFAULT '',
	error        TEXT NOT NULL DEFAULT ''
);
`
	_, err := db.Exec(ddl)
	return err
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, id string) (*status.Record, error) {
	const q = `SELECT id, installed, enabled, version, source, installed_at, error
FROM installations WHERE id = ?`

	rec, err := scanRecord(s.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, plugerr.New(plugerr.CodeStatusNotFound,
			fmt.Sprintf("no installation record for %q", id), plugerr.FieldPlugin(id))
	}
	if err != nil {
		return nil, plugerr.Wrap(err, plugerr.CodeStatusReadFailure, "getting record "+id, plugerr.FieldPlugin(id))
	}
	return rec, nil
}

func (s *Store) List(ctx context.Context) ([]*status.Record, error) {
	const q = `SELECT id, installed, enabled, version, source, installed_at, error
FROM installations ORDER BY id`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, plugerr.Wrap(err, plugerr.CodeStatusReadFailure, "listing records")
	}
	defer rows.Close()

	var out []*status.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, plugerr.Wrap(err, plugerr.CodeStatusReadFailure, "scanning record")
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, plugerr.Wrap(err, plugerr.CodeStatusReadFailure, "iterating records")
	}
	return out, nil
}

func (s *Store) Put(ctx context.Context, rec *status.Record) error {
	if rec == nil || rec.ID == "" {
		return plugerr.New(plugerr.CodeStatusWriteFailure, "record id must not be empty")
	}

	src, err := json.Marshal(rec.Source)
	if err != nil {
		return plugerr.Wrap(err, plugerr.CodeStatusWriteFailure, "encoding source", plugerr.FieldPlugin(rec.ID))
	}

	const q = `INSERT INTO installations (id, installed, enabled, version, source, installed_at, error)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	installed = excluded.installed,
	enabled = excluded.enabled,
	version = excluded.version,
	source = excluded.source,
	installed_at = excluded.installed_at,
	error = excluded.error`

	_, err = s.db.ExecContext(ctx, q,
		rec.ID,
		rec.Installed,
		rec.Enabled,
		rec.Version,
		string(src),
		formatTime(rec.InstalledAt),
		rec.Error,
	)
	if err != nil {
		return plugerr.Wrap(err, plugerr.CodeStatusWriteFailure, "writing record "+rec.ID, plugerr.FieldPlugin(rec.ID))
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM installations WHERE id = ?`, id)
	if err != nil {
		return plugerr.Wrap(err, plugerr.CodeStatusWriteFailure, "deleting record "+id, plugerr.FieldPlugin(id))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return plugerr.Wrap(err, plugerr.CodeStatusWriteFailure, "deleting record "+id, plugerr.FieldPlugin(id))
	}
	if n == 0 {
		return plugerr.New(plugerr.CodeStatusNotFound,
			fmt.Sprintf("no installation record for %q", id), plugerr.FieldPlugin(id))
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*status.Record, error) {
	var (
		rec         status.Record
		src         string
		installedAt string
	)
	if err := row.Scan(&rec.ID, &rec.Installed, &rec.Enabled, &rec.Version, &src, &installedAt, &rec.Error); err != nil {
		return nil, err
	}

	var loc source.Locator
	if err := json.Unmarshal([]byte(src), &loc); err != nil {
		return nil, fmt.Errorf("decoding source of %s: %w", rec.ID, err)
	}
	rec.Source = loc
	rec.InstalledAt = parseTime(installedAt)
	return &rec, nil
}

// formatTime serialises a time for storage. Zero times are stored as "".
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime deserialises a time string stored in the database.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
