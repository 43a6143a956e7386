// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sigil-dev/plugctl/internal/source"
	"github.com/sigil-dev/plugctl/internal/status"
	"github.com/sigil-dev/plugctl/internal/status/sqlite"
	plugerr "github.com/sigil-dev/plugctl/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDBPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "status", "plugins.db")
}

func TestStore_PutGetList(t *testing.T) {
	ctx := context.Background()
	s, err := sqlite.NewStore(testDBPath(t))
	require.NoError(t, err)
	defer s.Close()

	rec := &status.Record{
		ID:          "blog",
		Installed:   true,
		Enabled:     true,
		Version:     "1.2.0",
		Source:      source.Locator{Type: source.TypeNPM, Package: "@plugctl/blog", Version: "1.2.0"},
		InstalledAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.Put(ctx, rec))
	require.NoError(t, s.Put(ctx, &status.Record{ID: "core", Installed: true, Source: source.Locator{Type: source.TypeLocal, Path: "./core"}}))

	got, err := s.Get(ctx, "blog")
	require.NoError(t, err)
	assert.Equal(t, rec.Version, got.Version)
	assert.Equal(t, rec.Source, got.Source)
	assert.True(t, got.Enabled)
	assert.True(t, rec.InstalledAt.Equal(got.InstalledAt))

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "blog", list[0].ID)
	assert.Equal(t, "core", list[1].ID)
	assert.True(t, list[1].InstalledAt.IsZero())
}

func TestStore_PutUpserts(t *testing.T) {
	ctx := context.Background()
	s, err := sqlite.NewStore(testDBPath(t))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put(ctx, &status.Record{ID: "blog", Installed: true, Version: "1.0.0"}))
	require.NoError(t, s.Put(ctx, &status.Record{ID: "blog", Installed: true, Version: "2.0.0", Error: "previous failure"}))

	got, err := s.Get(ctx, "blog")
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", got.Version)
	assert.Equal(t, "previous failure", got.Error)
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	s, err := sqlite.NewStore(testDBPath(t))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put(ctx, &status.Record{ID: "blog"}))
	require.NoError(t, s.Delete(ctx, "blog"))

	_, err = s.Get(ctx, "blog")
	assert.True(t, plugerr.IsNotFound(err))
	assert.True(t, plugerr.IsNotFound(s.Delete(ctx, "blog")))
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := testDBPath(t)

	s, err := sqlite.NewStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, &status.Record{ID: "blog", Installed: true}))
	require.NoError(t, s.Close())

	reopened, err := status.Open(status.Config{Backend: "sqlite", Path: path})
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, "blog")
	require.NoError(t, err)
	assert.True(t, got.Installed)
}
