// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package pack

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	plugerr "github.com/sigil-dev/plugctl/pkg/errors"
)

// tarballRoot is the directory npm-shaped registries nest package content under.
const tarballRoot = "package/"

// MaxFileSize bounds a single decoded archive entry.
const MaxFileSize = 32 << 20

// EncodeTarball writes files as a gzip tar archive with every entry under
// "package/". Entries are written in path order with a fixed mtime, so equal
// file sets produce identical archives.
func EncodeTarball(files map[string][]byte) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	for _, p := range Paths(files) {
		name, err := cleanEntry(p)
		if err != nil {
			return nil, err
		}
		hdr := &tar.Header{
			Name:     tarballRoot + name,
			Mode:     0o644,
			Size:     int64(len(files[p])),
			ModTime:  time.Unix(0, 0).UTC(),
			Typeflag: tar.TypeReg,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, plugerr.Wrap(err, plugerr.CodePackArchiveInvalid, "writing tar header", plugerr.FieldPath(p))
		}
		if _, err := tw.Write(files[p]); err != nil {
			return nil, plugerr.Wrap(err, plugerr.CodePackArchiveInvalid, "writing tar entry", plugerr.FieldPath(p))
		}
	}

	if err := tw.Close(); err != nil {
		return nil, plugerr.Wrap(err, plugerr.CodePackArchiveInvalid, "closing tar writer")
	}
	if err := gz.Close(); err != nil {
		return nil, plugerr.Wrap(err, plugerr.CodePackArchiveInvalid, "closing gzip writer")
	}
	return buf.Bytes(), nil
}

// DecodeTarball reads a gzip tar archive into a file set. A leading
// "package/" directory is stripped. Entries that are not regular files are
// ignored; entries escaping the archive root are rejected.
func DecodeTarball(r io.Reader) (map[string][]byte, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, plugerr.Wrap(err, plugerr.CodePackArchiveInvalid, "opening gzip stream")
	}
	defer gz.Close()

	files := make(map[string][]byte)
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, plugerr.Wrap(err, plugerr.CodePackArchiveInvalid, "reading tar entry")
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		name, err := cleanEntry(strings.TrimPrefix(hdr.Name, tarballRoot))
		if err != nil {
			return nil, err
		}
		if hdr.Size > MaxFileSize {
			return nil, plugerr.New(plugerr.CodePackArchiveInvalid,
				fmt.Sprintf("archive entry %q exceeds %d bytes", hdr.Name, MaxFileSize), plugerr.FieldPath(hdr.Name))
		}

		data, err := io.ReadAll(io.LimitReader(tr, MaxFileSize))
		if err != nil {
			return nil, plugerr.Wrap(err, plugerr.CodePackArchiveInvalid, "reading tar entry", plugerr.FieldPath(hdr.Name))
		}
		files[name] = data
	}

	return files, nil
}

// cleanEntry normalizes an archive path and rejects absolute paths and
// entries that climb out of the root.
func cleanEntry(name string) (string, error) {
	cleaned := path.Clean(strings.ReplaceAll(name, "\\", "/"))
	if cleaned == "." || path.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", plugerr.New(plugerr.CodePackArchiveInvalid,
			fmt.Sprintf("archive entry %q escapes the package root", name), plugerr.FieldPath(name))
	}
	return cleaned, nil
}
