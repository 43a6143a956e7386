// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package catalog

import (
	"bytes"
	"context"
	"crypto/sha1" //nolint:gosec // npm dist.shasum is SHA-1
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"

	"github.com/sigil-dev/plugctl/internal/pack"
	plugerr "github.com/sigil-dev/plugctl/pkg/errors"
	"github.com/sigil-dev/plugctl/pkg/plugin"
)

// packageJSON is the npm manifest generated for a published plugin.
type packageJSON struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description,omitempty"`
	Author      string   `json:"author,omitempty"`
	Keywords    []string `json:"keywords"`
	Files       []string `json:"files"`
	Plugin      struct {
		ID       string `json:"id"`
		Checksum string `json:"checksum"`
	} `json:"plugctl"`
}

type publishVersion struct {
	packageJSON
	ID   string `json:"_id"`
	Dist dist   `json:"dist"`
}

type attachment struct {
	ContentType string `json:"content_type"`
	Data        string `json:"data"`
	Length      int    `json:"length"`
}

type publishDocument struct {
	ID          string                    `json:"_id"`
	Name        string                    `json:"name"`
	Description string                    `json:"description,omitempty"`
	DistTags    map[string]string         `json:"dist-tags"`
	Versions    map[string]publishVersion `json:"versions"`
	Attachments map[string]attachment     `json:"_attachments"`
}

// ValidatePackage checks that pkg carries what a catalog needs to accept it.
func ValidatePackage(pkg *pack.Package) error {
	if pkg == nil {
		return plugerr.New(plugerr.CodeCatalogPublishInvalid, "package is nil")
	}
	if _, ok := pkg.Files[pack.DescriptorFile]; !ok {
		return plugerr.New(plugerr.CodeCatalogPublishInvalid,
			"package has no "+pack.DescriptorFile, plugerr.FieldPlugin(pkg.Descriptor.ID))
	}
	if err := pkg.Descriptor.Validate(); err != nil {
		return plugerr.Wrap(err, plugerr.CodeCatalogPublishInvalid, "validating package descriptor",
			plugerr.FieldPlugin(pkg.Descriptor.ID))
	}
	if pkg.Manifest.Checksum != "" && pkg.Manifest.Checksum != pack.Checksum(pkg.Files) {
		return plugerr.New(plugerr.CodeCatalogPublishInvalid,
			"manifest checksum does not match package content", plugerr.FieldPlugin(pkg.Descriptor.ID))
	}
	return nil
}

// Publish implements Client. The package is sent as a single npm publish
// document carrying the tarball as a base64 attachment.
func (c *NPMClient) Publish(ctx context.Context, pkg *pack.Package, auth Auth) error {
	if err := ValidatePackage(pkg); err != nil {
		return err
	}
	d := pkg.Descriptor
	name := c.naming.PackageName(d.ID)

	manifest := c.manifestFor(name, d, pkg)
	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return plugerr.Wrap(err, plugerr.CodeCatalogPublishInvalid, "encoding package.json")
	}

	files := make(map[string][]byte, len(pkg.Files)+1)
	for p, content := range pkg.Files {
		files[p] = content
	}
	files["package.json"] = manifestJSON

	archive, err := pack.EncodeTarball(files)
	if err != nil {
		return err
	}

	sha := sha1.Sum(archive) //nolint:gosec // npm dist.shasum
	integrity := sha512.Sum512(archive)
	filename := fmt.Sprintf("%s-%s.tgz", path.Base(name), d.Version)

	doc := publishDocument{
		ID:          name,
		Name:        name,
		Description: d.Description,
		DistTags:    map[string]string{"latest": d.Version},
		Versions: map[string]publishVersion{
			d.Version: {
				packageJSON: manifest,
				ID:          name + "@" + d.Version,
				Dist: dist{
					Tarball:   fmt.Sprintf("%s/%s/-/%s", c.baseURL, name, filename),
					Shasum:    hex.EncodeToString(sha[:]),
					Integrity: "sha512-" + base64.StdEncoding.EncodeToString(integrity[:]),
				},
			},
		},
		Attachments: map[string]attachment{
			filename: {
				ContentType: "application/octet-stream",
				Data:        base64.StdEncoding.EncodeToString(archive),
				Length:      len(archive),
			},
		},
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return plugerr.Wrap(err, plugerr.CodeCatalogPublishInvalid, "encoding publish document")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/"+url.PathEscape(name), bytes.NewReader(body))
	if err != nil {
		return plugerr.Wrap(err, plugerr.CodeCatalogPublishFailure, "creating publish request")
	}
	req.Header.Set("Content-Type", "application/json")
	if auth.Token != "" {
		req.Header.Set("Authorization", "Bearer "+auth.Token)
	}

	resp, err := c.send(req)
	if err != nil {
		return plugerr.Wrap(err, plugerr.CodeCatalogPublishFailure, "publishing "+name, plugerr.FieldPlugin(d.ID))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return plugerr.New(plugerr.CodeCatalogPublishFailure,
			fmt.Sprintf("catalog rejected %s@%s with %d: %s", name, d.Version, resp.StatusCode, bytes.TrimSpace(msg)),
			plugerr.FieldPlugin(d.ID), plugerr.FieldVersion(d.Version), plugerr.Field("status", resp.StatusCode))
	}

	c.logger.Info("plugin published", "plugin", d.ID, "version", d.Version, "package", name)
	return nil
}

func (c *NPMClient) manifestFor(name string, d plugin.Descriptor, pkg *pack.Package) packageJSON {
	m := packageJSON{
		Name:        name,
		Version:     d.Version,
		Description: d.Description,
		Author:      d.Author,
		Keywords:    []string{c.keyword},
		Files:       pack.Paths(pkg.Files),
	}
	m.Plugin.ID = d.ID
	m.Plugin.Checksum = pack.Checksum(pkg.Files)
	return m
}
