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
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/sigil-dev/plugctl/internal/pack"
	plugerr "github.com/sigil-dev/plugctl/pkg/errors"
	"github.com/sigil-dev/plugctl/pkg/health"
)

// maxTarballSize bounds a downloaded archive.
const maxTarballSize = 64 << 20

// Compile-time interface check.
var (
	_ Client          = (*NPMClient)(nil)
	_ health.Reporter = (*NPMClient)(nil)
)

// NPMClient implements Client against an npm-registry-shaped HTTP API.
type NPMClient struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	naming     Naming
	keyword    string
	logger     *slog.Logger
	health     *health.Tracker
}

// Option configures an NPMClient.
type Option func(*NPMClient)

// WithHTTPClient sets the HTTP client used for every request.
func WithHTTPClient(client *http.Client) Option {
	return func(c *NPMClient) {
		c.httpClient = client
	}
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(c *NPMClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithScope sets the package scope plugin ids are published under.
func WithScope(scope string) Option {
	return func(c *NPMClient) {
		c.naming = Naming{Scope: scope}
	}
}

// WithKeyword sets the keyword identifying unscoped plugin packages.
func WithKeyword(keyword string) Option {
	return func(c *NPMClient) {
		c.keyword = keyword
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *NPMClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewNPMClient creates a client for the registry at baseURL. An empty
// baseURL means the public npm registry.
func NewNPMClient(baseURL string, opts ...Option) *NPMClient {
	if baseURL == "" {
		baseURL = DefaultRegistryURL
	}
	c := &NPMClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: DefaultTimeout,
		naming:  Naming{Scope: DefaultScope},
		keyword: DefaultKeyword,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}
	c.health, _ = health.NewTracker(health.DefaultCooldown)
	return c
}

// Health reports the registry's availability as seen by recent requests.
// Transport errors and 5xx responses count as failures.
func (c *NPMClient) Health() health.Metrics {
	return c.health.Metrics()
}

// send performs req and records the outcome in the health tracker.
func (c *NPMClient) send(req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil || resp.StatusCode >= http.StatusInternalServerError {
		c.health.RecordFailure()
	} else {
		c.health.RecordSuccess()
	}
	return resp, err
}

// BaseURL returns the registry root.
func (c *NPMClient) BaseURL() string {
	return c.baseURL
}

// Naming returns the id/package-name mapping in use.
func (c *NPMClient) Naming() Naming {
	return c.naming
}

// npm wire documents.

type searchResponse struct {
	Objects []struct {
		Package searchPackage `json:"package"`
	} `json:"objects"`
	Total int `json:"total"`
}

type searchPackage struct {
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Description string          `json:"description"`
	Keywords    []string        `json:"keywords"`
	Date        time.Time       `json:"date"`
	Author      json.RawMessage `json:"author"`
	Publisher   struct {
		Username string `json:"username"`
	} `json:"publisher"`
}

type packageDocument struct {
	Name        string                     `json:"name"`
	Description string                     `json:"description"`
	DistTags    map[string]string          `json:"dist-tags"`
	Versions    map[string]versionDocument `json:"versions"`
	Time        map[string]any             `json:"time"`
}

type versionDocument struct {
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Description string          `json:"description"`
	Keywords    []string        `json:"keywords"`
	Author      json.RawMessage `json:"author"`
	Dist        dist            `json:"dist"`
}

type dist struct {
	Tarball   string `json:"tarball"`
	Shasum    string `json:"shasum"`
	Integrity string `json:"integrity,omitempty"`
}

// Search implements Client.
func (c *NPMClient) Search(ctx context.Context, q Query) []PluginInfo {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		text = "keywords:" + c.keyword
	}
	size := q.Limit
	if size <= 0 {
		size = defaultSearchSize
	}

	params := url.Values{}
	params.Set("text", text)
	params.Set("size", strconv.Itoa(size))
	params.Set("from", strconv.Itoa(max(q.Offset, 0)))

	var resp searchResponse
	if err := c.getJSON(ctx, c.baseURL+"/-/v1/search?"+params.Encode(), &resp); err != nil {
		c.logger.Debug("catalog search failed", "text", text, "error", err)
		return []PluginInfo{}
	}

	out := make([]PluginInfo, 0, len(resp.Objects))
	for _, obj := range resp.Objects {
		p := obj.Package
		if !c.naming.InScope(p.Name) && !slices.Contains(p.Keywords, c.keyword) {
			continue
		}
		if !containsAny(p.Keywords, q.Keywords) {
			continue
		}
		author := authorName(p.Author)
		if author == "" {
			author = p.Publisher.Username
		}
		out = append(out, PluginInfo{
			ID:          c.naming.PluginID(p.Name),
			Name:        p.Name,
			Description: p.Description,
			Version:     p.Version,
			Author:      author,
			Keywords:    p.Keywords,
			UpdatedAt:   p.Date,
		})
	}
	return out
}

// GetPlugin implements Client.
func (c *NPMClient) GetPlugin(ctx context.Context, id, version string) (*PluginInfo, error) {
	name := c.naming.PackageName(id)

	var doc packageDocument
	err := c.getJSON(ctx, c.baseURL+"/"+url.PathEscape(name), &doc)
	if plugerr.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if version == "" {
		version = doc.DistTags["latest"]
		if version == "" {
			return nil, plugerr.New(plugerr.CodeCatalogResponseInvalid,
				fmt.Sprintf("package %q has no latest dist-tag", name), plugerr.FieldPlugin(id))
		}
	} else if tagged, ok := doc.DistTags[version]; ok {
		version = tagged
	}

	v, ok := doc.Versions[version]
	if !ok {
		return nil, nil
	}

	description := v.Description
	if description == "" {
		description = doc.Description
	}
	return &PluginInfo{
		ID:          c.naming.PluginID(name),
		Name:        name,
		Description: description,
		Version:     version,
		Author:      authorName(v.Author),
		Keywords:    v.Keywords,
		Checksum:    v.Dist.Shasum,
		Integrity:   v.Dist.Integrity,
		DownloadURL: v.Dist.Tarball,
		UpdatedAt:   parseTime(doc.Time[version]),
	}, nil
}

// Download implements Client. The archive's SHA-1 must match the catalog's
// dist.shasum, and its SHA-512 the dist.integrity, when those are present.
func (c *NPMClient) Download(ctx context.Context, id, version string) (*pack.Package, error) {
	info, err := c.GetPlugin(ctx, id, version)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, plugerr.New(plugerr.CodeCatalogPluginNotFound,
			fmt.Sprintf("plugin %q not found in catalog", versioned(id, version)),
			plugerr.FieldPlugin(id), plugerr.FieldVersion(version))
	}
	if info.DownloadURL == "" {
		return nil, plugerr.New(plugerr.CodeCatalogResponseInvalid,
			fmt.Sprintf("plugin %q has no tarball URL", versioned(id, info.Version)), plugerr.FieldPlugin(id))
	}

	archive, err := c.fetchTarball(ctx, info)
	if err != nil {
		return nil, err
	}
	if err := verify(archive, info.Checksum, info.Integrity); err != nil {
		return nil, plugerr.With(err, plugerr.FieldPlugin(id), plugerr.FieldVersion(info.Version))
	}

	files, err := pack.DecodeTarball(bytes.NewReader(archive))
	if err != nil {
		return nil, err
	}
	delete(files, "package.json")

	pkg, err := pack.FromFiles(files)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("catalog package downloaded", "plugin", id, "version", info.Version, "bytes", len(archive))
	return pkg, nil
}

func (c *NPMClient) fetchTarball(ctx context.Context, info *PluginInfo) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, info.DownloadURL, nil)
	if err != nil {
		return nil, plugerr.Wrap(err, plugerr.CodeCatalogDownloadFailure, "creating download request")
	}
	resp, err := c.send(req)
	if err != nil {
		return nil, plugerr.Wrap(err, plugerr.CodeCatalogDownloadFailure, "downloading "+info.DownloadURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, plugerr.New(plugerr.CodeCatalogDownloadFailure,
			fmt.Sprintf("download of %s returned %d", versioned(info.ID, info.Version), resp.StatusCode),
			plugerr.FieldPlugin(info.ID), plugerr.Field("status", resp.StatusCode))
	}

	archive, err := io.ReadAll(io.LimitReader(resp.Body, maxTarballSize+1))
	if err != nil {
		return nil, plugerr.Wrap(err, plugerr.CodeCatalogDownloadFailure, "reading download body")
	}
	if len(archive) > maxTarballSize {
		return nil, plugerr.New(plugerr.CodeCatalogDownloadFailure,
			fmt.Sprintf("archive for %s exceeds %d bytes", info.ID, maxTarballSize), plugerr.FieldPlugin(info.ID))
	}
	return archive, nil
}

func verify(archive []byte, shasum, integrity string) error {
	if shasum != "" {
		sum := sha1.Sum(archive) //nolint:gosec // npm dist.shasum
		if got := hex.EncodeToString(sum[:]); !strings.EqualFold(got, shasum) {
			return plugerr.New(plugerr.CodeCatalogChecksumMismatch,
				fmt.Sprintf("shasum mismatch: expected %s, got %s", shasum, got))
		}
	}
	if want, ok := strings.CutPrefix(integrity, "sha512-"); ok {
		sum := sha512.Sum512(archive)
		if got := base64.StdEncoding.EncodeToString(sum[:]); got != want {
			return plugerr.New(plugerr.CodeCatalogChecksumMismatch, "integrity mismatch")
		}
	}
	return nil
}

// getJSON performs a bounded GET and decodes the JSON body into out. A 404
// maps to catalog.plugin.not_found.
func (c *NPMClient) getJSON(ctx context.Context, u string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return plugerr.Wrap(err, plugerr.CodeCatalogRequestFailure, "creating request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.send(req)
	if err != nil {
		return plugerr.Wrap(err, plugerr.CodeCatalogRequestFailure, "requesting "+u)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return plugerr.New(plugerr.CodeCatalogPluginNotFound, "catalog returned 404 for "+u)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return plugerr.New(plugerr.CodeCatalogRequestFailure,
			fmt.Sprintf("catalog returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
			plugerr.Field("status", resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return plugerr.Wrap(err, plugerr.CodeCatalogResponseInvalid, "decoding catalog response")
	}
	return nil
}

// authorName accepts both npm author forms: "Name <email>" and {"name": ...}.
func authorName(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if i := strings.IndexAny(s, "<("); i > 0 {
			s = s[:i]
		}
		return strings.TrimSpace(s)
	}
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Name
	}
	return ""
}

// parseTime reads an npm "time" entry; anything but an RFC 3339 string is zero.
func parseTime(v any) time.Time {
	s, ok := v.(string)
	if !ok {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func versioned(id, version string) string {
	if version == "" {
		return id
	}
	return id + "@" + version
}

// containsAny reports whether list holds any of want. An empty want matches.
func containsAny(list, want []string) bool {
	if len(want) == 0 {
		return true
	}
	for _, w := range want {
		if slices.Contains(list, w) {
			return true
		}
	}
	return false
}
