// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package catalogtest provides an in-process npm-shaped registry for tests.
package catalogtest

import (
	"crypto/sha1" //nolint:gosec // npm dist.shasum is SHA-1
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sigil-dev/plugctl/internal/pack"
)

// Registry is a minimal npm registry: package documents, tarballs, search
// and publish. It is safe for concurrent use.
type Registry struct {
	Server *httptest.Server

	mu        sync.Mutex
	packages  map[string]*packageDoc
	tarballs  map[string][]byte
	published []map[string]any

	// Downloads counts tarball requests.
	Downloads atomic.Int64
	// Lookups counts package document requests.
	Lookups atomic.Int64
	// BreakChecksums makes every served shasum wrong.
	BreakChecksums bool
	// Token, when set, is required as a bearer token on publish.
	Token string
}

type packageDoc struct {
	Name     string                    `json:"name"`
	DistTags map[string]string         `json:"dist-tags"`
	Versions map[string]map[string]any `json:"versions"`
	Time     map[string]string         `json:"time"`
}

// New starts a registry. Callers must Close it.
func New() *Registry {
	r := &Registry{
		packages: make(map[string]*packageDoc),
		tarballs: make(map[string][]byte),
	}
	r.Server = httptest.NewServer(http.HandlerFunc(r.serve))
	return r
}

// URL returns the registry root.
func (r *Registry) URL() string {
	return r.Server.URL
}

// Close stops the server.
func (r *Registry) Close() {
	r.Server.Close()
}

// AddVersion publishes files as name@version and makes it the latest.
func (r *Registry) AddVersion(name, version string, files map[string][]byte, keywords ...string) {
	archive, err := pack.EncodeTarball(files)
	if err != nil {
		panic(err)
	}
	sum := sha1.Sum(archive) //nolint:gosec // npm dist.shasum
	key := fmt.Sprintf("%s-%s.tgz", strings.ReplaceAll(name, "/", "-"), version)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tarballs[key] = archive
	doc, ok := r.packages[name]
	if !ok {
		doc = &packageDoc{
			Name:     name,
			DistTags: map[string]string{},
			Versions: map[string]map[string]any{},
			Time:     map[string]string{},
		}
		r.packages[name] = doc
	}
	doc.DistTags["latest"] = version
	doc.Time[version] = "2026-01-02T03:04:05Z"
	doc.Versions[version] = map[string]any{
		"name":        name,
		"version":     version,
		"description": name + " plugin",
		"keywords":    keywords,
		"author":      map[string]string{"name": "Plugin Author"},
		"dist": map[string]string{
			"tarball": r.Server.URL + "/-/tarballs/" + key,
			"shasum":  hex.EncodeToString(sum[:]),
		},
	}
}

// Published returns the publish documents received so far.
func (r *Registry) Published() []map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]map[string]any(nil), r.published...)
}

// PublishedTarball decodes the attachment of the i-th publish document.
func (r *Registry) PublishedTarball(i int) ([]byte, error) {
	docs := r.Published()
	if i >= len(docs) {
		return nil, fmt.Errorf("only %d documents published", len(docs))
	}
	attachments, _ := docs[i]["_attachments"].(map[string]any)
	for _, a := range attachments {
		entry, _ := a.(map[string]any)
		data, _ := entry["data"].(string)
		return base64.StdEncoding.DecodeString(data)
	}
	return nil, fmt.Errorf("document %d has no attachment", i)
}

func (r *Registry) serve(w http.ResponseWriter, req *http.Request) {
	switch {
	case req.URL.Path == "/-/v1/search":
		r.search(w, req)
	case strings.HasPrefix(req.URL.Path, "/-/tarballs/"):
		r.tarball(w, req)
	case req.Method == http.MethodPut:
		r.publish(w, req)
	case req.Method == http.MethodGet:
		r.document(w, req)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (r *Registry) document(w http.ResponseWriter, req *http.Request) {
	name := strings.TrimPrefix(req.URL.Path, "/")
	r.Lookups.Add(1)

	r.mu.Lock()
	doc, ok := r.packages[name]
	var body []byte
	if ok {
		served := *doc
		if r.BreakChecksums {
			served.Versions = make(map[string]map[string]any, len(doc.Versions))
			for v, meta := range doc.Versions {
				copied := make(map[string]any, len(meta))
				for k, val := range meta {
					copied[k] = val
				}
				d := meta["dist"].(map[string]string)
				copied["dist"] = map[string]string{"tarball": d["tarball"], "shasum": strings.Repeat("0", 40)}
				served.Versions[v] = copied
			}
		}
		body, _ = json.Marshal(served)
	}
	r.mu.Unlock()

	if !ok {
		http.Error(w, `{"error":"Not found"}`, http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

func (r *Registry) tarball(w http.ResponseWriter, req *http.Request) {
	key := strings.TrimPrefix(req.URL.Path, "/-/tarballs/")
	r.mu.Lock()
	archive, ok := r.tarballs[key]
	r.mu.Unlock()
	if !ok {
		http.NotFound(w, req)
		return
	}
	r.Downloads.Add(1)
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(archive)
}

func (r *Registry) search(w http.ResponseWriter, req *http.Request) {
	text := req.URL.Query().Get("text")
	keyword, byKeyword := strings.CutPrefix(text, "keywords:")

	r.mu.Lock()
	var objects []map[string]any
	for name, doc := range r.packages {
		latest := doc.Versions[doc.DistTags["latest"]]
		keywords, _ := latest["keywords"].([]string)
		if byKeyword {
			found := false
			for _, k := range keywords {
				found = found || k == keyword
			}
			if !found {
				continue
			}
		} else if !strings.Contains(name, text) {
			continue
		}
		objects = append(objects, map[string]any{"package": map[string]any{
			"name":        name,
			"version":     doc.DistTags["latest"],
			"description": latest["description"],
			"keywords":    keywords,
			"date":        doc.Time[doc.DistTags["latest"]],
			"publisher":   map[string]string{"username": "publisher"},
		}})
	}
	r.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"objects": objects, "total": len(objects)})
}

func (r *Registry) publish(w http.ResponseWriter, req *http.Request) {
	if r.Token != "" && req.Header.Get("Authorization") != "Bearer "+r.Token {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	body, err := io.ReadAll(req.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	r.mu.Lock()
	r.published = append(r.published, doc)
	r.mu.Unlock()
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write([]byte(`{"ok":true}`))
}
