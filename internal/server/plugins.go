// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// PluginAPIPrefix is where enabled plugins' API endpoints are served:
// PluginAPIPrefix + id + endpoint path.
const PluginAPIPrefix = "/plugins/"

func (s *Server) mountPluginAPI() {
	s.router.HandleFunc(PluginAPIPrefix+"{id}/*", s.servePluginAPI)
}

// servePluginAPI dispatches to the endpoint an enabled plugin registered for
// the request path. Disabled and unknown plugins are indistinguishable: 404.
func (s *Server) servePluginAPI(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	path := "/" + chi.URLParam(r, "*")

	var (
		handler     http.Handler
		pathMatched bool
	)
	s.mu.RLock()
	reg := s.svc.plugins.Registry()
	if reg.IsEnabled(id) {
		if b, err := reg.Get(id); err == nil {
			for _, ep := range b.API {
				if ep.Path != path || ep.Handler == nil {
					continue
				}
				pathMatched = true
				if ep.Method == r.Method || (ep.Method == http.MethodGet && r.Method == http.MethodHead) {
					handler = ep.Handler
					break
				}
			}
		}
	}
	s.mu.RUnlock()

	switch {
	case handler != nil:
		handler.ServeHTTP(w, r)
	case pathMatched:
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	default:
		http.NotFound(w, r)
	}
}
