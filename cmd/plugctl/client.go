// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	plugerr "github.com/sigil-dev/plugctl/pkg/errors"
)

// errServerNotRunning indicates the admin server refused the connection.
var errServerNotRunning = plugerr.New(plugerr.CodeCLIRequestFailure, "plugctl server is not running (connection refused)")

// defaultHTTPClient is the package-level HTTP client used by commands that
// talk to a running server. Overridden in tests via httptest.
var defaultHTTPClient = &http.Client{
	Timeout: 5 * time.Second,
}

// serverClient provides HTTP access to a running plugctl server.
type serverClient struct {
	baseURL string
	http    *http.Client
}

func newServerClient(addr string) *serverClient {
	return &serverClient{
		baseURL: "http://" + addr,
		http:    defaultHTTPClient,
	}
}

// getJSON performs a GET request and decodes the JSON response into dest.
// It returns errServerNotRunning on connection refused.
func (c *serverClient) getJSON(path string, dest any) error {
	resp, err := c.http.Get(c.baseURL + path)
	if err != nil {
		if isDialError(err) {
			return errServerNotRunning
		}
		return plugerr.Errorf(plugerr.CodeCLIRequestFailure, "request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return plugerr.Errorf(plugerr.CodeCLIRequestFailure, "server returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return plugerr.Errorf(plugerr.CodeCLIRequestFailure, "invalid response: %w", err)
	}
	return nil
}

func isDialError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}
	return false
}
