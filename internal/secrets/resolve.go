// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package secrets

import (
	"strings"

	plugerr "github.com/sigil-dev/plugctl/pkg/errors"
	"github.com/zalando/go-keyring"
)

const keyringScheme = "keyring://"

// IsKeyringURI reports whether value uses the keyring:// URI scheme.
func IsKeyringURI(value string) bool {
	return strings.HasPrefix(value, keyringScheme)
}

// ParseKeyringURI extracts service and key from a keyring://service/key URI.
func ParseKeyringURI(uri string) (service, key string, err error) {
	if !IsKeyringURI(uri) {
		return "", "", plugerr.Errorf(plugerr.CodeSecretInvalidInput, "not a keyring URI: %q", uri)
	}
	service, key, ok := strings.Cut(strings.TrimPrefix(uri, keyringScheme), "/")
	if !ok || service == "" || key == "" {
		return "", "", plugerr.Errorf(plugerr.CodeSecretInvalidInput,
			"invalid keyring URI %q: expected keyring://service/key", uri)
	}
	return service, key, nil
}

// ResolveToken picks the publish token for registryURL. A configured value
// wins: literal, or a keyring:// reference resolved from the keyring.
// Otherwise the token saved by Save for that registry is used. An empty
// result with a nil error means no token is available.
func (s *TokenStore) ResolveToken(registryURL, configured string) (string, error) {
	if configured != "" && !IsKeyringURI(configured) {
		return configured, nil
	}
	if configured != "" {
		service, key, err := ParseKeyringURI(configured)
		if err != nil {
			return "", err
		}
		token, err := keyring.Get(service, key)
		if err != nil {
			return "", plugerr.Wrapf(err, plugerr.CodeSecretNotFound, "resolving %s", configured)
		}
		return token, nil
	}

	token, err := s.Token(registryURL)
	if plugerr.HasCode(err, plugerr.CodeSecretNotFound) {
		return "", nil
	}
	return token, err
}
