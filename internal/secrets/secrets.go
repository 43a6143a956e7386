// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package secrets keeps catalog publish tokens in the OS keyring.
package secrets

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"slices"
	"strings"

	plugerr "github.com/sigil-dev/plugctl/pkg/errors"
	"github.com/zalando/go-keyring"
)

// DefaultService is the keyring service plugctl stores tokens under.
const DefaultService = "plugctl"

// indexKey holds a JSON list of the registries with a stored token, since
// go-keyring cannot enumerate entries.
const indexKey = "::registries"

// TokenStore saves one token per catalog registry. On macOS it uses the
// Keychain, on Linux secret-service over D-Bus and on Windows the Credential
// Manager.
type TokenStore struct {
	service string
}

// NewTokenStore returns a TokenStore for service, or DefaultService when
// service is empty.
func NewTokenStore(service string) *TokenStore {
	if service == "" {
		service = DefaultService
	}
	return &TokenStore{service: service}
}

// RegistryKey normalizes a registry URL to the key its token is stored
// under: host and path without scheme or trailing slash.
func RegistryKey(registryURL string) (string, error) {
	raw := strings.TrimSpace(registryURL)
	if raw == "" {
		return "", plugerr.New(plugerr.CodeSecretInvalidInput, "registry URL must not be empty")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", plugerr.New(plugerr.CodeSecretInvalidInput, "invalid registry URL "+registryURL)
	}
	return strings.ToLower(u.Host) + strings.TrimRight(u.Path, "/"), nil
}

// Save stores token for registryURL, replacing any previous one.
func (s *TokenStore) Save(registryURL, token string) error {
	key, err := RegistryKey(registryURL)
	if err != nil {
		return err
	}
	if token == "" {
		return plugerr.New(plugerr.CodeSecretInvalidInput, "token must not be empty")
	}
	if err := keyring.Set(s.service, key, token); err != nil {
		return plugerr.Wrapf(err, plugerr.CodeSecretStoreFailure, "storing token for %s", key)
	}
	return s.updateIndex(func(keys []string) []string {
		if slices.Contains(keys, key) {
			return keys
		}
		return append(keys, key)
	})
}

// Token returns the token stored for registryURL.
func (s *TokenStore) Token(registryURL string) (string, error) {
	key, err := RegistryKey(registryURL)
	if err != nil {
		return "", err
	}
	token, err := keyring.Get(s.service, key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", plugerr.Errorf(plugerr.CodeSecretNotFound, "no token stored for %s", key)
		}
		return "", plugerr.Wrapf(err, plugerr.CodeSecretStoreFailure, "retrieving token for %s", key)
	}
	return token, nil
}

// Remove deletes the token stored for registryURL.
func (s *TokenStore) Remove(registryURL string) error {
	key, err := RegistryKey(registryURL)
	if err != nil {
		return err
	}
	if err := keyring.Delete(s.service, key); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return plugerr.Errorf(plugerr.CodeSecretNotFound, "no token stored for %s", key)
		}
		return plugerr.Wrapf(err, plugerr.CodeSecretDeleteFailure, "deleting token for %s", key)
	}
	return s.updateIndex(func(keys []string) []string {
		return slices.DeleteFunc(keys, func(k string) bool { return k == key })
	})
}

// Registries lists the registry keys that have a stored token, sorted.
func (s *TokenStore) Registries() ([]string, error) {
	keys, err := s.loadIndex()
	if err != nil {
		return nil, err
	}
	slices.Sort(keys)
	return keys, nil
}

func (s *TokenStore) loadIndex() ([]string, error) {
	raw, err := keyring.Get(s.service, indexKey)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, nil
		}
		return nil, plugerr.Wrapf(err, plugerr.CodeSecretStoreFailure, "loading registry index")
	}
	var keys []string
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		return nil, plugerr.Wrapf(err, plugerr.CodeSecretStoreFailure, "decoding registry index")
	}
	return keys, nil
}

func (s *TokenStore) updateIndex(fn func([]string) []string) error {
	keys, err := s.loadIndex()
	if err != nil {
		return err
	}
	keys = fn(keys)

	if len(keys) == 0 {
		if err := keyring.Delete(s.service, indexKey); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			slog.Debug("failed to clean up empty registry index", "service", s.service, "error", err)
		}
		return nil
	}

	data, err := json.Marshal(keys)
	if err != nil {
		return plugerr.Wrapf(err, plugerr.CodeSecretStoreFailure, "encoding registry index")
	}
	if err := keyring.Set(s.service, indexKey, string(data)); err != nil {
		return plugerr.Wrapf(err, plugerr.CodeSecretStoreFailure, "saving registry index")
	}
	return nil
}
