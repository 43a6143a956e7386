// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"strings"
	"testing"

	"github.com/sigil-dev/plugctl/internal/catalog/catalogtest"
	plugerr "github.com/sigil-dev/plugctl/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestLoginLogout(t *testing.T) {
	isolate(t)
	keyring.MockInit()
	t.Setenv("PLUGCTL_REGISTRY_URL", "https://registry.example.com/")

	out, err := runWithInput(t, "s3cret\n", "login")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in to https://registry.example.com/")

	out, err = run(t, "login", "--list")
	require.NoError(t, err)
	assert.Equal(t, "registry.example.com\n", out)

	_, err = run(t, "logout")
	require.NoError(t, err)

	_, err = run(t, "logout")
	require.Error(t, err)
	assert.True(t, plugerr.HasCode(err, plugerr.CodeSecretNotFound))

	out, err = run(t, "login", "--list")
	require.NoError(t, err)
	assert.Contains(t, out, "No saved tokens.")
}

func TestLogin_EmptyToken(t *testing.T) {
	isolate(t)
	keyring.MockInit()

	_, err := runWithInput(t, "\n", "login")
	require.Error(t, err)
	assert.True(t, plugerr.HasCode(err, plugerr.CodeSecretInvalidInput))
}

func TestPublish_UsesSavedToken(t *testing.T) {
	isolate(t)
	keyring.MockInit()
	reg := catalogtest.New()
	defer reg.Close()
	reg.Token = "s3cret"
	t.Setenv("PLUGCTL_REGISTRY_URL", reg.URL())
	dir := writePlugin(t, "hello", "1.0.0")

	_, err := run(t, "publish", dir)
	require.Error(t, err)
	assert.True(t, plugerr.HasCode(err, plugerr.CodeCLIInputInvalid))
	assert.True(t, strings.Contains(err.Error(), "plugctl login"))

	_, err = run(t, "login", "--token", "wrong")
	require.NoError(t, err)
	_, err = run(t, "publish", dir)
	require.Error(t, err, "the registry rejects a bad token")

	_, err = run(t, "login", "--token", "s3cret")
	require.NoError(t, err)
	out, err := run(t, "publish", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Published hello@1.0.0")
	require.Len(t, reg.Published(), 1)
	assert.Equal(t, "@plugctl/hello", reg.Published()[0]["name"])
}

func TestPublish_TokenFlag(t *testing.T) {
	isolate(t)
	keyring.MockInit()
	reg := catalogtest.New()
	defer reg.Close()
	reg.Token = "flag-token"
	t.Setenv("PLUGCTL_REGISTRY_URL", reg.URL())

	_, err := run(t, "publish", writePlugin(t, "hello", "1.0.0"), "--token", "flag-token")
	require.NoError(t, err)
	assert.Len(t, reg.Published(), 1)
}
