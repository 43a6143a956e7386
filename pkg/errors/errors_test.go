// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package errors_test

import (
	stderrors "errors"
	"net/http"
	"testing"

	plugerr "github.com/sigil-dev/plugctl/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// New / Errorf
// ---------------------------------------------------------------------------

func TestNewIncludesCodeAndFields(t *testing.T) {
	err := plugerr.New(
		plugerr.CodeRegistryDuplicateID,
		"plugin already registered",
		plugerr.FieldPlugin("blog"),
		plugerr.Field("attempt", 2),
	)

	require.Error(t, err)
	assert.Equal(t, plugerr.CodeRegistryDuplicateID, plugerr.CodeOf(err))
	assert.True(t, plugerr.HasCode(err, plugerr.CodeRegistryDuplicateID))

	fields := plugerr.FieldsOf(err)
	assert.Equal(t, "blog", fields["plugin"])
	assert.Equal(t, 2, fields["attempt"])
}

func TestErrorfFormatsMessage(t *testing.T) {
	err := plugerr.Errorf(plugerr.CodeRegistryNotFound, "plugin %q not found (%d registered)", "blog", 3)
	require.Error(t, err)
	assert.Equal(t, plugerr.CodeRegistryNotFound, plugerr.CodeOf(err))
	assert.Contains(t, err.Error(), `plugin "blog" not found (3 registered)`)
}

func TestErrorfWrapsInnerError(t *testing.T) {
	inner := stderrors.New("disk full")
	err := plugerr.Errorf(plugerr.CodeStatusWriteFailure, "write failed: %w", inner)
	require.Error(t, err)
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, plugerr.CodeStatusWriteFailure, plugerr.CodeOf(err))
}

// ---------------------------------------------------------------------------
// Wrap / Wrapf / With
// ---------------------------------------------------------------------------

func TestWrapPreservesWrappedErrorAndCode(t *testing.T) {
	root := stderrors.New("no such file")
	err := plugerr.Wrap(root, plugerr.CodeLoaderDescriptorNotFound, "reading descriptor",
		plugerr.FieldPath("/plugins/blog/plugin.json"),
	)

	require.Error(t, err)
	assert.ErrorIs(t, err, root)
	assert.True(t, plugerr.IsNotFound(err))
	assert.Equal(t, "/plugins/blog/plugin.json", plugerr.FieldsOf(err)["path"])
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, plugerr.Wrap(nil, plugerr.CodeServerInternalFailure, "ignored"))
	assert.NoError(t, plugerr.Wrapf(nil, plugerr.CodeServerInternalFailure, "ignored %s", "arg"))
	assert.NoError(t, plugerr.With(nil, plugerr.FieldPlugin("x")))
}

func TestWithAddsContextWithoutChangingCode(t *testing.T) {
	base := plugerr.New(plugerr.CodeRegistryDependentsExist, "still required")
	withCtx := plugerr.With(base, plugerr.FieldPlugin("core"))

	assert.Equal(t, plugerr.CodeRegistryDependentsExist, plugerr.CodeOf(withCtx))
	assert.Equal(t, "core", plugerr.FieldsOf(withCtx)["plugin"])
}

func TestWithOnPlainErrorDefaultsToInternalCode(t *testing.T) {
	err := plugerr.With(stderrors.New("plain"), plugerr.FieldSource("npm"))
	assert.Equal(t, plugerr.CodeServerInternalFailure, plugerr.CodeOf(err))
}

func TestCodeOfReturnsInnermostCodedError(t *testing.T) {
	inner := plugerr.New(plugerr.CodeCatalogDownloadFailure, "status 500")
	outer := plugerr.Wrap(inner, plugerr.CodeServerInternalFailure, "handler")
	assert.Equal(t, plugerr.CodeCatalogDownloadFailure, plugerr.CodeOf(outer))
}

func TestCodeOfPlainAndNil(t *testing.T) {
	assert.Equal(t, plugerr.Code(""), plugerr.CodeOf(nil))
	assert.Equal(t, plugerr.Code(""), plugerr.CodeOf(stderrors.New("plain")))
	assert.Nil(t, plugerr.FieldsOf(nil))
	assert.Nil(t, plugerr.FieldsOf(stderrors.New("plain")))
}

func TestFieldsWithEmptyKeyAreIgnored(t *testing.T) {
	err := plugerr.New(plugerr.CodeCLIInputInvalid, "bad", plugerr.Field("", "dropped"), plugerr.FieldVersion("1.0.0"))
	fields := plugerr.FieldsOf(err)
	assert.NotContains(t, fields, "")
	assert.Equal(t, "1.0.0", fields["version"])
}

// ---------------------------------------------------------------------------
// Classification helpers
// ---------------------------------------------------------------------------

func TestClassificationAndStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		code   plugerr.Code
		status int
		check  func(error) bool
	}{
		{name: "registry not found", code: plugerr.CodeRegistryNotFound, status: 404, check: plugerr.IsNotFound},
		{name: "install not found", code: plugerr.CodeManagerInstallNotFound, status: 404, check: plugerr.IsNotFound},
		{name: "duplicate id", code: plugerr.CodeRegistryDuplicateID, status: 409, check: plugerr.IsConflict},
		{name: "dependents exist", code: plugerr.CodeRegistryDependentsExist, status: 409, check: plugerr.IsConflict},
		{name: "enabled dependents", code: plugerr.CodeRegistryEnabledDependentsExist, status: 409, check: plugerr.IsConflict},
		{name: "dependency not enabled", code: plugerr.CodeRegistryDependencyNotEnabled, status: 409, check: plugerr.IsConflict},
		{name: "cycle", code: plugerr.CodeRegistryCircularDependency, status: 409, check: plugerr.IsConflict},
		{name: "already installed", code: plugerr.CodeManagerInstallAlreadyInstalled, status: 409, check: plugerr.IsConflict},
		{name: "unresolved dependency", code: plugerr.CodeRegistryUnresolvedDependency, status: 400, check: plugerr.IsInvalidInput},
		{name: "descriptor invalid", code: plugerr.CodePluginDescriptorInvalid, status: 400, check: plugerr.IsInvalidInput},
		{name: "missing descriptor", code: plugerr.CodeManagerPackageMissingDescriptor, status: 400, check: plugerr.IsInvalidInput},
		{name: "unsupported source", code: plugerr.CodeManagerSourceUnsupported, status: 400, check: plugerr.IsInvalidInput},
		{name: "not implemented", code: plugerr.CodeManagerSourceNotImplemented, status: 501, check: plugerr.IsNotImplemented},
		{name: "download failure", code: plugerr.CodeCatalogDownloadFailure, status: 502, check: plugerr.IsUpstreamFailure},
		{name: "internal", code: plugerr.CodeServerInternalFailure, status: 500, check: func(err error) bool { return !plugerr.IsNotFound(err) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := plugerr.New(tt.code, "boom")
			assert.Equal(t, tt.status, plugerr.HTTPStatus(err))
			assert.True(t, tt.check(err))
		})
	}
}

func TestClassificationOnPlainError(t *testing.T) {
	err := stderrors.New("plain")
	assert.False(t, plugerr.IsNotFound(err))
	assert.False(t, plugerr.IsConflict(err))
	assert.False(t, plugerr.IsInvalidInput(err))
	assert.False(t, plugerr.IsNotImplemented(err))
	assert.False(t, plugerr.IsTimeout(err))
	assert.False(t, plugerr.IsUpstreamFailure(err))
	assert.Equal(t, http.StatusInternalServerError, plugerr.HTTPStatus(err))
	assert.Equal(t, http.StatusInternalServerError, plugerr.HTTPStatus(nil))
}

// ---------------------------------------------------------------------------
// Join
// ---------------------------------------------------------------------------

func TestJoinCombinesErrors(t *testing.T) {
	a := stderrors.New("first")
	b := stderrors.New("second")
	joined := plugerr.Join(a, b)

	require.Error(t, joined)
	assert.ErrorIs(t, joined, a)
	assert.ErrorIs(t, joined, b)
	assert.Equal(t, plugerr.CodeServerInternalFailure, plugerr.CodeOf(joined))
}
