// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeRegistryDuplicateID            Code = "registry.register.duplicate_id"
	CodeRegistryUnresolvedDependency   Code = "registry.register.unresolved_dependency"
	CodeRegistryNotFound               Code = "registry.plugin.not_found"
	CodeRegistryDependentsExist        Code = "registry.unregister.dependents_exist"
	CodeRegistryDependencyNotEnabled   Code = "registry.enable.dependency_not_enabled"
	CodeRegistryEnabledDependentsExist Code = "registry.disable.enabled_dependents_exist"
	CodeRegistryCircularDependency     Code = "registry.order.circular_dependency"
	CodeRegistryInitFailure            Code = "registry.lifecycle.init.failure"
	CodeRegistryDestroyFailure         Code = "registry.lifecycle.destroy.failure"

	CodePluginDescriptorInvalid Code = "plugin.descriptor.invalid"

	CodeManagerInstallNotFound          Code = "manager.install.not_found"
	CodeManagerInstallAlreadyInstalled  Code = "manager.install.already_installed"
	CodeManagerSourceNotImplemented     Code = "manager.source.not_implemented"
	CodeManagerSourceUnsupported        Code = "manager.source.unsupported"
	CodeManagerPackageMissingDescriptor Code = "manager.package.missing_descriptor"
	CodeManagerStoreWriteFailure        Code = "manager.store.write.failure"
	CodeManagerStoreReadFailure         Code = "manager.store.read.failure"
	CodeManagerUpdateUnsupported        Code = "manager.update.unsupported"
	CodeManagerConfigInvalid            Code = "manager.config.invalid"

	CodeLoaderDescriptorNotFound Code = "loader.descriptor.not_found"
	CodeLoaderEntryNotFound      Code = "loader.entry.not_found"
	CodeLoaderBundleInvalid      Code = "loader.bundle.invalid"
	CodeLoaderFactoryNotFound    Code = "loader.factory.not_found"

	CodeCatalogRequestFailure   Code = "catalog.request.failure"
	CodeCatalogPluginNotFound   Code = "catalog.plugin.not_found"
	CodeCatalogResponseInvalid  Code = "catalog.response.invalid"
	CodeCatalogDownloadFailure  Code = "catalog.download.failure"
	CodeCatalogChecksumMismatch Code = "catalog.checksum.mismatch"
	CodeCatalogPublishInvalid   Code = "catalog.publish.invalid"
	CodeCatalogPublishFailure   Code = "catalog.publish.failure"

	CodePackArchiveInvalid Code = "pack.archive.invalid"

	CodeStatusReadFailure  Code = "status.read.failure"
	CodeStatusWriteFailure Code = "status.write.failure"
	CodeStatusNotFound     Code = "status.record.not_found"

	CodeConfigLoadReadFailure      Code = "config.load.read.failure"
	CodeConfigParseInvalidFormat   Code = "config.parse.invalid_format"
	CodeConfigValidateInvalidValue Code = "config.validate.invalid_value"

	CodeSecretInvalidInput  Code = "secret.input.invalid_input"
	CodeSecretNotFound      Code = "secret.get.not_found"
	CodeSecretStoreFailure  Code = "secret.store.failure"
	CodeSecretDeleteFailure Code = "secret.delete.failure"

	CodeServerRequestInvalid  Code = "server.request.invalid"
	CodeServerInternalFailure Code = "server.internal.failure"
	CodeServerEntityNotFound  Code = "server.entity.not_found"
	CodeServerConfigInvalid   Code = "server.config.invalid"
	CodeServerStartFailure    Code = "server.start.failure"
	CodeServerShutdownFailure Code = "server.shutdown.failure"
	CodeServerNotImplemented  Code = "server.method.not_implemented"

	CodeCLIRequestFailure Code = "cli.request.failure"
	CodeCLISetupFailure   Code = "cli.setup.failure"
	CodeCLIInputInvalid   Code = "cli.input.invalid"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// FieldValue creates a structured error field.
func FieldValue(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

// Field is kept as the primary helper for terse callsites.
func Field(key string, value any) Attr {
	return FieldValue(key, value)
}

func FieldPlugin(value string) Attr {
	return Field("plugin", value)
}

func FieldVersion(value string) Attr {
	return Field("version", value)
}

func FieldSource(value string) Attr {
	return Field("source", value)
}

func FieldPath(value string) Attr {
	return Field("path", value)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).Wrapf(err, format, args...)
}

// With adds structured fields to an existing error chain.
func With(err error, fields ...Attr) error {
	if err == nil {
		return nil
	}

	code := CodeOf(err)
	if code == "" {
		code = CodeServerInternalFailure
	}

	return oops.Code(code).With(flatten(fields)...).Wrap(err)
}

// CodeOf returns the innermost code in the chain, or "" for uncoded errors.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	if code, ok := oopsErr.Code().(Code); ok {
		return code
	}

	if code, ok := oopsErr.Code().(string); ok {
		return Code(code)
	}

	return Code(fmt.Sprintf("%v", oopsErr.Code()))
}

func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}

	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

func IsNotFound(err error) bool {
	return reason(CodeOf(err)) == "not_found"
}

// IsConflict reports errors caused by the current registry or store state
// rather than by the request itself.
func IsConflict(err error) bool {
	switch reason(CodeOf(err)) {
	case "conflict", "duplicate_id", "already_installed", "dependents_exist",
		"enabled_dependents_exist", "dependency_not_enabled", "circular_dependency":
		return true
	}
	return false
}

func IsInvalidInput(err error) bool {
	r := reason(CodeOf(err))
	return r == "invalid" || r == "invalid_input" || r == "invalid_value" || r == "invalid_format" ||
		r == "missing_descriptor" || r == "unsupported" || r == "unresolved_dependency"
}

func IsNotImplemented(err error) bool {
	return reason(CodeOf(err)) == "not_implemented"
}

func IsTimeout(err error) bool {
	return reason(CodeOf(err)) == "timeout"
}

func IsUpstreamFailure(err error) bool {
	return strings.HasPrefix(string(CodeOf(err)), "catalog.") && reason(CodeOf(err)) == "failure"
}

func HTTPStatus(err error) int {
	switch {
	case IsNotImplemented(err):
		return http.StatusNotImplemented
	case IsNotFound(err):
		return http.StatusNotFound
	case IsConflict(err):
		return http.StatusConflict
	case IsInvalidInput(err):
		return http.StatusBadRequest
	case IsTimeout(err):
		return http.StatusGatewayTimeout
	case IsUpstreamFailure(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func Join(errs ...error) error {
	return oops.Code(CodeServerInternalFailure).Wrap(stderrors.Join(errs...))
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

func reason(code Code) string {
	if code == "" {
		return ""
	}

	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}
