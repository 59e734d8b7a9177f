// errors.go: structured error definitions for the plugin host runtime
//
// Copyright (c) 2025 OmniTAK Project
// Series: an OmniTAK library
// SPDX-License-Identifier: MPL-2.0

package pluginhost

import (
	stderrors "errors"
	"strings"

	"github.com/agilira/go-errors"
)

// Error codes for the plugin host runtime
const (
	// Manifest errors (1000-1099)
	ErrCodeManifestParse       = "MANIFEST_1001"
	ErrCodeMissingPluginID     = "MANIFEST_1002"
	ErrCodeInvalidVersion      = "MANIFEST_1003"
	ErrCodeInvalidRequirement  = "MANIFEST_1004"
	ErrCodeUnknownPermission   = "MANIFEST_1005"
	ErrCodeMissingEntryPoints  = "MANIFEST_1006"
	ErrCodeVersionIncompatible = "MANIFEST_1007"
	ErrCodeMissingArtifact     = "MANIFEST_1008"
	ErrCodeBundleStructure     = "MANIFEST_1009"
	ErrCodeUnsupportedPlatform = "MANIFEST_1010"

	// Signature errors (1100-1199)
	ErrCodeSignatureMissing     = "SIGNATURE_1101"
	ErrCodeSignatureParse       = "SIGNATURE_1102"
	ErrCodeCertificateMismatch  = "SIGNATURE_1103"
	ErrCodeSignatureEncoding    = "SIGNATURE_1104"
	ErrCodeSignatureVerify      = "SIGNATURE_1105"
	ErrCodeUntrustedCertificate = "SIGNATURE_1106"

	// Permission errors (1200-1299)
	ErrCodePermissionDenied   = "PERMISSION_1201"
	ErrCodeCapabilityDenied   = "PERMISSION_1202"
	ErrCodeNoGrantsForPlugin  = "PERMISSION_1203"
	ErrCodePermissionConflict = "PERMISSION_1204"

	// Initialization errors (1300-1399)
	ErrCodeInitializationFailed = "LIFECYCLE_1301"
	ErrCodePluginPanic          = "LIFECYCLE_1302"

	// Runtime errors (1400-1499)
	ErrCodeInvalidTransition  = "RUNTIME_1401"
	ErrCodePluginNotLoaded    = "RUNTIME_1402"
	ErrCodeFactoryNotFound    = "RUNTIME_1403"
	ErrCodeDuplicateFactory   = "RUNTIME_1404"
	ErrCodePluginCreation     = "RUNTIME_1405"
	ErrCodeInstallFailed      = "RUNTIME_1406"
	ErrCodeUninstallFailed    = "RUNTIME_1407"
	ErrCodeActivationFailed   = "RUNTIME_1408"
	ErrCodeDeactivationFailed = "RUNTIME_1409"
	ErrCodeCleanupFailed      = "RUNTIME_1410"
	ErrCodeDiscoveryFailed    = "RUNTIME_1411"

	// Configuration errors (1500-1599)
	ErrCodeConfigNotFound        = "CONFIG_1501"
	ErrCodeConfigParseError      = "CONFIG_1502"
	ErrCodeConfigValidationError = "CONFIG_1503"
	ErrCodeConfigWatcherError    = "CONFIG_1504"

	// Storage errors (1600-1699)
	ErrCodeStorageWrite = "STORAGE_1601"

	// Audit errors (1700-1799)
	ErrCodeAuditError = "AUDIT_1701"
)

// Manifest error constructors

func NewManifestParseError(cause error) *errors.Error {
	if cause != nil {
		return errors.Wrap(cause, ErrCodeManifestParse, "Invalid manifest").
			WithUserMessage("The plugin manifest could not be parsed").
			WithSeverity("error")
	}
	return errors.New(ErrCodeManifestParse, "Invalid manifest").
		WithUserMessage("The plugin manifest could not be parsed").
		WithSeverity("error")
}

func NewMissingPluginIDError() *errors.Error {
	return errors.New(ErrCodeMissingPluginID, "Invalid manifest").
		WithUserMessage("Plugin identifier is required and cannot be empty").
		WithSeverity("error")
}

func NewInvalidVersionError(version string, cause error) *errors.Error {
	if cause != nil {
		return errors.Wrap(cause, ErrCodeInvalidVersion, "Invalid version").
			WithUserMessage("The version string is not a dotted numeric triple").
			WithContext("version", version).
			WithSeverity("error")
	}
	return errors.New(ErrCodeInvalidVersion, "Invalid version").
		WithUserMessage("The version string is not a dotted numeric triple").
		WithContext("version", version).
		WithSeverity("error")
}

func NewInvalidRequirementError(requirement string, cause error) *errors.Error {
	if cause != nil {
		return errors.Wrap(cause, ErrCodeInvalidRequirement, "Invalid version requirement").
			WithUserMessage("The host-version requirement expression is malformed").
			WithContext("requirement", requirement).
			WithSeverity("error")
	}
	return errors.New(ErrCodeInvalidRequirement, "Invalid version requirement").
		WithUserMessage("The host-version requirement expression is malformed").
		WithContext("requirement", requirement).
		WithSeverity("error")
}

func NewUnknownPermissionError(identifier string) *errors.Error {
	return errors.New(ErrCodeUnknownPermission, "Unknown permission identifier").
		WithUserMessage("The manifest declares a permission the host does not define").
		WithContext("permission", identifier).
		WithSeverity("error")
}

func NewMissingEntryPointsError(pluginID string) *errors.Error {
	return errors.New(ErrCodeMissingEntryPoints, "Missing entry points").
		WithUserMessage("The manifest must declare at least one platform entry point").
		WithContext("plugin_id", pluginID).
		WithSeverity("error")
}

func NewVersionIncompatibleError(pluginID, requirement, hostVersion string) *errors.Error {
	return errors.New(ErrCodeVersionIncompatible, "Incompatible host version").
		WithUserMessage("The plugin requires a host version this installation does not satisfy").
		WithContext("plugin_id", pluginID).
		WithContext("requirement", requirement).
		WithContext("host_version", hostVersion).
		WithSeverity("error")
}

func NewMissingArtifactError(pluginID, platform, entryPoint string) *errors.Error {
	return errors.New(ErrCodeMissingArtifact, "Missing entry-point artifact").
		WithUserMessage("The declared entry point has no loadable artifact in the bundle").
		WithContext("plugin_id", pluginID).
		WithContext("platform", platform).
		WithContext("entry_point", entryPoint).
		WithSeverity("error")
}

func NewBundleStructureError(path, detail string, cause error) *errors.Error {
	if cause != nil {
		return errors.Wrap(cause, ErrCodeBundleStructure, "Invalid bundle structure").
			WithUserMessage(detail).
			WithContext("bundle_path", path).
			WithSeverity("error")
	}
	return errors.New(ErrCodeBundleStructure, "Invalid bundle structure").
		WithUserMessage(detail).
		WithContext("bundle_path", path).
		WithSeverity("error")
}

func NewUnsupportedPlatformError(pluginID, platform string) *errors.Error {
	return errors.New(ErrCodeUnsupportedPlatform, "Unsupported platform").
		WithUserMessage("The manifest declares no entry point for the host platform").
		WithContext("plugin_id", pluginID).
		WithContext("platform", platform).
		WithSeverity("error")
}

// Signature error constructors

func NewSignatureMissingError(path string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeSignatureMissing, "Signature missing").
		WithUserMessage("The bundle does not contain a readable signature file").
		WithContext("bundle_path", path).
		WithSeverity("error")
}

func NewSignatureParseError(cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeSignatureParse, "Invalid signature file").
		WithUserMessage("The signature file could not be parsed").
		WithSeverity("error")
}

func NewCertificateMismatchError(pluginID, got, expected string) *errors.Error {
	return errors.New(ErrCodeCertificateMismatch, "Certificate mismatch").
		WithUserMessage("The bundle is signed with a certificate the host does not trust").
		WithContext("plugin_id", pluginID).
		WithContext("certificate", got).
		WithContext("expected_certificate", expected).
		WithSeverity("error")
}

func NewSignatureEncodingError(pluginID string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeSignatureEncoding, "Invalid signature encoding").
		WithUserMessage("The signature payload is not valid base64").
		WithContext("plugin_id", pluginID).
		WithSeverity("error")
}

func NewSignatureVerifyError(pluginID, certificate string) *errors.Error {
	return errors.New(ErrCodeSignatureVerify, "Signature verification failed").
		WithUserMessage("The manifest signature does not verify against the trusted key").
		WithContext("plugin_id", pluginID).
		WithContext("certificate", certificate).
		WithSeverity("error")
}

func NewUntrustedCertificateError(pluginID, algorithm string) *errors.Error {
	return errors.New(ErrCodeUntrustedCertificate, "Untrusted signature algorithm").
		WithUserMessage("The signature algorithm is not supported by this host").
		WithContext("plugin_id", pluginID).
		WithContext("algorithm", algorithm).
		WithSeverity("error")
}

// Permission error constructors

func NewPermissionDeniedError(pluginID string, permission Permission) *errors.Error {
	return errors.New(ErrCodePermissionDenied, "Permission denied").
		WithUserMessage("The plugin has not been granted the required permission").
		WithContext("plugin_id", pluginID).
		WithContext("permission", string(permission)).
		WithSeverity("warning")
}

func NewCapabilityDeniedError(pluginID, capability string, required []Permission) *errors.Error {
	idents := make([]string, len(required))
	for i, p := range required {
		idents[i] = string(p)
	}
	return errors.New(ErrCodeCapabilityDenied, "Capability access denied").
		WithUserMessage("The plugin holds none of the permissions this capability requires").
		WithContext("plugin_id", pluginID).
		WithContext("capability", capability).
		WithContext("required_permissions", strings.Join(idents, ",")).
		WithSeverity("warning")
}

func NewNoGrantsForPluginError(pluginID string) *errors.Error {
	return errors.New(ErrCodeNoGrantsForPlugin, "No permission grants").
		WithUserMessage("No permissions are registered for this plugin").
		WithContext("plugin_id", pluginID).
		WithSeverity("warning")
}

// Lifecycle hook error constructors

func NewInitializationFailedError(pluginID string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeInitializationFailed, "Plugin initialization failed").
		WithUserMessage("The plugin failed to initialize").
		WithContext("plugin_id", pluginID).
		WithSeverity("error")
}

func NewActivationFailedError(pluginID string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeActivationFailed, "Plugin activation failed").
		WithUserMessage("The plugin failed to activate").
		WithContext("plugin_id", pluginID).
		WithSeverity("error")
}

func NewDeactivationFailedError(pluginID string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeDeactivationFailed, "Plugin deactivation failed").
		WithUserMessage("The plugin failed to deactivate").
		WithContext("plugin_id", pluginID).
		WithSeverity("error")
}

func NewCleanupFailedError(pluginID string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeCleanupFailed, "Plugin cleanup failed").
		WithUserMessage("The plugin failed to clean up its resources").
		WithContext("plugin_id", pluginID).
		WithSeverity("warning")
}

func NewPluginPanicError(pluginID, action string, recovered interface{}) *errors.Error {
	return errors.New(ErrCodePluginPanic, "Plugin panicked").
		WithUserMessage("The plugin panicked during a lifecycle action").
		WithContext("plugin_id", pluginID).
		WithContext("action", action).
		WithContext("panic", recovered).
		WithSeverity("critical")
}

// Runtime error constructors

func NewInvalidTransitionError(pluginID, requiredState, action string) *errors.Error {
	return errors.New(ErrCodeInvalidTransition,
		"plugin must be in "+requiredState+" to "+action).
		WithUserMessage("The plugin is not in a state that allows this action").
		WithContext("plugin_id", pluginID).
		WithContext("required_state", requiredState).
		WithContext("action", action).
		WithSeverity("warning")
}

func NewPluginNotLoadedError(pluginID string) *errors.Error {
	return errors.New(ErrCodePluginNotLoaded, "Plugin not loaded").
		WithUserMessage("No live instance exists for this plugin identifier").
		WithContext("plugin_id", pluginID).
		WithSeverity("warning")
}

func NewFactoryNotFoundError(entryPoint string) *errors.Error {
	return errors.New(ErrCodeFactoryNotFound, "No factory for entry point").
		WithUserMessage("No plugin factory is registered for the declared entry point").
		WithContext("entry_point", entryPoint).
		WithSeverity("error")
}

func NewDuplicateFactoryError(entryPoint string) *errors.Error {
	return errors.New(ErrCodeDuplicateFactory, "Duplicate factory").
		WithUserMessage("A factory is already registered for this entry point").
		WithContext("entry_point", entryPoint).
		WithSeverity("error")
}

func NewPluginCreationError(entryPoint string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodePluginCreation, "Plugin creation failed").
		WithUserMessage("The entry-point factory failed to construct the plugin object").
		WithContext("entry_point", entryPoint).
		WithSeverity("error")
}

func NewInstallFailedError(sourcePath string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeInstallFailed, "Plugin installation failed").
		WithUserMessage("The bundle could not be installed into the managed directory").
		WithContext("source_path", sourcePath).
		WithSeverity("error")
}

func NewUninstallFailedError(pluginID string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeUninstallFailed, "Plugin uninstallation failed").
		WithUserMessage("The managed bundle copy could not be removed").
		WithContext("plugin_id", pluginID).
		WithSeverity("error")
}

func NewDiscoveryFailedError(dir string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeDiscoveryFailed, "Plugin discovery failed").
		WithUserMessage("The managed plugin directory could not be enumerated").
		WithContext("plugins_dir", dir).
		WithSeverity("error")
}

// Configuration error constructors

func NewConfigNotFoundError(path string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeConfigNotFound, "Configuration not found").
		WithUserMessage("The host configuration file could not be read").
		WithContext("config_path", path).
		WithSeverity("error")
}

func NewConfigParseError(path string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeConfigParseError, "Configuration parse error").
		WithUserMessage("The host configuration file could not be parsed").
		WithContext("config_path", path).
		WithSeverity("error")
}

func NewConfigValidationError(detail string, cause error) *errors.Error {
	if cause != nil {
		return errors.Wrap(cause, ErrCodeConfigValidationError, "Invalid configuration").
			WithUserMessage(detail).
			WithSeverity("error")
	}
	return errors.New(ErrCodeConfigValidationError, "Invalid configuration").
		WithUserMessage(detail).
		WithSeverity("error")
}

func NewConfigWatcherError(detail string, cause error) *errors.Error {
	if cause != nil {
		return errors.Wrap(cause, ErrCodeConfigWatcherError, "Configuration watcher error").
			WithUserMessage(detail).
			WithSeverity("error")
	}
	return errors.New(ErrCodeConfigWatcherError, "Configuration watcher error").
		WithUserMessage(detail).
		WithSeverity("error")
}

// Storage error constructors

func NewStorageWriteError(pluginID string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeStorageWrite, "Storage write failed").
		WithUserMessage("The plugin storage file could not be written").
		WithContext("plugin_id", pluginID).
		WithSeverity("error").
		AsRetryable()
}

// Audit error constructors

func NewAuditError(detail string, cause error) *errors.Error {
	if cause != nil {
		return errors.Wrap(cause, ErrCodeAuditError, "Audit trail error").
			WithUserMessage(detail).
			WithSeverity("warning")
	}
	return errors.New(ErrCodeAuditError, "Audit trail error").
		WithUserMessage(detail).
		WithSeverity("warning")
}

// Error kind predicates.
//
// The five public error kinds of the runtime map to code prefixes; callers
// that need to branch on a kind rather than a specific code use these.

func errorCodePrefix(err error) string {
	var hostErr *errors.Error
	if stderrors.As(err, &hostErr) {
		code := string(hostErr.Code)
		if i := strings.IndexByte(code, '_'); i > 0 {
			return code[:i]
		}
		return code
	}
	return ""
}

// IsInvalidManifest reports whether err is any manifest validation failure.
func IsInvalidManifest(err error) bool {
	return errorCodePrefix(err) == "MANIFEST"
}

// IsSignatureInvalid reports whether err is any signature validation failure.
func IsSignatureInvalid(err error) bool {
	return errorCodePrefix(err) == "SIGNATURE"
}

// IsPermissionDenied reports whether err is any permission enforcement failure.
func IsPermissionDenied(err error) bool {
	return errorCodePrefix(err) == "PERMISSION"
}

// IsInitializationFailed reports whether err is an initialization-phase
// failure, including panics recovered from plugin code during initialize.
func IsInitializationFailed(err error) bool {
	return errorCodePrefix(err) == "LIFECYCLE"
}

// IsRuntimeError reports whether err is a runtime operation failure.
func IsRuntimeError(err error) bool {
	return errorCodePrefix(err) == "RUNTIME"
}
