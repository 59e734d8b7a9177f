// validator.go: bundle validation pipeline
//
// The validator is the single gate between on-disk bundles and the loader.
// Checks run in a fixed order: manifest structure, signature trust, host
// version compatibility, entry-point resolution. The first failure wins
// and nothing partially validated escapes; a *PluginBundle in hand means
// every check passed.
//
// Copyright (c) 2025 OmniTAK Project
// Series: an OmniTAK library
// SPDX-License-Identifier: MPL-2.0

package pluginhost

import (
	"sync"
	"sync/atomic"
)

// ValidatorStats is a point-in-time snapshot of validation outcomes.
type ValidatorStats struct {
	Validated int64 `json:"validated"`
	Rejected  int64 `json:"rejected"`
}

// BundleValidator validates on-disk bundles against the running host:
// its version, its platform, and its configured signing trust.
//
// The expected certificate and trusted keys can be rotated at runtime
// (SetExpectedCertificate, SetTrustedKeys); validations in flight keep the
// trust snapshot they started with.
type BundleValidator struct {
	hostVersion PluginVersion
	platform    string

	mu                  sync.RWMutex
	expectedCertificate string
	trustedKeys         map[string]string

	validated atomic.Int64
	rejected  atomic.Int64

	logger Logger
	audit  *AuditTrail
}

// NewBundleValidator creates a validator for the host described by cfg.
func NewBundleValidator(cfg *HostConfig, logger any) (*BundleValidator, error) {
	hostVersion, err := ParseVersion(cfg.HostVersion)
	if err != nil {
		return nil, NewConfigValidationError("host_version must be a dotted numeric triple", err)
	}
	if cfg.Platform == "" {
		return nil, NewConfigValidationError("platform must not be empty", nil)
	}

	keys := make(map[string]string, len(cfg.TrustedKeys))
	for cert, key := range cfg.TrustedKeys {
		keys[cert] = key
	}

	return &BundleValidator{
		hostVersion:         hostVersion,
		platform:            cfg.Platform,
		expectedCertificate: cfg.ExpectedCertificate,
		trustedKeys:         keys,
		logger:              NewLogger(logger),
	}, nil
}

// AttachAudit wires a security audit trail into the validator. Rejections
// and trust rotations are recorded there in addition to the logger.
func (v *BundleValidator) AttachAudit(audit *AuditTrail) {
	v.mu.Lock()
	v.audit = audit
	v.mu.Unlock()
}

// HostVersion returns the host version this validator checks against.
func (v *BundleValidator) HostVersion() PluginVersion {
	return v.hostVersion
}

// Platform returns the platform name entry points are resolved for.
func (v *BundleValidator) Platform() string {
	return v.platform
}

// SetExpectedCertificate replaces the certificate identifier bundles must
// be signed with. Takes effect for all subsequent validations.
func (v *BundleValidator) SetExpectedCertificate(certificate string) {
	v.mu.Lock()
	previous := v.expectedCertificate
	v.expectedCertificate = certificate
	audit := v.audit
	v.mu.Unlock()

	if previous == certificate {
		return
	}
	v.logger.Info("Expected signing certificate rotated",
		"previous", previous,
		"current", certificate)
	audit.RecordSecurityEvent("certificate_rotated",
		"Expected signing certificate changed", map[string]interface{}{
			"previous": previous,
			"current":  certificate,
		})
}

// SetTrustedKeys replaces the certificate-to-public-key trust table used
// for cryptographic signature verification.
func (v *BundleValidator) SetTrustedKeys(keys map[string]string) {
	copied := make(map[string]string, len(keys))
	for cert, key := range keys {
		copied[cert] = key
	}

	v.mu.Lock()
	v.trustedKeys = copied
	v.mu.Unlock()

	v.logger.Info("Trusted signing keys replaced", "count", len(copied))
}

// Stats returns a snapshot of validation counters.
func (v *BundleValidator) Stats() ValidatorStats {
	return ValidatorStats{
		Validated: v.validated.Load(),
		Rejected:  v.rejected.Load(),
	}
}

// Validate reads the bundle at path and runs every check in order:
//
//  1. manifest structurally valid
//  2. signature certificate matches the expected certificate, plus
//     cryptographic verification when a trusted key is configured
//  3. host version satisfies the manifest's requirement
//  4. declared entry point resolves to an artifact for the host platform
//
// On success the returned PluginBundle is complete and immutable. On
// failure the specific failing check's error is returned and no bundle
// exists.
func (v *BundleValidator) Validate(path string) (*PluginBundle, error) {
	raw, err := readBundle(path)
	if err != nil {
		return nil, v.reject(path, "", err)
	}
	manifest := raw.manifest

	if err := manifest.Validate(); err != nil {
		return nil, v.reject(path, manifest.ID, err)
	}

	expected, trustedKey, hasTrustedKey := v.trustSnapshot(raw.signature.Certificate)
	if !raw.signature.MatchesCertificate(expected) {
		return nil, v.reject(path, manifest.ID,
			NewCertificateMismatchError(manifest.ID, raw.signature.Certificate, expected))
	}
	if hasTrustedKey {
		if err := verifyManifestSignature(manifest.ID, raw.signature, raw.manifestRaw, trustedKey); err != nil {
			return nil, v.reject(path, manifest.ID, err)
		}
	}

	requirement, err := manifest.HostRequirement()
	if err != nil {
		return nil, v.reject(path, manifest.ID, err)
	}
	if !requirement.SatisfiedBy(v.hostVersion) {
		return nil, v.reject(path, manifest.ID,
			NewVersionIncompatibleError(manifest.ID, requirement.String(), v.hostVersion.String()))
	}

	entryPoint, ok := manifest.EntryPointFor(v.platform)
	if !ok {
		return nil, v.reject(path, manifest.ID,
			NewUnsupportedPlatformError(manifest.ID, v.platform))
	}
	artifactPath, ok := resolveArtifact(path, v.platform, entryPoint)
	if !ok {
		return nil, v.reject(path, manifest.ID,
			NewMissingArtifactError(manifest.ID, v.platform, entryPoint))
	}

	v.validated.Add(1)
	v.logger.Debug("Bundle validated",
		"plugin", manifest.ID,
		"path", path,
		"entry_point", entryPoint,
		"permissions", len(manifest.Permissions))

	return &PluginBundle{
		path:         path,
		manifest:     manifest,
		manifestRaw:  raw.manifestRaw,
		signature:    raw.signature,
		entryPoint:   entryPoint,
		artifactPath: artifactPath,
	}, nil
}

// trustSnapshot reads the trust configuration in one critical section so a
// validation sees a consistent certificate/key pair even during rotation.
func (v *BundleValidator) trustSnapshot(certificate string) (expected, trustedKey string, hasTrustedKey bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	expected = v.expectedCertificate
	trustedKey, hasTrustedKey = v.trustedKeys[certificate]
	return expected, trustedKey, hasTrustedKey
}

// reject records a validation failure in the counters, the logger and the
// audit trail, then passes the error through unchanged.
func (v *BundleValidator) reject(path, pluginID string, err error) error {
	v.rejected.Add(1)

	v.mu.RLock()
	audit := v.audit
	v.mu.RUnlock()

	v.logger.Warn("Bundle validation failed",
		"plugin", pluginID,
		"path", path,
		"error", err)
	audit.RecordSecurityEvent("bundle_rejected",
		"Bundle failed validation", map[string]interface{}{
			"plugin_id": pluginID,
			"path":      path,
			"error":     err.Error(),
		})
	return err
}
