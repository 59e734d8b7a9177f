// errors_test.go: structured error constructor and taxonomy tests
//
// Copyright (c) 2025 OmniTAK Project
// Series: an OmniTAK library
// SPDX-License-Identifier: MPL-2.0

package pluginhost

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/agilira/go-errors"
)

// TestManifestErrorConstructors covers the manifest validation error family.
func TestManifestErrorConstructors(t *testing.T) {
	t.Run("NewMissingPluginIDError", func(t *testing.T) {
		err := NewMissingPluginIDError()

		if err.ErrorCode() != errors.ErrorCode(ErrCodeMissingPluginID) {
			t.Errorf("Expected error code %s, got %s", ErrCodeMissingPluginID, err.ErrorCode())
		}
		if err.Severity != "error" {
			t.Errorf("Expected severity error, got %q", err.Severity)
		}
		if err.IsRetryable() {
			t.Error("Manifest validation failures are never retryable")
		}
	})

	t.Run("NewInvalidVersionError", func(t *testing.T) {
		cause := fmt.Errorf("missing patch component")
		err := NewInvalidVersionError("1.2", cause)

		if err.ErrorCode() != errors.ErrorCode(ErrCodeInvalidVersion) {
			t.Errorf("Expected error code %s, got %s", ErrCodeInvalidVersion, err.ErrorCode())
		}
		if err.Context["version"] != "1.2" {
			t.Errorf("Expected version context 1.2, got %v", err.Context["version"])
		}
		if !stderrors.Is(err, cause) {
			t.Error("The parse cause should stay reachable through the wrap")
		}
	})

	t.Run("NewUnknownPermissionError", func(t *testing.T) {
		err := NewUnknownPermissionError("satellite.uplink")

		if err.ErrorCode() != errors.ErrorCode(ErrCodeUnknownPermission) {
			t.Errorf("Expected error code %s, got %s", ErrCodeUnknownPermission, err.ErrorCode())
		}
		if err.Context["permission"] != "satellite.uplink" {
			t.Errorf("Expected permission context satellite.uplink, got %v", err.Context["permission"])
		}
	})

	t.Run("NewVersionIncompatibleError", func(t *testing.T) {
		err := NewVersionIncompatibleError("com.omnitak.geochat", "^2.0.0", "1.3.2")

		if err.ErrorCode() != errors.ErrorCode(ErrCodeVersionIncompatible) {
			t.Errorf("Expected error code %s, got %s", ErrCodeVersionIncompatible, err.ErrorCode())
		}
		if err.Context["requirement"] != "^2.0.0" {
			t.Errorf("Expected requirement context ^2.0.0, got %v", err.Context["requirement"])
		}
		if err.Context["host_version"] != "1.3.2" {
			t.Errorf("Expected host_version context 1.3.2, got %v", err.Context["host_version"])
		}
	})

	t.Run("NewMissingArtifactError", func(t *testing.T) {
		err := NewMissingArtifactError("com.omnitak.geochat", "android-arm64", "geochat-plugin")

		if err.ErrorCode() != errors.ErrorCode(ErrCodeMissingArtifact) {
			t.Errorf("Expected error code %s, got %s", ErrCodeMissingArtifact, err.ErrorCode())
		}
		if err.Context["platform"] != "android-arm64" {
			t.Errorf("Expected platform context android-arm64, got %v", err.Context["platform"])
		}
	})
}

// TestSignatureErrorConstructors covers the signing trust error family.
func TestSignatureErrorConstructors(t *testing.T) {
	t.Run("NewCertificateMismatchError", func(t *testing.T) {
		err := NewCertificateMismatchError("com.omnitak.geochat", "hostile-signer", "omnitak-release-2025")

		if err.ErrorCode() != errors.ErrorCode(ErrCodeCertificateMismatch) {
			t.Errorf("Expected error code %s, got %s", ErrCodeCertificateMismatch, err.ErrorCode())
		}
		if err.Context["certificate"] != "hostile-signer" {
			t.Errorf("Expected certificate context hostile-signer, got %v", err.Context["certificate"])
		}
		if err.Context["expected_certificate"] != "omnitak-release-2025" {
			t.Errorf("Expected expected_certificate context, got %v", err.Context["expected_certificate"])
		}
	})

	t.Run("NewSignatureVerifyError", func(t *testing.T) {
		err := NewSignatureVerifyError("com.omnitak.geochat", "omnitak-release-2025")

		if err.ErrorCode() != errors.ErrorCode(ErrCodeSignatureVerify) {
			t.Errorf("Expected error code %s, got %s", ErrCodeSignatureVerify, err.ErrorCode())
		}
		if err.Context["certificate"] != "omnitak-release-2025" {
			t.Errorf("Expected certificate context, got %v", err.Context["certificate"])
		}
	})

	t.Run("NewUntrustedCertificateError", func(t *testing.T) {
		err := NewUntrustedCertificateError("com.omnitak.geochat", "rsa-pss")

		if err.ErrorCode() != errors.ErrorCode(ErrCodeUntrustedCertificate) {
			t.Errorf("Expected error code %s, got %s", ErrCodeUntrustedCertificate, err.ErrorCode())
		}
		if err.Context["algorithm"] != "rsa-pss" {
			t.Errorf("Expected algorithm context rsa-pss, got %v", err.Context["algorithm"])
		}
	})
}

// TestPermissionErrorConstructors covers the permission enforcement family.
func TestPermissionErrorConstructors(t *testing.T) {
	t.Run("NewPermissionDeniedError", func(t *testing.T) {
		err := NewPermissionDeniedError("com.omnitak.geochat", PermissionCoTWrite)

		if err.ErrorCode() != errors.ErrorCode(ErrCodePermissionDenied) {
			t.Errorf("Expected error code %s, got %s", ErrCodePermissionDenied, err.ErrorCode())
		}
		if err.Context["permission"] != "cot.write" {
			t.Errorf("Expected permission context cot.write, got %v", err.Context["permission"])
		}
		if err.Severity != "warning" {
			t.Errorf("Expected severity warning, got %q", err.Severity)
		}
	})

	t.Run("NewCapabilityDeniedError", func(t *testing.T) {
		err := NewCapabilityDeniedError("com.omnitak.geochat", "location",
			[]Permission{PermissionLocationRead, PermissionLocationWrite})

		if err.ErrorCode() != errors.ErrorCode(ErrCodeCapabilityDenied) {
			t.Errorf("Expected error code %s, got %s", ErrCodeCapabilityDenied, err.ErrorCode())
		}
		if err.Context["capability"] != "location" {
			t.Errorf("Expected capability context location, got %v", err.Context["capability"])
		}
		if err.Context["required_permissions"] != "location.read,location.write" {
			t.Errorf("Expected joined permission list, got %v", err.Context["required_permissions"])
		}
	})
}

// TestRuntimeErrorConstructors covers loader and manager operation failures.
func TestRuntimeErrorConstructors(t *testing.T) {
	t.Run("NewInvalidTransitionError", func(t *testing.T) {
		err := NewInvalidTransitionError("com.omnitak.geochat", "active", "deactivate")

		if err.ErrorCode() != errors.ErrorCode(ErrCodeInvalidTransition) {
			t.Errorf("Expected error code %s, got %s", ErrCodeInvalidTransition, err.ErrorCode())
		}
		if err.Context["required_state"] != "active" {
			t.Errorf("Expected required_state context active, got %v", err.Context["required_state"])
		}
		if err.Context["action"] != "deactivate" {
			t.Errorf("Expected action context deactivate, got %v", err.Context["action"])
		}
	})

	t.Run("NewPluginNotLoadedError", func(t *testing.T) {
		err := NewPluginNotLoadedError("com.omnitak.ghost")

		if err.ErrorCode() != errors.ErrorCode(ErrCodePluginNotLoaded) {
			t.Errorf("Expected error code %s, got %s", ErrCodePluginNotLoaded, err.ErrorCode())
		}
		if err.Context["plugin_id"] != "com.omnitak.ghost" {
			t.Errorf("Expected plugin_id context, got %v", err.Context["plugin_id"])
		}
	})

	t.Run("NewInstallFailedError", func(t *testing.T) {
		cause := fmt.Errorf("disk full")
		err := NewInstallFailedError("/tmp/bundle.zip", cause)

		if err.ErrorCode() != errors.ErrorCode(ErrCodeInstallFailed) {
			t.Errorf("Expected error code %s, got %s", ErrCodeInstallFailed, err.ErrorCode())
		}
		if !stderrors.Is(err, cause) {
			t.Error("The install cause should stay reachable through the wrap")
		}
	})
}

// TestStorageErrorRetryable verifies storage write failures carry the
// retryable marker; a full disk or locked file is worth retrying, unlike
// a validation failure.
func TestStorageErrorRetryable(t *testing.T) {
	err := NewStorageWriteError("com.omnitak.geochat", fmt.Errorf("device busy"))

	if err.ErrorCode() != errors.ErrorCode(ErrCodeStorageWrite) {
		t.Errorf("Expected error code %s, got %s", ErrCodeStorageWrite, err.ErrorCode())
	}
	if !err.IsRetryable() {
		t.Error("Storage write failures should be retryable")
	}
}

// TestLifecycleErrorWrapping verifies lifecycle wrappers keep the hook's
// own error reachable for callers using errors.Is.
func TestLifecycleErrorWrapping(t *testing.T) {
	cause := fmt.Errorf("tile cache unavailable")
	err := NewInitializationFailedError("com.omnitak.geochat", cause)

	if err.ErrorCode() != errors.ErrorCode(ErrCodeInitializationFailed) {
		t.Errorf("Expected error code %s, got %s", ErrCodeInitializationFailed, err.ErrorCode())
	}
	if !stderrors.Is(err, cause) {
		t.Error("The hook error should stay reachable through the wrap")
	}
	if err.Context["plugin_id"] != "com.omnitak.geochat" {
		t.Errorf("Expected plugin_id context, got %v", err.Context["plugin_id"])
	}
}

// TestErrorKindPredicates verifies the code-prefix classification across
// all five families, including wrapped and foreign errors.
func TestErrorKindPredicates(t *testing.T) {
	manifestErr := NewMissingPluginIDError()
	signatureErr := NewSignatureParseError(fmt.Errorf("bad json"))
	permissionErr := NewPermissionDeniedError("com.omnitak.geochat", PermissionNetwork)
	lifecycleErr := NewInitializationFailedError("com.omnitak.geochat", fmt.Errorf("boom"))
	runtimeErr := NewPluginNotLoadedError("com.omnitak.geochat")

	tests := []struct {
		name      string
		err       error
		predicate func(error) bool
		want      bool
	}{
		{"Manifest_Matches", manifestErr, IsInvalidManifest, true},
		{"Manifest_Not_Signature", manifestErr, IsSignatureInvalid, false},
		{"Signature_Matches", signatureErr, IsSignatureInvalid, true},
		{"Permission_Matches", permissionErr, IsPermissionDenied, true},
		{"Permission_Not_Runtime", permissionErr, IsRuntimeError, false},
		{"Lifecycle_Matches", lifecycleErr, IsInitializationFailed, true},
		{"Runtime_Matches", runtimeErr, IsRuntimeError, true},
		{"Runtime_Not_Lifecycle", runtimeErr, IsInitializationFailed, false},
		{"Wrapped_Still_Matches", fmt.Errorf("loading failed: %w", manifestErr), IsInvalidManifest, true},
		{"Plain_Error_Never_Matches", fmt.Errorf("plain failure"), IsInvalidManifest, false},
		{"Nil_Never_Matches", nil, IsRuntimeError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.predicate(tt.err); got != tt.want {
				t.Errorf("Predicate returned %v, want %v", got, tt.want)
			}
		})
	}
}

// TestPanicErrorCarriesRecoveredValue verifies the panic wrapper keeps the
// recovered value in context for diagnostics.
func TestPanicErrorCarriesRecoveredValue(t *testing.T) {
	err := NewPluginPanicError("com.omnitak.geochat", "activate", "index out of range")

	if err.ErrorCode() != errors.ErrorCode(ErrCodePluginPanic) {
		t.Errorf("Expected error code %s, got %s", ErrCodePluginPanic, err.ErrorCode())
	}
	if err.Context["panic"] != "index out of range" {
		t.Errorf("Expected panic context, got %v", err.Context["panic"])
	}
	if err.Severity != "critical" {
		t.Errorf("Expected severity critical, got %q", err.Severity)
	}
	if !IsInitializationFailed(err) {
		t.Error("Recovered panics classify with the lifecycle family")
	}
}
