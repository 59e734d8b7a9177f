// signature.go: bundle signature model and verification
//
// Every bundle carries a detached signature record naming the algorithm,
// the signature payload, the signing certificate identifier and the
// issuance timestamp. The baseline trust decision compares the certificate
// identifier against the one the host is configured to expect. When the
// host additionally configures a trusted public key for that certificate,
// the signature payload is cryptographically verified over the manifest
// digest, closing the gap the identifier comparison leaves open.
//
// Copyright (c) 2025 OmniTAK Project
// Series: an OmniTAK library
// SPDX-License-Identifier: MPL-2.0

package pluginhost

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"
)

// SignatureAlgorithmEd25519 is the only algorithm the host verifies
// cryptographically. Other algorithm identifiers still pass the baseline
// certificate comparison but cannot participate in key verification.
const SignatureAlgorithmEd25519 = "ed25519"

// PluginSignature is the parsed content of a bundle's signature record.
type PluginSignature struct {
	// Algorithm identifies the signature scheme.
	Algorithm string `json:"algorithm"`

	// Signature is the base64-encoded signature payload.
	Signature string `json:"signature"`

	// Certificate is the signing certificate identifier compared against
	// the host-configured expected certificate.
	Certificate string `json:"certificate"`

	// Timestamp is the RFC 3339 issuance time recorded by the signer.
	Timestamp string `json:"timestamp,omitempty"`
}

// ParseSignature decodes a signature record from JSON bytes.
func ParseSignature(data []byte) (*PluginSignature, error) {
	var sig PluginSignature
	if err := json.Unmarshal(data, &sig); err != nil {
		return nil, NewSignatureParseError(err)
	}
	return &sig, nil
}

// MatchesCertificate reports whether the signing certificate identifier
// equals the expected one. The comparison is constant-time; certificate
// identifiers participate in a trust decision even though they are not
// secrets.
func (s *PluginSignature) MatchesCertificate(expected string) bool {
	return subtle.ConstantTimeCompare([]byte(s.Certificate), []byte(expected)) == 1
}

// SignedAt parses the issuance timestamp. Returns the zero time when no
// timestamp was recorded.
func (s *PluginSignature) SignedAt() (time.Time, error) {
	if s.Timestamp == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s.Timestamp)
}

// verifyManifestSignature cryptographically verifies the signature payload
// against the SHA-256 digest of the raw manifest bytes using the trusted
// public key configured for the signing certificate.
func verifyManifestSignature(pluginID string, sig *PluginSignature, manifestRaw []byte, publicKeyBase64 string) error {
	if !strings.EqualFold(sig.Algorithm, SignatureAlgorithmEd25519) {
		return NewUntrustedCertificateError(pluginID, sig.Algorithm)
	}

	publicKey, err := base64.StdEncoding.DecodeString(publicKeyBase64)
	if err != nil {
		return NewSignatureEncodingError(pluginID, err)
	}
	if len(publicKey) != ed25519.PublicKeySize {
		return NewSignatureVerifyError(pluginID, sig.Certificate).
			WithContext("reason", "trusted key has wrong length")
	}

	payload, err := base64.StdEncoding.DecodeString(sig.Signature)
	if err != nil {
		return NewSignatureEncodingError(pluginID, err)
	}

	digest := sha256.Sum256(manifestRaw)
	if !ed25519.Verify(ed25519.PublicKey(publicKey), digest[:], payload) {
		return NewSignatureVerifyError(pluginID, sig.Certificate)
	}
	return nil
}
