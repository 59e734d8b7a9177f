// version.go: plugin version model and host compatibility requirements
//
// Plugin manifests pin the host release they were built against with a
// requirement expression ("1.2.0", ">=1.2.0", "^1.2.0", "~1.2.0"). The
// resolver here is deliberately small: versions are strict dotted numeric
// triples with a total ordering, and the four requirement operators cover
// every compatibility policy the manifest format defines.
//
// Copyright (c) 2025 OmniTAK Project
// Series: an OmniTAK library
// SPDX-License-Identifier: MPL-2.0

package pluginhost

import (
	"fmt"
	"strconv"
	"strings"
)

// PluginVersion is a three-component version number (major.minor.patch).
//
// Versions are value types with a total ordering; two versions are equal
// exactly when all three components match.
type PluginVersion struct {
	Major uint64 `json:"major"`
	Minor uint64 `json:"minor"`
	Patch uint64 `json:"patch"`
}

// ParseVersion parses a strict MAJOR.MINOR.PATCH version string.
//
// All three components must be present and numeric. Prefixes ("v1.2.3"),
// pre-release tags and build metadata are rejected.
func ParseVersion(s string) (PluginVersion, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return PluginVersion{}, NewInvalidVersionError(s, nil)
	}

	parts := strings.Split(trimmed, ".")
	if len(parts) != 3 {
		return PluginVersion{}, NewInvalidVersionError(s, nil)
	}

	components := make([]uint64, 3)
	for i, part := range parts {
		n, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return PluginVersion{}, NewInvalidVersionError(s, err)
		}
		components[i] = n
	}

	return PluginVersion{
		Major: components[0],
		Minor: components[1],
		Patch: components[2],
	}, nil
}

// MustParseVersion parses a version string and panics on failure.
// Intended for host initialization with compile-time constant versions.
func MustParseVersion(s string) PluginVersion {
	v, err := ParseVersion(s)
	if err != nil {
		panic(fmt.Sprintf("pluginhost: invalid version %q: %v", s, err))
	}
	return v
}

// String returns the canonical MAJOR.MINOR.PATCH form.
func (v PluginVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare returns -1, 0, or 1 depending on whether v is ordered before,
// equal to, or after other. Components are compared major first, then
// minor, then patch.
func (v PluginVersion) Compare(other PluginVersion) int {
	if v.Major != other.Major {
		if v.Major < other.Major {
			return -1
		}
		return 1
	}
	if v.Minor != other.Minor {
		if v.Minor < other.Minor {
			return -1
		}
		return 1
	}
	if v.Patch != other.Patch {
		if v.Patch < other.Patch {
			return -1
		}
		return 1
	}
	return 0
}

// AtLeast reports whether v is equal to or after other in version order.
func (v PluginVersion) AtLeast(other PluginVersion) bool {
	return v.Compare(other) >= 0
}

// RequirementOperator identifies the compatibility policy of a version
// requirement expression.
type RequirementOperator int

const (
	// OperatorExact requires the host version to equal the reference exactly.
	OperatorExact RequirementOperator = iota

	// OperatorAtLeast (">=") requires the host version to be equal to or
	// after the reference.
	OperatorAtLeast

	// OperatorCompatibleMajor ("^") requires the same major component and
	// a host version equal to or after the reference.
	OperatorCompatibleMajor

	// OperatorCompatibleMinor ("~") requires the same major and minor
	// components and a host version equal to or after the reference.
	OperatorCompatibleMinor
)

// String returns a human-readable operator name for logs and errors.
func (op RequirementOperator) String() string {
	switch op {
	case OperatorExact:
		return "exact"
	case OperatorAtLeast:
		return "at-least"
	case OperatorCompatibleMajor:
		return "compatible-major"
	case OperatorCompatibleMinor:
		return "compatible-minor"
	default:
		return "unknown"
	}
}

// VersionRequirement is a parsed host-version requirement from a plugin
// manifest. The zero value is not valid; construct requirements through
// ParseVersionRequirement.
type VersionRequirement struct {
	Operator RequirementOperator
	Version  PluginVersion

	raw string
}

// ParseVersionRequirement parses a requirement expression into its operator
// and reference version. Recognized forms:
//
//	"1.2.0"    exact match
//	">=1.2.0"  at least the reference version
//	"^1.2.0"   same major, at least the reference version
//	"~1.2.0"   same major and minor, at least the reference version
func ParseVersionRequirement(s string) (VersionRequirement, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return VersionRequirement{}, NewInvalidRequirementError(s, nil)
	}

	op := OperatorExact
	rest := trimmed
	switch {
	case strings.HasPrefix(trimmed, ">="):
		op = OperatorAtLeast
		rest = trimmed[2:]
	case strings.HasPrefix(trimmed, "^"):
		op = OperatorCompatibleMajor
		rest = trimmed[1:]
	case strings.HasPrefix(trimmed, "~"):
		op = OperatorCompatibleMinor
		rest = trimmed[1:]
	}

	version, err := ParseVersion(strings.TrimSpace(rest))
	if err != nil {
		return VersionRequirement{}, NewInvalidRequirementError(s, err)
	}

	return VersionRequirement{
		Operator: op,
		Version:  version,
		raw:      trimmed,
	}, nil
}

// String returns the original requirement expression.
func (r VersionRequirement) String() string {
	return r.raw
}

// SatisfiedBy reports whether the given host version satisfies the
// requirement under its operator's compatibility policy.
func (r VersionRequirement) SatisfiedBy(host PluginVersion) bool {
	switch r.Operator {
	case OperatorExact:
		return host.Compare(r.Version) == 0
	case OperatorAtLeast:
		return host.AtLeast(r.Version)
	case OperatorCompatibleMajor:
		return host.Major == r.Version.Major && host.AtLeast(r.Version)
	case OperatorCompatibleMinor:
		return host.Major == r.Version.Major &&
			host.Minor == r.Version.Minor &&
			host.AtLeast(r.Version)
	default:
		return false
	}
}
