// manifest.go: plugin manifest model, parsing and structural validation
//
// Copyright (c) 2025 OmniTAK Project
// Series: an OmniTAK library
// SPDX-License-Identifier: MPL-2.0

package pluginhost

import (
	"encoding/json"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// PluginManifest is the declarative metadata every bundle ships. It names
// the plugin, pins the host release range the plugin was built against,
// declares the permissions it needs, and maps each supported platform to
// the entry point the host must resolve there.
//
// Manifests are immutable once parsed. Structural validation rejects any
// manifest missing an identifier, carrying a malformed host requirement,
// declaring an unknown permission, or declaring no entry points.
type PluginManifest struct {
	// ID is the globally unique plugin identifier.
	ID string `json:"id" yaml:"id"`

	// Name is an optional human-readable display name.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Version is the plugin's own release version (major.minor.patch).
	Version string `json:"version,omitempty" yaml:"version,omitempty"`

	// Description is optional operator-facing prose.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Author is the optional publisher name.
	Author string `json:"author,omitempty" yaml:"author,omitempty"`

	// OmniTAKVersion is the host-version requirement expression
	// ("1.2.0", ">=1.2.0", "^1.2.0", "~1.2.0").
	OmniTAKVersion string `json:"omnitakVersion" yaml:"omnitakVersion"`

	// Permissions lists the permission identifiers the plugin requests,
	// in declaration order.
	Permissions []string `json:"permissions,omitempty" yaml:"permissions,omitempty"`

	// EntryPoints maps a platform name to the entry-point identifier the
	// host resolves on that platform.
	EntryPoints map[string]string `json:"entryPoints" yaml:"entryPoints"`
}

// ParseManifest decodes manifest bytes. JSON is the canonical encoding;
// YAML is accepted as a fallback for hand-authored manifests. The returned
// manifest is parsed but not yet validated; callers run Validate before
// trusting any field.
func ParseManifest(data []byte) (*PluginManifest, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, NewManifestParseError(nil)
	}

	var manifest PluginManifest
	jsonErr := json.Unmarshal(data, &manifest)
	if jsonErr == nil {
		return &manifest, nil
	}

	manifest = PluginManifest{}
	if yamlErr := yaml.Unmarshal(data, &manifest); yamlErr == nil {
		return &manifest, nil
	}

	return nil, NewManifestParseError(jsonErr)
}

// Validate checks structural validity: non-empty identifier, well-formed
// host requirement, known permission identifiers, at least one entry point,
// and a well-formed plugin version when one is declared. The first failing
// check wins; nothing is mutated.
func (m *PluginManifest) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return NewMissingPluginIDError()
	}

	if m.Version != "" {
		if _, err := ParseVersion(m.Version); err != nil {
			return NewInvalidVersionError(m.Version, err).
				WithContext("plugin_id", m.ID)
		}
	}

	if _, err := ParseVersionRequirement(m.OmniTAKVersion); err != nil {
		return NewInvalidRequirementError(m.OmniTAKVersion, nil).
			WithContext("plugin_id", m.ID)
	}

	for _, identifier := range m.Permissions {
		if !IsKnownPermission(identifier) {
			return NewUnknownPermissionError(identifier).
				WithContext("plugin_id", m.ID)
		}
	}

	if len(m.EntryPoints) == 0 {
		return NewMissingEntryPointsError(m.ID)
	}
	for platform, entryPoint := range m.EntryPoints {
		if strings.TrimSpace(platform) == "" || strings.TrimSpace(entryPoint) == "" {
			return NewMissingEntryPointsError(m.ID)
		}
	}

	return nil
}

// HostRequirement returns the parsed host-version requirement. Call only
// after Validate has succeeded; a manifest that fails parsing here was
// never validated.
func (m *PluginManifest) HostRequirement() (VersionRequirement, error) {
	return ParseVersionRequirement(m.OmniTAKVersion)
}

// EntryPointFor returns the entry-point identifier declared for a platform
// and whether the platform is supported at all.
func (m *PluginManifest) EntryPointFor(platform string) (string, bool) {
	entryPoint, ok := m.EntryPoints[platform]
	return entryPoint, ok
}

// Platforms returns the declared platform names in sorted order.
func (m *PluginManifest) Platforms() []string {
	platforms := make([]string, 0, len(m.EntryPoints))
	for platform := range m.EntryPoints {
		platforms = append(platforms, platform)
	}
	sort.Strings(platforms)
	return platforms
}

// DisplayName returns the human-readable name, falling back to the
// identifier when no name is declared.
func (m *PluginManifest) DisplayName() string {
	if m.Name != "" {
		return m.Name
	}
	return m.ID
}
