// config.go: host configuration with validation and environment expansion
//
// Copyright (c) 2025 OmniTAK Project
// Series: an OmniTAK library
// SPDX-License-Identifier: MPL-2.0

package pluginhost

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"time"

	"github.com/agilira/argus"
	"gopkg.in/yaml.v3"
)

// HostConfig describes the host a plugin runtime serves: its version and
// platform, where managed bundles and plugin storage live, and the signing
// trust bundles are validated against.
//
// Example usage:
//
//	cfg := pluginhost.DefaultHostConfig()
//	cfg.HostVersion = "1.3.2"
//	cfg.ExpectedCertificate = "omnitak-release-2025"
//	cfg.PluginsDir = "/var/lib/omnitak/plugins"
type HostConfig struct {
	// HostVersion is the running host release (major.minor.patch) that
	// manifest requirements are checked against.
	HostVersion string `json:"host_version" yaml:"host_version"`

	// Platform is the name entry points are resolved for. Defaults to
	// the operating system name.
	Platform string `json:"platform" yaml:"platform"`

	// PluginsDir is the managed plugin directory installed bundles are
	// copied into.
	PluginsDir string `json:"plugins_dir" yaml:"plugins_dir"`

	// StorageDir holds per-plugin key-value storage files. Defaults to
	// a storage directory under PluginsDir.
	StorageDir string `json:"storage_dir,omitempty" yaml:"storage_dir,omitempty"`

	// ExpectedCertificate is the signing certificate identifier every
	// bundle must carry. Must be configured; with no trust configured
	// nothing validates.
	ExpectedCertificate string `json:"expected_certificate" yaml:"expected_certificate"`

	// TrustedKeys optionally maps certificate identifiers to base64
	// Ed25519 public keys. Bundles signed by a certificate present here
	// are additionally verified cryptographically.
	TrustedKeys map[string]string `json:"trusted_keys,omitempty" yaml:"trusted_keys,omitempty"`

	// SlowTransitionWarning is how long a lifecycle hook may run before
	// a warning is logged. Zero disables the watchdog.
	SlowTransitionWarning time.Duration `json:"slow_transition_warning,omitempty" yaml:"slow_transition_warning,omitempty"`

	// Audit configures the security audit trail.
	Audit AuditTrailConfig `json:"audit,omitempty" yaml:"audit,omitempty"`
}

// DefaultHostConfig returns a configuration with sensible defaults.
// HostVersion and ExpectedCertificate still need to be set by the host;
// validation enforces both.
func DefaultHostConfig() *HostConfig {
	cfg := &HostConfig{
		HostVersion: "1.0.0",
		Platform:    runtime.GOOS,
		PluginsDir:  "plugins",
	}
	cfg.setDefaults()
	return cfg
}

// setDefaults fills unset fields with their defaults.
func (c *HostConfig) setDefaults() {
	if c.Platform == "" {
		c.Platform = runtime.GOOS
	}
	if c.PluginsDir == "" {
		c.PluginsDir = "plugins"
	}
	if c.StorageDir == "" {
		c.StorageDir = filepath.Join(c.PluginsDir, "storage")
	}
	if c.SlowTransitionWarning == 0 {
		c.SlowTransitionWarning = 5 * time.Second
	}
	c.Audit.setDefaults()
}

// Validate checks the configuration for use. Defaults are applied first,
// so a hand-built config only needs the fields without defaults.
func (c *HostConfig) Validate() error {
	c.setDefaults()

	if _, err := ParseVersion(c.HostVersion); err != nil {
		return NewConfigValidationError("host_version must be a dotted numeric triple", err)
	}
	if c.ExpectedCertificate == "" {
		return NewConfigValidationError("expected_certificate must be configured", nil)
	}
	if c.SlowTransitionWarning < 0 {
		return NewConfigValidationError("slow_transition_warning cannot be negative", nil)
	}
	for certificate, key := range c.TrustedKeys {
		if _, err := base64.StdEncoding.DecodeString(key); err != nil {
			return NewConfigValidationError(
				"trusted key for certificate "+certificate+" is not valid base64", err)
		}
	}
	return nil
}

// LoadHostConfig reads a host configuration file. The format is detected
// from the file extension; JSON and YAML are supported. Values may
// reference environment variables with ${VAR} or ${VAR:default} syntax.
func LoadHostConfig(path string) (*HostConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, NewConfigNotFoundError(path, err)
	}
	expanded := expandConfigEnv(string(raw))

	var cfg HostConfig
	switch format := argus.DetectFormat(path); format {
	case argus.FormatJSON:
		if err := json.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, NewConfigParseError(path, err)
		}
	case argus.FormatYAML:
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, NewConfigParseError(path, err)
		}
	default:
		return nil, NewConfigValidationError(
			fmt.Sprintf("unsupported configuration format: %s", format), nil)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:default} references.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::([^}]*))?\}`)

// expandConfigEnv expands environment variable references in raw config
// text. Set variables expand to their value, unset variables with an
// inline default expand to the default, and unset variables without one
// are left untouched so they stay visible in validation errors.
func expandConfigEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		name, inlineDefault := groups[1], groups[2]

		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		if inlineDefault != "" {
			return inlineDefault
		}
		return match
	})
}
