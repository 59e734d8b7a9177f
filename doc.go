// Package pluginhost provides the host-side plugin runtime for OmniTAK
// tactical-mapping applications. It discovers, validates, and governs
// third-party extension bundles: manifest and version-compatibility checks,
// signature verification, a capability-based permission system gating access
// to host subsystems (messaging, mapping, networking, location, storage, UI),
// and a strict per-plugin lifecycle state machine.
//
// Key Features:
//   - Bundle validation pipeline (manifest, signature, version, entry point)
//   - Closed-world permission model with static risk classification
//   - Permission-gated capability managers built lazily per plugin context
//   - Idempotent loader with a single registry of live instances
//   - Lifecycle state machine with panic-isolated plugin hooks
//   - Install/enable/disable/discover management with persisted enabled set
//   - Security audit trail and hot certificate rotation via Argus
//   - Structured error taxonomy and pluggable structured logging
//
// Basic Usage:
//
//	// Register the entry-point factories your build ships with
//	factories := pluginhost.NewFactoryRegistry(logger)
//	factories.Register("GeoChatPlugin", func() (pluginhost.Plugin, error) {
//		return &GeoChatPlugin{}, nil
//	})
//
//	// Create the runtime from host configuration
//	cfg := pluginhost.DefaultHostConfig()
//	cfg.PluginsDir = "/var/lib/omnitak/plugins"
//	cfg.ExpectedCertificate = "OMNITAK-RELEASE-2025"
//
//	manager, err := pluginhost.NewManager(cfg, factories, pluginhost.DefaultHostBridges(), logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	// Install a bundle and switch it on
//	instance, err := manager.InstallPlugin("/tmp/geo-chat.omniplugin")
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := manager.EnablePlugin(instance.ID()); err != nil {
//		log.Fatal(err)
//	}
//
// Security:
// Bundles are rejected before any plugin code is instantiated unless the
// manifest parses, the signature certificate matches the host configuration
// (optionally backed by Ed25519 verification over the manifest bytes), the
// declared host-version requirement is satisfied, and the platform entry
// point resolves to an artifact. Permission grants are installed atomically
// at load and revoked atomically at unload, and every security-relevant
// decision can be written to an Argus audit trail.
//
// Copyright (c) 2025 OmniTAK Project
// SPDX-License-Identifier: MPL-2.0
package pluginhost
