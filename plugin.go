// plugin.go: Core plugin interface and lifecycle contract
//
// Copyright (c) 2025 OmniTAK Project
// Series: an OmniTAK library
// SPDX-License-Identifier: MPL-2.0

package pluginhost

// Plugin is the contract every plugin's root object fulfills. The host
// drives the hooks through the lifecycle state machine; a hook is never
// invoked from a state that does not allow it.
type Plugin interface {
	// Initialize prepares the plugin with its host context. The context
	// stays valid until Cleanup returns; the plugin must not retain it
	// beyond that.
	Initialize(ctx *PluginContext) error

	// Activate starts the plugin's visible behavior. Called after
	// Initialize, and again after each Deactivate.
	Activate() error

	// Deactivate pauses the plugin's visible behavior without releasing
	// resources. Activate may follow.
	Deactivate() error

	// Cleanup releases everything the plugin holds. Called from any state
	// during unload; must be safe even if Initialize never ran.
	Cleanup() error
}

// BasePlugin is a no-op implementation of Plugin. Embed it to implement
// only the hooks a plugin actually needs.
type BasePlugin struct{}

func (BasePlugin) Initialize(ctx *PluginContext) error { return nil }
func (BasePlugin) Activate() error                     { return nil }
func (BasePlugin) Deactivate() error                   { return nil }
func (BasePlugin) Cleanup() error                      { return nil }
