// context.go: the per-plugin host context
//
// A PluginContext is the only window a plugin has into the host. It owns
// the plugin's granted permission set, its private storage, a scoped
// logger, and the capability managers, which are constructed lazily on
// first access. Each accessor checks the relevant permissions before
// constructing anything: a denied access fails with a permission error
// and caches nothing, so repeated denials have no side effects and a
// plugin can never hold a manager it was not entitled to at first use.
//
// The context is owned exclusively by its plugin instance and is valid
// only while that instance is live. Host-side collaborators that need to
// act for a plugin outside the context path go through the process-wide
// PermissionChecker instead.
//
// Copyright (c) 2025 OmniTAK Project
// Series: an OmniTAK library
// SPDX-License-Identifier: MPL-2.0

package pluginhost

import "sync"

// PluginContext carries everything the host exposes to one plugin.
type PluginContext struct {
	pluginID string
	perms    *PermissionSet
	storage  *PluginStorage
	bridges  *HostBridges
	logger   Logger

	mu        sync.Mutex
	messaging *MessagingManager
	mapping   *MapManager
	network   *NetworkManager
	location  *LocationManager
	ui        *UIManager
}

// NewPluginContext builds a context for a plugin. Plugin authors can call
// this directly in their own tests; inside the runtime the loader builds
// contexts as part of loading a validated bundle.
func NewPluginContext(pluginID string, perms *PermissionSet, storage *PluginStorage, bridges *HostBridges, logger any) *PluginContext {
	scoped := NewLogger(logger).With("plugin", pluginID)
	return &PluginContext{
		pluginID: pluginID,
		perms:    perms,
		storage:  storage,
		bridges:  bridges.normalized(),
		logger:   scoped,
	}
}

// PluginID returns the identifier of the plugin this context belongs to.
func (c *PluginContext) PluginID() string { return c.pluginID }

// Logger returns the plugin-scoped logger.
func (c *PluginContext) Logger() Logger { return c.logger }

// Storage returns the plugin's private key-value store. The handle is
// always present; individual operations enforce the storage permissions.
func (c *PluginContext) Storage() *PluginStorage { return c.storage }

// Permissions returns the plugin's granted permission set.
func (c *PluginContext) Permissions() *PermissionSet { return c.perms }

// Messaging returns the CoT messaging manager. Requires cot.read or
// cot.write.
func (c *PluginContext) Messaging() (*MessagingManager, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.messaging != nil {
		return c.messaging, nil
	}
	if !c.perms.HasAny(PermissionCoTRead, PermissionCoTWrite) {
		return nil, NewCapabilityDeniedError(c.pluginID, "messaging",
			[]Permission{PermissionCoTRead, PermissionCoTWrite})
	}

	c.messaging = &MessagingManager{
		pluginID: c.pluginID,
		perms:    c.perms,
		bridge:   c.bridges.Messaging,
		logger:   c.logger,
	}
	c.logger.Debug("Capability manager constructed", "capability", "messaging")
	return c.messaging, nil
}

// Mapping returns the map manager. Requires map.read or map.write.
func (c *PluginContext) Mapping() (*MapManager, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mapping != nil {
		return c.mapping, nil
	}
	if !c.perms.HasAny(PermissionMapRead, PermissionMapWrite) {
		return nil, NewCapabilityDeniedError(c.pluginID, "mapping",
			[]Permission{PermissionMapRead, PermissionMapWrite})
	}

	c.mapping = &MapManager{
		pluginID: c.pluginID,
		perms:    c.perms,
		bridge:   c.bridges.Map,
		logger:   c.logger,
	}
	c.logger.Debug("Capability manager constructed", "capability", "mapping")
	return c.mapping, nil
}

// Networking returns the network manager. Requires the network permission.
func (c *PluginContext) Networking() (*NetworkManager, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.network != nil {
		return c.network, nil
	}
	if !c.perms.Has(PermissionNetwork) {
		return nil, NewCapabilityDeniedError(c.pluginID, "networking",
			[]Permission{PermissionNetwork})
	}

	c.network = &NetworkManager{
		pluginID: c.pluginID,
		perms:    c.perms,
		bridge:   c.bridges.Network,
		logger:   c.logger,
	}
	c.logger.Debug("Capability manager constructed", "capability", "networking")
	return c.network, nil
}

// Location returns the location manager. Requires location.read or
// location.write.
func (c *PluginContext) Location() (*LocationManager, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.location != nil {
		return c.location, nil
	}
	if !c.perms.HasAny(PermissionLocationRead, PermissionLocationWrite) {
		return nil, NewCapabilityDeniedError(c.pluginID, "location",
			[]Permission{PermissionLocationRead, PermissionLocationWrite})
	}

	c.location = &LocationManager{
		pluginID: c.pluginID,
		perms:    c.perms,
		bridge:   c.bridges.Location,
		logger:   c.logger,
	}
	c.logger.Debug("Capability manager constructed", "capability", "location")
	return c.location, nil
}

// UI returns the user-interface manager. Requires ui.create.
func (c *PluginContext) UI() (*UIManager, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ui != nil {
		return c.ui, nil
	}
	if !c.perms.Has(PermissionUICreate) {
		return nil, NewCapabilityDeniedError(c.pluginID, "ui",
			[]Permission{PermissionUICreate})
	}

	c.ui = &UIManager{
		pluginID: c.pluginID,
		perms:    c.perms,
		bridge:   c.bridges.UI,
		logger:   c.logger,
	}
	c.logger.Debug("Capability manager constructed", "capability", "ui")
	return c.ui, nil
}
