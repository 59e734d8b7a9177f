// loader.go: turns validated bundles into live plugin instances
//
// The loader owns the registry of live instances and the permission
// checker, the two pieces of process-wide state the runtime keeps. At
// most one instance exists per plugin identifier; loading an already
// loaded plugin returns the existing instance unchanged. Registry and
// permission table updates happen together in one critical section so no
// observer ever sees a registered plugin without its grants or grants
// without a plugin. Bundle I/O and plugin construction stay outside the
// locks.
//
// Copyright (c) 2025 OmniTAK Project
// Series: an OmniTAK library
// SPDX-License-Identifier: MPL-2.0

package pluginhost

import (
	"sort"
	"sync"
	"time"
)

// Loader validates bundles, instantiates plugin objects through the
// factory registry, and tracks live instances by plugin identifier.
//
// All methods are safe for concurrent use.
type Loader struct {
	validator   *BundleValidator
	factories   *FactoryRegistry
	checker     *PermissionChecker
	bridges     *HostBridges
	logger      Logger
	storageDir  string
	slowWarning time.Duration

	mu      sync.RWMutex
	plugins map[string]*PluginInstance
}

// NewLoader creates a loader for the host described by cfg. The factory
// registry carries the entry points this host build ships; bridges may be
// nil for a headless host.
func NewLoader(cfg *HostConfig, factories *FactoryRegistry, bridges *HostBridges, logger any) (*Loader, error) {
	internalLogger := NewLogger(logger)

	validator, err := NewBundleValidator(cfg, internalLogger)
	if err != nil {
		return nil, err
	}
	if factories == nil {
		return nil, NewConfigValidationError("factory registry cannot be nil", nil)
	}

	return &Loader{
		validator:   validator,
		factories:   factories,
		checker:     NewPermissionChecker(internalLogger),
		bridges:     bridges.normalized(),
		logger:      internalLogger,
		storageDir:  cfg.StorageDir,
		slowWarning: cfg.SlowTransitionWarning,
		plugins:     make(map[string]*PluginInstance),
	}, nil
}

// Validator returns the bundle validator, for trust rotation and stats.
func (l *Loader) Validator() *BundleValidator { return l.validator }

// Checker returns the process-wide permission checker. Host subsystems
// honoring plugin requests outside the context path enforce permissions
// through it.
func (l *Loader) Checker() *PermissionChecker { return l.checker }

// LoadPlugin validates the bundle at bundlePath and brings the plugin to
// state loaded. If an instance for the bundle's plugin identifier is
// already live, that instance is returned unchanged and nothing else
// happens. On success the plugin's declared permissions are granted and
// the new instance is registered, atomically.
func (l *Loader) LoadPlugin(bundlePath string) (*PluginInstance, error) {
	bundle, err := l.validator.Validate(bundlePath)
	if err != nil {
		return nil, err
	}
	pluginID := bundle.Manifest().ID

	l.mu.RLock()
	existing, ok := l.plugins[pluginID]
	l.mu.RUnlock()
	if ok {
		l.logger.Debug("Plugin already loaded, returning existing instance",
			"plugin", pluginID,
			"instance_id", existing.InstanceID())
		return existing, nil
	}

	factory, err := l.factories.Resolve(bundle.EntryPoint())
	if err != nil {
		return nil, err
	}
	plugin, err := factory()
	if err != nil {
		return nil, NewPluginCreationError(bundle.EntryPoint(), err)
	}

	perms, err := NewPermissionSet(bundle.Manifest().Permissions)
	if err != nil {
		return nil, err
	}
	storage := newPluginStorage(l.storageDir, pluginID, perms, l.logger)
	pluginContext := NewPluginContext(pluginID, perms, storage, l.bridges, l.logger)
	instance := newPluginInstance(bundle, plugin, pluginContext, l.logger, l.slowWarning)

	l.mu.Lock()
	if racing, ok := l.plugins[pluginID]; ok {
		l.mu.Unlock()
		l.logger.Debug("Plugin loaded concurrently, discarding duplicate instance",
			"plugin", pluginID,
			"instance_id", racing.InstanceID())
		return racing, nil
	}
	l.plugins[pluginID] = instance
	l.checker.Grant(pluginID, perms)
	l.mu.Unlock()

	l.logger.Info("Plugin loaded successfully",
		"plugin", pluginID,
		"version", bundle.Manifest().Version,
		"entry_point", bundle.EntryPoint(),
		"permissions", perms.Count(),
		"instance_id", instance.InstanceID())
	return instance, nil
}

// UnloadPlugin removes a live instance: cleanup hook first, then grant
// revocation and deregistration together in one critical section. A
// failing cleanup hook is logged and never blocks removal. Fails when no
// instance is live for the identifier.
func (l *Loader) UnloadPlugin(pluginID string) error {
	l.mu.RLock()
	instance, ok := l.plugins[pluginID]
	l.mu.RUnlock()
	if !ok {
		return NewPluginNotLoadedError(pluginID)
	}

	if err := instance.Cleanup(); err != nil {
		l.logger.Warn("Plugin cleanup failed during unload, removing anyway",
			"plugin", pluginID,
			"error", err)
	}

	l.mu.Lock()
	current, ok := l.plugins[pluginID]
	if !ok || current != instance {
		l.mu.Unlock()
		return NewPluginNotLoadedError(pluginID)
	}
	delete(l.plugins, pluginID)
	l.checker.Revoke(pluginID)
	l.mu.Unlock()

	l.logger.Info("Plugin unloaded", "plugin", pluginID)
	return nil
}

// GetPlugin returns the live instance for a plugin identifier.
func (l *Loader) GetPlugin(pluginID string) (*PluginInstance, bool) {
	l.mu.RLock()
	instance, ok := l.plugins[pluginID]
	l.mu.RUnlock()
	return instance, ok
}

// Plugins returns a snapshot of every live instance, sorted by plugin
// identifier.
func (l *Loader) Plugins() []*PluginInstance {
	l.mu.RLock()
	instances := make([]*PluginInstance, 0, len(l.plugins))
	for _, instance := range l.plugins {
		instances = append(instances, instance)
	}
	l.mu.RUnlock()

	sort.Slice(instances, func(a, b int) bool {
		return instances[a].ID() < instances[b].ID()
	})
	return instances
}

// Count returns the number of live instances.
func (l *Loader) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.plugins)
}
