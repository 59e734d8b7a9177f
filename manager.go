// manager.go: plugin installation, enablement and discovery
//
// The manager owns the on-disk plugin population: the managed bundle
// directory, the persisted enabled set, and the loader that turns bundles
// into live instances. User actions (install, uninstall, enable, disable)
// and host startup discovery all run through here so every change to the
// population is validated, logged, audited and announced to subscribers.
//
// Copyright (c) 2025 OmniTAK Project
// Series: an OmniTAK library
// SPDX-License-Identifier: MPL-2.0

package pluginhost

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// enabledFileName is the persisted enabled set inside the managed plugin
// directory: a flat JSON array of plugin identifiers.
const enabledFileName = "enabled.json"

// ManagerStats is a point-in-time snapshot of the plugin population.
type ManagerStats struct {
	Loaded      int            `json:"loaded"`
	Enabled     int            `json:"enabled"`
	Validator   ValidatorStats `json:"validator"`
	AuditEvents int64          `json:"audit_events"`
}

// DiscoveryFailure attributes one failed bundle during discovery.
type DiscoveryFailure struct {
	// Path is the bundle directory that failed.
	Path string

	// PluginID is the best-effort identifier: the manifest identifier
	// when the manifest was readable, the directory-derived name
	// otherwise.
	PluginID string

	// Err is the validation or load failure.
	Err error
}

// DiscoveryResult reports a discovery pass: the instances now live and
// the bundles that were skipped. One broken bundle never aborts
// discovery of the rest.
type DiscoveryResult struct {
	Loaded   []*PluginInstance
	Failures []DiscoveryFailure
}

// Manager orchestrates the plugin population for one host.
//
// All methods are safe for concurrent use.
type Manager struct {
	cfg    *HostConfig
	loader *Loader
	logger Logger
	audit  *AuditTrail
	events *eventDispatcher

	mu      sync.Mutex
	enabled map[string]struct{}

	watcherMu sync.Mutex
	security  *SecurityWatcher
}

// NewManager creates a manager with the given host configuration, the
// factory registry of this host build, and the host bridges (nil for a
// headless host). The managed plugin directory and the persisted enabled
// set are read eagerly; plugins are not loaded until DiscoverPlugins or
// InstallPlugin runs.
func NewManager(cfg *HostConfig, factories *FactoryRegistry, bridges *HostBridges, logger any) (*Manager, error) {
	if cfg == nil {
		return nil, NewConfigValidationError("host configuration cannot be nil", nil)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	internalLogger := NewLogger(logger)

	audit, err := NewAuditTrail(cfg.Audit, internalLogger)
	if err != nil {
		return nil, err
	}

	loader, err := NewLoader(cfg, factories, bridges, internalLogger)
	if err != nil {
		audit.Close()
		return nil, err
	}
	loader.Validator().AttachAudit(audit)

	if err := os.MkdirAll(cfg.PluginsDir, 0o755); err != nil {
		audit.Close()
		return nil, NewConfigValidationError("managed plugin directory could not be created", err)
	}

	m := &Manager{
		cfg:     cfg,
		loader:  loader,
		logger:  internalLogger,
		audit:   audit,
		events:  newEventDispatcher(internalLogger),
		enabled: make(map[string]struct{}),
	}
	m.loadEnabledSet()

	internalLogger.Info("Plugin manager ready",
		"host_version", cfg.HostVersion,
		"platform", cfg.Platform,
		"plugins_dir", cfg.PluginsDir,
		"enabled", len(m.enabled))
	return m, nil
}

// Loader returns the underlying loader.
func (m *Manager) Loader() *Loader { return m.loader }

// Subscribe registers a handler for plugin events and returns its cancel
// function.
func (m *Manager) Subscribe(handler PluginEventHandler) func() {
	return m.events.subscribe(handler)
}

// Plugin returns the live instance for an identifier.
func (m *Manager) Plugin(pluginID string) (*PluginInstance, bool) {
	return m.loader.GetPlugin(pluginID)
}

// Plugins returns every live instance, sorted by plugin identifier.
func (m *Manager) Plugins() []*PluginInstance {
	return m.loader.Plugins()
}

// IsEnabled reports whether an identifier is in the persisted enabled set.
func (m *Manager) IsEnabled(pluginID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.enabled[pluginID]
	return ok
}

// EnabledPlugins returns the persisted enabled set in sorted order.
func (m *Manager) EnabledPlugins() []string {
	m.mu.Lock()
	ids := make([]string, 0, len(m.enabled))
	for id := range m.enabled {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	sort.Strings(ids)
	return ids
}

// Stats returns a snapshot of the plugin population.
func (m *Manager) Stats() ManagerStats {
	m.mu.Lock()
	enabled := len(m.enabled)
	m.mu.Unlock()

	return ManagerStats{
		Loaded:      m.loader.Count(),
		Enabled:     enabled,
		Validator:   m.loader.Validator().Stats(),
		AuditEvents: m.audit.Events(),
	}
}

// InstallPlugin validates the bundle at sourcePath, copies it into the
// managed plugin directory keyed by plugin identifier (replacing any
// previous copy), and loads it. The source may be a bundle directory or
// a zip archive of one.
func (m *Manager) InstallPlugin(sourcePath string) (*PluginInstance, error) {
	bundleDir, cleanup, err := m.stageSource(sourcePath)
	if err != nil {
		return nil, err
	}
	if cleanup != nil {
		defer cleanup()
	}

	bundle, err := m.loader.Validator().Validate(bundleDir)
	if err != nil {
		m.events.emit(EventPluginFailed, bestEffortPluginID(bundleDir), err.Error())
		return nil, err
	}
	pluginID := bundle.Manifest().ID

	destPath := m.managedPath(pluginID)
	if err := m.placeManagedCopy(bundleDir, destPath); err != nil {
		return nil, NewInstallFailedError(sourcePath, err)
	}

	instance, err := m.loader.LoadPlugin(destPath)
	if err != nil {
		m.events.emit(EventPluginFailed, pluginID, err.Error())
		return nil, err
	}

	m.logger.Info("Plugin installed",
		"plugin", pluginID,
		"version", bundle.Manifest().Version,
		"source", sourcePath,
		"path", destPath)
	m.audit.RecordSecurityEvent("plugin_installed",
		"Plugin installed into managed directory", map[string]interface{}{
			"plugin_id": pluginID,
			"source":    sourcePath,
			"path":      destPath,
		})
	m.events.emit(EventPluginInstalled, pluginID, "")
	m.events.emit(EventPluginLoaded, pluginID, "")
	return instance, nil
}

// UninstallPlugin removes a plugin: best-effort unload, removal from the
// enabled set, deletion of the managed copy, and persistence of the
// updated enabled set, in that order. A plugin too broken to unload
// cleanly is still removed.
func (m *Manager) UninstallPlugin(pluginID string) error {
	if err := m.loader.UnloadPlugin(pluginID); err != nil {
		m.logger.Warn("Unload failed during uninstall, continuing with removal",
			"plugin", pluginID,
			"error", err)
	} else {
		m.events.emit(EventPluginUnloaded, pluginID, "")
	}

	m.mu.Lock()
	delete(m.enabled, pluginID)
	persistErr := m.persistEnabledLocked()
	m.mu.Unlock()

	var removeErr error
	destPath := m.managedPath(pluginID)
	if err := os.RemoveAll(destPath); err != nil {
		removeErr = NewUninstallFailedError(pluginID, err)
		m.logger.Error("Managed bundle copy could not be deleted",
			"plugin", pluginID,
			"path", destPath,
			"error", err)
	}

	m.logger.Info("Plugin uninstalled", "plugin", pluginID)
	m.audit.RecordSecurityEvent("plugin_uninstalled",
		"Plugin removed from managed directory", map[string]interface{}{
			"plugin_id": pluginID,
			"path":      destPath,
		})
	m.events.emit(EventPluginUninstalled, pluginID, "")

	if removeErr != nil {
		return removeErr
	}
	return persistErr
}

// EnablePlugin turns a loaded plugin on: initializes it first when it is
// still in state loaded, activates it, and persists the enabled set. The
// plugin must already be loaded. Enabling an active plugin only refreshes
// the persisted set.
func (m *Manager) EnablePlugin(pluginID string) error {
	instance, ok := m.loader.GetPlugin(pluginID)
	if !ok {
		return NewPluginNotLoadedError(pluginID)
	}

	if err := m.activateInstance(instance); err != nil {
		m.events.emit(EventPluginFailed, pluginID, err.Error())
		return err
	}

	m.mu.Lock()
	m.enabled[pluginID] = struct{}{}
	persistErr := m.persistEnabledLocked()
	m.mu.Unlock()

	m.logger.Info("Plugin enabled", "plugin", pluginID)
	m.audit.RecordSecurityEvent("plugin_enabled",
		"Plugin enabled by operator", map[string]interface{}{
			"plugin_id": pluginID,
		})
	m.events.emit(EventPluginEnabled, pluginID, "")
	return persistErr
}

// DisablePlugin turns a plugin off: deactivates it when active and
// removes it from the persisted enabled set. The plugin stays loaded.
func (m *Manager) DisablePlugin(pluginID string) error {
	instance, ok := m.loader.GetPlugin(pluginID)
	if !ok {
		return NewPluginNotLoadedError(pluginID)
	}

	if instance.State() == StateActive {
		if err := instance.Deactivate(); err != nil {
			m.events.emit(EventPluginFailed, pluginID, err.Error())
			return err
		}
	}

	m.mu.Lock()
	delete(m.enabled, pluginID)
	persistErr := m.persistEnabledLocked()
	m.mu.Unlock()

	m.logger.Info("Plugin disabled", "plugin", pluginID)
	m.audit.RecordSecurityEvent("plugin_disabled",
		"Plugin disabled by operator", map[string]interface{}{
			"plugin_id": pluginID,
		})
	m.events.emit(EventPluginDisabled, pluginID, "")
	return persistErr
}

// DiscoverPlugins loads every bundle in the managed plugin directory and
// re-enables the plugins whose identifiers are in the persisted enabled
// set. Broken bundles are reported in the result and skipped; discovery
// itself fails only when the directory cannot be enumerated.
func (m *Manager) DiscoverPlugins() (*DiscoveryResult, error) {
	entries, err := os.ReadDir(m.cfg.PluginsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return &DiscoveryResult{}, nil
		}
		return nil, NewDiscoveryFailedError(m.cfg.PluginsDir, err)
	}

	m.mu.Lock()
	enabled := make(map[string]struct{}, len(m.enabled))
	for id := range m.enabled {
		enabled[id] = struct{}{}
	}
	m.mu.Unlock()

	result := &DiscoveryResult{}
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasSuffix(entry.Name(), BundleExtension) {
			continue
		}
		bundlePath := filepath.Join(m.cfg.PluginsDir, entry.Name())

		instance, err := m.loader.LoadPlugin(bundlePath)
		if err != nil {
			failure := DiscoveryFailure{
				Path:     bundlePath,
				PluginID: bestEffortPluginID(bundlePath),
				Err:      err,
			}
			result.Failures = append(result.Failures, failure)
			m.logger.Warn("Skipping broken bundle during discovery",
				"plugin", failure.PluginID,
				"path", bundlePath,
				"error", err)
			m.events.emit(EventPluginFailed, failure.PluginID, err.Error())
			continue
		}
		result.Loaded = append(result.Loaded, instance)
		m.events.emit(EventPluginLoaded, instance.ID(), "")

		if _, wantEnabled := enabled[instance.ID()]; !wantEnabled {
			continue
		}
		if err := m.activateInstance(instance); err != nil {
			result.Failures = append(result.Failures, DiscoveryFailure{
				Path:     bundlePath,
				PluginID: instance.ID(),
				Err:      err,
			})
			m.logger.Warn("Enabled plugin failed to activate during discovery",
				"plugin", instance.ID(),
				"error", err)
			m.events.emit(EventPluginFailed, instance.ID(), err.Error())
			continue
		}
		m.events.emit(EventPluginEnabled, instance.ID(), "")
	}

	m.logger.Info("Plugin discovery complete",
		"loaded", len(result.Loaded),
		"failed", len(result.Failures))
	return result, nil
}

// EnableTrustWatching starts hot-reloading signing trust from trustFile.
func (m *Manager) EnableTrustWatching(trustFile string) error {
	m.watcherMu.Lock()
	defer m.watcherMu.Unlock()

	if m.security == nil {
		m.security = NewSecurityWatcher(m.loader.Validator(), m.audit, m.logger)
	}
	return m.security.Start(trustFile)
}

// DisableTrustWatching stops trust hot-reloading.
func (m *Manager) DisableTrustWatching() error {
	m.watcherMu.Lock()
	defer m.watcherMu.Unlock()

	if m.security == nil {
		return NewConfigWatcherError("security watcher not running", nil)
	}
	return m.security.Stop()
}

// Shutdown unloads every live plugin and closes the audit trail. Unload
// failures are logged and do not stop the shutdown. The context bounds
// how long shutdown keeps working through the plugin list.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.watcherMu.Lock()
	if m.security != nil {
		if err := m.security.Stop(); err != nil {
			m.logger.Debug("Trust watcher already stopped", "error", err)
		}
		m.security = nil
	}
	m.watcherMu.Unlock()

	var firstErr error
	for _, instance := range m.loader.Plugins() {
		if err := ctx.Err(); err != nil {
			m.logger.Warn("Shutdown interrupted before all plugins unloaded", "error", err)
			if firstErr == nil {
				firstErr = err
			}
			break
		}
		if err := m.loader.UnloadPlugin(instance.ID()); err != nil {
			m.logger.Warn("Plugin unload failed during shutdown",
				"plugin", instance.ID(),
				"error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if err := m.audit.Close(); err != nil {
		m.logger.Warn("Audit trail close failed", "error", err)
		if firstErr == nil {
			firstErr = err
		}
	}

	m.logger.Info("Plugin manager shut down")
	return firstErr
}

// activateInstance drives a loaded instance to active, initializing
// first when needed. An already active instance is left alone.
func (m *Manager) activateInstance(instance *PluginInstance) error {
	switch instance.State() {
	case StateActive:
		return nil
	case StateLoaded:
		if err := instance.Initialize(); err != nil {
			return err
		}
	}
	return instance.Activate()
}

// managedPath returns the managed copy location for a plugin identifier.
func (m *Manager) managedPath(pluginID string) string {
	return filepath.Join(m.cfg.PluginsDir, pluginID+BundleExtension)
}

// loadEnabledSet reads enabled.json. A missing file means an empty set;
// a corrupt file is logged and treated as empty, never as a startup
// failure.
func (m *Manager) loadEnabledSet() {
	path := filepath.Join(m.cfg.PluginsDir, enabledFileName)
	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			m.logger.Warn("Enabled set unreadable, starting empty",
				"path", path, "error", err)
		}
		return
	}

	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		m.logger.Warn("Enabled set corrupt, starting empty",
			"path", path, "error", err)
		return
	}
	for _, id := range ids {
		m.enabled[id] = struct{}{}
	}
}

// persistEnabledLocked writes the enabled set to enabled.json as a flat
// sorted array. Callers hold m.mu.
func (m *Manager) persistEnabledLocked() error {
	ids := make([]string, 0, len(m.enabled))
	for id := range m.enabled {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	raw, err := json.MarshalIndent(ids, "", "  ")
	if err != nil {
		return NewConfigValidationError("enabled set could not be encoded", err)
	}

	path := filepath.Join(m.cfg.PluginsDir, enabledFileName)
	if err := writeFileAtomic(path, raw, 0o644); err != nil {
		m.logger.Error("Enabled set could not be persisted",
			"path", path, "error", err)
		return NewConfigValidationError("enabled set could not be persisted", err)
	}
	return nil
}

// bestEffortPluginID names a bundle for diagnostics even when its
// manifest is unreadable: the manifest identifier when possible, the
// directory name otherwise.
func bestEffortPluginID(bundlePath string) string {
	if raw, err := readManifestFile(bundlePath); err == nil {
		if manifest, err := ParseManifest(raw); err == nil && manifest.ID != "" {
			return manifest.ID
		}
	}
	return strings.TrimSuffix(filepath.Base(bundlePath), BundleExtension)
}
