// lifecycle.go: plugin instance state machine
//
// A loaded plugin moves along a fixed state machine:
//
//	unloaded -> loaded -> initialized -> active <-> inactive
//
// with an absorbing error state reachable from any failed transition and
// cleanup available from every state. Calling an action from a state that
// does not allow it fails without touching the state. Every transition,
// successful or not, is reported to the plugin-scoped logger.
//
// Copyright (c) 2025 OmniTAK Project
// Series: an OmniTAK library
// SPDX-License-Identifier: MPL-2.0

package pluginhost

import (
	"sync"
	"time"

	"github.com/agilira/go-timecache"
	"github.com/google/uuid"
)

// PluginState is the lifecycle state of a plugin instance.
type PluginState int

const (
	// StateUnloaded: no live runtime presence. Instances return here
	// after a successful cleanup.
	StateUnloaded PluginState = iota

	// StateLoaded: instantiated and registered, hooks not yet run.
	StateLoaded

	// StateInitialized: the initialize hook completed.
	StateInitialized

	// StateActive: the plugin is running its visible behavior.
	StateActive

	// StateInactive: deactivated but still initialized; may re-activate.
	StateInactive

	// StateError: a transition failed. Absorbing except for cleanup.
	StateError
)

// String returns the lowercase state name.
func (s PluginState) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoaded:
		return "loaded"
	case StateInitialized:
		return "initialized"
	case StateActive:
		return "active"
	case StateInactive:
		return "inactive"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// PluginInstance is one live plugin: its validated bundle, its plugin
// object, its context, and its lifecycle state. The loader creates at
// most one instance per plugin identifier and is the sole owner; the
// instance in turn exclusively owns its context.
//
// Lifecycle actions are serialized per instance. A slow hook does not
// block actions on other instances.
type PluginInstance struct {
	instanceID  string
	bundle      *PluginBundle
	plugin      Plugin
	context     *PluginContext
	logger      Logger
	loadedAt    time.Time
	slowWarning time.Duration

	mu          sync.Mutex
	state       PluginState
	stateReason string
}

// newPluginInstance wraps a freshly constructed plugin object. The
// instance starts in state loaded.
func newPluginInstance(bundle *PluginBundle, plugin Plugin, pluginContext *PluginContext, logger Logger, slowWarning time.Duration) *PluginInstance {
	return &PluginInstance{
		instanceID:  uuid.NewString(),
		bundle:      bundle,
		plugin:      plugin,
		context:     pluginContext,
		logger:      logger.With("plugin", bundle.Manifest().ID),
		loadedAt:    timecache.CachedTime(),
		slowWarning: slowWarning,
		state:       StateLoaded,
	}
}

// ID returns the plugin identifier from the manifest.
func (i *PluginInstance) ID() string { return i.bundle.Manifest().ID }

// InstanceID returns the unique identifier of this live instance. A
// plugin unloaded and loaded again gets a new instance identifier.
func (i *PluginInstance) InstanceID() string { return i.instanceID }

// Manifest returns the validated manifest.
func (i *PluginInstance) Manifest() *PluginManifest { return i.bundle.Manifest() }

// Bundle returns the validated bundle this instance was loaded from.
func (i *PluginInstance) Bundle() *PluginBundle { return i.bundle }

// Plugin returns the plugin object.
func (i *PluginInstance) Plugin() Plugin { return i.plugin }

// Context returns the instance's context. The reference is valid only
// while the instance is live.
func (i *PluginInstance) Context() *PluginContext { return i.context }

// LoadedAt returns when the instance was created.
func (i *PluginInstance) LoadedAt() time.Time { return i.loadedAt }

// State returns the current lifecycle state.
func (i *PluginInstance) State() PluginState {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// StateReason returns the failure description when the instance is in the
// error state, empty otherwise.
func (i *PluginInstance) StateReason() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.stateReason
}

// Initialize runs the initialize hook. Valid only from state loaded.
func (i *PluginInstance) Initialize() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.state != StateLoaded {
		return i.invalidActionLocked("initialize", StateLoaded.String())
	}
	return i.transitionLocked("initialize", StateInitialized,
		func() error { return i.plugin.Initialize(i.context) },
		func(cause error) error { return NewInitializationFailedError(i.ID(), cause) })
}

// Activate runs the activate hook. Valid from initialized and inactive.
func (i *PluginInstance) Activate() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.state != StateInitialized && i.state != StateInactive {
		return i.invalidActionLocked("activate", "initialized or inactive")
	}
	return i.transitionLocked("activate", StateActive,
		i.plugin.Activate,
		func(cause error) error { return NewActivationFailedError(i.ID(), cause) })
}

// Deactivate runs the deactivate hook. Valid only from state active.
func (i *PluginInstance) Deactivate() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.state != StateActive {
		return i.invalidActionLocked("deactivate", StateActive.String())
	}
	return i.transitionLocked("deactivate", StateInactive,
		i.plugin.Deactivate,
		func(cause error) error { return NewDeactivationFailedError(i.ID(), cause) })
}

// Cleanup runs the cleanup hook. Valid from any state, including error;
// success lands in unloaded.
func (i *PluginInstance) Cleanup() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	return i.transitionLocked("cleanup", StateUnloaded,
		i.plugin.Cleanup,
		func(cause error) error { return NewCleanupFailedError(i.ID(), cause) })
}

// invalidActionLocked reports an action called from a state that does not
// allow it. The state is not touched. Callers hold i.mu.
func (i *PluginInstance) invalidActionLocked(action, required string) error {
	err := NewInvalidTransitionError(i.ID(), required, action)
	i.logger.Warn("Invalid lifecycle action",
		"action", action,
		"state", i.state.String(),
		"required_state", required)
	return err
}

// transitionLocked runs a hook and moves the state: to the target on
// success, to error on failure. Panics in plugin code are recovered and
// fail the transition like any hook error. A hook that runs past the
// slow-warning threshold is reported while still running; the host never
// aborts a hook. Callers hold i.mu.
func (i *PluginInstance) transitionLocked(action string, to PluginState, hook func() error, wrapErr func(error) error) error {
	from := i.state
	start := time.Now()

	var watchdog *time.Timer
	if i.slowWarning > 0 {
		watchdog = time.AfterFunc(i.slowWarning, func() {
			i.logger.Warn("Plugin lifecycle action is taking unusually long",
				"action", action,
				"threshold", i.slowWarning.String())
		})
	}

	err := safeCall(i.ID(), action, i.logger, hook)
	if watchdog != nil {
		watchdog.Stop()
	}
	elapsed := time.Since(start)

	if err != nil {
		i.state = StateError
		i.stateReason = err.Error()
		i.logger.Error("Plugin lifecycle transition failed",
			"action", action,
			"from", from.String(),
			"to", StateError.String(),
			"duration", elapsed.String(),
			"error", err)
		return wrapErr(err)
	}

	i.state = to
	i.stateReason = ""
	i.logger.Info("Plugin lifecycle transition",
		"action", action,
		"from", from.String(),
		"to", to.String(),
		"duration", elapsed.String())
	return nil
}
