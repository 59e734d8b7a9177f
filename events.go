// events.go: plugin lifecycle event notifications
//
// The manager emits an event for every observable change to the plugin
// population: install, uninstall, load, unload, enable, disable, and
// failures. Host UI layers subscribe to keep operator views current.
// Handlers run on their own goroutines with panic recovery; a broken
// subscriber can neither block nor crash the manager.
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

// PluginEventType classifies a plugin event.
type PluginEventType string

const (
	EventPluginInstalled   PluginEventType = "plugin.installed"
	EventPluginUninstalled PluginEventType = "plugin.uninstalled"
	EventPluginLoaded      PluginEventType = "plugin.loaded"
	EventPluginUnloaded    PluginEventType = "plugin.unloaded"
	EventPluginEnabled     PluginEventType = "plugin.enabled"
	EventPluginDisabled    PluginEventType = "plugin.disabled"
	EventPluginFailed      PluginEventType = "plugin.failed"
)

// PluginEvent describes one observable change to the plugin population.
type PluginEvent struct {
	// ID uniquely identifies this event.
	ID string `json:"id"`

	// Type classifies the change.
	Type PluginEventType `json:"type"`

	// PluginID names the plugin the event concerns.
	PluginID string `json:"plugin_id"`

	// Time is when the event was emitted.
	Time time.Time `json:"time"`

	// Detail carries optional human-readable context, such as the error
	// text of a failure.
	Detail string `json:"detail,omitempty"`
}

// PluginEventHandler receives plugin events. Handlers are called on
// dedicated goroutines and may block without affecting the manager.
type PluginEventHandler func(PluginEvent)

// eventDispatcher fans plugin events out to subscribers.
type eventDispatcher struct {
	mu       sync.RWMutex
	handlers map[string]PluginEventHandler
	logger   Logger
}

func newEventDispatcher(logger Logger) *eventDispatcher {
	return &eventDispatcher{
		handlers: make(map[string]PluginEventHandler),
		logger:   logger,
	}
}

// subscribe registers a handler and returns its cancel function. The
// cancel function is idempotent.
func (d *eventDispatcher) subscribe(handler PluginEventHandler) func() {
	token := uuid.NewString()

	d.mu.Lock()
	d.handlers[token] = handler
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		delete(d.handlers, token)
		d.mu.Unlock()
	}
}

// emit delivers an event to a snapshot of the current subscribers. Each
// handler runs on its own recovered goroutine.
func (d *eventDispatcher) emit(eventType PluginEventType, pluginID, detail string) {
	d.mu.RLock()
	snapshot := make([]PluginEventHandler, 0, len(d.handlers))
	for _, handler := range d.handlers {
		snapshot = append(snapshot, handler)
	}
	d.mu.RUnlock()

	if len(snapshot) == 0 {
		return
	}

	event := PluginEvent{
		ID:       uuid.NewString(),
		Type:     eventType,
		PluginID: pluginID,
		Time:     timecache.CachedTime(),
		Detail:   detail,
	}
	for _, handler := range snapshot {
		handler := handler
		SafeGo(d.logger, func() { handler(event) })
	}
}
