// factory.go: entry-point factory registry
//
// Platforms that cannot load native code by name at runtime register a
// constructor per entry-point identifier instead: each host build wires
// the entry points it ships at startup, and the loader resolves a
// manifest's declared entry point to one of these constructors. String
// lookup of arbitrary code never happens.
//
// Copyright (c) 2025 OmniTAK Project
// Series: an OmniTAK library
// SPDX-License-Identifier: MPL-2.0

package pluginhost

import (
	"sort"
	"sync"
)

// PluginFactory constructs a plugin's root object. Factories must be
// cheap and side-effect free; real work belongs in Initialize.
type PluginFactory func() (Plugin, error)

// FactoryRegistry maps entry-point identifiers to plugin factories.
//
// Registration normally happens once during host startup, before any
// bundle is loaded, but the registry is safe for concurrent use so test
// harnesses and late-bound platform modules can register at any time.
type FactoryRegistry struct {
	mu        sync.RWMutex
	factories map[string]PluginFactory
	logger    Logger
}

// NewFactoryRegistry creates an empty factory registry.
func NewFactoryRegistry(logger any) *FactoryRegistry {
	return &FactoryRegistry{
		factories: make(map[string]PluginFactory),
		logger:    NewLogger(logger),
	}
}

// Register binds an entry-point identifier to a factory. Registering an
// identifier twice is an error; entry points are wired exactly once per
// host build.
func (r *FactoryRegistry) Register(entryPoint string, factory PluginFactory) error {
	if entryPoint == "" {
		return NewConfigValidationError("entry point identifier cannot be empty", nil)
	}
	if factory == nil {
		return NewConfigValidationError("factory function cannot be nil", nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[entryPoint]; exists {
		return NewDuplicateFactoryError(entryPoint)
	}
	r.factories[entryPoint] = factory

	r.logger.Debug("Plugin factory registered", "entry_point", entryPoint)
	return nil
}

// Resolve returns the factory bound to an entry-point identifier.
func (r *FactoryRegistry) Resolve(entryPoint string) (PluginFactory, error) {
	r.mu.RLock()
	factory, exists := r.factories[entryPoint]
	r.mu.RUnlock()

	if !exists {
		return nil, NewFactoryNotFoundError(entryPoint)
	}
	return factory, nil
}

// EntryPoints returns every registered entry-point identifier in sorted
// order.
func (r *FactoryRegistry) EntryPoints() []string {
	r.mu.RLock()
	entryPoints := make([]string, 0, len(r.factories))
	for entryPoint := range r.factories {
		entryPoints = append(entryPoints, entryPoint)
	}
	r.mu.RUnlock()

	sort.Strings(entryPoints)
	return entryPoints
}
