// storage.go: per-plugin persistent key-value storage
//
// Copyright (c) 2025 OmniTAK Project
// Series: an OmniTAK library
// SPDX-License-Identifier: MPL-2.0

package pluginhost

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// PluginStorage is the private key-value store scoped to one plugin
// identifier. Reads require storage.read, writes require storage.write.
//
// Data lives in a single JSON file per plugin and is loaded once at
// construction; a corrupt or missing file starts the plugin with an empty
// store rather than failing the load. Writes go through a temp file and
// rename so a crash never leaves a half-written store behind.
type PluginStorage struct {
	pluginID string
	path     string
	perms    *PermissionSet
	logger   Logger

	mu   sync.RWMutex
	data map[string]string
}

// newPluginStorage opens the store for a plugin, reading any persisted
// data from dir/<pluginID>.json.
func newPluginStorage(dir, pluginID string, perms *PermissionSet, logger Logger) *PluginStorage {
	s := &PluginStorage{
		pluginID: pluginID,
		path:     filepath.Join(dir, pluginID+".json"),
		perms:    perms,
		logger:   logger,
		data:     make(map[string]string),
	}

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("Plugin storage unreadable, starting empty",
				"plugin", pluginID, "path", s.path, "error", err)
		}
		return s
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		logger.Warn("Plugin storage corrupt, starting empty",
			"plugin", pluginID, "path", s.path, "error", err)
		s.data = make(map[string]string)
	}
	return s
}

// Get returns the value for key and whether the key exists.
func (s *PluginStorage) Get(key string) (string, bool, error) {
	if !s.perms.Has(PermissionStorageRead) {
		return "", false, NewPermissionDeniedError(s.pluginID, PermissionStorageRead)
	}
	s.mu.RLock()
	value, ok := s.data[key]
	s.mu.RUnlock()
	return value, ok, nil
}

// Set stores a value under key and persists the store.
func (s *PluginStorage) Set(key, value string) error {
	if !s.perms.Has(PermissionStorageWrite) {
		return NewPermissionDeniedError(s.pluginID, PermissionStorageWrite)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return s.persistLocked()
}

// Remove deletes a key and persists the store. Removing an absent key is
// a no-op.
func (s *PluginStorage) Remove(key string) error {
	if !s.perms.Has(PermissionStorageWrite) {
		return NewPermissionDeniedError(s.pluginID, PermissionStorageWrite)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; !ok {
		return nil
	}
	delete(s.data, key)
	return s.persistLocked()
}

// Clear removes every key and persists the empty store.
func (s *PluginStorage) Clear() error {
	if !s.perms.Has(PermissionStorageWrite) {
		return NewPermissionDeniedError(s.pluginID, PermissionStorageWrite)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string]string)
	return s.persistLocked()
}

// Keys returns every stored key in sorted order.
func (s *PluginStorage) Keys() ([]string, error) {
	if !s.perms.Has(PermissionStorageRead) {
		return nil, NewPermissionDeniedError(s.pluginID, PermissionStorageRead)
	}
	s.mu.RLock()
	keys := make([]string, 0, len(s.data))
	for key := range s.data {
		keys = append(keys, key)
	}
	s.mu.RUnlock()
	sort.Strings(keys)
	return keys, nil
}

// persistLocked writes the store to disk atomically. Callers hold s.mu.
func (s *PluginStorage) persistLocked() error {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return NewStorageWriteError(s.pluginID, err)
	}
	if err := writeFileAtomic(s.path, raw, 0o644); err != nil {
		return NewStorageWriteError(s.pluginID, err)
	}
	return nil
}
