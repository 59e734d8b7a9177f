// permissions.go: closed permission model and runtime permission enforcement
//
// Every capability a plugin can request is identified by a dotted permission
// string drawn from a closed set the host defines. Manifests declare the
// permissions a plugin needs; the host surfaces the declared set (and its
// risk tier) to the operator before installation, grants it at load time,
// and revokes it atomically at unload. Unknown identifiers are rejected at
// manifest validation, never silently ignored.
//
// Copyright (c) 2025 OmniTAK Project
// Series: an OmniTAK library
// SPDX-License-Identifier: MPL-2.0

package pluginhost

import (
	"sort"
	"sync"
)

// Permission identifies a single grantable capability.
type Permission string

// The closed set of permissions a plugin manifest may declare.
const (
	// PermissionNetwork allows outbound network connections through the
	// host networking stack.
	PermissionNetwork Permission = "network"

	// PermissionCoTRead allows receiving Cursor-on-Target events from the
	// host message bus.
	PermissionCoTRead Permission = "cot.read"

	// PermissionCoTWrite allows publishing Cursor-on-Target events to the
	// host message bus.
	PermissionCoTWrite Permission = "cot.write"

	// PermissionLocationRead allows reading the device position.
	PermissionLocationRead Permission = "location.read"

	// PermissionLocationWrite allows publishing position reports on behalf
	// of the device.
	PermissionLocationWrite Permission = "location.write"

	// PermissionMapRead allows querying map state and markers.
	PermissionMapRead Permission = "map.read"

	// PermissionMapWrite allows placing and removing map markers.
	PermissionMapWrite Permission = "map.write"

	// PermissionStorageRead allows reading the plugin's private key-value
	// storage.
	PermissionStorageRead Permission = "storage.read"

	// PermissionStorageWrite allows writing the plugin's private key-value
	// storage.
	PermissionStorageWrite Permission = "storage.write"

	// PermissionUICreate allows contributing user-interface components to
	// the host application.
	PermissionUICreate Permission = "ui.create"

	// PermissionNotificationsSend allows raising user notifications.
	PermissionNotificationsSend Permission = "notifications.send"

	// PermissionPeripheralAccess allows communicating with attached
	// peripherals (radios, sensors, cameras).
	PermissionPeripheralAccess Permission = "peripheral.access"

	// PermissionFilesystemRead allows reading files outside the plugin's
	// private storage.
	PermissionFilesystemRead Permission = "filesystem.read"

	// PermissionFilesystemWrite allows writing files outside the plugin's
	// private storage.
	PermissionFilesystemWrite Permission = "filesystem.write"
)

// RiskLevel grades how much damage a granted permission could do in the
// hands of a hostile plugin. Hosts surface the tier to operators during
// installation review.
type RiskLevel int

const (
	// RiskLow permissions expose read-only or cosmetic functionality.
	RiskLow RiskLevel = iota

	// RiskMedium permissions can alter shared state visible to the operator.
	RiskMedium

	// RiskHigh permissions reach the network, sensitive position data, or
	// the device itself.
	RiskHigh
)

// String returns the lowercase tier name.
func (r RiskLevel) String() string {
	switch r {
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	default:
		return "unknown"
	}
}

// PermissionInfo describes a permission for operator-facing review surfaces.
type PermissionInfo struct {
	Permission  Permission `json:"permission"`
	Description string     `json:"description"`
	Risk        RiskLevel  `json:"risk"`
}

// permissionCatalog enumerates the closed set in stable declaration order.
var permissionCatalog = []PermissionInfo{
	{PermissionNetwork, "Open outbound network connections", RiskHigh},
	{PermissionCoTRead, "Receive Cursor-on-Target events", RiskMedium},
	{PermissionCoTWrite, "Publish Cursor-on-Target events", RiskHigh},
	{PermissionLocationRead, "Read the device position", RiskHigh},
	{PermissionLocationWrite, "Publish position reports", RiskMedium},
	{PermissionMapRead, "Query map state and markers", RiskLow},
	{PermissionMapWrite, "Place and remove map markers", RiskMedium},
	{PermissionStorageRead, "Read private plugin storage", RiskLow},
	{PermissionStorageWrite, "Write private plugin storage", RiskMedium},
	{PermissionUICreate, "Contribute user-interface components", RiskMedium},
	{PermissionNotificationsSend, "Raise user notifications", RiskLow},
	{PermissionPeripheralAccess, "Access attached peripherals", RiskHigh},
	{PermissionFilesystemRead, "Read files outside plugin storage", RiskMedium},
	{PermissionFilesystemWrite, "Write files outside plugin storage", RiskHigh},
}

var permissionIndex = func() map[Permission]PermissionInfo {
	idx := make(map[Permission]PermissionInfo, len(permissionCatalog))
	for _, info := range permissionCatalog {
		idx[info.Permission] = info
	}
	return idx
}()

// LookupPermission returns the catalog entry for an identifier and whether
// the identifier belongs to the closed set.
func LookupPermission(identifier string) (PermissionInfo, bool) {
	info, ok := permissionIndex[Permission(identifier)]
	return info, ok
}

// IsKnownPermission reports whether an identifier belongs to the closed set.
func IsKnownPermission(identifier string) bool {
	_, ok := permissionIndex[Permission(identifier)]
	return ok
}

// AllPermissions returns every permission in the closed set, in stable
// catalog order.
func AllPermissions() []Permission {
	perms := make([]Permission, len(permissionCatalog))
	for i, info := range permissionCatalog {
		perms[i] = info.Permission
	}
	return perms
}

// HighRiskPermissions returns the subset of the catalog graded RiskHigh,
// in stable catalog order.
func HighRiskPermissions() []Permission {
	var perms []Permission
	for _, info := range permissionCatalog {
		if info.Risk == RiskHigh {
			perms = append(perms, info.Permission)
		}
	}
	return perms
}

// PermissionSet is an immutable set of granted permissions. Sets are built
// once from validated manifest declarations and shared read-only between
// the plugin context and the host; no mutation API exists.
type PermissionSet struct {
	perms map[Permission]struct{}
}

// NewPermissionSet builds a permission set from raw manifest identifiers.
// Construction fails on the first identifier outside the closed set;
// duplicates are collapsed.
func NewPermissionSet(identifiers []string) (*PermissionSet, error) {
	perms := make(map[Permission]struct{}, len(identifiers))
	for _, identifier := range identifiers {
		if !IsKnownPermission(identifier) {
			return nil, NewUnknownPermissionError(identifier)
		}
		perms[Permission(identifier)] = struct{}{}
	}
	return &PermissionSet{perms: perms}, nil
}

// Has reports whether the set contains the permission.
func (s *PermissionSet) Has(p Permission) bool {
	if s == nil {
		return false
	}
	_, ok := s.perms[p]
	return ok
}

// HasAll reports whether the set contains every listed permission.
// An empty list is trivially satisfied.
func (s *PermissionSet) HasAll(perms ...Permission) bool {
	for _, p := range perms {
		if !s.Has(p) {
			return false
		}
	}
	return true
}

// HasAny reports whether the set contains at least one listed permission.
// An empty list is never satisfied.
func (s *PermissionSet) HasAny(perms ...Permission) bool {
	for _, p := range perms {
		if s.Has(p) {
			return true
		}
	}
	return false
}

// List returns the permissions in the set, sorted lexically for stable
// logging and display.
func (s *PermissionSet) List() []Permission {
	if s == nil {
		return nil
	}
	perms := make([]Permission, 0, len(s.perms))
	for p := range s.perms {
		perms = append(perms, p)
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i] < perms[j] })
	return perms
}

// Count returns the number of permissions in the set.
func (s *PermissionSet) Count() int {
	if s == nil {
		return 0
	}
	return len(s.perms)
}

// PermissionChecker is the process-wide permission table. The loader grants
// a plugin's declared set when the plugin is registered and revokes it,
// atomically, when the plugin is unloaded. Host subsystems that act on
// behalf of plugins outside the plugin-context path consult the checker
// directly.
//
// All methods are safe for concurrent use.
type PermissionChecker struct {
	mu     sync.RWMutex
	grants map[string]*PermissionSet
	logger Logger
}

// NewPermissionChecker creates an empty permission table.
func NewPermissionChecker(logger any) *PermissionChecker {
	return &PermissionChecker{
		grants: make(map[string]*PermissionSet),
		logger: NewLogger(logger),
	}
}

// Grant records the full permission set for a plugin, replacing any
// previous grant in one step.
func (c *PermissionChecker) Grant(pluginID string, set *PermissionSet) {
	c.mu.Lock()
	c.grants[pluginID] = set
	c.mu.Unlock()

	c.logger.Debug("Permissions granted",
		"plugin", pluginID,
		"permissions", set.List(),
		"count", set.Count())
}

// Revoke removes every permission held by a plugin in one step. Revoking
// a plugin with no grants is a no-op.
func (c *PermissionChecker) Revoke(pluginID string) {
	c.mu.Lock()
	_, had := c.grants[pluginID]
	delete(c.grants, pluginID)
	c.mu.Unlock()

	if had {
		c.logger.Debug("Permissions revoked", "plugin", pluginID)
	}
}

// Has reports whether the plugin currently holds the permission.
func (c *PermissionChecker) Has(pluginID string, p Permission) bool {
	c.mu.RLock()
	set, ok := c.grants[pluginID]
	c.mu.RUnlock()
	return ok && set.Has(p)
}

// CheckPermission returns nil when the plugin holds the permission and a
// permission-denied error otherwise. Plugins with no recorded grants are
// always denied.
func (c *PermissionChecker) CheckPermission(pluginID string, p Permission) error {
	c.mu.RLock()
	set, ok := c.grants[pluginID]
	c.mu.RUnlock()

	if !ok {
		return NewNoGrantsForPluginError(pluginID)
	}
	if !set.Has(p) {
		return NewPermissionDeniedError(pluginID, p)
	}
	return nil
}

// Granted returns a snapshot of the plugin's current permissions and
// whether the plugin has any recorded grant at all.
func (c *PermissionChecker) Granted(pluginID string) ([]Permission, bool) {
	c.mu.RLock()
	set, ok := c.grants[pluginID]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	return set.List(), true
}
