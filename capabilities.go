// capabilities.go: permission-gated capability managers over host subsystems
//
// Plugins never touch host subsystems directly. Each subsystem (messaging,
// mapping, networking, location, UI) is reached through a capability
// manager handed out by the plugin context. The manager checks the
// plugin's granted permission set on every call that needs one, then
// forwards to a host-side bridge. Bridges are the integration seam: the
// embedding application implements them against its real subsystems, and
// the no-op defaults keep the runtime usable in tests and headless tools.
//
// Copyright (c) 2025 OmniTAK Project
// Series: an OmniTAK library
// SPDX-License-Identifier: MPL-2.0

package pluginhost

import (
	"context"
	"net"
	"time"

	"github.com/agilira/go-timecache"
	"github.com/google/uuid"
)

// CoTEvent is a Cursor-on-Target event exchanged on the host message bus.
type CoTEvent struct {
	// UID uniquely identifies the event.
	UID string `json:"uid"`

	// Type is the CoT type string (for example "a-f-G-U-C").
	Type string `json:"type"`

	// How describes how the event position was derived.
	How string `json:"how,omitempty"`

	// Latitude and Longitude are WGS84 decimal degrees.
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`

	// Altitude is height above the WGS84 ellipsoid, in meters.
	Altitude float64 `json:"hae,omitempty"`

	// Time is when the event was produced.
	Time time.Time `json:"time"`

	// Detail carries free-form detail fields.
	Detail map[string]string `json:"detail,omitempty"`
}

// NewCoTEvent creates an event of the given type at a position, stamped
// with a fresh UID and the current time.
func NewCoTEvent(eventType string, latitude, longitude float64) CoTEvent {
	return CoTEvent{
		UID:       uuid.NewString(),
		Type:      eventType,
		Latitude:  latitude,
		Longitude: longitude,
		Time:      timecache.CachedTime(),
	}
}

// MapMarker is a marker a plugin places on the shared map.
type MapMarker struct {
	ID        string  `json:"id"`
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	Label     string  `json:"label,omitempty"`
	Icon      string  `json:"icon,omitempty"`
}

// Position is a device position fix.
type Position struct {
	Latitude  float64   `json:"lat"`
	Longitude float64   `json:"lon"`
	Altitude  float64   `json:"hae,omitempty"`
	Accuracy  float64   `json:"accuracy,omitempty"`
	Heading   float64   `json:"heading,omitempty"`
	Speed     float64   `json:"speed,omitempty"`
	Time      time.Time `json:"time"`
}

// UIComponent is a user-interface contribution a plugin asks the host to
// mount.
type UIComponent struct {
	ID     string `json:"id"`
	Kind   string `json:"kind"`
	Label  string `json:"label,omitempty"`
	Parent string `json:"parent,omitempty"`
}

// MessagingBridge is the host-side implementation of the CoT message bus.
type MessagingBridge interface {
	// PublishEvent puts an event on the bus.
	PublishEvent(ctx context.Context, event CoTEvent) error

	// SubscribeEvents registers a handler for events whose type matches
	// eventType (empty matches all). The returned function cancels the
	// subscription.
	SubscribeEvents(ctx context.Context, eventType string, handler func(CoTEvent)) (func(), error)
}

// MapBridge is the host-side implementation of the shared map.
type MapBridge interface {
	PlaceMarker(ctx context.Context, marker MapMarker) error
	RemoveMarker(ctx context.Context, markerID string) error
	Markers(ctx context.Context) ([]MapMarker, error)
}

// NetworkBridge is the host-side network stack plugins dial through.
type NetworkBridge interface {
	Dial(ctx context.Context, network, address string) (net.Conn, error)
}

// LocationBridge is the host-side position source and reporter.
type LocationBridge interface {
	// CurrentPosition returns the latest device position fix.
	CurrentPosition(ctx context.Context) (Position, error)

	// WatchPosition registers a handler for position updates. The
	// returned function cancels the watch.
	WatchPosition(ctx context.Context, handler func(Position)) (func(), error)

	// PublishPosition reports a position on behalf of the device.
	PublishPosition(ctx context.Context, position Position) error
}

// UIBridge is the host-side surface for plugin UI contributions.
type UIBridge interface {
	AddComponent(ctx context.Context, component UIComponent) error
	RemoveComponent(ctx context.Context, componentID string) error
}

// HostBridges bundles the bridge implementations the embedding application
// provides. Nil fields fall back to no-op implementations.
type HostBridges struct {
	Messaging MessagingBridge
	Map       MapBridge
	Network   NetworkBridge
	Location  LocationBridge
	UI        UIBridge
}

// DefaultHostBridges returns bridges that accept every call and do
// nothing. Suitable for tests and headless hosts.
func DefaultHostBridges() *HostBridges {
	return &HostBridges{
		Messaging: nopMessagingBridge{},
		Map:       nopMapBridge{},
		Network:   nopNetworkBridge{},
		Location:  nopLocationBridge{},
		UI:        nopUIBridge{},
	}
}

// normalized returns a copy with nil fields replaced by no-op bridges.
func (b *HostBridges) normalized() *HostBridges {
	out := &HostBridges{}
	if b != nil {
		*out = *b
	}
	if out.Messaging == nil {
		out.Messaging = nopMessagingBridge{}
	}
	if out.Map == nil {
		out.Map = nopMapBridge{}
	}
	if out.Network == nil {
		out.Network = nopNetworkBridge{}
	}
	if out.Location == nil {
		out.Location = nopLocationBridge{}
	}
	if out.UI == nil {
		out.UI = nopUIBridge{}
	}
	return out
}

type nopMessagingBridge struct{}

func (nopMessagingBridge) PublishEvent(ctx context.Context, event CoTEvent) error { return nil }
func (nopMessagingBridge) SubscribeEvents(ctx context.Context, eventType string, handler func(CoTEvent)) (func(), error) {
	return func() {}, nil
}

type nopMapBridge struct{}

func (nopMapBridge) PlaceMarker(ctx context.Context, marker MapMarker) error { return nil }
func (nopMapBridge) RemoveMarker(ctx context.Context, markerID string) error { return nil }
func (nopMapBridge) Markers(ctx context.Context) ([]MapMarker, error)        { return nil, nil }

type nopNetworkBridge struct{}

func (nopNetworkBridge) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	return nil, NewConfigValidationError("no network bridge is configured", nil)
}

type nopLocationBridge struct{}

func (nopLocationBridge) CurrentPosition(ctx context.Context) (Position, error) {
	return Position{}, nil
}
func (nopLocationBridge) WatchPosition(ctx context.Context, handler func(Position)) (func(), error) {
	return func() {}, nil
}
func (nopLocationBridge) PublishPosition(ctx context.Context, position Position) error { return nil }

type nopUIBridge struct{}

func (nopUIBridge) AddComponent(ctx context.Context, component UIComponent) error { return nil }
func (nopUIBridge) RemoveComponent(ctx context.Context, componentID string) error { return nil }

// MessagingManager is the permission-gated CoT messaging surface handed to
// a plugin. Publishing requires cot.write; subscribing requires cot.read.
type MessagingManager struct {
	pluginID string
	perms    *PermissionSet
	bridge   MessagingBridge
	logger   Logger
}

// Publish puts an event on the host message bus.
func (m *MessagingManager) Publish(ctx context.Context, event CoTEvent) error {
	if !m.perms.Has(PermissionCoTWrite) {
		return NewPermissionDeniedError(m.pluginID, PermissionCoTWrite)
	}
	return m.bridge.PublishEvent(ctx, event)
}

// Subscribe registers a handler for matching events and returns the
// cancel function.
func (m *MessagingManager) Subscribe(ctx context.Context, eventType string, handler func(CoTEvent)) (func(), error) {
	if !m.perms.Has(PermissionCoTRead) {
		return nil, NewPermissionDeniedError(m.pluginID, PermissionCoTRead)
	}
	return m.bridge.SubscribeEvents(ctx, eventType, handler)
}

// MapManager is the permission-gated map surface handed to a plugin.
// Queries require map.read; marker changes require map.write.
type MapManager struct {
	pluginID string
	perms    *PermissionSet
	bridge   MapBridge
	logger   Logger
}

// Markers returns the markers currently on the shared map.
func (m *MapManager) Markers(ctx context.Context) ([]MapMarker, error) {
	if !m.perms.Has(PermissionMapRead) {
		return nil, NewPermissionDeniedError(m.pluginID, PermissionMapRead)
	}
	return m.bridge.Markers(ctx)
}

// PlaceMarker puts a marker on the shared map.
func (m *MapManager) PlaceMarker(ctx context.Context, marker MapMarker) error {
	if !m.perms.Has(PermissionMapWrite) {
		return NewPermissionDeniedError(m.pluginID, PermissionMapWrite)
	}
	return m.bridge.PlaceMarker(ctx, marker)
}

// RemoveMarker removes a marker from the shared map.
func (m *MapManager) RemoveMarker(ctx context.Context, markerID string) error {
	if !m.perms.Has(PermissionMapWrite) {
		return NewPermissionDeniedError(m.pluginID, PermissionMapWrite)
	}
	return m.bridge.RemoveMarker(ctx, markerID)
}

// NetworkManager is the permission-gated network surface handed to a
// plugin. All operations require the network permission.
type NetworkManager struct {
	pluginID string
	perms    *PermissionSet
	bridge   NetworkBridge
	logger   Logger
}

// Dial opens a connection through the host networking stack.
func (m *NetworkManager) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	if !m.perms.Has(PermissionNetwork) {
		return nil, NewPermissionDeniedError(m.pluginID, PermissionNetwork)
	}
	return m.bridge.Dial(ctx, network, address)
}

// LocationManager is the permission-gated position surface handed to a
// plugin. Reads require location.read; publishing requires location.write.
type LocationManager struct {
	pluginID string
	perms    *PermissionSet
	bridge   LocationBridge
	logger   Logger
}

// Current returns the latest device position fix.
func (m *LocationManager) Current(ctx context.Context) (Position, error) {
	if !m.perms.Has(PermissionLocationRead) {
		return Position{}, NewPermissionDeniedError(m.pluginID, PermissionLocationRead)
	}
	return m.bridge.CurrentPosition(ctx)
}

// Watch registers a handler for position updates and returns the cancel
// function.
func (m *LocationManager) Watch(ctx context.Context, handler func(Position)) (func(), error) {
	if !m.perms.Has(PermissionLocationRead) {
		return nil, NewPermissionDeniedError(m.pluginID, PermissionLocationRead)
	}
	return m.bridge.WatchPosition(ctx, handler)
}

// Publish reports a position on behalf of the device.
func (m *LocationManager) Publish(ctx context.Context, position Position) error {
	if !m.perms.Has(PermissionLocationWrite) {
		return NewPermissionDeniedError(m.pluginID, PermissionLocationWrite)
	}
	return m.bridge.PublishPosition(ctx, position)
}

// UIManager is the permission-gated UI surface handed to a plugin. All
// operations require ui.create.
type UIManager struct {
	pluginID string
	perms    *PermissionSet
	bridge   UIBridge
	logger   Logger
}

// AddComponent asks the host to mount a UI contribution.
func (m *UIManager) AddComponent(ctx context.Context, component UIComponent) error {
	if !m.perms.Has(PermissionUICreate) {
		return NewPermissionDeniedError(m.pluginID, PermissionUICreate)
	}
	return m.bridge.AddComponent(ctx, component)
}

// RemoveComponent asks the host to unmount a UI contribution.
func (m *UIManager) RemoveComponent(ctx context.Context, componentID string) error {
	if !m.perms.Has(PermissionUICreate) {
		return NewPermissionDeniedError(m.pluginID, PermissionUICreate)
	}
	return m.bridge.RemoveComponent(ctx, componentID)
}
