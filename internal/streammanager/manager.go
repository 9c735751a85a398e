// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

// Package streammanager is the central registry that resolves the
// cyclic references between StreamSettings and the five egress
// singletons (spec §3/§9), grounded on
// original_source/Server/src/services/stream_manager.rs. Every other
// subsystem depends on this package rather than on each other
// directly, which is how the cycle (e.g. egress needing settings,
// settings needing to know which egresses exist) is broken.
package streammanager

import (
	"sync"

	"github.com/Dash-Industry-Forum/pointcloud-live/internal/egress"
	"github.com/Dash-Industry-Forum/pointcloud-live/internal/streamsettings"
)

// Manager owns the StreamSettings registry and the process-wide egress
// singletons, resolved by protocol.
type Manager struct {
	settings *streamsettings.Registry

	mu              sync.RWMutex
	websocketEgress egress.Protocol
	webrtcEgress    egress.Protocol
	fluteEgress     egress.Protocol
	fileEgress      egress.Protocol
	bufferEgress    egress.Protocol

	// bufferByStream and fileByStream lazily multiplex the Buffer and
	// File egress transports per stream_id, since each DASH
	// Representation and each debug snapshot directory is keyed by
	// stream_id (spec §4.9); the factories are installed once at
	// startup.
	bufferFactory func(streamID string) egress.Protocol
	fileFactory   func(streamID string) egress.Protocol
	bufferByStream map[string]egress.Protocol
	fileByStream   map[string]egress.Protocol

	// webrtcByKey lazily multiplexes the WebRTC egress transport per
	// (sfu_client_id, tile_index), matching one shared RTP track per
	// key (spec §4.7).
	webrtcFactory func(clientID, tileIndex uint32) egress.Protocol
	webrtcByKey   map[[2]uint32]egress.Protocol
}

// New constructs a Manager with an empty settings registry.
func New() *Manager {
	return &Manager{
		settings:       streamsettings.NewRegistry(),
		bufferByStream: make(map[string]egress.Protocol),
		fileByStream:   make(map[string]egress.Protocol),
		webrtcByKey:    make(map[[2]uint32]egress.Protocol),
	}
}

// SetBufferFactory installs the constructor used to lazily create a
// per-stream_id Buffer egress.
func (m *Manager) SetBufferFactory(f func(streamID string) egress.Protocol) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bufferFactory = f
}

// SetFileFactory installs the constructor used to lazily create a
// per-stream_id File egress.
func (m *Manager) SetFileFactory(f func(streamID string) egress.Protocol) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fileFactory = f
}

// SetWebRTCFactory installs the constructor used to lazily create a
// per-(client, tile) WebRTC egress.
func (m *Manager) SetWebRTCFactory(f func(clientID, tileIndex uint32) egress.Protocol) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.webrtcFactory = f
}

// BufferEgressFor returns (creating if necessary) the Buffer egress
// for streamID.
func (m *Manager) BufferEgressFor(streamID string) (egress.Protocol, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.bufferByStream[streamID]; ok {
		return e, true
	}
	if m.bufferFactory == nil {
		return nil, false
	}
	e := m.bufferFactory(streamID)
	m.bufferByStream[streamID] = e
	return e, true
}

// FileEgressFor returns (creating if necessary) the File egress for
// streamID.
func (m *Manager) FileEgressFor(streamID string) (egress.Protocol, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.fileByStream[streamID]; ok {
		return e, true
	}
	if m.fileFactory == nil {
		return nil, false
	}
	e := m.fileFactory(streamID)
	m.fileByStream[streamID] = e
	return e, true
}

// WebRTCEgressFor returns (creating if necessary) the WebRTC egress
// for the (clientID, tileIndex) track key.
func (m *Manager) WebRTCEgressFor(clientID, tileIndex uint32) (egress.Protocol, bool) {
	key := [2]uint32{clientID, tileIndex}
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.webrtcByKey[key]; ok {
		return e, true
	}
	if m.webrtcFactory == nil {
		return nil, false
	}
	e := m.webrtcFactory(clientID, tileIndex)
	m.webrtcByKey[key] = e
	return e, true
}

// Settings returns the StreamSettings registry shared by every
// subsystem.
func (m *Manager) Settings() *streamsettings.Registry { return m.settings }

// SetEgress installs the process-wide singleton for protocol.
func (m *Manager) SetEgress(protocol streamsettings.EgressProtocol, e egress.Protocol) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch protocol {
	case streamsettings.WebSocket:
		m.websocketEgress = e
	case streamsettings.WebRTC:
		m.webrtcEgress = e
	case streamsettings.Flute:
		m.fluteEgress = e
	case streamsettings.File:
		m.fileEgress = e
	case streamsettings.Buffer:
		m.bufferEgress = e
	}
}

// GetEgress returns the singleton for protocol, or false if it has not
// been installed yet.
func (m *Manager) GetEgress(protocol streamsettings.EgressProtocol) (egress.Protocol, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	switch protocol {
	case streamsettings.WebSocket:
		return m.websocketEgress, m.websocketEgress != nil
	case streamsettings.WebRTC:
		return m.webrtcEgress, m.webrtcEgress != nil
	case streamsettings.Flute:
		return m.fluteEgress, m.fluteEgress != nil
	case streamsettings.File:
		return m.fileEgress, m.fileEgress != nil
	case streamsettings.Buffer:
		return m.bufferEgress, m.bufferEgress != nil
	default:
		return nil, false
	}
}

// GetEgresses resolves every configured protocol for a stream into its
// installed singleton, skipping any that have not been installed.
func (m *Manager) GetEgresses(protocols []streamsettings.EgressProtocol) []egress.Protocol {
	out := make([]egress.Protocol, 0, len(protocols))
	for _, p := range protocols {
		if e, ok := m.GetEgress(p); ok {
			out = append(out, e)
		}
	}
	return out
}

// EgressesForStream resolves streamID's configured egress protocols
// (from its StreamSettings) to their installed singletons.
func (m *Manager) EgressesForStream(streamID string) []egress.Protocol {
	s := m.settings.Get(streamID)
	return m.GetEgresses(s.EgressProtocols)
}
