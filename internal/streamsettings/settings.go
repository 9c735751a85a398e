// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

// Package streamsettings holds the per-stream_id configuration that
// every egress/ingress consults on the hot path (spec §3
// StreamSettings). Settings are created lazily on first reference and
// mutated only through the control API; they are never destroyed
// during a session.
package streamsettings

import (
	"strconv"
	"strings"
	"sync"
)

// EgressProtocol tags one of the transports a stream is fanned out to.
type EgressProtocol string

const (
	WebSocket EgressProtocol = "websocket"
	WebRTC    EgressProtocol = "webrtc"
	Flute     EgressProtocol = "flute"
	File      EgressProtocol = "file"
	Buffer    EgressProtocol = "buffer"
)

// Settings is the per-stream configuration block (spec §3).
type Settings struct {
	StreamID                 string
	Priority                 int
	EgressProtocols          []EgressProtocol
	ProcessIncomingFrames    bool
	Position                 [3]float32
	Rotation                 [3]float32
	Scale                    [3]float32
	PresentationTimeOffsetUS *uint64
	DecodeBypass             bool
	AggregatorBypass         bool
	RingBufferBypass         bool
	SFUClientID              *uint64
	SFUTileIndex             *uint32
	MaxPointPercentages      []uint8
}

// defaultSettings returns a fresh Settings value for a newly seen
// stream, mirroring original_source's StreamManager::get_stream_settings
// default-construction path.
func defaultSettings(streamID string) Settings {
	s := Settings{
		StreamID:              streamID,
		Priority:              0,
		EgressProtocols:       []EgressProtocol{WebSocket},
		ProcessIncomingFrames: true,
		Scale:                 [3]float32{1, 1, 1},
	}
	// SFU addressing convention: "client_{id}_{tile}" stream IDs carry
	// their client/tile identity in the name itself.
	if strings.HasPrefix(streamID, "client_") {
		parts := strings.Split(streamID, "_")
		if len(parts) > 2 {
			if cid, err := strconv.ParseUint(parts[1], 10, 64); err == nil {
				s.SFUClientID = &cid
			}
			if tile, err := strconv.ParseUint(parts[2], 10, 32); err == nil {
				t := uint32(tile)
				s.SFUTileIndex = &t
			}
		}
	}
	return s
}

// Registry is the read-write-locked map of stream_id -> Settings
// (spec §5 "StreamSettings map: read-write lock, writers rare, readers
// hot").
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]Settings
	deflt *Settings
}

// NewRegistry returns an empty settings registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]Settings)}
}

// Get returns the settings for streamID, creating them from the
// registry's default template (or the built-in default) on first
// reference.
func (r *Registry) Get(streamID string) Settings {
	r.mu.RLock()
	if s, ok := r.byID[streamID]; ok {
		r.mu.RUnlock()
		return s
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.byID[streamID]; ok {
		return s
	}
	var s Settings
	if r.deflt != nil {
		s = *r.deflt
		s.StreamID = streamID
		s = withSFUFromID(s, streamID)
	} else {
		s = defaultSettings(streamID)
	}
	r.byID[streamID] = s
	return s
}

func withSFUFromID(s Settings, streamID string) Settings {
	fresh := defaultSettings(streamID)
	s.SFUClientID = fresh.SFUClientID
	s.SFUTileIndex = fresh.SFUTileIndex
	return s
}

// All returns a snapshot of every stream's settings, for the
// /streams/list control API.
func (r *Registry) All() []Settings {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Settings, 0, len(r.byID))
	for _, s := range r.byID {
		out = append(out, s)
	}
	return out
}

// Update installs new settings for settings.StreamID, replacing any
// existing entry.
func (r *Registry) Update(settings Settings) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[settings.StreamID] = settings
}

// SetDefault installs the template used to seed every not-yet-seen
// stream's settings (the "__default__" entry in the original).
func (r *Registry) SetDefault(settings Settings) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := settings
	r.deflt = &cp
}

// IdentityTransform reports whether position/rotation/scale are all
// identity, letting the aggregator skip the affine transform (spec
// §4.3).
func (s Settings) IdentityTransform() bool {
	zero := [3]float32{0, 0, 0}
	one := [3]float32{1, 1, 1}
	return s.Position == zero && s.Rotation == zero && s.Scale == one
}

// HasEgress reports whether protocol is among the stream's configured
// egress protocols.
func (s Settings) HasEgress(protocol EgressProtocol) bool {
	for _, p := range s.EgressProtocols {
		if p == protocol {
			return true
		}
	}
	return false
}
