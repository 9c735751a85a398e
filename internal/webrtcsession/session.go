// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

// Package webrtcsession manages per-peer RTCPeerConnections and the
// shared per-(sfu_client_id, tile_index) point-cloud tracks they
// subscribe to (spec §4.7, components C6/C7/C8). Grounded on the
// PeerConnection lifecycle, pending-ICE buffering, and signaling
// pattern in petervdpas-goop2/internal/call/session.go, adapted from a
// bidirectional audio/video call to a one-to-many point-cloud data
// fan-out.
package webrtcsession

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"

	"github.com/Dash-Industry-Forum/pointcloud-live/pkg/rtppc"
)

// Signaler relays WebRTC signaling messages (offer/answer/ICE) to a
// specific client, decoupling this package from the transport that
// carries them (WebSocket envelopes in this system).
type Signaler interface {
	SendAnswer(clientID, sdp string) error
	SendICECandidate(clientID string, candidate webrtc.ICECandidateInit) error
}

// Track is the single shared RTP track for one (sfu_client_id,
// tile_index) pair. Multiple peers subscribe to the same Track (spec
// §4.7 "a single shared video track ... multiple peers subscribe").
type Track struct {
	local *webrtc.TrackLocalStaticRTP
	pz    *rtppc.Packetizer
}

// newTrack constructs the shared local track and packetizer for a
// (clientID, tileIndex) pair.
func newTrack(clientID, tileIndex uint32) (*Track, error) {
	name := fmt.Sprintf("pc-%d-%d", clientID, tileIndex)
	local, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: "application/x-pointcloud"},
		name,
		"pointcloud-live",
	)
	if err != nil {
		return nil, fmt.Errorf("webrtcsession: create track: %w", err)
	}
	return &Track{
		local: local,
		pz:    rtppc.NewPacketizer(clientID, tileIndex, clientID<<8|tileIndex),
	}, nil
}

// WriteFrame packetizes data and writes every resulting RTP packet to
// every subscribed peer via the shared local track.
func (t *Track) WriteFrame(data []byte, frameNr uint64) error {
	for _, pkt := range t.pz.Packetize(data, frameNr) {
		if err := t.local.WriteRTP(pkt); err != nil {
			return err
		}
	}
	return nil
}

// Manager owns every peer connection and shared track, keyed by
// client id and (client id, tile index) respectively.
type Manager struct {
	mu      sync.RWMutex
	peers   map[string]*peer
	tracks  map[[2]uint32]*Track
	log     *slog.Logger
	api     *webrtc.API
	sig     Signaler
	iceURLs []string
}

type peer struct {
	pc            *webrtc.PeerConnection
	remoteDescSet bool
	pendingICE    []webrtc.ICECandidateInit
	mu            sync.Mutex
}

// NewManager constructs a Manager. iceURLs configures the STUN/TURN
// servers offered to every new peer connection.
func NewManager(sig Signaler, log *slog.Logger, iceURLs []string) (*Manager, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("webrtcsession: register codecs: %w", err)
	}
	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, registry); err != nil {
		return nil, fmt.Errorf("webrtcsession: register interceptors: %w", err)
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(registry))

	return &Manager{
		peers:   make(map[string]*peer),
		tracks:  make(map[[2]uint32]*Track),
		log:     log,
		api:     api,
		sig:     sig,
		iceURLs: iceURLs,
	}, nil
}

// GetOrCreateTrack returns the shared track for (clientID, tileIndex),
// creating it on first reference.
func (m *Manager) GetOrCreateTrack(clientID, tileIndex uint32) (*Track, error) {
	key := [2]uint32{clientID, tileIndex}

	m.mu.RLock()
	if t, ok := m.tracks[key]; ok {
		m.mu.RUnlock()
		return t, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tracks[key]; ok {
		return t, nil
	}
	t, err := newTrack(clientID, tileIndex)
	if err != nil {
		return nil, err
	}
	m.tracks[key] = t
	return t, nil
}

// HandleOffer creates a peer connection for clientID on an incoming
// SDP offer, subscribes it to trackKeys, and answers via the
// configured Signaler (spec §4.7).
func (m *Manager) HandleOffer(clientID, sdp string, trackKeys [][2]uint32) error {
	iceServers := make([]webrtc.ICEServer, 0, len(m.iceURLs))
	for _, u := range m.iceURLs {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: []string{u}})
	}
	pc, err := m.api.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return fmt.Errorf("webrtcsession: new peer connection: %w", err)
	}

	p := &peer{pc: pc}
	m.mu.Lock()
	m.peers[clientID] = p
	m.mu.Unlock()

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		if err := m.sig.SendICECandidate(clientID, c.ToJSON()); err != nil {
			m.log.Warn("ice candidate relay failed", "client", clientID, "err", err)
		}
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			m.removePeer(clientID)
		}
	})

	for _, key := range trackKeys {
		m.mu.RLock()
		t, ok := m.tracks[key]
		m.mu.RUnlock()
		if !ok {
			var err error
			t, err = m.GetOrCreateTrack(key[0], key[1])
			if err != nil {
				return err
			}
		}
		if _, err := pc.AddTrack(t.local); err != nil {
			return fmt.Errorf("webrtcsession: add track: %w", err)
		}
	}

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}); err != nil {
		return fmt.Errorf("webrtcsession: set remote description: %w", err)
	}
	m.flushPendingICE(p)

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("webrtcsession: create answer: %w", err)
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("webrtcsession: set local description: %w", err)
	}
	return m.sig.SendAnswer(clientID, answer.SDP)
}

// AddICECandidate adds a remote candidate for clientID, buffering it
// if the remote description has not been set yet (spec §4.7
// "pending-candidate queue if remote description not yet set").
func (m *Manager) AddICECandidate(clientID string, candidate webrtc.ICECandidateInit) error {
	m.mu.RLock()
	p, ok := m.peers[clientID]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("webrtcsession: unknown peer %s", clientID)
	}

	p.mu.Lock()
	if !p.remoteDescSet {
		p.pendingICE = append(p.pendingICE, candidate)
		p.mu.Unlock()
		return nil
	}
	pc := p.pc
	p.mu.Unlock()

	return pc.AddICECandidate(candidate)
}

func (m *Manager) flushPendingICE(p *peer) {
	p.mu.Lock()
	p.remoteDescSet = true
	pending := p.pendingICE
	p.pendingICE = nil
	pc := p.pc
	p.mu.Unlock()

	for _, c := range pending {
		if err := pc.AddICECandidate(c); err != nil {
			m.log.Warn("buffered ice candidate add failed", "err", err)
		}
	}
}

func (m *Manager) removePeer(clientID string) {
	m.mu.Lock()
	p, ok := m.peers[clientID]
	delete(m.peers, clientID)
	m.mu.Unlock()
	if ok {
		_ = p.pc.Close()
	}
}

// RemovePeer tears down and forgets clientID's peer connection, if
// any. Safe to call for a client that never negotiated WebRTC.
func (m *Manager) RemovePeer(clientID string) {
	m.removePeer(clientID)
}

// PeerCount reports the number of currently tracked peer connections.
func (m *Manager) PeerCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.peers)
}
