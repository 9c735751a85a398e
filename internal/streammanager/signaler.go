// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package streammanager

import (
	"github.com/pion/webrtc/v4"

	"github.com/Dash-Industry-Forum/pointcloud-live/internal/webrtcsession"
	"github.com/Dash-Industry-Forum/pointcloud-live/internal/wsbus"
)

// webrtcSDP is the {sdp, clientId} envelope payload for webrtc_offer
// and webrtc_answer (spec §6).
type webrtcSDP struct {
	SDP      string `json:"sdp"`
	ClientID string `json:"clientId"`
}

// webrtcICE is the {candidate, sdpMid, sdpMLineIndex} envelope payload
// for webrtc_ice_candidate (spec §6).
type webrtcICE struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex"`
}

// HubSignaler adapts a wsbus.Hub into the webrtcsession.Signaler
// surface, the only dependency webrtcsession.Manager has on the
// WebSocket transport, matching the small-interface decoupling used by
// petervdpas-goop2/internal/call for its own realtime-layer Signaler.
type HubSignaler struct {
	hub *wsbus.Hub
}

// NewHubSignaler wraps hub for use as a webrtcsession.Signaler.
func NewHubSignaler(hub *wsbus.Hub) *HubSignaler {
	return &HubSignaler{hub: hub}
}

var _ webrtcsession.Signaler = (*HubSignaler)(nil)

// SendAnswer delivers a webrtc_answer envelope to clientID.
func (s *HubSignaler) SendAnswer(clientID, sdp string) error {
	return s.hub.SendTo(clientID, "webrtc_answer", webrtcSDP{SDP: sdp, ClientID: clientID})
}

// SendICECandidate delivers a webrtc_ice_candidate envelope to clientID.
func (s *HubSignaler) SendICECandidate(clientID string, candidate webrtc.ICECandidateInit) error {
	payload := webrtcICE{Candidate: candidate.Candidate, SDPMid: candidate.SDPMid}
	if candidate.SDPMLineIndex != nil {
		payload.SDPMLineIndex = candidate.SDPMLineIndex
	}
	return s.hub.SendTo(clientID, "webrtc_ice_candidate", payload)
}
