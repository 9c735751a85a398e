// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package app

import (
	"fmt"
	"log/slog"

	"github.com/pion/webrtc/v4"

	"github.com/Dash-Industry-Forum/pointcloud-live/internal/ingress"
)

// pointcloudPayloadType is the dynamic RTP payload type the shared
// point-cloud track is negotiated on, matching rtppc's wire packets
// (spec §3, internal/webrtcsession.newTrack).
const pointcloudPayloadType = 96

// webrtcClient negotiates one outbound PeerConnection against
// pcserver's webrtcsession.Manager and drains every subscribed track
// through ingress.WebRTC (component C8, mirroring
// internal/webrtcsession.Manager from the answering side).
type webrtcClient struct {
	pc       *webrtc.PeerConnection
	streamID string
	sink     ingress.FrameSink
	log      *slog.Logger
	ingr     *ingress.WebRTC
	stopGC   chan struct{}
}

// newWebRTCClient builds a PeerConnection with the point-cloud RTP
// codec registered and one recvonly transceiver, wiring every received
// track to a fresh ingress.WebRTC drain keyed by streamID.
func newWebRTCClient(streamID string, sink ingress.FrameSink, log *slog.Logger) (*webrtcClient, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: "application/x-pointcloud", ClockRate: 90000},
		PayloadType:        pointcloudPayloadType,
	}, webrtc.RTPCodecTypeVideo); err != nil {
		return nil, fmt.Errorf("webrtc client: register codec: %w", err)
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(m))

	pc, err := api.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, fmt.Errorf("webrtc client: new peer connection: %w", err)
	}
	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("webrtc client: add transceiver: %w", err)
	}

	c := &webrtcClient{
		pc:       pc,
		streamID: streamID,
		sink:     sink,
		log:      log,
		ingr:     ingress.NewWebRTC(streamID, sink, log),
		stopGC:   make(chan struct{}),
	}
	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		go c.ingr.Drain(track)
	})
	c.ingr.StartGC(c.stopGC)
	return c, nil
}

// Offer creates a local offer and sets it as the local description,
// returning the SDP to relay to the server over the webrtc_offer
// envelope (spec §6).
func (c *webrtcClient) Offer() (string, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("webrtc client: create offer: %w", err)
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("webrtc client: set local description: %w", err)
	}
	return offer.SDP, nil
}

// OnAnswer applies the server's SDP answer as the remote description.
func (c *webrtcClient) OnAnswer(sdp string) {
	err := c.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp})
	if err != nil {
		c.log.Warn("webrtc client: set remote description failed", "err", err)
	}
}

// OnICECandidate adds a remote ICE candidate relayed by the server.
func (c *webrtcClient) OnICECandidate(candidate string, sdpMid *string, sdpMLineIndex *uint16) {
	init := webrtc.ICECandidateInit{Candidate: candidate, SDPMid: sdpMid, SDPMLineIndex: sdpMLineIndex}
	if err := c.pc.AddICECandidate(init); err != nil {
		c.log.Warn("webrtc client: add ice candidate failed", "err", err)
	}
}

// Close tears down the peer connection and stops reassembly GC.
func (c *webrtcClient) Close() error {
	close(c.stopGC)
	return c.pc.Close()
}
