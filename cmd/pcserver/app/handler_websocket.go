// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package app

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/Dash-Industry-Forum/pointcloud-live/internal/ingress"
	"github.com/Dash-Industry-Forum/pointcloud-live/internal/wsbus"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const hasConnectedDelay = 2 * time.Second

// websocketUpgradeHandlerFunc accepts one browser connection, joins it
// to the broadcast room, and dispatches every inbound envelope by
// event name (spec §6).
func (s *Server) websocketUpgradeHandlerFunc(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "err", err)
		return
	}

	clientID := uuid.NewString()
	client := wsbus.NewClient(clientID, conn)
	s.hub.Register(client)
	s.hub.Join(clientID, "broadcast")

	streamID := r.URL.Query().Get("stream_id")
	if streamID == "" {
		streamID = clientID
	}
	wsIngress := ingress.NewWebSocket(streamID, aggregatorSink{s.aggregator}, s.log.With("client", clientID))

	go s.runHasConnected(client)
	s.readWebSocketLoop(client, wsIngress)
}

func (s *Server) runHasConnected(client *wsbus.Client) {
	t := time.NewTimer(hasConnectedDelay)
	defer t.Stop()
	<-t.C
	if err := client.Send("has_connected", map[string]string{"socketId": client.ID}); err != nil {
		s.log.Debug("has_connected send failed", "client", client.ID, "err", err)
	}
}

func (s *Server) readWebSocketLoop(client *wsbus.Client, wsIngress *ingress.WebSocket) {
	defer func() {
		s.hub.Unregister(client.ID)
		s.webrtc.RemovePeer(client.ID)
		_ = client.Close()
	}()

	for {
		var env wsbus.Envelope
		if err := client.ReadJSON(&env); err != nil {
			return
		}
		s.dispatchEnvelope(client, wsIngress, env)
	}
}

func (s *Server) dispatchEnvelope(client *wsbus.Client, wsIngress *ingress.WebSocket, env wsbus.Envelope) {
	switch env.Event {
	case "frame:broadcast", "frame:broadcast:ack":
		wsIngress.HandleEnvelope(env.Payload)
		if env.Event == "frame:broadcast:ack" {
			_ = client.Send("frame:broadcast:ack", map[string]bool{"ok": true})
		}
	case "webrtc_offer":
		s.handleWebRTCOffer(client, env.Payload)
	case "webrtc_ice_candidate":
		s.handleWebRTCICE(client, env.Payload)
	default:
		s.log.Debug("unhandled websocket event", "event", env.Event)
	}
}

type webrtcOfferPayload struct {
	SDP      string   `json:"sdp"`
	ClientID string   `json:"clientId"`
	Streams  []string `json:"streams"`
}

// handleWebRTCOffer resolves payload.Streams (stream_ids with an
// sfu_client_id/sfu_tile_index assigned, spec §3) into the track keys
// the new peer subscribes to, then negotiates the answer.
func (s *Server) handleWebRTCOffer(client *wsbus.Client, raw json.RawMessage) {
	var payload webrtcOfferPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		s.log.Warn("malformed webrtc_offer", "err", err)
		return
	}

	var keys [][2]uint32
	for _, streamID := range payload.Streams {
		settings := s.streams.Settings().Get(streamID)
		if settings.SFUClientID == nil || settings.SFUTileIndex == nil {
			continue
		}
		keys = append(keys, [2]uint32{uint32(*settings.SFUClientID), *settings.SFUTileIndex})
	}

	if err := s.webrtc.HandleOffer(client.ID, payload.SDP, keys); err != nil {
		s.log.Warn("webrtc offer handling failed", "client", client.ID, "err", err)
	}
}

func (s *Server) handleWebRTCICE(client *wsbus.Client, raw json.RawMessage) {
	var payload struct {
		Candidate     string  `json:"candidate"`
		SDPMid        *string `json:"sdpMid"`
		SDPMLineIndex *uint16 `json:"sdpMLineIndex"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		s.log.Warn("malformed webrtc_ice_candidate", "err", err)
		return
	}
	init := webrtc.ICECandidateInit{Candidate: payload.Candidate, SDPMid: payload.SDPMid, SDPMLineIndex: payload.SDPMLineIndex}
	if err := s.webrtc.AddICECandidate(client.ID, init); err != nil {
		s.log.Warn("webrtc ice candidate failed", "client", client.ID, "err", err)
	}
}
