// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Dash-Industry-Forum/pointcloud-live/internal/ingress"
	"github.com/Dash-Industry-Forum/pointcloud-live/internal/wsbus"
)

// signalRelay receives the signaling events a wsClient decodes out of
// the broadcast envelope stream and routes them to the local WebRTC
// peer connection (spec §6 webrtc_answer/webrtc_ice_candidate).
type signalRelay interface {
	OnAnswer(sdp string)
	OnICECandidate(candidate string, sdpMid *string, sdpMLineIndex *uint16)
}

// wsClient dials pcserver's WebSocket broadcast endpoint and fans the
// inbound envelope stream out to the frame-ingress decoder and,
// optionally, a WebRTC signaling relay (component C8, mirroring
// cmd/pcserver/app.websocketUpgradeHandlerFunc's dispatch from the
// opposite side of the same wire protocol).
type wsClient struct {
	client  *wsbus.Client
	frames  *ingress.WebSocket
	signal  signalRelay
	log     *slog.Logger
}

// dialWebSocket connects to serverURL's /ws endpoint and starts
// decoding inbound frames into sink under streamID.
func dialWebSocket(serverURL, streamID string, sink ingress.FrameSink, signal signalRelay, log *slog.Logger) (*wsClient, error) {
	wsURL := toWebSocketURL(serverURL) + "/ws?stream_id=" + streamID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket: dial %s: %w", wsURL, err)
	}
	client := wsbus.NewClient(uuid.NewString(), conn)
	frames := ingress.NewWebSocket(streamID, sink, log)
	return &wsClient{client: client, frames: frames, signal: signal, log: log}, nil
}

func toWebSocketURL(serverURL string) string {
	switch {
	case strings.HasPrefix(serverURL, "https://"):
		return "wss://" + strings.TrimPrefix(serverURL, "https://")
	case strings.HasPrefix(serverURL, "http://"):
		return "ws://" + strings.TrimPrefix(serverURL, "http://")
	default:
		return serverURL
	}
}

// Send marshals payload under event and writes it to the server.
func (c *wsClient) Send(event string, payload any) error {
	return c.client.Send(event, payload)
}

// Run reads envelopes until ctx is canceled or the connection closes.
func (c *wsClient) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		_ = c.client.Close()
	}()
	for {
		var env wsbus.Envelope
		if err := c.client.ReadJSON(&env); err != nil {
			if ctx.Err() == nil {
				c.log.Warn("websocket: read failed", "err", err)
			}
			return
		}
		c.dispatch(env)
	}
}

func (c *wsClient) dispatch(env wsbus.Envelope) {
	switch env.Event {
	case "frame:broadcast":
		c.frames.HandleEnvelope(env.Payload)
	case "frame:broadcast:ack":
		c.frames.HandleEnvelope(env.Payload)
		if err := c.client.Send("frame:broadcast:ack", map[string]bool{"ok": true}); err != nil {
			c.log.Debug("websocket: ack send failed", "err", err)
		}
	case "webrtc_answer":
		c.handleAnswer(env.Payload)
	case "webrtc_ice_candidate":
		c.handleICECandidate(env.Payload)
	case "has_connected":
		c.log.Debug("websocket: connected", "payload", string(env.Payload))
	case "mpd::group_id":
		c.log.Debug("websocket: group id announced", "payload", string(env.Payload))
	default:
		c.log.Debug("websocket: unhandled event", "event", env.Event)
	}
}

func (c *wsClient) handleAnswer(raw json.RawMessage) {
	if c.signal == nil {
		return
	}
	var payload struct {
		SDP string `json:"sdp"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.log.Warn("websocket: malformed webrtc_answer", "err", err)
		return
	}
	c.signal.OnAnswer(payload.SDP)
}

func (c *wsClient) handleICECandidate(raw json.RawMessage) {
	if c.signal == nil {
		return
	}
	var payload struct {
		Candidate     string  `json:"candidate"`
		SDPMid        *string `json:"sdpMid"`
		SDPMLineIndex *uint16 `json:"sdpMLineIndex"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.log.Warn("websocket: malformed webrtc_ice_candidate", "err", err)
		return
	}
	c.signal.OnICECandidate(payload.Candidate, payload.SDPMid, payload.SDPMLineIndex)
}
