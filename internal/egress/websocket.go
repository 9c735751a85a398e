// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package egress

import (
	"context"
	"encoding/base64"
	"log/slog"
	"time"

	"github.com/Dash-Industry-Forum/pointcloud-live/internal/wsbus"
	"github.com/Dash-Industry-Forum/pointcloud-live/pkg/codec"
	"github.com/Dash-Industry-Forum/pointcloud-live/pkg/pointcloud"
)

// broadcastRoom is the single room every WebSocket viewer joins to
// receive combined-cloud frames (spec §4.6).
const broadcastRoom = "broadcast"

// ackTimeout is the acknowledgement timeout for frame:broadcast:ack.
// EmitFrameData does not wait for client acknowledgements, so this
// value is not applied anywhere.
const ackTimeout = 800 * time.Millisecond

// WebSocket is the broadcast egress transport (component C6/§4.6):
// frames produced by the shared generator/transmission pipeline are
// base64-wrapped and fanned out to every client in the broadcast room.
type WebSocket struct {
	*Common
	hub *wsbus.Hub
	log *slog.Logger

	// Ack, when true, uses the acknowledged frame:broadcast:ack event
	// instead of fire-and-forget frame:broadcast.
	Ack bool
}

// NewWebSocket constructs a WebSocket egress bound to hub.
func NewWebSocket(common *Common, hub *wsbus.Hub, log *slog.Logger) *WebSocket {
	return &WebSocket{Common: common, hub: hub, log: log}
}

type broadcastPayload struct {
	Data              string  `json:"data"`
	SendTimeUS        uint64  `json:"send_time_us"`
	PresentationTimeUS uint64 `json:"presentation_time_us"`
}

// EncodingFormat reports the codec currently configured for this
// egress.
func (w *WebSocket) EncodingFormat() codec.Kind { return w.Cfg.encodingFormat() }

// MaxNumberOfPoints reports the currently configured sampling cap.
func (w *WebSocket) MaxNumberOfPoints() uint64 { return w.Cfg.MaxPoints.Load() }

// SetFPS updates the generator loop's target frame rate.
func (w *WebSocket) SetFPS(fps uint32) { w.Cfg.FPS.Store(fps) }

// SetEncodingFormat updates the codec used to encode combined clouds.
func (w *WebSocket) SetEncodingFormat(kind codec.Kind) { w.Cfg.EncodingFormat.Store(kind) }

// SetMaxNumberOfPoints updates the exact-sampling cap applied before
// encoding.
func (w *WebSocket) SetMaxNumberOfPoints(n uint64) { w.Cfg.MaxPoints.Store(n) }

// PushPointCloud feeds an already-combined cloud directly into the
// encode worker pool, bypassing the aggregator (the aggregator_bypass
// fast path in spec §4.5).
func (w *WebSocket) PushPointCloud(pc pointcloud.PointCloudData, streamID string) {
	w.encodeAndPush(pc)
}

// PushEncodedFrameBypass accepts an already-encoded payload, optionally
// emitting it inline (ring_buffer_bypass) instead of queueing it.
func (w *WebSocket) PushEncodedFrameBypass(rawData []byte, streamID string, creationTimeUS, presentationTimeUS uint64, ringBufferBypass bool, clientID *uint64, tileIndex *uint32) {
	frame := pointcloud.FrameTaskData{
		SendTimeUS:         uint64(time.Now().UnixMicro()),
		PresentationTimeUS: presentationTimeUS,
		Data:               rawData,
		SFUClientID:        clientID,
		SFUTileIndex:       tileIndex,
	}
	if ringBufferBypass {
		frame.SendTimeUS = uint64(time.Now().UnixMicro())
		w.EmitFrameData(frame)
		return
	}
	w.PushEncodedFrame(frame)
}

// EnsureThreadsStarted launches the shared generator/transmission
// loops, wiring EmitFrameData as the transmission loop's emit
// callback.
func (w *WebSocket) EnsureThreadsStarted(ctx context.Context) {
	w.Common.EnsureThreadsStarted(ctx, w.EmitFrameData)
}

// EmitFrameData base64-wraps frame.Data and broadcasts it to every
// client in the broadcast room, using the acknowledged event when Ack
// is enabled.
func (w *WebSocket) EmitFrameData(frame pointcloud.FrameTaskData) {
	payload := broadcastPayload{
		Data:               base64.StdEncoding.EncodeToString(frame.Data),
		SendTimeUS:         frame.SendTimeUS,
		PresentationTimeUS: frame.PresentationTimeUS,
	}
	event := "frame:broadcast"
	if w.Ack {
		event = "frame:broadcast:ack"
	}
	w.hub.Broadcast(broadcastRoom, event, payload)
}

// BroadcastHasConnected sends the has_connected handshake event
// carrying the socket's own id (spec §6), to be called ~2s after
// accept to dodge first-connection churn.
func (w *WebSocket) BroadcastHasConnected(c *wsbus.Client) {
	if err := c.Send("has_connected", map[string]string{"socketId": c.ID}); err != nil {
		w.log.Warn("has_connected send failed", "client", c.ID, "err", err)
	}
}

// BroadcastGroupID announces group_id for the DASH player to spawn
// against, mirroring the mpd::group_id event.
func (w *WebSocket) BroadcastGroupID(groupID string) {
	w.hub.BroadcastAll("mpd::group_id", groupID)
}
