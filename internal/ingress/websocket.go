// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

// Package ingress implements the transport-facing inbound counterparts
// of internal/egress (spec §4.7/§6, component C8): decoding received
// bytes back into FrameTaskData/PointCloudData and handing them to the
// aggregator or receiver pipeline.
package ingress

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Dash-Industry-Forum/pointcloud-live/pkg/codec"
	"github.com/Dash-Industry-Forum/pointcloud-live/pkg/pointcloud"
)

// FrameSink receives decoded frames from any ingress transport.
type FrameSink interface {
	PushFrame(streamID string, pc pointcloud.PointCloudData)
}

type wsBroadcastPayload struct {
	Data               string `json:"data"`
	SendTimeUS         uint64 `json:"send_time_us"`
	PresentationTimeUS uint64 `json:"presentation_time_us"`
}

// WebSocket decodes inbound frame:broadcast(:ack) envelopes (spec §6)
// and a capture source's own stream id, forwarding decoded clouds to
// sink.
type WebSocket struct {
	sink     FrameSink
	streamID string
	log      *slog.Logger
}

// NewWebSocket constructs a WebSocket ingress for one capture source's
// stream_id.
func NewWebSocket(streamID string, sink FrameSink, log *slog.Logger) *WebSocket {
	return &WebSocket{sink: sink, streamID: streamID, log: log}
}

// HandleEnvelope decodes one base64-wrapped frame envelope and pushes
// the decoded cloud to the sink. Parse errors are logged and dropped
// (spec §7 ProtocolParseError).
func (w *WebSocket) HandleEnvelope(raw json.RawMessage) {
	var payload wsBroadcastPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		w.log.Warn("websocket ingress: malformed envelope", "err", err)
		return
	}
	data, err := base64.StdEncoding.DecodeString(payload.Data)
	if err != nil {
		w.log.Warn("websocket ingress: bad base64", "err", err)
		return
	}
	pc := codec.DecodeFrame(data)
	if pc.CreationTimeUS == 0 {
		pc.CreationTimeUS = payload.SendTimeUS
	}
	if pc.PresentationTimeUS == 0 {
		pc.PresentationTimeUS = payload.PresentationTimeUS
	}
	w.sink.PushFrame(w.streamID, pc)
}

// DecodeRawPayload decodes an already-known encoded payload directly,
// for code paths that bypass the JSON envelope (decode_bypass, spec
// §4.5).
func DecodeRawPayload(data []byte) (pointcloud.PointCloudData, error) {
	pc := codec.DecodeFrame(data)
	if pc.ErrorCount > 0 {
		return pc, fmt.Errorf("ingress: decode failed")
	}
	return pc, nil
}
