// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package egress

import (
	"context"
	"log/slog"
	"time"

	"github.com/Dash-Industry-Forum/pointcloud-live/internal/webrtcsession"
	"github.com/Dash-Industry-Forum/pointcloud-live/pkg/codec"
	"github.com/Dash-Industry-Forum/pointcloud-live/pkg/pointcloud"
)

// WebRTC is the low-latency egress transport (component C6/C7): the
// shared generator/transmission pipeline feeds encoded frames to the
// per-(client, tile) RTP track managed by webrtcsession.Manager.
type WebRTC struct {
	*Common
	sessions *webrtcsession.Manager
	log      *slog.Logger

	clientID  uint32
	tileIndex uint32
}

// NewWebRTC constructs a WebRTC egress targeting one (clientID,
// tileIndex) shared track.
func NewWebRTC(common *Common, sessions *webrtcsession.Manager, clientID, tileIndex uint32, log *slog.Logger) *WebRTC {
	return &WebRTC{Common: common, sessions: sessions, clientID: clientID, tileIndex: tileIndex, log: log}
}

func (w *WebRTC) EncodingFormat() codec.Kind     { return w.Cfg.encodingFormat() }
func (w *WebRTC) MaxNumberOfPoints() uint64      { return w.Cfg.MaxPoints.Load() }
func (w *WebRTC) SetFPS(fps uint32)              { w.Cfg.FPS.Store(fps) }
func (w *WebRTC) SetEncodingFormat(k codec.Kind) { w.Cfg.EncodingFormat.Store(k) }
func (w *WebRTC) SetMaxNumberOfPoints(n uint64)  { w.Cfg.MaxPoints.Store(n) }

// PushPointCloud feeds an already-combined cloud directly to the
// encode worker pool (aggregator_bypass fast path, spec §4.5).
func (w *WebRTC) PushPointCloud(pc pointcloud.PointCloudData, streamID string) {
	w.encodeAndPush(pc)
}

// PushEncodedFrameBypass accepts an already-encoded payload, either
// queueing it or emitting it immediately when ringBufferBypass is set.
func (w *WebRTC) PushEncodedFrameBypass(rawData []byte, streamID string, creationTimeUS, presentationTimeUS uint64, ringBufferBypass bool, clientID *uint64, tileIndex *uint32) {
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
// loops.
func (w *WebRTC) EnsureThreadsStarted(ctx context.Context) {
	w.Common.EnsureThreadsStarted(ctx, w.EmitFrameData)
}

// EmitFrameData writes frame to the shared RTP track for this
// (client, tile), packetizing it via rtppc.Packetizer.
func (w *WebRTC) EmitFrameData(frame pointcloud.FrameTaskData) {
	track, err := w.sessions.GetOrCreateTrack(w.clientID, w.tileIndex)
	if err != nil {
		w.log.Error("webrtc track unavailable", "err", err)
		return
	}
	if err := track.WriteFrame(frame.Data, frame.PresentationTimeUS); err != nil {
		w.log.Warn("webrtc write failed", "client", w.clientID, "tile", w.tileIndex, "err", err)
	}
}
