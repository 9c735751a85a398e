// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package egress

import (
	"context"
	"log/slog"
	"time"

	"github.com/Dash-Industry-Forum/pointcloud-live/internal/mpdmanager"
	"github.com/Dash-Industry-Forum/pointcloud-live/pkg/codec"
	"github.com/Dash-Industry-Forum/pointcloud-live/pkg/pointcloud"
)

// Buffer is the DASH-over-HTTP egress transport (component C6/C2/C3):
// the shared generator/transmission pipeline feeds encoded frames into
// the segment ring that mpdmanager.Manager serves over HTTP.
type Buffer struct {
	*Common
	mgr      *mpdmanager.Manager
	streamID string
	log      *slog.Logger
}

// NewBuffer constructs a Buffer egress writing streamID's segments
// through mgr.
func NewBuffer(common *Common, mgr *mpdmanager.Manager, streamID string, log *slog.Logger) *Buffer {
	return &Buffer{Common: common, mgr: mgr, streamID: streamID, log: log}
}

func (b *Buffer) EncodingFormat() codec.Kind     { return b.Cfg.encodingFormat() }
func (b *Buffer) MaxNumberOfPoints() uint64      { return b.Cfg.MaxPoints.Load() }
func (b *Buffer) SetFPS(fps uint32)              { b.Cfg.FPS.Store(fps) }
func (b *Buffer) SetEncodingFormat(k codec.Kind) { b.Cfg.EncodingFormat.Store(k) }
func (b *Buffer) SetMaxNumberOfPoints(n uint64)  { b.Cfg.MaxPoints.Store(n) }

// PushPointCloud feeds an already-combined cloud directly to the
// encode worker pool (aggregator_bypass fast path).
func (b *Buffer) PushPointCloud(pc pointcloud.PointCloudData, streamID string) {
	b.encodeAndPush(pc)
}

// PushEncodedFrameBypass accepts an already-encoded payload.
func (b *Buffer) PushEncodedFrameBypass(rawData []byte, streamID string, creationTimeUS, presentationTimeUS uint64, ringBufferBypass bool, clientID *uint64, tileIndex *uint32) {
	frame := pointcloud.FrameTaskData{
		SendTimeUS:         uint64(time.Now().UnixMicro()),
		PresentationTimeUS: presentationTimeUS,
		Data:               rawData,
	}
	if ringBufferBypass {
		frame.SendTimeUS = uint64(time.Now().UnixMicro())
		b.EmitFrameData(frame)
		return
	}
	b.PushEncodedFrame(frame)
}

// EnsureThreadsStarted launches the shared generator/transmission
// loops.
func (b *Buffer) EnsureThreadsStarted(ctx context.Context) {
	b.Common.EnsureThreadsStarted(ctx, b.EmitFrameData)
}

// EmitFrameData writes frame as the next media segment in the stream's
// circular buffer, registering its Representation on first push.
func (b *Buffer) EmitFrameData(frame pointcloud.FrameTaskData) {
	if err := b.mgr.PushFrame(b.streamID, frame.Data, frame.PresentationTimeUS); err != nil {
		b.log.Warn("buffer egress push failed", "stream", b.streamID, "err", err)
	}
}
