// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package egress

import (
	"context"
	"time"

	"github.com/Dash-Industry-Forum/pointcloud-live/pkg/codec"
	"github.com/Dash-Industry-Forum/pointcloud-live/pkg/flute"
	"github.com/Dash-Industry-Forum/pointcloud-live/pkg/pointcloud"
)

// FLUTE is the multicast egress transport (component C6/§4.8): the
// shared generator/transmission pipeline pushes encoded frames into a
// flute.Sender queue, which a dedicated OS thread paces onto the wire.
type FLUTE struct {
	*Common
	sender *flute.Sender
}

// NewFLUTE constructs a FLUTE egress bound to sender.
func NewFLUTE(common *Common, sender *flute.Sender) *FLUTE {
	return &FLUTE{Common: common, sender: sender}
}

func (f *FLUTE) EncodingFormat() codec.Kind     { return f.Cfg.encodingFormat() }
func (f *FLUTE) MaxNumberOfPoints() uint64      { return f.Cfg.MaxPoints.Load() }
func (f *FLUTE) SetFPS(fps uint32)              { f.Cfg.FPS.Store(fps) }
func (f *FLUTE) SetEncodingFormat(k codec.Kind) { f.Cfg.EncodingFormat.Store(k) }
func (f *FLUTE) SetMaxNumberOfPoints(n uint64)  { f.Cfg.MaxPoints.Store(n) }

// PushPointCloud feeds an already-combined cloud directly to the
// encode worker pool (aggregator_bypass fast path).
func (f *FLUTE) PushPointCloud(pc pointcloud.PointCloudData, streamID string) {
	f.encodeAndPush(pc)
}

// PushEncodedFrameBypass accepts an already-encoded payload.
func (f *FLUTE) PushEncodedFrameBypass(rawData []byte, streamID string, creationTimeUS, presentationTimeUS uint64, ringBufferBypass bool, clientID *uint64, tileIndex *uint32) {
	frame := pointcloud.FrameTaskData{
		SendTimeUS:         uint64(time.Now().UnixMicro()),
		PresentationTimeUS: presentationTimeUS,
		Data:               rawData,
	}
	if ringBufferBypass {
		frame.SendTimeUS = uint64(time.Now().UnixMicro())
		f.EmitFrameData(frame)
		return
	}
	f.PushEncodedFrame(frame)
}

// EnsureThreadsStarted launches the shared generator/transmission
// loops.
func (f *FLUTE) EnsureThreadsStarted(ctx context.Context) {
	f.Common.EnsureThreadsStarted(ctx, f.EmitFrameData)
}

// EmitFrameData wraps frame as a FLUTE object and enqueues it for
// paced transmission.
func (f *FLUTE) EmitFrameData(frame pointcloud.FrameTaskData) {
	f.sender.EnqueueObject(frame.PresentationTimeUS, frame.SendTimeUS, frame.Data)
}
