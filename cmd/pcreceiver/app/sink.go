// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package app

import (
	"github.com/Dash-Industry-Forum/pointcloud-live/internal/receiver"
	"github.com/Dash-Industry-Forum/pointcloud-live/pkg/codec"
	"github.com/Dash-Industry-Forum/pointcloud-live/pkg/pointcloud"
)

// receiverSink adapts a *receiver.Store to ingress.FrameSink, the same
// role cmd/pcserver/app.aggregatorSink plays for the server's inbound
// side: every ingress transport (WebSocket, WebRTC, FLUTE) re-encodes
// its decoded cloud and hands it to the same bounded ring (spec
// §4.11).
type receiverSink struct {
	store *receiver.Store
}

// PushFrame re-encodes pc with the raw codec (the receiver stores
// already-decoded transport-agnostic clouds, so no compression is
// needed for the local ring) and inserts it under streamID.
func (s receiverSink) PushFrame(streamID string, pc pointcloud.PointCloudData) {
	data, err := codec.EncodeFrame(codec.Raw, pc)
	if err != nil {
		return
	}
	s.store.InsertFrame(streamID, pointcloud.FrameTaskData{
		SendTimeUS:         pc.CreationTimeUS,
		PresentationTimeUS: pc.PresentationTimeUS,
		Data:               data,
	})
}
