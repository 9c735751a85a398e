// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package ingress

import (
	"log/slog"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/Dash-Industry-Forum/pointcloud-live/pkg/codec"
	"github.com/Dash-Industry-Forum/pointcloud-live/pkg/rtppc"
)

// gcInterval is how often reassembly state is swept for entries older
// than rtppc's 60s cutoff.
const gcInterval = 10 * time.Second

// WebRTC drains an incoming RTCP-managed remote track's RTP stream,
// depacketizes it via rtppc.Depacketizer, decodes the reassembled
// frame, and forwards it to sink (spec §4.7, component C8).
type WebRTC struct {
	dp       *rtppc.Depacketizer
	sink     FrameSink
	streamID string
	log      *slog.Logger
}

// NewWebRTC constructs a WebRTC ingress for one remote track's
// stream_id.
func NewWebRTC(streamID string, sink FrameSink, log *slog.Logger) *WebRTC {
	return &WebRTC{dp: rtppc.NewDepacketizer(), sink: sink, streamID: streamID, log: log}
}

// Drain reads RTP packets from track until it errors or is closed,
// reassembling and decoding each completed frame (spec §4.7).
// Reassembly GC is not run by Drain; it is started with StartGC and
// stops when the channel passed to StartGC is closed.
func (w *WebRTC) Drain(track *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		n, _, err := track.Read(buf)
		if err != nil {
			return
		}
		frame, done := w.dp.Insert(buf[:n])
		if !done {
			continue
		}
		pc := codec.DecodeFrame(frame.Data)
		pc.PresentationTimeUS = frame.PresentationTimeUS
		if pc.CreationTimeUS == 0 {
			pc.CreationTimeUS = frame.PresentationTimeUS
		}
		w.sink.PushFrame(w.streamID, pc)
	}
}

// StartGC runs periodic reassembly garbage collection in the
// background.
func (w *WebRTC) StartGC(stop <-chan struct{}) {
	w.dp.RunGC(gcInterval, stop)
}

// PeerSignaler mirrors webrtcsession.Signaler's shape for code that
// only needs to accept offers and relay ICE without depending on the
// full session manager.
type PeerSignaler interface {
	SendAnswer(clientID, sdp string) error
	SendICECandidate(clientID string, candidate webrtc.ICECandidateInit) error
}
