// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package app

import (
	"fmt"
	"log/slog"
	"net"

	"github.com/Dash-Industry-Forum/pointcloud-live/internal/ingress"
	"github.com/Dash-Industry-Forum/pointcloud-live/pkg/pointcloud"
)

// startFLUTE joins listenAddr's multicast group and decodes completed
// FDT objects into sink, falling back to streamFallback for any object
// whose FDT carried no ContentLocation (spec §4.8, component C8).
func startFLUTE(listenAddr string, streamFallback string, sink ingress.FrameSink, log *slog.Logger) (*ingress.FLUTE, error) {
	addr, err := net.ResolveUDPAddr("udp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("flute client: resolve %s: %w", listenAddr, err)
	}
	wrapped := fallbackSink{inner: sink, fallback: streamFallback}
	return ingress.NewFLUTE(addr, wrapped, log)
}

// fallbackSink substitutes fallback for an empty streamID.
type fallbackSink struct {
	inner    ingress.FrameSink
	fallback string
}

func (f fallbackSink) PushFrame(streamID string, pc pointcloud.PointCloudData) {
	if streamID == "" {
		streamID = f.fallback
	}
	f.inner.PushFrame(streamID, pc)
}
