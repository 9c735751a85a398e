// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package app

import (
	"github.com/Dash-Industry-Forum/pointcloud-live/internal/aggregator"
	"github.com/Dash-Industry-Forum/pointcloud-live/pkg/pointcloud"
)

// aggregatorSink adapts *aggregator.Aggregator to ingress.FrameSink, so
// every transport ingress feeds the same per-stream buffer regardless
// of which wire format it arrived over (spec §4.3).
type aggregatorSink struct {
	agg *aggregator.Aggregator
}

func (s aggregatorSink) PushFrame(streamID string, pc pointcloud.PointCloudData) {
	s.agg.Update(streamID, pc)
}
