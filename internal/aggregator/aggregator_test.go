// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package aggregator

import (
	"testing"
	"time"

	"github.com/Dash-Industry-Forum/pointcloud-live/internal/streamsettings"
	"github.com/Dash-Industry-Forum/pointcloud-live/pkg/pointcloud"
	"github.com/stretchr/testify/require"
)

func cloudAt(t uint64) pointcloud.PointCloudData {
	return pointcloud.PointCloudData{
		Points:             []pointcloud.Point3D{{X: 1, Y: 2, Z: 3}},
		CreationTimeUS:     t,
		PresentationTimeUS: t,
	}
}

func TestAggregatorBufferOrderingAndCap(t *testing.T) {
	reg := streamsettings.NewRegistry()
	agg := New(reg, nil)

	agg.Update("s1", cloudAt(100))
	agg.Update("s1", cloudAt(120))
	agg.Update("s1", cloudAt(110)) // interior insert

	buf := agg.buffers["s1"]
	require.Len(t, buf, 3)
	for i := 1; i < len(buf); i++ {
		require.LessOrEqual(t, buf[i-1].PresentationTimeUS, buf[i].PresentationTimeUS)
	}
}

func TestAggregatorEmptyClearsStream(t *testing.T) {
	reg := streamsettings.NewRegistry()
	agg := New(reg, nil)
	agg.Update("s1", cloudAt(100))
	agg.Update("s1", pointcloud.PointCloudData{})
	_, ok := agg.buffers["s1"]
	require.False(t, ok)
}

func TestGenerateCombinedTwoStreams(t *testing.T) {
	reg := streamsettings.NewRegistry()
	agg := New(reg, nil)

	// Anchor on real wall-clock "now" since GenerateCombined's staleness
	// check compares against time.Now(), not caller-supplied virtual time.
	base := uint64(time.Now().UnixMicro())
	agg.Update("A", cloudAt(base+100))
	agg.Update("A", cloudAt(base+120))
	agg.Update("B", cloudAt(base+115))

	// First call pops each stream's oldest front: A's 100, B's 115.
	out := agg.GenerateCombined(1_000_000)
	require.Equal(t, base+115, out.PresentationTimeUS)
	require.Len(t, out.Points, 2)

	// A still has its 120 frame buffered, so has_update is not yet
	// cleared; a second call drains it.
	out2 := agg.GenerateCombined(1_000_000)
	require.Equal(t, base+120, out2.PresentationTimeUS)
	require.Len(t, out2.Points, 1)

	// Nothing left buffered: subsequent call returns empty+error.
	empty := agg.GenerateCombined(1_000_000)
	require.Equal(t, 1, empty.ErrorCount)
	require.Empty(t, empty.Points)
}

func TestExactRandomSamplingSize(t *testing.T) {
	pts := make([]pointcloud.Point3D, 50)
	sampled := ExactRandomSampling(pts, 10)
	require.Len(t, sampled, 10)

	all := ExactRandomSampling(pts, 50)
	require.Len(t, all, 50)

	none := ExactRandomSampling(pts, 0)
	require.Empty(t, none)
}

func TestPartitionByPercentagesDisjoint(t *testing.T) {
	pts := make([]pointcloud.Point3D, 100)
	for i := range pts {
		pts[i] = pointcloud.Point3D{X: float32(i)}
	}
	buckets, err := PartitionByPercentages(pts, []uint8{50, 30, 10})
	require.NoError(t, err)
	require.Len(t, buckets, 3)
	require.Len(t, buckets[0], 50)
	require.Len(t, buckets[1], 30)
	require.Len(t, buckets[2], 10)

	seen := map[float32]bool{}
	for _, b := range buckets {
		for _, p := range b {
			require.False(t, seen[p.X], "point reused across buckets")
			seen[p.X] = true
		}
	}
}

func TestPartitionByPercentagesRejectsOverflow(t *testing.T) {
	_, err := PartitionByPercentages(nil, []uint8{60, 60})
	require.Error(t, err)
}
