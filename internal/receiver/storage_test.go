// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package receiver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Dash-Industry-Forum/pointcloud-live/pkg/codec"
	"github.com/Dash-Industry-Forum/pointcloud-live/pkg/pointcloud"
)

func TestInsertFrameOverridesZeroPresentationTime(t *testing.T) {
	s := New(nil)
	s.InsertFrame("a", pointcloud.FrameTaskData{PresentationTimeUS: 0, Data: []byte("x")})
	frame, ok := s.ConsumeFrame("a")
	require.True(t, ok)
	require.NotZero(t, frame.PresentationTimeUS)
}

func TestConsumeFrameNearestToNow(t *testing.T) {
	s := New(nil)
	now := uint64(time.Now().UnixMicro())
	s.InsertFrame("a", pointcloud.FrameTaskData{PresentationTimeUS: now - 1000, SendTimeUS: now - 1000})
	s.InsertFrame("a", pointcloud.FrameTaskData{PresentationTimeUS: now, SendTimeUS: now})
	s.InsertFrame("a", pointcloud.FrameTaskData{PresentationTimeUS: now + 2_000_000, SendTimeUS: now + 2_000_000})

	frame, ok := s.ConsumeFrame("a")
	require.True(t, ok)
	require.Equal(t, now, frame.PresentationTimeUS)

	// The future frame remains buffered; the stale one was popped as a skip.
	remaining, ok := s.ConsumeFrame("a")
	require.True(t, ok)
	require.Equal(t, now+2_000_000, remaining.PresentationTimeUS)
}

func TestConsumeFrameEmptyReturnsFalse(t *testing.T) {
	s := New(nil)
	_, ok := s.ConsumeFrame("missing")
	require.False(t, ok)
}

func TestRingCapacityEviction(t *testing.T) {
	s := New(nil)
	for i := 0; i < ringCapacity+5; i++ {
		s.InsertFrame("a", pointcloud.FrameTaskData{PresentationTimeUS: uint64(i + 1)})
	}
	require.Equal(t, ringCapacity, s.BufferedCount("a"))
}

func TestConsumeFrameDerivesPointCountFromDecodedPayload(t *testing.T) {
	s := New(nil)

	encodeN := func(n int) []byte {
		pc := pointcloud.PointCloudData{Points: make([]pointcloud.Point3D, n)}
		data, err := codec.EncodeFrame(codec.Raw, pc)
		require.NoError(t, err)
		return data
	}

	s.InsertFrame("a", pointcloud.FrameTaskData{Data: encodeN(5)})
	_, ok := s.ConsumeFrame("a")
	require.True(t, ok)
	require.Equal(t, 5, s.lastPointCounts["a"])

	s.InsertFrame("b", pointcloud.FrameTaskData{Data: encodeN(7)})
	_, ok = s.ConsumeFrame("b")
	require.True(t, ok)

	require.Equal(t, 12, s.TotalAggregatePointCount())
}

func TestDropAllButNewest(t *testing.T) {
	s := New(nil)
	s.InsertFrame("a", pointcloud.FrameTaskData{PresentationTimeUS: 1})
	s.InsertFrame("a", pointcloud.FrameTaskData{PresentationTimeUS: 2})
	s.InsertFrame("a", pointcloud.FrameTaskData{PresentationTimeUS: 3})
	s.DropAllButNewest("a")
	require.Equal(t, 1, s.BufferedCount("a"))
}
