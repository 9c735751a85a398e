// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package dashplayer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Dash-Industry-Forum/pointcloud-live/pkg/mpdgen"
)

func TestSelectRepresentationPicksHighestWithinBudget(t *testing.T) {
	reps := []mpdgen.Representation{
		{ID: "low", BandwidthBPS: 500_000},
		{ID: "mid", BandwidthBPS: 1_000_000},
		{ID: "high", BandwidthBPS: 5_000_000},
	}
	got := selectRepresentation(reps, 1_100_000)
	require.Equal(t, "mid", got.ID)
}

func TestSelectRepresentationFallsBackToLowest(t *testing.T) {
	reps := []mpdgen.Representation{
		{ID: "low", BandwidthBPS: 500_000},
		{ID: "mid", BandwidthBPS: 1_000_000},
	}
	got := selectRepresentation(reps, 100)
	require.Equal(t, "low", got.ID)
}

func TestPlaybackRateIdentityNearTarget(t *testing.T) {
	require.Equal(t, 1.0, playbackRate(2.0, 2.005))
}

func TestPlaybackRateClampedRange(t *testing.T) {
	r := playbackRate(10.0, 1.0)
	require.LessOrEqual(t, r, 2.5)
	require.GreaterOrEqual(t, r, 0.8)
}

func TestEstimatorEWMA(t *testing.T) {
	e := NewEstimator()
	e.Record(125_000, 1.0) // 1,000,000 bps
	require.InDelta(t, 1_000_000, e.Estimate(), 1)
	e.Record(125_000, 0.5) // 2,000,000 bps sample
	require.Greater(t, e.Estimate(), 1_000_000.0)
	require.Less(t, e.Estimate(), 2_000_000.0)
}

func TestResolveSegmentURL(t *testing.T) {
	require.Equal(t, "/dash/a/42.m4s", resolveSegmentURL("/dash/a/$Number$.m4s", 42))
}
