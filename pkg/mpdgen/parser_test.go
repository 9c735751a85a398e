// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package mpdgen

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildParseRoundTrip(t *testing.T) {
	meta := MpdMetadata{
		AvailabilityStartTimeS: 1700000000,
		TimeShiftBufferDepthS:  30,
		MinimumUpdatePeriodS:   2,
		AdaptationSets: []AdaptationSet{
			{
				ContentType: "video",
				MimeType:    "video/mp4",
				Representations: []Representation{
					{
						ID:                "stream_a",
						BandwidthBPS:      500_000,
						InitializationURL: "stream_a/init.mp4",
						MediaURLTemplate:  "stream_a/$Number$.m4s",
						SegmentDurationS:  1,
						Timescale:         1000,
					},
				},
			},
		},
	}

	xml, err := Build(meta)
	require.NoError(t, err)
	require.Contains(t, xml, "stream_a")

	parsed, err := Parse(xml)
	require.NoError(t, err)
	require.Len(t, parsed.AdaptationSets, 1)
	require.Len(t, parsed.AdaptationSets[0].Representations, 1)

	rep := parsed.AdaptationSets[0].Representations[0]
	require.Equal(t, "stream_a", rep.ID)
	require.Equal(t, uint64(500_000), rep.BandwidthBPS)
	require.Equal(t, "stream_a/init.mp4", rep.InitializationURL)
	require.InDelta(t, 1.0, rep.SegmentDurationS, 0.001)
}

func TestParseUsesSegmentTimeDetection(t *testing.T) {
	meta := MpdMetadata{
		AdaptationSets: []AdaptationSet{{
			ContentType: "video",
			Representations: []Representation{{
				ID:               "stream_b",
				MediaURLTemplate: "stream_b/$Time$.m4s",
				Timescale:        1000,
				SegmentDurationS: 1,
			}},
		}},
	}
	xml, err := Build(meta)
	require.NoError(t, err)

	parsed, err := Parse(xml)
	require.NoError(t, err)
	require.True(t, parsed.AdaptationSets[0].Representations[0].UsesSegmentTime)
}
