// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package fmp4

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitSegmentRoundTrip(t *testing.T) {
	init, err := NewInitSegment(TrackConfig{
		TrackID:               1,
		Timescale:             1000000,
		DefaultSampleDuration: 33333,
		Language:              "und",
		CodecFourCC:           "raw ",
		CodecName:             "pointcloud-raw",
		Width:                 1,
		Height:                1,
		BandwidthBPS:          500000,
	})
	require.NoError(t, err)
	data, err := EncodeInitSegment(init)
	require.NoError(t, err)
	require.NotEmpty(t, data)
}

func TestInitSegmentRejectsShortFourCC(t *testing.T) {
	_, err := NewInitSegment(TrackConfig{Timescale: 1000000, CodecFourCC: "raw"})
	require.Error(t, err)
}

func TestMediaSegmentRoundTrip(t *testing.T) {
	samples := []Sample{
		{DecodeTime: 0, DurationTS: 33000, Data: []byte("raw-frame-one")},
		{DecodeTime: 33000, DurationTS: 33000, Data: []byte("raw-frame-two")},
	}
	data, err := WriteMediaSegment(7, samples)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	got, err := ExtractSamples(data)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, samples[0].Data, got[0].Data)
	require.Equal(t, samples[1].DecodeTime, got[1].DecodeTime)
}
