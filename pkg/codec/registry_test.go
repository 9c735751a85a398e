// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package codec

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Dash-Industry-Forum/pointcloud-live/pkg/pointcloud"
)

func TestEncodeDecodeRawRoundTrip(t *testing.T) {
	pc := pointcloud.PointCloudData{Points: []pointcloud.Point3D{
		{X: 1, Y: 2, Z: 3, R: 10, G: 20, B: 30},
		{X: -1.5, Y: 0, Z: 9.25, R: 255, G: 0, B: 128},
	}}
	encoded, err := EncodeFrame(Raw, pc)
	require.NoError(t, err)
	require.Equal(t, "raw", string(encoded[:3]))

	decoded := DecodeFrame(encoded)
	require.Equal(t, 0, decoded.ErrorCount)
	require.Equal(t, pc.Points, decoded.Points)
}

func TestDecodeFrameUnknownTagYieldsErrorCount(t *testing.T) {
	got := DecodeFrame([]byte("xyz garbage"))
	require.Equal(t, 1, got.ErrorCount)
	require.True(t, got.Empty())
}

func TestDecodeFrameShortPayload(t *testing.T) {
	got := DecodeFrame([]byte("r"))
	require.Equal(t, 1, got.ErrorCount)
}

func TestSniff(t *testing.T) {
	require.Equal(t, Draco, Sniff([]byte("DRACOxxxxx")))
	require.Equal(t, Ply, Sniff([]byte("ply\nformat ascii 1.0\n")))
	require.Equal(t, Raw, Sniff([]byte{0x01, 0x02, 0x03}))
}

func TestPlyRoundTrip(t *testing.T) {
	pc := pointcloud.PointCloudData{Points: []pointcloud.Point3D{
		{X: 1, Y: 2, Z: 3, R: 10, G: 20, B: 30},
	}}
	c, ok := Lookup(Ply)
	require.True(t, ok)
	encoded, err := c.Encode(pc)
	require.NoError(t, err)

	decoded, err := c.Decode(encoded)
	require.NoError(t, err)
	require.Len(t, decoded.Points, 1)
	require.Equal(t, pc.Points[0].R, decoded.Points[0].R)
}
