// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package codec

import (
	"encoding/binary"

	"github.com/Dash-Industry-Forum/pointcloud-live/pkg/pointcloud"
)

// rawCodec is a fixed-width binary encoding of Point3D arrays: each
// point is 3*float32 + 3*uint8 = 15 bytes, little-endian, with no
// framing beyond a point count header. Used as the fallback when no
// compression is configured, and as the wire format the WebSocket
// egress's "compact binary encoding" in spec §4.6/§6 refers to.
type rawCodec struct{}

func (rawCodec) Kind() Kind { return Raw }

const rawPointSize = 3*4 + 3

func (rawCodec) Encode(pc pointcloud.PointCloudData) ([]byte, error) {
	out := make([]byte, 4+len(pc.Points)*rawPointSize)
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(pc.Points)))
	off := 4
	for _, p := range pc.Points {
		binary.LittleEndian.PutUint32(out[off:], float32bits(p.X))
		binary.LittleEndian.PutUint32(out[off+4:], float32bits(p.Y))
		binary.LittleEndian.PutUint32(out[off+8:], float32bits(p.Z))
		out[off+12] = p.R
		out[off+13] = p.G
		out[off+14] = p.B
		off += rawPointSize
	}
	return out, nil
}

func (rawCodec) Decode(payload []byte) (pointcloud.PointCloudData, error) {
	if len(payload) < 4 {
		return pointcloud.PointCloudData{}, ErrShortPayload
	}
	n := binary.LittleEndian.Uint32(payload[0:4])
	want := 4 + int(n)*rawPointSize
	if len(payload) < want {
		return pointcloud.PointCloudData{}, ErrShortPayload
	}
	points := make([]pointcloud.Point3D, n)
	off := 4
	for i := range points {
		points[i] = pointcloud.Point3D{
			X: float32frombits(binary.LittleEndian.Uint32(payload[off:])),
			Y: float32frombits(binary.LittleEndian.Uint32(payload[off+4:])),
			Z: float32frombits(binary.LittleEndian.Uint32(payload[off+8:])),
			R: payload[off+12],
			G: payload[off+13],
			B: payload[off+14],
		}
		off += rawPointSize
	}
	return pointcloud.PointCloudData{Points: points}, nil
}
