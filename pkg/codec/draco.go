// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package codec

import "github.com/Dash-Industry-Forum/pointcloud-live/pkg/pointcloud"

// dracoCodec registers the Draco dispatch slot (magic-byte detection,
// "dra" tag) required by the codec registry contract. No pure-Go Draco
// bitstream encoder/decoder exists in the example corpus or without
// cgo (see DESIGN.md), so encode/decode fall back to the raw binary
// encoding: the tag and dispatch path are real, the compression is
// not.
type dracoCodec struct{}

func (dracoCodec) Kind() Kind { return Draco }

func (dracoCodec) Encode(pc pointcloud.PointCloudData) ([]byte, error) {
	return rawCodec{}.Encode(pc)
}

func (dracoCodec) Decode(payload []byte) (pointcloud.PointCloudData, error) {
	return rawCodec{}.Decode(payload)
}
