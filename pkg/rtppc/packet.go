// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

// Package rtppc implements the custom point-cloud RTP payload format
// used by the WebRTC egress/ingress (spec §4.7, components C6/C7/C8):
// a 32-byte little-endian chunk header followed by frame bytes, packed
// into pion/rtp packets and reassembled by presentation time. Grounded
// on original_source/Libraries/shared_utils/src/track_local_pointcloud_rtp.rs
// and track_remote_pointcloud_rtp.rs.
package rtppc

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the fixed size, in bytes, of the chunk header
// prepended to every RTP payload (spec §4.7).
const HeaderSize = 32

// MTU is the maximum RTP payload size (header + chunk bytes), matching
// the packetizer's split boundary.
const MTU = 1200

// ChunkSize is the number of frame bytes carried by one RTP packet.
const ChunkSize = MTU - HeaderSize

// Header is the 32-byte little-endian chunk header defined in spec
// §4.7.
type Header struct {
	ClientID  uint32
	FrameNr   uint64 // presentation_time, reused for send_time
	TotalLen  uint32 // whole-frame byte length
	Offset    uint32 // byte offset within frame
	ChunkLen  uint32 // payload length following this header
	TileNr    uint32
	QualityNr uint32
}

// Marshal writes h into a freshly allocated HeaderSize-byte buffer.
func (h Header) Marshal() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.ClientID)
	binary.LittleEndian.PutUint64(buf[4:12], h.FrameNr)
	binary.LittleEndian.PutUint32(buf[12:16], h.TotalLen)
	binary.LittleEndian.PutUint32(buf[16:20], h.Offset)
	binary.LittleEndian.PutUint32(buf[20:24], h.ChunkLen)
	binary.LittleEndian.PutUint32(buf[24:28], h.TileNr)
	binary.LittleEndian.PutUint32(buf[28:32], h.QualityNr)
	return buf
}

// ErrShortHeader is returned by Unmarshal when the buffer is shorter
// than HeaderSize.
var ErrShortHeader = fmt.Errorf("rtppc: payload shorter than %d-byte header", HeaderSize)

// Unmarshal parses the leading HeaderSize bytes of buf into a Header.
func Unmarshal(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, ErrShortHeader
	}
	return Header{
		ClientID:  binary.LittleEndian.Uint32(buf[0:4]),
		FrameNr:   binary.LittleEndian.Uint64(buf[4:12]),
		TotalLen:  binary.LittleEndian.Uint32(buf[12:16]),
		Offset:    binary.LittleEndian.Uint32(buf[16:20]),
		ChunkLen:  binary.LittleEndian.Uint32(buf[20:24]),
		TileNr:    binary.LittleEndian.Uint32(buf[24:28]),
		QualityNr: binary.LittleEndian.Uint32(buf[28:32]),
	}, nil
}
