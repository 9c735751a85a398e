// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package rtppc

import (
	"github.com/pion/rtp"
)

// Packetizer splits one encoded frame into a sequence of RTP packets
// carrying the chunk header defined in spec §4.7. Sequence numbers
// advance monotonically across frames; timestamp sampling is always 0
// since there is no in-band clock (spec §4.7).
type Packetizer struct {
	ClientID  uint32
	TileNr    uint32
	QualityNr uint32

	ssrc uint32
	seq  uint16
}

// NewPacketizer constructs a Packetizer for one (client, tile) track.
func NewPacketizer(clientID, tileNr uint32, ssrc uint32) *Packetizer {
	return &Packetizer{ClientID: clientID, TileNr: tileNr, ssrc: ssrc}
}

// Packetize splits data (already encoded by the codec registry) into
// RTP packets tagged with frameNr (the frame's presentation_time, also
// reused as send_time per spec §4.7).
func (p *Packetizer) Packetize(data []byte, frameNr uint64) []*rtp.Packet {
	totalLen := uint32(len(data))
	if totalLen == 0 {
		return nil
	}

	var packets []*rtp.Packet
	for offset := uint32(0); offset < totalLen; offset += ChunkSize {
		end := offset + ChunkSize
		if end > totalLen {
			end = totalLen
		}
		chunk := data[offset:end]

		hdr := Header{
			ClientID:  p.ClientID,
			FrameNr:   frameNr,
			TotalLen:  totalLen,
			Offset:    offset,
			ChunkLen:  uint32(len(chunk)),
			TileNr:    p.TileNr,
			QualityNr: p.QualityNr,
		}
		payload := append(hdr.Marshal(), chunk...)

		pkt := &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				PayloadType:    96,
				SequenceNumber: p.seq,
				Timestamp:      0,
				SSRC:           p.ssrc,
				Marker:         end == totalLen,
			},
			Payload: payload,
		}
		p.seq++
		packets = append(packets, pkt)
	}
	return packets
}
