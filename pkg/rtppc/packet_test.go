// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package rtppc

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPacketizeDepacketizeRoundTrip(t *testing.T) {
	data := make([]byte, ChunkSize*3+57)
	rand.New(rand.NewSource(1)).Read(data)

	pz := NewPacketizer(42, 1, 0xdeadbeef)
	packets := pz.Packetize(data, 123456)
	require.Len(t, packets, 4)
	require.True(t, packets[len(packets)-1].Marker)

	dp := NewDepacketizer()
	var got []byte
	for i, pkt := range packets {
		frame, done := dp.Insert(pkt.Payload)
		if i < len(packets)-1 {
			require.False(t, done)
		} else {
			require.True(t, done)
			got = frame.Data
			require.Equal(t, uint64(123456), frame.PresentationTimeUS)
			require.NotNil(t, frame.SFUClientID)
			require.Equal(t, uint32(42), *frame.SFUClientID)
		}
	}
	require.True(t, bytes.Equal(data, got))
}

func TestDepacketizerDedupesDuplicateChunks(t *testing.T) {
	data := make([]byte, ChunkSize+10)
	pz := NewPacketizer(1, 0, 1)
	packets := pz.Packetize(data, 1)
	require.Len(t, packets, 2)

	dp := NewDepacketizer()
	_, done := dp.Insert(packets[0].Payload)
	require.False(t, done)
	// Re-insert the same first chunk; should not double-count receivedLen.
	_, done = dp.Insert(packets[0].Payload)
	require.False(t, done)
	_, done = dp.Insert(packets[1].Payload)
	require.True(t, done)
}

func TestDepacketizerKeepsTilesSeparate(t *testing.T) {
	// Two tiles of the same client/frame must not share a reassembly
	// buffer (spec §3 reassembly key includes tile_nr/quality_nr).
	tile0 := make([]byte, ChunkSize+10)
	for i := range tile0 {
		tile0[i] = 0xAA
	}
	tile1 := make([]byte, ChunkSize+10)
	for i := range tile1 {
		tile1[i] = 0xBB
	}

	pz0 := NewPacketizer(7, 0, 1)
	pz1 := NewPacketizer(7, 1, 2)
	pkts0 := pz0.Packetize(tile0, 999)
	pkts1 := pz1.Packetize(tile1, 999)
	require.Len(t, pkts0, 2)
	require.Len(t, pkts1, 2)

	dp := NewDepacketizer()
	// Interleave the two tiles' chunks.
	_, done := dp.Insert(pkts0[0].Payload)
	require.False(t, done)
	_, done = dp.Insert(pkts1[0].Payload)
	require.False(t, done)
	frame0, done := dp.Insert(pkts0[1].Payload)
	require.True(t, done)
	frame1, done := dp.Insert(pkts1[1].Payload)
	require.True(t, done)

	require.True(t, bytes.Equal(tile0, frame0.Data))
	require.True(t, bytes.Equal(tile1, frame1.Data))
}

func TestUnmarshalShortHeader(t *testing.T) {
	_, err := Unmarshal([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrShortHeader)
}
