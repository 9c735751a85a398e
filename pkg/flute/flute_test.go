// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package flute

import (
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLCTHeaderRoundTrip(t *testing.T) {
	h := LCTHeader{Version: 1, TSI: 7, TOI: 42, CodePoint: 3}
	got, err := UnmarshalLCT(MarshalLCT(h))
	require.NoError(t, err)
	require.Equal(t, h.Version, got.Version)
	require.Equal(t, h.TSI, got.TSI)
	require.Equal(t, h.TOI, got.TOI)
	require.Equal(t, h.CodePoint, got.CodePoint)
}

func TestALCPacketRoundTrip(t *testing.T) {
	p := Packet{
		LCT:     LCTHeader{Version: 1, TSI: 1, TOI: 99},
		BlockNr: 5,
		Payload: []byte("hello flute"),
	}
	got, err := Unmarshal(p.Marshal())
	require.NoError(t, err)
	require.Equal(t, p.BlockNr, got.BlockNr)
	require.Equal(t, p.Payload, got.Payload)
	require.Equal(t, p.LCT.TOI, got.LCT.TOI)
}

func TestContentLocationFormat(t *testing.T) {
	require.Equal(t, "file://frame_100_120.bin", ContentLocationFor(100, 120))
}

func TestFDTInstanceMarshalsFiles(t *testing.T) {
	obj := NewObject(1, "file://frame_1_1.bin", []byte("abc"), EncodingNull, FECNoCode, true)
	body, err := MarshalFDTInstance([]Object{obj})
	require.NoError(t, err)
	require.Contains(t, string(body), "frame_1_1.bin")
	require.Contains(t, string(body), "Content-MD5")
}

// TestSenderPacesToBandwidth exercises spec §8's bandwidth-pacing
// invariant and concrete scenario 4: at 8 Mbps, 1000 packets of 1400
// bytes (11_200_000 bits, exactly 1.4s of airtime) must finish sending
// within [1.40s, 1.47s] wall-clock.
func TestSenderPacesToBandwidth(t *testing.T) {
	listener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer listener.Close()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := NewSender(listener.LocalAddr().(*net.UDPAddr), 1, 8_000_000, log)
	require.NoError(t, err)
	defer s.Close()

	const packetCount = 1000
	const packetSize = 1400
	payload := make([]byte, packetSize)

	received := make(chan time.Time, 1)
	go func() {
		buf := make([]byte, 2048)
		for n := 0; n < packetCount; n++ {
			if _, _, err := listener.ReadFromUDP(buf); err != nil {
				return
			}
		}
		received <- time.Now()
	}()

	start := time.Now()
	for i := 0; i < packetCount; i++ {
		require.True(t, s.tryEnqueue(payload))
	}

	select {
	case lastRecv := <-received:
		elapsed := lastRecv.Sub(start)
		require.GreaterOrEqual(t, elapsed, 1400*time.Millisecond)
		require.LessOrEqual(t, elapsed, 1470*time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("did not receive all paced packets in time")
	}
}
