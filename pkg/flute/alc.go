// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package flute

import (
	"encoding/binary"
	"fmt"
)

// fecPayloadIDLen is the size of the compact (nocode) FEC Payload ID:
// a 4-byte encoding symbol block number (spec §4.8 FECNoCode; other
// FEC schemes are tagged via CodePoint but this sender always emits
// source-block-aligned, uncoded symbols since no Go Raptor/RaptorQ
// implementation exists in the corpus).
const fecPayloadIDLen = 4

// Packet is one ALC (RFC 5775) datagram: an LCT header, a FEC Payload
// ID, and an encoding symbol (or FDT instance payload, when TOI==0).
type Packet struct {
	LCT       LCTHeader
	BlockNr   uint32 // source block number within the object
	Payload   []byte
}

// Marshal serializes p into a single UDP datagram payload.
func (p Packet) Marshal() []byte {
	lct := MarshalLCT(p.LCT)
	out := make([]byte, 0, len(lct)+fecPayloadIDLen+len(p.Payload))
	out = append(out, lct...)
	fecID := make([]byte, fecPayloadIDLen)
	binary.BigEndian.PutUint32(fecID, p.BlockNr)
	out = append(out, fecID...)
	out = append(out, p.Payload...)
	return out
}

// Unmarshal parses a raw ALC datagram.
func Unmarshal(buf []byte) (Packet, error) {
	lct, err := UnmarshalLCT(buf)
	if err != nil {
		return Packet{}, err
	}
	rest := buf[lctFixedLen:]
	if len(rest) < fecPayloadIDLen {
		return Packet{}, fmt.Errorf("flute: short FEC payload ID")
	}
	blockNr := binary.BigEndian.Uint32(rest[:fecPayloadIDLen])
	return Packet{LCT: lct, BlockNr: blockNr, Payload: rest[fecPayloadIDLen:]}, nil
}
