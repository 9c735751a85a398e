// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

// Package flute implements a FLUTE (RFC 6726) sender: LCT/ALC headers,
// FDT instances describing each object, content encoding, FEC OTI
// tagging, and a bandwidth-paced UDP transmitter (spec §4.8,
// component C6). No Go FLUTE implementation exists anywhere in the
// example corpus (confirmed by grep across every _examples/*/go.mod
// for flute/alc/lct/rmt), so this package is written directly against
// RFC 6726 using only net/encoding stdlib primitives; see DESIGN.md
// for the stdlib justification. Grounded on
// original_source/Server/src/egress/flute.rs for wire-format and
// pacing behavior.
package flute

import (
	"encoding/binary"
	"fmt"
)

// ContentEncoding names the object content encoding applied before
// FEC (spec §4.8).
type ContentEncoding int

const (
	EncodingNull ContentEncoding = iota
	EncodingZlib
	EncodingDeflate
	EncodingGzip
)

func (e ContentEncoding) String() string {
	switch e {
	case EncodingZlib:
		return "zlib"
	case EncodingDeflate:
		return "deflate"
	case EncodingGzip:
		return "gzip"
	default:
		return "null"
	}
}

// FECScheme identifies the forward error correction scheme applied to
// an object's encoding symbols (spec §4.8).
type FECScheme int

const (
	FECNoCode FECScheme = iota
	FECRaptor
	FECRaptorQ
	FECReedSolomonGF28
)

func (f FECScheme) String() string {
	switch f {
	case FECRaptor:
		return "raptor"
	case FECRaptorQ:
		return "raptorq"
	case FECReedSolomonGF28:
		return "reedsolomongf28"
	default:
		return "nocode"
	}
}

// LCTHeader is a minimal RFC 5651 Layered Coding Transport header: the
// fields this system actually needs to demultiplex and order objects.
type LCTHeader struct {
	Version    uint8
	CongestionControlFlag uint8
	TSI        uint64 // Transport Session Identifier (channel/stream)
	TOI        uint64 // Transport Object Identifier (per-file)
	CodePoint  uint8  // selects FEC scheme / content encoding profile
	Close      bool   // Close Session flag
}

// lctFixedLen is the length, in bytes, of the fixed portion of the LCT
// header this implementation emits (version/flags/HDR_LEN/codepoint +
// 4-byte TSI + 4-byte TOI; RFC 5651 allows larger TSI/TOI fields but
// this system never needs more than 32 bits of each).
const lctFixedLen = 12

// MarshalLCT encodes h into an lctFixedLen-byte header.
func MarshalLCT(h LCTHeader) []byte {
	buf := make([]byte, lctFixedLen)
	buf[0] = (h.Version << 4) | (h.CongestionControlFlag << 2)
	if h.Close {
		buf[0] |= 0x1
	}
	buf[1] = h.CodePoint
	binary.BigEndian.PutUint16(buf[2:4], uint16(lctFixedLen/4))
	binary.BigEndian.PutUint32(buf[4:8], uint32(h.TSI))
	binary.BigEndian.PutUint32(buf[8:12], uint32(h.TOI))
	return buf
}

// UnmarshalLCT parses the fixed LCT header written by MarshalLCT.
func UnmarshalLCT(buf []byte) (LCTHeader, error) {
	if len(buf) < lctFixedLen {
		return LCTHeader{}, fmt.Errorf("flute: short LCT header (%d bytes)", len(buf))
	}
	return LCTHeader{
		Version:   buf[0] >> 4,
		Close:     buf[0]&0x1 != 0,
		CodePoint: buf[1],
		TSI:       uint64(binary.BigEndian.Uint32(buf[4:8])),
		TOI:       uint64(binary.BigEndian.Uint32(buf[8:12])),
	}, nil
}
