// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package fmp4

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrMalformedBox is returned by the top-level box scanner when a
// box's declared size does not fit the remaining buffer, or a box
// header cannot be read, per the sized-read contract in spec §4.1.
var ErrMalformedBox = errors.New("fmp4: malformed box")

// ExtractMdatPayloads implements the mdat fast-extractor (spec §4.1):
// it walks only the top-level boxes of buf without building mp4ff's
// full box tree, collecting every mdat payload in document order. Any
// top-level box whose declared size exceeds the remaining buffer is
// rejected with ErrMalformedBox, matching the ProtocolParseError
// taxonomy in spec §7 (the caller drops the offending segment).
func ExtractMdatPayloads(buf []byte) ([][]byte, error) {
	var payloads [][]byte
	pos := 0
	for pos < len(buf) {
		if len(buf)-pos < 8 {
			return nil, fmt.Errorf("%w: truncated box header at offset %d", ErrMalformedBox, pos)
		}
		size32 := binary.BigEndian.Uint32(buf[pos : pos+4])
		boxType := string(buf[pos+4 : pos+8])

		headerLen := 8
		var size uint64
		switch size32 {
		case 0:
			// Box extends to end of buffer (spec allows; extractor treats
			// remainder as this box's payload).
			size = uint64(len(buf) - pos)
		case 1:
			if len(buf)-pos < 16 {
				return nil, fmt.Errorf("%w: truncated largesize header at offset %d", ErrMalformedBox, pos)
			}
			size = binary.BigEndian.Uint64(buf[pos+8 : pos+16])
			headerLen = 16
		default:
			size = uint64(size32)
		}

		if size < uint64(headerLen) || int(size) > len(buf)-pos {
			return nil, fmt.Errorf("%w: %s box declares size %d at offset %d exceeding remaining %d bytes", ErrMalformedBox, boxType, size, pos, len(buf)-pos)
		}

		if boxType == "mdat" {
			payloads = append(payloads, buf[pos+headerLen:pos+int(size)])
		}
		pos += int(size)
	}
	return payloads, nil
}
