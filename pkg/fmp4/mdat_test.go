// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package fmp4

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractMdatPayloadsFromWrittenSegment(t *testing.T) {
	samples := []Sample{
		{DecodeTime: 0, DurationTS: 33000, Data: []byte("raw-frame-one")},
	}
	data, err := WriteMediaSegment(1, samples)
	require.NoError(t, err)

	payloads, err := ExtractMdatPayloads(data)
	require.NoError(t, err)
	require.Len(t, payloads, 1)
	require.Equal(t, samples[0].Data, payloads[0])
}

func TestExtractMdatPayloadsRejectsOversizedBox(t *testing.T) {
	// A single top-level box claiming to be larger than the buffer.
	buf := []byte{0, 0, 0, 100, 'm', 'd', 'a', 't', 1, 2, 3}
	_, err := ExtractMdatPayloads(buf)
	require.ErrorIs(t, err, ErrMalformedBox)
}

func TestExtractMdatPayloadsMultipleTopLevelBoxes(t *testing.T) {
	styp := []byte{0, 0, 0, 8, 's', 't', 'y', 'p'}
	mdat1 := append([]byte{0, 0, 0, 12, 'm', 'd', 'a', 't'}, []byte("abcd")...)
	mdat2 := append([]byte{0, 0, 0, 11, 'm', 'd', 'a', 't'}, []byte("xyz")...)
	buf := append(append(append([]byte{}, styp...), mdat1...), mdat2...)

	payloads, err := ExtractMdatPayloads(buf)
	require.NoError(t, err)
	require.Len(t, payloads, 2)
	require.Equal(t, []byte("abcd"), payloads[0])
	require.Equal(t, []byte("xyz"), payloads[1])
}
