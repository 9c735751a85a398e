// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

// Package codec implements the frame codec registry: dispatch by
// explicit tag, byte-sniffing of incoming payloads, and the 3-byte
// ASCII codec tag convention used to identify a FrameTaskData's
// encoding on the wire.
package codec

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/Dash-Industry-Forum/pointcloud-live/pkg/pointcloud"
)

// Kind identifies a point-cloud codec.
type Kind int

const (
	Unknown Kind = iota
	Draco
	Ply
	Raw
)

func (k Kind) String() string {
	switch k {
	case Draco:
		return "Draco"
	case Ply:
		return "Ply"
	case Raw:
		return "Raw"
	default:
		return "Unknown"
	}
}

// Tag is the 3-byte ASCII prefix written before every encoded payload.
func (k Kind) Tag() [3]byte {
	switch k {
	case Draco:
		return [3]byte{'d', 'r', 'a'}
	case Ply:
		return [3]byte{'p', 'l', 'y'}
	case Raw:
		return [3]byte{'r', 'a', 'w'}
	default:
		return [3]byte{'u', 'n', 'k'}
	}
}

var (
	// ErrUnknownCodec is returned when a payload's tag does not match
	// any registered codec.
	ErrUnknownCodec = errors.New("codec: unknown payload tag")
	// ErrShortPayload is returned when a payload is too short to
	// contain a codec tag, and by the raw codec when a body is shorter
	// than its point count requires.
	ErrShortPayload = errors.New("codec: payload shorter than tag")
)

// dracoMagic is the byte sequence the Draco bitstream encoder emits at
// the start of every Draco-compressed buffer.
var dracoMagic = []byte("DRACO")

// Sniff routes a raw payload (as received over the wire, without a
// codec tag) to a Kind by inspecting its leading bytes, per spec
// §4.12: Draco magic, PLY header, otherwise raw.
func Sniff(payload []byte) Kind {
	switch {
	case bytes.HasPrefix(payload, dracoMagic):
		return Draco
	case bytes.HasPrefix(payload, []byte("ply\n")), bytes.HasPrefix(payload, []byte("ply\r\n")):
		return Ply
	default:
		return Raw
	}
}

// KindFromTag parses the 3-byte ASCII tag prefixing an already-encoded
// FrameTaskData.Data payload.
func KindFromTag(data []byte) (Kind, error) {
	if len(data) < 3 {
		return Unknown, ErrShortPayload
	}
	switch string(data[:3]) {
	case "dra":
		return Draco, nil
	case "ply":
		return Ply, nil
	case "raw":
		return Raw, nil
	default:
		return Unknown, ErrUnknownCodec
	}
}

// Codec encodes a PointCloudData into an untagged byte body and
// decodes it back; EncodeFrame and DecodeFrame add and strip the
// 3-byte tag. DecodeFrame does not propagate Decode errors: per spec
// §7 they surface as a frame with ErrorCount > 0.
type Codec interface {
	Kind() Kind
	Encode(pc pointcloud.PointCloudData) ([]byte, error)
	Decode(payload []byte) (pointcloud.PointCloudData, error)
}

// registry is the process-wide codec table. Per spec §9 ("Global
// mutable state ... represent as process-wide initialized-once
// values"), it is populated once in init and never mutated afterward.
var registry = map[Kind]Codec{}

func register(c Codec) {
	if _, exists := registry[c.Kind()]; exists {
		panic(fmt.Sprintf("codec: double registration for %s", c.Kind()))
	}
	registry[c.Kind()] = c
}

func init() {
	register(rawCodec{})
	register(plyCodec{})
	register(dracoCodec{})
}

// Lookup returns the registered Codec for kind, or false if none is
// registered.
func Lookup(kind Kind) (Codec, bool) {
	c, ok := registry[kind]
	return c, ok
}

// DecodeFrame decodes an encoded FrameTaskData payload into a
// PointCloudData, dispatching on its tag. Any failure (unknown tag,
// malformed body) produces an empty cloud with ErrorCount=1 rather
// than an error return, matching the DecodeError taxonomy in spec §7.
func DecodeFrame(data []byte) pointcloud.PointCloudData {
	kind, err := KindFromTag(data)
	if err != nil {
		return pointcloud.PointCloudData{ErrorCount: 1}
	}
	c, ok := Lookup(kind)
	if !ok {
		return pointcloud.PointCloudData{ErrorCount: 1}
	}
	pc, err := c.Decode(data[3:])
	if err != nil {
		return pointcloud.PointCloudData{ErrorCount: 1}
	}
	return pc
}

// EncodeFrame encodes pc with the given codec and prefixes the result
// with its 3-byte tag.
func EncodeFrame(kind Kind, pc pointcloud.PointCloudData) ([]byte, error) {
	c, ok := Lookup(kind)
	if !ok {
		return nil, ErrUnknownCodec
	}
	body, err := c.Encode(pc)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", kind, err)
	}
	tag := kind.Tag()
	out := make([]byte, 0, 3+len(body))
	out = append(out, tag[:]...)
	out = append(out, body...)
	return out, nil
}
