// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

// Package pointcloud defines the shared frame-plane types that flow
// between ingress decoders, the aggregator, the codec registry, and
// every egress/ingress transport.
package pointcloud

import "strconv"

// Point3D is an immutable geometric position plus color.
type Point3D struct {
	X, Y, Z float32
	R, G, B uint8
}

// PointCloudData is an unordered sequence of points produced by an
// ingress decoder and consumed by the aggregator/encoder pipeline.
//
// Invariant: PresentationTimeUS >= CreationTimeUS, except when a
// stream's PresentationTimeOffsetUS sentinel of 0 explicitly overrides
// that (see internal/streamsettings).
type PointCloudData struct {
	Points            []Point3D
	CreationTimeUS    uint64
	PresentationTimeUS uint64
	ErrorCount        int
}

// Empty reports whether the cloud carries no points.
func (pc PointCloudData) Empty() bool {
	return len(pc.Points) == 0
}

// FrameTaskData is the transport-ready unit flowing through every
// egress/ingress transport. Data is the encoded codec payload (its
// first 3 ASCII bytes identify the codec, see pkg/codec).
type FrameTaskData struct {
	SendTimeUS         uint64
	PresentationTimeUS uint64
	Data               []byte
	SFUClientID        *uint64
	SFUTileIndex       *uint32
	SFUFrameLen        *uint32
}

// Equal compares all fields except SendTimeUS, matching the spec's
// definition that send_time is metrics-only and not part of identity.
func (f FrameTaskData) Equal(o FrameTaskData) bool {
	if f.PresentationTimeUS != o.PresentationTimeUS {
		return false
	}
	if len(f.Data) != len(o.Data) {
		return false
	}
	for i := range f.Data {
		if f.Data[i] != o.Data[i] {
			return false
		}
	}
	if !equalPtrUint64(f.SFUClientID, o.SFUClientID) {
		return false
	}
	if !equalPtrUint32(f.SFUTileIndex, o.SFUTileIndex) {
		return false
	}
	if !equalPtrUint32(f.SFUFrameLen, o.SFUFrameLen) {
		return false
	}
	return true
}

// Less orders by PresentationTimeUS then SendTimeUS, matching the
// spec's ordering rule for FrameTaskData.
func (f FrameTaskData) Less(o FrameTaskData) bool {
	if f.PresentationTimeUS != o.PresentationTimeUS {
		return f.PresentationTimeUS < o.PresentationTimeUS
	}
	return f.SendTimeUS < o.SendTimeUS
}

func equalPtrUint64(a, b *uint64) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}

func equalPtrUint32(a, b *uint32) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}

// StreamID formats the SFU client/tile addressing convention used
// throughout the pipeline ("client_{id}_{tile}").
func StreamID(clientID uint64, tileIndex uint32) string {
	return "client_" + strconv.FormatUint(clientID, 10) + "_" + strconv.FormatUint(uint64(tileIndex), 10)
}
