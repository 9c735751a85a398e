// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

// Package fmp4 writes and reads the fragmented-MP4 representation of a
// point-cloud stream used by the DASH archival/egress path. It is a
// thin wrapper around github.com/Eyevinn/mp4ff: every box is built and
// walked with mp4ff's own types, this package only supplies the
// point-cloud-specific framing around them.
package fmp4

import (
	"fmt"

	"github.com/Eyevinn/mp4ff/bits"
	"github.com/Eyevinn/mp4ff/mp4"
)

// TrackConfig describes the single timed track carried by a point-cloud
// CMAF stream, matching spec §4.1's Mp4StreamConfig.
type TrackConfig struct {
	TrackID               uint32
	Timescale             uint32
	DefaultSampleDuration uint32
	Language              string
	// CodecFourCC is the four-byte ISO-BMFF sample-entry type, the
	// encoded frame's 3-byte codec tag plus a trailing space (spec
	// §4.9 "codec_fourcc from the encoded data's first 3 bytes +
	// space"), e.g. "raw ", "dra ", "ply ".
	CodecFourCC string
	// CodecName is surfaced as the sample entry's compressor name.
	CodecName    string
	Width        uint32
	Height       uint32
	BandwidthBPS uint32
}

// NewInitSegment builds a CMAF init segment for a point-cloud track:
// ftyp || moov(mvhd, trak(tkhd, mdia(mdhd, hdlr, minf(vmhd, dinf,
// stbl(stsd with one VisualSampleEntry)))), mvex(trex)) per spec
// §4.1. The point cloud codec has no AVC/HEVC-style decoder config
// box, so the VisualSampleEntry carries no extra child beyond an
// optional btrt (bitrate) box.
func NewInitSegment(cfg TrackConfig) (*mp4.InitSegment, error) {
	if len(cfg.CodecFourCC) != 4 {
		return nil, fmt.Errorf("fmp4: codec fourcc %q must be exactly 4 bytes", cfg.CodecFourCC)
	}

	trackID := cfg.TrackID
	if trackID == 0 {
		trackID = 1
	}
	width, height := cfg.Width, cfg.Height
	if width == 0 {
		width = 1
	}
	if height == 0 {
		height = 1
	}

	init := mp4.CreateEmptyInit()
	// AddEmptyTrack's "video" sample-entry kind wires vmhd/dinf/stbl
	// with an empty stsd, leaving the sample entry itself for us to
	// attach below (mirrors the teacher's cmaf-ingest-receiver AVC
	// track construction, which does the same for "avc1"/"hvc1").
	if err := init.AddEmptyTrack(cfg.Timescale, "video", cfg.Language); err != nil {
		return nil, fmt.Errorf("fmp4: add track: %w", err)
	}

	trak := init.Moov.Trak
	trak.Tkhd.TrackID = trackID
	if init.Moov.Mvex != nil && init.Moov.Mvex.Trex != nil {
		init.Moov.Mvex.Trex.TrackID = trackID
		if cfg.DefaultSampleDuration > 0 {
			init.Moov.Mvex.Trex.DefaultSampleDuration = cfg.DefaultSampleDuration
		}
	}

	vse := mp4.CreateVisualSampleEntryBox(cfg.CodecFourCC, uint16(width), uint16(height), nil)
	if cfg.CodecName != "" {
		vse.CompressorName = cfg.CodecName
	}
	if cfg.BandwidthBPS > 0 {
		vse.AddChild(&mp4.BtrtBox{BufferSizeDB: 0, MaxBitrate: cfg.BandwidthBPS, AvgBitrate: cfg.BandwidthBPS})
	}
	trak.Mdia.Minf.Stbl.Stsd.AddChild(vse)

	return init, nil
}

// EncodeInitSegment serializes an init segment to bytes.
func EncodeInitSegment(init *mp4.InitSegment) ([]byte, error) {
	sw := bits.NewFixedSliceWriter(int(init.Size()))
	if err := init.EncodeSW(sw); err != nil {
		return nil, fmt.Errorf("fmp4: encode init: %w", err)
	}
	return sw.Bytes(), nil
}

// Sample is one frame-task payload to place in a media segment.
type Sample struct {
	DecodeTime uint64
	DurationTS uint32
	Data       []byte
}

// WriteMediaSegment builds a single-fragment CMAF media segment
// carrying samples, sequence number seqNr. Each sample becomes one
// mp4 "full sample" with the opaque codec-tagged payload as its body;
// mp4ff computes the trun data offsets and mdat placement.
func WriteMediaSegment(seqNr uint32, samples []Sample) ([]byte, error) {
	seg := mp4.NewMediaSegment()
	frag, err := mp4.CreateFragment(seqNr, 1)
	if err != nil {
		return nil, fmt.Errorf("fmp4: create fragment: %w", err)
	}
	seg.AddFragment(frag)
	if len(samples) > 0 {
		frag.Moof.Traf.Tfdt.SetBaseMediaDecodeTime(samples[0].DecodeTime)
	}
	for _, s := range samples {
		frag.AddFullSample(mp4.FullSample{
			Sample: mp4.Sample{
				Flags: mp4.SyncSampleFlags,
				Dur:   s.DurationTS,
				Size:  uint32(len(s.Data)),
			},
			DecodeTime: s.DecodeTime,
			Data:       s.Data,
		})
	}
	sw := bits.NewFixedSliceWriter(int(seg.Size()))
	if err := seg.EncodeSW(sw); err != nil {
		return nil, fmt.Errorf("fmp4: encode segment: %w", err)
	}
	return sw.Bytes(), nil
}

// ExtractSamples decodes a previously written media segment and
// returns the raw sample payloads in presentation order, alongside
// their decode times on the track timescale.
func ExtractSamples(data []byte) ([]Sample, error) {
	sr := bits.NewFixedSliceReader(data)
	segFile, err := mp4.DecodeFileSR(sr)
	if err != nil {
		return nil, fmt.Errorf("fmp4: decode: %w", err)
	}
	if len(segFile.Segments) != 1 {
		return nil, fmt.Errorf("fmp4: expected 1 segment, got %d", len(segFile.Segments))
	}
	seg := segFile.Segments[0]
	var out []Sample
	for _, frag := range seg.Fragments {
		fullSamples, err := frag.GetFullSamples(nil)
		if err != nil {
			return nil, fmt.Errorf("fmp4: get samples: %w", err)
		}
		for _, fs := range fullSamples {
			out = append(out, Sample{
				DecodeTime: fs.DecodeTime,
				DurationTS: fs.Dur,
				Data:       fs.Data,
			})
		}
	}
	return out, nil
}
