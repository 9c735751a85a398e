// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

// Package mpdmanager implements the Buffer Egress's circular
// per-stream segment store, lazy Representation/MPD registration, and
// the HTTP surface backing GET /dash/{group}.mpd, .../init.mp4 and
// .../{N}.m4s (spec §4.9, components C2/C3/C6). Grounded on
// original_source/Server/src/egress/buffer.rs.
package mpdmanager

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Dash-Industry-Forum/pointcloud-live/pkg/codec"
	"github.com/Dash-Industry-Forum/pointcloud-live/pkg/fmp4"
	"github.com/Dash-Industry-Forum/pointcloud-live/pkg/mpdgen"
)

// ringCapacity is the per-stream segment history depth (spec §4.9).
const ringCapacity = 60

// segment is one stored media segment.
type segment struct {
	index uint64
	data  []byte
}

// streamState holds everything the manager tracks for one stream_id:
// its segment ring, its fMP4 track config, and the group and
// Representation ids it is registered under in the MPD.
type streamState struct {
	mu        sync.Mutex
	segments  []segment
	nextIndex uint64
	track     fmp4.TrackConfig
	groupID   string
	repID     string
}

// pushResult is returned by push so callers can detect a
// stream's first-ever push (and thus whether MPD registration is
// needed).
type pushResult struct {
	firstPush bool
}

func (s *streamState) push(seg segment) pushResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	first := len(s.segments) == 0
	if len(s.segments) >= ringCapacity {
		s.segments = s.segments[1:]
	}
	s.segments = append(s.segments, seg)
	s.nextIndex = seg.index + 1
	return pushResult{firstPush: first}
}

func (s *streamState) lookup(index uint64) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, seg := range s.segments {
		if seg.index == index {
			return seg.data, true
		}
	}
	return nil, false
}

func (s *streamState) minIndex() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.segments) == 0 {
		return 0, false
	}
	return s.segments[0].index, true
}

// Manager owns every stream's segment ring and the MPD metadata for
// every group those streams belong to.
type Manager struct {
	mu       sync.RWMutex
	streams  map[string]*streamState
	mpds     map[string]*mpdgen.MpdMetadata // group_id -> metadata
	fps      uint32
}

// New constructs an empty Manager. fps sets the fMP4 timescale
// convention (timescale = fps*1000, spec §4.9).
func New(fps uint32) *Manager {
	return &Manager{
		streams: make(map[string]*streamState),
		mpds:    make(map[string]*mpdgen.MpdMetadata),
		fps:     fps,
	}
}

// groupOf derives a representation's group (AdaptationSet) id by
// grouping on the stream_id prefix before the last underscore (spec
// §4.9), e.g. "client_1_0" -> group "client_1".
func groupOf(streamID string) string {
	idx := strings.LastIndex(streamID, "_")
	if idx < 0 {
		return streamID
	}
	return streamID[:idx]
}

// PushFrame writes data as the next media segment for streamID,
// registering a new Representation (and its parent group's MPD) on
// the stream's first frame.
func (m *Manager) PushFrame(streamID string, data []byte, presentationTimeUS uint64) error {
	st := m.streamFor(streamID, data)

	timescale := uint64(st.track.Timescale)
	decodeTime := presentationTimeUS * timescale / 1_000

	seqNr := st.nextIndex
	segBytes, err := fmp4.WriteMediaSegment(uint32(seqNr), []fmp4.Sample{{
		DecodeTime: decodeTime,
		DurationTS: uint32(timescale) / m.fpsOrOne(),
		Data:       data,
	}})
	if err != nil {
		return fmt.Errorf("mpdmanager: write media segment: %w", err)
	}

	result := st.push(segment{index: seqNr, data: segBytes})
	if result.firstPush {
		m.registerRepresentation(st, uint64(len(data))*uint64(m.fpsOrOne())*8)
	}
	return nil
}

func (m *Manager) fpsOrOne() uint32 {
	if m.fps == 0 {
		return 1
	}
	return m.fps
}

func (m *Manager) streamFor(streamID string, data []byte) *streamState {
	m.mu.RLock()
	st, ok := m.streams[streamID]
	m.mu.RUnlock()
	if ok {
		return st
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.streams[streamID]; ok {
		return st
	}

	codecTag := "raw"
	if len(data) >= 3 {
		codecTag = string(data[:3])
	}
	timescale := m.fpsOrOne() * 1000
	group := groupOf(streamID)
	st = &streamState{
		track: fmp4.TrackConfig{
			TrackID:               1,
			Timescale:             timescale,
			DefaultSampleDuration: timescale / m.fpsOrOne(),
			Language:              "und",
			CodecFourCC:           codecTag + " ",
			CodecName:             "pointcloud-" + codecTag,
		},
		groupID: group,
		repID:   streamID,
	}
	m.streams[streamID] = st
	return st
}

// registerRepresentation adds st's stream as a new Representation of
// its group's AdaptationSet, creating the group's MPD metadata if this
// is the group's first stream.
func (m *Manager) registerRepresentation(st *streamState, bandwidthBPS uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	meta, ok := m.mpds[st.groupID]
	if !ok {
		meta = &mpdgen.MpdMetadata{
			AvailabilityStartTimeS: float64(time.Now().Unix()),
			TimeShiftBufferDepthS:  float64(ringCapacity) / float64(m.fpsOrOne()),
			MinimumUpdatePeriodS:   2,
		}
		m.mpds[st.groupID] = meta
	}

	seconds := 1.0 / float64(m.fpsOrOne())
	rep := mpdgen.Representation{
		ID:                st.repID,
		BandwidthBPS:      bandwidthBPS,
		InitializationURL: fmt.Sprintf("/dash/%s/init.mp4", st.repID),
		MediaURLTemplate:  fmt.Sprintf("/dash/%s/$Number$.m4s", st.repID),
		SegmentDurationS:  seconds,
		Timescale:         uint64(st.track.Timescale),
	}

	for i, as := range meta.AdaptationSets {
		if as.ContentType == "pointcloud" {
			meta.AdaptationSets[i].Representations = append(as.Representations, rep)
			return
		}
	}
	meta.AdaptationSets = append(meta.AdaptationSets, mpdgen.AdaptationSet{
		ContentType:     "pointcloud",
		MimeType:        "application/pointcloud",
		Representations: []mpdgen.Representation{rep},
	})
}

// ErrSegmentExpired indicates the requested segment index has already
// slid out of the 60-deep window (spec §4.9/§6, 404 at the HTTP
// layer).
type ErrSegmentExpired struct {
	StreamID string
	Index    uint64
}

func (e *ErrSegmentExpired) Error() string {
	return fmt.Sprintf("mpdmanager: segment %d for %s no longer available", e.Index, e.StreamID)
}

// MediaSegment returns the stored media segment bytes for streamID's
// index N, waiting up to waitFor for a not-yet-arrived index (spec
// §4.9 "500 ms wait for pending frames").
func (m *Manager) MediaSegment(streamID string, index uint64, waitFor time.Duration) ([]byte, error) {
	m.mu.RLock()
	st, ok := m.streams[streamID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("mpdmanager: unknown stream %s", streamID)
	}

	deadline := time.Now().Add(waitFor)
	for {
		if data, ok := st.lookup(index); ok {
			return data, nil
		}
		if minIdx, ok := st.minIndex(); ok && index < minIdx {
			return nil, &ErrSegmentExpired{StreamID: streamID, Index: index}
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("mpdmanager: segment %d for %s not available within %s", index, streamID, waitFor)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// InitSegment builds (on demand) the fMP4 init segment for streamID.
func (m *Manager) InitSegment(streamID string) ([]byte, error) {
	m.mu.RLock()
	st, ok := m.streams[streamID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("mpdmanager: unknown stream %s", streamID)
	}
	init, err := fmp4.NewInitSegment(st.track)
	if err != nil {
		return nil, err
	}
	return fmp4.EncodeInitSegment(init)
}

// MPD serializes the MPD XML for groupID.
func (m *Manager) MPD(groupID string) (string, error) {
	m.mu.RLock()
	meta, ok := m.mpds[groupID]
	m.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("mpdmanager: unknown group %s", groupID)
	}
	return mpdgen.Build(*meta)
}

// SniffCodec reports the codec kind tagged on an already-encoded
// payload, or codec.Unknown when the tag is not recognised.
func SniffCodec(data []byte) codec.Kind {
	kind, err := codec.KindFromTag(data)
	if err != nil {
		return codec.Unknown
	}
	return kind
}
