// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

// Package receiver implements the client-side frame store: a bounded
// per-stream ring plus time-nearest consumption (spec §4.11, component
// C9), grounded on original_source/Client/receiver/src/storage/mod.rs.
package receiver

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Dash-Industry-Forum/pointcloud-live/pkg/codec"
	"github.com/Dash-Industry-Forum/pointcloud-live/pkg/pointcloud"
)

// ringCapacity is the bounded per-stream frame depth (spec §4.11).
const ringCapacity = 30

// staleAgeUS is the "too old to matter" horizon popped by consumeFrame
// when the buffer holds more than two entries (spec §4.11).
const staleAgeUS = 5_000_000

// Metrics are the named gauges the receiver updates on every consume.
type Metrics struct {
	SendToConsumeUS    prometheus.Gauge
	ReceiveToConsumeUS prometheus.Gauge
	PointCount         prometheus.Gauge
	SkipsPerConsume    prometheus.Gauge
	TotalPointCount    prometheus.Gauge
}

// NewMetrics registers the receiver's gauges on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SendToConsumeUS:    prometheus.NewGauge(prometheus.GaugeOpts{Name: "pointcloud_receiver_send_to_consume_us", Help: "Time from send to consume."}),
		ReceiveToConsumeUS: prometheus.NewGauge(prometheus.GaugeOpts{Name: "pointcloud_receiver_receive_to_consume_us", Help: "Time from local receipt to consume."}),
		PointCount:         prometheus.NewGauge(prometheus.GaugeOpts{Name: "pointcloud_receiver_point_count", Help: "Points in the most recently consumed frame."}),
		SkipsPerConsume:    prometheus.NewGauge(prometheus.GaugeOpts{Name: "pointcloud_receiver_skips_per_consume", Help: "Frames skipped to reach the time-nearest entry."}),
		TotalPointCount:    prometheus.NewGauge(prometheus.GaugeOpts{Name: "pointcloud_receiver_total_point_count", Help: "Sum of every stream's last-consumed point count."}),
	}
	if reg != nil {
		reg.MustRegister(m.SendToConsumeUS, m.ReceiveToConsumeUS, m.PointCount, m.SkipsPerConsume, m.TotalPointCount)
	}
	return m
}

// entry is one buffered frame plus the local receipt time used to
// compute receive_to_consume.
type entry struct {
	frame      pointcloud.FrameTaskData
	receivedAt uint64 // local receipt time, microseconds since epoch
}

// streamBuffer is one stream_id's bounded ring.
type streamBuffer struct {
	mu      sync.Mutex
	entries []entry
}

// Store holds one ring per inbound stream_id and the last-consumed
// point count per stream for a running aggregate total (spec §4.11,
// §5 "last_consumed_point_counts: read-write lock").
type Store struct {
	mu              sync.RWMutex
	streams         map[string]*streamBuffer
	lastPointCounts map[string]int
	metrics         *Metrics
}

// New constructs an empty Store. metrics may be nil.
func New(metrics *Metrics) *Store {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Store{
		streams:         make(map[string]*streamBuffer),
		lastPointCounts: make(map[string]int),
		metrics:         metrics,
	}
}

func (s *Store) bufferFor(streamID string) *streamBuffer {
	s.mu.RLock()
	b, ok := s.streams[streamID]
	s.mu.RUnlock()
	if ok {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.streams[streamID]; ok {
		return b
	}
	b = &streamBuffer{}
	s.streams[streamID] = b
	return b
}

// InsertFrame pushes frame into streamID's ring. A zero
// PresentationTimeUS (the sentinel for "no in-band clock") is
// overridden with the current wall-clock time (spec §4.11).
func (s *Store) InsertFrame(streamID string, frame pointcloud.FrameTaskData) {
	now := uint64(time.Now().UnixMicro())
	if frame.PresentationTimeUS == 0 {
		frame.PresentationTimeUS = now
	}

	b := s.bufferFor(streamID)
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.entries) >= ringCapacity {
		b.entries = b.entries[1:]
	}
	b.entries = append(b.entries, entry{frame: frame, receivedAt: now})
}

// ConsumeFrame implements the three-step pop described in spec §4.11:
// drop entries older than 5s when the buffer has more than two
// entries, skip forward to the presentation-time-nearest entry, then
// pop and return it.
func (s *Store) ConsumeFrame(streamID string) (pointcloud.FrameTaskData, bool) {
	b := s.bufferFor(streamID)

	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.entries) == 0 {
		return pointcloud.FrameTaskData{}, false
	}

	now := uint64(time.Now().UnixMicro())

	if len(b.entries) > 2 {
		kept := b.entries[:0]
		for _, e := range b.entries {
			if int64(now)-int64(e.frame.PresentationTimeUS) >= staleAgeUS {
				continue
			}
			kept = append(kept, e)
		}
		b.entries = kept
	}
	if len(b.entries) == 0 {
		return pointcloud.FrameTaskData{}, false
	}

	nearestIdx := 0
	nearestDiff := absDiff(now, b.entries[0].frame.PresentationTimeUS)
	for i, e := range b.entries {
		d := absDiff(now, e.frame.PresentationTimeUS)
		if d < nearestDiff {
			nearestIdx = i
			nearestDiff = d
		}
	}

	skips := nearestIdx
	chosen := b.entries[nearestIdx]
	b.entries = b.entries[nearestIdx+1:]

	s.recordMetrics(streamID, chosen, now, skips)
	return chosen.frame, true
}

func absDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}

func (s *Store) recordMetrics(streamID string, e entry, now uint64, skips int) {
	pointCount := len(codec.DecodeFrame(e.frame.Data).Points)

	s.metrics.SendToConsumeUS.Set(float64(int64(now) - int64(e.frame.SendTimeUS)))
	s.metrics.ReceiveToConsumeUS.Set(float64(int64(now) - int64(e.receivedAt)))
	s.metrics.PointCount.Set(float64(pointCount))
	s.metrics.SkipsPerConsume.Set(float64(skips))

	s.mu.Lock()
	s.lastPointCounts[streamID] = pointCount
	s.mu.Unlock()

	s.metrics.TotalPointCount.Set(float64(s.TotalAggregatePointCount()))
}

// TotalAggregatePointCount sums every stream's last-consumed point
// count, for a running cross-stream total (spec §4.11 "the per-stream
// last-point-count for a total aggregate"); recordMetrics republishes
// it as TotalPointCount on every consume.
func (s *Store) TotalAggregatePointCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, n := range s.lastPointCounts {
		total += n
	}
	return total
}

// BufferedCount reports how many frames are currently buffered for
// streamID, used by the consumer driver's backlog-based pacing (spec
// §4.11 "Consumer driver").
func (s *Store) BufferedCount(streamID string) int {
	b := s.bufferFor(streamID)
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// DropAllButNewest discards every buffered entry except the most
// recently inserted one, used when frames_in_buffer > 10 (spec §4.11).
func (s *Store) DropAllButNewest(streamID string) {
	b := s.bufferFor(streamID)
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.entries) > 1 {
		b.entries = b.entries[len(b.entries)-1:]
	}
}
