// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

// Package aggregator implements the server-side time-ordering buffer
// per source stream and the on-demand merged-cloud generator (spec
// §4.3/§4.4, component C4), grounded on
// original_source/Server/src/processing/aggregator.rs.
package aggregator

import (
	"math"
	"sync"
	"time"

	"github.com/Dash-Industry-Forum/pointcloud-live/internal/streamsettings"
	"github.com/Dash-Industry-Forum/pointcloud-live/pkg/pointcloud"
	"github.com/prometheus/client_golang/prometheus"
)

// bufferCapacity is the hard-coded per-stream buffer depth (spec §3,
// §9 open question: not derived from fps).
const bufferCapacity = 10

// defaultMaxAgeUS is the default staleness threshold applied when
// popping fronts in GenerateCombined (spec §4.3).
const defaultMaxAgeUS = 5_000_000

// SettingsSource looks up a stream's transform/bypass settings. It is
// satisfied by *streamsettings.Registry; declared as an interface here
// to avoid importing streammanager and creating an import cycle.
type SettingsSource interface {
	Get(streamID string) streamsettings.Settings
}

// Metrics are the named Prometheus gauges the aggregator increments,
// mirroring original_source's dropped_after_insertion /
// dropped_because_late_insertion / dropped_old_age gauges.
type Metrics struct {
	DroppedAfterInsertion       prometheus.Counter
	DroppedBecauseLateInsertion prometheus.Counter
	DroppedOldAge               prometheus.Counter
}

// NewMetrics registers the aggregator's counters on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DroppedAfterInsertion: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pointcloud_aggregator_dropped_after_insertion_total",
			Help: "Point clouds dropped before a newer point cloud was inserted.",
		}),
		DroppedBecauseLateInsertion: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pointcloud_aggregator_dropped_late_insertion_total",
			Help: "Point clouds dropped because they were older than the oldest buffered frame.",
		}),
		DroppedOldAge: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pointcloud_aggregator_dropped_old_age_total",
			Help: "Point clouds dropped because they exceeded max_age_us.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.DroppedAfterInsertion, m.DroppedBecauseLateInsertion, m.DroppedOldAge)
	}
	return m
}

// Aggregator time-orders the most recent frames per source stream and
// produces a single merged cloud on demand (spec §4.3, component C4).
type Aggregator struct {
	mu       sync.Mutex
	buffers  map[string][]pointcloud.PointCloudData
	hasUpdate bool
	maxAgeUS int64

	settings SettingsSource
	metrics  *Metrics
}

// New constructs an Aggregator. settings resolves per-stream transform
// and bypass configuration; metrics may be nil to disable counters.
func New(settings SettingsSource, metrics *Metrics) *Aggregator {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Aggregator{
		buffers:  make(map[string][]pointcloud.PointCloudData),
		maxAgeUS: defaultMaxAgeUS,
		settings: settings,
		metrics:  metrics,
	}
}

// Update inserts pc into streamID's buffer per the ordering rules in
// spec §4.3. An empty pc drops the stream's buffer entirely.
func (a *Aggregator) Update(streamID string, pc pointcloud.PointCloudData) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if pc.Empty() {
		delete(a.buffers, streamID)
		return
	}

	buf, ok := a.buffers[streamID]
	if !ok || len(buf) == 0 {
		a.buffers[streamID] = append(buf, pc)
		a.hasUpdate = true
		return
	}

	newest := buf[len(buf)-1].PresentationTimeUS
	oldest := buf[0].PresentationTimeUS
	newTime := pc.PresentationTimeUS

	switch {
	case newTime >= newest:
		if len(buf) >= bufferCapacity {
			buf = buf[1:]
			a.metrics.DroppedAfterInsertion.Inc()
		}
		a.buffers[streamID] = append(buf, pc)
		a.hasUpdate = true

	case newTime <= oldest:
		if len(buf) >= bufferCapacity {
			a.metrics.DroppedBecauseLateInsertion.Inc()
			return
		}
		a.buffers[streamID] = append([]pointcloud.PointCloudData{pc}, buf...)
		a.hasUpdate = true

	default:
		insertPos := len(buf)
		for i, f := range buf {
			if newTime < f.PresentationTimeUS {
				insertPos = i
				break
			}
		}
		out := make([]pointcloud.PointCloudData, 0, len(buf)+1)
		out = append(out, buf[:insertPos]...)
		out = append(out, pc)
		out = append(out, buf[insertPos:]...)
		if len(out) > bufferCapacity {
			out = out[1:]
			a.metrics.DroppedAfterInsertion.Inc()
		}
		a.buffers[streamID] = out
		a.hasUpdate = true
	}
}

// GenerateCombined pops the oldest (front) frame of every stream whose
// front is not older than maxAgeUS, applies each stream's affine
// transform, concatenates into one cloud, and exact-samples down to
// maxPoints if needed (spec §4.3/§4.4). If there has been no update
// since the prior call, it returns an empty cloud with ErrorCount=1.
func (a *Aggregator) GenerateCombined(maxPoints uint64) pointcloud.PointCloudData {
	now := uint64(time.Now().UnixMicro())

	a.mu.Lock()

	if len(a.buffers) == 0 || !a.hasUpdate {
		a.mu.Unlock()
		return pointcloud.PointCloudData{CreationTimeUS: now, PresentationTimeUS: now, ErrorCount: 1}
	}

	var (
		maxPresentationTime uint64
		latestCreationTime  uint64
		errorCount          int
		combined            []pointcloud.Point3D
		toRemove            []string
		moreBuffered        bool
	)

	for streamID, buf := range a.buffers {
		if len(buf) == 0 {
			toRemove = append(toRemove, streamID)
			continue
		}
		front := buf[0]
		if front.Empty() {
			toRemove = append(toRemove, streamID)
			continue
		}

		overtime := int64(now) - int64(front.PresentationTimeUS)
		if overtime > a.maxAgeUS {
			buf = buf[1:]
			a.buffers[streamID] = buf
			if len(buf) == 0 {
				toRemove = append(toRemove, streamID)
			}
			a.metrics.DroppedOldAge.Inc()
			continue
		}

		buf = buf[1:]
		a.buffers[streamID] = buf
		if len(buf) > 0 {
			moreBuffered = true
		}

		if front.PresentationTimeUS > maxPresentationTime {
			maxPresentationTime = front.PresentationTimeUS
		}
		if front.CreationTimeUS > latestCreationTime {
			latestCreationTime = front.CreationTimeUS
		}

		settings := a.settings.Get(streamID)
		if settings.IdentityTransform() {
			combined = append(combined, front.Points...)
		} else {
			combined = append(combined, transformPoints(front.Points, settings)...)
		}
		errorCount += front.ErrorCount
	}

	for _, streamID := range toRemove {
		delete(a.buffers, streamID)
	}
	if !moreBuffered {
		a.hasUpdate = false
	}
	a.mu.Unlock()

	if uint64(len(combined)) > maxPoints {
		combined = ExactRandomSampling(combined, int(maxPoints))
	}

	creationTime := latestCreationTime
	if creationTime == 0 {
		creationTime = now
	}
	return pointcloud.PointCloudData{
		Points:             combined,
		CreationTimeUS:     creationTime,
		PresentationTimeUS: maxPresentationTime,
		ErrorCount:         errorCount,
	}
}

// transformPoints applies p' = R(rotation)*(p*scale) + translation to
// every point, per spec §4.3. Rotation is intrinsic XYZ Euler angles
// in radians, matching the original's nalgebra::Rotation3::from_euler_angles.
func transformPoints(points []pointcloud.Point3D, s streamsettings.Settings) []pointcloud.Point3D {
	rx, ry, rz := float64(s.Rotation[0]), float64(s.Rotation[1]), float64(s.Rotation[2])
	sx, sy, sz := s.Scale[0], s.Scale[1], s.Scale[2]
	tx, ty, tz := s.Position[0], s.Position[1], s.Position[2]

	sxr, cxr := math.Sincos(rx)
	syr, cyr := math.Sincos(ry)
	szr, czr := math.Sincos(rz)

	// R = Rz * Ry * Rx (intrinsic XYZ convention).
	r00 := czr * cyr
	r01 := czr*syr*sxr - szr*cxr
	r02 := czr*syr*cxr + szr*sxr
	r10 := szr * cyr
	r11 := szr*syr*sxr + czr*cxr
	r12 := szr*syr*cxr - czr*sxr
	r20 := -syr
	r21 := cyr * sxr
	r22 := cyr * cxr

	out := make([]pointcloud.Point3D, len(points))
	for i, p := range points {
		px, py, pz := float64(p.X*sx), float64(p.Y*sy), float64(p.Z*sz)
		out[i] = pointcloud.Point3D{
			X: float32(r00*px+r01*py+r02*pz) + tx,
			Y: float32(r10*px+r11*py+r12*pz) + ty,
			Z: float32(r20*px+r21*py+r22*pz) + tz,
			R: p.R,
			G: p.G,
			B: p.B,
		}
	}
	return out
}
