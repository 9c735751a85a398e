// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

// Package egress implements the shared two-stage server egress
// pipeline (spec §4.5, component C5) and its transport-specific
// instances (C6): a generator loop that samples the aggregator at
// target FPS and encodes via the codec registry, a bounded ring
// buffer, and a transmission loop that paces delivery with the two
// drop policies from spec §4.5. Grounded on
// original_source/Server/src/egress/egress_common.rs.
package egress

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Dash-Industry-Forum/pointcloud-live/internal/aggregator"
	"github.com/Dash-Industry-Forum/pointcloud-live/pkg/codec"
	"github.com/Dash-Industry-Forum/pointcloud-live/pkg/pointcloud"
	"github.com/prometheus/client_golang/prometheus"
)

// ringCapacity is the hard-coded per-egress ring buffer depth (spec §4.5).
const ringCapacity = 10

// Ring is the bounded FIFO of FrameTaskData shared by every egress's
// generator and transmission loop (spec §4.5 "Ring buffer").
type Ring struct {
	mu   sync.Mutex
	buf  []pointcloud.FrameTaskData
	drop prometheus.Counter
}

// NewRing constructs an empty ring buffer. drop may be nil.
func NewRing(drop prometheus.Counter) *Ring {
	return &Ring{drop: drop}
}

// Push appends frame, evicting the oldest entry and incrementing the
// frame_drops_full_egress_buffer counter if the ring is already at
// capacity.
func (r *Ring) Push(frame pointcloud.FrameTaskData) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.buf) >= ringCapacity {
		r.buf = r.buf[1:]
		if r.drop != nil {
			r.drop.Inc()
		}
	}
	r.buf = append(r.buf, frame)
}

// Len returns the number of frames currently buffered.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buf)
}

// PopFront removes and returns the oldest frame, or false if empty.
func (r *Ring) PopFront() (pointcloud.FrameTaskData, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.buf) == 0 {
		return pointcloud.FrameTaskData{}, false
	}
	f := r.buf[0]
	r.buf = r.buf[1:]
	return f, true
}

// PeekFront returns the oldest frame without removing it.
func (r *Ring) PeekFront() (pointcloud.FrameTaskData, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.buf) == 0 {
		return pointcloud.FrameTaskData{}, false
	}
	return r.buf[0], true
}

// DropFront removes the oldest frame without returning it.
func (r *Ring) DropFront() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.buf) > 0 {
		r.buf = r.buf[1:]
	}
}

// Metrics are the named gauges/counters shared across every egress
// instance (spec §4.5, grounded on EgressCommonMetrics in
// egress_common.rs).
type Metrics struct {
	PCCombinationTimeUS       prometheus.Gauge
	PCEncodingTimeUS          prometheus.Gauge
	BytesToSend               prometheus.Gauge
	NumberOfCombinedFrames    prometheus.Counter
	FrameDropsFullEgressBuf   prometheus.Counter
	TotalProcessingTimeUS     prometheus.Gauge
	EmissionTimeUS            prometheus.Gauge
	FrameDropsBeforeEmission  prometheus.Counter
	FramesToEmit              prometheus.Counter
}

// NewMetrics registers a name-scoped Metrics set on reg (nil disables
// registration, e.g. in tests).
func NewMetrics(reg prometheus.Registerer, egressName string) *Metrics {
	m := &Metrics{
		PCCombinationTimeUS:      prometheus.NewGauge(prometheus.GaugeOpts{Name: "pointcloud_" + egressName + "_pc_combination_time_us", Help: "Time to generate a combined point cloud."}),
		PCEncodingTimeUS:         prometheus.NewGauge(prometheus.GaugeOpts{Name: "pointcloud_" + egressName + "_pc_encoding_time_us", Help: "Time to encode a combined point cloud."}),
		BytesToSend:              prometheus.NewGauge(prometheus.GaugeOpts{Name: "pointcloud_" + egressName + "_bytes_to_send", Help: "Size in bytes of the most recently buffered frame."}),
		NumberOfCombinedFrames:   prometheus.NewCounter(prometheus.CounterOpts{Name: "pointcloud_" + egressName + "_combined_frames_total", Help: "Combined frames pushed to the egress buffer."}),
		FrameDropsFullEgressBuf:  prometheus.NewCounter(prometheus.CounterOpts{Name: "pointcloud_" + egressName + "_frame_drops_full_buffer_total", Help: "Frames dropped due to a full egress ring buffer."}),
		TotalProcessingTimeUS:    prometheus.NewGauge(prometheus.GaugeOpts{Name: "pointcloud_" + egressName + "_total_processing_time_us", Help: "Time from frame creation to the start of emission."}),
		EmissionTimeUS:           prometheus.NewGauge(prometheus.GaugeOpts{Name: "pointcloud_" + egressName + "_emission_time_us", Help: "Time spent inside the transport's emit call."}),
		FrameDropsBeforeEmission: prometheus.NewCounter(prometheus.CounterOpts{Name: "pointcloud_" + egressName + "_frame_drops_before_emission_total", Help: "Frames dropped by the transmission loop before emission."}),
		FramesToEmit:             prometheus.NewCounter(prometheus.CounterOpts{Name: "pointcloud_" + egressName + "_frames_to_emit_total", Help: "Frames selected for emission."}),
	}
	if reg != nil {
		reg.MustRegister(m.PCCombinationTimeUS, m.PCEncodingTimeUS, m.BytesToSend, m.NumberOfCombinedFrames,
			m.FrameDropsFullEgressBuf, m.TotalProcessingTimeUS, m.EmissionTimeUS, m.FrameDropsBeforeEmission, m.FramesToEmit)
	}
	return m
}

// Config holds the mutable per-egress tunables read by the generator
// loop on every tick (spec §4.5/§3 StreamSettings-adjacent knobs).
type Config struct {
	FPS               atomic.Uint32
	EncodingFormat    atomic.Value // codec.Kind
	MaxPoints         atomic.Uint64
	DisableFrameDrops atomic.Bool
}

// NewConfig returns a Config seeded with the given defaults.
func NewConfig(fps uint32, kind codec.Kind, maxPoints uint64) *Config {
	c := &Config{}
	c.FPS.Store(fps)
	c.EncodingFormat.Store(kind)
	c.MaxPoints.Store(maxPoints)
	return c
}

func (c *Config) encodingFormat() codec.Kind {
	if v, ok := c.EncodingFormat.Load().(codec.Kind); ok {
		return v
	}
	return codec.Raw
}

// EmitFunc sends one frame over the wire. It is called from the
// transmission loop goroutine.
type EmitFunc func(frame pointcloud.FrameTaskData)

// Common bundles the ring buffer, config, worker pool, and the
// generator/transmission loops shared by every transport egress (spec
// §4.5). Transport-specific egresses embed Common and implement the
// remaining Protocol methods (emit, bypass fast paths).
type Common struct {
	Name    string
	Ring    *Ring
	Cfg     *Config
	Metrics *Metrics
	Agg     *aggregator.Aggregator
	Log     *slog.Logger

	workers   chan struct{} // semaphore bounding the worker pool
	inQueue   atomic.Int32
	threadsOn atomic.Bool
}

// NewCommon constructs the shared egress machinery. workerCount bounds
// the CPU-bound encode worker pool (spec §5 "general-purpose
// fixed-size worker pool").
func NewCommon(name string, cfg *Config, agg *aggregator.Aggregator, metrics *Metrics, log *slog.Logger, workerCount int) *Common {
	if workerCount < 1 {
		workerCount = 1
	}
	return &Common{
		Name:    name,
		Ring:    NewRing(metrics.FrameDropsFullEgressBuf),
		Cfg:     cfg,
		Metrics: metrics,
		Agg:     agg,
		Log:     log,
		workers: make(chan struct{}, workerCount),
	}
}

// EnsureThreadsStarted launches the generator and transmission
// goroutines exactly once, matching the Protocol capability in
// spec §9.
func (c *Common) EnsureThreadsStarted(ctx context.Context, emit EmitFunc) {
	if !c.threadsOn.CompareAndSwap(false, true) {
		return
	}
	go c.generatorLoop(ctx)
	go c.transmissionLoop(ctx, emit)
}

// generatorLoop periodically generates a combined point cloud and
// dispatches it for encoding, per spec §4.5 "Generator loop".
func (c *Common) generatorLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		fps := c.Cfg.FPS.Load()
		if fps == 0 {
			fps = 1
		}
		frameDuration := time.Second / time.Duration(fps)
		start := time.Now()

		maxInFlight := int(500 * time.Millisecond / frameDuration)
		if cap(c.workers) < maxInFlight {
			maxInFlight = cap(c.workers)
		}
		if int(c.inQueue.Load()) > maxInFlight {
			c.Log.Warn("frame generation too slow, skipping tick", "egress", c.Name, "in_queue", c.inQueue.Load())
			sleepOrDone(ctx, frameDuration)
			continue
		}

		c.generateAndEncode()

		elapsed := time.Since(start)
		if elapsed < frameDuration {
			sleepOrDone(ctx, frameDuration-elapsed)
		} else {
			c.Log.Warn("processing time exceeded frame duration", "egress", c.Name, "over_by", elapsed-frameDuration)
		}
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// generateAndEncode samples the aggregator and dispatches the result
// to the worker pool for encoding.
func (c *Common) generateAndEncode() {
	c.inQueue.Add(1)
	start := time.Now()
	maxPoints := c.Cfg.MaxPoints.Load()
	pc := c.Agg.GenerateCombined(maxPoints)
	c.Metrics.PCCombinationTimeUS.Set(float64(time.Since(start).Microseconds()))

	if pc.Empty() {
		c.inQueue.Add(-1)
		return
	}

	c.workers <- struct{}{}
	go func() {
		defer func() { <-c.workers }()
		defer c.inQueue.Add(-1)
		c.encodeAndPush(pc)
	}()
}

func (c *Common) encodeAndPush(pc pointcloud.PointCloudData) {
	start := time.Now()
	data, err := codec.EncodeFrame(c.Cfg.encodingFormat(), pc)
	if err != nil {
		c.Log.Error("encode error", "egress", c.Name, "err", err)
		return
	}
	c.Metrics.PCEncodingTimeUS.Set(float64(time.Since(start).Microseconds()))

	frame := pointcloud.FrameTaskData{
		SendTimeUS:         uint64(time.Now().UnixMicro()),
		PresentationTimeUS: pc.PresentationTimeUS,
		Data:               data,
	}
	c.PushEncodedFrame(frame)
}

// PushEncodedFrame pushes a fully-formed frame into the ring buffer,
// updating byte/frame-count metrics (spec §4.5).
func (c *Common) PushEncodedFrame(frame pointcloud.FrameTaskData) {
	c.Metrics.BytesToSend.Set(float64(len(frame.Data)))
	c.Ring.Push(frame)
	c.Metrics.NumberOfCombinedFrames.Inc()
}

// transmissionLoop pops the oldest frame and emits it, applying the
// two drop policies from spec §4.5.
func (c *Common) transmissionLoop(ctx context.Context, emit EmitFunc) {
	var maxSendTime uint64
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		now := uint64(time.Now().UnixMicro())
		disableDrops := c.Cfg.DisableFrameDrops.Load()

		if !disableDrops {
			for {
				front, ok := c.Ring.PeekFront()
				if !ok || front.SendTimeUS > maxSendTime {
					break
				}
				c.Ring.DropFront()
				c.Metrics.FrameDropsBeforeEmission.Inc()
			}
		}

		front, ok := c.Ring.PeekFront()
		if !ok {
			sleepOrDone(ctx, 5*time.Millisecond)
			continue
		}

		if !disableDrops && front.PresentationTimeUS < now && c.Ring.Len() >= 2 {
			c.Ring.DropFront()
			c.Metrics.FrameDropsBeforeEmission.Inc()
			continue
		}

		frame, ok := c.Ring.PopFront()
		if !ok {
			continue
		}
		c.Metrics.FramesToEmit.Inc()
		maxSendTime = frame.SendTimeUS

		c.Metrics.TotalProcessingTimeUS.Set(float64(int64(now) - int64(frame.SendTimeUS)))
		emitStart := time.Now()
		frame.SendTimeUS = uint64(time.Now().UnixMicro())
		emit(frame)
		c.Metrics.EmissionTimeUS.Set(float64(time.Since(emitStart).Microseconds()))

		sleepOrDone(ctx, time.Millisecond)
	}
}

// Protocol is the dynamic-dispatch capability set every egress
// transport implements (spec §9).
type Protocol interface {
	EncodingFormat() codec.Kind
	MaxNumberOfPoints() uint64
	EnsureThreadsStarted(ctx context.Context)
	PushPointCloud(pc pointcloud.PointCloudData, streamID string)
	PushEncodedFrameBypass(rawData []byte, streamID string, creationTimeUS, presentationTimeUS uint64, ringBufferBypass bool, clientID *uint64, tileIndex *uint32)
	EmitFrameData(frame pointcloud.FrameTaskData)
	SetFPS(fps uint32)
	SetEncodingFormat(kind codec.Kind)
	SetMaxNumberOfPoints(n uint64)
}
