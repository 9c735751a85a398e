// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

// Package app wires the client-side point-cloud receiver: the bounded
// frame store and consumer driver (internal/receiver, component C9),
// one or more ingress transports feeding it (internal/ingress,
// component C8), and the DASH live-playback scheduler pulling segments
// from pcserver's Buffer Egress (pkg/dashplayer, component C10).
// Mirrors cmd/pcserver/app.SetupServer's wiring style from the
// opposite end of the same protocol.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Dash-Industry-Forum/pointcloud-live/internal/ingress"
	"github.com/Dash-Industry-Forum/pointcloud-live/internal/receiver"
	"github.com/Dash-Industry-Forum/pointcloud-live/pkg/pointcloud"
)

// trackingSink records every distinct streamID PushFrame is called
// with, giving the consumer Driver the streamIDs func it needs (spec
// §4.11) without requiring internal/receiver.Store itself to expose
// an enumeration of its keys.
type trackingSink struct {
	inner ingress.FrameSink

	mu   sync.Mutex
	seen map[string]struct{}
}

func newTrackingSink(inner ingress.FrameSink) *trackingSink {
	return &trackingSink{inner: inner, seen: make(map[string]struct{})}
}

func (t *trackingSink) PushFrame(streamID string, pc pointcloud.PointCloudData) {
	t.mu.Lock()
	t.seen[streamID] = struct{}{}
	t.mu.Unlock()
	t.inner.PushFrame(streamID, pc)
}

func (t *trackingSink) StreamIDs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]string, 0, len(t.seen))
	for id := range t.seen {
		ids = append(ids, id)
	}
	return ids
}

// Runner owns every subsystem one receiver process wires together.
type Runner struct {
	cfg   *ReceiverConfig
	log   *slog.Logger
	store *receiver.Store
	sink  *trackingSink

	ws     *wsClient
	wrtc   *webrtcClient
	flute  *ingress.FLUTE
	metSrv *http.Server
}

// NewRunner constructs a Runner from cfg. It does not start anything;
// call Run to begin consuming.
func NewRunner(cfg *ReceiverConfig, log *slog.Logger) *Runner {
	reg := prometheus.NewRegistry()
	store := receiver.New(receiver.NewMetrics(reg))
	return &Runner{
		cfg:   cfg,
		log:   log,
		store: store,
		sink:  newTrackingSink(receiverSink{store: store}),
	}
}

// Run starts every ingress transport named in cfg.Modes and the
// consumer Driver, blocking until ctx is canceled.
func (r *Runner) Run(ctx context.Context) error {
	modes := r.cfg.modeSet()

	if r.cfg.MetricsPort > 0 {
		r.startMetricsServer()
	}

	if modes["websocket"] {
		if err := r.startWebSocket(ctx); err != nil {
			return fmt.Errorf("pcreceiver: websocket ingress: %w", err)
		}
	}
	if modes["webrtc"] {
		if err := r.startWebRTC(ctx); err != nil {
			return fmt.Errorf("pcreceiver: webrtc ingress: %w", err)
		}
	}
	if modes["flute"] {
		if err := r.startFLUTE(); err != nil {
			return fmt.Errorf("pcreceiver: flute ingress: %w", err)
		}
	}
	if modes["dash"] {
		dr := newDashRunner(r.cfg.ServerURL, r.cfg.GroupID, r.cfg.TargetLatencyMS, r.sink, r.log.With("component", "dashplayer"))
		go dr.Run(ctx)
	}

	driver := receiver.NewDriver(r.store, r.sink.StreamIDs, r.consume)
	driver.Run(ctx)
	r.shutdown()
	return nil
}

// consume is the Driver's ConsumeFunc: it logs what was popped. A real
// downstream renderer would replace this with whatever consumes
// FrameTaskData next (spec §4.11 names the driver's output contract,
// not a specific sink).
func (r *Runner) consume(streamID string, frame pointcloud.FrameTaskData) {
	r.log.Debug("consumed frame", "stream_id", streamID, "bytes", len(frame.Data), "presentation_time_us", frame.PresentationTimeUS)
}

// startWebSocket dials with a nil signalRelay; startWebRTC backfills
// r.ws.signal once the PeerConnection exists, since WebRTC negotiation
// rides the same WebSocket connection (spec §6).
func (r *Runner) startWebSocket(ctx context.Context) error {
	ws, err := dialWebSocket(r.cfg.ServerURL, r.cfg.GroupID, r.sink, nil, r.log.With("component", "websocket"))
	if err != nil {
		return err
	}
	r.ws = ws
	go ws.Run(ctx)
	return nil
}

func (r *Runner) startWebRTC(ctx context.Context) error {
	client, err := newWebRTCClient(r.cfg.GroupID, r.sink, r.log.With("component", "webrtc"))
	if err != nil {
		return err
	}
	r.wrtc = client

	if r.ws == nil {
		if err := r.startWebSocket(ctx); err != nil {
			return err
		}
	}
	r.ws.signal = client

	sdp, err := client.Offer()
	if err != nil {
		return err
	}
	return r.ws.Send("webrtc_offer", map[string]any{
		"sdp":      sdp,
		"clientId": r.cfg.GroupID,
		"streams":  []string{r.cfg.GroupID},
	})
}

func (r *Runner) startFLUTE() error {
	f, err := startFLUTE(r.cfg.FluteListenAddr, r.cfg.FluteStreamID, r.sink, r.log.With("component", "flute"))
	if err != nil {
		return err
	}
	r.flute = f
	return nil
}

func (r *Runner) startMetricsServer() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", r.cfg.MetricsPort), Handler: mux}
	r.metSrv = srv
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.log.Warn("metrics server failed", "err", err)
		}
	}()
}

func (r *Runner) shutdown() {
	if r.flute != nil {
		_ = r.flute.Close()
	}
	if r.wrtc != nil {
		_ = r.wrtc.Close()
	}
	if r.metSrv != nil {
		_ = r.metSrv.Close()
	}
}
