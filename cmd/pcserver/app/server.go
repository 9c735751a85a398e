// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package app

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Dash-Industry-Forum/pointcloud-live/internal/aggregator"
	"github.com/Dash-Industry-Forum/pointcloud-live/internal/egress"
	"github.com/Dash-Industry-Forum/pointcloud-live/internal/mpdmanager"
	"github.com/Dash-Industry-Forum/pointcloud-live/internal/streammanager"
	"github.com/Dash-Industry-Forum/pointcloud-live/internal/streamsettings"
	"github.com/Dash-Industry-Forum/pointcloud-live/internal/webrtcsession"
	"github.com/Dash-Industry-Forum/pointcloud-live/internal/wsbus"
	"github.com/Dash-Industry-Forum/pointcloud-live/pkg/codec"
	"github.com/Dash-Industry-Forum/pointcloud-live/pkg/flute"
	"github.com/Dash-Industry-Forum/pointcloud-live/pkg/logging"
)

// Server bundles the HTTP router with every subsystem it dispatches
// into: the stream manager registry, the merged-cloud aggregator, the
// WebSocket hub, and the MPD/segment store (spec §3/§9).
type Server struct {
	Router *chi.Mux
	Cfg    *ServerConfig

	streams    *streammanager.Manager
	aggregator *aggregator.Aggregator
	hub        *wsbus.Hub
	mpd        *mpdmanager.Manager
	webrtc     *webrtcsession.Manager
	reqLimiter *IPRequestLimiter
	metrics    *httpMetrics
	log        *slog.Logger
}

// SetupServer wires the router, middleware, stream manager, egress
// singletons, and ingress decoders from cfg.
func SetupServer(ctx context.Context, cfg *ServerConfig) (*Server, error) {
	log := slog.Default()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(logging.SlogMiddleWare(log))
	r.Use(middleware.Recoverer)
	metrics := newHTTPMetrics()
	r.Use(metrics.handler)
	r.Use(addCORSHeaders)
	if cfg.TimeoutS > 0 {
		r.Use(middleware.Timeout(time.Duration(cfg.TimeoutS) * time.Second))
	}

	var reqLimiter *IPRequestLimiter
	if cfg.MaxRequests > 0 {
		var err error
		reqLimiter, err = NewIPRequestLimiter(cfg.MaxRequests, time.Duration(cfg.ReqLimitInt)*time.Second,
			time.Now(), "", cfg.ReqLimitLog)
		if err != nil {
			return nil, fmt.Errorf("newIPRequestLimiter: %w", err)
		}
		r.Use(NewLimiterMiddleware("PCServer-Requests", reqLimiter))
	}

	streams := streammanager.New()
	agg := aggregator.New(streams.Settings(), aggregator.NewMetrics(prometheus.DefaultRegisterer))
	hub := wsbus.New(log)
	mpd := mpdmanager.New(cfg.FPS)

	signaler := streammanager.NewHubSignaler(hub)
	var iceURLs []string
	if cfg.ICEServers != "" {
		iceURLs = splitAndTrim(cfg.ICEServers)
	}
	webrtcMgr, err := webrtcsession.NewManager(signaler, log, iceURLs)
	if err != nil {
		return nil, fmt.Errorf("webrtcsession.NewManager: %w", err)
	}

	srv := &Server{
		Router:     r,
		Cfg:        cfg,
		streams:    streams,
		aggregator: agg,
		hub:        hub,
		mpd:        mpd,
		webrtc:     webrtcMgr,
		reqLimiter: reqLimiter,
		metrics:    metrics,
		log:        log,
	}

	if err := srv.initEgresses(ctx); err != nil {
		return nil, fmt.Errorf("initEgresses: %w", err)
	}

	srv.Routes()
	return srv, nil
}

func splitAndTrim(csv string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(csv); i++ {
		if i == len(csv) || csv[i] == ',' {
			if i > start {
				out = append(out, csv[start:i])
			}
			start = i + 1
		}
	}
	return out
}

// newCommon builds the shared egress machinery for one named transport
// (spec §4.5).
func (s *Server) newCommon(name string) *egress.Common {
	cfg := egress.NewConfig(s.Cfg.FPS, codec.Draco, s.Cfg.MaxPoints)
	m := egress.NewMetrics(prometheus.DefaultRegisterer, name)
	return egress.NewCommon(name, cfg, s.aggregator, m, s.log.With("egress", name), s.Cfg.WorkerCount)
}

// initEgresses installs the process-wide WebSocket and FLUTE egress
// singletons and the lazy factories for the per-stream Buffer/File and
// per-track WebRTC egresses (spec §9 dynamic-dispatch Protocol
// registry).
func (s *Server) initEgresses(ctx context.Context) error {
	ws := egress.NewWebSocket(s.newCommon("websocket"), s.hub, s.log)
	ws.EnsureThreadsStarted(ctx)
	s.streams.SetEgress(streamsettings.WebSocket, ws)

	dest, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", s.Cfg.FluteMulticastAddr, s.Cfg.FlutePort))
	if err != nil {
		return fmt.Errorf("resolve flute dest: %w", err)
	}
	sender, err := flute.NewSender(dest, 1, 20_000_000, s.log)
	if err != nil {
		return fmt.Errorf("flute.NewSender: %w", err)
	}
	fl := egress.NewFLUTE(s.newCommon("flute"), sender)
	fl.EnsureThreadsStarted(ctx)
	s.streams.SetEgress(streamsettings.Flute, fl)

	s.streams.SetBufferFactory(func(streamID string) egress.Protocol {
		b := egress.NewBuffer(s.newCommon("buffer:"+streamID), s.mpd, streamID, s.log)
		b.EnsureThreadsStarted(ctx)
		return b
	})
	s.streams.SetFileFactory(func(streamID string) egress.Protocol {
		f := egress.NewFile(s.newCommon("file:"+streamID), streamID, s.Cfg.ExportRoot, s.log)
		f.EnsureThreadsStarted(ctx)
		return f
	})
	s.streams.SetWebRTCFactory(func(clientID, tileIndex uint32) egress.Protocol {
		w := egress.NewWebRTC(s.newCommon(fmt.Sprintf("webrtc:%d:%d", clientID, tileIndex)), s.webrtc, clientID, tileIndex, s.log)
		w.EnsureThreadsStarted(ctx)
		return w
	})
	return nil
}
