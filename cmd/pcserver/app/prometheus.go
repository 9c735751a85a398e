// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package app

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var defaultBuckets = []float64{5, 10, 20, 50, 100, 200, 500, 1000}

const (
	mpdReqsName    = "pcserver_mpd_requests_total"
	mpdLatencyName = "pcserver_mpd_request_duration_milliseconds"
	segReqsName    = "pcserver_segment_requests_total"
	segLatencyName = "pcserver_segment_request_duration_milliseconds"
)

// httpMetrics partitions MPD vs segment request counts/latencies by
// status code, mirroring the teacher's own per-route Prometheus
// instrumentation.
type httpMetrics struct {
	mpdReqs    *prometheus.CounterVec
	mpdLatency *prometheus.HistogramVec
	segReqs    *prometheus.CounterVec
	segLatency *prometheus.HistogramVec
}

func newHTTPMetrics() *httpMetrics {
	m := &httpMetrics{
		mpdReqs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: mpdReqsName, Help: "MPD requests processed, by status code.",
		}, []string{"code"}),
		mpdLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: mpdLatencyName, Help: "MPD response latency.", Buckets: defaultBuckets,
		}, []string{"code"}),
		segReqs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: segReqsName, Help: "Segment requests processed, by status code.",
		}, []string{"code"}),
		segLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: segLatencyName, Help: "Segment response latency.", Buckets: defaultBuckets,
		}, []string{"code"}),
	}
	prometheus.MustRegister(m.mpdReqs, m.mpdLatency, m.segReqs, m.segLatency)
	return m
}

// handler returns a chi middleware that records MPD/segment metrics by
// file extension.
func (m *httpMetrics) handler(next http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := strconv.Itoa(ww.Status())
		latencyMS := float64(time.Since(start).Nanoseconds()) * 1e-6

		switch {
		case strings.HasSuffix(path, ".mpd"):
			m.mpdReqs.WithLabelValues(status).Inc()
			m.mpdLatency.WithLabelValues(status).Observe(latencyMS)
		case strings.HasSuffix(path, ".m4s"), strings.HasSuffix(path, ".mp4"):
			m.segReqs.WithLabelValues(status).Inc()
			m.segLatency.WithLabelValues(status).Observe(latencyMS)
		}
	}
	return http.HandlerFunc(fn)
}
