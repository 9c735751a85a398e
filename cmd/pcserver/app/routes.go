// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package app

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Dash-Industry-Forum/pointcloud-live/pkg/logging"
)

// Routes installs every HTTP dispatch (spec §4.9 DASH surface, §6
// WebSocket upgrade, §4.7 WebRTC signaling, and the stream settings
// control API).
func (s *Server) Routes() {
	s.Router.MethodFunc(http.MethodGet, "/healthz", s.healthzHandlerFunc)
	s.Router.Mount("/metrics", promhttp.Handler())

	for _, route := range logging.LogRoutes {
		s.Router.MethodFunc(route.Method, route.Path, route.Handler)
	}

	s.Router.MethodFunc(http.MethodGet, "/dash/{group_id}.mpd", s.dashMPDHandlerFunc)
	s.Router.MethodFunc(http.MethodGet, "/dash/{stream_id}/{segment_name}", s.dashSegmentHandlerFunc)

	s.Router.MethodFunc(http.MethodGet, "/ws", s.websocketUpgradeHandlerFunc)

	s.Router.MethodFunc(http.MethodGet, "/streams/list", s.listStreamsHandlerFunc)
	s.Router.MethodFunc(http.MethodPost, "/streams/update_settings", s.updateStreamSettingsHandlerFunc)
}

func (s *Server) healthzHandlerFunc(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"ok":true}`))
}
