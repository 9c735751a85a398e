// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package app

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Dash-Industry-Forum/pointcloud-live/internal/mpdmanager"
	"github.com/Dash-Industry-Forum/pointcloud-live/pkg/logging"
)

const segmentWaitFor = 500 * time.Millisecond

// dashMPDHandlerFunc serves GET /dash/{group_id}.mpd (spec §4.9).
func (s *Server) dashMPDHandlerFunc(w http.ResponseWriter, r *http.Request) {
	groupID := strings.TrimSuffix(chi.URLParam(r, "group_id"), ".mpd")
	xml, err := s.mpd.MPD(groupID)
	if err != nil {
		logging.SubLoggerWithStreamID(s.log, groupID).Warn("mpd not found", "err", err)
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/dash+xml")
	_, _ = w.Write([]byte(xml))
}

// dashSegmentHandlerFunc serves GET /dash/{stream_id}/init.mp4 and GET
// /dash/{stream_id}/{N}.m4s (spec §4.9).
func (s *Server) dashSegmentHandlerFunc(w http.ResponseWriter, r *http.Request) {
	streamID := chi.URLParam(r, "stream_id")
	segmentName := chi.URLParam(r, "segment_name")

	if segmentName == "init.mp4" {
		data, err := s.mpd.InitSegment(streamID)
		if err != nil {
			logging.SubLoggerWithStreamID(s.log, streamID).Warn("init segment not found", "err", err)
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write(data)
		return
	}

	indexStr := strings.TrimSuffix(segmentName, ".m4s")
	indexStr = strings.TrimSuffix(indexStr, ".mp4")
	index, err := strconv.ParseUint(indexStr, 10, 64)
	if err != nil {
		http.Error(w, errInvalidSegment.Error(), http.StatusBadRequest)
		return
	}

	data, err := s.mpd.MediaSegment(streamID, index, segmentWaitFor)
	if err != nil {
		var expired *mpdmanager.ErrSegmentExpired
		if errors.As(err, &expired) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		logging.SubLoggerWithStreamID(s.log, streamID).Warn("segment fetch failed", "index", index, "err", err)
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "video/iso.segment")
	_, _ = w.Write(data)
}
