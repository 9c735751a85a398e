// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package logging

import (
	"fmt"
	"log/slog"
	"net/http"
)

type Route struct {
	Method  string
	Path    string
	Handler http.HandlerFunc
}

// LogRoutes carries the bare level endpoints plus a per-stream
// diagnostic route: operators chasing a single misbehaving stream_id
// can confirm which level its requests are being logged at without
// flipping the whole process to debug.
var LogRoutes = [3]Route{
	{"GET", "/loglevel", LogLevelGet},
	{"POST", "/loglevel", LogLevelSet},
	{"GET", "/loglevel/stream", StreamLogLevelGet},
}

// LogLevelGet handles loglevel GET request
func LogLevelGet(w http.ResponseWriter, r *http.Request) {
	currentLevel := LogLevel()
	fmt.Fprintln(w, currentLevel)
}

// LogLevelSet sets the loglevel from a posted form
// Can be triggered like curl -F level=debug <server>/loglevel
func LogLevelSet(w http.ResponseWriter, r *http.Request) {
	currentLevel := LogLevel()
	err := r.ParseMultipartForm(128)
	if err != nil {
		http.Error(w, "Incorrect form data", http.StatusBadRequest)
		return
	}
	newLevel := r.FormValue("level")
	err = SetLogLevel(newLevel)
	if err != nil {
		msg := fmt.Sprintf("Incorrect log level %q", newLevel)
		http.Error(w, msg, http.StatusBadRequest)
		return
	}
	slog.Default().Info("log level changed", "from", currentLevel, "to", LogLevel())
	fmt.Fprintf(w, "%q â†’ %q\n", currentLevel, LogLevel())
}

// StreamLogLevelGet reports the process-wide log level and, if the
// request carries a stream_id or group_id query parameter, emits one
// line at that level tagged with the stream so an operator can confirm
// whether a given stream's traffic would actually be logged at the
// level they expect.
func StreamLogLevelGet(w http.ResponseWriter, r *http.Request) {
	currentLevel := LogLevel()
	streamID := r.URL.Query().Get("stream_id")
	if streamID == "" {
		streamID = r.URL.Query().Get("group_id")
	}
	if streamID != "" {
		lvl, err := parseLevel(currentLevel)
		if err == nil {
			SubLoggerWithStreamID(slog.Default(), streamID).Log(r.Context(), lvl, "loglevel check")
		}
	}
	fmt.Fprintln(w, currentLevel)
}
