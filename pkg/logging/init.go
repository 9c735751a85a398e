// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dusted-go/logging/prettylog"
)

// InitSlog initializes the global slog logger. component names the
// binary emitting the logs ("pcserver" or "pcreceiver", spec §2) and
// is attached to every record so a shared log aggregator can separate
// server-side and client-side lines for the same stream_id.
//
// level and logFormat determine where the logs go and what format is
// used; logFormat is normalized per-platform (normalizeLogFormat)
// before dispatch, since LogPretty's ANSI escapes are not supported by
// every Windows console.
func InitSlog(component string, level string, logFormat string) error {

	var logger *slog.Logger
	logLevel = new(slog.LevelVar)

	logFormat = normalizeLogFormat(logFormat)

	switch logFormat {
	case LogText:
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	case LogJSON:
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	case LogPretty:
		f := func(groups []string, a slog.Attr) slog.Attr { return a }
		prettyHandler := prettylog.NewHandler(&slog.HandlerOptions{
			Level:       logLevel,
			AddSource:   false,
			ReplaceAttr: f})
		logger = slog.New(prettyHandler)
	case LogDiscard:
		logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: logLevel}))
	default:
		return fmt.Errorf("logFormat %q not known", logFormat)
	}
	if component != "" {
		logger = logger.With(slog.String("component", component))
	}
	slog.SetDefault(logger)
	return SetLogLevel(level)
}
