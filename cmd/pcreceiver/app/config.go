// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package app

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/providers/structs"
	"github.com/spf13/pflag"

	"github.com/Dash-Industry-Forum/pointcloud-live/pkg/logging"
)

const (
	defaultTargetLatencyMS = 2000
	defaultFluteListenAddr = "239.0.2.1:40085"
)

// ReceiverConfig is the runtime configuration for the client-side
// point-cloud receiver (spec §4.10/§4.11, components C8/C9/C10): which
// server to pull from, which ingress transports to run, and where to
// persist what it consumes (spec §3 ambient stack, configuration).
type ReceiverConfig struct {
	LogFormat string `json:"logformat"`
	LogLevel  string `json:"loglevel"`

	// ServerURL is the pcserver base URL, e.g. "http://localhost:3001".
	ServerURL string `json:"serverurl"`
	// GroupID is the DASH AdaptationSet group this receiver's dashplayer
	// pulls (the {group_id} segment of /dash/{group_id}.mpd, spec §4.9).
	GroupID string `json:"groupid"`

	// Modes is a comma-separated subset of "websocket,webrtc,flute,dash"
	// naming which ingress transports to start concurrently.
	Modes string `json:"modes"`

	// FluteListenAddr is the local multicast group:port the FLUTE
	// ingress joins (spec §4.8).
	FluteListenAddr string `json:"flutelistenaddr"`
	// FluteStreamID names the stream_id FLUTE objects are attributed to
	// when their FDT entry carried no ContentLocation; otherwise the
	// ContentLocation itself is used as the stream_id.
	FluteStreamID string `json:"flutestreamid"`

	// TargetLatencyMS is the DASH player's target end-to-end latency
	// (spec §4.10).
	TargetLatencyMS int `json:"targetlatencyms"`

	// MetricsPort, when non-zero, exposes Prometheus metrics locally so
	// the receiver's consume-side gauges (internal/receiver.Metrics) can
	// be scraped independently of pcserver.
	MetricsPort int `json:"metricsport"`
}

// DefaultConfig seeds every field LoadConfig starts from before
// layering the config file, CLI flags, and environment.
var DefaultConfig = ReceiverConfig{
	LogFormat:       "text",
	LogLevel:        "INFO",
	ServerURL:       "http://localhost:3001",
	GroupID:         "client_1",
	Modes:           "websocket,dash",
	FluteListenAddr: defaultFluteListenAddr,
	FluteStreamID:   "flute",
	TargetLatencyMS: defaultTargetLatencyMS,
	MetricsPort:     0,
}

// LoadConfig layers DefaultConfig, an optional -cfg JSON file, command
// line flags, and PCRECEIVER_-prefixed environment variables, in that
// order of increasing precedence. Mirrors cmd/pcserver/app.LoadConfig's
// koanf+pflag layering.
func LoadConfig(args []string, cwd string) (*ReceiverConfig, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(DefaultConfig, "json"), nil); err != nil {
		return nil, err
	}

	f := pflag.NewFlagSet("pcreceiver", pflag.ContinueOnError)
	f.Usage = func() {
		parts := strings.Split(args[0], "/")
		name := parts[len(parts)-1]
		fmt.Fprintf(os.Stderr, "Run as %s [options]:\n", name)
		f.PrintDefaults()
	}
	cfgFile := f.String("cfg", "", "path to a JSON config file")
	lf := strings.Join(logging.LogFormats, ", ")
	f.String("logformat", k.String("logformat"), fmt.Sprintf("log format [%s]", lf))
	ll := strings.Join(logging.LogLevels, ", ")
	f.String("loglevel", k.String("loglevel"), fmt.Sprintf("log level [%s]", ll))
	f.String("serverurl", k.String("serverurl"), "pcserver base URL")
	f.String("groupid", k.String("groupid"), "DASH adaptation-set group id to play")
	f.String("modes", k.String("modes"), "comma-separated ingress modes [websocket,webrtc,flute,dash]")
	f.String("flutelistenaddr", k.String("flutelistenaddr"), "FLUTE multicast group:port to join")
	f.String("flutestreamid", k.String("flutestreamid"), "fallback stream_id for FLUTE objects")
	f.Int("targetlatencyms", k.Int("targetlatencyms"), "DASH player target latency in milliseconds")
	f.Int("metricsport", k.Int("metricsport"), "local Prometheus metrics port, 0 to disable")
	if err := f.Parse(args[1:]); err != nil {
		return nil, fmt.Errorf("command line parse: %w", err)
	}

	if *cfgFile != "" {
		if err := k.Load(file.Provider(*cfgFile), json.Parser()); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
		return nil, fmt.Errorf("parsing cli: %w", err)
	}

	if err := k.Load(env.Provider("PCRECEIVER_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "PCRECEIVER_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	var cfg ReceiverConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// modeSet splits cfg.Modes on commas into a lookup set.
func (cfg *ReceiverConfig) modeSet() map[string]bool {
	set := make(map[string]bool)
	for _, m := range strings.Split(cfg.Modes, ",") {
		m = strings.TrimSpace(m)
		if m != "" {
			set[m] = true
		}
	}
	return set
}
