// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package app

import (
	"fmt"
	"os"
	"path"
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
	defaultReqIntervalS      = 24 * 3600
	defaultFPS               = 30
	defaultMaxPoints         = 200_000
	defaultWorkerCount       = 4
	defaultTargetLatencyMS   = 2000
	defaultFluteMulticastURL = "239.0.2.1"
	defaultFlutePort         = 40085
)

// ServerConfig is the runtime configuration for the point-cloud
// streaming server, resolved from defaults, an optional JSON config
// file, the command line, and finally environment variables
// (spec §3 ambient stack, configuration).
type ServerConfig struct {
	LogFormat   string `json:"logformat"`
	LogLevel    string `json:"loglevel"`
	Port        int    `json:"port"`
	TimeoutS    int    `json:"timeoutS"`
	MaxRequests int    `json:"maxrequests"`
	ReqLimitInt int    `json:"reqlimitint"`
	ReqLimitLog string `json:"reqlimitlog"`

	// ExportRoot is where the File and Buffer egresses persist
	// debugging snapshots (spec §4.9/§9).
	ExportRoot string `json:"exportroot"`

	// FPS is the default generator-loop sampling rate applied to every
	// newly configured egress (spec §4.5).
	FPS uint32 `json:"fps"`
	// MaxPoints is the default per-frame point cap for the sampler
	// (spec §4.4).
	MaxPoints uint64 `json:"maxpoints"`
	// WorkerCount bounds the concurrent encode workers per egress
	// (spec §4.5).
	WorkerCount int `json:"workercount"`
	// TargetLatencyMS is the DASH player's target end-to-end latency
	// (spec §4.10).
	TargetLatencyMS int `json:"targetlatencyms"`

	// FluteMulticastAddr and FlutePort address the FLUTE sender's UDP
	// destination (spec §4.8).
	FluteMulticastAddr string `json:"flutemulticastaddr"`
	FlutePort          int    `json:"fluteport"`

	// ICEServers is a comma-separated list of STUN/TURN URLs for the
	// WebRTC egress/ingress (spec §4.7).
	ICEServers string `json:"iceservers"`
}

// DefaultConfig seeds every field LoadConfig starts from before
// layering the config file, CLI flags, and environment.
var DefaultConfig = ServerConfig{
	LogFormat:          "text",
	LogLevel:           "INFO",
	Port:               3001,
	TimeoutS:           60,
	MaxRequests:        0,
	ReqLimitInt:        defaultReqIntervalS,
	ExportRoot:         "./dist/exports",
	FPS:                defaultFPS,
	MaxPoints:          defaultMaxPoints,
	WorkerCount:        defaultWorkerCount,
	TargetLatencyMS:    defaultTargetLatencyMS,
	FluteMulticastAddr: defaultFluteMulticastURL,
	FlutePort:          defaultFlutePort,
}

// LoadConfig layers DefaultConfig, an optional -cfg JSON file, command
// line flags, and PCSERVER_-prefixed environment variables, in that
// order of increasing precedence.
func LoadConfig(args []string, cwd string) (*ServerConfig, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(DefaultConfig, "json"), nil); err != nil {
		return nil, err
	}

	f := pflag.NewFlagSet("pcserver", pflag.ContinueOnError)
	f.Usage = func() {
		parts := strings.Split(args[0], "/")
		name := parts[len(parts)-1]
		fmt.Fprintf(os.Stderr, "Run as %s [options]:\n", name)
		f.PrintDefaults()
	}
	cfgFile := f.String("cfg", "", "path to a JSON config file")
	f.Int("port", k.Int("port"), "HTTP port")
	lf := strings.Join(logging.LogFormats, ", ")
	f.String("logformat", k.String("logformat"), fmt.Sprintf("log format [%s]", lf))
	ll := strings.Join(logging.LogLevels, ", ")
	f.String("loglevel", k.String("loglevel"), fmt.Sprintf("log level [%s]", ll))
	f.Int("timeout", k.Int("timeoutS"), "timeout for all requests (seconds)")
	f.Int("maxrequests", k.Int("maxrequests"), "max nr of requests per IP per interval")
	f.Int("reqlimitint", k.Int("reqlimitint"), "interval for request limit in seconds")
	f.String("reqlimitlog", k.String("reqlimitlog"), "path to request limit log file")
	f.String("exportroot", k.String("exportroot"), "root directory for file/buffer egress snapshots")
	f.Int("fps", k.Int("fps"), "default egress sampling rate")
	f.Int("maxpoints", k.Int("maxpoints"), "default per-frame point cap")
	f.Int("workercount", k.Int("workercount"), "concurrent encode workers per egress")
	f.Int("targetlatencyms", k.Int("targetlatencyms"), "DASH player target latency in milliseconds")
	f.String("flutemulticastaddr", k.String("flutemulticastaddr"), "FLUTE multicast destination address")
	f.Int("fluteport", k.Int("fluteport"), "FLUTE multicast destination port")
	f.String("iceservers", k.String("iceservers"), "comma-separated STUN/TURN URLs")
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

	if err := k.Load(env.Provider("PCSERVER_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "PCSERVER_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	exportRoot := k.String("exportroot")
	if exportRoot != "" && !path.IsAbs(exportRoot) {
		exportRoot = path.Join(cwd, exportRoot)
	}

	var cfg ServerConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	cfg.ExportRoot = exportRoot
	return &cfg, nil
}
