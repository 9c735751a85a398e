// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Dash-Industry-Forum/pointcloud-live/internal/ingress"
	"github.com/Dash-Industry-Forum/pointcloud-live/pkg/codec"
	"github.com/Dash-Industry-Forum/pointcloud-live/pkg/dashplayer"
	"github.com/Dash-Industry-Forum/pointcloud-live/pkg/fmp4"
	"github.com/Dash-Industry-Forum/pointcloud-live/pkg/mpdgen"
)

// defaultMPDRefreshS is used when a fetched MPD carries no
// MinimumUpdatePeriod, matching the live-MPD re-fetch cadence
// convention (spec §4.9 "emits a full live MPD each time").
const defaultMPDRefreshS = 5 * time.Second

// dashRunner polls a group's MPD and keeps one dashplayer.Player
// running per AdaptationSet it has not yet seen (spec §4.10, component
// C10).
type dashRunner struct {
	serverURL string
	groupID   string
	targetLatencyS float64
	sink      ingress.FrameSink
	log       *slog.Logger
	client    *http.Client

	started map[string]bool
}

func newDashRunner(serverURL, groupID string, targetLatencyMS int, sink ingress.FrameSink, log *slog.Logger) *dashRunner {
	return &dashRunner{
		serverURL:      strings.TrimSuffix(serverURL, "/"),
		groupID:        groupID,
		targetLatencyS: float64(targetLatencyMS) / 1000.0,
		sink:           sink,
		log:            log,
		client:         &http.Client{Timeout: 10 * time.Second},
		started:        make(map[string]bool),
	}
}

// Run polls the group's MPD until ctx is canceled, starting a new
// Player for every AdaptationSet introduced by a later poll (spec §4.9
// "MPD update" semantics: the document is re-read in full each time,
// not patched).
func (d *dashRunner) Run(ctx context.Context) {
	for {
		meta, err := d.fetchAndResolve(ctx)
		if err != nil {
			d.log.Warn("dash: mpd fetch failed", "group", d.groupID, "err", err)
		} else {
			d.startNewAdaptationSets(ctx, meta)
		}

		wait := defaultMPDRefreshS
		if err == nil && meta.MinimumUpdatePeriodS > 0 {
			wait = time.Duration(meta.MinimumUpdatePeriodS * float64(time.Second))
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// fetchAndResolve downloads and parses the group MPD, rewriting every
// Representation's relative init/media URLs to absolute ones against
// serverURL (mpdmanager emits them relative to the server root).
func (d *dashRunner) fetchAndResolve(ctx context.Context) (mpdgen.MpdMetadata, error) {
	url := fmt.Sprintf("%s/dash/%s.mpd", d.serverURL, d.groupID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return mpdgen.MpdMetadata{}, err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return mpdgen.MpdMetadata{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return mpdgen.MpdMetadata{}, fmt.Errorf("dash: fetch %s: status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return mpdgen.MpdMetadata{}, err
	}
	meta, err := mpdgen.Parse(string(body))
	if err != nil {
		return mpdgen.MpdMetadata{}, err
	}
	for i := range meta.AdaptationSets {
		reps := meta.AdaptationSets[i].Representations
		for j := range reps {
			reps[j].InitializationURL = d.absolute(reps[j].InitializationURL)
			reps[j].MediaURLTemplate = d.absolute(reps[j].MediaURLTemplate)
		}
	}
	return meta, nil
}

func (d *dashRunner) absolute(u string) string {
	if strings.HasPrefix(u, "/") {
		return d.serverURL + u
	}
	return u
}

// startNewAdaptationSets launches a Player for every AdaptationSet
// whose ContentType has not already been started.
func (d *dashRunner) startNewAdaptationSets(ctx context.Context, meta mpdgen.MpdMetadata) {
	for _, as := range meta.AdaptationSets {
		if d.started[as.ContentType] {
			continue
		}
		d.started[as.ContentType] = true
		cb := &dashCallback{sink: d.sink, log: d.log.With("adaptation_set", as.ContentType)}
		player := dashplayer.NewPlayer(as, meta, d.targetLatencyS, cb, d.log.With("adaptation_set", as.ContentType))
		go player.Run(ctx)
	}
}

// dashCallback implements dashplayer.Callback: every fetched media
// segment is demuxed back into its raw codec-tagged samples and pushed
// into the receiver store under its Representation's id, which is the
// same stream_id the server side registered it under
// (internal/mpdmanager.streamState.repID, spec §4.9).
type dashCallback struct {
	sink ingress.FrameSink
	log  *slog.Logger
}

func (c *dashCallback) OnSegment(seg dashplayer.Segment) {
	samples, err := fmp4.ExtractSamples(seg.Data)
	if err != nil {
		c.log.Warn("dash: malformed media segment", "representation", seg.RepresentationID, "segment", seg.SegmentNumber, "err", err)
		return
	}
	for _, s := range samples {
		pc := codec.DecodeFrame(s.Data)
		if pc.ErrorCount > 0 {
			continue
		}
		c.sink.PushFrame(seg.RepresentationID, pc)
	}
}

func (c *dashCallback) OnDownloadError(url string, err error) {
	c.log.Warn("dash: segment download failed", "url", url, "err", err)
}
