// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package dashplayer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Dash-Industry-Forum/pointcloud-live/pkg/mpdgen"
)

// targetLatencyKP is the proportional gain applied to the
// latency-tracking playback rate controller (spec §4.10).
const targetLatencyKP = 1.2

// Segment is one fetched media segment handed to the player's
// callback (spec §4.10 step 6).
type Segment struct {
	Data             []byte
	ContentType      string
	RepresentationID string
	SegmentNumber    uint64
	Duration         time.Duration
	URL              string
	PlaybackRate     float64
}

// Callback receives every successfully fetched segment, or a
// DownloadError event for a failed fetch (spec §7).
type Callback interface {
	OnSegment(Segment)
	OnDownloadError(url string, err error)
}

// Player drives one AdaptationSet's fetch task against a live MPD
// (spec §4.10).
type Player struct {
	httpClient          *http.Client
	as                  mpdgen.AdaptationSet
	availabilityStartS  float64
	timeShiftBufferS    float64
	targetLatencyS      float64
	callback            Callback
	estimator           *Estimator
	initCache           map[string][]byte
	initCacheMu         sync.Mutex
	log                 *slog.Logger
}

// NewPlayer constructs a Player for one AdaptationSet.
func NewPlayer(as mpdgen.AdaptationSet, meta mpdgen.MpdMetadata, targetLatencyS float64, callback Callback, log *slog.Logger) *Player {
	return &Player{
		httpClient:         &http.Client{Timeout: 10 * time.Second},
		as:                 as,
		availabilityStartS: meta.AvailabilityStartTimeS,
		timeShiftBufferS:   meta.TimeShiftBufferDepthS,
		targetLatencyS:     targetLatencyS,
		callback:           callback,
		estimator:          NewEstimator(),
		initCache:          make(map[string][]byte),
		log:                log,
	}
}

// selectRepresentation picks the highest-bandwidth representation at
// or below 95% of the current estimate, or the lowest if none qualify
// (spec §4.10 step 3).
func selectRepresentation(reps []mpdgen.Representation, estimateBPS float64) mpdgen.Representation {
	effective := estimateBPS * 0.95
	var best *mpdgen.Representation
	var lowest *mpdgen.Representation
	for i := range reps {
		r := &reps[i]
		if lowest == nil || r.BandwidthBPS < lowest.BandwidthBPS {
			lowest = r
		}
		if float64(r.BandwidthBPS) <= effective {
			if best == nil || r.BandwidthBPS > best.BandwidthBPS {
				best = r
			}
		}
	}
	if best != nil {
		return *best
	}
	return *lowest
}

// playbackRate computes the latency-tracking rate from spec §4.10
// step 5.
func playbackRate(currentLatencyS, targetLatencyS float64) float64 {
	diff := currentLatencyS - targetLatencyS
	if math.Abs(diff) < 0.01 {
		return 1.0
	}
	adjusted := clamp(diff*targetLatencyKP, -0.2, 1.5)
	return clamp(1+adjusted, 0.8, 2.5)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Run drives the fetch loop for ctx's lifetime, cancellation aborting
// only after the in-flight HTTP completes (spec §5).
func (p *Player) Run(ctx context.Context) {
	if len(p.as.Representations) == 0 {
		return
	}
	segDurationS := p.as.Representations[0].SegmentDurationS
	if segDurationS <= 0 {
		segDurationS = 1
	}

	var pointer uint64
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		iterStart := time.Now()
		segStart := float64(pointer) * segDurationS
		uptime := float64(time.Now().Unix()) - p.availabilityStartS

		if segStart < uptime-p.timeShiftBufferS {
			pointer++
			continue
		}

		rep := selectRepresentation(p.as.Representations, p.estimator.Estimate())

		p.waitForAvailability(ctx, rep, segStart)

		currentLatency := math.Max(0, uptime-segStart)
		rate := playbackRate(currentLatency, p.targetLatencyS)

		if err := p.fetchAndEmit(ctx, rep, pointer, segDurationS, rate); err != nil {
			if p.callback != nil {
				p.callback.OnDownloadError(rep.MediaURLTemplate, err)
			}
		}

		pointer++

		elapsed := time.Since(iterStart).Seconds()
		wait := segDurationS/rate - elapsed
		if wait > 0 {
			t := time.NewTimer(time.Duration(wait * float64(time.Second)))
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
		}
	}
}

func (p *Player) waitForAvailability(ctx context.Context, rep mpdgen.Representation, segStart float64) {
	availableAt := segStart + rep.SegmentDurationS
	if rep.AvailabilityTimeComplete == nil || !*rep.AvailabilityTimeComplete {
		if rep.AvailabilityTimeOffsetS != nil {
			availableAt -= *rep.AvailabilityTimeOffsetS
		}
	}
	now := float64(time.Now().Unix()) - p.availabilityStartS
	if availableAt > now {
		wait := availableAt - now
		t := time.NewTimer(time.Duration(wait * float64(time.Second)))
		defer t.Stop()
		select {
		case <-ctx.Done():
		case <-t.C:
		}
	}
}

func (p *Player) fetchAndEmit(ctx context.Context, rep mpdgen.Representation, pointer uint64, segDurationS, rate float64) error {
	if _, err := p.fetchInit(ctx, rep); err != nil {
		return err
	}

	url := resolveSegmentURL(rep.MediaURLTemplate, pointer)
	start := time.Now()
	data, err := p.fetch(ctx, url)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		return err
	}
	p.estimator.Record(len(data), elapsed)

	if p.callback != nil {
		p.callback.OnSegment(Segment{
			Data:             data,
			ContentType:      p.as.ContentType,
			RepresentationID: rep.ID,
			SegmentNumber:    pointer,
			Duration:         time.Duration(segDurationS * float64(time.Second)),
			URL:              url,
			PlaybackRate:     rate,
		})
	}
	return nil
}

// resolveSegmentURL substitutes the $Number$ identifier in a
// SegmentTemplate's media attribute, per the DASH $Number$ addressing
// scheme.
func resolveSegmentURL(template string, number uint64) string {
	return strings.ReplaceAll(template, "$Number$", strconv.FormatUint(number, 10))
}

func (p *Player) fetchInit(ctx context.Context, rep mpdgen.Representation) ([]byte, error) {
	key := rep.ID + "|" + rep.InitializationURL
	p.initCacheMu.Lock()
	if cached, ok := p.initCache[key]; ok {
		p.initCacheMu.Unlock()
		return cached, nil
	}
	p.initCacheMu.Unlock()

	data, err := p.fetch(ctx, rep.InitializationURL)
	if err != nil {
		return nil, err
	}

	p.initCacheMu.Lock()
	p.initCache[key] = data
	p.initCacheMu.Unlock()
	return data, nil
}

func (p *Player) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(context.WithoutCancel(ctx), http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dashplayer: build request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dashplayer: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dashplayer: fetch %s: status %d", url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
