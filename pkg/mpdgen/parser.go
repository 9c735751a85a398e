// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package mpdgen

import (
	"fmt"
	"strings"

	m "github.com/Eyevinn/dash-mpd/mpd"
)

// Parse reads a live MPD and recovers its Representation set,
// applying AdaptationSet->Representation SegmentTemplate inheritance
// (spec §4.2): a SegmentTemplate at AdaptationSet scope is applied to
// any Representation without its own. Unlike the teacher's VOD asset
// loader (which rejects a per-Representation template), this parser
// mirrors the original point-cloud DASH player
// (original_source/Libraries/dash_player/src/mpd/parser.rs), which
// allows either scope and prefers the Representation's own template.
func Parse(xml string) (MpdMetadata, error) {
	mpd, err := m.ReadFromString(xml)
	if err != nil {
		return MpdMetadata{}, fmt.Errorf("mpdgen: parse MPD: %w", err)
	}
	if len(mpd.Periods) == 0 {
		return MpdMetadata{}, fmt.Errorf("mpdgen: MPD has no periods")
	}

	meta := MpdMetadata{
		AvailabilityStartTimeS: float64(mpd.AvailabilityStartTime.Unix()),
	}
	if mpd.TimeShiftBufferDepth != nil {
		meta.TimeShiftBufferDepthS = mpd.TimeShiftBufferDepth.Seconds()
	}
	if mpd.MinimumUpdatePeriod != nil {
		meta.MinimumUpdatePeriodS = mpd.MinimumUpdatePeriod.Seconds()
	}
	if mpd.SuggestedPresentationDelay != nil {
		meta.SuggestedPresentationDelayS = mpd.SuggestedPresentationDelay.Seconds()
	}

	period := mpd.Periods[0]
	for _, as := range period.AdaptationSets {
		out := AdaptationSet{
			ContentType: inferContentType(string(as.ContentType), as.MimeType),
			MimeType:    as.MimeType,
		}
		for _, rep := range as.Representations {
			tmpl := rep.SegmentTemplate
			if tmpl == nil {
				tmpl = as.SegmentTemplate
			}
			r := Representation{
				ID:           rep.Id,
				BandwidthBPS: uint64(rep.Bandwidth),
			}
			if tmpl != nil {
				r.InitializationURL = replaceRepID(tmpl.Initialization, rep.Id)
				r.MediaURLTemplate = replaceRepID(tmpl.Media, rep.Id)
				r.Timescale = 1
				if tmpl.Timescale != nil && *tmpl.Timescale > 0 {
					r.Timescale = *tmpl.Timescale
				}
				if tmpl.Duration != nil {
					r.SegmentDurationS = float64(*tmpl.Duration) / float64(r.Timescale)
				}
				if tmpl.PresentationTimeOffset != nil {
					r.PresentationTimeOffset = tmpl.PresentationTimeOffset
				}
				if tmpl.AvailabilityTimeOffset != 0 {
					ato := tmpl.AvailabilityTimeOffset
					r.AvailabilityTimeOffsetS = &ato
				}
				if tmpl.AvailabilityTimeComplete != nil {
					r.AvailabilityTimeComplete = tmpl.AvailabilityTimeComplete
				}
				r.UsesSegmentTime = strings.Contains(r.MediaURLTemplate, "$Time$")
			} else {
				r.Timescale = 1
				r.SegmentDurationS = 1
			}
			out.Representations = append(out.Representations, r)
		}
		meta.AdaptationSets = append(meta.AdaptationSets, out)
	}
	return meta, nil
}

func replaceRepID(s, id string) string {
	return strings.ReplaceAll(s, "$RepresentationID$", id)
}

func inferContentType(explicit, mimeType string) string {
	if explicit != "" {
		return explicit
	}
	switch {
	case strings.Contains(mimeType, "audio"):
		return "audio"
	default:
		return "video"
	}
}
