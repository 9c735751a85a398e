// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package mpdgen

import (
	"bytes"
	"fmt"

	m "github.com/Eyevinn/dash-mpd/mpd"
)

// Ptr returns a pointer to v, mirroring the teacher's own helper in
// cmd/livesim2/app/livesegment.go.
func Ptr[T any](v T) *T {
	return &v
}

// Build emits a live-profile MPD (spec §4.2 Builder) with one Period
// and one AdaptationSet per entry of meta.AdaptationSets, each
// containing that entry's Representations.
func Build(meta MpdMetadata) (string, error) {
	mpd := &m.MPD{
		Profiles:              m.ListOfProfilesType("urn:mpeg:dash:profile:isoff-live:2011"),
		Type:                  Ptr(m.DYNAMIC_TYPE),
		AvailabilityStartTime: m.ConvertToDateTime(meta.AvailabilityStartTimeS),
		TimeShiftBufferDepth:  m.Seconds2DurPtr(meta.TimeShiftBufferDepthS),
	}
	if meta.MinimumUpdatePeriodS > 0 {
		mpd.MinimumUpdatePeriod = m.Seconds2DurPtr(meta.MinimumUpdatePeriodS)
	}
	if meta.SuggestedPresentationDelayS > 0 {
		mpd.SuggestedPresentationDelay = m.Seconds2DurPtr(meta.SuggestedPresentationDelayS)
	}

	period := &m.Period{
		Id:    "P0",
		Start: Ptr(m.Duration(0)),
	}

	for _, as := range meta.AdaptationSets {
		mas := &m.AdaptationSetType{
			ContentType:      m.RFC6838ContentTypeType(as.ContentType),
			MimeType:         as.MimeType,
			SegmentAlignment: true,
		}
		for _, rep := range as.Representations {
			mrep := &m.RepresentationType{
				Id:        rep.ID,
				Bandwidth: uint32(rep.BandwidthBPS),
				SegmentTemplate: &m.SegmentTemplateType{
					Initialization: rep.InitializationURL,
					Media:          rep.MediaURLTemplate,
					Duration:       Ptr(uint64(rep.SegmentDurationS * float64(rep.Timescale))),
					Timescale:      Ptr(rep.Timescale),
					StartNumber:    Ptr(uint32(0)),
				},
			}
			if rep.AvailabilityTimeOffsetS != nil {
				mrep.SegmentTemplate.AvailabilityTimeOffset = *rep.AvailabilityTimeOffsetS
			}
			if rep.AvailabilityTimeComplete != nil {
				mrep.SegmentTemplate.AvailabilityTimeComplete = rep.AvailabilityTimeComplete
			}
			if rep.PresentationTimeOffset != nil {
				mrep.SegmentTemplate.PresentationTimeOffset = rep.PresentationTimeOffset
			}
			mas.Representations = append(mas.Representations, mrep)
		}
		period.AdaptationSets = append(period.AdaptationSets, mas)
	}
	mpd.Periods = append(mpd.Periods, period)

	buf := &bytes.Buffer{}
	if _, err := mpd.Write(buf, "  ", true); err != nil {
		return "", fmt.Errorf("mpdgen: write MPD: %w", err)
	}
	return buf.String(), nil
}
