// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

// Package mpdgen parses and builds DASH live MPDs for the point-cloud
// buffer egress, layered over github.com/Eyevinn/dash-mpd's MPD object
// model (spec §4.2/§C3). It owns the template-inheritance and
// $Time$/duration-conversion semantics the library itself does not
// apply automatically.
package mpdgen

// Representation is a single encoding variant of an AdaptationSet
// (spec §3).
type Representation struct {
	ID                       string
	BandwidthBPS             uint64
	InitializationURL        string
	MediaURLTemplate         string
	SegmentDurationS         float64
	Timescale                uint64
	AvailabilityTimeOffsetS  *float64
	AvailabilityTimeComplete *bool
	PresentationTimeOffset   *uint64
	UsesSegmentTime          bool
}

// AdaptationSet groups interchangeable Representations of one media
// type. It carries no SegmentTemplate of its own: Parse copies an
// AdaptationSet-level template into every Representation without one.
type AdaptationSet struct {
	ContentType     string
	MimeType        string
	Representations []Representation
}

// MpdMetadata is the parsed/buildable shape of a live DASH MPD (spec
// §3).
type MpdMetadata struct {
	AvailabilityStartTimeS  float64 // seconds since Unix epoch
	TimeShiftBufferDepthS   float64
	MinimumUpdatePeriodS    float64
	SuggestedPresentationDelayS float64
	AdaptationSets          []AdaptationSet
}
