// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package app

import (
	"encoding/json"
	"net/http"

	"github.com/Dash-Industry-Forum/pointcloud-live/internal/streamsettings"
)

// streamSettingsDTO is the wire representation of streamsettings.Settings
// for the control API (spec §3 StreamSettings).
type streamSettingsDTO struct {
	StreamID                 string                         `json:"stream_id"`
	Priority                 *int                           `json:"priority,omitempty"`
	EgressProtocols          []streamsettings.EgressProtocol `json:"egress_protocols,omitempty"`
	ProcessIncomingFrames    *bool                          `json:"process_incoming_frames,omitempty"`
	Position                 *[3]float32                    `json:"position,omitempty"`
	Rotation                 *[3]float32                    `json:"rotation,omitempty"`
	Scale                    *[3]float32                    `json:"scale,omitempty"`
	PresentationTimeOffsetUS *uint64                        `json:"presentation_time_offset_us,omitempty"`
	DecodeBypass             *bool                          `json:"decode_bypass,omitempty"`
	AggregatorBypass         *bool                          `json:"aggregator_bypass,omitempty"`
	RingBufferBypass         *bool                          `json:"ring_buffer_bypass,omitempty"`
	MaxPointPercentages      []uint8                        `json:"max_point_percentages,omitempty"`
}

func toDTO(s streamsettings.Settings) streamSettingsDTO {
	return streamSettingsDTO{
		StreamID:                 s.StreamID,
		Priority:                 &s.Priority,
		EgressProtocols:          s.EgressProtocols,
		ProcessIncomingFrames:    &s.ProcessIncomingFrames,
		Position:                 &s.Position,
		Rotation:                 &s.Rotation,
		Scale:                    &s.Scale,
		PresentationTimeOffsetUS: s.PresentationTimeOffsetUS,
		DecodeBypass:             &s.DecodeBypass,
		AggregatorBypass:         &s.AggregatorBypass,
		RingBufferBypass:         &s.RingBufferBypass,
		MaxPointPercentages:      s.MaxPointPercentages,
	}
}

// listStreamsHandlerFunc serves GET /streams/list (spec §3).
func (s *Server) listStreamsHandlerFunc(w http.ResponseWriter, r *http.Request) {
	all := s.streams.Settings().All()
	dtos := make([]streamSettingsDTO, 0, len(all))
	for _, settings := range all {
		dtos = append(dtos, toDTO(settings))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"streams": dtos})
}

// updateStreamSettingsHandlerFunc serves POST /streams/update_settings,
// applying only the fields present in the request body to the named
// stream's settings (spec §3, "mutated only through the settings API").
func (s *Server) updateStreamSettingsHandlerFunc(w http.ResponseWriter, r *http.Request) {
	var req streamSettingsDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, errBufferUnmarshal.Error(), http.StatusBadRequest)
		return
	}
	if req.StreamID == "" {
		http.Error(w, "stream_id is required", http.StatusBadRequest)
		return
	}

	settings := s.streams.Settings().Get(req.StreamID)
	if req.Priority != nil {
		settings.Priority = *req.Priority
	}
	if req.EgressProtocols != nil {
		settings.EgressProtocols = req.EgressProtocols
	}
	if req.ProcessIncomingFrames != nil {
		settings.ProcessIncomingFrames = *req.ProcessIncomingFrames
	}
	if req.Position != nil {
		settings.Position = *req.Position
	}
	if req.Rotation != nil {
		settings.Rotation = *req.Rotation
	}
	if req.Scale != nil {
		settings.Scale = *req.Scale
	}
	if req.PresentationTimeOffsetUS != nil {
		settings.PresentationTimeOffsetUS = req.PresentationTimeOffsetUS
	}
	if req.DecodeBypass != nil {
		settings.DecodeBypass = *req.DecodeBypass
	}
	if req.AggregatorBypass != nil {
		settings.AggregatorBypass = *req.AggregatorBypass
	}
	if req.RingBufferBypass != nil {
		settings.RingBufferBypass = *req.RingBufferBypass
	}
	if req.MaxPointPercentages != nil {
		settings.MaxPointPercentages = req.MaxPointPercentages
	}
	s.streams.Settings().Update(settings)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"message": "stream settings updated for " + req.StreamID})
}
