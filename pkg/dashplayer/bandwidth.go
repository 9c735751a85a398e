// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

// Package dashplayer implements the DASH live playback scheduler
// (spec §4.10, component C10): per-AdaptationSet segment-pointer
// fetch loop, representation selection, and the bandwidth estimator
// driving it. Grounded on
// original_source/Libraries/dash_player/src/player.rs.
package dashplayer

import "sync"

// smoothingAlpha is the bandwidth estimator's EWMA smoothing factor
// (spec §4.10).
const smoothingAlpha = 0.25

// Estimator is an exponentially-weighted-average bandwidth estimator
// in bits per second (spec §4.10).
type Estimator struct {
	mu  sync.Mutex
	est float64
}

// NewEstimator returns an Estimator seeded at 0 (first sample
// initializes the average).
func NewEstimator() *Estimator {
	return &Estimator{}
}

// Record folds one (bytes, elapsedSeconds) sample into the running
// estimate.
func (e *Estimator) Record(bytes int, elapsedSeconds float64) {
	if elapsedSeconds <= 0 {
		return
	}
	sample := float64(bytes) * 8 / elapsedSeconds

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.est == 0 {
		e.est = sample
		return
	}
	e.est = smoothingAlpha*sample + (1-smoothingAlpha)*e.est
}

// Estimate returns the current bandwidth estimate in bits per second.
func (e *Estimator) Estimate() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.est
}
