// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package receiver

import (
	"context"
	"time"

	"github.com/Dash-Industry-Forum/pointcloud-live/pkg/pointcloud"
)

// driverFPS is the consumer driver's fixed output rate (spec §4.11).
const driverFPS = 30

// backlogShrinkThreshold is the per-stream buffer depth above which
// the driver drops all but the newest frame before consuming (spec
// §4.11 "frames_in_buffer > 10").
const backlogShrinkThreshold = 10

// totalBacklogThreshold is the minimum aggregate backlog across every
// stream before the driver starts shrinking its wait (spec §4.11).
const totalBacklogThreshold = 3

// ConsumeFunc receives one consumed frame for streamID.
type ConsumeFunc func(streamID string, frame pointcloud.FrameTaskData)

// Driver pulls frames from a Store at a fixed target rate, shrinking
// its wait when backlog builds up across streams (spec §4.11
// "Consumer driver").
type Driver struct {
	store     *Store
	streamIDs func() []string
	consume   ConsumeFunc
}

// NewDriver constructs a Driver. streamIDs is called each tick to
// discover the currently active stream set.
func NewDriver(store *Store, streamIDs func() []string, consume ConsumeFunc) *Driver {
	return &Driver{store: store, streamIDs: streamIDs, consume: consume}
}

// Run drives consumption until ctx is canceled.
func (d *Driver) Run(ctx context.Context) {
	baseInterval := time.Second / driverFPS
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ids := d.streamIDs()
		totalBacklog := 0
		for _, id := range ids {
			n := d.store.BufferedCount(id)
			if n > backlogShrinkThreshold {
				d.store.DropAllButNewest(id)
				n = 1
			}
			totalBacklog += n
		}

		for _, id := range ids {
			if frame, ok := d.store.ConsumeFrame(id); ok {
				d.consume(id, frame)
			}
		}

		wait := baseInterval
		if totalBacklog >= totalBacklogThreshold {
			shrink := totalBacklog - totalBacklogThreshold + 1
			if shrink > 5 {
				shrink = 5
			}
			divisor := time.Duration(1) << uint(shrink)
			wait = baseInterval / divisor
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
