// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package rtppc

import (
	"sync"
	"time"

	"github.com/Dash-Industry-Forum/pointcloud-live/pkg/pointcloud"
)

// reassembly tracks in-progress chunk collection for one frame,
// deduplicating repeated chunks via the set of chunk offsets received (spec
// §4.7, §5 "RTP reassembly is order-agnostic but idempotent").
type reassembly struct {
	buf         []byte
	received    map[uint32]struct{}
	receivedLen uint32
	totalLen    uint32
	clientID    uint32
	tileNr      uint32
	lastSeen    time.Time
}

func (r *reassembly) insert(h Header, payload []byte) {
	if _, dup := r.received[h.Offset]; dup {
		return
	}
	if int(h.Offset)+len(payload) > len(r.buf) {
		return
	}
	copy(r.buf[h.Offset:], payload)
	r.received[h.Offset] = struct{}{}
	r.receivedLen += uint32(len(payload))
	r.lastSeen = time.Now()
}

func (r *reassembly) complete() bool {
	return r.receivedLen >= r.totalLen
}

// reassemblyKey identifies one in-flight frame by sender, frame
// number, tile, and quality (spec §3): two tiles (or quality layers)
// of the same client/frame share a frame_nr and must not share a
// reassembly buffer.
type reassemblyKey struct {
	clientID  uint32
	frameNr   uint64
	tileNr    uint32
	qualityNr uint32
}

// gcAge is how long an incomplete reassembly is kept before being
// culled by the periodic GC (spec §4.7/§5).
const gcAge = 60 * time.Second

// Depacketizer reassembles chunked RTP packets back into FrameTaskData,
// one reassembly state per reassemblyKey (client_id, frame_nr, tile_nr,
// quality_nr) (spec §4.7).
type Depacketizer struct {
	mu           sync.Mutex
	reassemblies map[reassemblyKey]*reassembly
}

// NewDepacketizer returns an empty Depacketizer.
func NewDepacketizer() *Depacketizer {
	return &Depacketizer{reassemblies: make(map[reassemblyKey]*reassembly)}
}

// Insert parses one RTP payload (chunk header + chunk bytes) and, once
// the frame is fully reassembled, returns the materialized
// FrameTaskData. Malformed payloads are dropped silently (spec §7
// ProtocolParseError).
func (d *Depacketizer) Insert(rtpPayload []byte) (pointcloud.FrameTaskData, bool) {
	hdr, err := Unmarshal(rtpPayload)
	if err != nil {
		return pointcloud.FrameTaskData{}, false
	}
	chunk := rtpPayload[HeaderSize:]
	if uint32(len(chunk)) < hdr.ChunkLen {
		return pointcloud.FrameTaskData{}, false
	}
	chunk = chunk[:hdr.ChunkLen]

	key := reassemblyKey{clientID: hdr.ClientID, frameNr: hdr.FrameNr, tileNr: hdr.TileNr, qualityNr: hdr.QualityNr}

	d.mu.Lock()
	defer d.mu.Unlock()

	r, ok := d.reassemblies[key]
	if !ok {
		r = &reassembly{
			buf:      make([]byte, hdr.TotalLen),
			received: make(map[uint32]struct{}),
			totalLen: hdr.TotalLen,
			clientID: hdr.ClientID,
			tileNr:   hdr.TileNr,
			lastSeen: time.Now(),
		}
		d.reassemblies[key] = r
	}
	r.insert(hdr, chunk)

	if !r.complete() {
		return pointcloud.FrameTaskData{}, false
	}
	delete(d.reassemblies, key)

	clientID := r.clientID
	tileNr := r.tileNr
	frameLen := r.totalLen
	return pointcloud.FrameTaskData{
		PresentationTimeUS: hdr.FrameNr,
		SendTimeUS:         hdr.FrameNr,
		Data:               r.buf,
		SFUClientID:        &clientID,
		SFUTileIndex:       &tileNr,
		SFUFrameLen:        &frameLen,
	}, true
}

// GC removes reassemblies that have not received a chunk in the last
// 60 seconds. Intended to be called periodically from a dedicated
// goroutine (spec §5 "a periodic GC thread culls reassemblies older
// than 60 s").
func (d *Depacketizer) GC() {
	cutoff := time.Now().Add(-gcAge)
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, r := range d.reassemblies {
		if r.lastSeen.Before(cutoff) {
			delete(d.reassemblies, key)
		}
	}
}

// RunGC starts a goroutine that calls GC every interval until stop is
// closed.
func (d *Depacketizer) RunGC(interval time.Duration, stop <-chan struct{}) {
	t := time.NewTicker(interval)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				d.GC()
			}
		}
	}()
}
