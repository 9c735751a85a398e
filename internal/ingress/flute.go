// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package ingress

import (
	"encoding/xml"
	"log/slog"
	"net"
	"sync"

	"github.com/Dash-Industry-Forum/pointcloud-live/pkg/codec"
	"github.com/Dash-Industry-Forum/pointcloud-live/pkg/flute"
)

// fluteQueueCapacity bounds the receiver's circular packet queue
// (spec §4.8 component C8 "FLUTE receiver with circular packet
// queue").
const fluteQueueCapacity = 20000

// fluteObject accumulates an object's data blocks by block number
// until its FDT-declared length is known and fully received.
type fluteObject struct {
	toi      uint64
	location string
	blocks   map[uint32][]byte
	length   int
}

// FLUTE receives LCT/ALC datagrams over UDP, reassembles FDT-described
// objects, and decodes completed ones via the codec registry (spec
// §4.8).
type FLUTE struct {
	conn  *net.UDPConn
	queue chan []byte
	sink  FrameSink
	log   *slog.Logger

	mu       sync.Mutex
	objects  map[uint64]*fluteObject
	fdtByTOI map[uint64]flute.FDTFile
}

// NewFLUTE binds a UDP listener on addr and returns a FLUTE ingress
// (FatalInitError per spec §7 if binding fails).
func NewFLUTE(addr *net.UDPAddr, sink FrameSink, log *slog.Logger) (*FLUTE, error) {
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}
	f := &FLUTE{
		conn:     conn,
		queue:    make(chan []byte, fluteQueueCapacity),
		sink:     sink,
		log:      log,
		objects:  make(map[uint64]*fluteObject),
		fdtByTOI: make(map[uint64]flute.FDTFile),
	}
	go f.readLoop()
	go f.processLoop()
	return f, nil
}

func (f *FLUTE) readLoop() {
	buf := make([]byte, 65536)
	for {
		n, _, err := f.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		cp := make([]byte, n)
		copy(cp, buf[:n])
		select {
		case f.queue <- cp:
		default:
			f.log.Warn("flute ingress: queue full, dropping packet")
		}
	}
}

func (f *FLUTE) processLoop() {
	for raw := range f.queue {
		pkt, err := flute.Unmarshal(raw)
		if err != nil {
			f.log.Warn("flute ingress: malformed packet", "err", err)
			continue
		}
		if pkt.LCT.TOI == 0 {
			f.handleFDT(pkt.Payload)
			continue
		}
		f.handleDataBlock(pkt)
	}
}

func (f *FLUTE) handleFDT(payload []byte) {
	var inst flute.FDTInstance
	if err := xml.Unmarshal(payload, &inst); err != nil {
		f.log.Warn("flute ingress: malformed FDT instance", "err", err)
		return
	}
	f.mu.Lock()
	for _, file := range inst.Files {
		f.fdtByTOI[file.TOI] = file
	}
	f.mu.Unlock()
}

func (f *FLUTE) handleDataBlock(pkt flute.Packet) {
	f.mu.Lock()
	obj, ok := f.objects[pkt.LCT.TOI]
	if !ok {
		obj = &fluteObject{toi: pkt.LCT.TOI, blocks: make(map[uint32][]byte)}
		if file, ok := f.fdtByTOI[pkt.LCT.TOI]; ok {
			obj.location = file.ContentLocation
			obj.length = file.ContentLength
		}
		f.objects[pkt.LCT.TOI] = obj
	}
	obj.blocks[pkt.BlockNr] = pkt.Payload
	complete := obj.length > 0 && totalLen(obj.blocks) >= obj.length
	if complete {
		delete(f.objects, pkt.LCT.TOI)
	}
	f.mu.Unlock()

	if complete {
		f.emitObject(obj)
	}
}

func totalLen(blocks map[uint32][]byte) int {
	n := 0
	for _, b := range blocks {
		n += len(b)
	}
	return n
}

func (f *FLUTE) emitObject(obj *fluteObject) {
	maxBlock := uint32(0)
	for nr := range obj.blocks {
		if nr > maxBlock {
			maxBlock = nr
		}
	}
	data := make([]byte, 0, obj.length)
	for i := uint32(0); i <= maxBlock; i++ {
		data = append(data, obj.blocks[i]...)
	}
	pc := codec.DecodeFrame(data)
	f.sink.PushFrame(obj.location, pc)
}

// Close stops the ingress and releases its socket.
func (f *FLUTE) Close() error {
	return f.conn.Close()
}
