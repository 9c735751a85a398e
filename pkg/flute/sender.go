// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package flute

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// queueCapacity is the bounded packet queue depth (spec §4.8).
const queueCapacity = 20000

// fdtReenqueueThreshold: an object's FDT packets are only re-enqueued
// if it produced more than this many data (non-FDT) packets, matching
// spec §4.8's skip-on-trivial-file rule.
const fdtReenqueueThreshold = 3

// symbolSize is the maximum encoding symbol payload length per ALC
// packet.
const symbolSize = 1400

// queuedPacket holds one wire-ready datagram.
type queuedPacket struct {
	data []byte
}

// Sender paces and transmits FLUTE object packets over UDP (spec
// §4.8). Bandwidth is read atomically so it can be updated
// concurrently by the control API.
type Sender struct {
	mu       sync.Mutex
	conn     *net.UDPConn
	dest     *net.UDPAddr
	queue    chan queuedPacket
	bw       atomic.Uint64 // bits per second
	log      *slog.Logger
	tsi      uint64
	nextTOI  atomic.Uint64
	encoding ContentEncoding
	fec      FECScheme
	withMD5  bool

	stop chan struct{}
	done chan struct{}
}

// NewSender binds a UDP socket to dest (FatalInitError per spec §7 if
// binding fails) and returns a Sender with the given initial bandwidth
// cap in bits per second.
func NewSender(dest *net.UDPAddr, tsi uint64, bandwidthBPS uint64, log *slog.Logger) (*Sender, error) {
	conn, err := net.DialUDP("udp", nil, dest)
	if err != nil {
		return nil, fmt.Errorf("flute: bind sender socket: %w", err)
	}
	s := &Sender{
		conn:  conn,
		dest:  dest,
		queue: make(chan queuedPacket, queueCapacity),
		log:   log,
		tsi:   tsi,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	s.bw.Store(bandwidthBPS)
	go s.transmitLoop()
	return s, nil
}

// SetBandwidth updates the pacing target; re-read by the transmitter
// every 100 iterations (spec §4.8).
func (s *Sender) SetBandwidth(bps uint64) { s.bw.Store(bps) }

// Reconfigure stores the new encoding/FEC/MD5 settings, destroys the
// current socket and creates a new one (spec §4.8). The Sender itself,
// its packet queue and its transmitter goroutine are kept, not
// re-created.
func (s *Sender) Reconfigure(encoding ContentEncoding, fec FECScheme, withMD5 bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.encoding, s.fec, s.withMD5 = encoding, fec, withMD5

	old := s.conn
	conn, err := net.DialUDP("udp", nil, s.dest)
	if err != nil {
		return fmt.Errorf("flute: recreate sender socket: %w", err)
	}
	s.conn = conn
	_ = old.Close()
	return nil
}

// Close stops the transmitter goroutine and closes the socket.
func (s *Sender) Close() error {
	close(s.stop)
	<-s.done
	return s.conn.Close()
}

// EnqueueObject wraps data as a FLUTE object, splits it into symbols,
// and enqueues its ALC packets followed, when there are more than
// fdtReenqueueThreshold of them, by one FDT-describing instance
// packet. Returns the number of data packets enqueued.
func (s *Sender) EnqueueObject(presentationTimeUS, sendTimeUS uint64, data []byte) int {
	toi := s.nextTOI.Add(1)
	loc := ContentLocationFor(presentationTimeUS, sendTimeUS)

	s.mu.Lock()
	obj := NewObject(toi, loc, data, s.encoding, s.fec, s.withMD5)
	s.mu.Unlock()

	dataPackets := s.enqueueDataPackets(obj)
	s.maybeEnqueueFDT(obj, dataPackets)
	return dataPackets
}

func (s *Sender) enqueueDataPackets(obj Object) int {
	if len(obj.Data) == 0 {
		return 0
	}
	count := 0
	offset := 0
	for blockNr := uint32(0); offset < len(obj.Data); blockNr++ {
		end := offset + symbolSize
		if end > len(obj.Data) {
			end = len(obj.Data)
		}
		pkt := Packet{
			LCT:     LCTHeader{Version: 1, TSI: s.tsi, TOI: obj.TOI, CodePoint: uint8(obj.FEC)},
			BlockNr: blockNr,
			Payload: obj.Data[offset:end],
		}
		if !s.tryEnqueue(pkt.Marshal()) {
			break
		}
		count++
		offset = end
	}
	return count
}

// maybeEnqueueFDT enqueues a packet carrying the FDT instance
// describing obj, unless obj produced too few data packets to be
// worth the overhead (spec §4.8).
func (s *Sender) maybeEnqueueFDT(obj Object, dataPackets int) {
	if dataPackets <= fdtReenqueueThreshold {
		return
	}
	body, err := MarshalFDTInstance([]Object{obj})
	if err != nil {
		s.log.Warn("flute: marshal FDT failed", "err", err)
		return
	}
	pkt := Packet{
		LCT:     LCTHeader{Version: 1, TSI: s.tsi, TOI: 0, CodePoint: uint8(obj.FEC)},
		BlockNr: 0,
		Payload: body,
	}
	s.tryEnqueue(pkt.Marshal())
}

func (s *Sender) tryEnqueue(data []byte) bool {
	select {
	case s.queue <- queuedPacket{data: data}:
		return true
	default:
		s.log.Warn("flute: packet queue full, dropping")
		return false
	}
}

// QueueLen reports the number of packets currently queued.
func (s *Sender) QueueLen() int { return len(s.queue) }

// transmitLoop pops packets and paces them to the configured
// bandwidth, matching spec §4.8's pacing formula.
func (s *Sender) transmitLoop() {
	defer close(s.done)
	lastSend := time.Now()
	iterations := 0
	bw := s.bw.Load()

	for {
		select {
		case <-s.stop:
			return
		case qp, ok := <-s.queue:
			if !ok {
				return
			}
			iterations++
			if iterations%100 == 0 {
				bw = s.bw.Load()
			}
			if bw > 0 {
				desiredUS := float64(len(qp.data)*8) * 1_000_000 / float64(bw)
				elapsed := time.Since(lastSend)
				sleepUS := desiredUS - float64(elapsed.Microseconds())
				if sleepUS > 0 {
					time.Sleep(time.Duration(sleepUS) * time.Microsecond)
				}
			}

			s.mu.Lock()
			conn := s.conn
			s.mu.Unlock()
			if _, err := conn.Write(qp.data); err != nil {
				s.log.Warn("flute: udp send failed", "err", err)
			}
			lastSend = time.Now()
		}
	}
}
