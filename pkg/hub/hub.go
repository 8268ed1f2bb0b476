// Copyright © 2019 mg
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// Package hub implements the per-address network message hub that
// stands in for real nRF24L01 RF propagation: cubes exchange fixed-size
// packets keyed by a 64-bit (channel, address) tuple, with lossless,
// in-order delivery. Spec §1 explicitly scopes real RF effects
// (propagation, loss, retries) out of the core -- this is the "clean
// delivery through a per-address message hub" it asks for instead.
package hub

import "sync"

const maxPayload = 32

// Packet is one radio payload in flight.
type Packet struct {
	Data []byte
}

// Hub is a process-wide (but explicitly constructed, per design note §9's
// guidance on avoiding real globals) fan-out of address+channel keyed
// mailboxes.
type Hub struct {
	mu       sync.Mutex
	mailbox  map[uint64][]Packet
}

// New returns an empty hub. Each emulator instance should construct its
// own, so that multiple emulator instances never cross-talk.
func New() *Hub {
	return &Hub{mailbox: make(map[uint64][]Packet)}
}

// Key packs a 5-byte radio address plus RF channel into the 64-bit key
// the hub indexes by, matching the wire format in spec §6.
func Key(addr [5]byte, channel byte) uint64 {
	var k uint64
	for i := 4; i >= 0; i-- {
		k = (k << 8) | uint64(addr[i])
	}
	return k | uint64(channel)<<56
}

// Send enqueues a payload (copied) addressed to key. Payloads over
// maxPayload bytes are dropped, matching a real nRF24L01's fixed frame
// size.
func (h *Hub) Send(key uint64, data []byte) {
	if len(data) > maxPayload {
		return
	}
	cp := append([]byte(nil), data...)
	h.mu.Lock()
	h.mailbox[key] = append(h.mailbox[key], Packet{Data: cp})
	h.mu.Unlock()
}

// Recv pops the oldest pending packet addressed to key, if any.
func (h *Hub) Recv(key uint64) (Packet, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	q := h.mailbox[key]
	if len(q) == 0 {
		return Packet{}, false
	}
	p := q[0]
	h.mailbox[key] = q[1:]
	return p, true
}
