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

// Package neighbors implements the cross-cube inductive-pulse fabric:
// four bidirectional GPIO-driven sides per cube, an adjacency matrix
// maintained by the UI thread, and edge-triggered pulse delivery between
// neighbored cubes.
package neighbors

// Side identifies one of the cube's four physical edges.
type Side int

const (
	Top Side = iota
	Left
	Bottom
	Right
	NumSides
)

// Receiver is the destination side of a pulse: a neighboring cube's
// input, which may or may not currently be listening.
type Receiver interface {
	// InputMasked reports whether side is currently squelched (its pin
	// is driven rather than floating, or its direction is misconfigured).
	InputMasked(side Side) bool
	// ReceivePulse delivers a rising-edge pulse to side.
	ReceivePulse(side Side)
}

// Fabric is one cube's neighbor sensing/transmit hardware. The adjacency
// matrix (mySides[mySide][otherSide] -> bitmask of neighboring cube
// indices) is written only by the UI/control thread; IOTick, which reads
// it, runs on the emulation thread and tolerates the transient races that
// implies, exactly as the spec's concurrency model allows.
type Fabric struct {
	mySides [NumSides][NumSides]uint32

	prevDriveHigh uint8
	inputMask     uint8

	// peers indexes into a flat table of sibling fabrics/receivers,
	// supplied by the aggregate at construction -- see design note §9's
	// guidance to prefer an index + shared table over a literal pointer
	// cycle between cubes.
	peers []Receiver
}

// AttachPeers gives the fabric the table of neighboring cubes it may
// deliver pulses to, indexed by cube index.
func (f *Fabric) AttachPeers(peers []Receiver) {
	f.peers = peers
}

// SetContact marks two neighbor sensors as in-range. Only the UI thread
// should call this.
func (f *Fabric) SetContact(mySide, otherSide Side, otherCube int) {
	f.mySides[mySide][otherSide] |= 1 << uint(otherCube)
}

// ClearContact marks two neighbor sensors as no longer in-range. Only the
// UI thread should call this.
func (f *Fabric) ClearContact(mySide, otherSide Side, otherCube int) {
	f.mySides[mySide][otherSide] &^= 1 << uint(otherCube)
}

// InputMasked reports whether side is not currently able to receive,
// because the corresponding input mask bit computed in the last IOTick is
// clear.
func (f *Fabric) InputMasked(side Side) bool {
	return f.inputMask&(1<<uint(side)) == 0
}

// PulseSink is invoked when a side we're transmitting on also hears its
// own echo -- the receiver is a single shared amplifier across all
// sides, so driving any side's output pin rings the input pin too.
type PulseSink func()

// IOTick computes the rising-edge mask on the four output pins versus the
// previous sample, and for each newly-driven side, delivers a pulse to
// every neighboring cube listed for that side in the adjacency matrix,
// subject to the destination's input mask. drivePins is the live
// drive-high bitmask (bit per side, in Top/Left/Bottom/Right order).
// enableMask is the set of sides whose receiver is currently wired up
// (their pin direction is input and the shared input pin is readable);
// it becomes this cube's own InputMasked state for the next delivery.
// recvEcho fires once for each side with a rising edge.
func (f *Fabric) IOTick(drivePins, enableMask uint8, recvEcho PulseSink) {
	f.inputMask = enableMask

	driveEdge := drivePins & ^f.prevDriveHigh
	f.prevDriveHigh = drivePins

	if driveEdge == 0 {
		return
	}

	for mySide := Side(0); mySide < NumSides; mySide++ {
		bit := uint8(1) << uint(mySide)
		if bit&driveEdge == 0 {
			continue
		}

		// We're transmitting on this side, so we hear our own echo (a
		// single shared amplifier sees all sides at once).
		if recvEcho != nil {
			recvEcho()
		}

		for otherSide := Side(0); otherSide < NumSides; otherSide++ {
			sideMask := f.mySides[mySide][otherSide]
			for sideMask != 0 {
				otherCube := trailingZeros32(sideMask)
				sideMask &^= 1 << uint(otherCube)
				f.transmit(otherCube, otherSide)
			}
		}
	}
}

func (f *Fabric) transmit(otherCube int, otherSide Side) {
	if otherCube < 0 || otherCube >= len(f.peers) || f.peers[otherCube] == nil {
		return
	}
	dest := f.peers[otherCube]
	if !dest.InputMasked(otherSide) {
		dest.ReceivePulse(otherSide)
	}
}

func trailingZeros32(v uint32) int {
	n := 0
	for v&1 == 0 {
		v >>= 1
		n++
	}
	return n
}
