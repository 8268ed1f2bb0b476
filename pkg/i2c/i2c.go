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

// Package i2c implements the master-side I2C controller used to talk to
// the on-cube accelerometer: a small state machine that advances one byte
// per I2C byte-time, modeled after pkg/spi's byte-timed shift register.
package i2c

import "cubesim/pkg/vtime"

// Accel is the I2C peripheral on the other end of the bus -- the
// accelerometer, reporting its current X/Y/Z sample.
type Accel interface {
	// ReadRegister returns the accelerometer's register contents at the
	// given offset from the register pointer set by a prior write.
	ReadRegister(offset int) byte
}

// Exceptor reports an I2C protocol error (e.g. NACK where an ACK was
// expected).
type Exceptor interface {
	ExceptI2C()
}

type state int

const (
	stateIdle state = iota
	stateStart
	stateAddrWrite
	stateRegWrite
	stateRepeatStart
	stateAddrRead
	stateReadByte
	stateStop
)

const bytesPerTransfer = 11 // clock ticks per byte-time step of the state machine

// Bus is the I2C master state machine.
type Bus struct {
	accel    Accel
	exceptor Exceptor

	st        state
	timer     uint64
	axis      int // which of the 6 axis/data bytes we're reading
	regOffset int
	lastByte  byte
	ackBits   byte
}

// New returns an I2C master driving accel, reporting errors through exc.
func New(accel Accel, exc Exceptor) *Bus {
	return &Bus{accel: accel, exceptor: exc}
}

// Start begins a transaction: send-START, then address-write.
func (b *Bus) Start(now uint64, deadline *vtime.Deadline) {
	b.st = stateStart
	b.timer = deadline.SetRelative(bytesPerTransfer)
}

// WriteRegister selects the accelerometer register to read back from on
// the next transaction's axis reads.
func (b *Bus) WriteRegister(offset int) {
	b.regOffset = offset
}

// AckBits returns the sticky "peripheral acknowledged" bitmask -- bit 0
// is set once a full 6-byte axis read cycle has completed.
func (b *Bus) AckBits() byte {
	return b.ackBits
}

// ClearAckBits clears the sticky ack bitmask, typically after firmware
// has consumed the new sample.
func (b *Bus) ClearAckBits() {
	b.ackBits = 0
}

// Tick advances the state machine one I2C byte-time per call once a
// transaction has been started, stepping send-START, address-write,
// register-write, repeated-START, address-read, six axis-byte reads,
// send-STOP.
func (b *Bus) Tick(deadline *vtime.Deadline) {
	if b.st == stateIdle {
		return
	}
	if !deadline.HasPassed(b.timer) {
		deadline.Set(b.timer)
		return
	}

	switch b.st {
	case stateStart:
		b.st = stateAddrWrite
	case stateAddrWrite:
		b.st = stateRegWrite
	case stateRegWrite:
		b.st = stateRepeatStart
	case stateRepeatStart:
		b.st = stateAddrRead
	case stateAddrRead:
		b.axis = 0
		b.st = stateReadByte
	case stateReadByte:
		if b.accel != nil {
			b.lastByte = b.accel.ReadRegister(b.regOffset + b.axis)
		}
		b.axis++
		if b.axis >= 6 {
			b.ackBits |= 0x01
			b.st = stateStop
		}
	case stateStop:
		b.st = stateIdle
	}

	if b.st != stateIdle {
		b.timer = deadline.SetRelative(bytesPerTransfer)
	}
}

// LastByte returns the most recently clocked-in read byte.
func (b *Bus) LastByte() byte {
	return b.lastByte
}

// Busy reports whether a transaction is in progress.
func (b *Bus) Busy() bool {
	return b.st != stateIdle
}
