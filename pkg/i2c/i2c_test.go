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

package i2c

import (
	"testing"

	"cubesim/pkg/vtime"
)

type fakeAccel struct {
	regs [6]byte
}

func (a *fakeAccel) ReadRegister(offset int) byte { return a.regs[offset%len(a.regs)] }

func TestTransaction_ReadsSixAxisBytesThenStops(t *testing.T) {
	accel := &fakeAccel{regs: [6]byte{0x10, 0x20, 0x30, 0x40, 0x50, 0x60}}
	b := New(accel, nil)
	var clock vtime.Clock
	deadline := vtime.NewDeadline(&clock)

	b.Start(clock.Now(), deadline)
	b.WriteRegister(0)

	if !b.Busy() {
		t.Fatal("Busy() false right after Start()")
	}

	var last byte
	for i := 0; i < 11; i++ {
		clock.Advance(bytesPerTransfer + 1)
		b.Tick(deadline)
		last = b.LastByte()
	}

	if last != accel.regs[5] {
		t.Fatalf("LastByte() = %#x, want %#x (last axis byte)", last, accel.regs[5])
	}
	if b.AckBits()&0x01 == 0 {
		t.Fatal("AckBits() bit 0 not set after a completed transfer")
	}

	clock.Advance(bytesPerTransfer + 1)
	b.Tick(deadline)
	if b.Busy() {
		t.Fatal("Busy() still true after the STOP state was reached")
	}
}

func TestClearAckBits(t *testing.T) {
	accel := &fakeAccel{}
	b := New(accel, nil)
	var clock vtime.Clock
	deadline := vtime.NewDeadline(&clock)

	b.Start(clock.Now(), deadline)
	for i := 0; i < 11; i++ {
		clock.Advance(bytesPerTransfer + 1)
		b.Tick(deadline)
	}

	if b.AckBits() == 0 {
		t.Fatal("expected AckBits set before clearing")
	}
	b.ClearAckBits()
	if b.AckBits() != 0 {
		t.Fatal("ClearAckBits() did not clear the sticky bitmask")
	}
}

func TestTick_IdleIsNoop(t *testing.T) {
	b := New(&fakeAccel{}, nil)
	var clock vtime.Clock
	deadline := vtime.NewDeadline(&clock)
	b.Tick(deadline) // never started
	if b.Busy() {
		t.Fatal("Busy() true without a Start()")
	}
}
