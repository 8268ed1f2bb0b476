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

package flash

import (
	"testing"

	"cubesim/pkg/vtime"
)

type fakeExceptor struct {
	badCmd, busy int
}

func (f *fakeExceptor) ExceptBadFlashCmd() { f.badCmd++ }
func (f *fakeExceptor) ExceptFlashBusy()   { f.busy++ }

// writeCycle pulses WE low-then-high at addr/data, the way the cube's
// bus mux drives the flash's parallel pins for one write.
func writeCycle(f *Flash, addr uint32, data byte) {
	pins := Pins{Addr: addr, Power: true, WE: false, OE: true, DataIn: data}
	f.Cycle(&pins)
	pins.WE = true
	f.Cycle(&pins)
}

func TestNew_ErasedToAllFF(t *testing.T) {
	f := New(&fakeExceptor{})
	for i, b := range f.Bytes()[:256] {
		if b != 0xFF {
			t.Fatalf("byte %d = %#x, want 0xFF", i, b)
		}
	}
}

func TestByteProgram(t *testing.T) {
	f := New(&fakeExceptor{})

	writeCycle(f, 0, 0)
	writeCycle(f, 0, 0)
	writeCycle(f, 0xAAA, 0xAA)
	writeCycle(f, 0x555, 0x55)
	writeCycle(f, 0xAAA, 0xA0)
	writeCycle(f, 0x100, 0x3C)

	if f.Busy() != Program {
		t.Fatalf("Busy() = %v, want Program", f.Busy())
	}
	if got := f.Bytes()[0x100]; got != 0x3C {
		t.Fatalf("mem[0x100] = %#x, want 0x3C", got)
	}
}

func TestSectorErase(t *testing.T) {
	f := New(&fakeExceptor{})
	f.Bytes()[0x100] = 0x00

	writeCycle(f, 0xAAA, 0xAA)
	writeCycle(f, 0x555, 0x55)
	writeCycle(f, 0xAAA, 0x80)
	writeCycle(f, 0xAAA, 0xAA)
	writeCycle(f, 0x555, 0x55)
	writeCycle(f, 0x000, 0x30)

	if f.Busy() != EraseSector {
		t.Fatalf("Busy() = %v, want EraseSector", f.Busy())
	}
	if got := f.Bytes()[0x100]; got != 0xFF {
		t.Fatalf("mem[0x100] after sector erase = %#x, want 0xFF", got)
	}
	if f.EraseCounts()[0] != 1 {
		t.Fatalf("EraseCounts()[0] = %d, want 1", f.EraseCounts()[0])
	}
}

func TestTick_BusyClearsAfterProgramTime(t *testing.T) {
	f := New(&fakeExceptor{})
	var clock vtime.Clock
	deadline := vtime.NewDeadline(&clock)

	writeCycle(f, 0, 0)
	writeCycle(f, 0, 0)
	writeCycle(f, 0xAAA, 0xAA)
	writeCycle(f, 0x555, 0x55)
	writeCycle(f, 0xAAA, 0xA0)
	writeCycle(f, 0x10, 0x01)

	f.Tick(deadline)
	if f.Busy() != Program {
		t.Fatalf("Busy() = %v immediately after program start, want Program", f.Busy())
	}

	clock.Advance(vtime.Usec(ProgramTimeUS) + 1)
	f.Tick(deadline)
	if f.Busy() != Idle {
		t.Fatalf("Busy() = %v after program time elapsed, want Idle", f.Busy())
	}
}

func TestDataOut_ReadsLatchedByte(t *testing.T) {
	f := New(&fakeExceptor{})
	f.Bytes()[0x42] = 0x99

	pins := Pins{Addr: 0x42, Power: true, WE: true, OE: false}
	f.Cycle(&pins)
	if !pins.DataDrv {
		t.Fatal("Cycle() did not assert DataDrv on an OE-active read")
	}
	if got := f.DataOut(); got != 0x99 {
		t.Fatalf("DataOut() = %#x, want 0x99", got)
	}
}

func TestCycle_ChipDisableTristatesBus(t *testing.T) {
	f := New(&fakeExceptor{})
	pins := Pins{Power: true, CE: true, WE: true, OE: false}
	f.Cycle(&pins)
	if pins.DataDrv {
		t.Fatal("Cycle() drove the bus while CE was deasserted (chip disabled)")
	}
}
