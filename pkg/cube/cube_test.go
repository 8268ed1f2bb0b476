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

package cube

import (
	"testing"

	"cubesim/pkg/em8051"
	"cubesim/pkg/flash"
	"cubesim/pkg/hub"
	"cubesim/pkg/neighbors"
	"cubesim/pkg/radio"
	"cubesim/pkg/rng"
)

func TestNew_WiresAllPeripherals(t *testing.T) {
	hw := New(0, hub.New(), false)
	if hw.Profiler != nil {
		t.Fatal("Profiler wired when profiling=false")
	}
	if hw.Flash == nil || hw.LCD == nil || hw.Radio == nil || hw.SPI == nil ||
		hw.I2C == nil || hw.ADC == nil || hw.MDU == nil || hw.Neighbors == nil || hw.RNG == nil {
		t.Fatal("New() left a peripheral unwired")
	}

	hw2 := New(1, hub.New(), true)
	if hw2.Profiler == nil {
		t.Fatal("Profiler not wired when profiling=true")
	}
}

func TestTick_ExecutesOneInstructionAndAdvancesClock(t *testing.T) {
	hw := New(0, hub.New(), false)
	// Code is zero-filled, i.e. NOP (opcode 0x00), 1 machine cycle = 4 clocks.
	clocks := hw.Tick()
	if clocks != 4 {
		t.Fatalf("Tick() = %d clocks, want 4", clocks)
	}
	if hw.CPU.PC != 1 {
		t.Fatalf("PC = %d after one NOP, want 1", hw.CPU.PC)
	}
}

func TestXReadXWrite_OrdinaryXRAM(t *testing.T) {
	hw := New(0, hub.New(), false)
	hw.XWrite(0x1234, 0xAB)
	if got := hw.XRead(0x1234); got != 0xAB {
		t.Fatalf("XRead(0x1234) = %#x, want 0xab", got)
	}
}

func TestXRead_RNGMappedAtTopOfXDATA(t *testing.T) {
	hw := New(0, hub.New(), false)
	hw.RNG.Seed(1)

	want := rng.New()
	want.Seed(1)

	if got := hw.XRead(rngAddr); got != want.Byte() {
		t.Fatalf("XRead(rngAddr) = %#x, want %#x (matching a freshly seeded stream)", got, want.Byte())
	}
}

func TestSFRWritten_MDUDispatchesMultiply(t *testing.T) {
	hw := New(0, hub.New(), false)
	sfr := hw.CPU.SFR[:]

	sfr[em8051.RegMD0-0x80] = 5
	hw.SFRWritten(em8051.RegMD0, 5)
	sfr[em8051.RegMD4-0x80] = 3
	hw.SFRWritten(em8051.RegMD4, 3)
	sfr[em8051.RegMD1-0x80] = 0
	hw.SFRWritten(em8051.RegMD1, 0)
	sfr[em8051.RegMD5-0x80] = 0
	hw.SFRWritten(em8051.RegMD5, 0)

	got := uint32(sfr[em8051.RegMD3-0x80])<<24 | uint32(sfr[em8051.RegMD2-0x80])<<16 |
		uint32(sfr[em8051.RegMD1-0x80])<<8 | uint32(sfr[em8051.RegMD0-0x80])
	if got != 15 {
		t.Fatalf("MDU multiply result = %d, want 15", got)
	}
}

func TestSFRWritten_ADCCON1StartBitArmsConversion(t *testing.T) {
	hw := New(0, hub.New(), false)
	sfr := hw.CPU.SFR[:]
	sfr[em8051.RegADCCON1-0x80] = 0x80 // power-up bit, no start bit yet
	hw.SFRWritten(em8051.RegADCCON1, 0x80)

	sfr[em8051.RegADCCON1-0x80] = 0x81 // start bit now set
	hw.SFRWritten(em8051.RegADCCON1, 0x81)

	hw.ADC.Tick(hw.deadline, sfr)
	if sfr[em8051.RegADCCON1-0x80]&0x40 == 0 {
		t.Fatal("ADC conversion never armed after ADCCON1's start bit was written")
	}
}

// pulseFlashWE drives the shared parallel-bus pins for one write cycle
// the way the port-bit mux does it, addressing addr via the P0/lat1
// combination (lat2 stays 0 -- the test never touches addresses above
// 0x3FFF). Flash.Cycle captures on a WE falling edge, so WE is held
// high through the address-latch step and only dropped once the
// target address/data are already on the bus.
func pulseFlashWE(hw *Hardware, addr uint32, data byte) {
	sfr := hw.CPU.SFR[:]
	lat1 := byte((addr >> 7) & 0x7F)
	p0 := byte((addr & 0x7F) << 1)

	sfr[em8051.RegP3-0x80] = ctrlFlashLat1 | ctrlFlashOE | ctrlFlashWE
	sfr[em8051.RegP1-0x80] = lat1
	hw.Tick()

	sfr[em8051.RegP3-0x80] = ctrlFlashOE
	sfr[em8051.RegP0-0x80] = p0
	sfr[em8051.RegP2-0x80] = data
	hw.Tick()

	sfr[em8051.RegP3-0x80] = ctrlFlashOE | ctrlFlashWE
	hw.Tick()
}

func TestDriveParallelBus_ProgramsFlashThroughPortMux(t *testing.T) {
	hw := New(0, hub.New(), false)

	pulseFlashWE(hw, 0, 0)
	pulseFlashWE(hw, 0, 0)
	pulseFlashWE(hw, 0xAAA, 0xAA)
	pulseFlashWE(hw, 0x555, 0x55)
	pulseFlashWE(hw, 0xAAA, 0xA0)
	pulseFlashWE(hw, 0x100, 0x3C)

	if hw.Flash.Busy() != flash.Program {
		t.Fatalf("Flash.Busy() = %v, want Program", hw.Flash.Busy())
	}
	if got := hw.Flash.Bytes()[0x100]; got != 0x3C {
		t.Fatalf("flash[0x100] = %#x, want 0x3c", got)
	}
}

type stubPeer struct {
	masked bool
	pulses []neighbors.Side
}

func (p *stubPeer) InputMasked(side neighbors.Side) bool { return p.masked }
func (p *stubPeer) ReceivePulse(side neighbors.Side)      { p.pulses = append(p.pulses, side) }

func TestDriveNeighbors_TransmitReachesAttachedPeer(t *testing.T) {
	hw := New(0, hub.New(), false)
	peer := &stubPeer{}
	hw.AttachPeers([]neighbors.Receiver{nil, peer})
	hw.Neighbors.SetContact(neighbors.Right, neighbors.Left, 1)

	sfr := hw.CPU.SFR[:]
	// P1.1 (neighborOut1, the "Right" side per neighborBits' ordering)
	// driven high -- a rising edge on our transmit-out pin.
	sfr[em8051.RegP1-0x80] = neighborOut1
	hw.Tick()

	if len(peer.pulses) == 0 {
		t.Fatal("driveNeighbors() never reached the attached peer on a rising edge")
	}
}

func TestReceivePulse_SetsSharedInputLineUnlessMasked(t *testing.T) {
	hw := New(0, hub.New(), false)
	hw.ReceivePulse(neighbors.Top)
	if hw.CPU.SFR[em8051.RegP1-0x80]&neighborIn == 0 {
		t.Fatal("ReceivePulse() did not assert the shared neighbor input line")
	}
}

func TestExceptionCount_IncrementsOnAnyBusException(t *testing.T) {
	hw := New(0, hub.New(), false)
	hw.Except(em8051.ExcMDUError)
	hw.Except(em8051.ExcI2CError)
	if hw.ExceptionCount() != 2 {
		t.Fatalf("ExceptionCount() = %d, want 2", hw.ExceptionCount())
	}
}

func TestRadioLoopback_ThroughHardwareTick(t *testing.T) {
	h := hub.New()
	hw := New(0, h, false)

	key := hub.Key(addrBytesForTest(hw), hw.Radio.Regs()[0x05])
	h.Send(key, []byte{7, 8, 9})

	// MOV direct,#imm on RFCON: CE and RFCKEN set, CSN left low (the
	// software convention pkg/radio.SetControl expects for an active
	// session -- see its doc comment).
	hw.CPU.Code[0] = 0x75
	hw.CPU.Code[1] = em8051.RegRFCON
	hw.CPU.Code[2] = rfconRFCE | rfconRFCKEN
	hw.Tick()

	for i := 0; i < radio.RXIntervalUS; i++ {
		hw.Tick()
	}

	if hw.CPU.SFR[em8051.RegIRCON-0x80]&em8051.IRConRadio == 0 {
		t.Fatal("IRCON radio bit never raised after a hub delivery")
	}
}

// addrBytesForTest mirrors pkg/radio's own addrBytes helper (unexported
// there) against the reset default RX_ADDR_P0 register, since the
// aggregate test only has the exported Regs() view to work from.
func addrBytesForTest(hw *Hardware) [5]byte {
	regs := hw.Radio.Regs()
	return [5]byte{regs[0x0A], regs[0x0A], regs[0x0A], regs[0x0A], regs[0x0A]}
}
