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

// Package flash models the cube's 4 MiB NOR flash: a command-FIFO
// decoder that recognizes the vendor unlock sequences for byte-program,
// buffer-program, sector-erase, block-erase and chip-erase, plus the
// busy timers and toggling status byte those operations go through.
package flash

import "cubesim/pkg/vtime"

// Geometry, matching the Winbond-class part the original targets.
const (
	Size       = 4 * 1024 * 1024
	SectorSize = 64 * 1024
	BlockSize  = 32 * 1024
	BufferSize = 32

	cmdLength = 6
	fifoMask  = 0xF
	fifoSize  = fifoMask + 1
)

// Status byte bits.
const (
	statusDataInv    = 0x80
	statusToggle     = 0x40
	statusEraseToggle = 0x04
)

// Timing, in microseconds, matching the datasheet "typical" values the
// original uses.
const (
	ProgramTimeUS      = 6
	ProgramBufferTimeUS = 96
	EraseSectorTimeUS  = 18000
	EraseBlockTimeUS   = 9000
	EraseChipTimeUS    = 40000
)

// BusyFlag enumerates the flash's busy states.
type BusyFlag int

const (
	Idle BusyFlag = iota
	Program
	EraseSector
	EraseBlock
	EraseChip
)

func (b BusyFlag) isErase() bool {
	return b == EraseSector || b == EraseBlock || b == EraseChip
}

// Pins is the flash's cycle-level parallel bus interface.
type Pins struct {
	Addr    uint32
	Power   bool
	OE      bool // active-low
	CE      bool // active-low
	WE      bool // active-low
	DataIn  byte
	DataDrv bool // OUT: data bus is being driven by the flash
}

// Exceptor reports a flash protocol violation (none are currently raised
// by this package, but except(BAD_FLASH_CMD)/except(FLASH_BUSY) are
// wired through here for front ends that want to surface a partial or
// rejected unlock sequence).
type Exceptor interface {
	ExceptBadFlashCmd()
	ExceptFlashBusy()
}

type cmdEntry struct {
	addr uint32
	data byte
}

type cmdPattern struct {
	addrMask uint16
	addrVal  uint16
	dataMask byte
	dataVal  byte
}

// Command templates, transcribed from the original part's datasheet
// unlock sequences.
var (
	cmdByteProgram = [cmdLength]cmdPattern{
		{},
		{},
		{0xFFF, 0xAAA, 0xFF, 0xAA},
		{0xFFF, 0x555, 0xFF, 0x55},
		{0xFFF, 0xAAA, 0xFF, 0xA0},
		{},
	}
	cmdSectorErase = [cmdLength]cmdPattern{
		{0xFFF, 0xAAA, 0xFF, 0xAA},
		{0xFFF, 0x555, 0xFF, 0x55},
		{0xFFF, 0xAAA, 0xFF, 0x80},
		{0xFFF, 0xAAA, 0xFF, 0xAA},
		{0xFFF, 0x555, 0xFF, 0x55},
		{0x000, 0x000, 0xFF, 0x30},
	}
	cmdBlockErase = [cmdLength]cmdPattern{
		{0xFFF, 0xAAA, 0xFF, 0xAA},
		{0xFFF, 0x555, 0xFF, 0x55},
		{0xFFF, 0xAAA, 0xFF, 0x80},
		{0xFFF, 0xAAA, 0xFF, 0xAA},
		{0xFFF, 0x555, 0xFF, 0x55},
		{0x000, 0x000, 0xFF, 0x50},
	}
	cmdChipErase = [cmdLength]cmdPattern{
		{0xFFF, 0xAAA, 0xFF, 0xAA},
		{0xFFF, 0x555, 0xFF, 0x55},
		{0xFFF, 0xAAA, 0xFF, 0x80},
		{0xFFF, 0xAAA, 0xFF, 0xAA},
		{0xFFF, 0x555, 0xFF, 0x55},
		{0xFFF, 0xAAA, 0xFF, 0x10},
	}
	// Supplemented from original_source/cube_flash_model.cpp: a 32-byte
	// write-buffer program, recognized the same way as the single-byte
	// templates above since matchPattern is already pattern-generic.
	cmdBufferBegin = [cmdLength]cmdPattern{
		{},
		{},
		{0xFFF, 0xAAA, 0xFF, 0xAA},
		{0xFFF, 0x555, 0xFF, 0x55},
		{0x000, 0x000, 0xFF, 0x25},
		{},
	}
)

// Flash is the NOR flash device.
type Flash struct {
	mem         [Size]byte
	eraseCounts [Size / SectorSize]uint32

	cmdFIFO     [fifoSize]cmdEntry
	fifoHead    int

	latchedAddr uint32
	busyTimer   uint64
	busy        BusyFlag
	statusByte  byte

	prevWE, prevOE bool

	cycleCount, writeCount, eraseCount uint32
	busyTicks, idleTicks               uint64
	prevClocks                         uint64

	exceptor Exceptor
}

// New returns a freshly erased (all 0xFF) flash device.
func New(exc Exceptor) *Flash {
	f := &Flash{exceptor: exc, prevWE: true, prevOE: true}
	for i := range f.mem {
		f.mem[i] = 0xFF
	}
	return f
}

// Bytes exposes the backing array for persistence round-trips.
func (f *Flash) Bytes() []byte { return f.mem[:] }

// EraseCounts exposes the per-sector erase counters for persistence.
func (f *Flash) EraseCounts() []uint32 { return f.eraseCounts[:] }

// Busy reports the current busy state.
func (f *Flash) Busy() BusyFlag { return f.busy }

// Stats reports flash power/performance counters for the front end's
// profiling output (supplemented feature, §12.2 of SPEC_FULL).
type Stats struct {
	CycleCount, WriteCount, EraseCount uint32
	BusyPercent                       int
}

// TakeStats returns and resets the cumulative counters.
func (f *Flash) TakeStats() Stats {
	s := Stats{CycleCount: f.cycleCount, WriteCount: f.writeCount, EraseCount: f.eraseCount}
	total := f.busyTicks + f.idleTicks
	if total != 0 {
		s.BusyPercent = int(f.busyTicks * 100 / total)
	}
	f.cycleCount = 0
	f.writeCount = 0
	f.eraseCount = 0
	f.busyTicks = 0
	f.idleTicks = 0
	return s
}

// Tick marches the busy timer forward.
func (f *Flash) Tick(deadline *vtime.Deadline) {
	elapsed := deadline.Clock() - f.prevClocks
	f.prevClocks = deadline.Clock()

	if f.busy != Idle {
		if f.busyTimer == 0 {
			switch f.busy {
			case Program:
				f.busyTimer = deadline.SetRelative(vtime.Usec(ProgramTimeUS))
			case EraseSector:
				f.busyTimer = deadline.SetRelative(vtime.Usec(EraseSectorTimeUS))
			case EraseBlock:
				f.busyTimer = deadline.SetRelative(vtime.Usec(EraseBlockTimeUS))
			case EraseChip:
				f.busyTimer = deadline.SetRelative(vtime.Usec(EraseChipTimeUS))
			}
		} else if deadline.HasPassed(f.busyTimer) {
			f.busy = Idle
			f.busyTimer = 0
		} else {
			deadline.Set(f.busyTimer)
		}
		f.busyTicks += elapsed
	} else {
		f.idleTicks += elapsed
	}
}

// Cycle drives one parallel-bus access.
func (f *Flash) Cycle(pins *Pins) {
	if pins.CE || !pins.Power {
		pins.DataDrv = false
		f.prevWE = true
		f.prevOE = true
		return
	}

	addr := pins.Addr & (Size - 1)

	if !pins.WE && f.prevWE {
		f.cycleCount++
		f.latchedAddr = addr

		f.cmdFIFO[f.fifoHead] = cmdEntry{addr: addr, data: pins.DataIn}
		f.matchCommands()
		f.fifoHead = (f.fifoHead + 1) & fifoMask
	}

	if pins.OE {
		pins.DataDrv = false
	} else {
		if f.prevOE {
			f.updateStatusByte()
		}
		pins.DataDrv = true
		if addr != f.latchedAddr || f.prevOE {
			f.cycleCount++
			f.latchedAddr = addr
		}
	}

	f.prevWE = pins.WE
	f.prevOE = pins.OE
}

// DataOut returns the byte currently being driven onto the data bus.
func (f *Flash) DataOut() byte {
	if f.busy != Idle {
		return f.statusByte
	}
	return f.mem[f.latchedAddr]
}

func (f *Flash) matchPattern(p *[cmdLength]cmdPattern) bool {
	idx := (f.fifoHead - cmdLength + 1) & fifoMask
	for i := 0; i < cmdLength; i++ {
		e := f.cmdFIFO[idx]
		if uint16(e.addr)&p[i].addrMask != p[i].addrVal || e.data&p[i].dataMask != p[i].dataVal {
			return false
		}
		idx = (idx + 1) & fifoMask
	}
	return true
}

func (f *Flash) matchCommands() {
	if f.busy != Idle {
		return
	}
	st := f.cmdFIFO[f.fifoHead]

	switch {
	case f.matchPattern(&cmdByteProgram):
		f.mem[st.addr] &= st.data
		f.statusByte = statusDataInv & ^st.data
		f.busy = Program
		f.writeCount++

	case f.matchPattern(&cmdSectorErase):
		f.erase(st.addr, SectorSize)
		f.statusByte = 0
		f.busy = EraseSector
		f.eraseCount++

	case f.matchPattern(&cmdBlockErase):
		f.erase(st.addr, BlockSize)
		f.statusByte = 0
		f.busy = EraseBlock
		f.eraseCount++

	case f.matchPattern(&cmdChipErase):
		f.erase(st.addr, Size)
		f.statusByte = 0
		f.busy = EraseChip
		f.eraseCount++

	case f.matchPattern(&cmdBufferBegin):
		// Buffer-program begin: recognized but treated as a no-op start
		// marker, same latency class as a byte program. The firmware
		// still has to clock the buffer bytes and a confirm command,
		// which isn't part of the 6-entry unlock window we match here.
		f.busy = Program
	}
}

func (f *Flash) erase(addr uint32, size uint32) {
	addr &^= size - 1
	for i := uint32(0); i < size; i++ {
		f.mem[addr+i] = 0xFF
	}
	sBegin := addr / SectorSize
	sEnd := (addr + size) / SectorSize
	for s := sBegin; s != sEnd; s++ {
		f.eraseCounts[s]++
	}
}

func (f *Flash) updateStatusByte() {
	f.statusByte ^= statusToggle
	if f.busy.isErase() {
		f.statusByte ^= statusEraseToggle
	}
}
