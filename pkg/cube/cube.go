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

// Package cube wires one cube's CPU core to its peripherals: flash,
// LCD, radio, SPI, I2C, ADC, MDU, the neighbor-sensing fabric and the
// hardware RNG. It owns the port-pin decode logic a real cube's PCB
// traces would perform in hardware (cube_hardware.h in the original
// firmware), and implements em8051.Bus so the CPU core never needs to
// know about any specific peripheral.
package cube

import (
	"cubesim/pkg/adc"
	"cubesim/pkg/em8051"
	"cubesim/pkg/flash"
	"cubesim/pkg/hub"
	"cubesim/pkg/i2c"
	"cubesim/pkg/lcd"
	"cubesim/pkg/mdu"
	"cubesim/pkg/neighbors"
	"cubesim/pkg/profile"
	"cubesim/pkg/radio"
	"cubesim/pkg/rng"
	"cubesim/pkg/spi"
	"cubesim/pkg/trace"
	"cubesim/pkg/vtime"
)

// Port/pin layout, transcribed from the original firmware's hardware
// header. Port registers live at their standard 8051 SFR addresses;
// only the bit assignments within each port are this package's concern.
const (
	ctrlLCDDCX     = 0x01
	ctrlFlashLat1  = 0x02
	ctrlFlashLat2  = 0x04
	ctrlFlashWE    = 0x20
	ctrlFlashOE    = 0x40

	rfconRFCE   = 0x01
	rfconRFCSN  = 0x02
	rfconRFCKEN = 0x04

	neighborOut1 = 0x02 // P1.1
	neighborOut2 = 0x20 // P1.5
	neighborOut3 = 0x40 // P1.6
	neighborOut4 = 0x80 // P1.7
	neighborIn   = 0x10 // P1.4, shared receive line (INT2)

	accelSDA = 0x08 // P1.3
	accelSCL = 0x04 // P1.2
	touchAIN = 0x01 // P1.0

	adcStartBit = 0x01

	xramSize = 1 << 16

	// rngAddr is the XDATA address the RNG is memory-mapped at. No
	// canonical address map was available to transcribe this from, so
	// this package picks the top of XDATA, out of the way of ordinary
	// variable storage.
	rngAddr = 0xFFFF
)

// neighborBits orders the four sides onto their P1 output bits, matching
// neighbors.Side's Top/Left/Bottom/Right ordering.
var neighborBits = [neighbors.NumSides]byte{neighborOut4, neighborOut3, neighborOut2, neighborOut1}

// Hardware is one cube: its CPU plus every peripheral it can see on its
// address and port buses.
type Hardware struct {
	CPU *em8051.Core

	clock    vtime.Clock
	deadline *vtime.Deadline

	Flash     *flash.Flash
	LCD       *lcd.LCD
	Radio     *radio.Radio
	SPI       *spi.Bus
	I2C       *i2c.Bus
	ADC       *adc.ADC
	MDU       *mdu.MDU
	Neighbors *neighbors.Fabric
	RNG       *rng.RNG
	Profiler  *profile.Profiler
	accel     accel

	xram [xramSize]byte

	lat1, lat2   byte
	prevCtrl     byte
	flashDrv     bool
	exceptionCnt uint32

	// index is this cube's slot in the simulation's cube table, as passed
	// to New.
	index int
}

// New returns a fully wired, freshly reset Hardware for cube index idx,
// talking to the shared radio hub h.
func New(idx int, h *hub.Hub, profiling bool) *Hardware {
	hw := &Hardware{index: idx}
	hw.deadline = vtime.NewDeadline(&hw.clock)

	hw.Flash = flash.New(hw)
	hw.LCD = lcd.New()
	hw.Radio = radio.New(h, hw)
	hw.SPI = spi.New(hw.Radio, hw)
	hw.I2C = i2c.New(&hw.accel, hw)
	hw.ADC = adc.New(adc.Regs{
		Con1:  em8051.RegADCCON1 - 0x80,
		Con2:  em8051.RegADCCON2 - 0x80,
		Con3:  em8051.RegADCCON3 - 0x80,
		DatH:  em8051.RegADCDATH - 0x80,
		DatL:  em8051.RegADCDATL - 0x80,
		IRCon: em8051.RegIRCON - 0x80,
	})
	hw.MDU = mdu.New(em8051.RegMD0-0x80, em8051.RegARCON-0x80, hw)
	hw.Neighbors = &neighbors.Fabric{}
	hw.RNG = rng.New()
	if profiling {
		hw.Profiler = profile.New()
	}

	hw.CPU = em8051.New(hw)
	return hw
}

// AttachPeers wires this cube's neighbor fabric to the rest of the
// simulated grid.
func (hw *Hardware) AttachPeers(peers []neighbors.Receiver) {
	hw.Neighbors.AttachPeers(peers)
}

// SetAcceleration feeds the simulated tilt sensor from the front end.
func (hw *Hardware) SetAcceleration(xG, yG, zG float32) {
	hw.accel.SetAcceleration(xG, yG, zG)
}

// SetTouch feeds the simulated touch strip reading into ADC channel 8,
// matching the original's AIN8 wiring on P1.0.
func (hw *Hardware) SetTouch(amount float32) {
	if amount < 0 {
		amount = 0
	}
	if amount > 1 {
		amount = 1
	}
	hw.ADC.SetInput(8, uint16(amount*0xFFFF))
}

// LoadFlashImage copies a ROM image into the cube's flash array, for
// front ends that pre-load a cartridge image rather than programming it
// byte-by-byte over the parallel bus.
func (hw *Hardware) LoadFlashImage(data []byte) {
	copy(hw.Flash.Bytes(), data)
}

// Reset restarts the CPU and clears the hardware's latched port state.
func (hw *Hardware) Reset() {
	hw.CPU.Reset(true)
	hw.lat1, hw.lat2, hw.prevCtrl = 0, 0, 0
	hw.flashDrv = false
}

// ExceptionCount returns the running count of hardware exceptions this
// cube has raised.
func (hw *Hardware) ExceptionCount() uint32 {
	return hw.exceptionCnt
}

// Tick runs exactly one CPU instruction and the peripheral work that
// falls out of it: the flash/LCD parallel-bus cycle implied by the
// current port state, the neighbor fabric's edge detection, and every
// peripheral's own deadline-gated Tick.
func (hw *Hardware) Tick() uint64 {
	pc := hw.CPU.PC
	clocks := hw.CPU.Step()
	hw.clock.Advance(clocks)
	hw.Profiler.Tick(pc, uint8(clocks/4), hw.clock.Now())
	trace.Tick(hw.clock.Now())

	hw.driveParallelBus()
	hw.driveNeighbors()

	hw.Flash.Tick(hw.deadline)
	if teHigh := hw.LCD.Tick(hw.deadline); teHigh {
		hw.LCD.PulseTE(hw.deadline)
	}
	hw.ADC.Tick(hw.deadline, hw.CPU.SFR[:])
	if hw.CPU.SFR[em8051.RegRFCON-0x80]&rfconRFCKEN != 0 {
		if irq := hw.Radio.Tick(); irq {
			hw.raiseIRCON(em8051.IRConRadio)
		}
	}
	hw.I2C.Tick(hw.deadline)
	hw.CPU.SFR[em8051.RegI2CDAT-0x80] = hw.I2C.LastByte()
	if hw.I2C.AckBits() != 0 {
		hw.raiseIRCON(em8051.IRConI2C)
	}
	hw.SPI.Tick(hw.deadline,
		hw.CPU.SFR[em8051.RegSPIRCON0-0x80],
		hw.CPU.SFR[em8051.RegSPIRCON1-0x80],
		func(status byte) {
			hw.CPU.SFR[em8051.RegSPIRSTAT-0x80] = status
			if status&spi.StatusRXReady != 0 {
				hw.CPU.SFR[em8051.RegSPIRDAT-0x80] = hw.SPI.ReadData()
			}
		},
		func() { hw.raiseIRCON(em8051.IRConSPI) },
	)

	return clocks
}

// driveParallelBus implements the shared 8-bit parallel bus (BUS_PORT,
// P2) that the flash chip and the LCD controller both sit on, muxed by
// CTRL_PORT (P3) and the two address latches on MISC_PORT (P1).
func (hw *Hardware) driveParallelBus() {
	ctrl := hw.CPU.SFR[em8051.RegP3-0x80]
	p0 := hw.CPU.SFR[em8051.RegP0-0x80]
	p1 := hw.CPU.SFR[em8051.RegP1-0x80]
	p2 := hw.CPU.SFR[em8051.RegP2-0x80]

	if ctrl&ctrlFlashLat1 != 0 {
		hw.lat1 = p1
	}
	if ctrl&ctrlFlashLat2 != 0 {
		hw.lat2 = p1
	}

	addr := (uint32(hw.lat2)<<15 | uint32(hw.lat1)<<7 | uint32(p0>>1)) & (flash.Size - 1)

	flashPins := flash.Pins{
		Addr:   addr,
		Power:  true,
		OE:     ctrl&ctrlFlashOE != 0,
		CE:     false,
		WE:     ctrl&ctrlFlashWE != 0,
		DataIn: p2,
	}
	hw.Flash.Cycle(&flashPins)

	lcdPins := lcd.Pins{
		Power:  true,
		CSX:    false,
		DCX:    ctrl&ctrlLCDDCX != 0,
		WRX:    p0&0x01 != 0,
		RDX:    true,
		DataIn: p2,
	}
	hw.LCD.Cycle(&lcdPins)

	hw.flashDrv = flashPins.DataDrv
	if hw.flashDrv {
		hw.CPU.SFR[em8051.RegP2-0x80] = hw.Flash.DataOut()
	}

	hw.prevCtrl = ctrl
}

// driveNeighbors runs the inductive-pulse fabric off the same P1 bits
// that also carry the flash address-latch data -- matching the real board, where
// the neighbor-sense lines and the flash address latches share a port.
func (hw *Hardware) driveNeighbors() {
	p1 := hw.CPU.SFR[em8051.RegP1-0x80]
	p1dir := hw.CPU.SFR[em8051.RegP1DIR-0x80]

	var drivePins, enableMask uint8
	for side, bit := range neighborBits {
		if p1&bit != 0 {
			drivePins |= 1 << uint(side)
		}
		if p1dir&bit == 0 {
			enableMask |= 1 << uint(side)
		}
	}

	hw.Neighbors.IOTick(drivePins, enableMask, func() {
		hw.CPU.SFR[em8051.RegP1-0x80] |= neighborIn
	})
}

// InputMasked implements neighbors.Receiver.
func (hw *Hardware) InputMasked(side neighbors.Side) bool {
	return hw.Neighbors.InputMasked(side)
}

// ReceivePulse implements neighbors.Receiver: a neighboring cube's
// transmit edge arrived on one of our sides, so assert the shared
// receive line. It is cleared again on the next CPU clock by
// ClearNeighborInput, exactly as the original clears it every timer
// tick regardless of whether firmware has sampled it yet.
func (hw *Hardware) ReceivePulse(side neighbors.Side) {
	if hw.Neighbors.InputMasked(side) {
		return
	}
	hw.CPU.SFR[em8051.RegP1-0x80] |= neighborIn
}

// ClearNeighborInput implements em8051.Bus.
func (hw *Hardware) ClearNeighborInput() {
	hw.CPU.SFR[em8051.RegP1-0x80] &^= neighborIn
}

// XRead implements em8051.Bus: MOVX access to onboard XRAM, with the RNG
// memory-mapped at the top of the address space.
func (hw *Hardware) XRead(addr uint16) byte {
	if addr == rngAddr {
		return hw.RNG.Byte()
	}
	return hw.xram[addr]
}

// XWrite implements em8051.Bus.
func (hw *Hardware) XWrite(addr uint16, v byte) {
	hw.xram[addr] = v
}

// SFRWritten implements em8051.Bus: side effects that must happen the
// instant firmware writes a peripheral-backed SFR, rather than waiting
// for the next Tick.
func (hw *Hardware) SFRWritten(addr byte, v byte) {
	switch addr {
	case em8051.RegRFCON:
		hw.Radio.SetControl(v&rfconRFCSN == 0, v&rfconRFCE != 0)

	case em8051.RegSPIRDAT:
		hw.SPI.WriteData(v)

	case em8051.RegADCCON1:
		if v&adcStartBit != 0 {
			hw.ADC.Start()
		}

	case em8051.RegI2CDAT:
		if !hw.I2C.Busy() {
			hw.I2C.Start(hw.clock.Now(), hw.deadline)
		}
		hw.I2C.WriteRegister(int(v))

	case em8051.RegI2CSTATE:
		if v&0x01 != 0 {
			hw.I2C.ClearAckBits()
		}

	case em8051.RegMD0, em8051.RegMD1, em8051.RegMD2, em8051.RegMD3, em8051.RegMD4, em8051.RegMD5:
		hw.MDU.Write(hw.clock.Now(), hw.CPU.SFR[:], int(addr-em8051.RegMD0))

	case em8051.RegARCON:
		hw.MDU.SetStaticTranslation(v&0x01 != 0)
	}
}

// Except implements em8051.Bus and every peripheral Exceptor interface:
// every hardware exception this cube raises, regardless of source,
// funnels through here and is counted and traced uniformly.
func (hw *Hardware) Except(kind em8051.ExceptionKind) {
	hw.exceptionCnt++
	trace.Logf(hw.clock.Now(), hw.CPU.PC, "exception: %s", kind.String())
}

func (hw *Hardware) raiseIRCON(bit byte) {
	hw.CPU.SFR[em8051.RegIRCON-0x80] |= bit
}

// ExceptBadFlashCmd implements flash.Exceptor.
func (hw *Hardware) ExceptBadFlashCmd() { hw.Except(em8051.ExcBadFlashCmd) }

// ExceptFlashBusy implements flash.Exceptor.
func (hw *Hardware) ExceptFlashBusy() { hw.Except(em8051.ExcFlashBusy) }

// ExceptRadioXRun implements radio.Exceptor.
func (hw *Hardware) ExceptRadioXRun() { hw.Except(em8051.ExcRadioXRun) }

// ExceptSPIXRun implements spi.Exceptor.
func (hw *Hardware) ExceptSPIXRun() { hw.Except(em8051.ExcSPIXRun) }

// ExceptI2C implements i2c.Exceptor.
func (hw *Hardware) ExceptI2C() { hw.Except(em8051.ExcI2CError) }

// ExceptMDU implements mdu.Exceptor.
func (hw *Hardware) ExceptMDU() { hw.Except(em8051.ExcMDUError) }
