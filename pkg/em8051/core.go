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

// Package em8051 emulates the cube's 8051-compatible CPU core: the
// register file, SFR bank, a table-driven opcode dispatcher, the
// classic 8051 timer 0/1/2 ladder, the synthesized low-frequency clock
// that drives the watchdog and RTC2, and single-level interrupt
// dispatch.
package em8051

import "cubesim/pkg/ihx"

// Bus is supplied by the owning aggregate (pkg/cube) and mediates every
// access that reaches outside the CPU core itself: XDATA reads/writes
// (mapped to onboard RAM or peripherals depending on address), port
// pin changes driven by SFR writes, and exception reporting. Keeping
// this to the handful of calls the core actually needs avoids giving
// the core package a dependency on any specific peripheral.
type Bus interface {
	XRead(addr uint16) byte
	XWrite(addr uint16, v byte)
	SFRWritten(addr byte, v byte)
	ClearNeighborInput()
	Except(kind ExceptionKind)
}

// Core is one cube's 8051-compatible CPU.
type Core struct {
	SFR  [128]byte
	IRAM [256]byte
	Code [codeMemSize]byte

	PC         uint16
	previousPC uint16

	tickDelay uint8

	prescaler12 uint8
	prescalerLF uint8
	prescaler24 uint8
	t012        uint8

	wdtEnabled bool
	wdtCounter uint32
	wdsvLow    byte
	wdsvHigh   byte
	wdsvHasLow bool

	rtc2 uint16

	powerDown bool
	irqActive bool

	needInterruptDispatch bool

	bus Bus
}

// New returns a CPU core wired to bus, already reset with Reset(true).
func New(bus Bus) *Core {
	c := &Core{bus: bus}
	c.Reset(true)
	return c
}

// Reset restores the SFR bank and PC to their power-on values. When
// wipe is true, IDATA is cleared too; a watchdog-triggered reset passes
// false so IDATA survives. XDATA lives behind the Bus and is not touched
// by Reset.
func (c *Core) Reset(wipe bool) {
	if wipe {
		for i := range c.IRAM {
			c.IRAM[i] = 0
		}
	}
	for i := range c.SFR {
		c.SFR[i] = 0
	}

	c.PC = 0
	c.tickDelay = 1
	c.prescaler12 = 12

	c.wdtEnabled = false
	c.wdtCounter = 0
	c.powerDown = false

	c.wdsvLow = 0
	c.wdsvHigh = 0
	c.wdsvHasLow = false

	c.SFR[RegSP-0x80] = 7
	c.SFR[RegP0-0x80] = 0xFF
	c.SFR[RegP1-0x80] = 0xFF
	c.SFR[RegP2-0x80] = 0xFF
	c.SFR[RegP3-0x80] = 0xFF

	c.SFR[RegP0DIR-0x80] = 0xFF
	c.SFR[RegP1DIR-0x80] = 0xFF
	c.SFR[RegP2DIR-0x80] = 0xFF
	c.SFR[RegP3DIR-0x80] = 0xFF

	c.SFR[RegSPIRCON0-0x80] = 0x01
	c.SFR[RegSPIRCON1-0x80] = 0x0F
	c.SFR[RegSPIRSTAT-0x80] = 0x03

	c.SFR[RegRFCON-0x80] = 0x02 // RFCSN idle-high

	// Pretend the 16MHz crystal is ready immediately.
	c.SFR[RegCLKLFCTRL-0x80] = 0x0F

	c.needInterruptDispatch = false
	c.irqActive = false
}

// LoadIHX loads an Intel-HEX firmware image into code memory.
func (c *Core) LoadIHX(path string) (int, error) {
	return ihx.LoadFile(path, c.Code[:])
}

func (c *Core) except(kind ExceptionKind) {
	c.bus.Except(kind)
}

// sfr reads an SFR by its absolute 0x80-0xFF address.
func (c *Core) sfr(addr int) byte { return c.SFR[addr-0x80] }

func (c *Core) setSFR(addr int, v byte) {
	c.SFR[addr-0x80] = v
	c.bus.SFRWritten(byte(addr), v)
	if addr == RegWDSV {
		c.writeWDSV(v)
	}
	if addr == RegPWRDWN {
		c.powerDown = v&PwrdwnModeMask != PwrdwnOff
	}
}

func (c *Core) writeWDSV(v byte) {
	if !c.wdsvHasLow {
		c.wdsvLow = v
		c.wdsvHasLow = true
		return
	}
	c.wdsvHigh = v
	c.wdsvHasLow = false
	c.wdtCounter = uint32(c.wdsvHigh)<<8 | uint32(c.wdsvLow)
	c.wdtEnabled = true
}

// directRead/directWrite implement the "direct" 8051 addressing mode:
// 0x00-0x7F is IDATA, 0x80-0xFF is an SFR.
func (c *Core) directRead(addr byte) byte {
	if addr >= 0x80 {
		return c.sfr(int(addr))
	}
	return c.IRAM[addr]
}

func (c *Core) directWrite(addr byte, v byte) {
	if addr >= 0x80 {
		c.setSFR(int(addr), v)
		return
	}
	c.IRAM[addr] = v
}

func (c *Core) indirectRead(addr byte) byte { return c.IRAM[addr] }
func (c *Core) indirectWrite(addr byte, v byte) { c.IRAM[addr] = v }

// regBank returns the base IDATA offset of the currently selected
// register bank (PSW.RS1:RS0).
func (c *Core) regBank() byte {
	psw := c.sfr(RegPSW)
	bank := (psw & (FlagRS1 | FlagRS0)) >> 3
	return bank * 8
}

func (c *Core) getR(n byte) byte  { return c.IRAM[c.regBank()+n] }
func (c *Core) setR(n byte, v byte) { c.IRAM[c.regBank()+n] = v }

func (c *Core) getBit(addr byte) bool {
	var byteAddr byte
	var bitPos uint
	if addr < 0x80 {
		byteAddr = 0x20 + addr/8
		bitPos = uint(addr % 8)
	} else {
		byteAddr = addr &^ 0x07
		bitPos = uint(addr & 0x07)
	}
	return c.directRead(byteAddr)&(1<<bitPos) != 0
}

func (c *Core) setBit(addr byte, v bool) {
	var byteAddr byte
	var bitPos uint
	if addr < 0x80 {
		byteAddr = 0x20 + addr/8
		bitPos = uint(addr % 8)
	} else {
		byteAddr = addr &^ 0x07
		bitPos = uint(addr & 0x07)
	}
	cur := c.directRead(byteAddr)
	if v {
		cur |= 1 << bitPos
	} else {
		cur &^= 1 << bitPos
	}
	c.directWrite(byteAddr, cur)
}

func (c *Core) acc() byte      { return c.sfr(RegACC) }
func (c *Core) setAcc(v byte)  { c.setSFR(RegACC, v) }
func (c *Core) psw() byte      { return c.sfr(RegPSW) }
func (c *Core) setPSW(v byte)  { c.setSFR(RegPSW, v) }

func (c *Core) flag(mask byte) bool     { return c.psw()&mask != 0 }
func (c *Core) setFlag(mask byte, v bool) {
	p := c.psw()
	if v {
		p |= mask
	} else {
		p &^= mask
	}
	c.setPSW(p)
}

func (c *Core) dptr() uint16 {
	return uint16(c.sfr(RegDPH))<<8 | uint16(c.sfr(RegDPL))
}

func (c *Core) setDPTR(v uint16) {
	c.setSFR(RegDPH, byte(v>>8))
	c.setSFR(RegDPL, byte(v))
}

func (c *Core) sp() byte     { return c.sfr(RegSP) }
func (c *Core) setSP(v byte) { c.setSFR(RegSP, v) }

func (c *Core) push(v byte) {
	next := int(c.sp()) + 1
	c.setSP(byte(next))
	if next >= len(c.IRAM) {
		c.except(ExcStackOverflow)
		return
	}
	c.IRAM[next] = v
}

func (c *Core) pop() byte {
	sp := c.sp()
	v := c.IRAM[sp]
	c.setSP(sp - 1)
	return v
}

func (c *Core) fetch() byte {
	b := c.Code[c.PC&pcMask]
	c.PC++
	return b
}

// Step executes exactly one instruction (or, if an interrupt is
// pending and enabled, dispatches it instead), and returns the number
// of base 16MHz clock ticks it consumed.
func (c *Core) Step() uint64 {
	if c.powerDown {
		if c.needInterruptDispatch {
			c.powerDown = false
		} else {
			c.tickDelay = 1
			c.tickTimers(1)
			return 1
		}
	}

	if c.needInterruptDispatch && c.dispatchInterrupt() {
		c.tickTimers(uint64(c.tickDelay))
		return uint64(c.tickDelay)
	}

	c.previousPC = c.PC
	op := c.fetch()
	fn := opTable[op]
	cycles := opCycles[op]
	if fn == nil {
		c.except(ExcInvalidOpcodeA5)
		cycles = 1
	} else {
		fn(c)
	}

	c.tickDelay = cycles * 4
	c.tickTimers(uint64(c.tickDelay))
	return uint64(c.tickDelay)
}

func (c *Core) rel(offset byte) {
	c.PC = uint16(int32(c.PC) + int32(int8(offset)))
}

// dispatchInterrupt pushes PC and jumps to the highest-priority pending,
// enabled interrupt source. Only one interrupt may be active at a time
// (this part does not implement the classic two-level priority
// preemption).
func (c *Core) dispatchInterrupt() bool {
	if c.irqActive {
		return false
	}
	ie := c.sfr(RegIE)
	if ie&IEEA == 0 {
		return false
	}

	tcon := c.sfr(RegTCON)
	scon := c.sfr(RegSCON)
	ircon := c.sfr(RegIRCON)

	type src struct {
		enabled bool
		pending *byte
		clear   byte
		vector  uint16
	}

	tconPtr := &c.SFR[RegTCON-0x80]
	sconPtr := &c.SFR[RegSCON-0x80]
	irconPtr := &c.SFR[RegIRCON-0x80]

	sources := [...]src{
		{ie&IEEX0 != 0, tconPtr, TCONIE0, vecExternal0},
		{ie&IEET0 != 0, tconPtr, TCONTF0, vecTimer0},
		{ie&IEEX1 != 0, tconPtr, TCONIE1, vecExternal1},
		{ie&IEET1 != 0, tconPtr, TCONTF1, vecTimer1},
		{ie&IEES != 0, sconPtr, 0x03, vecSerial}, // TI|RI, cleared by firmware not hardware
		{ie&IEET2 != 0, irconPtr, IRConTF2 | IRConTick, vecTimer2},
	}

	_ = tcon
	_ = scon
	_ = ircon

	for _, s := range sources {
		if !s.enabled || *s.pending&s.clear == 0 {
			continue
		}
		if s.vector != vecSerial {
			*s.pending &^= s.clear
		}
		c.push(byte(c.PC))
		c.push(byte(c.PC >> 8))
		c.PC = s.vector
		c.irqActive = true
		c.tickDelay = 2 * 4
		c.needInterruptDispatch = c.anyInterruptPending()
		return true
	}

	c.needInterruptDispatch = false
	return false
}

func (c *Core) anyInterruptPending() bool {
	tcon := c.sfr(RegTCON)
	scon := c.sfr(RegSCON)
	ircon := c.sfr(RegIRCON)
	return tcon&(TCONIE0|TCONTF0|TCONIE1|TCONTF1) != 0 ||
		scon&0x03 != 0 ||
		ircon&(IRConTF2|IRConTick) != 0
}

// tickTimers runs the classic 8051 timer ladder plus the synthesized
// low-frequency clock, one base clock at a time, matching the
// reference's per-clock prescaler structure exactly.
func (c *Core) tickTimers(clocks uint64) {
	for i := uint64(0); i < clocks; i++ {
		p3 := c.sfr(RegP3)
		nextT012 := p3 & (PinT0 | PinT1 | PinT2)
		fallingEdges := c.t012 &^ nextT012
		c.t012 = nextT012

		c.bus.ClearNeighborInput()

		if c.powerDown {
			mode := c.sfr(RegPWRDWN) & PwrdwnModeMask
			if mode == PwrdwnDeepSleep || mode == PwrdwnMemory {
				continue
			}
		}

		c.prescaler12--
		tick12 := false
		if c.prescaler12 == 0 {
			c.prescaler12 = 12
			tick12 = true
		}

		if tick12 {
			c.tickCLKLF()
		}

		c.tickTimer01(tick12, fallingEdges)
		c.tickTimer2(tick12, fallingEdges)
	}
}

func (c *Core) tickCLKLF() {
	clklf := c.sfr(RegCLKLFCTRL)
	switch clklf & CLKLFMaskSource {
	case CLKLFSrcNone:
		if c.wdtEnabled {
			c.except(ExcCLKLF)
		}
	case CLKLFSrcRC, CLKLFSrcSynth:
		if c.prescalerLF > 0 {
			c.prescalerLF--
			return
		}
		c.prescalerLF = 20

		clklf |= CLKLFMaskXOSC16M | CLKLFMaskReady
		clklf ^= CLKLFMaskPhase
		c.setSFR(RegCLKLFCTRL, clklf)

		if clklf&CLKLFMaskPhase != 0 {
			c.tickCLKLFEdge()
		}
	default:
		c.except(ExcCLKLF)
	}
}

func (c *Core) tickCLKLFEdge() {
	if c.wdtEnabled {
		c.wdtCounter = (c.wdtCounter - 1) & 0xFFFFFF
		if c.wdtCounter == 0 {
			c.Reset(false)
			return
		}
	}

	rtc2con := c.sfr(RegRTC2CON)
	if rtc2con&RTC2ConEnable != 0 {
		rtc2 := c.rtc2 + 1
		if rtc2con&RTC2ConCompareEn != 0 {
			cmp := uint16(c.sfr(RegRTC2CMP0)) | uint16(c.sfr(RegRTC2CMP1))<<8
			if cmp == rtc2 {
				c.setSFR(RegIRCON, c.sfr(RegIRCON)|IRConTick)
				c.needInterruptDispatch = true
				if rtc2con&RTC2ConCompareRst != 0 {
					rtc2 = 0
				}
			}
		}
		c.rtc2 = rtc2
	} else {
		c.rtc2 = 0
	}
}

func (c *Core) tickTimer01(tick12 bool, fallingEdges uint8) {
	tmod := c.sfr(RegTMOD)
	tcon := c.sfr(RegTCON)

	mode3 := tmod&(TModM0_0|TModM1_0) == (TModM0_0 | TModM1_0)

	if mode3 {
		if tmod&TModGate0 == 0 && tcon&TCONTR0 != 0 {
			var inc bool
			if tmod&TModCT0 != 0 {
				inc = fallingEdges&PinT0 != 0
			} else {
				inc = tick12
			}
			if inc {
				v := int(c.sfr(RegTL0)) + 1
				c.setSFR(RegTL0, byte(v))
				if v > 0xFF {
					c.setSFR(RegTCON, c.sfr(RegTCON)|TCONTF0)
					c.needInterruptDispatch = true
				}
			}
		}
		if tmod&TModGate1 == 0 && tcon&TCONTR1 != 0 {
			var inc bool
			if tmod&TModCT1 != 0 {
				inc = fallingEdges&PinT1 != 0
			} else {
				inc = tick12
			}
			if inc {
				v := int(c.sfr(RegTH0)) + 1
				c.setSFR(RegTH0, byte(v))
				if v > 0xFF {
					c.setSFR(RegTCON, c.sfr(RegTCON)|TCONTF1)
					c.needInterruptDispatch = true
				}
			}
		}
		return
	}

	// Timer 0, modes 0-2.
	if tmod&TModGate0 == 0 && tcon&TCONTR0 != 0 {
		var inc bool
		if tmod&TModCT0 != 0 {
			inc = fallingEdges&PinT0 != 0
		} else {
			inc = tick12
		}
		if inc {
			switch tmod & (TModM0_0 | TModM1_0) {
			case 0: // 13-bit
				v := int(c.sfr(RegTL0)&0x1F) + 1
				c.setSFR(RegTL0, (c.sfr(RegTL0)&^byte(0x1F))|byte(v&0x1F))
				if v > 0x1F {
					h := int(c.sfr(RegTH0)) + 1
					c.setSFR(RegTH0, byte(h))
					if h > 0xFF {
						c.setSFR(RegTCON, c.sfr(RegTCON)|TCONTF0)
						c.needInterruptDispatch = true
					}
				}
			case TModM0_0: // 16-bit
				v := int(c.sfr(RegTL0)) + 1
				c.setSFR(RegTL0, byte(v))
				if v > 0xFF {
					h := int(c.sfr(RegTH0)) + 1
					c.setSFR(RegTH0, byte(h))
					if h > 0xFF {
						c.setSFR(RegTCON, c.sfr(RegTCON)|TCONTF0)
						c.needInterruptDispatch = true
					}
				}
			case TModM1_0: // 8-bit auto-reload
				v := int(c.sfr(RegTL0)) + 1
				c.setSFR(RegTL0, byte(v))
				if v > 0xFF {
					c.setSFR(RegTL0, c.sfr(RegTH0))
					c.setSFR(RegTCON, c.sfr(RegTCON)|TCONTF0)
					c.needInterruptDispatch = true
				}
			}
		}
	}

	// Timer 1, modes 0-2 (mode 3 disables timer 1's own count).
	if tmod&TModGate1 == 0 && tcon&TCONTR1 != 0 {
		var inc bool
		if tmod&TModCT1 != 0 {
			inc = fallingEdges&PinT1 != 0
		} else {
			inc = tick12
		}
		if inc {
			switch tmod & (TModM0_1 | TModM1_1) {
			case 0: // 13-bit
				v := int(c.sfr(RegTL1)&0x1F) + 1
				c.setSFR(RegTL1, (c.sfr(RegTL1)&^byte(0x1F))|byte(v&0x1F))
				if v > 0x1F {
					h := int(c.sfr(RegTH1)) + 1
					c.setSFR(RegTH1, byte(h))
					if h > 0xFF {
						c.setSFR(RegTCON, c.sfr(RegTCON)|TCONTF1)
						c.needInterruptDispatch = true
					}
				}
			case TModM0_1: // 16-bit
				v := int(c.sfr(RegTL1)) + 1
				c.setSFR(RegTL1, byte(v))
				if v > 0xFF {
					h := int(c.sfr(RegTH1)) + 1
					c.setSFR(RegTH1, byte(h))
					if h > 0xFF {
						c.setSFR(RegTCON, c.sfr(RegTCON)|TCONTF1)
						c.needInterruptDispatch = true
					}
				}
			case TModM1_1: // 8-bit auto-reload
				v := int(c.sfr(RegTL1)) + 1
				c.setSFR(RegTL1, byte(v))
				if v > 0xFF {
					c.setSFR(RegTL1, c.sfr(RegTH1))
					c.setSFR(RegTCON, c.sfr(RegTCON)|TCONTF1)
					c.needInterruptDispatch = true
				}
			}
		}
	}
}

func (c *Core) tickTimer2(tick12 bool, fallingEdges uint8) {
	tick24 := false
	if tick12 {
		c.prescaler24++
		if c.prescaler24 == 2 {
			tick24 = true
			c.prescaler24 = 0
		}
	}

	t2con := c.sfr(RegT2CON)
	var t2Clk bool
	if t2con&0x80 != 0 {
		t2Clk = tick24
	} else {
		t2Clk = tick12
	}

	var inc bool
	switch t2con & 0x03 {
	case 1:
		inc = t2Clk
	case 2:
		inc = fallingEdges&PinT2 != 0
	case 3:
		inc = t2Clk && c.t012&PinT2 != 0
	}

	if !inc {
		return
	}

	v := int(c.sfr(RegTL2)) + 1
	c.setSFR(RegTL2, byte(v))
	if v <= 0xFF {
		return
	}
	h := int(c.sfr(RegTH2)) + 1
	c.setSFR(RegTH2, byte(h))
	if h <= 0xFF {
		return
	}

	if t2con&0x18 == 0x10 {
		c.setSFR(RegTL2, c.sfr(RegRCAP2L))
		c.setSFR(RegTH2, c.sfr(RegRCAP2H))
	}
	c.setSFR(RegIRCON, c.sfr(RegIRCON)|IRConTF2)
	c.needInterruptDispatch = true
}
