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

// Package radio emulates an nRF24L01-class radio in ShockBurst PRX mode
// with auto-ack on a single receive pipe (P0): a 32-byte register file,
// three-deep RX/TX/ACK FIFOs, and the SPI command set firmware uses to
// drive it.
package radio

import "cubesim/pkg/hub"

// SPI commands.
const (
	cmdRRegister      = 0x00
	cmdWRegister      = 0x20
	cmdRRxPayload     = 0x61
	cmdWTxPayload     = 0xA0
	cmdFlushTX        = 0xE1
	cmdFlushRX        = 0xE2
	cmdReuseTxPL      = 0xE3
	cmdRRxPLWidth     = 0x60
	cmdWAckPayload    = 0xA8
	cmdWTxPayloadNoAck = 0xB0
	cmdNOP            = 0xFF
)

// Register offsets.
const (
	regCONFIG     = 0x00
	regEN_AA      = 0x01
	regEN_RXADDR  = 0x02
	regSETUP_AW   = 0x03
	regSETUP_RETR = 0x04
	regRF_CH      = 0x05
	regRF_SETUP   = 0x06
	regSTATUS     = 0x07
	regOBSERVE_TX = 0x08
	regRPD        = 0x09
	regRX_ADDR_P0 = 0x0A
	regRX_ADDR_P1 = 0x0B
	regTX_ADDR    = 0x10
	regRX_PW_P0   = 0x11
	regFIFO_STATUS = 0x17
	regDYNPD      = 0x1C
	regFEATURE    = 0x1D

	numRegs = 0x20
)

// STATUS bits.
const (
	statusTXFull  = 0x01
	statusRXPMask = 0x0E
	statusMaxRT   = 0x10
	statusTXDS    = 0x20
	statusRXDR    = 0x40
)

// FIFO_STATUS bits.
const (
	fifoRXEmpty = 0x01
	fifoRXFull  = 0x02
	fifoTXEmpty = 0x10
	fifoTXFull  = 0x20
)

const (
	fifoSize   = 3
	payloadMax = 32

	// RXIntervalUS is how often CE-high polling gives us a receive
	// opportunity against the network hub, counted in Tick calls. pkg/cube
	// calls Tick once per CPU instruction, so the interval is measured in
	// instructions, not in simulated microseconds.
	RXIntervalUS = 440
)

// Exceptor reports a radio FIFO overrun.
type Exceptor interface {
	ExceptRadioXRun()
}

type packet struct {
	len     int
	payload [payloadMax]byte
}

// Radio is the nRF24L01-class radio core.
type Radio struct {
	regs       [numRegs]byte
	addrTxHigh [4]byte
	addrRx0High [4]byte
	addrRx1High [4]byte

	rxFIFO                         [fifoSize]packet
	txFIFO                         [fifoSize]packet
	rxHead, rxTail, rxCount        int
	txHead, txTail, txCount        int

	csn, ce bool
	spiCmd  byte
	spiIdx  int // -1 means "expecting command byte next"

	irqState, irqEdgePending bool

	rxTimer uint64

	byteCount, rxCount32 uint32

	hub      *hub.Hub
	exceptor Exceptor
}

// New returns a radio in its post-reset register state, addressing the
// given network hub.
func New(h *hub.Hub, exc Exceptor) *Radio {
	r := &Radio{hub: h, exceptor: exc}
	r.regs[regCONFIG] = 0x08
	r.regs[regEN_AA] = 0x3F
	r.regs[regEN_RXADDR] = 0x03
	r.regs[regSETUP_AW] = 0x03
	r.regs[regSETUP_RETR] = 0x03
	r.regs[regRF_CH] = 0x02
	r.regs[regRF_SETUP] = 0x0E
	r.regs[regSTATUS] = 0x0E
	r.regs[regRX_ADDR_P0] = 0xE7
	r.regs[regRX_ADDR_P1] = 0xC2
	r.regs[regTX_ADDR] = 0xE7
	r.regs[regFIFO_STATUS] = 0x11
	for i := range r.addrTxHigh {
		r.addrTxHigh[i] = 0xE7
		r.addrRx0High[i] = 0xE7
		r.addrRx1High[i] = 0xC2
	}
	r.spiIdx = -1
	return r
}

// Stats reports byte/packet statistics (supplemented feature, §12.4 of
// SPEC_FULL).
type Stats struct {
	ByteCount, RXCount uint32
}

// TakeStats returns and resets the cumulative counters.
func (r *Radio) TakeStats() Stats {
	s := Stats{ByteCount: r.byteCount, RXCount: r.rxCount32}
	r.byteCount = 0
	r.rxCount32 = 0
	return s
}

// SetControl updates the chip-select and CE states. csn is true while the
// radio is selected (pkg/cube converts the active-low RFCSN pin into this
// flag). Deselecting (csn going from true to false) commits whatever
// command was in flight before rearming the shift index for the next one.
func (r *Radio) SetControl(csn, ce bool) {
	if r.csn && !csn {
		r.spiCmdEnd(r.spiCmd)
		r.spiIdx = -1
	}
	r.csn = csn
	r.ce = ce
}

// SPIByte clocks one byte through the radio's command interpreter,
// matching pkg/spi.Peripheral.
func (r *Radio) SPIByte(mosi byte) byte {
	if !r.csn {
		return 0xFF
	}
	if r.spiIdx < 0 {
		r.spiCmd = mosi
		r.spiCmdBegin(mosi)
		r.spiIdx = 0
		return r.regs[regSTATUS]
	}
	out := r.spiCmdData(r.spiCmd, r.spiIdx, mosi)
	r.spiIdx++
	return out
}

// Tick advances the RX-opportunity timer and reports whether the IRQ
// line has a fresh rising edge since the last call.
func (r *Radio) Tick() bool {
	if r.ce {
		if r.rxTimer == 0 {
			r.rxTimer = RXIntervalUS
		}
		r.rxTimer--
		if r.rxTimer == 0 {
			r.rxOpportunity()
		}
	}
	edge := r.irqEdgePending
	r.irqEdgePending = false
	return edge
}

func (r *Radio) updateIRQ() {
	prev := r.irqState
	mask := (statusRXDR | statusTXDS | statusMaxRT) &^ r.regs[regCONFIG]
	state := r.regs[regSTATUS]&mask != 0
	r.irqState = state
	if state && !prev {
		r.irqEdgePending = true
	}
}

func (r *Radio) updateStatus() {
	fifoStatus := byte(0)
	if r.rxCount == 0 {
		fifoStatus |= fifoRXEmpty
	}
	if r.rxCount == fifoSize {
		fifoStatus |= fifoRXFull
	}
	if r.txCount == 0 {
		fifoStatus |= fifoTXEmpty
	}
	if r.txCount == fifoSize {
		fifoStatus |= fifoTXFull
	}
	r.regs[regFIFO_STATUS] = fifoStatus

	r.regs[regSTATUS] &= statusRXDR | statusTXDS | statusMaxRT
	if r.txCount == fifoSize {
		r.regs[regSTATUS] |= statusTXFull
	}
	if r.rxCount == 0 {
		r.regs[regSTATUS] |= statusRXPMask
	}
	r.regs[regRX_PW_P0] = byte(r.rxFIFO[r.rxTail].len)

	r.updateIRQ()
}

// rxOpportunity polls the network hub once per RXIntervalUS Tick calls
// while CE is high.
func (r *Radio) rxOpportunity() {
	if r.hub == nil {
		return
	}
	key := hub.Key(addrBytes(r, regRX_ADDR_P0), r.regs[regRF_CH])
	pkt, ok := r.hub.Recv(key)
	if !ok || len(pkt.Data) > payloadMax {
		return
	}

	if r.rxCount < fifoSize {
		head := &r.rxFIFO[r.rxHead]
		head.len = len(pkt.Data)
		copy(head.payload[:], pkt.Data)
		r.rxHead = (r.rxHead + 1) % fifoSize
		r.rxCount++
		r.regs[regSTATUS] |= statusRXDR

		r.rxCount32++
		r.byteCount += uint32(len(pkt.Data))

		ackKey := key // ACK goes back on the same address+channel key
		if r.txCount > 0 {
			tail := &r.txFIFO[r.txTail]
			r.byteCount += uint32(tail.len)
			r.hub.Send(ackKey, tail.payload[:tail.len])
			r.txTail = (r.txTail + 1) % fifoSize
			r.txCount--
			r.regs[regSTATUS] |= statusTXDS
		} else {
			r.hub.Send(ackKey, nil)
		}
	} else if r.exceptor != nil {
		r.exceptor.ExceptRadioXRun()
	}

	r.updateStatus()
}

// addrBytes reads the 5-byte address register (reg) into a fixed array
// for hub.Key.
func addrBytes(r *Radio, reg byte) [5]byte {
	var a [5]byte
	for i := 0; i < 5; i++ {
		a[i] = r.regRef(reg, i)
	}
	return a
}

func (r *Radio) spiCmdData(cmd byte, index int, mosi byte) byte {
	switch cmd {
	case cmdRRxPayload:
		return r.rxFIFO[r.rxTail].payload[index%payloadMax]

	case cmdWTxPayload, cmdWTxPayloadNoAck, cmdWAckPayload:
		r.txFIFO[r.txHead].payload[index%payloadMax] = mosi
		return 0xFF

	case cmdWRegister | regSTATUS:
		mosi &= statusRXDR | statusTXDS | statusMaxRT
		*r.regPtr(cmd, index) &^= mosi
		r.updateIRQ()
		return 0xFF

	case cmdRRxPLWidth:
		return byte(r.rxFIFO[r.rxTail].len)

	default:
		if cmd < cmdRRegister+numRegs {
			return r.regRef(cmd, index)
		}
		if cmd < cmdWRegister+numRegs {
			*r.regPtr(cmd, index) = mosi
			return 0xFF
		}
	}
	return 0xFF
}

func (r *Radio) spiCmdBegin(cmd byte) {
	switch cmd {
	case cmdFlushTX:
		r.txHead, r.txTail, r.txCount = 0, 0, 0
		r.updateStatus()
	case cmdFlushRX:
		r.rxHead, r.rxTail, r.rxCount = 0, 0, 0
		r.updateStatus()
	}
}

func (r *Radio) spiCmdEnd(cmd byte) {
	switch cmd {
	case cmdWTxPayload, cmdWTxPayloadNoAck, cmdWAckPayload:
		r.txFIFO[r.txHead].len = r.spiIdx
		if r.txCount < fifoSize {
			r.txCount++
			r.txHead = (r.txHead + 1) % fifoSize
		} else if r.exceptor != nil {
			r.exceptor.ExceptRadioXRun()
		}
	case cmdRRxPayload:
		if r.rxCount > 0 {
			r.rxCount--
			r.rxTail = (r.rxTail + 1) % fifoSize
		} else if r.exceptor != nil {
			r.exceptor.ExceptRadioXRun()
		}
	}
}

// regRef resolves the byte at (reg, byteIndex) across the 5-byte address
// registers' high bytes, which are stored outside the 32-byte register
// file proper (see design note §9 on the original's union-punning trick:
// here it's just an extra lookup instead of aliased storage).
func (r *Radio) regRef(reg byte, byteIndex int) byte {
	return *r.regPtr(reg, byteIndex)
}

func (r *Radio) regPtr(reg byte, byteIndex int) *byte {
	reg &= numRegs - 1
	if byteIndex > 4 {
		byteIndex = 4
	}
	if byteIndex > 0 {
		switch reg {
		case regTX_ADDR:
			return &r.addrTxHigh[byteIndex-1]
		case regRX_ADDR_P0:
			return &r.addrRx0High[byteIndex-1]
		case regRX_ADDR_P1:
			return &r.addrRx1High[byteIndex-1]
		}
	}
	return &r.regs[reg]
}

// Regs exposes the 32-byte register file for a debug UI.
func (r *Radio) Regs() []byte { return r.regs[:] }
