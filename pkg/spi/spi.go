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

// Package spi implements a single SPI master controller: a two-deep
// TX/RX FIFO feeding a byte-timed shift register, driving a peripheral
// supplied at construction (the radio, in this cube).
//
// The peripheral callback is invoked once per transferred byte, after the
// configured number of cycles for that byte has elapsed. Its argument is
// the byte clocked out over MOSI; its return value is the byte the
// peripheral would have been clocking out over MISO at the same time.
package spi

import "cubesim/pkg/vtime"

// Peripheral is the device on the other end of the bus.
type Peripheral interface {
	SPIByte(mosi byte) (miso byte)
}

// Exceptor reports a FIFO overrun/underrun.
type Exceptor interface {
	ExceptSPIXRun()
}

const fifoSize = 2

// Status/control bits, shared between CON1 (IRQ mask) and STATUS.
const (
	StatusTXReady = 0x01
	StatusTXEmpty = 0x02
	StatusRXReady = 0x04
	StatusRXFull  = 0x08
)

const conEnable = 0x01
const conClockMask = 0x70
const conClockShift = 4

// Bus is the SPI master.
type Bus struct {
	peripheral Peripheral
	exceptor   Exceptor

	txFIFO [fifoSize]byte
	rxFIFO [fifoSize]byte
	txN    int
	rxN    int

	txMOSI byte
	timer  uint64

	irqState     bool
	statusDirty  bool
}

// New returns an SPI master driving peripheral p.
func New(p Peripheral, exc Exceptor) *Bus {
	return &Bus{peripheral: p, exceptor: exc, statusDirty: true}
}

// WriteData pushes mosi onto the TX FIFO.
func (b *Bus) WriteData(mosi byte) {
	if b.txN >= fifoSize {
		if b.exceptor != nil {
			b.exceptor.ExceptSPIXRun()
		}
		return
	}
	// Shift FIFO: newest byte goes to index 0, oldest drains from the
	// high index -- matches the teacher's memmove-based push/pop shape.
	copy(b.txFIFO[1:], b.txFIFO[:fifoSize-1])
	b.txFIFO[0] = mosi
	b.txN++
	b.statusDirty = true
}

// ReadData pops the oldest byte off the RX FIFO.
func (b *Bus) ReadData() byte {
	miso := b.rxFIFO[0]
	if b.rxN > 0 {
		copy(b.rxFIFO[:fifoSize-1], b.rxFIFO[1:])
		b.rxN--
		b.statusDirty = true
	} else if b.exceptor != nil {
		b.exceptor.ExceptSPIXRun()
	}
	return miso
}

// Tick emulates one CPU-clock cycle of SPI activity: it drains the TX
// shift register when the current byte's clock period has elapsed, pumps
// the next queued byte into the shift register, and recomputes the
// STATUS/IRQ bits. con0/con1/status are the three control SFRs, raiseIRQ
// is called whenever the SPI interrupt condition is asserted.
func (b *Bus) Tick(deadline *vtime.Deadline, con0, con1 byte, setStatus func(byte), raiseIRQ func()) {
	if con0&conEnable == 0 {
		return
	}

	if b.timer != 0 {
		if deadline.HasPassed(b.timer) {
			b.timer = 0
			miso := byte(0xFF)
			if b.peripheral != nil {
				miso = b.peripheral.SPIByte(b.txMOSI)
			}
			if b.rxN < fifoSize {
				b.rxFIFO[b.rxN] = miso
				b.rxN++
			} else if b.exceptor != nil {
				b.exceptor.ExceptSPIXRun()
			}
			b.statusDirty = true
		} else {
			deadline.Set(b.timer)
		}
	}

	if b.txN > 0 && b.timer == 0 {
		b.txN--
		b.txMOSI = b.txFIFO[b.txN]
		b.timer = deadline.SetRelative(ticksPerByte(con0))
		b.statusDirty = true
	}

	if b.statusDirty {
		status := byte(0)
		if b.rxN == fifoSize {
			status |= StatusRXFull
		}
		if b.rxN != 0 {
			status |= StatusRXReady
		}
		if b.txN == 0 {
			status |= StatusTXEmpty
		}
		if b.txN != fifoSize {
			status |= StatusTXReady
		}
		setStatus(status)
		b.irqState = status&^con1 != 0
		b.statusDirty = false
	}

	if b.irqState && raiseIRQ != nil {
		raiseIRQ()
	}
}

func ticksPerByte(con0 byte) uint64 {
	switch (con0 & conClockMask) >> conClockShift {
	case 0:
		return 16
	case 1:
		return 32
	case 2:
		return 64
	case 3:
		return 128
	case 4:
		return 256
	default:
		return 512
	}
}
