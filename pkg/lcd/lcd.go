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

// Package lcd implements the 128x128 RGB-565 LCD controller: a
// command/data byte stream gated by DCX, a pixel-pushing state machine
// that supports 12/16/18-bit-per-pixel color modes, and the handful of
// vendor "magic" commands firmware uses to probe which physical panel
// it's talking to.
package lcd

import "cubesim/pkg/vtime"

const (
	Width  = 128
	Height = 128

	fbSize     = Width * Height
	fbMask     = fbSize - 1
	fbRowShift = 7
)

// Commands.
const (
	cmdNOP     = 0x00
	cmdSWReset = 0x01
	cmdSlpIn   = 0x10
	cmdSlpOut  = 0x11
	cmdDispOff = 0x28
	cmdDispOn  = 0x29
	cmdCASET   = 0x2A
	cmdRASET   = 0x2B
	cmdRAMWR   = 0x2C
	cmdTEOff   = 0x34
	cmdTEOn    = 0x35
	cmdMADCTR  = 0x36
	cmdCOLMOD  = 0x3A

	cmdMagicTruly        = 0xC4
	cmdMagicTianmaHX8353 = 0xB9
	cmdMagicSantekST7735R = 0xF6
	cmdMagicWnWRM68116   = 0xF8
)

// COLMOD color depths.
const (
	Colmod12 = 3
	Colmod16 = 5
	Colmod18 = 6
)

// MADCTR bits.
const (
	madctrMY = 0x80
	madctrMX = 0x40
	madctrMV = 0x20
)

const teWidthUS = 1000

type mirrorOrder int

const (
	mirrorBeforeSwap mirrorOrder = iota
	swapBeforeMirror
)

type panelModel struct {
	madctrXor                                 uint8
	rowAdj, colAdj                            int
	rightMargin, leftMargin, topMargin, botMargin int
	order                                      mirrorOrder
}

// Pins is the LCD's cycle-level parallel bus interface (8-bit, 80-series
// mode, matching an SPFD5414-class controller).
type Pins struct {
	Power  bool
	CSX    bool // active-low
	DCX    bool // low=command, high=data
	WRX    bool // rising edge strobes a byte
	RDX    bool
	DataIn byte
}

// LCD is the 128x128 display controller.
type LCD struct {
	fb [fbSize]uint16

	currentCmd   byte
	cmdByteCount int
	pixelBytes   [3]byte

	xs, xe, ys, ye int
	row, col       int

	madctr, colmod byte
	awake, on, te, powerOn bool

	model panelModel

	prevWRX bool

	frameCount, pixelCount uint32
	teTimestamp            uint64
}

// New returns an LCD controller in its post-reset state.
func New() *LCD {
	l := &LCD{}
	l.reset()
	return l
}

// Framebuffer exposes the 128x128 RGB-565 pixel array for a front end to
// render.
func (l *LCD) Framebuffer() []uint16 { return l.fb[:] }

// IsVisible reports whether the panel is both awake and displaying.
func (l *LCD) IsVisible() bool { return l.awake && l.on }

// FrameCount returns the estimated number of frames rendered so far
// (supplemented feature, counted on DISPON).
func (l *LCD) FrameCount() uint32 { return l.frameCount }

// PixelCount returns the number of pixels written so far.
func (l *LCD) PixelCount() uint32 { return l.pixelCount }

func (l *LCD) reset() {
	l.currentCmd = 0
	l.cmdByteCount = 0
	l.xs, l.xe = 0, Width-1
	l.ys, l.ye = 0, Height-1
	l.row, l.col = 0, 0
	l.madctr = 0
	l.colmod = Colmod18
	l.awake = false
	l.on = false
	l.te = false
	l.powerOn = true
}

// Cycle drives one parallel-bus access.
func (l *LCD) Cycle(pins *Pins) {
	if pins.Power {
		if !l.powerOn {
			l.reset()
		}
		if !pins.CSX && pins.WRX && !l.prevWRX {
			if pins.DCX {
				l.data(pins.DataIn)
			} else {
				l.command(pins.DataIn)
			}
		}
	} else {
		l.on = false
		l.awake = false
		l.powerOn = false
	}
	l.prevWRX = pins.WRX
}

// PulseTE arms the tearing-effect pulse if TE output is enabled.
func (l *LCD) PulseTE(deadline *vtime.Deadline) {
	if l.te {
		l.teTimestamp = deadline.SetRelative(vtime.Usec(teWidthUS))
	}
}

// Tick drives the simulated TE pin. tePin is set/cleared by the caller
// based on the returned state.
func (l *LCD) Tick(deadline *vtime.Deadline) (teHigh bool) {
	if deadline.HasPassed(l.teTimestamp) {
		return false
	}
	deadline.Set(l.teTimestamp)
	return true
}

func (l *LCD) firstPixel() {
	l.row = l.ys
	l.col = l.xs
}

func applyMirroring(flags uint8, row, col int) (int, int) {
	if flags&madctrMY != 0 {
		row = Height - 1 - row
	}
	if flags&madctrMX != 0 {
		col = Width - 1 - col
	}
	return row, col
}

func (l *LCD) writePixel(pixel uint16) {
	vRow, vCol := l.row, l.col
	m := l.madctr ^ l.model.madctrXor

	if l.model.order == mirrorBeforeSwap {
		vRow, vCol = applyMirroring(m, vRow, vCol)
	}

	vRow += l.model.rowAdj
	vCol += l.model.colAdj

	if m&madctrMV != 0 {
		vRow, vCol = vCol, vRow
	}

	if l.model.order == swapBeforeMirror {
		vRow, vCol = applyMirroring(m, vRow, vCol)
	}

	addr := (vCol + (vRow << fbRowShift)) & fbMask
	if addr >= 0 {
		l.fb[addr] = pixel
	}

	l.col++
	if l.col > l.xe {
		l.col = l.xs
		l.row++
		if l.row > l.ye {
			l.row = l.ys
		}
	}
	l.pixelCount++
}

func (l *LCD) writeByte(b byte) {
	l.pixelBytes[l.cmdByteCount] = b
	l.cmdByteCount++

	switch l.colmod {
	case Colmod12:
		if l.cmdByteCount == 3 {
			r1 := l.pixelBytes[0] >> 4
			g1 := l.pixelBytes[0] & 0x0F
			b1 := l.pixelBytes[1] >> 4
			r2 := l.pixelBytes[1] & 0x0F
			g2 := l.pixelBytes[2] >> 4
			b2 := l.pixelBytes[2] & 0x0F
			l.cmdByteCount = 0

			l.writePixel(expand565(r1, g1, b1))
			l.writePixel(expand565(r2, g2, b2))
		}
	case Colmod16:
		if l.cmdByteCount == 2 {
			l.cmdByteCount = 0
			l.writePixel(uint16(l.pixelBytes[0])<<8 | uint16(l.pixelBytes[1]))
		}
	case Colmod18:
		if l.cmdByteCount == 3 {
			r := l.pixelBytes[0] >> 3
			g := l.pixelBytes[1] >> 2
			b := l.pixelBytes[2] >> 3
			l.cmdByteCount = 0
			l.writePixel(uint16(r)<<11 | uint16(g)<<5 | uint16(b))
		}
	default:
		l.cmdByteCount = 0
	}
}

// expand565 replicates a 4-bit-per-channel (12bpp) sample up to 5/6/5
// bits, matching the bit-replication the original performs so low-color
// firmware doesn't look washed out.
func expand565(r4, g4, b4 byte) uint16 {
	r := uint16(r4)<<1 | uint16(r4>>3)
	g := uint16(g4)<<2 | uint16(g4>>2)
	b := uint16(b4)<<1 | uint16(b4>>3)
	return r<<11 | g<<5 | b
}

func (l *LCD) command(op byte) {
	l.currentCmd = op
	l.cmdByteCount = 0

	switch op {
	case cmdRAMWR:
		l.firstPixel()
	case cmdSWReset:
		l.reset()
	case cmdSlpIn:
		l.awake = false
	case cmdSlpOut:
		l.awake = true
	case cmdDispOff:
		l.on = false
	case cmdDispOn:
		l.on = true
		l.frameCount++
	case cmdTEOff:
		l.te = false
	case cmdTEOn:
		l.te = true

	case cmdMagicTruly:
		l.model = panelModel{madctrXor: madctrMX | madctrMY, topMargin: 32, order: swapBeforeMirror}
	case cmdMagicTianmaHX8353:
		l.model = panelModel{madctrXor: madctrMX | madctrMY, order: swapBeforeMirror}
	case cmdMagicSantekST7735R:
		l.model = panelModel{madctrXor: madctrMX | madctrMY, leftMargin: 2, rightMargin: 2, topMargin: 1, botMargin: 33, order: swapBeforeMirror}
	case cmdMagicWnWRM68116:
		l.model = panelModel{madctrXor: madctrMX | madctrMY, order: swapBeforeMirror}
	}
}

func (l *LCD) data(b byte) {
	switch l.currentCmd {
	case cmdCASET:
		switch l.cmdByteCount {
		case 1:
			l.xs = int(b)
		case 3:
			l.xe = int(b)
		}
		l.cmdByteCount++
	case cmdRASET:
		switch l.cmdByteCount {
		case 1:
			l.ys = int(b)
		case 3:
			l.ye = int(b)
		}
		l.cmdByteCount++
	case cmdMADCTR:
		l.madctr = b
		if l.madctr&madctrMY != 0 {
			l.model.rowAdj = -l.model.botMargin
		} else {
			l.model.rowAdj = -l.model.topMargin
		}
		if l.madctr&madctrMX != 0 {
			l.model.colAdj = -l.model.rightMargin
		} else {
			l.model.colAdj = -l.model.leftMargin
		}
		if l.madctr&madctrMV != 0 {
			l.model.rowAdj, l.model.colAdj = l.model.colAdj, l.model.rowAdj
		}
	case cmdCOLMOD:
		l.colmod = b
	case cmdRAMWR:
		l.writeByte(b)
	}
}
