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

// Package mdu implements the multiply/divide unit, a small math
// coprocessor addressed through six SFRs (MD0..MD5) plus a status/control
// register (ARCON). The operation it performs is selected entirely by the
// order in which MD0..MD5 are written, not by a dedicated opcode SFR.
package mdu

// Exceptor reports an MDU exception: an illegal write sequence, or a read
// of MD0..MD5 before the operation it's computing has finished.
type Exceptor interface {
	ExceptMDU()
}

// Write sequences that select an operation, encoded as nibbles in the
// order MD1..MD5 were written (MD0 always starts a new sequence and isn't
// itself part of the key).
const (
	seq32Div16   = 0x12345 // 32-bit / 16-bit division
	seq16Div16   = 0x145   // 16-bit / 16-bit division
	seq16Mul16   = 0x415   // 16-bit x 16-bit multiplication
	seqShiftUndo = 0x6     // undocumented: normalize/shift without full rewrite
	seqShift     = 0x1236  // normalize / shift
)

// MDU is the multiply/divide coprocessor. Operands and results live in the
// caller's SFR array at MD0..MD5 (regs[mdBase:mdBase+6]) and ARCON
// (regs[arcon]); MDU only tracks the write-order state machine and the
// busy deadline.
type MDU struct {
	busyTimer    uint64
	writeSeq     uint32
	armed        bool
	mdBase       int
	arconIdx     int
	staticXlate  bool
	exceptor     Exceptor
}

// New returns an MDU addressing MD0..MD5 at regs[mdBase:mdBase+6] and
// ARCON at regs[arconIdx], reporting errors through exc.
func New(mdBase, arconIdx int, exc Exceptor) *MDU {
	return &MDU{mdBase: mdBase, arconIdx: arconIdx, exceptor: exc}
}

// SetStaticTranslation suppresses the "read before ready" exception while
// the CPU is executing a statically translated basic block, matching the
// original's sbt carve-out: the whole MDU operation may complete within
// the same block that reads its result.
func (m *MDU) SetStaticTranslation(on bool) {
	m.staticXlate = on
}

// Write records an SFR write to one of MD0..MD5 (reg 0..5) or to ARCON
// (reg 6). Writing MD0 always starts a fresh sequence; writing MD5 or
// ARCON completes it and triggers the operation.
func (m *MDU) Write(now uint64, regs []byte, reg int) {
	if reg == 0 {
		m.writeSeq = 0
		m.armed = true
		return
	}
	m.writeSeq = (m.writeSeq << 4) | uint32(reg)
	if reg >= 5 {
		m.operate(now, regs)
	}
}

// Read returns MD0..MD5 or ARCON (reg indexes the same six-register
// window as Write). It raises an exception if the result isn't ready yet.
func (m *MDU) Read(now uint64, regs []byte, reg int) byte {
	if now < m.busyTimer && !m.staticXlate && m.exceptor != nil {
		m.exceptor.ExceptMDU()
	}
	return regs[m.mdBase+reg]
}

func (m *MDU) md(regs []byte, i int) byte    { return regs[m.mdBase+i] }
func (m *MDU) setMD(regs []byte, i int, v byte) { regs[m.mdBase+i] = v }

func (m *MDU) operate(now uint64, regs []byte) {
	if now < m.busyTimer {
		if m.exceptor != nil {
			m.exceptor.ExceptMDU()
		}
	}

	switch m.writeSeq {

	case seq32Div16:
		a := uint32(m.md(regs, 3))<<24 | uint32(m.md(regs, 2))<<16 | uint32(m.md(regs, 1))<<8 | uint32(m.md(regs, 0))
		b := uint16(m.md(regs, 5))<<8 | uint16(m.md(regs, 4))
		if b == 0 {
			if m.exceptor != nil {
				m.exceptor.ExceptMDU()
			}
			return
		}
		q := a / uint32(b)
		r := uint16(a % uint32(b))
		m.busyTimer = now + 17
		m.setMD(regs, 0, byte(q))
		m.setMD(regs, 1, byte(q>>8))
		m.setMD(regs, 2, byte(q>>16))
		m.setMD(regs, 3, byte(q>>24))
		m.setMD(regs, 4, byte(r))
		m.setMD(regs, 5, byte(r>>8))

	case seq16Div16:
		a := uint16(m.md(regs, 1))<<8 | uint16(m.md(regs, 0))
		b := uint16(m.md(regs, 5))<<8 | uint16(m.md(regs, 4))
		if b == 0 {
			if m.exceptor != nil {
				m.exceptor.ExceptMDU()
			}
			return
		}
		q := a / b
		r := a % b
		m.busyTimer = now + 9
		m.setMD(regs, 0, byte(q))
		m.setMD(regs, 1, byte(q>>8))
		m.setMD(regs, 4, byte(r))
		m.setMD(regs, 5, byte(r>>8))

	case seq16Mul16:
		a := uint32(uint16(m.md(regs, 1))<<8 | uint16(m.md(regs, 0)))
		b := uint32(uint16(m.md(regs, 5))<<8 | uint16(m.md(regs, 4)))
		c := a * b
		m.busyTimer = now + 11
		m.setMD(regs, 0, byte(c))
		m.setMD(regs, 1, byte(c>>8))
		m.setMD(regs, 2, byte(c>>16))
		m.setMD(regs, 3, byte(c>>24))

	case seqShiftUndo, seqShift:
		n := uint32(m.md(regs, 3))<<24 | uint32(m.md(regs, 2))<<16 | uint32(m.md(regs, 1))<<8 | uint32(m.md(regs, 0))
		con := regs[m.arconIdx]

		if con&0x1F == 0 {
			// Normalize: shift left until the top bit is set, counting
			// the shift amount into the low 5 bits of ARCON.
			if n != 0 {
				for n&0x80000000 == 0 {
					n <<= 1
					con++
				}
			}
			m.busyTimer = now + 4 + uint64(con&0x1F)/2
		} else {
			if con&0x20 != 0 {
				n >>= uint(con & 0x1F)
			} else {
				n <<= uint(con & 0x1F)
			}
			m.busyTimer = now + 3 + uint64(con&0x1F)/2
		}

		m.setMD(regs, 0, byte(n))
		m.setMD(regs, 1, byte(n>>8))
		m.setMD(regs, 2, byte(n>>16))
		m.setMD(regs, 3, byte(n>>24))
		regs[m.arconIdx] = con

	default:
		if m.exceptor != nil {
			m.exceptor.ExceptMDU()
		}
	}
}
