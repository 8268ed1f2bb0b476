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

package em8051

// The opcode table is organized the way the standard 8051 instruction
// set actually groups: most mnemonics occupy 8 consecutive opcodes for
// the Rn/@Ri register family, plus one or two explicit opcodes for the
// direct/immediate/indirect forms. init() below fills the per-register
// families in loops instead of writing out 8 nearly-identical table
// rows by hand; the remaining, irregular opcodes are assigned
// individually.

type instrFunc func(c *Core)

var opTable [256]instrFunc
var opCycles [256]uint8 // machine cycles (1 cycle = 4 base clocks on this core)

func setOp(op byte, cycles uint8, fn instrFunc) {
	opTable[op] = fn
	opCycles[op] = cycles
}

func addWithFlags(c *Core, a, b byte, carryIn bool) byte {
	sum := int(a) + int(b)
	if carryIn {
		sum++
	}
	halfSum := int(a&0x0F) + int(b&0x0F)
	if carryIn {
		halfSum++
	}
	result := byte(sum)
	c.setFlag(FlagCY, sum > 0xFF)
	c.setFlag(FlagAC, halfSum > 0x0F)
	signA, signB, signR := a&0x80, b&0x80, result&0x80
	c.setFlag(FlagOV, signA == signB && signA != signR)
	return result
}

func subWithFlags(c *Core, a, b byte, carryIn bool) byte {
	borrow := byte(0)
	if carryIn {
		borrow = 1
	}
	result := a - b - borrow
	c.setFlag(FlagCY, int(a)-int(b)-int(borrow) < 0)
	c.setFlag(FlagAC, int(a&0x0F)-int(b&0x0F)-int(borrow) < 0)
	signA, signB, signR := a&0x80, b&0x80, result&0x80
	c.setFlag(FlagOV, signA != signB && signB == signR)
	return result
}

func setPZero(c *Core, v byte) byte {
	bits := 0
	for i := 0; i < 8; i++ {
		if v&(1<<uint(i)) != 0 {
			bits++
		}
	}
	c.setFlag(FlagP, bits%2 == 1)
	return v
}

func (c *Core) loadAcc(v byte) {
	c.setAcc(v)
	setPZero(c, v)
}

func init() {
	// ---- Register-indexed families (8 opcodes each, Rn = base+0..7) ----

	for n := byte(0); n < 8; n++ {
		n := n
		setOp(0x08+n, 1, func(c *Core) { // INC Rn
			c.setR(n, c.getR(n)+1)
		})
		setOp(0x18+n, 1, func(c *Core) { // DEC Rn
			c.setR(n, c.getR(n)-1)
		})
		setOp(0x28+n, 1, func(c *Core) { // ADD A,Rn
			c.loadAcc(addWithFlags(c, c.acc(), c.getR(n), false))
		})
		setOp(0x38+n, 1, func(c *Core) { // ADDC A,Rn
			c.loadAcc(addWithFlags(c, c.acc(), c.getR(n), c.flag(FlagCY)))
		})
		setOp(0x48+n, 1, func(c *Core) { // ORL A,Rn
			c.loadAcc(c.acc() | c.getR(n))
		})
		setOp(0x58+n, 1, func(c *Core) { // ANL A,Rn
			c.loadAcc(c.acc() & c.getR(n))
		})
		setOp(0x68+n, 1, func(c *Core) { // XRL A,Rn
			c.loadAcc(c.acc() ^ c.getR(n))
		})
		setOp(0x78+n, 1, func(c *Core) { // MOV Rn,#imm
			c.setR(n, c.fetch())
		})
		setOp(0x88+n, 2, func(c *Core) { // MOV direct,Rn
			c.directWrite(c.fetch(), c.getR(n))
		})
		setOp(0x98+n, 1, func(c *Core) { // SUBB A,Rn
			c.loadAcc(subWithFlags(c, c.acc(), c.getR(n), c.flag(FlagCY)))
		})
		setOp(0xA8+n, 2, func(c *Core) { // MOV Rn,direct
			c.setR(n, c.directRead(c.fetch()))
		})
		setOp(0xB8+n, 2, func(c *Core) { // CJNE Rn,#imm,rel
			imm := c.fetch()
			rel := c.fetch()
			r := c.getR(n)
			c.setFlag(FlagCY, r < imm)
			if r != imm {
				c.rel(rel)
			}
		})
		setOp(0xC8+n, 1, func(c *Core) { // XCH A,Rn
			a, r := c.acc(), c.getR(n)
			c.loadAcc(r)
			c.setR(n, a)
		})
		setOp(0xD8+n, 2, func(c *Core) { // DJNZ Rn,rel
			v := c.getR(n) - 1
			c.setR(n, v)
			rel := c.fetch()
			if v != 0 {
				c.rel(rel)
			}
		})
		setOp(0xE8+n, 1, func(c *Core) { // MOV A,Rn
			c.loadAcc(c.getR(n))
		})
		setOp(0xF8+n, 1, func(c *Core) { // MOV Rn,A
			c.setR(n, c.acc())
		})
	}

	// ---- @Ri families (2 opcodes each, i = 0,1) ----

	for i := byte(0); i < 2; i++ {
		i := i
		setOp(0x06+i, 1, func(c *Core) { // INC @Ri
			ptr := c.getR(i)
			c.indirectWrite(ptr, c.indirectRead(ptr)+1)
		})
		setOp(0x16+i, 1, func(c *Core) { // DEC @Ri
			ptr := c.getR(i)
			c.indirectWrite(ptr, c.indirectRead(ptr)-1)
		})
		setOp(0x26+i, 1, func(c *Core) { // ADD A,@Ri
			c.loadAcc(addWithFlags(c, c.acc(), c.indirectRead(c.getR(i)), false))
		})
		setOp(0x36+i, 1, func(c *Core) { // ADDC A,@Ri
			c.loadAcc(addWithFlags(c, c.acc(), c.indirectRead(c.getR(i)), c.flag(FlagCY)))
		})
		setOp(0x46+i, 1, func(c *Core) { // ORL A,@Ri
			c.loadAcc(c.acc() | c.indirectRead(c.getR(i)))
		})
		setOp(0x56+i, 1, func(c *Core) { // ANL A,@Ri
			c.loadAcc(c.acc() & c.indirectRead(c.getR(i)))
		})
		setOp(0x66+i, 1, func(c *Core) { // XRL A,@Ri
			c.loadAcc(c.acc() ^ c.indirectRead(c.getR(i)))
		})
		setOp(0x76+i, 1, func(c *Core) { // MOV @Ri,#imm
			c.indirectWrite(c.getR(i), c.fetch())
		})
		setOp(0x86+i, 2, func(c *Core) { // MOV direct,@Ri
			c.directWrite(c.fetch(), c.indirectRead(c.getR(i)))
		})
		setOp(0x96+i, 1, func(c *Core) { // SUBB A,@Ri
			c.loadAcc(subWithFlags(c, c.acc(), c.indirectRead(c.getR(i)), c.flag(FlagCY)))
		})
		setOp(0xA6+i, 2, func(c *Core) { // MOV @Ri,direct
			c.indirectWrite(c.getR(i), c.directRead(c.fetch()))
		})
		setOp(0xB6+i, 2, func(c *Core) { // CJNE @Ri,#imm,rel
			ptr := c.indirectRead(c.getR(i))
			imm := c.fetch()
			rel := c.fetch()
			c.setFlag(FlagCY, ptr < imm)
			if ptr != imm {
				c.rel(rel)
			}
		})
		setOp(0xC6+i, 1, func(c *Core) { // XCH A,@Ri
			ptr := c.getR(i)
			a, v := c.acc(), c.indirectRead(ptr)
			c.loadAcc(v)
			c.indirectWrite(ptr, a)
		})
		setOp(0xD6+i, 1, func(c *Core) { // XCHD A,@Ri
			ptr := c.getR(i)
			a, v := c.acc(), c.indirectRead(ptr)
			c.loadAcc(a&0xF0 | v&0x0F)
			c.indirectWrite(ptr, v&0xF0|a&0x0F)
		})
		setOp(0xE6+i, 1, func(c *Core) { // MOV A,@Ri
			c.loadAcc(c.indirectRead(c.getR(i)))
		})
		setOp(0xF6+i, 1, func(c *Core) { // MOV @Ri,A
			c.indirectWrite(c.getR(i), c.acc())
		})
		setOp(0xE2+i, 2, func(c *Core) { // MOVX A,@Ri
			c.loadAcc(c.bus.XRead(uint16(c.getR(i))))
		})
		setOp(0xF2+i, 2, func(c *Core) { // MOVX @Ri,A
			c.bus.XWrite(uint16(c.getR(i)), c.acc())
		})
	}

	// ---- AJMP/ACALL families (page-relative 11-bit address) ----

	for page := byte(0); page < 8; page++ {
		op := page<<5 | 0x01
		setOp(op, 2, func(c *Core) { // AJMP
			lo := c.fetch()
			hi := op
			target := (c.PC & 0xF800) | uint16(hi&0xE0)<<3 | uint16(lo)
			c.PC = target
		})
	}
	for page := byte(0); page < 8; page++ {
		op := page<<5 | 0x11
		setOp(op, 2, func(c *Core) { // ACALL
			lo := c.fetch()
			hi := op
			ret := c.PC
			c.push(byte(ret))
			c.push(byte(ret >> 8))
			c.PC = (c.PC & 0xF800) | uint16(hi&0xE0)<<3 | uint16(lo)
		})
	}

	// ---- Remaining single/explicit opcodes ----

	setOp(0x00, 1, func(c *Core) {}) // NOP

	setOp(0x02, 2, func(c *Core) { // LJMP addr16
		hi, lo := c.fetch(), c.fetch()
		c.PC = uint16(hi)<<8 | uint16(lo)
	})
	setOp(0x03, 1, func(c *Core) { // RR A
		a := c.acc()
		c.loadAcc(a>>1 | a<<7)
	})
	setOp(0x04, 1, func(c *Core) { c.loadAcc(c.acc() + 1) }) // INC A
	setOp(0x05, 1, func(c *Core) {                            // INC direct
		addr := c.fetch()
		c.directWrite(addr, c.directRead(addr)+1)
	})
	setOp(0x10, 2, func(c *Core) { // JBC bit,rel
		bit := c.fetch()
		rel := c.fetch()
		if c.getBit(bit) {
			c.setBit(bit, false)
			c.rel(rel)
		}
	})
	setOp(0x12, 2, func(c *Core) { // LCALL addr16
		hi, lo := c.fetch(), c.fetch()
		ret := c.PC
		c.push(byte(ret))
		c.push(byte(ret >> 8))
		c.PC = uint16(hi)<<8 | uint16(lo)
	})
	setOp(0x13, 1, func(c *Core) { // RRC A
		a := c.acc()
		carry := a & 0x01
		newCY := c.flag(FlagCY)
		result := a >> 1
		if newCY {
			result |= 0x80
		}
		c.setFlag(FlagCY, carry != 0)
		c.loadAcc(result)
	})
	setOp(0x14, 1, func(c *Core) { c.loadAcc(c.acc() - 1) }) // DEC A
	setOp(0x15, 1, func(c *Core) {                            // DEC direct
		addr := c.fetch()
		c.directWrite(addr, c.directRead(addr)-1)
	})
	setOp(0x20, 2, func(c *Core) { // JB bit,rel
		bit := c.fetch()
		rel := c.fetch()
		if c.getBit(bit) {
			c.rel(rel)
		}
	})
	setOp(0x22, 2, func(c *Core) { // RET
		hi := c.pop()
		lo := c.pop()
		c.PC = uint16(hi)<<8 | uint16(lo)
	})
	setOp(0x23, 1, func(c *Core) { // RL A
		a := c.acc()
		c.loadAcc(a<<1 | a>>7)
	})
	setOp(0x24, 1, func(c *Core) { c.loadAcc(addWithFlags(c, c.acc(), c.fetch(), false)) })       // ADD A,#imm
	setOp(0x25, 1, func(c *Core) { c.loadAcc(addWithFlags(c, c.acc(), c.directRead(c.fetch()), false)) }) // ADD A,direct
	setOp(0x30, 2, func(c *Core) { // JNB bit,rel
		bit := c.fetch()
		rel := c.fetch()
		if !c.getBit(bit) {
			c.rel(rel)
		}
	})
	setOp(0x32, 2, func(c *Core) { // RETI
		hi := c.pop()
		lo := c.pop()
		c.PC = uint16(hi)<<8 | uint16(lo)
		c.irqActive = false
	})
	setOp(0x33, 1, func(c *Core) { // RLC A
		a := c.acc()
		carry := a & 0x80
		newCY := c.flag(FlagCY)
		result := a << 1
		if newCY {
			result |= 0x01
		}
		c.setFlag(FlagCY, carry != 0)
		c.loadAcc(result)
	})
	setOp(0x34, 1, func(c *Core) { c.loadAcc(addWithFlags(c, c.acc(), c.fetch(), c.flag(FlagCY))) })       // ADDC A,#imm
	setOp(0x35, 1, func(c *Core) { c.loadAcc(addWithFlags(c, c.acc(), c.directRead(c.fetch()), c.flag(FlagCY))) }) // ADDC A,direct
	setOp(0x40, 2, func(c *Core) { // JC rel
		rel := c.fetch()
		if c.flag(FlagCY) {
			c.rel(rel)
		}
	})
	setOp(0x42, 1, func(c *Core) { // ORL direct,A
		addr := c.fetch()
		c.directWrite(addr, c.directRead(addr)|c.acc())
	})
	setOp(0x43, 2, func(c *Core) { // ORL direct,#imm
		addr := c.fetch()
		imm := c.fetch()
		c.directWrite(addr, c.directRead(addr)|imm)
	})
	setOp(0x44, 1, func(c *Core) { c.loadAcc(c.acc() | c.fetch()) })               // ORL A,#imm
	setOp(0x45, 1, func(c *Core) { c.loadAcc(c.acc() | c.directRead(c.fetch())) }) // ORL A,direct
	setOp(0x50, 2, func(c *Core) { // JNC rel
		rel := c.fetch()
		if !c.flag(FlagCY) {
			c.rel(rel)
		}
	})
	setOp(0x52, 1, func(c *Core) { // ANL direct,A
		addr := c.fetch()
		c.directWrite(addr, c.directRead(addr)&c.acc())
	})
	setOp(0x53, 2, func(c *Core) { // ANL direct,#imm
		addr := c.fetch()
		imm := c.fetch()
		c.directWrite(addr, c.directRead(addr)&imm)
	})
	setOp(0x54, 1, func(c *Core) { c.loadAcc(c.acc() & c.fetch()) })               // ANL A,#imm
	setOp(0x55, 1, func(c *Core) { c.loadAcc(c.acc() & c.directRead(c.fetch())) }) // ANL A,direct
	setOp(0x60, 2, func(c *Core) { // JZ rel
		rel := c.fetch()
		if c.acc() == 0 {
			c.rel(rel)
		}
	})
	setOp(0x62, 1, func(c *Core) { // XRL direct,A
		addr := c.fetch()
		c.directWrite(addr, c.directRead(addr)^c.acc())
	})
	setOp(0x63, 2, func(c *Core) { // XRL direct,#imm
		addr := c.fetch()
		imm := c.fetch()
		c.directWrite(addr, c.directRead(addr)^imm)
	})
	setOp(0x64, 1, func(c *Core) { c.loadAcc(c.acc() ^ c.fetch()) })               // XRL A,#imm
	setOp(0x65, 1, func(c *Core) { c.loadAcc(c.acc() ^ c.directRead(c.fetch())) }) // XRL A,direct
	setOp(0x70, 2, func(c *Core) { // JNZ rel
		rel := c.fetch()
		if c.acc() != 0 {
			c.rel(rel)
		}
	})
	setOp(0x72, 2, func(c *Core) { // ORL C,bit
		bit := c.fetch()
		c.setFlag(FlagCY, c.flag(FlagCY) || c.getBit(bit))
	})
	setOp(0x73, 2, func(c *Core) { c.PC = c.dptr() + uint16(c.acc()) }) // JMP @A+DPTR
	setOp(0x74, 1, func(c *Core) { c.loadAcc(c.fetch()) })              // MOV A,#imm
	setOp(0x75, 2, func(c *Core) { // MOV direct,#imm
		addr := c.fetch()
		c.directWrite(addr, c.fetch())
	})
	setOp(0x80, 2, func(c *Core) { c.rel(c.fetch()) }) // SJMP rel
	setOp(0x82, 2, func(c *Core) {                     // ANL C,bit
		bit := c.fetch()
		c.setFlag(FlagCY, c.flag(FlagCY) && c.getBit(bit))
	})
	setOp(0x83, 2, func(c *Core) { // MOVC A,@A+PC
		addr := c.PC + uint16(c.acc())
		c.loadAcc(c.Code[addr&pcMask])
	})
	setOp(0x84, 4, func(c *Core) { // DIV AB
		a, b := c.acc(), c.sfr(RegB)
		c.setFlag(FlagOV, b == 0)
		if b == 0 {
			c.loadAcc(0)
			c.setSFR(RegB, 0)
		} else {
			q, r := a/b, a%b
			c.loadAcc(q)
			c.setSFR(RegB, r)
		}
		c.setFlag(FlagCY, false)
	})
	setOp(0x85, 2, func(c *Core) { // MOV direct,direct (src read first)
		src := c.fetch()
		dst := c.fetch()
		c.directWrite(dst, c.directRead(src))
	})
	setOp(0x90, 2, func(c *Core) { // MOV DPTR,#imm16
		hi, lo := c.fetch(), c.fetch()
		c.setDPTR(uint16(hi)<<8 | uint16(lo))
	})
	setOp(0x92, 2, func(c *Core) { c.setBit(c.fetch(), c.flag(FlagCY)) }) // MOV bit,C
	setOp(0x93, 2, func(c *Core) {                                       // MOVC A,@A+DPTR
		addr := c.dptr() + uint16(c.acc())
		c.loadAcc(c.Code[addr&pcMask])
	})
	setOp(0x94, 1, func(c *Core) { c.loadAcc(subWithFlags(c, c.acc(), c.fetch(), c.flag(FlagCY))) })       // SUBB A,#imm
	setOp(0x95, 1, func(c *Core) { c.loadAcc(subWithFlags(c, c.acc(), c.directRead(c.fetch()), c.flag(FlagCY))) }) // SUBB A,direct
	setOp(0xA0, 2, func(c *Core) { // ORL C,/bit
		bit := c.fetch()
		c.setFlag(FlagCY, c.flag(FlagCY) || !c.getBit(bit))
	})
	setOp(0xA2, 1, func(c *Core) { c.setFlag(FlagCY, c.getBit(c.fetch())) }) // MOV C,bit
	setOp(0xA3, 2, func(c *Core) { c.setDPTR(c.dptr() + 1) })                // INC DPTR
	setOp(0xA4, 4, func(c *Core) { // MUL AB
		a, b := c.acc(), c.sfr(RegB)
		result := uint16(a) * uint16(b)
		c.loadAcc(byte(result))
		c.setSFR(RegB, byte(result>>8))
		c.setFlag(FlagOV, result > 0xFF)
		c.setFlag(FlagCY, false)
	})
	setOp(0xA5, 1, func(c *Core) { c.except(ExcInvalidOpcodeA5) }) // reserved
	setOp(0xB0, 2, func(c *Core) { // ANL C,/bit
		bit := c.fetch()
		c.setFlag(FlagCY, c.flag(FlagCY) && !c.getBit(bit))
	})
	setOp(0xB2, 1, func(c *Core) { // CPL bit
		bit := c.fetch()
		c.setBit(bit, !c.getBit(bit))
	})
	setOp(0xB3, 1, func(c *Core) { c.setFlag(FlagCY, !c.flag(FlagCY)) }) // CPL C
	setOp(0xB4, 2, func(c *Core) { // CJNE A,#imm,rel
		imm := c.fetch()
		rel := c.fetch()
		a := c.acc()
		c.setFlag(FlagCY, a < imm)
		if a != imm {
			c.rel(rel)
		}
	})
	setOp(0xB5, 2, func(c *Core) { // CJNE A,direct,rel
		addr := c.fetch()
		rel := c.fetch()
		a, v := c.acc(), c.directRead(addr)
		c.setFlag(FlagCY, a < v)
		if a != v {
			c.rel(rel)
		}
	})
	setOp(0xC0, 2, func(c *Core) { c.push(c.directRead(c.fetch())) }) // PUSH direct
	setOp(0xC2, 1, func(c *Core) { c.setBit(c.fetch(), false) })      // CLR bit
	setOp(0xC3, 1, func(c *Core) { c.setFlag(FlagCY, false) })        // CLR C
	setOp(0xC4, 1, func(c *Core) { // SWAP A
		a := c.acc()
		c.loadAcc(a<<4 | a>>4)
	})
	setOp(0xC5, 1, func(c *Core) { // XCH A,direct
		addr := c.fetch()
		a, v := c.acc(), c.directRead(addr)
		c.loadAcc(v)
		c.directWrite(addr, a)
	})
	setOp(0xD0, 2, func(c *Core) { c.directWrite(c.fetch(), c.pop()) }) // POP direct
	setOp(0xD2, 1, func(c *Core) { c.setBit(c.fetch(), true) })         // SETB bit
	setOp(0xD3, 1, func(c *Core) { c.setFlag(FlagCY, true) })           // SETB C
	setOp(0xD4, 1, func(c *Core) { // DA A -- BCD adjust
		a := c.acc()
		cy := c.flag(FlagCY)
		if a&0x0F > 9 || c.flag(FlagAC) {
			a += 0x06
		}
		if a > 0x9F || cy {
			a += 0x60
			cy = true
		}
		c.setFlag(FlagCY, cy)
		c.loadAcc(a)
	})
	setOp(0xD5, 2, func(c *Core) { // DJNZ direct,rel
		addr := c.fetch()
		v := c.directRead(addr) - 1
		c.directWrite(addr, v)
		rel := c.fetch()
		if v != 0 {
			c.rel(rel)
		}
	})
	setOp(0xE0, 2, func(c *Core) { c.loadAcc(c.bus.XRead(c.dptr())) }) // MOVX A,@DPTR
	setOp(0xE4, 1, func(c *Core) { c.loadAcc(0) })                    // CLR A
	setOp(0xE5, 1, func(c *Core) { c.loadAcc(c.directRead(c.fetch())) }) // MOV A,direct
	setOp(0xF0, 2, func(c *Core) { c.bus.XWrite(c.dptr(), c.acc()) }) // MOVX @DPTR,A
	setOp(0xF4, 1, func(c *Core) { c.loadAcc(c.acc() ^ 0xFF) })       // CPL A
	setOp(0xF5, 1, func(c *Core) { c.directWrite(c.fetch(), c.acc()) }) // MOV direct,A
}
