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

import "testing"

type fakeBus struct {
	sfrWrites     []byte
	exceptions    []ExceptionKind
	neighborClears int
}

func (b *fakeBus) XRead(addr uint16) byte       { return 0 }
func (b *fakeBus) XWrite(addr uint16, v byte)   {}
func (b *fakeBus) SFRWritten(addr byte, v byte) { b.sfrWrites = append(b.sfrWrites, addr) }
func (b *fakeBus) ClearNeighborInput()          { b.neighborClears++ }
func (b *fakeBus) Except(kind ExceptionKind)    { b.exceptions = append(b.exceptions, kind) }

func newTestCore() (*Core, *fakeBus) {
	bus := &fakeBus{}
	return New(bus), bus
}

func TestReset_PostResetSFRValues(t *testing.T) {
	c, _ := newTestCore()
	if c.PC != 0 {
		t.Fatalf("PC = %#x after reset, want 0", c.PC)
	}
	if c.sfr(RegSP) != 7 {
		t.Fatalf("SP = %d after reset, want 7", c.sfr(RegSP))
	}
	if c.sfr(RegP0) != 0xFF || c.sfr(RegP1) != 0xFF {
		t.Fatal("port SFRs not all-high after reset")
	}
}

func TestStep_MovImmediateToAcc(t *testing.T) {
	c, _ := newTestCore()
	c.Code[0] = 0x74 // MOV A,#imm
	c.Code[1] = 0x42

	cycles := c.Step()
	if c.acc() != 0x42 {
		t.Fatalf("ACC = %#x, want 0x42", c.acc())
	}
	if cycles != 4 {
		t.Fatalf("Step() reported %d cycles, want 4 (1 machine cycle)", cycles)
	}
	if c.PC != 2 {
		t.Fatalf("PC = %d after a 2-byte instruction, want 2", c.PC)
	}
}

func TestStep_AddSetsCarry(t *testing.T) {
	c, _ := newTestCore()
	c.setAcc(0xFF)
	c.Code[0] = 0x24 // ADD A,#imm
	c.Code[1] = 0x01

	c.Step()
	if c.acc() != 0x00 {
		t.Fatalf("ACC = %#x, want 0x00 (wrapped)", c.acc())
	}
	if !c.flag(FlagCY) {
		t.Fatal("CY not set after 0xFF + 0x01 overflowed a byte")
	}
}

func TestStep_SJMP(t *testing.T) {
	c, _ := newTestCore()
	c.Code[0] = 0x80 // SJMP rel
	c.Code[1] = 0x05

	c.Step()
	if c.PC != 7 {
		t.Fatalf("PC = %d after SJMP +5 from PC=2, want 7", c.PC)
	}
}

func TestStep_LCALLAndRET(t *testing.T) {
	c, _ := newTestCore()
	c.Code[0] = 0x12 // LCALL addr16
	c.Code[1] = 0x01
	c.Code[2] = 0x00
	c.Code[0x100] = 0x22 // RET

	c.Step() // LCALL
	if c.PC != 0x0100 {
		t.Fatalf("PC = %#x after LCALL, want 0x0100", c.PC)
	}
	sp := c.sp()
	if sp != 9 { // SP reset value 7, pushed 2 bytes
		t.Fatalf("SP = %d after LCALL pushed return address, want 9", sp)
	}

	c.Step() // RET
	if c.PC != 3 {
		t.Fatalf("PC = %d after RET, want 3 (the byte after the 3-byte LCALL)", c.PC)
	}
}

func TestSFRWrite_NotifiesBus(t *testing.T) {
	c, bus := newTestCore()
	c.Code[0] = 0x75 // MOV direct,#imm
	c.Code[1] = RegP0
	c.Code[2] = 0x01

	c.Step()
	found := false
	for _, addr := range bus.sfrWrites {
		if addr == RegP0 {
			found = true
		}
	}
	if !found {
		t.Fatal("SFRWritten was not called for a direct SFR write")
	}
}

func TestStep_InvalidOpcodeRaisesException(t *testing.T) {
	c, bus := newTestCore()
	c.Code[0] = 0xA5 // reserved/invalid opcode on this core

	c.Step()
	if len(bus.exceptions) != 1 || bus.exceptions[0] != ExcInvalidOpcodeA5 {
		t.Fatalf("exceptions = %v, want [ExcInvalidOpcodeA5]", bus.exceptions)
	}
}

func TestStep_StackOverflowRaisesException(t *testing.T) {
	c, bus := newTestCore()
	c.setSP(0xFF)
	c.Code[0] = 0xC0 // PUSH direct
	c.Code[1] = RegACC

	c.Step()
	if len(bus.exceptions) != 1 || bus.exceptions[0] != ExcStackOverflow {
		t.Fatalf("exceptions = %v, want [ExcStackOverflow]", bus.exceptions)
	}
}

func TestTimer0_Mode1OverflowSetsTF0AndRequestsInterrupt(t *testing.T) {
	c, _ := newTestCore()
	c.setSFR(RegTMOD, TModM0_0) // timer 0, mode 1 (16-bit)
	c.setSFR(RegTCON, TCONTR0)  // timer 0 running, internal clock
	c.setSFR(RegTL0, 0xFF)
	c.setSFR(RegTH0, 0xFF)

	// 12 base clocks = one pass of the prescaler-12 divider = one timer tick.
	c.tickTimers(12)

	if c.sfr(RegTCON)&TCONTF0 == 0 {
		t.Fatal("TCON.TF0 not set after timer 0 overflowed")
	}
	if !c.needInterruptDispatch {
		t.Fatal("needInterruptDispatch not set after a timer overflow")
	}
}

func TestDispatchInterrupt_PushesPCAndJumpsToVector(t *testing.T) {
	c, _ := newTestCore()
	c.PC = 0x1234
	c.setSFR(RegIE, IEEA|IEET0)
	c.setSFR(RegTCON, TCONTF0)
	c.needInterruptDispatch = true

	dispatched := c.dispatchInterrupt()
	if !dispatched {
		t.Fatal("dispatchInterrupt() returned false with a pending, enabled timer 0 interrupt")
	}
	if c.PC != vecTimer0 {
		t.Fatalf("PC = %#x after dispatch, want vecTimer0 (%#x)", c.PC, vecTimer0)
	}
	if c.sfr(RegTCON)&TCONTF0 != 0 {
		t.Fatal("TCON.TF0 was not cleared on interrupt entry")
	}
	if !c.irqActive {
		t.Fatal("irqActive not set while servicing an interrupt")
	}
}

func TestDispatchInterrupt_DisabledWhenEANotSet(t *testing.T) {
	c, _ := newTestCore()
	c.setSFR(RegIE, IEET0) // EA clear
	c.setSFR(RegTCON, TCONTF0)

	if c.dispatchInterrupt() {
		t.Fatal("dispatchInterrupt() fired an interrupt with EA clear")
	}
}

func TestWatchdog_ExpiryTriggersResetWithoutWipingRAM(t *testing.T) {
	c, _ := newTestCore()
	c.IRAM[0x10] = 0xAB
	c.setSFR(RegCLKLFCTRL, CLKLFSrcRC)

	c.setSFR(RegWDSV, 0x01) // low byte
	c.setSFR(RegWDSV, 0x00) // high byte, arms wdtCounter=1, wdtEnabled=true

	// Twelve base clocks cross the prescaler-12 divider once, and the LF prescaler's first edge fires on its very first
	// trigger (it starts at zero), so this single tick already expires
	// the one-count watchdog.
	c.tickTimers(12)

	if c.IRAM[0x10] != 0xAB {
		t.Fatal("watchdog reset wiped IRAM; it should preserve RAM (Reset(false))")
	}
	if c.wdtEnabled {
		t.Fatal("watchdog still enabled after it fired and reset the core")
	}
}

func TestStep_PowerDownHaltsExecutionUntilInterrupt(t *testing.T) {
	c, _ := newTestCore()
	c.Code[0] = 0x74 // MOV A,#imm, would change ACC if it ran
	c.Code[1] = 0x99
	c.setSFR(RegPWRDWN, PwrdwnDeepSleep)

	c.Step()
	if c.acc() == 0x99 {
		t.Fatal("instruction executed despite power-down mode being active")
	}

	c.needInterruptDispatch = true
	c.Step()
	if c.powerDown {
		t.Fatal("powerDown still set after a pending interrupt dispatch woke the core")
	}
}
