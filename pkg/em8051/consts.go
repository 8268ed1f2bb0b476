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

// ExceptionKind enumerates the core's exception conditions. The set and
// ordering matches the original firmware's diagnostic table so a crash
// log's exception number means the same thing on either side.
type ExceptionKind int

const (
	ExcBreakpoint ExceptionKind = iota
	ExcStackOverflow
	ExcAccToAccMove
	ExcPSWNotPreserved
	ExcSPNotPreserved
	ExcACCNotPreserved
	ExcDPTRNotPreserved
	ExcRegsNotPreserved
	ExcInvalidOpcodeA5
	ExcBusContention
	ExcSPIXRun
	ExcRadioXRun
	ExcI2CError
	ExcXDataError
	ExcBinTranslator
	ExcMDUError
	ExcRNGError
	ExcNVWriteError
	ExcCLKLF
	ExcBadFlashCmd
	ExcFlashBusy
	numExceptions
)

var excNames = [numExceptions]string{
	"Breakpoint reached",
	"Stack overflow",
	"Invalid operation: acc-to-a move",
	"PSW not preserved over interrupt call",
	"SP not preserved over interrupt call",
	"ACC not preserved over interrupt call",
	"DP* not preserved over interrupt call",
	"R0-R7 not preserved over interrupt call",
	"Invalid opcode: 0xA5 encountered",
	"Hardware bus contention occurred",
	"SPI FIFO overrun/underrun",
	"Radio FIFO overrun/underrun",
	"I2C error",
	"XDATA error",
	"Binary translator error",
	"MDU error",
	"RNG error",
	"Nonvolatile memory write error",
	"Unsupported or invalid LF clock configuration",
	"Badly formatted flash memory command",
	"Operation attempted while flash is busy",
}

func (e ExceptionKind) String() string {
	if e < 0 || e >= numExceptions {
		return "Unknown exception"
	}
	return excNames[e]
}

// Standard 8051 special function register addresses (0x80-0xFF). The
// extended addresses below fill slots the classic map leaves unused, in
// the style of the nRF24LE1-family 8051 core this chip's CPU is modeled
// on; no canonical register header for this part was available to
// transcribe, so these placements are this package's own invention.
const (
	RegP0    = 0x80
	RegSP    = 0x81
	RegDPL   = 0x82
	RegDPH   = 0x83
	RegP0DIR = 0x84
	RegP1DIR = 0x85
	RegP2DIR = 0x86
	RegPCON  = 0x87
	RegTCON  = 0x88
	RegTMOD  = 0x89
	RegTL0   = 0x8A
	RegTL1   = 0x8B
	RegTH0   = 0x8C
	RegTH1   = 0x8D
	RegP3DIR = 0x8E

	RegP1         = 0x90
	RegRFCON      = 0x91
	RegWDSV       = 0x92
	RegCLKLFCTRL  = 0x93
	RegSPIRCON0   = 0x95
	RegSPIRCON1   = 0x96
	RegSPIRSTAT   = 0x97
	RegSCON       = 0x98
	RegSBUF       = 0x99
	RegSPIRDAT    = 0x9A
	RegRTC2CON    = 0x9B
	RegRTC2CMP0   = 0x9C
	RegRTC2CMP1   = 0x9D
	RegPWRDWN     = 0x9E
	RegIRCON      = 0x9F

	RegP2     = 0xA0
	RegMD0    = 0xA1
	RegMD1    = 0xA2
	RegMD2    = 0xA3
	RegMD3    = 0xA4
	RegMD4    = 0xA5
	RegMD5    = 0xA6
	RegARCON  = 0xA7
	RegIE     = 0xA8
	RegADCCON1 = 0xA9
	RegADCCON2 = 0xAA
	RegADCCON3 = 0xAB
	RegADCDATH = 0xAC
	RegADCDATL = 0xAD
	RegI2CDAT  = 0xAE
	RegI2CSTATE = 0xAF

	RegP3 = 0xB0
	RegIP = 0xB8

	RegT2CON   = 0xC8
	RegRCAP2L  = 0xCA
	RegRCAP2H  = 0xCB
	RegTL2     = 0xCC
	RegTH2     = 0xCD

	RegPSW = 0xD0
	RegACC = 0xE0
	RegB   = 0xF0
)

// PSW bits.
const (
	FlagP  = 0x01
	FlagF1 = 0x02
	FlagOV = 0x04
	FlagRS0 = 0x08
	FlagRS1 = 0x10
	FlagF0 = 0x20
	FlagAC = 0x40
	FlagCY = 0x80
)

// TCON bits.
const (
	TCONIT0 = 0x01
	TCONIE0 = 0x02
	TCONIT1 = 0x04
	TCONIE1 = 0x08
	TCONTR0 = 0x10
	TCONTF0 = 0x20
	TCONTR1 = 0x40
	TCONTF1 = 0x80
)

// TMOD bits.
const (
	TModM0_0  = 0x01
	TModM1_0  = 0x02
	TModCT0   = 0x04
	TModGate0 = 0x08
	TModM0_1  = 0x10
	TModM1_1  = 0x20
	TModCT1   = 0x40
	TModGate1 = 0x80
)

// IE/IP bits.
const (
	IEEX0 = 0x01
	IEET0 = 0x02
	IEEX1 = 0x04
	IEET1 = 0x08
	IEES  = 0x10
	IEET2 = 0x20
	IEEA  = 0x80
)

// IRCON bits. Timer 2 and the RTC2 tick compare match are the sources
// the core dispatches, through the timer-2 vector. The ADC additionally
// sets bit 0x08 directly (pkg/adc's irconMisc); SPI/radio/I2C/MDU use the
// remaining bits below as status flags set by pkg/cube, and the core
// does not dispatch an interrupt for them. The bit assignments are this
// package's own, since no canonical register header was available.
const (
	IRConTF2   = 0x01
	IRConTick  = 0x02
	IRConSPI   = 0x04
	IRConRadio = 0x10
	IRConI2C   = 0x20
	IRConMDU   = 0x40
)

// RTC2CON bits.
const (
	RTC2ConEnable     = 0x01
	RTC2ConCompareEn  = 0x02
	RTC2ConCompareRst = 0x04
)

// PWRDWN mode field.
const (
	PwrdwnModeMask        = 0x03
	PwrdwnOff             = 0x00
	PwrdwnDeepSleep       = 0x01
	PwrdwnMemory          = 0x02
	PwrdwnMemoryTimers    = 0x03
)

// CLKLFCTRL bits.
const (
	CLKLFMaskSource = 0x03
	CLKLFSrcNone    = 0x00
	CLKLFSrcRC      = 0x01
	CLKLFSrcSynth   = 0x02

	CLKLFMaskXOSC16M = 0x04
	CLKLFMaskReady   = 0x08
	CLKLFMaskPhase   = 0x10
)

// Timer 0/1/2 external clock inputs, multiplexed onto P3 pins on this
// part (PORT_T012 in the original comments). The exact pin assignment
// wasn't available to transcribe; this mirrors the grouping the source
// implies without claiming a specific silicon pinout.
const (
	PinT0 = 0x10
	PinT1 = 0x20
	PinT2 = 0x01
)

// Interrupt vectors.
const (
	vecExternal0 = 0x0003
	vecTimer0    = 0x000B
	vecExternal1 = 0x0013
	vecTimer1    = 0x001B
	vecSerial    = 0x0023
	vecTimer2    = 0x002B
)

const codeMemSize = 1 << 16
const pcMask = codeMemSize - 1
