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

// Package adc implements the touch-channel analog-to-digital converter:
// 16 input channels, configurable acquisition time / resolution, and
// single-shot or continuous conversion modes.
package adc

import "cubesim/pkg/vtime"

// Register bit layout, relative to the three ADCCON SFRs and the result
// pair. Addresses into the shared SFR array are supplied by the caller.
const (
	con1PowerUp    = 0x80
	con1Busy       = 0x40
	con1ChselMask  = 0x3C
	con1ChselShift = 2

	con2Cont     = 0x20
	con2RateMask = 0x1C
	con2TacqMask = 0x03

	con3ResolMask = 0xC0
	con3RLJust    = 0x20

	irconMisc = 0x08
)

// Regs names the SFR indices the ADC reads and writes. All indices are
// relative to the caller's SFR array.
type Regs struct {
	Con1, Con2, Con3 int
	DatH, DatL       int
	IRCon            int
}

// ADC models the 16-channel touch ADC.
type ADC struct {
	regs    Regs
	inputs  [16]uint16
	trig    bool
	channel int

	conversionTimer uint64
	periodTimer     uint64
}

// New returns an ADC addressing the given SFR window.
func New(regs Regs) *ADC {
	return &ADC{regs: regs}
}

// SetInput sets the raw 16-bit value sampled on channel index (0..15).
// The front end drives this from simulated touch/neighbor hardware.
func (a *ADC) SetInput(index int, value16 uint16) {
	a.inputs[index] = value16
}

// Start requests a single conversion, if one isn't already pending via
// the periodic continuous-mode timer.
func (a *ADC) Start() {
	if a.periodTimer == 0 {
		a.trig = true
	}
}

// Tick advances the conversion state machine. sfr is the shared SFR array.
func (a *ADC) Tick(deadline *vtime.Deadline, sfr []byte) {
	if sfr[a.regs.Con1]&con1PowerUp == 0 {
		return
	}

	if a.periodTimer != 0 {
		if deadline.HasPassed(a.periodTimer) {
			a.periodTimer = 0
			a.trig = true
		} else {
			deadline.Set(a.periodTimer)
		}
	}

	if a.trig && a.conversionTimer == 0 {
		a.trig = false
		a.conversionTimer = deadline.SetRelative(vtime.Nsec(uint32(a.conversionNsec(sfr))))
		a.channel = int(sfr[a.regs.Con1]&con1ChselMask) >> con1ChselShift
	}

	if a.conversionTimer != 0 {
		if !deadline.HasPassed(a.conversionTimer) {
			sfr[a.regs.Con1] |= con1Busy
			deadline.Set(a.conversionTimer)
			return
		}

		a.conversionTimer = 0
		sfr[a.regs.Con1] &^= con1Busy
		sfr[a.regs.IRCon] |= irconMisc

		if sfr[a.regs.Con2]&con2Cont != 0 {
			a.periodTimer = deadline.SetRelative(vtime.Hz(uint32(a.rateHz(sfr))) - vtime.Nsec(uint32(a.conversionNsec(sfr))))
		}

		a.storeResult(sfr, a.inputs[a.channel&0x0F])
	}
}

// conversionNsec implements Table 100 of the nRF24LE1 data sheet: a
// conversion duration selected jointly by the acquisition-time bits in
// ADCCON2 and the resolution bits in ADCCON3.
func (a *ADC) conversionNsec(sfr []byte) int {
	key := (sfr[a.regs.Con2] & con2TacqMask) | (sfr[a.regs.Con3] & con3ResolMask)
	switch key {
	case 0x00:
		return 3000
	case 0x40:
		return 3200
	case 0x80:
		return 3400
	case 0xC0:
		return 3600
	case 0x01:
		return 5300
	case 0x41:
		return 5400
	case 0x81:
		return 5600
	case 0xC1:
		return 5800
	case 0x02:
		return 14300
	case 0x42:
		return 14400
	case 0x82:
		return 14600
	case 0xC2:
		return 14800
	case 0x03:
		return 38300
	case 0x43:
		return 38400
	case 0x83:
		return 38600
	case 0xC3:
		return 38800
	default:
		return 3000
	}
}

func (a *ADC) rateHz(sfr []byte) int {
	switch sfr[a.regs.Con2] & con2RateMask {
	case 0x04:
		return 4000
	case 0x08:
		return 8000
	case 0x0C:
		return 16000
	default:
		return 2000
	}
}

func (a *ADC) storeResult(sfr []byte, result uint16) {
	switch sfr[a.regs.Con3] & (con3ResolMask | con3RLJust) {
	case 0x00: // left-justified, 6-bit
		sfr[a.regs.DatH] = byte(result>>8) & 0xFC
		sfr[a.regs.DatL] = 0
	case 0x40: // left-justified, 8-bit
		sfr[a.regs.DatH] = byte(result >> 8)
		sfr[a.regs.DatL] = 0
	case 0x80: // left-justified, 10-bit
		sfr[a.regs.DatH] = byte(result >> 8)
		sfr[a.regs.DatL] = byte(result) & 0xC0
	case 0xC0: // left-justified, 12-bit
		sfr[a.regs.DatH] = byte(result >> 8)
		sfr[a.regs.DatL] = byte(result) & 0xF0
	case 0x20: // right-justified, 6-bit
		sfr[a.regs.DatH] = 0
		sfr[a.regs.DatL] = byte(result >> 10)
	case 0x60: // right-justified, 8-bit
		sfr[a.regs.DatH] = 0
		sfr[a.regs.DatL] = byte(result >> 8)
	case 0xA0: // right-justified, 10-bit
		sfr[a.regs.DatH] = byte(result >> 14)
		sfr[a.regs.DatL] = byte(result >> 6)
	case 0xE0: // right-justified, 12-bit
		sfr[a.regs.DatH] = byte(result >> 12)
		sfr[a.regs.DatL] = byte(result >> 4)
	}
}
