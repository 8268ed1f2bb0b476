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

package cube

// accel is the cube's 3-axis accelerometer, addressed over I2C: six
// consecutive registers (X low/high, Y low/high, Z low/high), updated
// from the front end's tilt input (supplemented feature, §12.5 of
// SPEC_FULL -- the original exposes this as Hardware::setAcceleration).
type accel struct {
	axis [6]byte
}

// ReadRegister implements i2c.Accel.
func (a *accel) ReadRegister(offset int) byte {
	return a.axis[offset%len(a.axis)]
}

// SetAcceleration updates the simulated X/Y/Z reading from gravity
// components expressed in g, matching the firmware's signed 10-bit
// left-justified sample format.
func (a *accel) SetAcceleration(xG, yG, zG float32) {
	a.setAxis(0, xG)
	a.setAxis(2, yG)
	a.setAxis(4, zG)
}

func (a *accel) setAxis(offset int, g float32) {
	const countsPerG = 256.0
	v := int32(g * countsPerG)
	if v > 0x1FF {
		v = 0x1FF
	}
	if v < -0x200 {
		v = -0x200
	}
	sample := uint16(v<<6) & 0xFFC0
	a.axis[offset] = byte(sample)
	a.axis[offset+1] = byte(sample >> 8)
}
