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

package mdu

import "testing"

type fakeExceptor struct {
	count int
}

func (f *fakeExceptor) ExceptMDU() { f.count++ }

const mdBase = 0

func TestMultiply16x16(t *testing.T) {
	regs := make([]byte, 8)
	exc := &fakeExceptor{}
	m := New(mdBase, 7, exc)

	regs[0] = 5 // A low
	regs[1] = 0 // A high
	regs[4] = 3 // B low
	regs[5] = 0 // B high

	m.Write(0, regs, 0)
	m.Write(0, regs, 4)
	m.Write(0, regs, 1)
	m.Write(0, regs, 5)

	got := uint32(regs[3])<<24 | uint32(regs[2])<<16 | uint32(regs[1])<<8 | uint32(regs[0])
	if got != 15 {
		t.Fatalf("5*3 = %d, want 15", got)
	}
	if exc.count != 0 {
		t.Fatalf("ExceptMDU called %d times, want 0", exc.count)
	}
}

func TestDivide16x16(t *testing.T) {
	regs := make([]byte, 8)
	m := New(mdBase, 7, &fakeExceptor{})

	regs[0] = 100 // dividend low
	regs[1] = 0
	regs[4] = 7 // divisor low
	regs[5] = 0

	m.Write(0, regs, 0)
	m.Write(0, regs, 1)
	m.Write(0, regs, 4)
	m.Write(0, regs, 5)

	q := uint16(regs[1])<<8 | uint16(regs[0])
	r := uint16(regs[5])<<8 | uint16(regs[4])
	if q != 14 || r != 2 {
		t.Fatalf("100/7 = q=%d r=%d, want q=14 r=2", q, r)
	}
}

func TestDivide32x16(t *testing.T) {
	regs := make([]byte, 8)
	m := New(mdBase, 7, &fakeExceptor{})

	a := uint32(1000000)
	regs[0] = byte(a)
	regs[1] = byte(a >> 8)
	regs[2] = byte(a >> 16)
	regs[3] = byte(a >> 24)
	regs[4] = 3
	regs[5] = 0

	m.Write(0, regs, 0)
	m.Write(0, regs, 1)
	m.Write(0, regs, 2)
	m.Write(0, regs, 3)
	m.Write(0, regs, 4)
	m.Write(0, regs, 5)

	q := uint32(regs[3])<<24 | uint32(regs[2])<<16 | uint32(regs[1])<<8 | uint32(regs[0])
	r := uint16(regs[5])<<8 | uint16(regs[4])
	if q != a/3 || r != uint16(a%3) {
		t.Fatalf("1000000/3 = q=%d r=%d, want q=%d r=%d", q, r, a/3, a%3)
	}
}

func TestDivideByZero_RaisesException(t *testing.T) {
	regs := make([]byte, 8)
	exc := &fakeExceptor{}
	m := New(mdBase, 7, exc)

	regs[0], regs[1] = 5, 0
	regs[4], regs[5] = 0, 0

	m.Write(0, regs, 0)
	m.Write(0, regs, 1)
	m.Write(0, regs, 4)
	m.Write(0, regs, 5)

	if exc.count == 0 {
		t.Fatal("ExceptMDU was not called on division by zero")
	}
}

func TestRead_BeforeReady_RaisesException(t *testing.T) {
	regs := make([]byte, 8)
	exc := &fakeExceptor{}
	m := New(mdBase, 7, exc)

	regs[0], regs[1] = 5, 0
	regs[4], regs[5] = 3, 0
	m.Write(0, regs, 0)
	m.Write(0, regs, 4)
	m.Write(0, regs, 1)
	m.Write(0, regs, 5)

	m.Read(0, regs, 0)
	if exc.count == 0 {
		t.Fatal("Read() before the busy timer elapsed did not raise ExceptMDU")
	}
}

func TestRead_StaticTranslationSuppressesException(t *testing.T) {
	regs := make([]byte, 8)
	exc := &fakeExceptor{}
	m := New(mdBase, 7, exc)
	m.SetStaticTranslation(true)

	regs[0], regs[1] = 5, 0
	regs[4], regs[5] = 3, 0
	m.Write(0, regs, 0)
	m.Write(0, regs, 4)
	m.Write(0, regs, 1)
	m.Write(0, regs, 5)

	m.Read(0, regs, 0)
	if exc.count != 0 {
		t.Fatalf("ExceptMDU called %d times with static translation on, want 0", exc.count)
	}
}
