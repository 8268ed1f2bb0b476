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

package profile

import "testing"

func TestTick_AccumulatesCycles(t *testing.T) {
	p := New()
	p.Tick(0x10, 4, 0)
	p.Tick(0x10, 2, 4)

	s := p.Sample(0x10)
	if s.TotalCycles != 6 {
		t.Fatalf("TotalCycles = %d, want 6", s.TotalCycles)
	}
	if s.LoopHits != 1 {
		t.Fatalf("LoopHits = %d, want 1", s.LoopHits)
	}
	if s.LoopCycles != 4 {
		t.Fatalf("LoopCycles = %d, want 4", s.LoopCycles)
	}
}

func TestTick_NilProfilerIsNoop(t *testing.T) {
	var p *Profiler
	p.Tick(1, 1, 1)
	if got := p.Sample(1); got.TotalCycles != 0 {
		t.Fatalf("Sample() on nil profiler = %+v", got)
	}
	if got := p.Top(5); got != nil {
		t.Fatalf("Top() on nil profiler = %v, want nil", got)
	}
	p.Reset()
}

func TestTop_OrdersByTotalCycles(t *testing.T) {
	p := New()
	p.Tick(1, 5, 0)
	p.Tick(2, 50, 10)
	p.Tick(3, 20, 20)

	top := p.Top(2)
	if len(top) != 2 {
		t.Fatalf("Top(2) returned %d entries, want 2", len(top))
	}
	if top[0].PC != 2 || top[1].PC != 3 {
		t.Fatalf("Top(2) = %+v, want PC order [2, 3]", top)
	}
}

func TestReset_ClearsSamples(t *testing.T) {
	p := New()
	p.Tick(5, 10, 0)
	p.Reset()
	if got := p.Sample(5).TotalCycles; got != 0 {
		t.Fatalf("Sample() after Reset() = %d, want 0", got)
	}
}
