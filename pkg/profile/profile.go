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

// Package profile implements optional per-program-counter execution
// profiling: total cycles spent at each address, plus a loop-detection
// counter that tracks how often and how regularly a given PC is
// revisited.
package profile

const numAddrs = 1 << 16

// Sample is the accumulated profiling data for one code address.
type Sample struct {
	TotalCycles uint64
	LoopHits    uint64
	LoopCycles  uint64
	loopPrev    uint64
}

// Profiler is nil-gated: a nil *Profiler's Tick is a no-op, so callers
// can carry a possibly-unallocated profiler with no branch of their own
// (supplemented feature, §12.3 of SPEC_FULL).
type Profiler struct {
	data [numAddrs]Sample
}

// New allocates a profiler. Callers only do this when profiling was
// requested; otherwise they pass around a nil *Profiler.
func New() *Profiler {
	return &Profiler{}
}

// Tick records that one instruction finished executing at pc, having
// taken tickDelay cycles, at absolute simulation time now.
func (p *Profiler) Tick(pc uint16, tickDelay uint8, now uint64) {
	if p == nil {
		return
	}
	s := &p.data[pc]
	if s.TotalCycles != 0 {
		s.LoopCycles += now - s.loopPrev
		s.LoopHits++
	}
	s.TotalCycles += uint64(tickDelay)
	s.loopPrev = now
}

// Sample returns the accumulated data for one address.
func (p *Profiler) Sample(pc uint16) Sample {
	if p == nil {
		return Sample{}
	}
	return p.data[pc]
}

// Reset clears all accumulated samples without deallocating.
func (p *Profiler) Reset() {
	if p == nil {
		return
	}
	for i := range p.data {
		p.data[i] = Sample{}
	}
}

// Top returns the n addresses with the highest TotalCycles, descending.
func (p *Profiler) Top(n int) []struct {
	PC uint16
	Sample
} {
	type entry struct {
		PC uint16
		Sample
	}
	if p == nil || n <= 0 {
		return nil
	}
	all := make([]entry, 0, numAddrs)
	for pc := 0; pc < numAddrs; pc++ {
		if p.data[pc].TotalCycles > 0 {
			all = append(all, entry{PC: uint16(pc), Sample: p.data[pc]})
		}
	}
	for i := 1; i < len(all); i++ {
		for j := i; j > 0 && all[j].TotalCycles > all[j-1].TotalCycles; j-- {
			all[j], all[j-1] = all[j-1], all[j]
		}
	}
	if n > len(all) {
		n = len(all)
	}
	out := make([]struct {
		PC uint16
		Sample
	}, n)
	for i := 0; i < n; i++ {
		out[i] = struct {
			PC uint16
			Sample
		}{PC: all[i].PC, Sample: all[i].Sample}
	}
	return out
}
