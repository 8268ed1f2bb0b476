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

// Package rng implements the cube's hardware random number generator: a
// free-running 32-bit xorshift stream, ticked on demand from firmware reads
// of the RNG data register.
package rng

// RNG is a 32-bit xorshift generator. It is deterministic given a seed, so
// that emulator runs are reproducible; real hardware seeds this from analog
// noise, which we don't model.
type RNG struct {
	state uint32
}

// New returns an RNG seeded with a fixed, non-zero default -- xorshift is
// undefined at a zero state and would otherwise get stuck there.
func New() *RNG {
	return &RNG{state: 0x9E3779B9}
}

// Seed reseeds the generator. A zero seed is bumped to the default, for the
// same reason as New.
func (r *RNG) Seed(seed uint32) {
	if seed == 0 {
		seed = 0x9E3779B9
	}
	r.state = seed
}

// Next advances the stream one step and returns the new 32-bit value.
func (r *RNG) Next() uint32 {
	x := r.state
	x ^= x << 13
	x ^= x >> 17
	x ^= x << 5
	r.state = x
	return x
}

// Byte returns the low byte of the next generated word -- this is what
// firmware actually reads out of the RNG data register one byte at a time.
func (r *RNG) Byte() uint8 {
	return uint8(r.Next())
}
