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

// Package vtime implements the shared virtual-time clock that every cube
// peripheral schedules its work against: a monotonically increasing
// 64-bit count of CPU cycles since reset, plus a small cooperative
// deadline helper so peripherals can ask to be ticked again at a future
// cycle instead of every cycle.
package vtime

// NominalHz is the fixed nominal clock rate real-time unit conversions
// are performed against, regardless of how fast the host actually runs
// the simulation.
const NominalHz = 16000000

// Clock is a 64-bit cycle counter. It never decreases.
type Clock struct {
	clocks uint64
}

// Now returns the current cycle count.
func (c *Clock) Now() uint64 {
	return c.clocks
}

// Advance moves the clock forward by n cycles. pkg/cube advances it once
// per instruction by that instruction's base clock count.
func (c *Clock) Advance(n uint64) {
	c.clocks += n
}

// Nsec converts a duration in nanoseconds to a cycle count at NominalHz.
func Nsec(n uint32) uint64 {
	return (uint64(n) * NominalHz) / 1000000000
}

// Usec converts a duration in microseconds to a cycle count at NominalHz.
func Usec(n uint32) uint64 {
	return (uint64(n) * NominalHz) / 1000000
}

// Msec converts a duration in milliseconds to a cycle count at NominalHz.
func Msec(n uint32) uint64 {
	return (uint64(n) * NominalHz) / 1000
}

// Hz converts a repetition rate in Hz to a cycle period at NominalHz.
func Hz(n uint32) uint64 {
	if n == 0 {
		return 0
	}
	return NominalHz / uint64(n)
}

// Deadline is a cooperative scheduling helper. Peripherals that only need
// attention occasionally record the absolute cycle at which they next
// want to be ticked; the owning aggregate polls HasPassed() once per
// cycle (or once per SFR write) and only does real work when a deadline
// is actually due.
type Deadline struct {
	clock *Clock
	next  uint64
	armed bool
}

// NewDeadline binds a Deadline to the clock it measures against.
func NewDeadline(clock *Clock) *Deadline {
	return &Deadline{clock: clock}
}

// Clock returns the current absolute cycle count.
func (d *Deadline) Clock() uint64 {
	return d.clock.Now()
}

// Set arms the deadline at an absolute cycle count, but only if that is
// sooner than any deadline already armed. This lets every peripheral call
// Set() unconditionally on every tick and have the soonest request win.
func (d *Deadline) Set(absolute uint64) {
	if !d.armed || absolute < d.next {
		d.next = absolute
		d.armed = true
	}
}

// SetRelative arms the deadline at the current cycle plus a relative
// offset, and returns the resulting absolute cycle -- callers typically
// stash this for a later HasPassed(timestamp) check on that specific
// timer, independent of whatever the shared deadline itself is doing.
func (d *Deadline) SetRelative(offset uint64) uint64 {
	abs := d.clock.Now() + offset
	d.Set(abs)
	return abs
}

// HasPassed reports whether the given absolute timestamp is at or before
// the current clock. With no argument semantics (timestamp==0 meaning
// "never armed") callers should guard on the timer being nonzero first;
// see pkg/flash for that convention.
func (d *Deadline) HasPassed(timestamp uint64) bool {
	return d.clock.Now() >= timestamp
}

// Due reports whether the aggregate's own shared deadline has arrived.
func (d *Deadline) Due() bool {
	return d.armed && d.clock.Now() >= d.next
}

// Clear disarms the shared deadline after the aggregate has serviced it.
// It will be immediately re-armed by the next peripheral that calls Set.
func (d *Deadline) Clear() {
	d.armed = false
}
