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

package trace

import (
	"strings"
	"testing"
)

type recordingLogger struct {
	lines []string
}

func (r *recordingLogger) Log(msg string) {
	r.lines = append(r.lines, msg)
}

func resetState() {
	SetEnabled(false)
	SetLogger(nil)
}

func TestLogf_NoopWhenDisabled(t *testing.T) {
	defer resetState()
	rec := &recordingLogger{}
	SetLogger(rec)
	SetEnabled(false)

	Logf(0, 0, "hello")
	if len(rec.lines) != 0 {
		t.Fatalf("Logf() wrote %d lines while disabled", len(rec.lines))
	}
}

func TestLogf_WritesWhenEnabled(t *testing.T) {
	defer resetState()
	rec := &recordingLogger{}
	SetLogger(rec)
	SetEnabled(true)

	Logf(100, 0x1234, "exception: %s", "test")
	if len(rec.lines) != 1 {
		t.Fatalf("Logf() wrote %d lines, want 1", len(rec.lines))
	}
	if !strings.Contains(rec.lines[0], "1234") || !strings.Contains(rec.lines[0], "exception: test") {
		t.Fatalf("Logf() line = %q", rec.lines[0])
	}
}

func TestTick_RebasesEpoch(t *testing.T) {
	defer resetState()
	rec := &recordingLogger{}
	SetLogger(rec)
	SetEnabled(true)

	Tick(1000)
	Tick(1010)

	if rec.lines[0] != "0" {
		t.Fatalf("first Tick() line = %q, want 0", rec.lines[0])
	}
	if rec.lines[1] != "10" {
		t.Fatalf("second Tick() line = %q, want 10", rec.lines[1])
	}
}

func TestSetLogger_NilRestoresDefault(t *testing.T) {
	defer resetState()
	SetLogger(nil)
	SetEnabled(true)
	// Must not panic with no logger installed.
	Logf(0, 0, "noop")
}
