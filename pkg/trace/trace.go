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

// Package trace is development-time trace logging, intentionally
// disabled by default: a global enable switch gates every call so a
// release build pays nothing for it beyond one bool check.
package trace

import (
	"fmt"
	"io"

	"github.com/davecgh/go-spew/spew"
)

// Logger receives formatted trace lines and raw register dumps. A front
// end supplies its own (to a file, a socket, whatever); the package
// default is a no-op.
type Logger interface {
	Log(msg string)
}

type nopLogger struct{}

func (nopLogger) Log(string) {}

var (
	defaultLoggerImpl Logger = nopLogger{}
	logger                   = defaultLoggerImpl

	enabled bool
	epoch   uint64
	epochSet bool
)

// SetLogger installs the destination for trace output. A nil impl
// restores the no-op default.
func SetLogger(impl Logger) {
	if impl == nil {
		logger = defaultLoggerImpl
	} else {
		logger = impl
	}
}

// SetEnabled turns tracing on or off. Checked on every call so the
// common case (disabled) is a single branch.
func SetEnabled(b bool) {
	enabled = b
	if !b {
		epochSet = false
	}
}

// Enabled reports the current trace state.
func Enabled() bool {
	return enabled
}

// localClock rebases now to start counting from the first tick seen
// since tracing was last enabled, so log timestamps read from zero.
func localClock(now uint64) uint64 {
	if !epochSet {
		epoch = now
		epochSet = true
		return 0
	}
	return now - epoch
}

// Tick logs a bare timestamp marker, mirroring a VCD-style clock edge.
func Tick(now uint64) {
	if !enabled {
		return
	}
	logger.Log(fmt.Sprintf("%d", localClock(now)))
}

// Logf formats and logs one trace line, tagged with the current PC.
func Logf(now uint64, pc uint16, format string, args ...interface{}) {
	if !enabled {
		return
	}
	logger.Log(fmt.Sprintf("%6d pc=%04x %s", localClock(now), pc, fmt.Sprintf(format, args...)))
}

// LogHex dumps a byte buffer (e.g. a flash program payload or a radio
// packet) via go-spew's hex-dump formatting, tagged with a message.
func LogHex(now uint64, msg string, data []byte) {
	if !enabled {
		return
	}
	logger.Log(fmt.Sprintf("%6d %s\n%s", localClock(now), msg, spew.Sdump(data)))
}

// Dump writes a spew representation of v (e.g. a CPU register snapshot)
// to w, regardless of the enable switch -- used by debug commands, not
// the hot trace path.
func Dump(w io.Writer, v interface{}) {
	spew.Fdump(w, v)
}
