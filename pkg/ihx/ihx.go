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

// Package ihx loads and saves firmware images in Intel HEX format:
// ASCII records of the form ":LLAAAATT DD...DD CC", one per line. Only
// record types 0x00 (data) and 0x01 (EOF) are supported, matching the
// cube's boot ROM loader.
package ihx

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
)

// Sentinel errors for each distinct load failure the spec calls out, so
// callers can discriminate with errors.Is instead of parsing messages.
var (
	ErrOpen            = errors.New("ihx: could not open firmware image")
	ErrFormat          = errors.New("ihx: malformed record")
	ErrChecksum        = errors.New("ihx: checksum mismatch")
	ErrUnsupportedType = errors.New("ihx: unsupported record type")
)

const (
	recData = 0x00
	recEOF  = 0x01
)

// LoadFile parses the Intel-HEX file at path into mem (code memory, indexed
// by load address) and returns the number of bytes written. Parsing stops
// at the first EOF record, even if more lines follow.
func LoadFile(path string, mem []byte) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrOpen, err)
	}
	defer f.Close()
	return Load(f, mem)
}

// Load parses Intel-HEX records from r into mem. See LoadFile.
func Load(r io.Reader, mem []byte) (int, error) {
	scanner := bufio.NewScanner(r)
	written := 0

	for scanner.Scan() {
		line := scanner.Text()
		if len(line) == 0 {
			continue
		}
		if line[0] != ':' {
			return written, ErrFormat
		}
		raw, err := hex.DecodeString(line[1:])
		if err != nil || len(raw) < 5 {
			return written, ErrFormat
		}

		length := int(raw[0])
		address := int(raw[1])<<8 | int(raw[2])
		recType := raw[3]
		if len(raw) != 5+length {
			return written, ErrFormat
		}
		data := raw[4 : 4+length]
		checksum := raw[4+length]

		switch recType {
		case recEOF:
			return written, nil
		case recData:
			// fall through to checksum + copy below
		default:
			return written, ErrUnsupportedType
		}

		sum := int(recType) + length + (address & 0xFF) + (address >> 8)
		for _, b := range data {
			sum += int(b)
		}
		sum = (256 - (sum & 0xFF)) & 0xFF
		if sum != int(checksum) {
			return written, ErrChecksum
		}

		if address+length > len(mem) {
			return written, ErrFormat
		}
		copy(mem[address:], data)
		written += length
	}
	if err := scanner.Err(); err != nil {
		return written, fmt.Errorf("%w: %v", ErrFormat, err)
	}

	// Ran out of input without an EOF record. The loader still accepts
	// whatever data records it saw, same as a truncated real firmware
	// image would.
	return written, nil
}

// Save writes mem (length n starting at address 0) to w as Intel-HEX,
// chunked into 16-byte data records followed by a single EOF record. Save
// followed by Load round-trips exactly for any code image, per the spec's
// round-trip law.
func Save(w io.Writer, mem []byte, n int) error {
	const chunk = 16
	bw := bufio.NewWriter(w)

	for addr := 0; addr < n; addr += chunk {
		length := chunk
		if addr+length > n {
			length = n - addr
		}
		if err := writeRecord(bw, uint16(addr), recData, mem[addr:addr+length]); err != nil {
			return err
		}
	}
	if err := writeRecord(bw, 0, recEOF, nil); err != nil {
		return err
	}
	return bw.Flush()
}

func writeRecord(w *bufio.Writer, address uint16, recType byte, data []byte) error {
	length := len(data)
	sum := int(recType) + length + int(address&0xFF) + int(address>>8)
	for _, b := range data {
		sum += int(b)
	}
	checksum := byte((256 - (sum & 0xFF)) & 0xFF)

	raw := make([]byte, 0, 5+length)
	raw = append(raw, byte(length), byte(address>>8), byte(address), recType)
	raw = append(raw, data...)
	raw = append(raw, checksum)

	if _, err := fmt.Fprintf(w, ":%s\n", hex.EncodeToString(raw)); err != nil {
		return err
	}
	return nil
}
