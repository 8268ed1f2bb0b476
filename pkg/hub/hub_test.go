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

package hub

import (
	"sync"
	"testing"
)

func TestSendRecv_FIFO(t *testing.T) {
	h := New()
	key := Key([5]byte{0xE7, 0xE7, 0xE7, 0xE7, 0xE7}, 42)

	h.Send(key, []byte{1, 2, 3})
	h.Send(key, []byte{4, 5})

	p1, ok := h.Recv(key)
	if !ok || string(p1.Data) != string([]byte{1, 2, 3}) {
		t.Fatalf("first Recv() = %v, %v", p1, ok)
	}
	p2, ok := h.Recv(key)
	if !ok || string(p2.Data) != string([]byte{4, 5}) {
		t.Fatalf("second Recv() = %v, %v", p2, ok)
	}
	if _, ok := h.Recv(key); ok {
		t.Fatal("Recv() returned a packet after the mailbox was drained")
	}
}

func TestRecv_EmptyMailbox(t *testing.T) {
	h := New()
	if _, ok := h.Recv(Key([5]byte{}, 0)); ok {
		t.Fatal("Recv() on an unused key returned ok=true")
	}
}

func TestSend_DropsOversizePayload(t *testing.T) {
	h := New()
	key := Key([5]byte{1, 2, 3, 4, 5}, 1)
	h.Send(key, make([]byte, maxPayload+1))
	if _, ok := h.Recv(key); ok {
		t.Fatal("Send() enqueued a payload larger than maxPayload")
	}
}

func TestSend_CopiesPayload(t *testing.T) {
	h := New()
	key := Key([5]byte{1, 2, 3, 4, 5}, 1)
	data := []byte{9, 9, 9}
	h.Send(key, data)
	data[0] = 0xFF

	p, ok := h.Recv(key)
	if !ok || p.Data[0] != 9 {
		t.Fatalf("Recv() observed mutation of the caller's slice: %v", p)
	}
}

func TestKey_DistinctForDifferentChannels(t *testing.T) {
	addr := [5]byte{1, 2, 3, 4, 5}
	if Key(addr, 1) == Key(addr, 2) {
		t.Fatal("Key() collided across distinct channels")
	}
}

func TestHub_ConcurrentSend(t *testing.T) {
	h := New()
	key := Key([5]byte{1, 1, 1, 1, 1}, 0)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h.Send(key, []byte{byte(i)})
		}(i)
	}
	wg.Wait()

	count := 0
	for {
		if _, ok := h.Recv(key); !ok {
			break
		}
		count++
	}
	if count != 50 {
		t.Fatalf("received %d packets, want 50", count)
	}
}
