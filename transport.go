// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tama

import (
	"context"
	"time"

	"github.com/ZaparooProject/go-tama/internal/syncutil"
)

// TransportType identifies the physical link a reader is attached through.
type TransportType string

const (
	// TransportUART is a serial (USB-CDC or TTL) connection.
	TransportUART TransportType = "uart"
	// TransportMock is an in-memory transport for testing.
	TransportMock TransportType = "mock"
)

// Transport moves raw bytes between the host and the reader. It knows
// nothing about frames; framing, checksums and command matching live in
// Session. Implementations must be safe for use from the goroutine that
// owns the Session plus one concurrent Abort caller.
type Transport interface {
	// Send writes the entire buffer to the device, bounded by timeout.
	// A short write is an error.
	Send(data []byte, timeout time.Duration) error

	// Receive fills buf with at least min bytes, bounded by timeout.
	// It may return more than min, up to len(buf), when more input is
	// already pending. Cancelling ctx interrupts the wait; Receive then
	// returns the context's error with whatever count was read so far.
	Receive(ctx context.Context, buf []byte, min int, timeout time.Duration) (int, error)

	// FlushInput discards unread input bytes. When discardPending is
	// true the transport waits briefly for in-flight bytes to arrive
	// before discarding, so a straggling response does not corrupt the
	// next exchange.
	FlushInput(discardPending bool) error

	// Close releases the underlying resources. Close is idempotent.
	Close() error

	// Port returns the device path or address, for diagnostics.
	Port() string

	// Type returns the transport type.
	Type() TransportType
}

// MockTransport is an in-memory Transport for tests. Reads are served
// from a scripted byte stream; writes are recorded for inspection.
// Receive blocks until enough scripted bytes exist, the timeout
// expires, or the context is cancelled, which mirrors a real serial
// port closely enough to exercise the Session state machine.
type MockTransport struct {
	readErr    error
	writeErr   error
	dataCh     chan struct{}
	pending    []byte
	writes     [][]byte
	mu         syncutil.Mutex
	flushCount int
	closed     bool
}

// NewMockTransport creates a mock transport with an empty read script.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		dataCh: make(chan struct{}, 1),
	}
}

// QueueRead appends bytes to the scripted input stream. Chunk
// boundaries are not preserved; Receive treats the script as one
// continuous stream, like a serial line would.
func (m *MockTransport) QueueRead(data []byte) {
	m.mu.Lock()
	m.pending = append(m.pending, data...)
	m.mu.Unlock()
	select {
	case m.dataCh <- struct{}{}:
	default:
	}
}

// SetReadError makes every subsequent Receive fail with err until
// cleared with SetReadError(nil).
func (m *MockTransport) SetReadError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErr = err
}

// SetWriteError makes every subsequent Send fail with err until
// cleared with SetWriteError(nil).
func (m *MockTransport) SetWriteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// Writes returns a copy of every buffer passed to Send, in order.
func (m *MockTransport) Writes() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.writes))
	for i, w := range m.writes {
		out[i] = append([]byte(nil), w...)
	}
	return out
}

// FlushCount reports how many times FlushInput was called.
func (m *MockTransport) FlushCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushCount
}

// Pending reports how many scripted bytes have not been read yet. Tests
// use it to assert that drains left the stream aligned.
func (m *MockTransport) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Reset clears the read script, recorded writes and injected errors.
func (m *MockTransport) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = nil
	m.writes = nil
	m.readErr = nil
	m.writeErr = nil
	m.flushCount = 0
}

// Send implements Transport.
func (m *MockTransport) Send(data []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrTransportClosed
	}
	if m.writeErr != nil {
		return m.writeErr
	}
	m.writes = append(m.writes, append([]byte(nil), data...))
	return nil
}

// Receive implements Transport.
func (m *MockTransport) Receive(ctx context.Context, buf []byte, minLen int, timeout time.Duration) (int, error) {
	if minLen > len(buf) {
		minLen = len(buf)
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	total := 0
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return total, ErrTransportClosed
		}
		if m.readErr != nil {
			err := m.readErr
			m.mu.Unlock()
			return total, err
		}
		n := copy(buf[total:], m.pending)
		m.pending = m.pending[n:]
		m.mu.Unlock()
		total += n
		if total >= minLen {
			return total, nil
		}

		select {
		case <-ctx.Done():
			return total, ctx.Err()
		case <-timer.C:
			return total, NewTimeoutError("receive", "mock")
		case <-m.dataCh:
		}
	}
}

// FlushInput implements Transport. The scripted stream models bytes
// that have not arrived yet, so nothing is discarded; the call is only
// counted so tests can assert the Session flushed before sending.
func (m *MockTransport) FlushInput(_ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrTransportClosed
	}
	m.flushCount++
	return nil
}

// Close implements Transport.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Port implements Transport.
func (*MockTransport) Port() string { return "mock" }

// Type implements Transport.
func (*MockTransport) Type() TransportType { return TransportMock }
