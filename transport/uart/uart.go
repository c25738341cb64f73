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

// Package uart implements the byte-level tama.Transport over a serial
// port. It knows nothing about frames; it moves bytes, bounds every
// read by a short poll interval so cancellation is observed promptly,
// and handles the serial-specific chip quirks (HSU wake-up preamble,
// post-write drain).
package uart

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	tama "github.com/ZaparooProject/go-tama"
	"go.bug.st/serial"
)

const (
	defaultBaudRate = 115200

	// flushSettleDelay is how long FlushInput waits for in-flight bytes
	// before discarding, when asked to.
	flushSettleDelay = 15 * time.Millisecond

	// drainRetries bounds the EINTR retry loop around port drains.
	drainRetries = 3
)

// defaultPollInterval is the serial read timeout, which doubles as the
// cancellation poll bound: a blocked Receive notices an expired context
// within one interval. Windows drivers need a longer one.
func defaultPollInterval() time.Duration {
	if runtime.GOOS == "windows" {
		return 100 * time.Millisecond
	}
	return 50 * time.Millisecond
}

// hsuWakeup is the high-speed-UART wake-up preamble: a 0x55 dummy byte
// and zero padding giving the chip time to leave low-power mode before
// the first real frame arrives.
var hsuWakeup = []byte{
	0x55, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00,
}

// Transport implements tama.Transport for serial-attached readers.
type Transport struct {
	port         serial.Port
	trace        *tama.TraceBuffer
	portName     string
	pollInterval time.Duration
}

// Option configures a Transport during Open.
type Option func(*Transport)

// WithPollInterval overrides the serial read timeout used as the
// cancellation poll bound.
func WithPollInterval(d time.Duration) Option {
	return func(t *Transport) { t.pollInterval = d }
}

// Open opens the named serial port at 115200 8N1 and wakes the chip.
func Open(portName string, opts ...Option) (*Transport, error) {
	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: defaultBaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("opening serial port %s: %w", portName, err)
	}

	t, err := NewWithPort(port, portName, opts...)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	return t, nil
}

// NewWithPort wraps an already opened serial.Port. Tests inject fake
// ports here; Open is the production path.
func NewWithPort(port serial.Port, portName string, opts ...Option) (*Transport, error) {
	t := &Transport{
		port:         port,
		portName:     portName,
		pollInterval: defaultPollInterval(),
	}
	for _, opt := range opts {
		opt(t)
	}

	if err := port.SetReadTimeout(t.pollInterval); err != nil {
		return nil, fmt.Errorf("setting read timeout on %s: %w", portName, err)
	}
	t.trace = tama.NewTraceBuffer(string(tama.TransportUART), portName, 32)

	if err := t.wakeUp(); err != nil {
		return nil, err
	}
	return t, nil
}

// wakeUp sends the HSU wake-up preamble and waits for it to leave the
// host's buffer.
func (t *Transport) wakeUp() error {
	n, err := t.port.Write(hsuWakeup)
	if err != nil {
		return fmt.Errorf("writing wake-up preamble to %s: %w", t.portName, err)
	}
	if n != len(hsuWakeup) {
		return tama.NewTransportWriteError("wakeUp", t.portName)
	}
	return t.drain("wake up")
}

// isInterruptedSyscall reports whether an error looks like EINTR, which
// serial drains are prone to on Linux.
func isInterruptedSyscall(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "interrupted system call") || strings.Contains(msg, "eintr")
}

// drain blocks until the OS transmit buffer is empty, retrying through
// interrupted system calls with a short backoff.
func (t *Transport) drain(op string) error {
	delay := 2 * time.Millisecond
	for attempt := 0; attempt < drainRetries; attempt++ {
		err := t.port.Drain()
		if err == nil {
			return nil
		}
		if isInterruptedSyscall(err) && attempt < drainRetries-1 {
			time.Sleep(delay)
			delay *= 2
			continue
		}
		return fmt.Errorf("draining %s after %s: %w", t.portName, op, err)
	}
	return fmt.Errorf("draining %s after %s: retries exhausted", t.portName, op)
}

// Send implements tama.Transport. A short write is an error.
func (t *Transport) Send(data []byte, _ time.Duration) error {
	t.trace.RecordTX(data, "")
	n, err := t.port.Write(data)
	if err != nil {
		return t.traced(fmt.Errorf("writing %d bytes to %s: %w", len(data), t.portName, err))
	}
	if n != len(data) {
		return t.traced(tama.NewTransportWriteError("send", t.portName))
	}
	return t.drain("send")
}

// Receive implements tama.Transport: it accumulates at least min bytes
// into buf, bounded by timeout. Each underlying port read returns
// within the poll interval, so an expired or cancelled ctx is observed
// with at most one interval of latency.
func (t *Transport) Receive(ctx context.Context, buf []byte, minLen int, timeout time.Duration) (int, error) {
	if minLen > len(buf) {
		minLen = len(buf)
	}
	deadline := time.Now().Add(timeout)

	total := 0
	for {
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		default:
		}

		n, err := t.port.Read(buf[total:])
		if err != nil {
			return total, t.traced(fmt.Errorf("reading from %s: %w", t.portName, err))
		}
		if n > 0 {
			t.trace.RecordRX(buf[total:total+n], "")
			total += n
			if total >= minLen {
				return total, nil
			}
			continue
		}

		// Zero-byte read: the poll interval elapsed with no data.
		if time.Now().After(deadline) {
			return total, t.traced(tama.NewTimeoutError("receive", t.portName))
		}
	}
}

// FlushInput implements tama.Transport. With discardPending it first
// waits a settle delay so bytes already on the wire arrive and get
// discarded with the rest.
func (t *Transport) FlushInput(discardPending bool) error {
	if discardPending {
		time.Sleep(flushSettleDelay)
	}
	if err := t.port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("resetting input buffer on %s: %w", t.portName, err)
	}
	return nil
}

// Close implements tama.Transport.
func (t *Transport) Close() error {
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	if err != nil {
		return fmt.Errorf("closing %s: %w", t.portName, err)
	}
	return nil
}

// Port implements tama.Transport.
func (t *Transport) Port() string { return t.portName }

// Type implements tama.Transport.
func (*Transport) Type() tama.TransportType { return tama.TransportUART }

// traced wraps err with the recent wire trace unless it already is a
// context error, which the session handles itself.
func (t *Transport) traced(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return t.trace.WrapError(err)
}

var _ tama.Transport = (*Transport)(nil)
