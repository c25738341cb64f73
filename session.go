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
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-tama/internal/frame"
	"github.com/ZaparooProject/go-tama/internal/syncutil"
)

// Default session timeouts. Each bounds a single I/O step, not a whole
// exchange; a multi-step receive may take up to the sum of its steps.
const (
	DefaultAckTimeout      = 1 * time.Second
	DefaultResponseTimeout = 2 * time.Second
)

// Session frames commands onto a byte Transport and validates the
// responses. It tracks the command sequence (every response code must be
// the last sent command plus one) and coordinates cancellation of
// blocked receives.
//
// A Session is single-caller: one goroutine drives exchanges. Abort is
// the only method that may be called from a second goroutine.
type Session struct {
	transport Transport

	ackTimeout  time.Duration
	respTimeout time.Duration

	// lastCommand is only touched by the exchanging goroutine: set when
	// a command is acknowledged, advanced when a response validates.
	lastCommand byte

	abortMu syncutil.Mutex
	abortCh chan struct{}
	aborted bool
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithAckTimeout bounds the wait for the 6-byte ACK window after a
// command is sent.
func WithAckTimeout(d time.Duration) SessionOption {
	return func(s *Session) { s.ackTimeout = d }
}

// WithResponseTimeout bounds each read step of a response frame.
func WithResponseTimeout(d time.Duration) SessionOption {
	return func(s *Session) { s.respTimeout = d }
}

// NewSession creates a Session over the given transport.
func NewSession(t Transport, opts ...SessionOption) *Session {
	s := &Session{
		transport:   t,
		ackTimeout:  DefaultAckTimeout,
		respTimeout: DefaultResponseTimeout,
		abortCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Transport returns the underlying transport.
func (s *Session) Transport() Transport {
	return s.transport
}

// SendCommand builds a command frame, sends it and waits for the chip's
// ACK. On success the command code is recorded so the matching response
// can be validated. A pending abort signal from a previous exchange is
// cleared first.
func (s *Session) SendCommand(ctx context.Context, cmd byte, payload []byte) error {
	s.resetAbort()
	actx, stop := s.observeAbort(ctx)
	defer stop()
	err := s.sendCommand(actx, cmd, payload)
	return s.finishStep(ctx, err)
}

// ReceiveResponse reads and validates one response frame, writing the
// payload into buf and returning its length. The response command code
// must be the last acknowledged command plus one. buf must be large
// enough for the announced payload; the frame-size limit of 253 bytes
// is the safe upper bound.
func (s *Session) ReceiveResponse(ctx context.Context, buf []byte) (int, error) {
	actx, stop := s.observeAbort(ctx)
	defer stop()
	n, err := s.receiveResponse(actx, buf)
	return n, s.finishStep(ctx, err)
}

// Exchange sends a command and returns the validated response payload.
func (s *Session) Exchange(ctx context.Context, cmd byte, payload []byte) ([]byte, error) {
	if err := s.SendCommand(ctx, cmd, payload); err != nil {
		return nil, err
	}
	buf := make([]byte, frame.MaxPayloadLength)
	n, err := s.ReceiveResponse(ctx, buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// Close closes the underlying transport.
func (s *Session) Close() error {
	return s.transport.Close()
}

// sendCommand is the uncancellable core of SendCommand; ctx carries any
// abort or caller cancellation.
func (s *Session) sendCommand(ctx context.Context, cmd byte, payload []byte) error {
	data, err := frame.BuildCommand(cmd, payload)
	if err != nil {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}

	// Stale bytes from an earlier exchange would shift the ACK window.
	if err := s.transport.FlushInput(false); err != nil {
		return fmt.Errorf("flushing input before send: %w", err)
	}

	Debugf("session: TX cmd %#02x %s", cmd, formatHexBytes(data))
	if err := s.transport.Send(data, s.ackTimeout); err != nil {
		return fmt.Errorf("sending command %#02x: %w", cmd, err)
	}

	return s.awaitAck(ctx, cmd)
}

// awaitAck reads the 6-byte ACK window and classifies its contents.
func (s *Session) awaitAck(ctx context.Context, cmd byte) error {
	var window [frame.AckSize]byte
	if _, err := s.transport.Receive(ctx, window[:], frame.AckSize, s.ackTimeout); err != nil {
		return fmt.Errorf("awaiting ACK for command %#02x: %w", cmd, err)
	}

	switch {
	case bytes.Equal(window[:], frame.AckFrame):
		s.lastCommand = cmd
		return nil
	case bytes.Equal(window[:], frame.ReaderErrorFrame[:frame.AckSize]):
		// The reader's ASCII status runs past the ACK window. Drain the
		// trailing bytes so the stream stays aligned.
		s.discard(ctx, frame.ReaderErrorTrailer)
		Debugf("session: reader error frame for cmd %#02x", cmd)
		return fmt.Errorf("command %#02x: %w", cmd, ErrProtocol)
	default:
		Debugf("session: ACK mismatch: %s", formatHexBytes(window[:]))
		return NewNoACKError("ack", s.transport.Port())
	}
}

// receiveResponse runs the stepwise frame read. Validation order matches
// the wire format: envelope first, then addressing, then payload, then
// checksums. lastCommand only advances after the whole frame validates.
func (s *Session) receiveResponse(ctx context.Context, buf []byte) (int, error) {
	var header [frame.HeaderSize]byte
	if _, err := s.transport.Receive(ctx, header[:], frame.HeaderSize, s.respTimeout); err != nil {
		return 0, fmt.Errorf("reading frame header: %w", err)
	}

	if header[0] != frame.Preamble || header[1] != frame.StartCode1 || header[2] != frame.StartCode2 {
		return 0, fmt.Errorf("%w: bad start sequence %s", ErrFraming, formatHexBytes(header[:3]))
	}

	length, lcs := header[3], header[4]

	// The chip reports command-level failures with a fixed short frame.
	if length == frame.AppErrorLen && lcs == frame.AppErrorLCS {
		s.discard(ctx, frame.AppErrorTrailer)
		return 0, ErrApplication
	}

	if length == frame.ExtendedLen && lcs == frame.ExtendedLCS {
		return 0, ErrUnsupportedFrame
	}

	if length+lcs != 0 {
		return 0, fmt.Errorf("%w: length checksum (LEN=%#02x LCS=%#02x)", ErrFraming, length, lcs)
	}
	if length < 2 {
		return 0, fmt.Errorf("%w: length %d below TFI+command minimum", ErrFraming, length)
	}

	payloadLen := int(length) - 2
	// Reject before any further I/O so no payload bytes are consumed
	// into a buffer that cannot hold them.
	if payloadLen > len(buf) {
		return 0, fmt.Errorf("%w: payload %d bytes, buffer %d", ErrBufferTooSmall, payloadLen, len(buf))
	}

	var addr [2]byte
	if _, err := s.transport.Receive(ctx, addr[:], len(addr), s.respTimeout); err != nil {
		return 0, fmt.Errorf("reading TFI and command: %w", err)
	}
	tfi, respCmd := addr[0], addr[1]
	if tfi != frame.ChipToHost {
		return 0, fmt.Errorf("%w: TFI %#02x", ErrUnexpectedResponse, tfi)
	}
	if want := s.lastCommand + 1; respCmd != want {
		return 0, fmt.Errorf("%w: command %#02x, want %#02x", ErrUnexpectedResponse, respCmd, want)
	}

	if payloadLen > 0 {
		if _, err := s.transport.Receive(ctx, buf[:payloadLen], payloadLen, s.respTimeout); err != nil {
			return 0, fmt.Errorf("reading %d payload bytes: %w", payloadLen, err)
		}
	}

	var tail [frame.TailSize]byte
	if _, err := s.transport.Receive(ctx, tail[:], len(tail), s.respTimeout); err != nil {
		return 0, fmt.Errorf("reading frame tail: %w", err)
	}
	if want := frame.DataChecksum(tfi, respCmd, buf[:payloadLen]); tail[0] != want {
		return 0, fmt.Errorf("%w: DCS %#02x, want %#02x", ErrChecksumMismatch, tail[0], want)
	}
	if tail[1] != frame.Postamble {
		return 0, fmt.Errorf("%w: postamble %#02x", ErrFraming, tail[1])
	}

	Debugf("session: RX cmd %#02x payload %s", respCmd, formatHexBytes(buf[:payloadLen]))
	s.lastCommand++
	return payloadLen, nil
}

// discard reads and drops exactly n bytes. Failures are ignored; the
// caller is already on an error path and the primary error wins.
func (s *Session) discard(ctx context.Context, n int) {
	buf := make([]byte, n)
	_, _ = s.transport.Receive(ctx, buf, n, s.respTimeout)
}
