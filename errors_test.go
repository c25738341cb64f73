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
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "timeout sentinel", err: ErrTransportTimeout, want: true},
		{name: "wrapped timeout", err: fmt.Errorf("op: %w", ErrTransportTimeout), want: true},
		{name: "no ACK", err: ErrNoACK, want: true},
		{name: "framing", err: ErrFraming, want: true},
		{name: "checksum mismatch", err: ErrChecksumMismatch, want: true},
		{name: "transport closed", err: ErrTransportClosed, want: false},
		{name: "no target", err: ErrNoTarget, want: false},
		{name: "aborted", err: ErrAborted, want: false},
		{name: "plain error", err: errors.New("boom"), want: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestIsRetryableTransportError(t *testing.T) {
	t.Parallel()

	assert.True(t, IsRetryable(NewTimeoutError("receive", "/dev/ttyUSB0")))
	assert.True(t, IsRetryable(NewTransportReadError("receive", "/dev/ttyUSB0")))
	assert.True(t, IsRetryable(NewNoACKError("ack", "/dev/ttyUSB0")))
	assert.False(t, IsRetryable(NewTransportError("open", "/dev/ttyUSB0",
		ErrDeviceNotFound, ErrorTypePermanent)))
}

func TestIsRetryableChipError(t *testing.T) {
	t.Parallel()

	assert.True(t, IsRetryable(NewChipError(0x01, "InListPassiveTarget", "")),
		"RF timeouts come and go with card positioning")
	assert.False(t, IsRetryable(NewChipError(0x81, "InListPassiveTarget", "")))
	assert.False(t, IsRetryable(NewChipError(0x14, "InDataExchange", "")))
}

func TestIsTimeout(t *testing.T) {
	t.Parallel()

	assert.False(t, IsTimeout(nil))
	assert.True(t, IsTimeout(ErrTransportTimeout))
	assert.True(t, IsTimeout(NewTimeoutError("receive", "sim")))
	assert.True(t, IsTimeout(fmt.Errorf("op: %w", NewTimeoutError("receive", "sim"))))
	assert.False(t, IsTimeout(NewTransportReadError("receive", "sim")))
	assert.False(t, IsTimeout(errors.New("boom")))
}

func TestIsFatal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "transport closed", err: ErrTransportClosed, want: true},
		{name: "device not found", err: ErrDeviceNotFound, want: true},
		{name: "EOF", err: io.EOF, want: true},
		{name: "closed pipe", err: io.ErrClosedPipe, want: true},
		{name: "permanent transport error",
			err:  NewTransportError("open", "sim", ErrDeviceNotFound, ErrorTypePermanent),
			want: true},
		{name: "timeout", err: NewTimeoutError("receive", "sim"), want: false},
		{name: "framing", err: ErrFraming, want: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsFatal(tt.err))
		})
	}
}

func TestTransportErrorFormatting(t *testing.T) {
	t.Parallel()

	err := NewTimeoutError("receive", "/dev/ttyUSB0")
	msg := err.Error()
	assert.Contains(t, msg, "receive")
	assert.Contains(t, msg, "/dev/ttyUSB0")
	assert.ErrorIs(t, err, ErrTransportTimeout)
}

func TestChipErrorFormatting(t *testing.T) {
	t.Parallel()

	err := NewChipError(0x01, "InListPassiveTarget", "poll")
	msg := err.Error()
	assert.Contains(t, msg, "InListPassiveTarget")
	assert.Contains(t, msg, "0x01")
	assert.Contains(t, msg, "timeout")
	assert.Contains(t, msg, "poll")
	assert.True(t, err.IsTimeout())
	assert.False(t, err.IsCommandNotSupported())

	assert.True(t, NewChipError(0x81, "Diagnose", "").IsCommandNotSupported())
	assert.Contains(t, NewChipError(0xEE, "Diagnose", "").Error(), "unknown error")
}

func TestTraceBufferWrapsErrors(t *testing.T) {
	t.Parallel()

	tb := NewTraceBuffer("uart", "/dev/ttyUSB0", 4)
	tb.RecordTX([]byte{0x00, 0x00, 0xFF}, "command")
	tb.RecordRX([]byte{0x00, 0x00, 0xFF, 0x00, 0xFF, 0x00}, "ack")

	assert.NoError(t, tb.WrapError(nil))

	wrapped := tb.WrapError(ErrTransportTimeout)
	require.Error(t, wrapped)
	assert.ErrorIs(t, wrapped, ErrTransportTimeout)
	require.True(t, HasTrace(wrapped))

	te := GetTrace(wrapped)
	require.NotNil(t, te)
	assert.Len(t, te.Trace, 2)
	assert.Equal(t, TraceTX, te.Trace[0].Direction)
	assert.Equal(t, TraceRX, te.Trace[1].Direction)

	formatted := te.FormatTrace()
	assert.Contains(t, formatted, "uart:/dev/ttyUSB0")
	assert.Contains(t, formatted, "00 00 FF")
}

func TestTraceBufferEvictsOldest(t *testing.T) {
	t.Parallel()

	tb := NewTraceBuffer("uart", "sim", 2)
	tb.RecordTX([]byte{0x01}, "first")
	tb.RecordTX([]byte{0x02}, "second")
	tb.RecordTX([]byte{0x03}, "third")

	te := GetTrace(tb.WrapError(errors.New("boom")))
	require.NotNil(t, te)
	require.Len(t, te.Trace, 2)
	assert.Equal(t, []byte{0x02}, te.Trace[0].Data)
	assert.Equal(t, []byte{0x03}, te.Trace[1].Data)
}

func TestTraceBufferClear(t *testing.T) {
	t.Parallel()

	tb := NewTraceBuffer("uart", "sim", 4)
	tb.RecordTimeout("ack window")
	tb.Clear()

	te := GetTrace(tb.WrapError(errors.New("boom")))
	require.NotNil(t, te)
	assert.Empty(t, te.Trace)
	assert.Contains(t, te.FormatTrace(), "no trace data")
}

func TestHasTraceOnPlainError(t *testing.T) {
	t.Parallel()

	assert.False(t, HasTrace(errors.New("boom")))
	assert.Nil(t, GetTrace(errors.New("boom")))
}

func TestFormatHexBytes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "(empty)", formatHexBytes(nil))
	assert.Equal(t, "00 FF A5", formatHexBytes([]byte{0x00, 0xFF, 0xA5}))

	long := formatHexBytes(make([]byte, 48))
	assert.Contains(t, long, "(48 bytes total)")
	assert.Equal(t, 32, strings.Count(long, "00"))
}
