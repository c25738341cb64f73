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

package testing

import (
	"testing"

	"github.com/ZaparooProject/go-tama/internal/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exchange writes one command frame and returns everything the
// simulator queued in response.
func exchange(t *testing.T, v *VirtualReader, cmd byte, payload []byte) []byte {
	t.Helper()

	frm, err := frame.BuildCommand(cmd, payload)
	require.NoError(t, err)
	_, err = v.Write(frm)
	require.NoError(t, err)

	out := make([]byte, 512)
	n, err := v.Read(out)
	require.NoError(t, err)
	return out[:n]
}

// stripAck asserts the output starts with an ACK and returns the rest.
func stripAck(t *testing.T, out []byte) []byte {
	t.Helper()
	require.GreaterOrEqual(t, len(out), frame.AckSize, "no ACK in output")
	assert.Equal(t, frame.AckFrame, out[:frame.AckSize])
	return out[frame.AckSize:]
}

// framePayload validates a response frame shape and returns (code, payload).
func framePayload(t *testing.T, frm []byte) (byte, []byte) {
	t.Helper()
	require.GreaterOrEqual(t, len(frm), 8, "response frame too short")
	require.Equal(t, []byte{0x00, 0x00, 0xFF}, frm[:3])
	length := int(frm[3])
	require.Equal(t, byte(0), frm[3]+frm[4], "LCS")
	require.Equal(t, byte(frame.ChipToHost), frm[5])
	require.Len(t, frm, 5+length+2)
	payload := frm[7 : 5+length]
	require.Equal(t, frame.DataChecksum(frm[5], frm[6], payload), frm[5+length], "DCS")
	require.Equal(t, byte(frame.Postamble), frm[5+length+1])
	return frm[6], payload
}

func TestVirtualReaderEchoesDiagnose(t *testing.T) {
	t.Parallel()
	v := NewVirtualReader()
	sent := []byte{0x00, 'p', 'i', 'n', 'g'}

	rest := stripAck(t, exchange(t, v, cmdDiagnose, sent))
	code, payload := framePayload(t, rest)

	assert.Equal(t, byte(cmdDiagnose+1), code)
	assert.Equal(t, sent, payload)
}

func TestVirtualReaderFirmwareVersion(t *testing.T) {
	t.Parallel()
	v := NewVirtualReader()
	v.SetFirmwareVersion(0x32, 0x01, 0x04, 0x07)

	rest := stripAck(t, exchange(t, v, cmdGetFirmwareVersion, nil))
	code, payload := framePayload(t, rest)

	assert.Equal(t, byte(cmdGetFirmwareVersion+1), code)
	assert.Equal(t, []byte{0x32, 0x01, 0x04, 0x07}, payload)
}

func TestVirtualReaderSAMConfiguration(t *testing.T) {
	t.Parallel()
	v := NewVirtualReader()

	rest := stripAck(t, exchange(t, v, cmdSAMConfiguration, []byte{0x01, 0x00, 0x00}))
	code, payload := framePayload(t, rest)

	assert.Equal(t, byte(cmdSAMConfiguration+1), code)
	assert.Empty(t, payload)
	assert.True(t, v.SAMConfigured())
}

func TestVirtualReaderDetectsTypeATarget(t *testing.T) {
	t.Parallel()
	v := NewVirtualReader()
	v.SetTarget(NewTypeATarget([2]byte{0x00, 0x04}, 0x08, []byte{0xDE, 0xAD, 0xBE, 0xEF}, nil))

	rest := stripAck(t, exchange(t, v, cmdInListPassiveTarget, []byte{0x01, brTypeA106}))
	code, payload := framePayload(t, rest)

	assert.Equal(t, byte(cmdInListPassiveTarget+1), code)
	assert.Equal(t, []byte{
		0x01,       // one target
		0x01,       // slot
		0x00, 0x04, // SENS_RES
		0x08,                   // SEL_RES
		0x04,                   // UID length
		0xDE, 0xAD, 0xBE, 0xEF, // UID
	}, payload)
}

func TestVirtualReaderSelectByUIDMatches(t *testing.T) {
	t.Parallel()
	v := NewVirtualReader()
	v.AddTarget(NewTypeATarget([2]byte{0x00, 0x04}, 0x08, []byte{0x01, 0x02, 0x03, 0x04}, nil))
	v.AddTarget(NewTypeATarget([2]byte{0x00, 0x04}, 0x08, []byte{0x0A, 0x0B, 0x0C, 0x0D}, nil))

	// A 4-byte UID passes through the cascade encoding unchanged.
	rest := stripAck(t, exchange(t, v, cmdInListPassiveTarget,
		[]byte{0x01, brTypeA106, 0x0A, 0x0B, 0x0C, 0x0D}))
	_, payload := framePayload(t, rest)

	require.GreaterOrEqual(t, len(payload), 1)
	assert.Equal(t, byte(0x01), payload[0], "exactly one match")
	assert.Equal(t, []byte{0x0A, 0x0B, 0x0C, 0x0D}, payload[len(payload)-4:])
}

func TestVirtualReaderDetectsTypeBTarget(t *testing.T) {
	t.Parallel()
	v := NewVirtualReader()
	v.SetTarget(NewTypeBTarget(
		[4]byte{0x11, 0x22, 0x33, 0x44},
		[4]byte{0x55, 0x66, 0x77, 0x88},
		[3]byte{0x00, 0x81, 0x71},
	))

	rest := stripAck(t, exchange(t, v, cmdInListPassiveTarget, []byte{0x01, brTypeB106, 0x00}))
	_, payload := framePayload(t, rest)

	require.GreaterOrEqual(t, len(payload), 14)
	assert.Equal(t, byte(0x01), payload[0])
	assert.Equal(t, byte(0x50), payload[2], "ATQB start byte")
	assert.Equal(t, []byte{0x11, 0x22, 0x33, 0x44}, payload[3:7], "PUPI")
}

func TestVirtualReaderEmptyField(t *testing.T) {
	t.Parallel()
	v := NewVirtualReader()

	rest := stripAck(t, exchange(t, v, cmdInListPassiveTarget, []byte{0x01, brTypeA106}))
	_, payload := framePayload(t, rest)
	assert.Equal(t, []byte{0x00}, payload)
}

func TestVirtualReaderUnknownCommandAppError(t *testing.T) {
	t.Parallel()
	v := NewVirtualReader()

	rest := stripAck(t, exchange(t, v, 0x7E, nil))
	require.GreaterOrEqual(t, len(rest), 5)
	assert.Equal(t, byte(frame.AppErrorLen), rest[3])
	assert.Equal(t, byte(frame.AppErrorLCS), rest[4])
}

func TestVirtualReaderRejectNextFrame(t *testing.T) {
	t.Parallel()
	v := NewVirtualReader()
	v.RejectNextFrame()

	out := exchange(t, v, cmdDiagnose, []byte{0x00})
	assert.Equal(t, frame.ReaderErrorFrame, out)

	// The fault fires once.
	rest := stripAck(t, exchange(t, v, cmdDiagnose, []byte{0x00, 'x'}))
	code, _ := framePayload(t, rest)
	assert.Equal(t, byte(cmdDiagnose+1), code)
}

func TestVirtualReaderDropNextACK(t *testing.T) {
	t.Parallel()
	v := NewVirtualReader()
	v.DropNextACK()

	out := exchange(t, v, cmdGetFirmwareVersion, nil)
	// Response frame only, no ACK in front.
	code, _ := framePayload(t, out)
	assert.Equal(t, byte(cmdGetFirmwareVersion+1), code)
}

func TestVirtualReaderCorruptions(t *testing.T) {
	t.Parallel()

	t.Run("dcs", func(t *testing.T) {
		t.Parallel()
		v := NewVirtualReader()
		v.CorruptNextDCS()
		frm := stripAck(t, exchange(t, v, cmdGetFirmwareVersion, nil))
		length := int(frm[3])
		payload := frm[7 : 5+length]
		assert.NotEqual(t, frame.DataChecksum(frm[5], frm[6], payload), frm[5+length])
	})

	t.Run("lcs", func(t *testing.T) {
		t.Parallel()
		v := NewVirtualReader()
		v.CorruptNextLCS()
		frm := stripAck(t, exchange(t, v, cmdGetFirmwareVersion, nil))
		assert.NotEqual(t, byte(0), frm[3]+frm[4])
	})

	t.Run("skewed code", func(t *testing.T) {
		t.Parallel()
		v := NewVirtualReader()
		v.SkewNextResponseCode()
		frm := stripAck(t, exchange(t, v, cmdGetFirmwareVersion, nil))
		code, _ := framePayload(t, frm)
		assert.Equal(t, byte(cmdGetFirmwareVersion+2), code)
	})

	t.Run("extended marker", func(t *testing.T) {
		t.Parallel()
		v := NewVirtualReader()
		v.ExtendNextFrame()
		frm := stripAck(t, exchange(t, v, cmdGetFirmwareVersion, nil))
		assert.Equal(t, byte(frame.ExtendedLen), frm[3])
		assert.Equal(t, byte(frame.ExtendedLCS), frm[4])
	})
}

func TestVirtualReaderSilenceNextResponse(t *testing.T) {
	t.Parallel()
	v := NewVirtualReader()
	v.SilenceNextResponse()

	out := exchange(t, v, cmdGetFirmwareVersion, nil)
	assert.Equal(t, frame.AckFrame, out, "ACK only, no response")
}

func TestVirtualReaderFragmentedWrites(t *testing.T) {
	t.Parallel()
	v := NewVirtualReader()

	frm, err := frame.BuildCommand(cmdGetFirmwareVersion, nil)
	require.NoError(t, err)
	for _, b := range frm {
		_, err := v.Write([]byte{b})
		require.NoError(t, err)
	}

	out := make([]byte, 64)
	n, err := v.Read(out)
	require.NoError(t, err)
	rest := stripAck(t, out[:n])
	code, _ := framePayload(t, rest)
	assert.Equal(t, byte(cmdGetFirmwareVersion+1), code)
}

func TestVirtualReaderSkipsLeadingGarbage(t *testing.T) {
	t.Parallel()
	v := NewVirtualReader()

	frm, err := frame.BuildCommand(cmdGetFirmwareVersion, nil)
	require.NoError(t, err)
	_, err = v.Write(append([]byte{0xAA, 0xBB, 0xCC}, frm...))
	require.NoError(t, err)

	out := make([]byte, 64)
	n, err := v.Read(out)
	require.NoError(t, err)
	rest := stripAck(t, out[:n])
	code, _ := framePayload(t, rest)
	assert.Equal(t, byte(cmdGetFirmwareVersion+1), code)
}
