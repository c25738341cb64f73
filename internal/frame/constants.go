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

package frame

// Frame direction identifiers (TFI byte)
const (
	HostToChip = 0xD4 // Commands from host to reader chip
	ChipToHost = 0xD5 // Responses from reader chip to host
)

// Frame markers and control bytes
const (
	Preamble   = 0x00 // Frame preamble byte
	StartCode1 = 0x00 // Start code byte 1
	StartCode2 = 0xFF // Start code byte 2
	Postamble  = 0x00 // Frame postamble byte
)

// Frame geometry
const (
	// MaxPayloadLength is the largest payload a normal frame can carry.
	// LEN is a single byte counting TFI, command code and payload.
	MaxPayloadLength = 253

	HeaderSize = 5 // preamble, two start codes, LEN, LCS
	TailSize   = 2 // DCS, postamble
	AckSize    = 6 // ACK/NACK frames are always six bytes
)

// Markers at the LEN/LCS positions that select a non-normal frame shape.
// An application error frame is a length-1 frame (LEN=0x01, LCS=0xFF)
// carrying the error TFI 0x7F; the extended-frame marker flags the
// longer-form length encoding, which this codec does not support.
const (
	AppErrorLen     = 0x01
	AppErrorLCS     = 0xFF
	ExtendedLen     = 0xFF
	ExtendedLCS     = 0xFF
	ErrorTFI        = 0x7F
	AppErrorTrailer = 3 // error TFI, DCS and postamble remain after the header read
)

// ACK and NACK frames - these are used for flow control
var (
	AckFrame  = []byte{0x00, 0x00, 0xFF, 0x00, 0xFF, 0x00}
	NackFrame = []byte{0x00, 0x00, 0xFF, 0xFF, 0x00, 0x00}
)

// StartSequence is the three-byte marker every frame opens with.
var StartSequence = []byte{Preamble, StartCode1, StartCode2}

// ReaderErrorFrame is the ASCII status sequence the reader's
// microcontroller emits in place of an ACK when it rejects a frame
// (unknown protocol mode). Only the first AckSize bytes fit in the ACK
// read window; ReaderErrorTrailer bytes must be drained afterwards to
// leave the stream aligned.
var ReaderErrorFrame = []byte("FF060000\r\n")

// ReaderErrorTrailer is the number of ReaderErrorFrame bytes left on the
// wire after an ACK-sized read.
const ReaderErrorTrailer = 4
