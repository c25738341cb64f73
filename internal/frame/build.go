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

import "errors"

// ErrOversizedPayload is returned when a payload cannot be encoded in a
// single normal frame (LEN is one byte and also counts TFI and command).
var ErrOversizedPayload = errors.New("frame: payload exceeds single-frame limit")

// BuildCommand assembles a complete host-to-chip frame around the given
// command code and payload.
func BuildCommand(cmd byte, payload []byte) ([]byte, error) {
	return build(HostToChip, cmd, payload)
}

// BuildResponse assembles a chip-to-host frame. The chip answers command
// N with response code N+1; callers are expected to pass the response
// code, not the command code. Used by the wire simulator and tests.
func BuildResponse(cmd byte, payload []byte) ([]byte, error) {
	return build(ChipToHost, cmd, payload)
}

func build(tfi, cmd byte, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadLength {
		return nil, ErrOversizedPayload
	}

	length := byte(len(payload) + 2) // TFI + command + payload

	frm := make([]byte, 0, HeaderSize+int(length)+TailSize)
	frm = append(frm, Preamble, StartCode1, StartCode2, length, LengthChecksum(length), tfi, cmd)
	frm = append(frm, payload...)
	frm = append(frm, DataChecksum(tfi, cmd, payload), Postamble)
	return frm, nil
}
