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

package iso14443

import (
	"bytes"
	"testing"
)

func TestCRCA(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		data   []byte
		wantLo byte
		wantHi byte
	}{
		{
			// Mifare Classic READ block 0, on the wire as 30 00 02 A8
			name:   "read block command",
			data:   []byte{0x30, 0x00},
			wantLo: 0x02,
			wantHi: 0xA8,
		},
		{
			// HLTA, on the wire as 50 00 57 CD
			name:   "halt command",
			data:   []byte{0x50, 0x00},
			wantLo: 0x57,
			wantHi: 0xCD,
		},
		{
			name:   "single zero byte",
			data:   []byte{0x00},
			wantLo: 0xFE,
			wantHi: 0x51,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			lo, hi := CRCA(tt.data)
			if lo != tt.wantLo || hi != tt.wantHi {
				t.Errorf("CRCA(% X) = %02X %02X, want %02X %02X",
					tt.data, lo, hi, tt.wantLo, tt.wantHi)
			}
		})
	}
}

func TestCRCB(t *testing.T) {
	t.Parallel()
	// REQB, on the wire as 05 00 00 71 FF
	lo, hi := CRCB([]byte{0x05, 0x00, 0x00})
	if lo != 0x71 || hi != 0xFF {
		t.Errorf("CRCB(REQB) = %02X %02X, want 71 FF", lo, hi)
	}
}

func TestAppendCRCA(t *testing.T) {
	t.Parallel()
	got := AppendCRCA([]byte{0x30, 0x00})
	want := []byte{0x30, 0x00, 0x02, 0xA8}
	if !bytes.Equal(got, want) {
		t.Errorf("AppendCRCA() = % X, want % X", got, want)
	}
}

func TestAppendCRCB(t *testing.T) {
	t.Parallel()
	got := AppendCRCB([]byte{0x05, 0x00, 0x00})
	want := []byte{0x05, 0x00, 0x00, 0x71, 0xFF}
	if !bytes.Equal(got, want) {
		t.Errorf("AppendCRCB() = % X, want % X", got, want)
	}
}

// Appending a CRC and recomputing over the original bytes must reproduce
// the appended pair, for both variants and a spread of lengths.
func TestCRCAppendRoundTrip(t *testing.T) {
	t.Parallel()
	payloads := [][]byte{
		{},
		{0x26},
		{0x93, 0x70, 0x9C, 0x59, 0x84, 0x12, 0x43},
		bytes.Repeat([]byte{0x5A}, 64),
		bytes.Repeat([]byte{0xFF}, 253),
	}

	for _, data := range payloads {
		data := data
		out := AppendCRCA(append([]byte{}, data...))
		lo, hi := CRCA(data)
		if out[len(out)-2] != lo || out[len(out)-1] != hi {
			t.Errorf("CRCA round-trip failed for % X", data)
		}

		out = AppendCRCB(append([]byte{}, data...))
		lo, hi = CRCB(data)
		if out[len(out)-2] != lo || out[len(out)-1] != hi {
			t.Errorf("CRCB round-trip failed for % X", data)
		}
	}
}

func FuzzCRCRoundTrip(f *testing.F) {
	f.Add([]byte{0x30, 0x00})
	f.Add([]byte{0x05, 0x00, 0x00})
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, data []byte) {
		extended := AppendCRCA(append([]byte{}, data...))
		if len(extended) != len(data)+2 {
			t.Fatalf("AppendCRCA length = %d, want %d", len(extended), len(data)+2)
		}
		lo, hi := CRCA(extended[:len(data)])
		if extended[len(data)] != lo || extended[len(data)+1] != hi {
			t.Fatal("CRCA append/recompute mismatch")
		}
	})
}
