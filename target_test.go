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
	"errors"
	"testing"
)

func TestDecodeISO14443AActivationFields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		uid           []byte
		atqa          [2]byte
		sak           byte
		wantUIDSize   UIDSize
		wantAnticol   bool
		wantLayer4    bool
		wantISO18092  bool
		wantCascade   bool
		wantRandomUID bool
	}{
		{
			name:        "Mifare_Classic_1K",
			atqa:        [2]byte{0x00, 0x04},
			sak:         0x08,
			uid:         []byte{0xDE, 0xAD, 0xBE, 0xEF},
			wantUIDSize: UIDSizeSingle,
			wantAnticol: true,
		},
		{
			name:        "NTAG_Double_Size_UID",
			atqa:        [2]byte{0x00, 0x44},
			sak:         0x00,
			uid:         []byte{0x04, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66},
			wantUIDSize: UIDSizeDouble,
			wantAnticol: true,
		},
		{
			name:        "DESFire_Layer4",
			atqa:        [2]byte{0x03, 0x44},
			sak:         0x20,
			uid:         []byte{0x04, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66},
			wantUIDSize: UIDSizeDouble,
			wantAnticol: true,
			wantLayer4:  true,
		},
		{
			name:        "Triple_Size_UID",
			atqa:        [2]byte{0x00, 0x84},
			sak:         0x04,
			uid:         []byte{0x88, 1, 2, 3, 4, 5, 6, 7, 8, 9},
			wantUIDSize: UIDSizeTriple,
			wantAnticol: true,
			wantCascade: true,
		},
		{
			name:        "Reserved_UID_Size_Class",
			atqa:        [2]byte{0x00, 0xC0},
			sak:         0x00,
			uid:         nil,
			wantUIDSize: UIDSizeUnknown,
			wantAnticol: false,
		},
		{
			name:         "ISO18092_Flag",
			atqa:         [2]byte{0x00, 0x04},
			sak:          0x40,
			uid:          []byte{1, 2, 3, 4},
			wantUIDSize:  UIDSizeSingle,
			wantAnticol:  true,
			wantISO18092: true,
		},
		{
			name:          "Random_UID_Marker",
			atqa:          [2]byte{0x00, 0x08},
			sak:           0x20,
			uid:           []byte{0x08, 0xA1, 0xB2, 0xC3},
			wantUIDSize:   UIDSizeSingle,
			wantAnticol:   true,
			wantLayer4:    true,
			wantRandomUID: true,
		},
		{
			name:        "Two_Anticollision_Bits_Invalid",
			atqa:        [2]byte{0x00, 0x03},
			sak:         0x00,
			uid:         []byte{1, 2, 3, 4},
			wantUIDSize: UIDSizeSingle,
			wantAnticol: false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			target, err := DecodeISO14443A(tt.atqa, tt.sak, tt.uid, nil)
			if err != nil {
				t.Fatalf("DecodeISO14443A() error = %v", err)
			}
			if target.UIDSize != tt.wantUIDSize {
				t.Errorf("UIDSize = %v, want %v", target.UIDSize, tt.wantUIDSize)
			}
			if target.BitFrameAnticollision != tt.wantAnticol {
				t.Errorf("BitFrameAnticollision = %v, want %v", target.BitFrameAnticollision, tt.wantAnticol)
			}
			if target.ISO14443Layer4 != tt.wantLayer4 {
				t.Errorf("ISO14443Layer4 = %v, want %v", target.ISO14443Layer4, tt.wantLayer4)
			}
			if target.ISO18092 != tt.wantISO18092 {
				t.Errorf("ISO18092 = %v, want %v", target.ISO18092, tt.wantISO18092)
			}
			if target.UIDIncomplete != tt.wantCascade {
				t.Errorf("UIDIncomplete = %v, want %v", target.UIDIncomplete, tt.wantCascade)
			}
			if target.RandomUID != tt.wantRandomUID {
				t.Errorf("RandomUID = %v, want %v", target.RandomUID, tt.wantRandomUID)
			}
			if !bytes.Equal(target.UID, tt.uid) {
				t.Errorf("UID = % X, want % X", target.UID, tt.uid)
			}
			if target.ATSInfo != nil {
				t.Error("ATSInfo should be nil without an ATS")
			}
		})
	}
}

func TestDecodeISO14443AInvalidUIDLength(t *testing.T) {
	t.Parallel()

	for _, n := range []int{1, 2, 3, 5, 6, 8, 9, 11} {
		n := n
		_, err := DecodeISO14443A([2]byte{0x00, 0x04}, 0x08, make([]byte, n), nil)
		if !errors.Is(err, ErrMalformedDescriptor) {
			t.Errorf("UID length %d: error = %v, want ErrMalformedDescriptor", n, err)
		}
	}
}

func TestDecodeISO14443ACopiesInput(t *testing.T) {
	t.Parallel()

	uid := []byte{0x01, 0x02, 0x03, 0x04}
	ats := []byte{0x00}
	target, err := DecodeISO14443A([2]byte{0x00, 0x04}, 0x08, uid, ats)
	if err != nil {
		t.Fatalf("DecodeISO14443A() error = %v", err)
	}

	uid[0] = 0xFF
	ats[0] = 0xFF
	if target.UID[0] != 0x01 {
		t.Error("decoder must copy the UID, not alias it")
	}
	if target.ATS[0] != 0x00 {
		t.Error("decoder must copy the ATS, not alias it")
	}

	id := target.ID()
	id[0] = 0xEE
	if target.UID[0] != 0x01 {
		t.Error("ID() must return a copy")
	}
}

func TestDecodeISO14443B(t *testing.T) {
	t.Parallel()

	pupi := []byte{0x11, 0x22, 0x33, 0x44}
	appData := []byte{0xAA, 0xBB, 0xCC, 0xDD}
	protoInfo := []byte{0x00, 0x81, 0x71}

	target, err := DecodeISO14443B(pupi, appData, protoInfo)
	if err != nil {
		t.Fatalf("DecodeISO14443B() error = %v", err)
	}

	if !bytes.Equal(target.ID(), pupi) {
		t.Errorf("ID() = % X, want % X", target.ID(), pupi)
	}
	if target.BitRateSymmetric {
		t.Error("BitRateSymmetric should be false for rate byte 0x00")
	}
	if target.PICCToPCD != (BitRates{}) || target.PCDToPICC != (BitRates{}) {
		t.Error("rate byte 0x00 announces 106 kbps only")
	}
	if target.MaxFrameSize != 256 {
		t.Errorf("MaxFrameSize = %d, want 256", target.MaxFrameSize)
	}
	if !target.ISO14443Layer4 {
		t.Error("ISO14443Layer4 should be set by protocol info 0x81")
	}
	if !target.SupportsNAD || target.SupportsCID {
		t.Error("protocol info 0x71 announces NAD without CID")
	}
	// FWI 7: 4096 * 128 cycles at 13.56 MHz, a bit under 39 ms
	if ms := target.FWT.Seconds() * 1000; ms < 38.0 || ms > 39.5 {
		t.Errorf("FWT = %v, want about 38.7 ms", target.FWT)
	}
}

func TestDecodeISO14443BAllRates(t *testing.T) {
	t.Parallel()

	target, err := DecodeISO14443B(
		[]byte{1, 2, 3, 4}, []byte{0, 0, 0, 0}, []byte{0xF7, 0x90, 0x02})
	if err != nil {
		t.Fatalf("DecodeISO14443B() error = %v", err)
	}

	all := BitRates{Kbps212: true, Kbps424: true, Kbps847: true}
	if !target.BitRateSymmetric || target.PICCToPCD != all || target.PCDToPICC != all {
		t.Errorf("rate byte 0xF7 should announce every rate symmetrically, got %+v", target)
	}
	// FSCI 9 is reserved and falls back to the minimum frame size.
	if target.MaxFrameSize != 16 {
		t.Errorf("MaxFrameSize = %d, want fallback 16", target.MaxFrameSize)
	}
	if target.SupportsNAD || !target.SupportsCID {
		t.Error("protocol info 0x02 announces CID without NAD")
	}
}

func TestDecodeISO14443BInvalidLengths(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		pupi  []byte
		app   []byte
		proto []byte
	}{
		{"Short_PUPI", make([]byte, 3), make([]byte, 4), make([]byte, 3)},
		{"Long_PUPI", make([]byte, 5), make([]byte, 4), make([]byte, 3)},
		{"Short_AppData", make([]byte, 4), make([]byte, 3), make([]byte, 3)},
		{"Short_ProtoInfo", make([]byte, 4), make([]byte, 4), make([]byte, 2)},
		{"Long_ProtoInfo", make([]byte, 4), make([]byte, 4), make([]byte, 4)},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := DecodeISO14443B(tt.pupi, tt.app, tt.proto)
			if !errors.Is(err, ErrMalformedDescriptor) {
				t.Errorf("error = %v, want ErrMalformedDescriptor", err)
			}
		})
	}
}

func TestTargetInterface(t *testing.T) {
	t.Parallel()

	a, err := DecodeISO14443A([2]byte{0x00, 0x04}, 0x08, []byte{1, 2, 3, 4}, nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := DecodeISO14443B([]byte{1, 2, 3, 4}, make([]byte, 4), make([]byte, 3))
	if err != nil {
		t.Fatal(err)
	}

	for _, target := range []Target{a, b} {
		target := target
		if target.Modulation().String() == "" {
			t.Error("Modulation() must render")
		}
		if len(target.ID()) != 4 {
			t.Errorf("ID() length = %d, want 4", len(target.ID()))
		}
		if target.String() == "" {
			t.Error("String() must render")
		}
	}
}
