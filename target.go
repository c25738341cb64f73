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
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Modulation selects the RF technology used for target detection. The
// values match the chip's baud rate / modulation selector so they can
// be passed straight into a detection command.
type Modulation byte

const (
	// ModulationISO14443A is ISO/IEC 14443 Type A at 106 kbps.
	ModulationISO14443A Modulation = brTypeA106
	// ModulationISO14443B is ISO/IEC 14443 Type B at 106 kbps.
	ModulationISO14443B Modulation = brTypeB106
)

func (m Modulation) String() string {
	switch m {
	case ModulationISO14443A:
		return "ISO14443A"
	case ModulationISO14443B:
		return "ISO14443B"
	default:
		return fmt.Sprintf("modulation(%#02x)", byte(m))
	}
}

// Target is a decoded descriptor of a contactless target found in the
// field. The concrete type depends on the modulation the target
// answered on. Descriptors are snapshots; the decoder copies all input
// bytes, so mutating the original buffers does not affect a Target.
type Target interface {
	// Modulation reports the RF technology the target answered on.
	Modulation() Modulation
	// ID returns a copy of the stable identifier: the UID for Type A,
	// the PUPI for Type B.
	ID() []byte
	// String renders a short human-readable summary.
	String() string

	target()
}

// UIDSize is the UID length class a Type A target announces in ATQA
// before the UID itself has been read.
type UIDSize byte

const (
	// UIDSizeSingle announces a 4-byte UID.
	UIDSizeSingle UIDSize = iota
	// UIDSizeDouble announces a 7-byte UID.
	UIDSizeDouble
	// UIDSizeTriple announces a 10-byte UID.
	UIDSizeTriple
	// UIDSizeUnknown is the reserved size class; not an error.
	UIDSizeUnknown
)

// Bytes returns the UID length the class announces, or 0 for the
// reserved class.
func (u UIDSize) Bytes() int {
	switch u {
	case UIDSizeSingle:
		return 4
	case UIDSizeDouble:
		return 7
	case UIDSizeTriple:
		return 10
	default:
		return 0
	}
}

func (u UIDSize) String() string {
	switch u {
	case UIDSizeSingle:
		return "single"
	case UIDSizeDouble:
		return "double"
	case UIDSizeTriple:
		return "triple"
	default:
		return "RFU"
	}
}

// BitRates is the set of divisor-selectable bit rates a target supports
// in one direction. 106 kbps is always available and not listed.
type BitRates struct {
	Kbps212 bool
	Kbps424 bool
	Kbps847 bool
}

// ISO14443ATarget describes a Type A target from its activation data.
// The raw ATQA/SAK/UID/ATS bytes are kept alongside the decoded fields.
type ISO14443ATarget struct {
	// UID is 4, 7 or 10 bytes, or empty when activation did not
	// complete far enough to read one.
	UID []byte
	// ATS holds the Answer To Select starting at the format byte T0;
	// empty when the target returned none.
	ATS []byte

	// ATSInfo is the decoded ATS, nil when ATS is empty.
	ATSInfo *ATSInfo

	ATQA [2]byte
	SAK  byte

	// UIDSize is the length class announced in ATQA, which may
	// disagree with the UID actually read.
	UIDSize UIDSize
	// BitFrameAnticollision reports whether ATQA announces a valid
	// bit-frame anticollision pattern (exactly one of the five low
	// bits set).
	BitFrameAnticollision bool
	// UIDIncomplete is the SAK cascade bit: the UID needs another
	// cascade level.
	UIDIncomplete bool
	// ISO14443Layer4 is the SAK bit for ISO/IEC 14443-4 compliance.
	ISO14443Layer4 bool
	// ISO18092 is the SAK bit for ISO/IEC 18092 compliance.
	ISO18092 bool
	// RandomUID marks a per-activation random UID (first byte 0x08).
	RandomUID bool
}

func (*ISO14443ATarget) target() {}

// Modulation implements Target.
func (*ISO14443ATarget) Modulation() Modulation { return ModulationISO14443A }

// ID implements Target.
func (t *ISO14443ATarget) ID() []byte {
	return append([]byte(nil), t.UID...)
}

func (t *ISO14443ATarget) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "ISO14443A UID=%s ATQA=%02X%02X SAK=%02X",
		strings.ToUpper(hex.EncodeToString(t.UID)), t.ATQA[0], t.ATQA[1], t.SAK)
	if family := t.CardFamily(); family != CardFamilyUnknown {
		fmt.Fprintf(&b, " (%s)", family)
	}
	return b.String()
}

// ISO14443BTarget describes a Type B target from its ATQB content.
type ISO14443BTarget struct {
	PUPI            [4]byte
	ApplicationData [4]byte
	ProtocolInfo    [3]byte

	// BitRateSymmetric means both directions must use the same divisor.
	BitRateSymmetric bool
	PICCToPCD        BitRates
	PCDToPICC        BitRates

	// MaxFrameSize is the largest frame the target accepts, decoded
	// from the FSCI nibble.
	MaxFrameSize int
	// ISO14443Layer4 reports ISO/IEC 14443-4 protocol support.
	ISO14443Layer4 bool

	// FWT is the frame waiting time the target asks for.
	FWT time.Duration

	SupportsNAD bool
	SupportsCID bool
}

func (*ISO14443BTarget) target() {}

// Modulation implements Target.
func (*ISO14443BTarget) Modulation() Modulation { return ModulationISO14443B }

// ID implements Target.
func (t *ISO14443BTarget) ID() []byte {
	return append([]byte(nil), t.PUPI[:]...)
}

func (t *ISO14443BTarget) String() string {
	return fmt.Sprintf("ISO14443B PUPI=%s MaxFrame=%d",
		strings.ToUpper(hex.EncodeToString(t.PUPI[:])), t.MaxFrameSize)
}

// ATQA bit layout (second byte)
const (
	atqaUIDSizeMask       = 0xC0
	atqaUIDSizeShift      = 6
	atqaAnticollisionMask = 0x1F
)

// SAK flag bits
const (
	sakUIDNotComplete = 0x04
	sakISO14443Layer4 = 0x20
	sakISO18092       = 0x40
)

// uidRandomMarker is the first UID byte of per-activation random UIDs.
const uidRandomMarker = 0x08

// fsciFrameSizes maps the FSCI nibble to a frame size in bytes
// (ISO/IEC 14443-4).
var fsciFrameSizes = []int{16, 24, 32, 40, 48, 64, 96, 128, 256}

// fsciFrameSize resolves an FSCI value, falling back to the minimum
// size for reserved values.
func fsciFrameSize(fsci byte) int {
	if int(fsci) < len(fsciFrameSizes) {
		return fsciFrameSizes[fsci]
	}
	return fsciFrameSizes[0]
}

// frameWaitingTime converts an FWI (or SFGI) nibble to a duration:
// 4096 * 2^fwi carrier cycles at 13.56 MHz.
func frameWaitingTime(fwi byte) time.Duration {
	cycles := 4096.0 * float64(uint32(1)<<fwi)
	return time.Duration(cycles / 13.56e6 * float64(time.Second))
}

// DecodeISO14443A decodes Type A activation data into a target
// descriptor. uid must be empty or 4, 7 or 10 bytes; ats, when present,
// starts at the format byte T0 (the length byte TL already stripped).
// Reserved bit patterns decode to their fallback meanings; only length
// inconsistencies fail.
func DecodeISO14443A(atqa [2]byte, sak byte, uid, ats []byte) (*ISO14443ATarget, error) {
	switch len(uid) {
	case 0, 4, 7, 10:
	default:
		return nil, fmt.Errorf("%w: UID length %d", ErrMalformedDescriptor, len(uid))
	}

	t := &ISO14443ATarget{
		UID:            append([]byte(nil), uid...),
		ATS:            append([]byte(nil), ats...),
		ATQA:           atqa,
		SAK:            sak,
		UIDSize:        UIDSize((atqa[1] & atqaUIDSizeMask) >> atqaUIDSizeShift),
		UIDIncomplete:  sak&sakUIDNotComplete != 0,
		ISO14443Layer4: sak&sakISO14443Layer4 != 0,
		ISO18092:       sak&sakISO18092 != 0,
		RandomUID:      len(uid) > 0 && uid[0] == uidRandomMarker,
	}

	// Valid bit-frame anticollision patterns have exactly one of the
	// five low bits set.
	anticol := atqa[1] & atqaAnticollisionMask
	t.BitFrameAnticollision = anticol != 0 && anticol&(anticol-1) == 0

	if len(t.ATS) > 0 {
		info, err := decodeATS(t.ATS)
		if err != nil {
			return nil, err
		}
		t.ATSInfo = info
	}
	return t, nil
}

// Protocol info bit layout (Type B)
const (
	piSymmetricBitRate = 0x80
	piPICCToPCD212     = 0x10
	piPICCToPCD424     = 0x20
	piPICCToPCD847     = 0x40
	piPCDToPICC212     = 0x01
	piPCDToPICC424     = 0x02
	piPCDToPICC847     = 0x04
	piISO14443Layer4   = 0x01
	piNADSupported     = 0x01
	piCIDSupported     = 0x02
)

// DecodeISO14443B decodes the ATQB content fields into a target
// descriptor. pupi, applicationData and protocolInfo must be exactly
// 4, 4 and 3 bytes.
func DecodeISO14443B(pupi, applicationData, protocolInfo []byte) (*ISO14443BTarget, error) {
	if len(pupi) != 4 || len(applicationData) != 4 || len(protocolInfo) != 3 {
		return nil, fmt.Errorf("%w: PUPI/AppData/ProtocolInfo lengths %d/%d/%d",
			ErrMalformedDescriptor, len(pupi), len(applicationData), len(protocolInfo))
	}

	t := &ISO14443BTarget{}
	copy(t.PUPI[:], pupi)
	copy(t.ApplicationData[:], applicationData)
	copy(t.ProtocolInfo[:], protocolInfo)

	rates := protocolInfo[0]
	t.BitRateSymmetric = rates&piSymmetricBitRate != 0
	t.PICCToPCD = BitRates{
		Kbps212: rates&piPICCToPCD212 != 0,
		Kbps424: rates&piPICCToPCD424 != 0,
		Kbps847: rates&piPICCToPCD847 != 0,
	}
	t.PCDToPICC = BitRates{
		Kbps212: rates&piPCDToPICC212 != 0,
		Kbps424: rates&piPCDToPICC424 != 0,
		Kbps847: rates&piPCDToPICC847 != 0,
	}

	t.MaxFrameSize = fsciFrameSize(protocolInfo[1] >> 4)
	t.ISO14443Layer4 = protocolInfo[1]&piISO14443Layer4 != 0

	t.FWT = frameWaitingTime(protocolInfo[2] >> 4)
	t.SupportsNAD = protocolInfo[2]&piNADSupported != 0
	t.SupportsCID = protocolInfo[2]&piCIDSupported != 0

	return t, nil
}
