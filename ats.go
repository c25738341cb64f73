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
	"fmt"
	"time"
)

// ATS format byte T0
const (
	atsTA1Present = 0x10
	atsTB1Present = 0x20
	atsTC1Present = 0x40
	atsFSCIMask   = 0x0F
)

// ATS interface byte TA(1): bit rate capability
const (
	atsTA1SameBitRate = 0x80
	atsTA1DS212       = 0x10
	atsTA1DS424       = 0x20
	atsTA1DS847       = 0x40
	atsTA1DR212       = 0x01
	atsTA1DR424       = 0x02
	atsTA1DR847       = 0x04
)

// ATS interface byte TB(1): frame timing
const (
	atsTB1FWIShift = 4
	atsTB1SFGIMask = 0x0F
)

// ATS interface byte TC(1): protocol options
const (
	atsTC1NADSupported = 0x01
	atsTC1CIDSupported = 0x02
)

// HistoricalFormat categorizes the historical bytes (Tk) of an ATS by
// their category indicator byte (ISO/IEC 7816-4).
type HistoricalFormat byte

const (
	// HistoricalNone means the ATS carries no historical bytes.
	HistoricalNone HistoricalFormat = iota
	// HistoricalCompactTLV: Tk holds COMPACT-TLV data objects followed
	// by a mandatory three-byte status indicator (CIB 0x00).
	HistoricalCompactTLV
	// HistoricalDIRDataReference: Tk holds a DIR data reference
	// (CIB 0x10).
	HistoricalDIRDataReference
	// HistoricalCompactTLVStatus: Tk holds COMPACT-TLV data objects
	// where the last object may carry a status indicator (CIB 0x8X).
	HistoricalCompactTLVStatus
	// HistoricalMifareProprietary: NXP's proprietary type
	// identification coding (CIB 0xC1).
	HistoricalMifareProprietary
	// HistoricalProprietary is any other, uninterpreted format.
	HistoricalProprietary
)

func (h HistoricalFormat) String() string {
	switch h {
	case HistoricalNone:
		return "none"
	case HistoricalCompactTLV:
		return "COMPACT-TLV"
	case HistoricalDIRDataReference:
		return "DIR data reference"
	case HistoricalCompactTLVStatus:
		return "COMPACT-TLV with status"
	case HistoricalMifareProprietary:
		return "Mifare proprietary"
	default:
		return "proprietary"
	}
}

// Historical bytes category indicator values
const (
	cibCompactTLV        = 0x00
	cibDIRDataRef        = 0x10
	cibCompactStatusMask = 0xF0
	cibCompactStatus     = 0x80
	cibMifare            = 0xC1
)

// ATSInfo is the decoded Answer To Select of a Type A target
// (ISO/IEC 14443-4, 5.2). Interface bytes the target did not send
// leave their fields at zero values.
type ATSInfo struct {
	// FWT is the frame waiting time from TB(1); zero when absent.
	FWT time.Duration
	// SFGT is the start-up frame guard time from TB(1); zero when
	// absent or not required.
	SFGT time.Duration

	// HistoricalBytes is a copy of Tk; nil when absent.
	HistoricalBytes []byte
	// Mifare holds the decoded type identification coding when the
	// historical bytes use NXP's proprietary format.
	Mifare *MifareATSInfo

	// MaxFrameSize is the largest frame the target accepts (FSCI).
	MaxFrameSize int

	HistoricalFormat HistoricalFormat

	// TA(1) bit rate capability. All false with symmetric false means
	// either TA(1) was absent or the target only does 106 kbps.
	BitRateSymmetric bool
	PICCToPCD        BitRates
	PCDToPICC        BitRates

	// TC(1) protocol options.
	SupportsNAD bool
	SupportsCID bool
}

// MifareATSInfo is NXP's type identification coding from historical
// bytes with category indicator 0xC1.
type MifareATSInfo struct {
	// TypeCodeLength is the announced coding length L.
	TypeCodeLength byte
	// LengthMismatch reports that L disagrees with the bytes actually
	// present. The remaining fields are still decoded best-effort.
	LengthMismatch bool

	// ChipTypeCode packs the chip type (high nibble) and memory size
	// (low nibble).
	ChipTypeCode byte
	HasChipInfo  bool
	// VersionCode packs the chip status (high nibble) and generation
	// (low nibble).
	VersionCode    byte
	HasVersionInfo bool
	// VCS is the virtual card selection specifics byte.
	VCS    byte
	HasVCS bool
}

// Mifare chip type codes (ChipTypeCode high nibble)
const (
	mifareChipTypeMask   = 0xF0
	mifareChipVirtual    = 0x00
	mifareChipDESFire    = 0x10
	mifareChipPlus       = 0x20
	mifareMemSizeMask    = 0x0F
	mifareStatusMask     = 0xF0
	mifareStatusEng      = 0x00
	mifareStatusReleased = 0x20
	mifareGenMask        = 0x0F
)

// ChipType renders the chip type nibble.
func (m *MifareATSInfo) ChipType() string {
	switch m.ChipTypeCode & mifareChipTypeMask {
	case mifareChipVirtual:
		return "(Multiple) Virtual Cards"
	case mifareChipDESFire:
		return "Mifare DESFire"
	case mifareChipPlus:
		return "Mifare Plus"
	default:
		return "RFU"
	}
}

// MemorySize renders the memory size nibble.
func (m *MifareATSInfo) MemorySize() string {
	switch m.ChipTypeCode & mifareMemSizeMask {
	case 0x00:
		return "<1 kbyte"
	case 0x01:
		return "1 kbyte"
	case 0x02:
		return "2 kbyte"
	case 0x03:
		return "4 kbyte"
	case 0x04:
		return "8 kbyte"
	case 0x0F:
		return "Unspecified"
	default:
		return "RFU"
	}
}

// ChipStatus renders the chip status nibble.
func (m *MifareATSInfo) ChipStatus() string {
	switch m.VersionCode & mifareStatusMask {
	case mifareStatusEng:
		return "Engineering sample"
	case mifareStatusReleased:
		return "Released"
	default:
		return "RFU"
	}
}

// Generation renders the chip generation nibble.
func (m *MifareATSInfo) Generation() string {
	switch m.VersionCode & mifareGenMask {
	case 0x00:
		return "Generation 1"
	case 0x01:
		return "Generation 2"
	case 0x02:
		return "Generation 3"
	case 0x0F:
		return "Unspecified"
	default:
		return "RFU"
	}
}

// VirtualCardSupport renders the VCS command support bits, or "" when
// the pattern is not one of the two defined ones.
func (m *MifareATSInfo) VirtualCardSupport() string {
	switch m.VCS & 0x09 {
	case 0x00:
		return "Only VCSL supported"
	case 0x01:
		return "VCS, VCSL and SVC supported"
	default:
		return ""
	}
}

// SecurityLevelInfo renders the security level bits of the VCS byte.
func (m *MifareATSInfo) SecurityLevelInfo() string {
	switch {
	case m.VCS&0x0E == 0x00:
		return "SL1, SL2(?), SL3 supported"
	case m.VCS&0x0E == 0x02:
		return "SL3 only card"
	case m.VCS&0x0F == 0x0E:
		return "No VCS command supported"
	case m.VCS&0x0F == 0x0F:
		return "Unspecified"
	default:
		return "RFU"
	}
}

// decodeATS walks the ATS starting at T0. The interface bytes TA(1),
// TB(1) and TC(1) are consumed in that order when T0 declares them;
// whatever remains is the historical bytes. Declared bytes that run
// past the end of the ATS are a length inconsistency.
func decodeATS(ats []byte) (*ATSInfo, error) {
	if len(ats) == 0 {
		return nil, fmt.Errorf("%w: empty ATS", ErrMalformedDescriptor)
	}
	t0 := ats[0]
	info := &ATSInfo{
		MaxFrameSize:     fsciFrameSize(t0 & atsFSCIMask),
		HistoricalFormat: HistoricalNone,
	}

	offset := 1
	take := func(name string) (byte, error) {
		if offset >= len(ats) {
			return 0, fmt.Errorf("%w: T0 declares %s beyond ATS end", ErrMalformedDescriptor, name)
		}
		b := ats[offset]
		offset++
		return b, nil
	}

	if t0&atsTA1Present != 0 {
		ta, err := take("TA(1)")
		if err != nil {
			return nil, err
		}
		info.BitRateSymmetric = ta&atsTA1SameBitRate != 0
		info.PICCToPCD = BitRates{
			Kbps212: ta&atsTA1DS212 != 0,
			Kbps424: ta&atsTA1DS424 != 0,
			Kbps847: ta&atsTA1DS847 != 0,
		}
		info.PCDToPICC = BitRates{
			Kbps212: ta&atsTA1DR212 != 0,
			Kbps424: ta&atsTA1DR424 != 0,
			Kbps847: ta&atsTA1DR847 != 0,
		}
	}

	if t0&atsTB1Present != 0 {
		tb, err := take("TB(1)")
		if err != nil {
			return nil, err
		}
		info.FWT = frameWaitingTime(tb >> atsTB1FWIShift)
		if sfgi := tb & atsTB1SFGIMask; sfgi != 0 {
			info.SFGT = frameWaitingTime(sfgi)
		}
	}

	if t0&atsTC1Present != 0 {
		tc, err := take("TC(1)")
		if err != nil {
			return nil, err
		}
		info.SupportsNAD = tc&atsTC1NADSupported != 0
		info.SupportsCID = tc&atsTC1CIDSupported != 0
	}

	if offset < len(ats) {
		info.HistoricalBytes = append([]byte(nil), ats[offset:]...)
		info.HistoricalFormat, info.Mifare = decodeHistorical(info.HistoricalBytes)
	}
	return info, nil
}

// decodeHistorical categorizes Tk by its category indicator byte and,
// for the NXP proprietary format, decodes the type identification
// coding that follows.
func decodeHistorical(tk []byte) (HistoricalFormat, *MifareATSInfo) {
	cib := tk[0]
	switch {
	case cib == cibCompactTLV:
		return HistoricalCompactTLV, nil
	case cib == cibDIRDataRef:
		return HistoricalDIRDataReference, nil
	case cib&cibCompactStatusMask == cibCompactStatus:
		return HistoricalCompactTLVStatus, nil
	case cib == cibMifare:
		return HistoricalMifareProprietary, decodeMifareTk(tk[1:])
	default:
		return HistoricalProprietary, nil
	}
}

// decodeMifareTk decodes the bytes after the 0xC1 category indicator:
// a length byte, then chip type, chip version and VCS bytes as far as
// they are present.
func decodeMifareTk(rest []byte) *MifareATSInfo {
	m := &MifareATSInfo{}
	if len(rest) == 0 {
		m.LengthMismatch = true
		return m
	}
	m.TypeCodeLength = rest[0]
	m.LengthMismatch = int(rest[0]) != len(rest)-1

	fields := rest[1:]
	if len(fields) > 0 {
		m.HasChipInfo = true
		m.ChipTypeCode = fields[0]
	}
	if len(fields) > 1 {
		m.HasVersionInfo = true
		m.VersionCode = fields[1]
	}
	if len(fields) > 2 {
		m.HasVCS = true
		m.VCS = fields[2]
	}
	return m
}
