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

// CardFamily is a coarse classification of a Type A target by its
// command set, derived from ATQA and SAK.
type CardFamily int

const (
	// CardFamilyUnknown means no known pattern matched.
	CardFamilyUnknown CardFamily = iota
	// CardFamilyMifareClassic covers Classic 1K/4K and compatibles.
	CardFamilyMifareClassic
	// CardFamilyMifareMini is the Classic Mini 0.3K.
	CardFamilyMifareMini
	// CardFamilyNTAG covers NTAG and Mifare Ultralight, which share
	// the same activation pattern and base command set.
	CardFamilyNTAG
	// CardFamilyMifarePlus is a Plus in security level 2.
	CardFamilyMifarePlus
	// CardFamilyMifareDESFire is a DESFire.
	CardFamilyMifareDESFire
	// CardFamilyISO14443v4 is any other ISO/IEC 14443-4 card
	// (javacards, bank cards, Plus in SL3).
	CardFamilyISO14443v4
)

func (f CardFamily) String() string {
	switch f {
	case CardFamilyMifareClassic:
		return "MIFARE Classic"
	case CardFamilyMifareMini:
		return "MIFARE Mini"
	case CardFamilyNTAG:
		return "NTAG/Ultralight"
	case CardFamilyMifarePlus:
		return "MIFARE Plus"
	case CardFamilyMifareDESFire:
		return "MIFARE DESFire"
	case CardFamilyISO14443v4:
		return "ISO14443-4"
	default:
		return "unknown"
	}
}

// CardFamily classifies the target. ATQA byte-swapped variants seen on
// clone cards are accepted for the NTAG/Ultralight pattern.
func (t *ISO14443ATarget) CardFamily() CardFamily {
	atqa := uint16(t.ATQA[0])<<8 | uint16(t.ATQA[1])

	switch t.SAK {
	case 0x00:
		if atqa == 0x0044 || atqa == 0x4400 || atqa == 0x0004 || atqa == 0x0400 {
			return CardFamilyNTAG
		}
	case 0x08, 0x18, 0x88:
		return CardFamilyMifareClassic
	case 0x09:
		return CardFamilyMifareMini
	case 0x10, 0x11:
		return CardFamilyMifarePlus
	}

	if t.SAK&sakISO14443Layer4 != 0 {
		if atqa == 0x0344 {
			return CardFamilyMifareDESFire
		}
		return CardFamilyISO14443v4
	}
	return CardFamilyUnknown
}

// atqaSakPattern is one masked entry of the identification database
// (NXP AN10833 plus field-observed values).
type atqaSakPattern struct {
	name     string
	atqa     uint16
	atqaMask uint16
	sak      byte
	sakMask  byte
}

var cardDatabase = []atqaSakPattern{
	{"MIFARE Ultralight", 0x0044, 0xFFFF, 0x00, 0xFF},
	{"MIFARE Ultralight C", 0x0044, 0xFFFF, 0x00, 0xFF},
	{"MIFARE Mini 0.3K", 0x0004, 0xFF0F, 0x09, 0xFF},
	{"MIFARE Classic 1K", 0x0004, 0xFF0F, 0x08, 0xFF},
	{"MIFARE Classic 4K", 0x0002, 0xFF0F, 0x18, 0xFF},

	{"MIFARE Plus (4 Byte UID or 4 Byte RID) 2K, Security level 1", 0x0004, 0xFFFF, 0x08, 0xFF},
	{"MIFARE Plus (4 Byte UID or 4 Byte RID) 4K, Security level 1", 0x0004, 0xFFFF, 0x18, 0xFF},
	{"MIFARE Plus (4 Byte UID or 4 Byte RID) 2K, Security level 2", 0x0004, 0xFFFF, 0x10, 0xFF},
	{"MIFARE Plus (4 Byte UID or 4 Byte RID) 4K, Security level 2", 0x0004, 0xFFFF, 0x11, 0xFF},
	{"MIFARE Plus (4 Byte UID or 4 Byte RID) 2K/4K, Security level 3", 0x0004, 0xFFFF, 0x20, 0xFF},
	{"MIFARE Plus (4 Byte UID or 4 Byte RID) 2K, Security level 1", 0x0002, 0xFFFF, 0x08, 0xFF},
	{"MIFARE Plus (4 Byte UID or 4 Byte RID) 4K, Security level 1", 0x0002, 0xFFFF, 0x18, 0xFF},
	{"MIFARE Plus (4 Byte UID or 4 Byte RID) 2K, Security level 2", 0x0002, 0xFFFF, 0x10, 0xFF},
	{"MIFARE Plus (4 Byte UID or 4 Byte RID) 4K, Security level 2", 0x0002, 0xFFFF, 0x11, 0xFF},
	{"MIFARE Plus (4 Byte UID or 4 Byte RID) 2K/4K, Security level 3", 0x0002, 0xFFFF, 0x20, 0xFF},
	{"MIFARE Plus (7 Byte UID) 2K, Security level 1", 0x0044, 0xFFFF, 0x08, 0xFF},
	{"MIFARE Plus (7 Byte UID) 4K, Security level 1", 0x0044, 0xFFFF, 0x18, 0xFF},
	{"MIFARE Plus (7 Byte UID) 2K, Security level 2", 0x0044, 0xFFFF, 0x10, 0xFF},
	{"MIFARE Plus (7 Byte UID) 4K, Security level 2", 0x0044, 0xFFFF, 0x11, 0xFF},
	{"MIFARE Plus (7 Byte UID) 2K/4K, Security level 3", 0x0044, 0xFFFF, 0x20, 0xFF},
	{"MIFARE Plus (7 Byte UID) 2K, Security level 1", 0x0042, 0xFFFF, 0x08, 0xFF},
	{"MIFARE Plus (7 Byte UID) 4K, Security level 1", 0x0042, 0xFFFF, 0x18, 0xFF},
	{"MIFARE Plus (7 Byte UID) 2K, Security level 2", 0x0042, 0xFFFF, 0x10, 0xFF},
	{"MIFARE Plus (7 Byte UID) 4K, Security level 2", 0x0042, 0xFFFF, 0x11, 0xFF},
	{"MIFARE Plus (7 Byte UID) 2K/4K, Security level 3", 0x0042, 0xFFFF, 0x20, 0xFF},

	{"MIFARE DESFire 4K", 0x0344, 0xFFFF, 0x20, 0xFF},
	{"MIFARE DESFire EV1 2K/4K/8K", 0x0344, 0xFFFF, 0x20, 0xFF},

	{"SmartMX with MIFARE 1K emulation", 0x0004, 0xF0FF, 0x00, 0x00},
	{"SmartMX with MIFARE 4K emulation", 0x0002, 0xF0FF, 0x00, 0x00},
	{"SmartMX with 7 Byte UID", 0x0048, 0xF0FF, 0x00, 0x00},

	// Matches observed in the field, outside AN10833
	{"MIFARE Classic 1K Infineon", 0x0004, 0xFFFF, 0x88, 0xFF},
	{"Gemplus MPCOS", 0x0002, 0xFFFF, 0x98, 0xFF},
	{"JCOP31", 0x0304, 0xFFFF, 0x28, 0xFF},
	{"JCOP31 v2.4.1 / v2.2", 0x0048, 0xFFFF, 0x20, 0xFF},
	{"JCOP31 v2.3.1", 0x0004, 0xFFFF, 0x28, 0xFF},
	{"Fudan FM1208SH01", 0x0004, 0xFFFF, 0x53, 0xFF},
	{"Fudan FM1208", 0x0008, 0xFFFF, 0x20, 0xFF},
	{"MFC 4K emulated by Nokia 6212 Classic", 0x0002, 0xFFFF, 0x38, 0xFF},
	{"MFC 4K emulated by Nokia 6131 NFC", 0x0008, 0xFFFF, 0x38, 0xFF},
}

// Fingerprint lists every chip the identification database considers
// possible for this ATQA/SAK pair. Multiple matches are normal; the
// activation data alone rarely pins down one chip.
func (t *ISO14443ATarget) Fingerprint() []string {
	atqa := uint16(t.ATQA[0])<<8 | uint16(t.ATQA[1])

	var matches []string
	for _, p := range cardDatabase {
		if atqa&p.atqaMask == p.atqa && t.SAK&p.sakMask == p.sak {
			matches = append(matches, p.name)
		}
	}
	return matches
}
