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

// Command codes from the PN53x TAMA instruction set
const (
	cmdDiagnose            = 0x00
	cmdGetFirmwareVersion  = 0x02
	cmdGetGeneralStatus    = 0x04
	cmdSamConfiguration    = 0x14
	cmdRFConfiguration     = 0x32
	cmdInListPassiveTarget = 0x4A
	cmdInRelease           = 0x52
)

// Diagnose test numbers
const (
	diagnoseCommLineTest = 0x00
	diagnoseROMTest      = 0x01
	diagnoseRAMTest      = 0x02
)

// Diagnose ROM/RAM test status bytes
const (
	diagnoseStatusOK = 0x00
)

// RFConfiguration items
const (
	rfItemMaxRetries = 0x05
)

// InListPassiveTarget baud rate / modulation selectors
const (
	brTypeA106 = 0x00 // ISO/IEC 14443 Type A at 106 kbps
	brTypeB106 = 0x03 // ISO/IEC 14443 Type B at 106 kbps
)

// afiAllFamilies is the Type B application family identifier wildcard;
// it is the mandatory first initiator byte when polling Type B.
const afiAllFamilies = 0x00

// atqbStart is the fixed first byte of an ATQB block.
const atqbStart = 0x50

// chipStatusCodeMask extracts the error code bits of a status byte;
// the two high bits carry the NAD and MI flags instead.
const chipStatusCodeMask = 0x3F

// diagnoseEchoPayload is the reference pattern for the communication
// line test. The chip echoes it back verbatim when the link is healthy.
var diagnoseEchoPayload = []byte{diagnoseCommLineTest, 't', 'a', 'm', 'a'}
