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
	"context"
	"fmt"
)

// FirmwareVersion is the chip's answer to GetFirmwareVersion.
type FirmwareVersion struct {
	// Version is the firmware revision, e.g. "1.6".
	Version string

	// IC identifies the die (0x32 for the PN532 generation). Zero for
	// first-generation chips, whose firmware answer predates the IC
	// byte and carries no support flags either.
	IC byte

	SupportISO14443A bool
	SupportISO14443B bool
	SupportISO18092  bool
}

func (v *FirmwareVersion) String() string {
	if v.IC == 0 {
		return "v" + v.Version
	}
	return fmt.Sprintf("IC %#02x v%s", v.IC, v.Version)
}

// FirmwareVersion queries the chip. The answer comes in two shapes:
// first-generation chips send only version and revision, later ones
// prepend the IC code and append a modulation support byte.
func (d *Device) FirmwareVersion(ctx context.Context) (*FirmwareVersion, error) {
	res, err := d.session.Exchange(ctx, cmdGetFirmwareVersion, nil)
	if err != nil {
		return nil, fmt.Errorf("GetFirmwareVersion: %w", err)
	}

	switch len(res) {
	case 2:
		return &FirmwareVersion{
			Version:          fmt.Sprintf("%d.%d", res[0], res[1]),
			SupportISO14443A: true,
		}, nil
	case 4:
		return &FirmwareVersion{
			IC:               res[0],
			Version:          fmt.Sprintf("%d.%d", res[1], res[2]),
			SupportISO14443A: res[3]&0x01 != 0,
			SupportISO14443B: res[3]&0x02 != 0,
			SupportISO18092:  res[3]&0x04 != 0,
		}, nil
	default:
		return nil, fmt.Errorf("%w: firmware version payload %d bytes", ErrInvalidResponse, len(res))
	}
}

// TargetStatus is one activated target as reported by GetGeneralStatus.
type TargetStatus struct {
	// LogicalNumber is the chip-assigned target slot.
	LogicalNumber byte
	// ReceiveKbps and SendKbps are the negotiated bit rates.
	ReceiveKbps int
	SendKbps    int
	// ModulationType is the chip's modulation code for the target.
	ModulationType byte
}

// GeneralStatus is the chip's answer to GetGeneralStatus.
type GeneralStatus struct {
	// Targets lists the currently activated targets.
	Targets []TargetStatus
	// LastError is the status code of the most recent RF command.
	LastError byte
	// FieldPresent reports an external RF field detected by the chip.
	FieldPresent bool
}

// baudKbps translates the chip's bit rate code.
func baudKbps(code byte) int {
	switch code {
	case 0x00:
		return 106
	case 0x01:
		return 212
	case 0x02:
		return 424
	default:
		return 0
	}
}

// GeneralStatus queries error, field and target state. The trailing
// SAM status byte some firmware appends is ignored.
func (d *Device) GeneralStatus(ctx context.Context) (*GeneralStatus, error) {
	res, err := d.session.Exchange(ctx, cmdGetGeneralStatus, nil)
	if err != nil {
		return nil, fmt.Errorf("GetGeneralStatus: %w", err)
	}
	if len(res) < 3 {
		return nil, fmt.Errorf("%w: general status payload %d bytes", ErrInvalidResponse, len(res))
	}

	status := &GeneralStatus{
		LastError:    res[0],
		FieldPresent: res[1] == 0x01,
	}

	count := int(res[2])
	rest := res[3:]
	if len(rest) < count*4 {
		return nil, fmt.Errorf("%w: %d targets announced, %d status bytes left",
			ErrInvalidResponse, count, len(rest))
	}
	for i := 0; i < count; i++ {
		entry := rest[i*4 : i*4+4]
		status.Targets = append(status.Targets, TargetStatus{
			LogicalNumber:  entry[0],
			ReceiveKbps:    baudKbps(entry[1]),
			SendKbps:       baudKbps(entry[2]),
			ModulationType: entry[3],
		})
	}
	return status, nil
}
