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

// SAMMode selects how the chip uses an attached Secure Access Module.
type SAMMode byte

const (
	// SAMModeNormal runs without a SAM. This is the mode Init selects
	// and the only one the driver exercises itself.
	SAMModeNormal SAMMode = 0x01
	// SAMModeVirtualCard makes the reader appear as a contactless card
	// backed by the SAM.
	SAMModeVirtualCard SAMMode = 0x02
	// SAMModeWiredCard exposes the SAM as a contactless card.
	SAMModeWiredCard SAMMode = 0x03
	// SAMModeDualCard runs virtual and wired card modes together.
	SAMModeDualCard SAMMode = 0x04
)

func (m SAMMode) String() string {
	switch m {
	case SAMModeNormal:
		return "normal"
	case SAMModeVirtualCard:
		return "virtual card"
	case SAMModeWiredCard:
		return "wired card"
	case SAMModeDualCard:
		return "dual card"
	default:
		return fmt.Sprintf("mode(%#02x)", byte(m))
	}
}

// ConfigureSAM sends SAMConfiguration. timeout is the virtual card
// timeout in 50 ms units (only meaningful in virtual card mode); irq
// selects whether the chip drives its IRQ pin. A successful
// configuration answers with an empty payload.
func (d *Device) ConfigureSAM(ctx context.Context, mode SAMMode, timeout, irq byte) error {
	res, err := d.session.Exchange(ctx, cmdSamConfiguration, []byte{byte(mode), timeout, irq})
	if err != nil {
		return fmt.Errorf("SAMConfiguration %s: %w", mode, err)
	}
	if len(res) != 0 {
		return fmt.Errorf("%w: SAMConfiguration returned %d payload bytes", ErrInvalidResponse, len(res))
	}
	return nil
}
