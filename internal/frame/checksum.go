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

// CalculateChecksum computes the running byte sum for a data buffer
func CalculateChecksum(data []byte) byte {
	chk := byte(0)
	for _, b := range data {
		chk += b
	}
	return chk
}

// DataChecksum computes the DCS byte for a frame: the two's complement
// of the byte sum over TFI, command code and payload, so that the sum of
// all covered bytes plus the DCS is zero mod 256. The same computation
// serves both frame construction and response validation; an empty
// payload sums TFI and command only.
func DataChecksum(tfi, cmd byte, payload []byte) byte {
	sum := tfi + cmd + CalculateChecksum(payload)
	return ^sum + 1
}

// LengthChecksum computes the LCS byte so that LEN + LCS is zero mod 256.
func LengthChecksum(length byte) byte {
	return ^length + 1
}
