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

// Package iso14443 implements the ISO/IEC 14443-3 helper algorithms shared
// by contactless frame payloads: the type A and type B frame CRCs and the
// anti-collision UID cascade encoding.
package iso14443

const (
	crcASeed = 0x6363
	crcBSeed = 0xFFFF
)

// crc16 runs the ISO14443-3 CRC generator over data. Type A and type B
// use the same polynomial and differ only in seed and final complement.
func crc16(data []byte, seed uint16, complement bool) uint16 {
	crc := seed
	for _, b := range data {
		b ^= byte(crc)
		b ^= b << 4
		crc = (crc >> 8) ^ (uint16(b) << 8) ^ (uint16(b) << 3) ^ (uint16(b) >> 4)
	}
	if complement {
		crc = ^crc
	}
	return crc
}

// CRCA computes the ISO14443A frame CRC over data. The bytes are returned
// in transmission order (least significant first).
func CRCA(data []byte) (lo, hi byte) {
	crc := crc16(data, crcASeed, false)
	return byte(crc), byte(crc >> 8)
}

// CRCB computes the ISO14443B frame CRC over data, bytes in transmission
// order.
func CRCB(data []byte) (lo, hi byte) {
	crc := crc16(data, crcBSeed, true)
	return byte(crc), byte(crc >> 8)
}

// AppendCRCA appends the two ISO14443A CRC bytes to buf and returns the
// extended slice.
func AppendCRCA(buf []byte) []byte {
	lo, hi := CRCA(buf)
	return append(buf, lo, hi)
}

// AppendCRCB appends the two ISO14443B CRC bytes to buf and returns the
// extended slice.
func AppendCRCB(buf []byte) []byte {
	lo, hi := CRCB(buf)
	return append(buf, lo, hi)
}
