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

import "errors"

// CascadeTag prefixes each anti-collision cascade level except the last.
const CascadeTag = 0x88

// ErrInvalidUIDLength is returned when a UID is not 4, 7 or 10 bytes long.
var ErrInvalidUIDLength = errors.New("iso14443: UID length must be 4, 7 or 10 bytes")

// CascadeUID expands a 4, 7 or 10 byte ISO14443A UID into the
// cascade-tagged byte sequence used when selecting a known card: each
// cascade level carries three UID bytes behind a cascade tag, except the
// final level, which carries the remaining bytes untagged.
//
//	4 bytes  -> uid unchanged
//	7 bytes  -> 0x88 uid[0:3] uid[3:7]
//	10 bytes -> 0x88 uid[0:3] 0x88 uid[3:6] uid[6:10]
func CascadeUID(uid []byte) ([]byte, error) {
	switch len(uid) {
	case 4:
		out := make([]byte, 4)
		copy(out, uid)
		return out, nil
	case 7:
		out := make([]byte, 0, 8)
		out = append(out, CascadeTag)
		out = append(out, uid...)
		return out, nil
	case 10:
		out := make([]byte, 0, 12)
		out = append(out, CascadeTag)
		out = append(out, uid[:3]...)
		out = append(out, CascadeTag)
		out = append(out, uid[3:]...)
		return out, nil
	default:
		return nil, ErrInvalidUIDLength
	}
}
