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

import (
	"bytes"
	"errors"
	"testing"
)

func TestCascadeUID(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		uid  []byte
		want []byte
	}{
		{
			name: "single size stays unchanged",
			uid:  []byte{0x9C, 0x59, 0x84, 0x12},
			want: []byte{0x9C, 0x59, 0x84, 0x12},
		},
		{
			name: "double size gets one cascade tag",
			uid:  []byte{0x04, 0x51, 0x12, 0xEA, 0x2C, 0x61, 0x80},
			want: []byte{0x88, 0x04, 0x51, 0x12, 0xEA, 0x2C, 0x61, 0x80},
		},
		{
			name: "triple size gets two cascade tags",
			uid:  []byte{0x04, 0x51, 0x12, 0xEA, 0x2C, 0x61, 0x80, 0x99, 0xA0, 0xB1},
			want: []byte{0x88, 0x04, 0x51, 0x12, 0x88, 0xEA, 0x2C, 0x61, 0x80, 0x99, 0xA0, 0xB1},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := CascadeUID(tt.uid)
			if err != nil {
				t.Fatalf("CascadeUID() error = %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("CascadeUID(% X) = % X, want % X", tt.uid, got, tt.want)
			}
		})
	}
}

func TestCascadeUIDInvalidLengths(t *testing.T) {
	t.Parallel()
	for _, n := range []int{0, 1, 3, 5, 6, 8, 9, 11, 16} {
		n := n
		if _, err := CascadeUID(make([]byte, n)); !errors.Is(err, ErrInvalidUIDLength) {
			t.Errorf("CascadeUID(len %d) error = %v, want ErrInvalidUIDLength", n, err)
		}
	}
}

// The returned slice must be independent of the input UID.
func TestCascadeUIDCopies(t *testing.T) {
	t.Parallel()
	uid := []byte{0x9C, 0x59, 0x84, 0x12}
	got, err := CascadeUID(uid)
	if err != nil {
		t.Fatalf("CascadeUID() error = %v", err)
	}
	uid[0] = 0x00
	if got[0] != 0x9C {
		t.Error("CascadeUID() aliases the caller's UID slice")
	}
}
