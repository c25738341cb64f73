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

//go:build darwin

package detection

import (
	"context"
	"os"
	"path/filepath"
)

// listPorts enumerates callout devices on macOS. The /dev/cu.* nodes
// are preferred over /dev/tty.* because they do not block waiting for
// carrier detect.
func listPorts(_ context.Context) ([]Port, error) {
	var ports []Port
	for _, pattern := range []string{
		"/dev/cu.usbserial*",
		"/dev/cu.SLAB_USBtoUART*",
		"/dev/cu.usbmodem*",
		"/dev/cu.wchusbserial*",
	} {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			continue
		}
		for _, path := range matches {
			if _, err := os.Stat(path); err != nil {
				continue
			}
			ports = append(ports, Port{Path: path, Name: filepath.Base(path)})
		}
	}
	return ports, nil
}
