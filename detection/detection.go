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

// Package detection lists serial ports a TAMA reader could be attached
// to. It is pure enumeration: no port is opened or probed, the caller
// decides what to connect to. The platform set is closed and known at
// compile time.
package detection

import (
	"context"
	"sort"
	"strings"
)

// Port describes one candidate serial port. The USB metadata fields
// are best effort; only Path is guaranteed.
type Port struct {
	// Path is what gets passed to the uart transport, e.g.
	// "/dev/ttyUSB0" or "COM3".
	Path string
	// Name is the short device name.
	Name string
	// VIDPID is the USB vendor:product pair as "XXXX:YYYY", when known.
	VIDPID string
	// Manufacturer, Product and SerialNumber are USB descriptor
	// strings, when readable.
	Manufacturer string
	Product      string
	SerialNumber string
}

// Options filters the candidate list.
type Options struct {
	// Blocklist holds VID:PID pairs never to report.
	Blocklist []string
	// IgnorePaths holds exact device paths never to report.
	IgnorePaths []string
}

// DefaultOptions returns the default filter: the built-in blocklist
// and no ignored paths.
func DefaultOptions() Options {
	return Options{Blocklist: DefaultBlocklist()}
}

// Candidates lists serial ports that could host a reader, most likely
// first. Ports matching the blocklist or ignore list are dropped.
func Candidates(ctx context.Context, opts Options) ([]Port, error) {
	ports, err := listPorts(ctx)
	if err != nil {
		return nil, err
	}

	filtered := make([]Port, 0, len(ports))
	for _, p := range ports {
		if isIgnored(p.Path, opts.IgnorePaths) {
			continue
		}
		if p.VIDPID != "" && IsBlocked(p.VIDPID, opts.Blocklist) {
			continue
		}
		filtered = append(filtered, p)
	}

	rankPorts(filtered)
	return filtered, nil
}

func isIgnored(path string, ignore []string) bool {
	for _, ig := range ignore {
		if path == ig {
			return true
		}
	}
	return false
}

// rankPorts orders likely readers before generic ports, keeping the
// enumeration order within each group stable.
func rankPorts(ports []Port) {
	sort.SliceStable(ports, func(i, j int) bool {
		return likelyReader(&ports[i]) && !likelyReader(&ports[j])
	})
}

// knownBridges are the USB serial bridge chips found on common reader
// boards.
var knownBridges = []string{
	"067B:2303", // Prolific PL2303
	"0403:6001", // FTDI FT232
	"10C4:EA60", // Silicon Labs CP210x
	"1A86:7523", // QinHeng CH340
}

// readerKeywords mark descriptor strings that name the device function.
var readerKeywords = []string{"pn532", "nfc", "rfid", "13.56"}

// likelyReader reports whether the port's identity suggests a
// contactless reader rather than some unrelated serial device.
func likelyReader(p *Port) bool {
	vidpid := strings.ToUpper(p.VIDPID)
	for _, known := range knownBridges {
		if vidpid == known {
			return true
		}
	}

	product := strings.ToLower(p.Product)
	manufacturer := strings.ToLower(p.Manufacturer)
	for _, kw := range readerKeywords {
		if strings.Contains(product, kw) || strings.Contains(manufacturer, kw) {
			return true
		}
	}

	// USB serial adapter name patterns, mostly relevant on macOS where
	// the path carries the bridge identity.
	lowerPath := strings.ToLower(p.Path)
	for _, pattern := range []string{"usbserial", "slab_usbtouart", "usbmodem"} {
		if strings.Contains(lowerPath, pattern) {
			return true
		}
	}

	return false
}
