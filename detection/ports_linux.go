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

//go:build linux

package detection

import (
	"context"
	"os"
	"path/filepath"
	"strings"
)

// listPorts enumerates serial ports on Linux. USB-attached ttys are
// read from sysfs so their vendor metadata comes along; plain glob
// patterns cover everything else.
func listPorts(_ context.Context) ([]Port, error) {
	ports := listUSBPorts()

	seen := make(map[string]bool, len(ports))
	for _, p := range ports {
		seen[p.Path] = true
	}

	for _, pattern := range []string{"/dev/ttyUSB*", "/dev/ttyACM*", "/dev/ttyAMA*"} {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			continue
		}
		for _, path := range matches {
			if seen[path] {
				continue
			}
			if _, err := os.Stat(path); err != nil {
				continue
			}
			ports = append(ports, Port{Path: path, Name: filepath.Base(path)})
			seen[path] = true
		}
	}

	return ports, nil
}

// listUSBPorts walks /sys/class/tty and keeps entries whose device
// symlink resolves into the USB subsystem.
func listUSBPorts() []Port {
	const ttyDir = "/sys/class/tty"
	entries, err := os.ReadDir(ttyDir)
	if err != nil {
		return nil
	}

	var ports []Port
	for _, entry := range entries {
		devicePath := filepath.Join(ttyDir, entry.Name(), "device")
		resolved, err := filepath.EvalSymlinks(devicePath)
		if err != nil || !strings.Contains(resolved, "/usb") {
			continue
		}

		p := Port{
			Path: "/dev/" + entry.Name(),
			Name: entry.Name(),
		}
		readUSBAttributes(&p, resolved)
		ports = append(ports, p)
	}
	return ports
}

// readUSBAttributes walks up the sysfs device tree until it finds the
// USB device node carrying idVendor/idProduct.
func readUSBAttributes(p *Port, devicePath string) {
	current := devicePath
	for i := 0; i < 10; i++ {
		if readUSBIdentifiers(p, current) {
			return
		}
		current = filepath.Dir(current)
		if current == "/" || current == "." {
			return
		}
	}
}

func readUSBIdentifiers(p *Port, path string) bool {
	if !strings.HasPrefix(filepath.Clean(path), "/sys/") {
		return false
	}

	vid, err := os.ReadFile(filepath.Clean(filepath.Join(path, "idVendor"))) // #nosec G304 -- under /sys/
	if err != nil {
		return false
	}
	pid, err := os.ReadFile(filepath.Clean(filepath.Join(path, "idProduct"))) // #nosec G304 -- under /sys/
	if err != nil {
		return false
	}
	p.VIDPID = strings.ToUpper(strings.TrimSpace(string(vid)) + ":" + strings.TrimSpace(string(pid)))

	if b, err := os.ReadFile(filepath.Clean(filepath.Join(path, "manufacturer"))); err == nil { // #nosec G304
		p.Manufacturer = strings.TrimSpace(string(b))
	}
	if b, err := os.ReadFile(filepath.Clean(filepath.Join(path, "product"))); err == nil { // #nosec G304
		p.Product = strings.TrimSpace(string(b))
	}
	if b, err := os.ReadFile(filepath.Clean(filepath.Join(path, "serial"))); err == nil { // #nosec G304
		p.SerialNumber = strings.TrimSpace(string(b))
	}
	return true
}
