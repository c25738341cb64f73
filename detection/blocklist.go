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

package detection

import "strings"

// DefaultBlocklist returns USB devices known to misbehave when listed
// as reader candidates. Format: VID:PID in hex, case-insensitive.
func DefaultBlocklist() []string {
	return []string{
		// Add known problematic devices here as discovered.
	}
}

// IsBlocked checks a VID:PID against a blocklist.
func IsBlocked(vidpid string, blocklist []string) bool {
	vidpid = strings.ToUpper(strings.TrimSpace(vidpid))
	for _, blocked := range blocklist {
		if vidpid == strings.ToUpper(strings.TrimSpace(blocked)) {
			return true
		}
	}
	return false
}

// ParseVIDPID extracts a normalized "VID:PID" pair from the descriptor
// formats different platforms report ("VID:1234 PID:5678",
// "vendor=1234 product=5678", or plain "1234:5678"). Returns "" when
// no pair can be found.
func ParseVIDPID(descriptor string) string {
	descriptor = strings.ToUpper(descriptor)

	var vid, pid string
	for _, prefix := range []string{"VID:", "VENDOR=", "VID="} {
		if idx := strings.Index(descriptor, prefix); idx >= 0 {
			vid = extractHex(descriptor[idx+len(prefix):])
			break
		}
	}
	for _, prefix := range []string{"PID:", "PRODUCT=", "PID="} {
		if idx := strings.Index(descriptor, prefix); idx >= 0 {
			pid = extractHex(descriptor[idx+len(prefix):])
			break
		}
	}
	if vid != "" && pid != "" {
		return vid + ":" + pid
	}

	if parts := strings.Split(descriptor, ":"); len(parts) == 2 && isHex(parts[0]) && isHex(parts[1]) {
		return descriptor
	}
	return ""
}

// extractHex returns the first run of hex digits in s.
func extractHex(s string) string {
	var b strings.Builder
	found := false
	for _, r := range s {
		if (r >= '0' && r <= '9') || (r >= 'A' && r <= 'F') {
			_, _ = b.WriteRune(r)
			found = true
		} else if found {
			break
		}
	}
	return b.String()
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'A' || r > 'F') {
			return false
		}
	}
	return true
}
