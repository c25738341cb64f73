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
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-tama/pkg/iso14443"
)

// DefaultPollInterval is the pause between detection attempts when
// WaitForTarget is called without one.
const DefaultPollInterval = 100 * time.Millisecond

// The chip lists at most two passive targets per detection command.
const maxTargetsPerDetect = 2

// WaitForTarget error budget: log the first few failures, try a
// release once the failures look systematic, give up past the maximum.
const (
	pollErrorLogLimit   = 3
	pollErrorRecoveryAt = 3
	maxPollErrors       = 10
)

// DetectTarget looks for a single target in the field and returns its
// decoded descriptor, or ErrNoTarget when the field is empty.
func (d *Device) DetectTarget(ctx context.Context, mod Modulation) (Target, error) {
	targets, err := d.DetectTargets(ctx, mod, 1)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, ErrNoTarget
	}
	return targets[0], nil
}

// DetectTargets runs one InListPassiveTarget pass at 106 kbps for the
// given modulation and decodes every reported target. An empty field
// is not an error; the returned slice is just empty. max is clamped to
// the chip's limit of two.
func (d *Device) DetectTargets(ctx context.Context, mod Modulation, maxTargets int) ([]Target, error) {
	if mod != ModulationISO14443A && mod != ModulationISO14443B {
		return nil, fmt.Errorf("unsupported modulation %s", mod)
	}
	if maxTargets < 1 {
		maxTargets = 1
	}
	if maxTargets > maxTargetsPerDetect {
		maxTargets = maxTargetsPerDetect
	}

	payload := []byte{byte(maxTargets), byte(mod)}
	if mod == ModulationISO14443B {
		// Type B polling carries a mandatory application family
		// identifier; zero polls every family.
		payload = append(payload, afiAllFamilies)
	}

	res, err := d.session.Exchange(ctx, cmdInListPassiveTarget, payload)
	if err != nil {
		return nil, fmt.Errorf("InListPassiveTarget: %w", err)
	}
	return parseDetectedTargets(mod, res)
}

// SelectByUID activates the Type A target with the given UID. The UID
// is cascade-encoded into the initiator data, so the chip hunts for
// that specific target instead of the first one it sees.
func (d *Device) SelectByUID(ctx context.Context, uid []byte) (*ISO14443ATarget, error) {
	cascaded, err := iso14443.CascadeUID(uid)
	if err != nil {
		return nil, err
	}

	payload := append([]byte{1, byte(ModulationISO14443A)}, cascaded...)
	res, err := d.session.Exchange(ctx, cmdInListPassiveTarget, payload)
	if err != nil {
		return nil, fmt.Errorf("InListPassiveTarget by UID: %w", err)
	}

	targets, err := parseDetectedTargets(ModulationISO14443A, res)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: UID %s", ErrNoTarget, formatHexBytes(uid))
	}

	target, ok := targets[0].(*ISO14443ATarget)
	if !ok {
		return nil, fmt.Errorf("%w: non Type A descriptor for a UID selection", ErrInvalidResponse)
	}
	if !bytes.Equal(target.UID, uid) {
		Debugf("device: selected UID %s answered for requested %s",
			formatHexBytes(target.UID), formatHexBytes(uid))
	}
	return target, nil
}

// WaitForTarget polls until a target shows up, the context ends or the
// error budget runs out. ErrNoTarget between polls is the normal case
// and never counts as a failure.
func (d *Device) WaitForTarget(ctx context.Context, mod Modulation, interval time.Duration) (Target, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	errorCount := 0
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		target, err := d.DetectTarget(ctx, mod)
		switch {
		case err == nil:
			return target, nil
		case errors.Is(err, ErrNoTarget):
			errorCount = 0
		case errors.Is(err, ErrAborted),
			errors.Is(err, context.Canceled),
			errors.Is(err, context.DeadlineExceeded):
			return nil, err
		default:
			errorCount++
			if errorCount <= pollErrorLogLimit {
				Debugf("device: detection error #%d: %v", errorCount, err)
			}
			if errorCount == pollErrorRecoveryAt {
				// A target stuck in HALT can fail every further poll.
				if relErr := d.Release(ctx); relErr != nil {
					Debugf("device: recovery release failed: %v", relErr)
				}
			}
			if errorCount > maxPollErrors {
				return nil, fmt.Errorf("giving up after %d detection errors: %w", errorCount, err)
			}
		}

		if err := d.pollPause(ctx, interval); err != nil {
			return nil, err
		}
	}
}

func (*Device) pollPause(ctx context.Context, interval time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(interval):
		return nil
	}
}

// Release halts and releases every activated target so the next
// detection pass starts from a clean field.
func (d *Device) Release(ctx context.Context) error {
	res, err := d.session.Exchange(ctx, cmdInRelease, []byte{0x00})
	if err != nil {
		return fmt.Errorf("InRelease: %w", err)
	}
	if len(res) != 1 {
		return fmt.Errorf("%w: InRelease returned %d payload bytes", ErrInvalidResponse, len(res))
	}
	if code := res[0] & chipStatusCodeMask; code != 0 {
		return NewChipError(code, "InRelease", "")
	}
	return nil
}

// respCursor walks a response payload with truncation checking.
type respCursor struct {
	data []byte
	off  int
}

func (c *respCursor) take(n int, what string) ([]byte, error) {
	if c.off+n > len(c.data) {
		return nil, fmt.Errorf("%w: truncated before %s", ErrInvalidResponse, what)
	}
	b := c.data[c.off : c.off+n]
	c.off += n
	return b, nil
}

func (c *respCursor) takeByte(what string) (byte, error) {
	b, err := c.take(1, what)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *respCursor) leftover() int {
	return len(c.data) - c.off
}

// parseDetectedTargets decodes an InListPassiveTarget response payload:
// a count, then per target a logical slot number followed by
// modulation-specific activation data.
func parseDetectedTargets(mod Modulation, res []byte) ([]Target, error) {
	cur := &respCursor{data: res}
	count, err := cur.takeByte("target count")
	if err != nil {
		return nil, err
	}

	targets := make([]Target, 0, count)
	for i := 0; i < int(count); i++ {
		slot, err := cur.takeByte("target slot")
		if err != nil {
			return nil, fmt.Errorf("target %d: %w", i+1, err)
		}

		var target Target
		switch mod {
		case ModulationISO14443A:
			target, err = parseTypeATarget(cur)
		case ModulationISO14443B:
			target, err = parseTypeBTarget(cur)
		}
		if err != nil {
			return nil, fmt.Errorf("target %d: %w", i+1, err)
		}

		Debugf("device: slot %d: %s", slot, target)
		targets = append(targets, target)
	}

	if n := cur.leftover(); n > 0 {
		Debugf("device: %d trailing bytes after %d targets", n, count)
	}
	return targets, nil
}

// parseTypeATarget consumes one Type A activation record: SENS_RES,
// SEL_RES, UID with its length prefix, and for ISO14443-4 targets the
// ATS with its self-counting length byte.
func parseTypeATarget(cur *respCursor) (*ISO14443ATarget, error) {
	sens, err := cur.take(2, "SENS_RES")
	if err != nil {
		return nil, err
	}
	sel, err := cur.takeByte("SEL_RES")
	if err != nil {
		return nil, err
	}
	uidLen, err := cur.takeByte("UID length")
	if err != nil {
		return nil, err
	}
	uid, err := cur.take(int(uidLen), "UID")
	if err != nil {
		return nil, err
	}

	var ats []byte
	if sel&sakISO14443Layer4 != 0 && cur.leftover() > 0 {
		tl, err := cur.takeByte("ATS length")
		if err != nil {
			return nil, err
		}
		if tl == 0 {
			return nil, fmt.Errorf("%w: ATS length 0", ErrInvalidResponse)
		}
		// TL counts itself.
		ats, err = cur.take(int(tl)-1, "ATS")
		if err != nil {
			return nil, err
		}
	}

	return DecodeISO14443A([2]byte{sens[0], sens[1]}, sel, uid, ats)
}

// parseTypeBTarget consumes one Type B activation record: the 12-byte
// ATQB block and the ATTRIB_RES with its length prefix. The ATTRIB_RES
// carries only negotiation echoes and is dropped after consuming it.
func parseTypeBTarget(cur *respCursor) (*ISO14443BTarget, error) {
	atqb, err := cur.take(12, "ATQB")
	if err != nil {
		return nil, err
	}
	if atqb[0] != atqbStart {
		return nil, fmt.Errorf("%w: ATQB starts %#02x, want %#02x", ErrInvalidResponse, atqb[0], atqbStart)
	}

	attribLen, err := cur.takeByte("ATTRIB_RES length")
	if err != nil {
		return nil, err
	}
	if _, err := cur.take(int(attribLen), "ATTRIB_RES"); err != nil {
		return nil, err
	}

	return DecodeISO14443B(atqb[1:5], atqb[5:9], atqb[9:12])
}
