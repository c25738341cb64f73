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
	"fmt"
	"time"
)

// DeviceConfig carries the tunables a Device is created with.
type DeviceConfig struct {
	// AckTimeout bounds the wait for the ACK window after each command.
	AckTimeout time.Duration
	// ResponseTimeout bounds each read step of a response frame.
	ResponseTimeout time.Duration
	// PassiveRetries is the MxRtyPassiveActivation value Init programs.
	// A finite value keeps detection commands from blocking the chip
	// indefinitely when no target is present; 0xFF means retry forever.
	PassiveRetries byte
}

// DefaultDeviceConfig returns the defaults used by New.
func DefaultDeviceConfig() *DeviceConfig {
	return &DeviceConfig{
		AckTimeout:      DefaultAckTimeout,
		ResponseTimeout: DefaultResponseTimeout,
		PassiveRetries:  0x0A,
	}
}

// Device is the high-level driver for a TAMA reader: a Session for the
// wire protocol plus the command semantics on top.
//
// A Device is not safe for concurrent use. All methods must be called
// from a single goroutine; Abort is the one exception and may be called
// from anywhere.
type Device struct {
	session  *Session
	config   *DeviceConfig
	firmware *FirmwareVersion
}

// Option configures a Device during New.
type Option func(*Device) error

// WithDeviceConfig replaces the whole configuration.
func WithDeviceConfig(config *DeviceConfig) Option {
	return func(d *Device) error {
		if config == nil {
			return fmt.Errorf("device config must not be nil")
		}
		d.config = config
		return nil
	}
}

// WithPassiveRetries overrides the MxRtyPassiveActivation value Init
// programs.
func WithPassiveRetries(retries byte) Option {
	return func(d *Device) error {
		d.config.PassiveRetries = retries
		return nil
	}
}

// WithTimeouts overrides the per-step ACK and response timeouts.
func WithTimeouts(ack, response time.Duration) Option {
	return func(d *Device) error {
		if ack <= 0 || response <= 0 {
			return fmt.Errorf("timeouts must be positive, got ack=%v response=%v", ack, response)
		}
		d.config.AckTimeout = ack
		d.config.ResponseTimeout = response
		return nil
	}
}

// New creates a Device over the given transport. The transport is
// adopted: closing the device closes it.
func New(transport Transport, opts ...Option) (*Device, error) {
	d := &Device{config: DefaultDeviceConfig()}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	d.session = NewSession(transport,
		WithAckTimeout(d.config.AckTimeout),
		WithResponseTimeout(d.config.ResponseTimeout))
	return d, nil
}

// Session returns the underlying frame session.
func (d *Device) Session() *Session {
	return d.session
}

// Transport returns the underlying transport.
func (d *Device) Transport() Transport {
	return d.session.Transport()
}

// Init brings the chip into a known operating state: SAM in normal
// mode, finite passive activation retries, firmware version probed and
// cached. Call it once after opening the transport.
func (d *Device) Init(ctx context.Context) error {
	if err := d.ConfigureSAM(ctx, SAMModeNormal, 0x00, 0x00); err != nil {
		return fmt.Errorf("SAM configuration: %w", err)
	}

	// Older firmware ignores the retry item; detection still works,
	// it just blocks for the chip's default retry budget.
	if err := d.SetPassiveActivationRetries(ctx, d.config.PassiveRetries); err != nil {
		Debugf("device: setting passive retries failed, continuing: %v", err)
	}

	fw, err := d.FirmwareVersion(ctx)
	if err != nil {
		return fmt.Errorf("firmware version probe: %w", err)
	}
	d.firmware = fw
	Debugf("device: initialized, firmware %s", fw)
	return nil
}

// Firmware returns the version cached by Init, or nil before Init.
func (d *Device) Firmware() *FirmwareVersion {
	return d.firmware
}

// SetPassiveActivationRetries programs RFConfiguration item 5
// (MaxRetries). ATR and PSL retries stay at their conservative
// defaults; retries only bounds passive activation.
func (d *Device) SetPassiveActivationRetries(ctx context.Context, retries byte) error {
	payload := []byte{
		rfItemMaxRetries,
		0x00, // MxRtyATR
		0x01, // MxRtyPSL
		retries,
	}
	res, err := d.session.Exchange(ctx, cmdRFConfiguration, payload)
	if err != nil {
		return fmt.Errorf("RFConfiguration MaxRetries: %w", err)
	}
	if len(res) != 0 {
		return fmt.Errorf("%w: RFConfiguration returned %d payload bytes", ErrInvalidResponse, len(res))
	}
	return nil
}

// CommunicationTest runs the Diagnose communication line test: the
// chip must echo the test payload back unchanged. A passing test
// proves framing, checksums and the chip's command loop end to end.
func (d *Device) CommunicationTest(ctx context.Context) error {
	res, err := d.session.Exchange(ctx, cmdDiagnose, diagnoseEchoPayload)
	if err != nil {
		return fmt.Errorf("communication line test: %w", err)
	}
	if !bytes.Equal(res, diagnoseEchoPayload) {
		return fmt.Errorf("%w: diagnose echo %s, sent %s",
			ErrInvalidResponse, formatHexBytes(res), formatHexBytes(diagnoseEchoPayload))
	}
	return nil
}

// ROMTest runs the Diagnose ROM checksum self-test.
func (d *Device) ROMTest(ctx context.Context) error {
	return d.selfTest(ctx, diagnoseROMTest, "ROM test")
}

// RAMTest runs the Diagnose RAM self-test.
func (d *Device) RAMTest(ctx context.Context) error {
	return d.selfTest(ctx, diagnoseRAMTest, "RAM test")
}

// selfTest runs a Diagnose test that answers with a single pass/fail
// status byte.
func (d *Device) selfTest(ctx context.Context, test byte, name string) error {
	res, err := d.session.Exchange(ctx, cmdDiagnose, []byte{test})
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if len(res) != 1 {
		return fmt.Errorf("%w: %s returned %d payload bytes", ErrInvalidResponse, name, len(res))
	}
	if res[0] != diagnoseStatusOK {
		return fmt.Errorf("%w: %s status %#02x", ErrCommandFailed, name, res[0])
	}
	return nil
}

// Abort interrupts a blocked exchange from another goroutine. See
// Session.Abort.
func (d *Device) Abort() {
	d.session.Abort()
}

// Close closes the underlying transport.
func (d *Device) Close() error {
	if err := d.session.Close(); err != nil {
		return fmt.Errorf("closing transport: %w", err)
	}
	return nil
}
