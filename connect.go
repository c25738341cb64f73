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
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-tama/detection"
)

// TransportFactory opens a Transport for a serial port path. The root
// package carries no transport implementation of its own, so Connect
// needs one injected; transport/uart.Open fits the signature:
//
//	tama.Connect(ctx, tama.WithTransportFactory(func(p string) (tama.Transport, error) {
//		return uart.Open(p)
//	}))
type TransportFactory func(path string) (Transport, error)

// ConnectOption configures Connect.
type ConnectOption func(*connectConfig) error

type connectConfig struct {
	factory    TransportFactory
	retry      *RetryConfig
	deviceOpts []Option
	detectOpts detection.Options
	path       string
	timeout    time.Duration
}

// WithPort connects to a specific serial port instead of auto-detecting.
func WithPort(path string) ConnectOption {
	return func(c *connectConfig) error {
		c.path = path
		return nil
	}
}

// WithTransportFactory sets how Connect opens a port. Required.
func WithTransportFactory(factory TransportFactory) ConnectOption {
	return func(c *connectConfig) error {
		if factory == nil {
			return errors.New("transport factory must not be nil")
		}
		c.factory = factory
		return nil
	}
}

// WithDeviceOptions passes options through to New.
func WithDeviceOptions(opts ...Option) ConnectOption {
	return func(c *connectConfig) error {
		c.deviceOpts = append(c.deviceOpts, opts...)
		return nil
	}
}

// WithConnectTimeout bounds the whole connect, including detection and
// the Init handshake.
func WithConnectTimeout(timeout time.Duration) ConnectOption {
	return func(c *connectConfig) error {
		if timeout <= 0 {
			return fmt.Errorf("connect timeout must be positive, got %v", timeout)
		}
		c.timeout = timeout
		return nil
	}
}

// WithConnectRetry sets the retry policy for the Init handshake on an
// explicit port. Auto-detection never retries a candidate; the next
// candidate is the retry.
func WithConnectRetry(cfg *RetryConfig) ConnectOption {
	return func(c *connectConfig) error {
		if cfg == nil {
			return errors.New("retry config must not be nil")
		}
		c.retry = cfg
		return nil
	}
}

// WithDetectionOptions replaces the port discovery filter used when no
// explicit port is given.
func WithDetectionOptions(opts detection.Options) ConnectOption {
	return func(c *connectConfig) error {
		c.detectOpts = opts
		return nil
	}
}

// DefaultConnectTimeout bounds Connect when no timeout option is given.
const DefaultConnectTimeout = 10 * time.Second

// connectRetryConfig is the default Init retry policy for explicit
// ports. Readers on a port that was just opened occasionally miss the
// first command while their HSU interface wakes up.
func connectRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    50 * time.Millisecond,
		MaxBackoff:        500 * time.Millisecond,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
		RetryTimeout:      10 * time.Second,
	}
}

// Connect opens a reader and brings it to an initialized state: it
// resolves a port (explicit via WithPort, otherwise the ranked
// detection candidates in order), opens the transport through the
// injected factory and runs Init. The first candidate that completes
// the handshake wins.
func Connect(ctx context.Context, opts ...ConnectOption) (*Device, error) {
	cfg := &connectConfig{
		detectOpts: detection.DefaultOptions(),
		timeout:    DefaultConnectTimeout,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.factory == nil {
		return nil, errors.New("no transport factory configured")
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	if cfg.path != "" {
		return connectPort(ctx, cfg, cfg.path, true)
	}

	ports, err := detection.Candidates(ctx, cfg.detectOpts)
	if err != nil {
		return nil, fmt.Errorf("detecting serial ports: %w", err)
	}
	if len(ports) == 0 {
		return nil, ErrDeviceNotFound
	}

	var lastErr error
	for _, port := range ports {
		device, err := connectPort(ctx, cfg, port.Path, false)
		if err == nil {
			return device, nil
		}
		lastErr = err
		Debugf("connect: candidate %s: %v", port.Path, err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("no reader answered on %d candidate ports: %w", len(ports), lastErr)
}

// connectPort opens one port and runs the Init handshake, retrying it
// for explicit ports.
func connectPort(ctx context.Context, cfg *connectConfig, path string, retry bool) (*Device, error) {
	transport, err := cfg.factory(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	device, err := New(transport, cfg.deviceOpts...)
	if err != nil {
		_ = transport.Close()
		return nil, err
	}

	init := func() error { return device.Init(ctx) }
	if retry {
		retryCfg := cfg.retry
		if retryCfg == nil {
			retryCfg = connectRetryConfig()
		}
		err = RetryWithConfig(ctx, retryCfg, init)
	} else {
		err = init()
	}
	if err != nil {
		_ = device.Close()
		return nil, fmt.Errorf("initializing reader on %s: %w", path, err)
	}
	return device, nil
}
