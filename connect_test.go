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

package tama_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tama "github.com/ZaparooProject/go-tama"
	tamatest "github.com/ZaparooProject/go-tama/internal/testing"
)

func simFactory(sim *tamatest.VirtualReader) tama.TransportFactory {
	return func(string) (tama.Transport, error) {
		return tamatest.NewSimTransport(sim), nil
	}
}

func TestConnectExplicitPort(t *testing.T) {
	t.Parallel()
	sim := tamatest.NewVirtualReader()

	device, err := tama.Connect(context.Background(),
		tama.WithPort("sim0"),
		tama.WithTransportFactory(simFactory(sim)),
		tama.WithDeviceOptions(tama.WithTimeouts(100*time.Millisecond, 100*time.Millisecond)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = device.Close() })

	assert.True(t, sim.SAMConfigured())
	require.NotNil(t, device.Firmware())
	assert.Equal(t, "1.6", device.Firmware().Version)
}

func TestConnectRequiresFactory(t *testing.T) {
	t.Parallel()

	_, err := tama.Connect(context.Background(), tama.WithPort("sim0"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transport factory")
}

func TestConnectFactoryFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("port locked")
	_, err := tama.Connect(context.Background(),
		tama.WithPort("sim0"),
		tama.WithTransportFactory(func(string) (tama.Transport, error) {
			return nil, boom
		}))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestConnectRetriesInitOnExplicitPort(t *testing.T) {
	t.Parallel()
	sim := tamatest.NewVirtualReader()
	// The first SAMConfiguration gets no response; the retry must
	// complete the handshake.
	sim.SilenceNextResponse()

	device, err := tama.Connect(context.Background(),
		tama.WithPort("sim0"),
		tama.WithTransportFactory(simFactory(sim)),
		tama.WithConnectRetry(&tama.RetryConfig{
			MaxAttempts:       3,
			InitialBackoff:    time.Millisecond,
			MaxBackoff:        5 * time.Millisecond,
			BackoffMultiplier: 2.0,
			RetryTimeout:      5 * time.Second,
		}),
		tama.WithDeviceOptions(tama.WithTimeouts(50*time.Millisecond, 50*time.Millisecond)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = device.Close() })

	assert.True(t, sim.SAMConfigured())
}

func TestConnectInvalidOptions(t *testing.T) {
	t.Parallel()

	_, err := tama.Connect(context.Background(), tama.WithConnectTimeout(0))
	assert.Error(t, err)

	_, err = tama.Connect(context.Background(), tama.WithConnectRetry(nil))
	assert.Error(t, err)
}
