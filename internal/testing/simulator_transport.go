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

package testing

import (
	"context"
	"time"

	tama "github.com/ZaparooProject/go-tama"
)

// simPollInterval mirrors a serial read timeout, scaled down so abort
// and timeout tests run fast.
const simPollInterval = time.Millisecond

// SimTransport adapts a VirtualReader to the byte-level tama.Transport
// interface, so session and device tests can run the real exchange
// state machine against the simulated chip without hardware.
type SimTransport struct {
	sim    *VirtualReader
	closed bool
}

// NewSimTransport wraps a VirtualReader as a Transport.
func NewSimTransport(sim *VirtualReader) *SimTransport {
	return &SimTransport{sim: sim}
}

// Simulator returns the wrapped VirtualReader for test setup.
func (t *SimTransport) Simulator() *VirtualReader {
	return t.sim
}

// Send implements tama.Transport.
func (t *SimTransport) Send(data []byte, _ time.Duration) error {
	if t.closed {
		return tama.ErrTransportClosed
	}
	if _, err := t.sim.Write(data); err != nil {
		return tama.NewTransportWriteError("send", t.Port())
	}
	return nil
}

// Receive implements tama.Transport. It polls the simulator's output
// buffer the way a serial transport polls the line, observing ctx
// between polls.
func (t *SimTransport) Receive(ctx context.Context, buf []byte, minLen int, timeout time.Duration) (int, error) {
	if t.closed {
		return 0, tama.ErrTransportClosed
	}
	if minLen > len(buf) {
		minLen = len(buf)
	}
	deadline := time.Now().Add(timeout)

	total := 0
	for {
		n, err := t.sim.Read(buf[total:])
		if err != nil {
			return total, tama.NewTransportReadError("receive", t.Port())
		}
		total += n
		if total >= minLen {
			return total, nil
		}
		if time.Now().After(deadline) {
			return total, tama.NewTimeoutError("receive", t.Port())
		}

		select {
		case <-ctx.Done():
			return total, ctx.Err()
		case <-time.After(simPollInterval):
		}
	}
}

// FlushInput implements tama.Transport by discarding the simulator's
// queued output. With discardPending set it waits one poll interval
// first, so a response already "in flight" is dropped too.
func (t *SimTransport) FlushInput(discardPending bool) error {
	if t.closed {
		return tama.ErrTransportClosed
	}
	if discardPending {
		time.Sleep(simPollInterval)
	}
	t.sim.DiscardOutput()
	return nil
}

// Close implements tama.Transport.
func (t *SimTransport) Close() error {
	t.closed = true
	return nil
}

// Port implements tama.Transport.
func (*SimTransport) Port() string { return "sim" }

// Type implements tama.Transport.
func (*SimTransport) Type() tama.TransportType { return tama.TransportMock }

var _ tama.Transport = (*SimTransport)(nil)
