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

	"github.com/ZaparooProject/go-tama/internal/frame"
)

// Abort interrupts a blocked exchange from another goroutine. The
// blocked call observes the signal within one transport poll interval,
// resynchronizes the chip and returns ErrAborted. Aborting an idle
// session is harmless; the signal is cleared when the next command is
// sent.
func (s *Session) Abort() {
	s.abortMu.Lock()
	defer s.abortMu.Unlock()
	if !s.aborted {
		s.aborted = true
		close(s.abortCh)
	}
}

// resetAbort rearms the abort channel so a signal consumed (or ignored)
// by a previous exchange cannot cancel the next one.
func (s *Session) resetAbort() {
	s.abortMu.Lock()
	defer s.abortMu.Unlock()
	if s.aborted {
		s.abortCh = make(chan struct{})
		s.aborted = false
	}
}

func (s *Session) abortChan() <-chan struct{} {
	s.abortMu.Lock()
	defer s.abortMu.Unlock()
	return s.abortCh
}

// observeAbort merges the session's abort channel into ctx. The
// returned cancel must be called to release the watcher.
func (s *Session) observeAbort(ctx context.Context) (context.Context, context.CancelFunc) {
	actx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-s.abortChan():
			cancel()
		case <-actx.Done():
		}
	}()
	return actx, cancel
}

// finishStep post-processes the result of an abort-observable step. An
// interrupted exchange leaves the chip mid-conversation, so both the
// Abort path and caller cancellation run the resynchronization probe
// before the error is surfaced. ctx is the caller's context, used to
// tell the two apart.
func (s *Session) finishStep(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	probeErr := s.resynchronize()
	if ctxErr := ctx.Err(); ctxErr != nil {
		if probeErr != nil {
			return fmt.Errorf("exchange cancelled: %w (resynchronization failed: %v)", ctxErr, probeErr)
		}
		return fmt.Errorf("exchange cancelled: %w", ctxErr)
	}
	if probeErr != nil {
		return fmt.Errorf("%w (resynchronization failed: %v)", ErrAborted, probeErr)
	}
	return ErrAborted
}

// resynchronize restores the chip to a known-responsive state after an
// exchange was cut short. A self-contained wake-up frame completes
// whatever the chip's parser was waiting on, pending input is dropped,
// and a Diagnose communication line test verifies the echo comes back
// intact. The probe deliberately ignores the abort channel that
// triggered it.
func (s *Session) resynchronize() error {
	wake, err := frame.BuildCommand(cmdDiagnose, diagnoseEchoPayload)
	if err != nil {
		return fmt.Errorf("building wake-up frame: %w", err)
	}
	if err := s.transport.Send(wake, s.ackTimeout); err != nil {
		return fmt.Errorf("sending wake-up frame: %w", err)
	}
	// Whatever reply the wake-up frame does elicit is stale by
	// definition; wait for it to trickle in and drop it.
	if err := s.transport.FlushInput(true); err != nil {
		return fmt.Errorf("flushing after wake-up: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.ackTimeout+2*s.respTimeout)
	defer cancel()
	if err := s.sendCommand(ctx, cmdDiagnose, diagnoseEchoPayload); err != nil {
		return fmt.Errorf("diagnose probe: %w", err)
	}
	echo := make([]byte, len(diagnoseEchoPayload))
	n, err := s.receiveResponse(ctx, echo)
	if err != nil {
		return fmt.Errorf("diagnose probe response: %w", err)
	}
	if n != len(diagnoseEchoPayload) || !bytes.Equal(echo[:n], diagnoseEchoPayload) {
		return fmt.Errorf("%w: diagnose echo mismatch", ErrInvalidResponse)
	}
	return nil
}
