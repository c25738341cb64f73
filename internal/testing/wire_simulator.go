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

// Package testing provides test utilities including a wire-level reader
// simulator.
//
// VirtualReader implements io.ReadWriter and emulates the chip end of a
// TAMA serial link at the frame protocol level: it parses host command
// frames, answers with an ACK followed by a response frame whose command
// code is the request code plus one, and can inject the wire faults the
// session state machine has to survive.
package testing

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ZaparooProject/go-tama/internal/frame"
	"github.com/ZaparooProject/go-tama/internal/syncutil"
	"github.com/ZaparooProject/go-tama/pkg/iso14443"
)

// TAMA instruction codes the simulator answers.
const (
	cmdDiagnose            = 0x00
	cmdGetFirmwareVersion  = 0x02
	cmdGetGeneralStatus    = 0x04
	cmdSAMConfiguration    = 0x14
	cmdRFConfiguration     = 0x32
	cmdInListPassiveTarget = 0x4A
	cmdInRelease           = 0x52
)

// Diagnose test numbers.
const (
	diagnoseCommLineTest = 0x00
	diagnoseROMTest      = 0x01
	diagnoseRAMTest      = 0x02
)

// Modulation selectors for InListPassiveTarget.
const (
	brTypeA106 = 0x00
	brTypeB106 = 0x03
)

// sakISO14443Layer4 marks targets that answer SELECT with an ATS.
const sakISO14443Layer4 = 0x20

// VirtualTarget is a card the simulator presents to detection commands.
// Type A targets carry ATQA/SAK/UID/ATS; Type B targets carry the ATQB
// fields. A target with Present false stays invisible until flipped.
type VirtualTarget struct {
	UID          []byte
	ATS          []byte
	ATQA         [2]byte
	PUPI         [4]byte
	AppData      [4]byte
	ProtocolInfo [3]byte
	SAK          byte
	TypeB        bool
	Present      bool
}

// NewTypeATarget builds a present Type A target.
func NewTypeATarget(atqa [2]byte, sak byte, uid, ats []byte) *VirtualTarget {
	return &VirtualTarget{
		ATQA:    atqa,
		SAK:     sak,
		UID:     append([]byte(nil), uid...),
		ATS:     append([]byte(nil), ats...),
		Present: true,
	}
}

// NewTypeBTarget builds a present Type B target.
func NewTypeBTarget(pupi, appData [4]byte, protocolInfo [3]byte) *VirtualTarget {
	return &VirtualTarget{
		PUPI:         pupi,
		AppData:      appData,
		ProtocolInfo: protocolInfo,
		TypeB:        true,
		Present:      true,
	}
}

// VirtualReader simulates the reader chip at the wire protocol level.
// Bytes written by the host are parsed as frames; response bytes
// accumulate in an output buffer the host reads back. All methods are
// safe for concurrent use.
type VirtualReader struct {
	lastResponse []byte
	garbage      []byte
	targets      []*VirtualTarget
	rxBuffer     bytes.Buffer
	txBuffer     bytes.Buffer
	mu           syncutil.Mutex

	firmwareIC      byte
	firmwareVer     byte
	firmwareRev     byte
	firmwareSupport byte

	samConfigured bool
	released      bool

	dropNextACK       bool
	rejectNextFrame   bool
	failNextCommand   bool
	extendNextFrame   bool
	corruptNextDCS    bool
	corruptNextLCS    bool
	skewNextCode      bool
	silenceNextFrame  bool
	swallowEverything bool
}

// NewVirtualReader creates a simulator reporting itself as a PN532 v1.6
// with A/B/ISO18092 support, the most common chip behind TAMA serial
// readers.
func NewVirtualReader() *VirtualReader {
	return &VirtualReader{
		firmwareIC:      0x32,
		firmwareVer:     0x01,
		firmwareRev:     0x06,
		firmwareSupport: 0x07,
	}
}

// Write implements io.Writer: it accepts host bytes and processes every
// complete frame found in them.
func (v *VirtualReader) Write(data []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.rxBuffer.Write(data)
	v.processReceived()
	return len(data), nil
}

// Read implements io.Reader: it returns pending response bytes, or
// (0, nil) when nothing is queued, like a serial port read timeout.
func (v *VirtualReader) Read(buf []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.txBuffer.Len() == 0 {
		return 0, nil
	}
	n, err := v.txBuffer.Read(buf)
	if err != nil {
		return n, fmt.Errorf("reading simulator output: %w", err)
	}
	return n, nil
}

// PendingOutput reports how many response bytes the host has not read.
func (v *VirtualReader) PendingOutput() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.txBuffer.Len()
}

// DiscardOutput drops all queued response bytes, mirroring a transport
// input flush.
func (v *VirtualReader) DiscardOutput() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.txBuffer.Reset()
}

// AddTarget places a target in the simulated field.
func (v *VirtualReader) AddTarget(t *VirtualTarget) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.targets = append(v.targets, t)
}

// SetTarget replaces all targets with the given one.
func (v *VirtualReader) SetTarget(t *VirtualTarget) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.targets = []*VirtualTarget{t}
}

// RemoveAllTargets empties the simulated field.
func (v *VirtualReader) RemoveAllTargets() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.targets = nil
}

// SetFirmwareVersion overrides the GetFirmwareVersion answer.
func (v *VirtualReader) SetFirmwareVersion(ic, ver, rev, support byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.firmwareIC = ic
	v.firmwareVer = ver
	v.firmwareRev = rev
	v.firmwareSupport = support
}

// SAMConfigured reports whether a SAMConfiguration command was accepted.
func (v *VirtualReader) SAMConfigured() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.samConfigured
}

// Released reports whether an InRelease command was accepted.
func (v *VirtualReader) Released() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.released
}

// Fault injection. Each flag fires once, on the next affected frame.

// DropNextACK suppresses the ACK for the next command.
func (v *VirtualReader) DropNextACK() { v.setFlag(&v.dropNextACK) }

// RejectNextFrame answers the next command with the reader's ASCII
// error status instead of an ACK.
func (v *VirtualReader) RejectNextFrame() { v.setFlag(&v.rejectNextFrame) }

// FailNextCommand ACKs the next command but answers with the fixed
// application error frame.
func (v *VirtualReader) FailNextCommand() { v.setFlag(&v.failNextCommand) }

// ExtendNextFrame makes the next response carry the extended-frame
// length marker, which the host codec must reject.
func (v *VirtualReader) ExtendNextFrame() { v.setFlag(&v.extendNextFrame) }

// CorruptNextDCS flips bits in the next response's data checksum.
func (v *VirtualReader) CorruptNextDCS() { v.setFlag(&v.corruptNextDCS) }

// CorruptNextLCS flips bits in the next response's length checksum.
func (v *VirtualReader) CorruptNextLCS() { v.setFlag(&v.corruptNextLCS) }

// SkewNextResponseCode makes the next response carry the wrong command
// code, simulating a desynchronized chip.
func (v *VirtualReader) SkewNextResponseCode() { v.setFlag(&v.skewNextCode) }

// SilenceNextResponse ACKs the next command but never sends the
// response frame, leaving the host blocked. Used by abort tests.
func (v *VirtualReader) SilenceNextResponse() { v.setFlag(&v.silenceNextFrame) }

// SwallowEverything makes the simulator consume commands without any
// answer at all, not even an ACK, until cleared with Unswallow.
func (v *VirtualReader) SwallowEverything() { v.setFlag(&v.swallowEverything) }

// Unswallow restores normal answering after SwallowEverything.
func (v *VirtualReader) Unswallow() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.swallowEverything = false
}

// GarbageBeforeNextFrame queues bytes the host will read before the
// next response frame's preamble.
func (v *VirtualReader) GarbageBeforeNextFrame(garbage []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.garbage = append([]byte(nil), garbage...)
}

func (v *VirtualReader) setFlag(flag *bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	*flag = true
}

// Reset clears buffers, state and pending fault injections. Targets and
// firmware identity survive a reset, like a chip power cycle.
func (v *VirtualReader) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rxBuffer.Reset()
	v.txBuffer.Reset()
	v.lastResponse = nil
	v.garbage = nil
	v.samConfigured = false
	v.released = false
	v.dropNextACK = false
	v.rejectNextFrame = false
	v.failNextCommand = false
	v.extendNextFrame = false
	v.corruptNextDCS = false
	v.corruptNextLCS = false
	v.skewNextCode = false
	v.silenceNextFrame = false
	v.swallowEverything = false
}

var errIncompleteFrame = errors.New("incomplete frame")

// processReceived consumes complete frames from the receive buffer.
func (v *VirtualReader) processReceived() {
	for {
		data := v.rxBuffer.Bytes()
		if len(data) < frame.AckSize {
			return
		}

		// Host-side ACK/NACK frames are flow control, not commands.
		if bytes.HasPrefix(data, frame.AckFrame) {
			v.rxBuffer.Next(frame.AckSize)
			continue
		}
		if bytes.HasPrefix(data, frame.NackFrame) {
			v.rxBuffer.Next(frame.AckSize)
			if v.lastResponse != nil {
				v.txBuffer.Write(v.lastResponse)
			}
			continue
		}

		start := bytes.Index(data, frame.StartSequence[1:])
		if start < 0 {
			// No start code anywhere; drop the noise.
			v.rxBuffer.Reset()
			return
		}
		if start > 0 {
			v.rxBuffer.Next(start)
			data = v.rxBuffer.Bytes()
		}

		body, consumed, err := v.parseFrame(data)
		if errors.Is(err, errIncompleteFrame) {
			return
		}
		if err != nil {
			// Malformed frame; skip one byte and rescan.
			v.rxBuffer.Next(1)
			continue
		}

		v.rxBuffer.Next(consumed)
		v.dispatch(body)
	}
}

// parseFrame validates one normal frame starting at the 00 FF start
// code and returns its TFI+command+payload body.
func (v *VirtualReader) parseFrame(data []byte) (body []byte, consumed int, err error) {
	if len(data) < frame.AckSize {
		return nil, 0, errIncompleteFrame
	}
	if data[0] != frame.StartCode1 || data[1] != frame.StartCode2 {
		return nil, 0, errors.New("missing start code")
	}

	length, lcs := data[2], data[3]
	if length == frame.ExtendedLen && lcs == frame.ExtendedLCS {
		return nil, 0, errors.New("extended frames not simulated")
	}
	if length+lcs != 0 {
		return nil, 0, errors.New("length checksum mismatch")
	}

	total := 2 + 2 + int(length) + 2 // start, LEN+LCS, body, DCS+postamble
	if len(data) < total {
		return nil, 0, errIncompleteFrame
	}

	body = data[4 : 4+int(length)]
	if len(body) < 2 {
		return nil, 0, errors.New("frame body too short")
	}
	if body[0] != frame.HostToChip {
		return nil, 0, fmt.Errorf("unexpected TFI %#02x", body[0])
	}

	dcs := data[4+int(length)]
	if want := frame.DataChecksum(body[0], body[1], body[2:]); dcs != want {
		return nil, 0, errors.New("data checksum mismatch")
	}

	return body, total, nil
}

// dispatch ACKs a validated command and queues its response.
func (v *VirtualReader) dispatch(body []byte) {
	if v.swallowEverything {
		return
	}

	cmd, params := body[1], body[2:]

	switch {
	case v.rejectNextFrame:
		v.rejectNextFrame = false
		v.txBuffer.Write(frame.ReaderErrorFrame)
		return
	case v.dropNextACK:
		v.dropNextACK = false
	default:
		v.txBuffer.Write(frame.AckFrame)
	}

	if v.silenceNextFrame {
		v.silenceNextFrame = false
		return
	}
	if v.failNextCommand {
		v.failNextCommand = false
		v.sendAppError()
		return
	}

	var payload []byte
	switch cmd {
	case cmdDiagnose:
		payload = v.handleDiagnose(params)
	case cmdGetFirmwareVersion:
		payload = []byte{v.firmwareIC, v.firmwareVer, v.firmwareRev, v.firmwareSupport}
	case cmdGetGeneralStatus:
		payload = v.handleGeneralStatus()
	case cmdSAMConfiguration:
		if len(params) < 1 {
			v.sendAppError()
			return
		}
		v.samConfigured = true
		payload = nil
	case cmdRFConfiguration:
		payload = nil
	case cmdInListPassiveTarget:
		var err error
		payload, err = v.handleInListPassiveTarget(params)
		if err != nil {
			v.sendAppError()
			return
		}
	case cmdInRelease:
		v.released = true
		payload = []byte{0x00}
	default:
		v.sendAppError()
		return
	}

	v.sendResponse(cmd, payload)
}

// sendResponse frames a payload as the answer to cmd and applies any
// pending corruption.
func (v *VirtualReader) sendResponse(cmd byte, payload []byte) {
	respCode := cmd + 1
	if v.skewNextCode {
		v.skewNextCode = false
		respCode++
	}

	frm, err := frame.BuildResponse(respCode, payload)
	if err != nil {
		v.sendAppError()
		return
	}

	if v.corruptNextDCS {
		v.corruptNextDCS = false
		frm[len(frm)-2] ^= 0xFF
	}
	if v.corruptNextLCS {
		v.corruptNextLCS = false
		frm[4] ^= 0xFF
	}
	if v.extendNextFrame {
		v.extendNextFrame = false
		frm[3] = frame.ExtendedLen
		frm[4] = frame.ExtendedLCS
	}
	if v.garbage != nil {
		v.txBuffer.Write(v.garbage)
		v.garbage = nil
	}

	v.lastResponse = frm
	v.txBuffer.Write(frm)
}

// sendAppError queues the fixed application error frame: a length-1
// frame carrying the error TFI.
func (v *VirtualReader) sendAppError() {
	frm := []byte{
		frame.Preamble, frame.StartCode1, frame.StartCode2,
		frame.AppErrorLen, frame.AppErrorLCS,
		frame.ErrorTFI,
		^byte(frame.ErrorTFI) + 1,
		frame.Postamble,
	}
	v.lastResponse = frm
	v.txBuffer.Write(frm)
}

func (v *VirtualReader) handleDiagnose(params []byte) []byte {
	if len(params) == 0 {
		return nil
	}
	switch params[0] {
	case diagnoseCommLineTest:
		// The chip echoes the whole payload, test number included.
		return append([]byte(nil), params...)
	case diagnoseROMTest, diagnoseRAMTest:
		return []byte{0x00}
	default:
		return nil
	}
}

func (v *VirtualReader) handleGeneralStatus() []byte {
	status := []byte{
		0x00, // last error
		0x00, // no external field
		byte(v.presentTargetCount()),
	}
	slot := byte(1)
	for _, t := range v.targets {
		if !t.Present {
			continue
		}
		mod := byte(0x00)
		if t.TypeB {
			mod = 0x03
		}
		status = append(status, slot, 0x00, 0x00, mod)
		slot++
	}
	return append(status, 0x00) // trailing SAM status byte
}

func (v *VirtualReader) presentTargetCount() int {
	n := 0
	for _, t := range v.targets {
		if t.Present {
			n++
		}
	}
	return n
}

// handleInListPassiveTarget answers a detection command with activation
// records for matching present targets.
func (v *VirtualReader) handleInListPassiveTarget(params []byte) ([]byte, error) {
	if len(params) < 2 {
		return nil, errors.New("missing MaxTg/BrTy")
	}
	maxTg, brTy := params[0], params[1]
	if maxTg == 0 || maxTg > 2 {
		return nil, errors.New("invalid MaxTg")
	}

	var initiator []byte
	switch brTy {
	case brTypeA106:
		initiator = params[2:]
	case brTypeB106:
		if len(params) < 3 {
			return nil, errors.New("missing AFI")
		}
		initiator = params[3:]
	default:
		return nil, errors.New("unsupported BrTy")
	}

	var records []byte
	count := byte(0)
	slot := byte(1)
	for _, t := range v.targets {
		if !t.Present || count >= maxTg {
			continue
		}
		if t.TypeB != (brTy == brTypeB106) {
			continue
		}
		if brTy == brTypeA106 && !matchesUIDSelection(t, initiator) {
			continue
		}
		records = append(records, v.activationRecord(slot, t)...)
		count++
		slot++
	}

	return append([]byte{count}, records...), nil
}

// matchesUIDSelection checks a Type A target against the cascade-coded
// UID in the initiator data. Empty initiator data matches everything.
func matchesUIDSelection(t *VirtualTarget, initiator []byte) bool {
	if len(initiator) == 0 {
		return true
	}
	cascaded, err := iso14443.CascadeUID(t.UID)
	if err != nil {
		return false
	}
	return bytes.Equal(cascaded, initiator)
}

// activationRecord builds the per-target data of the detection answer.
func (v *VirtualReader) activationRecord(slot byte, t *VirtualTarget) []byte {
	if t.TypeB {
		// Tg, ATQB (0x50 + PUPI + AppData + ProtocolInfo), ATTRIB_RES
		// with length prefix. The ATTRIB_RES content is a negotiation
		// echo the host discards, a single status byte will do.
		rec := []byte{slot, 0x50}
		rec = append(rec, t.PUPI[:]...)
		rec = append(rec, t.AppData[:]...)
		rec = append(rec, t.ProtocolInfo[:]...)
		return append(rec, 0x01, 0x00)
	}

	// Tg, SENS_RES, SEL_RES, UID length, UID, then the ATS with its
	// self-counting TL byte for ISO14443-4 targets.
	rec := []byte{slot, t.ATQA[0], t.ATQA[1], t.SAK, byte(len(t.UID))}
	rec = append(rec, t.UID...)
	if t.SAK&sakISO14443Layer4 != 0 && len(t.ATS) > 0 {
		rec = append(rec, byte(len(t.ATS)+1))
		rec = append(rec, t.ATS...)
	}
	return rec
}
