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

// tamascan is a command-line scanner for TAMA protocol readers: it
// finds a reader on a serial port, initializes it and reports the
// contactless targets it sees.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tama "github.com/ZaparooProject/go-tama"
	"github.com/ZaparooProject/go-tama/detection"
	"github.com/ZaparooProject/go-tama/transport/uart"
)

type config struct {
	devicePath string
	modulation string
	logFile    string
	interval   time.Duration
	list       bool
	once       bool
	selfTest   bool
	debug      bool
}

// Package-level flag variables
var (
	flagDevicePath string
	flagModulation string
	flagLogFile    string
	flagInterval   time.Duration
	flagList       bool
	flagOnce       bool
	flagSelfTest   bool
	flagDebug      bool
)

func init() {
	flag.StringVar(&flagDevicePath, "device", "", "Serial port path (auto-detect if empty)")
	flag.StringVar(&flagModulation, "type", "a", "Modulation to poll: a (ISO14443A) or b (ISO14443B)")
	flag.StringVar(&flagLogFile, "log", "", "Write a full session log to this file")
	flag.DurationVar(&flagInterval, "interval", 250*time.Millisecond, "Pause between detection polls")
	flag.BoolVar(&flagList, "list", false, "List candidate serial ports and exit")
	flag.BoolVar(&flagOnce, "once", false, "Exit after the first detected target")
	flag.BoolVar(&flagSelfTest, "selftest", false, "Run the reader's diagnostics and exit")
	flag.BoolVar(&flagDebug, "debug", false, "Enable debug output")
}

func parseConfig() *config {
	cfg := &config{
		devicePath: flagDevicePath,
		modulation: flagModulation,
		logFile:    flagLogFile,
		interval:   flagInterval,
		list:       flagList,
		once:       flagOnce,
		selfTest:   flagSelfTest,
		debug:      flagDebug,
	}
	if cfg.debug {
		tama.SetDebugEnabled(true)
	}
	return cfg
}

func parseModulation(s string) (tama.Modulation, error) {
	switch s {
	case "a", "A":
		return tama.ModulationISO14443A, nil
	case "b", "B":
		return tama.ModulationISO14443B, nil
	default:
		return 0, fmt.Errorf("unknown modulation %q (want a or b)", s)
	}
}

func listPorts(ctx context.Context) error {
	ports, err := detection.Candidates(ctx, detection.DefaultOptions())
	if err != nil {
		return fmt.Errorf("listing serial ports: %w", err)
	}
	if len(ports) == 0 {
		_, _ = fmt.Println("No candidate serial ports found.")
		return nil
	}
	for _, p := range ports {
		line := p.Path
		if p.VIDPID != "" {
			line += "  [" + p.VIDPID + "]"
		}
		if p.Product != "" {
			line += "  " + p.Product
		}
		_, _ = fmt.Println(line)
	}
	return nil
}

func connect(ctx context.Context, cfg *config) (*tama.Device, error) {
	opts := []tama.ConnectOption{
		tama.WithTransportFactory(func(path string) (tama.Transport, error) {
			return uart.Open(path)
		}),
	}
	if cfg.devicePath != "" {
		opts = append(opts, tama.WithPort(cfg.devicePath))
	} else if cfg.debug {
		_, _ = fmt.Println("Auto-detecting reader port...")
	}

	device, err := tama.Connect(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to reader: %w", err)
	}

	if fw := device.Firmware(); fw != nil {
		_, _ = fmt.Printf("Reader on %s, firmware %s\n", device.Transport().Port(), fw)
	}
	return device, nil
}

func runSelfTest(ctx context.Context, device *tama.Device) error {
	tests := []struct {
		run  func(context.Context) error
		name string
	}{
		{device.CommunicationTest, "communication line"},
		{device.ROMTest, "ROM checksum"},
		{device.RAMTest, "RAM"},
	}
	for _, test := range tests {
		if err := test.run(ctx); err != nil {
			_, _ = fmt.Printf("%s test: FAIL (%v)\n", test.name, err)
			return fmt.Errorf("%s test: %w", test.name, err)
		}
		_, _ = fmt.Printf("%s test: OK\n", test.name)
	}

	status, err := device.GeneralStatus(ctx)
	if err != nil {
		return fmt.Errorf("general status: %w", err)
	}
	_, _ = fmt.Printf("Last RF error: %#02x, external field: %v, targets: %d\n",
		status.LastError, status.FieldPresent, len(status.Targets))
	return nil
}

func printTarget(target tama.Target) {
	_, _ = fmt.Printf("Target: %s\n", target)

	if a, ok := target.(*tama.ISO14443ATarget); ok {
		_, _ = fmt.Printf("  UID size class: %s, layer 4: %v\n", a.UIDSize, a.ISO14443Layer4)
		if a.RandomUID {
			_, _ = fmt.Println("  UID is randomized per activation")
		}
		if family := a.CardFamily(); family != tama.CardFamilyUnknown {
			_, _ = fmt.Printf("  Card family: %s\n", family)
		}
		if a.ATSInfo != nil {
			_, _ = fmt.Printf("  ATS: max frame %d bytes, FWT %v\n",
				a.ATSInfo.MaxFrameSize, a.ATSInfo.FWT)
		}
	}
	if b, ok := target.(*tama.ISO14443BTarget); ok {
		_, _ = fmt.Printf("  Max frame %d bytes, FWT %v, layer 4: %v\n",
			b.MaxFrameSize, b.FWT, b.ISO14443Layer4)
	}
}

func runScan(ctx context.Context, device *tama.Device, cfg *config) error {
	mod, err := parseModulation(cfg.modulation)
	if err != nil {
		return err
	}

	_, _ = fmt.Printf("Polling for %s targets. Press Ctrl+C to stop...\n", mod)

	for {
		target, err := device.WaitForTarget(ctx, mod, cfg.interval)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			return fmt.Errorf("waiting for target: %w", err)
		}

		printTarget(target)
		if cfg.once {
			return nil
		}

		// Release so the same card can be seen again after removal.
		if err := device.Release(ctx); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Release failed: %v\n", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.interval):
		}
	}
}

func run(ctx context.Context, cfg *config) error {
	if cfg.list {
		return listPorts(ctx)
	}

	if cfg.logFile != "" {
		path, err := tama.InitSessionLogAt(cfg.logFile)
		if err != nil {
			return fmt.Errorf("opening session log: %w", err)
		}
		defer func() {
			if err := tama.CloseSessionLog(); err != nil {
				_, _ = fmt.Fprintf(os.Stderr, "Failed to close session log: %v\n", err)
			}
		}()
		if cfg.debug {
			_, _ = fmt.Printf("Session log: %s\n", path)
		}
	}

	device, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := device.Close(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Failed to close device: %v\n", err)
		}
	}()

	if cfg.selfTest {
		return runSelfTest(ctx, device)
	}
	return runScan(ctx, device, cfg)
}

func main() {
	flag.Parse()
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	cfg := parseConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		_, _ = fmt.Print("\nShutting down...\n")
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		if errors.Is(err, context.Canceled) {
			return 0
		}
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
