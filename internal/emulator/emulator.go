// Package emulator provides the main emulator runner that ties together
// the CPU scheduler, system bus, and cartridge components.
package emulator

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/richardwooding/nostalgiza/internal/apu"
	"github.com/richardwooding/nostalgiza/internal/bus"
	"github.com/richardwooding/nostalgiza/internal/cpu"
	"github.com/richardwooding/nostalgiza/internal/input"
	"github.com/richardwooding/nostalgiza/internal/interrupt"
	"github.com/richardwooding/nostalgiza/internal/ppu"
	"github.com/richardwooding/nostalgiza/internal/serial"
	"github.com/richardwooding/nostalgiza/internal/sgb"
	"github.com/richardwooding/nostalgiza/internal/timer"
)

const (
	// dotsPerIteration is the number of dots to run between serial output checks.
	dotsPerIteration = 40000

	// maxSerialBufferSize limits serial output buffer to prevent unbounded growth.
	maxSerialBufferSize = 64 * 1024 // 64 KiB

	// initialSerialBufferCapacity is the initial capacity for the serial output buffer.
	initialSerialBufferCapacity = 1024

	// stableOutputDuration is how long to wait with no new output before considering it stable.
	stableOutputDuration = 3 * time.Second
)

var (
	// ErrTimeout indicates the operation timed out.
	ErrTimeout = errors.New("timeout waiting for serial output")

	// Test ROM completion markers.
	passedBytes = []byte("Passed")
	failedBytes = []byte("Failed")
)

// Emulator represents a Game Boy emulator instance, driven dot-by-dot
// through the CPU scheduler so the PPU, timer, and DMA all observe bus
// activity at the same granularity real hardware does.
type Emulator struct {
	Scheduler *cpu.Scheduler
	Bus       *bus.Bus
	PPU       *ppu.PPU
	APU       *apu.APU
	Timer     *timer.Timer
	Serial    *serial.Port
	Joypad    *input.Joypad
	Interrupt *interrupt.Controller

	// SGB is always present but inert: a ROM with no SGB support never
	// sends it a valid packet, so it never deviates from its zero value.
	// spec.md §9 scopes the core's job to forwarding joypad writes and
	// completed frames to it and otherwise ignoring it entirely.
	SGB *sgb.Controller

	serialOutput []byte
}

// New creates a new emulator instance with the given ROM data.
func New(romData []byte) (*Emulator, error) {
	e := &Emulator{
		serialOutput: make([]byte, 0, initialSerialBufferCapacity),
	}

	e.Interrupt = interrupt.New()
	e.PPU = ppu.New(e.Interrupt.Request)
	e.APU = apu.New()
	e.Timer = timer.New(
		func() { e.Interrupt.Request(interrupt.Timer) },
		e.onSequencerEdge,
		e.onSerialEdge,
	)
	e.Serial = serial.New(func() { e.Interrupt.Request(interrupt.Serial) })
	e.Joypad = input.New(e.Interrupt.Request)
	e.SGB = sgb.New()
	e.Joypad.SetWriteObserver(e.onJoypadWrite)
	e.PPU.SetFrameCallback(e.SGB.OnFrameComplete)

	b := bus.New()
	b.SetPPU(e.PPU)
	b.SetAudio(e.APU)
	b.SetTimer(e.Timer)
	b.SetSerial(e.Serial)
	b.SetJoypad(e.Joypad)
	b.SetInterrupt(e.Interrupt)
	if err := b.LoadROM(romData); err != nil {
		return nil, fmt.Errorf("failed to load ROM: %w", err)
	}
	e.Bus = b

	e.Scheduler = cpu.NewScheduler(b)

	return e, nil
}

// onSequencerEdge is the timer's 512 Hz frame-sequencer callback, driving
// the APU's length/sweep/envelope clocking at the same rate hardware does.
func (e *Emulator) onSequencerEdge() {
	e.APU.ClockFrameSequencer()
}

// onSerialEdge is the timer's internal-clock falling-edge callback, driving
// the serial port's bit-shift when it is acting as the transfer master.
func (e *Emulator) onSerialEdge() {
	e.Serial.OnFallingEdge()
}

// onJoypadWrite forwards every P1 write to the SGB collaborator and syncs
// its MLT_REQ decode back into the joypad's multi-player override.
func (e *Emulator) onJoypadWrite(value uint8) {
	e.SGB.OnJoypadWrite(value)
	enabled, _ := e.SGB.MultiplayerRequest()
	e.Joypad.SetSGBMultiplayer(enabled, 0)
}

// Step executes one CPU instruction (dot-accurately ticking the PPU, timer,
// and DMA as it goes) and returns the number of T-cycles taken.
func (e *Emulator) Step() uint8 {
	cycles := e.Scheduler.Step()
	e.APU.Advance(uint16(cycles))
	e.handleSerialOutput()
	return cycles
}

// RunCycles runs the emulator for at least the given number of T-cycles.
func (e *Emulator) RunCycles(cycles uint64) {
	target := e.Scheduler.CPU().Cycles + cycles
	for e.Scheduler.CPU().Cycles < target {
		e.Step()
	}
}

// RunUntilOutput runs the emulator until serial output appears or timeout is reached.
// This is useful for test ROMs that output results via serial port.
// Returns the serial output and any error.
func (e *Emulator) RunUntilOutput(timeout time.Duration) (string, error) {
	absoluteDeadline := time.Now().Add(timeout)
	lastOutputLen := 0
	lastOutputTime := time.Now()

	for {
		if time.Now().After(absoluteDeadline) {
			if len(e.serialOutput) > 0 {
				return string(e.serialOutput), nil
			}
			return "", ErrTimeout
		}

		e.RunCycles(dotsPerIteration)

		if len(e.serialOutput) > lastOutputLen {
			lastOutputLen = len(e.serialOutput)
			lastOutputTime = time.Now()

			if bytes.Contains(e.serialOutput, passedBytes) || bytes.Contains(e.serialOutput, failedBytes) {
				return string(e.serialOutput), nil
			}
		}

		if len(e.serialOutput) > 0 && time.Since(lastOutputTime) > stableOutputDuration {
			return string(e.serialOutput), nil
		}
	}
}

// handleSerialOutput drains the serial port's completed-transfer output, if
// any, into the accumulated buffer blargg-style test ROMs read back.
func (e *Emulator) handleSerialOutput() {
	out := e.Serial.Output()
	if len(out) == 0 {
		return
	}
	room := maxSerialBufferSize - len(e.serialOutput)
	if room <= 0 {
		return
	}
	if len(out) > room {
		out = out[:room]
	}
	e.serialOutput = append(e.serialOutput, out...)
}

// GetSerialOutput returns the accumulated serial output.
func (e *Emulator) GetSerialOutput() string {
	return string(e.serialOutput)
}

// Reset resets the emulator to its post-boot-ROM state.
func (e *Emulator) Reset() {
	e.Bus.Reset()
	e.Scheduler = cpu.NewScheduler(e.Bus)
	e.serialOutput = make([]byte, 0, initialSerialBufferCapacity)
}
