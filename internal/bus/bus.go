// Package bus implements the Game Boy's two physical buses (external and
// VRAM), OAM DMA, and the CPU-visible address space built on top of them.
package bus

import (
	"errors"
	"fmt"

	"github.com/richardwooding/nostalgiza/internal/cartridge"
	"github.com/richardwooding/nostalgiza/internal/interrupt"
	"github.com/richardwooding/nostalgiza/internal/serial"
	"github.com/richardwooding/nostalgiza/internal/timer"
)

// Line identifies which physical bus an address belongs to. OAM, I/O
// registers, and HRAM are internal to the CPU and sit on neither bus.
type Line int

const (
	None Line = iota
	External
	VRAM
)

// Classify reports which physical bus an address is wired to.
func Classify(addr uint16) Line {
	switch {
	case addr < 0x8000: // cartridge ROM
		return External
	case addr < 0xA000: // VRAM
		return VRAM
	case addr < 0xFE00: // cartridge RAM, WRAM, echo
		return External
	default: // OAM, unusable, I/O, HRAM, IE
		return None
	}
}

// externalLatchDecayMCycles is the number of M-cycles the external bus
// latch survives without a fresh drive before reverting to 0xFF.
const externalLatchDecayMCycles = 12

// PPU is the subset of the pixel pipeline the bus arbiter drives.
//
// VRAM and OAM accessors report whether the access actually reached
// memory (false if the PPU's current mode gates it off); gated accesses
// must not update the bus latch. NotifyOAMBusTouch tells the PPU that an
// OAM-range address appeared on the CPU bus, which is the trigger for
// OAM corruption during Mode 2.
type PPU interface {
	ReadVRAM(addr uint16) (value uint8, ok bool)
	WriteVRAM(addr uint16, value uint8) (ok bool)
	ReadOAM(addr uint16) (value uint8, ok bool)
	WriteOAM(addr uint16, value uint8) (ok bool)
	// DMAWriteOAM writes OAM unconditionally, bypassing mode gating; the
	// DMA controller owns OAM exclusively for the duration of a transfer.
	DMAWriteOAM(addr uint16, value uint8)
	// NotifyOAMBusTouch reports an OAM-range address on the CPU bus (read
	// or write); it is the trigger for OAM corruption during Mode 2.
	NotifyOAMBusTouch(addr uint16, isWrite bool)
	ReadRegister(addr uint16) uint8
	WriteRegister(addr uint16, value uint8)
	// TickDot advances the pixel pipeline by one dot.
	TickDot()
}

// Audio is the subset of register space the APU owns (0xFF10-0xFF3F).
type Audio interface {
	ReadRegister(addr uint16) uint8
	WriteRegister(addr uint16, value uint8)
}

// Joypad handles the P1 register (0xFF00).
type Joypad interface {
	Read() uint8
	Write(value uint8)
}

// Bus is the Game Boy's full CPU-visible address space: the external and
// VRAM physical buses (with latch retention/decay), OAM DMA, and the
// CPU-internal regions (OAM, I/O, HRAM, IE) that sit on neither bus.
type Bus struct {
	cartridge cartridge.Cartridge
	ppu       PPU
	audio     Audio
	joypad    Joypad
	timer     *timer.Timer
	interrupt *interrupt.Controller
	serial    *serial.Port

	wram [0x2000]uint8 // C000-DFFF
	io   [0x80]uint8   // FF00-FF7F catch-all for registers without a dedicated owner
	hram [0x7F]uint8   // FF80-FFFE

	externalLatch uint8
	externalDecay uint8 // M-cycles remaining before the external latch reverts to 0xFF
	vramLatch     uint8

	dma dmaState

	dotCounter uint8 // 0-3 within the current M-cycle, for DMA/latch-decay pacing
}

type dmaState struct {
	active    bool
	sourceBus Line
	base      uint16
	index     uint16 // next byte offset into OAM, 0..159
	startup   uint8  // M-cycles of startup window remaining
}

// New creates a bus with both latches at their post-power-on value.
func New() *Bus {
	return &Bus{externalLatch: 0xFF, vramLatch: 0xFF}
}

func (b *Bus) SetCartridge(cart cartridge.Cartridge) { b.cartridge = cart }
func (b *Bus) SetPPU(ppu PPU)                        { b.ppu = ppu }
func (b *Bus) SetAudio(a Audio)                      { b.audio = a }
func (b *Bus) SetJoypad(j Joypad)                    { b.joypad = j }
func (b *Bus) SetTimer(t *timer.Timer)               { b.timer = t }
func (b *Bus) SetInterrupt(c *interrupt.Controller)  { b.interrupt = c }
func (b *Bus) SetSerial(s *serial.Port)              { b.serial = s }

// GetCartridge returns the currently loaded cartridge.
func (b *Bus) GetCartridge() cartridge.Cartridge { return b.cartridge }

// InterruptPending reports whether any enabled interrupt is requested,
// without consuming a bus cycle - used for HALT wake-up polling, which
// happens continuously rather than on M-cycle boundaries.
func (b *Bus) InterruptPending() bool {
	if b.interrupt == nil {
		return false
	}
	return b.interrupt.Pending()
}

// InterruptTriggered returns the highest-priority pending+enabled interrupt,
// without consuming a bus cycle or clearing it.
func (b *Bus) InterruptTriggered() (bit uint8, ok bool) {
	if b.interrupt == nil {
		return 0, false
	}
	return b.interrupt.Triggered()
}

// AcknowledgeInterrupt clears a single interrupt's IF bit.
func (b *Bus) AcknowledgeInterrupt(bit uint8) {
	if b.interrupt != nil {
		b.interrupt.Acknowledge(bit)
	}
}

// ErrROMLoadFailed indicates ROM loading failed.
var ErrROMLoadFailed = errors.New("ROM loading failed")

// LoadROM creates a cartridge from ROM data and attaches it to the bus.
func (b *Bus) LoadROM(rom []byte) error {
	cart, err := cartridge.New(rom)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrROMLoadFailed, err)
	}
	b.cartridge = cart
	return nil
}

// Cartridge returns the attached cartridge, for snapshotting or save-RAM
// access outside the dot-accurate bus path.
func (b *Bus) Cartridge() cartridge.Cartridge { return b.cartridge }

// NotifyOAMBusTouch forwards an OAM-bus-visibility event to the PPU for an
// M-cycle that performed no ordinary Read/Write (16-bit INC/DEC, PUSH,
// CALL, JR, RST, interrupt dispatch) - the cpu.Scheduler's InternalOamBug
// hook calls this directly, bypassing the CPU-visible address space.
func (b *Bus) NotifyOAMBusTouch(addr uint16, isWrite bool) {
	if b.ppu != nil {
		b.ppu.NotifyOAMBusTouch(addr, isWrite)
	}
}

// Read performs one CPU M-cycle address-bus read.
func (b *Bus) Read(addr uint16) uint8 {
	if addr >= 0xFE00 && addr <= 0xFE9F && b.ppu != nil {
		b.ppu.NotifyOAMBusTouch(addr, false)
	}

	if b.dma.active && b.dma.startup == 0 {
		if addr >= 0xFE00 && addr <= 0xFE9F {
			return 0xFF
		}
		if Classify(addr) == b.dma.sourceBus {
			return b.latchFor(b.dma.sourceBus)
		}
	}

	switch {
	case addr < 0x8000, addr >= 0xA000 && addr < 0xC000:
		return b.readExternal(addr, b.cartridgeRead(addr))
	case addr < 0xA000:
		return b.readVRAM(addr - 0x8000)
	case addr < 0xD000:
		return b.readExternal(addr, b.wram[addr-0xC000])
	case addr < 0xE000:
		return b.readExternal(addr, b.wram[addr-0xC000])
	case addr < 0xFE00:
		return b.readExternal(addr, b.wram[addr-0xE000])
	case addr < 0xFEA0:
		return b.readOAM(addr - 0xFE00)
	case addr < 0xFF00:
		return 0xFF
	case addr < 0xFF80:
		return b.readIO(addr)
	case addr < 0xFFFF:
		return b.hram[addr-0xFF80]
	default: // 0xFFFF
		if b.interrupt != nil {
			return b.interrupt.ReadIE()
		}
		return 0xFF
	}
}

// Write performs one CPU M-cycle address-bus write.
func (b *Bus) Write(addr uint16, value uint8) {
	if addr >= 0xFE00 && addr <= 0xFE9F && b.ppu != nil {
		b.ppu.NotifyOAMBusTouch(addr, true)
	}

	if b.dma.active && b.dma.startup == 0 {
		if addr >= 0xFE00 && addr <= 0xFE9F {
			return
		}
		if Classify(addr) == b.dma.sourceBus {
			return
		}
	}

	switch {
	case addr < 0x8000, addr >= 0xA000 && addr < 0xC000:
		b.cartridgeWrite(addr, value)
		b.writeExternal(addr, value)
	case addr < 0xA000:
		b.writeVRAM(addr-0x8000, value)
	case addr < 0xD000:
		b.wram[addr-0xC000] = value
		b.writeExternal(addr, value)
	case addr < 0xE000:
		b.wram[addr-0xC000] = value
		b.writeExternal(addr, value)
	case addr < 0xFE00:
		b.wram[addr-0xE000] = value
		b.writeExternal(addr, value)
	case addr < 0xFEA0:
		b.writeOAM(addr-0xFE00, value)
	case addr < 0xFF00:
		// unusable, writes ignored
	case addr < 0xFF80:
		b.writeIO(addr, value)
	case addr < 0xFFFF:
		b.hram[addr-0xFF80] = value
	default: // 0xFFFF
		if b.interrupt != nil {
			b.interrupt.WriteIE(value)
		}
	}
}

func (b *Bus) cartridgeRead(addr uint16) uint8 {
	if b.cartridge == nil {
		return 0xFF
	}
	return b.cartridge.Read(addr)
}

func (b *Bus) cartridgeWrite(addr uint16, value uint8) {
	if b.cartridge != nil {
		b.cartridge.Write(addr, value)
	}
}

func (b *Bus) readExternal(addr uint16, value uint8) uint8 {
	b.externalLatch = value
	b.externalDecay = externalLatchDecayMCycles
	return value
}

func (b *Bus) writeExternal(addr uint16, value uint8) {
	b.externalLatch = value
	b.externalDecay = externalLatchDecayMCycles
}

func (b *Bus) readVRAM(addr uint16) uint8 {
	if b.ppu == nil {
		return 0xFF
	}
	value, ok := b.ppu.ReadVRAM(addr)
	if ok {
		b.vramLatch = value
		return value
	}
	return 0xFF
}

func (b *Bus) writeVRAM(addr uint16, value uint8) {
	if b.ppu == nil {
		return
	}
	if b.ppu.WriteVRAM(addr, value) {
		b.vramLatch = value
	}
}

func (b *Bus) readOAM(addr uint16) uint8 {
	if b.ppu == nil {
		return 0xFF
	}
	value, ok := b.ppu.ReadOAM(addr)
	if !ok {
		return 0xFF
	}
	return value
}

func (b *Bus) writeOAM(addr uint16, value uint8) {
	if b.ppu != nil {
		b.ppu.WriteOAM(addr, value)
	}
}

func (b *Bus) latchFor(line Line) uint8 {
	switch line {
	case External:
		return b.externalLatch
	case VRAM:
		return b.vramLatch
	default:
		return 0xFF
	}
}

// readIO reads an I/O register (0xFF00-0xFF7F).
func (b *Bus) readIO(addr uint16) uint8 {
	offset := addr - 0xFF00
	switch {
	case addr == 0xFF00:
		if b.joypad != nil {
			return b.joypad.Read()
		}
		return 0xFF
	case addr == 0xFF01:
		if b.serial != nil {
			return b.serial.ReadSB()
		}
		return 0xFF
	case addr == 0xFF02:
		if b.serial != nil {
			return b.serial.ReadSC()
		}
		return 0xFF
	case addr == 0xFF04, addr == 0xFF05, addr == 0xFF06, addr == 0xFF07:
		if b.timer != nil {
			return b.timer.Read(addr)
		}
		return b.io[offset]
	case addr == 0xFF0F:
		if b.interrupt != nil {
			return b.interrupt.ReadIF()
		}
		return b.io[offset]
	case addr >= 0xFF10 && addr <= 0xFF3F:
		if b.audio != nil {
			return b.audio.ReadRegister(addr)
		}
		return b.io[offset]
	case addr >= 0xFF40 && addr <= 0xFF4B && addr != 0xFF46:
		if b.ppu != nil {
			return b.ppu.ReadRegister(addr)
		}
		return 0xFF
	case addr == 0xFF46:
		return b.io[offset]
	default:
		return b.io[offset]
	}
}

// writeIO writes an I/O register (0xFF00-0xFF7F).
func (b *Bus) writeIO(addr uint16, value uint8) {
	offset := addr - 0xFF00
	switch {
	case addr == 0xFF00:
		if b.joypad != nil {
			b.joypad.Write(value)
		}
	case addr == 0xFF01:
		if b.serial != nil {
			b.serial.WriteSB(value)
		}
	case addr == 0xFF02:
		if b.serial != nil {
			b.serial.WriteSC(value)
		}
	case addr == 0xFF04, addr == 0xFF05, addr == 0xFF06, addr == 0xFF07:
		if b.timer != nil {
			b.timer.Write(addr, value)
		} else {
			b.io[offset] = value
		}
	case addr == 0xFF0F:
		if b.interrupt != nil {
			b.interrupt.WriteIF(value)
		} else {
			b.io[offset] = value
		}
	case addr >= 0xFF10 && addr <= 0xFF3F:
		if b.audio != nil {
			b.audio.WriteRegister(addr, value)
		} else {
			b.io[offset] = value
		}
	case addr >= 0xFF40 && addr <= 0xFF4B && addr != 0xFF46:
		if b.ppu != nil {
			b.ppu.WriteRegister(addr, value)
		}
	case addr == 0xFF46:
		b.startDMA(value)
		b.io[offset] = value
	default:
		b.io[offset] = value
	}
}

// startDMA initiates (or re-triggers) an OAM DMA transfer from src*0x100.
// Restarting while already active re-enters the 2-M-cycle startup window.
func (b *Bus) startDMA(src uint8) {
	base := uint16(src) << 8
	b.dma = dmaState{
		active:    true,
		sourceBus: Classify(base),
		base:      base,
		index:     0,
		startup:   2,
	}
}

// TickDMA advances an active DMA transfer by one M-cycle; it is a no-op
// when DMA is inactive. Call once per M-cycle from the top-level loop.
func (b *Bus) TickDMA() {
	if !b.dma.active {
		return
	}
	if b.dma.startup > 0 {
		b.dma.startup--
		return
	}

	srcAddr := b.dma.base + b.dma.index
	value := b.dmaRead(srcAddr)
	if b.ppu != nil {
		b.ppu.DMAWriteOAM(b.dma.index, value)
	}

	b.dma.index++
	if b.dma.index >= 160 {
		b.dma = dmaState{}
	}
}

// dmaRead reads a DMA source byte, bypassing the CPU conflict rules that
// apply to b.Read, and updates the corresponding bus latch. Addresses
// outside the external/VRAM buses (OAM, I/O, HRAM, unmapped) remap to
// the WRAM echo range, mirroring what the real DMA controller sees.
func (b *Bus) dmaRead(addr uint16) uint8 {
	switch Classify(addr) {
	case External:
		var value uint8
		if addr < 0x8000 || (addr >= 0xA000 && addr < 0xC000) {
			value = b.cartridgeRead(addr)
		} else if addr < 0xE000 {
			value = b.wram[addr-0xC000]
		} else {
			value = b.wram[addr-0xE000]
		}
		b.externalLatch = value
		b.externalDecay = externalLatchDecayMCycles
		return value
	case VRAM:
		if b.ppu == nil {
			return 0xFF
		}
		value, ok := b.ppu.ReadVRAM(addr - 0x8000)
		if ok {
			b.vramLatch = value
		}
		return value
	default:
		value := b.wram[addr&0x1FFF]
		b.externalLatch = value
		b.externalDecay = externalLatchDecayMCycles
		return value
	}
}

// DMAActive reports whether an OAM DMA transfer is currently running.
func (b *Bus) DMAActive() bool { return b.dma.active }

// TickLatchDecay advances the external-bus latch decay counter by one
// M-cycle; call once per M-cycle regardless of DMA or CPU activity.
func (b *Bus) TickLatchDecay() {
	if b.externalDecay == 0 {
		b.externalLatch = 0xFF
		return
	}
	b.externalDecay--
	if b.externalDecay == 0 {
		b.externalLatch = 0xFF
	}
}

// TickDot advances every dot-driven subsystem the bus owns by one dot: the
// pixel pipeline and the timer every dot, and the DMA transfer and latch
// decay once per M-cycle (every fourth dot). It satisfies cpu.Bus so a *Bus can
// drive a cpu.Scheduler directly.
func (b *Bus) TickDot() {
	if b.ppu != nil {
		b.ppu.TickDot()
	}
	if b.timer != nil {
		b.timer.TickDot()
	}
	b.dotCounter++
	if b.dotCounter < 4 {
		return
	}
	b.dotCounter = 0
	if b.dma.active {
		b.TickDMA()
	}
	b.TickLatchDecay()
}

// Reset clears all RAM and registers while keeping the cartridge loaded.
// Cartridge RAM is untouched as it may be battery-backed.
func (b *Bus) Reset() {
	clear(b.wram[:])
	clear(b.io[:])
	clear(b.hram[:])
	b.externalLatch = 0xFF
	b.externalDecay = 0
	b.vramLatch = 0xFF
	b.dma = dmaState{}
}

// Snapshot is the byte-accurate, restorable state of the bus proper (not
// including the cartridge, PPU, timer, interrupt controller, serial port,
// or joypad, which snapshot themselves).
type Snapshot struct {
	WRAM          [0x2000]uint8
	IO            [0x80]uint8
	HRAM          [0x7F]uint8
	ExternalLatch uint8
	ExternalDecay uint8
	VRAMLatch     uint8
	DMAActive     bool
	DMASourceBus  Line
	DMABase       uint16
	DMAIndex      uint16
	DMAStartup    uint8
}

func (b *Bus) Save() Snapshot {
	s := Snapshot{
		IO:            b.io,
		HRAM:          b.hram,
		ExternalLatch: b.externalLatch,
		ExternalDecay: b.externalDecay,
		VRAMLatch:     b.vramLatch,
		DMAActive:     b.dma.active,
		DMASourceBus:  b.dma.sourceBus,
		DMABase:       b.dma.base,
		DMAIndex:      b.dma.index,
		DMAStartup:    b.dma.startup,
	}
	s.WRAM = b.wram
	return s
}

func (b *Bus) Restore(s Snapshot) {
	b.wram = s.WRAM
	b.io = s.IO
	b.hram = s.HRAM
	b.externalLatch = s.ExternalLatch
	b.externalDecay = s.ExternalDecay
	b.vramLatch = s.VRAMLatch
	b.dma = dmaState{
		active:    s.DMAActive,
		sourceBus: s.DMASourceBus,
		base:      s.DMABase,
		index:     s.DMAIndex,
		startup:   s.DMAStartup,
	}
}
