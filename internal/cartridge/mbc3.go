package cartridge

// MBC3 supports up to 2 MiB ROM, 32 KiB RAM, and an optional real-time
// clock (RTC) exposed as five latched registers (seconds, minutes, hours,
// day-low, day-high with carry/halt bits) selected via the RAM-bank
// register's upper range.
//
// Control registers (write-only):
//   - 0x0000-0x1FFF: RAM and timer enable (0x0A enables)
//   - 0x2000-0x3FFF: ROM bank number (7 bits, 0 treated as 1)
//   - 0x4000-0x5FFF: RAM bank number (0-3) or RTC register select (0x08-0x0C)
//   - 0x6000-0x7FFF: latch clock data (0 then 1 copies live clock into latch)
type MBC3 struct {
	header *Header
	rom    []byte
	ram    []byte

	ramEnabled bool
	romBank    uint8
	bankOrRTC  uint8 // 0-3: RAM bank; 0x08-0x0C: RTC register select

	numROMBanks int
	numRAMBanks int

	clock       RTC
	latched     RTC
	latchWrites uint8 // tracks the 0-then-1 write sequence
}

// RTC holds the five MBC3 clock registers.
type RTC struct {
	Seconds  uint8
	Minutes  uint8
	Hours    uint8
	DayLow   uint8
	DayHigh  uint8 // bit 0: day counter bit 8; bit 6: halt; bit 7: day carry
}

func newMBC3(rom []byte, header *Header) (*MBC3, error) {
	cart := &MBC3{
		header:      header,
		rom:         rom,
		romBank:     1,
		numROMBanks: header.GetROMBanks(),
		numRAMBanks: header.GetRAMBanks(),
	}
	if CartridgeType(header.CartridgeType).HasRAM() {
		if ramSize := header.GetRAMSizeBytes(); ramSize > 0 {
			cart.ram = make([]byte, ramSize)
		}
	}
	return cart, nil
}

func (c *MBC3) Read(addr uint16) uint8 {
	switch {
	case addr < 0x4000:
		if int(addr) < len(c.rom) {
			return c.rom[addr]
		}
		return 0xFF
	case addr < 0x8000:
		bank := int(c.romBank)
		if bank >= c.numROMBanks && c.numROMBanks > 0 {
			bank %= c.numROMBanks
		}
		offset := bank*0x4000 + int(addr-0x4000)
		if offset < len(c.rom) {
			return c.rom[offset]
		}
		return 0xFF
	case addr >= 0xA000 && addr < 0xC000:
		if !c.ramEnabled {
			return 0xFF
		}
		if c.bankOrRTC >= 0x08 && c.bankOrRTC <= 0x0C {
			return c.readRTC()
		}
		bank := int(c.bankOrRTC)
		if c.numRAMBanks > 0 {
			bank %= c.numRAMBanks
		}
		offset := bank*0x2000 + int(addr-0xA000)
		if offset < len(c.ram) {
			return c.ram[offset]
		}
		return 0xFF
	default:
		return 0xFF
	}
}

func (c *MBC3) Write(addr uint16, value uint8) {
	switch {
	case addr < 0x2000:
		c.ramEnabled = value&0x0F == 0x0A
	case addr < 0x4000:
		c.romBank = value & 0x7F
		if c.romBank == 0 {
			c.romBank = 1
		}
	case addr < 0x6000:
		c.bankOrRTC = value
	case addr < 0x8000:
		if value == 0 {
			c.latchWrites = 1
		} else if value == 1 && c.latchWrites == 1 {
			c.latched = c.clock
			c.latchWrites = 0
		}
	case addr >= 0xA000 && addr < 0xC000:
		if !c.ramEnabled {
			return
		}
		if c.bankOrRTC >= 0x08 && c.bankOrRTC <= 0x0C {
			c.writeRTC(value)
			return
		}
		bank := int(c.bankOrRTC)
		if c.numRAMBanks > 0 {
			bank %= c.numRAMBanks
		}
		offset := bank*0x2000 + int(addr-0xA000)
		if offset < len(c.ram) {
			c.ram[offset] = value
		}
	}
}

func (c *MBC3) readRTC() uint8 {
	switch c.bankOrRTC {
	case 0x08:
		return c.latched.Seconds
	case 0x09:
		return c.latched.Minutes
	case 0x0A:
		return c.latched.Hours
	case 0x0B:
		return c.latched.DayLow
	case 0x0C:
		return c.latched.DayHigh
	}
	return 0xFF
}

func (c *MBC3) writeRTC(value uint8) {
	switch c.bankOrRTC {
	case 0x08:
		c.clock.Seconds = value
	case 0x09:
		c.clock.Minutes = value
	case 0x0A:
		c.clock.Hours = value
	case 0x0B:
		c.clock.DayLow = value
	case 0x0C:
		c.clock.DayHigh = value
	}
}

// TickRTC advances the live (unlatched) clock by one real second; the core
// does not call this on its own (RTC progresses in real time, not emulated
// dots), but it is exposed for a driver that wants wall-clock RTC fidelity.
func (c *MBC3) TickRTC() {
	if c.clock.DayHigh&0x40 != 0 { // halted
		return
	}
	c.clock.Seconds++
	if c.clock.Seconds < 60 {
		return
	}
	c.clock.Seconds = 0
	c.clock.Minutes++
	if c.clock.Minutes < 60 {
		return
	}
	c.clock.Minutes = 0
	c.clock.Hours++
	if c.clock.Hours < 24 {
		return
	}
	c.clock.Hours = 0
	day := uint16(c.clock.DayLow) | uint16(c.clock.DayHigh&0x01)<<8
	day++
	if day > 0x1FF {
		day = 0
		c.clock.DayHigh |= 0x80 // day counter carry
	}
	c.clock.DayLow = uint8(day)
	c.clock.DayHigh = c.clock.DayHigh&0xFE | uint8(day>>8)
}

func (c *MBC3) Header() *Header { return c.header }

func (c *MBC3) HasBattery() bool { return CartridgeType(c.header.CartridgeType).HasBattery() }

func (c *MBC3) GetRAM() []byte {
	if c.ram == nil {
		return nil
	}
	out := make([]byte, len(c.ram))
	copy(out, c.ram)
	return out
}

func (c *MBC3) SetRAM(data []byte) error {
	if c.ram == nil {
		return nil
	}
	n := len(data)
	if n > len(c.ram) {
		n = len(c.ram)
	}
	copy(c.ram, data[:n])
	return nil
}

// RTCState returns the live and latched clock registers for snapshotting.
func (c *MBC3) RTCState() (live, latched RTC) { return c.clock, c.latched }

// RestoreRTCState replaces the live and latched clock registers.
func (c *MBC3) RestoreRTCState(live, latched RTC) {
	c.clock = live
	c.latched = latched
}

// SaveBanks returns the banking registers plus the live and latched RTC.
func (c *MBC3) SaveBanks() BankState {
	return BankState{
		RAMEnabled:  c.ramEnabled,
		ROMBank:     uint16(c.romBank),
		RAMBank:     c.bankOrRTC,
		RTC:         c.clock,
		RTCLatched:  c.latched,
		LatchWrites: c.latchWrites,
	}
}

// RestoreBanks replaces the banking registers plus the live and latched RTC.
func (c *MBC3) RestoreBanks(s BankState) {
	c.ramEnabled = s.RAMEnabled
	c.romBank = uint8(s.ROMBank)
	c.bankOrRTC = s.RAMBank
	c.clock = s.RTC
	c.latched = s.RTCLatched
	c.latchWrites = s.LatchWrites
}
