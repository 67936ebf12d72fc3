package cartridge

import "testing"

func makeROM(cartType byte, romSizeCode byte, ramSizeCode byte, banks int) []byte {
	rom := make([]byte, banks*0x4000)
	rom[0x0147] = cartType
	rom[0x0148] = romSizeCode
	rom[0x0149] = ramSizeCode
	checksum := byte(0)
	for addr := 0x0134; addr <= 0x014C; addr++ {
		checksum = checksum - rom[addr] - 1
	}
	rom[0x014D] = checksum
	// Fill bank N's first byte with N so bank switches are observable.
	for b := 0; b < banks; b++ {
		rom[b*0x4000] = byte(b)
	}
	return rom
}

func TestMBC2BankSwitchAndBuiltinRAM(t *testing.T) {
	rom := makeROM(byte(TypeMBC2Battery), 0x01, 0x00, 4)
	cart, err := New(rom)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	cart.Write(0x2100, 0x02) // select bank 2 (bit 8 of address set)
	if got := cart.Read(0x4000); got != 2 {
		t.Fatalf("bank switch: got %d, want 2", got)
	}
	cart.Write(0x0000, 0x0A) // enable RAM (bit 8 clear)
	cart.Write(0xA000, 0xAB)
	if got := cart.Read(0xA000); got != 0xFB { // low nibble stored, high nibble is 1s
		t.Fatalf("MBC2 RAM nibble = 0x%02X, want 0x0FB masked", got)
	}
}

func TestMBC3RTCLatchAndReadback(t *testing.T) {
	rom := makeROM(byte(TypeMBC3TimerRAMBattery), 0x01, 0x02, 4)
	c, err := newMBC3(rom, &Header{CartridgeType: byte(TypeMBC3TimerRAMBattery), ROMSize: 0x01, RAMSize: 0x02})
	if err != nil {
		t.Fatalf("newMBC3: %v", err)
	}
	c.ramEnabled = true
	c.clock.Hours = 5
	c.bankOrRTC = 0x08
	c.Write(0x6000, 0x00)
	c.Write(0x6000, 0x01) // latch
	c.bankOrRTC = 0x0A
	if got := c.Read(0xA000); got != 5 {
		t.Fatalf("latched hours = %d, want 5", got)
	}
}

func TestMBC5BankZeroIsAddressable(t *testing.T) {
	rom := makeROM(byte(TypeMBC5), 0x02, 0x00, 8)
	cart, err := New(rom)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	cart.Write(0x2000, 0x00) // MBC5 allows bank 0 unlike MBC1/3
	if got := cart.Read(0x4000); got != 0 {
		t.Fatalf("bank 0 byte = %d, want 0", got)
	}
	cart.Write(0x2000, 0x05)
	if got := cart.Read(0x4000); got != 5 {
		t.Fatalf("bank 5 byte = %d, want 5", got)
	}
}
