package snapshot_test

import (
	"reflect"
	"testing"

	"github.com/richardwooding/nostalgiza/internal/emulator"
	"github.com/richardwooding/nostalgiza/internal/snapshot"
)

// minimalROM builds a bare ROM-only cartridge image large enough to pass
// header parsing (0x0150 bytes minimum) and the ROM-size check (0x8000
// for ROM size code 0x00, two banks).
func minimalROM() []byte {
	rom := make([]byte, 0x8000)
	rom[0x0147] = 0x00 // ROM ONLY
	rom[0x0148] = 0x00 // 32 KiB, no banking
	rom[0x0149] = 0x00 // no RAM
	checksum := byte(0)
	for addr := 0x0134; addr <= 0x014C; addr++ {
		checksum = checksum - rom[addr] - 1
	}
	rom[0x014D] = checksum
	return rom
}

func TestSnapshotRoundTrip(t *testing.T) {
	emu, err := emulator.New(minimalROM())
	if err != nil {
		t.Fatalf("emulator.New: %v", err)
	}

	// Run a handful of instructions so CPU/PPU/timer state diverges from
	// the power-on zero value before snapshotting.
	for i := 0; i < 1000; i++ {
		emu.Step()
	}

	snap := snapshot.Capture(emu)

	other, err := emulator.New(minimalROM())
	if err != nil {
		t.Fatalf("emulator.New: %v", err)
	}
	if err := snapshot.Restore(other, snap); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	if got := snapshot.Capture(other); !reflect.DeepEqual(got, snap) {
		t.Error("Restore(Capture()) did not reproduce the original snapshot")
	}
}

func TestSnapshotEncodeDecodeRoundTrip(t *testing.T) {
	emu, err := emulator.New(minimalROM())
	if err != nil {
		t.Fatalf("emulator.New: %v", err)
	}
	for i := 0; i < 500; i++ {
		emu.Step()
	}

	snap := snapshot.Capture(emu)

	blob, err := snapshot.Encode(snap)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := snapshot.Decode(blob)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if !reflect.DeepEqual(decoded, snap) {
		t.Error("Decode(Encode(s)) did not reproduce the original snapshot")
	}
}
