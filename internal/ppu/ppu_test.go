package ppu

import "testing"

func tickN(p *PPU, n int) {
	for i := 0; i < n; i++ {
		p.TickDot()
	}
}

func TestPPUInitialization(t *testing.T) {
	p := New(nil)
	if p.lcdc != 0x91 {
		t.Errorf("LCDC = 0x%02X, want 0x91", p.lcdc)
	}
	if p.mode != ModeOAMScan {
		t.Errorf("initial mode = %d, want OAM scan", p.mode)
	}
	if p.dot != 0 {
		t.Errorf("initial dot = %d, want 0", p.dot)
	}
}

func TestModeTransitionsThroughOneScanline(t *testing.T) {
	p := New(nil)
	tickN(p, DotsOAMScan)
	if p.mode != ModeDrawing {
		t.Fatalf("after %d dots, mode = %d, want Drawing", DotsOAMScan, p.mode)
	}
	// Mode 3 is variable-length; tick generously until HBlank starts.
	for i := 0; i < 400 && p.mode == ModeDrawing; i++ {
		p.TickDot()
	}
	if p.mode != ModeHBlank {
		t.Fatalf("mode after drawing = %d, want HBlank", p.mode)
	}
	for p.dot != 0 {
		p.TickDot()
	}
	if p.ly != 1 {
		t.Fatalf("LY after first scanline = %d, want 1", p.ly)
	}
	if p.mode != ModeOAMScan {
		t.Fatalf("mode at start of line 1 = %d, want OAM scan", p.mode)
	}
}

func TestVBlankEntryFiresInterrupt(t *testing.T) {
	var fired []uint8
	p := New(func(bit uint8) { fired = append(fired, bit) })
	// The request is made while processing dot 0 of line 144, one dot
	// after the mode switches to VBlank.
	for i := 0; i < DotsPerScanline*ScanlinesVisible+1; i++ {
		p.TickDot()
	}
	if p.mode != ModeVBlank {
		t.Fatalf("mode at line %d = %d, want VBlank", ScanlinesVisible, p.mode)
	}
	found := false
	for _, b := range fired {
		if b == InterruptVBlank {
			found = true
		}
	}
	if !found {
		t.Fatal("VBlank interrupt was not requested")
	}
}

func TestFullFrameReturnsToLine0(t *testing.T) {
	p := New(nil)
	tickN(p, DotsPerFrame)
	if p.ly != 0 {
		t.Fatalf("LY after one frame = %d, want 0", p.ly)
	}
	if p.mode != ModeOAMScan {
		t.Fatalf("mode after one frame = %d, want OAM scan", p.mode)
	}
}

func TestOAMGatedDuringScanAndDrawing(t *testing.T) {
	p := New(nil)
	if _, ok := p.ReadOAM(0); ok {
		t.Fatal("OAM read should be gated during Mode 2")
	}
	tickN(p, DotsOAMScan)
	if _, ok := p.ReadOAM(0); ok {
		t.Fatal("OAM read should be gated during Mode 3")
	}
}

func TestOAMWriteReleasesBeforeRead(t *testing.T) {
	p := New(nil)
	tickN(p, oamWriteGateDot)
	if ok := p.WriteOAM(0, 0x12); !ok {
		t.Fatal("OAM write should release at dot 76, still in Mode 2")
	}
	if _, ok := p.ReadOAM(0); ok {
		t.Fatal("OAM read should still be gated at dot 76")
	}
}

func TestVRAMGatedDuringDrawing(t *testing.T) {
	p := New(nil)
	tickN(p, DotsOAMScan)
	if p.mode != ModeDrawing {
		t.Fatal("expected Mode 3")
	}
	if ok := p.WriteVRAM(0, 0xFF); ok {
		t.Fatal("VRAM write should be gated during Mode 3")
	}
}

func TestLYCFlagSetOnMatch(t *testing.T) {
	p := New(nil)
	p.lyc = 0
	p.updateLYCFlag()
	if p.stat&STATLYCFlag == 0 {
		t.Fatal("LYC flag should be set when LY == LYC")
	}
}

func TestOAMScanPopulatesSpriteStoreSortedByX(t *testing.T) {
	p := New(nil)
	// Sprite 0: X=50, Y on-screen for line 0.
	p.oam[0], p.oam[1], p.oam[2], p.oam[3] = 16, 58, 1, 0
	// Sprite 1: X=30, also visible on line 0.
	p.oam[4], p.oam[5], p.oam[6], p.oam[7] = 16, 38, 2, 0
	tickN(p, DotsOAMScan)
	if len(p.spriteStore) != 2 {
		t.Fatalf("sprite store len = %d, want 2", len(p.spriteStore))
	}
	if p.spriteStore[0].x > p.spriteStore[1].x {
		t.Fatal("sprite store not sorted by ascending X")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	p := New(nil)
	p.vram[0] = 0xAB
	p.WriteRegister(0xFF42, 7)
	tickN(p, 10)
	snap := p.Save()

	p2 := New(nil)
	p2.Restore(snap)
	if p2.vram[0] != 0xAB {
		t.Fatal("VRAM not restored")
	}
	if p2.scy != 7 {
		t.Fatal("SCY not restored")
	}
	if p2.dot != p.dot {
		t.Fatal("dot position not restored")
	}
}

func TestCorruptOAMSimpleReadRow(t *testing.T) {
	p := New(nil)
	// Populate rows 0x00, 0x08, 0x0C with distinguishable words.
	p.setRowWord(0x00, 0x1234)
	p.setRowWord(0x08, 0xFFFF)
	p.setRowWord(0x0C, 0x0F0F)
	p.oamScanIndex = 2 // scannerOAMAddr = 8 -> r = (8/8+1)*8 = 16 = 0x10... adjust below
	// Force a row offset that lands on the 0x08 simple-read case: r=0x08
	// requires scannerOAMAddr in [-4,3], i.e. oamScanIndex 0.
	p.oamScanIndex = 0
	p.mode = ModeOAMScan
	p.NotifyOAMBusTouch(0xFE00, false)
	// Just verify it runs without panicking and leaves OAM in-bounds.
	if len(p.oam) != OAMSize {
		t.Fatal("OAM size changed unexpectedly")
	}
	// Row 0x08 takes the glitch merge of itself (0xFFFF), the row before
	// it (0x1234) and the word two back (row 0x04, zero): 0x1234.
	if got := p.rowWord(0x08); got != 0x1234 {
		t.Fatalf("row 0x08 after read corruption = 0x%04X, want 0x1234", got)
	}
}
