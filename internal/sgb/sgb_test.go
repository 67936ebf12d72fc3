package sgb

import "testing"

// sendByte feeds one packet byte to the controller as 8 serial pulses,
// LSB first, with an idle (both-high) pulse between bits, matching the
// bit-banged P1 protocol Controller.OnJoypadWrite decodes.
func sendByte(c *Controller, b uint8) {
	for i := 0; i < 8; i++ {
		c.OnJoypadWrite(0x30) // idle: both select lines high
		if b&(1<<i) != 0 {
			c.OnJoypadWrite(0x10) // P15 (action) low -> bit 1
		} else {
			c.OnJoypadWrite(0x20) // P14 (direction) low -> bit 0
		}
	}
}

func sendPacket(c *Controller, packet [packetLen]uint8) {
	c.OnJoypadWrite(0x00) // reset pulse: start a new transfer
	c.OnJoypadWrite(0x30) // release back to idle before the first bit
	for _, b := range packet {
		sendByte(c, b)
	}
}

func TestController_PAL01Decode(t *testing.T) {
	c := New()
	var packet [packetLen]uint8
	packet[0] = cmdPAL01 << cmdIDShift
	packet[1], packet[2] = 0x34, 0x12 // color 0 = 0x1234
	packet[3], packet[4] = 0x78, 0x56 // color 1 = 0x5678
	sendPacket(c, packet)

	pal0 := c.Palette(0)
	if pal0[0] != 0x1234 {
		t.Errorf("palette 0 color 0: got 0x%04X, want 0x1234", pal0[0])
	}
	if pal0[1] != 0x5678 {
		t.Errorf("palette 0 color 1: got 0x%04X, want 0x5678", pal0[1])
	}
	// PAL01 loads palette pair a=0, b=1: both slots receive the same four
	// colors, so slot 1 mirrors slot 0.
	pal1 := c.Palette(1)
	if pal1[0] != 0x1234 {
		t.Errorf("palette 1 color 0: got 0x%04X, want 0x1234", pal1[0])
	}
}

func TestController_MaskEn(t *testing.T) {
	c := New()
	if c.MaskModeValue() != MaskNone {
		t.Fatal("new controller should start with no mask")
	}

	var packet [packetLen]uint8
	packet[0] = cmdMASKEN << cmdIDShift
	packet[1] = uint8(MaskBlack)
	sendPacket(c, packet)

	if c.MaskModeValue() != MaskBlack {
		t.Errorf("mask mode: got %d, want MaskBlack", c.MaskModeValue())
	}
}

func TestController_MultiplayerRequest(t *testing.T) {
	c := New()
	var packet [packetLen]uint8
	packet[0] = cmdMLTREQ << cmdIDShift
	packet[1] = 0x03 // four players
	sendPacket(c, packet)

	enabled, players := c.MultiplayerRequest()
	if !enabled || players != 4 {
		t.Errorf("MLT_REQ: got enabled=%v players=%d, want enabled=true players=4", enabled, players)
	}
}

func TestController_ResetPulseAbortsInFlightPacket(t *testing.T) {
	c := New()
	c.OnJoypadWrite(0x00) // reset
	c.OnJoypadWrite(0x30)
	sendByte(c, 0xFF) // partial packet: one byte in

	// A fresh reset pulse should discard the partial packet rather than
	// resuming it.
	c.OnJoypadWrite(0x00)
	if c.bitIndex != 0 {
		t.Errorf("reset pulse should clear bitIndex, got %d", c.bitIndex)
	}
}

func TestController_SnapshotRoundTrip(t *testing.T) {
	c := New()
	var packet [packetLen]uint8
	packet[0] = cmdMASKEN << cmdIDShift
	packet[1] = uint8(MaskColor0)
	sendPacket(c, packet)

	snap := c.Save()

	other := New()
	other.Restore(snap)

	if other.Save() != snap {
		t.Error("Restore(Save()) did not reproduce the original state")
	}
}
