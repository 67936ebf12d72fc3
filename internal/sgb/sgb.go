// Package sgb implements the Super Game Boy side channel: a command
// protocol bit-banged over joypad (P1) writes, carrying palette and mask
// overlays that a border/colorization layer applies on top of the DMG
// core's monochrome framebuffer.
//
// Per spec.md §9, the core forwards every joypad write and every
// completed frame to this package and otherwise ignores it entirely —
// a ROM with no SGB support runs unmodified if the Controller is never
// attached.
package sgb

import "github.com/richardwooding/nostalgiza/internal/ppu"

// Collaborator is the seam Emulator drives: every joypad write and every
// completed PPU frame is forwarded to it. A nil Collaborator means "no
// SGB hardware is present" and the core behaves exactly as a plain DMG.
type Collaborator interface {
	OnJoypadWrite(value uint8)
	OnFrameComplete(framebuffer *[ppu.ScreenWidth * ppu.ScreenHeight]uint8)
}

// MaskMode mirrors the SGB's MASK_EN command: what the border/overlay
// layer should show in place of the live framebuffer while, e.g., a
// palette transfer is in flight.
type MaskMode uint8

const (
	MaskNone MaskMode = iota
	MaskFreeze
	MaskBlack
	MaskColor0
)

// packetLen is the fixed SGB packet size: 16 bytes, LSB-first, one bit
// per P1 write pulse.
const packetLen = 16

// Controller decodes the SGB command protocol and holds the palette and
// mask-mode state a border/colorization renderer would consult. It does
// not render anything itself — spec.md scopes "SGB command dispatch and
// border rendering" as an external collaborator's concern, with the
// core's job limited to the `read`/`write`/`ram()` port plus forwarding
// these two event streams.
type Controller struct {
	// Bit-banged packet assembly. Real SGB hardware reads a reset pulse
	// (both select lines low together) as "start a new transfer", then
	// one bit per subsequent single-line-low pulse: P14 low = 0, P15
	// low = 1. This is a simplification of the real multi-packet,
	// CRC-less transfer state machine — sufficient to decode the single-
	// packet commands this Controller understands (spec.md §9 scopes SGB
	// to "an optional collaborator", not byte-for-byte protocol fidelity).
	prevSelectAction    bool
	prevSelectDirection bool
	receiving           bool
	bitIndex            uint8 // 0..127 across the whole packet
	packet              [packetLen]uint8

	// Decoded state.
	palettes [4][4]uint16 // 4 user palettes (PAL01/PAL23/PAL11/PAL_SET), RGB555
	maskMode MaskMode

	// MultiplayerRequest, once decoded from MLT_REQ, is surfaced so the
	// emulator can wire it into input.Joypad.SetSGBMultiplayer; the
	// Controller itself has no joypad reference.
	multiplayerEnabled bool
	multiplayerPlayers uint8
}

// New creates an SGB controller with no palette overlay and no mask
// applied — equivalent to the SGB border/palette layer being inert.
func New() *Controller {
	return &Controller{}
}

// OnJoypadWrite decodes one P1 write as a bit (or reset pulse) of the SGB
// packet transfer protocol.
func (c *Controller) OnJoypadWrite(value uint8) {
	selectAction := value&0x20 != 0    // P15
	selectDirection := value&0x10 != 0 // P14

	switch {
	case !selectAction && !selectDirection:
		// Reset pulse: both lines driven low together starts a fresh
		// packet (or aborts one in progress).
		c.receiving = true
		c.bitIndex = 0
		c.packet = [packetLen]uint8{}
	case c.receiving && !selectDirection && selectAction && c.prevSelectDirection != selectDirection:
		c.pushBit(0)
	case c.receiving && !selectAction && selectDirection && c.prevSelectAction != selectAction:
		c.pushBit(1)
	case selectAction && selectDirection:
		// Both released: idle between pulses, no bit to record.
	}

	c.prevSelectAction = selectAction
	c.prevSelectDirection = selectDirection
}

// pushBit records one protocol bit and, once a full packet has arrived,
// decodes it.
func (c *Controller) pushBit(bit uint8) {
	if c.bitIndex >= packetLen*8 {
		return
	}
	byteIdx := c.bitIndex / 8
	bitPos := c.bitIndex % 8
	if bit != 0 {
		c.packet[byteIdx] |= 1 << bitPos
	}
	c.bitIndex++

	if c.bitIndex == packetLen*8 {
		c.decodePacket()
		c.receiving = false
	}
}

// SGB command IDs this Controller understands; the rest are accepted
// (the packet is still consumed so the bit stream stays in sync) but
// leave no observable state change.
const (
	cmdPAL01   = 0x00
	cmdPAL23   = 0x01
	cmdPAL11   = 0x02
	cmdMLTREQ  = 0x11
	cmdMASKEN  = 0x17
	cmdIDShift = 3
)

func (c *Controller) decodePacket() {
	cmd := c.packet[0] >> cmdIDShift

	switch cmd {
	case cmdPAL01:
		c.loadPalettePair(0, 1)
	case cmdPAL23:
		c.loadPalettePair(2, 3)
	case cmdPAL11:
		c.loadPalettePair(1, 1)
	case cmdMLTREQ:
		// Bits 0-1 of byte 1: 0 = one player, 3 = four players.
		switch c.packet[1] & 0x03 {
		case 0:
			c.multiplayerEnabled = false
			c.multiplayerPlayers = 1
		case 3:
			c.multiplayerEnabled = true
			c.multiplayerPlayers = 4
		default:
			c.multiplayerEnabled = true
			c.multiplayerPlayers = 2
		}
	case cmdMASKEN:
		c.maskMode = MaskMode(c.packet[1] & 0x03)
	}
}

// loadPalettePair decodes four RGB555 colors into palette slot a (shared
// by both a and b on PAL11) and, when b != a, into slot b as well, per
// the PAL01/PAL23/PAL11 packet layout: four little-endian color words
// starting at byte 1.
func (c *Controller) loadPalettePair(a, b int) {
	var colors [4]uint16
	for i := 0; i < 4; i++ {
		lo := uint16(c.packet[1+i*2])
		hi := uint16(c.packet[2+i*2])
		colors[i] = lo | hi<<8
	}
	c.palettes[a] = colors
	if b != a {
		c.palettes[b] = colors
	}
}

// OnFrameComplete is called once per completed PPU frame. The Controller
// itself does no rendering; it only needs frame boundaries to know when
// a MaskColor0/MaskBlack overlay should be considered "for one frame"
// versus held (mask state itself is tracked in maskMode, set by MASK_EN).
func (c *Controller) OnFrameComplete(*[ppu.ScreenWidth * ppu.ScreenHeight]uint8) {}

// Palette returns one of the four decoded SGB palettes (index 0-3), each
// four RGB555 colors.
func (c *Controller) Palette(index int) [4]uint16 { return c.palettes[index] }

// MaskModeValue returns the current mask-overlay mode set by MASK_EN.
func (c *Controller) MaskModeValue() MaskMode { return c.maskMode }

// MultiplayerRequest returns the decoded MLT_REQ state: whether
// multi-player polling is enabled and how many players are selected.
func (c *Controller) MultiplayerRequest() (enabled bool, players uint8) {
	return c.multiplayerEnabled, c.multiplayerPlayers
}

// Snapshot is the serializable state of the SGB controller.
type Snapshot struct {
	Palettes           [4][4]uint16
	MaskMode            MaskMode
	MultiplayerEnabled  bool
	MultiplayerPlayers  uint8
}

// Save returns the controller's snapshot. In-flight packet assembly state
// is not carried: a snapshot taken mid-transfer resumes as if the
// transfer had been aborted, matching how a reset pulse behaves.
func (c *Controller) Save() Snapshot {
	return Snapshot{
		Palettes: c.palettes, MaskMode: c.maskMode,
		MultiplayerEnabled: c.multiplayerEnabled, MultiplayerPlayers: c.multiplayerPlayers,
	}
}

// Restore replaces the controller's state from a snapshot.
func (c *Controller) Restore(s Snapshot) {
	c.palettes = s.Palettes
	c.maskMode = s.MaskMode
	c.multiplayerEnabled = s.MultiplayerEnabled
	c.multiplayerPlayers = s.MultiplayerPlayers
	c.receiving = false
	c.bitIndex = 0
	c.packet = [packetLen]uint8{}
}
