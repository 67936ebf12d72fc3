// Package input implements Game Boy joypad input handling.
package input

// Joypad represents the Game Boy joypad state and P1/JOYP register.
type Joypad struct {
	// Selection bits (written by CPU)
	selectAction    bool // P15 (0=select action buttons)
	selectDirection bool // P14 (0=select direction buttons)

	// Button states (true = pressed)
	buttonA      bool
	buttonB      bool
	buttonStart  bool
	buttonSelect bool
	buttonUp     bool
	buttonDown   bool
	buttonLeft   bool
	buttonRight  bool

	// Interrupt callback
	requestInterrupt func(uint8)

	// SGB multi-player override: when set (>0), and both select lines are
	// low, bits 0-3 report the active player index instead of button state.
	sgbPlayerIndex uint8
	sgbMultiplayer bool

	// onWrite observes every P1 write; the SGB protocol bit-bangs its
	// command packets over the select lines, so an SGB collaborator needs
	// to see each raw write, not just the resulting selectAction/
	// selectDirection state.
	onWrite func(uint8)
}

// SetWriteObserver installs a callback invoked with every raw value
// written to P1, before it is decoded into select-line state. Used to
// forward writes to an optional SGB collaborator (spec.md §9); nil by
// default.
func (j *Joypad) SetWriteObserver(fn func(uint8)) {
	j.onWrite = fn
}

// New creates a new Joypad instance.
func New(requestInterrupt func(uint8)) *Joypad {
	return &Joypad{
		selectAction:     true, // Not selected (1)
		selectDirection:  true, // Not selected (1)
		requestInterrupt: requestInterrupt,
	}
}

// Read returns the P1/JOYP register value (0xFF00).
func (j *Joypad) Read() uint8 {
	result := uint8(0xC0) // Upper 2 bits always 1

	// Set selection bits
	if j.selectAction {
		result |= 0x20 // P15
	}
	if j.selectDirection {
		result |= 0x10 // P14
	}

	// SGB multi-player override takes priority over both selections.
	if j.sgbMultiplayer && !j.selectAction && !j.selectDirection {
		return result | (0x0F &^ j.sgbPlayerIndex)
	}

	// Initialize button bits as all released (1)
	buttonBits := uint8(0x0F)

	// If action buttons selected (P15=0)
	if !j.selectAction {
		if j.buttonStart {
			buttonBits &^= 0x08 // Bit 3
		}
		if j.buttonSelect {
			buttonBits &^= 0x04 // Bit 2
		}
		if j.buttonB {
			buttonBits &^= 0x02 // Bit 1
		}
		if j.buttonA {
			buttonBits &^= 0x01 // Bit 0
		}
	}

	// If direction buttons selected (P14=0)
	if !j.selectDirection {
		if j.buttonDown {
			buttonBits &^= 0x08 // Bit 3
		}
		if j.buttonUp {
			buttonBits &^= 0x04 // Bit 2
		}
		if j.buttonLeft {
			buttonBits &^= 0x02 // Bit 1
		}
		if j.buttonRight {
			buttonBits &^= 0x01 // Bit 0
		}
	}

	result |= buttonBits
	return result
}

// Write updates the P1/JOYP register (only bits 4-5 are writable).
func (j *Joypad) Write(value uint8) {
	j.selectAction = (value & 0x20) != 0
	j.selectDirection = (value & 0x10) != 0
	if j.onWrite != nil {
		j.onWrite(value)
	}
}

// SetSGBMultiplayer enables or disables the SGB multi-player select-line
// override and records which player index subsequent reads report.
func (j *Joypad) SetSGBMultiplayer(enabled bool, playerIndex uint8) {
	j.sgbMultiplayer = enabled
	j.sgbPlayerIndex = playerIndex & 0x0F
}

// Snapshot is the serializable state of the joypad.
type Snapshot struct {
	SelectAction    bool
	SelectDirection bool
	ButtonA         bool
	ButtonB         bool
	ButtonStart     bool
	ButtonSelect    bool
	ButtonUp        bool
	ButtonDown      bool
	ButtonLeft      bool
	ButtonRight     bool
}

// Save returns the joypad's snapshot.
func (j *Joypad) Save() Snapshot {
	return Snapshot{
		SelectAction: j.selectAction, SelectDirection: j.selectDirection,
		ButtonA: j.buttonA, ButtonB: j.buttonB, ButtonStart: j.buttonStart, ButtonSelect: j.buttonSelect,
		ButtonUp: j.buttonUp, ButtonDown: j.buttonDown, ButtonLeft: j.buttonLeft, ButtonRight: j.buttonRight,
	}
}

// Restore replaces the joypad's state from a snapshot.
func (j *Joypad) Restore(s Snapshot) {
	j.selectAction = s.SelectAction
	j.selectDirection = s.SelectDirection
	j.buttonA = s.ButtonA
	j.buttonB = s.ButtonB
	j.buttonStart = s.ButtonStart
	j.buttonSelect = s.ButtonSelect
	j.buttonUp = s.ButtonUp
	j.buttonDown = s.ButtonDown
	j.buttonLeft = s.ButtonLeft
	j.buttonRight = s.ButtonRight
}

// PressButton sets a button as pressed and requests joypad interrupt on state change.
// Only triggers interrupt when button transitions from released to pressed.
func (j *Joypad) PressButton(button string) {
	// Check current state before update
	wasPressed := false

	switch button {
	case "A":
		wasPressed = j.buttonA
		j.buttonA = true
	case "B":
		wasPressed = j.buttonB
		j.buttonB = true
	case "Start":
		wasPressed = j.buttonStart
		j.buttonStart = true
	case "Select":
		wasPressed = j.buttonSelect
		j.buttonSelect = true
	case "Up":
		wasPressed = j.buttonUp
		if !j.buttonDown { // Block opposite directions
			j.buttonUp = true
		}
	case "Down":
		wasPressed = j.buttonDown
		if !j.buttonUp { // Block opposite directions
			j.buttonDown = true
		}
	case "Left":
		wasPressed = j.buttonLeft
		if !j.buttonRight { // Block opposite directions
			j.buttonLeft = true
		}
	case "Right":
		wasPressed = j.buttonRight
		if !j.buttonLeft { // Block opposite directions
			j.buttonRight = true
		}
	}

	// Only request interrupt on state transition (released -> pressed)
	if !wasPressed && j.requestInterrupt != nil {
		j.requestInterrupt(4)
	}
}

// ReleaseButton sets a button as released.
func (j *Joypad) ReleaseButton(button string) {
	switch button {
	case "A":
		j.buttonA = false
	case "B":
		j.buttonB = false
	case "Start":
		j.buttonStart = false
	case "Select":
		j.buttonSelect = false
	case "Up":
		j.buttonUp = false
	case "Down":
		j.buttonDown = false
	case "Left":
		j.buttonLeft = false
	case "Right":
		j.buttonRight = false
	}
}
