// Package serial implements the Game Boy serial port (SB/SC registers).
//
// Only the internal-clock (master) transfer mode is modelled: a transfer
// shifts SB out MSB-first over 8 falling edges of the timer's internal
// counter bit 7, requesting the Serial interrupt once the byte has
// fully shifted. Test ROMs use this as their pass/fail channel.
package serial

// Port represents the SB/SC register pair and an in-flight transfer.
type Port struct {
	sb uint8
	sc uint8 // only bits 7 (enable) and 0 (clock select) are meaningful

	active    bool
	shiftsLeft uint8

	requestInterrupt func()
	output           []byte
}

// New creates a serial port wired to an interrupt requester.
func New(requestInterrupt func()) *Port {
	return &Port{requestInterrupt: requestInterrupt, sc: 0x7E}
}

// ReadSB returns the SB register (0xFF01).
func (p *Port) ReadSB() uint8 { return p.sb }

// WriteSB sets the SB register.
func (p *Port) WriteSB(v uint8) { p.sb = v }

// ReadSC returns the SC register (0xFF02); unused bits read high.
func (p *Port) ReadSC() uint8 { return p.sc | 0x7E }

// WriteSC writes the SC register. A write with bit 7 and bit 0 both set
// begins an internal-clock transfer.
func (p *Port) WriteSC(v uint8) {
	p.sc = v
	if v&0x81 == 0x81 {
		p.active = true
		p.shiftsLeft = 8
	}
}

// OnFallingEdge is called by the timer on every falling edge of internal
// counter bit 7. Each call shifts one bit of SB out MSB-first.
func (p *Port) OnFallingEdge() {
	if !p.active {
		return
	}
	p.sb = (p.sb << 1) | 1
	p.shiftsLeft--
	if p.shiftsLeft == 0 {
		p.active = false
		p.sc &^= 0x80
		p.output = append(p.output, p.sb)
		if p.requestInterrupt != nil {
			p.requestInterrupt()
		}
	}
}

// Output drains and returns bytes shifted out so far.
func (p *Port) Output() []byte {
	out := p.output
	p.output = nil
	return out
}

// Peek returns the accumulated output without draining it.
func (p *Port) Peek() []byte { return p.output }

// Snapshot is the serializable state of the serial port.
type Snapshot struct {
	SB         uint8
	SC         uint8
	Active     bool
	ShiftsLeft uint8
}

// Save returns the port's snapshot (output buffer is not part of hardware
// state and is not carried across snapshot round-trips).
func (p *Port) Save() Snapshot {
	return Snapshot{SB: p.sb, SC: p.sc, Active: p.active, ShiftsLeft: p.shiftsLeft}
}

// Restore replaces the port's state from a snapshot.
func (p *Port) Restore(s Snapshot) {
	p.sb = s.SB
	p.sc = s.SC
	p.active = s.Active
	p.shiftsLeft = s.ShiftsLeft
}
